package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStockLevel(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		minimum float64
		want    StockLevel
	}{
		{name: "empty", current: 0, minimum: 10, want: StockCritical},
		{name: "exactly at minimum", current: 10, minimum: 10, want: StockCritical},
		{name: "just above half", current: 11, minimum: 10, want: StockLow},
		{name: "three quarters", current: 15, minimum: 10, want: StockLow},
		{name: "above three quarters", current: 16, minimum: 10, want: StockNormal},
		{name: "no minimum", current: 0, minimum: 0, want: StockNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StockLevelOf(StockCoverage(tt.current, tt.minimum)))
		})
	}
}
