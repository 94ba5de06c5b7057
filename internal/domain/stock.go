package domain

// StockLevel classifies a material's stock against its minimum.
type StockLevel string

// Stock levels.
const (
	StockCritical StockLevel = "critico"
	StockLow      StockLevel = "bajo"
	StockNormal   StockLevel = "normal"
)

// StockCoverage returns current stock as a percentage of twice the minimum.
// A material without a minimum is always fully covered.
func StockCoverage(current, minimum float64) float64 {
	if minimum <= 0 {
		return 100
	}
	return current / (minimum * 2) * 100
}

// StockLevelOf maps a coverage percentage to a level: 50% or less is
// critical, 75% or less is low.
func StockLevelOf(coverage float64) StockLevel {
	switch {
	case coverage <= 50:
		return StockCritical
	case coverage <= 75:
		return StockLow
	default:
		return StockNormal
	}
}

// MaterialStock is one line of the stock report.
type MaterialStock struct {
	MaterialID   string     `json:"material_id"`
	Name         string     `json:"name"`
	Unit         string     `json:"unit"`
	Location     string     `json:"location"`
	CurrentStock float64    `json:"current_stock"`
	MinStock     float64    `json:"min_stock"`
	Coverage     float64    `json:"coverage"`
	Level        StockLevel `json:"level"`
}

// StockReport summarises stock levels across all materials.
type StockReport struct {
	Materials []MaterialStock `json:"materials"`
	Critical  int             `json:"critical"`
	Low       int             `json:"low"`
	Normal    int             `json:"normal"`
}
