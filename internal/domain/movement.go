package domain

import "time"

type MovementType string

const (
	MovementTypeEntry    MovementType = "entrada"
	MovementTypeExit     MovementType = "salida"
	MovementTypeTransfer MovementType = "transferencia"
)

type Movement struct {
	ID           string       `json:"id"`
	OperationID  string       `json:"operation_id,omitempty"`
	Type         MovementType `json:"type"`
	MaterialID   string       `json:"material_id"`
	MaterialName string       `json:"material_name,omitempty"`
	MachineryID  *string      `json:"machinery_id,omitempty"`
	Quantity     float64      `json:"quantity"`
	Origin       *string      `json:"origin,omitempty"`
	Destination  *string      `json:"destination,omitempty"`
	UserID       string       `json:"user_id"`
	Notes        *string      `json:"notes,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

type Material struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Unit         string    `json:"unit"`
	CurrentStock float64   `json:"current_stock"`
	MinStock     float64   `json:"min_stock"`
	Location     string    `json:"location"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MovementInput is a movement as submitted by a terminal, before the backend
// assigns it an id and an author.
type MovementInput struct {
	Type        MovementType `json:"type" validate:"required,oneof=entrada salida transferencia"`
	MaterialID  string       `json:"material_id" validate:"required"`
	MachineryID *string      `json:"machinery_id,omitempty"`
	Quantity    float64      `json:"quantity" validate:"gt=0"`
	Origin      *string      `json:"origin,omitempty"`
	Destination *string      `json:"destination,omitempty" validate:"required_if=Type transferencia"`
	Notes       *string      `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// StockDelta is the signed change the movement applies to its material.
// Transfers relocate stock and leave the total unchanged.
func (in MovementInput) StockDelta() float64 {
	switch in.Type {
	case MovementTypeEntry:
		return in.Quantity
	case MovementTypeExit:
		return -in.Quantity
	default:
		return 0
	}
}

// BatchResult summarizes a replayed batch.
type BatchResult struct {
	Applied    int `json:"applied"`
	Duplicates int `json:"duplicates"`
}
