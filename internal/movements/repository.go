package movements

import (
	"context"

	"github.com/aridosvaldez/aridos/internal/domain"
)

// MovementFilter narrows ListMovements.
type MovementFilter struct {
	// Search matches material name or movement type.
	Search string
	Limit  int
}

// Repository defines the interface for movement and material storage.
type Repository interface {
	// WithinTx runs fn in one transaction, committing only if fn returns nil.
	WithinTx(ctx context.Context, fn func(tx TxRepository) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]domain.Movement, error)
	ListMaterials(ctx context.Context) ([]domain.Material, error)
}

// TxRepository is the transactional view used while applying a batch.
type TxRepository interface {
	// LockMaterial loads the material and holds it until the transaction ends.
	LockMaterial(ctx context.Context, id string) (*domain.Material, error)
	// InsertMovement reports false when a movement with the same
	// operation id already exists.
	InsertMovement(ctx context.Context, m *domain.Movement) (bool, error)
	SetMaterialStock(ctx context.Context, id string, stock float64) error
	SetMaterialLocation(ctx context.Context, id, location string) error
}
