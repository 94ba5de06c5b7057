package catalog

import (
	"context"

	"github.com/aridosvaldez/aridos/internal/domain"
)

// Repository reads the machinery catalog.
type Repository interface {
	ListMachinery(ctx context.Context, filter MachineryFilter) ([]domain.Machinery, error)
	GetMachinery(ctx context.Context, id string) (*domain.Machinery, error)
}

// MachineryFilter represents filter criteria for listing machinery.
type MachineryFilter struct {
	Search string
	Status *domain.MachineryStatus
}
