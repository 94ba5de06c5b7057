// Package catalog serves the machinery operators attribute movements to.
package catalog

import (
	"context"
	"strings"

	"github.com/aridosvaldez/aridos/internal/domain"
)

// Service provides read access to the machinery catalog.
type Service struct {
	repo Repository
}

// NewService creates a new catalog service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListMachinery returns machinery matching filter, ordered by name.
func (s *Service) ListMachinery(ctx context.Context, filter MachineryFilter) ([]domain.Machinery, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, ErrInvalidStatus
	}
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.ListMachinery(ctx, filter)
}

// GetMachinery returns one machine.
func (s *Service) GetMachinery(ctx context.Context, id string) (*domain.Machinery, error) {
	return s.repo.GetMachinery(ctx, id)
}
