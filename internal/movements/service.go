// Package movements applies stock movements replayed by terminals and
// serves the movement history.
package movements

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/go-playground/validator/v10"
)

// MaxBatchSize bounds how many operations one batch may carry.
const MaxBatchSize = 500

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service implements movement business logic.
type Service struct {
	repo      Repository
	validator *validator.Validate
}

// NewService creates a new movement service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: validator.New()}
}

type decodedOperation struct {
	id    string
	input domain.MovementInput
}

// ApplyBatch applies ops in order inside one transaction. Operations whose
// id was already applied are skipped, so replaying a batch is safe. Any
// failing operation rolls the whole batch back.
func (s *Service) ApplyBatch(ctx context.Context, userID string, ops []domain.PendingOperation) (domain.BatchResult, error) {
	decoded, err := s.decode(ops)
	if err != nil {
		batchesTotal.WithLabelValues("invalid").Inc()
		return domain.BatchResult{}, err
	}

	var result domain.BatchResult
	var lowStock []domain.Material
	var appliedTypes []domain.MovementType

	err = s.repo.WithinTx(ctx, func(tx TxRepository) error {
		result = domain.BatchResult{}
		lowStock = lowStock[:0]
		appliedTypes = appliedTypes[:0]

		for _, op := range decoded {
			applied, material, err := s.apply(ctx, tx, userID, op)
			if err != nil {
				return fmt.Errorf("operation %s: %w", op.id, err)
			}
			if !applied {
				result.Duplicates++
				continue
			}
			result.Applied++
			appliedTypes = append(appliedTypes, op.input.Type)
			if material.CurrentStock < material.MinStock {
				lowStock = append(lowStock, *material)
			}
		}
		return nil
	})
	if err != nil {
		batchesTotal.WithLabelValues("rejected").Inc()
		return domain.BatchResult{}, err
	}

	batchesTotal.WithLabelValues("applied").Inc()
	duplicatesTotal.Add(float64(result.Duplicates))
	for _, t := range appliedTypes {
		appliedTotal.WithLabelValues(string(t)).Inc()
	}
	for _, m := range lowStock {
		slog.Warn("material below minimum stock",
			"material_id", m.ID, "material", m.Name,
			"stock", m.CurrentStock, "min_stock", m.MinStock)
	}
	return result, nil
}

func (s *Service) decode(ops []domain.PendingOperation) ([]decodedOperation, error) {
	if len(ops) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(ops) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d operations, max %d", ErrBatchTooLarge, len(ops), MaxBatchSize)
	}

	seen := make(map[string]struct{}, len(ops))
	decoded := make([]decodedOperation, 0, len(ops))
	for _, op := range ops {
		if op.ID == "" {
			return nil, fmt.Errorf("%w: missing operation id", ErrInvalidPayload)
		}
		if _, dup := seen[op.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOperation, op.ID)
		}
		seen[op.ID] = struct{}{}

		var input domain.MovementInput
		dec := json.NewDecoder(bytes.NewReader(op.Payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&input); err != nil {
			return nil, fmt.Errorf("%w: operation %s: %w", ErrInvalidPayload, op.ID, err)
		}
		if err := s.validator.Struct(input); err != nil {
			return nil, fmt.Errorf("%w: operation %s: %w", ErrInvalidPayload, op.ID, err)
		}
		decoded = append(decoded, decodedOperation{id: op.ID, input: input})
	}
	return decoded, nil
}

// apply reports false when op.id was already applied.
func (s *Service) apply(ctx context.Context, tx TxRepository, userID string, op decodedOperation) (bool, *domain.Material, error) {
	material, err := tx.LockMaterial(ctx, op.input.MaterialID)
	if err != nil {
		return false, nil, err
	}

	in := op.input
	inserted, err := tx.InsertMovement(ctx, &domain.Movement{
		OperationID: op.id,
		Type:        in.Type,
		MaterialID:  in.MaterialID,
		MachineryID: in.MachineryID,
		Quantity:    in.Quantity,
		Origin:      in.Origin,
		Destination: in.Destination,
		UserID:      userID,
		Notes:       in.Notes,
	})
	if err != nil {
		return false, nil, err
	}
	if !inserted {
		return false, material, nil
	}

	switch in.Type {
	case domain.MovementTypeTransfer:
		material.Location = *in.Destination
		if err := tx.SetMaterialLocation(ctx, material.ID, material.Location); err != nil {
			return false, nil, err
		}
	default:
		stock := material.CurrentStock + in.StockDelta()
		if stock < 0 {
			return false, nil, fmt.Errorf("%w: %s has %.2f %s, requested %.2f",
				ErrInsufficientStock, material.Name, material.CurrentStock, material.Unit, in.Quantity)
		}
		material.CurrentStock = stock
		if err := tx.SetMaterialStock(ctx, material.ID, stock); err != nil {
			return false, nil, err
		}
	}
	return true, material, nil
}

// ListMovements returns recent movements, newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]domain.Movement, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return s.repo.ListMovements(ctx, filter)
}

// ListMaterials returns all materials ordered by name.
func (s *Service) ListMaterials(ctx context.Context) ([]domain.Material, error) {
	return s.repo.ListMaterials(ctx)
}

// StockReport classifies every material's stock against its minimum.
// Materials are listed most urgent first, then by name.
func (s *Service) StockReport(ctx context.Context) (domain.StockReport, error) {
	materials, err := s.repo.ListMaterials(ctx)
	if err != nil {
		return domain.StockReport{}, err
	}

	report := domain.StockReport{Materials: make([]domain.MaterialStock, 0, len(materials))}
	for _, m := range materials {
		coverage := domain.StockCoverage(m.CurrentStock, m.MinStock)
		level := domain.StockLevelOf(coverage)
		switch level {
		case domain.StockCritical:
			report.Critical++
		case domain.StockLow:
			report.Low++
		default:
			report.Normal++
		}
		report.Materials = append(report.Materials, domain.MaterialStock{
			MaterialID:   m.ID,
			Name:         m.Name,
			Unit:         m.Unit,
			Location:     m.Location,
			CurrentStock: m.CurrentStock,
			MinStock:     m.MinStock,
			Coverage:     math.Round(coverage*10) / 10,
			Level:        level,
		})
	}

	slices.SortStableFunc(report.Materials, func(a, b domain.MaterialStock) int {
		return cmp.Compare(levelRank[a.Level], levelRank[b.Level])
	})
	return report, nil
}

var levelRank = map[domain.StockLevel]int{
	domain.StockCritical: 0,
	domain.StockLow:      1,
	domain.StockNormal:   2,
}
