package movements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepository implements Repository in memory. WithinTx works on a
// copy and only publishes it when fn succeeds.
type memoryRepository struct {
	mu        sync.Mutex
	materials map[string]domain.Material
	movements []domain.Movement
	listErr   error
	lastLimit int
}

func newMemoryRepository(materials ...domain.Material) *memoryRepository {
	repo := &memoryRepository{materials: make(map[string]domain.Material)}
	for _, m := range materials {
		repo.materials[m.ID] = m
	}
	return repo
}

func (m *memoryRepository) WithinTx(_ context.Context, fn func(tx TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{
		materials: make(map[string]domain.Material, len(m.materials)),
		movements: append([]domain.Movement(nil), m.movements...),
	}
	for k, v := range m.materials {
		tx.materials[k] = v
	}

	if err := fn(tx); err != nil {
		return err
	}
	m.materials = tx.materials
	m.movements = tx.movements
	return nil
}

func (m *memoryRepository) ListMovements(_ context.Context, filter MovementFilter) ([]domain.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = filter.Limit
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]domain.Movement, 0)
	for i := len(m.movements) - 1; i >= 0; i-- {
		mv := m.movements[i]
		mv.MaterialName = m.materials[mv.MaterialID].Name
		if filter.Search != "" && !strings.Contains(mv.MaterialName+" "+string(mv.Type), filter.Search) {
			continue
		}
		result = append(result, mv)
	}
	return result, nil
}

func (m *memoryRepository) ListMaterials(_ context.Context) ([]domain.Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.Material, 0, len(m.materials))
	for _, mat := range m.materials {
		result = append(result, mat)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *memoryRepository) material(id string) domain.Material {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.materials[id]
}

func (m *memoryRepository) movementCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.movements)
}

type memoryTx struct {
	materials map[string]domain.Material
	movements []domain.Movement
}

func (t *memoryTx) LockMaterial(_ context.Context, id string) (*domain.Material, error) {
	m, ok := t.materials[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMaterialNotFound, id)
	}
	return &m, nil
}

func (t *memoryTx) InsertMovement(_ context.Context, mv *domain.Movement) (bool, error) {
	for _, existing := range t.movements {
		if existing.OperationID == mv.OperationID {
			return false, nil
		}
	}
	mv.ID = fmt.Sprintf("mv-%d", len(t.movements)+1)
	mv.CreatedAt = time.Now()
	t.movements = append(t.movements, *mv)
	return true, nil
}

func (t *memoryTx) SetMaterialStock(_ context.Context, id string, stock float64) error {
	m := t.materials[id]
	m.CurrentStock = stock
	t.materials[id] = m
	return nil
}

func (t *memoryTx) SetMaterialLocation(_ context.Context, id, location string) error {
	m := t.materials[id]
	m.Location = location
	t.materials[id] = m
	return nil
}

func arena() domain.Material {
	return domain.Material{ID: "arena", Name: "Arena fina", Unit: "m3", CurrentStock: 100, MinStock: 20, Location: "Playa 1"}
}

func op(t *testing.T, id string, input map[string]any) domain.PendingOperation {
	t.Helper()
	payload, err := json.Marshal(input)
	require.NoError(t, err)
	return domain.PendingOperation{ID: id, Payload: payload, EnqueuedAt: time.Now()}
}

func TestApplyBatch_AppliesInOrder(t *testing.T) {
	// Arrange
	repo := newMemoryRepository(arena())
	service := NewService(repo)
	ops := []domain.PendingOperation{
		op(t, "op-1", map[string]any{"type": "entrada", "material_id": "arena", "quantity": 50}),
		op(t, "op-2", map[string]any{"type": "salida", "material_id": "arena", "quantity": 140}),
		op(t, "op-3", map[string]any{"type": "transferencia", "material_id": "arena", "quantity": 10, "destination": "Playa 2"}),
	}

	// Act
	result, err := service.ApplyBatch(context.Background(), "u-1", ops)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.BatchResult{Applied: 3}, result)
	material := repo.material("arena")
	assert.InDelta(t, 10.0, material.CurrentStock, 0.0001, "exit only succeeds after the earlier entry")
	assert.Equal(t, "Playa 2", material.Location)
	assert.Equal(t, 3, repo.movementCount())
}

func TestApplyBatch_ReplayIsIdempotent(t *testing.T) {
	repo := newMemoryRepository(arena())
	service := NewService(repo)
	ops := []domain.PendingOperation{
		op(t, "op-1", map[string]any{"type": "entrada", "material_id": "arena", "quantity": 5}),
	}

	_, err := service.ApplyBatch(context.Background(), "u-1", ops)
	require.NoError(t, err)

	ops = append(ops, op(t, "op-2", map[string]any{"type": "salida", "material_id": "arena", "quantity": 1}))
	result, err := service.ApplyBatch(context.Background(), "u-1", ops)

	require.NoError(t, err)
	assert.Equal(t, domain.BatchResult{Applied: 1, Duplicates: 1}, result)
	assert.InDelta(t, 104.0, repo.material("arena").CurrentStock, 0.0001)
	assert.Equal(t, 2, repo.movementCount())
}

func TestApplyBatch_FailureRollsBackWholeBatch(t *testing.T) {
	// Arrange
	repo := newMemoryRepository(arena())
	service := NewService(repo)
	ops := []domain.PendingOperation{
		op(t, "op-1", map[string]any{"type": "entrada", "material_id": "arena", "quantity": 5}),
		op(t, "op-2", map[string]any{"type": "salida", "material_id": "arena", "quantity": 1000}),
	}

	// Act
	_, err := service.ApplyBatch(context.Background(), "u-1", ops)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "op-2")
	assert.InDelta(t, 100.0, repo.material("arena").CurrentStock, 0.0001)
	assert.Zero(t, repo.movementCount())
}

func TestApplyBatch_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		ops     func(t *testing.T) []domain.PendingOperation
		wantErr error
	}{
		{
			name:    "empty batch",
			ops:     func(*testing.T) []domain.PendingOperation { return nil },
			wantErr: ErrEmptyBatch,
		},
		{
			name: "too large",
			ops: func(t *testing.T) []domain.PendingOperation {
				ops := make([]domain.PendingOperation, MaxBatchSize+1)
				for i := range ops {
					ops[i] = op(t, fmt.Sprintf("op-%d", i), map[string]any{"type": "entrada", "material_id": "arena", "quantity": 1})
				}
				return ops
			},
			wantErr: ErrBatchTooLarge,
		},
		{
			name: "missing id",
			ops: func(t *testing.T) []domain.PendingOperation {
				return []domain.PendingOperation{op(t, "", map[string]any{"type": "entrada", "material_id": "arena", "quantity": 1})}
			},
			wantErr: ErrInvalidPayload,
		},
		{
			name: "repeated id",
			ops: func(t *testing.T) []domain.PendingOperation {
				o := op(t, "op-1", map[string]any{"type": "entrada", "material_id": "arena", "quantity": 1})
				return []domain.PendingOperation{o, o}
			},
			wantErr: ErrDuplicateOperation,
		},
		{
			name: "unknown movement type",
			ops: func(t *testing.T) []domain.PendingOperation {
				return []domain.PendingOperation{op(t, "op-1", map[string]any{"type": "robo", "material_id": "arena", "quantity": 1})}
			},
			wantErr: ErrInvalidPayload,
		},
		{
			name: "unknown field",
			ops: func(t *testing.T) []domain.PendingOperation {
				return []domain.PendingOperation{op(t, "op-1", map[string]any{"type": "entrada", "material_id": "arena", "quantity": 1, "price": 3})}
			},
			wantErr: ErrInvalidPayload,
		},
		{
			name: "unknown material",
			ops: func(t *testing.T) []domain.PendingOperation {
				return []domain.PendingOperation{op(t, "op-1", map[string]any{"type": "entrada", "material_id": "oro", "quantity": 1})}
			},
			wantErr: ErrMaterialNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryRepository(arena())
			service := NewService(repo)

			_, err := service.ApplyBatch(context.Background(), "u-1", tt.ops(t))

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, repo.movementCount())
		})
	}
}

func TestListMovements_ClampsLimit(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{name: "default", limit: 0, wantLimit: defaultListLimit},
		{name: "within range", limit: 10, wantLimit: 10},
		{name: "above max", limit: 10000, wantLimit: maxListLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryRepository()
			service := NewService(repo)

			_, err := service.ListMovements(context.Background(), MovementFilter{Limit: tt.limit})

			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, repo.lastLimit)
		})
	}
}

func TestListMovements_Error(t *testing.T) {
	repo := newMemoryRepository()
	repo.listErr = errors.New("db down")
	service := NewService(repo)

	_, err := service.ListMovements(context.Background(), MovementFilter{})

	assert.Error(t, err)
}

func TestStockReport(t *testing.T) {
	// Arrange
	repo := newMemoryRepository(
		arena(),
		domain.Material{ID: "cemento", Name: "Cemento", Unit: "t", CurrentStock: 28, MinStock: 20},
		domain.Material{ID: "grava", Name: "Grava 20mm", Unit: "m3", CurrentStock: 15, MinStock: 20},
	)
	service := NewService(repo)

	// Act
	report, err := service.StockReport(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, report.Critical)
	assert.Equal(t, 1, report.Low)
	assert.Equal(t, 1, report.Normal)
	require.Len(t, report.Materials, 3)

	var ids []string
	for _, m := range report.Materials {
		ids = append(ids, m.MaterialID)
	}
	assert.Equal(t, []string{"grava", "cemento", "arena"}, ids, "most urgent first")
	assert.Equal(t, domain.StockCritical, report.Materials[0].Level)
	assert.InDelta(t, 37.5, report.Materials[0].Coverage, 0.01)
	assert.Equal(t, domain.StockLow, report.Materials[1].Level)
	assert.InDelta(t, 70.0, report.Materials[1].Coverage, 0.01)
}

func TestStockReport_Empty(t *testing.T) {
	report, err := NewService(newMemoryRepository()).StockReport(context.Background())

	require.NoError(t, err)
	assert.Empty(t, report.Materials)
	assert.NotNil(t, report.Materials)
}
