// Package postgres provides PostgreSQL implementation of the movements repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/aridosvaldez/aridos/internal/movements"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements movements.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// WithinTx runs fn in a transaction.
func (r *Repository) WithinTx(ctx context.Context, fn func(tx movements.TxRepository) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := fn(&txRepository{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListMovements retrieves recent movements with their material name.
func (r *Repository) ListMovements(ctx context.Context, filter movements.MovementFilter) ([]domain.Movement, error) {
	query := `
		SELECT m.id, COALESCE(m.operation_id, ''), m.type, m.material_id, mat.name,
		       m.machinery_id, m.quantity, m.origin, m.destination, m.user_id, m.notes, m.created_at
		FROM movements m
		JOIN materials mat ON mat.id = m.material_id
		WHERE 1=1
	`
	var args []any
	argNum := 1

	if filter.Search != "" {
		query += fmt.Sprintf(" AND (mat.name ILIKE $%d OR m.type ILIKE $%d)", argNum, argNum)
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}
	query += fmt.Sprintf(" ORDER BY m.created_at DESC, m.id LIMIT $%d", argNum)
	args = append(args, filter.Limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Movement, 0)
	for rows.Next() {
		var m domain.Movement
		err := rows.Scan(
			&m.ID,
			&m.OperationID,
			&m.Type,
			&m.MaterialID,
			&m.MaterialName,
			&m.MachineryID,
			&m.Quantity,
			&m.Origin,
			&m.Destination,
			&m.UserID,
			&m.Notes,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}
	return result, nil
}

// ListMaterials retrieves all materials ordered by name.
func (r *Repository) ListMaterials(ctx context.Context) ([]domain.Material, error) {
	query := `
		SELECT id, name, type, unit, current_stock, min_stock, location, created_at, updated_at
		FROM materials
		ORDER BY name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Material, 0)
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, fmt.Errorf("scan material: %w", err)
		}
		result = append(result, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate materials: %w", err)
	}
	return result, nil
}

func scanMaterial(row pgx.Row) (*domain.Material, error) {
	var m domain.Material
	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Type,
		&m.Unit,
		&m.CurrentStock,
		&m.MinStock,
		&m.Location,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) LockMaterial(ctx context.Context, id string) (*domain.Material, error) {
	query := `
		SELECT id, name, type, unit, current_stock, min_stock, location, created_at, updated_at
		FROM materials
		WHERE id = $1
		FOR UPDATE
	`
	m, err := scanMaterial(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || hasCode(err, pgerrcode.InvalidTextRepresentation) {
			return nil, fmt.Errorf("%w: %s", movements.ErrMaterialNotFound, id)
		}
		return nil, fmt.Errorf("lock material: %w", err)
	}
	return m, nil
}

func (t *txRepository) InsertMovement(ctx context.Context, m *domain.Movement) (bool, error) {
	query := `
		INSERT INTO movements (
			operation_id, type, material_id, machinery_id, quantity,
			origin, destination, user_id, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (operation_id) DO NOTHING
		RETURNING id, created_at
	`
	err := t.tx.QueryRow(ctx, query,
		m.OperationID,
		m.Type,
		m.MaterialID,
		m.MachineryID,
		m.Quantity,
		m.Origin,
		m.Destination,
		m.UserID,
		m.Notes,
	).Scan(&m.ID, &m.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if m.MachineryID != nil && (hasCode(err, pgerrcode.ForeignKeyViolation) || hasCode(err, pgerrcode.InvalidTextRepresentation)) {
		return false, fmt.Errorf("%w: %s", movements.ErrMachineryNotFound, *m.MachineryID)
	}
	if err != nil {
		return false, fmt.Errorf("insert movement: %w", err)
	}
	return true, nil
}

func (t *txRepository) SetMaterialStock(ctx context.Context, id string, stock float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE materials SET current_stock = $2, updated_at = NOW() WHERE id = $1`, id, stock)
	if err != nil {
		return fmt.Errorf("update material stock: %w", err)
	}
	return nil
}

func (t *txRepository) SetMaterialLocation(ctx context.Context, id, location string) error {
	_, err := t.tx.Exec(ctx, `UPDATE materials SET location = $2, updated_at = NOW() WHERE id = $1`, id, location)
	if err != nil {
		return fmt.Errorf("update material location: %w", err)
	}
	return nil
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
