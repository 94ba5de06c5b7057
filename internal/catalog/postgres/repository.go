// Package postgres provides PostgreSQL implementation of the catalog repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/aridosvaldez/aridos/internal/catalog"
	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements catalog.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const machineryColumns = `id, name, type, model, status, location, created_at, updated_at`

func scanMachinery(row pgx.Row) (*domain.Machinery, error) {
	var m domain.Machinery
	err := row.Scan(&m.ID, &m.Name, &m.Type, &m.Model, &m.Status, &m.Location, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMachinery retrieves machinery matching the provided filter.
func (r *Repository) ListMachinery(ctx context.Context, filter catalog.MachineryFilter) ([]domain.Machinery, error) {
	query := `SELECT ` + machineryColumns + ` FROM machinery WHERE 1=1`
	var args []any
	argNum := 1

	if filter.Search != "" {
		query += fmt.Sprintf(" AND (name ILIKE $%d OR type ILIKE $%d OR model ILIKE $%d)", argNum, argNum, argNum)
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, *filter.Status)
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list machinery: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Machinery, 0)
	for rows.Next() {
		m, err := scanMachinery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan machinery: %w", err)
		}
		result = append(result, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate machinery: %w", err)
	}
	return result, nil
}

// GetMachinery retrieves a machine by ID.
func (r *Repository) GetMachinery(ctx context.Context, id string) (*domain.Machinery, error) {
	m, err := scanMachinery(r.db.QueryRow(ctx, `SELECT `+machineryColumns+` FROM machinery WHERE id = $1`, id))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation) {
			return nil, catalog.ErrMachineryNotFound
		}
		return nil, fmt.Errorf("get machinery: %w", err)
	}
	return m, nil
}
