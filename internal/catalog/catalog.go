// Package catalog reads the product/material master. The stock ledger does
// not own catalog data; it only consults it for entry creation defaults and
// reorder levels.
package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Material is a catalog row as the stock module needs it.
type Material struct {
	ID            string
	Code          string
	Name          string
	Category      string
	UnitOfMeasure string
	UnitCost      float64
	ReorderLevel  int64
}

// ErrMaterialNotFound indicates a missing catalog row.
var ErrMaterialNotFound = errors.New("catalog: material not found")

// Repository provides read access to the materials table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetMaterial fetches a single material by id.
func (r *Repository) GetMaterial(ctx context.Context, tenantID, materialID string) (Material, error) {
	const query = `
		SELECT id, code, name, category, unit_of_measure, unit_cost, reorder_level
		FROM materials
		WHERE tenant_id = $1 AND id = $2`
	var m Material
	err := r.pool.QueryRow(ctx, query, tenantID, materialID).Scan(
		&m.ID, &m.Code, &m.Name, &m.Category, &m.UnitOfMeasure, &m.UnitCost, &m.ReorderLevel,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Material{}, ErrMaterialNotFound
	}
	if err != nil {
		return Material{}, err
	}
	return m, nil
}

// ReorderLevels returns the reorder level per material id for a tenant.
func (r *Repository) ReorderLevels(ctx context.Context, tenantID string) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, reorder_level FROM materials WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := make(map[string]int64)
	for rows.Next() {
		var id string
		var level int64
		if err := rows.Scan(&id, &level); err != nil {
			return nil, err
		}
		levels[id] = level
	}
	return levels, rows.Err()
}
