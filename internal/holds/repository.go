package holds

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists inventory holds in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertBatch writes all holds of one quote atomically.
func (r *Repository) InsertBatch(ctx context.Context, hs []Hold) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin holds tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, h := range hs {
		_, err := tx.Exec(ctx, `
			INSERT INTO inventory_holds (
				id, tenant_id, quote_id, material_id, warehouse_id,
				quantity, created_by, created_at, expires_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			h.ID, h.TenantID, h.QuoteID, h.MaterialID, h.WarehouseID,
			h.Quantity, h.CreatedBy, h.CreatedAt, h.ExpiresAt)
		if err != nil {
			return fmt.Errorf("insert hold: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit holds tx: %w", err)
	}
	return nil
}

// List returns every hold for a tenant, optionally narrowed to a quote.
func (r *Repository) List(ctx context.Context, tenantID, quoteID string) ([]Hold, error) {
	query := `
		SELECT id, tenant_id, quote_id, material_id, warehouse_id,
		       quantity, created_by, created_at, expires_at
		FROM inventory_holds
		WHERE tenant_id = $1`
	args := []any{tenantID}
	if quoteID != "" {
		query += ` AND quote_id = $2`
		args = append(args, quoteID)
	}
	query += ` ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list holds: %w", err)
	}
	defer rows.Close()

	var out []Hold
	for rows.Next() {
		var h Hold
		if err := rows.Scan(&h.ID, &h.TenantID, &h.QuoteID, &h.MaterialID, &h.WarehouseID,
			&h.Quantity, &h.CreatedBy, &h.CreatedAt, &h.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan hold: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteByQuote removes every hold of one quote and reports how many.
func (r *Repository) DeleteByQuote(ctx context.Context, tenantID, quoteID string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM inventory_holds WHERE tenant_id = $1 AND quote_id = $2`,
		tenantID, quoteID)
	if err != nil {
		return 0, fmt.Errorf("release holds: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes all lapsed holds across tenants. Used by the sweeper.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM inventory_holds WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired holds: %w", err)
	}
	return tag.RowsAffected(), nil
}
