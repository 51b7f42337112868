package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the stock ledger in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations that must run inside one transaction.
type TxRepository interface {
	GetEntryForUpdate(ctx context.Context, tenantID, materialID, warehouseID string) (LedgerEntry, error)
	InsertEntry(ctx context.Context, e LedgerEntry) error
	UpdateEntryQuantity(ctx context.Context, tenantID, entryID string, quantity int64) error
	InsertTransaction(ctx context.Context, t Transaction) error
}

// WithTx runs fn inside a single database transaction. The stock invariants
// (non-negative quantities, conservation across transfers) rely on every
// mutation path going through here with row locks held.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	dbTx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin stock tx: %w", err)
	}
	defer func() { _ = dbTx.Rollback(ctx) }()

	if err := fn(ctx, &txRepository{tx: dbTx}); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit stock tx: %w", err)
	}
	return nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, tenantID, materialID, warehouseID string) (LedgerEntry, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT id, tenant_id, material_id, material_code, material_name, category,
		       warehouse_id, quantity, unit_of_measure, avg_cost, is_active,
		       created_by, created_at, updated_at
		FROM stock_ledger
		WHERE tenant_id = $1 AND material_id = $2 AND warehouse_id = $3 AND is_active
		FOR UPDATE`,
		tenantID, materialID, warehouseID)
	return scanEntry(row)
}

func (r *txRepository) InsertEntry(ctx context.Context, e LedgerEntry) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO stock_ledger (
			id, tenant_id, material_id, material_code, material_name, category,
			warehouse_id, quantity, unit_of_measure, avg_cost, is_active,
			created_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, e.TenantID, e.MaterialID, e.MaterialCode, e.MaterialName, e.Category,
		e.WarehouseID, e.Quantity, e.UnitOfMeasure, e.AvgCost, e.IsActive,
		e.CreatedBy, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert stock entry: %w", err)
	}
	return nil
}

func (r *txRepository) UpdateEntryQuantity(ctx context.Context, tenantID, entryID string, quantity int64) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE stock_ledger
		SET quantity = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND $3 >= 0`,
		tenantID, entryID, quantity)
	if err != nil {
		return fmt.Errorf("update stock entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNegativeStock
	}
	return nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, t Transaction) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO stock_transactions (
			id, tenant_id, type, material_id, warehouse_id,
			from_warehouse_id, to_warehouse_id, quantity, previous_qty, new_qty,
			reason, reference, performed_by, performed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		t.ID, t.TenantID, t.Type, t.MaterialID, nullable(t.WarehouseID),
		nullable(t.FromWarehouseID), nullable(t.ToWarehouseID), t.Quantity, t.PreviousQty, t.NewQty,
		t.Reason, t.Reference, t.PerformedBy, t.PerformedAt)
	if err != nil {
		return fmt.Errorf("insert stock transaction: %w", err)
	}
	return nil
}

// UpsertImport overwrites quantity and avg cost for an existing active entry,
// or creates the entry with the supplied catalog fields. Used by bulk import
// where re-running the same file must be idempotent.
func (r *Repository) UpsertImport(ctx context.Context, tenantID, actorID string, item BulkImportItem) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO stock_ledger (
			id, tenant_id, material_id, material_code, material_name, category,
			warehouse_id, quantity, unit_of_measure, avg_cost, is_active,
			created_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,true,$11,$12,$12)
		ON CONFLICT (tenant_id, material_id, warehouse_id) WHERE is_active
		DO UPDATE SET quantity = EXCLUDED.quantity,
		              avg_cost = EXCLUDED.avg_cost,
		              updated_at = EXCLUDED.updated_at`,
		uuid.NewString(), tenantID, item.MaterialID, item.MaterialCode, item.MaterialName,
		item.Category, item.WarehouseID, item.Quantity, item.UnitOfMeasure, item.AvgCost,
		actorID, now)
	if err != nil {
		return fmt.Errorf("upsert import row: %w", err)
	}
	return nil
}

func (r *Repository) GetEntry(ctx context.Context, tenantID, entryID string) (LedgerEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, material_id, material_code, material_name, category,
		       warehouse_id, quantity, unit_of_measure, avg_cost, is_active,
		       created_by, created_at, updated_at
		FROM stock_ledger
		WHERE tenant_id = $1 AND id = $2 AND is_active`,
		tenantID, entryID)
	return scanEntry(row)
}

// Deactivate soft-removes an entry. Ledger rows are never hard-deleted.
func (r *Repository) Deactivate(ctx context.Context, tenantID, entryID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE stock_ledger SET is_active = false, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND is_active`,
		tenantID, entryID)
	if err != nil {
		return fmt.Errorf("deactivate stock entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

var sortColumns = map[string]string{
	"materialName": "material_name",
	"materialCode": "material_code",
	"category":     "category",
	"quantity":     "quantity",
	"avgCost":      "avg_cost",
	"updatedAt":    "updated_at",
}

func (r *Repository) List(ctx context.Context, tenantID string, f ListFilter) ([]LedgerEntry, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`
		SELECT id, tenant_id, material_id, material_code, material_name, category,
		       warehouse_id, quantity, unit_of_measure, avg_cost, is_active,
		       created_by, created_at, updated_at
		FROM stock_ledger
		WHERE tenant_id = $1 AND is_active`)
	args = append(args, tenantID)

	add := func(clause, value string) {
		args = append(args, value)
		fmt.Fprintf(&sb, " AND %s = $%d", clause, len(args))
	}
	if f.WarehouseID != "" {
		add("warehouse_id", f.WarehouseID)
	}
	if f.MaterialID != "" {
		add("material_id", f.MaterialID)
	}
	if f.Category != "" {
		add("category", f.Category)
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		fmt.Fprintf(&sb, " AND (material_name ILIKE $%d OR material_code ILIKE $%d)", len(args), len(args))
	}

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "material_name"
	}
	dir := "ASC"
	if strings.EqualFold(f.SortOrder, "desc") {
		dir = "DESC"
	}
	fmt.Fprintf(&sb, " ORDER BY %s %s", col, dir)

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list stock ledger: %w", err)
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) Summary(ctx context.Context, tenantID string) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, `
		SELECT count(*), coalesce(sum(quantity), 0), coalesce(sum(quantity * avg_cost), 0)
		FROM stock_ledger
		WHERE tenant_id = $1 AND is_active`,
		tenantID).Scan(&s.TotalItems, &s.TotalQuantity, &s.TotalValue)
	if err != nil {
		return Summary{}, fmt.Errorf("stock summary: %w", err)
	}
	return s, nil
}

func (r *Repository) CategoryBreakdown(ctx context.Context, tenantID string) (map[string]CategoryRollup, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT category, count(*), coalesce(sum(quantity), 0), coalesce(sum(quantity * avg_cost), 0)
		FROM stock_ledger
		WHERE tenant_id = $1 AND is_active
		GROUP BY category`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("stock category breakdown: %w", err)
	}
	defer rows.Close()

	out := make(map[string]CategoryRollup)
	for rows.Next() {
		var (
			category string
			roll     CategoryRollup
		)
		if err := rows.Scan(&category, &roll.Count, &roll.TotalQty, &roll.TotalValue); err != nil {
			return nil, fmt.Errorf("scan category rollup: %w", err)
		}
		out[category] = roll
	}
	return out, rows.Err()
}

func (r *Repository) ListTransactions(ctx context.Context, tenantID, materialID string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`
		SELECT id, tenant_id, type, material_id,
		       coalesce(warehouse_id, ''), coalesce(from_warehouse_id, ''), coalesce(to_warehouse_id, ''),
		       quantity, previous_qty, new_qty, reason, reference, performed_by, performed_at
		FROM stock_transactions
		WHERE tenant_id = $1`)
	args = append(args, tenantID)
	if materialID != "" {
		args = append(args, materialID)
		fmt.Fprintf(&sb, " AND material_id = $%d", len(args))
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, " ORDER BY performed_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list stock transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Type, &t.MaterialID,
			&t.WarehouseID, &t.FromWarehouseID, &t.ToWarehouseID,
			&t.Quantity, &t.PreviousQty, &t.NewQty, &t.Reason, &t.Reference,
			&t.PerformedBy, &t.PerformedAt); err != nil {
			return nil, fmt.Errorf("scan stock transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (LedgerEntry, error) {
	var e LedgerEntry
	err := row.Scan(&e.ID, &e.TenantID, &e.MaterialID, &e.MaterialCode, &e.MaterialName,
		&e.Category, &e.WarehouseID, &e.Quantity, &e.UnitOfMeasure, &e.AvgCost,
		&e.IsActive, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return LedgerEntry{}, ErrItemNotFound
	}
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("scan stock entry: %w", err)
	}
	return e, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
