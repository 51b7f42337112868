package warranty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftline-erp/craftline-erp/internal/shared"
)

// Repository persists warranties in Postgres. Claims live as a jsonb array on
// the warranty row with a separate integer counter, appended in one UPDATE so
// the two never drift.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) NextSequence(ctx context.Context, tenantID string, year int) (int64, error) {
	return shared.NextIn(ctx, r.pool, tenantID, "warranty", year)
}

// Insert writes the warranty and flags the invoice in one transaction.
func (r *Repository) Insert(ctx context.Context, w Warranty) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin warranty tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	items, err := json.Marshal(w.Items)
	if err != nil {
		return fmt.Errorf("marshal warranty items: %w", err)
	}
	exclusions, err := json.Marshal(w.Exclusions)
	if err != nil {
		return fmt.Errorf("marshal warranty exclusions: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO warranties (
			id, tenant_id, warranty_number, invoice_id, invoice_number, order_id,
			installation_id, customer_name, customer_phone, site_address,
			warranty_type, warranty_period, start_date, end_date,
			items, items_covered, coverage_details, exclusions,
			claims_count, claims, status, registered_by, registered_at,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,0,'[]'::jsonb,$19,$20,$21,$22,$23)`,
		w.ID, w.TenantID, w.WarrantyNumber, nilIfEmpty(w.InvoiceID), w.InvoiceNumber, w.OrderID,
		w.InstallationID, w.CustomerName, w.CustomerPhone, w.SiteAddress,
		w.WarrantyType, w.WarrantyPeriod, w.StartDate, w.EndDate,
		items, w.ItemsCovered, w.CoverageDetails, exclusions,
		w.Status, w.RegisteredBy, w.RegisteredAt, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert warranty: %w", err)
	}

	if w.InvoiceID != "" {
		_, err = tx.Exec(ctx, `
			UPDATE invoices
			SET warranty_registered = true, warranty_id = $3, warranty_number = $4, updated_at = now()
			WHERE tenant_id = $1 AND id = $2`,
			w.TenantID, w.InvoiceID, w.ID, w.WarrantyNumber)
		if err != nil {
			return fmt.Errorf("flag invoice warranty: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit warranty tx: %w", err)
	}
	return nil
}

const warrantySelect = `
	SELECT id, tenant_id, warranty_number, coalesce(invoice_id, ''), invoice_number, order_id,
	       installation_id, customer_name, customer_phone, site_address,
	       warranty_type, warranty_period, start_date, end_date,
	       items, items_covered, coverage_details, exclusions,
	       claims_count, claims, status, registered_by, registered_at,
	       created_at, updated_at
	FROM warranties`

func (r *Repository) Get(ctx context.Context, tenantID, warrantyID string) (Warranty, error) {
	row := r.pool.QueryRow(ctx, warrantySelect+` WHERE tenant_id = $1 AND id = $2`, tenantID, warrantyID)
	return scanWarranty(row)
}

func (r *Repository) List(ctx context.Context, tenantID string, status Status) ([]Warranty, error) {
	query := warrantySelect + ` WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list warranties: %w", err)
	}
	defer rows.Close()

	var out []Warranty
	for rows.Next() {
		w, err := scanWarranty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// AppendClaim attaches the claim and bumps the counter in one statement.
func (r *Repository) AppendClaim(ctx context.Context, tenantID, warrantyID string, c Claim) error {
	claimJSON, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal claim: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE warranties
		SET claims = claims || $3::jsonb,
		    claims_count = claims_count + 1,
		    updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, warrantyID, claimJSON)
	if err != nil {
		return fmt.Errorf("append warranty claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) UpdateStatus(ctx context.Context, tenantID, warrantyID string, status Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE warranties SET status = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, warrantyID, status)
	if err != nil {
		return fmt.Errorf("update warranty status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireLapsed marks active warranties past their end date as expired.
func (r *Repository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE warranties SET status = 'expired', updated_at = now()
		WHERE status = 'active' AND end_date < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire lapsed warranties: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) Stats(ctx context.Context, tenantID string) (Stats, error) {
	var s Stats
	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'active'),
		       count(*) FILTER (WHERE status = 'expired'),
		       coalesce(sum(claims_count), 0)
		FROM warranties
		WHERE tenant_id = $1`,
		tenantID).Scan(&s.Total, &s.Active, &s.Expired, &s.TotalClaims)
	if err != nil {
		return Stats{}, fmt.Errorf("warranty stats: %w", err)
	}
	return s, nil
}

func scanWarranty(row pgx.Row) (Warranty, error) {
	var (
		w                         Warranty
		items, exclusions, claims []byte
	)
	err := row.Scan(&w.ID, &w.TenantID, &w.WarrantyNumber, &w.InvoiceID, &w.InvoiceNumber,
		&w.OrderID, &w.InstallationID, &w.CustomerName, &w.CustomerPhone, &w.SiteAddress,
		&w.WarrantyType, &w.WarrantyPeriod, &w.StartDate, &w.EndDate,
		&items, &w.ItemsCovered, &w.CoverageDetails, &exclusions,
		&w.ClaimsCount, &claims, &w.Status, &w.RegisteredBy, &w.RegisteredAt,
		&w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warranty{}, ErrNotFound
	}
	if err != nil {
		return Warranty{}, fmt.Errorf("scan warranty: %w", err)
	}
	if err := json.Unmarshal(items, &w.Items); err != nil {
		return Warranty{}, fmt.Errorf("unmarshal warranty items: %w", err)
	}
	if err := json.Unmarshal(exclusions, &w.Exclusions); err != nil {
		return Warranty{}, fmt.Errorf("unmarshal warranty exclusions: %w", err)
	}
	if err := json.Unmarshal(claims, &w.Claims); err != nil {
		return Warranty{}, fmt.Errorf("unmarshal warranty claims: %w", err)
	}
	return w, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
