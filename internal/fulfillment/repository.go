package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftline-erp/craftline-erp/internal/shared"
)

// Repository persists fulfillment documents in Postgres. Item lists and team
// rosters are jsonb; documents are updated with the prior status as a guard
// so two concurrent transitions cannot both win.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) NextSequence(ctx context.Context, tenantID, docType string, year int) (int64, error) {
	return shared.NextIn(ctx, r.pool, tenantID, docType, year)
}

// --- challans ---

// InsertChallan writes the challan and flags the invoice in one transaction.
func (r *Repository) InsertChallan(ctx context.Context, c Challan) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin challan tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal challan: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO delivery_challans (id, tenant_id, challan_number, invoice_id, status, doc, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ID, c.TenantID, c.ChallanNumber, nilIfEmpty(c.InvoiceID), c.Status, doc, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert challan: %w", err)
	}

	if c.InvoiceID != "" {
		_, err = tx.Exec(ctx, `
			UPDATE invoices SET challan_generated = true, challan_id = $3, updated_at = now()
			WHERE tenant_id = $1 AND id = $2`,
			c.TenantID, c.InvoiceID, c.ID)
		if err != nil {
			return fmt.Errorf("flag invoice challan: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit challan tx: %w", err)
	}
	return nil
}

func (r *Repository) GetChallan(ctx context.Context, tenantID, id string) (Challan, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx,
		`SELECT doc FROM delivery_challans WHERE tenant_id = $1 AND id = $2`,
		tenantID, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return Challan{}, ErrChallanNotFound
	}
	if err != nil {
		return Challan{}, fmt.Errorf("get challan: %w", err)
	}
	var c Challan
	if err := json.Unmarshal(doc, &c); err != nil {
		return Challan{}, fmt.Errorf("unmarshal challan: %w", err)
	}
	c.TenantID = tenantID
	return c, nil
}

// UpdateChallan persists the document guarded by the status it was read at.
func (r *Repository) UpdateChallan(ctx context.Context, c Challan, priorStatus ChallanStatus) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal challan: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE delivery_challans
		SET status = $3, doc = $4, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status = $5`,
		c.TenantID, c.ID, c.Status, doc, priorStatus)
	if err != nil {
		return fmt.Errorf("update challan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *Repository) ListChallans(ctx context.Context, tenantID string, status ChallanStatus) ([]Challan, error) {
	return listDocs[Challan](ctx, r.pool, "delivery_challans", tenantID, string(status))
}

// --- installations ---

func (r *Repository) InsertInstallation(ctx context.Context, inst Installation) error {
	doc, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("marshal installation: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO installations (id, tenant_id, installation_number, invoice_id, status, doc, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		inst.ID, inst.TenantID, inst.InstallationNumber, nilIfEmpty(inst.InvoiceID), inst.Status, doc,
		inst.CreatedAt, inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert installation: %w", err)
	}
	return nil
}

func (r *Repository) GetInstallation(ctx context.Context, tenantID, id string) (Installation, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx,
		`SELECT doc FROM installations WHERE tenant_id = $1 AND id = $2`,
		tenantID, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return Installation{}, ErrInstallationNotFound
	}
	if err != nil {
		return Installation{}, fmt.Errorf("get installation: %w", err)
	}
	var inst Installation
	if err := json.Unmarshal(doc, &inst); err != nil {
		return Installation{}, fmt.Errorf("unmarshal installation: %w", err)
	}
	inst.TenantID = tenantID
	return inst, nil
}

func (r *Repository) UpdateInstallation(ctx context.Context, inst Installation, priorStatus InstallationStatus) error {
	doc, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("marshal installation: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE installations
		SET status = $3, doc = $4, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status = $5`,
		inst.TenantID, inst.ID, inst.Status, doc, priorStatus)
	if err != nil {
		return fmt.Errorf("update installation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *Repository) ListInstallations(ctx context.Context, tenantID string, status InstallationStatus) ([]Installation, error) {
	return listDocs[Installation](ctx, r.pool, "installations", tenantID, string(status))
}

// --- job cards ---

func (r *Repository) InsertJobCard(ctx context.Context, jc JobCard) error {
	doc, err := json.Marshal(jc)
	if err != nil {
		return fmt.Errorf("marshal job card: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO job_cards (id, tenant_id, job_card_number, status, doc, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		jc.ID, jc.TenantID, jc.JobCardNumber, jc.Status, doc, jc.CreatedAt, jc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job card: %w", err)
	}
	return nil
}

func (r *Repository) GetJobCard(ctx context.Context, tenantID, id string) (JobCard, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx,
		`SELECT doc FROM job_cards WHERE tenant_id = $1 AND id = $2`,
		tenantID, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return JobCard{}, ErrJobCardNotFound
	}
	if err != nil {
		return JobCard{}, fmt.Errorf("get job card: %w", err)
	}
	var jc JobCard
	if err := json.Unmarshal(doc, &jc); err != nil {
		return JobCard{}, fmt.Errorf("unmarshal job card: %w", err)
	}
	jc.TenantID = tenantID
	return jc, nil
}

func (r *Repository) UpdateJobCard(ctx context.Context, jc JobCard, priorStatus JobCardStatus) error {
	doc, err := json.Marshal(jc)
	if err != nil {
		return fmt.Errorf("marshal job card: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE job_cards
		SET status = $3, doc = $4, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status = $5`,
		jc.TenantID, jc.ID, jc.Status, doc, priorStatus)
	if err != nil {
		return fmt.Errorf("update job card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *Repository) ListJobCards(ctx context.Context, tenantID string, status JobCardStatus) ([]JobCard, error) {
	return listDocs[JobCard](ctx, r.pool, "job_cards", tenantID, string(status))
}

// ChallanStats counts challans per status for the dashboard.
func (r *Repository) ChallanStats(ctx context.Context, tenantID string) (map[string]int, error) {
	return statusCounts(ctx, r.pool, "delivery_challans", tenantID)
}

func (r *Repository) InstallationStats(ctx context.Context, tenantID string) (map[string]int, error) {
	return statusCounts(ctx, r.pool, "installations", tenantID)
}

func (r *Repository) JobCardStats(ctx context.Context, tenantID string) (map[string]int, error) {
	return statusCounts(ctx, r.pool, "job_cards", tenantID)
}

func listDocs[T any](ctx context.Context, pool *pgxpool.Pool, table, tenantID, status string) ([]T, error) {
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE tenant_id = $1`, table)
	args := []any{tenantID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		var item T
		if err := json.Unmarshal(doc, &item); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", table, err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func statusCounts(ctx context.Context, pool *pgxpool.Pool, table, tenantID string) (map[string]int, error) {
	rows, err := pool.Query(ctx,
		fmt.Sprintf(`SELECT status, count(*) FROM %s WHERE tenant_id = $1 GROUP BY status`, table),
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s stats: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan %s stats: %w", table, err)
		}
		out[status] = count
	}
	return out, rows.Err()
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
