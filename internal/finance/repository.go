package finance

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository drains finance_outbox and writes the finance ledger.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchPending claims up to limit pending events by flipping them to
// processing. SKIP LOCKED keeps concurrent drain workers off each other's
// batches; events that fail are flipped back to pending by MarkFailed.
// Claims older than StaleClaimAfter are picked up again, so a worker that
// dies between claim and mark cannot strand an event in processing.
func (r *Repository) FetchPending(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE finance_outbox
		SET status = 'processing', claimed_at = now()
		WHERE id IN (
			SELECT id FROM finance_outbox
			WHERE status = 'pending'
			   OR (status = 'processing' AND claimed_at < now() - make_interval(secs => $2))
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_type, payload, status, attempts, coalesce(last_error, ''), created_at`,
		limit, StaleClaimAfter.Seconds())
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Payload, &ev.Status, &ev.Attempts, &ev.LastError, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// MarkDone settles an event after a successful sync.
func (r *Repository) MarkDone(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE finance_outbox
		SET status = 'done', processed_at = now()
		WHERE id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("mark outbox done: %w", err)
	}
	return nil
}

// MarkFailed bumps the attempt counter and parks the event dead once the
// retry budget is exhausted. Returns the status the event landed in.
func (r *Repository) MarkFailed(ctx context.Context, eventID, lastError string, maxAttempts int) (OutboxStatus, error) {
	var status OutboxStatus
	err := r.pool.QueryRow(ctx, `
		UPDATE finance_outbox
		SET attempts = attempts + 1,
		    last_error = $2,
		    status = CASE WHEN attempts + 1 >= $3 THEN 'dead' ELSE 'pending' END
		WHERE id = $1
		RETURNING status`, eventID, lastError, maxAttempts).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("mark outbox failed: %w", err)
	}
	return status, nil
}

// RecordPayment writes the ledger entry and refreshes the invoice mirror in
// one transaction. The mirror update is a no-op when the invoice has never
// been mirrored.
func (r *Repository) RecordPayment(ctx context.Context, e Entry) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin finance tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO finance_payments (id, tenant_id, payment_id, payment_number, invoice_id, invoice_number,
			customer_id, customer_name, amount, method, reference, payment_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (payment_id) DO NOTHING`,
		e.ID, e.TenantID, e.PaymentID, e.PaymentNumber, nilIfEmpty(e.InvoiceID), nilIfEmpty(e.InvoiceNumber),
		nilIfEmpty(e.CustomerID), e.CustomerName, e.Amount.String(), e.Method, nilIfEmpty(e.Reference),
		e.Date, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert finance payment: %w", err)
	}

	if e.InvoiceID != "" {
		_, err = tx.Exec(ctx, `
			UPDATE finance_invoices
			SET paid_amount = paid_amount + $3, last_payment_date = $4, updated_at = now()
			WHERE tenant_id = $1 AND invoice_id = $2`,
			e.TenantID, e.InvoiceID, e.Amount.String(), e.Date)
		if err != nil {
			return fmt.Errorf("update finance invoice mirror: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit finance tx: %w", err)
	}
	return nil
}

// ListEntries returns recent finance ledger entries for a tenant.
func (r *Repository) ListEntries(ctx context.Context, tenantID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, payment_id, payment_number, coalesce(invoice_id, ''), coalesce(invoice_number, ''),
			coalesce(customer_id, ''), customer_name, amount::text, method, coalesce(reference, ''),
			payment_date, created_at
		FROM finance_payments
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list finance entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e := Entry{TenantID: tenantID}
		var amount string
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.PaymentNumber, &e.InvoiceID, &e.InvoiceNumber,
			&e.CustomerID, &e.CustomerName, &amount, &e.Method, &e.Reference, &e.Date, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan finance entry: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse finance amount: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
