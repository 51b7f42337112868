package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/craftline-erp/craftline-erp/internal/shared"
)

// Repository persists payments, receipts and invoice settlement state.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the transactional surface of record-payment: the payment
// row, the invoice recompute, the receipt and the finance outbox row all
// commit or roll back together.
type TxRepository interface {
	GetInvoiceForUpdate(ctx context.Context, tenantID, invoiceID string) (Invoice, error)
	NextSequence(ctx context.Context, tenantID, docType string, year int) (int64, error)
	InsertPayment(ctx context.Context, p Payment) error
	UpdateInvoiceSettlement(ctx context.Context, tenantID, invoiceID string, paid, balance decimal.Decimal, status InvoiceStatus, entry HistoryEntry) error
	InsertReceipt(ctx context.Context, rcpt Receipt) error
	SetPaymentReceipt(ctx context.Context, tenantID, paymentID, receiptID, receiptNumber string) error
	EnqueueFinanceSync(ctx context.Context, eventType string, payload any) error
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	dbTx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin payments tx: %w", err)
	}
	defer func() { _ = dbTx.Rollback(ctx) }()

	if err := fn(ctx, &txRepository{tx: dbTx}); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit payments tx: %w", err)
	}
	return nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, tenantID, invoiceID string) (Invoice, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT id, tenant_id, invoice_number, customer_id, customer_name, coalesce(customer_phone, ''),
		       grand_total::text, paid_amount::text, balance_amount::text, payment_status,
		       warranty_registered, created_at, updated_at
		FROM invoices
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE`,
		tenantID, invoiceID)
	return scanInvoice(row)
}

func (r *txRepository) NextSequence(ctx context.Context, tenantID, docType string, year int) (int64, error) {
	return shared.NextIn(ctx, r.tx, tenantID, docType, year)
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO payment_collections (
			id, tenant_id, payment_number, invoice_id, invoice_number,
			customer_id, customer_name, amount, currency, method,
			reference, bank_name, cheque_number, cheque_date, upi_id,
			status, clearance_date, date, notes, collected_by,
			receipt_id, receipt_number, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
		p.ID, p.TenantID, p.PaymentNumber, p.InvoiceID, p.InvoiceNumber,
		p.CustomerID, p.CustomerName, p.Amount.String(), p.Currency, p.Method,
		p.Reference, p.BankName, p.ChequeNumber, p.ChequeDate, p.UPIID,
		p.Status, p.ClearanceDate, p.Date, p.Notes, p.CollectedBy,
		nilIfEmpty(p.ReceiptID), nilIfEmpty(p.ReceiptNumber), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *txRepository) UpdateInvoiceSettlement(ctx context.Context, tenantID, invoiceID string, paid, balance decimal.Decimal, status InvoiceStatus, entry HistoryEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}
	tag, err := r.tx.Exec(ctx, `
		UPDATE invoices
		SET paid_amount = $3,
		    balance_amount = $4,
		    payment_status = $5,
		    payment_history = coalesce(payment_history, '[]'::jsonb) || $6::jsonb,
		    updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, invoiceID, paid.String(), balance.String(), status, entryJSON)
	if err != nil {
		return fmt.Errorf("update invoice settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepository) InsertReceipt(ctx context.Context, rcpt Receipt) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO receipts (
			id, tenant_id, receipt_number, payment_id, invoice_id, invoice_number,
			customer_name, customer_phone, amount, amount_in_words, amount_formatted,
			payment_method, payment_reference, description, received_by, received_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		rcpt.ID, rcpt.TenantID, rcpt.ReceiptNumber, nilIfEmpty(rcpt.PaymentID), rcpt.InvoiceID, rcpt.InvoiceNumber,
		rcpt.CustomerName, rcpt.CustomerPhone, rcpt.Amount.String(), rcpt.AmountInWords, rcpt.AmountFormatted,
		rcpt.PaymentMethod, rcpt.PaymentReference, rcpt.Description, rcpt.ReceivedBy, rcpt.ReceivedAt, rcpt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

func (r *txRepository) SetPaymentReceipt(ctx context.Context, tenantID, paymentID, receiptID, receiptNumber string) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE payment_collections
		SET receipt_id = $3, receipt_number = $4, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, paymentID, receiptID, receiptNumber)
	if err != nil {
		return fmt.Errorf("set payment receipt: %w", err)
	}
	return nil
}

func (r *txRepository) EnqueueFinanceSync(ctx context.Context, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = r.tx.Exec(ctx, `
		INSERT INTO finance_outbox (id, event_type, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, 'pending', 0, now())`,
		uuid.NewString(), eventType, body)
	if err != nil {
		return fmt.Errorf("enqueue finance sync: %w", err)
	}
	return nil
}

func (r *Repository) GetInvoice(ctx context.Context, tenantID, invoiceID string) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, invoice_number, customer_id, customer_name, coalesce(customer_phone, ''),
		       grand_total::text, paid_amount::text, balance_amount::text, payment_status,
		       warranty_registered, created_at, updated_at
		FROM invoices
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, invoiceID)
	return scanInvoice(row)
}

func (r *Repository) GetPayment(ctx context.Context, tenantID, paymentID string) (Payment, error) {
	row := r.pool.QueryRow(ctx, paymentSelect+` WHERE tenant_id = $1 AND id = $2`, tenantID, paymentID)
	return scanPayment(row)
}

// UpdatePaymentStatus changes settlement state; clearing a payment stamps
// the clearance date.
func (r *Repository) UpdatePaymentStatus(ctx context.Context, tenantID, paymentID string, status PaymentStatus) (Payment, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_collections
		SET status = $3,
		    clearance_date = CASE WHEN $3 = 'completed' THEN now() ELSE clearance_date END,
		    updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, paymentID, status)
	if err != nil {
		return Payment{}, fmt.Errorf("update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Payment{}, ErrPaymentNotFound
	}
	return r.GetPayment(ctx, tenantID, paymentID)
}

const paymentSelect = `
	SELECT id, tenant_id, payment_number, invoice_id, invoice_number,
	       customer_id, customer_name, amount::text, currency, method,
	       reference, bank_name, cheque_number, cheque_date, upi_id,
	       status, clearance_date, date, notes, collected_by,
	       coalesce(receipt_id, ''), coalesce(receipt_number, ''), created_at, updated_at
	FROM payment_collections`

func (r *Repository) ListPayments(ctx context.Context, tenantID, invoiceID string) ([]Payment, error) {
	query := paymentSelect + ` WHERE tenant_id = $1`
	args := []any{tenantID}
	if invoiceID != "" {
		query += ` AND invoice_id = $2`
		args = append(args, invoiceID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) ListReceipts(ctx context.Context, tenantID string) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, receipt_number, coalesce(payment_id, ''), invoice_id, invoice_number,
		       customer_name, customer_phone, amount::text, amount_in_words, amount_formatted,
		       payment_method, payment_reference, description, received_by, received_at, created_at
		FROM receipts
		WHERE tenant_id = $1
		ORDER BY created_at DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	var out []Receipt
	for rows.Next() {
		var (
			rcpt   Receipt
			amount string
		)
		if err := rows.Scan(&rcpt.ID, &rcpt.TenantID, &rcpt.ReceiptNumber, &rcpt.PaymentID,
			&rcpt.InvoiceID, &rcpt.InvoiceNumber, &rcpt.CustomerName, &rcpt.CustomerPhone,
			&amount, &rcpt.AmountInWords, &rcpt.AmountFormatted, &rcpt.PaymentMethod,
			&rcpt.PaymentReference, &rcpt.Description, &rcpt.ReceivedBy, &rcpt.ReceivedAt,
			&rcpt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		rcpt.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse receipt amount: %w", err)
		}
		out = append(out, rcpt)
	}
	return out, rows.Err()
}

func (r *Repository) Stats(ctx context.Context, tenantID string) (Stats, error) {
	var (
		s                  Stats
		collected, pending string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
		       coalesce(sum(amount) FILTER (WHERE status = 'completed'), 0)::text,
		       count(*) FILTER (WHERE status = 'pending' AND method = 'cheque'),
		       coalesce(sum(amount) FILTER (WHERE status = 'pending'), 0)::text
		FROM payment_collections
		WHERE tenant_id = $1`,
		tenantID).Scan(&s.TotalPayments, &collected, &s.PendingCheques, &pending)
	if err != nil {
		return Stats{}, fmt.Errorf("payment stats: %w", err)
	}
	if s.TotalCollected, err = decimal.NewFromString(collected); err != nil {
		return Stats{}, fmt.Errorf("parse collected total: %w", err)
	}
	if s.PendingAmount, err = decimal.NewFromString(pending); err != nil {
		return Stats{}, fmt.Errorf("parse pending total: %w", err)
	}
	return s, nil
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv                  Invoice
		grand, paid, balance string
	)
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.InvoiceNumber, &inv.CustomerID,
		&inv.CustomerName, &inv.CustomerPhone, &grand, &paid, &balance,
		&inv.PaymentStatus, &inv.WarrantyRegistered, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("scan invoice: %w", err)
	}
	if inv.GrandTotal, err = decimal.NewFromString(grand); err != nil {
		return Invoice{}, fmt.Errorf("parse grand total: %w", err)
	}
	if inv.PaidAmount, err = decimal.NewFromString(paid); err != nil {
		return Invoice{}, fmt.Errorf("parse paid amount: %w", err)
	}
	if inv.BalanceAmount, err = decimal.NewFromString(balance); err != nil {
		return Invoice{}, fmt.Errorf("parse balance amount: %w", err)
	}
	return inv, nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var (
		p      Payment
		amount string
	)
	err := row.Scan(&p.ID, &p.TenantID, &p.PaymentNumber, &p.InvoiceID, &p.InvoiceNumber,
		&p.CustomerID, &p.CustomerName, &amount, &p.Currency, &p.Method,
		&p.Reference, &p.BankName, &p.ChequeNumber, &p.ChequeDate, &p.UPIID,
		&p.Status, &p.ClearanceDate, &p.Date, &p.Notes, &p.CollectedBy,
		&p.ReceiptID, &p.ReceiptNumber, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	if err != nil {
		return Payment{}, fmt.Errorf("scan payment: %w", err)
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return Payment{}, fmt.Errorf("parse payment amount: %w", err)
	}
	return p, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
