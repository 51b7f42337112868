package payments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/craftline-erp/craftline-erp/internal/platform/httpx"
)

type outboxRow struct {
	eventType string
	payload   any
}

type memoryRepo struct {
	invoices map[string]Invoice
	payments map[string]Payment
	receipts []Receipt
	outbox   []outboxRow
	seqs     map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoices: make(map[string]Invoice),
		payments: make(map[string]Payment),
		seqs:     make(map[string]int64),
	}
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (tx *memoryTx) GetInvoiceForUpdate(ctx context.Context, tenantID, invoiceID string) (Invoice, error) {
	if inv, ok := tx.repo.invoices[invoiceID]; ok && inv.TenantID == tenantID {
		return inv, nil
	}
	return Invoice{}, ErrInvoiceNotFound
}

func (tx *memoryTx) NextSequence(ctx context.Context, tenantID, docType string, year int) (int64, error) {
	key := fmt.Sprintf("%s:%s:%d", tenantID, docType, year)
	tx.repo.seqs[key]++
	return tx.repo.seqs[key], nil
}

func (tx *memoryTx) InsertPayment(ctx context.Context, p Payment) error {
	tx.repo.payments[p.ID] = p
	return nil
}

func (tx *memoryTx) UpdateInvoiceSettlement(ctx context.Context, tenantID, invoiceID string, paid, balance decimal.Decimal, status InvoiceStatus, entry HistoryEntry) error {
	inv, ok := tx.repo.invoices[invoiceID]
	if !ok || inv.TenantID != tenantID {
		return ErrInvoiceNotFound
	}
	inv.PaidAmount = paid
	inv.BalanceAmount = balance
	inv.PaymentStatus = status
	tx.repo.invoices[invoiceID] = inv
	return nil
}

func (tx *memoryTx) InsertReceipt(ctx context.Context, rcpt Receipt) error {
	tx.repo.receipts = append(tx.repo.receipts, rcpt)
	return nil
}

func (tx *memoryTx) SetPaymentReceipt(ctx context.Context, tenantID, paymentID, receiptID, receiptNumber string) error {
	p, ok := tx.repo.payments[paymentID]
	if !ok {
		return ErrPaymentNotFound
	}
	p.ReceiptID = receiptID
	p.ReceiptNumber = receiptNumber
	tx.repo.payments[paymentID] = p
	return nil
}

func (tx *memoryTx) EnqueueFinanceSync(ctx context.Context, eventType string, payload any) error {
	tx.repo.outbox = append(tx.repo.outbox, outboxRow{eventType: eventType, payload: payload})
	return nil
}

func (r *memoryRepo) GetInvoice(ctx context.Context, tenantID, invoiceID string) (Invoice, error) {
	if inv, ok := r.invoices[invoiceID]; ok && inv.TenantID == tenantID {
		return inv, nil
	}
	return Invoice{}, ErrInvoiceNotFound
}

func (r *memoryRepo) GetPayment(ctx context.Context, tenantID, paymentID string) (Payment, error) {
	if p, ok := r.payments[paymentID]; ok && p.TenantID == tenantID {
		return p, nil
	}
	return Payment{}, ErrPaymentNotFound
}

func (r *memoryRepo) UpdatePaymentStatus(ctx context.Context, tenantID, paymentID string, status PaymentStatus) (Payment, error) {
	p, ok := r.payments[paymentID]
	if !ok || p.TenantID != tenantID {
		return Payment{}, ErrPaymentNotFound
	}
	p.Status = status
	if status == PaymentCompleted {
		now := p.Date
		p.ClearanceDate = &now
	}
	r.payments[paymentID] = p
	return p, nil
}

func (r *memoryRepo) ListPayments(ctx context.Context, tenantID, invoiceID string) ([]Payment, error) {
	var out []Payment
	for _, p := range r.payments {
		if p.TenantID != tenantID {
			continue
		}
		if invoiceID != "" && p.InvoiceID != invoiceID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *memoryRepo) ListReceipts(ctx context.Context, tenantID string) ([]Receipt, error) {
	return r.receipts, nil
}

func (r *memoryRepo) Stats(ctx context.Context, tenantID string) (Stats, error) {
	return Stats{}, nil
}

func seedInvoice(repo *memoryRepo, grandTotal int64) Invoice {
	inv := Invoice{
		ID:            "inv-1",
		TenantID:      "t1",
		InvoiceNumber: "INV-2026-00001",
		CustomerID:    "cust-1",
		CustomerName:  "Asha Traders",
		GrandTotal:    decimal.NewFromInt(grandTotal),
		PaidAmount:    decimal.Zero,
		BalanceAmount: decimal.NewFromInt(grandTotal),
		PaymentStatus: InvoicePending,
	}
	repo.invoices[inv.ID] = inv
	return inv
}

func TestRecordCashPaymentSettlesImmediately(t *testing.T) {
	repo := newMemoryRepo()
	seedInvoice(repo, 10000)
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	result, err := svc.Record(ctx, "t1", RecordInput{
		InvoiceID: "inv-1", Amount: decimal.NewFromInt(4000), Method: MethodCash, ActorID: "u1", ActorName: "Ravi",
	})
	require.NoError(t, err)
	require.Equal(t, PaymentCompleted, result.Payment.Status)
	require.NotNil(t, result.Payment.ClearanceDate)
	require.Equal(t, fmt.Sprintf("PAY-%d-000001", time.Now().Year()), result.Payment.PaymentNumber)
	require.Equal(t, InvoicePartial, result.InvoiceStatus)
	require.True(t, decimal.NewFromInt(6000).Equal(result.BalanceAmount))

	// Completed payments auto-generate a receipt and link it back.
	require.Len(t, repo.receipts, 1)
	rcpt := repo.receipts[0]
	require.Equal(t, fmt.Sprintf("RCP-%d-00001", time.Now().Year()), rcpt.ReceiptNumber)
	require.Equal(t, "Four Thousand Rupees Only", rcpt.AmountInWords)
	require.Equal(t, rcpt.ID, result.Payment.ReceiptID)
	require.Equal(t, rcpt.ReceiptNumber, result.Payment.ReceiptNumber)

	// Finance sync is enqueued in the same unit of work.
	require.Len(t, repo.outbox, 1)
	require.Equal(t, "payment.recorded", repo.outbox[0].eventType)
}

func TestRecordChequeStaysPendingWithoutReceipt(t *testing.T) {
	repo := newMemoryRepo()
	seedInvoice(repo, 10000)
	svc := NewService(repo, nil, nil, nil, nil)

	result, err := svc.Record(context.Background(), "t1", RecordInput{
		InvoiceID: "inv-1", Amount: decimal.NewFromInt(10000), Method: MethodCheque,
		ChequeNumber: "734512", BankName: "SBI", ActorID: "u1",
	})
	require.NoError(t, err)
	require.Equal(t, PaymentPending, result.Payment.Status)
	require.Nil(t, result.Payment.ClearanceDate)
	require.Empty(t, result.Payment.ReceiptID)
	require.Empty(t, repo.receipts)

	// The invoice still reflects the recorded amount.
	require.Equal(t, InvoicePaid, result.InvoiceStatus)
	require.True(t, result.BalanceAmount.IsZero())
}

func TestRecordSuppressedReceipt(t *testing.T) {
	repo := newMemoryRepo()
	seedInvoice(repo, 10000)
	svc := NewService(repo, nil, nil, nil, nil)

	suppress := false
	result, err := svc.Record(context.Background(), "t1", RecordInput{
		InvoiceID: "inv-1", Amount: decimal.NewFromInt(1000), Method: MethodUPI,
		GenerateReceipt: &suppress, ActorID: "u1",
	})
	require.NoError(t, err)
	require.Equal(t, PaymentCompleted, result.Payment.Status)
	require.Empty(t, repo.receipts)
	require.Empty(t, result.Payment.ReceiptID)
}

func TestRecordOverpaymentClampsBalance(t *testing.T) {
	repo := newMemoryRepo()
	seedInvoice(repo, 5000)
	svc := NewService(repo, nil, nil, nil, nil)

	result, err := svc.Record(context.Background(), "t1", RecordInput{
		InvoiceID: "inv-1", Amount: decimal.NewFromInt(6000), Method: MethodCash, ActorID: "u1",
	})
	require.NoError(t, err)
	require.Equal(t, InvoicePaid, result.InvoiceStatus)
	require.True(t, result.BalanceAmount.IsZero())
	require.True(t, decimal.NewFromInt(6000).Equal(repo.invoices["inv-1"].PaidAmount))
}

func TestRecordValidation(t *testing.T) {
	repo := newMemoryRepo()
	seedInvoice(repo, 5000)
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Record(ctx, "t1", RecordInput{InvoiceID: "inv-1", Amount: decimal.Zero, Method: MethodCash})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Record(ctx, "t1", RecordInput{InvoiceID: "inv-1", Amount: decimal.NewFromInt(10), Method: "barter"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Record(ctx, "t1", RecordInput{InvoiceID: "missing", Amount: decimal.NewFromInt(10), Method: MethodCash})
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestSequentialNumbersAcrossPayments(t *testing.T) {
	repo := newMemoryRepo()
	seedInvoice(repo, 100000)
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	first, err := svc.Record(ctx, "t1", RecordInput{InvoiceID: "inv-1", Amount: decimal.NewFromInt(100), Method: MethodCash})
	require.NoError(t, err)
	second, err := svc.Record(ctx, "t1", RecordInput{InvoiceID: "inv-1", Amount: decimal.NewFromInt(100), Method: MethodCash})
	require.NoError(t, err)

	year := time.Now().Year()
	require.Equal(t, fmt.Sprintf("PAY-%d-000001", year), first.Payment.PaymentNumber)
	require.Equal(t, fmt.Sprintf("PAY-%d-000002", year), second.Payment.PaymentNumber)
	require.Equal(t, fmt.Sprintf("RCP-%d-00001", year), first.Payment.ReceiptNumber)
	require.Equal(t, fmt.Sprintf("RCP-%d-00002", year), second.Payment.ReceiptNumber)
}

func TestClearChequeStampsClearance(t *testing.T) {
	repo := newMemoryRepo()
	seedInvoice(repo, 10000)
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	result, err := svc.Record(ctx, "t1", RecordInput{
		InvoiceID: "inv-1", Amount: decimal.NewFromInt(10000), Method: MethodCheque, ActorID: "u1",
	})
	require.NoError(t, err)

	cleared, err := svc.UpdateStatus(ctx, "t1", result.Payment.ID, PaymentCompleted, "u1")
	require.NoError(t, err)
	require.Equal(t, PaymentCompleted, cleared.Status)
	require.NotNil(t, cleared.ClearanceDate)

	_, err = svc.UpdateStatus(ctx, "t1", result.Payment.ID, "vaporized", "u1")
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestManualReceiptFallsBackToPayment(t *testing.T) {
	repo := newMemoryRepo()
	seedInvoice(repo, 10000)
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	recorded, err := svc.Record(ctx, "t1", RecordInput{
		InvoiceID: "inv-1", Amount: decimal.NewFromInt(2500), Method: MethodCheque,
		Reference: "CHQ-99", ActorID: "u1",
	})
	require.NoError(t, err)

	rcpt, err := svc.GenerateReceipt(ctx, "t1", ReceiptInput{
		PaymentID: recorded.Payment.ID,
		InvoiceID: "inv-1",
		Amount:    decimal.NewFromInt(2500),
		ActorName: "Ravi",
	})
	require.NoError(t, err)
	require.Equal(t, MethodCheque, rcpt.PaymentMethod)
	require.Equal(t, "CHQ-99", rcpt.PaymentReference)
	require.Equal(t, "Two Thousand Five Hundred Rupees Only", rcpt.AmountInWords)

	// The receipt is linked back onto the payment.
	p, err := svc.Get(ctx, "t1", recorded.Payment.ID)
	require.NoError(t, err)
	require.Equal(t, rcpt.ID, p.ReceiptID)
}
