package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/craftline-erp/craftline-erp/internal/shared"
)

// RepositoryPort abstracts payment persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetInvoice(ctx context.Context, tenantID, invoiceID string) (Invoice, error)
	GetPayment(ctx context.Context, tenantID, paymentID string) (Payment, error)
	UpdatePaymentStatus(ctx context.Context, tenantID, paymentID string, status PaymentStatus) (Payment, error)
	ListPayments(ctx context.Context, tenantID, invoiceID string) ([]Payment, error)
	ListReceipts(ctx context.Context, tenantID string) ([]Receipt, error)
	Stats(ctx context.Context, tenantID string) (Stats, error)
}

// AuditPort records business-level audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards replayed mutation requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// MetricsPort counts recorded payments.
type MetricsPort interface {
	ObservePaymentRecorded()
}

// Service implements payment collection against invoices.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     MetricsPort
	logger      *slog.Logger
}

func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, idempotency: idem, metrics: metrics, logger: logger}
}

// Record collects a payment against an invoice. The payment row, the invoice
// recompute, the auto receipt and the finance outbox row commit in one
// transaction. Cheques settle later: they start pending with no clearance
// date and never auto-generate a receipt.
func (s *Service) Record(ctx context.Context, tenantID string, in RecordInput) (RecordResult, error) {
	if !in.Amount.IsPositive() {
		return RecordResult{}, ErrInvalidAmount
	}
	if !in.Method.Valid() {
		return RecordResult{}, ErrInvalidMethod
	}

	if in.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, "payments"); err != nil {
			return RecordResult{}, err
		}
	}

	now := time.Now().UTC()
	var result RecordResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.GetInvoiceForUpdate(ctx, tenantID, in.InvoiceID)
		if err != nil {
			return err
		}

		seq, err := tx.NextSequence(ctx, tenantID, "payment", now.Year())
		if err != nil {
			return err
		}

		payment := Payment{
			ID:            uuid.NewString(),
			TenantID:      tenantID,
			PaymentNumber: shared.DocNumber("PAY", now.Year(), seq, 6),
			InvoiceID:     invoice.ID,
			InvoiceNumber: invoice.InvoiceNumber,
			CustomerID:    invoice.CustomerID,
			CustomerName:  invoice.CustomerName,
			Amount:        in.Amount,
			Currency:      "INR",
			Method:        in.Method,
			Reference:     in.Reference,
			BankName:      in.BankName,
			ChequeNumber:  in.ChequeNumber,
			ChequeDate:    in.ChequeDate,
			UPIID:         in.UPIID,
			Status:        PaymentCompleted,
			ClearanceDate: &now,
			Date:          now,
			Notes:         in.Notes,
			CollectedBy:   in.ActorID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if in.Method == MethodCheque {
			payment.Status = PaymentPending
			payment.ClearanceDate = nil
		}
		if in.Date != nil {
			payment.Date = *in.Date
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}

		newPaid := invoice.PaidAmount.Add(in.Amount)
		newBalance := invoice.GrandTotal.Sub(newPaid)
		status := InvoicePending
		switch {
		case !newBalance.IsPositive():
			status = InvoicePaid
		case newPaid.IsPositive():
			status = InvoicePartial
		}
		if newBalance.IsNegative() {
			newBalance = decimal.Zero
		}
		err = tx.UpdateInvoiceSettlement(ctx, tenantID, invoice.ID, newPaid, newBalance, status, HistoryEntry{
			PaymentID:  payment.ID,
			Amount:     payment.Amount,
			Method:     payment.Method,
			Date:       payment.Date,
			RecordedBy: in.ActorID,
		})
		if err != nil {
			return err
		}

		suppressed := in.GenerateReceipt != nil && !*in.GenerateReceipt
		if !suppressed && payment.Status == PaymentCompleted {
			rcpt, err := s.buildReceipt(ctx, tx, tenantID, payment, invoice, in.ActorName, now)
			if err != nil {
				return err
			}
			payment.ReceiptID = rcpt.ID
			payment.ReceiptNumber = rcpt.ReceiptNumber
		}

		if err := tx.EnqueueFinanceSync(ctx, "payment.recorded", financeSyncPayload(tenantID, payment, invoice)); err != nil {
			return err
		}

		result = RecordResult{Payment: payment, InvoiceStatus: status, BalanceAmount: newBalance}
		return nil
	})
	if err != nil {
		if in.IdempotencyKey != "" && s.idempotency != nil {
			_ = s.idempotency.Delete(ctx, in.IdempotencyKey)
		}
		return RecordResult{}, err
	}

	if s.metrics != nil {
		s.metrics.ObservePaymentRecorded()
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "payments.record", result.Payment.ID, map[string]any{
		"invoiceId": in.InvoiceID,
		"amount":    in.Amount.String(),
		"method":    in.Method,
		"status":    result.Payment.Status,
	})
	return result, nil
}

func (s *Service) buildReceipt(ctx context.Context, tx TxRepository, tenantID string, payment Payment, invoice Invoice, actorName string, now time.Time) (Receipt, error) {
	seq, err := tx.NextSequence(ctx, tenantID, "receipt", now.Year())
	if err != nil {
		return Receipt{}, err
	}
	rcpt := Receipt{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		ReceiptNumber:    shared.DocNumber("RCP", now.Year(), seq, 5),
		PaymentID:        payment.ID,
		InvoiceID:        invoice.ID,
		InvoiceNumber:    invoice.InvoiceNumber,
		CustomerName:     invoice.CustomerName,
		CustomerPhone:    invoice.CustomerPhone,
		Amount:           payment.Amount,
		AmountInWords:    AmountInWords(payment.Amount),
		AmountFormatted:  FormatINR(payment.Amount),
		PaymentMethod:    payment.Method,
		PaymentReference: payment.Reference,
		Description:      "Payment received against invoice",
		ReceivedBy:       actorName,
		ReceivedAt:       now,
		CreatedAt:        now,
	}
	if err := tx.InsertReceipt(ctx, rcpt); err != nil {
		return Receipt{}, err
	}
	if err := tx.SetPaymentReceipt(ctx, tenantID, payment.ID, rcpt.ID, rcpt.ReceiptNumber); err != nil {
		return Receipt{}, err
	}
	return rcpt, nil
}

// GenerateReceipt creates a manual receipt. Missing fields fall back to the
// referenced payment when one is given.
func (s *Service) GenerateReceipt(ctx context.Context, tenantID string, in ReceiptInput) (Receipt, error) {
	var payment *Payment
	if in.PaymentID != "" {
		p, err := s.repo.GetPayment(ctx, tenantID, in.PaymentID)
		if err != nil {
			return Receipt{}, err
		}
		payment = &p
	}
	if !in.Amount.IsPositive() {
		return Receipt{}, ErrInvalidAmount
	}

	now := time.Now().UTC()
	method := in.PaymentMethod
	reference := in.PaymentReference
	if payment != nil {
		if method == "" {
			method = payment.Method
		}
		if reference == "" {
			reference = payment.Reference
		}
	}
	description := in.Description
	if description == "" {
		description = "Payment received against invoice"
	}

	var rcpt Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, tenantID, "receipt", now.Year())
		if err != nil {
			return err
		}
		rcpt = Receipt{
			ID:               uuid.NewString(),
			TenantID:         tenantID,
			ReceiptNumber:    shared.DocNumber("RCP", now.Year(), seq, 5),
			PaymentID:        in.PaymentID,
			InvoiceID:        in.InvoiceID,
			InvoiceNumber:    in.InvoiceNumber,
			CustomerName:     in.CustomerName,
			CustomerPhone:    in.CustomerPhone,
			Amount:           in.Amount,
			AmountInWords:    AmountInWords(in.Amount),
			AmountFormatted:  FormatINR(in.Amount),
			PaymentMethod:    method,
			PaymentReference: reference,
			Description:      description,
			ReceivedBy:       in.ActorName,
			ReceivedAt:       now,
			CreatedAt:        now,
		}
		if err := tx.InsertReceipt(ctx, rcpt); err != nil {
			return err
		}
		if in.PaymentID != "" {
			return tx.SetPaymentReceipt(ctx, tenantID, in.PaymentID, rcpt.ID, rcpt.ReceiptNumber)
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "payments.generate_receipt", rcpt.ID, map[string]any{
		"receiptNumber": rcpt.ReceiptNumber,
		"paymentId":     in.PaymentID,
	})
	return rcpt, nil
}

// UpdateStatus moves a payment between settlement states. Marking a cheque
// completed stamps its clearance date.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, paymentID string, status PaymentStatus, actorID string) (Payment, error) {
	if !status.Valid() {
		return Payment{}, ErrInvalidStatus
	}
	p, err := s.repo.UpdatePaymentStatus(ctx, tenantID, paymentID, status)
	if err != nil {
		return Payment{}, err
	}
	s.recordAudit(ctx, tenantID, actorID, "payments.update_status", paymentID, map[string]any{"status": status})
	return p, nil
}

func (s *Service) Get(ctx context.Context, tenantID, paymentID string) (Payment, error) {
	return s.repo.GetPayment(ctx, tenantID, paymentID)
}

func (s *Service) List(ctx context.Context, tenantID, invoiceID string) ([]Payment, error) {
	return s.repo.ListPayments(ctx, tenantID, invoiceID)
}

func (s *Service) ListReceipts(ctx context.Context, tenantID string) ([]Receipt, error) {
	return s.repo.ListReceipts(ctx, tenantID)
}

func (s *Service) Stats(ctx context.Context, tenantID string) (Stats, error) {
	return s.repo.Stats(ctx, tenantID)
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "payment_collections",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", "action", action, "error", err)
	}
}

func financeSyncPayload(tenantID string, payment Payment, invoice Invoice) map[string]any {
	return map[string]any{
		"tenantId":      tenantID,
		"paymentId":     payment.ID,
		"paymentNumber": payment.PaymentNumber,
		"invoiceId":     invoice.ID,
		"invoiceNumber": invoice.InvoiceNumber,
		"customerId":    invoice.CustomerID,
		"customerName":  invoice.CustomerName,
		"amount":        payment.Amount.String(),
		"method":        payment.Method,
		"reference":     payment.Reference,
		"date":          payment.Date,
	}
}
