package payments

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/craftline-erp/craftline-erp/internal/platform/httpx"
)

// PaymentMethod enumerates accepted collection channels.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCheque       PaymentMethod = "cheque"
	MethodUPI          PaymentMethod = "upi"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCard         PaymentMethod = "card"
	MethodNEFT         PaymentMethod = "neft"
	MethodRTGS         PaymentMethod = "rtgs"
	MethodIMPS         PaymentMethod = "imps"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCheque, MethodUPI, MethodBankTransfer, MethodCard, MethodNEFT, MethodRTGS, MethodIMPS:
		return true
	}
	return false
}

// PaymentStatus tracks settlement. Cheques start pending until cleared.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentBounced   PaymentStatus = "bounced"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentBounced, PaymentCancelled:
		return true
	}
	return false
}

// InvoiceStatus is the derived payment state of an invoice.
type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoicePartial InvoiceStatus = "partial"
	InvoicePaid    InvoiceStatus = "paid"
)

// Payment is one collection against an invoice.
type Payment struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"-"`
	PaymentNumber string          `json:"paymentNumber"`
	InvoiceID     string          `json:"invoiceId"`
	InvoiceNumber string          `json:"invoiceNumber"`
	CustomerID    string          `json:"customerId"`
	CustomerName  string          `json:"customerName"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Method        PaymentMethod   `json:"method"`
	Reference     string          `json:"reference,omitempty"`
	BankName      string          `json:"bankName,omitempty"`
	ChequeNumber  string          `json:"chequeNumber,omitempty"`
	ChequeDate    *time.Time      `json:"chequeDate,omitempty"`
	UPIID         string          `json:"upiId,omitempty"`
	Status        PaymentStatus   `json:"status"`
	ClearanceDate *time.Time      `json:"clearanceDate,omitempty"`
	Date          time.Time       `json:"date"`
	Notes         string          `json:"notes,omitempty"`
	CollectedBy   string          `json:"collectedBy"`
	ReceiptID     string          `json:"receiptId,omitempty"`
	ReceiptNumber string          `json:"receiptNumber,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Receipt is the printable acknowledgement of a completed payment.
// Append-only.
type Receipt struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"-"`
	ReceiptNumber    string          `json:"receiptNumber"`
	PaymentID        string          `json:"paymentId"`
	InvoiceID        string          `json:"invoiceId"`
	InvoiceNumber    string          `json:"invoiceNumber"`
	CustomerName     string          `json:"customerName"`
	CustomerPhone    string          `json:"customerPhone,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	AmountInWords    string          `json:"amountInWords"`
	AmountFormatted  string          `json:"amountFormatted"`
	PaymentMethod    PaymentMethod   `json:"paymentMethod"`
	PaymentReference string          `json:"paymentReference,omitempty"`
	Description      string          `json:"description"`
	ReceivedBy       string          `json:"receivedBy"`
	ReceivedAt       time.Time       `json:"receivedAt"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// Invoice is the payable document payments settle against. This module owns
// its payment fields; line items live with invoicing upstream.
type Invoice struct {
	ID                 string          `json:"id"`
	TenantID           string          `json:"-"`
	InvoiceNumber      string          `json:"invoiceNumber"`
	CustomerID         string          `json:"customerId"`
	CustomerName       string          `json:"customerName"`
	CustomerPhone      string          `json:"customerPhone,omitempty"`
	GrandTotal         decimal.Decimal `json:"grandTotal"`
	PaidAmount         decimal.Decimal `json:"paidAmount"`
	BalanceAmount      decimal.Decimal `json:"balanceAmount"`
	PaymentStatus      InvoiceStatus   `json:"paymentStatus"`
	WarrantyRegistered bool            `json:"warrantyRegistered"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// HistoryEntry is one line of an invoice's embedded payment history.
type HistoryEntry struct {
	PaymentID  string          `json:"paymentId"`
	Amount     decimal.Decimal `json:"amount"`
	Method     PaymentMethod   `json:"method"`
	Date       time.Time       `json:"date"`
	RecordedBy string          `json:"recordedBy"`
}

// RecordInput describes a record-payment request.
type RecordInput struct {
	InvoiceID       string          `json:"invoiceId" validate:"required"`
	Amount          decimal.Decimal `json:"amount" validate:"required"`
	Method          PaymentMethod   `json:"method" validate:"required"`
	Reference       string          `json:"reference"`
	BankName        string          `json:"bankName"`
	ChequeNumber    string          `json:"chequeNumber"`
	ChequeDate      *time.Time      `json:"chequeDate"`
	UPIID           string          `json:"upiId"`
	Date            *time.Time      `json:"date"`
	Notes           string          `json:"notes"`
	GenerateReceipt *bool           `json:"generateReceipt"`
	IdempotencyKey  string          `json:"idempotencyKey"`
	ActorID         string          `json:"-"`
	ActorName       string          `json:"-"`
}

// RecordResult is the record-payment response payload.
type RecordResult struct {
	Payment       Payment         `json:"payment"`
	InvoiceStatus InvoiceStatus   `json:"invoiceStatus"`
	BalanceAmount decimal.Decimal `json:"balanceAmount"`
}

// ReceiptInput is a manual generate-receipt request. Fields fall back to the
// referenced payment where present.
type ReceiptInput struct {
	PaymentID        string          `json:"paymentId"`
	InvoiceID        string          `json:"invoiceId"`
	InvoiceNumber    string          `json:"invoiceNumber"`
	CustomerName     string          `json:"customerName"`
	CustomerPhone    string          `json:"customerPhone"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentMethod    PaymentMethod   `json:"paymentMethod"`
	PaymentReference string          `json:"paymentReference"`
	Description      string          `json:"description"`
	ActorID          string          `json:"-"`
	ActorName        string          `json:"-"`
}

// Stats is the dashboard rollup for payments.
type Stats struct {
	TotalPayments  int             `json:"totalPayments"`
	TotalCollected decimal.Decimal `json:"totalCollected"`
	PendingCheques int             `json:"pendingCheques"`
	PendingAmount  decimal.Decimal `json:"pendingAmount"`
}

var (
	ErrInvoiceNotFound = fmt.Errorf("invoice %w", httpx.ErrNotFound)
	ErrPaymentNotFound = fmt.Errorf("payment %w", httpx.ErrNotFound)
	ErrInvalidAmount   = fmt.Errorf("%w: amount must be positive", httpx.ErrValidation)
	ErrInvalidMethod   = fmt.Errorf("%w: unknown payment method", httpx.ErrValidation)
	ErrInvalidStatus   = fmt.Errorf("%w: unknown payment status", httpx.ErrValidation)
)
