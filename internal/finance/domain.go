package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// OutboxStatus tracks a finance sync event through the outbox.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxDone       OutboxStatus = "done"
	OutboxDead       OutboxStatus = "dead"
)

// MaxAttempts is the number of delivery tries before an event is parked dead.
const MaxAttempts = 5

// StaleClaimAfter is how long a processing claim stands before the drain
// treats it as abandoned and reclaims the event.
const StaleClaimAfter = 5 * time.Minute

// OutboxEvent is one row of finance_outbox, written transactionally by the
// payments module and drained here.
type OutboxEvent struct {
	ID          string       `json:"id"`
	EventType   string       `json:"eventType"`
	Payload     []byte       `json:"payload"`
	Status      OutboxStatus `json:"status"`
	Attempts    int          `json:"attempts"`
	LastError   string       `json:"lastError,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	ProcessedAt *time.Time   `json:"processedAt,omitempty"`
}

// PaymentEvent mirrors the payload the payments module enqueues on
// payment.recorded.
type PaymentEvent struct {
	TenantID      string          `json:"tenantId"`
	PaymentID     string          `json:"paymentId"`
	PaymentNumber string          `json:"paymentNumber"`
	InvoiceID     string          `json:"invoiceId"`
	InvoiceNumber string          `json:"invoiceNumber"`
	CustomerID    string          `json:"customerId"`
	CustomerName  string          `json:"customerName"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	Reference     string          `json:"reference"`
	Date          time.Time       `json:"date"`
}

// Entry is a row in the finance ledger built from payment events.
type Entry struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"-"`
	PaymentID     string          `json:"paymentId"`
	PaymentNumber string          `json:"paymentNumber"`
	InvoiceID     string          `json:"invoiceId,omitempty"`
	InvoiceNumber string          `json:"invoiceNumber,omitempty"`
	CustomerID    string          `json:"customerId,omitempty"`
	CustomerName  string          `json:"customerName"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	Reference     string          `json:"reference,omitempty"`
	Date          time.Time       `json:"date"`
	CreatedAt     time.Time       `json:"createdAt"`
}
