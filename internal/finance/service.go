package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RepositoryPort abstracts the outbox and finance ledger persistence.
type RepositoryPort interface {
	FetchPending(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkDone(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID, lastError string, maxAttempts int) (OutboxStatus, error)
	RecordPayment(ctx context.Context, e Entry) error
	ListEntries(ctx context.Context, tenantID string, limit int) ([]Entry, error)
}

// MetricsPort counts drained outbox events.
type MetricsPort interface {
	ObserveOutboxEvent(outcome string)
}

// Service applies finance outbox events to the finance ledger.
type Service struct {
	repo        RepositoryPort
	metrics     MetricsPort
	logger      *slog.Logger
	concurrency int
}

func NewService(repo RepositoryPort, metrics MetricsPort, logger *slog.Logger, concurrency int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Service{repo: repo, metrics: metrics, logger: logger, concurrency: concurrency}
}

// DrainReport summarizes one drain pass over the outbox.
type DrainReport struct {
	Fetched int `json:"fetched"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Dead    int `json:"dead"`
}

// Drain claims a batch of pending events and applies them. Event failures
// are retried on later passes until the attempt budget runs out; they never
// abort the batch.
func (s *Service) Drain(ctx context.Context, batchSize int) (DrainReport, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	events, err := s.repo.FetchPending(ctx, batchSize)
	if err != nil {
		return DrainReport{}, err
	}

	var report DrainReport
	report.Fetched = len(events)
	results := make([]OutboxStatus, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, ev := range events {
		g.Go(func() error {
			results[i] = s.apply(gctx, ev)
			return nil
		})
	}
	_ = g.Wait()

	for _, status := range results {
		switch status {
		case OutboxDone:
			report.Synced++
		case OutboxDead:
			report.Dead++
		default:
			report.Failed++
		}
	}
	return report, nil
}

func (s *Service) apply(ctx context.Context, ev OutboxEvent) OutboxStatus {
	if err := s.applyEvent(ctx, ev); err != nil {
		status, markErr := s.repo.MarkFailed(ctx, ev.ID, err.Error(), MaxAttempts)
		if markErr != nil {
			s.logger.Error("outbox mark failed", "event", ev.ID, "error", markErr)
			status = OutboxPending
		}
		s.logger.Warn("finance sync failed",
			"event", ev.ID, "type", ev.EventType, "attempts", ev.Attempts+1, "status", status, "error", err)
		s.observe(string(status))
		return status
	}
	if err := s.repo.MarkDone(ctx, ev.ID); err != nil {
		s.logger.Error("outbox mark done", "event", ev.ID, "error", err)
	}
	s.observe("done")
	return OutboxDone
}

func (s *Service) applyEvent(ctx context.Context, ev OutboxEvent) error {
	switch ev.EventType {
	case "payment.recorded":
		var pe PaymentEvent
		if err := json.Unmarshal(ev.Payload, &pe); err != nil {
			return fmt.Errorf("decode payment event: %w", err)
		}
		return s.repo.RecordPayment(ctx, Entry{
			ID:            uuid.NewString(),
			TenantID:      pe.TenantID,
			PaymentID:     pe.PaymentID,
			PaymentNumber: pe.PaymentNumber,
			InvoiceID:     pe.InvoiceID,
			InvoiceNumber: pe.InvoiceNumber,
			CustomerID:    pe.CustomerID,
			CustomerName:  pe.CustomerName,
			Amount:        pe.Amount,
			Method:        pe.Method,
			Reference:     pe.Reference,
			Date:          pe.Date,
			CreatedAt:     time.Now().UTC(),
		})
	default:
		return fmt.Errorf("unknown event type %q", ev.EventType)
	}
}

// ListEntries returns recent finance ledger entries for a tenant.
func (s *Service) ListEntries(ctx context.Context, tenantID string, limit int) ([]Entry, error) {
	return s.repo.ListEntries(ctx, tenantID, limit)
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveOutboxEvent(outcome)
	}
}
