package holds

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/craftline-erp/craftline-erp/internal/shared"
)

// RepositoryPort abstracts hold persistence.
type RepositoryPort interface {
	InsertBatch(ctx context.Context, hs []Hold) error
	List(ctx context.Context, tenantID, quoteID string) ([]Hold, error)
	DeleteByQuote(ctx context.Context, tenantID, quoteID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuditPort records business-level audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages quote-scoped inventory holds.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Create places all holds of a quote in one batch.
func (s *Service) Create(ctx context.Context, tenantID string, in CreateInput) ([]Hold, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyBatch
	}
	now := time.Now().UTC()
	hs := make([]Hold, 0, len(in.Items))
	for _, item := range in.Items {
		hs = append(hs, Hold{
			ID:          uuid.NewString(),
			TenantID:    tenantID,
			QuoteID:     in.QuoteID,
			MaterialID:  item.MaterialID,
			WarehouseID: item.WarehouseID,
			Quantity:    item.Quantity,
			CreatedBy:   in.ActorID,
			CreatedAt:   now,
			ExpiresAt:   in.ExpiresAt,
		})
	}
	if err := s.repo.InsertBatch(ctx, hs); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "holds.create", in.QuoteID, map[string]any{"items": len(hs)})
	return hs, nil
}

// ListByQuote groups all holds of a tenant per quote.
func (s *Service) ListByQuote(ctx context.Context, tenantID string) (map[string][]Hold, error) {
	all, err := s.repo.List(ctx, tenantID, "")
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]Hold)
	for _, h := range all {
		grouped[h.QuoteID] = append(grouped[h.QuoteID], h)
	}
	return grouped, nil
}

// List returns the holds of a single quote.
func (s *Service) List(ctx context.Context, tenantID, quoteID string) ([]Hold, error) {
	return s.repo.List(ctx, tenantID, quoteID)
}

// Release removes every hold of a quote. Releasing a quote with no holds is
// not an error; callers fire this on both conversion and cancellation.
func (s *Service) Release(ctx context.Context, tenantID, quoteID, actorID string) (ReleaseResult, error) {
	released, err := s.repo.DeleteByQuote(ctx, tenantID, quoteID)
	if err != nil {
		return ReleaseResult{}, err
	}
	if released > 0 {
		s.recordAudit(ctx, tenantID, actorID, "holds.release", quoteID, map[string]any{"released": released})
	}
	return ReleaseResult{QuoteID: quoteID, Released: released}, nil
}

// SweepExpired drops lapsed holds. Driven by the background scheduler.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("released expired holds", "count", n)
	}
	return n, nil
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory_holds",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", "action", action, "error", err)
	}
}
