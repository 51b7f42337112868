package warranty

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/craftline-erp/craftline-erp/internal/payments"
	"github.com/craftline-erp/craftline-erp/internal/shared"
)

// RepositoryPort abstracts warranty persistence.
type RepositoryPort interface {
	NextSequence(ctx context.Context, tenantID string, year int) (int64, error)
	Insert(ctx context.Context, w Warranty) error
	Get(ctx context.Context, tenantID, warrantyID string) (Warranty, error)
	List(ctx context.Context, tenantID string, status Status) ([]Warranty, error)
	AppendClaim(ctx context.Context, tenantID, warrantyID string, c Claim) error
	UpdateStatus(ctx context.Context, tenantID, warrantyID string, status Status) error
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context, tenantID string) (Stats, error)
}

// InvoicePort looks up invoices for customer fallbacks.
type InvoicePort interface {
	GetInvoice(ctx context.Context, tenantID, invoiceID string) (payments.Invoice, error)
}

// AuditPort records business-level audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements warranty registration and claims.
type Service struct {
	repo     RepositoryPort
	invoices InvoicePort
	audit    AuditPort
	logger   *slog.Logger
}

func NewService(repo RepositoryPort, invoices InvoicePort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, invoices: invoices, audit: audit, logger: logger}
}

// Register creates an active warranty. Customer fields missing from the
// request fall back to the referenced invoice, and the invoice is flagged as
// warranty-registered. The period defaults to twelve months; end date is
// start date plus that many calendar months.
func (s *Service) Register(ctx context.Context, tenantID string, in RegisterInput) (Warranty, error) {
	now := time.Now().UTC()

	if in.InvoiceID != "" && s.invoices != nil {
		inv, err := s.invoices.GetInvoice(ctx, tenantID, in.InvoiceID)
		if err == nil {
			if in.InvoiceNumber == "" {
				in.InvoiceNumber = inv.InvoiceNumber
			}
			if in.CustomerName == "" {
				in.CustomerName = inv.CustomerName
			}
			if in.CustomerPhone == "" {
				in.CustomerPhone = inv.CustomerPhone
			}
		}
	}

	seq, err := s.repo.NextSequence(ctx, tenantID, now.Year())
	if err != nil {
		return Warranty{}, err
	}

	start := now
	if in.StartDate != nil {
		start = *in.StartDate
	}
	period := in.WarrantyPeriod
	if period <= 0 {
		period = 12
	}

	warrantyType := in.WarrantyType
	if warrantyType == "" {
		warrantyType = "standard"
	}
	coverage := in.CoverageDetails
	if coverage == "" {
		coverage = DefaultCoverageDetails
	}
	exclusions := in.Exclusions
	if len(exclusions) == 0 {
		exclusions = DefaultExclusions
	}

	items := make([]CoveredItem, 0, len(in.Items))
	for _, item := range in.Items {
		cov := item.Coverage
		if cov == "" {
			cov = "manufacturing_defects"
		}
		items = append(items, CoveredItem{
			ID:           uuid.NewString(),
			Description:  item.Description,
			SerialNumber: item.SerialNumber,
			Type:         item.Type,
			Coverage:     cov,
			Exclusions:   item.Exclusions,
		})
	}

	w := Warranty{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		WarrantyNumber:  shared.DocNumber("WRN", now.Year(), seq, 5),
		InvoiceID:       in.InvoiceID,
		InvoiceNumber:   in.InvoiceNumber,
		OrderID:         in.OrderID,
		InstallationID:  in.InstallationID,
		CustomerName:    in.CustomerName,
		CustomerPhone:   in.CustomerPhone,
		SiteAddress:     in.SiteAddress,
		WarrantyType:    warrantyType,
		WarrantyPeriod:  period,
		StartDate:       start,
		EndDate:         start.AddDate(0, period, 0),
		Items:           items,
		ItemsCovered:    len(items),
		CoverageDetails: coverage,
		Exclusions:      exclusions,
		Claims:          []Claim{},
		Status:          StatusActive,
		RegisteredBy:    in.ActorID,
		RegisteredAt:    now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, w); err != nil {
		return Warranty{}, err
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "warranty.register", w.ID, map[string]any{
		"warrantyNumber": w.WarrantyNumber,
		"invoiceId":      w.InvoiceID,
	})
	return w, nil
}

// FileClaim files a claim against a warranty. The gates run in order: the
// warranty must exist, must be active, and must not be past its end date.
func (s *Service) FileClaim(ctx context.Context, tenantID, warrantyID string, in ClaimInput) (Claim, error) {
	w, err := s.repo.Get(ctx, tenantID, warrantyID)
	if err != nil {
		return Claim{}, err
	}
	if w.Status != StatusActive {
		return Claim{}, ErrNotActive
	}
	now := time.Now().UTC()
	if now.After(w.EndDate) {
		return Claim{}, ErrHasExpired
	}

	claim := Claim{
		ID:               uuid.NewString(),
		ClaimNumber:      shared.ClaimNumber(now),
		ClaimDate:        now,
		IssueType:        in.IssueType,
		IssueDescription: in.IssueDescription,
		ItemsAffected:    in.ItemsAffected,
		Photos:           in.Photos,
		Status:           ClaimPending,
		FiledBy:          in.ActorID,
	}
	if claim.ItemsAffected == nil {
		claim.ItemsAffected = []string{}
	}
	if err := s.repo.AppendClaim(ctx, tenantID, warrantyID, claim); err != nil {
		return Claim{}, err
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "warranty.file_claim", warrantyID, map[string]any{
		"claimNumber": claim.ClaimNumber,
		"issueType":   claim.IssueType,
	})
	return claim, nil
}

// UpdateStatus moves a warranty between lifecycle states.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, warrantyID string, status Status, actorID string) (Warranty, error) {
	if err := s.repo.UpdateStatus(ctx, tenantID, warrantyID, status); err != nil {
		return Warranty{}, err
	}
	s.recordAudit(ctx, tenantID, actorID, "warranty.update_status", warrantyID, map[string]any{"status": status})
	return s.repo.Get(ctx, tenantID, warrantyID)
}

// SweepExpired marks lapsed warranties expired. Driven by the scheduler.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireLapsed(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired lapsed warranties", "count", n)
	}
	return n, nil
}

func (s *Service) Get(ctx context.Context, tenantID, warrantyID string) (Warranty, error) {
	return s.repo.Get(ctx, tenantID, warrantyID)
}

func (s *Service) List(ctx context.Context, tenantID string, status Status) ([]Warranty, error) {
	return s.repo.List(ctx, tenantID, status)
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
		Entity:   "warranties",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", "action", action, "error", err)
	}
}
