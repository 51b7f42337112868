package amc

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/craftline-erp/craftline-erp/internal/payments"
	"github.com/craftline-erp/craftline-erp/internal/shared"
)

// RepositoryPort abstracts contract persistence.
type RepositoryPort interface {
	NextSequence(ctx context.Context, tenantID string, year int) (int64, error)
	Insert(ctx context.Context, c Contract) error
	Get(ctx context.Context, tenantID, contractID string) (Contract, error)
	List(ctx context.Context, tenantID string, status Status) ([]Contract, error)
	AppendVisit(ctx context.Context, tenantID, contractID string, rec ServiceRecord, charge decimal.Decimal) (int, error)
	UpdateStatus(ctx context.Context, tenantID, contractID string, status Status, nextServiceDate *time.Time) error
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

// Service implements AMC contracts and visit logging.
type Service struct {
	repo      RepositoryPort
	invoices  InvoicePort
	audit     AuditPort
	capPolicy VisitCapPolicy
	logger    *slog.Logger
}

func NewService(repo RepositoryPort, invoices InvoicePort, audit AuditPort, capPolicy VisitCapPolicy, logger *slog.Logger) *Service {
	if capPolicy == "" {
		capPolicy = CapReport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, invoices: invoices, audit: audit, capPolicy: capPolicy, logger: logger}
}

// Create opens a pending contract. The installment amount derives from the
// payment frequency: monthly divides the value over the period, quarterly
// over period/3, annual charges the full value per installment.
func (s *Service) Create(ctx context.Context, tenantID string, in CreateInput) (Contract, error) {
	freq := in.PaymentFrequency
	if freq == "" {
		freq = FrequencyAnnual
	}
	switch freq {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyAnnual:
	default:
		return Contract{}, ErrInvalidFrequency
	}

	now := time.Now().UTC()
	var invoiceNumber string
	if in.InvoiceID != "" && s.invoices != nil {
		if inv, err := s.invoices.GetInvoice(ctx, tenantID, in.InvoiceID); err == nil {
			invoiceNumber = inv.InvoiceNumber
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
		return Contract{}, err
	}

	start := now
	if in.StartDate != nil {
		start = *in.StartDate
	}
	period := in.ContractPeriod
	if period <= 0 {
		period = 12
	}

	contractType := in.ContractType
	if contractType == "" {
		contractType = "standard"
	}
	services := in.ServicesIncluded
	if len(services) == 0 {
		services = DefaultServices
	}
	freeVisits := in.FreeVisits
	if freeVisits <= 0 {
		freeVisits = 4
	}
	visitCharge := in.AdditionalVisitCharge
	if !visitCharge.IsPositive() {
		visitCharge = decimal.NewFromInt(500)
	}

	items := make([]CoveredItem, 0, len(in.Items))
	for _, item := range in.Items {
		items = append(items, CoveredItem{
			ID:           uuid.NewString(),
			Description:  item.Description,
			SerialNumber: item.SerialNumber,
			Type:         item.Type,
		})
	}

	c := Contract{
		ID:                    uuid.NewString(),
		TenantID:              tenantID,
		AMCNumber:             shared.DocNumber("AMC", now.Year(), seq, 4),
		InvoiceID:             in.InvoiceID,
		InvoiceNumber:         invoiceNumber,
		WarrantyID:            in.WarrantyID,
		CustomerName:          in.CustomerName,
		CustomerPhone:         in.CustomerPhone,
		SiteAddress:           in.SiteAddress,
		ContractType:          contractType,
		ContractPeriod:        period,
		StartDate:             start,
		EndDate:               start.AddDate(0, period, 0),
		Value:                 in.Value,
		PaymentFrequency:      freq,
		InstallmentAmount:     installmentFor(in.Value, freq, period),
		ServicesIncluded:      services,
		FreeVisits:            freeVisits,
		AdditionalVisitCharge: visitCharge,
		Items:                 items,
		ItemsCovered:          len(items),
		ServiceHistory:        []ServiceRecord{},
		Status:                StatusPending,
		Notes:                 in.Notes,
		CreatedBy:             in.ActorID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return Contract{}, err
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "amc.create", c.ID, map[string]any{
		"amcNumber": c.AMCNumber,
		"value":     c.Value.String(),
		"frequency": c.PaymentFrequency,
	})
	return c, nil
}

func installmentFor(value decimal.Decimal, freq PaymentFrequency, period int) decimal.Decimal {
	switch freq {
	case FrequencyMonthly:
		return value.Div(decimal.NewFromInt(int64(period)))
	case FrequencyQuarterly:
		return value.Div(decimal.NewFromInt(int64(period)).Div(decimal.NewFromInt(3)))
	default:
		return value
	}
}

// LogVisit records a maintenance visit. A visit past the free allowance is
// never refused; depending on the cap policy it is either just flagged or
// flagged and priced at the contract's additional visit charge.
func (s *Service) LogVisit(ctx context.Context, tenantID, contractID string, in VisitInput) (ServiceRecord, error) {
	c, err := s.repo.Get(ctx, tenantID, contractID)
	if err != nil {
		return ServiceRecord{}, err
	}

	now := time.Now().UTC()
	visitDate := now
	if in.VisitDate != nil {
		visitDate = *in.VisitDate
	}
	overCharge := decimal.Zero
	if s.capPolicy == CapCharge {
		overCharge = c.AdditionalVisitCharge
	}

	rec := ServiceRecord{
		ID:                     uuid.NewString(),
		VisitDate:              visitDate,
		Technician:             in.Technician,
		ServicesPerformed:      in.ServicesPerformed,
		Issues:                 in.Issues,
		Recommendations:        in.Recommendations,
		CustomerRemarks:        in.CustomerRemarks,
		NextServiceRecommended: in.NextServiceDate,
		RecordedBy:             in.ActorID,
		RecordedAt:             now,
	}
	if rec.ServicesPerformed == nil {
		rec.ServicesPerformed = []string{}
	}
	if rec.Issues == nil {
		rec.Issues = []string{}
	}
	// the repository stamps over-allowance from the post-increment counter,
	// so concurrent visits cannot both read the same count and pass as free
	usedVisits, err := s.repo.AppendVisit(ctx, tenantID, contractID, rec, overCharge)
	if err != nil {
		return ServiceRecord{}, err
	}
	over := usedVisits > c.FreeVisits
	rec.OverFreeAllowance = over
	if over && s.capPolicy == CapCharge {
		rec.VisitCharge = c.AdditionalVisitCharge
	}
	if over {
		s.logger.Info("amc visit over free allowance",
			"contract", c.AMCNumber, "usedVisits", usedVisits, "freeVisits", c.FreeVisits,
			"policy", s.capPolicy)
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "amc.log_visit", contractID, map[string]any{
		"visitId":           rec.ID,
		"overFreeAllowance": over,
	})
	return rec, nil
}

// UpdateStatus moves a contract between lifecycle states. Activation stamps
// the activation time.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, contractID string, status Status, nextServiceDate *time.Time, actorID string) (Contract, error) {
	switch status {
	case StatusPending, StatusActive, StatusExpired, StatusCancelled, StatusSuspended:
	default:
		return Contract{}, ErrInvalidStatus
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, contractID, status, nextServiceDate); err != nil {
		return Contract{}, err
	}
	s.recordAudit(ctx, tenantID, actorID, "amc.update_status", contractID, map[string]any{"status": status})
	return s.repo.Get(ctx, tenantID, contractID)
}

// SweepExpired marks lapsed contracts expired. Driven by the scheduler.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireLapsed(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired lapsed amc contracts", "count", n)
	}
	return n, nil
}

func (s *Service) Get(ctx context.Context, tenantID, contractID string) (Contract, error) {
	return s.repo.Get(ctx, tenantID, contractID)
}

func (s *Service) List(ctx context.Context, tenantID string, status Status) ([]Contract, error) {
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
		Entity:   "amc_contracts",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", "action", action, "error", err)
	}
}
