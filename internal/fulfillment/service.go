package fulfillment

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/craftline-erp/craftline-erp/internal/payments"
	"github.com/craftline-erp/craftline-erp/internal/shared"
)

// RepositoryPort abstracts fulfillment persistence. Updates carry the status
// the document was read at so a lost race surfaces as ErrInvalidTransition.
type RepositoryPort interface {
	NextSequence(ctx context.Context, tenantID, docType string, year int) (int64, error)

	InsertChallan(ctx context.Context, c Challan) error
	GetChallan(ctx context.Context, tenantID, id string) (Challan, error)
	UpdateChallan(ctx context.Context, c Challan, priorStatus ChallanStatus) error
	ListChallans(ctx context.Context, tenantID string, status ChallanStatus) ([]Challan, error)
	ChallanStats(ctx context.Context, tenantID string) (map[string]int, error)

	InsertInstallation(ctx context.Context, inst Installation) error
	GetInstallation(ctx context.Context, tenantID, id string) (Installation, error)
	UpdateInstallation(ctx context.Context, inst Installation, priorStatus InstallationStatus) error
	ListInstallations(ctx context.Context, tenantID string, status InstallationStatus) ([]Installation, error)
	InstallationStats(ctx context.Context, tenantID string) (map[string]int, error)

	InsertJobCard(ctx context.Context, jc JobCard) error
	GetJobCard(ctx context.Context, tenantID, id string) (JobCard, error)
	UpdateJobCard(ctx context.Context, jc JobCard, priorStatus JobCardStatus) error
	ListJobCards(ctx context.Context, tenantID string, status JobCardStatus) ([]JobCard, error)
	JobCardStats(ctx context.Context, tenantID string) (map[string]int, error)
}

// InvoicePort looks up invoices for customer fallbacks on create.
type InvoicePort interface {
	GetInvoice(ctx context.Context, tenantID, invoiceID string) (payments.Invoice, error)
}

// AuditPort records business-level audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements delivery challans, installations and job cards.
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

func (s *Service) invoiceFallback(ctx context.Context, tenantID, invoiceID string, number, name, phone *string) {
	if invoiceID == "" || s.invoices == nil {
		return
	}
	inv, err := s.invoices.GetInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return
	}
	if *number == "" {
		*number = inv.InvoiceNumber
	}
	if *name == "" {
		*name = inv.CustomerName
	}
	if *phone == "" {
		*phone = inv.CustomerPhone
	}
}

// CreateChallan issues a delivery challan and flags the source invoice.
func (s *Service) CreateChallan(ctx context.Context, tenantID string, in CreateChallanInput) (Challan, error) {
	now := time.Now().UTC()
	s.invoiceFallback(ctx, tenantID, in.InvoiceID, &in.InvoiceNumber, &in.CustomerName, &in.CustomerPhone)

	seq, err := s.repo.NextSequence(ctx, tenantID, "challan", now.Year())
	if err != nil {
		return Challan{}, err
	}

	items := make([]ChallanItem, 0, len(in.Items))
	var total int64
	for _, item := range in.Items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		items = append(items, ChallanItem{
			ID:           uuid.NewString(),
			Description:  item.Description,
			Type:         item.Type,
			Quantity:     qty,
			Unit:         item.Unit,
			Width:        item.Width,
			Height:       item.Height,
			SerialNumber: item.SerialNumber,
			BatchNumber:  item.BatchNumber,
			Remarks:      item.Remarks,
		})
		total += qty
	}

	c := Challan{
		ID:                   uuid.NewString(),
		TenantID:             tenantID,
		ChallanNumber:        shared.DocNumber("DC", now.Year(), seq, 5),
		InvoiceID:            in.InvoiceID,
		InvoiceNumber:        in.InvoiceNumber,
		OrderID:              in.OrderID,
		CustomerName:         in.CustomerName,
		CustomerPhone:        in.CustomerPhone,
		DeliveryAddress:      in.DeliveryAddress,
		ContactPerson:        in.ContactPerson,
		ContactPhone:         in.ContactPhone,
		Items:                items,
		TotalItems:           total,
		DispatchDate:         in.DispatchDate,
		ExpectedDeliveryDate: in.ExpectedDeliveryDate,
		VehicleNumber:        in.VehicleNumber,
		DriverName:           in.DriverName,
		DriverPhone:          in.DriverPhone,
		TransporterName:      in.TransporterName,
		Status:               ChallanPending,
		Notes:                in.Notes,
		CreatedBy:            in.ActorID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.InsertChallan(ctx, c); err != nil {
		return Challan{}, err
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "challan.created", "delivery_challan", c.ID,
		map[string]any{"challanNumber": c.ChallanNumber, "invoiceId": c.InvoiceID})
	return c, nil
}

// UpdateChallan applies a status transition and annotations. Dispatch and
// delivery stamps are written on the corresponding transitions.
func (s *Service) UpdateChallan(ctx context.Context, tenantID, id string, in ChallanUpdateInput) (Challan, error) {
	c, err := s.repo.GetChallan(ctx, tenantID, id)
	if err != nil {
		return Challan{}, err
	}
	prior := c.Status
	now := time.Now().UTC()

	if in.Status != "" && in.Status != c.Status {
		if !in.Status.Valid() {
			return Challan{}, ErrUnknownStatus
		}
		if !c.Status.CanTransition(in.Status) {
			return Challan{}, ErrInvalidTransition
		}
		switch in.Status {
		case ChallanDispatched:
			c.DispatchedBy = in.ActorID
			c.DispatchedAt = &now
			if c.DispatchDate == nil {
				c.DispatchDate = &now
			}
		case ChallanDelivered, ChallanPartial:
			c.DeliveredBy = in.ActorID
			c.DeliveredAt = &now
			c.ActualDeliveryDate = &now
			c.ReceivedBy = in.ReceivedBy
			c.ReceivedByPhone = in.ReceivedByPhone
			c.DeliveryRemarks = in.DeliveryRemarks
		}
		c.Status = in.Status
	}

	if in.VehicleNumber != nil {
		c.VehicleNumber = *in.VehicleNumber
	}
	if in.DriverName != nil {
		c.DriverName = *in.DriverName
	}
	if in.DriverPhone != nil {
		c.DriverPhone = *in.DriverPhone
	}
	if in.TransporterName != nil {
		c.TransporterName = *in.TransporterName
	}
	if in.Notes != nil {
		c.Notes = *in.Notes
	}
	if in.DamageReported != nil {
		c.DamageReported = *in.DamageReported
		c.DamageDetails = in.DamageDetails
	}
	c.UpdatedAt = now

	if err := s.repo.UpdateChallan(ctx, c, prior); err != nil {
		return Challan{}, err
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "challan.updated", "delivery_challan", c.ID,
		map[string]any{"from": prior, "to": c.Status})
	return c, nil
}

func (s *Service) GetChallan(ctx context.Context, tenantID, id string) (Challan, error) {
	return s.repo.GetChallan(ctx, tenantID, id)
}

func (s *Service) ListChallans(ctx context.Context, tenantID string, status ChallanStatus) ([]Challan, error) {
	if status != "" && !status.Valid() {
		return nil, ErrUnknownStatus
	}
	return s.repo.ListChallans(ctx, tenantID, status)
}

// CreateInstallation schedules an on-site installation job.
func (s *Service) CreateInstallation(ctx context.Context, tenantID string, in CreateInstallationInput) (Installation, error) {
	now := time.Now().UTC()
	s.invoiceFallback(ctx, tenantID, in.InvoiceID, &in.InvoiceNumber, &in.CustomerName, &in.CustomerPhone)

	seq, err := s.repo.NextSequence(ctx, tenantID, "installation", now.Year())
	if err != nil {
		return Installation{}, err
	}

	items := make([]InstallationItem, 0, len(in.Items))
	for _, item := range in.Items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		items = append(items, InstallationItem{
			ID:          uuid.NewString(),
			Description: item.Description,
			Type:        item.Type,
			Location:    item.Location,
			Quantity:    qty,
			Status:      "pending",
		})
	}

	duration := in.EstimatedDuration
	if duration <= 0 {
		duration = 4
	}
	slot := in.TimeSlot
	if slot == "" {
		slot = "full-day"
	}
	team := in.TeamMembers
	if team == nil {
		team = []string{}
	}

	inst := Installation{
		ID:                 uuid.NewString(),
		TenantID:           tenantID,
		InstallationNumber: shared.DocNumber("INST", now.Year(), seq, 5),
		InvoiceID:          in.InvoiceID,
		InvoiceNumber:      in.InvoiceNumber,
		OrderID:            in.OrderID,
		ChallanID:          in.ChallanID,
		CustomerName:       in.CustomerName,
		CustomerPhone:      in.CustomerPhone,
		SiteAddress:        in.SiteAddress,
		ContactPerson:      in.ContactPerson,
		ScheduledDate:      in.ScheduledDate,
		ScheduledTimeSlot:  slot,
		EstimatedDuration:  duration,
		TeamLeader:         in.TeamLeader,
		TeamMembers:        team,
		Items:              items,
		TotalItems:         len(items),
		Status:             InstallationScheduled,
		Notes:              in.Notes,
		CreatedBy:          in.ActorID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.InsertInstallation(ctx, inst); err != nil {
		return Installation{}, err
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "installation.created", "installation", inst.ID,
		map[string]any{"installationNumber": inst.InstallationNumber, "invoiceId": inst.InvoiceID})
	return inst, nil
}

// UpdateInstallation applies a status transition. Starting stamps the actual
// start time, completion stamps the end time and forces the percentage to
// 100, and rescheduling keeps the prior date and bumps the reschedule count.
func (s *Service) UpdateInstallation(ctx context.Context, tenantID, id string, in InstallationUpdateInput) (Installation, error) {
	inst, err := s.repo.GetInstallation(ctx, tenantID, id)
	if err != nil {
		return Installation{}, err
	}
	prior := inst.Status
	now := time.Now().UTC()

	if in.Status != "" && (in.Status != inst.Status || in.Status == InstallationRescheduled) {
		if !in.Status.Valid() {
			return Installation{}, ErrUnknownStatus
		}
		if !inst.Status.CanTransition(in.Status) {
			return Installation{}, ErrInvalidTransition
		}
		switch in.Status {
		case InstallationInProgress:
			inst.ActualStartTime = &now
		case InstallationCompleted:
			inst.ActualEndTime = &now
			inst.CompletionPercentage = 100
			inst.CompletedItems = inst.TotalItems
			for i := range inst.Items {
				inst.Items[i].Installed = inst.Items[i].Quantity
				inst.Items[i].Status = "completed"
			}
		case InstallationRescheduled:
			inst.RescheduledFrom = inst.ScheduledDate
			inst.RescheduledReason = in.RescheduledReason
			inst.RescheduledCount++
			if in.NewScheduledDate != nil {
				inst.ScheduledDate = in.NewScheduledDate
			}
		}
		inst.Status = in.Status
	}

	if in.CompletionPercentage != nil && inst.Status != InstallationCompleted {
		inst.CompletionPercentage = *in.CompletionPercentage
	}
	if in.QualityCheckPassed != nil {
		inst.QualityCheckPassed = in.QualityCheckPassed
		inst.QualityCheckBy = in.ActorID
		inst.QualityCheckAt = &now
		inst.QualityCheckRemarks = in.QualityCheckRemarks
	}
	if in.CustomerRating != nil {
		inst.CustomerRating = in.CustomerRating
		inst.CustomerFeedback = in.CustomerFeedback
	}
	inst.UpdatedAt = now

	if err := s.repo.UpdateInstallation(ctx, inst, prior); err != nil {
		return Installation{}, err
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "installation.updated", "installation", inst.ID,
		map[string]any{"from": prior, "to": inst.Status})
	return inst, nil
}

func (s *Service) GetInstallation(ctx context.Context, tenantID, id string) (Installation, error) {
	return s.repo.GetInstallation(ctx, tenantID, id)
}

func (s *Service) ListInstallations(ctx context.Context, tenantID string, status InstallationStatus) ([]Installation, error) {
	if status != "" && !status.Valid() {
		return nil, ErrUnknownStatus
	}
	return s.repo.ListInstallations(ctx, tenantID, status)
}

// CreateJobCard opens a work order for a field team.
func (s *Service) CreateJobCard(ctx context.Context, tenantID string, in CreateJobCardInput) (JobCard, error) {
	now := time.Now().UTC()
	var invoiceNumber string
	s.invoiceFallback(ctx, tenantID, in.InvoiceID, &invoiceNumber, &in.CustomerName, &in.CustomerPhone)

	seq, err := s.repo.NextSequence(ctx, tenantID, "jobcard", now.Year())
	if err != nil {
		return JobCard{}, err
	}

	jcType := in.Type
	if jcType == "" {
		jcType = JobInstallation
	}
	priority := in.Priority
	if priority == "" {
		priority = "normal"
	}
	hours := in.EstimatedHours
	if hours <= 0 {
		hours = 4
	}
	team := in.Team
	if team == nil {
		team = []string{}
	}
	status := JobCardPending
	if in.AssignedTo != "" {
		status = JobCardAssigned
	}

	jc := JobCard{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		JobCardNumber:   shared.DocNumber("JC", now.Year(), seq, 5),
		Type:            jcType,
		InvoiceID:       in.InvoiceID,
		InstallationID:  in.InstallationID,
		WarrantyClaimID: in.WarrantyClaimID,
		CustomerName:    in.CustomerName,
		CustomerPhone:   in.CustomerPhone,
		SiteAddress:     in.SiteAddress,
		Description:     in.Description,
		Priority:        priority,
		AssignedTo:      in.AssignedTo,
		Team:            team,
		ScheduledDate:   in.ScheduledDate,
		EstimatedHours:  hours,
		Status:          status,
		CreatedBy:       in.ActorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.InsertJobCard(ctx, jc); err != nil {
		return JobCard{}, err
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "jobcard.created", "job_card", jc.ID,
		map[string]any{"jobCardNumber": jc.JobCardNumber, "type": jc.Type})
	return jc, nil
}

// UpdateJobCard applies a status transition and work notes.
func (s *Service) UpdateJobCard(ctx context.Context, tenantID, id string, in JobCardUpdateInput) (JobCard, error) {
	jc, err := s.repo.GetJobCard(ctx, tenantID, id)
	if err != nil {
		return JobCard{}, err
	}
	prior := jc.Status
	now := time.Now().UTC()

	if in.Status != "" && in.Status != jc.Status {
		if !in.Status.Valid() {
			return JobCard{}, ErrUnknownStatus
		}
		if !jc.Status.CanTransition(in.Status) {
			return JobCard{}, ErrInvalidTransition
		}
		switch in.Status {
		case JobCardAssigned:
			if in.AssignedTo != "" {
				jc.AssignedTo = in.AssignedTo
			}
		case JobCardInProgress:
			jc.StartedAt = &now
		case JobCardCompleted:
			jc.CompletedAt = &now
		}
		jc.Status = in.Status
	}

	if in.AssignedTo != "" {
		jc.AssignedTo = in.AssignedTo
	}
	if in.ActualHours != nil {
		jc.ActualHours = in.ActualHours
	}
	if in.WorkDone != "" {
		jc.WorkDone = in.WorkDone
	}
	if in.TechnicianRemarks != "" {
		jc.TechnicianRemarks = in.TechnicianRemarks
	}
	jc.UpdatedAt = now

	if err := s.repo.UpdateJobCard(ctx, jc, prior); err != nil {
		return JobCard{}, err
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "jobcard.updated", "job_card", jc.ID,
		map[string]any{"from": prior, "to": jc.Status})
	return jc, nil
}

func (s *Service) GetJobCard(ctx context.Context, tenantID, id string) (JobCard, error) {
	return s.repo.GetJobCard(ctx, tenantID, id)
}

func (s *Service) ListJobCards(ctx context.Context, tenantID string, status JobCardStatus) ([]JobCard, error) {
	if status != "" && !status.Valid() {
		return nil, ErrUnknownStatus
	}
	return s.repo.ListJobCards(ctx, tenantID, status)
}

// Stats aggregates per-status counts across the three document types.
type Stats struct {
	Challans      map[string]int `json:"challans"`
	Installations map[string]int `json:"installations"`
	JobCards      map[string]int `json:"jobCards"`
}

func (s *Service) Stats(ctx context.Context, tenantID string) (Stats, error) {
	challans, err := s.repo.ChallanStats(ctx, tenantID)
	if err != nil {
		return Stats{}, err
	}
	installations, err := s.repo.InstallationStats(ctx, tenantID)
	if err != nil {
		return Stats{}, err
	}
	jobCards, err := s.repo.JobCardStats(ctx, tenantID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Challans: challans, Installations: installations, JobCards: jobCards}, nil
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       time.Now().UTC(),
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", "action", action, "entity", entity, "error", err)
	}
}
