package fulfillment

import (
	"fmt"
	"time"

	"github.com/craftline-erp/craftline-erp/internal/platform/httpx"
)

// JobCardStatus tracks a work order.
type JobCardStatus string

const (
	JobCardPending    JobCardStatus = "pending"
	JobCardAssigned   JobCardStatus = "assigned"
	JobCardInProgress JobCardStatus = "in-progress"
	JobCardCompleted  JobCardStatus = "completed"
	JobCardCancelled  JobCardStatus = "cancelled"
)

var jobCardTransitions = map[JobCardStatus][]JobCardStatus{
	JobCardPending:    {JobCardAssigned, JobCardInProgress, JobCardCancelled},
	JobCardAssigned:   {JobCardInProgress, JobCardCancelled},
	JobCardInProgress: {JobCardCompleted, JobCardCancelled},
}

// CanTransition reports whether a job card may move between statuses.
func (s JobCardStatus) CanTransition(to JobCardStatus) bool {
	for _, next := range jobCardTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s JobCardStatus) Valid() bool {
	switch s {
	case JobCardPending, JobCardAssigned, JobCardInProgress, JobCardCompleted, JobCardCancelled:
		return true
	}
	return false
}

// JobCardType classifies the work order.
type JobCardType string

const (
	JobInstallation  JobCardType = "installation"
	JobService       JobCardType = "service"
	JobRepair        JobCardType = "repair"
	JobWarrantyClaim JobCardType = "warranty_claim"
)

// JobCard is a work order for field teams.
type JobCard struct {
	ID                string        `json:"id"`
	TenantID          string        `json:"-"`
	JobCardNumber     string        `json:"jobCardNumber"`
	Type              JobCardType   `json:"type"`
	InvoiceID         string        `json:"invoiceId,omitempty"`
	InstallationID    string        `json:"installationId,omitempty"`
	WarrantyClaimID   string        `json:"warrantyClaimId,omitempty"`
	CustomerName      string        `json:"customerName"`
	CustomerPhone     string        `json:"customerPhone,omitempty"`
	SiteAddress       string        `json:"siteAddress,omitempty"`
	Description       string        `json:"description"`
	Priority          string        `json:"priority"`
	AssignedTo        string        `json:"assignedTo,omitempty"`
	Team              []string      `json:"team"`
	ScheduledDate     *time.Time    `json:"scheduledDate,omitempty"`
	EstimatedHours    float64       `json:"estimatedHours"`
	ActualHours       *float64      `json:"actualHours,omitempty"`
	Status            JobCardStatus `json:"status"`
	StartedAt         *time.Time    `json:"startedAt,omitempty"`
	CompletedAt       *time.Time    `json:"completedAt,omitempty"`
	WorkDone          string        `json:"workDone,omitempty"`
	TechnicianRemarks string        `json:"technicianRemarks,omitempty"`
	CreatedBy         string        `json:"createdBy"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// CreateJobCardInput opens a work order.
type CreateJobCardInput struct {
	Type            JobCardType `json:"type"`
	InvoiceID       string      `json:"invoiceId"`
	InstallationID  string      `json:"installationId"`
	WarrantyClaimID string      `json:"warrantyClaimId"`
	CustomerName    string      `json:"customerName"`
	CustomerPhone   string      `json:"customerPhone"`
	SiteAddress     string      `json:"siteAddress"`
	Description     string      `json:"description"`
	Priority        string      `json:"priority"`
	AssignedTo      string      `json:"assignedTo"`
	Team            []string    `json:"team"`
	ScheduledDate   *time.Time  `json:"scheduledDate"`
	EstimatedHours  float64     `json:"estimatedHours"`
	ActorID         string      `json:"-"`
}

// JobCardUpdateInput moves or annotates a job card.
type JobCardUpdateInput struct {
	Status            JobCardStatus `json:"status"`
	AssignedTo        string        `json:"assignedTo"`
	ActualHours       *float64      `json:"actualHours"`
	WorkDone          string        `json:"workDone"`
	TechnicianRemarks string        `json:"technicianRemarks"`
	ActorID           string        `json:"-"`
}

// Sentinel errors for the fulfillment documents.
var (
	ErrChallanNotFound      = fmt.Errorf("delivery challan %w", httpx.ErrNotFound)
	ErrInstallationNotFound = fmt.Errorf("installation %w", httpx.ErrNotFound)
	ErrJobCardNotFound      = fmt.Errorf("job card %w", httpx.ErrNotFound)
	ErrInvalidTransition    = fmt.Errorf("%w: status transition not allowed", httpx.ErrInvalidState)
	ErrUnknownStatus        = fmt.Errorf("%w: unknown status", httpx.ErrValidation)
)
