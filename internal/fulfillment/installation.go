package fulfillment

import "time"

// InstallationStatus tracks an installation job at the customer site.
type InstallationStatus string

const (
	InstallationScheduled   InstallationStatus = "scheduled"
	InstallationConfirmed   InstallationStatus = "confirmed"
	InstallationInProgress  InstallationStatus = "in-progress"
	InstallationCompleted   InstallationStatus = "completed"
	InstallationRescheduled InstallationStatus = "rescheduled"
	InstallationCancelled   InstallationStatus = "cancelled"
)

var installationTransitions = map[InstallationStatus][]InstallationStatus{
	InstallationScheduled:   {InstallationConfirmed, InstallationInProgress, InstallationRescheduled, InstallationCancelled},
	InstallationConfirmed:   {InstallationInProgress, InstallationRescheduled, InstallationCancelled},
	InstallationInProgress:  {InstallationCompleted, InstallationCancelled},
	InstallationRescheduled: {InstallationConfirmed, InstallationInProgress, InstallationRescheduled, InstallationCancelled},
}

// CanTransition reports whether an installation may move between statuses.
// Completed and cancelled are terminal; a rescheduled job may be rescheduled
// again.
func (s InstallationStatus) CanTransition(to InstallationStatus) bool {
	for _, next := range installationTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s InstallationStatus) Valid() bool {
	switch s {
	case InstallationScheduled, InstallationConfirmed, InstallationInProgress,
		InstallationCompleted, InstallationRescheduled, InstallationCancelled:
		return true
	}
	return false
}

// InstallationItem is one item to install at site.
type InstallationItem struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Type        string `json:"type,omitempty"`
	Location    string `json:"location,omitempty"`
	Quantity    int64  `json:"quantity"`
	Installed   int64  `json:"installed"`
	Status      string `json:"status"`
}

// Installation is a scheduled on-site installation job.
type Installation struct {
	ID                 string `json:"id"`
	TenantID           string `json:"-"`
	InstallationNumber string `json:"installationNumber"`
	InvoiceID          string `json:"invoiceId,omitempty"`
	InvoiceNumber      string `json:"invoiceNumber,omitempty"`
	OrderID            string `json:"orderId,omitempty"`
	ChallanID          string `json:"challanId,omitempty"`
	CustomerName       string `json:"customerName"`
	CustomerPhone      string `json:"customerPhone,omitempty"`
	SiteAddress        string `json:"siteAddress"`
	ContactPerson      string `json:"contactPerson,omitempty"`

	ScheduledDate     *time.Time `json:"scheduledDate,omitempty"`
	ScheduledTimeSlot string     `json:"scheduledTimeSlot"`
	EstimatedDuration int        `json:"estimatedDuration"`
	ActualStartTime   *time.Time `json:"actualStartTime,omitempty"`
	ActualEndTime     *time.Time `json:"actualEndTime,omitempty"`

	TeamLeader  string   `json:"teamLeader,omitempty"`
	TeamMembers []string `json:"teamMembers"`

	Items          []InstallationItem `json:"items"`
	TotalItems     int                `json:"totalItems"`
	CompletedItems int                `json:"completedItems"`

	Status               InstallationStatus `json:"status"`
	CompletionPercentage int                `json:"completionPercentage"`

	QualityCheckPassed  *bool      `json:"qualityCheckPassed,omitempty"`
	QualityCheckBy      string     `json:"qualityCheckBy,omitempty"`
	QualityCheckAt      *time.Time `json:"qualityCheckAt,omitempty"`
	QualityCheckRemarks string     `json:"qualityCheckRemarks,omitempty"`

	CustomerRating   *int   `json:"customerRating,omitempty"`
	CustomerFeedback string `json:"customerFeedback,omitempty"`

	RescheduledFrom   *time.Time `json:"rescheduledFrom,omitempty"`
	RescheduledReason string     `json:"rescheduledReason,omitempty"`
	RescheduledCount  int        `json:"rescheduledCount"`

	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// InstallationItemInput is one line of a create-installation command.
type InstallationItemInput struct {
	Description string `json:"description" validate:"required"`
	Type        string `json:"type"`
	Location    string `json:"location"`
	Quantity    int64  `json:"quantity"`
}

// CreateInstallationInput schedules an installation.
type CreateInstallationInput struct {
	InvoiceID         string                  `json:"invoiceId"`
	InvoiceNumber     string                  `json:"invoiceNumber"`
	OrderID           string                  `json:"orderId"`
	ChallanID         string                  `json:"challanId"`
	CustomerName      string                  `json:"customerName"`
	CustomerPhone     string                  `json:"customerPhone"`
	SiteAddress       string                  `json:"siteAddress"`
	ContactPerson     string                  `json:"contactPerson"`
	ScheduledDate     *time.Time              `json:"scheduledDate"`
	TimeSlot          string                  `json:"timeSlot"`
	EstimatedDuration int                     `json:"estimatedDuration"`
	TeamLeader        string                  `json:"teamLeader"`
	TeamMembers       []string                `json:"teamMembers"`
	Items             []InstallationItemInput `json:"items"`
	Notes             string                  `json:"notes"`
	ActorID           string                  `json:"-"`
}

// InstallationUpdateInput moves or annotates an installation.
type InstallationUpdateInput struct {
	Status               InstallationStatus `json:"status"`
	NewScheduledDate     *time.Time         `json:"newScheduledDate"`
	RescheduledReason    string             `json:"rescheduledReason"`
	CompletionPercentage *int               `json:"completionPercentage"`
	QualityCheckPassed   *bool              `json:"qualityCheckPassed"`
	QualityCheckRemarks  string             `json:"qualityCheckRemarks"`
	CustomerRating       *int               `json:"customerRating"`
	CustomerFeedback     string             `json:"customerFeedback"`
	ActorID              string             `json:"-"`
}
