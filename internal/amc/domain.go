package amc

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/craftline-erp/craftline-erp/internal/platform/httpx"
)

// Status tracks the contract lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
	StatusSuspended Status = "suspended"
)

// PaymentFrequency drives the installment derivation.
type PaymentFrequency string

const (
	FrequencyMonthly   PaymentFrequency = "monthly"
	FrequencyQuarterly PaymentFrequency = "quarterly"
	FrequencyAnnual    PaymentFrequency = "annual"
)

// VisitCapPolicy decides what happens when a service visit exceeds the free
// allowance. Visits are never blocked; the policy only changes what the
// record says about billing.
type VisitCapPolicy string

const (
	// CapReport annotates the visit as over the allowance.
	CapReport VisitCapPolicy = "report"
	// CapCharge additionally prices the visit at the contract's
	// additional visit charge.
	CapCharge VisitCapPolicy = "charge"
)

// CoveredItem is one item under the contract.
type CoveredItem struct {
	ID           string `json:"id"`
	Description  string `json:"description"`
	SerialNumber string `json:"serialNumber,omitempty"`
	Type         string `json:"type,omitempty"`
}

// ServiceRecord is one logged maintenance visit, embedded on the contract.
type ServiceRecord struct {
	ID                     string          `json:"id"`
	VisitDate              time.Time       `json:"visitDate"`
	Technician             string          `json:"technician"`
	ServicesPerformed      []string        `json:"servicesPerformed"`
	Issues                 []string        `json:"issues"`
	Recommendations        string          `json:"recommendations,omitempty"`
	CustomerRemarks        string          `json:"customerRemarks,omitempty"`
	NextServiceRecommended *time.Time      `json:"nextServiceRecommended,omitempty"`
	OverFreeAllowance      bool            `json:"overFreeAllowance"`
	VisitCharge            decimal.Decimal `json:"visitCharge"`
	RecordedBy             string          `json:"recordedBy"`
	RecordedAt             time.Time       `json:"recordedAt"`
}

// Contract is an annual maintenance contract.
type Contract struct {
	ID                    string           `json:"id"`
	TenantID              string           `json:"-"`
	AMCNumber             string           `json:"amcNumber"`
	InvoiceID             string           `json:"invoiceId,omitempty"`
	InvoiceNumber         string           `json:"invoiceNumber,omitempty"`
	WarrantyID            string           `json:"warrantyId,omitempty"`
	CustomerName          string           `json:"customerName"`
	CustomerPhone         string           `json:"customerPhone,omitempty"`
	SiteAddress           string           `json:"siteAddress,omitempty"`
	ContractType          string           `json:"contractType"`
	ContractPeriod        int              `json:"contractPeriod"`
	StartDate             time.Time        `json:"startDate"`
	EndDate               time.Time        `json:"endDate"`
	Value                 decimal.Decimal  `json:"value"`
	PaymentFrequency      PaymentFrequency `json:"paymentFrequency"`
	InstallmentAmount     decimal.Decimal  `json:"installmentAmount"`
	ServicesIncluded      []string         `json:"servicesIncluded"`
	FreeVisits            int              `json:"freeVisits"`
	UsedVisits            int              `json:"usedVisits"`
	AdditionalVisitCharge decimal.Decimal  `json:"additionalVisitCharge"`
	Items                 []CoveredItem    `json:"items"`
	ItemsCovered          int              `json:"itemsCovered"`
	ServiceHistory        []ServiceRecord  `json:"serviceHistory"`
	NextServiceDate       *time.Time       `json:"nextServiceDate,omitempty"`
	Status                Status           `json:"status"`
	ActivatedAt           *time.Time       `json:"activatedAt,omitempty"`
	Notes                 string           `json:"notes,omitempty"`
	CreatedBy             string           `json:"createdBy"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`
}

// CreateItem is one covered item of a create request.
type CreateItem struct {
	Description  string `json:"description" validate:"required"`
	SerialNumber string `json:"serialNumber"`
	Type         string `json:"type"`
}

// CreateInput creates a contract.
type CreateInput struct {
	InvoiceID             string           `json:"invoiceId"`
	WarrantyID            string           `json:"warrantyId"`
	CustomerName          string           `json:"customerName"`
	CustomerPhone         string           `json:"customerPhone"`
	SiteAddress           string           `json:"siteAddress"`
	ContractType          string           `json:"contractType"`
	ContractPeriod        int              `json:"contractPeriod"`
	StartDate             *time.Time       `json:"startDate"`
	Value                 decimal.Decimal  `json:"value"`
	PaymentFrequency      PaymentFrequency `json:"paymentFrequency"`
	ServicesIncluded      []string         `json:"servicesIncluded"`
	FreeVisits            int              `json:"freeVisits"`
	AdditionalVisitCharge decimal.Decimal  `json:"additionalVisitCharge"`
	Items                 []CreateItem     `json:"items"`
	Notes                 string           `json:"notes"`
	ActorID               string           `json:"-"`
}

// VisitInput logs a maintenance visit.
type VisitInput struct {
	VisitDate         *time.Time `json:"visitDate"`
	Technician        string     `json:"technician" validate:"required"`
	ServicesPerformed []string   `json:"servicesPerformed"`
	Issues            []string   `json:"issues"`
	Recommendations   string     `json:"recommendations"`
	CustomerRemarks   string     `json:"customerRemarks"`
	NextServiceDate   *time.Time `json:"nextServiceDate"`
	ActorID           string     `json:"-"`
}

// Stats is the dashboard rollup for contracts.
type Stats struct {
	Total           int             `json:"total"`
	Active          int             `json:"active"`
	ExpiringSoon    int             `json:"expiringSoon"`
	ContractValue   decimal.Decimal `json:"contractValue"`
	VisitsThisMonth int             `json:"visitsThisMonth"`
}

var (
	ErrNotFound         = fmt.Errorf("amc contract %w", httpx.ErrNotFound)
	ErrInvalidStatus    = fmt.Errorf("%w: unknown contract status", httpx.ErrValidation)
	ErrInvalidFrequency = fmt.Errorf("%w: unknown payment frequency", httpx.ErrValidation)
)

// DefaultServices apply when a contract names none.
var DefaultServices = []string{
	"Quarterly inspection visits",
	"Preventive maintenance",
	"Lubrication of moving parts",
	"Hardware adjustment and tightening",
	"Glass cleaning (interior)",
	"Weather seal inspection",
}
