package warranty

import (
	"fmt"
	"time"

	"github.com/craftline-erp/craftline-erp/internal/platform/httpx"
)

// Status tracks the warranty lifecycle.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusVoided  Status = "voided"
)

// ClaimStatus tracks a filed claim.
type ClaimStatus string

const (
	ClaimPending     ClaimStatus = "pending"
	ClaimUnderReview ClaimStatus = "under-review"
	ClaimApproved    ClaimStatus = "approved"
	ClaimRejected    ClaimStatus = "rejected"
	ClaimResolved    ClaimStatus = "resolved"
)

// CoveredItem is one item under warranty cover.
type CoveredItem struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	SerialNumber string   `json:"serialNumber,omitempty"`
	Type         string   `json:"type,omitempty"`
	Coverage     string   `json:"coverage"`
	Exclusions   []string `json:"exclusions,omitempty"`
}

// Claim is one warranty claim, embedded on the warranty record.
type Claim struct {
	ID               string      `json:"id"`
	ClaimNumber      string      `json:"claimNumber"`
	ClaimDate        time.Time   `json:"claimDate"`
	IssueType        string      `json:"issueType"`
	IssueDescription string      `json:"issueDescription"`
	ItemsAffected    []string    `json:"itemsAffected"`
	Photos           []string    `json:"photos,omitempty"`
	Status           ClaimStatus `json:"status"`
	Resolution       string      `json:"resolution,omitempty"`
	ResolvedAt       *time.Time  `json:"resolvedAt,omitempty"`
	FiledBy          string      `json:"filedBy"`
}

// Warranty is a registered product warranty tied to an invoice.
type Warranty struct {
	ID              string        `json:"id"`
	TenantID        string        `json:"-"`
	WarrantyNumber  string        `json:"warrantyNumber"`
	InvoiceID       string        `json:"invoiceId,omitempty"`
	InvoiceNumber   string        `json:"invoiceNumber,omitempty"`
	OrderID         string        `json:"orderId,omitempty"`
	InstallationID  string        `json:"installationId,omitempty"`
	CustomerName    string        `json:"customerName"`
	CustomerPhone   string        `json:"customerPhone,omitempty"`
	SiteAddress     string        `json:"siteAddress,omitempty"`
	WarrantyType    string        `json:"warrantyType"`
	WarrantyPeriod  int           `json:"warrantyPeriod"`
	StartDate       time.Time     `json:"startDate"`
	EndDate         time.Time     `json:"endDate"`
	Items           []CoveredItem `json:"items"`
	ItemsCovered    int           `json:"itemsCovered"`
	CoverageDetails string        `json:"coverageDetails"`
	Exclusions      []string      `json:"exclusions"`
	ClaimsCount     int           `json:"claimsCount"`
	Claims          []Claim       `json:"claims"`
	Status          Status        `json:"status"`
	RegisteredBy    string        `json:"registeredBy"`
	RegisteredAt    time.Time     `json:"registeredAt"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// RegisterItem is one covered item of a register request.
type RegisterItem struct {
	Description  string   `json:"description" validate:"required"`
	SerialNumber string   `json:"serialNumber"`
	Type         string   `json:"type"`
	Coverage     string   `json:"coverage"`
	Exclusions   []string `json:"exclusions"`
}

// RegisterInput registers a warranty, usually against an invoice.
type RegisterInput struct {
	InvoiceID       string         `json:"invoiceId"`
	InvoiceNumber   string         `json:"invoiceNumber"`
	OrderID         string         `json:"orderId"`
	InstallationID  string         `json:"installationId"`
	CustomerName    string         `json:"customerName"`
	CustomerPhone   string         `json:"customerPhone"`
	SiteAddress     string         `json:"siteAddress"`
	WarrantyType    string         `json:"warrantyType"`
	WarrantyPeriod  int            `json:"warrantyPeriod"`
	StartDate       *time.Time     `json:"startDate"`
	Items           []RegisterItem `json:"items"`
	CoverageDetails string         `json:"coverageDetails"`
	Exclusions      []string       `json:"exclusions"`
	ActorID         string         `json:"-"`
}

// ClaimInput files a claim against an active warranty.
type ClaimInput struct {
	IssueType        string   `json:"issueType" validate:"required"`
	IssueDescription string   `json:"issueDescription" validate:"required"`
	ItemsAffected    []string `json:"itemsAffected"`
	Photos           []string `json:"photos"`
	ActorID          string   `json:"-"`
}

// Stats is the dashboard rollup for warranties.
type Stats struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	Expired     int `json:"expired"`
	TotalClaims int `json:"totalClaims"`
}

var (
	ErrNotFound   = fmt.Errorf("warranty %w", httpx.ErrNotFound)
	ErrNotActive  = fmt.Errorf("%w: warranty is not active", httpx.ErrInvalidState)
	ErrHasExpired = fmt.Errorf("warranty has %w", httpx.ErrExpired)
)

// DefaultExclusions apply when a registration names none.
var DefaultExclusions = []string{
	"Damage due to misuse or negligence",
	"Normal wear and tear",
	"Damage from natural disasters",
	"Unauthorized repairs or modifications",
}

const DefaultCoverageDetails = "Covers manufacturing defects in material and workmanship"
