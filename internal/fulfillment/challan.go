package fulfillment

import "time"

// ChallanStatus tracks a delivery challan through dispatch.
type ChallanStatus string

const (
	ChallanPending    ChallanStatus = "pending"
	ChallanDispatched ChallanStatus = "dispatched"
	ChallanInTransit  ChallanStatus = "in-transit"
	ChallanDelivered  ChallanStatus = "delivered"
	ChallanPartial    ChallanStatus = "partial"
	ChallanReturned   ChallanStatus = "returned"
)

var challanTransitions = map[ChallanStatus][]ChallanStatus{
	ChallanPending:    {ChallanDispatched, ChallanReturned},
	ChallanDispatched: {ChallanInTransit, ChallanDelivered, ChallanPartial, ChallanReturned},
	ChallanInTransit:  {ChallanDelivered, ChallanPartial, ChallanReturned},
	ChallanPartial:    {ChallanDelivered, ChallanReturned},
}

// CanTransition reports whether a challan may move from one status to
// another. Delivered and returned are terminal.
func (s ChallanStatus) CanTransition(to ChallanStatus) bool {
	for _, next := range challanTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s ChallanStatus) Valid() bool {
	switch s {
	case ChallanPending, ChallanDispatched, ChallanInTransit, ChallanDelivered, ChallanPartial, ChallanReturned:
		return true
	}
	return false
}

// ChallanItem is one line of a delivery challan.
type ChallanItem struct {
	ID           string  `json:"id"`
	Description  string  `json:"description"`
	Type         string  `json:"type,omitempty"`
	Quantity     int64   `json:"quantity"`
	Unit         string  `json:"unit"`
	Width        float64 `json:"width,omitempty"`
	Height       float64 `json:"height,omitempty"`
	SerialNumber string  `json:"serialNumber,omitempty"`
	BatchNumber  string  `json:"batchNumber,omitempty"`
	Remarks      string  `json:"remarks,omitempty"`
}

// Challan is a delivery challan for dispatched goods.
type Challan struct {
	ID              string        `json:"id"`
	TenantID        string        `json:"-"`
	ChallanNumber   string        `json:"challanNumber"`
	InvoiceID       string        `json:"invoiceId,omitempty"`
	InvoiceNumber   string        `json:"invoiceNumber,omitempty"`
	OrderID         string        `json:"orderId,omitempty"`
	CustomerName    string        `json:"customerName"`
	CustomerPhone   string        `json:"customerPhone,omitempty"`
	DeliveryAddress string        `json:"deliveryAddress"`
	ContactPerson   string        `json:"contactPerson,omitempty"`
	ContactPhone    string        `json:"contactPhone,omitempty"`
	Items           []ChallanItem `json:"items"`
	TotalItems      int64         `json:"totalItems"`

	DispatchDate         *time.Time `json:"dispatchDate,omitempty"`
	ExpectedDeliveryDate *time.Time `json:"expectedDeliveryDate,omitempty"`
	ActualDeliveryDate   *time.Time `json:"actualDeliveryDate,omitempty"`
	VehicleNumber        string     `json:"vehicleNumber,omitempty"`
	DriverName           string     `json:"driverName,omitempty"`
	DriverPhone          string     `json:"driverPhone,omitempty"`
	TransporterName      string     `json:"transporterName,omitempty"`

	Status       ChallanStatus `json:"status"`
	DispatchedBy string        `json:"dispatchedBy,omitempty"`
	DispatchedAt *time.Time    `json:"dispatchedAt,omitempty"`
	DeliveredBy  string        `json:"deliveredBy,omitempty"`
	DeliveredAt  *time.Time    `json:"deliveredAt,omitempty"`

	// Proof of delivery.
	ReceivedBy      string `json:"receivedBy,omitempty"`
	ReceivedByPhone string `json:"receivedByPhone,omitempty"`
	DeliveryRemarks string `json:"deliveryRemarks,omitempty"`

	DamageReported bool   `json:"damageReported"`
	DamageDetails  string `json:"damageDetails,omitempty"`

	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChallanItemInput is one line of a create-challan command.
type ChallanItemInput struct {
	Description  string  `json:"description" validate:"required"`
	Type         string  `json:"type"`
	Quantity     int64   `json:"quantity"`
	Unit         string  `json:"unit"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	SerialNumber string  `json:"serialNumber"`
	BatchNumber  string  `json:"batchNumber"`
	Remarks      string  `json:"remarks"`
}

// CreateChallanInput creates a delivery challan.
type CreateChallanInput struct {
	InvoiceID            string             `json:"invoiceId"`
	InvoiceNumber        string             `json:"invoiceNumber"`
	OrderID              string             `json:"orderId"`
	CustomerName         string             `json:"customerName"`
	CustomerPhone        string             `json:"customerPhone"`
	DeliveryAddress      string             `json:"deliveryAddress"`
	ContactPerson        string             `json:"contactPerson"`
	ContactPhone         string             `json:"contactPhone"`
	Items                []ChallanItemInput `json:"items"`
	DispatchDate         *time.Time         `json:"dispatchDate"`
	ExpectedDeliveryDate *time.Time         `json:"expectedDeliveryDate"`
	VehicleNumber        string             `json:"vehicleNumber"`
	DriverName           string             `json:"driverName"`
	DriverPhone          string             `json:"driverPhone"`
	TransporterName      string             `json:"transporterName"`
	Notes                string             `json:"notes"`
	ActorID              string             `json:"-"`
}

// ChallanUpdateInput moves or annotates a challan.
type ChallanUpdateInput struct {
	Status          ChallanStatus `json:"status"`
	ReceivedBy      string        `json:"receivedBy"`
	ReceivedByPhone string        `json:"receivedByPhone"`
	DeliveryRemarks string        `json:"deliveryRemarks"`
	VehicleNumber   *string       `json:"vehicleNumber"`
	DriverName      *string       `json:"driverName"`
	DriverPhone     *string       `json:"driverPhone"`
	TransporterName *string       `json:"transporterName"`
	Notes           *string       `json:"notes"`
	DamageReported  *bool         `json:"damageReported"`
	DamageDetails   string        `json:"damageDetails"`
	ActorID         string        `json:"-"`
}
