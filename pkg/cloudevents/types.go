package cloudevents

import (
	"time"
)

// EventType constants for donation domain events
const (
	// Stock events
	BatchAdded         = "donation.stock.batch-added"
	BatchExpired       = "donation.stock.batch-expired"
	StockIssued        = "donation.stock.issued"
	LowStockAlert      = "donation.stock.low-stock-alert"
	CriticalStockAlert = "donation.stock.critical-stock-alert"

	// Reservation events
	ReservationCreated   = "donation.reservation.created"
	ReservationCommitted = "donation.reservation.committed"
	ReservationReleased  = "donation.reservation.released"
	ReservationExpired   = "donation.reservation.expired"

	// Request events
	RequestCreated   = "donation.request.created"
	RequestMatched   = "donation.request.matched"
	RequestFulfilled = "donation.request.fulfilled"
	RequestCancelled = "donation.request.cancelled"
	RequestExpired   = "donation.request.expired"

	// Donor match events
	DonorMatchRecorded = "donation.match.donor-recorded"
	DonorResponded     = "donation.match.donor-responded"

	// Emergency alert events
	AlertRaised   = "donation.alert.raised"
	AlertResponse = "donation.alert.response-recorded"
	AlertResolved = "donation.alert.resolved"
	AlertExpired  = "donation.alert.expired"
)

// Source constants for event sources
const (
	SourceAllocation = "/donation/allocation-service"
	SourceSweeper    = "/donation/allocation-sweeper"
)

// DonationCloudEvent represents a CloudEvents v1.0 compliant event
type DonationCloudEvent struct {
	SpecVersion     string                 `json:"specversion"`
	Type            string                 `json:"type"`
	Source          string                 `json:"source"`
	Subject         string                 `json:"subject,omitempty"`
	ID              string                 `json:"id"`
	Time            time.Time              `json:"time"`
	DataContentType string                 `json:"datacontenttype"`
	Data            interface{}            `json:"data"`
	Extensions      map[string]interface{} `json:"-"`

	// Donation-specific extensions
	CorrelationID string `json:"donationcorrelationid,omitempty"`
	BankID        string `json:"donationbankid,omitempty"`
}

// BatchAddedData represents the data payload for BatchAdded events
type BatchAddedData struct {
	BankID     string    `json:"bankId"`
	BloodGroup string    `json:"bloodGroup"`
	Component  string    `json:"component"`
	BatchID    string    `json:"batchId"`
	Units      int       `json:"units"`
	ExpiryAt   time.Time `json:"expiryAt"`
}

// BatchExpiredData represents the data payload for BatchExpired events
type BatchExpiredData struct {
	BankID       string `json:"bankId"`
	BloodGroup   string `json:"bloodGroup"`
	Component    string `json:"component"`
	BatchID      string `json:"batchId"`
	UnitsRemoved int    `json:"unitsRemoved"`
}

// StockIssuedData represents the data payload for StockIssued events
type StockIssuedData struct {
	BankID     string `json:"bankId"`
	BloodGroup string `json:"bloodGroup"`
	Component  string `json:"component"`
	Units      int    `json:"units"`
	RequestID  string `json:"requestId,omitempty"`
}

// StockLevelData represents the data payload for low and critical stock events
type StockLevelData struct {
	BankID         string `json:"bankId"`
	BloodGroup     string `json:"bloodGroup"`
	Component      string `json:"component"`
	AvailableUnits int    `json:"availableUnits"`
	Threshold      int    `json:"threshold"`
}

// ReservationData represents the data payload for reservation lifecycle events
type ReservationData struct {
	ReservationID string    `json:"reservationId"`
	BankID        string    `json:"bankId"`
	BloodGroup    string    `json:"bloodGroup"`
	Component     string    `json:"component"`
	Units         int       `json:"units"`
	RequestID     string    `json:"requestId,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`
}

// RequestData represents the data payload for request lifecycle events
type RequestData struct {
	RequestID  string `json:"requestId"`
	Kind       string `json:"kind"`
	BloodGroup string `json:"bloodGroup,omitempty"`
	OrganType  string `json:"organType,omitempty"`
	Units      int    `json:"units,omitempty"`
	Urgency    string `json:"urgency"`
	Status     string `json:"status"`
	HospitalID string `json:"hospitalId"`
}

// DonorMatchData represents the data payload for donor match events
type DonorMatchData struct {
	RequestID string  `json:"requestId"`
	DonorID   string  `json:"donorId"`
	Score     float64 `json:"score"`
	Status    string  `json:"status"`
}

// AlertData represents the data payload for emergency alert events
type AlertData struct {
	AlertID    string    `json:"alertId"`
	AlertType  string    `json:"alertType"`
	Severity   string    `json:"severity"`
	HospitalID string    `json:"hospitalId"`
	Status     string    `json:"status"`
	ExpiresAt  time.Time `json:"expiresAt,omitempty"`
}
