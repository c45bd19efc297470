package application

import "time"

// AddBatchCommand registers a collected batch into a bank's ledger
type AddBatchCommand struct {
	BankID      string
	BloodGroup  string
	Component   string
	BatchID     string
	Units       int
	CollectedAt time.Time
	ExpiresAt   time.Time
	DonationIDs []string
}

// IssueStockCommand issues units directly without a reservation
type IssueStockCommand struct {
	BankID     string
	BloodGroup string
	Component  string
	Units      int
	RequestID  string
}

// ReserveCommand claims available units against a request
type ReserveCommand struct {
	BankID     string
	BloodGroup string
	Component  string
	Units      int
	RequestID  string
	Timeout    time.Duration
}

// CommitReservationCommand consumes a reservation's locked units
type CommitReservationCommand struct {
	ReservationID string
}

// ReleaseReservationCommand returns a reservation's locked units
type ReleaseReservationCommand struct {
	ReservationID string
}

// CreateBloodRequestCommand opens a blood request
type CreateBloodRequestCommand struct {
	HospitalID string
	Latitude   float64
	Longitude  float64
	BloodGroup string
	Component  string
	Units      int
	Urgency    string
	RequiredBy *time.Time
}

// CreateOrganRequestCommand opens an organ request
type CreateOrganRequestCommand struct {
	HospitalID         string
	Latitude           float64
	Longitude          float64
	BloodGroup         string
	OrganType          string
	MinAge             int
	MaxAge             int
	MinWeightKg        float64
	MaxWeightKg        float64
	MinHeightCm        float64
	MaxHeightCm        float64
	HLAMatchLevel      string
	CrossmatchRequired bool
	Urgency            string
	RequiredBy         *time.Time
}

// RunMatchingCommand evaluates donor candidates for a request
type RunMatchingCommand struct {
	RequestID string
	MaxRadius float64
	Limit     int
}

// ContactDonorCommand records a contact attempt on a matched donor
type ContactDonorCommand struct {
	RequestID string
	DonorID   string
}

// DonorResponseCommand records a contacted donor's answer
type DonorResponseCommand struct {
	RequestID string
	DonorID   string
	Response  string
}

// FulfillFromStockCommand reserves ledger stock on behalf of a blood request,
// walking the compatibility order until the demand is covered
type FulfillFromStockCommand struct {
	RequestID string
	BankID    string
	Units     int
}

// CancelRequestCommand closes a request without fulfillment
type CancelRequestCommand struct {
	RequestID string
	Note      string
}

// TransitionOrganRequestCommand advances an organ request's status
type TransitionOrganRequestCommand struct {
	RequestID string
	To        string
	Note      string
}

// RaiseAlertCommand raises an emergency broadcast
type RaiseAlertCommand struct {
	AlertType    string
	Severity     string
	HospitalID   string
	Latitude     float64
	Longitude    float64
	Message      string
	Requirements []AlertRequirementInput
	BloodGroups  []string
	RadiusKm     float64
	BankIDs      []string
	ExpiresAt    *time.Time
}

// AlertRequirementInput is one demand line of a raise command
type AlertRequirementInput struct {
	BloodGroup    string
	Component     string
	RequiredUnits int
}

// AlertResponseCommand records a donor answering an alert
type AlertResponseCommand struct {
	AlertID   string
	DonorID   string
	Confirmed bool
}
