package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// BatchReceivedEvent is published when a donation batch is registered
type BatchReceivedEvent struct {
	BankID     string     `json:"bankId"`
	BloodGroup BloodGroup `json:"bloodGroup"`
	Component  Component  `json:"component"`
	BatchID    string     `json:"batchId"`
	Units      int        `json:"units"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	ReceivedAt time.Time  `json:"receivedAt"`
}

func (e *BatchReceivedEvent) EventType() string     { return "donation.stock.batch-added" }
func (e *BatchReceivedEvent) OccurredAt() time.Time { return e.ReceivedAt }

// BatchExpiredEvent is published when a sweep removes expired units
type BatchExpiredEvent struct {
	BankID       string     `json:"bankId"`
	BloodGroup   BloodGroup `json:"bloodGroup"`
	Component    Component  `json:"component"`
	BatchID      string     `json:"batchId"`
	UnitsRemoved int        `json:"unitsRemoved"`
	SweptAt      time.Time  `json:"sweptAt"`
}

func (e *BatchExpiredEvent) EventType() string     { return "donation.stock.batch-expired" }
func (e *BatchExpiredEvent) OccurredAt() time.Time { return e.SweptAt }

// StockIssuedEvent is published when units leave the ledger
type StockIssuedEvent struct {
	BankID     string     `json:"bankId"`
	BloodGroup BloodGroup `json:"bloodGroup"`
	Component  Component  `json:"component"`
	Units      int        `json:"units"`
	RequestID  string     `json:"requestId,omitempty"`
	IssuedAt   time.Time  `json:"issuedAt"`
}

func (e *StockIssuedEvent) EventType() string     { return "donation.stock.issued" }
func (e *StockIssuedEvent) OccurredAt() time.Time { return e.IssuedAt }

// LowStockEvent is published when availability falls to the minimum level
type LowStockEvent struct {
	BankID         string     `json:"bankId"`
	BloodGroup     BloodGroup `json:"bloodGroup"`
	Component      Component  `json:"component"`
	AvailableUnits int        `json:"availableUnits"`
	MinimumStock   int        `json:"minimumStock"`
	AlertedAt      time.Time  `json:"alertedAt"`
}

func (e *LowStockEvent) EventType() string     { return "donation.stock.low-stock-alert" }
func (e *LowStockEvent) OccurredAt() time.Time { return e.AlertedAt }

// CriticalStockEvent is published when availability falls to the critical level
type CriticalStockEvent struct {
	BankID         string     `json:"bankId"`
	BloodGroup     BloodGroup `json:"bloodGroup"`
	Component      Component  `json:"component"`
	AvailableUnits int        `json:"availableUnits"`
	CriticalLevel  int        `json:"criticalLevel"`
	AlertedAt      time.Time  `json:"alertedAt"`
}

func (e *CriticalStockEvent) EventType() string     { return "donation.stock.critical-stock-alert" }
func (e *CriticalStockEvent) OccurredAt() time.Time { return e.AlertedAt }

// ReservationCreatedEvent is published when units are claimed
type ReservationCreatedEvent struct {
	ReservationID string     `json:"reservationId"`
	RequestID     string     `json:"requestId,omitempty"`
	BankID        string     `json:"bankId"`
	BloodGroup    BloodGroup `json:"bloodGroup"`
	Component     Component  `json:"component"`
	Units         int        `json:"units"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func (e *ReservationCreatedEvent) EventType() string     { return "donation.reservation.created" }
func (e *ReservationCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// ReservationCommittedEvent is published when claimed units are consumed
type ReservationCommittedEvent struct {
	ReservationID string     `json:"reservationId"`
	RequestID     string     `json:"requestId,omitempty"`
	BankID        string     `json:"bankId"`
	BloodGroup    BloodGroup `json:"bloodGroup"`
	Component     Component  `json:"component"`
	Units         int        `json:"units"`
	CommittedAt   time.Time  `json:"committedAt"`
}

func (e *ReservationCommittedEvent) EventType() string     { return "donation.reservation.committed" }
func (e *ReservationCommittedEvent) OccurredAt() time.Time { return e.CommittedAt }

// ReservationReleasedEvent is published when claimed units are returned
type ReservationReleasedEvent struct {
	ReservationID string     `json:"reservationId"`
	RequestID     string     `json:"requestId,omitempty"`
	BankID        string     `json:"bankId"`
	BloodGroup    BloodGroup `json:"bloodGroup"`
	Component     Component  `json:"component"`
	Units         int        `json:"units"`
	Expired       bool       `json:"expired"`
	ReleasedAt    time.Time  `json:"releasedAt"`
}

func (e *ReservationReleasedEvent) EventType() string {
	if e.Expired {
		return "donation.reservation.expired"
	}
	return "donation.reservation.released"
}
func (e *ReservationReleasedEvent) OccurredAt() time.Time { return e.ReleasedAt }

// RequestCreatedEvent is published when a blood or organ request is opened
type RequestCreatedEvent struct {
	RequestID  string    `json:"requestId"`
	Kind       string    `json:"kind"`
	HospitalID string    `json:"hospitalId"`
	Urgency    Urgency   `json:"urgency"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (e *RequestCreatedEvent) EventType() string     { return "donation.request.created" }
func (e *RequestCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// RequestStatusChangedEvent is published on every status transition
type RequestStatusChangedEvent struct {
	RequestID string    `json:"requestId"`
	Kind      string    `json:"kind"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changedAt"`
}

func (e *RequestStatusChangedEvent) EventType() string {
	switch e.To {
	case string(BloodRequestFulfilled), string(OrganRequestTransplanted):
		return "donation.request.fulfilled"
	case string(BloodRequestCancelled):
		return "donation.request.cancelled"
	case string(BloodRequestExpired):
		return "donation.request.expired"
	default:
		return "donation.request.matched"
	}
}
func (e *RequestStatusChangedEvent) OccurredAt() time.Time { return e.ChangedAt }

// DonorMatchRecordedEvent is published when the matcher persists a candidate
type DonorMatchRecordedEvent struct {
	RequestID  string    `json:"requestId"`
	DonorID    string    `json:"donorId"`
	Score      float64   `json:"score"`
	DistanceKm float64   `json:"distanceKm"`
	MatchedAt  time.Time `json:"matchedAt"`
}

func (e *DonorMatchRecordedEvent) EventType() string     { return "donation.match.donor-recorded" }
func (e *DonorMatchRecordedEvent) OccurredAt() time.Time { return e.MatchedAt }

// DonorRespondedEvent is published when a donor answers a contact attempt
type DonorRespondedEvent struct {
	RequestID   string    `json:"requestId"`
	DonorID     string    `json:"donorId"`
	Response    string    `json:"response"`
	RespondedAt time.Time `json:"respondedAt"`
}

func (e *DonorRespondedEvent) EventType() string     { return "donation.match.donor-responded" }
func (e *DonorRespondedEvent) OccurredAt() time.Time { return e.RespondedAt }

// AlertRaisedEvent is published when an emergency alert goes active
type AlertRaisedEvent struct {
	AlertID       string    `json:"alertId"`
	AlertType     AlertType `json:"alertType"`
	Severity      Severity  `json:"severity"`
	HospitalID    string    `json:"hospitalId"`
	TotalNotified int       `json:"totalNotified"`
	ExpiresAt     time.Time `json:"expiresAt"`
	RaisedAt      time.Time `json:"raisedAt"`
}

func (e *AlertRaisedEvent) EventType() string     { return "donation.alert.raised" }
func (e *AlertRaisedEvent) OccurredAt() time.Time { return e.RaisedAt }

// AlertResponseEvent is published when a donor confirms against an alert
type AlertResponseEvent struct {
	AlertID     string    `json:"alertId"`
	DonorID     string    `json:"donorId"`
	RespondedAt time.Time `json:"respondedAt"`
}

func (e *AlertResponseEvent) EventType() string     { return "donation.alert.response-recorded" }
func (e *AlertResponseEvent) OccurredAt() time.Time { return e.RespondedAt }

// AlertStatusChangedEvent is published when an alert resolves or expires
type AlertStatusChangedEvent struct {
	AlertID   string      `json:"alertId"`
	From      AlertStatus `json:"from"`
	To        AlertStatus `json:"to"`
	ChangedAt time.Time   `json:"changedAt"`
}

func (e *AlertStatusChangedEvent) EventType() string {
	if e.To == AlertStatusExpired {
		return "donation.alert.expired"
	}
	return "donation.alert.resolved"
}
func (e *AlertStatusChangedEvent) OccurredAt() time.Time { return e.ChangedAt }
