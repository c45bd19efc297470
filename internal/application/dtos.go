package application

import (
	"time"

	"github.com/bloodbank-platform/allocation-service/internal/domain"
)

// StockLineDTO represents a bank inventory position in responses
type StockLineDTO struct {
	BankID         string     `json:"bankId"`
	BloodGroup     string     `json:"bloodGroup"`
	Component      string     `json:"component"`
	Batches        []BatchDTO `json:"batches"`
	TotalUnits     int        `json:"totalUnits"`
	ReservedUnits  int        `json:"reservedUnits"`
	AvailableUnits int        `json:"availableUnits"`
	MinimumStock   int        `json:"minimumStock"`
	CriticalLevel  int        `json:"criticalLevel"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// BatchDTO represents one batch inside a stock line
type BatchDTO struct {
	BatchID     string    `json:"batchId"`
	Units       int       `json:"units"`
	Reserved    int       `json:"reserved"`
	CollectedAt time.Time `json:"collectedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ConsumedBatchDTO reports units taken from a batch by an issue or commit
type ConsumedBatchDTO struct {
	BatchID string `json:"batchId"`
	Units   int    `json:"units"`
}

// ReservationDTO represents a reservation in responses
type ReservationDTO struct {
	ReservationID string     `json:"reservationId"`
	RequestID     string     `json:"requestId,omitempty"`
	BankID        string     `json:"bankId"`
	BloodGroup    string     `json:"bloodGroup"`
	Component     string     `json:"component"`
	Units         int        `json:"units"`
	Locks         []LockDTO  `json:"locks"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
}

// LockDTO represents one per-batch lock of a reservation
type LockDTO struct {
	BatchID string `json:"batchId"`
	Units   int    `json:"units"`
}

// RequestDTO represents a blood or organ request in responses
type RequestDTO struct {
	RequestID         string            `json:"requestId"`
	Kind              string            `json:"kind"`
	HospitalID        string            `json:"hospitalId"`
	Latitude          float64           `json:"latitude"`
	Longitude         float64           `json:"longitude"`
	PatientBloodGroup string            `json:"patientBloodGroup"`
	CompatibleGroups  []string          `json:"compatibleGroups"`
	Component         string            `json:"component,omitempty"`
	RequiredUnits     int               `json:"requiredUnits,omitempty"`
	Organ             *OrganCriteriaDTO `json:"organ,omitempty"`
	Urgency           string            `json:"urgency"`
	RequiredBy        *time.Time        `json:"requiredBy,omitempty"`
	Status            string            `json:"status"`
	StatusHistory     []StatusChangeDTO `json:"statusHistory,omitempty"`
	Matches           []DonorMatchDTO   `json:"matches,omitempty"`
	UnitsReserved     int               `json:"unitsReserved"`
	UnitsCommitted    int               `json:"unitsCommitted"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// OrganCriteriaDTO carries organ matching constraints in responses
type OrganCriteriaDTO struct {
	OrganType          string  `json:"organType"`
	MinAge             int     `json:"minAge,omitempty"`
	MaxAge             int     `json:"maxAge,omitempty"`
	MinWeightKg        float64 `json:"minWeightKg,omitempty"`
	MaxWeightKg        float64 `json:"maxWeightKg,omitempty"`
	MinHeightCm        float64 `json:"minHeightCm,omitempty"`
	MaxHeightCm        float64 `json:"maxHeightCm,omitempty"`
	HLAMatchLevel      string  `json:"hlaMatchLevel,omitempty"`
	CrossmatchRequired bool    `json:"crossmatchRequired"`
}

// StatusChangeDTO is one entry of a request's status history
type StatusChangeDTO struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Note      string    `json:"note,omitempty"`
	ChangedAt time.Time `json:"changedAt"`
}

// DonorMatchDTO represents a scored donor candidate in responses
type DonorMatchDTO struct {
	DonorID     string     `json:"donorId"`
	BloodGroup  string     `json:"bloodGroup"`
	Score       float64    `json:"score"`
	DistanceKm  float64    `json:"distanceKm"`
	Response    string     `json:"response"`
	ContactedAt *time.Time `json:"contactedAt,omitempty"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
}

// AlertDTO represents an emergency alert in responses
type AlertDTO struct {
	AlertID         string                `json:"alertId"`
	AlertType       string                `json:"alertType"`
	Severity        string                `json:"severity"`
	HospitalID      string                `json:"hospitalId"`
	Message         string                `json:"message"`
	Requirements    []AlertRequirementDTO `json:"requirements"`
	Status          string                `json:"status"`
	TotalNotified   int                   `json:"totalNotified"`
	TotalResponses  int                   `json:"totalResponses"`
	ConfirmedDonors []string              `json:"confirmedDonors"`
	RaisedAt        time.Time             `json:"raisedAt"`
	AutoExpireAt    time.Time             `json:"autoExpireAt"`
	ResolvedAt      *time.Time            `json:"resolvedAt,omitempty"`
}

// AlertRequirementDTO is one demand line of an alert in responses
type AlertRequirementDTO struct {
	BloodGroup     string `json:"bloodGroup"`
	Component      string `json:"component"`
	RequiredUnits  int    `json:"requiredUnits"`
	FulfilledUnits int    `json:"fulfilledUnits"`
}

// CompatibilityDTO answers a compatibility lookup
type CompatibilityDTO struct {
	BloodGroup string   `json:"bloodGroup"`
	Donors     []string `json:"donors,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
}

// ToStockLineDTO maps a stock line aggregate to its response shape
func ToStockLineDTO(line *domain.StockLine, now time.Time) *StockLineDTO {
	batches := make([]BatchDTO, 0, len(line.Batches))
	for _, b := range line.Batches {
		batches = append(batches, BatchDTO{
			BatchID:     b.BatchID,
			Units:       b.Units,
			Reserved:    b.Reserved,
			CollectedAt: b.CollectedAt,
			ExpiresAt:   b.ExpiresAt,
		})
	}

	return &StockLineDTO{
		BankID:         line.BankID,
		BloodGroup:     string(line.BloodGroup),
		Component:      string(line.Component),
		Batches:        batches,
		TotalUnits:     line.TotalUnits,
		ReservedUnits:  line.ReservedUnits,
		AvailableUnits: line.AvailableUnits(now),
		MinimumStock:   line.Thresholds.MinimumStock,
		CriticalLevel:  line.Thresholds.CriticalLevel,
		UpdatedAt:      line.UpdatedAt,
	}
}

// ToReservationDTO maps a reservation aggregate to its response shape
func ToReservationDTO(r *domain.Reservation) *ReservationDTO {
	locks := make([]LockDTO, 0, len(r.Locks))
	for _, l := range r.Locks {
		locks = append(locks, LockDTO{BatchID: l.BatchID, Units: l.Units})
	}

	return &ReservationDTO{
		ReservationID: r.ReservationID,
		RequestID:     r.RequestID,
		BankID:        r.BankID,
		BloodGroup:    string(r.BloodGroup),
		Component:     string(r.Component),
		Units:         r.Units,
		Locks:         locks,
		Status:        string(r.Status),
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
		ResolvedAt:    r.ResolvedAt,
	}
}

// ToRequestDTO maps a request aggregate to its response shape
func ToRequestDTO(r *domain.DonationRequest) *RequestDTO {
	groups := make([]string, 0, len(r.CompatibleGroups))
	for _, g := range r.CompatibleGroups {
		groups = append(groups, string(g))
	}

	history := make([]StatusChangeDTO, 0, len(r.StatusHistory))
	for _, h := range r.StatusHistory {
		history = append(history, StatusChangeDTO{
			From:      h.From,
			To:        h.To,
			Note:      h.Note,
			ChangedAt: h.ChangedAt,
		})
	}

	matches := make([]DonorMatchDTO, 0, len(r.Matches))
	for _, m := range r.Matches {
		matches = append(matches, DonorMatchDTO{
			DonorID:     m.DonorID,
			BloodGroup:  string(m.BloodGroup),
			Score:       m.Score,
			DistanceKm:  m.DistanceKm,
			Response:    string(m.Response),
			ContactedAt: m.ContactedAt,
			RespondedAt: m.RespondedAt,
		})
	}

	dto := &RequestDTO{
		RequestID:         r.RequestID,
		Kind:              string(r.Kind),
		HospitalID:        r.HospitalID,
		Latitude:          r.Location.Latitude,
		Longitude:         r.Location.Longitude,
		PatientBloodGroup: string(r.PatientBloodGroup),
		CompatibleGroups:  groups,
		Component:         string(r.Component),
		RequiredUnits:     r.RequiredUnits,
		Urgency:           string(r.Urgency),
		RequiredBy:        r.RequiredBy,
		Status:            r.Status,
		StatusHistory:     history,
		Matches:           matches,
		UnitsReserved:     r.UnitsReserved,
		UnitsCommitted:    r.UnitsCommitted,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}

	if r.Organ != nil {
		dto.Organ = &OrganCriteriaDTO{
			OrganType:          string(r.Organ.OrganType),
			MinAge:             r.Organ.MinAge,
			MaxAge:             r.Organ.MaxAge,
			MinWeightKg:        r.Organ.MinWeightKg,
			MaxWeightKg:        r.Organ.MaxWeightKg,
			MinHeightCm:        r.Organ.MinHeightCm,
			MaxHeightCm:        r.Organ.MaxHeightCm,
			HLAMatchLevel:      r.Organ.HLAMatchLevel,
			CrossmatchRequired: r.Organ.CrossmatchRequired,
		}
	}

	return dto
}

// ToAlertDTO maps an alert aggregate to its response shape
func ToAlertDTO(a *domain.EmergencyAlert) *AlertDTO {
	reqs := make([]AlertRequirementDTO, 0, len(a.Requirements))
	for _, r := range a.Requirements {
		reqs = append(reqs, AlertRequirementDTO{
			BloodGroup:     string(r.BloodGroup),
			Component:      string(r.Component),
			RequiredUnits:  r.RequiredUnits,
			FulfilledUnits: r.FulfilledUnits,
		})
	}

	return &AlertDTO{
		AlertID:         a.AlertID,
		AlertType:       string(a.AlertType),
		Severity:        string(a.Severity),
		HospitalID:      a.HospitalID,
		Message:         a.Message,
		Requirements:    reqs,
		Status:          string(a.Status),
		TotalNotified:   a.TotalNotified,
		TotalResponses:  len(a.Responses),
		ConfirmedDonors: a.ConfirmedDonors(),
		RaisedAt:        a.RaisedAt,
		AutoExpireAt:    a.AutoExpireAt,
		ResolvedAt:      a.ResolvedAt,
	}
}
