package domain

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AlertType classifies an emergency broadcast
type AlertType string

const (
	AlertBloodShortage   AlertType = "blood_shortage"
	AlertOrganMatch      AlertType = "organ_match"
	AlertMassCasualty    AlertType = "mass_casualty"
	AlertCriticalPatient AlertType = "critical_patient"
)

func (t AlertType) IsValid() bool {
	switch t {
	case AlertBloodShortage, AlertOrganMatch, AlertMassCasualty, AlertCriticalPatient:
		return true
	}
	return false
}

// Severity grades how widely an alert is broadcast
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// AlertStatus is the lifecycle state of an emergency alert
type AlertStatus string

const (
	AlertStatusActive            AlertStatus = "active"
	AlertStatusPartiallyResolved AlertStatus = "partially_resolved"
	AlertStatusResolved          AlertStatus = "resolved"
	AlertStatusCancelled         AlertStatus = "cancelled"
	AlertStatusExpired           AlertStatus = "expired"
)

// DefaultAlertLifetime is applied when no explicit expiry is given
const DefaultAlertLifetime = 24 * time.Hour

// AlertRequirement is one line of demand inside an alert. FulfilledUnits is
// advanced as confirmed donations arrive.
type AlertRequirement struct {
	BloodGroup     BloodGroup `bson:"bloodGroup" json:"bloodGroup"`
	Component      Component  `bson:"component" json:"component"`
	RequiredUnits  int        `bson:"requiredUnits" json:"requiredUnits"`
	FulfilledUnits int        `bson:"fulfilledUnits" json:"fulfilledUnits"`
}

// TargetAudience bounds who the broadcaster notifies
type TargetAudience struct {
	BloodGroups         []BloodGroup `bson:"bloodGroups" json:"bloodGroups"`
	RadiusKm            float64      `bson:"radiusKm" json:"radiusKm"`
	BankIDs             []string     `bson:"bankIds,omitempty" json:"bankIds,omitempty"`
	ExcludeRecentDonors bool         `bson:"excludeRecentDonors" json:"excludeRecentDonors"`
	MinimumRating       float64      `bson:"minimumRating,omitempty" json:"minimumRating,omitempty"`
}

// AlertResponse records a donor answering the broadcast
type AlertResponse struct {
	DonorID       string     `bson:"donorId" json:"donorId"`
	BloodGroup    BloodGroup `bson:"bloodGroup" json:"bloodGroup"`
	Confirmed     bool       `bson:"confirmed" json:"confirmed"`
	ETAMinutes    int        `bson:"etaMinutes,omitempty" json:"etaMinutes,omitempty"`
	TransportMode string     `bson:"transportMode,omitempty" json:"transportMode,omitempty"`
	RespondedAt   time.Time  `bson:"respondedAt" json:"respondedAt"`
}

// EmergencyAlert is the aggregate root for an emergency broadcast. The
// response funnel (notified, responded, confirmed) is monotonic.
type EmergencyAlert struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	AlertID    string             `bson:"alertId"`
	AlertType  AlertType          `bson:"alertType"`
	Severity   Severity           `bson:"severity"`
	HospitalID string             `bson:"hospitalId"`
	Location   GeoPoint           `bson:"location"`
	Message    string             `bson:"message"`

	Requirements []AlertRequirement `bson:"requirements"`
	Audience     TargetAudience     `bson:"audience"`

	Status        AlertStatus     `bson:"status"`
	TotalNotified int             `bson:"totalNotified"`
	Responses     []AlertResponse `bson:"responses"`

	RaisedAt     time.Time  `bson:"raisedAt"`
	AutoExpireAt time.Time  `bson:"autoExpireAt"`
	ResolvedAt   *time.Time `bson:"resolvedAt,omitempty"`
	UpdatedAt    time.Time  `bson:"updatedAt"`
	Version      int64      `bson:"version"`

	DomainEvents []DomainEvent `bson:"-"`
}

// NewEmergencyAlert raises an active alert. A zero expiresAt gets the
// default lifetime.
func NewEmergencyAlert(alertID string, alertType AlertType, severity Severity, hospitalID string, location GeoPoint, message string, requirements []AlertRequirement, audience TargetAudience, expiresAt time.Time) (*EmergencyAlert, error) {
	if !alertType.IsValid() {
		return nil, fmt.Errorf("%w: alert type %q", ErrInvalidRequirement, alertType)
	}
	if !severity.IsValid() {
		return nil, fmt.Errorf("%w: severity %q", ErrInvalidRequirement, severity)
	}
	if len(requirements) == 0 {
		return nil, fmt.Errorf("%w: at least one requirement line", ErrInvalidRequirement)
	}
	for _, req := range requirements {
		if !req.BloodGroup.IsValid() {
			return nil, ErrInvalidGroup
		}
		if !req.Component.IsValid() {
			return nil, ErrInvalidComponent
		}
		if req.RequiredUnits <= 0 {
			return nil, fmt.Errorf("%w: required units must be positive", ErrInvalidRequirement)
		}
	}
	for _, g := range audience.BloodGroups {
		if !g.IsValid() {
			return nil, ErrInvalidGroup
		}
	}

	now := time.Now()
	if expiresAt.IsZero() {
		expiresAt = now.Add(DefaultAlertLifetime)
	}
	if !expiresAt.After(now) {
		return nil, fmt.Errorf("%w: expiry must be in the future", ErrInvalidRequirement)
	}

	a := &EmergencyAlert{
		AlertID:      alertID,
		AlertType:    alertType,
		Severity:     severity,
		HospitalID:   hospitalID,
		Location:     location,
		Message:      message,
		Requirements: requirements,
		Audience:     audience,
		Status:       AlertStatusActive,
		Responses:    make([]AlertResponse, 0),
		RaisedAt:     now,
		AutoExpireAt: expiresAt,
		UpdatedAt:    now,
		DomainEvents: make([]DomainEvent, 0),
	}

	a.DomainEvents = append(a.DomainEvents, &AlertRaisedEvent{
		AlertID:    alertID,
		AlertType:  alertType,
		Severity:   severity,
		HospitalID: hospitalID,
		ExpiresAt:  expiresAt,
		RaisedAt:   now,
	})

	return a, nil
}

// IsOpen reports whether the alert still accepts responses
func (a *EmergencyAlert) IsOpen() bool {
	return a.Status == AlertStatusActive || a.Status == AlertStatusPartiallyResolved
}

// RecordNotified bumps the notification counter after a broadcast round
func (a *EmergencyAlert) RecordNotified(count int) {
	if count <= 0 {
		return
	}
	a.TotalNotified += count
	a.UpdatedAt = time.Now()
}

func (a *EmergencyAlert) transition(to AlertStatus) {
	from := a.Status
	now := time.Now()
	a.Status = to
	a.UpdatedAt = now
	a.DomainEvents = append(a.DomainEvents, &AlertStatusChangedEvent{
		AlertID:   a.AlertID,
		From:      from,
		To:        to,
		ChangedAt: now,
	})
}

// RecordResponse registers a donor answering the alert. Each donor counts
// once; a confirmed response advances the matching requirement line.
func (a *EmergencyAlert) RecordResponse(donorID string, group BloodGroup, confirmed bool, etaMinutes int, transportMode string) error {
	if !a.IsOpen() {
		return fmt.Errorf("%w: alert %s is %s", ErrAlertNotActive, a.AlertID, a.Status)
	}
	if !group.IsValid() {
		return ErrInvalidGroup
	}
	for _, r := range a.Responses {
		if r.DonorID == donorID {
			return fmt.Errorf("%w: donor %s", ErrDuplicateResponse, donorID)
		}
	}

	now := time.Now()
	a.Responses = append(a.Responses, AlertResponse{
		DonorID:       donorID,
		BloodGroup:    group,
		Confirmed:     confirmed,
		ETAMinutes:    etaMinutes,
		TransportMode: transportMode,
		RespondedAt:   now,
	})
	a.UpdatedAt = now

	a.DomainEvents = append(a.DomainEvents, &AlertResponseEvent{
		AlertID:     a.AlertID,
		DonorID:     donorID,
		RespondedAt: now,
	})

	if confirmed {
		a.creditRequirement(group, ComponentWholeBlood, 1)
		a.reconcile()
	}

	return nil
}

// ApplyFulfilledUnits credits committed reservation units against the
// matching requirement line and reconciles the alert status.
func (a *EmergencyAlert) ApplyFulfilledUnits(group BloodGroup, component Component, units int) error {
	if !a.IsOpen() {
		return fmt.Errorf("%w: alert %s is %s", ErrAlertNotActive, a.AlertID, a.Status)
	}
	if units <= 0 {
		return fmt.Errorf("%w: units must be positive", ErrInvalidRequirement)
	}

	a.creditRequirement(group, component, units)
	a.reconcile()
	a.UpdatedAt = time.Now()
	return nil
}

// creditRequirement spreads units over unfilled requirement lines the donor
// group can serve, exact component match first.
func (a *EmergencyAlert) creditRequirement(group BloodGroup, component Component, units int) {
	for pass := 0; pass < 2 && units > 0; pass++ {
		for i := range a.Requirements {
			req := &a.Requirements[i]
			if pass == 0 && req.Component != component {
				continue
			}
			if req.FulfilledUnits >= req.RequiredUnits {
				continue
			}
			if !CanDonate(group, req.BloodGroup) {
				continue
			}
			take := req.RequiredUnits - req.FulfilledUnits
			if take > units {
				take = units
			}
			req.FulfilledUnits += take
			units -= take
			if units == 0 {
				break
			}
		}
	}
}

// reconcile drives the alert status from its requirement lines
func (a *EmergencyAlert) reconcile() {
	filled := 0
	for _, req := range a.Requirements {
		if req.FulfilledUnits >= req.RequiredUnits {
			filled++
		}
	}

	switch {
	case filled == len(a.Requirements):
		now := time.Now()
		a.transition(AlertStatusResolved)
		a.ResolvedAt = &now
	case filled > 0 && a.Status == AlertStatusActive:
		a.transition(AlertStatusPartiallyResolved)
	}
}

// ConfirmedDonors lists donors who committed to donate
func (a *EmergencyAlert) ConfirmedDonors() []string {
	donors := make([]string, 0)
	for _, r := range a.Responses {
		if r.Confirmed {
			donors = append(donors, r.DonorID)
		}
	}
	return donors
}

// TotalResponded counts donors who answered the broadcast
func (a *EmergencyAlert) TotalResponded() int {
	return len(a.Responses)
}

// PositiveResponses counts confirmed answers
func (a *EmergencyAlert) PositiveResponses() int {
	return len(a.ConfirmedDonors())
}

// ResponseRate is the responded fraction of notified donors
func (a *EmergencyAlert) ResponseRate() float64 {
	if a.TotalNotified == 0 {
		return 0
	}
	return float64(len(a.Responses)) / float64(a.TotalNotified)
}

// Resolve closes the alert manually
func (a *EmergencyAlert) Resolve() error {
	if !a.IsOpen() {
		return fmt.Errorf("%w: alert %s is %s", ErrAlertNotActive, a.AlertID, a.Status)
	}
	now := time.Now()
	a.transition(AlertStatusResolved)
	a.ResolvedAt = &now
	return nil
}

// Cancel withdraws the alert without resolution
func (a *EmergencyAlert) Cancel() error {
	if !a.IsOpen() {
		return fmt.Errorf("%w: alert %s is %s", ErrAlertNotActive, a.AlertID, a.Status)
	}
	a.transition(AlertStatusCancelled)
	return nil
}

// CheckExpiry expires an open alert past its auto-expire deadline.
// Returns true when a transition happened.
func (a *EmergencyAlert) CheckExpiry(now time.Time) bool {
	if !a.IsOpen() {
		return false
	}
	if a.AutoExpireAt.After(now) {
		return false
	}
	a.transition(AlertStatusExpired)
	return true
}

// ClearEvents drains accumulated domain events
func (a *EmergencyAlert) ClearEvents() []DomainEvent {
	events := a.DomainEvents
	a.DomainEvents = make([]DomainEvent, 0)
	return events
}
