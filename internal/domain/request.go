package domain

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RequestKind distinguishes blood from organ requests
type RequestKind string

const (
	RequestKindBlood RequestKind = "blood"
	RequestKindOrgan RequestKind = "organ"
)

// Blood request statuses
const (
	BloodRequestPending            = "pending"
	BloodRequestActive             = "active"
	BloodRequestPartiallyFulfilled = "partially_fulfilled"
	BloodRequestFulfilled          = "fulfilled"
	BloodRequestCancelled          = "cancelled"
	BloodRequestExpired            = "expired"
)

// Organ request statuses
const (
	OrganRequestWaitlisted          = "waitlisted"
	OrganRequestActive              = "active"
	OrganRequestMatchFound          = "match_found"
	OrganRequestTransplantScheduled = "transplant_scheduled"
	OrganRequestTransplanted        = "transplanted"
	OrganRequestCancelled           = "cancelled"
	OrganRequestDeceased            = "deceased"
)

// MatchResponse represents a donor's answer to a contact attempt
type MatchResponse string

const (
	MatchNotContacted MatchResponse = "not_contacted"
	MatchContacted    MatchResponse = "contacted"
	MatchAccepted     MatchResponse = "accepted"
	MatchDeclined     MatchResponse = "declined"
	MatchNoResponse   MatchResponse = "no_response"
)

// DonorMatch is a scored candidate attached to a request. Matches are a
// historical record and are never deleted.
type DonorMatch struct {
	DonorID     string        `bson:"donorId" json:"donorId"`
	BloodGroup  BloodGroup    `bson:"bloodGroup" json:"bloodGroup"`
	Score       float64       `bson:"score" json:"score"`
	DistanceKm  float64       `bson:"distanceKm" json:"distanceKm"`
	Response    MatchResponse `bson:"response" json:"response"`
	ContactedAt *time.Time    `bson:"contactedAt,omitempty" json:"contactedAt,omitempty"`
	RespondedAt *time.Time    `bson:"respondedAt,omitempty" json:"respondedAt,omitempty"`
	CreatedAt   time.Time     `bson:"createdAt" json:"createdAt"`
}

// StatusChange is a timestamped entry in a request's status history
type StatusChange struct {
	From      string    `bson:"from" json:"from"`
	To        string    `bson:"to" json:"to"`
	Note      string    `bson:"note,omitempty" json:"note,omitempty"`
	ChangedAt time.Time `bson:"changedAt" json:"changedAt"`
}

// OrganCriteria holds organ-specific matching constraints
type OrganCriteria struct {
	OrganType          OrganType `bson:"organType" json:"organType"`
	MinAge             int       `bson:"minAge" json:"minAge"`
	MaxAge             int       `bson:"maxAge" json:"maxAge"`
	MinWeightKg        float64   `bson:"minWeightKg" json:"minWeightKg"`
	MaxWeightKg        float64   `bson:"maxWeightKg" json:"maxWeightKg"`
	MinHeightCm        float64   `bson:"minHeightCm" json:"minHeightCm"`
	MaxHeightCm        float64   `bson:"maxHeightCm" json:"maxHeightCm"`
	HLAMatchLevel      string    `bson:"hlaMatchLevel,omitempty" json:"hlaMatchLevel,omitempty"`
	CrossmatchRequired bool      `bson:"crossmatchRequired" json:"crossmatchRequired"`
}

// DonationRequest is the aggregate root for a blood or organ request.
// CompatibleGroups is computed once at creation and frozen thereafter;
// a later blood-group correction does not refresh it.
type DonationRequest struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	RequestID string             `bson:"requestId"`
	Kind      RequestKind        `bson:"kind"`

	HospitalID string   `bson:"hospitalId"`
	Location   GeoPoint `bson:"location"`

	PatientBloodGroup BloodGroup   `bson:"patientBloodGroup"`
	CompatibleGroups  []BloodGroup `bson:"compatibleGroups"`

	// Blood request fields
	Component     Component `bson:"component,omitempty"`
	RequiredUnits int       `bson:"requiredUnits,omitempty"`

	// Organ request fields
	Organ *OrganCriteria `bson:"organ,omitempty"`

	Urgency    Urgency    `bson:"urgency"`
	RequiredBy *time.Time `bson:"requiredBy,omitempty"`

	Status        string         `bson:"status"`
	StatusHistory []StatusChange `bson:"statusHistory"`
	Matches       []DonorMatch   `bson:"matches"`

	UnitsReserved  int `bson:"unitsReserved"`
	UnitsCommitted int `bson:"unitsCommitted"`

	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
	Version   int64     `bson:"version"`

	DomainEvents []DomainEvent `bson:"-"`
}

// NewBloodRequest creates a pending blood request with its compatibility
// set frozen at creation time.
func NewBloodRequest(requestID, hospitalID string, location GeoPoint, group BloodGroup, component Component, requiredUnits int, urgency Urgency, requiredBy *time.Time) (*DonationRequest, error) {
	if !group.IsValid() {
		return nil, ErrInvalidGroup
	}
	if !component.IsValid() {
		return nil, ErrInvalidComponent
	}
	if requiredUnits <= 0 {
		return nil, fmt.Errorf("%w: required units must be positive", ErrInvalidBatch)
	}
	if !urgency.IsValidForBlood() {
		return nil, fmt.Errorf("%w: urgency %q", ErrInvalidTransition, urgency)
	}

	compatible, err := CompatibleDonors(group)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	r := &DonationRequest{
		RequestID:         requestID,
		Kind:              RequestKindBlood,
		HospitalID:        hospitalID,
		Location:          location,
		PatientBloodGroup: group,
		CompatibleGroups:  compatible,
		Component:         component,
		RequiredUnits:     requiredUnits,
		Urgency:           urgency,
		RequiredBy:        requiredBy,
		Status:            BloodRequestPending,
		StatusHistory:     make([]StatusChange, 0),
		Matches:           make([]DonorMatch, 0),
		CreatedAt:         now,
		UpdatedAt:         now,
		DomainEvents:      make([]DomainEvent, 0),
	}

	r.DomainEvents = append(r.DomainEvents, &RequestCreatedEvent{
		RequestID:  requestID,
		Kind:       string(RequestKindBlood),
		HospitalID: hospitalID,
		Urgency:    urgency,
		CreatedAt:  now,
	})

	return r, nil
}

// NewOrganRequest creates a waitlisted organ request
func NewOrganRequest(requestID, hospitalID string, location GeoPoint, group BloodGroup, criteria OrganCriteria, urgency Urgency, requiredBy *time.Time) (*DonationRequest, error) {
	if !group.IsValid() {
		return nil, ErrInvalidGroup
	}
	if !criteria.OrganType.IsValid() {
		return nil, ErrInvalidOrganType
	}
	if !urgency.IsValidForOrgan() {
		return nil, fmt.Errorf("%w: urgency %q", ErrInvalidTransition, urgency)
	}

	compatible, err := CompatibleDonors(group)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	criteriaCopy := criteria
	r := &DonationRequest{
		RequestID:         requestID,
		Kind:              RequestKindOrgan,
		HospitalID:        hospitalID,
		Location:          location,
		PatientBloodGroup: group,
		CompatibleGroups:  compatible,
		Organ:             &criteriaCopy,
		Urgency:           urgency,
		RequiredBy:        requiredBy,
		Status:            OrganRequestWaitlisted,
		StatusHistory:     make([]StatusChange, 0),
		Matches:           make([]DonorMatch, 0),
		CreatedAt:         now,
		UpdatedAt:         now,
		DomainEvents:      make([]DomainEvent, 0),
	}

	r.DomainEvents = append(r.DomainEvents, &RequestCreatedEvent{
		RequestID:  requestID,
		Kind:       string(RequestKindOrgan),
		HospitalID: hospitalID,
		Urgency:    urgency,
		CreatedAt:  now,
	})

	return r, nil
}

// IsTerminal reports whether the request reached a final status
func (r *DonationRequest) IsTerminal() bool {
	if r.Kind == RequestKindOrgan {
		switch r.Status {
		case OrganRequestTransplanted, OrganRequestCancelled, OrganRequestDeceased:
			return true
		}
		return false
	}

	switch r.Status {
	case BloodRequestFulfilled, BloodRequestCancelled, BloodRequestExpired:
		return true
	}
	return false
}

func (r *DonationRequest) transition(to, note string) {
	from := r.Status
	now := time.Now()
	r.Status = to
	r.UpdatedAt = now
	r.StatusHistory = append(r.StatusHistory, StatusChange{
		From:      from,
		To:        to,
		Note:      note,
		ChangedAt: now,
	})
	r.DomainEvents = append(r.DomainEvents, &RequestStatusChangedEvent{
		RequestID: r.RequestID,
		Kind:      string(r.Kind),
		From:      from,
		To:        to,
		ChangedAt: now,
	})
}

// Activate moves a fresh request into matching
func (r *DonationRequest) Activate() error {
	switch {
	case r.Kind == RequestKindBlood && r.Status == BloodRequestPending:
		r.transition(BloodRequestActive, "")
	case r.Kind == RequestKindOrgan && r.Status == OrganRequestWaitlisted:
		r.transition(OrganRequestActive, "")
	default:
		return fmt.Errorf("%w: %s", ErrInvalidTransition, r.Status)
	}
	return nil
}

// RecordMatches persists scored candidates on the request. An organ request
// with at least one candidate advances to match_found.
func (r *DonationRequest) RecordMatches(matches []DonorMatch) error {
	if r.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, r.Status)
	}

	now := time.Now()
	for _, m := range matches {
		m.Response = MatchNotContacted
		m.CreatedAt = now
		r.Matches = append(r.Matches, m)

		r.DomainEvents = append(r.DomainEvents, &DonorMatchRecordedEvent{
			RequestID:  r.RequestID,
			DonorID:    m.DonorID,
			Score:      m.Score,
			DistanceKm: m.DistanceKm,
			MatchedAt:  now,
		})
	}
	r.UpdatedAt = now

	if r.Kind == RequestKindOrgan && r.Status == OrganRequestActive && len(matches) > 0 {
		r.transition(OrganRequestMatchFound, "")
	}

	return nil
}

func (r *DonationRequest) findMatch(donorID string) *DonorMatch {
	for i := range r.Matches {
		if r.Matches[i].DonorID == donorID {
			return &r.Matches[i]
		}
	}
	return nil
}

// MarkContacted records a contact attempt against a matched donor
func (r *DonationRequest) MarkContacted(donorID string) error {
	m := r.findMatch(donorID)
	if m == nil {
		return ErrUnknownDonorMatch
	}
	if m.Response != MatchNotContacted {
		return fmt.Errorf("%w: donor %s already %s", ErrDuplicateResponse, donorID, m.Response)
	}

	now := time.Now()
	m.Response = MatchContacted
	m.ContactedAt = &now
	r.UpdatedAt = now
	return nil
}

// RecordDonorResponse records a contacted donor's answer
func (r *DonationRequest) RecordDonorResponse(donorID string, response MatchResponse) error {
	switch response {
	case MatchAccepted, MatchDeclined, MatchNoResponse:
	default:
		return fmt.Errorf("%w: response %q", ErrDuplicateResponse, response)
	}

	m := r.findMatch(donorID)
	if m == nil {
		return ErrUnknownDonorMatch
	}
	if m.Response != MatchContacted {
		return fmt.Errorf("%w: donor %s is %s", ErrDuplicateResponse, donorID, m.Response)
	}

	now := time.Now()
	m.Response = response
	m.RespondedAt = &now
	r.UpdatedAt = now

	r.DomainEvents = append(r.DomainEvents, &DonorRespondedEvent{
		RequestID:   r.RequestID,
		DonorID:     donorID,
		Response:    string(response),
		RespondedAt: now,
	})

	return nil
}

// ApplyReserved tracks units claimed on behalf of this request
func (r *DonationRequest) ApplyReserved(units int) {
	r.UnitsReserved += units
	r.UpdatedAt = time.Now()
}

// ApplyReleased returns previously claimed units
func (r *DonationRequest) ApplyReleased(units int) {
	r.UnitsReserved -= units
	if r.UnitsReserved < 0 {
		r.UnitsReserved = 0
	}
	r.UpdatedAt = time.Now()
}

// ApplyCommitted records consumed units and drives the fulfillment status.
// Committed units meeting requiredUnits fulfill the request; fewer leave it
// partially fulfilled.
func (r *DonationRequest) ApplyCommitted(units int) error {
	if r.Kind != RequestKindBlood {
		return fmt.Errorf("%w: organ requests are fulfilled by transplant", ErrInvalidTransition)
	}
	if r.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, r.Status)
	}

	r.UnitsCommitted += units
	r.UnitsReserved -= units
	if r.UnitsReserved < 0 {
		r.UnitsReserved = 0
	}

	switch {
	case r.UnitsCommitted >= r.RequiredUnits:
		r.transition(BloodRequestFulfilled, "")
	case r.UnitsCommitted > 0:
		if r.Status != BloodRequestPartiallyFulfilled {
			r.transition(BloodRequestPartiallyFulfilled, "")
		} else {
			r.UpdatedAt = time.Now()
		}
	}

	return nil
}

// ScheduleTransplant advances a matched organ request
func (r *DonationRequest) ScheduleTransplant(note string) error {
	if r.Kind != RequestKindOrgan || r.Status != OrganRequestMatchFound {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, r.Status)
	}
	r.transition(OrganRequestTransplantScheduled, note)
	return nil
}

// MarkTransplanted closes a scheduled organ request as completed
func (r *DonationRequest) MarkTransplanted(note string) error {
	if r.Kind != RequestKindOrgan || r.Status != OrganRequestTransplantScheduled {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, r.Status)
	}
	r.transition(OrganRequestTransplanted, note)
	return nil
}

// MarkDeceased closes an organ request after patient death
func (r *DonationRequest) MarkDeceased(note string) error {
	if r.Kind != RequestKindOrgan || r.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, r.Status)
	}
	r.transition(OrganRequestDeceased, note)
	return nil
}

// Cancel closes the request from any non-terminal state
func (r *DonationRequest) Cancel(note string) error {
	if r.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, r.Status)
	}
	if r.Kind == RequestKindOrgan {
		r.transition(OrganRequestCancelled, note)
	} else {
		r.transition(BloodRequestCancelled, note)
	}
	return nil
}

// CheckExpiry lazily expires a blood request whose requiredBy deadline has
// passed without fulfillment. Returns true when a transition happened.
func (r *DonationRequest) CheckExpiry(now time.Time) bool {
	if r.Kind != RequestKindBlood || r.RequiredBy == nil || r.IsTerminal() {
		return false
	}
	if r.RequiredBy.After(now) {
		return false
	}
	r.transition(BloodRequestExpired, "requiredBy deadline passed")
	return true
}

// ClearEvents drains accumulated domain events
func (r *DonationRequest) ClearEvents() []DomainEvent {
	events := r.DomainEvents
	r.DomainEvents = make([]DomainEvent, 0)
	return events
}
