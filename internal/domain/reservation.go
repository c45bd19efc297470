package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReservationStatus represents the status of a reservation
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusExpired   ReservationStatus = "expired"
)

// DefaultReservationTimeout is how long a reservation may stay unresolved
// before the sweeper auto-releases it.
const DefaultReservationTimeout = 24 * time.Hour

// Reservation is a temporary claim on available units pending commit or
// release. The per-batch locks pin the claimed units so a later expiry
// sweep cannot remove them.
type Reservation struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	ReservationID string             `bson:"reservationId"`
	RequestID     string             `bson:"requestId,omitempty"`

	BankID     string     `bson:"bankId"`
	BloodGroup BloodGroup `bson:"bloodGroup"`
	Component  Component  `bson:"component"`
	Units      int        `bson:"units"`

	Locks  []BatchLock       `bson:"locks"`
	Status ReservationStatus `bson:"status"`

	CreatedAt  time.Time  `bson:"createdAt"`
	ExpiresAt  time.Time  `bson:"expiresAt"`
	UpdatedAt  time.Time  `bson:"updatedAt"`
	ResolvedAt *time.Time `bson:"resolvedAt,omitempty"`

	DomainEvents []DomainEvent `bson:"-"`
}

// NewReservation creates an active reservation for locked units
func NewReservation(reservationID, requestID, bankID string, group BloodGroup, component Component, units int, locks []BatchLock, timeout time.Duration) *Reservation {
	if timeout <= 0 {
		timeout = DefaultReservationTimeout
	}

	now := time.Now()
	r := &Reservation{
		ReservationID: reservationID,
		RequestID:     requestID,
		BankID:        bankID,
		BloodGroup:    group,
		Component:     component,
		Units:         units,
		Locks:         locks,
		Status:        ReservationStatusActive,
		CreatedAt:     now,
		ExpiresAt:     now.Add(timeout),
		UpdatedAt:     now,
		DomainEvents:  make([]DomainEvent, 0),
	}

	r.DomainEvents = append(r.DomainEvents, &ReservationCreatedEvent{
		ReservationID: reservationID,
		RequestID:     requestID,
		BankID:        bankID,
		BloodGroup:    group,
		Component:     component,
		Units:         units,
		ExpiresAt:     r.ExpiresAt,
		CreatedAt:     now,
	})

	return r
}

// IsActive reports whether the reservation can still be committed or released
func (r *Reservation) IsActive() bool {
	return r.Status == ReservationStatusActive
}

// IsOverdue reports whether an active reservation has outlived its timeout
func (r *Reservation) IsOverdue(now time.Time) bool {
	return r.Status == ReservationStatusActive && !r.ExpiresAt.After(now)
}

// MarkCommitted resolves the reservation as committed
func (r *Reservation) MarkCommitted() error {
	if r.Status != ReservationStatusActive {
		return ErrUnknownReservation
	}

	now := time.Now()
	r.Status = ReservationStatusCommitted
	r.UpdatedAt = now
	r.ResolvedAt = &now

	r.DomainEvents = append(r.DomainEvents, &ReservationCommittedEvent{
		ReservationID: r.ReservationID,
		RequestID:     r.RequestID,
		BankID:        r.BankID,
		BloodGroup:    r.BloodGroup,
		Component:     r.Component,
		Units:         r.Units,
		CommittedAt:   now,
	})

	return nil
}

// MarkReleased resolves the reservation as released. expired distinguishes
// a sweeper timeout release from a caller-driven one.
func (r *Reservation) MarkReleased(expired bool) error {
	if r.Status != ReservationStatusActive {
		return ErrUnknownReservation
	}

	now := time.Now()
	if expired {
		r.Status = ReservationStatusExpired
	} else {
		r.Status = ReservationStatusReleased
	}
	r.UpdatedAt = now
	r.ResolvedAt = &now

	r.DomainEvents = append(r.DomainEvents, &ReservationReleasedEvent{
		ReservationID: r.ReservationID,
		RequestID:     r.RequestID,
		BankID:        r.BankID,
		BloodGroup:    r.BloodGroup,
		Component:     r.Component,
		Units:         r.Units,
		Expired:       expired,
		ReleasedAt:    now,
	})

	return nil
}

// ClearEvents drains accumulated domain events
func (r *Reservation) ClearEvents() []DomainEvent {
	events := r.DomainEvents
	r.DomainEvents = make([]DomainEvent, 0)
	return events
}
