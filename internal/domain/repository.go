package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StockLineFilter narrows ledger listings
type StockLineFilter struct {
	BankID     string
	BloodGroup BloodGroup
	Component  Component
}

// RequestFilter narrows request listings
type RequestFilter struct {
	Kind       RequestKind
	HospitalID string
	Status     string
	Urgency    Urgency
}

// StockLineRepository persists stock line aggregates
type StockLineRepository interface {
	Save(ctx context.Context, line *StockLine) error
	FindByKey(ctx context.Context, bankID string, group BloodGroup, component Component) (*StockLine, error)
	FindByBank(ctx context.Context, bankID string) ([]*StockLine, error)
	List(ctx context.Context, filter StockLineFilter, offset, limit int) ([]*StockLine, int64, error)
	FindWithExpiredBatches(ctx context.Context, now time.Time) ([]*StockLine, error)
	FindLowStock(ctx context.Context) ([]*StockLine, error)
}

// ReservationRepository persists reservation aggregates
type ReservationRepository interface {
	Save(ctx context.Context, reservation *Reservation) error
	FindByID(ctx context.Context, reservationID string) (*Reservation, error)
	FindActiveByRequest(ctx context.Context, requestID string) ([]*Reservation, error)
	FindOverdue(ctx context.Context, now time.Time) ([]*Reservation, error)
	List(ctx context.Context, bankID string, status ReservationStatus, offset, limit int) ([]*Reservation, int64, error)
}

// RequestRepository persists blood and organ request aggregates
type RequestRepository interface {
	Save(ctx context.Context, request *DonationRequest) error
	FindByID(ctx context.Context, requestID string) (*DonationRequest, error)
	List(ctx context.Context, filter RequestFilter, offset, limit int) ([]*DonationRequest, int64, error)
	FindExpiredBlood(ctx context.Context, now time.Time) ([]*DonationRequest, error)
}

// DonorRepository reads the donor registry projection
type DonorRepository interface {
	FindByID(ctx context.Context, donorID string) (*Donor, error)
	FindByGroups(ctx context.Context, groups []BloodGroup) ([]*Donor, error)
	FindOrganDonorsByGroups(ctx context.Context, groups []BloodGroup) ([]*Donor, error)
}

// AlertRepository persists emergency alert aggregates
type AlertRepository interface {
	Save(ctx context.Context, alert *EmergencyAlert) error
	FindByID(ctx context.Context, alertID string) (*EmergencyAlert, error)
	FindOpen(ctx context.Context) ([]*EmergencyAlert, error)
	FindExpired(ctx context.Context, now time.Time) ([]*EmergencyAlert, error)
	List(ctx context.Context, hospitalID string, status AlertStatus, offset, limit int) ([]*EmergencyAlert, int64, error)
}

// IDGenerator issues identifiers for new aggregates
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator issues random UUIDs
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.New().String() }
