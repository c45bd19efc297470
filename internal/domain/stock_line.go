package domain

import (
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InventoryBatch is a discrete collection event's units, carrying its own
// expiry date. Reserved tracks units locked by active reservations.
type InventoryBatch struct {
	BatchID     string    `bson:"batchId" json:"batchId"`
	Units       int       `bson:"units" json:"units"`
	Reserved    int       `bson:"reserved" json:"reserved"`
	CollectedAt time.Time `bson:"collectedAt" json:"collectedAt"`
	ExpiresAt   time.Time `bson:"expiresAt" json:"expiresAt"`
	DonationIDs []string  `bson:"donationIds,omitempty" json:"donationIds,omitempty"`
}

// IsExpired reports whether the batch has passed its expiry date
func (b *InventoryBatch) IsExpired(now time.Time) bool {
	return !b.ExpiresAt.After(now)
}

// BatchLock records units claimed from a specific batch by a reservation.
// Locked units survive expiry sweeps until the reservation resolves.
type BatchLock struct {
	BatchID string `bson:"batchId" json:"batchId"`
	Units   int    `bson:"units" json:"units"`
}

// ConsumedBatch records units physically taken from a batch
type ConsumedBatch struct {
	BatchID string `bson:"batchId" json:"batchId"`
	Units   int    `bson:"units" json:"units"`
}

// ExpiredBatch records units removed from a batch by an expiry sweep
type ExpiredBatch struct {
	BatchID      string
	UnitsRemoved int
}

// StockThresholds hold per-line stock level boundaries
type StockThresholds struct {
	MinimumStock  int `bson:"minimumStock" json:"minimumStock"`
	CriticalLevel int `bson:"criticalLevel" json:"criticalLevel"`
	OptimalLevel  int `bson:"optimalLevel" json:"optimalLevel"`
}

// DefaultThresholds returns the stock thresholds used when a line is
// created by intake without explicit configuration.
func DefaultThresholds() StockThresholds {
	return StockThresholds{
		MinimumStock:  10,
		CriticalLevel: 5,
		OptimalLevel:  50,
	}
}

// StockLine is the aggregate root for one (bank, blood group, component)
// inventory position. It is the unit of mutual exclusion: all reserve,
// commit, release, intake and sweep calls against the same line must be
// serialized by the caller.
type StockLine struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	BankID     string             `bson:"bankId"`
	BloodGroup BloodGroup         `bson:"bloodGroup"`
	Component  Component          `bson:"component"`

	Batches []InventoryBatch `bson:"batches"`

	// Counters: TotalUnits is the sum of batch units, ReservedUnits the sum
	// of batch locks. Available stock is derived per call because it
	// depends on which batches have expired since the last sweep.
	TotalUnits    int `bson:"totalUnits"`
	ReservedUnits int `bson:"reservedUnits"`

	Thresholds StockThresholds `bson:"thresholds"`

	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
	Version   int64     `bson:"version"`

	DomainEvents []DomainEvent `bson:"-"`
}

// NewStockLine creates an empty stock line for a bank position
func NewStockLine(bankID string, group BloodGroup, component Component) (*StockLine, error) {
	if !group.IsValid() {
		return nil, ErrInvalidGroup
	}
	if !component.IsValid() {
		return nil, ErrInvalidComponent
	}

	now := time.Now()
	return &StockLine{
		BankID:       bankID,
		BloodGroup:   group,
		Component:    component,
		Batches:      make([]InventoryBatch, 0),
		Thresholds:   DefaultThresholds(),
		CreatedAt:    now,
		UpdatedAt:    now,
		DomainEvents: make([]DomainEvent, 0),
	}, nil
}

// Key returns the serialization key for this line
func (s *StockLine) Key() string {
	return LineKey(s.BankID, s.BloodGroup, s.Component)
}

// LineKey builds the serialization key for a (bank, group, component) triple
func LineKey(bankID string, group BloodGroup, component Component) string {
	return fmt.Sprintf("%s|%s|%s", bankID, group, component)
}

// AddBatch appends a batch and increases the line totals
func (s *StockLine) AddBatch(batchID string, units int, collectedAt, expiresAt time.Time, donationIDs []string) error {
	if units <= 0 {
		return fmt.Errorf("%w: units must be positive, got %d", ErrInvalidBatch, units)
	}
	if !expiresAt.After(collectedAt) {
		return fmt.Errorf("%w: expiry %s not after collection %s", ErrInvalidBatch,
			expiresAt.Format(time.RFC3339), collectedAt.Format(time.RFC3339))
	}

	s.Batches = append(s.Batches, InventoryBatch{
		BatchID:     batchID,
		Units:       units,
		CollectedAt: collectedAt,
		ExpiresAt:   expiresAt,
		DonationIDs: donationIDs,
	})
	s.TotalUnits += units
	s.UpdatedAt = time.Now()

	s.DomainEvents = append(s.DomainEvents, &BatchReceivedEvent{
		BankID:     s.BankID,
		BloodGroup: s.BloodGroup,
		Component:  s.Component,
		BatchID:    batchID,
		Units:      units,
		ExpiresAt:  expiresAt,
		ReceivedAt: s.UpdatedAt,
	})

	return nil
}

// AvailableUnits returns non-expired unreserved units, clamped at 0
func (s *StockLine) AvailableUnits(now time.Time) int {
	available := 0
	for i := range s.Batches {
		b := &s.Batches[i]
		if b.IsExpired(now) {
			continue
		}
		if free := b.Units - b.Reserved; free > 0 {
			available += free
		}
	}
	return available
}

// sortedEligible returns indexes of non-expired batches in ascending
// expiry order (FIFO-by-expiry), ties broken by batch id for determinism.
func (s *StockLine) sortedEligible(now time.Time) []int {
	idx := make([]int, 0, len(s.Batches))
	for i := range s.Batches {
		if !s.Batches[i].IsExpired(now) {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		ba, bb := s.Batches[idx[a]], s.Batches[idx[b]]
		if !ba.ExpiresAt.Equal(bb.ExpiresAt) {
			return ba.ExpiresAt.Before(bb.ExpiresAt)
		}
		return ba.BatchID < bb.BatchID
	})
	return idx
}

// ReserveUnits locks units against the earliest-expiring batches. The lock
// is all-or-nothing: on ErrInsufficientStock the line is unchanged.
func (s *StockLine) ReserveUnits(units int, now time.Time) ([]BatchLock, error) {
	if units <= 0 {
		return nil, fmt.Errorf("%w: units must be positive, got %d", ErrInvalidBatch, units)
	}

	available := s.AvailableUnits(now)
	if available < units {
		return nil, fmt.Errorf("%w: bank %s %s/%s requested %d available %d",
			ErrInsufficientStock, s.BankID, s.BloodGroup, s.Component, units, available)
	}

	locks := make([]BatchLock, 0, 2)
	remaining := units
	for _, i := range s.sortedEligible(now) {
		b := &s.Batches[i]
		free := b.Units - b.Reserved
		if free <= 0 {
			continue
		}
		take := free
		if take > remaining {
			take = remaining
		}
		b.Reserved += take
		locks = append(locks, BatchLock{BatchID: b.BatchID, Units: take})
		remaining -= take
		if remaining == 0 {
			break
		}
	}

	s.ReservedUnits += units
	s.UpdatedAt = time.Now()
	return locks, nil
}

// CommitLocks consumes previously locked units, decrementing both the
// reserved and total counters. Exhausted batches are dropped.
func (s *StockLine) CommitLocks(locks []BatchLock) ([]ConsumedBatch, error) {
	consumed := make([]ConsumedBatch, 0, len(locks))
	for _, lock := range locks {
		b := s.findBatch(lock.BatchID)
		if b == nil || b.Reserved < lock.Units {
			return nil, fmt.Errorf("%w: batch %s does not hold %d locked units",
				ErrUnknownReservation, lock.BatchID, lock.Units)
		}
	}

	total := 0
	for _, lock := range locks {
		b := s.findBatch(lock.BatchID)
		b.Units -= lock.Units
		b.Reserved -= lock.Units
		consumed = append(consumed, ConsumedBatch{BatchID: lock.BatchID, Units: lock.Units})
		total += lock.Units
	}

	s.TotalUnits -= total
	s.ReservedUnits -= total
	s.dropEmptyBatches()
	s.UpdatedAt = time.Now()
	return consumed, nil
}

// ReleaseLocks returns locked units to availability. Units on batches that
// expired while locked are reclaimed by the next expiry sweep.
func (s *StockLine) ReleaseLocks(locks []BatchLock) error {
	for _, lock := range locks {
		b := s.findBatch(lock.BatchID)
		if b == nil || b.Reserved < lock.Units {
			return fmt.Errorf("%w: batch %s does not hold %d locked units",
				ErrUnknownReservation, lock.BatchID, lock.Units)
		}
	}

	total := 0
	for _, lock := range locks {
		b := s.findBatch(lock.BatchID)
		b.Reserved -= lock.Units
		total += lock.Units
	}

	s.ReservedUnits -= total
	s.UpdatedAt = time.Now()
	return nil
}

// Consume takes units directly from available stock in FIFO-by-expiry
// order, all-or-nothing. Used for walk-in issue without a reservation.
func (s *StockLine) Consume(units int, now time.Time) ([]ConsumedBatch, error) {
	if units <= 0 {
		return nil, fmt.Errorf("%w: units must be positive, got %d", ErrInvalidBatch, units)
	}

	available := s.AvailableUnits(now)
	if available < units {
		return nil, fmt.Errorf("%w: bank %s %s/%s requested %d available %d",
			ErrInsufficientStock, s.BankID, s.BloodGroup, s.Component, units, available)
	}

	consumed := make([]ConsumedBatch, 0, 2)
	remaining := units
	for _, i := range s.sortedEligible(now) {
		b := &s.Batches[i]
		free := b.Units - b.Reserved
		if free <= 0 {
			continue
		}
		take := free
		if take > remaining {
			take = remaining
		}
		b.Units -= take
		consumed = append(consumed, ConsumedBatch{BatchID: b.BatchID, Units: take})
		remaining -= take
		if remaining == 0 {
			break
		}
	}

	s.TotalUnits -= units
	s.dropEmptyBatches()
	s.UpdatedAt = time.Now()
	return consumed, nil
}

// ExpireSweep removes the unreserved remainder of expired batches.
// Idempotent: units locked by an active reservation are untouched and a
// repeated sweep over the same state removes nothing.
func (s *StockLine) ExpireSweep(now time.Time) []ExpiredBatch {
	var expired []ExpiredBatch
	removedTotal := 0

	for i := range s.Batches {
		b := &s.Batches[i]
		if !b.IsExpired(now) {
			continue
		}
		removed := b.Units - b.Reserved
		if removed <= 0 {
			continue
		}
		b.Units = b.Reserved
		removedTotal += removed
		expired = append(expired, ExpiredBatch{BatchID: b.BatchID, UnitsRemoved: removed})

		s.DomainEvents = append(s.DomainEvents, &BatchExpiredEvent{
			BankID:       s.BankID,
			BloodGroup:   s.BloodGroup,
			Component:    s.Component,
			BatchID:      b.BatchID,
			UnitsRemoved: removed,
			SweptAt:      now,
		})
	}

	if removedTotal > 0 {
		s.TotalUnits -= removedTotal
		s.dropEmptyBatches()
		s.UpdatedAt = time.Now()
	}

	return expired
}

// CheckStockLevel emits a low or critical stock event when availability is
// at or below the configured thresholds. Called after mutations.
func (s *StockLine) CheckStockLevel(now time.Time) {
	available := s.AvailableUnits(now)

	switch {
	case available <= s.Thresholds.CriticalLevel:
		s.DomainEvents = append(s.DomainEvents, &CriticalStockEvent{
			BankID:         s.BankID,
			BloodGroup:     s.BloodGroup,
			Component:      s.Component,
			AvailableUnits: available,
			CriticalLevel:  s.Thresholds.CriticalLevel,
			AlertedAt:      now,
		})
	case available <= s.Thresholds.MinimumStock:
		s.DomainEvents = append(s.DomainEvents, &LowStockEvent{
			BankID:         s.BankID,
			BloodGroup:     s.BloodGroup,
			Component:      s.Component,
			AvailableUnits: available,
			MinimumStock:   s.Thresholds.MinimumStock,
			AlertedAt:      now,
		})
	}
}

// ClearEvents drains accumulated domain events
func (s *StockLine) ClearEvents() []DomainEvent {
	events := s.DomainEvents
	s.DomainEvents = make([]DomainEvent, 0)
	return events
}

func (s *StockLine) findBatch(batchID string) *InventoryBatch {
	for i := range s.Batches {
		if s.Batches[i].BatchID == batchID {
			return &s.Batches[i]
		}
	}
	return nil
}

func (s *StockLine) dropEmptyBatches() {
	kept := s.Batches[:0]
	for _, b := range s.Batches {
		if b.Units > 0 {
			kept = append(kept, b)
		}
	}
	s.Batches = kept
}
