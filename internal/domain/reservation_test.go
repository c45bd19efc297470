package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReservation() *Reservation {
	locks := []BatchLock{{BatchID: "BATCH-1", Units: 3}, {BatchID: "BATCH-2", Units: 2}}
	return NewReservation("RES-001", "REQ-001", "BANK-001", GroupAPos, ComponentPlasma, 5, locks, 0)
}

// TestNewReservation tests reservation creation with the default timeout
func TestNewReservation(t *testing.T) {
	r := testReservation()

	assert.Equal(t, ReservationStatusActive, r.Status)
	assert.Equal(t, 5, r.Units)
	assert.Len(t, r.Locks, 2)
	assert.WithinDuration(t, r.CreatedAt.Add(DefaultReservationTimeout), r.ExpiresAt, time.Second)
	require.Len(t, r.DomainEvents, 1)
	assert.Equal(t, "donation.reservation.created", r.DomainEvents[0].EventType())
}

// TestReservationCommit tests the active to committed transition
func TestReservationCommit(t *testing.T) {
	r := testReservation()
	r.ClearEvents()

	require.NoError(t, r.MarkCommitted())
	assert.Equal(t, ReservationStatusCommitted, r.Status)
	require.NotNil(t, r.ResolvedAt)
	require.Len(t, r.DomainEvents, 1)
	assert.Equal(t, "donation.reservation.committed", r.DomainEvents[0].EventType())

	assert.ErrorIs(t, r.MarkCommitted(), ErrUnknownReservation)
	assert.ErrorIs(t, r.MarkReleased(false), ErrUnknownReservation)
}

// TestReservationRelease tests caller and sweeper releases
func TestReservationRelease(t *testing.T) {
	tests := []struct {
		name       string
		expired    bool
		wantStatus ReservationStatus
		wantEvent  string
	}{
		{"caller release", false, ReservationStatusReleased, "donation.reservation.released"},
		{"sweeper timeout", true, ReservationStatusExpired, "donation.reservation.expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testReservation()
			r.ClearEvents()

			require.NoError(t, r.MarkReleased(tt.expired))
			assert.Equal(t, tt.wantStatus, r.Status)
			require.Len(t, r.DomainEvents, 1)
			assert.Equal(t, tt.wantEvent, r.DomainEvents[0].EventType())

			assert.ErrorIs(t, r.MarkCommitted(), ErrUnknownReservation)
		})
	}
}

// TestReservationIsOverdue tests timeout detection
func TestReservationIsOverdue(t *testing.T) {
	r := testReservation()

	assert.False(t, r.IsOverdue(time.Now()))
	assert.True(t, r.IsOverdue(r.ExpiresAt.Add(time.Second)))

	require.NoError(t, r.MarkCommitted())
	assert.False(t, r.IsOverdue(r.ExpiresAt.Add(time.Second)))
}
