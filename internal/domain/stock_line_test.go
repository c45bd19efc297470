package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLine(t *testing.T) *StockLine {
	t.Helper()
	line, err := NewStockLine("BANK-001", GroupOPos, ComponentRedCells)
	require.NoError(t, err)
	return line
}

// TestNewStockLine tests stock line creation
func TestNewStockLine(t *testing.T) {
	line := testLine(t)
	assert.Equal(t, "BANK-001", line.BankID)
	assert.Equal(t, GroupOPos, line.BloodGroup)
	assert.Equal(t, ComponentRedCells, line.Component)
	assert.Equal(t, 0, line.TotalUnits)
	assert.Equal(t, DefaultThresholds(), line.Thresholds)

	_, err := NewStockLine("BANK-001", BloodGroup("X+"), ComponentRedCells)
	assert.ErrorIs(t, err, ErrInvalidGroup)

	_, err = NewStockLine("BANK-001", GroupOPos, Component("serum"))
	assert.ErrorIs(t, err, ErrInvalidComponent)
}

// TestAddBatch tests batch intake
func TestAddBatch(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name        string
		units       int
		collectedAt time.Time
		expiresAt   time.Time
		expectError error
	}{
		{"valid batch", 10, now, now.Add(42 * 24 * time.Hour), nil},
		{"zero units", 0, now, now.Add(time.Hour), ErrInvalidBatch},
		{"negative units", -5, now, now.Add(time.Hour), ErrInvalidBatch},
		{"expiry before collection", 10, now, now.Add(-time.Hour), ErrInvalidBatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := testLine(t)
			err := line.AddBatch("BATCH-1", tt.units, tt.collectedAt, tt.expiresAt, nil)

			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.Equal(t, 0, line.TotalUnits)
				assert.Empty(t, line.DomainEvents)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.units, line.TotalUnits)
				require.Len(t, line.DomainEvents, 1)
				assert.Equal(t, "donation.stock.batch-added", line.DomainEvents[0].EventType())
			}
		})
	}
}

// TestAvailableUnits tests that expired batches are excluded from availability
func TestAvailableUnits(t *testing.T) {
	now := time.Now()
	line := testLine(t)
	require.NoError(t, line.AddBatch("FRESH", 10, now.Add(-24*time.Hour), now.Add(24*time.Hour), nil))
	require.NoError(t, line.AddBatch("STALE", 7, now.Add(-48*time.Hour), now.Add(-time.Minute), nil))

	assert.Equal(t, 10, line.AvailableUnits(now))
	assert.Equal(t, 17, line.TotalUnits)
}

// TestReserveUnitsFIFO tests that locks land on the earliest-expiring batches
func TestReserveUnitsFIFO(t *testing.T) {
	now := time.Now()
	line := testLine(t)
	require.NoError(t, line.AddBatch("LATER", 4, now, now.Add(72*time.Hour), nil))
	require.NoError(t, line.AddBatch("SOONER", 3, now, now.Add(24*time.Hour), nil))

	locks, err := line.ReserveUnits(5, now)
	require.NoError(t, err)

	require.Len(t, locks, 2)
	assert.Equal(t, BatchLock{BatchID: "SOONER", Units: 3}, locks[0])
	assert.Equal(t, BatchLock{BatchID: "LATER", Units: 2}, locks[1])
	assert.Equal(t, 5, line.ReservedUnits)
	assert.Equal(t, 2, line.AvailableUnits(now))
}

// TestReserveUnitsInsufficient tests that a failed reserve leaves the line unchanged
func TestReserveUnitsInsufficient(t *testing.T) {
	now := time.Now()
	line := testLine(t)
	require.NoError(t, line.AddBatch("BATCH-1", 4, now, now.Add(24*time.Hour), nil))

	_, err := line.ReserveUnits(5, now)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 0, line.ReservedUnits)
	assert.Equal(t, 4, line.AvailableUnits(now))
	assert.Equal(t, 0, line.Batches[0].Reserved)
}

// TestCommitLocks tests consuming reserved units across two batches
func TestCommitLocks(t *testing.T) {
	now := time.Now()
	line := testLine(t)
	require.NoError(t, line.AddBatch("A", 3, now, now.Add(24*time.Hour), nil))
	require.NoError(t, line.AddBatch("B", 4, now, now.Add(48*time.Hour), nil))

	locks, err := line.ReserveUnits(5, now)
	require.NoError(t, err)

	consumed, err := line.CommitLocks(locks)
	require.NoError(t, err)
	assert.Len(t, consumed, 2)
	assert.Equal(t, 2, line.TotalUnits)
	assert.Equal(t, 0, line.ReservedUnits)
	assert.Equal(t, 2, line.AvailableUnits(now))

	// batch A was fully consumed and dropped
	require.Len(t, line.Batches, 1)
	assert.Equal(t, "B", line.Batches[0].BatchID)
}

// TestCommitLocksUnknownBatch tests rejection of locks the line does not hold
func TestCommitLocksUnknownBatch(t *testing.T) {
	now := time.Now()
	line := testLine(t)
	require.NoError(t, line.AddBatch("A", 3, now, now.Add(24*time.Hour), nil))

	_, err := line.CommitLocks([]BatchLock{{BatchID: "GHOST", Units: 1}})
	assert.ErrorIs(t, err, ErrUnknownReservation)
	assert.Equal(t, 3, line.TotalUnits)
}

// TestReleaseLocks tests that a release restores exactly the locked units
func TestReleaseLocks(t *testing.T) {
	now := time.Now()
	line := testLine(t)
	require.NoError(t, line.AddBatch("A", 8, now, now.Add(24*time.Hour), nil))

	locks, err := line.ReserveUnits(5, now)
	require.NoError(t, err)
	assert.Equal(t, 3, line.AvailableUnits(now))

	require.NoError(t, line.ReleaseLocks(locks))
	assert.Equal(t, 8, line.AvailableUnits(now))
	assert.Equal(t, 0, line.ReservedUnits)
	assert.Equal(t, 8, line.TotalUnits)
}

// TestConsume tests direct walk-in issue
func TestConsume(t *testing.T) {
	now := time.Now()
	line := testLine(t)
	require.NoError(t, line.AddBatch("SOONER", 3, now, now.Add(24*time.Hour), nil))
	require.NoError(t, line.AddBatch("LATER", 4, now, now.Add(48*time.Hour), nil))

	consumed, err := line.Consume(5, now)
	require.NoError(t, err)
	require.Len(t, consumed, 2)
	assert.Equal(t, ConsumedBatch{BatchID: "SOONER", Units: 3}, consumed[0])
	assert.Equal(t, ConsumedBatch{BatchID: "LATER", Units: 2}, consumed[1])
	assert.Equal(t, 2, line.TotalUnits)

	_, err = line.Consume(3, now)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 2, line.TotalUnits)
}

// TestExpireSweep tests expired unit removal
func TestExpireSweep(t *testing.T) {
	now := time.Now()
	line := testLine(t)
	require.NoError(t, line.AddBatch("STALE", 6, now.Add(-48*time.Hour), now.Add(-time.Hour), nil))
	require.NoError(t, line.AddBatch("FRESH", 4, now, now.Add(48*time.Hour), nil))

	expired := line.ExpireSweep(now)
	require.Len(t, expired, 1)
	assert.Equal(t, ExpiredBatch{BatchID: "STALE", UnitsRemoved: 6}, expired[0])
	assert.Equal(t, 4, line.TotalUnits)
	require.Len(t, line.Batches, 1)

	// repeated sweep over the same state removes nothing
	assert.Empty(t, line.ExpireSweep(now))
	assert.Equal(t, 4, line.TotalUnits)
}

// TestExpireSweepKeepsLockedUnits tests that reserved units survive a sweep
func TestExpireSweepKeepsLockedUnits(t *testing.T) {
	now := time.Now()
	line := testLine(t)
	require.NoError(t, line.AddBatch("A", 6, now.Add(-time.Hour), now.Add(time.Minute), nil))

	locks, err := line.ReserveUnits(4, now)
	require.NoError(t, err)

	// batch expires while the reservation is still active
	later := now.Add(time.Hour)
	expired := line.ExpireSweep(later)
	require.Len(t, expired, 1)
	assert.Equal(t, 2, expired[0].UnitsRemoved)
	assert.Equal(t, 4, line.TotalUnits)
	assert.Equal(t, 4, line.ReservedUnits)

	// committing the locks still works after the sweep
	consumed, err := line.CommitLocks(locks)
	require.NoError(t, err)
	assert.Len(t, consumed, 1)
	assert.Equal(t, 0, line.TotalUnits)
	assert.Empty(t, line.Batches)
}

// TestReleaseThenSweepReclaims tests that released units on an expired batch
// are reclaimed by the next sweep
func TestReleaseThenSweepReclaims(t *testing.T) {
	now := time.Now()
	line := testLine(t)
	require.NoError(t, line.AddBatch("A", 6, now.Add(-time.Hour), now.Add(time.Minute), nil))

	locks, err := line.ReserveUnits(6, now)
	require.NoError(t, err)

	later := now.Add(time.Hour)
	assert.Empty(t, line.ExpireSweep(later))

	require.NoError(t, line.ReleaseLocks(locks))
	expired := line.ExpireSweep(later)
	require.Len(t, expired, 1)
	assert.Equal(t, 6, expired[0].UnitsRemoved)
	assert.Equal(t, 0, line.TotalUnits)
}

// TestCheckStockLevel tests the low and critical stock events
func TestCheckStockLevel(t *testing.T) {
	now := time.Now()

	t.Run("critical", func(t *testing.T) {
		line := testLine(t)
		require.NoError(t, line.AddBatch("A", 5, now, now.Add(24*time.Hour), nil))
		line.ClearEvents()
		line.CheckStockLevel(now)
		require.Len(t, line.DomainEvents, 1)
		assert.Equal(t, "donation.stock.critical-stock-alert", line.DomainEvents[0].EventType())
	})

	t.Run("low", func(t *testing.T) {
		line := testLine(t)
		require.NoError(t, line.AddBatch("A", 10, now, now.Add(24*time.Hour), nil))
		line.ClearEvents()
		line.CheckStockLevel(now)
		require.Len(t, line.DomainEvents, 1)
		assert.Equal(t, "donation.stock.low-stock-alert", line.DomainEvents[0].EventType())
	})

	t.Run("healthy", func(t *testing.T) {
		line := testLine(t)
		require.NoError(t, line.AddBatch("A", 40, now, now.Add(24*time.Hour), nil))
		line.ClearEvents()
		line.CheckStockLevel(now)
		assert.Empty(t, line.DomainEvents)
	})
}

// TestClearEvents tests event draining
func TestClearEvents(t *testing.T) {
	now := time.Now()
	line := testLine(t)
	require.NoError(t, line.AddBatch("A", 10, now, now.Add(24*time.Hour), nil))

	events := line.ClearEvents()
	assert.Len(t, events, 1)
	assert.Empty(t, line.DomainEvents)
}
