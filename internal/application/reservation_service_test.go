package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/bloodbank-platform/allocation-service/pkg/errors"

	"github.com/bloodbank-platform/allocation-service/internal/domain"
)

type reservationFixture struct {
	svc          *ReservationService
	lines        *fakeStockLineRepo
	reservations *fakeReservationRepo
	requests     *fakeRequestRepo
	producer     *fakeProducer
}

func newReservationFixture(t *testing.T) *reservationFixture {
	t.Helper()
	lines := newFakeStockLineRepo()
	reservations := newFakeReservationRepo()
	requests := newFakeRequestRepo()
	producer := &fakeProducer{}

	svc := NewReservationService(lines, reservations, requests, testPublisher(producer),
		testMetrics(), NewLineLocks(), &sequentialIDs{prefix: "RES"}, testLogger())

	return &reservationFixture{
		svc:          svc,
		lines:        lines,
		reservations: reservations,
		requests:     requests,
		producer:     producer,
	}
}

func (f *reservationFixture) seedLine(t *testing.T, group domain.BloodGroup, batches ...int) {
	t.Helper()
	line, err := domain.NewStockLine("BANK-001", group, domain.ComponentRedCells)
	require.NoError(t, err)

	now := time.Now()
	for i, units := range batches {
		require.NoError(t, line.AddBatch(
			string(group)+"-B"+string(rune('1'+i)), units, now,
			now.Add(time.Duration(24*(i+1))*time.Hour), nil))
	}
	line.ClearEvents()
	require.NoError(t, f.lines.Save(context.Background(), line))
}

func (f *reservationFixture) reserve(t *testing.T, units int) *ReservationDTO {
	t.Helper()
	dto, err := f.svc.Reserve(context.Background(), ReserveCommand{
		BankID: "BANK-001", BloodGroup: "O+", Component: "red_cells", Units: units,
	})
	require.NoError(t, err)
	return dto
}

// TestReserve tests claiming units with per-batch locks
func TestReserve(t *testing.T) {
	f := newReservationFixture(t)
	f.seedLine(t, domain.GroupOPos, 3, 4)

	dto := f.reserve(t, 5)
	assert.Equal(t, "RES-001", dto.ReservationID)
	assert.Equal(t, "active", dto.Status)
	require.Len(t, dto.Locks, 2)
	assert.Equal(t, 3, dto.Locks[0].Units)
	assert.Equal(t, 2, dto.Locks[1].Units)
	assert.Contains(t, f.producer.eventTypes(), "donation.reservation.created")

	line := f.lines.lines[domain.LineKey("BANK-001", domain.GroupOPos, domain.ComponentRedCells)]
	assert.Equal(t, 5, line.ReservedUnits)
	assert.Equal(t, 2, line.AvailableUnits(time.Now()))
}

// TestReserveInsufficient tests that a failed claim changes nothing
func TestReserveInsufficient(t *testing.T) {
	f := newReservationFixture(t)
	f.seedLine(t, domain.GroupOPos, 3)

	_, err := f.svc.Reserve(context.Background(), ReserveCommand{
		BankID: "BANK-001", BloodGroup: "O+", Component: "red_cells", Units: 5,
	})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInsufficientStock, appErr.Code)
	assert.Empty(t, f.reservations.reservations)

	line := f.lines.lines[domain.LineKey("BANK-001", domain.GroupOPos, domain.ComponentRedCells)]
	assert.Equal(t, 0, line.ReservedUnits)
}

// TestCommit tests consuming a reservation
func TestCommit(t *testing.T) {
	f := newReservationFixture(t)
	f.seedLine(t, domain.GroupOPos, 3, 4)
	dto := f.reserve(t, 5)

	committed, err := f.svc.Commit(context.Background(), CommitReservationCommand{ReservationID: dto.ReservationID})
	require.NoError(t, err)
	assert.Equal(t, "committed", committed.Status)
	assert.Contains(t, f.producer.eventTypes(), "donation.reservation.committed")
	assert.Contains(t, f.producer.eventTypes(), "donation.stock.issued")

	line := f.lines.lines[domain.LineKey("BANK-001", domain.GroupOPos, domain.ComponentRedCells)]
	assert.Equal(t, 2, line.TotalUnits)
	assert.Equal(t, 0, line.ReservedUnits)

	// double commit is rejected
	_, err = f.svc.Commit(context.Background(), CommitReservationCommand{ReservationID: dto.ReservationID})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidTransition, appErr.Code)
}

// TestRelease tests restoring a reservation's units
func TestRelease(t *testing.T) {
	f := newReservationFixture(t)
	f.seedLine(t, domain.GroupOPos, 8)
	dto := f.reserve(t, 5)

	released, err := f.svc.Release(context.Background(), ReleaseReservationCommand{ReservationID: dto.ReservationID})
	require.NoError(t, err)
	assert.Equal(t, "released", released.Status)

	line := f.lines.lines[domain.LineKey("BANK-001", domain.GroupOPos, domain.ComponentRedCells)]
	assert.Equal(t, 8, line.AvailableUnits(time.Now()))

	// release after release is rejected
	_, err = f.svc.Release(context.Background(), ReleaseReservationCommand{ReservationID: dto.ReservationID})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidTransition, appErr.Code)
}

// staleReservationReads serves a detached copy of one reservation for a
// fixed number of reads, the way a second caller sees the document before
// it acquires the line lock.
type staleReservationReads struct {
	*fakeReservationRepo
	stale      *domain.Reservation
	staleReads int
}

func (s *staleReservationReads) FindByID(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	if s.staleReads > 0 && s.stale != nil && reservationID == s.stale.ReservationID {
		s.staleReads--
		clone := *s.stale
		clone.Locks = append([]domain.BatchLock(nil), s.stale.Locks...)
		return &clone, nil
	}
	return s.fakeReservationRepo.FindByID(ctx, reservationID)
}

func (f *reservationFixture) snapshotReservation(t *testing.T, reservationID string) *domain.Reservation {
	t.Helper()
	r := f.reservations.reservations[reservationID]
	require.NotNil(t, r)
	clone := *r
	clone.Locks = append([]domain.BatchLock(nil), r.Locks...)
	return &clone
}

// TestCommitStaleReservationRead tests that a commit racing another commit
// of the same reservation re-checks its status under the line lock instead
// of trusting the copy read before the lock
func TestCommitStaleReservationRead(t *testing.T) {
	f := newReservationFixture(t)
	stale := &staleReservationReads{fakeReservationRepo: f.reservations}
	f.svc = NewReservationService(f.lines, stale, f.requests, testPublisher(f.producer),
		testMetrics(), NewLineLocks(), &sequentialIDs{prefix: "RES"}, testLogger())

	f.seedLine(t, domain.GroupOPos, 10)
	dto := f.reserve(t, 4)
	snapshot := f.snapshotReservation(t, dto.ReservationID)

	_, err := f.svc.Commit(context.Background(), CommitReservationCommand{ReservationID: dto.ReservationID})
	require.NoError(t, err)

	// the loser of the race read the reservation while it was still active
	stale.stale = snapshot
	stale.staleReads = 1
	_, err = f.svc.Commit(context.Background(), CommitReservationCommand{ReservationID: dto.ReservationID})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidTransition, appErr.Code)

	line := f.lines.lines[domain.LineKey("BANK-001", domain.GroupOPos, domain.ComponentRedCells)]
	assert.Equal(t, 6, line.TotalUnits)
	assert.Equal(t, 0, line.ReservedUnits)
}

// TestReleaseStaleReservationRead tests the same hazard on the release path
func TestReleaseStaleReservationRead(t *testing.T) {
	f := newReservationFixture(t)
	stale := &staleReservationReads{fakeReservationRepo: f.reservations}
	f.svc = NewReservationService(f.lines, stale, f.requests, testPublisher(f.producer),
		testMetrics(), NewLineLocks(), &sequentialIDs{prefix: "RES"}, testLogger())

	f.seedLine(t, domain.GroupOPos, 8)
	dto := f.reserve(t, 5)
	snapshot := f.snapshotReservation(t, dto.ReservationID)

	_, err := f.svc.Release(context.Background(), ReleaseReservationCommand{ReservationID: dto.ReservationID})
	require.NoError(t, err)

	stale.stale = snapshot
	stale.staleReads = 1
	_, err = f.svc.Release(context.Background(), ReleaseReservationCommand{ReservationID: dto.ReservationID})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidTransition, appErr.Code)

	line := f.lines.lines[domain.LineKey("BANK-001", domain.GroupOPos, domain.ComponentRedCells)]
	assert.Equal(t, 8, line.TotalUnits)
	assert.Equal(t, 0, line.ReservedUnits)
	assert.Equal(t, 8, line.AvailableUnits(time.Now()))
}

// TestReserveUpdatesLinkedRequest tests request counters moving with the
// reservation lifecycle
func TestReserveUpdatesLinkedRequest(t *testing.T) {
	f := newReservationFixture(t)
	f.seedLine(t, domain.GroupOPos, 10)

	request, err := domain.NewBloodRequest("REQ-001", "HOSP-001", domain.GeoPoint{Latitude: 19, Longitude: 72},
		domain.GroupOPos, domain.ComponentRedCells, 5, domain.UrgencyUrgent, nil)
	require.NoError(t, err)
	require.NoError(t, request.Activate())
	request.ClearEvents()
	require.NoError(t, f.requests.Save(context.Background(), request))

	dto, err := f.svc.Reserve(context.Background(), ReserveCommand{
		BankID: "BANK-001", BloodGroup: "O+", Component: "red_cells", Units: 5, RequestID: "REQ-001",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, f.requests.requests["REQ-001"].UnitsReserved)

	_, err = f.svc.Commit(context.Background(), CommitReservationCommand{ReservationID: dto.ReservationID})
	require.NoError(t, err)

	updated := f.requests.requests["REQ-001"]
	assert.Equal(t, 5, updated.UnitsCommitted)
	assert.Equal(t, 0, updated.UnitsReserved)
	assert.Equal(t, domain.BloodRequestFulfilled, updated.Status)
}

// TestFulfillFromStock tests walking compatible groups, exact match first
func TestFulfillFromStock(t *testing.T) {
	f := newReservationFixture(t)
	f.seedLine(t, domain.GroupAPos, 2)
	f.seedLine(t, domain.GroupONeg, 10)

	request, err := domain.NewBloodRequest("REQ-001", "HOSP-001", domain.GeoPoint{Latitude: 19, Longitude: 72},
		domain.GroupAPos, domain.ComponentRedCells, 5, domain.UrgencyUrgent, nil)
	require.NoError(t, err)
	require.NoError(t, request.Activate())
	request.ClearEvents()
	require.NoError(t, f.requests.Save(context.Background(), request))

	reservations, err := f.svc.FulfillFromStock(context.Background(), FulfillFromStockCommand{
		RequestID: "REQ-001", BankID: "BANK-001",
	})
	require.NoError(t, err)
	require.Len(t, reservations, 2)
	assert.Equal(t, "A+", reservations[0].BloodGroup)
	assert.Equal(t, 2, reservations[0].Units)
	assert.Equal(t, "O-", reservations[1].BloodGroup)
	assert.Equal(t, 3, reservations[1].Units)
	assert.Equal(t, 5, f.requests.requests["REQ-001"].UnitsReserved)
}

// TestFulfillFromStockNoStock tests the empty-ledger rejection
func TestFulfillFromStockNoStock(t *testing.T) {
	f := newReservationFixture(t)

	request, err := domain.NewBloodRequest("REQ-001", "HOSP-001", domain.GeoPoint{Latitude: 19, Longitude: 72},
		domain.GroupAPos, domain.ComponentRedCells, 5, domain.UrgencyUrgent, nil)
	require.NoError(t, err)
	require.NoError(t, f.requests.Save(context.Background(), request))

	_, err = f.svc.FulfillFromStock(context.Background(), FulfillFromStockCommand{
		RequestID: "REQ-001", BankID: "BANK-001",
	})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInsufficientStock, appErr.Code)
}

// TestTimeoutSweep tests auto-release of overdue reservations
func TestTimeoutSweep(t *testing.T) {
	f := newReservationFixture(t)
	f.seedLine(t, domain.GroupOPos, 10)

	dto, err := f.svc.Reserve(context.Background(), ReserveCommand{
		BankID: "BANK-001", BloodGroup: "O+", Component: "red_cells", Units: 4,
		Timeout: time.Nanosecond,
	})
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	released, err := f.svc.RunTimeoutSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, domain.ReservationStatusExpired, f.reservations.reservations[dto.ReservationID].Status)
	assert.Contains(t, f.producer.eventTypes(), "donation.reservation.expired")

	line := f.lines.lines[domain.LineKey("BANK-001", domain.GroupOPos, domain.ComponentRedCells)]
	assert.Equal(t, 10, line.AvailableUnits(time.Now()))
}
