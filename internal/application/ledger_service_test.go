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

func newLedgerService(repo domain.StockLineRepository, producer *fakeProducer) *LedgerService {
	return NewLedgerService(repo, testPublisher(producer), testMetrics(), NewLineLocks(), testLogger())
}

func validBatchCmd(batchID string, units int) AddBatchCommand {
	now := time.Now()
	return AddBatchCommand{
		BankID:      "BANK-001",
		BloodGroup:  "O+",
		Component:   "red_cells",
		BatchID:     batchID,
		Units:       units,
		CollectedAt: now,
		ExpiresAt:   now.Add(42 * 24 * time.Hour),
	}
}

// TestLedgerAddBatch tests intake creating the line on first batch
func TestLedgerAddBatch(t *testing.T) {
	repo := newFakeStockLineRepo()
	producer := &fakeProducer{}
	svc := newLedgerService(repo, producer)

	dto, err := svc.AddBatch(context.Background(), validBatchCmd("BATCH-1", 20))
	require.NoError(t, err)
	assert.Equal(t, 20, dto.TotalUnits)
	assert.Equal(t, 20, dto.AvailableUnits)
	require.Len(t, repo.lines, 1)
	assert.Contains(t, producer.eventTypes(), "donation.stock.batch-added")

	// second batch lands on the same line
	dto, err = svc.AddBatch(context.Background(), validBatchCmd("BATCH-2", 5))
	require.NoError(t, err)
	assert.Equal(t, 25, dto.TotalUnits)
	require.Len(t, repo.lines, 1)
}

// TestLedgerAddBatchDuplicate tests duplicate batch id rejection
func TestLedgerAddBatchDuplicate(t *testing.T) {
	repo := newFakeStockLineRepo()
	svc := newLedgerService(repo, &fakeProducer{})

	_, err := svc.AddBatch(context.Background(), validBatchCmd("BATCH-1", 20))
	require.NoError(t, err)

	_, err = svc.AddBatch(context.Background(), validBatchCmd("BATCH-1", 5))
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeConflict, appErr.Code)
}

// TestLedgerAddBatchInvalid tests domain validation surfaced as AppError
func TestLedgerAddBatchInvalid(t *testing.T) {
	svc := newLedgerService(newFakeStockLineRepo(), &fakeProducer{})

	cmd := validBatchCmd("BATCH-1", 0)
	_, err := svc.AddBatch(context.Background(), cmd)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeValidationError, appErr.Code)
}

// TestLedgerAddBatchLowStockEvent tests the low stock alert on intake below threshold
func TestLedgerAddBatchLowStockEvent(t *testing.T) {
	producer := &fakeProducer{}
	svc := newLedgerService(newFakeStockLineRepo(), producer)

	_, err := svc.AddBatch(context.Background(), validBatchCmd("BATCH-1", 8))
	require.NoError(t, err)
	assert.Contains(t, producer.eventTypes(), "donation.stock.low-stock-alert")
}

// TestLedgerIssueStock tests direct walk-in issue
func TestLedgerIssueStock(t *testing.T) {
	repo := newFakeStockLineRepo()
	producer := &fakeProducer{}
	svc := newLedgerService(repo, producer)

	_, err := svc.AddBatch(context.Background(), validBatchCmd("BATCH-1", 20))
	require.NoError(t, err)

	consumed, err := svc.IssueStock(context.Background(), IssueStockCommand{
		BankID: "BANK-001", BloodGroup: "O+", Component: "red_cells", Units: 6,
	})
	require.NoError(t, err)
	require.Len(t, consumed, 1)
	assert.Equal(t, 6, consumed[0].Units)
	assert.Contains(t, producer.eventTypes(), "donation.stock.issued")

	// over-draw is rejected and leaves stock unchanged
	_, err = svc.IssueStock(context.Background(), IssueStockCommand{
		BankID: "BANK-001", BloodGroup: "O+", Component: "red_cells", Units: 100,
	})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInsufficientStock, appErr.Code)

	dto, err := svc.GetStockLine(context.Background(), "BANK-001", "O+", "red_cells")
	require.NoError(t, err)
	assert.Equal(t, 14, dto.AvailableUnits)
}

// TestLedgerIssueStockMissingLine tests issue against an unknown position
func TestLedgerIssueStockMissingLine(t *testing.T) {
	svc := newLedgerService(newFakeStockLineRepo(), &fakeProducer{})

	_, err := svc.IssueStock(context.Background(), IssueStockCommand{
		BankID: "BANK-404", BloodGroup: "O+", Component: "red_cells", Units: 1,
	})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)
	assert.ErrorIs(t, err, domain.ErrStockLineNotFound)
}

// TestLedgerCompatibleAvailability tests the per-donor-group availability view
func TestLedgerCompatibleAvailability(t *testing.T) {
	repo := newFakeStockLineRepo()
	svc := newLedgerService(repo, &fakeProducer{})

	cmd := validBatchCmd("BATCH-1", 12)
	_, err := svc.AddBatch(context.Background(), cmd)
	require.NoError(t, err)

	cmd = validBatchCmd("BATCH-2", 7)
	cmd.BloodGroup = "O-"
	_, err = svc.AddBatch(context.Background(), cmd)
	require.NoError(t, err)

	// A+ can receive from A+, A-, O+, O-
	availability, err := svc.CompatibleAvailability(context.Background(), "BANK-001", "A+", "red_cells")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A+": 0, "A-": 0, "O+": 12, "O-": 7}, availability)
}

// TestLedgerExpirySweep tests the batch expiry sweep across lines
func TestLedgerExpirySweep(t *testing.T) {
	repo := newFakeStockLineRepo()
	producer := &fakeProducer{}
	svc := newLedgerService(repo, producer)

	now := time.Now()
	line, err := domain.NewStockLine("BANK-001", domain.GroupAPos, domain.ComponentPlasma)
	require.NoError(t, err)
	require.NoError(t, line.AddBatch("STALE", 9, now.Add(-48*time.Hour), now.Add(-time.Hour), nil))
	line.ClearEvents()
	require.NoError(t, repo.Save(context.Background(), line))

	affected, err := svc.RunExpirySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, affected)
	assert.Equal(t, 0, repo.lines[line.Key()].TotalUnits)
	assert.Contains(t, producer.eventTypes(), "donation.stock.batch-expired")

	// second sweep finds nothing to remove
	affected, err = svc.RunExpirySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, affected)
}

// contendedLineRepo hands out detached copies and rejects a fixed number of
// saves, the way the versioned store behaves when another process writes
// the same line first.
type contendedLineRepo struct {
	*fakeStockLineRepo
	conflicts int
}

func (c *contendedLineRepo) FindByKey(ctx context.Context, bankID string, group domain.BloodGroup, component domain.Component) (*domain.StockLine, error) {
	line, err := c.fakeStockLineRepo.FindByKey(ctx, bankID, group, component)
	if line == nil || err != nil {
		return line, err
	}
	clone := *line
	clone.Batches = append([]domain.InventoryBatch(nil), line.Batches...)
	clone.DomainEvents = nil
	return &clone, nil
}

func (c *contendedLineRepo) Save(ctx context.Context, line *domain.StockLine) error {
	if c.conflicts > 0 {
		c.conflicts--
		return domain.ErrConcurrentModification
	}
	return c.fakeStockLineRepo.Save(ctx, line)
}

// TestLedgerExpirySweepWriteConflict tests that a sweep losing a versioned
// save reports the conflict and completes on the next pass
func TestLedgerExpirySweepWriteConflict(t *testing.T) {
	repo := &contendedLineRepo{fakeStockLineRepo: newFakeStockLineRepo()}
	svc := newLedgerService(repo, &fakeProducer{})

	now := time.Now()
	line, err := domain.NewStockLine("BANK-001", domain.GroupAPos, domain.ComponentPlasma)
	require.NoError(t, err)
	require.NoError(t, line.AddBatch("STALE", 9, now.Add(-48*time.Hour), now.Add(-time.Hour), nil))
	line.ClearEvents()
	require.NoError(t, repo.fakeStockLineRepo.Save(context.Background(), line))

	repo.conflicts = 1
	affected, err := svc.RunExpirySweep(context.Background())
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.Equal(t, 0, affected)
	assert.Equal(t, 9, repo.fakeStockLineRepo.lines[line.Key()].TotalUnits)

	// the next tick picks the line up again
	affected, err = svc.RunExpirySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, affected)
	assert.Equal(t, 0, repo.fakeStockLineRepo.lines[line.Key()].TotalUnits)
}

// TestLedgerLowStock tests the low stock listing
func TestLedgerLowStock(t *testing.T) {
	repo := newFakeStockLineRepo()
	svc := newLedgerService(repo, &fakeProducer{})

	_, err := svc.AddBatch(context.Background(), validBatchCmd("BATCH-1", 4))
	require.NoError(t, err)

	cmd := validBatchCmd("BATCH-2", 60)
	cmd.BloodGroup = "A+"
	_, err = svc.AddBatch(context.Background(), cmd)
	require.NoError(t, err)

	low, err := svc.LowStock(context.Background())
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "O+", low[0].BloodGroup)
}
