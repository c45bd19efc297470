package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/bloodbank-platform/allocation-service/pkg/errors"
	"github.com/bloodbank-platform/allocation-service/pkg/logging"
	"github.com/bloodbank-platform/allocation-service/pkg/metrics"

	"github.com/bloodbank-platform/allocation-service/internal/domain"
)

// LedgerService handles batch intake, direct issue, availability queries
// and the batch expiry sweep.
type LedgerService struct {
	lines     domain.StockLineRepository
	publisher *EventPublisher
	metrics   *metrics.Metrics
	locks     *LineLocks
	logger    *logging.Logger
}

// NewLedgerService creates a LedgerService
func NewLedgerService(lines domain.StockLineRepository, publisher *EventPublisher, m *metrics.Metrics, locks *LineLocks, logger *logging.Logger) *LedgerService {
	return &LedgerService{
		lines:     lines,
		publisher: publisher,
		metrics:   m,
		locks:     locks,
		logger:    logger.WithComponent("ledger"),
	}
}

// AddBatch registers a collected batch, creating the stock line on first
// intake for a (bank, group, component) position.
func (s *LedgerService) AddBatch(ctx context.Context, cmd AddBatchCommand) (*StockLineDTO, error) {
	group := domain.BloodGroup(cmd.BloodGroup)
	component := domain.Component(cmd.Component)

	unlock := s.locks.Lock(domain.LineKey(cmd.BankID, group, component))
	defer unlock()

	line, err := s.lines.FindByKey(ctx, cmd.BankID, group, component)
	if err != nil {
		return nil, fmt.Errorf("failed to load stock line: %w", err)
	}
	if line == nil {
		line, err = domain.NewStockLine(cmd.BankID, group, component)
		if err != nil {
			return nil, apperrors.MapDomainError(err)
		}
	}

	for _, b := range line.Batches {
		if b.BatchID == cmd.BatchID {
			return nil, apperrors.ErrConflict(fmt.Sprintf("batch %s already registered", cmd.BatchID))
		}
	}

	if err := line.AddBatch(cmd.BatchID, cmd.Units, cmd.CollectedAt, cmd.ExpiresAt, cmd.DonationIDs); err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	now := time.Now()
	line.CheckStockLevel(now)
	events := line.ClearEvents()

	if err := s.lines.Save(ctx, line); err != nil {
		s.logger.Error("Failed to save stock line", "key", line.Key(), "error", err)
		return nil, fmt.Errorf("failed to save stock line: %w", err)
	}

	s.publisher.Publish(ctx, events)
	s.metrics.RecordBatchAdded(cmd.BloodGroup, cmd.Component)
	s.metrics.SetAvailableUnits(cmd.BankID, cmd.BloodGroup, cmd.Component, line.AvailableUnits(now))

	s.logger.Info("Batch added", "bankId", cmd.BankID, "bloodGroup", cmd.BloodGroup,
		"component", cmd.Component, "batchId", cmd.BatchID, "units", cmd.Units)
	return ToStockLineDTO(line, now), nil
}

// IssueStock consumes available units directly, without a reservation
func (s *LedgerService) IssueStock(ctx context.Context, cmd IssueStockCommand) ([]ConsumedBatchDTO, error) {
	group := domain.BloodGroup(cmd.BloodGroup)
	component := domain.Component(cmd.Component)

	unlock := s.locks.Lock(domain.LineKey(cmd.BankID, group, component))
	defer unlock()

	line, err := s.lines.FindByKey(ctx, cmd.BankID, group, component)
	if err != nil {
		return nil, fmt.Errorf("failed to load stock line: %w", err)
	}
	if line == nil {
		return nil, apperrors.ErrNotFound("stock line").Wrap(domain.ErrStockLineNotFound)
	}

	now := time.Now()
	consumed, err := line.Consume(cmd.Units, now)
	if err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	line.DomainEvents = append(line.DomainEvents, &domain.StockIssuedEvent{
		BankID:     line.BankID,
		BloodGroup: line.BloodGroup,
		Component:  line.Component,
		Units:      cmd.Units,
		RequestID:  cmd.RequestID,
		IssuedAt:   now,
	})
	line.CheckStockLevel(now)
	events := line.ClearEvents()

	if err := s.lines.Save(ctx, line); err != nil {
		s.logger.Error("Failed to save stock line", "key", line.Key(), "error", err)
		return nil, fmt.Errorf("failed to save stock line: %w", err)
	}

	s.publisher.Publish(ctx, events)
	s.metrics.RecordUnitsCommitted(cmd.BloodGroup, cmd.Component, cmd.Units)
	s.metrics.SetAvailableUnits(cmd.BankID, cmd.BloodGroup, cmd.Component, line.AvailableUnits(now))

	dtos := make([]ConsumedBatchDTO, 0, len(consumed))
	for _, c := range consumed {
		dtos = append(dtos, ConsumedBatchDTO{BatchID: c.BatchID, Units: c.Units})
	}

	s.logger.Info("Stock issued", "bankId", cmd.BankID, "bloodGroup", cmd.BloodGroup,
		"component", cmd.Component, "units", cmd.Units, "requestId", cmd.RequestID)
	return dtos, nil
}

// GetStockLine returns one inventory position
func (s *LedgerService) GetStockLine(ctx context.Context, bankID, bloodGroup, component string) (*StockLineDTO, error) {
	line, err := s.lines.FindByKey(ctx, bankID, domain.BloodGroup(bloodGroup), domain.Component(component))
	if err != nil {
		return nil, fmt.Errorf("failed to load stock line: %w", err)
	}
	if line == nil {
		return nil, apperrors.ErrNotFound("stock line").Wrap(domain.ErrStockLineNotFound)
	}
	return ToStockLineDTO(line, time.Now()), nil
}

// ListStockLines returns inventory positions matching the filter
func (s *LedgerService) ListStockLines(ctx context.Context, filter domain.StockLineFilter, offset, limit int) ([]*StockLineDTO, int64, error) {
	lines, total, err := s.lines.List(ctx, filter, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list stock lines: %w", err)
	}

	now := time.Now()
	dtos := make([]*StockLineDTO, 0, len(lines))
	for _, line := range lines {
		dtos = append(dtos, ToStockLineDTO(line, now))
	}
	return dtos, total, nil
}

// BankAvailability reports available units per (group, component) for a bank
func (s *LedgerService) BankAvailability(ctx context.Context, bankID string) ([]*StockLineDTO, error) {
	lines, err := s.lines.FindByBank(ctx, bankID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bank stock: %w", err)
	}

	now := time.Now()
	dtos := make([]*StockLineDTO, 0, len(lines))
	for _, line := range lines {
		dtos = append(dtos, ToStockLineDTO(line, now))
	}
	return dtos, nil
}

// CompatibleAvailability reports, for a recipient group, the available units
// of each donor group the recipient can receive from within one bank.
func (s *LedgerService) CompatibleAvailability(ctx context.Context, bankID, bloodGroup, component string) (map[string]int, error) {
	donors, err := domain.CompatibleDonors(domain.BloodGroup(bloodGroup))
	if err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	now := time.Now()
	availability := make(map[string]int, len(donors))
	for _, donor := range donors {
		line, err := s.lines.FindByKey(ctx, bankID, donor, domain.Component(component))
		if err != nil {
			return nil, fmt.Errorf("failed to load stock line: %w", err)
		}
		if line == nil {
			availability[string(donor)] = 0
			continue
		}
		availability[string(donor)] = line.AvailableUnits(now)
	}
	return availability, nil
}

// LowStock returns lines whose availability sits at or below their minimum
// threshold. The repository pre-filters on counters; availability is
// re-derived here because it depends on batch expiry.
func (s *LedgerService) LowStock(ctx context.Context) ([]*StockLineDTO, error) {
	lines, err := s.lines.FindLowStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load low stock lines: %w", err)
	}

	now := time.Now()
	dtos := make([]*StockLineDTO, 0, len(lines))
	for _, line := range lines {
		if line.AvailableUnits(now) > line.Thresholds.MinimumStock {
			continue
		}
		dtos = append(dtos, ToStockLineDTO(line, now))
	}
	return dtos, nil
}

// RunExpirySweep removes the unreserved remainder of expired batches across
// all lines that hold any. Returns the number of lines touched.
func (s *LedgerService) RunExpirySweep(ctx context.Context) (int, error) {
	start := time.Now()

	lines, err := s.lines.FindWithExpiredBatches(ctx, start)
	if err != nil {
		s.logger.SweepResult(ctx, "batch-expiry", 0, time.Since(start), err)
		return 0, fmt.Errorf("failed to find expired batches: %w", err)
	}

	affected := 0
	var sweepErr error
	for _, line := range lines {
		if err := s.sweepLine(ctx, line.BankID, line.BloodGroup, line.Component); err != nil {
			sweepErr = errors.Join(sweepErr, err)
			continue
		}
		affected++
	}

	s.logger.SweepResult(ctx, "batch-expiry", affected, time.Since(start), sweepErr)
	return affected, sweepErr
}

// sweepLine reloads the line under its lock so the sweep cannot race a
// concurrent reserve or commit.
func (s *LedgerService) sweepLine(ctx context.Context, bankID string, group domain.BloodGroup, component domain.Component) error {
	unlock := s.locks.Lock(domain.LineKey(bankID, group, component))
	defer unlock()

	line, err := s.lines.FindByKey(ctx, bankID, group, component)
	if err != nil {
		return fmt.Errorf("failed to reload stock line: %w", err)
	}
	if line == nil {
		return nil
	}

	now := time.Now()
	expired := line.ExpireSweep(now)
	if len(expired) == 0 {
		return nil
	}

	line.CheckStockLevel(now)
	events := line.ClearEvents()

	if err := s.lines.Save(ctx, line); err != nil {
		return fmt.Errorf("failed to save swept line %s: %w", line.Key(), err)
	}

	s.publisher.Publish(ctx, events)
	for _, e := range expired {
		s.metrics.RecordUnitsExpired(string(group), string(component), e.UnitsRemoved)
	}
	s.metrics.SetAvailableUnits(bankID, string(group), string(component), line.AvailableUnits(now))
	return nil
}
