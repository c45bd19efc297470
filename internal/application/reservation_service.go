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

// ReservationService handles the reserve, commit and release lifecycle and
// the reservation timeout sweep.
type ReservationService struct {
	lines        domain.StockLineRepository
	reservations domain.ReservationRepository
	requests     domain.RequestRepository
	publisher    *EventPublisher
	metrics      *metrics.Metrics
	locks        *LineLocks
	ids          domain.IDGenerator
	logger       *logging.Logger
}

// NewReservationService creates a ReservationService
func NewReservationService(
	lines domain.StockLineRepository,
	reservations domain.ReservationRepository,
	requests domain.RequestRepository,
	publisher *EventPublisher,
	m *metrics.Metrics,
	locks *LineLocks,
	ids domain.IDGenerator,
	logger *logging.Logger,
) *ReservationService {
	return &ReservationService{
		lines:        lines,
		reservations: reservations,
		requests:     requests,
		publisher:    publisher,
		metrics:      m,
		locks:        locks,
		ids:          ids,
		logger:       logger.WithComponent("reservation"),
	}
}

// Reserve claims available units on a stock line. The claim is all-or-nothing
// and pins the locked units against expiry sweeps until resolved.
func (s *ReservationService) Reserve(ctx context.Context, cmd ReserveCommand) (*ReservationDTO, error) {
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
	lineLocks, err := line.ReserveUnits(cmd.Units, now)
	if err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	reservation := domain.NewReservation(s.ids.NewID(), cmd.RequestID, cmd.BankID, group, component, cmd.Units, lineLocks, cmd.Timeout)

	lineEvents := line.ClearEvents()
	resEvents := reservation.ClearEvents()

	if err := s.lines.Save(ctx, line); err != nil {
		s.logger.Error("Failed to save stock line", "key", line.Key(), "error", err)
		return nil, fmt.Errorf("failed to save stock line: %w", err)
	}
	if err := s.reservations.Save(ctx, reservation); err != nil {
		s.logger.Error("Failed to save reservation", "reservationId", reservation.ReservationID, "error", err)
		return nil, fmt.Errorf("failed to save reservation: %w", err)
	}

	if cmd.RequestID != "" {
		s.applyToRequest(ctx, cmd.RequestID, func(r *domain.DonationRequest) error {
			r.ApplyReserved(cmd.Units)
			return nil
		})
	}

	s.publisher.Publish(ctx, append(lineEvents, resEvents...))
	s.metrics.RecordUnitsReserved(cmd.BloodGroup, cmd.Component, cmd.Units)
	s.metrics.SetAvailableUnits(cmd.BankID, cmd.BloodGroup, cmd.Component, line.AvailableUnits(now))

	s.logger.Info("Units reserved", "reservationId", reservation.ReservationID,
		"bankId", cmd.BankID, "bloodGroup", cmd.BloodGroup, "units", cmd.Units, "requestId", cmd.RequestID)
	return ToReservationDTO(reservation), nil
}

// Commit consumes a reservation's locked units from stock
func (s *ReservationService) Commit(ctx context.Context, cmd CommitReservationCommand) (*ReservationDTO, error) {
	reservation, err := s.reservations.FindByID(ctx, cmd.ReservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}
	if reservation == nil {
		return nil, apperrors.ErrNotFound("reservation")
	}

	unlock := s.locks.Lock(domain.LineKey(reservation.BankID, reservation.BloodGroup, reservation.Component))
	defer unlock()

	// Reload under the lock: a concurrent commit or release can resolve the
	// reservation between the first read and lock acquisition.
	reservation, err = s.reservations.FindByID(ctx, cmd.ReservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}
	if reservation == nil {
		return nil, apperrors.ErrNotFound("reservation")
	}

	line, err := s.lines.FindByKey(ctx, reservation.BankID, reservation.BloodGroup, reservation.Component)
	if err != nil {
		return nil, fmt.Errorf("failed to load stock line: %w", err)
	}
	if line == nil {
		return nil, apperrors.ErrNotFound("stock line").Wrap(domain.ErrStockLineNotFound)
	}

	if err := reservation.MarkCommitted(); err != nil {
		return nil, apperrors.ErrInvalidTransition(fmt.Sprintf("reservation %s is %s", reservation.ReservationID, reservation.Status))
	}
	if _, err := line.CommitLocks(reservation.Locks); err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	now := time.Now()
	line.DomainEvents = append(line.DomainEvents, &domain.StockIssuedEvent{
		BankID:     line.BankID,
		BloodGroup: line.BloodGroup,
		Component:  line.Component,
		Units:      reservation.Units,
		RequestID:  reservation.RequestID,
		IssuedAt:   now,
	})
	line.CheckStockLevel(now)

	lineEvents := line.ClearEvents()
	resEvents := reservation.ClearEvents()

	if err := s.lines.Save(ctx, line); err != nil {
		s.logger.Error("Failed to save stock line", "key", line.Key(), "error", err)
		return nil, fmt.Errorf("failed to save stock line: %w", err)
	}
	if err := s.reservations.Save(ctx, reservation); err != nil {
		s.logger.Error("Failed to save reservation", "reservationId", reservation.ReservationID, "error", err)
		return nil, fmt.Errorf("failed to save reservation: %w", err)
	}

	if reservation.RequestID != "" {
		s.applyToRequest(ctx, reservation.RequestID, func(r *domain.DonationRequest) error {
			return r.ApplyCommitted(reservation.Units)
		})
	}

	s.publisher.Publish(ctx, append(resEvents, lineEvents...))
	s.metrics.RecordUnitsCommitted(string(reservation.BloodGroup), string(reservation.Component), reservation.Units)
	s.metrics.SetAvailableUnits(reservation.BankID, string(reservation.BloodGroup), string(reservation.Component), line.AvailableUnits(now))

	s.logger.Info("Reservation committed", "reservationId", reservation.ReservationID, "units", reservation.Units)
	return ToReservationDTO(reservation), nil
}

// Release returns a reservation's locked units to availability
func (s *ReservationService) Release(ctx context.Context, cmd ReleaseReservationCommand) (*ReservationDTO, error) {
	return s.release(ctx, cmd.ReservationID, false)
}

func (s *ReservationService) release(ctx context.Context, reservationID string, expired bool) (*ReservationDTO, error) {
	reservation, err := s.reservations.FindByID(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}
	if reservation == nil {
		return nil, apperrors.ErrNotFound("reservation")
	}

	unlock := s.locks.Lock(domain.LineKey(reservation.BankID, reservation.BloodGroup, reservation.Component))
	defer unlock()

	// Same stale-read hazard as Commit: resolve status only under the lock.
	reservation, err = s.reservations.FindByID(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}
	if reservation == nil {
		return nil, apperrors.ErrNotFound("reservation")
	}

	line, err := s.lines.FindByKey(ctx, reservation.BankID, reservation.BloodGroup, reservation.Component)
	if err != nil {
		return nil, fmt.Errorf("failed to load stock line: %w", err)
	}
	if line == nil {
		return nil, apperrors.ErrNotFound("stock line").Wrap(domain.ErrStockLineNotFound)
	}

	if err := reservation.MarkReleased(expired); err != nil {
		return nil, apperrors.ErrInvalidTransition(fmt.Sprintf("reservation %s is %s", reservation.ReservationID, reservation.Status))
	}
	if err := line.ReleaseLocks(reservation.Locks); err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	now := time.Now()
	line.CheckStockLevel(now)
	lineEvents := line.ClearEvents()
	resEvents := reservation.ClearEvents()

	if err := s.lines.Save(ctx, line); err != nil {
		s.logger.Error("Failed to save stock line", "key", line.Key(), "error", err)
		return nil, fmt.Errorf("failed to save stock line: %w", err)
	}
	if err := s.reservations.Save(ctx, reservation); err != nil {
		s.logger.Error("Failed to save reservation", "reservationId", reservation.ReservationID, "error", err)
		return nil, fmt.Errorf("failed to save reservation: %w", err)
	}

	if reservation.RequestID != "" {
		s.applyToRequest(ctx, reservation.RequestID, func(r *domain.DonationRequest) error {
			r.ApplyReleased(reservation.Units)
			return nil
		})
	}

	reason := "released"
	if expired {
		reason = "expired"
	}

	s.publisher.Publish(ctx, append(resEvents, lineEvents...))
	s.metrics.RecordUnitsReleased(string(reservation.BloodGroup), string(reservation.Component), reason, reservation.Units)
	s.metrics.SetAvailableUnits(reservation.BankID, string(reservation.BloodGroup), string(reservation.Component), line.AvailableUnits(now))

	s.logger.Info("Reservation released", "reservationId", reservation.ReservationID,
		"units", reservation.Units, "expired", expired)
	return ToReservationDTO(reservation), nil
}

// FulfillFromStock reserves stock on behalf of a blood request, walking the
// request's compatible donor groups (exact match first) until the demand is
// covered or stock runs out. Partial coverage is kept: whatever was reserved
// stands even when the full demand cannot be met.
func (s *ReservationService) FulfillFromStock(ctx context.Context, cmd FulfillFromStockCommand) ([]*ReservationDTO, error) {
	request, err := s.requests.FindByID(ctx, cmd.RequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if request == nil {
		return nil, apperrors.ErrNotFound("request").Wrap(domain.ErrRequestNotFound)
	}
	if request.Kind != domain.RequestKindBlood {
		return nil, apperrors.ErrValidation("only blood requests draw from the stock ledger")
	}
	if request.IsTerminal() {
		return nil, apperrors.ErrInvalidTransition(fmt.Sprintf("request %s is %s", request.RequestID, request.Status)).
			Wrap(domain.ErrRequestNotActive)
	}

	remaining := cmd.Units
	if remaining <= 0 {
		remaining = request.RequiredUnits - request.UnitsCommitted - request.UnitsReserved
	}
	if remaining <= 0 {
		return nil, apperrors.ErrValidation("request demand already covered")
	}

	groups := make([]domain.BloodGroup, 0, len(request.CompatibleGroups))
	groups = append(groups, request.PatientBloodGroup)
	for _, g := range request.CompatibleGroups {
		if g != request.PatientBloodGroup {
			groups = append(groups, g)
		}
	}

	now := time.Now()
	reservations := make([]*ReservationDTO, 0, 2)
	for _, group := range groups {
		if remaining == 0 {
			break
		}

		line, err := s.lines.FindByKey(ctx, cmd.BankID, group, request.Component)
		if err != nil {
			return nil, fmt.Errorf("failed to load stock line: %w", err)
		}
		if line == nil {
			continue
		}

		units := line.AvailableUnits(now)
		if units == 0 {
			continue
		}
		if units > remaining {
			units = remaining
		}

		dto, err := s.Reserve(ctx, ReserveCommand{
			BankID:     cmd.BankID,
			BloodGroup: string(group),
			Component:  string(request.Component),
			Units:      units,
			RequestID:  request.RequestID,
		})
		if err != nil {
			// availability moved under us, try the next group
			s.logger.Warn("Fulfillment reserve failed", "requestId", request.RequestID,
				"bloodGroup", group, "units", units, "error", err)
			continue
		}

		reservations = append(reservations, dto)
		remaining -= units
	}

	if len(reservations) == 0 {
		return nil, apperrors.ErrInsufficientStock(fmt.Sprintf(
			"no compatible stock at bank %s for request %s", cmd.BankID, request.RequestID))
	}

	s.logger.Info("Request fulfillment reserved", "requestId", request.RequestID,
		"reservations", len(reservations), "uncovered", remaining)
	return reservations, nil
}

// GetReservation returns one reservation
func (s *ReservationService) GetReservation(ctx context.Context, reservationID string) (*ReservationDTO, error) {
	reservation, err := s.reservations.FindByID(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}
	if reservation == nil {
		return nil, apperrors.ErrNotFound("reservation")
	}
	return ToReservationDTO(reservation), nil
}

// ListReservations returns reservations for a bank, optionally by status
func (s *ReservationService) ListReservations(ctx context.Context, bankID, status string, offset, limit int) ([]*ReservationDTO, int64, error) {
	reservations, total, err := s.reservations.List(ctx, bankID, domain.ReservationStatus(status), offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reservations: %w", err)
	}

	dtos := make([]*ReservationDTO, 0, len(reservations))
	for _, r := range reservations {
		dtos = append(dtos, ToReservationDTO(r))
	}
	return dtos, total, nil
}

// RunTimeoutSweep releases reservations that outlived their timeout.
// Returns the number of reservations released.
func (s *ReservationService) RunTimeoutSweep(ctx context.Context) (int, error) {
	start := time.Now()

	overdue, err := s.reservations.FindOverdue(ctx, start)
	if err != nil {
		s.logger.SweepResult(ctx, "reservation-timeout", 0, time.Since(start), err)
		return 0, fmt.Errorf("failed to find overdue reservations: %w", err)
	}

	released := 0
	var sweepErr error
	for _, r := range overdue {
		if _, err := s.release(ctx, r.ReservationID, true); err != nil {
			sweepErr = errors.Join(sweepErr, fmt.Errorf("reservation %s: %w", r.ReservationID, err))
			continue
		}
		released++
	}

	s.logger.SweepResult(ctx, "reservation-timeout", released, time.Since(start), sweepErr)
	return released, sweepErr
}

// applyToRequest mutates the linked request, tolerating a missing one: the
// reservation outcome stands even when the request record is gone.
func (s *ReservationService) applyToRequest(ctx context.Context, requestID string, mutate func(*domain.DonationRequest) error) {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil || request == nil {
		s.logger.Warn("Linked request not loaded", "requestId", requestID, "error", err)
		return
	}

	if err := mutate(request); err != nil {
		s.logger.Warn("Linked request not updated", "requestId", requestID, "error", err)
		return
	}

	events := request.ClearEvents()
	if err := s.requests.Save(ctx, request); err != nil {
		s.logger.Error("Failed to save linked request", "requestId", requestID, "error", err)
		return
	}
	s.publisher.Publish(ctx, events)
}
