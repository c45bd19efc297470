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

// BroadcasterService raises emergency alerts, computes their target donor
// set and tracks the response funnel.
type BroadcasterService struct {
	alerts    domain.AlertRepository
	donors    domain.DonorRepository
	publisher *EventPublisher
	metrics   *metrics.Metrics
	ids       domain.IDGenerator
	cooldown  time.Duration
	logger    *logging.Logger
}

// NewBroadcasterService creates a BroadcasterService
func NewBroadcasterService(
	alerts domain.AlertRepository,
	donors domain.DonorRepository,
	publisher *EventPublisher,
	m *metrics.Metrics,
	ids domain.IDGenerator,
	cooldown time.Duration,
	logger *logging.Logger,
) *BroadcasterService {
	if cooldown <= 0 {
		cooldown = domain.DefaultDonationCooldown
	}
	return &BroadcasterService{
		alerts:    alerts,
		donors:    donors,
		publisher: publisher,
		metrics:   m,
		ids:       ids,
		cooldown:  cooldown,
		logger:    logger.WithComponent("broadcaster"),
	}
}

// RaiseAlert activates an alert and computes its target donor set
func (s *BroadcasterService) RaiseAlert(ctx context.Context, cmd RaiseAlertCommand) (*AlertDTO, error) {
	location := domain.GeoPoint{Latitude: cmd.Latitude, Longitude: cmd.Longitude}
	if !location.IsValid() {
		return nil, apperrors.ErrValidation("invalid coordinates").Wrap(domain.ErrInvalidCoordinates)
	}

	requirements := make([]domain.AlertRequirement, 0, len(cmd.Requirements))
	for _, r := range cmd.Requirements {
		requirements = append(requirements, domain.AlertRequirement{
			BloodGroup:    domain.BloodGroup(r.BloodGroup),
			Component:     domain.Component(r.Component),
			RequiredUnits: r.RequiredUnits,
		})
	}

	groups := make([]domain.BloodGroup, 0, len(cmd.BloodGroups))
	for _, g := range cmd.BloodGroups {
		groups = append(groups, domain.BloodGroup(g))
	}

	var expiresAt time.Time
	if cmd.ExpiresAt != nil {
		expiresAt = *cmd.ExpiresAt
	}

	alert, err := domain.NewEmergencyAlert(s.ids.NewID(), domain.AlertType(cmd.AlertType),
		domain.Severity(cmd.Severity), cmd.HospitalID, location, cmd.Message, requirements,
		domain.TargetAudience{
			BloodGroups:         groups,
			RadiusKm:            cmd.RadiusKm,
			BankIDs:             cmd.BankIDs,
			ExcludeRecentDonors: true,
		}, expiresAt)
	if err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	notified, err := s.notifyAudience(ctx, alert)
	if err != nil {
		s.logger.Warn("Audience computation failed, alert raised without notification count",
			"alertId", alert.AlertID, "error", err)
	}
	alert.RecordNotified(notified)

	events := alert.ClearEvents()
	if err := s.alerts.Save(ctx, alert); err != nil {
		s.logger.Error("Failed to save alert", "alertId", alert.AlertID, "error", err)
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	s.publisher.Publish(ctx, events)
	s.metrics.RecordAlertRaised(cmd.AlertType, cmd.Severity)
	s.logger.Info("Alert raised", "alertId", alert.AlertID, "alertType", cmd.AlertType,
		"severity", cmd.Severity, "notified", notified)
	return ToAlertDTO(alert), nil
}

// notifyAudience counts registry donors inside the alert's radius matching
// its audience filters. Delivery itself belongs to the notification service
// consuming the raised event.
func (s *BroadcasterService) notifyAudience(ctx context.Context, alert *domain.EmergencyAlert) (int, error) {
	groups := alert.Audience.BloodGroups
	if len(groups) == 0 {
		groups = AllGroupsForRequirements(alert.Requirements)
	}

	candidates, err := s.donors.FindByGroups(ctx, groups)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	notified := 0
	for _, donor := range candidates {
		if !donor.IsAvailable || !donor.MedicallyFit {
			continue
		}
		if alert.Audience.ExcludeRecentDonors && donor.InCooldown(now, s.cooldown) {
			continue
		}
		if alert.Audience.MinimumRating > 0 && donor.Rating < alert.Audience.MinimumRating {
			continue
		}
		if alert.Audience.RadiusKm > 0 && alert.Location.DistanceKm(donor.Location) > alert.Audience.RadiusKm {
			continue
		}
		notified++
	}
	return notified, nil
}

// AllGroupsForRequirements derives the donor groups able to serve any
// requirement line of an alert.
func AllGroupsForRequirements(requirements []domain.AlertRequirement) []domain.BloodGroup {
	seen := make(map[domain.BloodGroup]bool)
	groups := make([]domain.BloodGroup, 0)
	for _, req := range requirements {
		donors, err := domain.CompatibleDonors(req.BloodGroup)
		if err != nil {
			continue
		}
		for _, g := range donors {
			if !seen[g] {
				seen[g] = true
				groups = append(groups, g)
			}
		}
	}
	return groups
}

// GetAlert returns one alert, lazily expiring it when overdue
func (s *BroadcasterService) GetAlert(ctx context.Context, alertID string) (*AlertDTO, error) {
	alert, err := s.loadAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if alert.CheckExpiry(time.Now()) {
		events := alert.ClearEvents()
		if err := s.alerts.Save(ctx, alert); err != nil {
			return nil, fmt.Errorf("failed to save expired alert: %w", err)
		}
		s.publisher.Publish(ctx, events)
	}

	return ToAlertDTO(alert), nil
}

// ListAlerts returns alerts for a hospital, optionally by status
func (s *BroadcasterService) ListAlerts(ctx context.Context, hospitalID, status string, offset, limit int) ([]*AlertDTO, int64, error) {
	alerts, total, err := s.alerts.List(ctx, hospitalID, domain.AlertStatus(status), offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}

	dtos := make([]*AlertDTO, 0, len(alerts))
	for _, a := range alerts {
		dtos = append(dtos, ToAlertDTO(a))
	}
	return dtos, total, nil
}

// RecordResponse registers a donor answering an alert
func (s *BroadcasterService) RecordResponse(ctx context.Context, cmd AlertResponseCommand, etaMinutes int, transportMode string) (*AlertDTO, error) {
	alert, err := s.loadAlert(ctx, cmd.AlertID)
	if err != nil {
		return nil, err
	}

	donor, err := s.donors.FindByID(ctx, cmd.DonorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load donor: %w", err)
	}
	if donor == nil {
		return nil, apperrors.ErrNotFound("donor").Wrap(domain.ErrDonorNotFound)
	}

	if err := alert.RecordResponse(cmd.DonorID, donor.BloodGroup, cmd.Confirmed, etaMinutes, transportMode); err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	events := alert.ClearEvents()
	if err := s.alerts.Save(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	s.publisher.Publish(ctx, events)
	s.logger.Info("Alert response recorded", "alertId", cmd.AlertID,
		"donorId", cmd.DonorID, "confirmed", cmd.Confirmed)
	return ToAlertDTO(alert), nil
}

// ApplyFulfillment credits committed units against an alert's requirements
func (s *BroadcasterService) ApplyFulfillment(ctx context.Context, alertID, bloodGroup, component string, units int) (*AlertDTO, error) {
	alert, err := s.loadAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if err := alert.ApplyFulfilledUnits(domain.BloodGroup(bloodGroup), domain.Component(component), units); err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	events := alert.ClearEvents()
	if err := s.alerts.Save(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	s.publisher.Publish(ctx, events)
	s.logger.Info("Alert fulfillment applied", "alertId", alertID,
		"bloodGroup", bloodGroup, "component", component, "units", units)
	return ToAlertDTO(alert), nil
}

// ResolveAlert closes an alert manually
func (s *BroadcasterService) ResolveAlert(ctx context.Context, alertID string) (*AlertDTO, error) {
	return s.close(ctx, alertID, (*domain.EmergencyAlert).Resolve)
}

// CancelAlert withdraws an alert without resolution
func (s *BroadcasterService) CancelAlert(ctx context.Context, alertID string) (*AlertDTO, error) {
	return s.close(ctx, alertID, (*domain.EmergencyAlert).Cancel)
}

func (s *BroadcasterService) close(ctx context.Context, alertID string, transition func(*domain.EmergencyAlert) error) (*AlertDTO, error) {
	alert, err := s.loadAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if err := transition(alert); err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	events := alert.ClearEvents()
	if err := s.alerts.Save(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	s.publisher.Publish(ctx, events)
	s.logger.Info("Alert closed", "alertId", alertID, "status", alert.Status)
	return ToAlertDTO(alert), nil
}

// RunExpirySweep expires overdue open alerts. Returns the number expired.
func (s *BroadcasterService) RunExpirySweep(ctx context.Context) (int, error) {
	start := time.Now()

	overdue, err := s.alerts.FindExpired(ctx, start)
	if err != nil {
		s.logger.SweepResult(ctx, "alert-expiry", 0, time.Since(start), err)
		return 0, fmt.Errorf("failed to find overdue alerts: %w", err)
	}

	expired := 0
	var sweepErr error
	for _, alert := range overdue {
		if !alert.CheckExpiry(start) {
			continue
		}
		events := alert.ClearEvents()
		if err := s.alerts.Save(ctx, alert); err != nil {
			sweepErr = errors.Join(sweepErr, fmt.Errorf("alert %s: %w", alert.AlertID, err))
			continue
		}
		s.publisher.Publish(ctx, events)
		expired++
	}

	s.logger.SweepResult(ctx, "alert-expiry", expired, time.Since(start), sweepErr)
	return expired, sweepErr
}

func (s *BroadcasterService) loadAlert(ctx context.Context, alertID string) (*domain.EmergencyAlert, error) {
	alert, err := s.alerts.FindByID(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	if alert == nil {
		return nil, apperrors.ErrNotFound("alert").Wrap(domain.ErrAlertNotFound)
	}
	return alert, nil
}
