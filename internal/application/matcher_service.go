package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	apperrors "github.com/bloodbank-platform/allocation-service/pkg/errors"
	"github.com/bloodbank-platform/allocation-service/pkg/logging"
	"github.com/bloodbank-platform/allocation-service/pkg/metrics"

	"github.com/bloodbank-platform/allocation-service/internal/domain"
)

// MatcherConfig holds the scoring weights and candidate policy
type MatcherConfig struct {
	ExactMatchBonus  float64
	CompatibleScore  float64
	DistanceWeight   float64
	DistanceScaleKm  float64
	RatingWeight     float64
	RecencyPenalty   float64
	MaxRadiusKm      float64
	MaxCandidates    int
	DonationCooldown time.Duration
}

// DefaultMatcherConfig returns the default matching policy
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		ExactMatchBonus:  25,
		CompatibleScore:  50,
		DistanceWeight:   15,
		DistanceScaleKm:  50,
		RatingWeight:     5,
		RecencyPenalty:   10,
		MaxRadiusKm:      100,
		MaxCandidates:    10,
		DonationCooldown: domain.DefaultDonationCooldown,
	}
}

// MatcherService creates requests, evaluates donor candidates and drives
// request lifecycles.
type MatcherService struct {
	requests  domain.RequestRepository
	donors    domain.DonorRepository
	publisher *EventPublisher
	metrics   *metrics.Metrics
	ids       domain.IDGenerator
	config    MatcherConfig
	logger    *logging.Logger
}

// NewMatcherService creates a MatcherService
func NewMatcherService(
	requests domain.RequestRepository,
	donors domain.DonorRepository,
	publisher *EventPublisher,
	m *metrics.Metrics,
	ids domain.IDGenerator,
	config MatcherConfig,
	logger *logging.Logger,
) *MatcherService {
	return &MatcherService{
		requests:  requests,
		donors:    donors,
		publisher: publisher,
		metrics:   m,
		ids:       ids,
		config:    config,
		logger:    logger.WithComponent("matcher"),
	}
}

// CreateBloodRequest opens and activates a blood request
func (s *MatcherService) CreateBloodRequest(ctx context.Context, cmd CreateBloodRequestCommand) (*RequestDTO, error) {
	location := domain.GeoPoint{Latitude: cmd.Latitude, Longitude: cmd.Longitude}
	if !location.IsValid() {
		return nil, apperrors.ErrValidation("invalid coordinates").Wrap(domain.ErrInvalidCoordinates)
	}

	request, err := domain.NewBloodRequest(s.ids.NewID(), cmd.HospitalID, location,
		domain.BloodGroup(cmd.BloodGroup), domain.Component(cmd.Component), cmd.Units,
		domain.Urgency(cmd.Urgency), cmd.RequiredBy)
	if err != nil {
		return nil, apperrors.MapDomainError(err)
	}
	if err := request.Activate(); err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	return s.saveNew(ctx, request, "blood", cmd.Urgency)
}

// CreateOrganRequest opens and activates an organ request
func (s *MatcherService) CreateOrganRequest(ctx context.Context, cmd CreateOrganRequestCommand) (*RequestDTO, error) {
	location := domain.GeoPoint{Latitude: cmd.Latitude, Longitude: cmd.Longitude}
	if !location.IsValid() {
		return nil, apperrors.ErrValidation("invalid coordinates").Wrap(domain.ErrInvalidCoordinates)
	}

	criteria := domain.OrganCriteria{
		OrganType:          domain.OrganType(cmd.OrganType),
		MinAge:             cmd.MinAge,
		MaxAge:             cmd.MaxAge,
		MinWeightKg:        cmd.MinWeightKg,
		MaxWeightKg:        cmd.MaxWeightKg,
		MinHeightCm:        cmd.MinHeightCm,
		MaxHeightCm:        cmd.MaxHeightCm,
		HLAMatchLevel:      cmd.HLAMatchLevel,
		CrossmatchRequired: cmd.CrossmatchRequired,
	}

	request, err := domain.NewOrganRequest(s.ids.NewID(), cmd.HospitalID, location,
		domain.BloodGroup(cmd.BloodGroup), criteria, domain.Urgency(cmd.Urgency), cmd.RequiredBy)
	if err != nil {
		return nil, apperrors.MapDomainError(err)
	}
	if err := request.Activate(); err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	return s.saveNew(ctx, request, "organ", cmd.Urgency)
}

func (s *MatcherService) saveNew(ctx context.Context, request *domain.DonationRequest, kind, urgency string) (*RequestDTO, error) {
	events := request.ClearEvents()
	if err := s.requests.Save(ctx, request); err != nil {
		s.logger.Error("Failed to save request", "requestId", request.RequestID, "error", err)
		return nil, fmt.Errorf("failed to save request: %w", err)
	}

	s.publisher.Publish(ctx, events)
	s.metrics.RecordRequestCreated(kind, urgency)
	s.logger.Info("Request created", "requestId", request.RequestID, "kind", kind, "urgency", urgency)
	return ToRequestDTO(request), nil
}

// GetRequest returns one request, lazily expiring it when its deadline passed
func (s *MatcherService) GetRequest(ctx context.Context, requestID string) (*RequestDTO, error) {
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.CheckExpiry(time.Now()) {
		events := request.ClearEvents()
		if err := s.requests.Save(ctx, request); err != nil {
			return nil, fmt.Errorf("failed to save expired request: %w", err)
		}
		s.publisher.Publish(ctx, events)
	}

	return ToRequestDTO(request), nil
}

// ListRequests returns requests matching the filter
func (s *MatcherService) ListRequests(ctx context.Context, filter domain.RequestFilter, offset, limit int) ([]*RequestDTO, int64, error) {
	requests, total, err := s.requests.List(ctx, filter, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list requests: %w", err)
	}

	dtos := make([]*RequestDTO, 0, len(requests))
	for _, r := range requests {
		dtos = append(dtos, ToRequestDTO(r))
	}
	return dtos, total, nil
}

// FindCandidates evaluates the donor registry against a request and persists
// the top candidates as DonorMatch records.
func (s *MatcherService) FindCandidates(ctx context.Context, cmd RunMatchingCommand) (*RequestDTO, error) {
	request, err := s.loadRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if request.IsTerminal() {
		return nil, apperrors.ErrInvalidTransition(fmt.Sprintf("request %s is %s", request.RequestID, request.Status)).
			Wrap(domain.ErrRequestNotActive)
	}

	maxRadius := s.config.MaxRadiusKm
	if cmd.MaxRadius > 0 {
		maxRadius = cmd.MaxRadius
	}
	limit := s.config.MaxCandidates
	if cmd.Limit > 0 {
		limit = cmd.Limit
	}

	var candidates []*domain.Donor
	if request.Kind == domain.RequestKindOrgan {
		candidates, err = s.donors.FindOrganDonorsByGroups(ctx, request.CompatibleGroups)
	} else {
		candidates, err = s.donors.FindByGroups(ctx, request.CompatibleGroups)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load donor candidates: %w", err)
	}

	now := time.Now()
	matches := make([]domain.DonorMatch, 0, limit)
	for _, donor := range candidates {
		if s.alreadyMatched(request, donor.DonorID) {
			continue
		}
		if !s.eligible(request, donor, now) {
			continue
		}

		distance := request.Location.DistanceKm(donor.Location)
		if distance > maxRadius {
			continue
		}

		matches = append(matches, domain.DonorMatch{
			DonorID:    donor.DonorID,
			BloodGroup: donor.BloodGroup,
			Score:      s.score(request, donor, distance, now),
			DistanceKm: distance,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].DistanceKm != matches[j].DistanceKm {
			return matches[i].DistanceKm < matches[j].DistanceKm
		}
		return matches[i].DonorID < matches[j].DonorID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	if err := request.RecordMatches(matches); err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	events := request.ClearEvents()
	if err := s.requests.Save(ctx, request); err != nil {
		s.logger.Error("Failed to save request", "requestId", request.RequestID, "error", err)
		return nil, fmt.Errorf("failed to save request: %w", err)
	}

	s.publisher.Publish(ctx, events)
	s.metrics.RecordMatchEvaluated(string(request.Kind))
	s.logger.Info("Candidates evaluated", "requestId", request.RequestID,
		"evaluated", len(candidates), "matched", len(matches))
	return ToRequestDTO(request), nil
}

func (s *MatcherService) alreadyMatched(request *domain.DonationRequest, donorID string) bool {
	for _, m := range request.Matches {
		if m.DonorID == donorID {
			return true
		}
	}
	return false
}

// eligible re-checks a candidate against the live registry record. The
// group check repeats what the candidate query filtered on: the registry
// projection can correct a donor's group between matching and response.
func (s *MatcherService) eligible(request *domain.DonationRequest, donor *domain.Donor, now time.Time) bool {
	if request.Kind == domain.RequestKindOrgan {
		return domain.OrganCompatible(donor.BloodGroup, request.PatientBloodGroup) &&
			donor.EligibleForOrgan(*request.Organ)
	}
	return domain.CanDonate(donor.BloodGroup, request.PatientBloodGroup) &&
		donor.EligibleForBlood(now, s.config.DonationCooldown)
}

// score combines compatibility tier, proximity, donor rating and a recency
// penalty into a single comparable number.
func (s *MatcherService) score(request *domain.DonationRequest, donor *domain.Donor, distance float64, now time.Time) float64 {
	score := s.config.CompatibleScore
	if domain.IsExactMatch(donor.BloodGroup, request.PatientBloodGroup) {
		score += s.config.ExactMatchBonus
	}

	score += s.config.DistanceWeight * (s.config.DistanceScaleKm / (s.config.DistanceScaleKm + distance))
	score += s.config.RatingWeight * donor.Rating

	if donor.LastDonationAt != nil {
		sinceDonation := now.Sub(*donor.LastDonationAt)
		if sinceDonation < 2*s.config.DonationCooldown {
			fraction := 1 - float64(sinceDonation)/float64(2*s.config.DonationCooldown)
			score -= s.config.RecencyPenalty * fraction
		}
	}

	return score
}

// ContactDonor records a contact attempt against a matched donor
func (s *MatcherService) ContactDonor(ctx context.Context, cmd ContactDonorCommand) (*RequestDTO, error) {
	request, err := s.loadRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}

	if err := request.MarkContacted(cmd.DonorID); err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	if err := s.requests.Save(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to save request: %w", err)
	}

	s.logger.Info("Donor contacted", "requestId", cmd.RequestID, "donorId", cmd.DonorID)
	return ToRequestDTO(request), nil
}

// RecordDonorResponse records a contacted donor's answer. An acceptance
// re-validates the donor's eligibility: availability can change between
// matching and response.
func (s *MatcherService) RecordDonorResponse(ctx context.Context, cmd DonorResponseCommand) (*RequestDTO, error) {
	request, err := s.loadRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}

	response := domain.MatchResponse(cmd.Response)
	if response == domain.MatchAccepted {
		donor, err := s.donors.FindByID(ctx, cmd.DonorID)
		if err != nil {
			return nil, fmt.Errorf("failed to load donor: %w", err)
		}
		if donor == nil || !s.eligible(request, donor, time.Now()) {
			return nil, apperrors.MapDomainError(
				fmt.Errorf("%w: donor %s", domain.ErrIneligibleDonor, cmd.DonorID))
		}
	}

	if err := request.RecordDonorResponse(cmd.DonorID, response); err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	events := request.ClearEvents()
	if err := s.requests.Save(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to save request: %w", err)
	}

	s.publisher.Publish(ctx, events)
	s.logger.Info("Donor responded", "requestId", cmd.RequestID, "donorId", cmd.DonorID, "response", cmd.Response)
	return ToRequestDTO(request), nil
}

// CancelRequest closes a request from any non-terminal state
func (s *MatcherService) CancelRequest(ctx context.Context, cmd CancelRequestCommand) (*RequestDTO, error) {
	request, err := s.loadRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}

	if err := request.Cancel(cmd.Note); err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	events := request.ClearEvents()
	if err := s.requests.Save(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to save request: %w", err)
	}

	s.publisher.Publish(ctx, events)
	s.logger.Info("Request cancelled", "requestId", cmd.RequestID)
	return ToRequestDTO(request), nil
}

// TransitionOrganRequest advances an organ request's status machine
func (s *MatcherService) TransitionOrganRequest(ctx context.Context, cmd TransitionOrganRequestCommand) (*RequestDTO, error) {
	request, err := s.loadRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}

	switch cmd.To {
	case domain.OrganRequestTransplantScheduled:
		err = request.ScheduleTransplant(cmd.Note)
	case domain.OrganRequestTransplanted:
		err = request.MarkTransplanted(cmd.Note)
	case domain.OrganRequestDeceased:
		err = request.MarkDeceased(cmd.Note)
	default:
		err = fmt.Errorf("%w: target status %q", domain.ErrInvalidTransition, cmd.To)
	}
	if err != nil {
		return nil, apperrors.MapDomainError(err)
	}

	events := request.ClearEvents()
	if err := s.requests.Save(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to save request: %w", err)
	}

	s.publisher.Publish(ctx, events)
	s.logger.Info("Organ request transitioned", "requestId", cmd.RequestID, "to", cmd.To)
	return ToRequestDTO(request), nil
}

// RunExpirySweep expires overdue blood requests. Returns the number expired.
func (s *MatcherService) RunExpirySweep(ctx context.Context) (int, error) {
	start := time.Now()

	overdue, err := s.requests.FindExpiredBlood(ctx, start)
	if err != nil {
		s.logger.SweepResult(ctx, "request-expiry", 0, time.Since(start), err)
		return 0, fmt.Errorf("failed to find overdue requests: %w", err)
	}

	expired := 0
	var sweepErr error
	for _, request := range overdue {
		if !request.CheckExpiry(start) {
			continue
		}
		events := request.ClearEvents()
		if err := s.requests.Save(ctx, request); err != nil {
			sweepErr = errors.Join(sweepErr, fmt.Errorf("request %s: %w", request.RequestID, err))
			continue
		}
		s.publisher.Publish(ctx, events)
		expired++
	}

	s.logger.SweepResult(ctx, "request-expiry", expired, time.Since(start), sweepErr)
	return expired, sweepErr
}

func (s *MatcherService) loadRequest(ctx context.Context, requestID string) (*domain.DonationRequest, error) {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if request == nil {
		return nil, apperrors.ErrNotFound("request").Wrap(domain.ErrRequestNotFound)
	}
	return request, nil
}
