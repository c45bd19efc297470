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

func newMatcherService(requests *fakeRequestRepo, donors *fakeDonorRepo, producer *fakeProducer) *MatcherService {
	return NewMatcherService(requests, donors, testPublisher(producer), testMetrics(),
		&sequentialIDs{prefix: "REQ"}, DefaultMatcherConfig(), testLogger())
}

func registryDonor(id string, group domain.BloodGroup, lat, lon float64) *domain.Donor {
	return &domain.Donor{
		DonorID:      id,
		BloodGroup:   group,
		Location:     domain.GeoPoint{Latitude: lat, Longitude: lon},
		Age:          30,
		WeightKg:     75,
		HeightCm:     175,
		Rating:       4,
		IsAvailable:  true,
		MedicallyFit: true,
		OrganDonor:   true,
	}
}

func bloodRequestCmd() CreateBloodRequestCommand {
	return CreateBloodRequestCommand{
		HospitalID: "HOSP-001",
		Latitude:   19.076,
		Longitude:  72.8777,
		BloodGroup: "A+",
		Component:  "red_cells",
		Units:      3,
		Urgency:    "urgent",
	}
}

// TestCreateBloodRequest tests request creation and activation
func TestCreateBloodRequest(t *testing.T) {
	requests := newFakeRequestRepo()
	producer := &fakeProducer{}
	svc := newMatcherService(requests, newFakeDonorRepo(), producer)

	dto, err := svc.CreateBloodRequest(context.Background(), bloodRequestCmd())
	require.NoError(t, err)
	assert.Equal(t, "REQ-001", dto.RequestID)
	assert.Equal(t, domain.BloodRequestActive, dto.Status)
	assert.ElementsMatch(t, []string{"A+", "A-", "O+", "O-"}, dto.CompatibleGroups)
	assert.Contains(t, producer.eventTypes(), "donation.request.created")
}

// TestCreateBloodRequestValidation tests rejected inputs
func TestCreateBloodRequestValidation(t *testing.T) {
	svc := newMatcherService(newFakeRequestRepo(), newFakeDonorRepo(), &fakeProducer{})

	cmd := bloodRequestCmd()
	cmd.Latitude = 120
	_, err := svc.CreateBloodRequest(context.Background(), cmd)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeValidationError, appErr.Code)
	assert.ErrorIs(t, err, domain.ErrInvalidCoordinates)

	_, err = svc.FindCandidates(context.Background(), RunMatchingCommand{RequestID: "REQ-MISSING"})
	appErr, ok = apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)

	cmd = bloodRequestCmd()
	cmd.BloodGroup = "Z+"
	_, err = svc.CreateBloodRequest(context.Background(), cmd)
	appErr, ok = apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeValidationError, appErr.Code)
}

// TestFindCandidates tests filtering, scoring and deterministic ordering
func TestFindCandidates(t *testing.T) {
	requests := newFakeRequestRepo()
	inCooldown := time.Now().Add(-10 * 24 * time.Hour)

	near := registryDonor("DON-NEAR", domain.GroupAPos, 19.1, 72.9)
	far := registryDonor("DON-FAR", domain.GroupONeg, 19.5, 73.3)
	tooFar := registryDonor("DON-TOOFAR", domain.GroupAPos, 28.7, 77.1)
	cooling := registryDonor("DON-COOLING", domain.GroupAPos, 19.1, 72.9)
	cooling.LastDonationAt = &inCooldown
	wrongGroup := registryDonor("DON-B", domain.GroupBPos, 19.1, 72.9)

	donors := newFakeDonorRepo(near, far, tooFar, cooling, wrongGroup)
	svc := newMatcherService(requests, donors, &fakeProducer{})

	created, err := svc.CreateBloodRequest(context.Background(), bloodRequestCmd())
	require.NoError(t, err)

	dto, err := svc.FindCandidates(context.Background(), RunMatchingCommand{RequestID: created.RequestID})
	require.NoError(t, err)

	// cooldown, radius and incompatible donors are filtered out; exact match
	// plus proximity puts the A+ donor first
	require.Len(t, dto.Matches, 2)
	assert.Equal(t, "DON-NEAR", dto.Matches[0].DonorID)
	assert.Equal(t, "DON-FAR", dto.Matches[1].DonorID)
	assert.Greater(t, dto.Matches[0].Score, dto.Matches[1].Score)
	assert.Equal(t, string(domain.MatchNotContacted), dto.Matches[0].Response)

	// re-running does not duplicate existing matches
	dto, err = svc.FindCandidates(context.Background(), RunMatchingCommand{RequestID: created.RequestID})
	require.NoError(t, err)
	assert.Len(t, dto.Matches, 2)
}

// TestFindCandidatesOrganConsent tests the organ donor consent filter
func TestFindCandidatesOrganConsent(t *testing.T) {
	requests := newFakeRequestRepo()

	consenting := registryDonor("DON-YES", domain.GroupBNeg, 19.1, 72.9)
	nonConsenting := registryDonor("DON-NO", domain.GroupBNeg, 19.1, 72.9)
	nonConsenting.OrganDonor = false

	svc := newMatcherService(requests, newFakeDonorRepo(consenting, nonConsenting), &fakeProducer{})

	created, err := svc.CreateOrganRequest(context.Background(), CreateOrganRequestCommand{
		HospitalID: "HOSP-001",
		Latitude:   19.076,
		Longitude:  72.8777,
		BloodGroup: "B-",
		OrganType:  "kidney",
		MinAge:     18,
		MaxAge:     60,
		Urgency:    "high",
	})
	require.NoError(t, err)

	dto, err := svc.FindCandidates(context.Background(), RunMatchingCommand{RequestID: created.RequestID})
	require.NoError(t, err)
	require.Len(t, dto.Matches, 1)
	assert.Equal(t, "DON-YES", dto.Matches[0].DonorID)
	assert.Equal(t, domain.OrganRequestMatchFound, dto.Status)
}

// TestRecordDonorResponse tests the contact funnel with reservation-time
// re-validation of eligibility
func TestRecordDonorResponse(t *testing.T) {
	requests := newFakeRequestRepo()
	donor := registryDonor("DON-001", domain.GroupAPos, 19.1, 72.9)
	donors := newFakeDonorRepo(donor)
	svc := newMatcherService(requests, donors, &fakeProducer{})

	created, err := svc.CreateBloodRequest(context.Background(), bloodRequestCmd())
	require.NoError(t, err)
	_, err = svc.FindCandidates(context.Background(), RunMatchingCommand{RequestID: created.RequestID})
	require.NoError(t, err)

	_, err = svc.ContactDonor(context.Background(), ContactDonorCommand{
		RequestID: created.RequestID, DonorID: "DON-001",
	})
	require.NoError(t, err)

	// donor became unavailable between matching and acceptance
	donor.IsAvailable = false
	_, err = svc.RecordDonorResponse(context.Background(), DonorResponseCommand{
		RequestID: created.RequestID, DonorID: "DON-001", Response: "accepted",
	})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeIneligibleDonor, appErr.Code)

	// a decline does not re-validate
	dto, err := svc.RecordDonorResponse(context.Background(), DonorResponseCommand{
		RequestID: created.RequestID, DonorID: "DON-001", Response: "declined",
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.MatchDeclined), dto.Matches[0].Response)
}

// TestCancelRequest tests manual cancellation
func TestCancelRequest(t *testing.T) {
	svc := newMatcherService(newFakeRequestRepo(), newFakeDonorRepo(), &fakeProducer{})

	created, err := svc.CreateBloodRequest(context.Background(), bloodRequestCmd())
	require.NoError(t, err)

	dto, err := svc.CancelRequest(context.Background(), CancelRequestCommand{RequestID: created.RequestID, Note: "duplicate"})
	require.NoError(t, err)
	assert.Equal(t, domain.BloodRequestCancelled, dto.Status)

	_, err = svc.CancelRequest(context.Background(), CancelRequestCommand{RequestID: created.RequestID})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidTransition, appErr.Code)

	// matching refuses requests that already reached a terminal status
	_, err = svc.FindCandidates(context.Background(), RunMatchingCommand{RequestID: created.RequestID})
	assert.ErrorIs(t, err, domain.ErrRequestNotActive)
}

// TestGetRequestLazyExpiry tests the deadline check on read
func TestGetRequestLazyExpiry(t *testing.T) {
	requests := newFakeRequestRepo()
	producer := &fakeProducer{}
	svc := newMatcherService(requests, newFakeDonorRepo(), producer)

	deadline := time.Now().Add(time.Millisecond)
	cmd := bloodRequestCmd()
	cmd.RequiredBy = &deadline
	created, err := svc.CreateBloodRequest(context.Background(), cmd)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	dto, err := svc.GetRequest(context.Background(), created.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.BloodRequestExpired, dto.Status)
	assert.Contains(t, producer.eventTypes(), "donation.request.expired")
}

// TestRequestExpirySweep tests the sweeper pass over overdue requests
func TestRequestExpirySweep(t *testing.T) {
	requests := newFakeRequestRepo()
	svc := newMatcherService(requests, newFakeDonorRepo(), &fakeProducer{})

	deadline := time.Now().Add(time.Millisecond)
	cmd := bloodRequestCmd()
	cmd.RequiredBy = &deadline
	created, err := svc.CreateBloodRequest(context.Background(), cmd)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	expired, err := svc.RunExpirySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, domain.BloodRequestExpired, requests.requests[created.RequestID].Status)
}

// TestTransitionOrganRequest tests driving the organ machine through the service
func TestTransitionOrganRequest(t *testing.T) {
	requests := newFakeRequestRepo()
	donor := registryDonor("DON-001", domain.GroupBNeg, 19.1, 72.9)
	svc := newMatcherService(requests, newFakeDonorRepo(donor), &fakeProducer{})

	created, err := svc.CreateOrganRequest(context.Background(), CreateOrganRequestCommand{
		HospitalID: "HOSP-001", Latitude: 19.076, Longitude: 72.8777,
		BloodGroup: "B-", OrganType: "kidney", Urgency: "critical",
	})
	require.NoError(t, err)

	_, err = svc.FindCandidates(context.Background(), RunMatchingCommand{RequestID: created.RequestID})
	require.NoError(t, err)

	dto, err := svc.TransitionOrganRequest(context.Background(), TransitionOrganRequestCommand{
		RequestID: created.RequestID, To: domain.OrganRequestTransplantScheduled, Note: "OR booked",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrganRequestTransplantScheduled, dto.Status)

	dto, err = svc.TransitionOrganRequest(context.Background(), TransitionOrganRequestCommand{
		RequestID: created.RequestID, To: domain.OrganRequestTransplanted,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrganRequestTransplanted, dto.Status)
}
