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

func newBroadcasterService(alerts *fakeAlertRepo, donors *fakeDonorRepo, producer *fakeProducer) *BroadcasterService {
	return NewBroadcasterService(alerts, donors, testPublisher(producer), testMetrics(),
		&sequentialIDs{prefix: "ALERT"}, 0, testLogger())
}

func raiseAlertCmd() RaiseAlertCommand {
	return RaiseAlertCommand{
		AlertType:  "mass_casualty",
		Severity:   "critical",
		HospitalID: "HOSP-001",
		Latitude:   19.076,
		Longitude:  72.8777,
		Message:    "multiple trauma admissions, O negative needed",
		Requirements: []AlertRequirementInput{
			{BloodGroup: "O-", Component: "whole_blood", RequiredUnits: 2},
		},
		BloodGroups: []string{"O-"},
		RadiusKm:    25,
	}
}

// TestRaiseAlert tests alert activation and audience counting
func TestRaiseAlert(t *testing.T) {
	recent := time.Now().Add(-20 * 24 * time.Hour)

	eligible := registryDonor("DON-IN", domain.GroupONeg, 19.1, 72.9)
	cooling := registryDonor("DON-COOLING", domain.GroupONeg, 19.1, 72.9)
	cooling.LastDonationAt = &recent
	outside := registryDonor("DON-OUTSIDE", domain.GroupONeg, 28.7, 77.1)
	unavailable := registryDonor("DON-AWAY", domain.GroupONeg, 19.1, 72.9)
	unavailable.IsAvailable = false

	alerts := newFakeAlertRepo()
	producer := &fakeProducer{}
	svc := newBroadcasterService(alerts, newFakeDonorRepo(eligible, cooling, outside, unavailable), producer)

	dto, err := svc.RaiseAlert(context.Background(), raiseAlertCmd())
	require.NoError(t, err)
	assert.Equal(t, "ALERT-001", dto.AlertID)
	assert.Equal(t, string(domain.AlertStatusActive), dto.Status)
	assert.Equal(t, 1, dto.TotalNotified)
	assert.Contains(t, producer.eventTypes(), "donation.alert.raised")
}

// TestRaiseAlertDefaultAudience tests group derivation from the requirements
func TestRaiseAlertDefaultAudience(t *testing.T) {
	// B+ recipients can receive from B+, B-, O+, O-
	donors := newFakeDonorRepo(
		registryDonor("DON-B", domain.GroupBNeg, 19.1, 72.9),
		registryDonor("DON-O", domain.GroupOPos, 19.1, 72.9),
		registryDonor("DON-A", domain.GroupAPos, 19.1, 72.9),
	)
	svc := newBroadcasterService(newFakeAlertRepo(), donors, &fakeProducer{})

	cmd := raiseAlertCmd()
	cmd.Requirements = []AlertRequirementInput{{BloodGroup: "B+", Component: "red_cells", RequiredUnits: 3}}
	cmd.BloodGroups = nil
	dto, err := svc.RaiseAlert(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 2, dto.TotalNotified)
}

// TestRaiseAlertValidation tests rejected raise commands
func TestRaiseAlertValidation(t *testing.T) {
	svc := newBroadcasterService(newFakeAlertRepo(), newFakeDonorRepo(), &fakeProducer{})

	tests := []struct {
		name   string
		modify func(cmd *RaiseAlertCommand)
	}{
		{
			name:   "bad coordinates",
			modify: func(cmd *RaiseAlertCommand) { cmd.Longitude = 200 },
		},
		{
			name:   "unknown alert type",
			modify: func(cmd *RaiseAlertCommand) { cmd.AlertType = "weather" },
		},
		{
			name: "zero unit requirement",
			modify: func(cmd *RaiseAlertCommand) {
				cmd.Requirements[0].RequiredUnits = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := raiseAlertCmd()
			tt.modify(&cmd)
			_, err := svc.RaiseAlert(context.Background(), cmd)
			appErr, ok := apperrors.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.CodeValidationError, appErr.Code)
		})
	}
}

// TestAlertResponseFunnel tests confirmed responses driving resolution
func TestAlertResponseFunnel(t *testing.T) {
	first := registryDonor("DON-001", domain.GroupONeg, 19.1, 72.9)
	second := registryDonor("DON-002", domain.GroupONeg, 19.15, 72.95)
	decliner := registryDonor("DON-003", domain.GroupOPos, 19.1, 72.9)
	donors := newFakeDonorRepo(first, second, decliner)

	alerts := newFakeAlertRepo()
	producer := &fakeProducer{}
	svc := newBroadcasterService(alerts, donors, producer)

	created, err := svc.RaiseAlert(context.Background(), raiseAlertCmd())
	require.NoError(t, err)

	dto, err := svc.RecordResponse(context.Background(), AlertResponseCommand{
		AlertID: created.AlertID, DonorID: "DON-003", Confirmed: false,
	}, 0, "")
	require.NoError(t, err)
	assert.Equal(t, string(domain.AlertStatusActive), dto.Status)
	assert.Equal(t, 1, dto.TotalResponses)

	// duplicate answers are rejected while the alert is open
	_, err = svc.RecordResponse(context.Background(), AlertResponseCommand{
		AlertID: created.AlertID, DonorID: "DON-003", Confirmed: true,
	}, 0, "")
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeConflict, appErr.Code)

	// one of two required units: the only requirement line is still short,
	// so the alert stays active
	dto, err = svc.RecordResponse(context.Background(), AlertResponseCommand{
		AlertID: created.AlertID, DonorID: "DON-001", Confirmed: true,
	}, 30, "car")
	require.NoError(t, err)
	assert.Equal(t, string(domain.AlertStatusActive), dto.Status)
	assert.Equal(t, 1, dto.Requirements[0].FulfilledUnits)

	dto, err = svc.RecordResponse(context.Background(), AlertResponseCommand{
		AlertID: created.AlertID, DonorID: "DON-002", Confirmed: true,
	}, 45, "ambulance")
	require.NoError(t, err)
	assert.Equal(t, string(domain.AlertStatusResolved), dto.Status)
	assert.ElementsMatch(t, []string{"DON-001", "DON-002"}, dto.ConfirmedDonors)
	assert.Contains(t, producer.eventTypes(), "donation.alert.resolved")

	// a resolved alert takes no further responses
	_, err = svc.RecordResponse(context.Background(), AlertResponseCommand{
		AlertID: created.AlertID, DonorID: "DON-001", Confirmed: true,
	}, 30, "car")
	appErr, ok = apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidTransition, appErr.Code)
}

// TestRecordResponseUnknownDonor tests the registry lookup guard
func TestRecordResponseUnknownDonor(t *testing.T) {
	svc := newBroadcasterService(newFakeAlertRepo(), newFakeDonorRepo(), &fakeProducer{})

	created, err := svc.RaiseAlert(context.Background(), raiseAlertCmd())
	require.NoError(t, err)

	_, err = svc.RecordResponse(context.Background(), AlertResponseCommand{
		AlertID: created.AlertID, DonorID: "DON-GHOST", Confirmed: true,
	}, 0, "")
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)
	assert.ErrorIs(t, err, domain.ErrDonorNotFound)
}

// TestGetAlertNotFound tests the lookup on an unknown alert id
func TestGetAlertNotFound(t *testing.T) {
	svc := newBroadcasterService(newFakeAlertRepo(), newFakeDonorRepo(), &fakeProducer{})

	_, err := svc.GetAlert(context.Background(), "ALERT-404")
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)
	assert.ErrorIs(t, err, domain.ErrAlertNotFound)
}

// TestApplyFulfillment tests crediting committed stock against an alert
func TestApplyFulfillment(t *testing.T) {
	alerts := newFakeAlertRepo()
	svc := newBroadcasterService(alerts, newFakeDonorRepo(), &fakeProducer{})

	created, err := svc.RaiseAlert(context.Background(), raiseAlertCmd())
	require.NoError(t, err)

	dto, err := svc.ApplyFulfillment(context.Background(), created.AlertID, "O-", "whole_blood", 1)
	require.NoError(t, err)
	assert.Equal(t, string(domain.AlertStatusActive), dto.Status)

	dto, err = svc.ApplyFulfillment(context.Background(), created.AlertID, "O-", "whole_blood", 1)
	require.NoError(t, err)
	assert.Equal(t, string(domain.AlertStatusResolved), dto.Status)
	assert.NotNil(t, dto.ResolvedAt)
}

// TestAlertPartialResolution tests the status with some requirement lines
// filled and others still short
func TestAlertPartialResolution(t *testing.T) {
	alerts := newFakeAlertRepo()
	svc := newBroadcasterService(alerts, newFakeDonorRepo(), &fakeProducer{})

	cmd := raiseAlertCmd()
	cmd.Requirements = []AlertRequirementInput{
		{BloodGroup: "O-", Component: "whole_blood", RequiredUnits: 1},
		{BloodGroup: "O-", Component: "platelets", RequiredUnits: 2},
	}
	created, err := svc.RaiseAlert(context.Background(), cmd)
	require.NoError(t, err)

	// whole line filled, other line untouched
	dto, err := svc.ApplyFulfillment(context.Background(), created.AlertID, "O-", "whole_blood", 1)
	require.NoError(t, err)
	assert.Equal(t, string(domain.AlertStatusPartiallyResolved), dto.Status)

	// partial credit on the remaining line does not advance the status
	dto, err = svc.ApplyFulfillment(context.Background(), created.AlertID, "O-", "platelets", 1)
	require.NoError(t, err)
	assert.Equal(t, string(domain.AlertStatusPartiallyResolved), dto.Status)

	dto, err = svc.ApplyFulfillment(context.Background(), created.AlertID, "O-", "platelets", 1)
	require.NoError(t, err)
	assert.Equal(t, string(domain.AlertStatusResolved), dto.Status)
}

// TestResolveAndCancelAlert tests manual closing
func TestResolveAndCancelAlert(t *testing.T) {
	alerts := newFakeAlertRepo()
	svc := newBroadcasterService(alerts, newFakeDonorRepo(), &fakeProducer{})

	created, err := svc.RaiseAlert(context.Background(), raiseAlertCmd())
	require.NoError(t, err)

	dto, err := svc.ResolveAlert(context.Background(), created.AlertID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.AlertStatusResolved), dto.Status)

	_, err = svc.CancelAlert(context.Background(), created.AlertID)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidTransition, appErr.Code)
}

// TestAlertExpirySweep tests the sweeper pass over overdue alerts
func TestAlertExpirySweep(t *testing.T) {
	alerts := newFakeAlertRepo()
	producer := &fakeProducer{}
	svc := newBroadcasterService(alerts, newFakeDonorRepo(), producer)

	soon := time.Now().Add(time.Millisecond)
	cmd := raiseAlertCmd()
	cmd.ExpiresAt = &soon
	created, err := svc.RaiseAlert(context.Background(), cmd)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	expired, err := svc.RunExpirySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, domain.AlertStatusExpired, alerts.alerts[created.AlertID].Status)
	assert.Contains(t, producer.eventTypes(), "donation.alert.expired")
}
