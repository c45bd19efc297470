package application

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bloodbank-platform/allocation-service/pkg/cloudevents"
	"github.com/bloodbank-platform/allocation-service/pkg/logging"
	"github.com/bloodbank-platform/allocation-service/pkg/metrics"

	"github.com/bloodbank-platform/allocation-service/internal/domain"
)

type fakeProducer struct {
	mu         sync.Mutex
	published  []*cloudevents.DonationCloudEvent
	publishErr error
}

func (f *fakeProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.DonationCloudEvent) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, event)
	return nil
}

func (f *fakeProducer) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, 0, len(f.published))
	for _, e := range f.published {
		types = append(types, e.Type)
	}
	return types
}

type fakeStockLineRepo struct {
	lines   map[string]*domain.StockLine
	saveErr error
	findErr error
}

func newFakeStockLineRepo() *fakeStockLineRepo {
	return &fakeStockLineRepo{lines: make(map[string]*domain.StockLine)}
}

func (f *fakeStockLineRepo) Save(ctx context.Context, line *domain.StockLine) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.lines[line.Key()] = line
	return nil
}

func (f *fakeStockLineRepo) FindByKey(ctx context.Context, bankID string, group domain.BloodGroup, component domain.Component) (*domain.StockLine, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.lines[domain.LineKey(bankID, group, component)], nil
}

func (f *fakeStockLineRepo) FindByBank(ctx context.Context, bankID string) ([]*domain.StockLine, error) {
	results := make([]*domain.StockLine, 0)
	for _, line := range f.lines {
		if line.BankID == bankID {
			results = append(results, line)
		}
	}
	return results, nil
}

func (f *fakeStockLineRepo) List(ctx context.Context, filter domain.StockLineFilter, offset, limit int) ([]*domain.StockLine, int64, error) {
	results := make([]*domain.StockLine, 0)
	for _, line := range f.lines {
		if filter.BankID != "" && line.BankID != filter.BankID {
			continue
		}
		if filter.BloodGroup != "" && line.BloodGroup != filter.BloodGroup {
			continue
		}
		if filter.Component != "" && line.Component != filter.Component {
			continue
		}
		results = append(results, line)
	}
	return results, int64(len(results)), nil
}

func (f *fakeStockLineRepo) FindWithExpiredBatches(ctx context.Context, now time.Time) ([]*domain.StockLine, error) {
	results := make([]*domain.StockLine, 0)
	for _, line := range f.lines {
		for i := range line.Batches {
			if line.Batches[i].IsExpired(now) {
				results = append(results, line)
				break
			}
		}
	}
	return results, nil
}

func (f *fakeStockLineRepo) FindLowStock(ctx context.Context) ([]*domain.StockLine, error) {
	results := make([]*domain.StockLine, 0)
	for _, line := range f.lines {
		if line.TotalUnits-line.ReservedUnits <= line.Thresholds.MinimumStock {
			results = append(results, line)
		}
	}
	return results, nil
}

type fakeReservationRepo struct {
	reservations map[string]*domain.Reservation
	saveErr      error
}

func newFakeReservationRepo() *fakeReservationRepo {
	return &fakeReservationRepo{reservations: make(map[string]*domain.Reservation)}
}

func (f *fakeReservationRepo) Save(ctx context.Context, r *domain.Reservation) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.reservations[r.ReservationID] = r
	return nil
}

func (f *fakeReservationRepo) FindByID(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	return f.reservations[reservationID], nil
}

func (f *fakeReservationRepo) FindActiveByRequest(ctx context.Context, requestID string) ([]*domain.Reservation, error) {
	results := make([]*domain.Reservation, 0)
	for _, r := range f.reservations {
		if r.RequestID == requestID && r.IsActive() {
			results = append(results, r)
		}
	}
	return results, nil
}

func (f *fakeReservationRepo) FindOverdue(ctx context.Context, now time.Time) ([]*domain.Reservation, error) {
	results := make([]*domain.Reservation, 0)
	for _, r := range f.reservations {
		if r.IsOverdue(now) {
			results = append(results, r)
		}
	}
	return results, nil
}

func (f *fakeReservationRepo) List(ctx context.Context, bankID string, status domain.ReservationStatus, offset, limit int) ([]*domain.Reservation, int64, error) {
	results := make([]*domain.Reservation, 0)
	for _, r := range f.reservations {
		if bankID != "" && r.BankID != bankID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		results = append(results, r)
	}
	return results, int64(len(results)), nil
}

type fakeRequestRepo struct {
	requests map[string]*domain.DonationRequest
	saveErr  error
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[string]*domain.DonationRequest)}
}

func (f *fakeRequestRepo) Save(ctx context.Context, r *domain.DonationRequest) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.requests[r.RequestID] = r
	return nil
}

func (f *fakeRequestRepo) FindByID(ctx context.Context, requestID string) (*domain.DonationRequest, error) {
	return f.requests[requestID], nil
}

func (f *fakeRequestRepo) List(ctx context.Context, filter domain.RequestFilter, offset, limit int) ([]*domain.DonationRequest, int64, error) {
	results := make([]*domain.DonationRequest, 0)
	for _, r := range f.requests {
		if filter.Kind != "" && r.Kind != filter.Kind {
			continue
		}
		if filter.HospitalID != "" && r.HospitalID != filter.HospitalID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		results = append(results, r)
	}
	return results, int64(len(results)), nil
}

func (f *fakeRequestRepo) FindExpiredBlood(ctx context.Context, now time.Time) ([]*domain.DonationRequest, error) {
	results := make([]*domain.DonationRequest, 0)
	for _, r := range f.requests {
		if r.Kind != domain.RequestKindBlood || r.RequiredBy == nil || r.IsTerminal() {
			continue
		}
		if !r.RequiredBy.After(now) {
			results = append(results, r)
		}
	}
	return results, nil
}

type fakeDonorRepo struct {
	donors  map[string]*domain.Donor
	findErr error
}

func newFakeDonorRepo(donors ...*domain.Donor) *fakeDonorRepo {
	repo := &fakeDonorRepo{donors: make(map[string]*domain.Donor)}
	for _, d := range donors {
		repo.donors[d.DonorID] = d
	}
	return repo
}

func (f *fakeDonorRepo) FindByID(ctx context.Context, donorID string) (*domain.Donor, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.donors[donorID], nil
}

func (f *fakeDonorRepo) FindByGroups(ctx context.Context, groups []domain.BloodGroup) ([]*domain.Donor, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	results := make([]*domain.Donor, 0)
	for _, d := range f.donors {
		for _, g := range groups {
			if d.BloodGroup == g {
				results = append(results, d)
				break
			}
		}
	}
	return results, nil
}

func (f *fakeDonorRepo) FindOrganDonorsByGroups(ctx context.Context, groups []domain.BloodGroup) ([]*domain.Donor, error) {
	all, err := f.FindByGroups(ctx, groups)
	if err != nil {
		return nil, err
	}
	results := make([]*domain.Donor, 0)
	for _, d := range all {
		if d.OrganDonor {
			results = append(results, d)
		}
	}
	return results, nil
}

type fakeAlertRepo struct {
	alerts  map[string]*domain.EmergencyAlert
	saveErr error
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{alerts: make(map[string]*domain.EmergencyAlert)}
}

func (f *fakeAlertRepo) Save(ctx context.Context, a *domain.EmergencyAlert) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.alerts[a.AlertID] = a
	return nil
}

func (f *fakeAlertRepo) FindByID(ctx context.Context, alertID string) (*domain.EmergencyAlert, error) {
	return f.alerts[alertID], nil
}

func (f *fakeAlertRepo) FindOpen(ctx context.Context) ([]*domain.EmergencyAlert, error) {
	results := make([]*domain.EmergencyAlert, 0)
	for _, a := range f.alerts {
		if a.IsOpen() {
			results = append(results, a)
		}
	}
	return results, nil
}

func (f *fakeAlertRepo) FindExpired(ctx context.Context, now time.Time) ([]*domain.EmergencyAlert, error) {
	results := make([]*domain.EmergencyAlert, 0)
	for _, a := range f.alerts {
		if a.IsOpen() && !a.AutoExpireAt.After(now) {
			results = append(results, a)
		}
	}
	return results, nil
}

func (f *fakeAlertRepo) List(ctx context.Context, hospitalID string, status domain.AlertStatus, offset, limit int) ([]*domain.EmergencyAlert, int64, error) {
	results := make([]*domain.EmergencyAlert, 0)
	for _, a := range f.alerts {
		if hospitalID != "" && a.HospitalID != hospitalID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		results = append(results, a)
	}
	return results, int64(len(results)), nil
}

// sequentialIDs hands out predictable ids for assertions
type sequentialIDs struct {
	prefix string
	next   int
}

func (s *sequentialIDs) NewID() string {
	s.next++
	return fmt.Sprintf("%s-%03d", s.prefix, s.next)
}

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{
		Level:       logging.LevelError,
		ServiceName: "allocation-test",
		Output:      io.Discard,
	})
}

func testMetrics() *metrics.Metrics {
	return metrics.New(metrics.DefaultConfig("allocation-test"))
}

func testPublisher(producer *fakeProducer) *EventPublisher {
	return NewEventPublisher(producer, cloudevents.NewEventFactory(cloudevents.SourceAllocation), testLogger())
}
