package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventFactory creates CloudEvents for donation domain events
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a new DonationCloudEvent with the given parameters
func (f *EventFactory) CreateEvent(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
) *DonationCloudEvent {
	event := &DonationCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		Extensions:      make(map[string]interface{}),
	}

	return event
}

// CreateEventWithCorrelation creates an event with correlation tracking
func (f *EventFactory) CreateEventWithCorrelation(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
	correlationID string,
) *DonationCloudEvent {
	event := f.CreateEvent(ctx, eventType, subject, data)
	event.CorrelationID = correlationID
	return event
}

// CreateBatchAddedEvent creates a BatchAdded event
func (f *EventFactory) CreateBatchAddedEvent(
	ctx context.Context,
	bankID string,
	bloodGroup string,
	component string,
	batchID string,
	units int,
	expiryAt time.Time,
) *DonationCloudEvent {
	data := BatchAddedData{
		BankID:     bankID,
		BloodGroup: bloodGroup,
		Component:  component,
		BatchID:    batchID,
		Units:      units,
		ExpiryAt:   expiryAt,
	}
	event := f.CreateEvent(ctx, BatchAdded, "stock/"+bankID+"/"+batchID, data)
	event.BankID = bankID
	return event
}

// CreateBatchExpiredEvent creates a BatchExpired event
func (f *EventFactory) CreateBatchExpiredEvent(
	ctx context.Context,
	bankID string,
	bloodGroup string,
	component string,
	batchID string,
	unitsRemoved int,
) *DonationCloudEvent {
	data := BatchExpiredData{
		BankID:       bankID,
		BloodGroup:   bloodGroup,
		Component:    component,
		BatchID:      batchID,
		UnitsRemoved: unitsRemoved,
	}
	event := f.CreateEvent(ctx, BatchExpired, "stock/"+bankID+"/"+batchID, data)
	event.BankID = bankID
	return event
}

// CreateStockIssuedEvent creates a StockIssued event
func (f *EventFactory) CreateStockIssuedEvent(
	ctx context.Context,
	bankID string,
	bloodGroup string,
	component string,
	units int,
	requestID string,
) *DonationCloudEvent {
	data := StockIssuedData{
		BankID:     bankID,
		BloodGroup: bloodGroup,
		Component:  component,
		Units:      units,
		RequestID:  requestID,
	}
	event := f.CreateEvent(ctx, StockIssued, "stock/"+bankID, data)
	event.BankID = bankID
	return event
}

// CreateStockLevelEvent creates a LowStockAlert or CriticalStockAlert event
func (f *EventFactory) CreateStockLevelEvent(
	ctx context.Context,
	eventType string,
	bankID string,
	bloodGroup string,
	component string,
	availableUnits int,
	threshold int,
) *DonationCloudEvent {
	data := StockLevelData{
		BankID:         bankID,
		BloodGroup:     bloodGroup,
		Component:      component,
		AvailableUnits: availableUnits,
		Threshold:      threshold,
	}
	event := f.CreateEvent(ctx, eventType, "stock/"+bankID, data)
	event.BankID = bankID
	return event
}

// CreateReservationEvent creates a reservation lifecycle event
func (f *EventFactory) CreateReservationEvent(
	ctx context.Context,
	eventType string,
	data ReservationData,
) *DonationCloudEvent {
	event := f.CreateEvent(ctx, eventType, "reservation/"+data.ReservationID, data)
	event.BankID = data.BankID
	return event
}

// CreateRequestEvent creates a request lifecycle event
func (f *EventFactory) CreateRequestEvent(
	ctx context.Context,
	eventType string,
	data RequestData,
) *DonationCloudEvent {
	return f.CreateEvent(ctx, eventType, "request/"+data.RequestID, data)
}

// CreateDonorMatchEvent creates a donor match event
func (f *EventFactory) CreateDonorMatchEvent(
	ctx context.Context,
	eventType string,
	data DonorMatchData,
) *DonationCloudEvent {
	return f.CreateEvent(ctx, eventType, "request/"+data.RequestID+"/donor/"+data.DonorID, data)
}

// CreateAlertEvent creates an emergency alert lifecycle event
func (f *EventFactory) CreateAlertEvent(
	ctx context.Context,
	eventType string,
	data AlertData,
) *DonationCloudEvent {
	return f.CreateEvent(ctx, eventType, "alert/"+data.AlertID, data)
}
