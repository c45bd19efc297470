package application

import (
	"context"

	"github.com/bloodbank-platform/allocation-service/pkg/cloudevents"
	"github.com/bloodbank-platform/allocation-service/pkg/kafka"
	"github.com/bloodbank-platform/allocation-service/pkg/logging"

	"github.com/bloodbank-platform/allocation-service/internal/domain"
)

// EventProducer is the publishing surface the services depend on
type EventProducer interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.DonationCloudEvent) error
}

// EventPublisher translates drained domain events into CloudEvents and
// routes them to their topics. Publish failures are logged, not returned:
// the state change has already been persisted.
type EventPublisher struct {
	producer EventProducer
	factory  *cloudevents.EventFactory
	logger   *logging.Logger
}

// NewEventPublisher creates an EventPublisher
func NewEventPublisher(producer EventProducer, factory *cloudevents.EventFactory, logger *logging.Logger) *EventPublisher {
	return &EventPublisher{
		producer: producer,
		factory:  factory,
		logger:   logger,
	}
}

// Publish converts and publishes each domain event
func (p *EventPublisher) Publish(ctx context.Context, events []domain.DomainEvent) {
	for _, e := range events {
		ce := p.convert(ctx, e)
		if ce == nil {
			p.logger.Warn("No CloudEvent mapping for domain event", "eventType", e.EventType())
			continue
		}

		topic := kafka.TopicForEventType(ce.Type)
		if err := p.producer.PublishEvent(ctx, topic, ce); err != nil {
			p.logger.Error("Failed to publish event",
				"eventType", ce.Type, "topic", topic, "error", err)
			continue
		}
		p.logger.Event(ctx, ce.Type, map[string]any{"topic": topic, "subject": ce.Subject})
	}
}

func (p *EventPublisher) convert(ctx context.Context, e domain.DomainEvent) *cloudevents.DonationCloudEvent {
	switch ev := e.(type) {
	case *domain.BatchReceivedEvent:
		return p.factory.CreateBatchAddedEvent(ctx, ev.BankID, string(ev.BloodGroup), string(ev.Component), ev.BatchID, ev.Units, ev.ExpiresAt)

	case *domain.BatchExpiredEvent:
		return p.factory.CreateBatchExpiredEvent(ctx, ev.BankID, string(ev.BloodGroup), string(ev.Component), ev.BatchID, ev.UnitsRemoved)

	case *domain.StockIssuedEvent:
		return p.factory.CreateStockIssuedEvent(ctx, ev.BankID, string(ev.BloodGroup), string(ev.Component), ev.Units, ev.RequestID)

	case *domain.LowStockEvent:
		return p.factory.CreateStockLevelEvent(ctx, cloudevents.LowStockAlert, ev.BankID, string(ev.BloodGroup), string(ev.Component), ev.AvailableUnits, ev.MinimumStock)

	case *domain.CriticalStockEvent:
		return p.factory.CreateStockLevelEvent(ctx, cloudevents.CriticalStockAlert, ev.BankID, string(ev.BloodGroup), string(ev.Component), ev.AvailableUnits, ev.CriticalLevel)

	case *domain.ReservationCreatedEvent:
		return p.factory.CreateReservationEvent(ctx, cloudevents.ReservationCreated, cloudevents.ReservationData{
			ReservationID: ev.ReservationID,
			BankID:        ev.BankID,
			BloodGroup:    string(ev.BloodGroup),
			Component:     string(ev.Component),
			Units:         ev.Units,
			RequestID:     ev.RequestID,
			ExpiresAt:     ev.ExpiresAt,
		})

	case *domain.ReservationCommittedEvent:
		return p.factory.CreateReservationEvent(ctx, cloudevents.ReservationCommitted, cloudevents.ReservationData{
			ReservationID: ev.ReservationID,
			BankID:        ev.BankID,
			BloodGroup:    string(ev.BloodGroup),
			Component:     string(ev.Component),
			Units:         ev.Units,
			RequestID:     ev.RequestID,
		})

	case *domain.ReservationReleasedEvent:
		eventType := cloudevents.ReservationReleased
		if ev.Expired {
			eventType = cloudevents.ReservationExpired
		}
		return p.factory.CreateReservationEvent(ctx, eventType, cloudevents.ReservationData{
			ReservationID: ev.ReservationID,
			BankID:        ev.BankID,
			BloodGroup:    string(ev.BloodGroup),
			Component:     string(ev.Component),
			Units:         ev.Units,
			RequestID:     ev.RequestID,
		})

	case *domain.RequestCreatedEvent:
		return p.factory.CreateRequestEvent(ctx, cloudevents.RequestCreated, cloudevents.RequestData{
			RequestID:  ev.RequestID,
			Kind:       ev.Kind,
			Urgency:    string(ev.Urgency),
			HospitalID: ev.HospitalID,
		})

	case *domain.RequestStatusChangedEvent:
		return p.factory.CreateRequestEvent(ctx, e.EventType(), cloudevents.RequestData{
			RequestID: ev.RequestID,
			Kind:      ev.Kind,
			Status:    ev.To,
		})

	case *domain.DonorMatchRecordedEvent:
		return p.factory.CreateDonorMatchEvent(ctx, cloudevents.DonorMatchRecorded, cloudevents.DonorMatchData{
			RequestID: ev.RequestID,
			DonorID:   ev.DonorID,
			Score:     ev.Score,
		})

	case *domain.DonorRespondedEvent:
		return p.factory.CreateDonorMatchEvent(ctx, cloudevents.DonorResponded, cloudevents.DonorMatchData{
			RequestID: ev.RequestID,
			DonorID:   ev.DonorID,
			Status:    ev.Response,
		})

	case *domain.AlertRaisedEvent:
		return p.factory.CreateAlertEvent(ctx, cloudevents.AlertRaised, cloudevents.AlertData{
			AlertID:    ev.AlertID,
			AlertType:  string(ev.AlertType),
			Severity:   string(ev.Severity),
			HospitalID: ev.HospitalID,
			Status:     "active",
			ExpiresAt:  ev.ExpiresAt,
		})

	case *domain.AlertResponseEvent:
		return p.factory.CreateAlertEvent(ctx, cloudevents.AlertResponse, cloudevents.AlertData{
			AlertID: ev.AlertID,
		})

	case *domain.AlertStatusChangedEvent:
		return p.factory.CreateAlertEvent(ctx, e.EventType(), cloudevents.AlertData{
			AlertID: ev.AlertID,
			Status:  string(ev.To),
		})
	}

	return nil
}
