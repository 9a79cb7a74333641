package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowmail/journey/pkg/eventbus"
	"github.com/flowmail/journey/pkg/events"
	"github.com/flowmail/journey/pkg/persistence"
)

// ContactEventService ingests contact events. Recording publishes the event
// on the bus; workers react by resuming parked waits and by starting
// executions of workflows triggered by the event name.
type ContactEventService struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

func NewContactEventService(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *ContactEventService {
	return &ContactEventService{
		persistence: persistence,
		publisher:   publisher,
		logger:      logger.With("module", "contact_event_service"),
	}
}

// RecordEvent validates the contact and publishes the event. Delivery to the
// bus is the durability boundary: once Publish returns, correlation and
// trigger matching happen on workers.
func (s *ContactEventService) RecordEvent(ctx context.Context, contactID, eventName string, payload map[string]any) error {
	if eventName == "" {
		return &ServiceError{Op: "record_event", Code: "invalid", Message: "event name is required", Err: ErrInvalidRequest}
	}

	_, err := s.persistence.ContactRepository().GetByID(ctx, contactID)
	if err != nil {
		return err
	}

	event := events.ContactEventRecorded{
		BaseEvent: events.NewBaseEvent(events.ContactEventRecordedEvent, ""),
		ContactID: contactID,
		Name:      eventName,
		Payload:   payload,
	}

	err = s.publisher.Publish(ctx, contactID, event)
	if err != nil {
		return fmt.Errorf("failed to publish contact event: %w", err)
	}

	s.logger.InfoContext(ctx, "contact event recorded", "contact_id", contactID, "event_name", eventName)

	return nil
}
