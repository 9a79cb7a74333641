// Package events defines the messages exchanged over the event bus: job
// events that drive executions forward and lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const JobsTopic = "journey.jobs"     // Topic for continuation and timeout jobs consumed by workers
const EventsTopic = "journey.events" // Topic for lifecycle and contact events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Job events. At-least-once delivery; handlers are idempotent.
	ExecutionAdvanceEvent EventType = "execution.advance"
	StepTimeoutEvent      EventType = "step.timeout"

	// Contact events.
	ContactEventRecordedEvent EventType = "contact.event.recorded"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionResumedEvent   EventType = "execution.resumed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ExecutionAdvance asks a worker to run the named step of an execution. The
// same message may be delivered more than once; the step-execution row and
// the current-step compare-and-swap make redelivery a no-op.
type ExecutionAdvance struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id"`
}

func (e ExecutionAdvance) GetType() EventType {
	return ExecutionAdvanceEvent
}

// StepTimeout fires when a parked step's timeout elapses before the event it
// waits for arrives. StepExecutionID anchors the pending-to-timed-out status
// transition that decides the race against an event resume.
type StepTimeout struct {
	BaseEvent

	ExecutionID     string `json:"execution_id"`
	StepID          string `json:"step_id"`
	StepExecutionID string `json:"step_execution_id"`
}

func (e StepTimeout) GetType() EventType {
	return StepTimeoutEvent
}

// ContactEventRecorded is published whenever a contact event is ingested. It
// both resumes parked waits and triggers workflows listening for the event.
type ContactEventRecorded struct {
	BaseEvent

	ContactID string         `json:"contact_id"`
	Name      string         `json:"name"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func (e ContactEventRecorded) GetType() EventType {
	return ContactEventRecordedEvent
}

// Execution lifecycle events

type ExecutionStarted struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	ContactID    string `json:"contact_id"`
	WorkflowName string `json:"workflow_name"`
	TriggerEvent string `json:"trigger_event"`
	Initiator    string `json:"initiator"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	ContactID     string `json:"contact_id"`
	ExitReason    string `json:"exit_reason,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	StepsExecuted int    `json:"steps_executed"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	ContactID   string `json:"contact_id"`
	StepID      string `json:"step_id"`
	Error       string `json:"error"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	ContactID   string `json:"contact_id"`
	Reason      string `json:"reason"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

// ExecutionResumed is published when a parked wait-for-event step wakes up
// because its event arrived before the timeout.
type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id"`
	EventName   string `json:"event_name"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}
