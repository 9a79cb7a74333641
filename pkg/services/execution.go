package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowmail/journey/pkg/engine"
	"github.com/flowmail/journey/pkg/eventbus"
	"github.com/flowmail/journey/pkg/events"
	"github.com/flowmail/journey/pkg/models"
	"github.com/flowmail/journey/pkg/persistence"
	"github.com/flowmail/journey/pkg/scheduler"
	"github.com/google/uuid"
)

// ExecutionService starts, cancels and reads workflow executions. Starting
// is synchronous only up to the execution row; the first step runs on a
// worker via the scheduling gateway.
type ExecutionService struct {
	persistence persistence.Persistence
	gateway     scheduler.Gateway
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

func NewExecutionService(
	persistence persistence.Persistence,
	gateway scheduler.Gateway,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *ExecutionService {
	return &ExecutionService{
		persistence: persistence,
		gateway:     gateway,
		publisher:   publisher,
		logger:      logger.With("module", "execution_service"),
	}
}

// ExecutionHistory is an execution with its per-step records.
type ExecutionHistory struct {
	Execution *models.WorkflowExecution       `json:"execution"`
	Steps     []*models.WorkflowStepExecution `json:"steps"`
}

// StartExecution enters a contact into a workflow. Disabled workflows and
// re-entry violations are rejected; the no-re-entry default covers every
// past execution regardless of how it ended, while allow_reentry only
// forbids a second concurrently running one.
func (s *ExecutionService) StartExecution(
	ctx context.Context,
	workflowID, contactID string,
	initialContext map[string]any,
	initiator string,
) (*models.WorkflowExecution, error) {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !workflow.Enabled {
		return nil, &ServiceError{Op: "start_execution", Code: "workflow_disabled", Err: ErrWorkflowDisabled}
	}

	contact, err := s.persistence.ContactRepository().GetByID(ctx, contactID)
	if err != nil {
		return nil, err
	}

	triggerStep, found := workflow.TriggerStep()
	if !found {
		return nil, &ServiceError{Op: "start_execution", Code: "invalid_workflow", Err: ErrTriggerStepRequired}
	}

	if !workflow.AllowReentry {
		entered, err := s.persistence.ExecutionRepository().ExistsForContact(ctx, workflowID, contactID, false)
		if err != nil {
			return nil, fmt.Errorf("failed to check re-entry: %w", err)
		}

		if entered {
			return nil, &ServiceError{Op: "start_execution", Code: "reentry_not_allowed", Err: ErrReentryNotAllowed}
		}
	}

	execution := &models.WorkflowExecution{
		ID:            uuid.New().String(),
		WorkflowID:    workflowID,
		ContactID:     contactID,
		Status:        models.ExecutionStatusRunning,
		CurrentStepID: triggerStep.ID,
		Context:       initialContext,
		StartedAt:     time.Now().UTC(),
	}

	err = s.persistence.ExecutionRepository().Create(ctx, execution)
	if err != nil {
		if persistence.IsExecutionConflict(err) {
			// Two concurrent starts raced; the unique running-execution
			// constraint let exactly one through.
			return nil, &ServiceError{Op: "start_execution", Code: "reentry_not_allowed", Err: ErrReentryNotAllowed}
		}

		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	s.logger.InfoContext(ctx, "execution started",
		"execution_id", execution.ID,
		"workflow_id", workflowID,
		"contact_id", contactID,
		"initiator", initiator,
	)

	started := events.ExecutionStarted{
		BaseEvent:    events.NewBaseEvent(events.ExecutionStartedEvent, workflowID),
		ExecutionID:  execution.ID,
		ContactID:    contact.ID,
		WorkflowName: workflow.Name,
		TriggerEvent: workflow.TriggerEvent,
		Initiator:    initiator,
	}

	err = s.publisher.Publish(ctx, execution.ID, started)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to publish execution started", "error", err)
	}

	advance := events.ExecutionAdvance{
		BaseEvent:   events.NewBaseEvent(events.ExecutionAdvanceEvent, workflowID),
		ExecutionID: execution.ID,
		StepID:      triggerStep.ID,
	}

	err = s.gateway.EnqueueNow(ctx, scheduler.Job{
		DedupeKey: engine.AdvanceDedupeKey(execution.ID, triggerStep.ID),
		Key:       execution.ID,
		Event:     advance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue first step: %w", err)
	}

	return execution, nil
}

// StartForEvent starts an execution of every enabled workflow whose trigger
// event matches a recorded contact event. Re-entry rejections are expected
// here and only logged.
func (s *ExecutionService) StartForEvent(ctx context.Context, contactID, eventName string, payload map[string]any) error {
	workflows, err := s.persistence.WorkflowRepository().GetByTriggerEvent(ctx, eventName)
	if err != nil {
		return fmt.Errorf("failed to match trigger event: %w", err)
	}

	initialContext := make(map[string]any, len(payload)+1)
	initialContext["event.name"] = eventName

	for key, value := range payload {
		initialContext["event."+key] = value
	}

	for _, workflow := range workflows {
		_, err := s.StartExecution(ctx, workflow.ID, contactID, initialContext, "event:"+eventName)
		if err != nil {
			if IsConflictError(err) {
				s.logger.DebugContext(ctx, "trigger skipped",
					"workflow_id", workflow.ID, "contact_id", contactID, "reason", err)

				continue
			}

			if persistence.IsContactNotFound(err) {
				return nil
			}

			return err
		}
	}

	return nil
}

// CancelExecution stops a running execution and drops any timeout job parked
// on it.
func (s *ExecutionService) CancelExecution(ctx context.Context, executionID, reason, cancelledBy string) error {
	execution, err := s.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return err
	}

	cancelled, err := s.persistence.ExecutionRepository().Cancel(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to cancel execution: %w", err)
	}

	if !cancelled {
		return &ServiceError{Op: "cancel_execution", Code: "execution_finished", Err: ErrExecutionFinished}
	}

	stepExecutions, err := s.persistence.ExecutionRepository().StepExecutions(ctx, executionID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load step executions for cancel", "error", err)
	}

	for _, stepExecution := range stepExecutions {
		if stepExecution.Status != models.StepExecutionStatusPending {
			continue
		}

		err = s.gateway.Cancel(ctx, engine.TimeoutDedupeKey(stepExecution.ID))
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to cancel timeout job",
				"step_execution_id", stepExecution.ID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "execution cancelled",
		"execution_id", executionID, "reason", reason, "cancelled_by", cancelledBy)

	event := events.ExecutionCancelled{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, execution.WorkflowID),
		ExecutionID: executionID,
		ContactID:   execution.ContactID,
		Reason:      reason,
		CancelledBy: cancelledBy,
	}

	err = s.publisher.Publish(ctx, executionID, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to publish execution cancelled", "error", err)
	}

	return nil
}

// GetExecution returns an execution with its step history.
func (s *ExecutionService) GetExecution(ctx context.Context, executionID string) (*ExecutionHistory, error) {
	execution, err := s.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	steps, err := s.persistence.ExecutionRepository().StepExecutions(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load step executions: %w", err)
	}

	return &ExecutionHistory{Execution: execution, Steps: steps}, nil
}

// ListExecutions returns the executions of a workflow.
func (s *ExecutionService) ListExecutions(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	_, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return s.persistence.ExecutionRepository().ListByWorkflow(ctx, workflowID)
}
