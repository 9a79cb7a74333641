package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowmail/journey/pkg/eventbus"
	"github.com/flowmail/journey/pkg/events"
	"github.com/flowmail/journey/pkg/models"
	"github.com/flowmail/journey/pkg/otelhelper"
	"github.com/flowmail/journey/pkg/persistence"
	"github.com/flowmail/journey/pkg/scheduler"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxSyncChain bounds how many synchronous steps one advance pass may chain
// through. Definition validation keeps graphs small; hitting the cap at run
// time means a cycle of synchronous steps and fails the execution.
const maxSyncChain = 25

// maxStepAttempts is the effect retry budget. A failed effect surfaces its
// error so the queue redelivers the job with its backoff policy; the attempt
// count lives on the step execution row, and once it is spent the step and
// the execution go terminal FAILED.
const maxStepAttempts = 3

var tracer = otel.Tracer("github.com/flowmail/journey/pkg/engine")

// Coordinator is the execution state machine. Advance and ProcessTimeout are
// its job entry points; both are idempotent under at-least-once delivery.
// Errors returned from them are transient infrastructure failures and safe
// to redeliver; everything terminal is absorbed into the execution state.
type Coordinator struct {
	persistence persistence.Persistence
	handlers    HandlerSource
	gateway     scheduler.Gateway
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	workerID    string
}

func NewCoordinator(
	persistence persistence.Persistence,
	handlers HandlerSource,
	gateway scheduler.Gateway,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	workerID string,
) *Coordinator {
	return &Coordinator{
		persistence: persistence,
		handlers:    handlers,
		gateway:     gateway,
		publisher:   publisher,
		logger:      logger.With("module", "engine", "worker_id", workerID),
		workerID:    workerID,
	}
}

// AdvanceDedupeKey identifies the continuation job for a step of an
// execution. The same logical continuation always maps to the same key.
func AdvanceDedupeKey(executionID, stepID string) string {
	return "advance:" + executionID + ":" + stepID
}

// TimeoutDedupeKey identifies the timeout job parked on a step execution.
func TimeoutDedupeKey(stepExecutionID string) string {
	return "timeout:" + stepExecutionID
}

// Advance runs the named step of an execution and chains through synchronous
// successors. Stale jobs (execution moved on, finished, or was cancelled)
// are silent no-ops.
func (c *Coordinator) Advance(ctx context.Context, executionID, stepID string) error {
	ctx, span := tracer.Start(ctx, "engine.advance", trace.WithAttributes(
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.StepIDKey, stepID),
	))
	defer span.End()

	logger := c.logger.With("execution_id", executionID, "step_id", stepID)

	execution, workflow, contact, proceed, err := c.loadRunState(ctx, logger, executionID, stepID)
	if err != nil || !proceed {
		if err != nil {
			otelhelper.SetError(span, err)
		}

		return err
	}

	err = c.runChain(ctx, logger, workflow, execution, contact, stepID)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

// ProcessTimeout fires when a parked step's timeout elapses. The conditional
// pending-to-timed-out transition on the step execution row decides the race
// against an event resume: whichever side moves the row first proceeds, the
// other becomes a no-op.
func (c *Coordinator) ProcessTimeout(ctx context.Context, executionID, stepID, stepExecutionID string) error {
	ctx, span := tracer.Start(ctx, "engine.process_timeout", trace.WithAttributes(
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.StepIDKey, stepID),
		attribute.String(otelhelper.StepExecutionIDKey, stepExecutionID),
	))
	defer span.End()

	logger := c.logger.With("execution_id", executionID, "step_id", stepID)

	won, err := c.persistence.ExecutionRepository().TransitionStepStatus(ctx, stepExecutionID,
		models.StepExecutionStatusPending, models.StepExecutionStatusTimedOut)
	if err != nil {
		if persistence.IsStepExecutionNotFound(err) {
			return nil
		}

		return fmt.Errorf("failed to claim timeout: %w", err)
	}

	if !won {
		logger.DebugContext(ctx, "timeout lost race, step already resolved")

		return nil
	}

	execution, workflow, contact, proceed, err := c.loadRunState(ctx, logger, executionID, stepID)
	if err != nil || !proceed {
		return err
	}

	step, found := workflow.StepByID(stepID)
	if !found {
		return c.failExecution(ctx, logger, execution, stepID, "step "+stepID+" no longer exists in workflow")
	}

	// Delays follow their default transition on firing; waits follow the
	// timeout branch, falling back to the default when none is defined.
	branch := ""
	if step.Type == models.StepTypeWaitForEvent {
		branch = models.BranchTimeout
	}

	return c.continueFrom(ctx, logger, workflow, execution, contact, stepID, branch)
}

// loadRunState fetches the execution, workflow and contact for a job and
// applies the silent no-op and terminal-state rules shared by every entry
// point. proceed is false when the job is stale or the execution was ended
// here.
func (c *Coordinator) loadRunState(
	ctx context.Context,
	logger *slog.Logger,
	executionID, stepID string,
) (*models.WorkflowExecution, *models.Workflow, *models.Contact, bool, error) {
	executionRepo := c.persistence.ExecutionRepository()

	execution, err := executionRepo.GetByID(ctx, executionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			logger.WarnContext(ctx, "job for unknown execution, dropping")

			return nil, nil, nil, false, nil
		}

		return nil, nil, nil, false, fmt.Errorf("failed to load execution: %w", err)
	}

	if execution.Status.Terminal() {
		return nil, nil, nil, false, nil
	}

	if execution.CurrentStepID != stepID {
		logger.DebugContext(ctx, "stale job, execution moved on", "current_step_id", execution.CurrentStepID)

		return nil, nil, nil, false, nil
	}

	workflow, err := c.persistence.WorkflowRepository().GetByID(ctx, execution.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return nil, nil, nil, false, c.failExecution(ctx, logger, execution, stepID, "workflow no longer exists")
		}

		return nil, nil, nil, false, fmt.Errorf("failed to load workflow: %w", err)
	}

	if !workflow.Enabled {
		return nil, nil, nil, false, c.cancelExecution(ctx, logger, execution, "workflow disabled")
	}

	contact, err := c.persistence.ContactRepository().GetByID(ctx, execution.ContactID)
	if err != nil {
		if persistence.IsContactNotFound(err) {
			return nil, nil, nil, false, c.failExecution(ctx, logger, execution, stepID, "contact no longer exists")
		}

		return nil, nil, nil, false, fmt.Errorf("failed to load contact: %w", err)
	}

	return execution, workflow, contact, true, nil
}

// runChain executes the step and chains through synchronous successors until
// the execution parks, ends, or reaches an asynchronous step.
func (c *Coordinator) runChain(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
	contact *models.Contact,
	stepID string,
) error {
	executionRepo := c.persistence.ExecutionRepository()

	for hops := 0; hops < maxSyncChain; hops++ {
		stepLogger := logger.With("step_id", stepID)

		step, found := workflow.StepByID(stepID)
		if !found {
			return c.failExecution(ctx, stepLogger, execution, stepID, "step "+stepID+" no longer exists in workflow")
		}

		stepExecution, err := executionRepo.StepExecution(ctx, execution.ID, stepID)

		switch {
		case err == nil:
			switch stepExecution.Status {
			case models.StepExecutionStatusPending:
				// Parked; only the correlator or the timeout moves it.
				return nil
			case models.StepExecutionStatusSucceeded,
				models.StepExecutionStatusFailed,
				models.StepExecutionStatusTimedOut:
				stepLogger.DebugContext(ctx, "duplicate delivery, step already resolved")

				return nil
			case models.StepExecutionStatusRunning:
				// A previous delivery crashed mid-step; run it again.
			}
		case persistence.IsStepExecutionNotFound(err):
			stepExecution = &models.WorkflowStepExecution{
				ID:          uuid.New().String(),
				ExecutionID: execution.ID,
				StepID:      stepID,
				Status:      models.StepExecutionStatusRunning,
				StartedAt:   time.Now().UTC(),
			}

			err = executionRepo.SaveStepExecution(ctx, stepExecution)
			if err != nil {
				return fmt.Errorf("failed to create step execution: %w", err)
			}
		default:
			return fmt.Errorf("failed to load step execution: %w", err)
		}

		handler, err := c.handlers.HandlerFor(step.Type)
		if err != nil {
			return c.failStep(ctx, stepLogger, execution, stepExecution, "no handler for step type "+string(step.Type))
		}

		stepLogger.InfoContext(ctx, "executing step", "step_type", step.Type, "step_name", step.Name)

		result, err := handler.Execute(ctx, StepContext{
			Execution: execution,
			Workflow:  workflow,
			Step:      step,
			Contact:   contact,
			Logger:    stepLogger,
		})
		if err != nil {
			return c.retryOrFailStep(ctx, stepLogger, execution, stepExecution, err)
		}

		switch {
		case result.Fail != nil:
			return c.failStep(ctx, stepLogger, execution, stepExecution, result.Fail.Reason)

		case result.Exit != nil:
			_, err = executionRepo.TransitionStepStatus(ctx, stepExecution.ID,
				models.StepExecutionStatusRunning, models.StepExecutionStatusSucceeded)
			if err != nil {
				return fmt.Errorf("failed to finish step execution: %w", err)
			}

			return c.completeExecution(ctx, stepLogger, execution, result.Exit.Reason)

		case result.Wait != nil:
			stepExecution.Status = models.StepExecutionStatusPending
			stepExecution.WaitEventName = result.Wait.EventName

			err = executionRepo.SaveStepExecution(ctx, stepExecution)
			if err != nil {
				return fmt.Errorf("failed to park step execution: %w", err)
			}

			timeout := events.StepTimeout{
				BaseEvent:       events.NewBaseEvent(events.StepTimeoutEvent, workflow.ID),
				ExecutionID:     execution.ID,
				StepID:          stepID,
				StepExecutionID: stepExecution.ID,
			}
			timeout.WorkerID = c.workerID

			err = c.gateway.EnqueueAfter(ctx, scheduler.Job{
				DedupeKey: TimeoutDedupeKey(stepExecution.ID),
				Key:       execution.ID,
				Event:     timeout,
			}, result.Wait.Timeout)
			if err != nil {
				return fmt.Errorf("failed to schedule timeout: %w", err)
			}

			stepLogger.InfoContext(ctx, "execution parked",
				"wait_event", result.Wait.EventName, "timeout", result.Wait.Timeout)

			return nil

		default:
			err = c.applyContextUpdates(ctx, execution, result.Context)
			if err != nil {
				return err
			}

			_, err = executionRepo.TransitionStepStatus(ctx, stepExecution.ID,
				models.StepExecutionStatusRunning, models.StepExecutionStatusSucceeded)
			if err != nil {
				return fmt.Errorf("failed to finish step execution: %w", err)
			}

			nextStepID, moved, err := c.moveTo(ctx, stepLogger, workflow, execution, stepID, result.Branch)
			if err != nil || nextStepID == "" || !moved {
				return err
			}

			nextStep, found := workflow.StepByID(nextStepID)
			if found && nextStep.Type.IsSynchronous() {
				stepID = nextStepID

				continue
			}

			return c.enqueueAdvance(ctx, workflow, execution, nextStepID)
		}
	}

	return c.failExecution(ctx, logger, execution, stepID, "synchronous step chain limit exceeded")
}

// continueFrom resolves the branch out of fromStepID and either ends the
// execution or hands off to the next step. Used by the timeout path, where
// the step itself already ran.
func (c *Coordinator) continueFrom(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
	contact *models.Contact,
	fromStepID, branch string,
) error {
	nextStepID, moved, err := c.moveTo(ctx, logger, workflow, execution, fromStepID, branch)
	if err != nil || nextStepID == "" || !moved {
		return err
	}

	nextStep, found := workflow.StepByID(nextStepID)
	if found && nextStep.Type.IsSynchronous() {
		return c.runChain(ctx, logger, workflow, execution, contact, nextStepID)
	}

	return c.enqueueAdvance(ctx, workflow, execution, nextStepID)
}

// moveTo resolves the next step and advances current_step_id with a
// compare-and-swap. nextStepID is empty when the execution completed
// instead; moved is false when a concurrent delivery already advanced it.
func (c *Coordinator) moveTo(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
	fromStepID, branch string,
) (string, bool, error) {
	nextStepID, found := ResolveNext(workflow, fromStepID, branch)
	if !found {
		return "", false, c.completeExecution(ctx, logger, execution, "")
	}

	moved, err := c.persistence.ExecutionRepository().UpdateCurrentStep(ctx, execution.ID, fromStepID, nextStepID)
	if err != nil {
		return "", false, fmt.Errorf("failed to advance current step: %w", err)
	}

	if !moved {
		logger.DebugContext(ctx, "lost current-step race, concurrent delivery won")

		return nextStepID, false, nil
	}

	execution.CurrentStepID = nextStepID

	return nextStepID, true, nil
}

func (c *Coordinator) enqueueAdvance(
	ctx context.Context,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
	stepID string,
) error {
	advance := events.ExecutionAdvance{
		BaseEvent:   events.NewBaseEvent(events.ExecutionAdvanceEvent, workflow.ID),
		ExecutionID: execution.ID,
		StepID:      stepID,
	}
	advance.WorkerID = c.workerID

	err := c.gateway.EnqueueNow(ctx, scheduler.Job{
		DedupeKey: AdvanceDedupeKey(execution.ID, stepID),
		Key:       execution.ID,
		Event:     advance,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue continuation: %w", err)
	}

	return nil
}

func (c *Coordinator) applyContextUpdates(ctx context.Context, execution *models.WorkflowExecution, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	if execution.Context == nil {
		execution.Context = make(map[string]any, len(updates))
	}

	for key, value := range updates {
		execution.Context[key] = value
	}

	err := c.persistence.ExecutionRepository().UpdateContext(ctx, execution.ID, execution.Context)
	if err != nil {
		return fmt.Errorf("failed to update execution context: %w", err)
	}

	return nil
}

// retryOrFailStep counts a failed effect attempt. While budget remains the
// error is returned, so the job is redelivered and the step (still RUNNING)
// runs again; once the budget is spent the failure goes terminal.
func (c *Coordinator) retryOrFailStep(
	ctx context.Context,
	logger *slog.Logger,
	execution *models.WorkflowExecution,
	stepExecution *models.WorkflowStepExecution,
	cause error,
) error {
	stepExecution.Attempts++

	err := c.persistence.ExecutionRepository().SaveStepExecution(ctx, stepExecution)
	if err != nil {
		return fmt.Errorf("failed to record step attempt: %w", err)
	}

	if stepExecution.Attempts < maxStepAttempts {
		logger.WarnContext(ctx, "step effect failed, leaving job for redelivery",
			"attempt", stepExecution.Attempts, "error", cause)

		return fmt.Errorf("step %s attempt %d: %w", stepExecution.StepID, stepExecution.Attempts, cause)
	}

	return c.failStep(ctx, logger, execution, stepExecution, cause.Error())
}

func (c *Coordinator) failStep(
	ctx context.Context,
	logger *slog.Logger,
	execution *models.WorkflowExecution,
	stepExecution *models.WorkflowStepExecution,
	reason string,
) error {
	now := time.Now().UTC()
	stepExecution.Status = models.StepExecutionStatusFailed
	stepExecution.ErrorMessage = reason
	stepExecution.CompletedAt = &now

	err := c.persistence.ExecutionRepository().SaveStepExecution(ctx, stepExecution)
	if err != nil {
		return fmt.Errorf("failed to record step failure: %w", err)
	}

	return c.failExecution(ctx, logger, execution, stepExecution.StepID, reason)
}

func (c *Coordinator) failExecution(
	ctx context.Context,
	logger *slog.Logger,
	execution *models.WorkflowExecution,
	stepID, reason string,
) error {
	failed, err := c.persistence.ExecutionRepository().Fail(ctx, execution.ID, reason)
	if err != nil {
		return fmt.Errorf("failed to fail execution: %w", err)
	}

	if !failed {
		return nil
	}

	logger.ErrorContext(ctx, "execution failed", "reason", reason)

	event := events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		ContactID:   execution.ContactID,
		StepID:      stepID,
		Error:       reason,
		DurationMs:  time.Since(execution.StartedAt).Milliseconds(),
	}
	event.WorkerID = c.workerID

	c.publish(ctx, logger, execution.ID, event)

	return nil
}

func (c *Coordinator) completeExecution(
	ctx context.Context,
	logger *slog.Logger,
	execution *models.WorkflowExecution,
	exitReason string,
) error {
	completed, err := c.persistence.ExecutionRepository().Complete(ctx, execution.ID, exitReason)
	if err != nil {
		return fmt.Errorf("failed to complete execution: %w", err)
	}

	if !completed {
		return nil
	}

	logger.InfoContext(ctx, "execution completed", "exit_reason", exitReason)

	stepExecutions, err := c.persistence.ExecutionRepository().StepExecutions(ctx, execution.ID)
	if err != nil {
		stepExecutions = nil
	}

	event := events.ExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, execution.WorkflowID),
		ExecutionID:   execution.ID,
		ContactID:     execution.ContactID,
		ExitReason:    exitReason,
		DurationMs:    time.Since(execution.StartedAt).Milliseconds(),
		StepsExecuted: len(stepExecutions),
	}
	event.WorkerID = c.workerID

	c.publish(ctx, logger, execution.ID, event)

	return nil
}

func (c *Coordinator) cancelExecution(
	ctx context.Context,
	logger *slog.Logger,
	execution *models.WorkflowExecution,
	reason string,
) error {
	cancelled, err := c.persistence.ExecutionRepository().Cancel(ctx, execution.ID)
	if err != nil {
		return fmt.Errorf("failed to cancel execution: %w", err)
	}

	if !cancelled {
		return nil
	}

	logger.InfoContext(ctx, "execution cancelled", "reason", reason)

	event := events.ExecutionCancelled{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		ContactID:   execution.ContactID,
		Reason:      reason,
	}
	event.WorkerID = c.workerID

	c.publish(ctx, logger, execution.ID, event)

	return nil
}

// publish sends a lifecycle event. Lifecycle notifications are best effort;
// a publish failure never fails the job that produced it.
func (c *Coordinator) publish(ctx context.Context, logger *slog.Logger, key string, event eventbus.Event) {
	if c.publisher == nil {
		return
	}

	err := c.publisher.Publish(ctx, key, event)
	if err != nil {
		logger.ErrorContext(ctx, "failed to publish lifecycle event",
			"event_type", event.GetType(), "error", err)
	}
}
