package engine

import (
	"context"
	"fmt"

	"github.com/flowmail/journey/pkg/events"
	"github.com/flowmail/journey/pkg/models"
	"github.com/flowmail/journey/pkg/otelhelper"
	"github.com/flowmail/journey/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ResumeOnEvent wakes every pending wait the contact has parked on the named
// event. The conditional pending-to-succeeded transition on each step
// execution row is the same arbiter the timeout path uses, so an event and
// a timeout racing on one wait resolve it exactly once.
func (c *Coordinator) ResumeOnEvent(ctx context.Context, contactID, eventName string, payload map[string]any) error {
	ctx, span := tracer.Start(ctx, "engine.resume_on_event", trace.WithAttributes(
		attribute.String(otelhelper.ContactIDKey, contactID),
		attribute.String(otelhelper.EventNameKey, eventName),
	))
	defer span.End()

	executionRepo := c.persistence.ExecutionRepository()

	waits, err := executionRepo.PendingWaits(ctx, contactID, eventName)
	if err != nil {
		return fmt.Errorf("failed to look up pending waits: %w", err)
	}

	for _, wait := range waits {
		logger := c.logger.With(
			"execution_id", wait.ExecutionID,
			"step_id", wait.StepID,
			"event_name", eventName,
		)

		won, err := executionRepo.TransitionStepStatus(ctx, wait.ID,
			models.StepExecutionStatusPending, models.StepExecutionStatusSucceeded)
		if err != nil {
			if persistence.IsStepExecutionNotFound(err) {
				continue
			}

			return fmt.Errorf("failed to claim wait: %w", err)
		}

		if !won {
			logger.DebugContext(ctx, "wait already resolved, skipping")

			continue
		}

		// The timeout job is now a zombie either way; drop it if it has not
		// fired yet.
		err = c.gateway.Cancel(ctx, TimeoutDedupeKey(wait.ID))
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel timeout job", "error", err)
		}

		execution, err := executionRepo.GetByID(ctx, wait.ExecutionID)
		if err != nil {
			if persistence.IsExecutionNotFound(err) {
				continue
			}

			return fmt.Errorf("failed to load execution: %w", err)
		}

		if execution.Status.Terminal() || execution.CurrentStepID != wait.StepID {
			continue
		}

		err = c.mergeEventPayload(ctx, execution, eventName, payload)
		if err != nil {
			return err
		}

		workflow, err := c.persistence.WorkflowRepository().GetByID(ctx, execution.WorkflowID)
		if err != nil {
			if persistence.IsWorkflowNotFound(err) {
				err = c.failExecution(ctx, logger, execution, wait.StepID, "workflow no longer exists")
				if err != nil {
					return err
				}

				continue
			}

			return fmt.Errorf("failed to load workflow: %w", err)
		}

		nextStepID, moved, err := c.moveTo(ctx, logger, workflow, execution, wait.StepID, "")
		if err != nil {
			return err
		}

		if nextStepID == "" || !moved {
			continue
		}

		resumed := events.ExecutionResumed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionResumedEvent, execution.WorkflowID),
			ExecutionID: execution.ID,
			StepID:      wait.StepID,
			EventName:   eventName,
		}
		resumed.WorkerID = c.workerID

		c.publish(ctx, logger, execution.ID, resumed)

		logger.InfoContext(ctx, "execution resumed", "next_step_id", nextStepID)

		err = c.enqueueAdvance(ctx, workflow, execution, nextStepID)
		if err != nil {
			return err
		}
	}

	return nil
}

// mergeEventPayload records the waking event in the execution context under
// flat event.* keys, where condition steps downstream can read it.
func (c *Coordinator) mergeEventPayload(ctx context.Context, execution *models.WorkflowExecution, eventName string, payload map[string]any) error {
	updates := make(map[string]any, len(payload)+1)
	updates["event.name"] = eventName

	for key, value := range payload {
		updates["event."+key] = value
	}

	return c.applyContextUpdates(ctx, execution, updates)
}
