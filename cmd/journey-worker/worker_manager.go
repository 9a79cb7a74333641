package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowmail/journey/pkg/engine"
	"github.com/flowmail/journey/pkg/eventbus"
	"github.com/flowmail/journey/pkg/events"
	"github.com/flowmail/journey/pkg/persistence"
	"github.com/flowmail/journey/pkg/registry"
	"github.com/flowmail/journey/pkg/scheduler"
	"github.com/flowmail/journey/pkg/services"
)

// WorkerManager wires the coordinator to the buses: continuation and timeout
// jobs from the jobs topic, recorded contact events from the events topic.
type WorkerManager struct {
	id          string
	logger      *slog.Logger
	coordinator *engine.Coordinator
	executions  *services.ExecutionService
	jobsBus     eventbus.EventBus
	eventsBus   eventbus.EventBus
}

func NewWorkerManager(
	id string,
	persistence persistence.Persistence,
	registry *registry.Registry,
	gateway scheduler.Gateway,
	jobsBus eventbus.EventBus,
	eventsBus eventbus.EventBus,
	logger *slog.Logger,
) *WorkerManager {
	return &WorkerManager{
		id:          id,
		logger:      logger,
		coordinator: engine.NewCoordinator(persistence, registry, gateway, eventsBus, logger, id),
		executions:  services.NewExecutionService(persistence, gateway, eventsBus, logger),
		jobsBus:     jobsBus,
		eventsBus:   eventsBus,
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.jobsBus.Handle(events.ExecutionAdvanceEvent, w.handleExecutionAdvance)
	if err != nil {
		return err
	}

	err = w.jobsBus.Handle(events.StepTimeoutEvent, w.handleStepTimeout)
	if err != nil {
		return err
	}

	err = w.eventsBus.Handle(events.ContactEventRecordedEvent, w.handleContactEvent)
	if err != nil {
		return err
	}

	err = w.jobsBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	err = w.eventsBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *WorkerManager) handleExecutionAdvance(ctx context.Context, event any) error {
	advance, ok := event.(*events.ExecutionAdvance)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionAdvance")

		return nil
	}

	return w.coordinator.Advance(ctx, advance.ExecutionID, advance.StepID)
}

func (w *WorkerManager) handleStepTimeout(ctx context.Context, event any) error {
	timeout, ok := event.(*events.StepTimeout)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for StepTimeout")

		return nil
	}

	return w.coordinator.ProcessTimeout(ctx, timeout.ExecutionID, timeout.StepID, timeout.StepExecutionID)
}

// handleContactEvent resumes parked waits first, then matches workflow
// triggers, so a wait on the same event the workflow is triggered by wakes
// before any new execution starts.
func (w *WorkerManager) handleContactEvent(ctx context.Context, event any) error {
	recorded, ok := event.(*events.ContactEventRecorded)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ContactEventRecorded")

		return nil
	}

	err := w.coordinator.ResumeOnEvent(ctx, recorded.ContactID, recorded.Name, recorded.Payload)
	if err != nil {
		return err
	}

	return w.executions.StartForEvent(ctx, recorded.ContactID, recorded.Name, recorded.Payload)
}
