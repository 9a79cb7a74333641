// Package persistence provides the data storage abstraction for workflows,
// executions and contacts.
package persistence

import (
	"context"

	"github.com/flowmail/journey/pkg/models"
)

// Persistence bundles the repositories the engine coordinates over. All
// coordination state lives here; workers share nothing in memory.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	ContactRepository() ContactRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions. The engine only reads;
// writes come from the definition service.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	GetByTriggerEvent(ctx context.Context, eventName string) ([]*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores executions and their per-step rows. The
// conditional updates are the engine's optimistic-concurrency primitives:
// they return false when another delivery already won, and callers treat
// that as a silent no-op.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)
	ExistsForContact(ctx context.Context, workflowID, contactID string, runningOnly bool) (bool, error)

	// UpdateCurrentStep advances current_step_id only if it still equals
	// fromStepID. Compare-and-swap; false means a concurrent delivery won.
	UpdateCurrentStep(ctx context.Context, executionID, fromStepID, toStepID string) (bool, error)
	UpdateContext(ctx context.Context, executionID string, execContext map[string]any) error

	// Complete, Fail and Cancel transition a running execution to a terminal
	// status; false means the execution was no longer running.
	Complete(ctx context.Context, executionID, exitReason string) (bool, error)
	Fail(ctx context.Context, executionID, reason string) (bool, error)
	Cancel(ctx context.Context, executionID string) (bool, error)

	SaveStepExecution(ctx context.Context, stepExecution *models.WorkflowStepExecution) error
	StepExecution(ctx context.Context, executionID, stepID string) (*models.WorkflowStepExecution, error)
	StepExecutionByID(ctx context.Context, id string) (*models.WorkflowStepExecution, error)
	StepExecutions(ctx context.Context, executionID string) ([]*models.WorkflowStepExecution, error)

	// TransitionStepStatus moves a step execution between statuses only when
	// it still holds the expected one. This is the arbiter of the
	// event-resume vs timeout-fire race.
	TransitionStepStatus(ctx context.Context, stepExecutionID string, from, to models.StepExecutionStatus) (bool, error)

	// PendingWaits returns pending step executions of running executions for
	// the contact that are parked waiting on the named event.
	PendingWaits(ctx context.Context, contactID, eventName string) ([]*models.WorkflowStepExecution, error)
}

// ContactRepository reads contact attributes and applies targeted field
// merges for update-contact steps.
type ContactRepository interface {
	GetByID(ctx context.Context, id string) (*models.Contact, error)
	Save(ctx context.Context, contact *models.Contact) error

	// MergeData merges fields into the contact's custom data without
	// touching keys it does not name, so concurrent writers do not lose
	// updates.
	MergeData(ctx context.Context, contactID string, fields map[string]any) error
}
