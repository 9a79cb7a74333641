package memory

import (
	"context"
	"sort"
	"time"

	"github.com/flowmail/journey/pkg/models"
	"github.com/flowmail/journey/pkg/persistence"
)

type executionRecord struct {
	execution *models.WorkflowExecution
}

type stepExecutionRecord struct {
	stepExecution *models.WorkflowStepExecution
}

// ExecutionRepository stores executions and step executions in memory with
// the same compare-and-swap semantics as the SQL implementation.
type ExecutionRepository struct {
	persistence    *Persistence
	executions     map[string]*executionRecord
	stepExecutions map[string]*stepExecutionRecord
}

// Create inserts a new execution. A second running execution for the same
// (workflow, contact) pair is rejected with ErrExecutionConflict.
func (er *ExecutionRepository) Create(_ context.Context, execution *models.WorkflowExecution) error {
	er.persistence.mu.Lock()
	defer er.persistence.mu.Unlock()

	if execution.Status == models.ExecutionStatusRunning {
		for _, record := range er.executions {
			existing := record.execution
			if existing.WorkflowID == execution.WorkflowID &&
				existing.ContactID == execution.ContactID &&
				existing.Status == models.ExecutionStatusRunning {
				return persistence.NewExecutionError("create", execution.ID, persistence.ErrExecutionConflict)
			}
		}
	}

	er.executions[execution.ID] = &executionRecord{execution: copyExecution(execution)}

	return nil
}

// GetByID returns an execution by ID.
func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	er.persistence.mu.RLock()
	defer er.persistence.mu.RUnlock()

	record, ok := er.executions[id]
	if !ok {
		return nil, persistence.ErrExecutionNotFound
	}

	return copyExecution(record.execution), nil
}

// ListByWorkflow returns all executions of a workflow, newest first.
func (er *ExecutionRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	er.persistence.mu.RLock()
	defer er.persistence.mu.RUnlock()

	var executions []*models.WorkflowExecution

	for _, record := range er.executions {
		if record.execution.WorkflowID == workflowID {
			executions = append(executions, copyExecution(record.execution))
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}

// ExistsForContact reports whether the contact has any execution of the
// workflow, optionally restricted to running ones.
func (er *ExecutionRepository) ExistsForContact(_ context.Context, workflowID, contactID string, runningOnly bool) (bool, error) {
	er.persistence.mu.RLock()
	defer er.persistence.mu.RUnlock()

	for _, record := range er.executions {
		execution := record.execution
		if execution.WorkflowID != workflowID || execution.ContactID != contactID {
			continue
		}

		if !runningOnly || execution.Status == models.ExecutionStatusRunning {
			return true, nil
		}
	}

	return false, nil
}

// UpdateCurrentStep advances current_step_id only if it still equals
// fromStepID and the execution is still running.
func (er *ExecutionRepository) UpdateCurrentStep(_ context.Context, executionID, fromStepID, toStepID string) (bool, error) {
	er.persistence.mu.Lock()
	defer er.persistence.mu.Unlock()

	record, ok := er.executions[executionID]
	if !ok {
		return false, persistence.ErrExecutionNotFound
	}

	execution := record.execution
	if execution.Status != models.ExecutionStatusRunning || execution.CurrentStepID != fromStepID {
		return false, nil
	}

	execution.CurrentStepID = toStepID

	return true, nil
}

// UpdateContext replaces the execution context.
func (er *ExecutionRepository) UpdateContext(_ context.Context, executionID string, execContext map[string]any) error {
	er.persistence.mu.Lock()
	defer er.persistence.mu.Unlock()

	record, ok := er.executions[executionID]
	if !ok {
		return persistence.ErrExecutionNotFound
	}

	record.execution.Context = copyMap(execContext)

	return nil
}

// Complete transitions a running execution to completed.
func (er *ExecutionRepository) Complete(_ context.Context, executionID, exitReason string) (bool, error) {
	return er.finish(executionID, models.ExecutionStatusCompleted, exitReason, "")
}

// Fail transitions a running execution to failed.
func (er *ExecutionRepository) Fail(_ context.Context, executionID, reason string) (bool, error) {
	return er.finish(executionID, models.ExecutionStatusFailed, "", reason)
}

// Cancel transitions a running execution to cancelled.
func (er *ExecutionRepository) Cancel(_ context.Context, executionID string) (bool, error) {
	return er.finish(executionID, models.ExecutionStatusCancelled, "", "")
}

func (er *ExecutionRepository) finish(executionID string, status models.ExecutionStatus, exitReason, errorMessage string) (bool, error) {
	er.persistence.mu.Lock()
	defer er.persistence.mu.Unlock()

	record, ok := er.executions[executionID]
	if !ok {
		return false, persistence.ErrExecutionNotFound
	}

	execution := record.execution
	if execution.Status != models.ExecutionStatusRunning {
		return false, nil
	}

	now := time.Now().UTC()
	execution.Status = status
	execution.CompletedAt = &now

	if exitReason != "" {
		execution.ExitReason = exitReason
	}

	if errorMessage != "" {
		execution.ErrorMessage = errorMessage
	}

	return true, nil
}

// SaveStepExecution upserts a step execution keyed by (execution, step).
func (er *ExecutionRepository) SaveStepExecution(_ context.Context, stepExecution *models.WorkflowStepExecution) error {
	er.persistence.mu.Lock()
	defer er.persistence.mu.Unlock()

	for _, record := range er.stepExecutions {
		existing := record.stepExecution
		if existing.ExecutionID == stepExecution.ExecutionID && existing.StepID == stepExecution.StepID {
			record.stepExecution = copyStepExecution(stepExecution)
			record.stepExecution.ID = existing.ID

			return nil
		}
	}

	er.stepExecutions[stepExecution.ID] = &stepExecutionRecord{stepExecution: copyStepExecution(stepExecution)}

	return nil
}

// StepExecution returns the step execution for (execution, step).
func (er *ExecutionRepository) StepExecution(_ context.Context, executionID, stepID string) (*models.WorkflowStepExecution, error) {
	er.persistence.mu.RLock()
	defer er.persistence.mu.RUnlock()

	for _, record := range er.stepExecutions {
		stepExecution := record.stepExecution
		if stepExecution.ExecutionID == executionID && stepExecution.StepID == stepID {
			return copyStepExecution(stepExecution), nil
		}
	}

	return nil, persistence.ErrStepExecutionNotFound
}

// StepExecutionByID returns a step execution by its own ID.
func (er *ExecutionRepository) StepExecutionByID(_ context.Context, id string) (*models.WorkflowStepExecution, error) {
	er.persistence.mu.RLock()
	defer er.persistence.mu.RUnlock()

	record, ok := er.stepExecutions[id]
	if !ok {
		return nil, persistence.ErrStepExecutionNotFound
	}

	return copyStepExecution(record.stepExecution), nil
}

// StepExecutions returns all step executions of an execution, oldest first.
func (er *ExecutionRepository) StepExecutions(_ context.Context, executionID string) ([]*models.WorkflowStepExecution, error) {
	er.persistence.mu.RLock()
	defer er.persistence.mu.RUnlock()

	var stepExecutions []*models.WorkflowStepExecution

	for _, record := range er.stepExecutions {
		if record.stepExecution.ExecutionID == executionID {
			stepExecutions = append(stepExecutions, copyStepExecution(record.stepExecution))
		}
	}

	sort.Slice(stepExecutions, func(i, j int) bool {
		return stepExecutions[i].StartedAt.Before(stepExecutions[j].StartedAt)
	})

	return stepExecutions, nil
}

// TransitionStepStatus moves a step execution from one status to another only
// when it still holds the expected one.
func (er *ExecutionRepository) TransitionStepStatus(_ context.Context, stepExecutionID string, from, to models.StepExecutionStatus) (bool, error) {
	er.persistence.mu.Lock()
	defer er.persistence.mu.Unlock()

	record, ok := er.stepExecutions[stepExecutionID]
	if !ok {
		return false, persistence.ErrStepExecutionNotFound
	}

	stepExecution := record.stepExecution
	if stepExecution.Status != from {
		return false, nil
	}

	stepExecution.Status = to

	switch to {
	case models.StepExecutionStatusSucceeded, models.StepExecutionStatusFailed, models.StepExecutionStatusTimedOut:
		now := time.Now().UTC()
		stepExecution.CompletedAt = &now
	case models.StepExecutionStatusPending, models.StepExecutionStatusRunning:
	}

	return true, nil
}

// PendingWaits returns pending step executions of the contact's running
// executions parked on the named event.
func (er *ExecutionRepository) PendingWaits(_ context.Context, contactID, eventName string) ([]*models.WorkflowStepExecution, error) {
	er.persistence.mu.RLock()
	defer er.persistence.mu.RUnlock()

	var waits []*models.WorkflowStepExecution

	for _, record := range er.stepExecutions {
		stepExecution := record.stepExecution
		if stepExecution.Status != models.StepExecutionStatusPending || stepExecution.WaitEventName != eventName {
			continue
		}

		executionRecord, ok := er.executions[stepExecution.ExecutionID]
		if !ok {
			continue
		}

		execution := executionRecord.execution
		if execution.ContactID != contactID || execution.Status != models.ExecutionStatusRunning {
			continue
		}

		waits = append(waits, copyStepExecution(stepExecution))
	}

	sort.Slice(waits, func(i, j int) bool {
		return waits[i].StartedAt.Before(waits[j].StartedAt)
	})

	return waits, nil
}

func copyExecution(execution *models.WorkflowExecution) *models.WorkflowExecution {
	copied := *execution
	copied.Context = copyMap(execution.Context)

	return &copied
}

func copyStepExecution(stepExecution *models.WorkflowStepExecution) *models.WorkflowStepExecution {
	copied := *stepExecution

	return &copied
}
