package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowmail/journey/pkg/models"
	"github.com/flowmail/journey/pkg/persistence"
	"github.com/lib/pq"
)

// ExecutionRepository handles execution and step-execution database
// operations, including the conditional updates the coordinator relies on.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create inserts a new execution. The partial unique index on running
// executions turns a concurrent duplicate start into ErrExecutionConflict.
func (er *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	contextJSON, err := json.Marshal(execution.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal execution context: %w", err)
	}

	query := `
		INSERT INTO workflow_executions (
			id, workflow_id, contact_id, status, current_step_id, context,
			exit_reason, error_message, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = er.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.ContactID,
		execution.Status,
		execution.CurrentStepID,
		contextJSON,
		execution.ExitReason,
		execution.ErrorMessage,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return persistence.ErrExecutionConflict
		}

		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

// GetByID retrieves an execution by its ID.
func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	row := er.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, contact_id, status, current_step_id, context,
		       exit_reason, error_message, started_at, completed_at
		FROM workflow_executions
		WHERE id = $1
	`, id)

	execution, err := er.scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// ListByWorkflow returns the executions of a workflow, newest first.
func (er *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	rows, err := er.db.QueryContext(ctx, `
		SELECT id, workflow_id, contact_id, status, current_step_id, context,
		       exit_reason, error_message, started_at, completed_at
		FROM workflow_executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer er.closeRows(ctx, rows)

	var executions []*models.WorkflowExecution

	for rows.Next() {
		execution, err := er.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// ExistsForContact reports whether any execution (or any running execution)
// exists for the (workflow, contact) pair.
func (er *ExecutionRepository) ExistsForContact(ctx context.Context, workflowID, contactID string, runningOnly bool) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM workflow_executions
			WHERE workflow_id = $1 AND contact_id = $2
		)
	`
	if runningOnly {
		query = `
			SELECT EXISTS (
				SELECT 1 FROM workflow_executions
				WHERE workflow_id = $1 AND contact_id = $2 AND status = 'running'
			)
		`
	}

	var exists bool

	err := er.db.QueryRowContext(ctx, query, workflowID, contactID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check executions for contact: %w", err)
	}

	return exists, nil
}

// UpdateCurrentStep advances current_step_id with a compare-and-swap on the
// previous step. At most one concurrent delivery observes an affected row.
func (er *ExecutionRepository) UpdateCurrentStep(ctx context.Context, executionID, fromStepID, toStepID string) (bool, error) {
	result, err := er.db.ExecContext(ctx, `
		UPDATE workflow_executions
		SET current_step_id = $1
		WHERE id = $2 AND current_step_id = $3 AND status = 'running'
	`, toStepID, executionID, fromStepID)
	if err != nil {
		return false, persistence.NewExecutionError("UpdateCurrentStep", executionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewExecutionError("UpdateCurrentStep", executionID, err)
	}

	return affected == 1, nil
}

// UpdateContext replaces the execution's carried context.
func (er *ExecutionRepository) UpdateContext(ctx context.Context, executionID string, execContext map[string]any) error {
	contextJSON, err := json.Marshal(execContext)
	if err != nil {
		return fmt.Errorf("failed to marshal execution context: %w", err)
	}

	_, err = er.db.ExecContext(ctx,
		"UPDATE workflow_executions SET context = $1 WHERE id = $2",
		contextJSON, executionID)
	if err != nil {
		return persistence.NewExecutionError("UpdateContext", executionID, err)
	}

	return nil
}

// Complete marks a running execution completed.
func (er *ExecutionRepository) Complete(ctx context.Context, executionID, exitReason string) (bool, error) {
	return er.finish(ctx, "Complete", executionID, models.ExecutionStatusCompleted, exitReason, "")
}

// Fail marks a running execution failed with a reason.
func (er *ExecutionRepository) Fail(ctx context.Context, executionID, reason string) (bool, error) {
	return er.finish(ctx, "Fail", executionID, models.ExecutionStatusFailed, "", reason)
}

// Cancel marks a running execution cancelled.
func (er *ExecutionRepository) Cancel(ctx context.Context, executionID string) (bool, error) {
	return er.finish(ctx, "Cancel", executionID, models.ExecutionStatusCancelled, "", "")
}

func (er *ExecutionRepository) finish(ctx context.Context, op, executionID string, status models.ExecutionStatus, exitReason, errorMessage string) (bool, error) {
	result, err := er.db.ExecContext(ctx, `
		UPDATE workflow_executions
		SET status = $1,
		    exit_reason = CASE WHEN $2 <> '' THEN $2 ELSE exit_reason END,
		    error_message = CASE WHEN $3 <> '' THEN $3 ELSE error_message END,
		    completed_at = $4
		WHERE id = $5 AND status = 'running'
	`, status, exitReason, errorMessage, time.Now().UTC(), executionID)
	if err != nil {
		return false, persistence.NewExecutionError(op, executionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewExecutionError(op, executionID, err)
	}

	return affected == 1, nil
}

// SaveStepExecution upserts a step execution row. The (execution, step)
// uniqueness makes duplicate job deliveries converge on the same row.
func (er *ExecutionRepository) SaveStepExecution(ctx context.Context, stepExecution *models.WorkflowStepExecution) error {
	query := `
		INSERT INTO workflow_step_executions (
			id, execution_id, step_id, status, wait_event_name,
			attempts, error_message, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (execution_id, step_id) DO UPDATE SET
			status = EXCLUDED.status,
			wait_event_name = EXCLUDED.wait_event_name,
			attempts = EXCLUDED.attempts,
			error_message = EXCLUDED.error_message,
			completed_at = EXCLUDED.completed_at
	`

	_, err := er.db.ExecContext(ctx, query,
		stepExecution.ID,
		stepExecution.ExecutionID,
		stepExecution.StepID,
		stepExecution.Status,
		stepExecution.WaitEventName,
		stepExecution.Attempts,
		stepExecution.ErrorMessage,
		stepExecution.StartedAt,
		stepExecution.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save step execution: %w", err)
	}

	return nil
}

// StepExecution retrieves the step execution for (execution, step).
func (er *ExecutionRepository) StepExecution(ctx context.Context, executionID, stepID string) (*models.WorkflowStepExecution, error) {
	row := er.db.QueryRowContext(ctx, `
		SELECT id, execution_id, step_id, status, wait_event_name,
		       attempts, error_message, started_at, completed_at
		FROM workflow_step_executions
		WHERE execution_id = $1 AND step_id = $2
	`, executionID, stepID)

	stepExecution, err := er.scanStepExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrStepExecutionNotFound
		}

		return nil, fmt.Errorf("failed to scan step execution: %w", err)
	}

	return stepExecution, nil
}

// StepExecutionByID retrieves a step execution by its ID.
func (er *ExecutionRepository) StepExecutionByID(ctx context.Context, id string) (*models.WorkflowStepExecution, error) {
	row := er.db.QueryRowContext(ctx, `
		SELECT id, execution_id, step_id, status, wait_event_name,
		       attempts, error_message, started_at, completed_at
		FROM workflow_step_executions
		WHERE id = $1
	`, id)

	stepExecution, err := er.scanStepExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrStepExecutionNotFound
		}

		return nil, fmt.Errorf("failed to scan step execution: %w", err)
	}

	return stepExecution, nil
}

// StepExecutions returns all step executions of an execution in entry order.
func (er *ExecutionRepository) StepExecutions(ctx context.Context, executionID string) ([]*models.WorkflowStepExecution, error) {
	rows, err := er.db.QueryContext(ctx, `
		SELECT id, execution_id, step_id, status, wait_event_name,
		       attempts, error_message, started_at, completed_at
		FROM workflow_step_executions
		WHERE execution_id = $1
		ORDER BY started_at ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step executions: %w", err)
	}

	defer er.closeRows(ctx, rows)

	var stepExecutions []*models.WorkflowStepExecution

	for rows.Next() {
		stepExecution, err := er.scanStepExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step execution: %w", err)
		}

		stepExecutions = append(stepExecutions, stepExecution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step executions: %w", err)
	}

	return stepExecutions, nil
}

// TransitionStepStatus conditionally moves a step execution between
// statuses. Whichever of event-resume and timeout-fire gets here first
// wins; the loser observes zero rows affected.
func (er *ExecutionRepository) TransitionStepStatus(ctx context.Context, stepExecutionID string, from, to models.StepExecutionStatus) (bool, error) {
	var completedAt any
	if to == models.StepExecutionStatusSucceeded || to == models.StepExecutionStatusFailed || to == models.StepExecutionStatusTimedOut {
		completedAt = time.Now().UTC()
	}

	result, err := er.db.ExecContext(ctx, `
		UPDATE workflow_step_executions
		SET status = $1, completed_at = COALESCE($2, completed_at)
		WHERE id = $3 AND status = $4
	`, to, completedAt, stepExecutionID, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition step execution %s: %w", stepExecutionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected == 1, nil
}

// PendingWaits returns pending step executions of running executions for
// the contact parked on the named event.
func (er *ExecutionRepository) PendingWaits(ctx context.Context, contactID, eventName string) ([]*models.WorkflowStepExecution, error) {
	rows, err := er.db.QueryContext(ctx, `
		SELECT se.id, se.execution_id, se.step_id, se.status, se.wait_event_name,
		       se.attempts, se.error_message, se.started_at, se.completed_at
		FROM workflow_step_executions se
		JOIN workflow_executions e ON e.id = se.execution_id
		WHERE e.contact_id = $1
		  AND e.status = 'running'
		  AND se.status = 'pending'
		  AND se.wait_event_name = $2
	`, contactID, eventName)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending waits: %w", err)
	}

	defer er.closeRows(ctx, rows)

	var waits []*models.WorkflowStepExecution

	for rows.Next() {
		stepExecution, err := er.scanStepExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step execution: %w", err)
		}

		waits = append(waits, stepExecution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending waits: %w", err)
	}

	return waits, nil
}

func (er *ExecutionRepository) scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowExecution, error) {
	var (
		execution   models.WorkflowExecution
		contextJSON []byte
	)

	err := scanner.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.ContactID,
		&execution.Status,
		&execution.CurrentStepID,
		&contextJSON,
		&execution.ExitReason,
		&execution.ErrorMessage,
		&execution.StartedAt,
		&execution.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.Context = make(map[string]any)

	if contextJSON != nil {
		err = json.Unmarshal(contextJSON, &execution.Context)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution context: %w", err)
		}
	}

	return &execution, nil
}

func (er *ExecutionRepository) scanStepExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowStepExecution, error) {
	var stepExecution models.WorkflowStepExecution

	err := scanner.Scan(
		&stepExecution.ID,
		&stepExecution.ExecutionID,
		&stepExecution.StepID,
		&stepExecution.Status,
		&stepExecution.WaitEventName,
		&stepExecution.Attempts,
		&stepExecution.ErrorMessage,
		&stepExecution.StartedAt,
		&stepExecution.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &stepExecution, nil
}

func (er *ExecutionRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	if closeErr := rows.Close(); closeErr != nil {
		er.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
	}
}
