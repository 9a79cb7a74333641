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
)

// WorkflowRepository handles workflow definition database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// GetAll returns all non-deleted workflows with their steps and transitions.
func (wr *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	query := `
		SELECT id, project_id, name, trigger_event, enabled, allow_reentry,
		       created_at, updated_at, deleted_at
		FROM workflows
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := wr.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer wr.closeRows(ctx, rows)

	var workflows []*models.Workflow

	for rows.Next() {
		workflow, err := wr.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		err = wr.loadGraph(ctx, workflow)
		if err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

// GetByID returns a workflow with its full graph loaded.
func (wr *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT id, project_id, name, trigger_event, enabled, allow_reentry,
		       created_at, updated_at, deleted_at
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL
	`

	row := wr.db.QueryRowContext(ctx, query, id)

	workflow, err := wr.scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = wr.loadGraph(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

// GetByTriggerEvent returns enabled workflows triggered by the named event.
func (wr *WorkflowRepository) GetByTriggerEvent(ctx context.Context, eventName string) ([]*models.Workflow, error) {
	query := `
		SELECT id, project_id, name, trigger_event, enabled, allow_reentry,
		       created_at, updated_at, deleted_at
		FROM workflows
		WHERE trigger_event = $1 AND enabled = true AND deleted_at IS NULL
	`

	rows, err := wr.db.QueryContext(ctx, query, eventName)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows by trigger event: %w", err)
	}

	defer wr.closeRows(ctx, rows)

	var workflows []*models.Workflow

	for rows.Next() {
		workflow, err := wr.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		err = wr.loadGraph(ctx, workflow)
		if err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

// Save upserts the workflow row and replaces its steps and transitions in a
// single transaction. Step rows are immutable during an execution pass; the
// replacement only happens through definition edits.
func (wr *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	transaction, err := wr.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	upsert := `
		INSERT INTO workflows (id, project_id, name, trigger_event, enabled, allow_reentry, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			name = EXCLUDED.name,
			trigger_event = EXCLUDED.trigger_event,
			enabled = EXCLUDED.enabled,
			allow_reentry = EXCLUDED.allow_reentry,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = transaction.ExecContext(ctx, upsert,
		workflow.ID,
		workflow.ProjectID,
		workflow.Name,
		workflow.TriggerEvent,
		workflow.Enabled,
		workflow.AllowReentry,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	_, err = transaction.ExecContext(ctx, "DELETE FROM workflow_transitions WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to clear transitions: %w", err)
	}

	_, err = transaction.ExecContext(ctx, "DELETE FROM workflow_steps WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to clear steps: %w", err)
	}

	for _, step := range workflow.Steps {
		configJSON, err := json.Marshal(step.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal config for step %s: %w", step.ID, err)
		}

		_, err = transaction.ExecContext(ctx, `
			INSERT INTO workflow_steps (workflow_id, id, step_type, name, config, template_id)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, workflow.ID, step.ID, step.Type, step.Name, configJSON, step.TemplateID)
		if err != nil {
			return fmt.Errorf("failed to save step %s: %w", step.ID, err)
		}
	}

	for _, t := range workflow.Transitions {
		_, err = transaction.ExecContext(ctx, `
			INSERT INTO workflow_transitions (workflow_id, id, from_step_id, to_step_id, branch, priority)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, workflow.ID, t.ID, t.FromStepID, t.ToStepID, t.Branch, t.Priority)
		if err != nil {
			return fmt.Errorf("failed to save transition %s: %w", t.ID, err)
		}
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow save: %w", err)
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at.
func (wr *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := wr.db.ExecContext(ctx,
		"UPDATE workflows SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL",
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

func (wr *WorkflowRepository) loadGraph(ctx context.Context, workflow *models.Workflow) error {
	stepRows, err := wr.db.QueryContext(ctx, `
		SELECT id, workflow_id, step_type, name, config, template_id
		FROM workflow_steps
		WHERE workflow_id = $1
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query steps: %w", err)
	}

	defer wr.closeRows(ctx, stepRows)

	for stepRows.Next() {
		var (
			step       models.WorkflowStep
			configJSON []byte
		)

		err = stepRows.Scan(&step.ID, &step.WorkflowID, &step.Type, &step.Name, &configJSON, &step.TemplateID)
		if err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		step.Config = make(map[string]any)

		if configJSON != nil {
			err = json.Unmarshal(configJSON, &step.Config)
			if err != nil {
				return fmt.Errorf("failed to unmarshal config for step %s: %w", step.ID, err)
			}
		}

		workflow.Steps = append(workflow.Steps, &step)
	}

	if err := stepRows.Err(); err != nil {
		return fmt.Errorf("error iterating steps: %w", err)
	}

	transitionRows, err := wr.db.QueryContext(ctx, `
		SELECT id, workflow_id, from_step_id, to_step_id, branch, priority
		FROM workflow_transitions
		WHERE workflow_id = $1
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query transitions: %w", err)
	}

	defer wr.closeRows(ctx, transitionRows)

	for transitionRows.Next() {
		var t models.WorkflowTransition

		err = transitionRows.Scan(&t.ID, &t.WorkflowID, &t.FromStepID, &t.ToStepID, &t.Branch, &t.Priority)
		if err != nil {
			return fmt.Errorf("failed to scan transition: %w", err)
		}

		workflow.Transitions = append(workflow.Transitions, &t)
	}

	if err := transitionRows.Err(); err != nil {
		return fmt.Errorf("error iterating transitions: %w", err)
	}

	return nil
}

func (wr *WorkflowRepository) scanWorkflow(scanner interface {
	Scan(dest ...any) error
}) (*models.Workflow, error) {
	var workflow models.Workflow

	err := scanner.Scan(
		&workflow.ID,
		&workflow.ProjectID,
		&workflow.Name,
		&workflow.TriggerEvent,
		&workflow.Enabled,
		&workflow.AllowReentry,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

func (wr *WorkflowRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	if closeErr := rows.Close(); closeErr != nil {
		wr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
	}
}
