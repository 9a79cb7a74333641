package memory

import (
	"context"
	"sort"
	"time"

	"github.com/flowmail/journey/pkg/models"
	"github.com/flowmail/journey/pkg/persistence"
)

type workflowRecord struct {
	workflow *models.Workflow
}

// WorkflowRepository stores workflow definitions in memory.
type WorkflowRepository struct {
	persistence *Persistence
	workflows   map[string]*workflowRecord
}

// GetAll returns all non-deleted workflows, newest first.
func (wr *WorkflowRepository) GetAll(_ context.Context) ([]*models.Workflow, error) {
	wr.persistence.mu.RLock()
	defer wr.persistence.mu.RUnlock()

	var workflows []*models.Workflow

	for _, record := range wr.workflows {
		if record.workflow.DeletedAt != nil {
			continue
		}

		workflows = append(workflows, copyWorkflow(record.workflow))
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// GetByID returns a workflow by ID.
func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	wr.persistence.mu.RLock()
	defer wr.persistence.mu.RUnlock()

	record, ok := wr.workflows[id]
	if !ok || record.workflow.DeletedAt != nil {
		return nil, persistence.ErrWorkflowNotFound
	}

	return copyWorkflow(record.workflow), nil
}

// GetByTriggerEvent returns enabled workflows triggered by the named event.
func (wr *WorkflowRepository) GetByTriggerEvent(_ context.Context, eventName string) ([]*models.Workflow, error) {
	wr.persistence.mu.RLock()
	defer wr.persistence.mu.RUnlock()

	var workflows []*models.Workflow

	for _, record := range wr.workflows {
		workflow := record.workflow
		if workflow.DeletedAt != nil || !workflow.Enabled || workflow.TriggerEvent != eventName {
			continue
		}

		workflows = append(workflows, copyWorkflow(workflow))
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].ID < workflows[j].ID
	})

	return workflows, nil
}

// Save upserts the workflow with its steps and transitions.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	wr.persistence.mu.Lock()
	defer wr.persistence.mu.Unlock()

	wr.workflows[workflow.ID] = &workflowRecord{workflow: copyWorkflow(workflow)}

	return nil
}

// Delete soft deletes a workflow.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	wr.persistence.mu.Lock()
	defer wr.persistence.mu.Unlock()

	record, ok := wr.workflows[id]
	if !ok || record.workflow.DeletedAt != nil {
		return persistence.ErrWorkflowNotFound
	}

	now := time.Now().UTC()
	record.workflow.DeletedAt = &now

	return nil
}

func copyWorkflow(workflow *models.Workflow) *models.Workflow {
	copied := *workflow

	copied.Steps = make([]*models.WorkflowStep, 0, len(workflow.Steps))
	for _, step := range workflow.Steps {
		stepCopy := *step
		stepCopy.Config = copyMap(step.Config)
		copied.Steps = append(copied.Steps, &stepCopy)
	}

	copied.Transitions = make([]*models.WorkflowTransition, 0, len(workflow.Transitions))
	for _, transition := range workflow.Transitions {
		transitionCopy := *transition
		copied.Transitions = append(copied.Transitions, &transitionCopy)
	}

	return &copied
}

func copyMap(source map[string]any) map[string]any {
	copied := make(map[string]any, len(source))
	for key, value := range source {
		copied[key] = value
	}

	return copied
}
