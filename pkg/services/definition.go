package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowmail/journey/pkg/conditions"
	"github.com/flowmail/journey/pkg/models"
	"github.com/flowmail/journey/pkg/persistence"
	"github.com/flowmail/journey/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefinitionService owns workflow definition writes. Every save passes the
// full validation gate, so the engine can trust that a loaded workflow has
// exactly one trigger, known step types, schema-valid configs and
// unambiguous branches.
type DefinitionService struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewDefinitionService(persistence persistence.Persistence, reg *registry.Registry, logger *slog.Logger) *DefinitionService {
	return &DefinitionService{
		persistence: persistence,
		registry:    reg,
		validator:   validator.New(),
		logger:      logger.With("module", "definition_service"),
	}
}

// SaveWorkflow validates and persists a workflow definition, assigning IDs
// and timestamps where missing.
func (s *DefinitionService) SaveWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	err := s.ValidateWorkflow(workflow)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	for _, step := range workflow.Steps {
		step.WorkflowID = workflow.ID
	}

	for index, transition := range workflow.Transitions {
		transition.WorkflowID = workflow.ID
		if transition.ID == "" {
			transition.ID = fmt.Sprintf("t-%d-%s", index, uuid.New().String()[:8])
		}
	}

	err = s.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	s.logger.InfoContext(ctx, "workflow saved", "workflow_id", workflow.ID, "name", workflow.Name)

	return workflow, nil
}

// GetWorkflow returns a workflow definition.
func (s *DefinitionService) GetWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	return s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
}

// ListWorkflows returns all workflow definitions.
func (s *DefinitionService) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	return s.persistence.WorkflowRepository().GetAll(ctx)
}

// DeleteWorkflow soft deletes a workflow definition.
func (s *DefinitionService) DeleteWorkflow(ctx context.Context, workflowID string) error {
	return s.persistence.WorkflowRepository().Delete(ctx, workflowID)
}

// ValidateWorkflow applies the full definition gate: exactly one trigger, a
// trigger event name, known step types with schema-valid configs, known
// condition operators, transitions that reference real steps and at most one
// transition per branch tag per step.
func (s *DefinitionService) ValidateWorkflow(workflow *models.Workflow) error {
	if workflow == nil {
		return &ServiceError{Op: "validate_workflow", Code: "invalid", Err: ErrWorkflowNil}
	}

	if workflow.Name == "" {
		return &ServiceError{Op: "validate_workflow", Code: "invalid", Err: ErrWorkflowNameRequired}
	}

	if workflow.TriggerEvent == "" {
		return &ServiceError{Op: "validate_workflow", Code: "invalid", Err: ErrTriggerEventRequired}
	}

	triggers := 0
	stepIDs := make(map[string]bool, len(workflow.Steps))

	for _, step := range workflow.Steps {
		err := s.validator.Struct(step)
		if err != nil {
			return NewValidationError("validate_workflow", "invalid_step",
				fmt.Sprintf("step %s: %v", step.ID, err), ErrInvalidRequest)
		}

		if step.ID == "" || stepIDs[step.ID] {
			return NewValidationError("validate_workflow", "invalid_step",
				"step IDs must be present and unique", ErrInvalidRequest)
		}

		stepIDs[step.ID] = true

		if !s.registry.KnownType(step.Type) {
			return NewValidationError("validate_workflow", "unknown_step_type",
				fmt.Sprintf("step %s has unknown type %q", step.ID, step.Type), ErrUnknownStepType)
		}

		err = registry.ValidateStepConfig(step.Type, step.Config)
		if err != nil {
			return NewValidationError("validate_workflow", "invalid_config",
				fmt.Sprintf("step %s: %v", step.ID, err), ErrInvalidRequest)
		}

		if step.Type == models.StepTypeTrigger {
			triggers++
		}

		if step.Type == models.StepTypeCondition {
			var config models.ConditionConfig

			err = step.DecodeConfig(&config)
			if err != nil {
				return NewValidationError("validate_workflow", "invalid_config",
					fmt.Sprintf("step %s: %v", step.ID, err), ErrInvalidRequest)
			}

			if !conditions.KnownOperator(config.Operator) {
				return NewValidationError("validate_workflow", "unknown_operator",
					fmt.Sprintf("step %s uses unknown operator %q", step.ID, config.Operator), ErrUnknownOperator)
			}
		}
	}

	if triggers != 1 {
		return &ServiceError{Op: "validate_workflow", Code: "invalid", Err: ErrTriggerStepRequired}
	}

	type branchKey struct {
		fromStepID string
		branch     string
	}

	seen := make(map[branchKey]bool, len(workflow.Transitions))

	for _, transition := range workflow.Transitions {
		if !stepIDs[transition.FromStepID] || !stepIDs[transition.ToStepID] {
			return NewValidationError("validate_workflow", "dangling_transition",
				fmt.Sprintf("transition %s references missing steps", transition.ID), ErrDanglingTransition)
		}

		if transition.Branch == "" {
			continue
		}

		key := branchKey{fromStepID: transition.FromStepID, branch: transition.Branch}
		if seen[key] {
			return NewValidationError("validate_workflow", "duplicate_branch",
				fmt.Sprintf("step %s has more than one %q transition", transition.FromStepID, transition.Branch), ErrDuplicateBranch)
		}

		seen[key] = true
	}

	return nil
}
