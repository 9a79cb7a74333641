// Package web provides the HTTP handlers and request types for the journey
// API: workflow definitions, executions and contact event ingestion.
package web

import "github.com/flowmail/journey/pkg/models"

// WorkflowRequest is the request body for creating or replacing a workflow
// definition. Structural validation beyond field presence happens in the
// definition service.
type WorkflowRequest struct {
	Name         string              `json:"name"          validate:"required,min=1"`
	ProjectID    string              `json:"project_id"    validate:"required"`
	TriggerEvent string              `json:"trigger_event" validate:"required"`
	Enabled      bool                `json:"enabled"`
	AllowReentry bool                `json:"allow_reentry"`
	Steps        []StepRequest       `json:"steps"         validate:"required,min=1,dive"`
	Transitions  []TransitionRequest `json:"transitions"   validate:"dive"`
}

// StepRequest is one step of a workflow definition request.
type StepRequest struct {
	ID         string         `json:"id"          validate:"required"`
	Type       string         `json:"type"        validate:"required"`
	Name       string         `json:"name"        validate:"required,min=1"`
	Config     map[string]any `json:"config"`
	TemplateID *string        `json:"template_id,omitempty"`
}

// TransitionRequest is one transition of a workflow definition request.
type TransitionRequest struct {
	ID         string `json:"id,omitempty"`
	FromStepID string `json:"from_step_id" validate:"required"`
	ToStepID   string `json:"to_step_id"   validate:"required"`
	Branch     string `json:"branch,omitempty"`
	Priority   int    `json:"priority"`
}

// StartExecutionRequest enters a contact into a workflow.
type StartExecutionRequest struct {
	ContactID string         `json:"contact_id" validate:"required"`
	Context   map[string]any `json:"context,omitempty"`
}

// CancelExecutionRequest stops a running execution.
type CancelExecutionRequest struct {
	Reason      string `json:"reason,omitempty"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}

// RecordEventRequest ingests a contact event.
type RecordEventRequest struct {
	Name    string         `json:"name" validate:"required,min=1"`
	Payload map[string]any `json:"payload,omitempty"`
}

// UpsertContactRequest creates or replaces a contact.
type UpsertContactRequest struct {
	ProjectID string         `json:"project_id" validate:"required"`
	Email     string         `json:"email"      validate:"required,email"`
	FirstName string         `json:"first_name,omitempty"`
	LastName  string         `json:"last_name,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// ToModel converts the request into a workflow definition.
func (r *WorkflowRequest) ToModel(id string) *models.Workflow {
	workflow := &models.Workflow{
		ID:           id,
		ProjectID:    r.ProjectID,
		Name:         r.Name,
		TriggerEvent: r.TriggerEvent,
		Enabled:      r.Enabled,
		AllowReentry: r.AllowReentry,
	}

	for _, step := range r.Steps {
		workflow.Steps = append(workflow.Steps, &models.WorkflowStep{
			ID:         step.ID,
			Type:       models.StepType(step.Type),
			Name:       step.Name,
			Config:     step.Config,
			TemplateID: step.TemplateID,
		})
	}

	for _, transition := range r.Transitions {
		workflow.Transitions = append(workflow.Transitions, &models.WorkflowTransition{
			ID:         transition.ID,
			FromStepID: transition.FromStepID,
			ToStepID:   transition.ToStepID,
			Branch:     transition.Branch,
			Priority:   transition.Priority,
		})
	}

	return workflow
}
