// Package models defines the core domain models for the workflow automation engine.
package models

import (
	"sort"
	"time"
)

// Workflow is a directed graph of steps executed once per contact.
// The engine treats it as read-only; editing happens through the
// definition service between executions.
type Workflow struct {
	ID           string                `json:"id"`
	ProjectID    string                `json:"project_id"   validate:"required"`
	Name         string                `json:"name"         validate:"required,min=3"`
	TriggerEvent string                `json:"trigger_event"`
	Enabled      bool                  `json:"enabled"`
	AllowReentry bool                  `json:"allow_reentry"`
	Steps        []*WorkflowStep       `json:"steps"`
	Transitions  []*WorkflowTransition `json:"transitions"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	DeletedAt    *time.Time            `json:"deleted_at,omitempty"`
}

// StepByID returns the step with the given ID, if present.
func (w *Workflow) StepByID(stepID string) (*WorkflowStep, bool) {
	for _, step := range w.Steps {
		if step.ID == stepID {
			return step, true
		}
	}

	return nil, false
}

// TriggerStep returns the workflow's single trigger step. Every valid
// workflow has exactly one; the definition service enforces that.
func (w *Workflow) TriggerStep() (*WorkflowStep, bool) {
	for _, step := range w.Steps {
		if step.Type == StepTypeTrigger {
			return step, true
		}
	}

	return nil, false
}

// TransitionsFrom returns the outgoing transitions of a step ordered by
// ascending priority, ties broken by transition ID for determinism.
func (w *Workflow) TransitionsFrom(stepID string) []*WorkflowTransition {
	var out []*WorkflowTransition

	for _, t := range w.Transitions {
		if t.FromStepID == stepID {
			out = append(out, t)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}

		return out[i].ID < out[j].ID
	})

	return out
}
