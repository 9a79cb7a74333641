package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// StepType identifies the behavior of a workflow step.
type StepType string

const (
	StepTypeTrigger       StepType = "trigger"
	StepTypeSendEmail     StepType = "send_email"
	StepTypeDelay         StepType = "delay"
	StepTypeWaitForEvent  StepType = "wait_for_event"
	StepTypeCondition     StepType = "condition"
	StepTypeWebhook       StepType = "webhook"
	StepTypeUpdateContact StepType = "update_contact"
	StepTypeExit          StepType = "exit"
)

// IsSynchronous reports whether a step of this type completes without any
// externally visible delay, so the coordinator may chain into it within the
// same advance pass instead of enqueuing a continuation job.
func (t StepType) IsSynchronous() bool {
	switch t {
	case StepTypeTrigger, StepTypeCondition, StepTypeWebhook, StepTypeUpdateContact, StepTypeExit:
		return true
	case StepTypeSendEmail, StepTypeDelay, StepTypeWaitForEvent:
		return false
	default:
		return false
	}
}

// WorkflowStep is a typed node in a workflow's graph. Config carries the
// type-specific payload and is validated against the step type's schema at
// definition-edit time, then decoded into a typed config at execution time.
type WorkflowStep struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	Type       StepType       `json:"type"        validate:"required"`
	Name       string         `json:"name"        validate:"required,min=1"`
	Config     map[string]any `json:"config"`
	TemplateID *string        `json:"template_id,omitempty"`
}

// DelayConfig configures a delay step.
type DelayConfig struct {
	Amount int    `json:"amount"`
	Unit   string `json:"unit"`
}

// Duration converts the amount/unit pair into a duration.
func (c DelayConfig) Duration() (time.Duration, error) {
	if c.Amount <= 0 {
		return 0, fmt.Errorf("delay amount must be positive, got %d", c.Amount)
	}

	switch c.Unit {
	case "minutes":
		return time.Duration(c.Amount) * time.Minute, nil
	case "hours":
		return time.Duration(c.Amount) * time.Hour, nil
	case "days":
		return time.Duration(c.Amount) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown delay unit %q", c.Unit)
	}
}

// WaitForEventConfig configures a wait-for-event step.
type WaitForEventConfig struct {
	EventName string `json:"event_name"`
	TimeoutMs int64  `json:"timeout_ms"`
}

// Timeout returns the configured timeout, or the engine default when unset.
func (c WaitForEventConfig) Timeout(fallback time.Duration) time.Duration {
	if c.TimeoutMs <= 0 {
		return fallback
	}

	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ConditionConfig configures a condition step; it is the same vocabulary
// segment filters use elsewhere in the product.
type ConditionConfig struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

// SendEmailConfig configures a send-email step. The template reference wins
// over the inline subject/body pair when both are present.
type SendEmailConfig struct {
	TemplateID string `json:"template_id,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Body       string `json:"body,omitempty"`
}

// WebhookConfig configures an outbound webhook step.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// UpdateContactConfig configures a contact mutation step. Fields are applied
// as a targeted merge into the contact's custom data, never an overwrite.
type UpdateContactConfig struct {
	Fields map[string]any `json:"fields"`
}

// ExitConfig configures an exit step.
type ExitConfig struct {
	Reason string `json:"reason,omitempty"`
}

// DecodeConfig decodes the step's free-form config into the typed config
// struct for its step type. The definition service guarantees the config
// matches the type's schema, so a decode failure here is a data error.
func (s *WorkflowStep) DecodeConfig(out any) error {
	raw, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config for step %s: %w", s.ID, err)
	}

	err = json.Unmarshal(raw, out)
	if err != nil {
		return fmt.Errorf("failed to decode %s config for step %s: %w", s.Type, s.ID, err)
	}

	return nil
}
