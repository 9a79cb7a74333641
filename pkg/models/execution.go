package models

import "time"

// ExecutionStatus is the lifecycle state of a workflow execution. Once the
// status leaves running the execution is terminal.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status is final.
func (s ExecutionStatus) Terminal() bool {
	return s != ExecutionStatusRunning
}

// WorkflowExecution is one run of a workflow's graph for a single contact.
// The coordinator is the sole writer of Status and CurrentStepID; both are
// only ever changed through conditional updates.
type WorkflowExecution struct {
	ID            string          `json:"id"`
	WorkflowID    string          `json:"workflow_id"`
	ContactID     string          `json:"contact_id"`
	Status        ExecutionStatus `json:"status"`
	CurrentStepID string          `json:"current_step_id"`
	Context       map[string]any  `json:"context,omitempty"`
	ExitReason    string          `json:"exit_reason,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// StepExecutionStatus is the state of a single step entered by an execution.
type StepExecutionStatus string

const (
	StepExecutionStatusPending   StepExecutionStatus = "pending"
	StepExecutionStatusRunning   StepExecutionStatus = "running"
	StepExecutionStatusSucceeded StepExecutionStatus = "succeeded"
	StepExecutionStatusFailed    StepExecutionStatus = "failed"
	StepExecutionStatusTimedOut  StepExecutionStatus = "timed_out"
)

// WorkflowStepExecution records one step actually entered by an execution.
// Its ID is the idempotency anchor for timeout jobs, and its status is the
// single arbiter of the event-resume vs timeout-fire race: whichever side
// transitions it out of pending first proceeds.
type WorkflowStepExecution struct {
	ID            string              `json:"id"`
	ExecutionID   string              `json:"execution_id"`
	StepID        string              `json:"step_id"`
	Status        StepExecutionStatus `json:"status"`
	WaitEventName string              `json:"wait_event_name,omitempty"`
	Attempts      int                 `json:"attempts,omitempty"`
	ErrorMessage  string              `json:"error_message,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
}
