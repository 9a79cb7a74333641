// Package engine drives persisted workflow executions forward one step at a
// time. All coordination state lives in persistence; any worker can process
// any job, and every entry point is safe under duplicate delivery.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowmail/journey/pkg/models"
)

// StepContext carries everything a handler may read while executing a step.
// Handlers perform their effect and report what happened through Result; the
// coordinator owns all state transitions and scheduling.
type StepContext struct {
	Execution *models.WorkflowExecution
	Workflow  *models.Workflow
	Step      *models.WorkflowStep
	Contact   *models.Contact
	Logger    *slog.Logger
}

// StepHandler executes one step type. Execute returns an error only for
// effect failures; the coordinator retries those through queue redelivery up
// to a bounded attempt budget, then ends the execution in a failed state. A
// Fail result is a deliberate terminal outcome and is never retried.
type StepHandler interface {
	Type() models.StepType
	Execute(ctx context.Context, stepCtx StepContext) (*Result, error)
}

// HandlerSource resolves the handler for a step type.
type HandlerSource interface {
	HandlerFor(stepType models.StepType) (StepHandler, error)
}

// Result is a step handler's report. Exactly one of the directive fields is
// set; a zero-directive result means continue along Branch.
type Result struct {
	// Branch selects which transitions to follow when continuing. Empty
	// means the default (untagged) transitions.
	Branch string

	// Context holds updates merged into the execution context.
	Context map[string]any

	Wait *WaitSpec
	Exit *ExitSpec
	Fail *FailSpec
}

// WaitSpec parks the execution until the named event arrives for the contact
// or the timeout elapses. A wait with an empty event name is a plain delay;
// only the timeout can wake it.
type WaitSpec struct {
	EventName string
	Timeout   time.Duration
}

// ExitSpec ends the execution as completed with a reason.
type ExitSpec struct {
	Reason string
}

// FailSpec ends the execution as failed.
type FailSpec struct {
	Reason string
}

// ContinueResult follows the branch's transitions, merging updates into the
// execution context.
func ContinueResult(branch string, contextUpdates map[string]any) *Result {
	return &Result{Branch: branch, Context: contextUpdates}
}

// WaitResult parks the execution.
func WaitResult(eventName string, timeout time.Duration) *Result {
	return &Result{Wait: &WaitSpec{EventName: eventName, Timeout: timeout}}
}

// ExitResult completes the execution.
func ExitResult(reason string) *Result {
	return &Result{Exit: &ExitSpec{Reason: reason}}
}

// FailResult fails the execution.
func FailResult(reason string) *Result {
	return &Result{Fail: &FailSpec{Reason: reason}}
}
