// Package condition implements the branching step. It evaluates a segment
// filter predicate against the contact's attributes and the execution
// context and steers the execution down the yes or no branch.
package condition

import (
	"context"

	"github.com/flowmail/journey/pkg/conditions"
	"github.com/flowmail/journey/pkg/engine"
	"github.com/flowmail/journey/pkg/models"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() models.StepType {
	return models.StepTypeCondition
}

func (h *Handler) Execute(ctx context.Context, stepCtx engine.StepContext) (*engine.Result, error) {
	var config models.ConditionConfig

	err := stepCtx.Step.DecodeConfig(&config)
	if err != nil {
		return nil, err
	}

	attrs := stepCtx.Contact.Attributes()
	for key, value := range stepCtx.Execution.Context {
		attrs[key] = value
	}

	matched, err := conditions.Evaluate(conditions.Condition{
		Field:    config.Field,
		Operator: config.Operator,
		Value:    config.Value,
		Unit:     config.Unit,
	}, attrs)
	if err != nil {
		return nil, err
	}

	branch := models.BranchNo
	if matched {
		branch = models.BranchYes
	}

	stepCtx.Logger.DebugContext(ctx, "condition evaluated",
		"field", config.Field, "operator", config.Operator, "branch", branch)

	return engine.ContinueResult(branch, nil), nil
}
