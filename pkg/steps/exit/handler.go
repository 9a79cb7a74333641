// Package exit implements the exit step, which ends the execution as
// completed with a recorded reason.
package exit

import (
	"context"

	"github.com/flowmail/journey/pkg/engine"
	"github.com/flowmail/journey/pkg/models"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() models.StepType {
	return models.StepTypeExit
}

func (h *Handler) Execute(_ context.Context, stepCtx engine.StepContext) (*engine.Result, error) {
	var config models.ExitConfig

	err := stepCtx.Step.DecodeConfig(&config)
	if err != nil {
		return nil, err
	}

	reason := config.Reason
	if reason == "" {
		reason = "exit step " + stepCtx.Step.ID
	}

	return engine.ExitResult(reason), nil
}
