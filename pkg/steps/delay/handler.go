// Package delay implements the delay step. The execution parks and a
// scheduled timeout job wakes it after the configured duration.
package delay

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
	return models.StepTypeDelay
}

func (h *Handler) Execute(_ context.Context, stepCtx engine.StepContext) (*engine.Result, error) {
	var config models.DelayConfig

	err := stepCtx.Step.DecodeConfig(&config)
	if err != nil {
		return nil, err
	}

	duration, err := config.Duration()
	if err != nil {
		return nil, err
	}

	// A delay is a wait with no wake-up event; only the timeout resumes it.
	return engine.WaitResult("", duration), nil
}
