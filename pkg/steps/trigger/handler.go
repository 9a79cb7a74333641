// Package trigger implements the entry step of a workflow. It performs no
// effect; the execution simply flows through it into the graph.
package trigger

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
	return models.StepTypeTrigger
}

func (h *Handler) Execute(_ context.Context, _ engine.StepContext) (*engine.Result, error) {
	return engine.ContinueResult("", nil), nil
}
