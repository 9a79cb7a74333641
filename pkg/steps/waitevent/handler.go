// Package waitevent implements the wait-for-event step. The execution parks
// until the contact produces the named event or the timeout elapses; the
// timeout path leaves through the timeout branch.
package waitevent

import (
	"context"
	"errors"
	"time"

	"github.com/flowmail/journey/pkg/engine"
	"github.com/flowmail/journey/pkg/models"
)

// DefaultTimeout caps how long a wait without an explicit timeout parks. A
// wait that never wakes would pin the execution forever.
const DefaultTimeout = 30 * 24 * time.Hour

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() models.StepType {
	return models.StepTypeWaitForEvent
}

func (h *Handler) Execute(_ context.Context, stepCtx engine.StepContext) (*engine.Result, error) {
	var config models.WaitForEventConfig

	err := stepCtx.Step.DecodeConfig(&config)
	if err != nil {
		return nil, err
	}

	if config.EventName == "" {
		return nil, errors.New("wait_for_event step requires an event name")
	}

	return engine.WaitResult(config.EventName, config.Timeout(DefaultTimeout)), nil
}
