// Package registry maps step types to their handlers and to the JSON
// schemas their configs must satisfy at definition-edit time.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/flowmail/journey/pkg/engine"
	"github.com/flowmail/journey/pkg/models"
)

type Registry struct {
	logger   *slog.Logger
	handlers map[models.StepType]engine.StepHandler
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		handlers: make(map[models.StepType]engine.StepHandler),
	}
}

func (r *Registry) Register(handler engine.StepHandler) {
	r.handlers[handler.Type()] = handler
}

// HandlerFor returns the handler registered for the step type.
func (r *Registry) HandlerFor(stepType models.StepType) (engine.StepHandler, error) {
	handler, ok := r.handlers[stepType]
	if !ok {
		return nil, fmt.Errorf("step type '%s' not registered", stepType)
	}

	return handler, nil
}

// KnownType reports whether a handler is registered for the step type.
func (r *Registry) KnownType(stepType models.StepType) bool {
	_, ok := r.handlers[stepType]

	return ok
}
