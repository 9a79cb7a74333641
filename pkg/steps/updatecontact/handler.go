// Package updatecontact implements the contact mutation step. Configured
// fields are merged into the contact's custom data; keys the step does not
// name are left alone, so concurrent writers never clobber each other.
package updatecontact

import (
	"context"
	"errors"

	"github.com/flowmail/journey/pkg/engine"
	"github.com/flowmail/journey/pkg/models"
	"github.com/flowmail/journey/pkg/persistence"
	"github.com/flowmail/journey/pkg/template"
)

type Handler struct {
	contacts persistence.ContactRepository
}

func NewHandler(contacts persistence.ContactRepository) *Handler {
	return &Handler{contacts: contacts}
}

func (h *Handler) Type() models.StepType {
	return models.StepTypeUpdateContact
}

func (h *Handler) Execute(ctx context.Context, stepCtx engine.StepContext) (*engine.Result, error) {
	var config models.UpdateContactConfig

	err := stepCtx.Step.DecodeConfig(&config)
	if err != nil {
		return nil, err
	}

	if len(config.Fields) == 0 {
		return nil, errors.New("update_contact step has no fields to set")
	}

	fields := make(map[string]any, len(config.Fields))

	for key, value := range config.Fields {
		// String values may template against the contact and context.
		if text, ok := value.(string); ok {
			rendered, err := template.RenderForContact(text, stepCtx.Contact, stepCtx.Execution.Context)
			if err != nil {
				return nil, err
			}

			fields[key] = rendered

			continue
		}

		fields[key] = value
	}

	err = h.contacts.MergeData(ctx, stepCtx.Contact.ID, fields)
	if err != nil {
		return nil, err
	}

	for key, value := range fields {
		if stepCtx.Contact.Data == nil {
			stepCtx.Contact.Data = make(map[string]any, len(fields))
		}

		stepCtx.Contact.Data[key] = value
	}

	return engine.ContinueResult("", nil), nil
}
