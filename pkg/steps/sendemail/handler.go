// Package sendemail implements the send-email step. The rendered message
// goes to the delivery provider; the returned delivery ID is recorded in the
// execution context so downstream steps and event correlation can reference
// it.
package sendemail

import (
	"context"
	"errors"

	"github.com/flowmail/journey/pkg/email"
	"github.com/flowmail/journey/pkg/engine"
	"github.com/flowmail/journey/pkg/models"
	"github.com/flowmail/journey/pkg/template"
)

type Handler struct {
	delivery email.Delivery
}

func NewHandler(delivery email.Delivery) *Handler {
	return &Handler{delivery: delivery}
}

func (h *Handler) Type() models.StepType {
	return models.StepTypeSendEmail
}

func (h *Handler) Execute(ctx context.Context, stepCtx engine.StepContext) (*engine.Result, error) {
	var config models.SendEmailConfig

	err := stepCtx.Step.DecodeConfig(&config)
	if err != nil {
		return nil, err
	}

	templateID := config.TemplateID
	if templateID == "" && stepCtx.Step.TemplateID != nil {
		templateID = *stepCtx.Step.TemplateID
	}

	if templateID == "" && config.Subject == "" {
		return nil, errors.New("send_email step has neither a template nor an inline subject")
	}

	subject, err := template.RenderForContact(config.Subject, stepCtx.Contact, stepCtx.Execution.Context)
	if err != nil {
		return nil, err
	}

	body, err := template.RenderForContact(config.Body, stepCtx.Contact, stepCtx.Execution.Context)
	if err != nil {
		return nil, err
	}

	deliveryID, err := h.delivery.Send(ctx, email.Message{
		To:         stepCtx.Contact.Email,
		Subject:    subject,
		Body:       body,
		TemplateID: templateID,
		ContactID:  stepCtx.Contact.ID,
		Metadata: map[string]string{
			"workflow_id":  stepCtx.Workflow.ID,
			"execution_id": stepCtx.Execution.ID,
			"step_id":      stepCtx.Step.ID,
		},
	})
	if err != nil {
		return nil, err
	}

	return engine.ContinueResult("", map[string]any{
		"email.last_delivery_id": deliveryID,
	}), nil
}
