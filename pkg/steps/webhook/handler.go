// Package webhook implements the outbound webhook step. It posts the
// execution snapshot to the configured URL and treats any non-2xx response
// as an effect failure.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowmail/journey/pkg/engine"
	"github.com/flowmail/journey/pkg/models"
)

const defaultRequestTimeout = 10 * time.Second

type Handler struct {
	client *http.Client
}

func NewHandler(client *http.Client) *Handler {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}

	return &Handler{client: client}
}

func (h *Handler) Type() models.StepType {
	return models.StepTypeWebhook
}

func (h *Handler) Execute(ctx context.Context, stepCtx engine.StepContext) (*engine.Result, error) {
	var config models.WebhookConfig

	err := stepCtx.Step.DecodeConfig(&config)
	if err != nil {
		return nil, err
	}

	if config.URL == "" {
		return nil, fmt.Errorf("webhook step %s has no URL", stepCtx.Step.ID)
	}

	method := config.Method
	if method == "" {
		method = http.MethodPost
	}

	payload, err := json.Marshal(map[string]any{
		"workflow_id":  stepCtx.Workflow.ID,
		"execution_id": stepCtx.Execution.ID,
		"step_id":      stepCtx.Step.ID,
		"contact":      stepCtx.Contact.Attributes(),
		"context":      stepCtx.Execution.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, method, config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")

	for name, value := range config.Headers {
		request.Header.Set(name, value)
	}

	response, err := h.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
	}()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned status %d", response.StatusCode)
	}

	stepCtx.Logger.InfoContext(ctx, "webhook delivered", "url", config.URL, "status", response.StatusCode)

	return engine.ContinueResult("", nil), nil
}
