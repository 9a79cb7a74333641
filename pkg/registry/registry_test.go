package registry

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/flowmail/journey/pkg/engine"
	"github.com/flowmail/journey/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	stepType models.StepType
}

func (h *fakeHandler) Type() models.StepType {
	return h.stepType
}

func (h *fakeHandler) Execute(_ context.Context, _ engine.StepContext) (*engine.Result, error) {
	return engine.ContinueResult("", nil), nil
}

func TestRegistry_HandlerFor(t *testing.T) {
	registry := NewRegistry(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	registry.Register(&fakeHandler{stepType: models.StepTypeTrigger})

	handler, err := registry.HandlerFor(models.StepTypeTrigger)
	require.NoError(t, err)
	assert.Equal(t, models.StepTypeTrigger, handler.Type())

	_, err = registry.HandlerFor(models.StepTypeSendEmail)
	assert.Error(t, err)
}

func TestRegistry_KnownType(t *testing.T) {
	registry := NewRegistry(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	registry.Register(&fakeHandler{stepType: models.StepTypeDelay})

	assert.True(t, registry.KnownType(models.StepTypeDelay))
	assert.False(t, registry.KnownType("teleport"))
}

func TestValidateStepConfig(t *testing.T) {
	tests := []struct {
		name     string
		stepType models.StepType
		config   map[string]any
		wantErr  bool
	}{
		{"trigger empty", models.StepTypeTrigger, nil, false},
		{"trigger rejects extras", models.StepTypeTrigger, map[string]any{"surprise": true}, true},

		{"send_email with template", models.StepTypeSendEmail, map[string]any{"template_id": "tmpl-1"}, false},
		{"send_email with subject", models.StepTypeSendEmail, map[string]any{"subject": "Hi", "body": "Hello"}, false},
		{"send_email needs template or subject", models.StepTypeSendEmail, map[string]any{"body": "Hello"}, true},

		{"delay valid", models.StepTypeDelay, map[string]any{"amount": 2, "unit": "days"}, false},
		{"delay zero amount", models.StepTypeDelay, map[string]any{"amount": 0, "unit": "days"}, true},
		{"delay bad unit", models.StepTypeDelay, map[string]any{"amount": 1, "unit": "weeks"}, true},
		{"delay missing unit", models.StepTypeDelay, map[string]any{"amount": 1}, true},

		{"wait valid", models.StepTypeWaitForEvent, map[string]any{"event_name": "order.placed"}, false},
		{"wait with timeout", models.StepTypeWaitForEvent, map[string]any{"event_name": "order.placed", "timeout_ms": 1000}, false},
		{"wait missing event", models.StepTypeWaitForEvent, map[string]any{"timeout_ms": 1000}, true},
		{"wait empty event", models.StepTypeWaitForEvent, map[string]any{"event_name": ""}, true},

		{"condition valid", models.StepTypeCondition, map[string]any{"field": "data.plan", "operator": "equals", "value": "pro"}, false},
		{"condition missing operator", models.StepTypeCondition, map[string]any{"field": "data.plan"}, true},

		{"webhook valid", models.StepTypeWebhook, map[string]any{"url": "https://crm.example.com/hook"}, false},
		{"webhook missing url", models.StepTypeWebhook, map[string]any{"method": "POST"}, true},
		{"webhook bad method", models.StepTypeWebhook, map[string]any{"url": "https://crm.example.com/hook", "method": "BREW"}, true},

		{"update_contact valid", models.StepTypeUpdateContact, map[string]any{"fields": map[string]any{"plan": "pro"}}, false},
		{"update_contact empty fields", models.StepTypeUpdateContact, map[string]any{"fields": map[string]any{}}, true},
		{"update_contact missing fields", models.StepTypeUpdateContact, map[string]any{}, true},

		{"exit empty", models.StepTypeExit, nil, false},
		{"exit with reason", models.StepTypeExit, map[string]any{"reason": "purchased"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStepConfig(tt.stepType, tt.config)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateStepConfig_UnknownType(t *testing.T) {
	err := ValidateStepConfig("teleport", nil)
	assert.Error(t, err)
}
