package waitevent

import (
	"testing"
	"time"

	"github.com/flowmail/journey/pkg/engine"
	"github.com/flowmail/journey/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepContext(config map[string]any) engine.StepContext {
	return engine.StepContext{
		Execution: &models.WorkflowExecution{ID: "execution-1"},
		Workflow:  &models.Workflow{ID: "workflow-1"},
		Step: &models.WorkflowStep{
			ID:     "wait",
			Type:   models.StepTypeWaitForEvent,
			Name:   "Wait for order",
			Config: config,
		},
		Contact: &models.Contact{ID: "contact-1", Email: "ada@example.com"},
	}
}

func TestHandler_Type(t *testing.T) {
	assert.Equal(t, models.StepTypeWaitForEvent, NewHandler().Type())
}

func TestHandler_Execute(t *testing.T) {
	result, err := NewHandler().Execute(t.Context(), stepContext(map[string]any{
		"event_name": "order.placed",
		"timeout_ms": 3600000,
	}))

	require.NoError(t, err)
	require.NotNil(t, result.Wait)
	assert.Equal(t, "order.placed", result.Wait.EventName)
	assert.Equal(t, time.Hour, result.Wait.Timeout)
}

func TestHandler_Execute_DefaultTimeout(t *testing.T) {
	result, err := NewHandler().Execute(t.Context(), stepContext(map[string]any{
		"event_name": "order.placed",
	}))

	require.NoError(t, err)
	require.NotNil(t, result.Wait)
	assert.Equal(t, DefaultTimeout, result.Wait.Timeout)
}

func TestHandler_Execute_RequiresEventName(t *testing.T) {
	_, err := NewHandler().Execute(t.Context(), stepContext(map[string]any{
		"timeout_ms": 1000,
	}))

	assert.Error(t, err)
}
