package delay

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
			ID:     "pause",
			Type:   models.StepTypeDelay,
			Name:   "Wait two days",
			Config: config,
		},
		Contact: &models.Contact{ID: "contact-1", Email: "ada@example.com"},
	}
}

func TestHandler_Type(t *testing.T) {
	assert.Equal(t, models.StepTypeDelay, NewHandler().Type())
}

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name     string
		config   map[string]any
		expected time.Duration
	}{
		{"minutes", map[string]any{"amount": 30, "unit": "minutes"}, 30 * time.Minute},
		{"hours", map[string]any{"amount": 4, "unit": "hours"}, 4 * time.Hour},
		{"days", map[string]any{"amount": 2, "unit": "days"}, 48 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewHandler().Execute(t.Context(), stepContext(tt.config))
			require.NoError(t, err)

			require.NotNil(t, result.Wait)
			assert.Empty(t, result.Wait.EventName)
			assert.Equal(t, tt.expected, result.Wait.Timeout)
		})
	}
}

func TestHandler_Execute_InvalidConfig(t *testing.T) {
	_, err := NewHandler().Execute(t.Context(), stepContext(map[string]any{"amount": 0, "unit": "hours"}))
	assert.Error(t, err)

	_, err = NewHandler().Execute(t.Context(), stepContext(map[string]any{"amount": 5, "unit": "fortnights"}))
	assert.Error(t, err)
}
