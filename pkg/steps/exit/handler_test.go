package exit

import (
	"testing"

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
			ID:     "goal",
			Type:   models.StepTypeExit,
			Name:   "Goal reached",
			Config: config,
		},
		Contact: &models.Contact{ID: "contact-1", Email: "ada@example.com"},
	}
}

func TestHandler_Execute(t *testing.T) {
	result, err := NewHandler().Execute(t.Context(), stepContext(map[string]any{
		"reason": "purchased",
	}))

	require.NoError(t, err)
	require.NotNil(t, result.Exit)
	assert.Equal(t, "purchased", result.Exit.Reason)
}

func TestHandler_Execute_DefaultReason(t *testing.T) {
	result, err := NewHandler().Execute(t.Context(), stepContext(nil))

	require.NoError(t, err)
	require.NotNil(t, result.Exit)
	assert.Equal(t, "exit step goal", result.Exit.Reason)
}
