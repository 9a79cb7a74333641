package engine

import (
	"testing"

	"github.com/flowmail/journey/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestResolveNext_DefaultTransition(t *testing.T) {
	workflow := &models.Workflow{
		Transitions: []*models.WorkflowTransition{
			{ID: "t-1", FromStepID: "a", ToStepID: "b"},
		},
	}

	next, found := ResolveNext(workflow, "a", "")

	assert.True(t, found)
	assert.Equal(t, "b", next)
}

func TestResolveNext_BranchMatch(t *testing.T) {
	workflow := &models.Workflow{
		Transitions: []*models.WorkflowTransition{
			{ID: "t-1", FromStepID: "cond", ToStepID: "upsell", Branch: models.BranchYes},
			{ID: "t-2", FromStepID: "cond", ToStepID: "nurture", Branch: models.BranchNo},
		},
	}

	next, found := ResolveNext(workflow, "cond", models.BranchYes)
	assert.True(t, found)
	assert.Equal(t, "upsell", next)

	next, found = ResolveNext(workflow, "cond", models.BranchNo)
	assert.True(t, found)
	assert.Equal(t, "nurture", next)
}

func TestResolveNext_BranchFallsBackToDefault(t *testing.T) {
	// A wait step with only a default transition: the timeout branch follows
	// the default edge instead of dead-ending.
	workflow := &models.Workflow{
		Transitions: []*models.WorkflowTransition{
			{ID: "t-1", FromStepID: "wait", ToStepID: "reminder"},
		},
	}

	next, found := ResolveNext(workflow, "wait", models.BranchTimeout)

	assert.True(t, found)
	assert.Equal(t, "reminder", next)
}

func TestResolveNext_PriorityOrder(t *testing.T) {
	workflow := &models.Workflow{
		Transitions: []*models.WorkflowTransition{
			{ID: "t-2", FromStepID: "a", ToStepID: "low", Priority: 10},
			{ID: "t-1", FromStepID: "a", ToStepID: "high", Priority: 1},
		},
	}

	next, found := ResolveNext(workflow, "a", "")

	assert.True(t, found)
	assert.Equal(t, "high", next)
}

func TestResolveNext_PriorityTieBrokenByID(t *testing.T) {
	workflow := &models.Workflow{
		Transitions: []*models.WorkflowTransition{
			{ID: "t-b", FromStepID: "a", ToStepID: "second", Priority: 5},
			{ID: "t-a", FromStepID: "a", ToStepID: "first", Priority: 5},
		},
	}

	next, found := ResolveNext(workflow, "a", "")

	assert.True(t, found)
	assert.Equal(t, "first", next)
}

func TestResolveNext_NoTransitions(t *testing.T) {
	workflow := &models.Workflow{
		Transitions: []*models.WorkflowTransition{
			{ID: "t-1", FromStepID: "other", ToStepID: "b"},
		},
	}

	next, found := ResolveNext(workflow, "a", "")

	assert.False(t, found)
	assert.Empty(t, next)
}

func TestResolveNext_TaggedBranchNoDefault(t *testing.T) {
	// Only a yes edge exists; the no branch has nowhere to go and the
	// execution completes.
	workflow := &models.Workflow{
		Transitions: []*models.WorkflowTransition{
			{ID: "t-1", FromStepID: "cond", ToStepID: "upsell", Branch: models.BranchYes},
		},
	}

	next, found := ResolveNext(workflow, "cond", models.BranchNo)

	assert.False(t, found)
	assert.Empty(t, next)
}
