package engine

import (
	"context"
	"testing"
	"time"

	"github.com/flowmail/journey/pkg/events"
	"github.com/flowmail/journey/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parkWait(t *testing.T, fixture *coordinatorFixture, execution *models.WorkflowExecution, stepID, eventName string) *models.WorkflowStepExecution {
	t.Helper()

	ctx := context.Background()

	err := fixture.persistence.ExecutionRepository().SaveStepExecution(ctx, &models.WorkflowStepExecution{
		ID:            "wait-row-" + stepID,
		ExecutionID:   execution.ID,
		StepID:        stepID,
		Status:        models.StepExecutionStatusPending,
		WaitEventName: eventName,
		StartedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)

	stepExecution, err := fixture.persistence.ExecutionRepository().StepExecution(ctx, execution.ID, stepID)
	require.NoError(t, err)

	return stepExecution
}

func TestResumeOnEvent_WakesParkedWait(t *testing.T) {
	ctx := context.Background()

	fixture := newCoordinatorFixture(stubHandlerSource{})

	workflow := linearWorkflow(
		&models.WorkflowStep{ID: "wait", Type: models.StepTypeWaitForEvent, Name: "Wait for order"},
		&models.WorkflowStep{ID: "thanks", Type: models.StepTypeSendEmail, Name: "Thanks"},
	)
	execution := fixture.seed(t, workflow, "wait")
	stepExecution := parkWait(t, fixture, execution, "wait", "order.placed")

	err := fixture.coordinator.ResumeOnEvent(ctx, execution.ContactID, "order.placed", map[string]any{
		"order_id": "order-42",
		"total":    99.5,
	})
	require.NoError(t, err)

	resolved, err := fixture.persistence.ExecutionRepository().StepExecutionByID(ctx, stepExecution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepExecutionStatusSucceeded, resolved.Status)

	// The parked timeout job is a zombie now and gets dropped.
	assert.Contains(t, fixture.gateway.cancelled, TimeoutDedupeKey(stepExecution.ID))

	final := fixture.execution(t, execution.ID)
	assert.Equal(t, "thanks", final.CurrentStepID)
	assert.Equal(t, "order.placed", final.Context["event.name"])
	assert.Equal(t, "order-42", final.Context["event.order_id"])
	assert.Equal(t, 99.5, final.Context["event.total"])

	require.Len(t, fixture.gateway.immediate, 1)
	assert.Equal(t, AdvanceDedupeKey(execution.ID, "thanks"), fixture.gateway.immediate[0].DedupeKey)

	assert.Contains(t, fixture.publisher.eventTypes(), events.ExecutionResumedEvent)
}

func TestResumeOnEvent_IgnoresOtherEvents(t *testing.T) {
	ctx := context.Background()

	fixture := newCoordinatorFixture(stubHandlerSource{})

	workflow := linearWorkflow(
		&models.WorkflowStep{ID: "wait", Type: models.StepTypeWaitForEvent, Name: "Wait for order"},
		&models.WorkflowStep{ID: "thanks", Type: models.StepTypeSendEmail, Name: "Thanks"},
	)
	execution := fixture.seed(t, workflow, "wait")
	stepExecution := parkWait(t, fixture, execution, "wait", "order.placed")

	err := fixture.coordinator.ResumeOnEvent(ctx, execution.ContactID, "page.viewed", nil)
	require.NoError(t, err)

	resolved, err := fixture.persistence.ExecutionRepository().StepExecutionByID(ctx, stepExecution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepExecutionStatusPending, resolved.Status)
	assert.Empty(t, fixture.gateway.immediate)
}

func TestResumeOnEvent_TimeoutAlreadyWon(t *testing.T) {
	ctx := context.Background()

	fixture := newCoordinatorFixture(stubHandlerSource{})

	workflow := linearWorkflow(
		&models.WorkflowStep{ID: "wait", Type: models.StepTypeWaitForEvent, Name: "Wait for order"},
		&models.WorkflowStep{ID: "thanks", Type: models.StepTypeSendEmail, Name: "Thanks"},
	)
	execution := fixture.seed(t, workflow, "wait")
	stepExecution := parkWait(t, fixture, execution, "wait", "order.placed")

	// The timeout fired first and resolved the row.
	won, err := fixture.persistence.ExecutionRepository().TransitionStepStatus(ctx, stepExecution.ID,
		models.StepExecutionStatusPending, models.StepExecutionStatusTimedOut)
	require.NoError(t, err)
	require.True(t, won)

	err = fixture.coordinator.ResumeOnEvent(ctx, execution.ContactID, "order.placed", nil)
	require.NoError(t, err)

	resolved, err := fixture.persistence.ExecutionRepository().StepExecutionByID(ctx, stepExecution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepExecutionStatusTimedOut, resolved.Status)
	assert.Empty(t, fixture.gateway.immediate)
	assert.Empty(t, fixture.gateway.cancelled)
}

func TestResumeOnEvent_EventThenTimeoutExactlyOnce(t *testing.T) {
	ctx := context.Background()

	fixture := newCoordinatorFixture(stubHandlerSource{})

	workflow := linearWorkflow(
		&models.WorkflowStep{ID: "wait", Type: models.StepTypeWaitForEvent, Name: "Wait for order"},
		&models.WorkflowStep{ID: "thanks", Type: models.StepTypeSendEmail, Name: "Thanks"},
	)
	execution := fixture.seed(t, workflow, "wait")
	stepExecution := parkWait(t, fixture, execution, "wait", "order.placed")

	err := fixture.coordinator.ResumeOnEvent(ctx, execution.ContactID, "order.placed", nil)
	require.NoError(t, err)

	// The scheduled timeout fires anyway; it must lose the race and change
	// nothing.
	err = fixture.coordinator.ProcessTimeout(ctx, execution.ID, "wait", stepExecution.ID)
	require.NoError(t, err)

	resolved, err := fixture.persistence.ExecutionRepository().StepExecutionByID(ctx, stepExecution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepExecutionStatusSucceeded, resolved.Status)

	final := fixture.execution(t, execution.ID)
	assert.Equal(t, "thanks", final.CurrentStepID)
	assert.Len(t, fixture.gateway.immediate, 1)
}

func TestResumeOnEvent_MultipleWaitsSameEvent(t *testing.T) {
	ctx := context.Background()

	fixture := newCoordinatorFixture(stubHandlerSource{})

	workflowA := linearWorkflow(
		&models.WorkflowStep{ID: "wait", Type: models.StepTypeWaitForEvent, Name: "Wait for order"},
		&models.WorkflowStep{ID: "thanks", Type: models.StepTypeSendEmail, Name: "Thanks"},
	)
	executionA := fixture.seed(t, workflowA, "wait")
	rowA := parkWait(t, fixture, executionA, "wait", "order.placed")

	workflowB := linearWorkflow(
		&models.WorkflowStep{ID: "wait-b", Type: models.StepTypeWaitForEvent, Name: "Wait for order too"},
		&models.WorkflowStep{ID: "congrats", Type: models.StepTypeSendEmail, Name: "Congrats"},
	)
	workflowB.ID = "workflow-2"
	for _, step := range workflowB.Steps {
		step.WorkflowID = workflowB.ID
	}

	err := fixture.persistence.WorkflowRepository().Save(ctx, workflowB)
	require.NoError(t, err)

	executionB := &models.WorkflowExecution{
		ID:            "execution-2",
		WorkflowID:    workflowB.ID,
		ContactID:     executionA.ContactID,
		Status:        models.ExecutionStatusRunning,
		CurrentStepID: "wait-b",
		StartedAt:     time.Now().UTC(),
	}
	err = fixture.persistence.ExecutionRepository().Create(ctx, executionB)
	require.NoError(t, err)

	rowB := parkWait(t, fixture, executionB, "wait-b", "order.placed")

	err = fixture.coordinator.ResumeOnEvent(ctx, executionA.ContactID, "order.placed", nil)
	require.NoError(t, err)

	// Both executions woke, each exactly once.
	for _, rowID := range []string{rowA.ID, rowB.ID} {
		resolved, err := fixture.persistence.ExecutionRepository().StepExecutionByID(ctx, rowID)
		require.NoError(t, err)
		assert.Equal(t, models.StepExecutionStatusSucceeded, resolved.Status)
	}

	assert.Equal(t, "thanks", fixture.execution(t, executionA.ID).CurrentStepID)
	assert.Equal(t, "congrats", fixture.execution(t, executionB.ID).CurrentStepID)
	assert.Len(t, fixture.gateway.immediate, 2)
}
