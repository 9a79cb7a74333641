package services

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/flowmail/journey/pkg/engine"
	"github.com/flowmail/journey/pkg/mocks"
	"github.com/flowmail/journey/pkg/models"
	"github.com/flowmail/journey/pkg/persistence/memory"
	"github.com/flowmail/journey/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type executionFixture struct {
	persistence *memory.Persistence
	gateway     *mocks.MockGateway
	publisher   *mocks.MockEventBus
	service     *ExecutionService
}

func newExecutionFixture(t *testing.T) *executionFixture {
	t.Helper()

	persistence := memory.NewPersistence()
	gateway := &mocks.MockGateway{}
	publisher := &mocks.MockEventBus{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	return &executionFixture{
		persistence: persistence,
		gateway:     gateway,
		publisher:   publisher,
		service:     NewExecutionService(persistence, gateway, publisher, logger),
	}
}

func (f *executionFixture) seedWorkflow(t *testing.T, workflow *models.Workflow) {
	t.Helper()

	err := f.persistence.WorkflowRepository().Save(t.Context(), workflow)
	require.NoError(t, err)
}

func (f *executionFixture) seedContact(t *testing.T, id string) {
	t.Helper()

	err := f.persistence.ContactRepository().Save(t.Context(), &models.Contact{
		ID:        id,
		ProjectID: "project-1",
		Email:     id + "@example.com",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func enabledWorkflow(id, triggerEvent string, allowReentry bool) *models.Workflow {
	return &models.Workflow{
		ID:           id,
		ProjectID:    "project-1",
		Name:         "Welcome series",
		TriggerEvent: triggerEvent,
		Enabled:      true,
		AllowReentry: allowReentry,
		Steps: []*models.WorkflowStep{
			{ID: "trigger", WorkflowID: id, Type: models.StepTypeTrigger, Name: "Signup"},
			{ID: "welcome", WorkflowID: id, Type: models.StepTypeSendEmail, Name: "Welcome email", Config: map[string]any{"subject": "Hi!"}},
		},
		Transitions: []*models.WorkflowTransition{
			{ID: "t-1", WorkflowID: id, FromStepID: "trigger", ToStepID: "welcome"},
		},
	}
}

func TestExecutionService_StartExecution(t *testing.T) {
	fixture := newExecutionFixture(t)
	fixture.seedWorkflow(t, enabledWorkflow("workflow-1", "user.signed_up", false))
	fixture.seedContact(t, "contact-1")

	fixture.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	fixture.gateway.On("EnqueueNow", mock.Anything, mock.MatchedBy(func(job scheduler.Job) bool {
		return job.DedupeKey == engine.AdvanceDedupeKey(job.Key, "trigger")
	})).Return(nil)

	execution, err := fixture.service.StartExecution(t.Context(), "workflow-1", "contact-1", nil, "api")
	require.NoError(t, err)

	assert.NotEmpty(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Equal(t, "trigger", execution.CurrentStepID)

	stored, err := fixture.persistence.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, "contact-1", stored.ContactID)

	fixture.gateway.AssertExpectations(t)
	fixture.publisher.AssertExpectations(t)
}

func TestExecutionService_StartExecution_DisabledWorkflow(t *testing.T) {
	fixture := newExecutionFixture(t)

	workflow := enabledWorkflow("workflow-1", "user.signed_up", false)
	workflow.Enabled = false
	fixture.seedWorkflow(t, workflow)
	fixture.seedContact(t, "contact-1")

	_, err := fixture.service.StartExecution(t.Context(), "workflow-1", "contact-1", nil, "api")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkflowDisabled)
	assert.True(t, IsConflictError(err))
}

func TestExecutionService_StartExecution_ReentryBlocked(t *testing.T) {
	fixture := newExecutionFixture(t)
	fixture.seedWorkflow(t, enabledWorkflow("workflow-1", "user.signed_up", false))
	fixture.seedContact(t, "contact-1")

	fixture.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	fixture.gateway.On("EnqueueNow", mock.Anything, mock.Anything).Return(nil)

	execution, err := fixture.service.StartExecution(t.Context(), "workflow-1", "contact-1", nil, "api")
	require.NoError(t, err)

	// Even after the first run finishes, the contact may not re-enter.
	completed, err := fixture.persistence.ExecutionRepository().Complete(t.Context(), execution.ID, "")
	require.NoError(t, err)
	require.True(t, completed)

	_, err = fixture.service.StartExecution(t.Context(), "workflow-1", "contact-1", nil, "api")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReentryNotAllowed)
}

func TestExecutionService_StartExecution_ReentryAllowedAfterFinish(t *testing.T) {
	fixture := newExecutionFixture(t)
	fixture.seedWorkflow(t, enabledWorkflow("workflow-1", "user.signed_up", true))
	fixture.seedContact(t, "contact-1")

	fixture.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	fixture.gateway.On("EnqueueNow", mock.Anything, mock.Anything).Return(nil)

	first, err := fixture.service.StartExecution(t.Context(), "workflow-1", "contact-1", nil, "api")
	require.NoError(t, err)

	// A second concurrently running execution is still rejected.
	_, err = fixture.service.StartExecution(t.Context(), "workflow-1", "contact-1", nil, "api")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReentryNotAllowed)

	completed, err := fixture.persistence.ExecutionRepository().Complete(t.Context(), first.ID, "")
	require.NoError(t, err)
	require.True(t, completed)

	second, err := fixture.service.StartExecution(t.Context(), "workflow-1", "contact-1", nil, "api")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestExecutionService_StartForEvent(t *testing.T) {
	fixture := newExecutionFixture(t)
	fixture.seedWorkflow(t, enabledWorkflow("workflow-1", "cart.abandoned", false))
	fixture.seedContact(t, "contact-1")

	fixture.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	fixture.gateway.On("EnqueueNow", mock.Anything, mock.Anything).Return(nil)

	err := fixture.service.StartForEvent(t.Context(), "contact-1", "cart.abandoned", map[string]any{
		"cart_total": 120.0,
	})
	require.NoError(t, err)

	executions, err := fixture.persistence.ExecutionRepository().ListByWorkflow(t.Context(), "workflow-1")
	require.NoError(t, err)
	require.Len(t, executions, 1)

	// The event payload seeds the execution context under event.* keys.
	assert.Equal(t, "cart.abandoned", executions[0].Context["event.name"])
	assert.Equal(t, 120.0, executions[0].Context["event.cart_total"])
}

func TestExecutionService_StartForEvent_NoMatch(t *testing.T) {
	fixture := newExecutionFixture(t)
	fixture.seedWorkflow(t, enabledWorkflow("workflow-1", "cart.abandoned", false))
	fixture.seedContact(t, "contact-1")

	err := fixture.service.StartForEvent(t.Context(), "contact-1", "page.viewed", nil)
	require.NoError(t, err)

	executions, err := fixture.persistence.ExecutionRepository().ListByWorkflow(t.Context(), "workflow-1")
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestExecutionService_StartForEvent_ReentrySkippedSilently(t *testing.T) {
	fixture := newExecutionFixture(t)
	fixture.seedWorkflow(t, enabledWorkflow("workflow-1", "cart.abandoned", false))
	fixture.seedContact(t, "contact-1")

	fixture.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	fixture.gateway.On("EnqueueNow", mock.Anything, mock.Anything).Return(nil)

	err := fixture.service.StartForEvent(t.Context(), "contact-1", "cart.abandoned", nil)
	require.NoError(t, err)

	// A repeat of the trigger event must not error and must not start a
	// second execution.
	err = fixture.service.StartForEvent(t.Context(), "contact-1", "cart.abandoned", nil)
	require.NoError(t, err)

	executions, err := fixture.persistence.ExecutionRepository().ListByWorkflow(t.Context(), "workflow-1")
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}

func TestExecutionService_CancelExecution(t *testing.T) {
	fixture := newExecutionFixture(t)
	fixture.seedWorkflow(t, enabledWorkflow("workflow-1", "user.signed_up", false))
	fixture.seedContact(t, "contact-1")

	fixture.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	fixture.gateway.On("EnqueueNow", mock.Anything, mock.Anything).Return(nil)

	execution, err := fixture.service.StartExecution(t.Context(), "workflow-1", "contact-1", nil, "api")
	require.NoError(t, err)

	// A parked wait leaves a timeout job behind; cancel must drop it.
	err = fixture.persistence.ExecutionRepository().SaveStepExecution(t.Context(), &models.WorkflowStepExecution{
		ID:            "wait-row",
		ExecutionID:   execution.ID,
		StepID:        "welcome",
		Status:        models.StepExecutionStatusPending,
		WaitEventName: "order.placed",
		StartedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)

	fixture.gateway.On("Cancel", mock.Anything, engine.TimeoutDedupeKey("wait-row")).Return(nil)

	err = fixture.service.CancelExecution(t.Context(), execution.ID, "campaign paused", "ops@example.com")
	require.NoError(t, err)

	stored, err := fixture.persistence.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, stored.Status)

	fixture.gateway.AssertExpectations(t)
}

func TestExecutionService_CancelExecution_AlreadyFinished(t *testing.T) {
	fixture := newExecutionFixture(t)
	fixture.seedWorkflow(t, enabledWorkflow("workflow-1", "user.signed_up", false))
	fixture.seedContact(t, "contact-1")

	fixture.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	fixture.gateway.On("EnqueueNow", mock.Anything, mock.Anything).Return(nil)

	execution, err := fixture.service.StartExecution(t.Context(), "workflow-1", "contact-1", nil, "api")
	require.NoError(t, err)

	completed, err := fixture.persistence.ExecutionRepository().Complete(t.Context(), execution.ID, "")
	require.NoError(t, err)
	require.True(t, completed)

	err = fixture.service.CancelExecution(t.Context(), execution.ID, "too late", "ops@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecutionFinished)
}

func TestExecutionService_GetExecution(t *testing.T) {
	fixture := newExecutionFixture(t)
	fixture.seedWorkflow(t, enabledWorkflow("workflow-1", "user.signed_up", false))
	fixture.seedContact(t, "contact-1")

	fixture.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	fixture.gateway.On("EnqueueNow", mock.Anything, mock.Anything).Return(nil)

	execution, err := fixture.service.StartExecution(t.Context(), "workflow-1", "contact-1", nil, "api")
	require.NoError(t, err)

	err = fixture.persistence.ExecutionRepository().SaveStepExecution(t.Context(), &models.WorkflowStepExecution{
		ID:          "row-1",
		ExecutionID: execution.ID,
		StepID:      "trigger",
		Status:      models.StepExecutionStatusSucceeded,
		StartedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	history, err := fixture.service.GetExecution(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.ID, history.Execution.ID)
	require.Len(t, history.Steps, 1)
	assert.Equal(t, "trigger", history.Steps[0].StepID)
}
