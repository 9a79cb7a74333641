package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/flowmail/journey/pkg/cmd"
	"github.com/flowmail/journey/pkg/email"
	"github.com/flowmail/journey/pkg/mocks"
	"github.com/flowmail/journey/pkg/models"
	"github.com/flowmail/journey/pkg/persistence/memory"
	"github.com/flowmail/journey/pkg/services"
	"github.com/flowmail/journey/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app         *fiber.App
	persistence *memory.Persistence
	gateway     *mocks.MockGateway
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	persistence := memory.NewPersistence()
	registry := cmd.NewRegistry(logger, persistence, email.NewLogDelivery(logger))

	gateway := &mocks.MockGateway{}
	gateway.On("EnqueueNow", mock.Anything, mock.Anything).Return(nil).Maybe()
	gateway.On("Cancel", mock.Anything, mock.Anything).Return(nil).Maybe()

	publisher := &mocks.MockEventBus{}
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	definitionService := services.NewDefinitionService(persistence, registry, logger)
	executionService := services.NewExecutionService(persistence, gateway, publisher, logger)
	contactEventService := services.NewContactEventService(persistence, publisher, logger)

	handlers := web.NewAPIHandlers(
		definitionService,
		executionService,
		contactEventService,
		persistence,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/executions", handlers.StartExecution)
	w.Get("/:id/executions", handlers.ListExecutions)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)

	contacts := app.Group("/contacts")
	contacts.Get("/:id", handlers.GetContact)
	contacts.Put("/:id", handlers.UpsertContact)
	contacts.Post("/:id/events", handlers.RecordContactEvent)

	app.Get("/health", handlers.HealthCheck)

	return &testEnv{app: app, persistence: persistence, gateway: gateway}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload any) *http.Response {
	t.Helper()

	var body io.Reader

	if payload != nil {
		encoded, err := json.Marshal(payload)
		require.NoError(t, err)

		body = bytes.NewReader(encoded)
	}

	request := httptest.NewRequest(method, path, body)
	request.Header.Set("Content-Type", "application/json")

	response, err := app.Test(request)
	require.NoError(t, err)

	return response
}

func decodeBody(t *testing.T, response *http.Response, out any) {
	t.Helper()

	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	require.NoError(t, response.Body.Close())
	require.NoError(t, json.Unmarshal(body, out))
}

func workflowRequest() web.WorkflowRequest {
	return web.WorkflowRequest{
		Name:         "Welcome series",
		ProjectID:    "project-1",
		TriggerEvent: "user.signed_up",
		Enabled:      true,
		Steps: []web.StepRequest{
			{ID: "trigger", Type: "trigger", Name: "Signup"},
			{ID: "welcome", Type: "send_email", Name: "Welcome email", Config: map[string]any{"subject": "Hi!"}},
		},
		Transitions: []web.TransitionRequest{
			{FromStepID: "trigger", ToStepID: "welcome"},
		},
	}
}

func createWorkflow(t *testing.T, env *testEnv) models.Workflow {
	t.Helper()

	response := doJSON(t, env.app, http.MethodPost, "/workflows", workflowRequest())
	require.Equal(t, http.StatusCreated, response.StatusCode)

	var workflow models.Workflow
	decodeBody(t, response, &workflow)

	return workflow
}

func createContact(t *testing.T, env *testEnv, id string) {
	t.Helper()

	response := doJSON(t, env.app, http.MethodPut, "/contacts/"+id, web.UpsertContactRequest{
		ProjectID: "project-1",
		Email:     id + "@example.com",
		FirstName: "Ada",
	})
	require.Equal(t, http.StatusOK, response.StatusCode)
	require.NoError(t, response.Body.Close())
}

func TestCreateWorkflow(t *testing.T) {
	env := setupTestApp(t)

	workflow := createWorkflow(t, env)

	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, "Welcome series", workflow.Name)
	assert.Len(t, workflow.Steps, 2)
	assert.True(t, workflow.Enabled)
}

func TestCreateWorkflow_MissingName(t *testing.T) {
	env := setupTestApp(t)

	request := workflowRequest()
	request.Name = ""

	response := doJSON(t, env.app, http.MethodPost, "/workflows", request)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestCreateWorkflow_InvalidDefinition(t *testing.T) {
	env := setupTestApp(t)

	// Two trigger steps fail the definition gate, not struct validation.
	request := workflowRequest()
	request.Steps = append(request.Steps, web.StepRequest{ID: "trigger-2", Type: "trigger", Name: "Another"})

	response := doJSON(t, env.app, http.MethodPost, "/workflows", request)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestGetWorkflow(t *testing.T) {
	env := setupTestApp(t)
	workflow := createWorkflow(t, env)

	response := doJSON(t, env.app, http.MethodGet, "/workflows/"+workflow.ID, nil)
	require.Equal(t, http.StatusOK, response.StatusCode)

	var fetched models.Workflow
	decodeBody(t, response, &fetched)
	assert.Equal(t, workflow.ID, fetched.ID)
}

func TestGetWorkflow_NotFound(t *testing.T) {
	env := setupTestApp(t)

	response := doJSON(t, env.app, http.MethodGet, "/workflows/no-such-workflow", nil)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
}

func TestUpdateWorkflow_PreservesCreatedAt(t *testing.T) {
	env := setupTestApp(t)
	workflow := createWorkflow(t, env)

	request := workflowRequest()
	request.Name = "Welcome series v2"

	response := doJSON(t, env.app, http.MethodPut, "/workflows/"+workflow.ID, request)
	require.Equal(t, http.StatusOK, response.StatusCode)

	var updated models.Workflow
	decodeBody(t, response, &updated)
	assert.Equal(t, workflow.ID, updated.ID)
	assert.Equal(t, "Welcome series v2", updated.Name)
	assert.Equal(t, workflow.CreatedAt.Unix(), updated.CreatedAt.Unix())
}

func TestDeleteWorkflow(t *testing.T) {
	env := setupTestApp(t)
	workflow := createWorkflow(t, env)

	response := doJSON(t, env.app, http.MethodDelete, "/workflows/"+workflow.ID, nil)
	assert.Equal(t, http.StatusNoContent, response.StatusCode)

	response = doJSON(t, env.app, http.MethodGet, "/workflows/"+workflow.ID, nil)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
}

func TestStartExecution(t *testing.T) {
	env := setupTestApp(t)
	workflow := createWorkflow(t, env)
	createContact(t, env, "contact-1")

	response := doJSON(t, env.app, http.MethodPost, "/workflows/"+workflow.ID+"/executions", web.StartExecutionRequest{
		ContactID: "contact-1",
	})
	require.Equal(t, http.StatusAccepted, response.StatusCode)

	var execution models.WorkflowExecution
	decodeBody(t, response, &execution)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Equal(t, "trigger", execution.CurrentStepID)
}

func TestStartExecution_ReentryConflict(t *testing.T) {
	env := setupTestApp(t)
	workflow := createWorkflow(t, env)
	createContact(t, env, "contact-1")

	response := doJSON(t, env.app, http.MethodPost, "/workflows/"+workflow.ID+"/executions", web.StartExecutionRequest{
		ContactID: "contact-1",
	})
	require.Equal(t, http.StatusAccepted, response.StatusCode)

	response = doJSON(t, env.app, http.MethodPost, "/workflows/"+workflow.ID+"/executions", web.StartExecutionRequest{
		ContactID: "contact-1",
	})
	assert.Equal(t, http.StatusConflict, response.StatusCode)
}

func TestStartExecution_UnknownContact(t *testing.T) {
	env := setupTestApp(t)
	workflow := createWorkflow(t, env)

	response := doJSON(t, env.app, http.MethodPost, "/workflows/"+workflow.ID+"/executions", web.StartExecutionRequest{
		ContactID: "no-such-contact",
	})
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
}

func TestListExecutions(t *testing.T) {
	env := setupTestApp(t)
	workflow := createWorkflow(t, env)
	createContact(t, env, "contact-1")

	response := doJSON(t, env.app, http.MethodPost, "/workflows/"+workflow.ID+"/executions", web.StartExecutionRequest{
		ContactID: "contact-1",
	})
	require.Equal(t, http.StatusAccepted, response.StatusCode)

	response = doJSON(t, env.app, http.MethodGet, "/workflows/"+workflow.ID+"/executions", nil)
	require.Equal(t, http.StatusOK, response.StatusCode)

	var payload struct {
		Executions []models.WorkflowExecution `json:"executions"`
	}
	decodeBody(t, response, &payload)
	assert.Len(t, payload.Executions, 1)
}

func TestGetExecution(t *testing.T) {
	env := setupTestApp(t)
	workflow := createWorkflow(t, env)
	createContact(t, env, "contact-1")

	response := doJSON(t, env.app, http.MethodPost, "/workflows/"+workflow.ID+"/executions", web.StartExecutionRequest{
		ContactID: "contact-1",
	})
	require.Equal(t, http.StatusAccepted, response.StatusCode)

	var execution models.WorkflowExecution
	decodeBody(t, response, &execution)

	response = doJSON(t, env.app, http.MethodGet, "/executions/"+execution.ID, nil)
	require.Equal(t, http.StatusOK, response.StatusCode)

	var history services.ExecutionHistory
	decodeBody(t, response, &history)
	assert.Equal(t, execution.ID, history.Execution.ID)
}

func TestGetExecution_NotFound(t *testing.T) {
	env := setupTestApp(t)

	response := doJSON(t, env.app, http.MethodGet, "/executions/no-such-execution", nil)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
}

func TestCancelExecution(t *testing.T) {
	env := setupTestApp(t)
	workflow := createWorkflow(t, env)
	createContact(t, env, "contact-1")

	response := doJSON(t, env.app, http.MethodPost, "/workflows/"+workflow.ID+"/executions", web.StartExecutionRequest{
		ContactID: "contact-1",
	})
	require.Equal(t, http.StatusAccepted, response.StatusCode)

	var execution models.WorkflowExecution
	decodeBody(t, response, &execution)

	response = doJSON(t, env.app, http.MethodPost, "/executions/"+execution.ID+"/cancel", web.CancelExecutionRequest{
		Reason:      "campaign paused",
		CancelledBy: "ops@example.com",
	})
	assert.Equal(t, http.StatusNoContent, response.StatusCode)

	// Cancelling a finished execution conflicts.
	response = doJSON(t, env.app, http.MethodPost, "/executions/"+execution.ID+"/cancel", web.CancelExecutionRequest{})
	assert.Equal(t, http.StatusConflict, response.StatusCode)
}

func TestUpsertAndGetContact(t *testing.T) {
	env := setupTestApp(t)
	createContact(t, env, "contact-1")

	response := doJSON(t, env.app, http.MethodGet, "/contacts/contact-1", nil)
	require.Equal(t, http.StatusOK, response.StatusCode)

	var contact models.Contact
	decodeBody(t, response, &contact)
	assert.Equal(t, "contact-1@example.com", contact.Email)
	assert.Equal(t, "Ada", contact.FirstName)
}

func TestUpsertContact_PreservesCreatedAt(t *testing.T) {
	env := setupTestApp(t)
	createContact(t, env, "contact-1")

	first, err := env.persistence.ContactRepository().GetByID(t.Context(), "contact-1")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	createContact(t, env, "contact-1")

	second, err := env.persistence.ContactRepository().GetByID(t.Context(), "contact-1")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt.Unix(), second.CreatedAt.Unix())
}

func TestUpsertContact_InvalidEmail(t *testing.T) {
	env := setupTestApp(t)

	response := doJSON(t, env.app, http.MethodPut, "/contacts/contact-1", web.UpsertContactRequest{
		ProjectID: "project-1",
		Email:     "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestGetContact_NotFound(t *testing.T) {
	env := setupTestApp(t)

	response := doJSON(t, env.app, http.MethodGet, "/contacts/no-such-contact", nil)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
}

func TestRecordContactEvent(t *testing.T) {
	env := setupTestApp(t)
	createContact(t, env, "contact-1")

	response := doJSON(t, env.app, http.MethodPost, "/contacts/contact-1/events", web.RecordEventRequest{
		Name:    "order.placed",
		Payload: map[string]any{"order_id": "order-42"},
	})
	assert.Equal(t, http.StatusAccepted, response.StatusCode)
}

func TestRecordContactEvent_MissingName(t *testing.T) {
	env := setupTestApp(t)
	createContact(t, env, "contact-1")

	response := doJSON(t, env.app, http.MethodPost, "/contacts/contact-1/events", web.RecordEventRequest{})
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestRecordContactEvent_UnknownContact(t *testing.T) {
	env := setupTestApp(t)

	response := doJSON(t, env.app, http.MethodPost, "/contacts/no-such-contact/events", web.RecordEventRequest{
		Name: "order.placed",
	})
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	env := setupTestApp(t)

	response := doJSON(t, env.app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)
}
