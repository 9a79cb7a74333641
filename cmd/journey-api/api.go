// Package main provides the journey API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/flowmail/journey/pkg/persistence"
	"github.com/flowmail/journey/pkg/registry"
	"github.com/flowmail/journey/pkg/services"
	"github.com/flowmail/journey/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger              *slog.Logger
	persistence         persistence.Persistence
	definitionService   *services.DefinitionService
	executionService    *services.ExecutionService
	contactEventService *services.ContactEventService
	registry            *registry.Registry
	validate            *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	definitionService *services.DefinitionService,
	executionService *services.ExecutionService,
	contactEventService *services.ContactEventService,
	registry *registry.Registry,
) *API {
	return &API{
		logger:              logger,
		persistence:         persistence,
		definitionService:   definitionService,
		executionService:    executionService,
		contactEventService: contactEventService,
		registry:            registry,
		validate:            validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.definitionService,
		a.executionService,
		a.contactEventService,
		a.persistence,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Journey API")
	})

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
	contacts.Post("/", handlers.UpsertContact)
	contacts.Get("/:id", handlers.GetContact)
	contacts.Put("/:id", handlers.UpsertContact)
	contacts.Post("/:id/events", handlers.RecordContactEvent)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
