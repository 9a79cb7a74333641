package main

import (
	"context"
	"os"

	"github.com/flowmail/journey/pkg/cmd"
	"github.com/flowmail/journey/pkg/email"
	"github.com/flowmail/journey/pkg/events"
	"github.com/flowmail/journey/pkg/log"
	"github.com/flowmail/journey/pkg/services"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "journey-api",
		Usage:                 "Create and manage workflows, contacts and executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker addresses",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:     "scheduler-url",
				Usage:    "Scheduler backend URL (redis:// or memory://)",
				Required: true,
				Sources:  cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Journey API")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			provider := command.String("event-bus")
			brokers := command.String("kafka-brokers")

			jobsBus := cmd.NewEventBus(provider, brokers, "journey-api", events.JobsTopic, logger)
			defer func() {
				err := jobsBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close jobs bus", "error", err)
				}
			}()

			eventsBus := cmd.NewEventBus(provider, brokers, "journey-api", events.EventsTopic, logger)
			defer func() {
				err := eventsBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close events bus", "error", err)
				}
			}()

			gateway := cmd.NewGateway(ctx, logger, command.String("scheduler-url"), jobsBus)
			defer func() {
				err := gateway.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close gateway", "error", err)
				}
			}()

			registry := cmd.NewRegistry(logger, persistence, email.NewLogDelivery(logger))

			definitionService := services.NewDefinitionService(persistence, registry, logger)
			executionService := services.NewExecutionService(persistence, gateway, eventsBus, logger)
			contactEventService := services.NewContactEventService(persistence, eventsBus, logger)

			api := NewAPI(
				logger,
				persistence,
				definitionService,
				executionService,
				contactEventService,
				registry,
			)

			err := api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
