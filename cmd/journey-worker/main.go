// Package main provides the journey worker, the process that consumes job
// and contact events and drives executions forward.
package main

import (
	"context"
	"os"

	"github.com/flowmail/journey/pkg/cmd"
	"github.com/flowmail/journey/pkg/email"
	"github.com/flowmail/journey/pkg/events"
	"github.com/flowmail/journey/pkg/log"
	"github.com/flowmail/journey/pkg/otelhelper"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "journey-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker to process workflow execution jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithWorker("journey-worker", workerID)

			logger.InfoContext(ctx, "Initializing journey worker")

			shutdownTracing, err := otelhelper.Setup(ctx, "journey-worker")
			if err != nil {
				logger.WarnContext(ctx, "Tracing disabled", "error", err)
			} else {
				defer func() {
					err := shutdownTracing(context.Background())
					if err != nil {
						logger.ErrorContext(ctx, "Failed to shut down tracing", "error", err)
					}
				}()
			}

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			provider := command.String("event-bus")
			brokers := command.String("kafka-brokers")

			jobsBus := cmd.NewEventBus(provider, brokers, "journey-worker", events.JobsTopic, logger)
			defer func() {
				err := jobsBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close jobs bus", "error", err)
				}
			}()

			eventsBus := cmd.NewEventBus(provider, brokers, "journey-worker", events.EventsTopic, logger)
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

			worker := NewWorkerManager(workerID, persistence, registry, gateway, jobsBus, eventsBus, logger)

			err = worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
