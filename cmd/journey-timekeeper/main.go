// Package main provides the journey timekeeper, the process that sweeps the
// due-job schedule and publishes jobs whose fire time has arrived.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowmail/journey/pkg/cmd"
	"github.com/flowmail/journey/pkg/events"
	"github.com/flowmail/journey/pkg/log"
	"github.com/flowmail/journey/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("timekeeper")

	command := &cli.Command{
		Name:                  "journey-timekeeper",
		Usage:                 "Publish scheduled jobs when their fire time arrives",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
				Usage:    "Redis URL backing the job schedule",
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

			logger.InfoContext(ctx, "Initializing journey timekeeper")

			provider := command.String("event-bus")
			brokers := command.String("kafka-brokers")

			jobsBus := cmd.NewEventBus(provider, brokers, "journey-timekeeper", events.JobsTopic, logger)
			defer func() {
				err := jobsBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close jobs bus", "error", err)
				}
			}()

			gateway, err := scheduler.NewRedisGateway(ctx, logger, command.String("scheduler-url"), jobsBus)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to connect to scheduler backend", "error", err)

				return err
			}

			defer func() {
				err := gateway.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close gateway", "error", err)
				}
			}()

			err = gateway.StartSweeper(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start sweeper", "error", err)

				return err
			}

			logger.InfoContext(ctx, "Timekeeper started successfully")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			<-sigChan
			logger.InfoContext(ctx, "Shutting down timekeeper...")

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
