// Package cmd provides common initialization functions for the journey
// command-line entrypoints.
package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/flowmail/journey/pkg/channels/kafka"
	"github.com/flowmail/journey/pkg/eventbus"
)

// NewEventBus builds an event bus for one topic. The kafka provider is the
// production path; gochannel is an in-process bus for development, where
// every process must share one bus instance per topic.
func NewEventBus(provider, brokers, serviceName, topic string, logger *slog.Logger) eventbus.EventBus {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), serviceName, strings.Split(brokers, ","))
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub, topic)
	case "gochannel":
		channel := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger))

		return eventbus.NewWatermillEventBus(channel, channel, topic)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
