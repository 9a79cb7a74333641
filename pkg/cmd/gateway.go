package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowmail/journey/pkg/eventbus"
	"github.com/flowmail/journey/pkg/scheduler"
)

// NewGateway builds the scheduling gateway. A redis:// URL selects the
// durable Redis-backed gateway; memory:// selects in-process timers for
// development.
func NewGateway(ctx context.Context, logger *slog.Logger, schedulerURL string, bus eventbus.EventPublisher) scheduler.Gateway {
	switch parseScheme(schedulerURL) {
	case "redis", "rediss":
		gateway, err := scheduler.NewRedisGateway(ctx, logger, schedulerURL, bus)
		if err != nil {
			panic(fmt.Errorf("failed to create Redis gateway: %w", err))
		}

		return gateway
	case "memory":
		return scheduler.NewMemoryGateway(bus)
	default:
		panic("unsupported scheduler URL: " + schedulerURL)
	}
}
