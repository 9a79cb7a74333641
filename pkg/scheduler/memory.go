package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/flowmail/journey/pkg/eventbus"
)

// MemoryGateway schedules jobs with in-process timers. It exists for local
// development and tests; delayed jobs do not survive a restart.
type MemoryGateway struct {
	mu     sync.Mutex
	bus    eventbus.EventPublisher
	timers map[string]*time.Timer
	closed bool
}

func NewMemoryGateway(bus eventbus.EventPublisher) *MemoryGateway {
	return &MemoryGateway{
		bus:    bus,
		timers: make(map[string]*time.Timer),
	}
}

func (g *MemoryGateway) EnqueueNow(ctx context.Context, job Job) error {
	return g.bus.Publish(ctx, job.Key, job.Event)
}

func (g *MemoryGateway) EnqueueAfter(_ context.Context, job Job, delay time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}

	if _, exists := g.timers[job.DedupeKey]; exists {
		return nil
	}

	g.timers[job.DedupeKey] = time.AfterFunc(delay, func() {
		g.mu.Lock()
		delete(g.timers, job.DedupeKey)
		closed := g.closed
		g.mu.Unlock()

		if closed {
			return
		}

		_ = g.bus.Publish(context.Background(), job.Key, job.Event)
	})

	return nil
}

func (g *MemoryGateway) Cancel(_ context.Context, dedupeKey string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if timer, exists := g.timers[dedupeKey]; exists {
		timer.Stop()
		delete(g.timers, dedupeKey)
	}

	return nil
}

// Pending reports whether a job is still scheduled under the dedupe key.
func (g *MemoryGateway) Pending(dedupeKey string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, exists := g.timers[dedupeKey]

	return exists
}

func (g *MemoryGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true

	for key, timer := range g.timers {
		timer.Stop()
		delete(g.timers, key)
	}

	return nil
}
