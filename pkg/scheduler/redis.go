package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowmail/journey/pkg/eventbus"
	"github.com/flowmail/journey/pkg/events"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

const (
	dueSetKey      = "journey:jobs:due"
	payloadHashKey = "journey:jobs:payload"

	sweepBatchSize = 256
)

// envelope is the stored form of a delayed job.
type envelope struct {
	DedupeKey string          `json:"dedupe_key"`
	Key       string          `json:"key"`
	EventType events.EventType `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// RedisGateway keeps delayed jobs in a Redis sorted set scored by due time,
// with payloads in a companion hash. ZADD NX gives dedupe-on-enqueue and ZREM
// is the claim: of the timekeepers sweeping concurrently, only the one whose
// ZREM removes the member publishes the job.
type RedisGateway struct {
	client *redis.Client
	bus    eventbus.EventPublisher
	logger *slog.Logger
	cron   *cron.Cron
}

// NewRedisGateway connects to Redis and returns a gateway. Call StartSweeper
// on the timekeeper process to deliver due jobs; API and worker processes
// only enqueue and cancel.
func NewRedisGateway(ctx context.Context, logger *slog.Logger, redisURL string, bus eventbus.EventPublisher) (*RedisGateway, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisGateway{
		client: client,
		bus:    bus,
		logger: logger.With("module", "scheduler"),
	}, nil
}

// EnqueueNow publishes the job straight to the bus.
func (g *RedisGateway) EnqueueNow(ctx context.Context, job Job) error {
	return g.bus.Publish(ctx, job.Key, job.Event)
}

// EnqueueAfter schedules the job for now+delay. A job already scheduled under
// the same dedupe key wins; the new one is dropped.
func (g *RedisGateway) EnqueueAfter(ctx context.Context, job Job, delay time.Duration) error {
	payload, err := json.Marshal(job.Event)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	stored, err := json.Marshal(envelope{
		DedupeKey: job.DedupeKey,
		Key:       job.Key,
		EventType: job.Event.GetType(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job envelope: %w", err)
	}

	dueAt := time.Now().Add(delay)

	added, err := g.client.ZAddNX(ctx, dueSetKey, redis.Z{
		Score:  float64(dueAt.UnixMilli()),
		Member: job.DedupeKey,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}

	if added == 0 {
		g.logger.DebugContext(ctx, "job already scheduled", "dedupe_key", job.DedupeKey)

		return nil
	}

	err = g.client.HSet(ctx, payloadHashKey, job.DedupeKey, stored).Err()
	if err != nil {
		return fmt.Errorf("failed to store job payload: %w", err)
	}

	return nil
}

// Cancel drops a scheduled job if it has not fired yet.
func (g *RedisGateway) Cancel(ctx context.Context, dedupeKey string) error {
	err := g.client.ZRem(ctx, dueSetKey, dedupeKey).Err()
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	err = g.client.HDel(ctx, payloadHashKey, dedupeKey).Err()
	if err != nil {
		return fmt.Errorf("failed to drop job payload: %w", err)
	}

	return nil
}

// StartSweeper begins polling for due jobs once per second and publishing
// them to the bus.
func (g *RedisGateway) StartSweeper(ctx context.Context) error {
	g.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := g.cron.AddFunc("@every 1s", func() {
		g.sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to register sweep job: %w", err)
	}

	g.cron.Start()
	g.logger.InfoContext(ctx, "sweeper started")

	return nil
}

func (g *RedisGateway) sweep(ctx context.Context) {
	now := time.Now().UnixMilli()

	due, err := g.client.ZRangeByScore(ctx, dueSetKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: sweepBatchSize,
	}).Result()
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to read due jobs", "error", err)

		return
	}

	for _, dedupeKey := range due {
		g.deliver(ctx, dedupeKey)
	}
}

func (g *RedisGateway) deliver(ctx context.Context, dedupeKey string) {
	// ZREM is the claim; losing it means another timekeeper delivers.
	removed, err := g.client.ZRem(ctx, dueSetKey, dedupeKey).Result()
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to claim job", "dedupe_key", dedupeKey, "error", err)

		return
	}

	if removed == 0 {
		return
	}

	stored, err := g.client.HGet(ctx, payloadHashKey, dedupeKey).Result()
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to load job payload", "dedupe_key", dedupeKey, "error", err)

		return
	}

	var env envelope

	err = json.Unmarshal([]byte(stored), &env)
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to decode job envelope", "dedupe_key", dedupeKey, "error", err)
		g.client.HDel(ctx, payloadHashKey, dedupeKey)

		return
	}

	event, err := decodeJobEvent(env)
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to decode job event", "dedupe_key", dedupeKey, "error", err)
		g.client.HDel(ctx, payloadHashKey, dedupeKey)

		return
	}

	err = g.bus.Publish(ctx, env.Key, event)
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to publish due job, rescheduling", "dedupe_key", dedupeKey, "error", err)
		// Put it back so the next sweep retries. Workers dedupe on their
		// side, so the occasional double fire is harmless.
		g.client.ZAddNX(ctx, dueSetKey, redis.Z{Score: float64(time.Now().UnixMilli()), Member: dedupeKey})

		return
	}

	err = g.client.HDel(ctx, payloadHashKey, dedupeKey).Err()
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to drop delivered job payload", "dedupe_key", dedupeKey, "error", err)
	}
}

// Close stops the sweeper and the Redis client.
func (g *RedisGateway) Close() error {
	if g.cron != nil {
		g.cron.Stop()
	}

	return g.client.Close()
}

func decodeJobEvent(env envelope) (eventbus.Event, error) {
	switch env.EventType {
	case events.ExecutionAdvanceEvent:
		var event events.ExecutionAdvance
		if err := json.Unmarshal(env.Payload, &event); err != nil {
			return nil, err
		}

		return event, nil
	case events.StepTimeoutEvent:
		var event events.StepTimeout
		if err := json.Unmarshal(env.Payload, &event); err != nil {
			return nil, err
		}

		return event, nil
	default:
		return nil, fmt.Errorf("unsupported job event type: %s", env.EventType)
	}
}
