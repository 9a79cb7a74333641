// Package scheduler provides the gateway through which the engine requests
// future work: immediate continuations and delayed timeout jobs. Delayed jobs
// are deduplicated by key, so enqueueing the same job twice is a no-op and a
// cancelled job never fires.
package scheduler

import (
	"context"
	"time"

	"github.com/flowmail/journey/pkg/eventbus"
)

// Job is a unit of future work. DedupeKey identifies the job across
// redeliveries: the engine derives it from the execution and step so the same
// logical job is only ever scheduled once. Key is the partition key used when
// the job is published.
type Job struct {
	DedupeKey string
	Key       string
	Event     eventbus.Event
}

// Gateway schedules jobs for workers. Implementations must be safe for
// concurrent use and must tolerate duplicate calls with the same dedupe key.
type Gateway interface {
	// EnqueueNow publishes the job immediately.
	EnqueueNow(ctx context.Context, job Job) error

	// EnqueueAfter schedules the job to be published after the delay. A job
	// with the same dedupe key that is already scheduled is left untouched.
	EnqueueAfter(ctx context.Context, job Job, delay time.Duration) error

	// Cancel drops a scheduled job. Cancelling a job that already fired or
	// never existed is not an error.
	Cancel(ctx context.Context, dedupeKey string) error

	Close() error
}
