package monitor

import (
	"context"
	"fmt"
	"time"
)

// Polling defaults. A poll watcher that sees no terminal status within
// the max wait fails the watch with a TimeoutError.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxWait      = 10 * time.Minute
)

// TimeoutError reports that a polled job did not finish in time. The job
// may still be running on the engine; only the watch gave up.
type TimeoutError struct {
	JobID   string
	MaxWait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s did not finish within %s", e.JobID, e.MaxWait)
}

// runPollLoop fetches on a fixed interval until the job finishes, the max
// wait elapses, or ctx is cancelled. Fetches are synchronous here; the
// interval is the natural pacing and a skipped tick is harmless.
func (o *orchestrator) runPollLoop(ctx context.Context, w *watcher) {
	interval := o.pollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxWait := o.maxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			o.fail(ctx, w, &TimeoutError{JobID: w.jobID, MaxWait: maxWait})
			return
		case <-ticker.C:
			generation := o.store.NextGeneration(w.jobID)
			o.fetchAndApply(ctx, w, generation, "poll")
			if ctx.Err() != nil || o.store.Terminal(w.jobID) {
				return
			}
		}
	}
}
