package monitor

import (
	"context"
	"sync"

	"netmig/internal/logging"
	"netmig/internal/observability"
)

// updateBuffer is the per-subscriber channel depth. Slow subscribers lose
// intermediate updates rather than blocking the monitor; snapshots are
// full replacements, so skipping one is always safe.
const updateBuffer = 8

// broadcaster fans accepted updates out to per-job subscribers.
type broadcaster struct {
	mu   sync.RWMutex
	subs map[string][]chan Update

	logger  logging.Logger
	metrics *observability.MetricsCollector
}

func newBroadcaster(logger logging.Logger, metrics *observability.MetricsCollector) *broadcaster {
	return &broadcaster{
		subs:    make(map[string][]chan Update),
		logger:  logging.OrNop(logger),
		metrics: metrics,
	}
}

// subscribe registers a new listener for a job. The returned cancel is
// idempotent and safe to call after the job's channels were closed.
func (b *broadcaster) subscribe(jobID string) (chan Update, func()) {
	ch := make(chan Update, updateBuffer)

	b.mu.Lock()
	b.subs[jobID] = append(b.subs[jobID], ch)
	count := len(b.subs[jobID])
	b.mu.Unlock()

	b.logger.Debug("Subscriber added for job %s (total: %d)", jobID, count)
	return ch, func() { b.unsubscribe(jobID, ch) }
}

func (b *broadcaster) unsubscribe(jobID string, ch chan Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[jobID]
	for i, sub := range subs {
		if sub == ch {
			b.subs[jobID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			if len(b.subs[jobID]) == 0 {
				delete(b.subs, jobID)
			}
			return
		}
	}
}

// publish delivers one update to every subscriber of the job. Full
// buffers drop the update unless it is critical, in which case the oldest
// queued update is sacrificed to make room.
func (b *broadcaster) publish(ctx context.Context, jobID string, update Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, ch := range b.subs[jobID] {
		select {
		case ch <- update:
		default:
			if b.deliverCritical(jobID, ch, update) {
				continue
			}
			b.logger.Warn("Subscriber %d buffer full for job %s, dropping update", i+1, jobID)
			b.metrics.RecordDroppedUpdate(ctx)
		}
	}
}

// deliverCritical forces through updates that must not be lost: the
// finished notification and blocking errors.
func (b *broadcaster) deliverCritical(jobID string, ch chan Update, update Update) bool {
	if !update.critical() {
		return false
	}

	// The subscriber may have drained since the first attempt.
	select {
	case ch <- update:
		return true
	default:
	}

	select {
	case <-ch:
	default:
	}

	select {
	case ch <- update:
		b.logger.Warn("Dropped oldest queued update for job %s to deliver a critical one", jobID)
		return true
	default:
		b.logger.Warn("Could not deliver critical update for job %s", jobID)
		return false
	}
}

// closeJob closes every subscriber channel for a job. Called once the
// watcher is fully torn down; there will be no further updates.
func (b *broadcaster) closeJob(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[jobID] {
		close(ch)
	}
	delete(b.subs, jobID)
}

func (b *broadcaster) subscriberCount(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[jobID])
}
