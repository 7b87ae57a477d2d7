package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"netmig/internal/async"
	"netmig/internal/engine"
	apperrors "netmig/internal/errors"
	"netmig/internal/logging"
	"netmig/internal/observability"
)

// Mode selects how a watcher learns that its snapshot went stale.
type Mode int

const (
	// ModeStream follows the job's SSE stream and fetches a fresh
	// snapshot whenever the engine signals a change.
	ModeStream Mode = iota
	// ModePoll fetches on a fixed interval. Fallback for environments
	// where long-lived connections are not viable.
	ModePoll
)

func (m Mode) String() string {
	if m == ModePoll {
		return "poll"
	}
	return "stream"
}

// watcher is the monitoring session for one job id.
type watcher struct {
	jobID  string
	cancel context.CancelFunc
	done   <-chan struct{}
	notes  *noteLog

	// wg counts in-flight snapshot fetches. Teardown waits for it so a
	// late response can never land after the store entry is dropped.
	wg       sync.WaitGroup
	failOnce sync.Once
}

// orchestrator owns the watcher registry and runs the transport loops.
// Both modes share the same fetch-and-apply path; they differ only in
// what triggers a fetch.
type orchestrator struct {
	client  *engine.Client
	store   *Store
	caster  *broadcaster
	cache   *snapshotCache
	logger  logging.Logger
	metrics *observability.MetricsCollector
	tracer  *observability.TracerProvider

	mode         Mode
	pollInterval time.Duration
	maxWait      time.Duration
	reconnect    apperrors.RetryConfig

	mu       sync.Mutex
	watchers map[string]*watcher
}

// Start begins monitoring a job. Starting an id that is already being
// watched is a no-op; there is never more than one session per job.
// The watcher runs until the job reaches a terminal status, Stop is
// called, or ctx is cancelled.
func (o *orchestrator) Start(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.watchers[jobID]; exists {
		o.logger.Debug("Job %s is already being watched", jobID)
		return nil
	}

	wctx, cancel := context.WithCancel(observability.ContextWithJobID(ctx, jobID))
	w := &watcher{
		jobID:  jobID,
		cancel: cancel,
		notes:  &noteLog{},
	}
	o.watchers[jobID] = w
	o.metrics.IncrementActiveMonitors(wctx)
	o.logger.Info("Starting %s watcher for job %s", o.mode, jobID)

	w.done = async.GoDone(o.logger, "watch-"+jobID, func() {
		o.run(wctx, w)
	})
	return nil
}

// Stop ends monitoring for a job. It raises the store's acceptance floor
// first, so fetches already in flight resolve stale even before the
// watcher finishes winding down. Stop does not wait and is idempotent;
// stopping an unknown id is a no-op.
func (o *orchestrator) Stop(jobID string) {
	o.store.Invalidate(jobID)

	o.mu.Lock()
	w := o.watchers[jobID]
	o.mu.Unlock()

	if w == nil {
		return
	}
	o.logger.Info("Stopping watcher for job %s", jobID)
	w.cancel()
}

// StopWait stops a watcher and blocks until its teardown completes or
// ctx expires.
func (o *orchestrator) StopWait(ctx context.Context, jobID string) error {
	o.mu.Lock()
	w := o.watchers[jobID]
	o.mu.Unlock()

	o.Stop(jobID)
	if w == nil {
		return nil
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *orchestrator) watcherIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	ids := make([]string, 0, len(o.watchers))
	for id := range o.watchers {
		ids = append(ids, id)
	}
	return ids
}

func (o *orchestrator) run(ctx context.Context, w *watcher) {
	if o.tracer != nil {
		var span trace.Span
		ctx, span = o.tracer.StartSpan(ctx, observability.SpanMonitorWatch)
		defer span.End()
	}

	defer o.teardown(w)

	// Baseline fetch: subscribers get the current state without waiting
	// for the first stream event or poll tick.
	o.spawnRefresh(ctx, w, "baseline")

	switch o.mode {
	case ModePoll:
		o.runPollLoop(ctx, w)
	default:
		o.runStreamLoop(ctx, w)
	}
}

// teardown retires a watcher: drain in-flight fetches, move the last
// snapshot to the retention cache, release the store entry, and close
// subscriber channels. Registry removal happens under the same lock as
// Start so a restart cannot observe a half-dismantled store entry.
func (o *orchestrator) teardown(w *watcher) {
	w.cancel()
	w.wg.Wait()

	o.mu.Lock()
	if snapshot, ok := o.store.Snapshot(w.jobID); ok {
		o.cache.put(w.jobID, snapshot)
	}
	o.store.Forget(w.jobID)
	delete(o.watchers, w.jobID)
	o.mu.Unlock()

	o.caster.closeJob(w.jobID)
	o.metrics.DecrementActiveMonitors(context.Background())
	o.logger.Info("Watcher for job %s stopped", w.jobID)
}

// runStreamLoop keeps one stream session open per job, reconnecting with
// backoff for as long as the job is live. Only a fatal error, a terminal
// status, or cancellation ends it.
func (o *orchestrator) runStreamLoop(ctx context.Context, w *watcher) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		stream, err := o.client.OpenStream(ctx, w.jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if isFatal(err) {
				o.fail(ctx, w, err)
				return
			}
			if o.store.Terminal(w.jobID) {
				return
			}
			o.noteReconnect(ctx, w, attempt+1, err)
			if !o.sleepBackoff(ctx, attempt) {
				return
			}
			attempt++
			continue
		}
		attempt = 0

		sctx := ctx
		var span trace.Span
		if o.tracer != nil {
			sctx, span = o.tracer.StartSpan(ctx, observability.SpanStreamSession)
		}
		o.consumeStream(sctx, w, stream)
		if span != nil {
			span.End()
		}

		if ctx.Err() != nil || o.store.Terminal(w.jobID) {
			return
		}

		o.noteReconnect(ctx, w, attempt+1, stream.Err())
		if !o.sleepBackoff(ctx, attempt) {
			return
		}
		attempt++
	}
}

// consumeStream drains one stream session. Events never carry snapshot
// data; anything that is not advisory text just schedules a fetch.
func (o *orchestrator) consumeStream(ctx context.Context, w *watcher, stream *engine.Stream) {
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-stream.Events():
			if !open {
				return
			}
			o.metrics.RecordStreamEvent(ctx, event.Type)

			switch effect := Normalize(event).(type) {
			case Note:
				// Notes ride along on the next snapshot update.
				w.notes.append(effect.Text)
			case Refresh:
				o.spawnRefresh(ctx, w, event.Type)
			}
		}
	}
}

// spawnRefresh tags a fetch with its generation at dispatch time and runs
// it in the background, so a slow status call never stalls the stream.
func (o *orchestrator) spawnRefresh(ctx context.Context, w *watcher, trigger string) {
	generation := o.store.NextGeneration(w.jobID)
	w.wg.Add(1)
	async.Go(o.logger, "refresh-"+w.jobID, func() {
		defer w.wg.Done()
		o.fetchAndApply(ctx, w, generation, trigger)
	})
}

func (o *orchestrator) fetchAndApply(ctx context.Context, w *watcher, generation uint64, trigger string) {
	job, err := o.client.JobStatus(ctx, w.jobID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if isFatal(err) {
			o.fail(ctx, w, err)
			return
		}
		o.metrics.RecordRefresh(ctx, "error")
		o.logger.Warn("Refresh for job %s (%s) failed: %v", w.jobID, trigger, err)
		w.notes.append(apperrors.FormatForOperator(err))
		return
	}

	result := o.store.Apply(w.jobID, generation, job)
	o.metrics.RecordRefresh(ctx, result.Outcome.String())

	if result.Outcome != Applied {
		o.logger.Debug("Refresh for job %s (%s, gen %d) resolved %s", w.jobID, trigger, generation, result.Outcome)
		return
	}

	o.caster.publish(ctx, w.jobID, Update{
		JobID:    w.jobID,
		Snapshot: job,
		View:     Aggregate(job),
		Notes:    w.notes.all(),
		Terminal: job.Status.IsTerminal(),
		Finished: result.FirstTerminal,
	})

	if result.FirstTerminal {
		trace.SpanFromContext(ctx).SetAttributes(observability.StatusAttrs(string(job.Status))...)
		o.logger.Info("Job %s finished with status %s", w.jobID, job.Status)
		w.cancel()
	}
}

// fail delivers a blocking error to subscribers and ends the watch. Only
// the first fatal error wins; later ones are logged by their call sites.
func (o *orchestrator) fail(ctx context.Context, w *watcher, err error) {
	w.failOnce.Do(func() {
		o.logger.Error("Watcher for job %s failed: %v", w.jobID, err)
		w.notes.append(apperrors.FormatForOperator(err))
		o.caster.publish(ctx, w.jobID, Update{
			JobID: w.jobID,
			Notes: w.notes.all(),
			Err:   err,
		})
		w.cancel()
	})
}

func (o *orchestrator) noteReconnect(ctx context.Context, w *watcher, attempt int, cause error) {
	o.metrics.RecordStreamReconnect(ctx)
	if cause != nil {
		o.logger.Warn("Stream for job %s interrupted (attempt %d): %v", w.jobID, attempt, cause)
	} else {
		o.logger.Warn("Stream for job %s closed before the job finished (attempt %d)", w.jobID, attempt)
	}
	w.notes.append(fmt.Sprintf("stream interrupted, reconnecting (attempt %d)", attempt))
}

// sleepBackoff waits out the reconnect delay for a zero-based attempt.
// Returns false when ctx was cancelled during the wait.
func (o *orchestrator) sleepBackoff(ctx context.Context, attempt int) bool {
	timer := time.NewTimer(apperrors.Backoff(attempt, o.reconnect))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// isFatal reports whether an error should end the watch instead of being
// retried. Only typed errors count; string matching would misclassify
// decode failures.
func isFatal(err error) bool {
	var notFound *engine.NotFoundError
	var forbidden *engine.ForbiddenError
	var permanent *apperrors.PermanentError
	return errors.As(err, &notFound) ||
		errors.As(err, &forbidden) ||
		errors.As(err, &permanent)
}
