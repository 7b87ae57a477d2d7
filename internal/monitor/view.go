package monitor

import (
	"context"
	"fmt"
	"time"

	"netmig/internal/engine"
	apperrors "netmig/internal/errors"
	"netmig/internal/logging"
	"netmig/internal/observability"
)

// Update is one delivery to a subscriber. Either Snapshot or Err is set,
// never both. Snapshots are full replacements of anything delivered
// before, so a subscriber that misses intermediate updates is never left
// with partial state.
type Update struct {
	JobID    string
	Snapshot *engine.Job
	View     AggregateView
	Notes    []NoteEntry
	// Terminal mirrors the snapshot's status class.
	Terminal bool
	// Finished is set on exactly one update per watch: the first one
	// carrying a terminal snapshot.
	Finished bool
	// Err ends the watch: the job could not be monitored further.
	Err error
}

// critical marks updates the broadcaster must not drop on a full buffer.
func (u Update) critical() bool {
	return u.Finished || u.Err != nil
}

// Config assembles a Monitor. Client is required; everything else has a
// usable zero value.
type Config struct {
	Client *engine.Client

	// Mode picks the transport for new watchers. Defaults to ModeStream.
	Mode Mode

	// PollInterval and MaxWait only apply to ModePoll.
	PollInterval time.Duration
	MaxWait      time.Duration

	// Reconnect shapes the stream reconnect backoff. MaxAttempts is
	// ignored; a live job's stream is retried until the job finishes.
	Reconnect apperrors.RetryConfig

	// Retention bounds how long finished jobs stay answerable through
	// GetSnapshot after their watchers are gone.
	Retention RetentionConfig

	Logger  logging.Logger
	Metrics *observability.MetricsCollector
	Tracer  *observability.TracerProvider
}

// Monitor is the package's entry point: it starts watchers, fans their
// updates out to subscribers, and answers snapshot reads.
type Monitor struct {
	client *engine.Client
	orch   *orchestrator
	store  *Store
	caster *broadcaster
	cache  *snapshotCache
	logger logging.Logger
}

// New wires up a Monitor from config.
func New(config Config) (*Monitor, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("monitor: engine client is required")
	}

	logger := config.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("monitor")
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &observability.MetricsCollector{}
	}
	reconnect := config.Reconnect
	if reconnect.BaseDelay <= 0 {
		reconnect = apperrors.DefaultRetryConfig()
	}

	store := NewStore(logger)
	caster := newBroadcaster(logger, metrics)
	cache := newSnapshotCache(config.Retention)

	return &Monitor{
		client: config.Client,
		store:  store,
		caster: caster,
		cache:  cache,
		logger: logger,
		orch: &orchestrator{
			client:       config.Client,
			store:        store,
			caster:       caster,
			cache:        cache,
			logger:       logger,
			metrics:      metrics,
			tracer:       config.Tracer,
			mode:         config.Mode,
			pollInterval: config.PollInterval,
			maxWait:      config.MaxWait,
			reconnect:    reconnect,
			watchers:     make(map[string]*watcher),
		},
	}, nil
}

// Watch begins monitoring a job. Idempotent per job id. Subscribe before
// calling Watch to be sure of seeing the baseline update.
func (m *Monitor) Watch(ctx context.Context, jobID string) error {
	return m.orch.Start(ctx, jobID)
}

// Stop ends monitoring for a job without waiting for teardown. Responses
// to fetches already in flight are discarded, never applied late.
func (m *Monitor) Stop(jobID string) {
	m.orch.Stop(jobID)
}

// Subscribe returns a channel of updates for a job and a cancel func.
// The channel closes when the watch ends or the subscription is
// cancelled. Subscribing does not replay past updates.
func (m *Monitor) Subscribe(jobID string) (<-chan Update, func()) {
	return m.caster.subscribe(jobID)
}

// GetSnapshot returns the last accepted snapshot for a job: live watcher
// state first, then the retention cache for recently finished jobs.
func (m *Monitor) GetSnapshot(jobID string) (*engine.Job, bool) {
	if snapshot, ok := m.store.Snapshot(jobID); ok {
		return snapshot, true
	}
	return m.cache.get(jobID)
}

// Cancel asks the engine to cancel a job. The local state is not touched;
// the CANCELLED status arrives through the normal snapshot path once the
// engine reports it.
func (m *Monitor) Cancel(ctx context.Context, jobID string) error {
	return m.client.CancelJob(ctx, jobID)
}

// Close stops every watcher and waits for their teardown, bounded by ctx.
func (m *Monitor) Close(ctx context.Context) error {
	for _, jobID := range m.orch.watcherIDs() {
		if err := m.orch.StopWait(ctx, jobID); err != nil {
			return err
		}
	}
	return nil
}
