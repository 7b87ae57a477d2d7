package monitor

import (
	"reflect"
	"sync"

	"netmig/internal/engine"
	"netmig/internal/logging"
)

// ApplyOutcome says what the store did with an offered snapshot.
type ApplyOutcome int

const (
	// Applied - the snapshot replaced the job's state; notify subscribers.
	Applied ApplyOutcome = iota
	// Duplicate - accepted but identical to current state; no notification.
	Duplicate
	// Stale - discarded by the generation rule or terminal absorption.
	Stale
)

func (o ApplyOutcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// ApplyResult is the store's verdict on one snapshot.
type ApplyResult struct {
	Outcome ApplyOutcome
	// FirstTerminal is set on the Applied outcome that first moved the job
	// into a terminal status. It drives the finished-once notification.
	FirstTerminal bool
}

type jobState struct {
	issued   uint64 // highest generation handed out for this job
	floor    uint64 // minimum generation Apply will accept
	snapshot *engine.Job
	terminal bool
}

// Store holds the last accepted snapshot per job id, guarded by a
// generation rule: fetches are tagged when dispatched, and a response is
// accepted only if its generation is at or above the acceptance floor.
// Stale responses from slow fetches can therefore never overwrite newer
// state, no matter how late they land.
type Store struct {
	mu     sync.Mutex
	jobs   map[string]*jobState
	logger logging.Logger
}

// NewStore returns an empty snapshot store.
func NewStore(logger logging.Logger) *Store {
	return &Store{
		jobs:   make(map[string]*jobState),
		logger: logging.OrNop(logger),
	}
}

func (s *Store) state(jobID string) *jobState {
	st, ok := s.jobs[jobID]
	if !ok {
		st = &jobState{}
		s.jobs[jobID] = st
	}
	return st
}

// NextGeneration allocates the tag for a fetch about to be dispatched.
// Tags are strictly increasing per job id.
func (s *Store) NextGeneration(jobID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(jobID)
	st.issued++
	return st.issued
}

// Apply offers a fetched snapshot tagged with its dispatch generation.
// The snapshot is a full replacement; there is no field-level merge. The
// caller must not mutate the snapshot after handing it over.
func (s *Store) Apply(jobID string, generation uint64, snapshot *engine.Job) ApplyResult {
	if snapshot == nil {
		return ApplyResult{Outcome: Stale}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(jobID)

	if generation < st.floor {
		s.logger.Debug("Job %s: dropped stale snapshot (gen %d < floor %d)", jobID, generation, st.floor)
		return ApplyResult{Outcome: Stale}
	}

	// A finished job never goes back to running: a non-terminal snapshot
	// after a terminal one is stale even at a higher generation.
	if st.terminal && !snapshot.Status.IsTerminal() {
		s.logger.Debug("Job %s: dropped non-terminal %s after terminal state", jobID, snapshot.Status)
		return ApplyResult{Outcome: Stale}
	}

	st.floor = generation

	if st.snapshot != nil && reflect.DeepEqual(st.snapshot, snapshot) {
		return ApplyResult{Outcome: Duplicate}
	}

	firstTerminal := snapshot.Status.IsTerminal() && !st.terminal
	st.snapshot = snapshot
	if firstTerminal {
		st.terminal = true
	}

	return ApplyResult{Outcome: Applied, FirstTerminal: firstTerminal}
}

// Invalidate raises the acceptance floor above every generation issued so
// far, so every in-flight fetch resolves stale when it lands. Used by Stop.
func (s *Store) Invalidate(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(jobID)
	st.floor = st.issued + 1
}

// Snapshot returns the last accepted snapshot for a job. Callers must
// treat it as read-only.
func (s *Store) Snapshot(jobID string) (*engine.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.jobs[jobID]
	if !ok || st.snapshot == nil {
		return nil, false
	}
	return st.snapshot, true
}

// Terminal reports whether the job's accepted state is final.
func (s *Store) Terminal(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.jobs[jobID]
	return ok && st.terminal
}

// Forget drops all state for a job id. Only safe once no fetches for the
// old lifecycle remain in flight; the orchestrator drains its refresh
// goroutines before calling this.
func (s *Store) Forget(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, jobID)
}
