package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"netmig/internal/engine"
	apperrors "netmig/internal/errors"
	"netmig/internal/logging"
	"netmig/internal/monitor"
)

// fleetEngine is an engine double that starts audit jobs and serves each
// one a fixed terminal status, keyed by controller name.
type fleetEngine struct {
	mu          sync.Mutex
	statuses    map[string]engine.Status
	percents    map[string]float64
	rejectStart map[string]bool
	operations  []string
}

func newFleetEngine() *fleetEngine {
	return &fleetEngine{
		statuses:    make(map[string]engine.Status),
		percents:    make(map[string]float64),
		rejectStart: make(map[string]bool),
	}
}

func (e *fleetEngine) handleStart(w http.ResponseWriter, r *http.Request) {
	var req engine.StartJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	e.mu.Lock()
	e.operations = append(e.operations, req.Operation)
	rejected := e.rejectStart[req.Controller]
	e.mu.Unlock()

	if rejected {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, `{"error":"controller %s is unreachable"}`, req.Controller)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"job_id":"job-%s"}`, req.Controller)
}

func (e *fleetEngine) handleStatus(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/jobs/job-")
	controller := strings.TrimSuffix(trimmed, "/status")

	e.mu.Lock()
	status, ok := e.statuses[controller]
	percent := e.percents[controller]
	e.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	job := engine.Job{
		ID:         "job-" + controller,
		Operation:  engine.OpControllerAudit,
		Controller: controller,
		Status:     status,
		Progress:   engine.Progress{Percent: percent},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(job)
}

func (e *fleetEngine) startedOperations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.operations...)
}

func newFleetServer(t *testing.T, eng *fleetEngine) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("network listen not permitted: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/jobs/start", eng.handleStart)
	mux.HandleFunc("/jobs/", eng.handleStatus)

	server := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: mux},
	}
	server.Start()
	t.Cleanup(server.Close)
	return server
}

func newFleetRunner(t *testing.T, server *httptest.Server, workers int) *Runner {
	t.Helper()

	client, err := engine.NewClient(engine.Config{
		BaseURL: server.URL,
		Token:   "test-token",
		Timeout: 5 * time.Second,
		Logger:  logging.Nop(),
	})
	require.NoError(t, err)

	mon, err := monitor.New(monitor.Config{
		Client:       client,
		Mode:         monitor.ModePoll,
		PollInterval: 10 * time.Millisecond,
		MaxWait:      2 * time.Second,
		Logger:       logging.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = mon.Close(ctx)
	})

	runner, err := NewRunner(Config{
		Client:  client,
		Monitor: mon,
		Workers: workers,
		Logger:  logging.Nop(),
	})
	require.NoError(t, err)
	return runner
}

func TestAuditFollowsEveryController(t *testing.T) {
	eng := newFleetEngine()
	eng.statuses["wlc-east"] = engine.StatusCompleted
	eng.percents["wlc-east"] = 100
	eng.statuses["wlc-west"] = engine.StatusFailed
	eng.percents["wlc-west"] = 40
	eng.statuses["wlc-lab"] = engine.StatusPartial
	eng.percents["wlc-lab"] = 85

	server := newFleetServer(t, eng)
	runner := newFleetRunner(t, server, 2)

	summary, err := runner.Audit(context.Background(), []string{"wlc-east", "wlc-west", "wlc-lab"}, nil)
	require.NoError(t, err)

	require.Equal(t, 3, summary.Total)
	require.Equal(t, 1, summary.Completed)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, summary.Partial)
	require.Equal(t, 0, summary.Errored)
	require.False(t, summary.AllCompleted())
	require.Equal(t, engine.StatusFailed, summary.Worst())

	require.Len(t, summary.Results, 3)
	require.Equal(t, "wlc-east", summary.Results[0].Controller)
	require.Equal(t, "job-wlc-east", summary.Results[0].JobID)
	require.Equal(t, engine.StatusCompleted, summary.Results[0].Status)
	require.Equal(t, float64(100), summary.Results[0].Percent)
	require.Equal(t, "wlc-west", summary.Results[1].Controller)
	require.Equal(t, engine.StatusFailed, summary.Results[1].Status)
	require.Equal(t, "wlc-lab", summary.Results[2].Controller)
	require.Equal(t, engine.StatusPartial, summary.Results[2].Status)

	for _, op := range eng.startedOperations() {
		require.Equal(t, engine.OpControllerAudit, op)
	}
}

func TestAuditStartFailureDoesNotCancelSiblings(t *testing.T) {
	eng := newFleetEngine()
	eng.statuses["wlc-a"] = engine.StatusCompleted
	eng.percents["wlc-a"] = 100
	eng.rejectStart["wlc-down"] = true
	eng.statuses["wlc-b"] = engine.StatusCompleted
	eng.percents["wlc-b"] = 100

	server := newFleetServer(t, eng)
	runner := newFleetRunner(t, server, 3)

	summary, err := runner.Audit(context.Background(), []string{"wlc-a", "wlc-down", "wlc-b"}, nil)
	require.NoError(t, err)

	require.Equal(t, 3, summary.Total)
	require.Equal(t, 2, summary.Completed)
	require.Equal(t, 1, summary.Errored)
	require.False(t, summary.AllCompleted())
	require.Equal(t, engine.StatusCompleted, summary.Worst())

	require.NoError(t, summary.Results[0].Err)
	require.Error(t, summary.Results[1].Err)
	require.Empty(t, summary.Results[1].JobID)
	require.NoError(t, summary.Results[2].Err)
}

func TestAuditAllCompleted(t *testing.T) {
	eng := newFleetEngine()
	eng.statuses["wlc-1"] = engine.StatusCompleted
	eng.percents["wlc-1"] = 100
	eng.statuses["wlc-2"] = engine.StatusCompleted
	eng.percents["wlc-2"] = 100

	server := newFleetServer(t, eng)
	runner := newFleetRunner(t, server, 1)

	summary, err := runner.Audit(context.Background(), []string{"wlc-1", "wlc-2"}, nil)
	require.NoError(t, err)
	require.True(t, summary.AllCompleted())
	require.Equal(t, engine.StatusCompleted, summary.Worst())
}

func TestAuditRequiresControllers(t *testing.T) {
	eng := newFleetEngine()
	server := newFleetServer(t, eng)
	runner := newFleetRunner(t, server, 2)

	_, err := runner.Audit(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestNewRunnerValidation(t *testing.T) {
	client, err := engine.NewClient(engine.Config{
		BaseURL: "http://127.0.0.1:9",
		Token:   "test-token",
		Logger:  logging.Nop(),
	})
	require.NoError(t, err)

	mon, err := monitor.New(monitor.Config{Client: client, Logger: logging.Nop()})
	require.NoError(t, err)

	_, err = NewRunner(Config{Monitor: mon})
	require.Error(t, err)

	_, err = NewRunner(Config{Client: client})
	require.Error(t, err)

	runner, err := NewRunner(Config{Client: client, Monitor: mon})
	require.NoError(t, err)
	require.Equal(t, defaultWorkers, runner.workers)
}

func TestSummaryRollup(t *testing.T) {
	results := []Result{
		{Controller: "a", Status: engine.StatusCompleted},
		{Controller: "b", Status: engine.StatusPartial},
		{Controller: "c", Status: engine.StatusCancelled},
		{Controller: "d", Status: engine.StatusFailed},
		{Controller: "e", Err: &monitor.TimeoutError{JobID: "job-e", MaxWait: time.Minute}},
		{Controller: "f", Err: apperrors.NewPermanentError(fmt.Errorf("boom"), "Engine rejected the job.")},
	}

	summary := summarize(results)
	require.Equal(t, 6, summary.Total)
	require.Equal(t, 1, summary.Completed)
	require.Equal(t, 1, summary.Partial)
	require.Equal(t, 1, summary.Cancelled)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 2, summary.Errored)
	require.Equal(t, 1, summary.TimedOut)
	require.False(t, summary.AllCompleted())
	require.Equal(t, engine.StatusFailed, summary.Worst())

	require.Equal(t, engine.Status(""), Summary{}.Worst())
}
