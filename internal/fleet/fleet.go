// Package fleet runs batch controller audits: one audit job per
// controller, each monitored by its own watcher, with a bounded number
// running at once.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"netmig/internal/engine"
	"netmig/internal/logging"
	"netmig/internal/monitor"
)

const defaultWorkers = 4

// Config assembles a Runner.
type Config struct {
	Client  *engine.Client
	Monitor *monitor.Monitor
	// Workers caps how many audits run concurrently. Defaults to 4.
	Workers int
	Logger  logging.Logger
}

// Runner starts and follows a batch of controller audit jobs.
type Runner struct {
	client  *engine.Client
	monitor *monitor.Monitor
	workers int
	logger  logging.Logger
}

// NewRunner wires up a Runner from config.
func NewRunner(config Config) (*Runner, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("fleet: engine client is required")
	}
	if config.Monitor == nil {
		return nil, fmt.Errorf("fleet: monitor is required")
	}

	workers := config.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	return &Runner{
		client:  config.Client,
		monitor: config.Monitor,
		workers: workers,
		logger:  logging.OrNop(config.Logger),
	}, nil
}

// Result is the outcome of one controller's audit.
type Result struct {
	Controller string
	JobID      string
	Status     engine.Status
	Percent    float64
	// Err is set when the audit could not be started or monitored to a
	// final state. Status may still carry the last state seen.
	Err error
}

// Summary rolls a batch of results up for display and exit codes.
type Summary struct {
	Total     int
	Completed int
	Failed    int
	Cancelled int
	Partial   int
	TimedOut  int
	// Errored counts audits that ended with a monitoring error,
	// timeouts included.
	Errored int
	// Results holds one entry per controller, in input order.
	Results []Result
}

// AllCompleted reports whether every audit finished COMPLETED.
func (s Summary) AllCompleted() bool {
	return s.Errored == 0 && s.Completed == s.Total
}

// Worst returns the worst terminal status in the batch, or the empty
// status when no audit reached one.
func (s Summary) Worst() engine.Status {
	rank := func(status engine.Status) int {
		switch status {
		case engine.StatusCompleted:
			return 1
		case engine.StatusPartial:
			return 2
		case engine.StatusCancelled:
			return 3
		case engine.StatusFailed:
			return 4
		default:
			return 0
		}
	}

	var worst engine.Status
	for _, result := range s.Results {
		if rank(result.Status) > rank(worst) {
			worst = result.Status
		}
	}
	return worst
}

// Audit starts one controller_audit job per controller and follows each
// to a final state. A failing audit never cancels its siblings; failures
// are reported in the Summary instead.
func (r *Runner) Audit(ctx context.Context, controllers []string, params map[string]any) (Summary, error) {
	if len(controllers) == 0 {
		return Summary{}, fmt.Errorf("fleet: at least one controller is required")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	results := make([]Result, len(controllers))
	completed := 0
	var mu sync.Mutex

	r.logger.Info("Starting audit of %d controllers (max %d at once)", len(controllers), r.workers)

	for i, controller := range controllers {
		g.Go(func() error {
			result := r.auditOne(gctx, controller, params)

			mu.Lock()
			defer mu.Unlock()
			results[i] = result
			completed++
			if result.Err != nil {
				r.logger.Warn("Audit %d/%d: %s failed: %v", completed, len(controllers), controller, result.Err)
			} else {
				r.logger.Info("Audit %d/%d: %s finished %s", completed, len(controllers), controller, result.Status)
			}
			// Collected in results; one bad controller must not cancel
			// the rest of the batch.
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	return summarize(results), nil
}

func (r *Runner) auditOne(ctx context.Context, controller string, params map[string]any) Result {
	result := Result{Controller: controller}

	jobID, err := r.client.StartJob(ctx, engine.StartJobRequest{
		Operation:  engine.OpControllerAudit,
		Controller: controller,
		Params:     params,
	})
	if err != nil {
		result.Err = err
		return result
	}
	result.JobID = jobID

	updates, cancelSub := r.monitor.Subscribe(jobID)
	defer cancelSub()

	if err := r.monitor.Watch(ctx, jobID); err != nil {
		result.Err = err
		return result
	}

	sawFinal := false
	for update := range updates {
		if update.Err != nil {
			result.Err = update.Err
			sawFinal = true
			continue
		}
		if update.Snapshot != nil {
			result.Status = update.Snapshot.Status
			result.Percent = update.View.Percent
		}
		if update.Finished {
			sawFinal = true
		}
	}

	if !sawFinal {
		if err := ctx.Err(); err != nil {
			result.Err = err
		} else {
			result.Err = fmt.Errorf("monitoring of job %s ended before a final state", jobID)
		}
	}
	return result
}

func summarize(results []Result) Summary {
	summary := Summary{Total: len(results), Results: results}

	for _, result := range results {
		if result.Err != nil {
			summary.Errored++
			var timeout *monitor.TimeoutError
			if errors.As(result.Err, &timeout) {
				summary.TimedOut++
			}
			continue
		}
		switch result.Status {
		case engine.StatusCompleted:
			summary.Completed++
		case engine.StatusFailed:
			summary.Failed++
		case engine.StatusCancelled:
			summary.Cancelled++
		case engine.StatusPartial:
			summary.Partial++
		}
	}
	return summary
}
