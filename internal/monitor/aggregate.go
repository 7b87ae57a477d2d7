package monitor

import "netmig/internal/engine"

// AggregateView is the derived display model for one snapshot: the percent
// to render plus phase and child roll-ups. It is recomputed from each
// accepted snapshot; nothing here is stored.
type AggregateView struct {
	Percent float64

	CompletedPhases int
	TotalPhases     int
	PhasePercent    float64

	Parallel          bool
	TotalChildren     int
	CompletedChildren int
	FailedChildren    int
	RunningChildren   int
}

// Aggregate derives the display view for a snapshot.
//
// Non-parallel jobs show the backend's own percent, with a local phase
// roll-up counting COMPLETED phases for engines that omit phase counters.
// Parallel jobs use the backend's parallel_progress verbatim when present;
// otherwise percent is completedChildren/totalChildren. A FAILED child is
// reported in its own counter and never counts toward percent. Child order
// is irrelevant; only statuses are read.
func Aggregate(job *engine.Job) AggregateView {
	if job == nil {
		return AggregateView{}
	}

	if job.IsParallel {
		return aggregateParallel(job)
	}

	view := AggregateView{Percent: job.Progress.Percent}
	view.CompletedPhases, view.TotalPhases = phaseCounts(job)
	if view.TotalPhases > 0 {
		view.PhasePercent = float64(view.CompletedPhases) / float64(view.TotalPhases) * 100
	}
	return view
}

func aggregateParallel(job *engine.Job) AggregateView {
	view := AggregateView{
		Parallel:      true,
		TotalChildren: len(job.ChildJobs),
	}

	for _, child := range job.ChildJobs {
		switch child.Status {
		case engine.StatusCompleted:
			view.CompletedChildren++
		case engine.StatusFailed:
			view.FailedChildren++
		case engine.StatusRunning:
			view.RunningChildren++
		}
	}

	switch {
	case job.ParallelProgress != nil:
		view.Percent = job.ParallelProgress.Percent
	case view.TotalChildren > 0:
		view.Percent = float64(view.CompletedChildren) / float64(view.TotalChildren) * 100
	}
	return view
}

// phaseCounts prefers counting phases[] directly; only when the engine
// sent no phase list do the progress counters stand in.
func phaseCounts(job *engine.Job) (completed, total int) {
	if len(job.Phases) == 0 {
		return job.Progress.CompletedPhases, job.Progress.TotalPhases
	}

	total = len(job.Phases)
	for _, phase := range job.Phases {
		if phase.Status == engine.StatusCompleted {
			completed++
		}
	}
	return completed, total
}
