package monitor

import (
	"testing"

	"netmig/internal/engine"
)

func TestAggregateSequentialJob(t *testing.T) {
	job := &engine.Job{
		ID:     "job-1",
		Status: engine.StatusRunning,
		Progress: engine.Progress{
			TotalTasks:     40,
			CompletedTasks: 10,
			Percent:        25,
		},
		Phases: []engine.Phase{
			{Name: "validate", Status: engine.StatusCompleted},
			{Name: "stage", Status: engine.StatusCompleted},
			{Name: "apply", Status: engine.StatusRunning},
			{Name: "verify", Status: engine.StatusPending},
		},
	}

	view := Aggregate(job)

	if view.Percent != 25 {
		t.Errorf("Expected percent 25, got %v", view.Percent)
	}
	if view.CompletedPhases != 2 || view.TotalPhases != 4 {
		t.Errorf("Expected 2/4 phases, got %d/%d", view.CompletedPhases, view.TotalPhases)
	}
	if view.PhasePercent != 50 {
		t.Errorf("Expected phase percent 50, got %v", view.PhasePercent)
	}
	if view.Parallel {
		t.Error("Expected a sequential view")
	}
}

func TestAggregatePhaseCountersWithoutPhaseList(t *testing.T) {
	job := &engine.Job{
		ID:     "job-1",
		Status: engine.StatusRunning,
		Progress: engine.Progress{
			Percent:         60,
			TotalPhases:     5,
			CompletedPhases: 3,
		},
	}

	view := Aggregate(job)

	if view.CompletedPhases != 3 || view.TotalPhases != 5 {
		t.Errorf("Expected 3/5 phases from counters, got %d/%d", view.CompletedPhases, view.TotalPhases)
	}
	if view.PhasePercent != 60 {
		t.Errorf("Expected phase percent 60, got %v", view.PhasePercent)
	}
}

func TestAggregateParallelCountsChildren(t *testing.T) {
	job := &engine.Job{
		ID:         "job-1",
		Status:     engine.StatusRunning,
		IsParallel: true,
		ChildJobs: []engine.ChildJob{
			{ID: "c1", Unit: "ctrl-a", Status: engine.StatusCompleted},
			{ID: "c2", Unit: "ctrl-b", Status: engine.StatusCompleted},
			{ID: "c3", Unit: "ctrl-c", Status: engine.StatusFailed},
			{ID: "c4", Unit: "ctrl-d", Status: engine.StatusRunning},
		},
	}

	view := Aggregate(job)

	if !view.Parallel {
		t.Fatal("Expected a parallel view")
	}
	// Two of four children done. The failed child is reported separately
	// and contributes nothing to percent.
	if view.Percent != 50 {
		t.Errorf("Expected percent 50, got %v", view.Percent)
	}
	if view.CompletedChildren != 2 {
		t.Errorf("Expected 2 completed children, got %d", view.CompletedChildren)
	}
	if view.FailedChildren != 1 {
		t.Errorf("Expected 1 failed child, got %d", view.FailedChildren)
	}
	if view.RunningChildren != 1 {
		t.Errorf("Expected 1 running child, got %d", view.RunningChildren)
	}
	if view.TotalChildren != 4 {
		t.Errorf("Expected 4 children, got %d", view.TotalChildren)
	}
}

func TestAggregateParallelPrefersEngineRollup(t *testing.T) {
	job := &engine.Job{
		ID:               "job-1",
		Status:           engine.StatusRunning,
		IsParallel:       true,
		ParallelProgress: &engine.Progress{Percent: 37.5},
		ChildJobs: []engine.ChildJob{
			{ID: "c1", Status: engine.StatusCompleted},
			{ID: "c2", Status: engine.StatusRunning},
		},
	}

	view := Aggregate(job)

	if view.Percent != 37.5 {
		t.Errorf("Expected the engine's 37.5, got %v", view.Percent)
	}
}

func TestAggregateParallelWithoutChildren(t *testing.T) {
	job := &engine.Job{ID: "job-1", Status: engine.StatusPending, IsParallel: true}

	view := Aggregate(job)

	if view.Percent != 0 {
		t.Errorf("Expected percent 0 with no children, got %v", view.Percent)
	}
}

func TestAggregateNilJob(t *testing.T) {
	view := Aggregate(nil)

	if view != (AggregateView{}) {
		t.Errorf("Expected the zero view for nil, got %+v", view)
	}
}
