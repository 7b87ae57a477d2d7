package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"netmig/internal/engine"
	"netmig/internal/monitor"
)

func TestParseListFlagInline(t *testing.T) {
	got, err := parseListFlag("wlc-east, wlc-west ,,wlc-lab")
	if err != nil {
		t.Fatalf("parseListFlag: %v", err)
	}
	want := []string{"wlc-east", "wlc-west", "wlc-lab"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestParseListFlagSingleItem(t *testing.T) {
	got, err := parseListFlag("wlc-east")
	if err != nil {
		t.Fatalf("parseListFlag: %v", err)
	}
	if len(got) != 1 || got[0] != "wlc-east" {
		t.Errorf("Expected [wlc-east], got %v", got)
	}
}

func TestParseListFlagFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "units.txt")
	content := "# third floor first\nfloor-3\n\nfloor-1\n  floor-2  \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := parseListFlag(path)
	if err != nil {
		t.Fatalf("parseListFlag: %v", err)
	}
	want := []string{"floor-3", "floor-1", "floor-2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestParseListFlagEmpty(t *testing.T) {
	got, err := parseListFlag("")
	if err != nil {
		t.Fatalf("parseListFlag: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no items, got %v", got)
	}
}

func exitCodeOf(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var coded *ExitCodeError
	if !errors.As(err, &coded) {
		t.Fatalf("Expected ExitCodeError, got %T: %v", err, err)
	}
	return coded.Code
}

func TestWatchOutcomeCompleted(t *testing.T) {
	final := &monitor.Update{
		JobID:    "job-1",
		Snapshot: &engine.Job{ID: "job-1", Status: engine.StatusCompleted},
		Finished: true,
	}
	if err := watchOutcome(context.Background(), "job-1", final); err != nil {
		t.Errorf("Expected nil for COMPLETED, got %v", err)
	}
}

func TestWatchOutcomeFailedStatuses(t *testing.T) {
	for _, status := range []engine.Status{engine.StatusFailed, engine.StatusCancelled, engine.StatusPartial} {
		final := &monitor.Update{
			JobID:    "job-1",
			Snapshot: &engine.Job{ID: "job-1", Status: status},
			Finished: true,
		}
		err := watchOutcome(context.Background(), "job-1", final)
		if code := exitCodeOf(t, err); code != 1 {
			t.Errorf("%s: expected exit code 1, got %d", status, code)
		}
	}
}

func TestWatchOutcomeMonitorError(t *testing.T) {
	cause := fmt.Errorf("stream torn down")
	err := watchOutcome(context.Background(), "job-1", &monitor.Update{JobID: "job-1", Err: cause})
	if code := exitCodeOf(t, err); code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected outcome to wrap the monitor error, got %v", err)
	}
}

func TestWatchOutcomeInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := watchOutcome(ctx, "job-1", nil)
	if code := exitCodeOf(t, err); code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
}

func TestWatchOutcomeNoFinalState(t *testing.T) {
	err := watchOutcome(context.Background(), "job-1", nil)
	if code := exitCodeOf(t, err); code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
}

func TestFailureNil(t *testing.T) {
	if failure(nil) != nil {
		t.Error("failure(nil) must be nil")
	}
}

func TestExitCodeErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := failure(cause)
	if !errors.Is(err, cause) {
		t.Error("failure must wrap its cause")
	}
	if err.Error() != "boom" {
		t.Errorf("Expected message to pass through, got %q", err.Error())
	}
}
