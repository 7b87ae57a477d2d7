package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"netmig/internal/engine"
	apperrors "netmig/internal/errors"
	"netmig/internal/fleet"
	"netmig/internal/monitor"
)

// renderer turns monitor updates into console output. On a TTY the
// running progress line is rewritten in place; anywhere else every
// accepted snapshot prints its own line so piped output stays readable.
type renderer struct {
	out       io.Writer
	tty       bool
	verbose   bool
	liveWidth int
	notesSeen int
	started   time.Time
}

func newRenderer(out io.Writer, tty, verbose bool) *renderer {
	return &renderer{out: out, tty: tty, verbose: verbose, started: time.Now()}
}

// Update renders one monitor update.
func (r *renderer) Update(update monitor.Update) {
	if r.verbose && len(update.Notes) > r.notesSeen {
		r.endLive()
		r.printNewNotes(update.Notes)
	}

	if update.Err != nil {
		// The outcome handler reports the error; just release the line.
		r.endLive()
		return
	}
	if update.Snapshot == nil {
		return
	}

	if update.Finished {
		r.endLive()
		r.finish(update.Snapshot, update.View)
		return
	}

	line := progressLine(update.Snapshot, update.View)
	if r.tty {
		r.rewrite(line)
	} else {
		fmt.Fprintln(r.out, line)
	}
}

// Snapshot prints a one-shot view of a job without watching it.
func (r *renderer) Snapshot(job *engine.Job, view monitor.AggregateView) {
	fmt.Fprintf(r.out, "%s %5.1f%%  job %s%s\n", paintStatus(job.Status), view.Percent, job.ID, jobOrigin(job))
	r.details(job, view)
}

func (r *renderer) finish(job *engine.Job, view monitor.AggregateView) {
	fmt.Fprintf(r.out, "%s in %s  job %s%s\n",
		paintStatus(job.Status), formatDuration(r.elapsed(job)), job.ID, jobOrigin(job))
	r.details(job, view)
}

func (r *renderer) details(job *engine.Job, view monitor.AggregateView) {
	if counters := counterLine(job, view); counters != "" {
		fmt.Fprintf(r.out, "  %s\n", counters)
	}

	r.printResources(job.CreatedResources)
	r.printChildFailures(job)
	r.printErrors(job.Errors)

	if job.Summary != "" {
		fmt.Fprintf(r.out, "  %s\n", job.Summary)
	}
}

// progressLine is deliberately uncolored; it is rewritten in place on a
// TTY and padding math needs the visible width.
func progressLine(job *engine.Job, view monitor.AggregateView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-9s %5.1f%%  job %s", job.Status, view.Percent, job.ID)
	if counters := counterLine(job, view); counters != "" {
		fmt.Fprintf(&b, "  %s", counters)
	}
	return b.String()
}

func counterLine(job *engine.Job, view monitor.AggregateView) string {
	var parts []string

	if view.Parallel {
		parts = append(parts, fmt.Sprintf("units %d/%d done", view.CompletedChildren, view.TotalChildren))
		if view.FailedChildren > 0 {
			parts = append(parts, fmt.Sprintf("%d failed", view.FailedChildren))
		}
		if view.RunningChildren > 0 {
			parts = append(parts, fmt.Sprintf("%d running", view.RunningChildren))
		}
		return strings.Join(parts, ", ")
	}

	if job.Progress.TotalTasks > 0 {
		parts = append(parts, fmt.Sprintf("tasks %d/%d", job.Progress.CompletedTasks, job.Progress.TotalTasks))
		if job.Progress.FailedTasks > 0 {
			parts = append(parts, fmt.Sprintf("%d failed", job.Progress.FailedTasks))
		}
	}
	if view.TotalPhases > 0 {
		parts = append(parts, fmt.Sprintf("phases %d/%d", view.CompletedPhases, view.TotalPhases))
	}
	if job.CurrentPhase != "" && !job.Status.IsTerminal() {
		parts = append(parts, fmt.Sprintf("in %s", job.CurrentPhase))
	}
	return strings.Join(parts, ", ")
}

func (r *renderer) printResources(resources []engine.CreatedResource) {
	if len(resources) == 0 {
		return
	}

	if r.verbose {
		fmt.Fprintf(r.out, "  created %d resources:\n", len(resources))
		for _, res := range resources {
			name := res.Name
			if name == "" {
				name = res.ID
			}
			fmt.Fprintf(r.out, "    %s %s\n", res.Type, name)
		}
		return
	}

	counts := make(map[string]int)
	for _, res := range resources {
		counts[res.Type]++
	}
	types := make([]string, 0, len(counts))
	for typ := range counts {
		types = append(types, typ)
	}
	sort.Strings(types)

	var parts []string
	for _, typ := range types {
		parts = append(parts, fmt.Sprintf("%d %s", counts[typ], typ))
	}
	fmt.Fprintf(r.out, "  created: %s\n", strings.Join(parts, ", "))
}

func (r *renderer) printChildFailures(job *engine.Job) {
	if !job.IsParallel {
		return
	}
	for _, child := range job.ChildJobs {
		if child.Status != engine.StatusFailed {
			continue
		}
		detail := child.Error
		if detail == "" {
			detail = "failed"
		}
		fmt.Fprintf(r.out, "  %s unit %s: %s\n", red("✗"), child.Unit, detail)
	}
}

const maxErrorLines = 5

func (r *renderer) printErrors(jobErrors []engine.JobError) {
	if len(jobErrors) == 0 {
		return
	}

	fmt.Fprintf(r.out, "  errors (%d):\n", len(jobErrors))
	shown := len(jobErrors)
	if !r.verbose && shown > maxErrorLines {
		shown = maxErrorLines
	}
	for _, jobErr := range jobErrors[:shown] {
		var b strings.Builder
		if jobErr.Code != "" {
			fmt.Fprintf(&b, "[%s] ", jobErr.Code)
		}
		b.WriteString(jobErr.Message)
		if jobErr.Phase != "" {
			fmt.Fprintf(&b, " (phase %s)", jobErr.Phase)
		}
		if jobErr.ItemID != "" {
			fmt.Fprintf(&b, " item %s", jobErr.ItemID)
		}
		fmt.Fprintf(r.out, "    %s\n", b.String())
	}
	if shown < len(jobErrors) {
		fmt.Fprintf(r.out, "    %s\n", gray(fmt.Sprintf("... and %d more (use --verbose)", len(jobErrors)-shown)))
	}
}

func (r *renderer) printNewNotes(notes []monitor.NoteEntry) {
	for ; r.notesSeen < len(notes); r.notesSeen++ {
		note := notes[r.notesSeen]
		fmt.Fprintln(r.out, gray(fmt.Sprintf("  %s %s", note.At.Format("15:04:05"), note.Text)))
	}
}

func (r *renderer) rewrite(line string) {
	pad := ""
	if n := len(line); n < r.liveWidth {
		pad = strings.Repeat(" ", r.liveWidth-n)
	}
	fmt.Fprintf(r.out, "\r%s%s", line, pad)
	r.liveWidth = len(line)
}

func (r *renderer) endLive() {
	if r.liveWidth == 0 {
		return
	}
	fmt.Fprintf(r.out, "\r%s\r", strings.Repeat(" ", r.liveWidth))
	r.liveWidth = 0
}

func (r *renderer) elapsed(job *engine.Job) time.Duration {
	if job.CreatedAt != nil && job.CompletedAt != nil {
		if d := job.CompletedAt.Sub(*job.CreatedAt); d > 0 {
			return d
		}
	}
	return time.Since(r.started)
}

func jobOrigin(job *engine.Job) string {
	switch {
	case job.Operation != "" && job.Controller != "":
		return fmt.Sprintf(" (%s on %s)", job.Operation, job.Controller)
	case job.Operation != "":
		return fmt.Sprintf(" (%s)", job.Operation)
	default:
		return ""
	}
}

func paintStatus(status engine.Status) string {
	s := string(status)
	switch status {
	case engine.StatusCompleted:
		return green(s)
	case engine.StatusFailed:
		return red(s)
	case engine.StatusCancelled, engine.StatusPartial:
		return yellow(s)
	case engine.StatusRunning:
		return cyan(s)
	default:
		return s
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%.0fms", d.Seconds()*1000)
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

// renderAuditSummary prints the per-controller result table. The table
// itself is uncolored; tabwriter counts ANSI escapes as cell width.
func renderAuditSummary(out io.Writer, summary fleet.Summary) {
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONTROLLER\tJOB\tSTATUS\tPERCENT\tDETAIL")
	for _, result := range summary.Results {
		jobID := result.JobID
		if jobID == "" {
			jobID = "-"
		}
		status := "-"
		percent := "-"
		if result.Status != "" {
			status = string(result.Status)
			percent = fmt.Sprintf("%.0f%%", result.Percent)
		}
		detail := ""
		if result.Err != nil {
			detail = apperrors.FormatForOperator(result.Err)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", result.Controller, jobID, status, percent, detail)
	}
	w.Flush()

	var parts []string
	if summary.Completed > 0 {
		parts = append(parts, green(fmt.Sprintf("%d completed", summary.Completed)))
	}
	if summary.Failed > 0 {
		parts = append(parts, red(fmt.Sprintf("%d failed", summary.Failed)))
	}
	if summary.Partial > 0 {
		parts = append(parts, yellow(fmt.Sprintf("%d partial", summary.Partial)))
	}
	if summary.Cancelled > 0 {
		parts = append(parts, yellow(fmt.Sprintf("%d cancelled", summary.Cancelled)))
	}
	if summary.Errored > 0 {
		parts = append(parts, red(fmt.Sprintf("%d errored", summary.Errored)))
	}
	fmt.Fprintf(out, "\n%s of %d controllers", strings.Join(parts, ", "), summary.Total)
	if worst := summary.Worst(); worst != "" && worst != engine.StatusCompleted {
		fmt.Fprintf(out, "  worst %s", paintStatus(worst))
	}
	fmt.Fprintln(out)
}
