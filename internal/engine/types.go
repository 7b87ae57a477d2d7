package engine

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a job or phase as reported by the engine.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusPartial   Status = "PARTIAL"
)

// IsTerminal reports whether the status is final. A terminal job never
// transitions again; the engine may still answer status requests for it
// for a short retention window.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusPartial:
		return true
	}
	return false
}

// Operation names accepted by the engine's start endpoint.
const (
	OpDPSKImport      = "dpsk_import"
	OpSSIDRollout     = "ssid_rollout"
	OpControllerAudit = "controller_audit"
)

// Progress carries the engine's own counters for a job. For parallel jobs
// the engine additionally publishes a rollup over children in
// Job.ParallelProgress.
type Progress struct {
	TotalTasks      int     `json:"total_tasks,omitempty"`
	CompletedTasks  int     `json:"completed_tasks,omitempty"`
	FailedTasks     int     `json:"failed_tasks,omitempty"`
	PendingTasks    int     `json:"pending_tasks,omitempty"`
	Percent         float64 `json:"percent"`
	TotalPhases     int     `json:"total_phases,omitempty"`
	CompletedPhases int     `json:"completed_phases,omitempty"`
	FailedPhases    int     `json:"failed_phases,omitempty"`
	RunningPhases   int     `json:"running_phases,omitempty"`
	PhasePercent    float64 `json:"phase_percent,omitempty"`
	TotalItems      int     `json:"total_items,omitempty"`
	Running         int     `json:"running,omitempty"`
}

// Task is a single unit of work within a phase.
type Task struct {
	ID          string  `json:"task_id"`
	Name        string  `json:"name,omitempty"`
	Status      Status  `json:"status"`
	Error       string  `json:"error,omitempty"`
	DurationSec float64 `json:"duration_seconds,omitempty"`
}

// Phase is an ordered stage of a job (for example "validate", "push",
// "verify"). Result is left raw because its shape differs per operation.
type Phase struct {
	Name        string          `json:"name"`
	Status      Status          `json:"status"`
	Tasks       []Task          `json:"tasks,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ChildJob is the engine's summary of one child of a parallel job.
type ChildJob struct {
	ID      string  `json:"job_id"`
	Unit    string  `json:"unit,omitempty"`
	Status  Status  `json:"status"`
	Percent float64 `json:"percent,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// JobError is a backend-reported failure inside an otherwise reachable job.
// It is data, not a transport failure.
type JobError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Phase   string `json:"phase,omitempty"`
	ItemID  string `json:"item_id,omitempty"`
}

// CreatedResource identifies something the job provisioned on a controller,
// kept so an operator can locate or roll back what a run produced.
type CreatedResource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Job is the engine's full description of one job. Every status fetch
// returns the complete document; there is no partial/delta form.
type Job struct {
	ID               string            `json:"job_id"`
	Operation        string            `json:"operation,omitempty"`
	Controller       string            `json:"controller,omitempty"`
	Status           Status            `json:"status"`
	Progress         Progress          `json:"progress"`
	CurrentPhase     string            `json:"current_phase,omitempty"`
	Phases           []Phase           `json:"phases,omitempty"`
	CreatedResources []CreatedResource `json:"created_resources,omitempty"`
	Errors           []JobError        `json:"errors,omitempty"`
	Summary          string            `json:"summary,omitempty"`
	IsParallel       bool              `json:"is_parallel,omitempty"`
	ParallelProgress *Progress         `json:"parallel_progress,omitempty"`
	ChildJobs        []ChildJob        `json:"child_jobs,omitempty"`
	CreatedAt        *time.Time        `json:"created_at,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

// StartJobRequest is the body of POST /jobs/start.
type StartJobRequest struct {
	Operation  string         `json:"operation"`
	Controller string         `json:"controller,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

// StartJobResponse is the engine's acknowledgement of a started job.
type StartJobResponse struct {
	JobID string `json:"job_id"`
}

// Stream event names emitted on GET /jobs/{id}/stream.
const (
	EventConnected     = "connected"
	EventStatus        = "status"
	EventPhaseStarted  = "phase_started"
	EventPhaseComplete = "phase_completed"
	EventTaskComplete  = "task_completed"
	EventProgress      = "progress"
	EventMessage       = "message"
	EventJobStarted    = "job_started"
	EventJobCompleted  = "job_completed"
	EventJobFailed     = "job_failed"
)

// StreamEvent is one SSE frame from the job stream. Data is kept raw:
// stream payloads are advisory and consumers refetch authoritative state
// instead of decoding them.
type StreamEvent struct {
	Type string
	Data json.RawMessage
}
