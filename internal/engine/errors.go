package engine

import "fmt"

// NotFoundError means the engine has no job with the given ID. The job may
// have expired out of the engine's retention window or never existed.
// Monitoring cannot recover from it.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job not found: %s", e.JobID)
}

// ForbiddenError means the engine rejected the caller's credentials for
// this job. Retrying with the same token cannot succeed.
type ForbiddenError struct {
	JobID string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("access to job %s is forbidden", e.JobID)
}

// TransportError wraps a network-level failure reaching the engine: refused
// connections, resets, DNS failures, truncated bodies. It says nothing
// about the job itself, which may be progressing fine server-side.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
