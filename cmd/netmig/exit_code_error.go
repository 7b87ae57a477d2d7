package main

// ExitCodeError wraps an error with a specific process exit code.
//
// Commands return it for failures that scripts need to tell apart from
// usage mistakes: a job that finished FAILED and a mistyped flag both
// stop the run, but only one of them is worth retrying.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// failure marks an error as an operational failure (exit code 1).
func failure(err error) error {
	if err == nil {
		return nil
	}
	return &ExitCodeError{Code: 1, Err: err}
}
