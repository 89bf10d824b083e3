package orchestrator

import (
	"errors"
	"fmt"
)

// ErrNoActiveJob is returned by Cancel when no running job carries a remote
// job id that could be cancelled.
var ErrNoActiveJob = errors.New("no active job to cancel")

// ValidationError rejects a launch before any remote call is made. No job
// record is created.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// LaunchError means the remote start call was rejected or failed. The job
// record has already been marked error and no poller was started.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch failed: %v", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// CancellationError means the cancel request itself failed. The job's local
// state is untouched and its poller keeps running, since the remote run may
// still be executing.
type CancellationError struct {
	Err error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancel failed: %v", e.Err)
}

func (e *CancellationError) Unwrap() error {
	return e.Err
}
