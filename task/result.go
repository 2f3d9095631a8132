package task

import (
	"fmt"

	nwerrors "github.com/ionite34/nwave/errors"
)

// Status is the terminal outcome of a task.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Result is the immutable outcome of executing one Task.
type Result struct {
	Task *Task
	Err  error
}

// Success reports whether the task completed without error.
func (r Result) Success() bool { return r.Err == nil }

// Status classifies the result as completed, cancelled or failed.
func (r Result) Status() Status {
	switch {
	case r.Err == nil:
		return StatusCompleted
	case nwerrors.IsCancelled(r.Err):
		return StatusCancelled
	default:
		return StatusFailed
	}
}

// String renders the task paths followed by its outcome.
func (r Result) String() string {
	var status string
	switch r.Status() {
	case StatusCompleted:
		status = "[Completed]"
	case StatusCancelled:
		status = "[Cancelled]"
	default:
		status = fmt.Sprintf("[Failed]: %v", r.Err)
	}
	return fmt.Sprintf("Task: %s -> %s\n%s", r.Task.Source(), r.Task.Destination(), status)
}
