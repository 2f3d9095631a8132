package task

import (
	"context"
	"slices"

	"github.com/google/uuid"
)

// Task is one independent unit of work. Fields are unexported so a Task cannot
// change after construction; the stage list is shared read-only.
type Task struct {
	id          uuid.UUID
	source      string
	destination string
	stages      []Stage
	overwrite   bool
}

// New creates a Task. The stage slice is copied; the stages themselves are
// shared and must be safe for concurrent use.
func New(source, destination string, stages []Stage, overwrite bool) *Task {
	return &Task{
		id:          uuid.New(),
		source:      source,
		destination: destination,
		stages:      slices.Clone(stages),
		overwrite:   overwrite,
	}
}

// ID returns the task's unique identifier.
func (t *Task) ID() uuid.UUID { return t.id }

// Source returns the source path.
func (t *Task) Source() string { return t.source }

// Destination returns the destination path.
func (t *Task) Destination() string { return t.destination }

// Stages returns a copy of the ordered stage list.
func (t *Task) Stages() []Stage { return slices.Clone(t.stages) }

// Overwrite reports whether an existing destination may be replaced.
func (t *Task) Overwrite() bool { return t.overwrite }

// ProcessFunc executes a single task. It returns nil on success; failures
// should be *errors.TaskError values labelled with the phase that failed.
type ProcessFunc func(ctx context.Context, t *Task) error
