package scheduler

import (
	"context"
	"sync"

	nwerrors "github.com/ionite34/nwave/errors"
	"github.com/ionite34/nwave/task"
)

// State is the lifecycle state of a scheduled task.
type State int

const (
	StateQueued State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool { return s >= StateCompleted }

// record links a task to its in-flight execution. The terminal state is set
// exactly once; done is closed at that moment.
type record struct {
	task   *task.Task
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu              sync.Mutex
	state           State
	cancelRequested bool
	cancelCause     error
	err             error
}

func newRecord(parent context.Context, t *task.Task) *record {
	ctx, cancel := context.WithCancel(parent)
	return &record{
		task:   t,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateQueued,
	}
}

// start moves a queued record to running. It returns false when the record
// was cancelled before a worker picked it up.
func (r *record) start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateQueued {
		return false
	}
	r.state = StateRunning
	return true
}

// finish resolves a running record with the outcome of process. A record
// whose cancellation was requested while running resolves as cancelled no
// matter what process returned.
func (r *record) finish(err error) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return r.state
	}
	switch {
	case r.cancelRequested:
		r.resolve(StateCancelled, nwerrors.Cancelled(r.cancelCause))
	case err == nil:
		r.resolve(StateCompleted, nil)
	case nwerrors.IsCancelled(err):
		r.resolve(StateCancelled, err)
	case r.ctx.Err() != nil:
		r.resolve(StateCancelled, nwerrors.Cancelled(err))
	default:
		r.resolve(StateFailed, err)
	}
	return r.state
}

// requestCancel marks the record for cancellation. A queued record is
// resolved immediately and will never start; a running one is signalled
// through its context. It returns the result to report for the record.
func (r *record) requestCancel(cause error) task.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return task.Result{Task: r.task, Err: r.err}
	}
	if !r.cancelRequested {
		r.cancelRequested = true
		r.cancelCause = cause
		r.cancel()
	}
	if r.state == StateQueued {
		r.resolve(StateCancelled, nwerrors.Cancelled(cause))
		return task.Result{Task: r.task, Err: r.err}
	}
	return task.Result{Task: r.task, Err: nwerrors.Cancelled(cause)}
}

// resolve must be called with mu held.
func (r *record) resolve(state State, err error) {
	r.state = state
	r.err = err
	r.cancel()
	close(r.done)
}

// result returns the resolved outcome. Only valid after done is closed.
func (r *record) result() task.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return task.Result{Task: r.task, Err: r.err}
}
