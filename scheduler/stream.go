package scheduler

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/ionite34/nwave/task"
)

var (
	// ErrDeadline is the cancellation cause for tasks that did not finish
	// before the stream's deadline.
	ErrDeadline = errors.New("scheduler: result deadline exceeded")
	// ErrStreamClosed is the cancellation cause for tasks left behind when a
	// stream is closed early.
	ErrStreamClosed = errors.New("scheduler: result stream closed")
)

// StreamOption configures a result Stream.
type StreamOption func(*Stream)

// WithTimeout bounds how long the stream waits for results. By default the
// bound is a single deadline computed when the first result is requested.
// A zero timeout cancels every task that has not already finished.
func WithTimeout(d time.Duration) StreamOption {
	return func(st *Stream) {
		st.timeout = max(d, 0)
		st.bounded = true
	}
}

// WithPerTaskTimeout applies the timeout to each result separately instead
// of to the stream as a whole.
func WithPerTaskTimeout() StreamOption {
	return func(st *Stream) { st.perTask = true }
}

// Stream drains results from a Scheduler in the order tasks were scheduled.
// A Stream is not safe for concurrent use.
type Stream struct {
	s        *Scheduler
	timeout  time.Duration
	bounded  bool
	perTask  bool
	deadline time.Time
	started  bool
	done     bool
}

// Results returns a stream over the scheduler's pending results. Every
// result drawn is removed from the pending set.
func (s *Scheduler) Results(opts ...StreamOption) *Stream {
	st := &Stream{s: s}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Len returns the number of results the stream can still yield.
func (st *Stream) Len() int {
	if st.done {
		return 0
	}
	return st.s.Pending()
}

// Next returns the next result in submission order. ok is false once no
// pending results remain. A task that misses the deadline is cancelled and
// reported as cancelled. If ctx ends, every remaining task is cancelled and
// ctx's error is returned.
func (st *Stream) Next(ctx context.Context) (task.Result, bool, error) {
	if st.done {
		return task.Result{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		st.abort(err)
		return task.Result{}, false, err
	}
	if !st.started {
		st.started = true
		if st.bounded && !st.perTask {
			st.deadline = time.Now().Add(st.timeout)
		}
	}

	rec := st.s.popPending()
	if rec == nil {
		st.done = true
		return task.Result{}, false, nil
	}

	if !st.bounded {
		select {
		case <-rec.done:
			return rec.result(), true, nil
		case <-ctx.Done():
			return st.fail(ctx, rec)
		}
	}

	budget := st.timeout
	if !st.perTask {
		budget = time.Until(st.deadline)
	}
	if budget <= 0 {
		return rec.requestCancel(ErrDeadline), true, nil
	}

	timer := time.NewTimer(budget)
	defer timer.Stop()
	select {
	case <-rec.done:
		return rec.result(), true, nil
	case <-timer.C:
		return rec.requestCancel(ErrDeadline), true, nil
	case <-ctx.Done():
		return st.fail(ctx, rec)
	}
}

// Close cancels and discards every result the stream has not yielded.
func (st *Stream) Close() error {
	if st.done {
		return nil
	}
	st.abort(ErrStreamClosed)
	return nil
}

// All iterates the remaining results. A non-nil error is yielded once as
// the final element. Breaking out of the loop closes the stream.
func (st *Stream) All(ctx context.Context) iter.Seq2[task.Result, error] {
	return func(yield func(task.Result, error) bool) {
		defer st.Close()
		for {
			r, ok, err := st.Next(ctx)
			if err != nil {
				yield(task.Result{}, err)
				return
			}
			if !ok || !yield(r, nil) {
				return
			}
		}
	}
}

func (st *Stream) fail(ctx context.Context, rec *record) (task.Result, bool, error) {
	err := ctx.Err()
	rec.requestCancel(err)
	st.abort(err)
	return task.Result{}, false, err
}

func (st *Stream) abort(cause error) {
	st.done = true
	st.s.discardPending(cause)
}

// Collect drains every pending result into a slice in submission order.
func (s *Scheduler) Collect(ctx context.Context, opts ...StreamOption) ([]task.Result, error) {
	st := s.Results(opts...)
	defer st.Close()

	results := make([]task.Result, 0, st.Len())
	for {
		r, ok, err := st.Next(ctx)
		if err != nil {
			return results, err
		}
		if !ok {
			return results, nil
		}
		results = append(results, r)
	}
}
