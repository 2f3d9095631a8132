package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ionite34/nwave/component"
	nwerrors "github.com/ionite34/nwave/errors"
	"github.com/ionite34/nwave/logger"
	"github.com/ionite34/nwave/observability"
	"github.com/ionite34/nwave/task"
)

// ComponentName is the name the scheduler registers under.
const ComponentName = "scheduler"

var (
	// ErrClosed is returned when scheduling on a closed scheduler.
	ErrClosed = errors.New("scheduler: closed")
	// ErrAbandoned is the cancellation cause for work discarded by Close.
	ErrAbandoned = errors.New("scheduler: closed before task finished")
)

// Scheduler runs tasks concurrently and tracks their pending results in
// submission order. It is safe for concurrent use.
type Scheduler struct {
	process task.ProcessFunc
	cfg     Config
	log     *logger.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*record // not yet picked up by a worker
	pending []*record // not yet drained by a stream
	running int
	closed  bool
}

var _ component.Component = (*Scheduler)(nil)

// New creates a scheduler and starts its workers. process is invoked once
// per scheduled task.
func New(process task.ProcessFunc, opts ...Option) *Scheduler {
	s := &Scheduler{process: process}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg.ApplyDefaults()
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.WithComponent(ComponentName)
	if s.tracer == nil {
		s.tracer = observability.Tracer(observability.TracerName)
	}
	s.cond = sync.NewCond(&s.mu)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(s.cfg.Workers)
	for range s.cfg.Workers {
		go s.worker()
	}

	s.log.Debug("scheduler started", logger.Fields(logger.FieldWorkers, s.cfg.Workers))
	return s
}

// Use creates a scheduler, passes it to fn and closes it when fn returns.
func Use(process task.ProcessFunc, fn func(*Scheduler) error, opts ...Option) error {
	s := New(process, opts...)
	err := fn(s)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Workers returns the size of the worker pool.
func (s *Scheduler) Workers() int { return s.cfg.Workers }

// Schedule submits tasks for execution. It never blocks on task execution.
// Each task adds exactly one pending result.
func (s *Scheduler) Schedule(tasks ...*task.Task) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	for _, t := range tasks {
		if t == nil {
			continue
		}
		rec := newRecord(s.ctx, t)
		s.queue = append(s.queue, rec)
		s.pending = append(s.pending, rec)
	}
	pending := len(s.pending)
	s.mu.Unlock()
	s.cond.Broadcast()

	s.metrics.RecordTaskScheduled(context.Background(), len(tasks))
	s.log.Debug("tasks scheduled", logger.Fields(
		"count", len(tasks),
		logger.FieldPending, pending,
	))
	return nil
}

// Pending returns the number of results not yet drained.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Running returns the number of tasks currently executing.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Closed reports whether Close has been called.
func (s *Scheduler) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops the scheduler. With DrainOnClose it waits for all scheduled
// tasks to finish; otherwise outstanding tasks are cancelled and Close
// returns without waiting for running ones. Close is idempotent.
func (s *Scheduler) Close() error {
	return s.Shutdown(context.Background())
}

// Shutdown is Close bounded by ctx. If ctx ends while draining, the
// remaining work is cancelled and ctx's error is returned.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()

	if !s.cfg.DrainOnClose {
		s.abandon(ErrAbandoned)
		s.log.Debug("scheduler closed", logger.Fields(logger.FieldPending, s.Pending()))
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		s.log.Debug("scheduler drained", logger.Fields(logger.FieldPending, s.Pending()))
		return nil
	case <-ctx.Done():
		s.abandon(ctx.Err())
		return ctx.Err()
	}
}

// abandon cancels every queued and running task and stops the workers.
// Cancellation happens under mu so no worker can dequeue a task midway.
func (s *Scheduler) abandon(cause error) {
	s.mu.Lock()
	for _, rec := range s.pending {
		rec.requestCancel(cause)
	}
	dropped := len(s.queue)
	for _, rec := range s.queue {
		rec.requestCancel(cause)
	}
	s.queue = nil
	s.mu.Unlock()
	s.cond.Broadcast()

	ctx := context.Background()
	for range dropped {
		s.metrics.RecordTaskDropped(ctx)
	}
	s.cancel()
}

// Name implements component.Component.
func (s *Scheduler) Name() string { return ComponentName }

// Start implements component.Component. Workers start in New, so Start only
// reports whether the scheduler can accept work.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.Closed() {
		return ErrClosed
	}
	return nil
}

// Stop implements component.Component.
func (s *Scheduler) Stop(ctx context.Context) error {
	return s.Shutdown(ctx)
}

// Health implements component.Component.
func (s *Scheduler) Health(ctx context.Context) component.Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := component.Health{
		Name:    ComponentName,
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("workers=%d running=%d pending=%d", s.cfg.Workers, s.running, len(s.pending)),
	}
	if s.closed {
		h.Status = component.StatusUnhealthy
		h.Message = "closed"
	}
	return h
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		rec, ok := s.next()
		if !ok {
			return
		}
		s.run(rec)
	}
}

// next blocks until a task is queued. It returns false once the scheduler
// is closed and the queue is empty.
func (s *Scheduler) next() (*record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return nil, false
	}
	rec := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return rec, true
}

func (s *Scheduler) run(rec *record) {
	if !rec.start() {
		s.metrics.RecordTaskDropped(context.Background())
		return
	}
	s.mu.Lock()
	s.running++
	s.mu.Unlock()

	t := rec.task
	log := s.log.WithFields(logger.TaskFields(t.ID().String(), t.Source(), t.Destination()))
	ctx, span := s.tracer.Start(rec.ctx, observability.SpanTask,
		trace.WithAttributes(observability.TaskAttributes(t.ID().String(), t.Source(), t.Destination())...))
	s.metrics.RecordTaskStart(ctx)
	started := time.Now()

	err := s.invoke(ctx, t)
	state := rec.finish(err)
	elapsed := time.Since(started)

	outcome := state.String()
	observability.EndTaskSpan(span, outcome, rec.result().Err)
	s.metrics.RecordTaskEnd(context.Background(), outcome, elapsed)

	s.mu.Lock()
	s.running--
	s.mu.Unlock()

	fields := logger.MergeWithDuration(logger.Fields(logger.FieldOutcome, outcome), elapsed)
	switch state {
	case StateFailed:
		log.Warn("task failed", logger.MergeWithError(fields, err))
	default:
		log.Debug("task finished", fields)
	}
}

// invoke runs process, turning a panic into a failure.
func (s *Scheduler) invoke(ctx context.Context, t *task.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &task.PanicError{Value: r}
		}
	}()
	if err := ctx.Err(); err != nil {
		return nwerrors.Cancelled(err)
	}
	return s.process(ctx, t)
}

// popPending removes and returns the oldest pending record.
func (s *Scheduler) popPending() *record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	rec := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	return rec
}

// discardPending removes every pending record and cancels the unresolved
// ones.
func (s *Scheduler) discardPending(cause error) int {
	s.mu.Lock()
	recs := s.pending
	s.pending = nil
	for _, rec := range recs {
		rec.requestCancel(cause)
	}
	s.mu.Unlock()

	if len(recs) > 0 {
		s.log.Debug("pending results discarded", logger.Fields(
			"count", len(recs),
			logger.FieldError, cause.Error(),
		))
	}
	return len(recs)
}
