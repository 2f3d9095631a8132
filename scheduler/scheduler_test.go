package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ionite34/nwave/audio"
	"github.com/ionite34/nwave/component"
	"github.com/ionite34/nwave/effects"
	nwerrors "github.com/ionite34/nwave/errors"
	"github.com/ionite34/nwave/logger"
	"github.com/ionite34/nwave/observability"
	"github.com/ionite34/nwave/task"
	"github.com/ionite34/nwave/testutil"
)

const waitLimit = 5 * time.Second

// fakeProcess dispatches on the task source and records which tasks ran.
type fakeProcess struct {
	mu        sync.Mutex
	behaviour map[string]func(ctx context.Context) error
	started   []string
	cancelled atomic.Int32
	startedCh chan string
}

func newFake() *fakeProcess {
	return &fakeProcess{
		behaviour: make(map[string]func(ctx context.Context) error),
		startedCh: make(chan string, 64),
	}
}

func (f *fakeProcess) set(source string, fn func(ctx context.Context) error) {
	f.behaviour[source] = fn
}

func (f *fakeProcess) process(ctx context.Context, t *task.Task) error {
	f.mu.Lock()
	f.started = append(f.started, t.Source())
	fn := f.behaviour[t.Source()]
	f.mu.Unlock()
	f.startedCh <- t.Source()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (f *fakeProcess) startedSet() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(f.started))
	for _, s := range f.started {
		out[s] = true
	}
	return out
}

// block waits for cancellation and counts it.
func (f *fakeProcess) block(ctx context.Context) error {
	<-ctx.Done()
	f.cancelled.Add(1)
	return ctx.Err()
}

func waitFor(gate <-chan struct{}) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func makeTasks(n int) []*task.Task {
	tasks := make([]*task.Task, n)
	for i := range tasks {
		tasks[i] = task.New(source(i), fmt.Sprintf("out%d.wav", i), nil, false)
	}
	return tasks
}

func source(i int) string { return fmt.Sprintf("in%d.wav", i) }

func awaitStart(t *testing.T, f *fakeProcess) string {
	t.Helper()
	select {
	case name := <-f.startedCh:
		return name
	case <-time.After(waitLimit):
		t.Fatal("timed out waiting for a task to start")
		return ""
	}
}

func assertStatuses(t *testing.T, results []task.Result, tasks []*task.Task, want ...task.Status) {
	t.Helper()
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, r := range results {
		if r.Task != tasks[i] {
			t.Errorf("result %d: expected task %s, got %s", i, tasks[i].Source(), r.Task.Source())
		}
		if r.Status() != want[i] {
			t.Errorf("result %d (%s): expected %s, got %s (%v)", i, r.Task.Source(), want[i], r.Status(), r.Err)
		}
	}
}

func repeat(s task.Status, n int) []task.Status {
	out := make([]task.Status, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func TestDefaultWorkers(t *testing.T) {
	n := DefaultWorkers()
	if n < 5 || n > MaxDefaultWorkers {
		t.Errorf("expected min(32, cpu+4), got %d", n)
	}
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.Workers != n {
		t.Errorf("expected default workers %d, got %d", n, cfg.Workers)
	}
	s := New(func(context.Context, *task.Task) error { return nil }, WithConfig(Config{Workers: 3}))
	defer s.Close()
	if s.Workers() != 3 {
		t.Errorf("expected 3 workers, got %d", s.Workers())
	}
}

func TestSchedule_PendingAndCollect(t *testing.T) {
	gate := make(chan struct{})
	f := newFake()
	tasks := makeTasks(5)
	for i := range tasks {
		f.set(source(i), waitFor(gate))
	}

	s := New(f.process, WithWorkers(2), WithLogger(logger.Nop()))
	defer s.Close()

	if err := s.Schedule(tasks...); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if s.Pending() != 5 {
		t.Errorf("expected 5 pending, got %d", s.Pending())
	}

	close(gate)
	results, err := s.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	assertStatuses(t, results, tasks, repeat(task.StatusCompleted, 5)...)
	if s.Pending() != 0 {
		t.Errorf("expected no pending results, got %d", s.Pending())
	}
}

func TestResults_SubmissionOrder(t *testing.T) {
	gate := make(chan struct{})
	secondDone := make(chan struct{})
	f := newFake()
	f.set(source(0), waitFor(gate))
	f.set(source(1), func(context.Context) error {
		close(secondDone)
		return nil
	})

	s := New(f.process, WithWorkers(2))
	defer s.Close()
	tasks := makeTasks(2)
	_ = s.Schedule(tasks...)

	select {
	case <-secondDone:
	case <-time.After(waitLimit):
		t.Fatal("second task never ran")
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(gate)
	}()

	st := s.Results()
	ctx := context.Background()
	for i, want := range tasks {
		r, ok, err := st.Next(ctx)
		if err != nil || !ok {
			t.Fatalf("Next %d: ok=%v err=%v", i, ok, err)
		}
		if r.Task != want {
			t.Errorf("result %d: expected %s, got %s", i, want.Source(), r.Task.Source())
		}
		if !r.Success() {
			t.Errorf("result %d: expected success, got %v", i, r.Err)
		}
	}
	if _, ok, _ := st.Next(ctx); ok {
		t.Error("expected stream to be exhausted")
	}
}

func TestResults_ZeroTimeoutCancelsEverything(t *testing.T) {
	f := newFake()
	tasks := makeTasks(3)
	for i := range tasks {
		f.set(source(i), f.block)
	}

	s := New(f.process, WithWorkers(1))
	_ = s.Schedule(tasks...)
	awaitStart(t, f)

	results, err := s.Collect(context.Background(), WithTimeout(0))
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	assertStatuses(t, results, tasks, repeat(task.StatusCancelled, 3)...)
	for _, r := range results {
		if !errors.Is(r.Err, ErrDeadline) {
			t.Errorf("expected deadline cause, got %v", r.Err)
		}
	}
	if s.Pending() != 0 {
		t.Errorf("expected no pending results, got %d", s.Pending())
	}

	_ = s.Close()
	testutil.Eventually(t, waitLimit, func() bool {
		return int(f.cancelled.Load()) == len(f.startedSet())
	}, "every started task should observe cancellation")
}

func TestResults_GlobalDeadline(t *testing.T) {
	f := newFake()
	tasks := makeTasks(8)
	for i := range tasks {
		f.set(source(i), f.block)
	}
	s := New(f.process, WithWorkers(2))
	defer s.Close()
	_ = s.Schedule(tasks...)

	start := time.Now()
	results, err := s.Collect(context.Background(), WithTimeout(50*time.Millisecond))
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	assertStatuses(t, results, tasks, repeat(task.StatusCancelled, 8)...)
	if elapsed >= 350*time.Millisecond {
		t.Errorf("a single deadline should bound the whole stream, took %v", elapsed)
	}
}

func TestResults_PerTaskTimeout(t *testing.T) {
	f := newFake()
	tasks := makeTasks(3)
	for i := range tasks {
		f.set(source(i), f.block)
	}
	s := New(f.process, WithWorkers(3))
	defer s.Close()
	_ = s.Schedule(tasks...)

	start := time.Now()
	results, err := s.Collect(context.Background(), WithTimeout(30*time.Millisecond), WithPerTaskTimeout())
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	assertStatuses(t, results, tasks, repeat(task.StatusCancelled, 3)...)
	if elapsed < 90*time.Millisecond {
		t.Errorf("each task should get its own timeout, took only %v", elapsed)
	}
}

func TestResults_DeadlineKeepsFinishedResults(t *testing.T) {
	f := newFake()
	f.set(source(1), f.block)
	s := New(f.process, WithWorkers(2))
	defer s.Close()
	tasks := makeTasks(2)
	_ = s.Schedule(tasks...)

	results, err := s.Collect(context.Background(), WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	assertStatuses(t, results, tasks, task.StatusCompleted, task.StatusCancelled)
}

func TestStream_CloseCancelsRemaining(t *testing.T) {
	f := newFake()
	tasks := makeTasks(4)
	for i := 1; i < len(tasks); i++ {
		f.set(source(i), f.block)
	}
	s := New(f.process, WithWorkers(2))
	_ = s.Schedule(tasks...)

	st := s.Results()
	r, ok, err := st.Next(context.Background())
	if err != nil || !ok || r.Task != tasks[0] || !r.Success() {
		t.Fatalf("expected first task to complete, got %v ok=%v err=%v", r.Err, ok, err)
	}
	if st.Len() != 3 {
		t.Errorf("expected 3 results left, got %d", st.Len())
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if st.Len() != 0 || s.Pending() != 0 {
		t.Errorf("expected nothing pending after close, got stream=%d scheduler=%d", st.Len(), s.Pending())
	}
	if _, ok, _ := st.Next(context.Background()); ok {
		t.Error("closed stream must not yield")
	}

	_ = s.Close()
	testutil.Eventually(t, waitLimit, func() bool {
		return int(f.cancelled.Load()) == len(f.startedSet())-1
	}, "every running task should observe cancellation")
	if f.startedSet()[source(3)] {
		t.Error("a queued task must never start once abandoned")
	}
}

func TestStream_AllBreakEarly(t *testing.T) {
	f := newFake()
	tasks := makeTasks(3)
	f.set(source(1), f.block)
	f.set(source(2), f.block)
	s := New(f.process, WithWorkers(1))
	defer s.Close()
	_ = s.Schedule(tasks...)

	var seen []task.Result
	for r, err := range s.Results().All(context.Background()) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen = append(seen, r)
		break
	}
	if len(seen) != 1 || seen[0].Task != tasks[0] {
		t.Fatalf("expected the first result only, got %d", len(seen))
	}
	if s.Pending() != 0 {
		t.Errorf("breaking out of All should discard the rest, %d pending", s.Pending())
	}
}

func TestResults_FailuresDoNotStopScheduler(t *testing.T) {
	f := newFake()
	f.set(source(1), func(context.Context) error {
		return nwerrors.LoadFailure(source(1), errors.New("not a wav file"))
	})
	s := New(f.process, WithWorkers(2))
	defer s.Close()
	tasks := makeTasks(3)
	_ = s.Schedule(tasks...)

	results, err := s.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	assertStatuses(t, results, tasks, task.StatusCompleted, task.StatusFailed, task.StatusCompleted)
	if got := results[1].Err.Error(); got != "During File Loading -> LoadFailure: not a wav file" {
		t.Errorf("unexpected failure message %q", got)
	}

	more := task.New("late.wav", "late-out.wav", nil, false)
	if err := s.Schedule(more); err != nil {
		t.Fatalf("Schedule after failure: %v", err)
	}
	results, _ = s.Collect(context.Background())
	if len(results) != 1 || !results[0].Success() {
		t.Errorf("expected scheduler to keep working, got %v", results)
	}
}

func TestResults_PanicIsFailure(t *testing.T) {
	f := newFake()
	f.set(source(0), func(context.Context) error { panic("index out of range") })
	s := New(f.process, WithWorkers(1))
	defer s.Close()
	tasks := makeTasks(2)
	_ = s.Schedule(tasks...)

	results, err := s.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	assertStatuses(t, results, tasks, task.StatusFailed, task.StatusCompleted)
	var pe *task.PanicError
	if !errors.As(results[0].Err, &pe) {
		t.Errorf("expected PanicError, got %T", results[0].Err)
	}
}

func TestResults_ContextCancelledIsHardError(t *testing.T) {
	f := newFake()
	tasks := makeTasks(3)
	for i := range tasks {
		f.set(source(i), f.block)
	}
	s := New(f.process, WithWorkers(3))
	defer s.Close()
	_ = s.Schedule(tasks...)
	awaitStart(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	results, err := s.Collect(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
	if s.Pending() != 0 {
		t.Errorf("expected remaining records to be discarded, %d pending", s.Pending())
	}
	testutil.Eventually(t, waitLimit, func() bool {
		return int(f.cancelled.Load()) == len(f.startedSet())
	}, "running tasks should be cancelled")
}

func TestClose_Drain(t *testing.T) {
	var done atomic.Int32
	process := func(ctx context.Context, _ *task.Task) error {
		time.Sleep(10 * time.Millisecond)
		done.Add(1)
		return nil
	}
	s := New(process, WithWorkers(2), WithDrainOnClose(true))
	tasks := makeTasks(4)
	_ = s.Schedule(tasks...)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if done.Load() != 4 {
		t.Errorf("drain should wait for all tasks, %d finished", done.Load())
	}

	results, err := s.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	assertStatuses(t, results, tasks, repeat(task.StatusCompleted, 4)...)
}

func TestClose_Abandon(t *testing.T) {
	f := newFake()
	tasks := makeTasks(4)
	for i := range tasks {
		f.set(source(i), f.block)
	}
	s := New(f.process, WithWorkers(2))
	_ = s.Schedule(tasks...)
	awaitStart(t, f)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	results, err := s.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	assertStatuses(t, results, tasks, repeat(task.StatusCancelled, 4)...)
	for _, r := range results {
		if !errors.Is(r.Err, ErrAbandoned) {
			t.Errorf("expected abandoned cause, got %v", r.Err)
		}
	}
}

func TestShutdown_ContextEndsDrain(t *testing.T) {
	f := newFake()
	f.set(source(0), f.block)
	s := New(f.process, WithWorkers(1), WithDrainOnClose(true))
	_ = s.Schedule(makeTasks(1)...)
	awaitStart(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	testutil.Eventually(t, waitLimit, func() bool { return f.cancelled.Load() == 1 }, "running task should be cancelled")
}

func TestSchedule_AfterClose(t *testing.T) {
	s := New(func(context.Context, *task.Task) error { return nil }, WithWorkers(1))
	_ = s.Close()
	if err := s.Schedule(makeTasks(1)...); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestUse(t *testing.T) {
	boom := errors.New("boom")
	var captured *Scheduler
	err := Use(func(context.Context, *task.Task) error { return nil }, func(s *Scheduler) error {
		captured = s
		_ = s.Schedule(makeTasks(2)...)
		results, err := s.Collect(context.Background())
		if err != nil || len(results) != 2 {
			t.Errorf("unexpected results %v %v", results, err)
		}
		return boom
	}, WithWorkers(1))
	if !errors.Is(err, boom) {
		t.Errorf("expected fn error, got %v", err)
	}
	if !captured.Closed() {
		t.Error("Use must close the scheduler")
	}
}

func TestComponentLifecycle(t *testing.T) {
	s := New(func(context.Context, *task.Task) error { return nil }, WithWorkers(1))
	var c component.Component = s
	ctx := context.Background()

	if c.Name() != ComponentName {
		t.Errorf("unexpected name %q", c.Name())
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if h := c.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy, got %s", h.Status)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if h := c.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy after stop, got %s", h.Status)
	}
	if err := c.Start(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on restart, got %v", err)
	}
}

func TestTelemetry(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	metrics, err := observability.NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatal(err)
	}
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	f := newFake()
	f.set(source(1), func(context.Context) error { return errors.New("bad header") })
	s := New(f.process,
		WithWorkers(2),
		WithDrainOnClose(true),
		WithMetrics(metrics),
		WithTracer(tp.Tracer("test")),
	)
	_ = s.Schedule(makeTasks(2)...)
	_ = s.Close()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 task spans, got %d", len(spans))
	}
	for _, sp := range spans {
		if sp.Name != observability.SpanTask {
			t.Errorf("unexpected span name %q", sp.Name)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	outcomes := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != observability.MetricTasksFinished {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key(observability.AttrOutcome))
				outcomes[v.AsString()] += dp.Value
			}
		}
	}
	if outcomes["completed"] != 1 || outcomes["failed"] != 1 {
		t.Errorf("unexpected outcome counts %v", outcomes)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateQueued:    "queued",
		StateRunning:   "running",
		StateCompleted: "completed",
		StateFailed:    "failed",
		StateCancelled: "cancelled",
		State(42):      "unknown",
	}
	for st, want := range tests {
		if st.String() != want {
			t.Errorf("State(%d) = %q, want %q", st, st.String(), want)
		}
	}
	if StateRunning.Terminal() || !StateCancelled.Terminal() {
		t.Error("unexpected terminal classification")
	}
}

func TestProcessesWavFiles(t *testing.T) {
	fsys := afero.NewMemMapFs()
	testutil.WriteWav(t, fsys, "/in/a.wav", testutil.Tone(2, 400, 0.5), 8000)
	testutil.WriteWav(t, fsys, "/in/b.wav", testutil.Tone(1, 200, -0.5), 8000)

	proc, err := audio.NewProcessor(audio.WithFs(fsys), audio.WithLogger(logger.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	gain, _ := effects.NewGain(-6.020599913279624)
	s := New(proc.Process, WithWorkers(2))
	testutil.T(t).Setup(s)

	tasks := []*task.Task{
		task.New("/in/a.wav", "/out-a.wav", []task.Stage{gain}, false),
		task.New("/in/b.wav", "/out-b.wav", []task.Stage{gain}, false),
		task.New("/in/missing.wav", "/out-c.wav", []task.Stage{gain}, false),
	}
	if err := s.Schedule(tasks...); err != nil {
		t.Fatal(err)
	}
	results, err := s.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	assertStatuses(t, results, tasks, task.StatusCompleted, task.StatusCompleted, task.StatusFailed)

	a := testutil.ReadWav(t, fsys, "/out-a.wav")
	if a.Data.Channels() != 2 || a.Data.Frames() != 400 || a.Data[0][0] != 0.25 {
		t.Errorf("unexpected output %dx%d first=%v", a.Data.Channels(), a.Data.Frames(), a.Data[0][0])
	}
	if ok, _ := afero.Exists(fsys, "/out-c.wav"); ok {
		t.Error("failed task must not create its destination")
	}
}
