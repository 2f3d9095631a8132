package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names.
const (
	MetricTasksScheduled = "nwave.tasks.scheduled"
	MetricTasksFinished  = "nwave.tasks.finished"
	MetricTasksRunning   = "nwave.tasks.running"
	MetricTaskDuration   = "nwave.task.duration"
)

// AttrOutcome labels finished tasks with their terminal state.
const AttrOutcome = "outcome"

// OutcomeCancelled is recorded for tasks cancelled before they started.
const OutcomeCancelled = "cancelled"

// Metrics holds the task execution instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	scheduled metric.Int64Counter
	finished  metric.Int64Counter
	running   metric.Int64UpDownCounter
	duration  metric.Float64Histogram
}

// NewMetrics creates task instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	scheduled, err := meter.Int64Counter(MetricTasksScheduled,
		metric.WithDescription("Total number of tasks scheduled"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricTasksScheduled, err)
	}

	finished, err := meter.Int64Counter(MetricTasksFinished,
		metric.WithDescription("Total number of tasks resolved, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricTasksFinished, err)
	}

	running, err := meter.Int64UpDownCounter(MetricTasksRunning,
		metric.WithDescription("Number of tasks currently executing"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s gauge: %w", MetricTasksRunning, err)
	}

	duration, err := meter.Float64Histogram(MetricTaskDuration,
		metric.WithDescription("Task execution time in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricTaskDuration, err)
	}

	return &Metrics{
		scheduled: scheduled,
		finished:  finished,
		running:   running,
		duration:  duration,
	}, nil
}

// RecordTaskScheduled counts newly scheduled tasks.
func (m *Metrics) RecordTaskScheduled(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.scheduled.Add(ctx, int64(n))
}

// RecordTaskStart increments the running count.
func (m *Metrics) RecordTaskStart(ctx context.Context) {
	if m == nil {
		return
	}
	m.running.Add(ctx, 1)
}

// RecordTaskEnd decrements the running count and records the outcome and
// duration of a task that ran.
func (m *Metrics) RecordTaskEnd(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrOutcome, outcome))
	m.running.Add(ctx, -1)
	m.finished.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

// RecordTaskDropped records a task cancelled before a worker started it.
func (m *Metrics) RecordTaskDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.finished.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOutcome, OutcomeCancelled)))
}
