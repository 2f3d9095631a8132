package scheduler

import (
	"runtime"

	"go.opentelemetry.io/otel/trace"

	"github.com/ionite34/nwave/logger"
	"github.com/ionite34/nwave/observability"
)

// MaxDefaultWorkers caps the worker count chosen when none is configured.
const MaxDefaultWorkers = 32

// DefaultWorkers returns min(32, cpu+4).
func DefaultWorkers() int {
	return min(MaxDefaultWorkers, runtime.NumCPU()+4)
}

// Config holds scheduler settings.
type Config struct {
	// Workers is the number of tasks that may run at once. Zero selects
	// DefaultWorkers.
	Workers int `mapstructure:"workers" validate:"gte=0"`
	// DrainOnClose makes Close wait for every scheduled task to finish
	// instead of cancelling outstanding work.
	DrainOnClose bool `mapstructure:"drain_on_close"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers()
	}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConfig replaces the scheduler configuration.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) { s.cfg = cfg }
}

// WithWorkers sets the worker count.
func WithWorkers(n int) Option {
	return func(s *Scheduler) { s.cfg.Workers = n }
}

// WithDrainOnClose controls whether Close waits for outstanding work.
func WithDrainOnClose(drain bool) Option {
	return func(s *Scheduler) { s.cfg.DrainOnClose = drain }
}

// WithLogger sets the logger used for lifecycle and task events.
func WithLogger(l *logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithMetrics records task counters and durations on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithTracer sets the tracer used for per-task spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) { s.tracer = t }
}
