package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ionite34/nwave/component"
)

// Config selects whether telemetry is exported and where to.
type Config struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoint    string        `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure    bool          `mapstructure:"insecure"`
	Environment string        `mapstructure:"environment"`
	SampleRate  float64       `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Interval    time.Duration `mapstructure:"interval" validate:"gte=0"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.Interval == 0 {
		c.Interval = 15 * time.Second
	}
}

// resource describes the running nwave binary to the telemetry backend.
func (c Config) resource(service, version string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", service),
			attribute.String("service.version", version),
			attribute.String("deployment.environment", c.Environment),
		),
	)
}

// Providers owns the exporting tracer and meter providers installed by
// Setup. When telemetry is disabled both are nil and Metrics records on the
// global no-op meter.
type Providers struct {
	tp      *sdktrace.TracerProvider
	mp      *sdkmetric.MeterProvider
	Metrics *Metrics
}

var _ component.Component = (*Providers)(nil)

// Setup installs OTLP tracer and meter providers when cfg.Enabled is set
// and creates the task instruments.
func Setup(ctx context.Context, cfg Config, service, version string) (*Providers, error) {
	cfg.ApplyDefaults()
	p := &Providers{}

	if cfg.Enabled {
		res, err := cfg.resource(service, version)
		if err != nil {
			return nil, fmt.Errorf("creating resource: %w", err)
		}
		tp, err := InitTracer(ctx, cfg, res)
		if err != nil {
			return nil, err
		}
		p.tp = tp

		mp, err := InitMeter(ctx, cfg, res)
		if err != nil {
			_ = tp.Shutdown(ctx)
			return nil, err
		}
		p.mp = mp
	}

	metrics, err := NewMetrics(Meter(MeterName))
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	p.Metrics = metrics
	return p, nil
}

// Exporting reports whether telemetry leaves the process.
func (p *Providers) Exporting() bool { return p.tp != nil }

// Shutdown flushes and stops the installed providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tp != nil {
		errs = append(errs, p.tp.Shutdown(ctx))
		p.tp = nil
	}
	if p.mp != nil {
		errs = append(errs, p.mp.Shutdown(ctx))
		p.mp = nil
	}
	return errors.Join(errs...)
}

// Name implements component.Component.
func (p *Providers) Name() string { return "observability" }

// Start implements component.Component.
func (p *Providers) Start(ctx context.Context) error { return nil }

// Stop implements component.Component.
func (p *Providers) Stop(ctx context.Context) error { return p.Shutdown(ctx) }

// Health implements component.Component.
func (p *Providers) Health(ctx context.Context) component.Health {
	msg := "telemetry disabled"
	if p.Exporting() {
		msg = "exporting over OTLP/HTTP"
	}
	return component.Health{Name: p.Name(), Status: component.StatusHealthy, Message: msg}
}
