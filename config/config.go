package config

import (
	"fmt"
	"time"

	"github.com/ionite34/nwave/effects"
	nwerrors "github.com/ionite34/nwave/errors"
	"github.com/ionite34/nwave/logger"
	"github.com/ionite34/nwave/observability"
	"github.com/ionite34/nwave/scheduler"
	"github.com/ionite34/nwave/task"
	"github.com/ionite34/nwave/validation"
)

// Config is the complete nwave configuration.
type Config struct {
	Logger        logger.Config        `yaml:"logger" mapstructure:"logger"`
	Scheduler     SchedulerConfig      `yaml:"scheduler" mapstructure:"scheduler"`
	Output        OutputConfig         `yaml:"output" mapstructure:"output"`
	Effects       EffectsConfig        `yaml:"effects" mapstructure:"effects"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

// SchedulerConfig controls the worker pool and how results are awaited.
type SchedulerConfig struct {
	scheduler.Config `yaml:",inline" mapstructure:",squash"`
	// Timeout bounds result collection. Zero waits indefinitely.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	// PerTaskTimeout applies Timeout to each result instead of the whole run.
	PerTaskTimeout bool `yaml:"per_task_timeout" mapstructure:"per_task_timeout"`
}

// StreamOptions translates the timeout settings for a result stream.
func (c SchedulerConfig) StreamOptions() []scheduler.StreamOption {
	if c.Timeout <= 0 {
		return nil
	}
	opts := []scheduler.StreamOption{scheduler.WithTimeout(c.Timeout)}
	if c.PerTaskTimeout {
		opts = append(opts, scheduler.WithPerTaskTimeout())
	}
	return opts
}

// OutputConfig controls how destinations are written.
type OutputConfig struct {
	Overwrite bool `yaml:"overwrite" mapstructure:"overwrite"`
	// BitDepth forces the output sample size. Zero keeps the source's.
	BitDepth int `yaml:"bit_depth" mapstructure:"bit_depth" validate:"omitempty,oneof=8 16 24 32"`
}

// EffectsConfig describes the stage list applied to every file. Stages run
// in the order resample, pad, gain; zero values disable a stage.
type EffectsConfig struct {
	SampleRate int     `yaml:"sample_rate" mapstructure:"sample_rate" validate:"omitempty,sample_rate"`
	Quality    string  `yaml:"quality" mapstructure:"quality" validate:"omitempty,oneof=QQ LQ MQ HQ VHQ qq lq mq hq vhq"`
	PadStart   float64 `yaml:"pad_start" mapstructure:"pad_start" validate:"gte=0"`
	PadEnd     float64 `yaml:"pad_end" mapstructure:"pad_end" validate:"gte=0"`
	GainDB     float64 `yaml:"gain_db" mapstructure:"gain_db"`
}

// Stages builds the configured stage list.
func (c EffectsConfig) Stages() ([]task.Stage, error) {
	var stages []task.Stage
	if c.SampleRate > 0 {
		q := effects.DefaultQuality
		if c.Quality != "" {
			var err error
			if q, err = effects.ParseQuality(c.Quality); err != nil {
				return nil, err
			}
		}
		rs, err := effects.NewResample(float64(c.SampleRate), q)
		if err != nil {
			return nil, err
		}
		stages = append(stages, rs)
	}
	if c.PadStart > 0 || c.PadEnd > 0 {
		pad, err := effects.NewPadSilence(c.PadStart, c.PadEnd)
		if err != nil {
			return nil, err
		}
		stages = append(stages, pad)
	}
	if c.GainDB != 0 {
		gain, err := effects.NewGain(c.GainDB)
		if err != nil {
			return nil, err
		}
		stages = append(stages, gain)
	}
	return stages, nil
}

// ApplyDefaults fills zero values in every section.
func (c *Config) ApplyDefaults() {
	c.Logger.ApplyDefaults()
	c.Scheduler.ApplyDefaults()
	c.Observability.ApplyDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return nwerrors.New(nwerrors.KindInvalidConfig, "", err)
	}
	if err := validation.Validate(c); err != nil {
		return err
	}
	return nil
}

// Load resolves, reads, defaults and validates the configuration.
func Load(opts ...LoaderOption) (*Config, error) {
	var cfg Config
	if err := LoadConfig(ServiceName, &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
