// Command nwave processes WAV files matching a glob pattern concurrently.
//
//	nwave [flags] <glob> <dest-dir>
//
// Each matching file is loaded, run through the configured effects and
// atomically written to dest-dir under its original base name.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/ionite34/nwave/audio"
	"github.com/ionite34/nwave/batch"
	"github.com/ionite34/nwave/bootstrap"
	"github.com/ionite34/nwave/config"
	"github.com/ionite34/nwave/logger"
	"github.com/ionite34/nwave/observability"
	"github.com/ionite34/nwave/scheduler"
	"github.com/ionite34/nwave/version"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// flagKeys maps each flag to the config key it overrides.
var flagKeys = map[string]string{
	"workers":          "scheduler.workers",
	"drain":            "scheduler.drain_on_close",
	"timeout":          "scheduler.timeout",
	"per-task-timeout": "scheduler.per_task_timeout",
	"overwrite":        "output.overwrite",
	"bit-depth":        "output.bit_depth",
	"sample-rate":      "effects.sample_rate",
	"quality":          "effects.quality",
	"pad-start":        "effects.pad_start",
	"pad-end":          "effects.pad_end",
	"gain-db":          "effects.gain_db",
	"log-level":        "logger.level",
}

func newFlagSet(stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(version.Program, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags] <glob> <dest-dir>\n\nFlags:\n", version.Program)
		fs.PrintDefaults()
	}

	fs.String("config", "", "path to a YAML config file")
	fs.Bool("version", false, "print version and exit")

	fs.IntP("workers", "w", 0, "number of files processed at once (0 = min(32, cpus+4))")
	fs.Bool("drain", false, "wait for running tasks on shutdown instead of cancelling them")
	fs.Duration("timeout", 0, "give up on results after this long (0 = wait indefinitely)")
	fs.Bool("per-task-timeout", false, "apply --timeout to each file instead of the whole run")
	fs.BoolP("overwrite", "f", false, "replace existing destination files")
	fs.Int("bit-depth", 0, "output bit depth: 8, 16, 24 or 32 (0 = keep source)")
	fs.IntP("sample-rate", "r", 0, "resample to this rate: 8000, 16000, 32000, 44100 or 48000")
	fs.StringP("quality", "q", "", "resampling quality: QQ, LQ, MQ, HQ or VHQ (default HQ)")
	fs.Float64("pad-start", 0, "seconds of silence to prepend")
	fs.Float64("pad-end", 0, "seconds of silence to append")
	fs.Float64("gain-db", 0, "gain to apply in decibels")
	fs.String("log-level", "", "log level: trace, debug, info, warn, error")
	return fs
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if v, _ := fs.GetBool("version"); v {
		fmt.Fprintln(stdout, version.Get())
		return exitOK
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return exitUsage
	}
	pattern, destDir := fs.Arg(0), fs.Arg(1)

	opts := []config.LoaderOption{}
	if path, _ := fs.GetString("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	for name, key := range flagKeys {
		opts = append(opts, config.WithFlag(key, fs.Lookup(name)))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", version.Program, err)
		return exitUsage
	}

	app, err := bootstrap.NewApp(cfg, bootstrap.WithOutput(stdout))
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", version.Program, err)
		return exitUsage
	}
	if err := process(ctx, app, pattern, destDir, stdout); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", version.Program, err)
		return exitFail
	}
	if !app.Summary.Succeeded() {
		return exitFail
	}
	return exitOK
}

func process(ctx context.Context, app *bootstrap.App, pattern, destDir string, stdout io.Writer) error {
	cfg := app.Cfg

	stages, err := cfg.Effects.Stages()
	if err != nil {
		return err
	}
	proc, err := audio.NewProcessor(audio.WithLogger(app.Logger), audio.WithBitDepth(cfg.Output.BitDepth))
	if err != nil {
		return err
	}
	b, err := batch.FromGlob(proc.Fs(), pattern, destDir, cfg.Output.Overwrite)
	if err != nil {
		return err
	}
	if err := b.Apply(stages...).Validate(); err != nil {
		return err
	}
	if err := proc.Fs().MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", destDir, err)
	}

	sched, err := wire(ctx, app, proc)
	if err != nil {
		return err
	}

	app.Logger.Info("processing", logger.Fields(
		"files", b.Len(),
		logger.FieldWorkers, sched.Workers(),
		logger.FieldDestination, destDir,
	))
	return app.RunTask(ctx, func(ctx context.Context) error {
		if err := sched.Schedule(b.Tasks()...); err != nil {
			return err
		}
		for r, err := range sched.Results(cfg.Scheduler.StreamOptions()...).All(ctx) {
			if err != nil {
				return err
			}
			app.Summary.Record(r)
			fmt.Fprintln(stdout, r)
		}
		return nil
	})
}

// newScheduler is swapped in tests to observe the scheduler wire builds.
var newScheduler = scheduler.New

// wire sets up telemetry and the scheduler and registers both with app. On
// failure nothing it created is left running.
func wire(ctx context.Context, app *bootstrap.App, proc *audio.Processor) (_ *scheduler.Scheduler, err error) {
	providers, err := observability.Setup(ctx, app.Cfg.Observability, app.Name, app.Version)
	if err != nil {
		return nil, err
	}
	sched := newScheduler(proc.Process,
		scheduler.WithConfig(app.Cfg.Scheduler.Config),
		scheduler.WithLogger(app.Logger),
		scheduler.WithMetrics(providers.Metrics),
	)
	defer func() {
		if err != nil {
			err = errors.Join(err, sched.Close(), providers.Shutdown(ctx))
		}
	}()

	// Registration order is start order; providers stop last so the
	// scheduler's final spans and metrics are flushed.
	if err = app.RegisterComponent(providers); err != nil {
		return nil, err
	}
	if err = app.RegisterComponent(sched); err != nil {
		return nil, err
	}
	return sched, nil
}
