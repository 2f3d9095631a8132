package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/ionite34/nwave/effects"
	nwerrors "github.com/ionite34/nwave/errors"
	"github.com/ionite34/nwave/scheduler"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadWithYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "nwave.yml", `
logger:
  level: debug
  format: json
scheduler:
  workers: 6
  drain_on_close: true
  timeout: 30s
  per_task_timeout: true
output:
  overwrite: true
  bit_depth: 24
effects:
  sample_rate: 16000
  quality: vhq
  pad_start: 0.5
`)

	cfg, err := Load(WithConfigFile(path), WithFileSystem(&mockFS{files: map[string]bool{path: true}}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logger.Level != "debug" || cfg.Logger.Format != "json" {
		t.Errorf("unexpected logger config %+v", cfg.Logger)
	}
	if cfg.Scheduler.Workers != 6 || !cfg.Scheduler.DrainOnClose {
		t.Errorf("unexpected scheduler config %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.Timeout != 30*time.Second || !cfg.Scheduler.PerTaskTimeout {
		t.Errorf("unexpected timeouts %+v", cfg.Scheduler)
	}
	if !cfg.Output.Overwrite || cfg.Output.BitDepth != 24 {
		t.Errorf("unexpected output config %+v", cfg.Output)
	}
	if cfg.Effects.SampleRate != 16000 || cfg.Effects.PadStart != 0.5 {
		t.Errorf("unexpected effects config %+v", cfg.Effects)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(WithFileSystem(&mockFS{}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Scheduler.Workers != scheduler.DefaultWorkers() {
		t.Errorf("expected default workers %d, got %d", scheduler.DefaultWorkers(), cfg.Scheduler.Workers)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("expected info level, got %q", cfg.Logger.Level)
	}
	if cfg.Observability.Enabled {
		t.Error("telemetry must be off by default")
	}
	if cfg.Scheduler.StreamOptions() != nil {
		t.Error("expected no stream options without a timeout")
	}
}

func TestLoadExplicitFileMissing(t *testing.T) {
	_, err := Load(WithConfigFile("/nonexistent/nwave.yml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "nwave.yml", "scheduler:\n  workers: 2\n")
	t.Setenv("NWAVE_SCHEDULER_WORKERS", "9")
	t.Setenv("NWAVE_SCHEDULER_PER_TASK_TIMEOUT", "true")
	t.Setenv("NWAVE_OUTPUT_BIT_DEPTH", "8")

	cfg, err := Load(WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Scheduler.Workers != 9 {
		t.Errorf("expected env to win, got %d workers", cfg.Scheduler.Workers)
	}
	if !cfg.Scheduler.PerTaskTimeout {
		t.Error("expected per_task_timeout from env")
	}
	if cfg.Output.BitDepth != 8 {
		t.Errorf("expected bit depth 8, got %d", cfg.Output.BitDepth)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "NWAVE_EFFECTS_GAIN_DB=-6\n")
	t.Cleanup(func() { os.Unsetenv("NWAVE_EFFECTS_GAIN_DB") })

	cfg, err := Load(WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Effects.GainDB != -6 {
		t.Errorf("expected gain from .env, got %v", cfg.Effects.GainDB)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("NWAVE_SCHEDULER_WORKERS", "9")
	t.Setenv("NWAVE_OUTPUT_OVERWRITE", "true")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("workers", 0, "")
	fs.Bool("overwrite", false, "")
	fs.Duration("timeout", 0, "")
	if err := fs.Parse([]string{"--workers=3", "--timeout=1m"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(
		WithFileSystem(&mockFS{}),
		WithFlag("scheduler.workers", fs.Lookup("workers")),
		WithFlag("output.overwrite", fs.Lookup("overwrite")),
		WithFlag("scheduler.timeout", fs.Lookup("timeout")),
	)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Scheduler.Workers != 3 {
		t.Errorf("expected flag to win, got %d workers", cfg.Scheduler.Workers)
	}
	if !cfg.Output.Overwrite {
		t.Error("an unset flag must not override env")
	}
	if cfg.Scheduler.Timeout != time.Minute {
		t.Errorf("expected 1m timeout, got %v", cfg.Scheduler.Timeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad sample rate", func(c *Config) { c.Effects.SampleRate = 22050 }, "effects.sample_rate: must be one of: 8000 16000 32000 44100 48000"},
		{"bad quality", func(c *Config) { c.Effects.Quality = "best" }, "effects.quality: must be one of"},
		{"negative pad", func(c *Config) { c.Effects.PadEnd = -1 }, "effects.pad_end: must be at least 0"},
		{"bad bit depth", func(c *Config) { c.Output.BitDepth = 12 }, "output.bit_depth: must be one of: 8 16 24 32"},
		{"negative timeout", func(c *Config) { c.Scheduler.Timeout = -time.Second }, "scheduler.timeout: must be at least 0"},
		{"endpoint required", func(c *Config) { c.Observability.Enabled = true; c.Observability.Endpoint = "" }, "observability.endpoint: is required"},
		{"bad log level", func(c *Config) { c.Logger.Level = "loud" }, "logger.level must be one of"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cfg Config
			cfg.ApplyDefaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if !nwerrors.IsKind(err, nwerrors.KindInvalidConfig) {
				t.Fatalf("expected INVALID_CONFIG, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected %q in %q", tc.want, err.Error())
			}
		})
	}
}

func TestEffectsStages(t *testing.T) {
	stages, err := EffectsConfig{}.Stages()
	if err != nil || len(stages) != 0 {
		t.Fatalf("expected no stages, got %v %v", stages, err)
	}

	stages, err = EffectsConfig{SampleRate: 16000, Quality: "lq", PadEnd: 0.1, GainDB: 3}.Stages()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, s := range stages {
		names = append(names, s.Name())
	}
	if strings.Join(names, ",") != "Resample,PadSilence,Gain" {
		t.Errorf("unexpected stages %v", names)
	}
	if rs := stages[0].(*effects.Resample); rs.Quality() != effects.LowQuality || rs.Rate() != 16000 {
		t.Errorf("unexpected resample %v %v", rs.Rate(), rs.Quality())
	}

	if _, err := (EffectsConfig{SampleRate: 16000, Quality: "best"}).Stages(); err == nil {
		t.Error("expected error for unknown quality")
	}
}

func TestStreamOptions(t *testing.T) {
	c := SchedulerConfig{Timeout: time.Second, PerTaskTimeout: true}
	if n := len(c.StreamOptions()); n != 2 {
		t.Errorf("expected 2 options, got %d", n)
	}
	c.PerTaskTimeout = false
	if n := len(c.StreamOptions()); n != 1 {
		t.Errorf("expected 1 option, got %d", n)
	}
}

func TestResolverWithMockFS(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./config/nwave.yml": true,
		"./config.yml":       true,
		"./config/.env":      true,
	}}
	resolver := &Resolver{FileSystem: fs}
	files := resolver.ResolveFiles(ServiceName, LoaderConfig{})
	if files.ConfigFile != "./config/nwave.yml" {
		t.Errorf("expected ./config/nwave.yml, got %q", files.ConfigFile)
	}
	if files.EnvFile != "./config/.env" {
		t.Errorf("expected ./config/.env, got %q", files.EnvFile)
	}

	files = resolver.ResolveFiles(ServiceName, LoaderConfig{ConfigFile: "explicit.yml"})
	if files.ConfigFile != "explicit.yml" {
		t.Errorf("explicit path must win, got %q", files.ConfigFile)
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool  { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }

func TestGenerateEnvKeyVariants(t *testing.T) {
	got := generateEnvKeyVariants("SCHEDULER_PER_TASK_TIMEOUT")
	want := map[string]bool{
		"scheduler_per_task_timeout": true,
		"scheduler.per.task.timeout": true,
		"scheduler.per_task_timeout": true,
		"scheduler.per.task_timeout": true,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d variants, got %v", len(want), got)
	}
	for _, v := range got {
		if !want[v] {
			t.Errorf("unexpected variant %q", v)
		}
	}
	if got := generateEnvKeyVariants("WORKERS"); len(got) != 1 || got[0] != "workers" {
		t.Errorf("unexpected single-part variants %v", got)
	}
}

func TestLoaderOptions(t *testing.T) {
	var lc LoaderConfig
	WithFileSystem(&mockFS{})(&lc)
	WithConfigFile("/path/to/nwave.yml")(&lc)
	WithEnvFile("/path/to/.env")(&lc)
	WithFlag("scheduler.workers", nil)(&lc)
	if lc.FileSystem == nil || lc.ConfigFile != "/path/to/nwave.yml" || lc.EnvFile != "/path/to/.env" {
		t.Errorf("unexpected loader config %+v", lc)
	}
	if len(lc.Flags) != 0 {
		t.Error("nil flags must be ignored")
	}
}
