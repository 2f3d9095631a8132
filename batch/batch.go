package batch

import (
	"context"
	"fmt"
	"iter"
	"path/filepath"

	"github.com/spf13/afero"

	nwerrors "github.com/ionite34/nwave/errors"
	"github.com/ionite34/nwave/scheduler"
	"github.com/ionite34/nwave/task"
	"github.com/ionite34/nwave/validation"
)

// Paths is one source/destination pair.
type Paths struct {
	Source      string
	Destination string
}

// Batch is an ordered set of file pairs sharing one stage list and one
// overwrite policy.
type Batch struct {
	paths     []Paths
	stages    []task.Stage
	overwrite bool
}

// New pairs inputs[i] with outputs[i]. The slices must be the same length.
func New(inputs, outputs []string, overwrite bool) (*Batch, error) {
	if len(inputs) != len(outputs) {
		return nil, nwerrors.InvalidConfig(fmt.Sprintf(
			"got %d input files but %d output files", len(inputs), len(outputs)))
	}
	paths := make([]Paths, len(inputs))
	for i := range inputs {
		paths[i] = Paths{Source: inputs[i], Destination: outputs[i]}
	}
	return &Batch{paths: paths, overwrite: overwrite}, nil
}

// FromGlob creates a batch from every file matching pattern. Each output is
// written to destDir under the input's base name. A nil fsys uses the OS
// filesystem.
func FromGlob(fsys afero.Fs, pattern, destDir string, overwrite bool) (*Batch, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	matches, err := afero.Glob(fsys, pattern)
	if err != nil {
		return nil, nwerrors.New(nwerrors.KindInvalidConfig, "", fmt.Errorf("pattern %q: %w", pattern, err))
	}

	var inputs []string
	for _, m := range matches {
		info, err := fsys.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		inputs = append(inputs, m)
	}
	if len(inputs) == 0 {
		return nil, nwerrors.InvalidConfig(fmt.Sprintf("no files found for pattern %s", pattern))
	}

	outputs := make([]string, len(inputs))
	for i, in := range inputs {
		outputs[i] = filepath.Join(destDir, filepath.Base(in))
	}
	return New(inputs, outputs, overwrite)
}

// Apply appends stages to the batch's shared stage list.
func (b *Batch) Apply(stages ...task.Stage) *Batch {
	b.stages = append(b.stages, stages...)
	return b
}

// Len returns the number of file pairs.
func (b *Batch) Len() int { return len(b.paths) }

// Overwrite reports the batch's overwrite policy.
func (b *Batch) Overwrite() bool { return b.overwrite }

// Paths returns a copy of the file pairs.
func (b *Batch) Paths() []Paths { return append([]Paths(nil), b.paths...) }

// Stages returns a copy of the stage list.
func (b *Batch) Stages() []task.Stage { return append([]task.Stage(nil), b.stages...) }

// Validate rejects empty paths, nil stages and destinations claimed by more
// than one pair.
func (b *Batch) Validate() error {
	v := validation.New()
	seen := make(map[string]int, len(b.paths))
	for i, p := range b.paths {
		v.Required(fmt.Sprintf("paths[%d].source", i), p.Source)
		v.Required(fmt.Sprintf("paths[%d].destination", i), p.Destination)
		if p.Destination == "" {
			continue
		}
		key := filepath.Clean(p.Destination)
		if j, dup := seen[key]; dup {
			v.Custom(false, fmt.Sprintf("paths[%d].destination", i),
				fmt.Sprintf("%s is also the destination of paths[%d]", p.Destination, j))
			continue
		}
		seen[key] = i
	}
	for i, s := range b.stages {
		v.Custom(s != nil, fmt.Sprintf("stages[%d]", i), "must not be nil")
	}
	return v.Validate()
}

// Tasks builds one task per pair. The tasks share the current stage list.
func (b *Batch) Tasks() []*task.Task {
	tasks := make([]*task.Task, len(b.paths))
	for i, p := range b.paths {
		tasks[i] = task.New(p.Source, p.Destination, b.stages, b.overwrite)
	}
	return tasks
}

// Option configures Run and Stream.
type Option func(*settings)

type settings struct {
	scheduler []scheduler.Option
	stream    []scheduler.StreamOption
}

// WithSchedulerOptions configures the scheduler the batch runs on.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(s *settings) { s.scheduler = append(s.scheduler, opts...) }
}

// WithStreamOptions configures how results are drained.
func WithStreamOptions(opts ...scheduler.StreamOption) Option {
	return func(s *settings) { s.stream = append(s.stream, opts...) }
}

func newSettings(opts []Option) settings {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Run validates the batch, executes every task on a fresh scheduler and
// returns the results in pair order.
func (b *Batch) Run(ctx context.Context, process task.ProcessFunc, opts ...Option) ([]task.Result, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	cfg := newSettings(opts)

	var results []task.Result
	err := scheduler.Use(process, func(s *scheduler.Scheduler) error {
		if err := s.Schedule(b.Tasks()...); err != nil {
			return err
		}
		var err error
		results, err = s.Collect(ctx, cfg.stream...)
		return err
	}, cfg.scheduler...)
	return results, err
}

// Stream is like Run but yields each result as soon as it is available.
// Breaking out of the loop cancels the tasks not yet yielded. A validation
// or context error is yielded once as the final element.
func (b *Batch) Stream(ctx context.Context, process task.ProcessFunc, opts ...Option) iter.Seq2[task.Result, error] {
	return func(yield func(task.Result, error) bool) {
		if err := b.Validate(); err != nil {
			yield(task.Result{}, err)
			return
		}
		cfg := newSettings(opts)

		s := scheduler.New(process, cfg.scheduler...)
		defer s.Close()
		if err := s.Schedule(b.Tasks()...); err != nil {
			yield(task.Result{}, err)
			return
		}
		for r, err := range s.Results(cfg.stream...).All(ctx) {
			if !yield(r, err) {
				return
			}
		}
	}
}
