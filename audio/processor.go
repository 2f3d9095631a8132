package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/ionite34/nwave/atomicfile"
	nwerrors "github.com/ionite34/nwave/errors"
	"github.com/ionite34/nwave/logger"
	"github.com/ionite34/nwave/task"
)

// ComponentName is the logger component used by the processor.
const ComponentName = "audio"

// Processor executes tasks against a filesystem: decode the source, apply
// the task's stages, encode the destination through an atomic writer.
type Processor struct {
	fs       afero.Fs
	log      *logger.Logger
	bitDepth int
}

// Option configures a Processor.
type Option func(*Processor)

// WithFs sets the filesystem tasks read from and write to.
func WithFs(fsys afero.Fs) Option {
	return func(p *Processor) {
		if fsys != nil {
			p.fs = fsys
		}
	}
}

// WithLogger sets the processor's logger.
func WithLogger(l *logger.Logger) Option {
	return func(p *Processor) { p.log = logger.Component(l, ComponentName) }
}

// WithBitDepth forces the output sample size. Zero keeps the source's.
func WithBitDepth(bits int) Option {
	return func(p *Processor) { p.bitDepth = bits }
}

// NewProcessor creates a Processor on the OS filesystem unless WithFs is given.
func NewProcessor(opts ...Option) (*Processor, error) {
	p := &Processor{
		fs:  afero.NewOsFs(),
		log: logger.Component(nil, ComponentName),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bitDepth != 0 && !supportedDepth(p.bitDepth) {
		return nil, nwerrors.InvalidConfig(fmt.Sprintf("unsupported bit depth %d (want one of %v)", p.bitDepth, SupportedBitDepths))
	}
	return p, nil
}

// Fs returns the processor's filesystem.
func (p *Processor) Fs() afero.Fs { return p.fs }

// Process runs t. Failures are TaskErrors labelled "File Loading", the
// failing stage's name, or "File Writing".
func (p *Processor) Process(ctx context.Context, t *task.Task) error {
	start := time.Now()
	fields := logger.TaskFields(t.ID().String(), t.Source(), t.Destination())

	clip, err := Load(p.fs, t.Source())
	if err != nil {
		return nwerrors.Wrap(nwerrors.KindLoadFailure, nwerrors.StageLoading, err)
	}
	if err := ctx.Err(); err != nil {
		return nwerrors.Cancelled(err)
	}

	data, rate, err := task.Apply(t.Stages(), clip.Data, clip.Rate)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return nwerrors.Cancelled(err)
	}

	out := &Clip{Data: data, Rate: rate, BitDepth: clip.BitDepth}
	if p.bitDepth != 0 {
		out.BitDepth = p.bitDepth
	}
	err = atomicfile.Write(p.fs, t.Destination(), t.Overwrite(), func(f afero.File) error {
		return Encode(f, out)
	})
	if err != nil {
		return nwerrors.Wrap(nwerrors.KindWriteFailure, nwerrors.StageWriting, err)
	}

	p.log.Debug("task written", logger.MergeWithDuration(fields, time.Since(start)))
	return nil
}
