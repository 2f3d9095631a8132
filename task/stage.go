package task

import (
	"fmt"

	nwerrors "github.com/ionite34/nwave/errors"
)

// Buffer holds planar audio samples: one slice per channel, values in [-1, 1].
type Buffer [][]float64

// Frames returns the number of samples per channel.
func (b Buffer) Frames() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

// Channels returns the number of channels.
func (b Buffer) Channels() int { return len(b) }

// Clone returns a deep copy of the buffer.
func (b Buffer) Clone() Buffer {
	out := make(Buffer, len(b))
	for i, ch := range b {
		out[i] = append([]float64(nil), ch...)
	}
	return out
}

// Stage is one transform step. Implementations must not mutate their input
// buffer and must be safe to call from several goroutines at once.
type Stage interface {
	// Name identifies the stage in failure reports.
	Name() string
	// Apply transforms buf sampled at rate into a new buffer and rate.
	Apply(buf Buffer, rate float64) (Buffer, float64, error)
}

// Apply runs stages in order, feeding each stage's output into the next.
// Any error or panic raised by a stage is returned as a new StageFailure
// labelled with that stage's name; the stage's own error becomes its cause
// and is never modified.
func Apply(stages []Stage, buf Buffer, rate float64) (Buffer, float64, error) {
	for _, s := range stages {
		var err error
		buf, rate, err = applyStage(s, buf, rate)
		if err != nil {
			return nil, 0, err
		}
	}
	return buf, rate, nil
}

func applyStage(s Stage, buf Buffer, rate float64) (out Buffer, outRate float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = nwerrors.StageFailure(s.Name(), panicError(r))
		}
	}()

	out, outRate, err = s.Apply(buf, rate)
	if err != nil {
		return nil, 0, nwerrors.StageFailure(s.Name(), err)
	}
	return out, outRate, nil
}

// PanicError carries a value recovered from a panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// ErrorType names the panic's error type when it panicked with an error.
func (e *PanicError) ErrorType() string {
	if err, ok := e.Value.(error); ok {
		return nwerrors.TypeName(err)
	}
	return "PanicError"
}

func panicError(r any) error {
	return &PanicError{Value: r}
}
