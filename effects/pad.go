package effects

import (
	"math"

	"github.com/ionite34/nwave/task"
	"github.com/ionite34/nwave/validation"
)

// PadSilence adds silence before and after the audio.
type PadSilence struct {
	start float64
	end   float64
}

// NewPadSilence returns a stage padding start and end seconds of silence.
func NewPadSilence(start, end float64) (*PadSilence, error) {
	err := validation.New().
		NonNegative("start", start).
		NonNegative("end", end).
		Custom(!math.IsInf(start, 0) && !math.IsInf(end, 0), "duration", "must be finite").
		Validate()
	if err != nil {
		return nil, err
	}
	return &PadSilence{start: start, end: end}, nil
}

func (p *PadSilence) Name() string { return "PadSilence" }

func (p *PadSilence) Apply(buf task.Buffer, rate float64) (task.Buffer, float64, error) {
	head := int(p.start * rate)
	tail := int(p.end * rate)
	out := make(task.Buffer, len(buf))
	for c, ch := range buf {
		padded := make([]float64, head+len(ch)+tail)
		copy(padded[head:], ch)
		out[c] = padded
	}
	return out, rate, nil
}
