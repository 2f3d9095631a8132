package effects

import (
	"github.com/ionite34/nwave/task"
	"github.com/ionite34/nwave/validation"
)

// ApplyFunc transforms a buffer and its sample rate.
type ApplyFunc func(buf task.Buffer, rate float64) (task.Buffer, float64, error)

// Func adapts a plain function into a named stage.
type Func struct {
	name string
	fn   ApplyFunc
}

// NewFunc wraps fn as a stage reported under name.
func NewFunc(name string, fn ApplyFunc) (*Func, error) {
	err := validation.New().
		Required("name", name).
		Custom(fn != nil, "fn", "is required").
		Validate()
	if err != nil {
		return nil, err
	}
	return &Func{name: name, fn: fn}, nil
}

func (f *Func) Name() string { return f.name }

func (f *Func) Apply(buf task.Buffer, rate float64) (task.Buffer, float64, error) {
	return f.fn(buf, rate)
}
