package effects

import (
	"math"

	"github.com/ionite34/nwave/task"
	"github.com/ionite34/nwave/validation"
)

// Gain scales every sample by a level in decibels.
type Gain struct {
	db     float64
	factor float64
}

// NewGain returns a stage applying db decibels of gain. Negative values
// attenuate.
func NewGain(db float64) (*Gain, error) {
	err := validation.New().
		Custom(!math.IsNaN(db) && !math.IsInf(db, 0), "gain_db", "must be a finite number").
		Validate()
	if err != nil {
		return nil, err
	}
	return &Gain{db: db, factor: math.Pow(10, db/20)}, nil
}

func (g *Gain) Name() string { return "Gain" }

// DB returns the configured gain in decibels.
func (g *Gain) DB() float64 { return g.db }

// Factor returns the linear amplitude multiplier.
func (g *Gain) Factor() float64 { return g.factor }

func (g *Gain) Apply(buf task.Buffer, rate float64) (task.Buffer, float64, error) {
	out := buf.Clone()
	for _, ch := range out {
		for i := range ch {
			ch[i] *= g.factor
		}
	}
	return out, rate, nil
}
