package effects

import (
	"fmt"
	"math"
	"slices"
	"strings"

	nwerrors "github.com/ionite34/nwave/errors"
	"github.com/ionite34/nwave/task"
	"github.com/ionite34/nwave/validation"
)

// Quality selects the interpolation used by Resample.
type Quality string

const (
	// QuickQuality uses nearest-neighbour sampling.
	QuickQuality Quality = "QQ"
	// LowQuality interpolates linearly.
	LowQuality Quality = "LQ"
	// MediumQuality uses a Lanczos kernel with 4 lobes.
	MediumQuality Quality = "MQ"
	// HighQuality uses a Lanczos kernel with 8 lobes.
	HighQuality Quality = "HQ"
	// VeryHighQuality uses a Lanczos kernel with 16 lobes.
	VeryHighQuality Quality = "VHQ"
)

// Qualities lists every accepted quality in increasing order.
var Qualities = []Quality{QuickQuality, LowQuality, MediumQuality, HighQuality, VeryHighQuality}

// ParseQuality converts a case-insensitive name such as "hq" to a Quality.
func ParseQuality(s string) (Quality, error) {
	q := Quality(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(Qualities, q) {
		return "", nwerrors.InvalidConfig(fmt.Sprintf("quality: must be one of: QQ LQ MQ HQ VHQ, got %q", s))
	}
	return q, nil
}

var lanczosLobes = map[Quality]int{
	MediumQuality:   4,
	HighQuality:     8,
	VeryHighQuality: 16,
}

// Resample converts the buffer to a new sample rate.
type Resample struct {
	rate    float64
	quality Quality
}

type resampleParams struct {
	Rate    float64 `validate:"gt=0"`
	Quality Quality `validate:"oneof=QQ LQ MQ HQ VHQ"`
}

// DefaultQuality is used when no quality is given.
const DefaultQuality = HighQuality

// NewResample returns a stage resampling to rate. An empty quality selects
// DefaultQuality.
func NewResample(rate float64, quality Quality) (*Resample, error) {
	if quality == "" {
		quality = DefaultQuality
	}
	if err := validation.Validate(resampleParams{Rate: rate, Quality: quality}); err != nil {
		return nil, err
	}
	return &Resample{rate: rate, quality: quality}, nil
}

func (r *Resample) Name() string { return "Resample" }

// Rate returns the target sample rate.
func (r *Resample) Rate() float64 { return r.rate }

// Quality returns the interpolation quality.
func (r *Resample) Quality() Quality { return r.quality }

func (r *Resample) Apply(buf task.Buffer, rate float64) (task.Buffer, float64, error) {
	if !(rate > 0) {
		return nil, 0, fmt.Errorf("source sample rate must be positive, got %g", rate)
	}
	if rate == r.rate {
		return buf.Clone(), rate, nil
	}
	ratio := r.rate / rate
	frames := int(math.Round(float64(buf.Frames()) * ratio))

	out := make(task.Buffer, len(buf))
	for c, ch := range buf {
		out[c] = r.channel(ch, ratio, frames)
	}
	return out, r.rate, nil
}

func (r *Resample) channel(in []float64, ratio float64, frames int) []float64 {
	out := make([]float64, frames)
	if len(in) == 0 {
		return out
	}
	switch r.quality {
	case QuickQuality:
		for i := range out {
			out[i] = in[clampIndex(int(math.Round(float64(i)/ratio)), len(in))]
		}
	case LowQuality:
		for i := range out {
			pos := float64(i) / ratio
			i0 := int(math.Floor(pos))
			frac := pos - float64(i0)
			a := in[clampIndex(i0, len(in))]
			b := in[clampIndex(i0+1, len(in))]
			out[i] = a + (b-a)*frac
		}
	default:
		lanczosResample(in, out, ratio, lanczosLobes[r.quality])
	}
	return out
}

// lanczosResample filters with a windowed sinc. When downsampling the
// kernel is stretched to cut off below the new Nyquist frequency.
func lanczosResample(in, out []float64, ratio float64, lobes int) {
	scale := math.Min(1, ratio)
	support := float64(lobes) / scale
	for i := range out {
		pos := float64(i) / ratio
		lo := max(int(math.Ceil(pos-support)), 0)
		hi := min(int(math.Floor(pos+support)), len(in)-1)
		var sum, weights float64
		for j := lo; j <= hi; j++ {
			w := lanczos((pos-float64(j))*scale, lobes)
			sum += w * in[j]
			weights += w
		}
		if weights != 0 {
			out[i] = sum / weights
		}
	}
}

func lanczos(x float64, lobes int) float64 {
	a := float64(lobes)
	switch {
	case x == 0:
		return 1
	case math.Abs(x) >= a:
		return 0
	}
	px := math.Pi * x
	return a * math.Sin(px) * math.Sin(px/a) / (px * px)
}

func clampIndex(i, n int) int {
	return min(max(i, 0), n-1)
}
