package audio

import (
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/ionite34/nwave/task"
)

// wavFormatPCM is the WAVE format tag for integer PCM.
const wavFormatPCM = 1

// DefaultBitDepth is used when a clip does not carry one.
const DefaultBitDepth = 16

// SupportedBitDepths lists the PCM sample sizes that can be read and written.
var SupportedBitDepths = []int{8, 16, 24, 32}

var (
	// ErrInvalidFormat is returned for input that is not a RIFF/WAVE file.
	ErrInvalidFormat = errors.New("not a valid WAV file")
	// ErrUnsupportedFormat is returned for WAV data that is not integer PCM
	// of a supported bit depth.
	ErrUnsupportedFormat = errors.New("unsupported WAV encoding")
)

// FormatError reports a stream that cannot be decoded or encoded.
type FormatError struct {
	Err    error
	Detail string
}

func (e *FormatError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatError(err error, format string, args ...any) error {
	return &FormatError{Err: err, Detail: fmt.Sprintf(format, args...)}
}

// Clip is decoded audio: one slice of samples in [-1, 1] per channel.
type Clip struct {
	Data     task.Buffer
	Rate     float64
	BitDepth int
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c.Rate <= 0 {
		return 0
	}
	return float64(c.Data.Frames()) / c.Rate
}

// Decode reads a PCM WAV stream.
func Decode(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, formatError(ErrInvalidFormat, "%v", err)
	}
	if dec.NumChans == 0 || dec.SampleRate == 0 {
		return nil, &FormatError{Err: ErrInvalidFormat}
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, formatError(ErrUnsupportedFormat, "format tag %d", dec.WavAudioFormat)
	}
	depth := int(dec.BitDepth)
	if !supportedDepth(depth) {
		return nil, formatError(ErrUnsupportedFormat, "%d-bit samples", depth)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, formatError(ErrInvalidFormat, "%v", err)
	}
	if pcm == nil {
		return nil, formatError(ErrInvalidFormat, "no PCM data")
	}

	chans := int(dec.NumChans)
	frames := len(pcm.Data) / chans
	data := make(task.Buffer, chans)
	for c := range data {
		data[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < chans; c++ {
			data[c][i] = toFloat(pcm.Data[i*chans+c], depth)
		}
	}
	return &Clip{Data: data, Rate: float64(dec.SampleRate), BitDepth: depth}, nil
}

// Encode writes c as a PCM WAV stream. The sample rate is rounded to the
// nearest integer and samples are clipped to [-1, 1].
func Encode(w io.WriteSeeker, c *Clip) error {
	depth := c.BitDepth
	if depth == 0 {
		depth = DefaultBitDepth
	}
	if !supportedDepth(depth) {
		return formatError(ErrUnsupportedFormat, "%d-bit samples", depth)
	}
	rate := int(math.Round(c.Rate))
	if rate <= 0 {
		return formatError(ErrUnsupportedFormat, "sample rate %g", c.Rate)
	}
	chans := c.Data.Channels()
	if chans == 0 {
		return errors.New("no channels to write")
	}

	frames := c.Data.Frames()
	ints := make([]int, frames*chans)
	for ch, samples := range c.Data {
		if len(samples) != frames {
			return fmt.Errorf("channel %d has %d frames, expected %d", ch, len(samples), frames)
		}
		for i, v := range samples {
			ints[i*chans+ch] = fromFloat(v, depth)
		}
	}

	enc := wav.NewEncoder(w, rate, depth, chans, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: chans, SampleRate: rate},
		Data:           ints,
		SourceBitDepth: depth,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// Load decodes the WAV file at path.
func Load(fsys afero.Fs, path string) (*Clip, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

func supportedDepth(depth int) bool {
	for _, d := range SupportedBitDepths {
		if d == depth {
			return true
		}
	}
	return false
}

// 8-bit WAV samples are unsigned; wider ones are signed.
func toFloat(v, depth int) float64 {
	scale := float64(int64(1) << (depth - 1))
	if depth == 8 {
		return float64(v-128) / scale
	}
	return float64(v) / scale
}

func fromFloat(x float64, depth int) int {
	scale := float64(int64(1) << (depth - 1))
	switch {
	case math.IsNaN(x):
		x = 0
	case x > 1:
		x = 1
	case x < -1:
		x = -1
	}
	v := int(math.Round(x * scale))
	v = min(max(v, -int(scale)), int(scale)-1)
	if depth == 8 {
		return v + 128
	}
	return v
}
