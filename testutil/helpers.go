package testutil

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/ionite34/nwave/audio"
	"github.com/ionite34/nwave/task"
)

// Tone returns a buffer of the given shape filled with value.
func Tone(channels, frames int, value float64) task.Buffer {
	buf := make(task.Buffer, channels)
	for c := range buf {
		buf[c] = make([]float64, frames)
		for i := range buf[c] {
			buf[c][i] = value
		}
	}
	return buf
}

// WriteWav encodes data as a 16-bit WAV file at path, creating parent
// directories. A nil fsys writes to the OS filesystem.
func WriteWav(t testing.TB, fsys afero.Fs, path string, data task.Buffer, rate float64) {
	t.Helper()
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := fsys.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := audio.Encode(f, &audio.Clip{Data: data, Rate: rate, BitDepth: 16}); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// ReadWav decodes the WAV file at path. A nil fsys reads the OS filesystem.
func ReadWav(t testing.TB, fsys afero.Fs, path string) *audio.Clip {
	t.Helper()
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	clip, err := audio.Load(fsys, path)
	if err != nil {
		t.Fatalf("load %s: %v", path, err)
	}
	return clip
}
