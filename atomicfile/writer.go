package atomicfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/afero"

	nwerrors "github.com/ionite34/nwave/errors"
)

// DefaultPerm is the permission given to a newly created destination.
const DefaultPerm fs.FileMode = 0o644

// ErrFinished is returned when a Writer is used after Commit or Close.
var ErrFinished = errors.New("atomicfile: writer already finished")

// Writer is a scoped handle on a temporary file that replaces a destination
// on Commit. Close without Commit discards the temporary file.
type Writer struct {
	fs          afero.Fs
	destination string
	overwrite   bool
	temp        afero.File

	mu       sync.Mutex
	finished bool
}

// Open allocates a temporary file next to destination. It fails with an
// INVALID_TARGET error when destination is a directory.
func Open(fsys afero.Fs, destination string, overwrite bool) (*Writer, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if info, err := fsys.Stat(destination); err == nil && info.IsDir() {
		return nil, nwerrors.InvalidTarget(destination)
	}

	dir, base := filepath.Split(destination)
	if dir == "" {
		dir = "."
	}
	temp, err := afero.TempFile(fsys, dir, "."+base+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("atomicfile: create temp file in %s: %w", dir, err)
	}

	return &Writer{
		fs:          fsys,
		destination: destination,
		overwrite:   overwrite,
		temp:        temp,
	}, nil
}

// File returns the temporary file. It supports Write and Seek.
func (w *Writer) File() afero.File { return w.temp }

// Write writes p to the temporary file.
func (w *Writer) Write(p []byte) (int, error) { return w.temp.Write(p) }

// Seek seeks within the temporary file.
func (w *Writer) Seek(offset int64, whence int) (int64, error) {
	return w.temp.Seek(offset, whence)
}

// TempName returns the temporary file's path.
func (w *Writer) TempName() string { return w.temp.Name() }

// Commit publishes the temporary file as the destination. When the
// destination exists and overwrite is false it fails with DESTINATION_EXISTS
// and leaves the destination untouched. The temporary file is gone after
// Commit returns, whatever the outcome.
//
// The existence check and the rename are separate filesystem calls, so a
// destination created by another process in between may still be replaced.
func (w *Writer) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return ErrFinished
	}
	w.finished = true
	defer w.removeTemp()

	if err := w.temp.Sync(); err != nil {
		_ = w.temp.Close()
		return fmt.Errorf("atomicfile: sync %s: %w", w.temp.Name(), err)
	}
	if err := w.temp.Close(); err != nil {
		return fmt.Errorf("atomicfile: close %s: %w", w.temp.Name(), err)
	}

	info, err := w.fs.Stat(w.destination)
	switch {
	case err == nil && info.IsDir():
		return nwerrors.InvalidTarget(w.destination)
	case err == nil && !w.overwrite:
		return nwerrors.DestinationExists(w.destination)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("atomicfile: stat %s: %w", w.destination, err)
	}

	// Temp files are created 0600; a replaced destination keeps its mode.
	perm := DefaultPerm
	if err == nil {
		perm = info.Mode().Perm()
	}
	if err := w.fs.Chmod(w.temp.Name(), perm); err != nil {
		return fmt.Errorf("atomicfile: chmod %s: %w", w.temp.Name(), err)
	}

	// rename(2) replaces an existing regular file atomically.
	if err := w.fs.Rename(w.temp.Name(), w.destination); err != nil {
		return fmt.Errorf("atomicfile: rename to %s: %w", w.destination, err)
	}
	if err := syncDir(w.fs, filepath.Dir(w.destination)); err != nil {
		return fmt.Errorf("atomicfile: sync dir of %s: %w", w.destination, err)
	}
	return nil
}

// Close discards the temporary file unless Commit already ran. It is safe to
// defer Close right after Open.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return nil
	}
	w.finished = true
	_ = w.temp.Close()
	return w.removeTemp()
}

func (w *Writer) removeTemp() error {
	err := w.fs.Remove(w.temp.Name())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Write runs fn against a fresh temporary file for destination and commits
// it if fn succeeds. On any failure the temporary file is removed and the
// destination is left as it was.
func Write(fsys afero.Fs, destination string, overwrite bool, fn func(f afero.File) error) (err error) {
	w, err := Open(fsys, destination, overwrite)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = w.Close()
			panic(r)
		}
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()

	if err := fn(w.temp); err != nil {
		return err
	}
	return w.Commit()
}

// syncDir flushes the directory entry after a rename. Only the OS filesystem
// has a directory to sync.
func syncDir(fsys afero.Fs, dir string) error {
	if _, ok := fsys.(*afero.OsFs); !ok {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) {
		return err
	}
	return nil
}
