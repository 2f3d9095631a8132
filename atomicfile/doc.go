// Package atomicfile publishes file contents crash-safely: bytes are written
// to a temporary file in the destination's directory and moved into place
// with a single rename, so the destination is either untouched or fully
// replaced.
//
// # Usage
//
//	err := atomicfile.Write(fs, "out/a.wav", false, func(f afero.File) error {
//		_, err := f.Write(data)
//		return err
//	})
package atomicfile
