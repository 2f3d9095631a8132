// Package effects provides the built-in processing stages applied to audio
// buffers between loading and writing.
//
// Every constructor validates its parameters and returns an INVALID_CONFIG
// error on bad input, so a constructed stage never fails on its own
// configuration at apply time.
package effects
