// Package audio loads and writes PCM WAV files and implements the per-task
// process step: load the source, run the task's stages, then atomically
// write the destination.
package audio
