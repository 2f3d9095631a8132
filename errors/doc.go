// Package errors defines the failure taxonomy for nwave tasks.
// Every failure inside a task's execution is reported as a *TaskError whose
// Kind classifies it and whose Stage names the phase that produced it.
package errors
