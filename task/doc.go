// Package task defines the unit of work processed by nwave: an immutable
// Task describing source, destination, ordered transform stages and an
// overwrite policy, and the Result reported once the task resolves.
//
// Stages are only ever invoked through Apply, which labels any failure with
// the stage's name so a result always reports which phase failed.
package task
