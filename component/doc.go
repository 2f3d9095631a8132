// Package component defines the lifecycle interface shared by long-lived
// parts of nwave (the task scheduler, telemetry providers) and a registry
// that starts them in order and stops them in reverse.
package component
