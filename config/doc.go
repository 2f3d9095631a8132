// Package config loads nwave configuration.
//
// Values come from, in increasing precedence: defaults, a YAML file, a .env
// file, NWAVE_* environment variables and bound command-line flags.
//
//	cfg, err := config.Load(config.WithConfigFile("nwave.yml"))
//
// Environment variables map onto nested keys by splitting on underscores,
// so NWAVE_SCHEDULER_WORKERS sets scheduler.workers.
package config
