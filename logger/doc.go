// Package logger provides structured logging for nwave using zerolog.
//
// It supports JSON and console output, level configuration, and
// component-scoped loggers carrying task fields.
//
// # Configuration
//
//	logger:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.NewDefault("nwave").WithComponent("scheduler")
//	log.Info("task finished", logger.TaskFields(id, src, dst))
package logger
