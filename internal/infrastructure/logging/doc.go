// Package logging provides structured logging for the Gray Logic Hub.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the hub.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Per-component child loggers
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	store.SetLogger(logger.Component("automation"))
//	logger.Info("starting hub", "port", 8080)
//
// Never log secrets, tokens or passwords.
package logging
