// Package logging configures the log/slog logger shared by every part of
// the RF bridge.
//
// Each entry carries the service name and build version. Packages derive
// their own logger with Component, and bridges add their id:
//
//	logger := logging.New(cfg.Logging, version)
//	culLog := logger.Component("rf").With("bridge", "cul-1")
//	culLog.Warn("serial reopen failed", "port", "/dev/ttyACM0", "error", err)
//
// Level, format (json or text) and output (stdout or stderr) come from the
// logging section of config.yaml. Undecodable frames are logged at debug
// level; the full serial exchange goes to the per-bridge traffic log.
package logging
