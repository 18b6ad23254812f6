// Package logging provides structured logging for pairlink.
//
// This package wraps Go's log/slog to write JSON-formatted logs with
// persistent context attributes. Every log line of the connection
// lifecycle can carry the component that emitted it, the heartbeat
// attempt it belongs to and the orchestrator state at the time, so a
// single run can be reconstructed after the fact with [AggregateLogs]
// and [FilterLogs].
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via the With* methods share the parent's writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/state", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	orchLogger := logger.WithComponent("orchestrator")
//	orchLogger.WithAttempt(id).Info("heartbeat attempt started")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"heartbeat attempt started","component":"orchestrator","attempt_id":"..."}
//
// # Log Rotation
//
//	logger, err := logging.NewLoggerWithRotation(dir, "INFO", logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	    Compress:   true,
//	})
//
// Rotated files are named pairlink.log.1, pairlink.log.2, ... with .1 the
// most recent; compressed backups get a .gz suffix.
//
// # Testing
//
// Use [NopLogger] to discard output.
package logging
