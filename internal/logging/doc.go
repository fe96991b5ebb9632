// Package logging provides structured logging for menace launches.
//
// This package wraps Go's log/slog to write JSON log lines to a launcher log
// file. The agent owns the user's terminal for the whole session, so launcher
// diagnostics never go to stdout; only fatal errors are echoed to stderr by
// the CLI after the agent has exited.
//
// # Basic Usage
//
//	logger, err := logging.NewLoggerWithRotation(dir, "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	sessionLogger := logger.WithSession(id)
//	sessionLogger.WithRole("backend").Info("spawned", "pid", pid)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"spawned","session_id":"...","role":"backend","pid":4242}
//
// # Rotation
//
// [RotatingWriter] rotates launcher.log once it would exceed MaxSizeMB,
// keeping MaxBackups numbered backups (launcher.log.1 is the newest).
//
// # Thread Safety
//
// [Logger] and [RotatingWriter] are safe for concurrent use. Child loggers
// created by the With* methods share the parent's writer.
package logging
