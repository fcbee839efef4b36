// Package logging provides structured logging for lanes.
//
// This package wraps Go's log/slog to provide JSON-formatted logs carrying
// lane and task context. Worker goroutines, the coordinator loop and the
// registry all log through a [Logger] so a single log file can be filtered
// by lane or task after a run.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer and level.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/lanes", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	laneLogger := logger.WithLane("compute")
//	laneLogger.WithTask(id).Warn("task exceeded budget", "elapsed_ms", 210)
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"task exceeded budget","lane":"compute","task_id":"01J...","elapsed_ms":210}
//
// # Levels
//
// [Logger.SetLevel] changes the level of a logger and all of its children at
// runtime. The CLI uses it to apply logging.level when the config file is
// edited while a command is running.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a
// bytes.Buffer to assert on entries.
package logging
