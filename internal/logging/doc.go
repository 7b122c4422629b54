// Package logging provides structured logging for the instamo orchestrator.
//
// The orchestrator writes JSON lines (log/slog) to instamo.log at the root of
// the cluster directory, next to the per-process logs captured by the drain
// package. Child loggers carry the cluster instance name and the role that an
// entry concerns.
//
//	logger, err := logging.NewLogger(dir, "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.WithCluster("test").WithRole("master").Info("spawned", "pid", pid)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"spawned","cluster":"test","role":"master","pid":4242}
//
// The live file is rotated to instamo.log.1 … instamo.log.N once it exceeds
// RotationConfig.MaxSizeMB. Use [NopLogger] in tests.
package logging
