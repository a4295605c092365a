// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Output goes to stderr by default so the bridge never interleaves log lines
// with anything a caller pipes through stdout.
//
// Components take a child logger via Named so every record carries its
// origin (bridge, transport, events, launcher, fetcher, diagnostics).
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	log := logger.Named("launcher")
//	log.Info("browser started", zap.Int("pid", pid))
//	log.Error("handshake failed", zap.Error(err))
package logging
