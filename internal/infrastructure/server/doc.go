// Package server exposes a small diagnostics HTTP surface for a running
// bridge.
//
// Routes:
//   - GET /health: transport state and pending call count
//   - GET /metrics: Prometheus exposition
//   - GET /metrics/json: counter snapshot
//   - GET /sessions: session ids seen so far
//   - GET /pending: ids of calls awaiting a response
//
// The engine runs recovery, tracing, metrics, CORS and an optional per-client
// rate limit, in that order.
//
// Example Usage:
//
//	srv := server.New(client, server.Options{Addr: cfg.Diagnostics.Addr, Logger: log})
//	go srv.ListenAndServe(ctx)
package server
