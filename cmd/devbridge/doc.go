// Package main is the devbridge command.
//
// It launches a Chromium-family browser with remote debugging enabled (or
// attaches to one that is already running), connects to its DevTools
// WebSocket endpoint and keeps the bridge open until interrupted.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - A TOML profile named by BROWSER_PROFILE
//   - CLI flags for the per-run choices
//
// Usage:
//
//	# Launch, open a page and serve diagnostics
//	DIAG_ENABLED=true ./devbridge -url https://example.com
//
//	# Download the pinned revision first
//	./devbridge -fetch
//
//	# Use a browser started elsewhere
//	./devbridge -connect ws://127.0.0.1:9222/devtools/browser/<id>
//
// Signals:
//   - SIGINT, SIGTERM: close the connection and stop the browser
package main
