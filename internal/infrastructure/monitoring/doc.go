/*
Package monitoring provides metrics collection for the bridge.

# Overview

Metrics are Prometheus collectors registered on a per-instance registry,
tracking command round trips, event dispatch, listener failures, WebSocket
traffic, reconnects and browser launches.

# Usage

	metrics := monitoring.NewMetrics()

	timer := monitoring.NewTimer(metrics, "Page", "navigate")
	// ... send command, await response ...
	timer.Stop(err)

	metrics.RecordEvent("Page.loadEventFired")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

All recording methods accept a nil receiver so components can run without
metrics.
*/
package monitoring
