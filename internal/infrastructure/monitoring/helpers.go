package monitoring

import (
	"context"
	"errors"
	"time"
)

// Call and launch outcome labels.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusTimeout  = "timeout"
	StatusCanceled = "canceled"
)

// Status maps an operation error to an outcome label.
func Status(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.Is(err, context.Canceled):
		return StatusCanceled
	default:
		return StatusError
	}
}

// Snapshot returns a copy of the current counters for the JSON API.
func (m *Metrics) Snapshot() map[string]any {
	if m == nil {
		return map[string]any{}
	}

	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()

	avg := 0.0
	if s.TotalCalls > 0 {
		avg = s.TotalDuration / float64(s.TotalCalls) * 1000
	}

	return map[string]any{
		"uptime_seconds":    time.Since(m.startTime).Seconds(),
		"calls_total":       s.TotalCalls,
		"calls_failed":      s.FailedCalls,
		"call_avg_ms":       avg,
		"events_total":      s.TotalEvents,
		"listener_failures": s.ListenerFailures,
		"unmatched_total":   s.Unmatched,
	}
}
