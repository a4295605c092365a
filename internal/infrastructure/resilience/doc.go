/*
Package resilience provides a circuit breaker guarding reconnect attempts.

# Overview

When the browser connection drops, every caller that needs the transport
would otherwise hammer the endpoint with reconnects. The breaker trips after
repeated failures so callers fail fast until the open timeout elapses, then
lets a limited number of trial calls through in the half-open state.

# Usage

	breaker := resilience.New("reconnect", resilience.Settings{
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	err := breaker.Execute(ctx, func(ctx context.Context) error {
		return transport.Reconnect(ctx)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open

Caller cancellation does not count as a failure unless IsSuccessful says so.
*/
package resilience
