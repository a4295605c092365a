// Package events routes inbound frames that answer no pending request.
//
// A single interceptor sees every event first and may claim it. Otherwise the
// listeners registered for the event's method run in registration order,
// followed by the wildcard listeners. Listener failures are contained: an
// error or panic is logged and counted, and the remaining listeners still
// run. The listener table is copy-on-write, so listeners may register and
// unregister from inside a callback.
package events
