package events

import (
	"encoding/json"

	"github.com/GriffinCanCode/devbridge/internal/protocol"
)

// Wildcard registers a listener for every dispatched message.
const Wildcard = "*"

// Event is an inbound message routed to listeners. Pushed events carry a
// method and params; a response nobody was waiting for carries ID and
// Result or Error instead.
type Event struct {
	Method    string
	Params    json.RawMessage
	SessionID string
	ID        *int64
	Result    json.RawMessage
	Error     *protocol.Error
	Raw       []byte
}

// FromFrame converts a decoded frame.
func FromFrame(f *protocol.Frame) *Event {
	return &Event{
		Method:    f.Method,
		Params:    f.Params,
		SessionID: f.SessionID,
		ID:        f.ID,
		Result:    f.Result,
		Error:     f.Error,
		Raw:       f.Raw,
	}
}

// IsResponse reports whether the event is an unmatched response.
func (e *Event) IsResponse() bool {
	return e.ID != nil
}

// Name labels the event for logs and metrics.
func (e *Event) Name() string {
	if e.Method != "" {
		return e.Method
	}
	if e.ID != nil {
		return "response"
	}
	return "unknown"
}

// Decode unmarshals the params, or the result of an unmatched response.
func (e *Event) Decode(v any) error {
	payload := e.Params
	if len(payload) == 0 {
		payload = e.Result
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return protocol.Unmarshal(payload, v)
}

// Listener handles a routed event. A returned error is logged and does not
// stop dispatch to other listeners.
type Listener interface {
	Handle(ev *Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev *Event) error

// Handle implements Listener.
func (f ListenerFunc) Handle(ev *Event) error {
	return f(ev)
}

// Interceptor runs before any listener. Returning true claims the event and
// skips listener dispatch.
type Interceptor func(ev *Event) bool
