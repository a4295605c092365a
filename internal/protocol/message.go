package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

var lastID atomic.Int64

// NextID returns the next correlation id. Ids start at 1 and are unique for
// the life of the process.
func NextID() int64 {
	return lastID.Add(1)
}

// Error is a structured protocol failure.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != "" {
		return e.Message + ", " + e.Data
	}
	return e.Message
}

// Message is a request awaiting its response. It is completed at most once,
// either by a matching response or by Abort.
type Message struct {
	ID        int64
	Method    string
	Params    *Params
	SessionID string

	result json.RawMessage
	err    error
	done   chan struct{}
	once   sync.Once
}

// NewMessage creates a request with the next correlation id.
func NewMessage(method string, params *Params, sessionID string) *Message {
	return &Message{
		ID:        NextID(),
		Method:    method,
		Params:    params,
		SessionID: sessionID,
		done:      make(chan struct{}),
	}
}

type request struct {
	ID        int64   `json:"id"`
	Method    string  `json:"method"`
	Params    *Params `json:"params"`
	SessionID string  `json:"sessionId,omitempty"`
}

// Encode serializes the request frame.
func (m *Message) Encode() ([]byte, error) {
	params := m.Params
	if params == nil {
		params = NewParams()
	}
	data, err := Marshal(request{
		ID:        m.ID,
		Method:    m.Method,
		Params:    params,
		SessionID: m.SessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Method, err)
	}
	return data, nil
}

// Complete records the response and releases waiters. A populated perr makes
// the call fail regardless of result. Reports false if already completed.
func (m *Message) Complete(result json.RawMessage, perr *Error) bool {
	completed := false
	m.once.Do(func() {
		m.result = result
		if perr != nil {
			m.err = perr
		}
		close(m.done)
		completed = true
	})
	return completed
}

// Abort fails the message with err. Reports false if already completed.
func (m *Message) Abort(err error) bool {
	completed := false
	m.once.Do(func() {
		m.err = err
		close(m.done)
		completed = true
	})
	return completed
}

// Done is closed once the message completes.
func (m *Message) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the message completes or ctx is done.
func (m *Message) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-m.done:
		return m.result, m.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the raw result. Only meaningful after Done is closed.
func (m *Message) Result() json.RawMessage {
	return m.result
}

// Err returns the failure. Only meaningful after Done is closed.
func (m *Message) Err() error {
	return m.err
}
