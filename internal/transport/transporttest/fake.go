// Package transporttest provides an in-memory Transport that records sent
// frames and plays back scripted inbound frames in order.
package transporttest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/devbridge/internal/protocol"
	"github.com/GriffinCanCode/devbridge/internal/transport"
)

// Request is a decoded outbound frame.
type Request struct {
	ID        int64           `json:"id"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	SessionID string          `json:"sessionId,omitempty"`
	Raw       []byte          `json:"-"`
}

// Param decodes a single parameter.
func (r Request) Param(key string) any {
	var m map[string]any
	if err := protocol.Unmarshal(r.Params, &m); err != nil {
		return nil
	}
	return m[key]
}

// Responder scripts the remote side: it receives each outbound request and
// returns the frames to deliver in reply.
type Responder func(req Request) []string

// Fake is a scripted Transport.
type Fake struct {
	mu        sync.Mutex
	handler   transport.Handler
	open      bool
	closed    bool
	url       string
	connects  []string
	sent      []Request
	responder Responder

	ConnectErr error

	sentCh chan Request
	inbox  chan func()
	stop   chan struct{}
	once   sync.Once
}

// New creates a disconnected fake with an ordered delivery goroutine.
func New() *Fake {
	f := &Fake{
		handler: transport.NopHandler,
		sentCh:  make(chan Request, 1024),
		inbox:   make(chan func(), 1024),
		stop:    make(chan struct{}),
	}
	go f.deliver()
	return f
}

// Connected returns a fake already connected to url.
func Connected(url string) *Fake {
	f := New()
	f.mu.Lock()
	f.open = true
	f.url = url
	f.mu.Unlock()
	return f
}

func (f *Fake) deliver() {
	for {
		select {
		case fn := <-f.inbox:
			fn()
		case <-f.stop:
			return
		}
	}
}

func (f *Fake) enqueue(fn func()) {
	select {
	case f.inbox <- fn:
	case <-f.stop:
	}
}

// Respond installs the script for outbound requests.
func (f *Fake) Respond(r Responder) {
	f.mu.Lock()
	f.responder = r
	f.mu.Unlock()
}

// SetHandler implements transport.Transport.
func (f *Fake) SetHandler(h transport.Handler) {
	if h == nil {
		h = transport.NopHandler
	}
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

// Connect implements transport.Transport.
func (f *Fake) Connect(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.connects = append(f.connects, url)
	if f.closed {
		f.mu.Unlock()
		return transport.ErrClosed
	}
	if f.ConnectErr != nil {
		err := f.ConnectErr
		f.mu.Unlock()
		return err
	}
	f.open = true
	f.url = url
	h := f.handler
	f.mu.Unlock()

	h.OnOpen()
	return nil
}

// Reconnect implements transport.Transport.
func (f *Fake) Reconnect(ctx context.Context) error {
	f.mu.Lock()
	url := f.url
	f.mu.Unlock()
	if url == "" {
		return transport.ErrNoEndpoint
	}
	return f.Connect(ctx, url)
}

// IsOpen implements transport.Transport.
func (f *Fake) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// SetOpen flips the connection state without notifying the handler.
func (f *Fake) SetOpen(open bool) {
	f.mu.Lock()
	f.open = open
	f.mu.Unlock()
}

// Send implements transport.Transport.
func (f *Fake) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var req Request
	if err := protocol.Unmarshal(data, &req); err != nil {
		return err
	}
	req.Raw = append([]byte(nil), data...)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return transport.ErrClosed
	}
	if !f.open {
		f.mu.Unlock()
		return transport.ErrNotConnected
	}
	f.sent = append(f.sent, req)
	responder := f.responder
	f.mu.Unlock()

	select {
	case f.sentCh <- req:
	default:
	}

	if responder != nil {
		for _, frame := range responder(req) {
			f.Emit(frame)
		}
	}
	return nil
}

// Close implements transport.Transport.
func (f *Fake) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.open = false
	h := f.handler
	f.mu.Unlock()

	done := make(chan struct{})
	f.enqueue(func() {
		h.OnClose(1000, "closed by client")
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	f.once.Do(func() { close(f.stop) })
	return nil
}

// Emit delivers an inbound text frame.
func (f *Fake) Emit(frame string) {
	data := []byte(frame)
	f.enqueue(func() {
		f.mu.Lock()
		h := f.handler
		f.mu.Unlock()
		h.OnText(data)
	})
}

// EmitAfter delivers an inbound text frame after d.
func (f *Fake) EmitAfter(d time.Duration, frame string) {
	time.AfterFunc(d, func() { f.Emit(frame) })
}

// EmitBinary delivers an inbound binary frame.
func (f *Fake) EmitBinary(data []byte) {
	f.enqueue(func() {
		f.mu.Lock()
		h := f.handler
		f.mu.Unlock()
		h.OnBinary(data)
	})
}

// Drop simulates the remote closing the connection.
func (f *Fake) Drop(code int, reason string) {
	f.mu.Lock()
	f.open = false
	h := f.handler
	f.mu.Unlock()
	f.enqueue(func() { h.OnClose(code, reason) })
}

// Sync blocks until every frame queued so far has been delivered.
func (f *Fake) Sync() {
	done := make(chan struct{})
	f.enqueue(func() { close(done) })
	select {
	case <-done:
	case <-f.stop:
	}
}

// ErrNoRequest is returned by NextRequest when nothing was sent in time.
var ErrNoRequest = errors.New("transporttest: no request sent")

// NextRequest returns the next outbound request, waiting up to timeout.
func (f *Fake) NextRequest(timeout time.Duration) (Request, error) {
	select {
	case req := <-f.sentCh:
		return req, nil
	case <-time.After(timeout):
		return Request{}, ErrNoRequest
	}
}

// Sent returns every outbound request so far.
func (f *Fake) Sent() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.sent))
	copy(out, f.sent)
	return out
}

// Connects returns the urls passed to Connect, including failed attempts.
func (f *Fake) Connects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.connects))
	copy(out, f.connects)
	return out
}

var _ transport.Transport = (*Fake)(nil)
