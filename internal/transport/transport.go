// Package transport carries protocol frames over a single persistent
// connection. Implementations deliver inbound frames to a Handler from one
// goroutine, in wire order.
package transport

import (
	"context"
	"errors"
)

var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrClosed       = errors.New("transport: closed")
	ErrNoEndpoint   = errors.New("transport: no endpoint to reconnect to")
)

// Handler receives inbound frames and lifecycle notifications.
type Handler interface {
	OnOpen()
	OnText(data []byte)
	OnBinary(data []byte)
	OnClose(code int, reason string)
	OnFailure(err error)
}

// Transport is a connection that can be re-established against the last
// endpoint it was connected to. Send is safe for concurrent use.
type Transport interface {
	Connect(ctx context.Context, url string) error
	Reconnect(ctx context.Context) error
	IsOpen() bool
	Send(ctx context.Context, data []byte) error
	Close() error
	SetHandler(h Handler)
}

type nopHandler struct{}

func (nopHandler) OnOpen()             {}
func (nopHandler) OnText([]byte)       {}
func (nopHandler) OnBinary([]byte)     {}
func (nopHandler) OnClose(int, string) {}
func (nopHandler) OnFailure(error)     {}

// NopHandler discards everything.
var NopHandler Handler = nopHandler{}
