package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/devbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/monitoring"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options configures a WebSocket transport.
type Options struct {
	Logger  *logging.Logger
	Metrics *monitoring.Metrics
	Dialer  *websocket.Dialer

	// ReconnectEvery and ReconnectBurst throttle Reconnect so a flapping
	// endpoint is not redialed in a tight loop.
	ReconnectEvery time.Duration
	ReconnectBurst int

	WriteTimeout time.Duration
	// ReadLimit caps a single inbound frame. Zero means unlimited.
	ReadLimit int64
}

// DefaultOptions returns options suitable for a local browser endpoint.
func DefaultOptions() Options {
	return Options{
		Logger:         logging.NewNop(),
		ReconnectEvery: 250 * time.Millisecond,
		ReconnectBurst: 3,
		WriteTimeout:   10 * time.Second,
	}
}

// WebSocket is a Transport over gorilla/websocket.
type WebSocket struct {
	opts    Options
	log     *logging.Logger
	limiter *rate.Limiter

	mu      sync.RWMutex
	conn    *websocket.Conn
	url     string
	handler Handler
	closed  bool

	writeMu sync.Mutex
	open    atomic.Bool
}

// NewWebSocket creates an unconnected transport.
func NewWebSocket(opts Options) *WebSocket {
	defaults := DefaultOptions()
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   64 * 1024,
			WriteBufferSize:  64 * 1024,
		}
	}
	if opts.ReconnectEvery <= 0 {
		opts.ReconnectEvery = defaults.ReconnectEvery
	}
	if opts.ReconnectBurst <= 0 {
		opts.ReconnectBurst = defaults.ReconnectBurst
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}

	return &WebSocket{
		opts:    opts,
		log:     opts.Logger.Named("transport"),
		limiter: rate.NewLimiter(rate.Every(opts.ReconnectEvery), opts.ReconnectBurst),
		handler: NopHandler,
	}
}

// SetHandler installs the receiver of inbound frames.
func (w *WebSocket) SetHandler(h Handler) {
	if h == nil {
		h = NopHandler
	}
	w.mu.Lock()
	w.handler = h
	w.mu.Unlock()
}

// URL returns the endpoint of the last successful Connect.
func (w *WebSocket) URL() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.url
}

// Connect dials url, replacing any existing connection.
func (w *WebSocket) Connect(ctx context.Context, url string) error {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	conn, _, err := w.opts.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		w.log.Warn("dial failed", zap.String("url", url), zap.Error(err))
		return fmt.Errorf("dial %s: %w", url, err)
	}
	if w.opts.ReadLimit > 0 {
		conn.SetReadLimit(w.opts.ReadLimit)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	old := w.conn
	w.conn = conn
	w.url = url
	handler := w.handler
	w.open.Store(true)
	w.mu.Unlock()

	if old != nil {
		old.Close()
	}

	w.log.Info("connected", zap.String("url", url))
	handler.OnOpen()

	go w.readLoop(conn)
	return nil
}

// Reconnect redials the last endpoint. Attempts are rate limited.
func (w *WebSocket) Reconnect(ctx context.Context) error {
	url := w.URL()
	if url == "" {
		return ErrNoEndpoint
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	err := w.Connect(ctx, url)
	if err != nil {
		w.opts.Metrics.RecordReconnect(monitoring.StatusError)
		return err
	}
	w.opts.Metrics.RecordReconnect(monitoring.StatusOK)
	return nil
}

// IsOpen reports whether the connection is usable.
func (w *WebSocket) IsOpen() bool {
	return w.open.Load()
}

// Send writes one text frame.
func (w *WebSocket) Send(ctx context.Context, data []byte) error {
	w.mu.RLock()
	conn := w.conn
	closed := w.closed
	w.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if conn == nil || !w.open.Load() {
		return ErrNotConnected
	}

	deadline := time.Now().Add(w.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	w.opts.Metrics.RecordWSMessage("out", "text")
	return nil
}

// Close shuts the connection down. Further calls fail with ErrClosed.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return nil
	}

	w.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	w.writeMu.Unlock()

	return conn.Close()
}

func (w *WebSocket) readLoop(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			w.finish(conn, err)
			return
		}

		w.mu.RLock()
		handler := w.handler
		w.mu.RUnlock()

		switch mt {
		case websocket.TextMessage:
			w.opts.Metrics.RecordWSMessage("in", "text")
			handler.OnText(data)
		case websocket.BinaryMessage:
			w.opts.Metrics.RecordWSMessage("in", "binary")
			handler.OnBinary(data)
		}
	}
}

// finish reports the end of conn unless it has already been replaced.
func (w *WebSocket) finish(conn *websocket.Conn, err error) {
	w.mu.Lock()
	if w.conn != conn {
		w.mu.Unlock()
		return
	}
	w.open.Store(false)
	closed := w.closed
	handler := w.handler
	w.mu.Unlock()

	var ce *websocket.CloseError
	switch {
	case errors.As(err, &ce):
		w.log.Info("connection closed", zap.Int("code", ce.Code), zap.String("reason", ce.Text))
		handler.OnClose(ce.Code, ce.Text)
	case closed:
		w.log.Info("connection closed locally")
		handler.OnClose(websocket.CloseNormalClosure, "closed by client")
	default:
		w.log.Warn("connection failed", zap.Error(err))
		handler.OnFailure(err)
	}
}
