package cdp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/devbridge/internal/correlation"
	"github.com/GriffinCanCode/devbridge/internal/events"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/devbridge/internal/protocol"
	"github.com/GriffinCanCode/devbridge/internal/session"
	"github.com/GriffinCanCode/devbridge/internal/transport"
	"go.uber.org/zap"
)

// Options configures a Client.
type Options struct {
	// CallTimeout bounds awaited calls. Zero waits until the response
	// arrives or the caller's context ends.
	CallTimeout time.Duration
	// ReclaimAfter is how long a fire-and-forget call keeps its registry
	// entry while no response arrives. It applies even when CallTimeout is
	// zero.
	ReclaimAfter time.Duration
	// ReconnectWindow bounds how long a call waits for a dropped transport
	// to come back, polling every ReconnectPoll.
	ReconnectWindow time.Duration
	ReconnectPoll   time.Duration

	Catalog *Catalog
	Breaker *resilience.Breaker

	Logger  *logging.Logger
	Metrics *monitoring.Metrics
	Tracer  *tracing.Tracer
}

// DefaultOptions returns a 30s call timeout, a 30s reclaim horizon and a 2s
// reconnect window.
func DefaultOptions() Options {
	return Options{
		CallTimeout:     30 * time.Second,
		ReclaimAfter:    30 * time.Second,
		ReconnectWindow: 2 * time.Second,
		ReconnectPoll:   10 * time.Millisecond,
	}
}

// Client bridges awaited calls and pushed events over one transport.
type Client struct {
	transport transport.Transport
	catalog   *Catalog
	registry  *correlation.Registry
	router    *events.Router
	loop      *events.Loop
	sessions  *session.Directory
	breaker   *resilience.Breaker

	log     *logging.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	opts    Options

	domainsMu sync.Mutex
	domains   map[string]*Domain

	reconnecting chan struct{}
	closed       atomic.Bool
}

// New wires a client to t and installs itself as the transport handler.
func New(t transport.Transport, opts Options) *Client {
	defaults := DefaultOptions()
	if opts.ReclaimAfter <= 0 {
		opts.ReclaimAfter = defaults.ReclaimAfter
	}
	if opts.ReconnectWindow <= 0 {
		opts.ReconnectWindow = defaults.ReconnectWindow
	}
	if opts.ReconnectPoll <= 0 {
		opts.ReconnectPoll = defaults.ReconnectPoll
	}
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}

	log := opts.Logger.Named("bridge")
	if opts.Breaker == nil {
		opts.Breaker = resilience.New("reconnect", resilience.Settings{
			MaxRequests: 1,
			Timeout:     5 * time.Second,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to resilience.State) {
				log.Info("breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}

	router := events.NewRouter(opts.Logger, opts.Metrics)
	c := &Client{
		transport:    t,
		catalog:      opts.Catalog,
		registry:     correlation.New(),
		router:       router,
		loop:         events.NewLoop(router),
		sessions:     session.NewDirectory(opts.Metrics),
		breaker:      opts.Breaker,
		log:          log,
		metrics:      opts.Metrics,
		tracer:       opts.Tracer,
		opts:         opts,
		domains:      make(map[string]*Domain),
		reconnecting: make(chan struct{}, 1),
	}
	t.SetHandler(c)
	return c
}

// Connect opens the transport against url.
func (c *Client) Connect(ctx context.Context, url string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := c.transport.Connect(ctx, url); err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return nil
}

// Domain returns the dispatcher for a declared capability group. The same
// instance is returned for the life of the client.
func (c *Client) Domain(name string) (*Domain, error) {
	c.domainsMu.Lock()
	defer c.domainsMu.Unlock()

	if d, ok := c.domains[name]; ok {
		return d, nil
	}
	spec, ok := c.catalog.Domain(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, name)
	}
	d := &Domain{client: c, spec: spec}
	c.domains[name] = d
	return d, nil
}

// MustDomain is Domain for names known to be declared.
func (c *Client) MustDomain(name string) *Domain {
	d, err := c.Domain(name)
	if err != nil {
		panic(err)
	}
	return d
}

// Router exposes the event router for listeners not tied to one domain.
func (c *Client) Router() *events.Router { return c.router }

// Sessions exposes the directory of observed session ids.
func (c *Client) Sessions() *session.Directory { return c.sessions }

// Pending returns the number of calls awaiting a response.
func (c *Client) Pending() int { return c.registry.Pending() }

// PendingIDs returns the ids of calls awaiting a response.
func (c *Client) PendingIDs() []int64 { return c.registry.Snapshot() }

// IsConnected reports whether the transport is open.
func (c *Client) IsConnected() bool {
	return !c.closed.Load() && c.transport.IsOpen()
}

// Close shuts the transport, fails pending calls and stops event dispatch.
// Events already queued are still delivered, after Close returns. Listeners
// may call Close.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := c.transport.Close()
	if n := c.registry.FailAll(transport.ErrClosed); n > 0 {
		c.log.Info("failed pending calls on close", zap.Int("count", n))
	}
	c.metrics.SetPending(0)
	c.loop.Stop()
	return err
}

// OnOpen implements transport.Handler.
func (c *Client) OnOpen() {
	c.log.Debug("transport open")
}

// OnText implements transport.Handler. It runs on the receive goroutine and
// never blocks on a caller.
func (c *Client) OnText(data []byte) {
	frame, err := protocol.DecodeFrame(data)
	if err != nil {
		c.log.Warn("dropping undecodable frame", zap.Error(err), zap.ByteString("frame", data))
		return
	}

	c.sessions.Note(frame.SessionID)

	if frame.IsResponse() {
		if c.registry.Resolve(*frame.ID, frame.Result, frame.Error) {
			c.metrics.SetPending(c.registry.Pending())
			return
		}
		c.metrics.IncUnmatched()
		c.log.Debug("unmatched response", zap.Int64("id", *frame.ID))
	} else {
		c.noteEventSession(frame)
	}

	c.loop.Post(events.FromFrame(frame))
}

// noteEventSession records sessions announced inside event params, such as
// Target.attachedToTarget.
func (c *Client) noteEventSession(frame *protocol.Frame) {
	if len(frame.Params) == 0 {
		return
	}
	var p struct {
		SessionID string `json:"sessionId"`
	}
	if err := protocol.Unmarshal(frame.Params, &p); err == nil {
		c.sessions.Note(p.SessionID)
	}
}

// OnBinary implements transport.Handler. The protocol is text only.
func (c *Client) OnBinary(data []byte) {
	c.log.Debug("ignoring binary frame", zap.Int("bytes", len(data)))
}

// OnClose implements transport.Handler. Responses to in-flight calls cannot
// arrive on a new connection, so they are failed now.
func (c *Client) OnClose(code int, reason string) {
	c.log.Info("transport closed", zap.Int("code", code), zap.String("reason", reason))
	c.failPending(fmt.Errorf("%w: code %d %s", transport.ErrClosed, code, reason))
}

// OnFailure implements transport.Handler.
func (c *Client) OnFailure(err error) {
	c.log.Warn("transport failed", zap.Error(err))
	c.failPending(fmt.Errorf("%w: %w", transport.ErrClosed, err))
}

func (c *Client) failPending(err error) {
	if n := c.registry.FailAll(err); n > 0 {
		c.log.Warn("failed pending calls", zap.Int("count", n), zap.Error(err))
	}
	c.metrics.SetPending(0)
}

// ensureConnected reconnects a dropped transport, waiting up to the
// reconnect window. Only one caller reconnects at a time; the others wait
// for it and then re-check.
func (c *Client) ensureConnected(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.transport.IsOpen() {
		return nil
	}

	select {
	case c.reconnecting <- struct{}{}:
		defer func() { <-c.reconnecting }()
	case <-ctx.Done():
		return ctx.Err()
	}

	if c.transport.IsOpen() {
		return nil
	}

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, c.opts.ReconnectWindow)
		defer cancel()

		if err := c.transport.Reconnect(rctx); err != nil {
			c.log.Warn("reconnect failed", zap.Error(err))
		}

		ticker := time.NewTicker(c.opts.ReconnectPoll)
		defer ticker.Stop()
		for {
			if c.transport.IsOpen() {
				return nil
			}
			select {
			case <-ticker.C:
			case <-rctx.Done():
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("still closed after %s", c.opts.ReconnectWindow)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	c.log.Info("transport reconnected")
	return nil
}
