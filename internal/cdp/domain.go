package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/GriffinCanCode/devbridge/internal/events"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/devbridge/internal/protocol"
	"github.com/GriffinCanCode/devbridge/internal/session"
	"go.uber.org/zap"
)

// Domain dispatches calls for one capability group.
type Domain struct {
	client *Client
	spec   *DomainSpec
}

// Name returns the capability group name.
func (d *Domain) Name() string {
	return d.spec.Name
}

// Spec returns the declarations backing the domain.
func (d *Domain) Spec() *DomainSpec {
	return d.spec
}

// Call invokes method with positional arguments matched to the declared
// parameter names; nil arguments are omitted. The result follows the
// declared shape: nil for none, map[string]any for object, and the named
// field's value for field.
func (d *Domain) Call(ctx context.Context, method string, args ...any) (any, error) {
	spec, err := d.lookup(method)
	if err != nil {
		return nil, err
	}
	if len(args) > len(spec.Params) {
		return nil, fmt.Errorf("%w: %s.%s takes %d, got %d", ErrTooManyArgs, d.Name(), method, len(spec.Params), len(args))
	}

	params := protocol.NewParams()
	for i, arg := range args {
		params.Set(spec.Params[i], arg)
	}

	raw, err := d.invoke(ctx, spec, params)
	if err != nil || spec.Returns == ReturnsNone {
		return nil, err
	}
	return shape(spec, raw)
}

// Invoke sends method with explicit params and returns the raw result.
func (d *Domain) Invoke(ctx context.Context, method string, params *protocol.Params) (json.RawMessage, error) {
	spec, err := d.lookup(method)
	if err != nil {
		return nil, err
	}
	return d.invoke(ctx, spec, params)
}

// On registers a listener for a declared event of this domain.
func (d *Domain) On(event string, l events.Listener) (*events.Subscription, error) {
	name, err := d.eventName(event)
	if err != nil {
		return nil, err
	}
	return d.client.router.Register(name, l), nil
}

// Once registers a listener that fires for the next occurrence only.
func (d *Domain) Once(event string, l events.Listener) (*events.Subscription, error) {
	name, err := d.eventName(event)
	if err != nil {
		return nil, err
	}
	return d.client.router.Once(name, l), nil
}

// OnceInSession is Once restricted to events stamped with sessionID. Events
// of the same name from other sessions leave the listener in place.
func (d *Domain) OnceInSession(event, sessionID string, l events.Listener) (*events.Subscription, error) {
	name, err := d.eventName(event)
	if err != nil {
		return nil, err
	}
	return d.client.router.OnceMatch(func(ev *events.Event) bool {
		return ev.Method == name && ev.SessionID == sessionID
	}, l), nil
}

func (d *Domain) eventName(event string) (string, error) {
	if !d.spec.IsEvent(event) {
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownEvent, d.Name(), event)
	}
	return d.Name() + "." + event, nil
}

func (d *Domain) lookup(method string) (*MethodSpec, error) {
	if d.spec.IsEvent(method) {
		return nil, fmt.Errorf("%w: %s.%s", ErrEventNotCallable, d.Name(), method)
	}
	spec, ok := d.spec.Method(method)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, d.Name(), method)
	}
	return spec, nil
}

func (d *Domain) invoke(ctx context.Context, spec *MethodSpec, params *protocol.Params) (json.RawMessage, error) {
	c := d.client
	defer session.ClearCurrent(ctx)

	timer := monitoring.NewTimer(c.metrics, d.Name(), spec.Name)

	if err := c.ensureConnected(ctx); err != nil {
		timer.Stop(err)
		return nil, err
	}

	msg := protocol.NewMessage(d.Name()+"."+spec.Name, params, session.Current(ctx))

	span, ctx := c.tracer.StartSpan(ctx, msg.Method)
	span.SetTag("cdp.id", strconv.FormatInt(msg.ID, 10))
	if msg.SessionID != "" {
		span.SetTag("cdp.session", msg.SessionID)
	}

	result, err := d.roundTrip(ctx, spec, msg)

	if err != nil {
		span.SetError(err)
	}
	span.Finish()
	c.tracer.Submit(span)
	timer.Stop(err)

	return result, err
}

func (d *Domain) roundTrip(ctx context.Context, spec *MethodSpec, msg *protocol.Message) (json.RawMessage, error) {
	c := d.client
	log := c.log.With(
		zap.String("domain", d.Name()),
		zap.String("method", spec.Name),
		zap.Int64("id", msg.ID),
		zap.String("session", msg.SessionID),
	)

	data, err := msg.Encode()
	if err != nil {
		return nil, err
	}

	log.Debug("[BEFORE]", zap.Any("params", msg.Params.Map()))

	c.registry.Register(msg)
	c.metrics.SetPending(c.registry.Pending())

	if err := c.transport.Send(ctx, data); err != nil {
		c.registry.Remove(msg.ID)
		c.metrics.SetPending(c.registry.Pending())
		return nil, fmt.Errorf("send %s: %w", msg.Method, err)
	}

	if spec.FireAndForget {
		d.reclaimLater(msg)
		return nil, nil
	}

	waitCtx := ctx
	if c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}

	result, err := msg.Wait(waitCtx)
	if waitCtx.Err() != nil && errors.Is(err, waitCtx.Err()) {
		result, err = d.abandon(ctx, msg, err)
	}

	if err != nil {
		log.Debug("[AFTER]", zap.Error(err))
		return nil, err
	}
	log.Debug("[AFTER]", zap.ByteString("result", result))

	if spec.Returns == ReturnsNone && !protocol.IsEmpty(result) {
		log.Warn("unexpected result for method declared without one", zap.ByteString("result", result))
	}
	c.noteResultSession(result)
	return result, nil
}

// abandon drops a call whose caller stopped waiting. If the response won the
// race it is returned instead.
func (d *Domain) abandon(ctx context.Context, msg *protocol.Message, waitErr error) (json.RawMessage, error) {
	c := d.client
	if !c.registry.Remove(msg.ID) {
		<-msg.Done()
		return msg.Result(), msg.Err()
	}
	c.metrics.SetPending(c.registry.Pending())

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("%w: %s id %d after %s: %w", ErrCallTimeout, msg.Method, msg.ID, c.opts.CallTimeout, waitErr)
}

// reclaimLater drops the registry entry of a fire-and-forget call if no
// response has arrived within ReclaimAfter.
func (d *Domain) reclaimLater(msg *protocol.Message) {
	c := d.client
	time.AfterFunc(c.opts.ReclaimAfter, func() {
		if c.registry.Remove(msg.ID) {
			c.metrics.SetPending(c.registry.Pending())
		}
	})
}

// noteResultSession records session ids handed out by attach style calls.
func (c *Client) noteResultSession(result json.RawMessage) {
	if protocol.IsEmpty(result) {
		return
	}
	var r struct {
		SessionID string `json:"sessionId"`
	}
	if err := protocol.Unmarshal(result, &r); err == nil {
		c.sessions.Note(r.SessionID)
	}
}

func shape(spec *MethodSpec, raw json.RawMessage) (any, error) {
	var obj map[string]any
	if !protocol.IsEmpty(raw) {
		if err := protocol.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", spec.Name, err)
		}
	}
	if obj == nil {
		obj = map[string]any{}
	}
	if spec.Returns == ReturnsField {
		return obj[spec.Field], nil
	}
	return obj, nil
}
