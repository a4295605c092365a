package events

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/devbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// Subscription is a handle to a registered listener.
type Subscription struct {
	method   string
	listener Listener
	match    func(*Event) bool
	once     bool
	fired    atomic.Bool
}

// Method returns the event name the subscription listens on.
func (s *Subscription) Method() string {
	return s.method
}

// Router holds the listener table and dispatches events.
type Router struct {
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu          sync.Mutex
	listeners   map[string][]*Subscription
	interceptor Interceptor
}

// NewRouter creates an empty router.
func NewRouter(logger *logging.Logger, metrics *monitoring.Metrics) *Router {
	return &Router{
		log:       logger.Named("events"),
		metrics:   metrics,
		listeners: make(map[string][]*Subscription),
	}
}

// Register adds a persistent listener for method.
func (r *Router) Register(method string, l Listener) *Subscription {
	return r.add(&Subscription{method: method, listener: l})
}

// Once adds a listener that removes itself after its first successful call.
func (r *Router) Once(method string, l Listener) *Subscription {
	return r.add(&Subscription{method: method, listener: l, once: true})
}

// Match adds a wildcard listener that only sees events accepted by pred.
func (r *Router) Match(pred func(*Event) bool, l Listener) *Subscription {
	return r.add(&Subscription{method: Wildcard, listener: l, match: pred})
}

// OnceMatch is Match for a single successful delivery.
func (r *Router) OnceMatch(pred func(*Event) bool, l Listener) *Subscription {
	return r.add(&Subscription{method: Wildcard, listener: l, match: pred, once: true})
}

func (r *Router) add(sub *Subscription) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.listeners[sub.method]
	next := make([]*Subscription, len(current), len(current)+1)
	copy(next, current)
	r.listeners[sub.method] = append(next, sub)
	return sub
}

// Unregister removes a subscription. It reports false if it was not present.
func (r *Router) Unregister(sub *Subscription) bool {
	if sub == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.listeners[sub.method]
	for i, s := range current {
		if s != sub {
			continue
		}
		next := make([]*Subscription, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		if len(next) == 0 {
			delete(r.listeners, sub.method)
		} else {
			r.listeners[sub.method] = next
		}
		return true
	}
	return false
}

// SetInterceptor installs the global interceptor, replacing any previous one.
// A nil fn removes it.
func (r *Router) SetInterceptor(fn Interceptor) {
	r.mu.Lock()
	r.interceptor = fn
	r.mu.Unlock()
}

// Count returns the number of listeners registered for method.
func (r *Router) Count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners[method])
}

func (r *Router) snapshot(method string) (Interceptor, []*Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var subs []*Subscription
	if method != "" && method != Wildcard {
		subs = append(subs, r.listeners[method]...)
	}
	subs = append(subs, r.listeners[Wildcard]...)
	return r.interceptor, subs
}

// Dispatch delivers ev to the interceptor and then to listeners. Listeners
// added or removed during dispatch take effect for the next event.
func (r *Router) Dispatch(ev *Event) {
	r.metrics.RecordEvent(ev.Name())

	interceptor, subs := r.snapshot(ev.Method)
	if interceptor != nil && r.intercept(interceptor, ev) {
		return
	}

	for _, sub := range subs {
		if sub.once && sub.fired.Load() {
			continue
		}
		if sub.match != nil && !r.matches(sub, ev) {
			continue
		}

		if err := r.invoke(sub, ev); err != nil {
			r.metrics.RecordListenerFailure(ev.Name())
			r.log.Warn("listener failed",
				zap.String("event", ev.Name()),
				zap.String("session", ev.SessionID),
				zap.Error(err),
			)
			continue
		}

		if sub.once && sub.fired.CompareAndSwap(false, true) {
			r.Unregister(sub)
		}
	}
}

func (r *Router) intercept(fn Interceptor, ev *Event) (handled bool) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("interceptor panicked", zap.String("event", ev.Name()), zap.Any("panic", p))
			handled = false
		}
	}()
	return fn(ev)
}

func (r *Router) matches(sub *Subscription, ev *Event) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("match predicate panicked", zap.String("event", ev.Name()), zap.Any("panic", p))
			ok = false
		}
	}()
	return sub.match(ev)
}

func (r *Router) invoke(sub *Subscription, ev *Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("listener panicked: %v", p)
		}
	}()
	return sub.listener.Handle(ev)
}
