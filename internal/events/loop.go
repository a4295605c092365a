package events

import (
	"sync"
)

// Loop feeds a router from its own goroutine in arrival order. Posting never
// blocks, so the transport receive path is never held up by a slow listener
// and listeners may issue calls that wait for responses.
type Loop struct {
	router *Router

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*Event
	closed bool
	done   chan struct{}
}

// NewLoop starts a dispatch goroutine for router.
func NewLoop(router *Router) *Loop {
	l := &Loop{
		router: router,
		done:   make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Post queues ev. It reports false once the loop is closed.
func (l *Loop) Post(ev *Event) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.queue = append(l.queue, ev)
	l.cond.Signal()
	return true
}

// Len returns the number of queued events.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Stop stops accepting events without waiting. The goroutine delivers what
// is already queued and then exits. Listeners may call Stop.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		l.cond.Broadcast()
	}
}

// Done is closed once the goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Close is Stop followed by a wait for the goroutine to exit. Calling it from
// a listener deadlocks; use Stop there.
func (l *Loop) Close() {
	l.Stop()
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		ev := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.router.Dispatch(ev)
	}
}
