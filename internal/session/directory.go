// Package session tracks the target sessions multiplexed over the single
// browser connection and carries the session a call chain is aimed at.
//
// A call chain selects its session through its context: Begin attaches a
// mutable selector that SetCurrent and ClearCurrent act on, and WithID binds
// a session for every call made with the returned context. The selector wins
// over the binding. Contexts are never shared between goroutines implicitly,
// so concurrent chains cannot see each other's selection.
//
// SetCurrent on a context that did not come from Begin changes nothing and
// returns false; callers that skip Begin must check the result or bind the
// session with WithID instead.
package session

import (
	"sync"

	"github.com/GriffinCanCode/devbridge/internal/infrastructure/monitoring"
)

// Directory is the set of session ids observed so far, in first-seen order.
// Entries are never removed.
type Directory struct {
	metrics *monitoring.Metrics

	mu    sync.RWMutex
	order []string
	known map[string]struct{}
}

// NewDirectory creates an empty directory.
func NewDirectory(metrics *monitoring.Metrics) *Directory {
	return &Directory{
		metrics: metrics,
		known:   make(map[string]struct{}),
	}
}

// Note records id. Blank and already known ids are ignored; the return value
// reports whether id was new.
func (d *Directory) Note(id string) bool {
	if id == "" {
		return false
	}

	d.mu.RLock()
	_, exists := d.known[id]
	d.mu.RUnlock()
	if exists {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.known[id]; exists {
		return false
	}
	d.known[id] = struct{}{}
	d.order = append(d.order, id)
	d.metrics.SetSessionsKnown(len(d.order))
	return true
}

// Has reports whether id has been observed.
func (d *Directory) Has(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.known[id]
	return ok
}

// Known returns the observed ids in first-seen order.
func (d *Directory) Known() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Len returns the number of observed ids.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}
