// Package correlation matches inbound responses to the requests that are
// waiting for them.
package correlation

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/devbridge/internal/protocol"
)

// Registry maps correlation ids to pending messages. Register may be called
// from any goroutine; Resolve is fed by the transport receive loop. Each entry
// is removed exactly once, whichever of Resolve, Remove or FailAll gets there
// first.
type Registry struct {
	pending sync.Map // int64 -> *protocol.Message
	count   atomic.Int64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register inserts msg keyed by its id.
func (r *Registry) Register(msg *protocol.Message) {
	if _, loaded := r.pending.LoadOrStore(msg.ID, msg); !loaded {
		r.count.Add(1)
	}
}

// Resolve removes and completes the message with the given id. It reports
// false when nothing was waiting, which means the frame belongs to the event
// router instead.
func (r *Registry) Resolve(id int64, result json.RawMessage, perr *protocol.Error) bool {
	msg, ok := r.take(id)
	if !ok {
		return false
	}
	msg.Complete(result, perr)
	return true
}

// Remove drops the entry without completing it. Used when the caller stops
// waiting; a later response for the id then resolves to nothing.
func (r *Registry) Remove(id int64) bool {
	_, ok := r.take(id)
	return ok
}

// FailAll aborts every pending message with err and empties the registry.
func (r *Registry) FailAll(err error) int {
	failed := 0
	r.pending.Range(func(key, _ any) bool {
		if msg, ok := r.take(key.(int64)); ok {
			msg.Abort(err)
			failed++
		}
		return true
	})
	return failed
}

// Pending returns the number of messages awaiting a response.
func (r *Registry) Pending() int {
	return int(r.count.Load())
}

// Snapshot returns the pending ids in ascending order.
func (r *Registry) Snapshot() []int64 {
	var ids []int64
	r.pending.Range(func(key, _ any) bool {
		ids = append(ids, key.(int64))
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) take(id int64) (*protocol.Message, bool) {
	v, ok := r.pending.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	r.count.Add(-1)
	return v.(*protocol.Message), true
}
