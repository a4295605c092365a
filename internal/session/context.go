package session

import (
	"context"
	"sync"
)

type selector struct {
	mu sync.Mutex
	id string
}

type selectorKey struct{}

type bindingKey struct{}

// Begin returns a context carrying a fresh, empty session selector.
func Begin(ctx context.Context) context.Context {
	return context.WithValue(ctx, selectorKey{}, &selector{})
}

// SetCurrent points the chain's selector at id. It reports false when ctx
// was not prepared with Begin.
func SetCurrent(ctx context.Context, id string) bool {
	s, ok := ctx.Value(selectorKey{}).(*selector)
	if !ok {
		return false
	}
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
	return true
}

// ClearCurrent resets the chain's selector.
func ClearCurrent(ctx context.Context) {
	SetCurrent(ctx, "")
}

// Current returns the session the next call on ctx should target: the
// selector if set, else the bound id, else "".
func Current(ctx context.Context) string {
	if s, ok := ctx.Value(selectorKey{}).(*selector); ok {
		s.mu.Lock()
		id := s.id
		s.mu.Unlock()
		if id != "" {
			return id
		}
	}
	return Bound(ctx)
}

// WithID binds id to every call made with the returned context.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, bindingKey{}, id)
}

// Bound returns the id bound with WithID, or "".
func Bound(ctx context.Context) string {
	id, _ := ctx.Value(bindingKey{}).(string)
	return id
}
