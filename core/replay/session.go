package replay

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sui-sandbox/replaycore/core/vm"
)

// SessionID identifies one in-flight or completed replay session.
type SessionID uint64

// Session pairs a harness with the cancellation function for its execution
// context, so a caller driving many parallel replays
// can cancel one without touching the others.
type Session struct {
	ID      SessionID
	Harness *vm.Harness
	cancel  context.CancelFunc
}

// Cancel requests cooperative cancellation; the running Execute call observes
// ctx.Done() at the next command boundary.
func (s *Session) Cancel() { s.cancel() }

// SessionRegistry tracks live sessions by an opaque handle: a sync.Map keyed
// by an atomically-incremented counter, generalized from a VM-instance
// handle to a replay session handle.
type SessionRegistry struct {
	sessions sync.Map // SessionID -> *Session
	counter  uint64
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{}
}

// Open registers a new session wrapping h, deriving a cancellable context
// from parent.
func (r *SessionRegistry) Open(parent context.Context, h *vm.Harness) (*Session, context.Context) {
	id := SessionID(atomic.AddUint64(&r.counter, 1))
	ctx, cancel := context.WithCancel(parent)
	s := &Session{ID: id, Harness: h, cancel: cancel}
	r.sessions.Store(id, s)
	return s, ctx
}

// Get returns the session for id, if still open.
func (r *SessionRegistry) Get(id SessionID) (*Session, bool) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Cancel cancels the session's context if it's open, reporting whether one
// was found.
func (r *SessionRegistry) Cancel(id SessionID) bool {
	s, ok := r.Get(id)
	if !ok {
		return false
	}
	s.Cancel()
	return true
}

// Close releases id's entry. Called on both the normal and error path after
// Execute returns, so "dropping a harness releases all resources owned by
// it" holds without relying on a GC finalizer.
func (r *SessionRegistry) Close(id SessionID) {
	if s, ok := r.Get(id); ok {
		s.cancel()
	}
	r.sessions.Delete(id)
}
