package core

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is the cancellation cause of a generation replaced by a newer
// stream or message in the same conversation.
var ErrSuperseded = errors.New("superseded by a newer request")

type activeStream struct {
	id     uint64
	cancel context.CancelCauseFunc
}

// streamRegistry tracks the in-flight generation of each conversation.
type streamRegistry struct {
	mu     sync.Mutex
	nextID uint64
	active map[string]activeStream
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{active: make(map[string]activeStream)}
}

// begin cancels any generation running for conversationID and registers a new
// one. The returned release func must be called when the generation ends.
func (r *streamRegistry) begin(ctx context.Context, conversationID string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)

	r.mu.Lock()
	if prev, ok := r.active[conversationID]; ok {
		prev.cancel(ErrSuperseded)
	}
	r.nextID++
	id := r.nextID
	r.active[conversationID] = activeStream{id: id, cancel: cancel}
	r.mu.Unlock()

	return ctx, func() {
		r.mu.Lock()
		if cur, ok := r.active[conversationID]; ok && cur.id == id {
			delete(r.active, conversationID)
		}
		r.mu.Unlock()
		cancel(context.Canceled)
	}
}

// cancel stops the generation running for conversationID, if any.
func (r *streamRegistry) cancel(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.active[conversationID]
	if ok {
		prev.cancel(ErrSuperseded)
		delete(r.active, conversationID)
	}
	return ok
}

func (r *streamRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
