package sse

import (
	"strings"
	"sync"
)

type State int

const (
	StatePending State = iota
	StateStreaming
	StateComplete
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateCancelled
}

// Snapshot is the accumulated state of one stream.
type Snapshot struct {
	State State
	Text  string
	Err   error
}

type buffer struct {
	state State
	text  strings.Builder
	err   error
}

// Accumulator buffers answer text per stream id. Once a stream reaches a
// terminal state its text is frozen.
type Accumulator struct {
	mu      sync.Mutex
	buffers map[string]*buffer
	onChunk func(streamID, chunk string)
}

func NewAccumulator() *Accumulator {
	return &Accumulator{buffers: make(map[string]*buffer)}
}

// OnChunk registers fn to be called for every applied chunk.
func (a *Accumulator) OnChunk(fn func(streamID, chunk string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChunk = fn
}

func (a *Accumulator) get(id string) *buffer {
	b, ok := a.buffers[id]
	if !ok {
		b = &buffer{}
		a.buffers[id] = b
	}
	return b
}

// Begin marks the stream as started.
func (a *Accumulator) Begin(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b := a.get(id); b.state == StatePending {
		b.state = StateStreaming
	}
}

// Append adds chunk to the stream's text and reports whether it was applied.
func (a *Accumulator) Append(id, chunk string) bool {
	a.mu.Lock()
	b := a.get(id)
	if b.state.Terminal() {
		a.mu.Unlock()
		return false
	}
	b.state = StateStreaming
	b.text.WriteString(chunk)
	hook := a.onChunk
	a.mu.Unlock()

	if hook != nil {
		hook(id, chunk)
	}
	return true
}

func (a *Accumulator) Complete(id string) { a.finish(id, StateComplete, nil) }

func (a *Accumulator) Fail(id string, err error) { a.finish(id, StateFailed, err) }

func (a *Accumulator) Cancel(id string) { a.finish(id, StateCancelled, nil) }

func (a *Accumulator) finish(id string, state State, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.get(id)
	if b.state.Terminal() {
		return
	}
	b.state = state
	b.err = err
}

func (a *Accumulator) Snapshot(id string) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.buffers[id]
	if !ok {
		return Snapshot{State: StatePending}
	}
	return Snapshot{State: b.state, Text: b.text.String(), Err: b.err}
}

// Remove drops the buffer for id.
func (a *Accumulator) Remove(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.buffers, id)
}
