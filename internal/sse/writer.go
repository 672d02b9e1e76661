package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Writer emits protocol frames on an HTTP response.
type Writer interface {
	WriteStart() error
	WriteChunk(text string) error
	WriteEnd() error
	WriteError(msg string) error
	WriteKeepAlive() error
}

type writer struct {
	w       io.Writer
	flusher http.Flusher
	mu      sync.Mutex
}

// NewWriter wraps w, which must support http.Flusher.
func NewWriter(w http.ResponseWriter) (Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &writer{w: w, flusher: flusher}, nil
}

// SetHeaders sets the headers for an event stream response.
func SetHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func (w *writer) WriteStart() error {
	return w.write("data: " + StartSentinel + "\n\n")
}

func (w *writer) WriteChunk(text string) error {
	data, err := json.Marshal(chunkPayload{Chunk: text})
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	return w.write("data: " + string(data) + "\n\n")
}

func (w *writer) WriteEnd() error {
	return w.write("data: " + EndSentinel + "\n\n")
}

func (w *writer) WriteError(msg string) error {
	data, err := json.Marshal(errorPayload{Error: msg})
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	return w.write("event: " + errorEventName + "\ndata: " + string(data) + "\n\n")
}

func (w *writer) WriteKeepAlive() error {
	return w.write(": ping\n\n")
}

func (w *writer) write(frame string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := io.WriteString(w.w, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	w.flusher.Flush()
	return nil
}

var _ Writer = (*writer)(nil)
