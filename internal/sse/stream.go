package sse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const maxFrameBytes = 1 << 20

// Stream is an open answer stream. A single reader goroutine decodes frames
// and delivers them on Events until [END], an error frame, EOF or Close.
type Stream struct {
	ID string

	body   io.ReadCloser
	events chan Event
	done   chan struct{}
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewStream starts reading frames from body.
func NewStream(ctx context.Context, body io.ReadCloser) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		ID:     uuid.NewString(),
		body:   body,
		events: make(chan Event),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go s.read(ctx)
	return s
}

// Open issues a GET for url and returns the stream once the server accepted it.
func Open(ctx context.Context, client *http.Client, url string, header http.Header) (*Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	s := NewStream(streamCtx, resp.Body)
	inner := s.cancel
	s.cancel = func() {
		inner()
		cancel()
	}
	return s, nil
}

// StatusError is returned by Open when the server refuses the stream.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stream request failed with status %d: %s", e.StatusCode, e.Body)
}

func (s *Stream) Events() <-chan Event { return s.events }

// Done is closed once Close has been called.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Close stops the reader and releases the connection. It is safe to call
// more than once and from any goroutine.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.cancel()
	return s.body.Close()
}

func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// apply runs fn unless the stream has been closed. Close waits for a running
// fn, so nothing is applied once Close has returned.
func (s *Stream) apply(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	fn()
	return true
}

func (s *Stream) read(ctx context.Context) {
	defer close(s.events)

	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	var name string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) == 0 {
				name = ""
				continue
			}
			ev := decodeFrame(name, strings.Join(data, "\n"))
			name, data = "", nil
			if !s.send(ctx, ev) {
				return
			}
			if ev.Kind == EventEnd || ev.Kind == EventError {
				return
			}
		case strings.HasPrefix(line, ":"):
			// keepalive comment
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := scanner.Err(); err != nil && !s.Closed() && !errors.Is(err, context.Canceled) {
		s.send(ctx, Event{Kind: EventError, Err: fmt.Errorf("read stream: %w", err)})
	}
}

func (s *Stream) send(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}
