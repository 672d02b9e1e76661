package sse

import (
	"context"
	"net/http"
	"sync"
)

// Consume drives s to completion, applying its events to acc under s.ID.
// The stream is closed on return. An error frame, or EOF before [END], leaves
// the partial text in acc with StateFailed; cancellation leaves StateCancelled.
func Consume(ctx context.Context, s *Stream, acc *Accumulator) (Snapshot, error) {
	defer s.Close()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			acc.Cancel(s.ID)
			return acc.Snapshot(s.ID), ctx.Err()

		case <-s.Done():
			acc.Cancel(s.ID)
			return acc.Snapshot(s.ID), context.Canceled

		case ev, ok := <-s.Events():
			if !ok {
				if s.Closed() {
					acc.Cancel(s.ID)
					return acc.Snapshot(s.ID), context.Canceled
				}
				s.Close()
				acc.Fail(s.ID, ErrUnexpectedEOF)
				return acc.Snapshot(s.ID), ErrUnexpectedEOF
			}

			var terminal bool
			var streamErr error
			applied := s.apply(func() {
				switch ev.Kind {
				case EventStart:
					acc.Begin(s.ID)
				case EventChunk:
					acc.Append(s.ID, ev.Text)
				case EventEnd:
					acc.Complete(s.ID)
					terminal = true
				case EventError:
					acc.Fail(s.ID, ev.Err)
					terminal = true
					streamErr = ev.Err
				}
			})
			if !applied {
				acc.Cancel(s.ID)
				return acc.Snapshot(s.ID), context.Canceled
			}
			if terminal {
				s.Close()
				return acc.Snapshot(s.ID), streamErr
			}
		}
	}
}

// Client opens answer streams, keeping at most one open at a time.
type Client struct {
	HTTP   *http.Client
	Header http.Header

	acc     *Accumulator
	mu      sync.Mutex
	current *Stream
}

func NewClient(httpClient *http.Client, header http.Header) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{HTTP: httpClient, Header: header, acc: NewAccumulator()}
}

func (c *Client) Accumulator() *Accumulator { return c.acc }

// Ask closes any stream still open from a previous Ask, then opens streamURL
// and consumes it.
func (c *Client) Ask(ctx context.Context, streamURL string) (Snapshot, error) {
	c.mu.Lock()
	if c.current != nil {
		c.current.Close()
		c.acc.Cancel(c.current.ID)
		c.current = nil
	}
	c.mu.Unlock()

	s, err := Open(ctx, c.HTTP, streamURL, c.Header)
	if err != nil {
		return Snapshot{State: StateFailed, Err: err}, err
	}

	c.mu.Lock()
	c.current = s
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.current == s {
			c.current = nil
		}
		c.mu.Unlock()
	}()
	return Consume(ctx, s, c.acc)
}
