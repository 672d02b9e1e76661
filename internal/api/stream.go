package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"gwi.com/campus-knowledge/internal/sse"
)

// lazySink defers the event-stream headers until the first frame so that
// errors detected before generation starts still get a JSON response.
type lazySink struct {
	w       http.ResponseWriter
	mu      sync.Mutex
	writer  sse.Writer
	initErr error
}

func (s *lazySink) open() (sse.Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil && s.initErr == nil {
		sse.SetHeaders(s.w)
		s.writer, s.initErr = sse.NewWriter(s.w)
		if s.initErr == nil {
			s.w.WriteHeader(http.StatusOK)
		}
	}
	return s.writer, s.initErr
}

func (s *lazySink) started() sse.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer
}

func (s *lazySink) WriteStart() error {
	wr, err := s.open()
	if err != nil {
		return err
	}
	return wr.WriteStart()
}

func (s *lazySink) WriteChunk(text string) error {
	wr, err := s.open()
	if err != nil {
		return err
	}
	return wr.WriteChunk(text)
}

func (s *lazySink) WriteEnd() error {
	wr, err := s.open()
	if err != nil {
		return err
	}
	return wr.WriteEnd()
}

func (s *lazySink) WriteError(msg string) error {
	wr, err := s.open()
	if err != nil {
		return err
	}
	return wr.WriteError(msg)
}

func (h *APIHandler) StreamAnswerHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	messageID := chi.URLParam(r, "messageID")

	sink := &lazySink{w: w}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.keepAlive(sink, done)
	}()

	err := h.chatService.StreamAnswer(r.Context(), conversationID, messageID, userID(r), sink)
	close(done)
	wg.Wait()

	if err == nil {
		return
	}
	if sink.started() == nil {
		writeError(w, r, err, "stream answer")
		return
	}
	slog.Info("Answer stream ended with error", "conversation", conversationID, "message", messageID, "error", err)
}

func (h *APIHandler) keepAlive(sink *lazySink, done <-chan struct{}) {
	if h.cfg.StreamKeepAlive <= 0 {
		return
	}
	ticker := time.NewTicker(h.cfg.StreamKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if wr := sink.started(); wr != nil {
				if err := wr.WriteKeepAlive(); err != nil {
					return
				}
			}
		}
	}
}
