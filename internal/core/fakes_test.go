package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"gwi.com/campus-knowledge/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "core.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeModel is a scripted LanguageModel.
type fakeModel struct {
	mu       sync.Mutex
	chunks   []string
	err      error
	block    bool
	started  chan struct{}
	json     string
	jsonErr  error
	title    string
	titleErr error
	requests []AnswerRequest
}

func (f *fakeModel) StreamAnswer(ctx context.Context, req AnswerRequest, onChunk func(string) error) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	for _, c := range f.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	if f.block {
		if f.started != nil {
			close(f.started)
		}
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeModel) CompleteJSON(ctx context.Context, systemInstruction, prompt string) (string, error) {
	return f.json, f.jsonErr
}

func (f *fakeModel) GenerateTitle(ctx context.Context, basis string) (string, error) {
	return f.title, f.titleErr
}

func (f *fakeModel) Close() {}

func (f *fakeModel) lastRequest() AnswerRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// recordingSink records frames written by StreamAnswer.
type recordingSink struct {
	mu        sync.Mutex
	frames    []string
	failAfter int
}

var errClientGone = errors.New("client went away")

func (r *recordingSink) add(frame string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAfter > 0 && len(r.frames) >= r.failAfter {
		return errClientGone
	}
	r.frames = append(r.frames, frame)
	return nil
}

func (r *recordingSink) WriteStart() error            { return r.add("start") }
func (r *recordingSink) WriteChunk(text string) error { return r.add("chunk:" + text) }
func (r *recordingSink) WriteEnd() error              { return r.add("end") }
func (r *recordingSink) WriteError(msg string) error  { return r.add("error:" + msg) }

func (r *recordingSink) Frames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}
