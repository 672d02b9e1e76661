package docparse

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/campus-knowledge/internal/fetch"
)

type fakeEngine struct {
	text  string
	err   error
	paths []string
	types []string
}

func (f *fakeEngine) Extract(ctx context.Context, path string, contentType string) (string, error) {
	f.paths = append(f.paths, path)
	f.types = append(f.types, contentType)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return f.text, f.err
}

func testFetcher() *fetch.Client {
	c := fetch.NewClient(5*time.Second, "test", 1, 1<<20)
	c.InitialInterval = time.Millisecond
	return c
}

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "ingest-*"))
	require.NoError(t, err)
	return matches
}

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "handbook.pdf")
	require.NoError(t, os.WriteFile(path, pdfBytes, 0o600))

	engine := &fakeEngine{text: "Student handbook\n\n\n\nChapter one"}
	doc, err := NewParser(engine, testFetcher(), dir).ParseFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "handbook", doc.Title)
	assert.Equal(t, "Student handbook\n\nChapter one", doc.Text)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, []string{"application/pdf"}, engine.types)
}

func TestParseFileMissing(t *testing.T) {
	_, err := NewParser(&fakeEngine{}, testFetcher(), t.TempDir()).ParseFile(context.Background(), "/does/not/exist.pdf")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestParseFileEngineFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(path, pdfBytes, 0o600))

	cause := errors.New("engine exploded")
	_, err := NewParser(&fakeEngine{err: cause}, testFetcher(), dir).ParseFile(context.Background(), path)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, path, parseErr.Source)
	assert.ErrorIs(t, err, cause)
}

func TestParseURLRemovesTempFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/Course%20Guide.pdf", "/files/Course Guide.pdf":
			w.Write(pdfBytes)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	t.Run("success", func(t *testing.T) {
		dir := t.TempDir()
		engine := &fakeEngine{text: "Course guide text"}
		doc, err := NewParser(engine, testFetcher(), dir).ParseURL(context.Background(), srv.URL+"/files/Course%20Guide.pdf")
		require.NoError(t, err)
		assert.Equal(t, "Course Guide", doc.Title)
		assert.Equal(t, "Course guide text", doc.Text)
		require.Len(t, engine.paths, 1)
		assert.Equal(t, ".pdf", filepath.Ext(engine.paths[0]))
		assert.Empty(t, tempFiles(t, dir))
	})

	t.Run("engine failure", func(t *testing.T) {
		dir := t.TempDir()
		_, err := NewParser(&fakeEngine{err: errors.New("bad")}, testFetcher(), dir).ParseURL(context.Background(), srv.URL+"/files/Course%20Guide.pdf")
		var parseErr *ParseError
		require.True(t, errors.As(err, &parseErr))
		assert.Empty(t, tempFiles(t, dir))
	})

	t.Run("download failure", func(t *testing.T) {
		dir := t.TempDir()
		_, err := NewParser(&fakeEngine{}, testFetcher(), dir).ParseURL(context.Background(), srv.URL+"/files/missing.pdf")
		var fetchErr *fetch.FetchError
		require.True(t, errors.As(err, &fetchErr))
		assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
		assert.Empty(t, tempFiles(t, dir))
	})
}

func TestTikaEngine(t *testing.T) {
	var gotMethod, gotAccept, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAccept = r.Header.Get("Accept")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		if r.URL.Path != "/tika" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("extracted text"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, pdfBytes, 0o600))

	text, err := NewTikaEngine(srv.URL+"/", 5*time.Second).Extract(context.Background(), path, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "extracted text", text)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "text/plain", gotAccept)
	assert.Equal(t, "application/pdf", gotType)
	assert.Equal(t, pdfBytes, gotBody)
}

func TestTikaEngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "doc.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x01}, 0o600))

	_, err := NewTikaEngine(srv.URL, time.Second).Extract(context.Background(), path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}
