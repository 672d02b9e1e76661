package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/campus-knowledge/internal/docparse"
	"gwi.com/campus-knowledge/internal/fetch"
	"gwi.com/campus-knowledge/internal/store"
	"gwi.com/campus-knowledge/internal/webextract"
)

type stubPages struct {
	page *webextract.Page
	err  error
}

func (s stubPages) Extract(ctx context.Context, url string) (*webextract.Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	p := *s.page
	p.URL = url
	return &p, nil
}

type stubDocs struct {
	doc *docparse.Document
	err error
}

func (s stubDocs) ParseFile(ctx context.Context, path string) (*docparse.Document, error) {
	return s.doc, s.err
}

func (s stubDocs) ParseURL(ctx context.Context, url string) (*docparse.Document, error) {
	return s.doc, s.err
}

func TestNormalizeAuthoredPassThrough(t *testing.T) {
	n := NewNormalizer(stubPages{}, stubDocs{})
	text := "  Line one\n\n\n\nLine two  "
	res, err := n.Normalize(context.Background(), Authored{Title: "Notes", Text: text})
	require.NoError(t, err)
	assert.Equal(t, text, res.Text)
	assert.Equal(t, "Notes", res.Title)
	assert.Equal(t, store.SourceAuthored, res.SourceType)
}

func TestNormalizeDispatch(t *testing.T) {
	pages := stubPages{page: &webextract.Page{Title: "Admissions", Text: "Apply by May."}}
	docs := stubDocs{doc: &docparse.Document{Title: "guide", Text: "Guide text"}}
	n := NewNormalizer(pages, docs)
	ctx := context.Background()

	res, err := n.Normalize(ctx, File{Path: "/tmp/guide.pdf", Title: "Course Guide"})
	require.NoError(t, err)
	assert.Equal(t, "Course Guide", res.Title)
	assert.Equal(t, store.SourceUploaded, res.SourceType)
	assert.Empty(t, res.SourceURL)

	res, err = n.Normalize(ctx, PageURL{URL: "https://example.edu/admissions"})
	require.NoError(t, err)
	assert.Equal(t, "Admissions", res.Title)
	assert.Equal(t, "Apply by May.", res.Text)
	assert.Equal(t, store.SourceWebImported, res.SourceType)
	assert.Equal(t, "https://example.edu/admissions", res.SourceURL)

	res, err = n.Normalize(ctx, DocumentURL{URL: "https://example.edu/guide.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "guide", res.Title)
	assert.Equal(t, "https://example.edu/guide.pdf", res.SourceURL)
}

func TestNormalizeErrorsPropagate(t *testing.T) {
	ctx := context.Background()

	_, err := NewNormalizer(stubPages{}, stubDocs{err: fmt.Errorf("x: %w", ErrNotFound)}).Normalize(ctx, File{Path: "/missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewNormalizer(stubPages{err: &FetchError{URL: "u", StatusCode: 503}}, stubDocs{}).Normalize(ctx, PageURL{URL: "u"})
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 503, fetchErr.StatusCode)
	assert.Equal(t, "fetch_failed", outcome(err))

	_, err = NewNormalizer(stubPages{}, stubDocs{err: &ParseError{Source: "u", Err: errors.New("boom")}}).Normalize(ctx, DocumentURL{URL: "u"})
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "parse_failed", outcome(err))
}

func TestClassifyURL(t *testing.T) {
	tests := []struct {
		in   string
		want Request
	}{
		{"https://example.edu/handbook.PDF", DocumentURL{URL: "https://example.edu/handbook.PDF"}},
		{"http://example.edu/files/timetable.xlsx?v=2", DocumentURL{URL: "http://example.edu/files/timetable.xlsx?v=2"}},
		{"https://example.edu/page", PageURL{URL: "https://example.edu/page"}},
		{"https://example.edu/index.html", PageURL{URL: "https://example.edu/index.html"}},
	}
	for _, tt := range tests {
		got, err := ClassifyURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "ftp://example.edu/x", "not a url", "https://"} {
		_, err := ClassifyURL(bad)
		assert.ErrorIs(t, err, ErrInvalidURL, bad)
	}
}

type rewriteTransport struct{ target *url.URL }

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = rt.target.Scheme
	clone.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(clone)
}

type echoEngine struct{}

func (echoEngine) Extract(ctx context.Context, path string, contentType string) (string, error) {
	b, err := os.ReadFile(path)
	return "parsed: " + string(b[:4]), err
}

func TestNormalizeEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Write([]byte(`<html><head><title>Example</title></head><body><main><p>Hello World</p></main><nav>Skip</nav></body></html>`))
		case "/doc.pdf":
			w.Write([]byte("%PDF-1.4\n%%EOF\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	fetcher := fetch.NewClient(5*time.Second, "test", 1, 1<<20)
	fetcher.HTTP = &http.Client{Transport: rewriteTransport{target: target}}
	tempDir := t.TempDir()
	n := NewNormalizer(
		webextract.NewExtractor(fetcher, webextract.DefaultOptions()),
		docparse.NewParser(echoEngine{}, fetcher, tempDir),
	)
	ctx := context.Background()

	req, err := ClassifyURL("https://example.com/page")
	require.NoError(t, err)
	res, err := n.Normalize(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Hello World", res.Text)
	assert.Equal(t, "Example", res.Title)

	req, err = ClassifyURL("https://example.com/doc.pdf")
	require.NoError(t, err)
	res, err = n.Normalize(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "parsed: %PDF", res.Text)

	_, err = n.Normalize(ctx, PageURL{URL: "https://example.com/gone"})
	assert.ErrorIs(t, err, ErrFetchFailed)

	_, err = n.Normalize(ctx, File{Path: filepath.Join(tempDir, "nope.pdf")})
	assert.ErrorIs(t, err, ErrNotFound)

	leftovers, err := filepath.Glob(filepath.Join(tempDir, "ingest-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
