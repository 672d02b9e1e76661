// Package ingest converts uploaded files, authored text and remote URLs into
// canonical plain text.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"gwi.com/campus-knowledge/internal/docparse"
	"gwi.com/campus-knowledge/internal/fetch"
	"gwi.com/campus-knowledge/internal/metrics"
	"gwi.com/campus-knowledge/internal/store"
	"gwi.com/campus-knowledge/internal/webextract"
)

var (
	ErrNotFound    = docparse.ErrFileNotFound
	ErrFetchFailed = fetch.ErrFetchFailed
	ErrInvalidURL  = errors.New("invalid source url")
)

type (
	FetchError = fetch.FetchError
	ParseError = docparse.ParseError
)

// Request is one of Authored, File, PageURL or DocumentURL.
type Request interface {
	sourceType() store.SourceType
}

// Authored is text written directly by the user.
type Authored struct {
	Title string
	Text  string
}

// File is a local file, typically an upload spooled to disk.
type File struct {
	Path  string
	Title string
}

// PageURL is a web page to run through the content heuristic.
type PageURL struct {
	URL string
}

// DocumentURL is a remote binary document to download and parse.
type DocumentURL struct {
	URL   string
	Title string
}

func (Authored) sourceType() store.SourceType    { return store.SourceAuthored }
func (File) sourceType() store.SourceType        { return store.SourceUploaded }
func (PageURL) sourceType() store.SourceType     { return store.SourceWebImported }
func (DocumentURL) sourceType() store.SourceType { return store.SourceUploaded }

type Result struct {
	Title      string
	Text       string
	SourceType store.SourceType
	SourceURL  string
}

type PageExtractor interface {
	Extract(ctx context.Context, url string) (*webextract.Page, error)
}

type DocumentParser interface {
	ParseFile(ctx context.Context, path string) (*docparse.Document, error)
	ParseURL(ctx context.Context, url string) (*docparse.Document, error)
}

type Normalizer struct {
	pages PageExtractor
	docs  DocumentParser
}

func NewNormalizer(pages PageExtractor, docs DocumentParser) *Normalizer {
	return &Normalizer{pages: pages, docs: docs}
}

// Normalize produces canonical text for req. Errors are ErrNotFound,
// *FetchError or *ParseError, possibly wrapped.
func (n *Normalizer) Normalize(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	sourceType := req.sourceType()

	res, err := n.normalize(ctx, req)

	metrics.IngestionDuration.WithLabelValues(string(sourceType)).Observe(time.Since(start).Seconds())
	metrics.IngestionsTotal.WithLabelValues(string(sourceType), outcome(err)).Inc()
	if err != nil {
		slog.Warn("Normalization failed", "source_type", sourceType, "error", err)
		return nil, err
	}
	slog.Info("Normalized source", "source_type", sourceType, "title", res.Title, "chars", len(res.Text))
	return res, nil
}

func (n *Normalizer) normalize(ctx context.Context, req Request) (*Result, error) {
	switch r := req.(type) {
	case Authored:
		return &Result{Title: r.Title, Text: r.Text, SourceType: store.SourceAuthored}, nil

	case File:
		doc, err := n.docs.ParseFile(ctx, r.Path)
		if err != nil {
			return nil, err
		}
		return &Result{Title: firstNonEmpty(r.Title, doc.Title), Text: doc.Text, SourceType: store.SourceUploaded}, nil

	case PageURL:
		page, err := n.pages.Extract(ctx, r.URL)
		if err != nil {
			return nil, err
		}
		return &Result{Title: firstNonEmpty(page.Title, r.URL), Text: page.Text, SourceType: store.SourceWebImported, SourceURL: r.URL}, nil

	case DocumentURL:
		doc, err := n.docs.ParseURL(ctx, r.URL)
		if err != nil {
			return nil, err
		}
		return &Result{Title: firstNonEmpty(r.Title, doc.Title), Text: doc.Text, SourceType: store.SourceUploaded, SourceURL: r.URL}, nil

	default:
		return nil, fmt.Errorf("unsupported ingest request %T", req)
	}
}

var documentExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".ppt": true, ".pptx": true,
	".odt": true, ".rtf": true, ".xls": true, ".xlsx": true,
}

// ClassifyURL picks the request kind for a bare URL: links to office or PDF
// documents are downloaded and parsed, everything else is treated as a page.
func ClassifyURL(rawURL string) (Request, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if documentExtensions[strings.ToLower(path.Ext(u.Path))] {
		return DocumentURL{URL: u.String()}, nil
	}
	return PageURL{URL: u.String()}, nil
}

func outcome(err error) string {
	var parseErr *ParseError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrFetchFailed):
		return "fetch_failed"
	case errors.As(err, &parseErr):
		return "parse_failed"
	default:
		return "error"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
