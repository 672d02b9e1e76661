// Package docparse extracts plain text from binary documents (PDF, Office,
// OpenDocument) through a pluggable text extraction engine.
package docparse

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"gwi.com/campus-knowledge/internal/fetch"
	"gwi.com/campus-knowledge/internal/metrics"
	"gwi.com/campus-knowledge/internal/utils"
)

var ErrFileNotFound = errors.New("file not found")

// ParseError reports an engine failure for Source.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Engine converts the document at path into plain text.
type Engine interface {
	Extract(ctx context.Context, path string, contentType string) (string, error)
}

// Document is the parsed form of a file or remote document.
type Document struct {
	Title       string
	Text        string
	ContentType string
}

type Parser struct {
	engine  Engine
	fetcher *fetch.Client
	tempDir string
}

func NewParser(engine Engine, fetcher *fetch.Client, tempDir string) *Parser {
	return &Parser{engine: engine, fetcher: fetcher, tempDir: tempDir}
}

// ParseFile extracts the text of a local file.
func (p *Parser) ParseFile(ctx context.Context, filePath string) (*Document, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", filePath, ErrFileNotFound)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", filePath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", filePath, ErrFileNotFound)
	}

	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, &ParseError{Source: filePath, Err: err}
	}

	text, err := p.engine.Extract(ctx, filePath, mtype.String())
	if err != nil {
		return nil, &ParseError{Source: filePath, Err: err}
	}

	return &Document{
		Title:       titleFromPath(filePath),
		Text:        utils.CollapseBlankLines(text),
		ContentType: mtype.String(),
	}, nil
}

// ParseURL downloads a remote document into a temporary file, parses it and
// removes the temporary file on every path.
func (p *Parser) ParseURL(ctx context.Context, rawURL string) (*Document, error) {
	tmp, err := os.CreateTemp(p.tempDir, fmt.Sprintf("ingest-%d-*%s", time.Now().UnixNano(), urlExtension(rawURL)))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	metrics.TempFiles.Inc()
	defer func() {
		tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to remove temp file", "path", tmp.Name(), "error", err)
		}
		metrics.TempFiles.Dec()
	}()

	if _, _, err := p.fetcher.Download(ctx, rawURL, tmp); err != nil {
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush temp file: %w", err)
	}

	mtype, err := mimetype.DetectFile(tmp.Name())
	if err != nil {
		return nil, &ParseError{Source: rawURL, Err: err}
	}

	text, err := p.engine.Extract(ctx, tmp.Name(), mtype.String())
	if err != nil {
		return nil, &ParseError{Source: rawURL, Err: err}
	}

	return &Document{
		Title:       titleFromURL(rawURL),
		Text:        utils.CollapseBlankLines(text),
		ContentType: mtype.String(),
	}, nil
}

func urlExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) > 8 {
		return ""
	}
	return ext
}

func titleFromPath(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

func titleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return rawURL
	}
	if title, err := url.PathUnescape(titleFromPath(u.Path)); err == nil && title != "" {
		return title
	}
	return rawURL
}
