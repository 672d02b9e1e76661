package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"gwi.com/campus-knowledge/internal/ingest"
	"gwi.com/campus-knowledge/internal/metrics"
	"gwi.com/campus-knowledge/internal/objectstore"
	"gwi.com/campus-knowledge/internal/store"
)

// Normalizer is satisfied by *ingest.Normalizer.
type Normalizer interface {
	Normalize(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

type DocumentServiceConfig struct {
	TempDir           string
	ImportConcurrency int
	// ImportRatePerSec limits requests per host during batch imports.
	ImportRatePerSec float64
}

type DocumentService struct {
	dbStore    *store.SQLiteStore
	normalizer Normalizer
	objects    objectstore.Store
	cfg        DocumentServiceConfig

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

func NewDocumentService(db *store.SQLiteStore, normalizer Normalizer, objects objectstore.Store, cfg DocumentServiceConfig) *DocumentService {
	if cfg.ImportConcurrency <= 0 {
		cfg.ImportConcurrency = 4
	}
	return &DocumentService{
		dbStore:    db,
		normalizer: normalizer,
		objects:    objects,
		cfg:        cfg,
		limiters:   make(map[string]*rate.Limiter),
	}
}

type IngestOptions struct {
	Visibility store.Visibility
	Publish    bool
}

func (o IngestOptions) validate() (IngestOptions, error) {
	if o.Visibility == "" {
		o.Visibility = store.VisibilityOnlyMe
	}
	if !o.Visibility.Valid() {
		return o, fmt.Errorf("unknown visibility %q: %w", o.Visibility, ErrInvalidInput)
	}
	return o, nil
}

func (o IngestOptions) status() store.DocumentStatus {
	if o.Publish {
		return store.StatusSynced
	}
	return store.StatusDraft
}

// Ingest normalizes req and stores the result as a new document.
func (s *DocumentService) Ingest(ctx context.Context, ownerID string, req ingest.Request, opts IngestOptions) (*store.Document, error) {
	opts, err := opts.validate()
	if err != nil {
		return nil, err
	}
	if a, ok := req.(ingest.Authored); ok && strings.TrimSpace(a.Text) == "" {
		return nil, fmt.Errorf("authored text is empty: %w", ErrInvalidInput)
	}

	res, err := s.normalizer.Normalize(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, ownerID, res, opts)
}

func (s *DocumentService) create(ctx context.Context, ownerID string, res *ingest.Result, opts IngestOptions) (*store.Document, error) {
	if strings.TrimSpace(res.Text) == "" {
		return nil, ErrEmptyContent
	}
	doc := &store.Document{
		SourceType: res.SourceType,
		Title:      res.Title,
		Text:       res.Text,
		Visibility: opts.Visibility,
		Status:     opts.status(),
		OwnerID:    ownerID,
	}
	if res.SourceURL != "" {
		sourceURL := res.SourceURL
		doc.SourceURL = &sourceURL
	}
	if err := s.dbStore.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	slog.Info("Stored document", "id", doc.ID, "source_type", doc.SourceType, "status", doc.Status, "owner", ownerID)
	return doc, nil
}

type Upload struct {
	Filename string
	Title    string
	Content  io.Reader
}

// Upload spools the file to disk, normalizes it, and keeps the original in the
// object store. The spooled copy is removed on every path.
func (s *DocumentService) Upload(ctx context.Context, ownerID string, up Upload, opts IngestOptions) (*store.Document, error) {
	opts, err := opts.validate()
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(up.Filename))
	tmp, err := os.CreateTemp(s.cfg.TempDir, fmt.Sprintf("ingest-%d-*%s", time.Now().UnixNano(), ext))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	metrics.TempFiles.Inc()
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
		metrics.TempFiles.Dec()
	}()

	if _, err := io.Copy(tmp, up.Content); err != nil {
		return nil, fmt.Errorf("failed to spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to spool upload: %w", err)
	}

	title := up.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(up.Filename), ext)
	}
	res, err := s.normalizer.Normalize(ctx, ingest.File{Path: tmp.Name(), Title: title})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, ErrEmptyContent
	}

	name, publicURL, err := s.storeOriginal(ctx, tmp.Name(), ext)
	if err != nil {
		return nil, err
	}
	res.SourceURL = publicURL
	doc, err := s.create(ctx, ownerID, res, opts)
	if err != nil {
		if delErr := s.objects.Delete(context.WithoutCancel(ctx), name); delErr != nil {
			slog.Error("Failed to delete stored original after ingest failure", "object", name, "error", delErr)
		}
		return nil, err
	}
	return doc, nil
}

// storeOriginal returns the object name and its public URL.
func (s *DocumentService) storeOriginal(ctx context.Context, path, ext string) (string, string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to detect upload type: %w", err)
	}
	if ext == "" {
		ext = mtype.Extension()
	}
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to reopen upload: %w", err)
	}
	defer f.Close()

	name := fmt.Sprintf("documents/%s%s", uuid.NewString(), ext)
	publicURL, err := s.objects.Put(ctx, name, f, mtype.String())
	if err != nil {
		return "", "", fmt.Errorf("failed to store original upload: %w", err)
	}
	return name, publicURL, nil
}

// ImportResult reports the outcome for one URL of a batch import.
type ImportResult struct {
	URL      string
	Document *store.Document
	Err      error
}

// ImportPages ingests urls concurrently, rate limited per host. Failures are
// reported per URL and never abort the rest of the batch.
func (s *DocumentService) ImportPages(ctx context.Context, ownerID string, urls []string, opts IngestOptions) ([]ImportResult, error) {
	opts, err := opts.validate()
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no urls to import: %w", ErrInvalidInput)
	}

	results := make([]ImportResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ImportConcurrency)

	for i, raw := range urls {
		results[i].URL = raw
		g.Go(func() error {
			req, err := ingest.ClassifyURL(raw)
			if err != nil {
				results[i].Err = err
				return nil
			}
			if err := s.waitForHost(gctx, raw); err != nil {
				results[i].Err = err
				return nil
			}
			doc, err := s.Ingest(gctx, ownerID, req, opts)
			results[i].Document = doc
			results[i].Err = err
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			slog.Warn("Import failed", "url", r.URL, "error", r.Err)
		}
	}
	slog.Info("Batch import finished", "total", len(urls), "failed", failed)
	return results, nil
}

func (s *DocumentService) waitForHost(ctx context.Context, rawURL string) error {
	if s.cfg.ImportRatePerSec <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	s.limitersMu.Lock()
	limiter, ok := s.limiters[u.Host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.ImportRatePerSec), 1)
		s.limiters[u.Host] = limiter
	}
	s.limitersMu.Unlock()
	return limiter.Wait(ctx)
}

// Publish moves a draft document to synced.
func (s *DocumentService) Publish(ctx context.Context, ownerID, documentID string) (*store.Document, error) {
	if _, err := s.ownedDocument(ctx, ownerID, documentID); err != nil {
		return nil, err
	}
	if err := s.dbStore.TransitionDocument(ctx, documentID, store.StatusDraft, store.StatusSynced); err != nil {
		return nil, stateError(err)
	}
	return s.dbStore.GetDocument(ctx, documentID)
}

// Resync re-fetches a document from its source URL and replaces its text. On
// failure the document returns to synced with its previous text.
func (s *DocumentService) Resync(ctx context.Context, ownerID, documentID string) (*store.Document, error) {
	doc, err := s.ownedDocument(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.SourceURL == nil || doc.SourceType == store.SourceAuthored {
		return nil, fmt.Errorf("document %s has no source to re-sync from: %w", documentID, ErrInvalidState)
	}

	var req ingest.Request = ingest.PageURL{URL: *doc.SourceURL}
	if doc.SourceType == store.SourceUploaded {
		req = ingest.DocumentURL{URL: *doc.SourceURL, Title: doc.Title}
	}

	if err := s.dbStore.TransitionDocument(ctx, documentID, store.StatusSynced, store.StatusSyncing); err != nil {
		return nil, stateError(err)
	}

	res, err := s.normalizer.Normalize(ctx, req)
	if err == nil && strings.TrimSpace(res.Text) == "" {
		err = ErrEmptyContent
	}
	if err != nil {
		s.restoreSynced(ctx, documentID)
		return nil, err
	}

	title := doc.Title
	if doc.SourceType == store.SourceWebImported && res.Title != "" {
		title = res.Title
	}
	// the fetched text is committed even if the caller has gone away
	persistCtx := context.WithoutCancel(ctx)
	if err := s.dbStore.ReplaceDocumentText(persistCtx, documentID, title, res.Text); err != nil {
		s.restoreSynced(ctx, documentID)
		return nil, stateError(err)
	}
	slog.Info("Re-synced document", "id", documentID, "chars", len(res.Text))
	return s.dbStore.GetDocument(persistCtx, documentID)
}

// restoreSynced moves a document stuck in syncing back to synced, keeping its
// previous text.
func (s *DocumentService) restoreSynced(ctx context.Context, documentID string) {
	err := s.dbStore.TransitionDocument(context.WithoutCancel(ctx), documentID, store.StatusSyncing, store.StatusSynced)
	if err != nil && !errors.Is(err, store.ErrStatusConflict) {
		slog.Error("Failed to restore document after re-sync failure", "id", documentID, "error", err)
	}
}

func (s *DocumentService) ownedDocument(ctx context.Context, ownerID, documentID string) (*store.Document, error) {
	doc, err := s.Get(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, fmt.Errorf("document %s belongs to another user: %w", documentID, ErrForbidden)
	}
	return doc, nil
}

// Get returns the document if viewerID may see it.
func (s *DocumentService) Get(ctx context.Context, viewerID, documentID string) (*store.Document, error) {
	doc, err := s.dbStore.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != viewerID && doc.Visibility != store.VisibilityViewOnly {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, viewerID string) ([]store.Document, error) {
	return s.dbStore.ListVisibleDocuments(ctx, viewerID, false)
}

func stateError(err error) error {
	if errors.Is(err, store.ErrStatusConflict) {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return err
}
