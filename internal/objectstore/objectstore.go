// Package objectstore keeps the original bytes of uploaded documents and
// returns a public URL for each stored object.
package objectstore

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

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type Store interface {
	Put(ctx context.Context, name string, r io.Reader, contentType string) (publicURL string, err error)
	// Delete removes name. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error
}

// LocalStore writes objects below a directory that the HTTP server exposes
// under baseURL.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create object store directory %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *LocalStore) Dir() string { return l.dir }

func (l *LocalStore) Put(ctx context.Context, name string, r io.Reader, contentType string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	target := filepath.Join(l.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create object file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write object %s: %w", clean, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close object %s: %w", clean, err)
	}
	if err := os.Rename(f.Name(), target); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to move object %s into place: %w", clean, err)
	}

	slog.Debug("Stored object locally", "path", target, "content_type", contentType)
	return l.baseURL + "/" + escapePath(clean), nil
}

func (l *LocalStore) Delete(ctx context.Context, name string) error {
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	target := filepath.Join(l.dir, filepath.FromSlash(clean))
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object %s: %w", clean, err)
	}
	slog.Debug("Deleted local object", "path", target)
	return nil
}

// GCSStore writes objects to a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (g *GCSStore) Put(ctx context.Context, name string, r io.Reader, contentType string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}

	writer := g.client.Bucket(g.bucket).Object(clean).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "public, max-age=3600"

	if _, err := io.Copy(writer, r); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to copy upload to GCS object %s: %w", clean, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", clean, err)
	}
	slog.Info("Uploaded object to GCS", "bucket", g.bucket, "object", clean)
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, escapePath(clean)), nil
}

func (g *GCSStore) Delete(ctx context.Context, name string) error {
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	err = g.client.Bucket(g.bucket).Object(clean).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %s: %w", clean, err)
	}
	slog.Info("Deleted object from GCS", "bucket", g.bucket, "object", clean)
	return nil
}

func (g *GCSStore) Close() error {
	return g.client.Close()
}

func cleanName(name string) (string, error) {
	clean := strings.TrimLeft(filepath.ToSlash(filepath.Clean("/"+name)), "/")
	if clean == "" || clean == "." {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return clean, nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

var (
	_ Store = (*LocalStore)(nil)
	_ Store = (*GCSStore)(nil)
)
