package docparse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// TikaEngine extracts text through an Apache Tika server.
type TikaEngine struct {
	baseURL string
	client  *http.Client
}

func NewTikaEngine(baseURL string, timeout time.Duration) *TikaEngine {
	return &TikaEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *TikaEngine) Extract(ctx context.Context, path string, contentType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.baseURL+"/tika", f)
	if err != nil {
		return "", fmt.Errorf("failed to create tika request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if info, err := f.Stat(); err == nil {
		req.ContentLength = info.Size()
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tika request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read tika response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tika returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}
