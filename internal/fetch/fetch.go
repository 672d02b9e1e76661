// Package fetch performs outbound GET requests for ingestion sources.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dustin/go-humanize"
)

var (
	// ErrFetchFailed matches every *FetchError via errors.Is.
	ErrFetchFailed = errors.New("fetch failed")
	ErrTooLarge    = errors.New("response body exceeds size limit")
)

// FetchError reports a non-2xx response or a transport failure for URL.
// StatusCode is zero when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	HTTP      HTTPClient
	UserAgent string
	// MaxTries bounds attempts for transient failures (network errors, 429, 5xx).
	MaxTries uint
	// MaxBytes caps response bodies; zero means unlimited.
	MaxBytes int64
	// InitialInterval is the first retry delay.
	InitialInterval time.Duration
}

func NewClient(timeout time.Duration, userAgent string, maxTries int, maxBytes int64) *Client {
	if maxTries < 1 {
		maxTries = 1
	}
	return &Client{
		HTTP:            &http.Client{Timeout: timeout},
		UserAgent:       userAgent,
		MaxTries:        uint(maxTries),
		MaxBytes:        maxBytes,
		InitialInterval: 500 * time.Millisecond,
	}
}

// Open issues the GET and returns the 2xx response. The caller closes the body.
func (c *Client) Open(ctx context.Context, rawURL string, accept string) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		bo.InitialInterval = c.InitialInterval
	}

	attempt := 0
	resp, err := backoff.Retry(ctx, func() (*http.Response, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, backoff.Permanent(&FetchError{URL: rawURL, Err: err})
		}
		if c.UserAgent != "" {
			req.Header.Set("User-Agent", c.UserAgent)
		}
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(&FetchError{URL: rawURL, Err: ctx.Err()})
			}
			slog.Debug("Fetch attempt failed", "url", rawURL, "attempt", attempt, "error", err)
			return nil, &FetchError{URL: rawURL, Err: err}
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		fetchErr := &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			slog.Debug("Fetch attempt got retryable status", "url", rawURL, "attempt", attempt, "status", resp.StatusCode)
			return nil, fetchErr
		}
		return nil, backoff.Permanent(fetchErr)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(c.maxTries()))

	if err != nil {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			return nil, fetchErr
		}
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	return resp, nil
}

func (c *Client) maxTries() uint {
	if c.MaxTries == 0 {
		return 1
	}
	return c.MaxTries
}

// Get fetches rawURL and reads the whole body, bounded by MaxBytes.
func (c *Client) Get(ctx context.Context, rawURL string, accept string) ([]byte, http.Header, error) {
	resp, err := c.Open(ctx, rawURL, accept)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := c.copyBody(&buf, resp.Body, rawURL); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), resp.Header, nil
}

// Download streams the body of rawURL into w and returns the response header.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) (http.Header, int64, error) {
	resp, err := c.Open(ctx, rawURL, "")
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	n, err := c.copyBody(w, resp.Body, rawURL)
	if err != nil {
		return nil, n, err
	}
	slog.Debug("Downloaded remote document", "url", rawURL, "size", humanize.Bytes(uint64(n)))
	return resp.Header, n, nil
}

func (c *Client) copyBody(w io.Writer, body io.Reader, rawURL string) (int64, error) {
	if c.MaxBytes <= 0 {
		n, err := io.Copy(w, body)
		if err != nil {
			return n, &FetchError{URL: rawURL, Err: err}
		}
		return n, nil
	}
	n, err := io.Copy(w, io.LimitReader(body, c.MaxBytes+1))
	if err != nil {
		return n, &FetchError{URL: rawURL, Err: err}
	}
	if n > c.MaxBytes {
		return n, &FetchError{URL: rawURL, Err: fmt.Errorf("%w (%s)", ErrTooLarge, humanize.Bytes(uint64(c.MaxBytes)))}
	}
	return n, nil
}
