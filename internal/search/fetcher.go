package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// DefaultFetchTimeout bounds a single candidate page fetch.
const DefaultFetchTimeout = 10 * time.Second

// maxBodySize caps how much HTML is read from an untrusted page.
const maxBodySize = 10 * 1024 * 1024

// fetchUserAgent identifies page fetches. Some lyrics sites reject empty agents.
const fetchUserAgent = "Mozilla/5.0 (compatible; songwords/1.0)"

// Fetcher retrieves a page and extracts its readable text content.
// Implementations must honour ctx; a cancelled fetch is a fetch error.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// HTTPFetcher fetches pages over plain HTTP and runs readability extraction
// on the body, so downstream normalisation sees article text instead of
// navigation chrome and scripts.
type HTTPFetcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPFetcher creates a fetcher with the given per-request timeout.
// A zero timeout falls back to DefaultFetchTimeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

var _ Fetcher = (*HTTPFetcher)(nil)

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("search: build fetch request for %q: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search: fetch %q: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("search: fetch %q: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("search: read body of %q: %w", pageURL, err)
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("search: parse url %q: %w", pageURL, err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		// Readability can fail on sparse pages; fall back to the raw body so
		// the Chinese-run extraction downstream still has a chance.
		return string(body), nil
	}

	return strings.TrimSpace(article.TextContent), nil
}
