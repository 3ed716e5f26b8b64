// Package duckduckgo provides a websearch.Provider backed by the DuckDuckGo
// HTML endpoint.
//
// The HTML endpoint needs no API key and serves static markup, which suits a
// pipeline that fetches static pages anyway. Result anchors point at a
// redirect URL carrying the real target in the uddg query parameter.
package duckduckgo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/MrWong99/songwords/pkg/provider/websearch"
)

// defaultEndpoint is the no-JavaScript search endpoint.
const defaultEndpoint = "https://html.duckduckgo.com/html/"

// userAgent identifies the client. DuckDuckGo rejects empty agents.
const userAgent = "songwords/1.0 (+https://github.com/MrWong99/songwords)"

// Provider implements websearch.Provider against the DuckDuckGo HTML endpoint.
type Provider struct {
	endpoint string
	client   *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithEndpoint overrides the search endpoint URL. Tests point this at a local
// httptest server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// New creates a DuckDuckGo search provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

var _ websearch.Provider = (*Provider)(nil)

// Search implements websearch.Provider.
func (p *Provider) Search(ctx context.Context, query string, max int) ([]websearch.Record, error) {
	reqURL := p.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("duckduckgo: status %d: %w", resp.StatusCode, websearch.ErrAccessDenied)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: parse response: %w", err)
	}

	var records []websearch.Record
	doc.Find("a.result__a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		rec, ok := websearch.FromFields(map[string]string{
			"title": strings.TrimSpace(sel.Text()),
			"href":  resolveRedirect(href),
		})
		if !ok {
			return true
		}
		records = append(records, rec)
		return max <= 0 || len(records) < max
	})

	return records, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg=<target> redirect links.
// Anything that does not look like a redirect is returned unchanged.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	// Scheme-relative redirect links.
	if u.Scheme == "" && strings.HasPrefix(u.Path, "/") {
		return ""
	}
	return href
}
