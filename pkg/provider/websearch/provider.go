// Package websearch defines the Provider interface for web search backends.
//
// A search provider takes a text query and returns candidate result records.
// The lyrics pipeline only needs this single capability; everything else
// (rate limiting, caching, exclusion filtering, fetching) lives in
// internal/search on top of it.
package websearch

import (
	"context"
	"errors"
)

// ErrAccessDenied is returned (possibly wrapped) by providers when the
// backend refuses to serve the query, e.g. on HTTP 403 or CAPTCHA pages.
// Callers surface it as a distinct status instead of a generic network error.
var ErrAccessDenied = errors.New("websearch: access denied")

// Record is a single search result. URL is always non-empty for records
// produced by FromFields.
type Record struct {
	// Title is the result's display title. May be empty.
	Title string

	// URL is the result's target address.
	URL string
}

// FromFields builds a Record from a loosely-typed result document. Different
// backends name the URL field differently; the first non-empty of "link",
// "url", "href" wins. Returns false when no URL field is present.
func FromFields(fields map[string]string) (Record, bool) {
	var url string
	for _, key := range []string{"link", "url", "href"} {
		if v := fields[key]; v != "" {
			url = v
			break
		}
	}
	if url == "" {
		return Record{}, false
	}
	return Record{Title: fields["title"], URL: url}, true
}

// Provider is the abstraction over any web search backend.
//
// Search returns up to max result records for the query, in provider order.
// Implementations must be safe for concurrent use and must honour ctx.
type Provider interface {
	Search(ctx context.Context, query string, max int) ([]Record, error)
}
