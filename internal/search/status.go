package search

import "time"

// Status classifies the outcome of a search call. Rate limits and empty
// result sets are expected control outcomes, not errors.
type Status string

const (
	// StatusOK means at least one candidate page was fetched successfully.
	StatusOK Status = "ok"

	// StatusInvalidQuery means the query was empty or too long.
	StatusInvalidQuery Status = "invalid_query"

	// StatusRateLimited means the minimum request interval has not elapsed.
	// Outcome.Wait carries the remaining time.
	StatusRateLimited Status = "rate_limited"

	// StatusNoResults means the provider answered but no candidate survived
	// filtering and fetching.
	StatusNoResults Status = "no_results"

	// StatusNetworkError means the provider call itself failed.
	StatusNetworkError Status = "network_error"

	// StatusAccessDenied means the provider refused to serve the query.
	StatusAccessDenied Status = "access_denied"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	switch s {
	case StatusOK, StatusInvalidQuery, StatusRateLimited, StatusNoResults,
		StatusNetworkError, StatusAccessDenied:
		return true
	}
	return false
}

// Result is a retained search candidate whose page fetch returned a
// non-empty body. The URL never points at an actively excluded domain.
type Result struct {
	// Title is the search result's display title.
	Title string

	// URL is the fetched page address.
	URL string

	// Text is the readable text extracted from the page body.
	Text string
}

// Outcome is the full return value of a search call. Results is non-empty
// iff Status == StatusOK.
type Outcome struct {
	Status  Status
	Results []Result

	// Wait is the remaining rate-limit window; set iff Status == StatusRateLimited.
	Wait time.Duration

	// Err carries the underlying cause for network_error / access_denied.
	Err error
}
