// Package search implements the rate-limited, cache-aware lyrics search loop.
//
// A search call composes a provider query biased toward a configured set of
// preferred lyrics sites, filters out domains the exclusion tracker has
// banned, fetches the surviving candidates with a randomised delay between
// requests, and returns only candidates whose page produced readable text.
// Failed fetches feed back into the tracker so repeat offenders disappear
// from future queries.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/songwords/internal/exclusion"
	"github.com/MrWong99/songwords/internal/observe"
	"github.com/MrWong99/songwords/internal/zhtext"
	"github.com/MrWong99/songwords/pkg/provider/websearch"
)

// maxQueryLen bounds accepted query length in runes, not bytes, so
// Chinese queries are not penalized for their UTF-8 encoding.
const maxQueryLen = 500

// DefaultPerQueryMax is how many fetched candidates a query may retain.
const DefaultPerQueryMax = 5

// titleDupThreshold is the Jaro-Winkler similarity above which two result
// titles are treated as the same page mirrored on different URLs.
const titleDupThreshold = 0.95

// providerFanout is how many raw records to request from the provider; the
// surplus absorbs candidates lost to exclusion filtering and fetch failures.
const providerFanout = 4

// DefaultPreferredSites lists lyrics sites the query is biased toward.
var DefaultPreferredSites = []string{
	"mojim.com",
	"kkbox.com",
	"musixmatch.com",
}

// Client drives search and candidate fetching. It borrows the exclusion
// tracker per call; the orchestrator owns both the tracker and the shared
// Governor.
type Client struct {
	provider  websearch.Provider
	governor  *Governor
	fetcher   Fetcher
	logger    *slog.Logger
	metrics   *observe.Metrics
	preferred []string
	perQuery  int

	// sleep and fetchDelay are injectable for tests; fetchDelay returns the
	// randomised pause before each candidate fetch.
	sleep      func(context.Context, time.Duration)
	fetchDelay func() time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithPreferredSites overrides the preferred lyrics site list.
func WithPreferredSites(sites []string) ClientOption {
	return func(c *Client) { c.preferred = sites }
}

// WithPerQueryMax overrides how many fetched results a query may retain.
func WithPerQueryMax(n int) ClientOption {
	return func(c *Client) { c.perQuery = n }
}

// WithFetcher replaces the default HTTP fetcher.
func WithFetcher(f Fetcher) ClientOption {
	return func(c *Client) { c.fetcher = f }
}

// WithClientLogger replaces the default slog logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithClientMetrics records search and fetch metrics on m.
func WithClientMetrics(m *observe.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithNoFetchDelay disables the randomised inter-fetch pause. Test-only.
func WithNoFetchDelay() ClientOption {
	return func(c *Client) {
		c.fetchDelay = func() time.Duration { return 0 }
		c.sleep = func(context.Context, time.Duration) {}
	}
}

// NewClient creates a search client on top of a provider and a shared
// Governor.
func NewClient(provider websearch.Provider, governor *Governor, opts ...ClientOption) *Client {
	c := &Client{
		provider:  provider,
		governor:  governor,
		fetcher:   NewHTTPFetcher(DefaultFetchTimeout),
		logger:    slog.Default(),
		preferred: DefaultPreferredSites,
		perQuery:  DefaultPerQueryMax,
		sleep: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
			}
		},
		fetchDelay: func() time.Duration {
			return time.Second + time.Duration(rand.Int64N(int64(2*time.Second)))
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Search runs the full search-and-fetch loop for query. The tracker is
// consulted for every candidate URL and updated on fetch failures.
func (c *Client) Search(ctx context.Context, query string, tracker *exclusion.Tracker) Outcome {
	out := c.search(ctx, query, tracker)
	if c.metrics != nil {
		c.metrics.RecordSearchOutcome(ctx, string(out.Status))
	}
	return out
}

func (c *Client) search(ctx context.Context, query string, tracker *exclusion.Tracker) Outcome {
	query = strings.TrimSpace(query)
	if query == "" || utf8.RuneCountInString(query) > maxQueryLen {
		return Outcome{Status: StatusInvalidQuery}
	}

	// Traditional input and its Simplified form share one cache slot.
	normalized, _ := zhtext.ToSimplified(query)

	if cached, ok := c.governor.Cached(normalized); ok {
		c.logger.Debug("search cache hit", "query", normalized)
		return Outcome{Status: StatusOK, Results: cached}
	}

	if ok, wait := c.governor.Allow(); !ok {
		return Outcome{Status: StatusRateLimited, Wait: wait}
	}

	// Concurrent identical queries share one provider round trip.
	return c.governor.Coalesce(normalized, func() (Outcome, error) {
		return c.doSearch(ctx, normalized, tracker), nil
	})
}

func (c *Client) doSearch(ctx context.Context, query string, tracker *exclusion.Tracker) Outcome {
	composed := c.composeQuery(query, tracker.ForSearch())
	c.logger.Info("searching", "query", composed)

	start := time.Now()
	records, err := c.provider.Search(ctx, composed, c.perQuery*providerFanout)
	c.governor.MarkRequest()
	if c.metrics != nil {
		c.metrics.SearchDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		if errors.Is(err, websearch.ErrAccessDenied) {
			return Outcome{Status: StatusAccessDenied, Err: err}
		}
		return Outcome{Status: StatusNetworkError, Err: err}
	}

	results := c.fetchCandidates(ctx, records, tracker)
	if len(results) == 0 {
		return Outcome{Status: StatusNoResults}
	}

	c.governor.StoreCache(query, results)
	return Outcome{Status: StatusOK, Results: results}
}

// composeQuery builds the provider query: OR the non-excluded preferred
// sites, bias toward lyrics pages in both scripts, and subtract every
// excluded domain.
func (c *Client) composeQuery(query string, excluded []string) string {
	var parts []string

	var sites []string
	for _, site := range c.preferred {
		if !slices.Contains(excluded, site) {
			sites = append(sites, "site:"+site)
		}
	}
	if len(sites) > 0 {
		parts = append(parts, "("+strings.Join(sites, " OR ")+")")
	}

	parts = append(parts, query, "(歌词 OR 歌詞)")

	for _, domain := range excluded {
		parts = append(parts, "-site:"+domain)
	}

	return strings.Join(parts, " ")
}

// fetchCandidates walks the records in provider order, skipping duplicates
// and excluded domains, and retains candidates whose fetch yields text.
func (c *Client) fetchCandidates(ctx context.Context, records []websearch.Record, tracker *exclusion.Tracker) []Result {
	var results []Result
	seen := map[string]struct{}{}
	fetched := false

	for _, rec := range records {
		if len(results) >= c.perQuery {
			break
		}
		if ctx.Err() != nil {
			break
		}

		if _, dup := seen[rec.URL]; dup {
			continue
		}
		seen[rec.URL] = struct{}{}

		if tracker.IsExcluded(rec.URL) {
			c.logger.Debug("skipping excluded candidate", "url", rec.URL)
			continue
		}
		if isNearDuplicateTitle(rec.Title, results) {
			c.logger.Debug("skipping near-duplicate candidate", "url", rec.URL, "title", rec.Title)
			continue
		}

		if fetched {
			c.sleep(ctx, c.fetchDelay())
		}
		fetched = true

		fetchStart := time.Now()
		text, err := c.fetcher.Fetch(ctx, rec.URL)
		if c.metrics != nil {
			c.metrics.FetchDuration.Record(ctx, time.Since(fetchStart).Seconds())
		}
		if err != nil {
			c.logger.Warn("candidate fetch failed", "url", rec.URL, "err", err)
			if c.metrics != nil {
				c.metrics.RecordProviderError(ctx, "fetch", "fetch_error")
			}
			tracker.Add(rec.URL)
			continue
		}
		if text == "" {
			continue
		}

		results = append(results, Result{Title: rec.Title, URL: rec.URL, Text: text})
	}

	return results
}

// isNearDuplicateTitle reports whether title is almost identical to a title
// already retained, which usually means the same lyrics page mirrored under
// another URL.
func isNearDuplicateTitle(title string, retained []Result) bool {
	if title == "" {
		return false
	}
	for _, r := range retained {
		if r.Title == "" {
			continue
		}
		if matchr.JaroWinkler(title, r.Title, false) > titleDupThreshold {
			return true
		}
	}
	return false
}

// String renders the outcome for logging.
func (o Outcome) String() string {
	if o.Status == StatusRateLimited {
		return fmt.Sprintf("%s (wait %s)", o.Status, o.Wait)
	}
	return fmt.Sprintf("%s (%d results)", o.Status, len(o.Results))
}
