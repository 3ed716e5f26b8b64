// Package agent orchestrates the lyrics pipeline: search, fetch, clean,
// extract, persist.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/MrWong99/songwords/internal/exclusion"
	"github.com/MrWong99/songwords/internal/lyrics"
	"github.com/MrWong99/songwords/internal/observe"
	"github.com/MrWong99/songwords/internal/search"
	"github.com/MrWong99/songwords/internal/store"
	"github.com/MrWong99/songwords/internal/vocab"
	"github.com/MrWong99/songwords/internal/zhtext"
)

// Searcher is the search surface the agent depends on.
type Searcher interface {
	Search(ctx context.Context, query string, tracker *exclusion.Tracker) search.Outcome
}

// Cleaner turns raw page text into clean Simplified lyrics.
type Cleaner interface {
	Clean(ctx context.Context, raw string) (string, error)
}

// Extractor produces vocabulary items from lyrics.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]vocab.Item, bool, error)
}

// Result is a completed lyrics request. SessionID doubles as the persisted
// song_id.
type Result struct {
	SessionID    string       `json:"session_id"`
	Lyrics       string       `json:"lyrics"`
	Vocabulary   []vocab.Item `json:"vocabulary"`
	Metadata     Metadata     `json:"metadata"`
	UsedFallback bool         `json:"used_fallback,omitempty"`
}

// Metadata identifies the requested song.
type Metadata struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// Agent wires the pipeline stages together. All stages are injected so tests
// can substitute mocks.
type Agent struct {
	searcher  Searcher
	tracker   *exclusion.Tracker
	cleaner   Cleaner
	extractor Extractor
	store     store.Store
	logger    *slog.Logger
	metrics   *observe.Metrics
}

// Option configures an Agent.
type Option func(*Agent)

// WithMetrics records pipeline metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// New creates an Agent from its pipeline stages.
func New(searcher Searcher, tracker *exclusion.Tracker, cleaner Cleaner, extractor Extractor, st store.Store, logger *slog.Logger, opts ...Option) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Agent{
		searcher:  searcher,
		tracker:   tracker,
		cleaner:   cleaner,
		extractor: extractor,
		store:     st,
		logger:    logger,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run resolves lyrics and vocabulary for a song. artist may be empty.
func (a *Agent) Run(ctx context.Context, title, artist string) (*Result, error) {
	title = strings.TrimSpace(title)
	artist = strings.TrimSpace(artist)
	if title == "" {
		return nil, newError(KindInvalidInput, errors.New("title is required"))
	}

	if a.metrics != nil {
		a.metrics.ActiveRuns.Add(ctx, 1)
		defer a.metrics.ActiveRuns.Add(ctx, -1)
	}

	songID := SongID(title, artist)
	parts := []string{title}
	if artist != "" {
		parts = append(parts, artist)
	}
	query := strings.Join(append(parts, "歌词"), " ")

	outcome := a.searcher.Search(ctx, query, a.tracker)
	switch outcome.Status {
	case search.StatusOK:
	case search.StatusRateLimited:
		return nil, &Error{Kind: KindRateLimited, Wait: outcome.Wait}
	case search.StatusInvalidQuery:
		return nil, newError(KindInvalidInput, fmt.Errorf("query rejected: %q", query))
	case search.StatusNoResults:
		return nil, newError(KindNoResults, nil)
	case search.StatusAccessDenied, search.StatusNetworkError:
		return nil, newError(KindFetchError, outcome.Err)
	default:
		return nil, newError(KindInternal, outcome.Err)
	}

	lyricsText, sourceURL, err := a.cleanCandidates(ctx, outcome.Results)
	if err != nil {
		return nil, err
	}
	a.logger.Info("lyrics selected", "song_id", songID, "url", sourceURL)

	items, usedFallback, err := a.extract(ctx, lyricsText)
	if err != nil {
		return nil, newError(KindLLMUnavailable, err)
	}

	song := store.Song{
		SongID:     songID,
		Title:      title,
		Artist:     artist,
		Lyrics:     lyricsText,
		Vocabulary: items,
	}
	inserted, err := a.store.SaveSong(ctx, song)
	if err != nil {
		return nil, newError(KindInternal, err)
	}
	if inserted {
		if a.metrics != nil {
			a.metrics.SongsPersisted.Add(ctx, 1)
		}
	} else {
		// Duplicate song_id: the earlier record stands, by contract.
		a.logger.Debug("song already persisted", "song_id", songID)
	}
	if err := a.store.SaveToHistory(ctx, store.HistoryEntry{
		Query:  query,
		Lyrics: lyricsText,
		Items:  items,
		Source: store.SourceSearch,
	}); err != nil {
		return nil, newError(KindInternal, err)
	}

	return &Result{
		SessionID:    songID,
		Lyrics:       lyricsText,
		Vocabulary:   items,
		Metadata:     Metadata{Title: title, Artist: artist},
		UsedFallback: usedFallback,
	}, nil
}

// cleanCandidates runs the cleaner over each candidate in order and returns
// the first output passing the Chinese gate.
func (a *Agent) cleanCandidates(ctx context.Context, results []search.Result) (string, string, error) {
	for _, res := range results {
		start := time.Now()
		cleaned, err := a.cleaner.Clean(ctx, res.Text)
		if a.metrics != nil {
			a.metrics.RecordLLMDuration(ctx, "cleaner", time.Since(start).Seconds())
		}
		if err != nil {
			if errors.Is(err, lyrics.ErrNoChinese) {
				a.logger.Debug("candidate yielded no Chinese lyrics", "url", res.URL)
			} else {
				a.logger.Warn("cleaner failed on candidate", "url", res.URL, "error", err)
				if a.metrics != nil {
					a.metrics.RecordProviderError(ctx, "cleaner", "llm_error")
				}
			}
			continue
		}
		return cleaned, res.URL, nil
	}
	return "", "", newError(KindNoResults, errors.New("no valid Chinese lyrics found"))
}

// extract runs the vocabulary extractor with latency and fallback accounting.
func (a *Agent) extract(ctx context.Context, text string) ([]vocab.Item, bool, error) {
	start := time.Now()
	items, usedFallback, err := a.extractor.Extract(ctx, text)
	if a.metrics != nil {
		a.metrics.RecordLLMDuration(ctx, "extractor", time.Since(start).Seconds())
		if err != nil {
			a.metrics.RecordProviderError(ctx, "extractor", "llm_unavailable")
		} else if usedFallback {
			a.metrics.FallbackExtractions.Add(ctx, 1)
		}
	}
	return items, usedFallback, err
}

// ExtractVocabulary runs extraction over arbitrary text, recording the run
// in history with source "input". Text without Chinese characters yields an
// empty list.
func (a *Agent) ExtractVocabulary(ctx context.Context, text string) ([]vocab.Item, bool, error) {
	if !zhtext.ContainsChinese(text) {
		return []vocab.Item{}, false, nil
	}
	normalized, _ := zhtext.Process(text)

	items, usedFallback, err := a.extract(ctx, normalized)
	if err != nil {
		return nil, false, newError(KindLLMUnavailable, err)
	}
	if err := a.store.SaveToHistory(ctx, store.HistoryEntry{
		Query:  truncate(text, 200),
		Lyrics: normalized,
		Items:  items,
		Source: store.SourceInput,
	}); err != nil {
		return nil, false, newError(KindInternal, err)
	}
	return items, usedFallback, nil
}

// History returns all processed requests, newest first.
func (a *Agent) History(ctx context.Context) ([]store.HistoryEntry, error) {
	return a.store.GetHistory(ctx)
}

// MostRecent returns the latest history entry for a source ("search" or
// "input").
func (a *Agent) MostRecent(ctx context.Context, source string) (*store.HistoryEntry, error) {
	return a.store.GetMostRecent(ctx, source)
}

// ClearHistory removes all history entries.
func (a *Agent) ClearHistory(ctx context.Context) error {
	return a.store.ClearHistory(ctx)
}

// Song returns a persisted song by id.
func (a *Agent) Song(ctx context.Context, songID string) (*store.Song, error) {
	return a.store.GetSong(ctx, songID)
}

// ExclusionReport returns a human-readable summary of excluded domains.
func (a *Agent) ExclusionReport() string {
	return a.tracker.Report()
}

var (
	nonWordRe   = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	hyphenRunRe = regexp.MustCompile(`-{2,}`)
)

// SongID derives a stable slug from artist and title. Letters (Chinese
// included) and digits survive; everything else folds into single hyphens.
func SongID(title, artist string) string {
	raw := strings.ToLower(strings.TrimSpace(artist + " " + title))
	slug := nonWordRe.ReplaceAllString(raw, "-")
	slug = hyphenRunRe.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
