// Package exclusion tracks web domains that have recently failed to serve
// usable lyrics pages.
//
// Each failed fetch adds the URL's registrable domain to a timed exclusion
// list. When enough distinct domains under the same registrable parent have
// been excluded, the parent itself is promoted to a full ban. Exclusions
// expire lazily after a configurable duration and the whole state is
// persisted to a JSON file on every mutation.
package exclusion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/MrWong99/songwords/internal/observe"
)

// Defaults mirror the agent configuration of the lyrics pipeline.
const (
	DefaultDuration        = 24 * time.Hour
	DefaultParentThreshold = 3
)

// state is the JSON document persisted to disk. Timestamps are unix seconds.
type state struct {
	Sites   map[string]int64 `json:"sites"`
	Parents map[string]int64 `json:"parents"`
}

// Tracker records per-domain and per-parent-domain timed exclusions.
//
// Tracker is not safe for concurrent use; the orchestrator owns it and passes
// a borrow into the search client.
type Tracker struct {
	duration        time.Duration
	parentThreshold int
	path            string
	logger          *slog.Logger
	metrics         *observe.Metrics

	sites   map[string]time.Time
	parents map[string]time.Time
	// parentCounts records which child domains have ever been excluded under
	// each parent, driving threshold-based promotion.
	parentCounts map[string]map[string]struct{}

	// now is the clock source, replaceable in tests.
	now func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithDuration overrides the exclusion duration.
func WithDuration(d time.Duration) Option {
	return func(t *Tracker) { t.duration = d }
}

// WithParentThreshold overrides how many distinct child domains promote a
// parent domain to a full ban.
func WithParentThreshold(n int) Option {
	return func(t *Tracker) { t.parentThreshold = n }
}

// WithClock replaces the clock source. Tests use this to control expiry.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithMetrics records exclusion events on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// New creates a Tracker persisting its state at path. A missing or corrupt
// state file is logged and the tracker starts empty; persistence errors never
// fail construction.
func New(path string, opts ...Option) *Tracker {
	t := &Tracker{
		duration:        DefaultDuration,
		parentThreshold: DefaultParentThreshold,
		path:            path,
		logger:          slog.Default(),
		sites:           map[string]time.Time{},
		parents:         map[string]time.Time{},
		parentCounts:    map[string]map[string]struct{}{},
		now:             time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	t.load()
	return t
}

// Domain extracts the registrable domain (effective TLD plus one label) from
// a URL or bare host. When extraction fails the input is returned as-is so a
// malformed URL still gets a stable exclusion key.
func Domain(raw string) string {
	host := raw
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			host = u.Hostname()
		}
	} else if i := strings.IndexAny(raw, "/?#"); i >= 0 {
		host = raw[:i]
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")

	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// parentDomain aggregates at the registrable-domain level: many subdomains of
// one registrable domain collect individual exclusions under the same parent.
func parentDomain(raw string) string {
	return Domain(raw)
}

// IsExcluded reports whether the URL's domain or parent domain currently has
// an active exclusion. Expired entries are removed during the check.
func (t *Tracker) IsExcluded(rawURL string) bool {
	domain := Domain(rawURL)
	parent := parentDomain(rawURL)
	now := t.now()

	if at, ok := t.parents[parent]; ok {
		if now.Sub(at) < t.duration {
			return true
		}
		t.logger.Info("parent domain exclusion expired", "parent", parent)
		delete(t.parents, parent)
		delete(t.parentCounts, parent)
	}

	if at, ok := t.sites[domain]; ok {
		if now.Sub(at) < t.duration {
			return true
		}
		delete(t.sites, domain)
		if children, ok := t.parentCounts[parent]; ok {
			delete(children, domain)
		}
	}

	return false
}

// Add excludes the URL's domain starting now and promotes the parent domain
// when the threshold of distinct excluded children is reached. The updated
// state is persisted immediately.
func (t *Tracker) Add(rawURL string) {
	domain := Domain(rawURL)
	parent := parentDomain(rawURL)
	now := t.now()

	t.sites[domain] = now
	t.logger.Warn("domain excluded", "domain", domain, "until", now.Add(t.duration))
	if t.metrics != nil {
		t.metrics.RecordExclusion(context.Background(), "add", domain)
	}

	children, ok := t.parentCounts[parent]
	if !ok {
		children = map[string]struct{}{}
		t.parentCounts[parent] = children
	}
	children[domain] = struct{}{}

	if len(children) >= t.parentThreshold {
		if _, banned := t.parents[parent]; !banned {
			t.parents[parent] = now
			t.logger.Warn("parent domain promoted to exclusion",
				"parent", parent, "excluded_children", len(children))
			if t.metrics != nil {
				t.metrics.RecordExclusion(context.Background(), "promote", parent)
			}
		}
	}

	if err := t.save(); err != nil {
		t.logger.Error("failed to persist exclusion state", "path", t.path, "err", err)
	}
}

// ForSearch returns the active exclusions to forward to the search provider:
// every active parent domain plus every active individual domain whose parent
// is not itself banned. The result is sorted for deterministic queries.
func (t *Tracker) ForSearch() []string {
	now := t.now()
	var out []string

	for parent, at := range t.parents {
		if now.Sub(at) < t.duration {
			out = append(out, parent)
		}
	}
	for domain, at := range t.sites {
		if now.Sub(at) >= t.duration {
			continue
		}
		if at, banned := t.parents[parentDomain(domain)]; banned && now.Sub(at) < t.duration {
			continue
		}
		if !slices.Contains(out, domain) {
			out = append(out, domain)
		}
	}

	sort.Strings(out)
	return out
}

// Report renders a human-readable summary of the currently active exclusions
// with remaining time, for the /api/excluded endpoint.
func (t *Tracker) Report() string {
	now := t.now()
	var b strings.Builder

	var parents []string
	for parent, at := range t.parents {
		if now.Sub(at) < t.duration {
			parents = append(parents, parent)
		}
	}
	sort.Strings(parents)
	if len(parents) > 0 {
		b.WriteString("Excluded parent domains:\n")
		for _, parent := range parents {
			remaining := t.duration - now.Sub(t.parents[parent])
			fmt.Fprintf(&b, "- %s: %.1f hours remaining, %d affected subdomains\n",
				parent, remaining.Hours(), len(t.parentCounts[parent]))
		}
	}

	var sites []string
	for domain, at := range t.sites {
		if now.Sub(at) < t.duration && !slices.Contains(parents, parentDomain(domain)) {
			sites = append(sites, domain)
		}
	}
	sort.Strings(sites)
	if len(sites) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Individually excluded sites:\n")
		for _, domain := range sites {
			remaining := t.duration - now.Sub(t.sites[domain])
			fmt.Fprintf(&b, "- %s: %.1f hours remaining\n", domain, remaining.Hours())
		}
	}

	if b.Len() == 0 {
		return "No sites currently excluded"
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// load reads the JSON state file. Missing files and corrupt documents leave
// the tracker empty; both are logged and swallowed.
func (t *Tracker) load() {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			t.logger.Error("failed to read exclusion state", "path", t.path, "err", err)
		}
		return
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		t.logger.Error("corrupt exclusion state, starting empty", "path", t.path, "err", err)
		return
	}

	for domain, secs := range st.Sites {
		t.sites[domain] = time.Unix(secs, 0)
	}
	for parent, secs := range st.Parents {
		t.parents[parent] = time.Unix(secs, 0)
	}

	// Rebuild the promotion index from the persisted site list.
	for domain := range t.sites {
		parent := parentDomain(domain)
		children, ok := t.parentCounts[parent]
		if !ok {
			children = map[string]struct{}{}
			t.parentCounts[parent] = children
		}
		children[domain] = struct{}{}
	}

	t.logger.Info("loaded exclusion state",
		"sites", len(t.sites), "parents", len(t.parents))
}

// save writes the JSON state atomically: a temp file in the same directory is
// renamed over the target so readers never observe a partial document.
func (t *Tracker) save() error {
	st := state{
		Sites:   map[string]int64{},
		Parents: map[string]int64{},
	}
	for domain, at := range t.sites {
		st.Sites[domain] = at.Unix()
	}
	for parent, at := range t.parents {
		st.Parents[parent] = at.Unix()
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("exclusion: marshal state: %w", err)
	}

	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, ".exclusions-*.json")
	if err != nil {
		return fmt.Errorf("exclusion: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("exclusion: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("exclusion: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("exclusion: rename temp file: %w", err)
	}
	return nil
}
