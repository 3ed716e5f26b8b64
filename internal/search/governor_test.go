package search_test

import (
	"testing"
	"time"

	"github.com/MrWong99/songwords/internal/search"
)

func fakeClock(start time.Time) (func() time.Time, func(time.Duration)) {
	current := start
	return func() time.Time { return current },
		func(d time.Duration) { current = current.Add(d) }
}

func TestGovernorRateLimit(t *testing.T) {
	t.Parallel()

	now, advance := fakeClock(time.Unix(1_700_000_000, 0))
	g := search.NewGovernor(
		search.WithMinInterval(30*time.Second),
		search.WithGovernorClock(now),
	)

	// First request is always allowed.
	if ok, _ := g.Allow(); !ok {
		t.Fatal("first request not allowed")
	}
	g.MarkRequest()

	ok, wait := g.Allow()
	if ok {
		t.Fatal("second immediate request allowed, want rate limit")
	}
	if wait != 30*time.Second {
		t.Errorf("wait = %s, want 30s", wait)
	}

	advance(10 * time.Second)
	if ok, wait := g.Allow(); ok || wait != 20*time.Second {
		t.Errorf("after 10s: ok=%v wait=%s, want false/20s", ok, wait)
	}

	advance(20 * time.Second)
	if ok, _ := g.Allow(); !ok {
		t.Error("request after full interval not allowed")
	}
}

func TestGovernorCache(t *testing.T) {
	t.Parallel()

	now, advance := fakeClock(time.Unix(1_700_000_000, 0))
	g := search.NewGovernor(
		search.WithCacheDuration(time.Hour),
		search.WithGovernorClock(now),
	)

	if _, ok := g.Cached("月亮代表我的心"); ok {
		t.Fatal("empty governor reported a cache hit")
	}

	results := []search.Result{{Title: "t", URL: "https://mojim.com/x", Text: "月亮"}}
	g.StoreCache("月亮代表我的心", results)

	got, ok := g.Cached("月亮代表我的心")
	if !ok || len(got) != 1 || got[0].URL != results[0].URL {
		t.Errorf("Cached = (%v, %v), want stored results", got, ok)
	}

	advance(time.Hour + time.Minute)
	if _, ok := g.Cached("月亮代表我的心"); ok {
		t.Error("cache entry survived past the cache duration")
	}
}

func TestGovernorSetLimits(t *testing.T) {
	t.Parallel()

	now, advance := fakeClock(time.Unix(1_700_000_000, 0))
	g := search.NewGovernor(
		search.WithMinInterval(30*time.Second),
		search.WithCacheDuration(time.Hour),
		search.WithGovernorClock(now),
	)

	g.MarkRequest()
	g.StoreCache("童话", []search.Result{{URL: "https://mojim.com/x"}})

	g.SetLimits(5*time.Second, 10*time.Minute)

	advance(6 * time.Second)
	if ok, _ := g.Allow(); !ok {
		t.Error("request not allowed after shortened interval elapsed")
	}

	// The stored entry is now older than allowed under the new duration.
	advance(15 * time.Minute)
	if _, ok := g.Cached("童话"); ok {
		t.Error("cache entry survived past the shortened cache duration")
	}

	// Zero values leave the previous limits in place.
	g.SetLimits(0, 0)
	g.MarkRequest()
	advance(4 * time.Second)
	if ok, _ := g.Allow(); ok {
		t.Error("request allowed inside the retained interval")
	}
	advance(2 * time.Second)
	if ok, _ := g.Allow(); !ok {
		t.Error("request not allowed after the retained interval")
	}
}

func TestGovernorCoalesce(t *testing.T) {
	t.Parallel()

	g := search.NewGovernor()

	calls := 0
	out := g.Coalesce("q", func() (search.Outcome, error) {
		calls++
		return search.Outcome{Status: search.StatusOK}, nil
	})

	if out.Status != search.StatusOK {
		t.Errorf("Coalesce outcome = %v", out.Status)
	}
	if calls != 1 {
		t.Errorf("fn ran %d times, want 1", calls)
	}
}
