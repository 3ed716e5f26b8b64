package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/songwords/internal/config"
	"github.com/MrWong99/songwords/internal/exclusion"
	"github.com/MrWong99/songwords/internal/store"
	storemock "github.com/MrWong99/songwords/internal/store/mock"
	"github.com/MrWong99/songwords/internal/vocab"
	"github.com/MrWong99/songwords/pkg/provider/llm"
	llmmock "github.com/MrWong99/songwords/pkg/provider/llm/mock"
	searchmock "github.com/MrWong99/songwords/pkg/provider/websearch/mock"
)

func newTestApp(t *testing.T, st store.Store) *App {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		Server:    config.ServerConfig{ListenAddr: ":0"},
		Exclusion: config.ExclusionConfig{Path: filepath.Join(dir, "excluded.json")},
	}
	providers := &Providers{
		Cleaner:   &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "月亮代表我的心"}},
		Extractor: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `[{"jiantizi":"月亮","pinyin":"yuèliang","english":"moon"}]`}},
		Search:    &searchmock.Provider{},
	}

	a, err := New(cfg, providers,
		WithStore(st),
		WithTracker(exclusion.New(cfg.Exclusion.Path)),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestHandleVocabulary(t *testing.T) {
	t.Parallel()

	st := &storemock.Store{}
	a := newTestApp(t, st)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	body := bytes.NewBufferString(`{"text":"月亮代表我的心"}`)
	resp, err := http.Post(srv.URL+"/api/vocabulary", "application/json", body)
	if err != nil {
		t.Fatalf("POST /api/vocabulary error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out vocabularyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out.Vocabulary) != 1 || out.Vocabulary[0].Jiantizi != "月亮" {
		t.Errorf("vocabulary = %v", out.Vocabulary)
	}
	if len(st.History) != 1 || st.History[0].Source != store.SourceInput {
		t.Errorf("history = %v, want one input entry", st.History)
	}
}

func TestHandleVocabularyBadJSON(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, &storemock.Store{})
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/vocabulary", "application/json", bytes.NewBufferString("{"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleLyricsInvalidInput(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, &storemock.Store{})
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/lyrics", "application/json", bytes.NewBufferString(`{"title":""}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleLyricsNoResults(t *testing.T) {
	t.Parallel()

	// The mock search provider returns no records, so the pipeline reports
	// that nothing was found.
	a := newTestApp(t, &storemock.Store{})
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/lyrics", "application/json",
		bytes.NewBufferString(`{"title":"月亮代表我的心","artist":"邓丽君"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleHistoryAndClear(t *testing.T) {
	t.Parallel()

	st := &storemock.Store{}
	st.SaveToHistory(context.Background(), store.HistoryEntry{
		Query:  "童话 光良 歌词",
		Lyrics: "忘了有多久",
		Items:  []vocab.Item{{Jiantizi: "童话", Pinyin: "tónghuà", English: "fairy tale"}},
		Source: store.SourceSearch,
	})
	a := newTestApp(t, st)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/history")
	if err != nil {
		t.Fatal(err)
	}
	var entries []historyEntryResponse
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	resp.Body.Close()
	if len(entries) != 1 || entries[0].Query != "童话 光良 歌词" {
		t.Errorf("history = %v", entries)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/history", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", resp.StatusCode)
	}
	if len(st.History) != 0 {
		t.Error("history was not cleared")
	}
}

func TestHandleLatestHistory(t *testing.T) {
	t.Parallel()

	st := &storemock.Store{}
	st.SaveToHistory(context.Background(), store.HistoryEntry{
		Query:  "童话 光良 歌词",
		Lyrics: "忘了有多久",
		Source: store.SourceSearch,
	})
	st.SaveToHistory(context.Background(), store.HistoryEntry{
		Query:  "月亮代表我的心",
		Lyrics: "你问我爱你有多深",
		Source: store.SourceInput,
	})
	a := newTestApp(t, st)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/history/latest?source=input")
	if err != nil {
		t.Fatal(err)
	}
	var entry historyEntryResponse
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	resp.Body.Close()
	if entry.Query != "月亮代表我的心" || entry.Source != store.SourceInput {
		t.Errorf("entry = %+v", entry)
	}

	resp, err = http.Get(srv.URL + "/api/history/latest?source=bogus")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus source status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleSong(t *testing.T) {
	t.Parallel()

	st := &storemock.Store{}
	st.SaveSong(context.Background(), store.Song{
		SongID: "光良-童话",
		Title:  "童话",
		Artist: "光良",
		Lyrics: "忘了有多久",
	})
	a := newTestApp(t, st)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/songs/光良-童话")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var song songResponse
	if err := json.NewDecoder(resp.Body).Decode(&song); err != nil {
		t.Fatal(err)
	}
	if song.Title != "童话" {
		t.Errorf("title = %q", song.Title)
	}

	resp, err = http.Get(srv.URL + "/api/songs/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing song status = %d, want 404", resp.StatusCode)
	}
}

func TestApplyDiff(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, &storemock.Store{})
	level := new(slog.LevelVar)

	a.ApplyDiff(config.ConfigDiff{LogLevelChanged: true, NewLogLevel: config.LogDebug}, level)
	if level.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", level.Level())
	}

	a.ApplyDiff(config.ConfigDiff{RateChanged: true, NewMinInterval: time.Hour}, level)
	a.governor.MarkRequest()
	if ok, wait := a.governor.Allow(); ok || wait <= 0 {
		t.Errorf("Allow() = (%v, %s), want rate limited under the reloaded interval", ok, wait)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, &storemock.Store{})
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}
