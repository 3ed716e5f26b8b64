package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrWong99/songwords/internal/agent"
	"github.com/MrWong99/songwords/internal/store"
	"github.com/MrWong99/songwords/internal/vocab"
)

type lyricsRequest struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

type vocabularyRequest struct {
	Text string `json:"text"`
}

type vocabularyResponse struct {
	Vocabulary   []vocab.Item `json:"vocabulary"`
	UsedFallback bool         `json:"used_fallback,omitempty"`
}

type errorResponse struct {
	Error        string  `json:"error"`
	WaitRequired float64 `json:"wait_required,omitempty"`
}

func (a *App) handleLyrics(w http.ResponseWriter, r *http.Request) {
	var req lyricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	res, err := a.agent.Run(r.Context(), req.Title, req.Artist)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) handleVocabulary(w http.ResponseWriter, r *http.Request) {
	var req vocabularyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	items, usedFallback, err := a.agent.ExtractVocabulary(r.Context(), req.Text)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vocabularyResponse{Vocabulary: items, UsedFallback: usedFallback})
}

type historyEntryResponse struct {
	Query      string       `json:"query"`
	Lyrics     string       `json:"lyrics"`
	Vocabulary []vocab.Item `json:"vocabulary"`
	Source     string       `json:"source"`
	Timestamp  string       `json:"timestamp"`
}

func (a *App) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := a.agent.History(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load history"})
		return
	}
	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryResponse{
			Query:      e.Query,
			Lyrics:     e.Lyrics,
			Vocabulary: e.Items,
			Source:     e.Source,
			Timestamp:  e.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleLatestHistory(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		source = store.SourceSearch
	}
	if source != store.SourceSearch && source != store.SourceInput {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "source must be \"search\" or \"input\""})
		return
	}

	entry, err := a.agent.MostRecent(r.Context(), source)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no history for source"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load history"})
		return
	}
	writeJSON(w, http.StatusOK, historyEntryResponse{
		Query:      entry.Query,
		Lyrics:     entry.Lyrics,
		Vocabulary: entry.Items,
		Source:     entry.Source,
		Timestamp:  entry.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (a *App) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := a.agent.ClearHistory(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to clear history"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type songResponse struct {
	SongID     string       `json:"song_id"`
	Title      string       `json:"title"`
	Artist     string       `json:"artist"`
	Lyrics     string       `json:"lyrics"`
	Vocabulary []vocab.Item `json:"vocabulary"`
}

func (a *App) handleSong(w http.ResponseWriter, r *http.Request) {
	song, err := a.agent.Song(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "song not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load song"})
		return
	}
	writeJSON(w, http.StatusOK, songResponse{
		SongID:     song.SongID,
		Title:      song.Title,
		Artist:     song.Artist,
		Lyrics:     song.Lyrics,
		Vocabulary: song.Vocabulary,
	})
}

func (a *App) handleExcluded(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(a.agent.ExclusionReport()))
}

// writePipelineError maps agent error kinds onto HTTP statuses.
func writePipelineError(w http.ResponseWriter, err error) {
	var pe *agent.Error
	if !errors.As(err, &pe) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	switch pe.Kind {
	case agent.KindInvalidInput:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: pe.Error()})
	case agent.KindRateLimited:
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:        "rate_limited",
			WaitRequired: pe.Wait.Seconds(),
		})
	case agent.KindNoResults:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: pe.Error()})
	case agent.KindFetchError, agent.KindLLMUnavailable:
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: pe.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: pe.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "err", err)
	}
}
