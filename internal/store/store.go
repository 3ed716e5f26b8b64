// Package store persists songs, vocabulary and query history in an embedded
// SQLite database.
package store

import (
	"context"
	"time"

	"github.com/MrWong99/songwords/internal/vocab"
)

// History sources.
const (
	SourceSearch = "search"
	SourceInput  = "input"
)

// Song is a fully processed song with its vocabulary in extraction order.
type Song struct {
	SongID     string
	Title      string
	Artist     string
	Lyrics     string
	Vocabulary []vocab.Item
	CreatedAt  time.Time
}

// HistoryEntry is one processed request, newest-first on retrieval.
type HistoryEntry struct {
	ID        int64
	Query     string
	Lyrics    string
	Items     []vocab.Item
	Source    string
	Timestamp time.Time
}

// Store is the persistence surface used by the pipeline.
type Store interface {
	// SaveSong inserts a song with its vocabulary. It returns false without
	// error when song_id already exists.
	SaveSong(ctx context.Context, song Song) (bool, error)
	// GetSong returns a song with its vocabulary in stored order, or
	// ErrNotFound.
	GetSong(ctx context.Context, songID string) (*Song, error)
	// SaveToHistory appends one history entry.
	SaveToHistory(ctx context.Context, entry HistoryEntry) error
	// GetHistory returns all history entries, newest first.
	GetHistory(ctx context.Context) ([]HistoryEntry, error)
	// GetMostRecent returns the newest entry with the given source, or
	// ErrNotFound.
	GetMostRecent(ctx context.Context, source string) (*HistoryEntry, error)
	// ClearHistory deletes all history entries.
	ClearHistory(ctx context.Context) error
	// Ping reports whether the underlying database is reachable.
	Ping(ctx context.Context) error
	// Close releases the underlying database.
	Close() error
}
