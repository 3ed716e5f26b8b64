package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/songwords/internal/vocab"
	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a song or history entry does not exist.
var ErrNotFound = errors.New("store: not found")

const schema = `
CREATE TABLE IF NOT EXISTS songs (
	song_id    TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	artist     TEXT NOT NULL DEFAULT '',
	lyrics     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS vocabulary (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	song_id  TEXT NOT NULL REFERENCES songs(song_id),
	jiantizi TEXT NOT NULL,
	pinyin   TEXT NOT NULL,
	english  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vocabulary_song ON vocabulary(song_id);

CREATE TABLE IF NOT EXISTS history (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	query           TEXT NOT NULL,
	lyrics          TEXT NOT NULL,
	vocabulary_blob TEXT NOT NULL,
	source          TEXT NOT NULL CHECK (source IN ('search','input')),
	timestamp       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_history_source_time ON history(source, timestamp DESC);
`

// SQLite implements Store on an embedded SQLite database. The connection
// pool is bounded by the worker count; writes are additionally serialized
// through a mutex so concurrent pipeline workers never contend on SQLite's
// single-writer lock.
type SQLite struct {
	db      *sql.DB
	writeMu sync.Mutex
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (and migrates) the database at path. Use ":memory:" for
// an in-memory database. workers bounds the connection pool.
func OpenSQLite(path string, workers int) (*SQLite, error) {
	if workers < 1 {
		workers = 1
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	if path == ":memory:" {
		// A shared cache keeps all pooled connections on the same database.
		dsn = "file::memory:?cache=shared&_busy_timeout=5000&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(workers)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) SaveSong(ctx context.Context, song Song) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	createdAt := song.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO songs (song_id, title, artist, lyrics, created_at) VALUES (?, ?, ?, ?, ?)`,
		song.SongID, song.Title, song.Artist, song.Lyrics, createdAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return false, nil
		}
		return false, fmt.Errorf("store: insert song %s: %w", song.SongID, err)
	}

	for _, it := range song.Vocabulary {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vocabulary (song_id, jiantizi, pinyin, english) VALUES (?, ?, ?, ?)`,
			song.SongID, it.Jiantizi, it.Pinyin, it.English); err != nil {
			return false, fmt.Errorf("store: insert vocabulary for %s: %w", song.SongID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("store: commit song %s: %w", song.SongID, err)
	}
	return true, nil
}

func (s *SQLite) GetSong(ctx context.Context, songID string) (*Song, error) {
	var song Song
	err := s.db.QueryRowContext(ctx,
		`SELECT song_id, title, artist, lyrics, created_at FROM songs WHERE song_id = ?`,
		songID).Scan(&song.SongID, &song.Title, &song.Artist, &song.Lyrics, &song.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get song %s: %w", songID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT jiantizi, pinyin, english FROM vocabulary WHERE song_id = ? ORDER BY id`,
		songID)
	if err != nil {
		return nil, fmt.Errorf("store: get vocabulary for %s: %w", songID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var it vocab.Item
		if err := rows.Scan(&it.Jiantizi, &it.Pinyin, &it.English); err != nil {
			return nil, fmt.Errorf("store: scan vocabulary: %w", err)
		}
		song.Vocabulary = append(song.Vocabulary, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate vocabulary: %w", err)
	}
	return &song, nil
}

func (s *SQLite) SaveToHistory(ctx context.Context, entry HistoryEntry) error {
	blob, err := json.Marshal(entry.Items)
	if err != nil {
		return fmt.Errorf("store: encode vocabulary blob: %w", err)
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO history (query, lyrics, vocabulary_blob, source, timestamp) VALUES (?, ?, ?, ?, ?)`,
		entry.Query, entry.Lyrics, string(blob), entry.Source, ts)
	if err != nil {
		return fmt.Errorf("store: insert history: %w", err)
	}
	return nil
}

func (s *SQLite) GetHistory(ctx context.Context) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, lyrics, vocabulary_blob, source, timestamp FROM history ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: get history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		entry, err := scanHistory(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate history: %w", err)
	}
	return entries, nil
}

func (s *SQLite) GetMostRecent(ctx context.Context, source string) (*HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, query, lyrics, vocabulary_blob, source, timestamp FROM history
		 WHERE source = ? ORDER BY timestamp DESC, id DESC LIMIT 1`, source)
	entry, err := scanHistory(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

func scanHistory(scan func(...any) error) (*HistoryEntry, error) {
	var entry HistoryEntry
	var blob string
	if err := scan(&entry.ID, &entry.Query, &entry.Lyrics, &blob, &entry.Source, &entry.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan history: %w", err)
	}
	if err := json.Unmarshal([]byte(blob), &entry.Items); err != nil {
		return nil, fmt.Errorf("store: decode vocabulary blob: %w", err)
	}
	return &entry, nil
}

func (s *SQLite) ClearHistory(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("store: clear history: %w", err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
