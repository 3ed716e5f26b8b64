// Package mock provides an in-memory Store for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/songwords/internal/store"
)

// Store is an in-memory store.Store. The zero value is ready to use. Err, if
// set, is returned by every operation.
type Store struct {
	mu      sync.Mutex
	Err     error
	Songs   map[string]store.Song
	History []store.HistoryEntry
}

var _ store.Store = (*Store)(nil)

func (m *Store) SaveSong(_ context.Context, song store.Song) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	if m.Songs == nil {
		m.Songs = make(map[string]store.Song)
	}
	if _, ok := m.Songs[song.SongID]; ok {
		return false, nil
	}
	m.Songs[song.SongID] = song
	return true, nil
}

func (m *Store) GetSong(_ context.Context, songID string) (*store.Song, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	song, ok := m.Songs[songID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &song, nil
}

func (m *Store) SaveToHistory(_ context.Context, entry store.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	entry.ID = int64(len(m.History) + 1)
	m.History = append(m.History, entry)
	return nil
}

func (m *Store) GetHistory(context.Context) ([]store.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]store.HistoryEntry, 0, len(m.History))
	for i := len(m.History) - 1; i >= 0; i-- {
		out = append(out, m.History[i])
	}
	return out, nil
}

func (m *Store) GetMostRecent(_ context.Context, source string) (*store.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for i := len(m.History) - 1; i >= 0; i-- {
		if m.History[i].Source == source {
			entry := m.History[i]
			return &entry, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Store) ClearHistory(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.History = nil
	return nil
}

func (m *Store) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}

func (m *Store) Close() error { return nil }
