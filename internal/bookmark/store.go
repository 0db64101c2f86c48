// Package bookmark remembers where listening stopped in each chapter.
package bookmark

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Bookmark is the last known playback position within one chapter.
type Bookmark struct {
	ChapterID    string    `json:"chapter_id"`
	ChapterIndex int       `json:"chapter_index"`
	Position     float64   `json:"position"`
	Duration     float64   `json:"duration"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is the persistence abstraction for bookmarks.
// There is at most one bookmark per chapter; Save replaces it.
type Store interface {
	Save(ctx context.Context, b Bookmark) error
	Get(ctx context.Context, chapterID string) (Bookmark, bool, error)
	// Latest returns the most recently updated bookmark.
	Latest(ctx context.Context) (Bookmark, bool, error)
	// List returns all bookmarks, most recent first.
	List(ctx context.Context) ([]Bookmark, error)
	Close() error
}

// InMemoryStore is a concurrency-safe in-memory implementation of Store.
type InMemoryStore struct {
	mu        sync.RWMutex
	bookmarks map[string]Bookmark
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		bookmarks: make(map[string]Bookmark),
	}
}

// Save implements Store.Save.
func (s *InMemoryStore) Save(_ context.Context, b Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookmarks[b.ChapterID] = b
	return nil
}

// Get implements Store.Get.
func (s *InMemoryStore) Get(_ context.Context, chapterID string) (Bookmark, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookmarks[chapterID]
	return b, ok, nil
}

// Latest implements Store.Latest.
func (s *InMemoryStore) Latest(ctx context.Context) (Bookmark, bool, error) {
	all, _ := s.List(ctx)
	if len(all) == 0 {
		return Bookmark{}, false, nil
	}
	return all[0], true, nil
}

// List implements Store.List.
func (s *InMemoryStore) List(_ context.Context) ([]Bookmark, error) {
	s.mu.RLock()
	out := make([]Bookmark, 0, len(s.bookmarks))
	for _, b := range s.bookmarks {
		out = append(out, b)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ChapterID < out[j].ChapterID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Close implements Store.Close.
func (s *InMemoryStore) Close() error { return nil }
