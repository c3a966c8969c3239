package slotcache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Entry is the single cached cell. A zero Entry means nothing is cached.
type Entry struct {
	Data        json.RawMessage `json:"data,omitempty"`
	PopulatedAt time.Time       `json:"populated_at"`
}

// Store holds the cached cell.
type Store interface {
	Load(ctx context.Context) (Entry, error)
	Save(ctx context.Context, e Entry) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the cell in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	entry Entry
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(_ context.Context) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entry, nil
}

func (s *MemoryStore) Save(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = e
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = Entry{}
	return nil
}
