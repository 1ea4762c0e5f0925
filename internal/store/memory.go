package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/JuniperStemma/core/errors"
)

// MemoryStore keeps manuscripts in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*Manuscript
	now  func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*Manuscript), now: time.Now}
}

// Get returns a copy of the manuscript.
func (s *MemoryStore) Get(_ context.Context, id string) (*Manuscript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.docs[id]
	if !ok {
		return nil, errors.NewNotFound("manuscript", id)
	}
	return clone(m), nil
}

// List returns summaries ordered by creation time, then ID.
func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.docs))
	for _, m := range s.docs {
		out = append(out, summarize(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Put stores a copy of m.
func (s *MemoryStore) Put(_ context.Context, m *Manuscript) (string, error) {
	if m == nil {
		return "", errors.NewValidation("manuscript", "nil manuscript")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := clone(m)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	s.docs[c.ID] = c
	return c.ID, nil
}

// Delete removes a manuscript.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return errors.NewNotFound("manuscript", id)
	}
	delete(s.docs, id)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func clone(m *Manuscript) *Manuscript {
	c := *m
	if m.Metadata != nil {
		c.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	c.Verses = append([]Verse(nil), m.Verses...)
	return &c
}
