package user

import (
	"context"
	"sync"
	"time"
)

type Store interface {
	Get(ctx context.Context, id string) (Profile, error)
	// Upsert creates the profile if missing and merges req into it.
	Upsert(ctx context.Context, id string, req UpdateRequest) (Profile, error)
}

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	profiles map[string]Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, profiles: make(map[string]Profile)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) Upsert(_ context.Context, id string, req UpdateRequest) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		p = Profile{ID: id, CreatedAt: s.now()}
	}
	p = req.apply(p)
	s.profiles[id] = p
	return p, nil
}

// SetRating stores a worker's average review score.
func (s *MemoryStore) SetRating(id string, rating float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[id]
	p.ID = id
	p.Rating = &rating
	s.profiles[id] = p
}
