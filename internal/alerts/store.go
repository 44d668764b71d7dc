package alerts

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Store keeps in-app notifications.
type Store interface {
	Create(ctx context.Context, n Notification) (Notification, error)
	List(ctx context.Context, userID string) ([]Notification, error)
	Unread(ctx context.Context, userID string) ([]Notification, error)
	// MarkRead sets read_at once and returns the row.
	MarkRead(ctx context.Context, userID, id string, at time.Time) (Notification, error)
}

type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Notification)}
}

func (s *MemoryStore) Create(_ context.Context, n Notification) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	s.items[n.ID] = n
	return n, nil
}

func (s *MemoryStore) List(_ context.Context, userID string) ([]Notification, error) {
	return s.filter(func(n Notification) bool { return n.UserID == userID }), nil
}

func (s *MemoryStore) Unread(_ context.Context, userID string) ([]Notification, error) {
	return s.filter(func(n Notification) bool { return n.UserID == userID && n.ReadAt == nil }), nil
}

func (s *MemoryStore) MarkRead(_ context.Context, userID, id string, at time.Time) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok || n.UserID != userID {
		return Notification{}, ErrNotificationNotFound
	}
	if n.ReadAt == nil {
		n.ReadAt = &at
		s.items[id] = n
	}
	return n, nil
}

func (s *MemoryStore) filter(match func(Notification) bool) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Notification{}
	for _, n := range s.items {
		if match(n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
