package marketplace

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sudo-init-do/gigmarket/internal/negotiation"
)

var ErrJobNotFound = errors.New("job not found")

// Store persists jobs together with their bids.
type Store interface {
	CreateJob(ctx context.Context, job negotiation.Job) error
	GetJob(ctx context.Context, id string) (negotiation.Job, error)
	ListJobsByPoster(ctx context.Context, posterID string) ([]negotiation.Job, error)
	ListJobsByWorker(ctx context.Context, workerID string) ([]negotiation.Job, error)

	// MutateJob loads the job under a lock, applies fn and persists the
	// result atomically. Nothing is written when fn returns an error.
	MutateJob(ctx context.Context, id string, fn func(negotiation.Job) (negotiation.Job, error)) (negotiation.Job, error)
}

// MemoryStore keeps jobs in process. Used by tests and local runs.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]negotiation.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]negotiation.Job)}
}

func (s *MemoryStore) CreateJob(_ context.Context, job negotiation.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (negotiation.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return negotiation.Job{}, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) ListJobsByPoster(_ context.Context, posterID string) ([]negotiation.Job, error) {
	return s.list(func(j negotiation.Job) bool { return j.PosterID == posterID }), nil
}

func (s *MemoryStore) ListJobsByWorker(_ context.Context, workerID string) ([]negotiation.Job, error) {
	return s.list(func(j negotiation.Job) bool {
		for _, b := range j.Bids {
			if b.WorkerID == workerID {
				return true
			}
		}
		return false
	}), nil
}

func (s *MemoryStore) list(match func(negotiation.Job) bool) []negotiation.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []negotiation.Job
	for _, j := range s.jobs {
		if match(j) {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

func (s *MemoryStore) MutateJob(_ context.Context, id string, fn func(negotiation.Job) (negotiation.Job, error)) (negotiation.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return negotiation.Job{}, ErrJobNotFound
	}
	next, err := fn(job.Clone())
	if err != nil {
		return negotiation.Job{}, err
	}
	s.jobs[id] = next.Clone()
	return next, nil
}
