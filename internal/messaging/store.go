package messaging

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sudo-init-do/gigmarket/internal/inbox"
	"github.com/sudo-init-do/gigmarket/internal/negotiation"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	// ErrMessageConflict is returned when a client id is reused for a
	// different sender or job.
	ErrMessageConflict = errors.New("message id already used")
)

// Store persists messages and the per-user conversation overlays. It is
// also the server side of the inbox.
type Store interface {
	inbox.Source

	// InsertMessage stores m unless a message with the same id exists, in
	// which case the stored one is returned with created false.
	InsertMessage(ctx context.Context, m Message) (Message, bool, error)
	GetMessage(ctx context.Context, jobID, id string) (Message, error)
	ListMessages(ctx context.Context, jobID string, since time.Time) ([]Message, error)
	// MarkRead sets read_at once; later calls return the first timestamp.
	MarkRead(ctx context.Context, jobID, id string, at time.Time) (Message, error)
}

// JobLookup is the part of the job store messaging reads from.
type JobLookup interface {
	GetJob(ctx context.Context, id string) (negotiation.Job, error)
	ListJobsByPoster(ctx context.Context, posterID string) ([]negotiation.Job, error)
	ListJobsByWorker(ctx context.Context, workerID string) ([]negotiation.Job, error)
}

type overlay struct {
	archived *bool
	deleted  bool
}

// MemoryStore keeps messages in process and builds inbox rows from a job
// store. Used by tests and local runs.
type MemoryStore struct {
	jobs JobLookup

	mu       sync.Mutex
	messages map[string]Message
	overlays map[[2]string]overlay
	profiles map[string]inbox.Counterpart
}

func NewMemoryStore(jobs JobLookup) *MemoryStore {
	return &MemoryStore{
		jobs:     jobs,
		messages: make(map[string]Message),
		overlays: make(map[[2]string]overlay),
		profiles: make(map[string]inbox.Counterpart),
	}
}

// SetProfile registers the display data shown for a user.
func (s *MemoryStore) SetProfile(p inbox.Counterpart) {
	s.mu.Lock()
	s.profiles[p.ID] = p
	s.mu.Unlock()
}

func (s *MemoryStore) InsertMessage(_ context.Context, m Message) (Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.messages[m.ID]; ok {
		if prev.JobID != m.JobID || prev.SenderID != m.SenderID {
			return Message{}, false, ErrMessageConflict
		}
		return copyMessage(prev), false, nil
	}
	s.messages[m.ID] = copyMessage(m)
	return copyMessage(m), true, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, jobID, id string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.JobID != jobID {
		return Message{}, ErrMessageNotFound
	}
	return copyMessage(m), nil
}

func (s *MemoryStore) ListMessages(_ context.Context, jobID string, since time.Time) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Message{}
	for _, m := range s.messages {
		if m.JobID == jobID && m.CreatedAt.After(since) {
			out = append(out, copyMessage(m))
		}
	}
	sortMessages(out)
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, jobID, id string, at time.Time) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.JobID != jobID {
		return Message{}, ErrMessageNotFound
	}
	if m.ReadAt == nil {
		m.ReadAt = &at
		s.messages[id] = m
	}
	return copyMessage(m), nil
}

func (s *MemoryStore) SetArchived(_ context.Context, userID, jobID string, archived bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := [2]string{userID, jobID}
	o := s.overlays[k]
	o.archived = &archived
	s.overlays[k] = o
	return nil
}

func (s *MemoryStore) DeleteConversation(_ context.Context, userID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := [2]string{userID, jobID}
	o := s.overlays[k]
	o.deleted = true
	s.overlays[k] = o
	return nil
}

// FetchInbox returns one row per hired job the user takes part in.
func (s *MemoryStore) FetchInbox(ctx context.Context, userID string) ([]inbox.Summary, error) {
	posted, err := s.jobs.ListJobsByPoster(ctx, userID)
	if err != nil {
		return nil, err
	}
	worked, err := s.jobs.ListJobsByWorker(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	out := []inbox.Summary{}
	for _, job := range append(posted, worked...) {
		if seen[job.ID] {
			continue
		}
		seen[job.ID] = true
		row, ok := s.summarize(job, userID)
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *MemoryStore) summarize(job negotiation.Job, userID string) (inbox.Summary, bool) {
	bid, ok := job.AcceptedBid()
	if !ok || !isParticipant(job, userID) {
		return inbox.Summary{}, false
	}
	row := inbox.Summary{
		JobID:     job.ID,
		JobTitle:  job.Title,
		JobStatus: job.Status,
		PosterID:  job.PosterID,
		WorkerID:  bid.WorkerID,
		IsPoster:  userID == job.PosterID,
		IsWorker:  userID == bid.WorkerID,
	}
	other := job.PosterID
	if row.IsPoster {
		other = bid.WorkerID
	}
	row.Counterpart = inbox.Counterpart{ID: other}
	if p, ok := s.profiles[other]; ok {
		row.Counterpart = p
	}

	var last *Message
	for id := range s.messages {
		m := s.messages[id]
		if m.JobID != job.ID {
			continue
		}
		if m.ReceiverID == userID && m.ReadAt == nil && !m.Deleted {
			row.UnreadCount++
		}
		if last == nil || m.CreatedAt.After(last.CreatedAt) {
			last = &m
		}
	}
	if last != nil {
		ev := last.event(inbox.EventInsert)
		row.LastMessage = &inbox.LastMessage{
			ID:       ev.MessageID,
			Text:     ev.Text,
			At:       ev.At,
			SenderID: ev.SenderID,
			Read:     ev.Read,
			Deleted:  ev.Deleted,
		}
	}
	if o, ok := s.overlays[[2]string{userID, job.ID}]; ok {
		if o.archived != nil {
			a := *o.archived
			row.Archived = &a
		}
		row.Deleted = o.deleted
	}
	return row, true
}

func copyMessage(m Message) Message {
	if m.ReadAt != nil {
		t := *m.ReadAt
		m.ReadAt = &t
	}
	return m
}

func sortMessages(ms []Message) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].CreatedAt.Before(ms[j].CreatedAt) })
}
