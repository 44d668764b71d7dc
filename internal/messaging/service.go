package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/gigmarket/internal/inbox"
)

var (
	ErrEmptyMessage    = errors.New("message text is required")
	ErrInvalidClientID = errors.New("client id must be a uuid")
	ErrNotRecipient    = errors.New("only the recipient can mark a message read")
)

// Notifier tells the receiver about a new message outside the live stream.
type Notifier interface {
	MessageReceived(ctx context.Context, m Message) error
}

// Service is also the inbox source of live sessions.
var _ inbox.Source = (*Service)(nil)

type Service struct {
	store    Store
	jobs     JobLookup
	hub      *Hub
	notifier Notifier
	now      func() time.Time
}

func NewService(store Store, jobs JobLookup, hub *Hub, notifier Notifier) *Service {
	return &Service{
		store:    store,
		jobs:     jobs,
		hub:      hub,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OpenChat reports whether userID may open the job's thread.
func (s *Service) OpenChat(ctx context.Context, jobID, userID string) (Decision, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return Decision{}, err
	}
	return CanOpenChat(job, userID), nil
}

// SendMessage stores and broadcasts a message. Resending with the same
// client id returns the stored message without a second broadcast.
func (s *Service) SendMessage(ctx context.Context, in SendInput) (Message, bool, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Message{}, false, ErrEmptyMessage
	}
	id := uuid.NewString()
	if in.ClientID != "" {
		parsed, err := uuid.Parse(in.ClientID)
		if err != nil {
			return Message{}, false, ErrInvalidClientID
		}
		id = parsed.String()
	}

	job, err := s.jobs.GetJob(ctx, in.JobID)
	if err != nil {
		return Message{}, false, err
	}
	if err := CanOpenChat(job, in.SenderID).Err(); err != nil {
		return Message{}, false, err
	}
	receiver, err := ResolveReceiver(job, in.SenderID)
	if err != nil {
		return Message{}, false, err
	}
	if in.ReceiverID != "" && in.ReceiverID != receiver {
		return Message{}, false, ErrNotParticipant
	}

	m, created, err := s.store.InsertMessage(ctx, Message{
		ID:         id,
		JobID:      job.ID,
		SenderID:   in.SenderID,
		ReceiverID: receiver,
		Text:       text,
		CreatedAt:  s.now().Truncate(time.Microsecond),
	})
	if err != nil {
		return Message{}, false, err
	}
	if !created {
		return m, false, nil
	}

	slog.InfoContext(ctx, "message_sent", "job_id", m.JobID, "message_id", m.ID, "sender_id", m.SenderID)
	s.hub.PublishMessage(m.event(inbox.EventInsert))
	if s.notifier != nil {
		if err := s.notifier.MessageReceived(ctx, m); err != nil {
			slog.WarnContext(ctx, "message notification failed", "message_id", m.ID, "error", err)
		}
	}
	return m, true, nil
}

// ListMessages returns the thread after since, oldest first. Participants
// keep access after the job closes.
func (s *Service) ListMessages(ctx context.Context, jobID, userID string, since time.Time) ([]Message, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(job, userID) {
		return nil, ErrNotParticipant
	}
	ms, err := s.store.ListMessages(ctx, jobID, since)
	if err != nil {
		return nil, err
	}
	for i := range ms {
		if ms[i].Deleted {
			ms[i].Text = ""
		}
	}
	return ms, nil
}

// MarkRead marks a message read by its recipient and broadcasts the change
// the first time.
func (s *Service) MarkRead(ctx context.Context, jobID, messageID, userID string) (Message, error) {
	m, err := s.store.GetMessage(ctx, jobID, messageID)
	if err != nil {
		return Message{}, err
	}
	if m.ReceiverID != userID {
		return Message{}, ErrNotRecipient
	}
	if m.ReadAt != nil {
		return m, nil
	}
	m, err = s.store.MarkRead(ctx, jobID, messageID, s.now().Truncate(time.Microsecond))
	if err != nil {
		return Message{}, err
	}
	s.hub.PublishMessage(m.event(inbox.EventUpdate))
	return m, nil
}

// FetchInbox returns the bulk inbox rows for userID.
func (s *Service) FetchInbox(ctx context.Context, userID string) ([]inbox.Summary, error) {
	return s.store.FetchInbox(ctx, userID)
}

// SetArchived and DeleteConversation are keyed by user and job; repeating
// them is harmless.
func (s *Service) SetArchived(ctx context.Context, userID, jobID string, archived bool) error {
	if err := s.participant(ctx, jobID, userID); err != nil {
		return err
	}
	return s.store.SetArchived(ctx, userID, jobID, archived)
}

func (s *Service) DeleteConversation(ctx context.Context, userID, jobID string) error {
	if err := s.participant(ctx, jobID, userID); err != nil {
		return err
	}
	return s.store.DeleteConversation(ctx, userID, jobID)
}

func (s *Service) participant(ctx context.Context, jobID, userID string) error {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !isParticipant(job, userID) {
		return fmt.Errorf("%w: job %s", ErrNotParticipant, jobID)
	}
	return nil
}
