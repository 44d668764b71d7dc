package messaging

import (
	"time"

	"github.com/sudo-init-do/gigmarket/internal/inbox"
)

// Message is one chat line inside a job thread.
type Message struct {
	ID         string     `json:"id"`
	JobID      string     `json:"job_id"`
	SenderID   string     `json:"sender_id"`
	ReceiverID string     `json:"receiver_id"`
	Text       string     `json:"text"`
	Deleted    bool       `json:"deleted,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ReadAt     *time.Time `json:"read_at"`
}

func (m Message) event(t inbox.EventType) inbox.MessageEvent {
	text := m.Text
	if m.Deleted {
		text = ""
	}
	return inbox.MessageEvent{
		Type:       t,
		MessageID:  m.ID,
		JobID:      m.JobID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       text,
		At:         m.CreatedAt.UnixMilli(),
		Read:       m.ReadAt != nil,
		Deleted:    m.Deleted,
	}
}

// SendInput is a message as submitted by a client. ClientID, when set,
// becomes the message id so a resend of the same message is a no-op.
type SendInput struct {
	JobID      string `json:"-"`
	SenderID   string `json:"-"`
	ReceiverID string `json:"receiver_id,omitempty"`
	Text       string `json:"text"`
	ClientID   string `json:"client_id,omitempty"`
}
