package inbox

import "github.com/sudo-init-do/gigmarket/internal/negotiation"

// Counterpart is the other participant of a conversation.
type Counterpart struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	PhotoURL string   `json:"photo_url,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
}

// LastMessage is the newest message of a conversation. At is epoch millis.
type LastMessage struct {
	ID       string `json:"id,omitempty"`
	Text     string `json:"text"`
	At       int64  `json:"at"`
	SenderID string `json:"sender_id"`
	Read     bool   `json:"read"`
	Deleted  bool   `json:"deleted,omitempty"`
}

// Summary is one conversation row, keyed by job id.
type Summary struct {
	JobID       string                `json:"job_id"`
	JobTitle    string                `json:"job_title"`
	JobStatus   negotiation.JobStatus `json:"job_status"`
	PosterID    string                `json:"poster_id"`
	WorkerID    string                `json:"worker_id,omitempty"`
	IsPoster    bool                  `json:"is_poster"`
	IsWorker    bool                  `json:"is_worker"`
	Counterpart Counterpart           `json:"counterpart"`
	LastMessage *LastMessage          `json:"last_message,omitempty"`
	UnreadCount int                   `json:"unread_count"`

	// Archived is the server-side flag; nil when the user never set it.
	Archived *bool `json:"archived,omitempty"`
	Deleted  bool  `json:"deleted,omitempty"`
}

// Timestamp returns the last message time, or 0 when there is none.
func (s Summary) Timestamp() int64 {
	if s.LastMessage == nil {
		return 0
	}
	return s.LastMessage.At
}

func (s Summary) clone() Summary {
	if s.LastMessage != nil {
		lm := *s.LastMessage
		s.LastMessage = &lm
	}
	if s.Archived != nil {
		a := *s.Archived
		s.Archived = &a
	}
	if s.Counterpart.Rating != nil {
		r := *s.Counterpart.Rating
		s.Counterpart.Rating = &r
	}
	return s
}

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
)

// MessageEvent is a live change to one message.
type MessageEvent struct {
	Type       EventType `json:"type"`
	MessageID  string    `json:"message_id"`
	JobID      string    `json:"job_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Text       string    `json:"text"`
	At         int64     `json:"at"`
	Read       bool      `json:"read"`
	Deleted    bool      `json:"deleted,omitempty"`
}

// Notification is an entry of the live notification feed. JobID is the
// referenced job, empty for notifications about nothing in the inbox.
type Notification struct {
	ID    string `json:"id"`
	JobID string `json:"job_id,omitempty"`
	Read  bool   `json:"read"`
}

type Tab string

const (
	TabAll    Tab = "all"
	TabWorker Tab = "worker"
	TabPoster Tab = "poster"
)

// Query selects which conversations View returns.
type Query struct {
	Tab      Tab    `json:"tab"`
	Search   string `json:"search"`
	Archived bool   `json:"archived"`
}

type EntryState string

const (
	StateActive   EntryState = "ACTIVE"
	StateArchived EntryState = "ARCHIVED"
	StateDeleted  EntryState = "DELETED"
)
