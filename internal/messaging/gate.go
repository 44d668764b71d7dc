package messaging

import (
	"errors"

	"github.com/sudo-init-do/gigmarket/internal/negotiation"
)

var (
	ErrNotParticipant     = errors.New("not a participant in this job")
	ErrChatUnavailable    = errors.New("chat opens once the job is hired")
	ErrReceiverUnresolved = errors.New("no receiver for this conversation yet")
)

type Reason string

const (
	ReasonAvailable       Reason = "available"
	ReasonNotYetAvailable Reason = "not_yet_available"
	ReasonNotParticipant  Reason = "not_a_participant"
)

// Decision is the outcome of CanOpenChat. A refusal is a value, not an error.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

// Err maps a refusal to its sentinel error, nil when allowed.
func (d Decision) Err() error {
	switch d.Reason {
	case ReasonAvailable:
		return nil
	case ReasonNotParticipant:
		return ErrNotParticipant
	}
	return ErrChatUnavailable
}

// CanOpenChat allows the poster and the hired worker once the job is in
// progress, and keeps the thread open after completion.
func CanOpenChat(job negotiation.Job, userID string) Decision {
	if job.Status != negotiation.JobInProgress && job.Status != negotiation.JobCompleted {
		return Decision{Reason: ReasonNotYetAvailable}
	}
	if !isParticipant(job, userID) {
		return Decision{Reason: ReasonNotParticipant}
	}
	return Decision{Allowed: true, Reason: ReasonAvailable}
}

// isParticipant reports the poster or the worker of the accepted bid.
func isParticipant(job negotiation.Job, userID string) bool {
	if userID == "" {
		return false
	}
	if userID == job.PosterID {
		return true
	}
	b, ok := job.AcceptedBid()
	return ok && b.WorkerID == userID
}

// ResolveReceiver returns who a message from senderID goes to. The poster
// writes to the hired worker, or to the worker who already agreed while the
// hire is being finalized. Everyone else writes to the poster.
func ResolveReceiver(job negotiation.Job, senderID string) (string, error) {
	if senderID != job.PosterID {
		if job.PosterID == "" {
			return "", ErrReceiverUnresolved
		}
		return job.PosterID, nil
	}
	if b, ok := job.AcceptedBid(); ok && b.WorkerID != "" {
		return b.WorkerID, nil
	}
	for _, b := range job.Bids {
		if b.HasAgreement() && b.WorkerID != "" {
			return b.WorkerID, nil
		}
	}
	return "", ErrReceiverUnresolved
}
