package messaging

import (
	"errors"
	"testing"

	"github.com/sudo-init-do/gigmarket/internal/negotiation"
)

func hiredJob(status negotiation.JobStatus) negotiation.Job {
	return negotiation.Job{
		ID:            "job-1",
		PosterID:      "poster",
		Title:         "Paint fence",
		Status:        status,
		AcceptedBidID: "bid-w",
		Bids: []negotiation.Bid{
			{ID: "bid-w", JobID: "job-1", WorkerID: "worker", Status: negotiation.BidAccepted},
			{ID: "bid-x", JobID: "job-1", WorkerID: "other", Status: negotiation.BidRejected},
		},
	}
}

func TestCanOpenChat(t *testing.T) {
	tests := []struct {
		name   string
		status negotiation.JobStatus
		user   string
		want   Decision
	}{
		{"poster in progress", negotiation.JobInProgress, "poster", Decision{true, ReasonAvailable}},
		{"worker in progress", negotiation.JobInProgress, "worker", Decision{true, ReasonAvailable}},
		{"worker after completion", negotiation.JobCompleted, "worker", Decision{true, ReasonAvailable}},
		{"rejected bidder", negotiation.JobInProgress, "other", Decision{false, ReasonNotParticipant}},
		{"stranger", negotiation.JobCompleted, "nobody", Decision{false, ReasonNotParticipant}},
		{"open job", negotiation.JobOpen, "poster", Decision{false, ReasonNotYetAvailable}},
		{"cancelled job", negotiation.JobCancelled, "worker", Decision{false, ReasonNotYetAvailable}},
		{"open job stranger", negotiation.JobOpen, "nobody", Decision{false, ReasonNotYetAvailable}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanOpenChat(hiredJob(tc.status), tc.user); got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestDecisionErr(t *testing.T) {
	if err := (Decision{Allowed: true, Reason: ReasonAvailable}).Err(); err != nil {
		t.Fatalf("err = %v", err)
	}
	if err := (Decision{Reason: ReasonNotParticipant}).Err(); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("err = %v", err)
	}
	if err := (Decision{Reason: ReasonNotYetAvailable}).Err(); !errors.Is(err, ErrChatUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestResolveReceiver(t *testing.T) {
	job := hiredJob(negotiation.JobInProgress)
	if got, err := ResolveReceiver(job, "poster"); err != nil || got != "worker" {
		t.Fatalf("poster -> %q, %v", got, err)
	}
	if got, err := ResolveReceiver(job, "worker"); err != nil || got != "poster" {
		t.Fatalf("worker -> %q, %v", got, err)
	}
	// non-posters always write to the poster
	if got, err := ResolveReceiver(job, "anyone"); err != nil || got != "poster" {
		t.Fatalf("anyone -> %q, %v", got, err)
	}
}

func TestResolveReceiverBeforeFinalize(t *testing.T) {
	job := negotiation.Job{
		ID:       "job-2",
		PosterID: "poster",
		Status:   negotiation.JobOpen,
		Bids: []negotiation.Bid{
			{ID: "b1", WorkerID: "w1", Status: negotiation.BidPending,
				History: []negotiation.Entry{{Amount: 100, By: negotiation.RolePoster}}},
			{ID: "b2", WorkerID: "w2", Status: negotiation.BidPending,
				History: []negotiation.Entry{
					{Amount: 100, By: negotiation.RolePoster},
					{Amount: 100, By: negotiation.RoleWorker, Agreed: true},
				}},
		},
	}
	if got, err := ResolveReceiver(job, "poster"); err != nil || got != "w2" {
		t.Fatalf("poster -> %q, %v", got, err)
	}

	job.Bids = job.Bids[:1]
	if _, err := ResolveReceiver(job, "poster"); !errors.Is(err, ErrReceiverUnresolved) {
		t.Fatalf("err = %v, want ErrReceiverUnresolved", err)
	}
}
