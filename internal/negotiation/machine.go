package negotiation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Machine applies negotiation transitions. Every method copies its input
// and returns the new value, so callers can retry or discard freely.
type Machine struct {
	Clock func() time.Time
	NewID func() string
}

// New returns a Machine using wall-clock UTC time and random UUIDs.
func New() Machine {
	return Machine{
		Clock: func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

func (m Machine) Now() time.Time {
	if m.Clock == nil {
		return time.Now().UTC()
	}
	return m.Clock()
}

func (m Machine) NextID() string {
	if m.NewID == nil {
		return uuid.NewString()
	}
	return m.NewID()
}

// Propose places a new PENDING bid with an empty history.
func (m Machine) Propose(job Job, workerID string, amount int64, message string) (Job, Bid, error) {
	if amount <= 0 {
		return Job{}, Bid{}, ErrInvalidAmount
	}
	if workerID == "" {
		return Job{}, Bid{}, fmt.Errorf("%w: missing worker", ErrInvalidState)
	}
	if job.Status != JobOpen {
		return Job{}, Bid{}, fmt.Errorf("%w: job is %s", ErrInvalidState, job.Status)
	}
	if workerID == job.PosterID {
		return Job{}, Bid{}, ErrSelfBid
	}
	if _, ok := job.LiveBidBy(workerID); ok {
		return Job{}, Bid{}, fmt.Errorf("%w: worker already has a live bid", ErrInvalidState)
	}

	now := m.Now()
	bid := Bid{
		ID:        m.NextID(),
		JobID:     job.ID,
		WorkerID:  workerID,
		Amount:    amount,
		Message:   message,
		Status:    BidPending,
		History:   []Entry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	next := job.clone()
	next.Bids = append(next.Bids, bid)
	next.UpdatedAt = now
	return next, bid.clone(), nil
}

// Counter appends a counter-offer by the given side and makes it the current amount.
func (m Machine) Counter(bid Bid, by Role, amount int64) (Bid, error) {
	if amount <= 0 {
		return Bid{}, ErrInvalidAmount
	}
	if !by.Valid() {
		return Bid{}, fmt.Errorf("%w: unknown role %q", ErrInvalidState, by)
	}
	if bid.Status != BidPending {
		return Bid{}, fmt.Errorf("%w: bid is %s", ErrInvalidState, bid.Status)
	}
	now := m.Now()
	next := bid.clone()
	next.History = append(next.History, Entry{Amount: amount, By: by, At: now})
	next.Amount = amount
	next.UpdatedAt = now
	return next, nil
}

// AcceptAsWorker records the worker's agreement to the bid's current amount.
// The bid stays PENDING until the poster finalizes the hire.
func (m Machine) AcceptAsWorker(bid Bid) (Bid, error) {
	if bid.Status != BidPending {
		return Bid{}, fmt.Errorf("%w: bid is %s", ErrInvalidState, bid.Status)
	}
	now := m.Now()
	next := bid.clone()
	next.History = append(next.History, Entry{Amount: bid.Amount, By: RoleWorker, At: now, Agreed: true})
	next.UpdatedAt = now
	return next, nil
}

// FinalizeHire accepts bidID, rejects every other live bid and moves the job
// to IN_PROGRESS at the bid's current amount.
func (m Machine) FinalizeHire(job Job, bidID string) (Job, error) {
	if job.Status != JobOpen {
		return Job{}, fmt.Errorf("%w: job is %s", ErrInvalidState, job.Status)
	}
	i := job.indexOf(bidID)
	if i < 0 {
		return Job{}, ErrBidNotFound
	}
	bid := job.Bids[i]
	if bid.Status != BidPending {
		return Job{}, fmt.Errorf("%w: bid is %s", ErrInvalidState, bid.Status)
	}
	last, hasLast := bid.Last()

	now := m.Now()
	next := job.clone()
	for j := range next.Bids {
		b := &next.Bids[j]
		switch {
		case j == i:
			if !hasLast || !last.Agreed {
				b.History = append(b.History, Entry{Amount: b.Amount, By: RolePoster, At: now, Agreed: true})
			}
			b.Status = BidAccepted
			b.UpdatedAt = now
		case b.Status != BidRejected:
			b.Status = BidRejected
			b.UpdatedAt = now
		}
	}
	next.AcceptedBidID = bidID
	next.Status = JobInProgress
	next.UpdatedAt = now
	return next, nil
}

// RejectBid closes a bid. Rejecting an already rejected bid is a no-op.
func (m Machine) RejectBid(bid Bid) (Bid, error) {
	switch bid.Status {
	case BidRejected:
		return bid.clone(), nil
	case BidAccepted:
		return Bid{}, fmt.Errorf("%w: bid already accepted", ErrInvalidState)
	}
	next := bid.clone()
	next.Status = BidRejected
	next.UpdatedAt = m.Now()
	return next, nil
}

// Withdraw removes a PENDING bid on behalf of its worker.
func (m Machine) Withdraw(job Job, bidID, workerID string) (Job, error) {
	i := job.indexOf(bidID)
	if i < 0 {
		return Job{}, ErrBidNotFound
	}
	bid := job.Bids[i]
	if bid.WorkerID != workerID {
		return Job{}, ErrNotBidOwner
	}
	if bid.Status != BidPending {
		return Job{}, fmt.Errorf("%w: bid is %s", ErrInvalidState, bid.Status)
	}
	next := job.clone()
	next.Bids = append(next.Bids[:i], next.Bids[i+1:]...)
	next.UpdatedAt = m.Now()
	return next, nil
}

// UpdateBid applies a bid-level transition inside an OPEN job.
func (m Machine) UpdateBid(job Job, bidID string, fn func(Bid) (Bid, error)) (Job, Bid, error) {
	if job.Status != JobOpen {
		return Job{}, Bid{}, fmt.Errorf("%w: job is %s", ErrInvalidState, job.Status)
	}
	i := job.indexOf(bidID)
	if i < 0 {
		return Job{}, Bid{}, ErrBidNotFound
	}
	bid, err := fn(job.Bids[i].clone())
	if err != nil {
		return Job{}, Bid{}, err
	}
	next := job.clone()
	next.Bids[i] = bid.clone()
	next.UpdatedAt = bid.UpdatedAt
	return next, bid, nil
}

// Complete marks a hired job as done. Callers prompt for a review when the
// returned job has an accepted bid.
func (m Machine) Complete(job Job) (Job, error) {
	if job.Status != JobInProgress {
		return Job{}, fmt.Errorf("%w: job is %s", ErrInvalidState, job.Status)
	}
	next := job.clone()
	next.Status = JobCompleted
	next.UpdatedAt = m.Now()
	return next, nil
}

// Cancel closes an open or hired job and rejects any bids still pending.
func (m Machine) Cancel(job Job) (Job, error) {
	if job.Status.Closed() {
		return Job{}, fmt.Errorf("%w: job is %s", ErrInvalidState, job.Status)
	}
	now := m.Now()
	next := job.clone()
	for i := range next.Bids {
		if next.Bids[i].Status == BidPending {
			next.Bids[i].Status = BidRejected
			next.Bids[i].UpdatedAt = now
		}
	}
	next.Status = JobCancelled
	next.UpdatedAt = now
	return next, nil
}

// ComputeActionRequired reports whether role owes the next move on bid.
// A fresh proposal waits on the poster; afterwards the side that did not
// make the last entry must respond.
func ComputeActionRequired(bid Bid, role Role) bool {
	if bid.Status != BidPending {
		return false
	}
	last, ok := bid.Last()
	if !ok {
		return role == RolePoster
	}
	return role != last.By
}

// ActionRequiredCount counts the bids on job waiting on role.
func ActionRequiredCount(job Job, role Role) int {
	n := 0
	for _, b := range job.Bids {
		if ComputeActionRequired(b, role) {
			n++
		}
	}
	return n
}
