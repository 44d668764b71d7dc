package negotiation

import "time"

// Role is the side of a negotiation a history entry was made by.
type Role string

const (
	RolePoster Role = "POSTER"
	RoleWorker Role = "WORKER"
)

func (r Role) Valid() bool {
	return r == RolePoster || r == RoleWorker
}

type JobStatus string

const (
	JobOpen       JobStatus = "OPEN"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobCompleted  JobStatus = "COMPLETED"
	JobCancelled  JobStatus = "CANCELLED"
)

// Closed reports whether the job reached a terminal status.
func (s JobStatus) Closed() bool {
	return s == JobCompleted || s == JobCancelled
}

type BidStatus string

const (
	BidPending  BidStatus = "PENDING"
	BidAccepted BidStatus = "ACCEPTED"
	BidRejected BidStatus = "REJECTED"
)

// Entry is one step of the counter-offer history. Amounts are in paise.
type Entry struct {
	Amount int64     `json:"amount"`
	By     Role      `json:"by"`
	At     time.Time `json:"at"`
	Agreed bool      `json:"agreed,omitempty"`
}

// Bid is a worker's offer on a job together with its negotiation history.
type Bid struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	WorkerID  string    `json:"worker_id"`
	Amount    int64     `json:"amount"`
	Message   string    `json:"message,omitempty"`
	Status    BidStatus `json:"status"`
	History   []Entry   `json:"history"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Job is a posted task and the bids placed on it.
type Job struct {
	ID            string    `json:"id"`
	PosterID      string    `json:"poster_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Budget        int64     `json:"budget"`
	Status        JobStatus `json:"status"`
	AcceptedBidID string    `json:"accepted_bid_id,omitempty"`
	Bids          []Bid     `json:"bids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Last returns the most recent history entry.
func (b Bid) Last() (Entry, bool) {
	if len(b.History) == 0 {
		return Entry{}, false
	}
	return b.History[len(b.History)-1], true
}

// HasAgreement reports whether any party marked an amount as agreed.
func (b Bid) HasAgreement() bool {
	for _, e := range b.History {
		if e.Agreed {
			return true
		}
	}
	return false
}

func (b Bid) clone() Bid {
	if b.History != nil {
		b.History = append([]Entry(nil), b.History...)
	}
	return b
}

func (j Job) clone() Job {
	if j.Bids != nil {
		bids := make([]Bid, len(j.Bids))
		for i, b := range j.Bids {
			bids[i] = b.clone()
		}
		j.Bids = bids
	}
	return j
}

// Clone returns a deep copy safe to mutate.
func (j Job) Clone() Job {
	return j.clone()
}

func (j Job) indexOf(bidID string) int {
	for i := range j.Bids {
		if j.Bids[i].ID == bidID {
			return i
		}
	}
	return -1
}

// Bid looks up a bid by id.
func (j Job) Bid(bidID string) (Bid, bool) {
	if i := j.indexOf(bidID); i >= 0 {
		return j.Bids[i].clone(), true
	}
	return Bid{}, false
}

// LiveBidBy returns the worker's bid that has not been rejected, if any.
func (j Job) LiveBidBy(workerID string) (Bid, bool) {
	for _, b := range j.Bids {
		if b.WorkerID == workerID && b.Status != BidRejected {
			return b.clone(), true
		}
	}
	return Bid{}, false
}

// AcceptedBid returns the hired bid.
func (j Job) AcceptedBid() (Bid, bool) {
	if j.AcceptedBidID == "" {
		return Bid{}, false
	}
	b, ok := j.Bid(j.AcceptedBidID)
	if !ok || b.Status != BidAccepted {
		return Bid{}, false
	}
	return b, true
}

// RoleOf reports which side of the job userID is on for the given bid.
func (j Job) RoleOf(userID string, b Bid) (Role, bool) {
	switch userID {
	case "":
		return "", false
	case j.PosterID:
		return RolePoster, true
	case b.WorkerID:
		return RoleWorker, true
	}
	return "", false
}
