package alerts

import "time"

// Task type constants
const (
	TaskBidProposed     = "email:bid_proposed"
	TaskCounterOffer    = "email:counter_offer"
	TaskWorkerAgreed    = "email:worker_agreed"
	TaskHired           = "email:hired"
	TaskBidRejected     = "email:bid_rejected"
	TaskReviewPrompt    = "email:review_prompt"
	TaskRefundRequested = "email:refund_requested"
	TaskMessageNew      = "email:message_new"
	TaskPaymentApplied  = "email:payment_applied"
)

// Queue names served by the worker, with their priorities.
const (
	QueueEmails = "emails"
	QueueAlerts = "alerts"
)

var emailTasks = []string{
	TaskBidProposed,
	TaskCounterOffer,
	TaskWorkerAgreed,
	TaskHired,
	TaskBidRejected,
	TaskReviewPrompt,
	TaskRefundRequested,
	TaskMessageNew,
	TaskPaymentApplied,
}

// EmailEnvelope is the rendered mail. The address is resolved by the
// worker so queued tasks never carry stale addresses.
type EmailEnvelope struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmailPayload is the body of every email task.
type EmailPayload struct {
	UserID   string        `json:"user_id"`
	JobID    string        `json:"job_id,omitempty"`
	Envelope EmailEnvelope `json:"envelope"`
	SentAt   time.Time     `json:"sent_at"`
}

// Notification is an in-app alert row.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	JobID     string     `json:"job_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at"`
}
