package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/gigmarket/internal/inbox"
	"github.com/sudo-init-do/gigmarket/internal/messaging"
	"github.com/sudo-init-do/gigmarket/internal/negotiation"
)

// Enqueuer is the part of *asynq.Client the notifier uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher pushes notification changes to live sessions.
type Publisher interface {
	PublishNotification(userID string, n inbox.Notification)
}

// Notifier records in-app notifications, pushes them to live sessions
// and queues the matching email.
type Notifier struct {
	store Store
	queue Enqueuer
	pub   Publisher
	now   func() time.Time
}

func NewNotifier(store Store, queue Enqueuer, pub Publisher) *Notifier {
	return &Notifier{
		store: store,
		queue: queue,
		pub:   pub,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type alert struct {
	userID string
	jobID  string
	kind   string
	task   string
	queue  string
	title  string
	body   string
}

func (n *Notifier) send(ctx context.Context, a alert) error {
	if a.userID == "" {
		return nil
	}
	now := n.now()
	created, err := n.store.Create(ctx, Notification{
		UserID:    a.userID,
		Type:      a.kind,
		Title:     a.title,
		Body:      a.body,
		JobID:     a.jobID,
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	if n.pub != nil {
		n.pub.PublishNotification(a.userID, toInbox(created))
	}
	if n.queue == nil {
		return nil
	}

	q := a.queue
	if q == "" {
		q = QueueEmails
	}
	b, err := json.Marshal(EmailPayload{
		UserID:   a.userID,
		JobID:    a.jobID,
		Envelope: EmailEnvelope{Subject: a.title, Body: a.body},
		SentAt:   now,
	})
	if err != nil {
		return err
	}
	if _, err := n.queue.EnqueueContext(ctx, asynq.NewTask(a.task, b), asynq.Queue(q)); err != nil {
		return fmt.Errorf("enqueue %s: %w", a.task, err)
	}
	slog.DebugContext(ctx, "email_enqueued", "task", a.task, "user_id", a.userID)
	return nil
}

func toInbox(n Notification) inbox.Notification {
	return inbox.Notification{ID: n.ID, JobID: n.JobID, Read: n.ReadAt != nil}
}

// rupees renders paise as a major-unit amount.
func rupees(paise int64) string {
	return "₹" + decimal.New(paise, -2).StringFixed(2)
}

func (n *Notifier) BidProposed(ctx context.Context, job negotiation.Job, b negotiation.Bid) error {
	return n.send(ctx, alert{
		userID: job.PosterID, jobID: job.ID, kind: "bid:proposed", task: TaskBidProposed,
		title: fmt.Sprintf("New bid on %q", job.Title),
		body:  fmt.Sprintf("A worker offered %s for %q.", rupees(b.Amount), job.Title),
	})
}

func (n *Notifier) CounterOffered(ctx context.Context, job negotiation.Job, b negotiation.Bid, by negotiation.Role) error {
	to := b.WorkerID
	if by == negotiation.RoleWorker {
		to = job.PosterID
	}
	return n.send(ctx, alert{
		userID: to, jobID: job.ID, kind: "bid:counter", task: TaskCounterOffer,
		title: fmt.Sprintf("Counter offer on %q", job.Title),
		body:  fmt.Sprintf("The new proposed amount is %s.", rupees(b.Amount)),
	})
}

func (n *Notifier) WorkerAgreed(ctx context.Context, job negotiation.Job, b negotiation.Bid) error {
	return n.send(ctx, alert{
		userID: job.PosterID, jobID: job.ID, kind: "bid:agreed", task: TaskWorkerAgreed,
		title: fmt.Sprintf("Your offer on %q was accepted", job.Title),
		body:  fmt.Sprintf("The worker agreed to %s. Confirm the hire to start the job.", rupees(b.Amount)),
	})
}

func (n *Notifier) Hired(ctx context.Context, job negotiation.Job, b negotiation.Bid) error {
	return n.send(ctx, alert{
		userID: b.WorkerID, jobID: job.ID, kind: "bid:hired", task: TaskHired,
		title: fmt.Sprintf("You were hired for %q", job.Title),
		body:  fmt.Sprintf("The agreed amount is %s. You can now chat with the poster.", rupees(b.Amount)),
	})
}

func (n *Notifier) BidRejected(ctx context.Context, job negotiation.Job, b negotiation.Bid) error {
	return n.send(ctx, alert{
		userID: b.WorkerID, jobID: job.ID, kind: "bid:rejected", task: TaskBidRejected,
		title: fmt.Sprintf("Your bid on %q was not selected", job.Title),
		body:  "The poster went with another offer.",
	})
}

func (n *Notifier) ReviewRequested(ctx context.Context, job negotiation.Job, b negotiation.Bid) error {
	return n.send(ctx, alert{
		userID: job.PosterID, jobID: job.ID, kind: "job:review", task: TaskReviewPrompt,
		title: fmt.Sprintf("%q is complete", job.Title),
		body:  "Leave a review for the worker.",
	})
}

func (n *Notifier) RefundRequested(ctx context.Context, job negotiation.Job) error {
	return n.send(ctx, alert{
		userID: job.PosterID, jobID: job.ID, kind: "job:refund", task: TaskRefundRequested, queue: QueueAlerts,
		title: fmt.Sprintf("%q was cancelled", job.Title),
		body:  "Any payment held for this job will be refunded.",
	})
}

func (n *Notifier) MessageReceived(ctx context.Context, m messaging.Message) error {
	return n.send(ctx, alert{
		userID: m.ReceiverID, jobID: m.JobID, kind: "message:new", task: TaskMessageNew,
		title: "New message",
		body:  m.Text,
	})
}

func (n *Notifier) PaymentApplied(ctx context.Context, userID, summary string) error {
	return n.send(ctx, alert{
		userID: userID, kind: "payment:applied", task: TaskPaymentApplied,
		title: "Payment received",
		body:  summary + " was added to your account.",
	})
}

// List returns the caller's notifications, newest first.
func (n *Notifier) List(ctx context.Context, userID string) ([]Notification, error) {
	return n.store.List(ctx, userID)
}

// UnreadNotifications seeds the live unread feed of an inbox session.
func (n *Notifier) UnreadNotifications(ctx context.Context, userID string) ([]inbox.Notification, error) {
	ns, err := n.store.Unread(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]inbox.Notification, len(ns))
	for i, x := range ns {
		out[i] = toInbox(x)
	}
	return out, nil
}

// MarkRead marks one notification read and pushes the change.
func (n *Notifier) MarkRead(ctx context.Context, userID, id string) (Notification, error) {
	x, err := n.store.MarkRead(ctx, userID, id, n.now())
	if err != nil {
		return Notification{}, err
	}
	if n.pub != nil {
		n.pub.PublishNotification(userID, toInbox(x))
	}
	return x, nil
}
