package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sudo-init-do/gigmarket/internal/negotiation"
	"github.com/sudo-init-do/gigmarket/internal/utils"
)

var (
	ErrForbidden  = errors.New("not allowed for this user")
	ErrInvalidJob = errors.New("invalid job")
)

// Notifier receives post-commit side effects. Failures are logged and never
// roll back the transition that produced them.
type Notifier interface {
	BidProposed(ctx context.Context, job negotiation.Job, bid negotiation.Bid) error
	CounterOffered(ctx context.Context, job negotiation.Job, bid negotiation.Bid, by negotiation.Role) error
	WorkerAgreed(ctx context.Context, job negotiation.Job, bid negotiation.Bid) error
	Hired(ctx context.Context, job negotiation.Job, bid negotiation.Bid) error
	BidRejected(ctx context.Context, job negotiation.Job, bid negotiation.Bid) error
	ReviewRequested(ctx context.Context, job negotiation.Job, bid negotiation.Bid) error
	RefundRequested(ctx context.Context, job negotiation.Job) error
}

// Service exposes each negotiation transition as one atomic store operation.
type Service struct {
	store    Store
	machine  negotiation.Machine
	notifier Notifier
}

func NewService(store Store, machine negotiation.Machine, notifier Notifier) *Service {
	return &Service{store: store, machine: machine, notifier: notifier}
}

// NewJob is the input for PostJob. Budget is in paise.
type NewJob struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Budget      int64  `json:"budget" validate:"gt=0"`
}

func (s *Service) PostJob(ctx context.Context, posterID string, in NewJob) (negotiation.Job, error) {
	if posterID == "" {
		return negotiation.Job{}, fmt.Errorf("%w: missing poster", ErrInvalidJob)
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := utils.ValidateStruct(in); err != nil {
		return negotiation.Job{}, fmt.Errorf("%w: %s", ErrInvalidJob, utils.ValidationMessage(err))
	}
	now := s.machine.Now()
	job := negotiation.Job{
		ID:          s.machine.NextID(),
		PosterID:    posterID,
		Title:       in.Title,
		Description: in.Description,
		Budget:      in.Budget,
		Status:      negotiation.JobOpen,
		Bids:        []negotiation.Bid{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return negotiation.Job{}, err
	}
	slog.InfoContext(ctx, "job_posted", "job_id", job.ID, "poster_id", posterID)
	return job, nil
}

// GetJob returns the job as userID may see it.
func (s *Service) GetJob(ctx context.Context, jobID, userID string) (negotiation.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return negotiation.Job{}, err
	}
	return VisibleTo(job, userID), nil
}

// VisibleTo hides other workers' bids from everyone but the poster.
func VisibleTo(job negotiation.Job, userID string) negotiation.Job {
	if userID == job.PosterID {
		return job
	}
	bids := []negotiation.Bid{}
	for _, b := range job.Bids {
		if b.WorkerID == userID {
			bids = append(bids, b)
		}
	}
	job.Bids = bids
	return job
}

func (s *Service) ProposeBid(ctx context.Context, jobID, workerID string, amount int64, message string) (negotiation.Bid, error) {
	var bid negotiation.Bid
	job, err := s.store.MutateJob(ctx, jobID, func(job negotiation.Job) (negotiation.Job, error) {
		next, b, err := s.machine.Propose(job, workerID, amount, strings.TrimSpace(message))
		bid = b
		return next, err
	})
	if err != nil {
		return negotiation.Bid{}, err
	}
	slog.InfoContext(ctx, "bid_proposed", "job_id", jobID, "bid_id", bid.ID, "worker_id", workerID, "amount", amount)
	s.after(ctx, "bid_proposed", s.notifier.BidProposed(ctx, job, bid))
	return bid, nil
}

// CounterBid records a counter-offer by whichever side actorID is on.
func (s *Service) CounterBid(ctx context.Context, jobID, bidID, actorID string, amount int64) (negotiation.Bid, error) {
	var role negotiation.Role
	job, bid, err := s.mutateBid(ctx, jobID, bidID, func(job negotiation.Job, b negotiation.Bid) (negotiation.Bid, error) {
		r, ok := job.RoleOf(actorID, b)
		if !ok {
			return negotiation.Bid{}, ErrForbidden
		}
		role = r
		return s.machine.Counter(b, r, amount)
	})
	if err != nil {
		return negotiation.Bid{}, err
	}
	slog.InfoContext(ctx, "bid_countered", "job_id", jobID, "bid_id", bidID, "by", role, "amount", amount)
	s.after(ctx, "counter_offered", s.notifier.CounterOffered(ctx, job, bid, role))
	return bid, nil
}

// AcceptBid records the worker's agreement to the poster's latest counter.
func (s *Service) AcceptBid(ctx context.Context, jobID, bidID, workerID string) (negotiation.Bid, error) {
	job, bid, err := s.mutateBid(ctx, jobID, bidID, func(_ negotiation.Job, b negotiation.Bid) (negotiation.Bid, error) {
		if b.WorkerID != workerID {
			return negotiation.Bid{}, negotiation.ErrNotBidOwner
		}
		return s.machine.AcceptAsWorker(b)
	})
	if err != nil {
		return negotiation.Bid{}, err
	}
	slog.InfoContext(ctx, "bid_agreed", "job_id", jobID, "bid_id", bidID, "amount", bid.Amount)
	s.after(ctx, "worker_agreed", s.notifier.WorkerAgreed(ctx, job, bid))
	return bid, nil
}

func (s *Service) FinalizeHire(ctx context.Context, jobID, bidID, posterID string) (negotiation.Job, error) {
	job, err := s.store.MutateJob(ctx, jobID, func(job negotiation.Job) (negotiation.Job, error) {
		if job.PosterID != posterID {
			return negotiation.Job{}, ErrForbidden
		}
		return s.machine.FinalizeHire(job, bidID)
	})
	if err != nil {
		return negotiation.Job{}, err
	}
	hired, _ := job.AcceptedBid()
	slog.InfoContext(ctx, "worker_hired", "job_id", jobID, "bid_id", bidID, "worker_id", hired.WorkerID, "amount", hired.Amount)
	s.after(ctx, "hired", s.notifier.Hired(ctx, job, hired))
	// bids closed by this hire carry its timestamp
	for _, b := range job.Bids {
		if b.ID != bidID && b.Status == negotiation.BidRejected && b.UpdatedAt.Equal(job.UpdatedAt) {
			s.after(ctx, "bid_rejected", s.notifier.BidRejected(ctx, job, b))
		}
	}
	return job, nil
}

// RejectBid is idempotent: rejecting a rejected bid changes nothing and
// notifies nobody, whatever state the job is in.
func (s *Service) RejectBid(ctx context.Context, jobID, bidID, posterID string) (negotiation.Bid, error) {
	changed := false
	var bid negotiation.Bid
	job, err := s.store.MutateJob(ctx, jobID, func(job negotiation.Job) (negotiation.Job, error) {
		if job.PosterID != posterID {
			return negotiation.Job{}, ErrForbidden
		}
		current, ok := job.Bid(bidID)
		if !ok {
			return negotiation.Job{}, negotiation.ErrBidNotFound
		}
		if current.Status == negotiation.BidRejected {
			bid = current
			return job, nil
		}
		next, b, err := s.machine.UpdateBid(job, bidID, s.machine.RejectBid)
		bid, changed = b, err == nil
		return next, err
	})
	if err != nil {
		return negotiation.Bid{}, err
	}
	if changed {
		slog.InfoContext(ctx, "bid_rejected", "job_id", jobID, "bid_id", bidID)
		s.after(ctx, "bid_rejected", s.notifier.BidRejected(ctx, job, bid))
	}
	return bid, nil
}

func (s *Service) WithdrawBid(ctx context.Context, jobID, bidID, workerID string) error {
	_, err := s.store.MutateJob(ctx, jobID, func(job negotiation.Job) (negotiation.Job, error) {
		return s.machine.Withdraw(job, bidID, workerID)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "bid_withdrawn", "job_id", jobID, "bid_id", bidID, "worker_id", workerID)
	return nil
}

func (s *Service) CompleteJob(ctx context.Context, jobID, posterID string) (negotiation.Job, error) {
	job, err := s.store.MutateJob(ctx, jobID, func(job negotiation.Job) (negotiation.Job, error) {
		if job.PosterID != posterID {
			return negotiation.Job{}, ErrForbidden
		}
		return s.machine.Complete(job)
	})
	if err != nil {
		return negotiation.Job{}, err
	}
	slog.InfoContext(ctx, "job_completed", "job_id", jobID)
	if hired, ok := job.AcceptedBid(); ok {
		s.after(ctx, "review_requested", s.notifier.ReviewRequested(ctx, job, hired))
	}
	return job, nil
}

func (s *Service) CancelJob(ctx context.Context, jobID, posterID string) (negotiation.Job, error) {
	job, err := s.store.MutateJob(ctx, jobID, func(job negotiation.Job) (negotiation.Job, error) {
		if job.PosterID != posterID {
			return negotiation.Job{}, ErrForbidden
		}
		return s.machine.Cancel(job)
	})
	if err != nil {
		return negotiation.Job{}, err
	}
	slog.InfoContext(ctx, "job_cancelled", "job_id", jobID)
	s.after(ctx, "refund_requested", s.notifier.RefundRequested(ctx, job))
	return job, nil
}

// DashboardItem is one job on the caller's dashboard with the number of
// bids waiting on the caller.
type DashboardItem struct {
	Job            negotiation.Job  `json:"job"`
	Role           negotiation.Role `json:"role"`
	ActionRequired int              `json:"action_required"`
}

// Dashboard lists jobs the user posted followed by jobs the user bid on.
func (s *Service) Dashboard(ctx context.Context, userID string) ([]DashboardItem, error) {
	posted, err := s.store.ListJobsByPoster(ctx, userID)
	if err != nil {
		return nil, err
	}
	bidOn, err := s.store.ListJobsByWorker(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]DashboardItem, 0, len(posted)+len(bidOn))
	for _, j := range posted {
		items = append(items, DashboardItem{
			Job:            j,
			Role:           negotiation.RolePoster,
			ActionRequired: negotiation.ActionRequiredCount(j, negotiation.RolePoster),
		})
	}
	for _, j := range bidOn {
		j = VisibleTo(j, userID)
		items = append(items, DashboardItem{
			Job:            j,
			Role:           negotiation.RoleWorker,
			ActionRequired: negotiation.ActionRequiredCount(j, negotiation.RoleWorker),
		})
	}
	return items, nil
}

func (s *Service) mutateBid(ctx context.Context, jobID, bidID string, fn func(negotiation.Job, negotiation.Bid) (negotiation.Bid, error)) (negotiation.Job, negotiation.Bid, error) {
	var bid negotiation.Bid
	job, err := s.store.MutateJob(ctx, jobID, func(job negotiation.Job) (negotiation.Job, error) {
		next, b, err := s.machine.UpdateBid(job, bidID, func(b negotiation.Bid) (negotiation.Bid, error) {
			return fn(job, b)
		})
		bid = b
		return next, err
	})
	return job, bid, err
}

func (s *Service) after(ctx context.Context, event string, err error) {
	if err != nil {
		slog.WarnContext(ctx, "notification failed", "event", event, "error", err)
	}
}
