package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/negotiation"
	"github.com/sudo-init-do/gigmarket/internal/utils"
)

// ReviewService lets a poster rate the worker once the job is complete.
type ReviewService struct {
	jobs    Store
	reviews ReviewStore
	now     func() time.Time
}

func NewReviewService(jobs Store, reviews ReviewStore) *ReviewService {
	return &ReviewService{jobs: jobs, reviews: reviews, now: time.Now}
}

func (s *ReviewService) SubmitReview(ctx context.Context, jobID, posterID string, in ReviewInput) (Review, error) {
	in.Comment = strings.TrimSpace(in.Comment)
	if err := utils.ValidateStruct(in); err != nil {
		return Review{}, fmt.Errorf("%w: %s", ErrInvalidReview, utils.ValidationMessage(err))
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return Review{}, err
	}
	if job.PosterID != posterID {
		return Review{}, ErrForbidden
	}
	hired, ok := job.AcceptedBid()
	if job.Status != negotiation.JobCompleted || !ok {
		return Review{}, fmt.Errorf("%w: only completed jobs can be reviewed", negotiation.ErrInvalidState)
	}

	r := Review{
		ID:        uuid.NewString(),
		JobID:     job.ID,
		PosterID:  posterID,
		WorkerID:  hired.WorkerID,
		Rating:    in.Rating,
		Comment:   in.Comment,
		CreatedAt: s.now().UTC(),
	}
	if err := s.reviews.CreateReview(ctx, r); err != nil {
		return Review{}, err
	}
	slog.InfoContext(ctx, "review_submitted", "job_id", job.ID, "worker_id", r.WorkerID, "rating", in.Rating)
	return r, nil
}

// JobReview returns the review of a job to either participant.
func (s *ReviewService) JobReview(ctx context.Context, jobID, userID string) (Review, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return Review{}, err
	}
	hired, _ := job.AcceptedBid()
	if userID != job.PosterID && (hired.WorkerID == "" || userID != hired.WorkerID) {
		return Review{}, ErrForbidden
	}
	return s.reviews.JobReview(ctx, jobID)
}

func (s *ReviewService) WorkerReviews(ctx context.Context, workerID string, page, limit int) ([]Review, RatingSummary, error) {
	return s.reviews.WorkerReviews(ctx, workerID, limit, (page-1)*limit)
}

type ReviewHandlers struct {
	svc *ReviewService
}

func NewReviewHandlers(svc *ReviewService) *ReviewHandlers {
	return &ReviewHandlers{svc: svc}
}

func (h *ReviewHandlers) Register(g *echo.Group) {
	g.POST("/jobs/:id/review", h.Create)
	g.GET("/jobs/:id/review", h.Get)
	g.GET("/workers/:id/reviews", h.ListForWorker)
}

// POST /jobs/:id/review
func (h *ReviewHandlers) Create(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	var req ReviewInput
	if err := c.Bind(&req); err != nil {
		return utils.Error(c, http.StatusBadRequest, "invalid request")
	}
	if err := c.Validate(&req); err != nil {
		return utils.Error(c, http.StatusBadRequest, utils.ValidationMessage(err))
	}
	r, err := h.svc.SubmitReview(c.Request().Context(), c.Param("id"), userID, req)
	if err != nil {
		return writeReviewError(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// GET /jobs/:id/review
func (h *ReviewHandlers) Get(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	r, err := h.svc.JobReview(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return writeReviewError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"review": r})
}

// GET /workers/:id/reviews?page=&limit=
func (h *ReviewHandlers) ListForWorker(c echo.Context) error {
	page, limit := 1, 10
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 50 {
		limit = l
	}
	reviews, summary, err := h.svc.WorkerReviews(c.Request().Context(), c.Param("id"), page, limit)
	if err != nil {
		return writeReviewError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"summary": summary,
		"reviews": reviews,
		"pagination": echo.Map{
			"page":  page,
			"limit": limit,
			"total": summary.TotalReviews,
		},
	})
}

func writeReviewError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrReviewNotFound):
		return utils.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrReviewExists):
		return utils.Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidReview):
		return utils.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, negotiation.ErrInvalidState):
		return utils.Error(c, http.StatusConflict, "only completed jobs can be reviewed")
	}
	return writeError(c, err)
}
