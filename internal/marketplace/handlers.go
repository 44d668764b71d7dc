package marketplace

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/negotiation"
	"github.com/sudo-init-do/gigmarket/internal/utils"
)

// Handlers serves the job and bid endpoints.
type Handlers struct {
	svc *Service
}

func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// Register mounts the routes on an authenticated group.
func (h *Handlers) Register(g *echo.Group) {
	g.POST("/jobs", h.PostJob)
	g.GET("/jobs/mine", h.Dashboard)
	g.GET("/jobs/:id", h.GetJob)
	g.POST("/jobs/:id/bids", h.ProposeBid)
	g.POST("/jobs/:id/bids/:bid_id/counter", h.CounterBid)
	g.POST("/jobs/:id/bids/:bid_id/agree", h.AcceptBid)
	g.POST("/jobs/:id/bids/:bid_id/hire", h.FinalizeHire)
	g.POST("/jobs/:id/bids/:bid_id/reject", h.RejectBid)
	g.DELETE("/jobs/:id/bids/:bid_id", h.WithdrawBid)
	g.POST("/jobs/:id/complete", h.CompleteJob)
	g.POST("/jobs/:id/cancel", h.CancelJob)
}

func (h *Handlers) PostJob(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	var req NewJob
	if err := c.Bind(&req); err != nil {
		return utils.Error(c, http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return utils.Error(c, http.StatusBadRequest, utils.ValidationMessage(err))
	}
	job, err := h.svc.PostJob(c.Request().Context(), userID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, job)
}

func (h *Handlers) GetJob(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	job, err := h.svc.GetJob(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

func (h *Handlers) Dashboard(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	items, err := h.svc.Dashboard(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"jobs": items})
}

type amountRequest struct {
	Amount  int64  `json:"amount"`
	Message string `json:"message"`
}

func (h *Handlers) ProposeBid(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	var req amountRequest
	if err := c.Bind(&req); err != nil {
		return utils.Error(c, http.StatusBadRequest, "invalid payload")
	}
	bid, err := h.svc.ProposeBid(c.Request().Context(), c.Param("id"), userID, req.Amount, req.Message)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, bid)
}

func (h *Handlers) CounterBid(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	var req amountRequest
	if err := c.Bind(&req); err != nil {
		return utils.Error(c, http.StatusBadRequest, "invalid payload")
	}
	bid, err := h.svc.CounterBid(c.Request().Context(), c.Param("id"), c.Param("bid_id"), userID, req.Amount)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, bid)
}

func (h *Handlers) AcceptBid(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	bid, err := h.svc.AcceptBid(c.Request().Context(), c.Param("id"), c.Param("bid_id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, bid)
}

func (h *Handlers) FinalizeHire(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	job, err := h.svc.FinalizeHire(c.Request().Context(), c.Param("id"), c.Param("bid_id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

func (h *Handlers) RejectBid(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	bid, err := h.svc.RejectBid(c.Request().Context(), c.Param("id"), c.Param("bid_id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, bid)
}

func (h *Handlers) WithdrawBid(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	if err := h.svc.WithdrawBid(c.Request().Context(), c.Param("id"), c.Param("bid_id"), userID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) CompleteJob(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	job, err := h.svc.CompleteJob(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

func (h *Handlers) CancelJob(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	job, err := h.svc.CancelJob(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// writeError maps domain errors to responses. State conflicts get a generic
// message: the client should refetch and retry.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrJobNotFound), errors.Is(err, negotiation.ErrBidNotFound):
		return utils.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden), errors.Is(err, negotiation.ErrNotBidOwner):
		return utils.Error(c, http.StatusForbidden, err.Error())
	case errors.Is(err, negotiation.ErrInvalidState):
		return utils.Error(c, http.StatusConflict, "this job changed, refresh and try again")
	case errors.Is(err, negotiation.ErrInvalidAmount), errors.Is(err, negotiation.ErrSelfBid), errors.Is(err, ErrInvalidJob):
		return utils.Error(c, http.StatusBadRequest, err.Error())
	}
	slog.ErrorContext(c.Request().Context(), "marketplace request failed", "path", c.Path(), "error", err)
	return utils.Error(c, http.StatusInternalServerError, "internal error")
}
