package messaging

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/inbox"
	"github.com/sudo-init-do/gigmarket/internal/marketplace"
	"github.com/sudo-init-do/gigmarket/internal/utils"
)

// NotificationFeed lists the unread notifications a live session starts from.
type NotificationFeed interface {
	UnreadNotifications(ctx context.Context, userID string) ([]inbox.Notification, error)
}

type Handlers struct {
	svc   *Service
	hub   *Hub
	jobs  JobLookup
	feed  NotificationFeed
	inbox inbox.Options

	upgrader websocket.Upgrader
}

func NewHandlers(svc *Service, hub *Hub, jobs JobLookup, feed NotificationFeed, opts inbox.Options) *Handlers {
	return &Handlers{svc: svc, hub: hub, jobs: jobs, feed: feed, inbox: opts, upgrader: newUpgrader(nil)}
}

// AllowOrigins lets browser pages served from other origins open the inbox
// socket. Same-host pages are always allowed.
func (h *Handlers) AllowOrigins(origins []string) *Handlers {
	h.upgrader = newUpgrader(origins)
	return h
}

func (h *Handlers) Register(g *echo.Group) {
	g.GET("/jobs/:id/chat", h.OpenChat)
	g.POST("/jobs/:id/messages", h.SendMessage)
	g.GET("/jobs/:id/messages", h.ListMessages)
	g.POST("/jobs/:id/messages/:message_id/read", h.MarkRead)

	g.GET("/inbox", h.Inbox)
	g.GET("/inbox/ws", h.InboxWS)
	g.POST("/inbox/:job_id/archive", h.Archive)
	g.POST("/inbox/:job_id/unarchive", h.Unarchive)
	g.POST("/inbox/:job_id/delete", h.Delete)
}

func (h *Handlers) OpenChat(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	d, err := h.svc.OpenChat(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handlers) SendMessage(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	var in SendInput
	if err := c.Bind(&in); err != nil {
		return utils.Error(c, http.StatusBadRequest, "invalid payload")
	}
	in.JobID = c.Param("id")
	in.SenderID = userID

	m, created, err := h.svc.SendMessage(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	return c.JSON(status, m)
}

func (h *Handlers) ListMessages(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	var since time.Time
	if raw := c.QueryParam("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return utils.Error(c, http.StatusBadRequest, "invalid since timestamp, use RFC3339")
		}
		since = t
	}
	ms, err := h.svc.ListMessages(c.Request().Context(), c.Param("id"), userID, since)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": ms})
}

func (h *Handlers) MarkRead(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	m, err := h.svc.MarkRead(c.Request().Context(), c.Param("id"), c.Param("message_id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handlers) Inbox(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	rows, err := h.svc.FetchInbox(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"conversations": rows})
}

func (h *Handlers) Archive(c echo.Context) error {
	return h.overlay(c, func(userID, jobID string) error {
		return h.svc.SetArchived(c.Request().Context(), userID, jobID, true)
	})
}

func (h *Handlers) Unarchive(c echo.Context) error {
	return h.overlay(c, func(userID, jobID string) error {
		return h.svc.SetArchived(c.Request().Context(), userID, jobID, false)
	})
}

func (h *Handlers) Delete(c echo.Context) error {
	return h.overlay(c, func(userID, jobID string) error {
		return h.svc.DeleteConversation(c.Request().Context(), userID, jobID)
	})
}

func (h *Handlers) overlay(c echo.Context, fn func(userID, jobID string) error) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	jobID := c.Param("job_id")
	if err := fn(userID, jobID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"job_id": jobID})
}

func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, marketplace.ErrJobNotFound):
		return utils.Error(c, http.StatusNotFound, "job not found")
	case errors.Is(err, ErrMessageNotFound):
		return utils.Error(c, http.StatusNotFound, "message not found")
	case errors.Is(err, ErrNotParticipant):
		return utils.Error(c, http.StatusForbidden, "you are not part of this conversation")
	case errors.Is(err, ErrNotRecipient):
		return utils.Error(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrChatUnavailable), errors.Is(err, ErrReceiverUnresolved):
		return utils.Error(c, http.StatusConflict, "chat opens once the job is hired")
	case errors.Is(err, ErrMessageConflict):
		return utils.Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrInvalidClientID):
		return utils.Error(c, http.StatusBadRequest, err.Error())
	}
	slog.ErrorContext(c.Request().Context(), "messaging request failed", "path", c.Path(), "error", err)
	return utils.Error(c, http.StatusInternalServerError, "something went wrong")
}
