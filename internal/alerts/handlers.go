package alerts

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/utils"
)

type Handlers struct {
	notifier *Notifier
}

func NewHandlers(n *Notifier) *Handlers {
	return &Handlers{notifier: n}
}

func (h *Handlers) Register(g *echo.Group) {
	g.GET("/notifications", h.List)
	g.POST("/notifications/:id/read", h.MarkRead)
}

// List returns the current user's notifications, newest first.
func (h *Handlers) List(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	items, err := h.notifier.List(c.Request().Context(), userID)
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "list notifications failed", "user_id", userID, "error", err)
		return utils.Error(c, http.StatusInternalServerError, "failed to load notifications")
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": items})
}

func (h *Handlers) MarkRead(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	n, err := h.notifier.MarkRead(c.Request().Context(), userID, c.Param("id"))
	if errors.Is(err, ErrNotificationNotFound) {
		return utils.Error(c, http.StatusNotFound, "notification not found")
	}
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "mark notification failed", "user_id", userID, "error", err)
		return utils.Error(c, http.StatusInternalServerError, "failed to update")
	}
	return c.JSON(http.StatusOK, n)
}
