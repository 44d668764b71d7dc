package user

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/utils"
)

type Handlers struct {
	store Store
}

func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

func (h *Handlers) Register(g *echo.Group) {
	g.GET("/users/me", h.Me)
	g.PATCH("/users/me", h.UpdateProfile)
	g.GET("/users/:id/profile", h.PublicProfile)
}

// GET /users/me
func (h *Handlers) Me(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	p, err := h.store.Get(c.Request().Context(), userID)
	if errors.Is(err, ErrNotFound) {
		// a token may predate the profile row
		return c.JSON(http.StatusOK, Profile{ID: userID})
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// PATCH /users/me
func (h *Handlers) UpdateProfile(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return utils.Error(c, http.StatusBadRequest, "invalid request")
	}
	req.Normalize()
	if err := c.Validate(&req); err != nil {
		return utils.Error(c, http.StatusBadRequest, utils.ValidationMessage(err))
	}
	p, err := h.store.Upsert(c.Request().Context(), userID, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// GET /users/:id/profile
func (h *Handlers) PublicProfile(c echo.Context) error {
	p, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return utils.Error(c, http.StatusNotFound, "user not found")
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, p.Public())
}

func (h *Handlers) fail(c echo.Context, err error) error {
	slog.ErrorContext(c.Request().Context(), "profile request failed", "path", c.Path(), "error", err)
	return utils.Error(c, http.StatusInternalServerError, "failed to load profile")
}
