package utils

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// UserID returns the caller id stored by the JWT middleware.
func UserID(c echo.Context) (string, bool) {
	id, ok := c.Get("user_id").(string)
	return id, ok && id != ""
}

// Error writes the {"error": msg} body used by every handler.
func Error(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"error": msg})
}

func Unauthorized(c echo.Context) error {
	return Error(c, http.StatusUnauthorized, "unauthorized")
}
