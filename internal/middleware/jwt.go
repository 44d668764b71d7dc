package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/utils"
)

// JWT authenticates the bearer token and stores the caller id under "user_id".
// Websocket clients cannot set headers, so a "token" query parameter is also accepted.
func JWT(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok, err := utils.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				tok = c.QueryParam("token")
			}
			userID, err := utils.ParseUserID(tok, secret)
			if err != nil {
				return utils.Unauthorized(c)
			}
			c.Set("user_id", userID)
			return next(c)
		}
	}
}
