package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/utils"
)

func TestJWT(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := utils.IssueToken("user-9", secret, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	e := echo.New()
	handler := JWT(secret)(func(c echo.Context) error {
		uid, _ := utils.UserID(c)
		return c.String(http.StatusOK, uid)
	})

	tests := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{name: "header", header: "Bearer " + tok, status: http.StatusOK, body: "user-9"},
		{name: "query", query: "?token=" + tok, status: http.StatusOK, body: "user-9"},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "bad", header: "Bearer nope", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			if err := handler(e.NewContext(req, rec)); err != nil {
				t.Fatalf("handler: %v", err)
			}
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Fatalf("body = %q", rec.Body.String())
			}
		})
	}
}
