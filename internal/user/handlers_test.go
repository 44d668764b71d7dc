package user

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/utils"
)

func call(t *testing.T, h echo.HandlerFunc, method, body, userID string, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Validator = utils.NewValidator()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		c.Set("user_id", userID)
	}
	if len(params) == 2 {
		c.SetParamNames(params[0])
		c.SetParamValues(params[1])
	}
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Profile {
	t.Helper()
	var p Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode %s: %v", rec.Body, err)
	}
	return p
}

func TestUpdateProfileMerges(t *testing.T) {
	h := NewHandlers(NewMemoryStore())

	rec := call(t, h.UpdateProfile, http.MethodPatch, `{"name":"  Wren  ","email":"Wren@Example.com"}`, "u1")
	if rec.Code != http.StatusOK {
		t.Fatalf("create = %d %s", rec.Code, rec.Body)
	}
	if p := decode(t, rec); p.Name != "Wren" || p.Email != "wren@example.com" {
		t.Fatalf("profile = %+v", p)
	}

	rec = call(t, h.UpdateProfile, http.MethodPatch, `{"photo_url":"https://img.example.com/w.png"}`, "u1")
	p := decode(t, rec)
	if p.Name != "Wren" || p.Email != "wren@example.com" || p.PhotoURL == "" {
		t.Fatalf("partial update lost fields: %+v", p)
	}

	if p := decode(t, call(t, h.Me, http.MethodGet, "", "u1")); p.Email != "wren@example.com" {
		t.Fatalf("me = %+v", p)
	}
}

func TestUpdateProfileValidation(t *testing.T) {
	h := NewHandlers(NewMemoryStore())
	tests := []struct {
		name string
		body string
	}{
		{"ftp photo", `{"photo_url":"ftp://img.example.com/w.png"}`},
		{"long name", `{"name":"` + strings.Repeat("x", 81) + `"}`},
		{"bad email", `{"email":"not-an-address"}`},
		{"display name in email", `{"email":"Wren <w@example.com>"}`},
		{"photo scheme", `{"photo_url":"javascript:alert(1)"}`},
		{"not json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := call(t, h.UpdateProfile, http.MethodPatch, tt.body, "u1"); rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
		})
	}
	if rec := call(t, h.UpdateProfile, http.MethodPatch, `{}`, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous = %d", rec.Code)
	}
}

func TestPublicProfileHidesEmail(t *testing.T) {
	store := NewMemoryStore()
	h := NewHandlers(store)
	call(t, h.UpdateProfile, http.MethodPatch, `{"name":"Wren","email":"w@example.com"}`, "u1")
	store.SetRating("u1", 4.5)

	rec := call(t, h.PublicProfile, http.MethodGet, "", "u2", "id", "u1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "w@example.com") {
		t.Fatalf("email leaked: %s", rec.Body)
	}
	if p := decode(t, rec); p.Rating == nil || *p.Rating != 4.5 {
		t.Fatalf("profile = %+v", p)
	}

	if rec := call(t, h.PublicProfile, http.MethodGet, "", "u2", "id", "ghost"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing = %d", rec.Code)
	}
}

func TestMeWithoutProfileRow(t *testing.T) {
	h := NewHandlers(NewMemoryStore())
	rec := call(t, h.Me, http.MethodGet, "", "fresh")
	if p := decode(t, rec); rec.Code != http.StatusOK || p.ID != "fresh" {
		t.Fatalf("me = %d %+v", rec.Code, p)
	}
}
