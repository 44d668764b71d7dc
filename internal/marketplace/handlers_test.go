package marketplace

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/negotiation"
	"github.com/sudo-init-do/gigmarket/internal/utils"
)

// newTestServer mounts the handlers behind a fake auth middleware that
// takes the caller id from the X-User header.
func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	svc, _ := newTestService(t)
	e := echo.New()
	e.Validator = utils.NewValidator()
	g := e.Group("", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if uid := c.Request().Header.Get("X-User"); uid != "" {
				c.Set("user_id", uid)
			}
			return next(c)
		}
	})
	NewHandlers(svc).Register(g)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if user != "" {
		req.Header.Set("X-User", user)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandlersNegotiation(t *testing.T) {
	e := newTestServer(t)

	rec := do(t, e, http.MethodPost, "/jobs", "poster", `{"title":"Move boxes","budget":30000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("post job status = %d body=%s", rec.Code, rec.Body)
	}
	var job negotiation.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}

	rec = do(t, e, http.MethodPost, "/jobs/"+job.ID+"/bids", "worker-w", `{"amount":30000,"message":"hi"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("propose status = %d body=%s", rec.Code, rec.Body)
	}
	var bid negotiation.Bid
	if err := json.Unmarshal(rec.Body.Bytes(), &bid); err != nil {
		t.Fatalf("decode bid: %v", err)
	}
	bidPath := "/jobs/" + job.ID + "/bids/" + bid.ID

	if rec := do(t, e, http.MethodPost, bidPath+"/agree", "worker-w", ""); rec.Code != http.StatusOK {
		t.Fatalf("agree at proposed amount status = %d body=%s", rec.Code, rec.Body)
	}
	if rec := do(t, e, http.MethodPost, bidPath+"/counter", "poster", `{"amount":27000}`); rec.Code != http.StatusOK {
		t.Fatalf("counter status = %d body=%s", rec.Code, rec.Body)
	}
	if rec := do(t, e, http.MethodPost, bidPath+"/agree", "worker-w", ""); rec.Code != http.StatusOK {
		t.Fatalf("agree status = %d body=%s", rec.Code, rec.Body)
	}
	if rec := do(t, e, http.MethodPost, bidPath+"/hire", "worker-w", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("worker hire status = %d", rec.Code)
	}
	if rec := do(t, e, http.MethodPost, bidPath+"/hire", "poster", ""); rec.Code != http.StatusOK {
		t.Fatalf("hire status = %d body=%s", rec.Code, rec.Body)
	}
	if rec := do(t, e, http.MethodPost, "/jobs/"+job.ID+"/complete", "poster", ""); rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d body=%s", rec.Code, rec.Body)
	}
	if rec := do(t, e, http.MethodPost, "/jobs/"+job.ID+"/cancel", "poster", ""); rec.Code != http.StatusConflict {
		t.Fatalf("cancel completed status = %d", rec.Code)
	}
}

func TestHandlersErrors(t *testing.T) {
	e := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   string
		status int
	}{
		{"unauthenticated", http.MethodPost, "/jobs", "", `{"title":"x"}`, http.StatusUnauthorized},
		{"missing title", http.MethodPost, "/jobs", "poster", `{"title":"","budget":100}`, http.StatusBadRequest},
		{"zero budget", http.MethodPost, "/jobs", "poster", `{"title":"x","budget":0}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/jobs", "poster", `{`, http.StatusBadRequest},
		{"unknown job", http.MethodGet, "/jobs/nope", "poster", "", http.StatusNotFound},
		{"bid unknown job", http.MethodPost, "/jobs/nope/bids", "w", `{"amount":10}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, e, tt.method, tt.path, tt.user, tt.body); rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body=%s)", rec.Code, tt.status, rec.Body)
			}
		})
	}
}

func TestHandlersWithdrawAndDashboard(t *testing.T) {
	e := newTestServer(t)
	rec := do(t, e, http.MethodPost, "/jobs", "poster", `{"title":"Tutor maths","budget":20000}`)
	var job negotiation.Job
	json.Unmarshal(rec.Body.Bytes(), &job)

	rec = do(t, e, http.MethodPost, "/jobs/"+job.ID+"/bids", "worker-w", `{"amount":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero amount status = %d", rec.Code)
	}
	rec = do(t, e, http.MethodPost, "/jobs/"+job.ID+"/bids", "poster", `{"amount":100}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("self bid status = %d", rec.Code)
	}
	rec = do(t, e, http.MethodPost, "/jobs/"+job.ID+"/bids", "worker-w", `{"amount":100}`)
	var bid negotiation.Bid
	json.Unmarshal(rec.Body.Bytes(), &bid)

	rec = do(t, e, http.MethodGet, "/jobs/mine", "poster", "")
	var dash struct {
		Jobs []DashboardItem `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &dash); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if len(dash.Jobs) != 1 || dash.Jobs[0].ActionRequired != 1 {
		t.Fatalf("dashboard = %+v", dash.Jobs)
	}

	if rec := do(t, e, http.MethodDelete, "/jobs/"+job.ID+"/bids/"+bid.ID, "worker-w", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("withdraw status = %d body=%s", rec.Code, rec.Body)
	}
	if rec := do(t, e, http.MethodDelete, "/jobs/"+job.ID+"/bids/"+bid.ID, "worker-w", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second withdraw status = %d", rec.Code)
	}
}
