package wallet

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/utils"
)

func postWebhook(t *testing.T, h *Handlers, body []byte, sig, eventID string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if sig != "" {
		req.Header.Set("x-signature", sig)
	}
	if eventID != "" {
		req.Header.Set("x-event-id", eventID)
	}
	rec := httptest.NewRecorder()
	if err := h.Webhook(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Webhook: %v", err)
	}
	return rec
}

func TestWebhookStatusCodes(t *testing.T) {
	ledger := NewMemoryLedger(nil)
	gate, _ := newTestGate(premiumOrders(), ledger)
	h := NewHandlers(gate, ledger, nil)
	body := paidBody("pay_1", "order_1")

	rec := postWebhook(t, h, body, Sign(body, testSecret), "evt_1")
	if rec.Code != http.StatusOK {
		t.Fatalf("first delivery = %d body=%s", rec.Code, rec.Body)
	}
	var res Result
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Outcome != OutcomeApplied {
		t.Fatalf("outcome = %s", res.Outcome)
	}

	rec = postWebhook(t, h, body, Sign(body, testSecret), "evt_1")
	json.Unmarshal(rec.Body.Bytes(), &res)
	if rec.Code != http.StatusOK || res.Outcome != OutcomeDuplicate {
		t.Fatalf("redelivery = %d %s", rec.Code, res.Outcome)
	}

	if rec := postWebhook(t, h, body, Sign(body, "forged"), "evt_1"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged = %d", rec.Code)
	}
	if rec := postWebhook(t, h, body, "", "evt_1"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned = %d", rec.Code)
	}
	bad := []byte(`{"event":"order.paid","payload":{}}`)
	if rec := postWebhook(t, h, bad, Sign(bad, testSecret), ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed = %d", rec.Code)
	}

	unconfigured := NewHandlers(NewGate(GateConfig{}, premiumOrders(), ledger, nil), ledger, nil)
	if rec := postWebhook(t, unconfigured, body, Sign(body, testSecret), ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("unconfigured = %d", rec.Code)
	}

	orders := premiumOrders()
	orders.err = ErrUpstream
	down, _ := newTestGate(orders, NewMemoryLedger(nil))
	if rec := postWebhook(t, NewHandlers(down, ledger, nil), body, Sign(body, testSecret), ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("upstream = %d", rec.Code)
	}
}

func TestBalanceHandler(t *testing.T) {
	ledger := NewMemoryLedger(nil)
	gate, _ := newTestGate(premiumOrders(), ledger)
	h := NewHandlers(gate, ledger, nil)
	body := paidBody("pay_2", "order_2")
	postWebhook(t, h, body, Sign(body, testSecret), "")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/wallet/balance", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", "u1")
	if err := h.Balance(c); err != nil {
		t.Fatalf("Balance: %v", err)
	}
	var b Balance
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Coins != 50 {
		t.Fatalf("coins = %d", b.Coins)
	}
}

func TestCheckoutHandler(t *testing.T) {
	var created OrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&created)
		json.NewEncoder(w).Encode(Order{ID: "order_x", Amount: created.Amount, Currency: created.Currency})
	}))
	defer srv.Close()

	h := NewHandlers(nil, NewMemoryLedger(nil), NewProviderClient(srv.URL, "k", "s", srv.Client()))
	e := echo.New()
	e.Validator = utils.NewValidator()

	tests := []struct {
		body   string
		status int
		amount int64
	}{
		{`{"type":"premium","plan":"super"}`, http.StatusCreated, 12900},
		{`{"type":"coins","coins":25}`, http.StatusCreated, 2500},
		{`{"type":"coins","coins":0}`, http.StatusBadRequest, 0},
		{`{"type":"premium","plan":"gold"}`, http.StatusBadRequest, 0},
		{`{"type":"gift"}`, http.StatusBadRequest, 0},
		{`{"type":"coins","coins":-3}`, http.StatusBadRequest, 0},
		{`{"type":"coins","coins":100001}`, http.StatusBadRequest, 0},
		{`{"type":"premium"}`, http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		created = OrderRequest{}
		req := httptest.NewRequest(http.MethodPost, "/wallet/checkout", bytes.NewReader([]byte(tt.body)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set("user_id", "u1")
		if err := h.Checkout(c); err != nil {
			t.Fatalf("Checkout: %v", err)
		}
		if rec.Code != tt.status {
			t.Fatalf("%s: status = %d body=%s", tt.body, rec.Code, rec.Body)
		}
		if tt.status == http.StatusCreated && (created.Amount != tt.amount || created.Notes["user_id"] != "u1") {
			t.Fatalf("%s: created = %+v", tt.body, created)
		}
	}
}

func TestTransactionsHandler(t *testing.T) {
	ledger := NewMemoryLedger(nil)
	gate, _ := newTestGate(premiumOrders(), ledger)
	h := NewHandlers(gate, ledger, nil)
	for _, b := range [][]byte{paidBody("pay_1", "order_1"), paidBody("pay_2", "order_2"), paidBody("pay_1", "order_1")} {
		postWebhook(t, h, b, Sign(b, testSecret), "")
	}

	e := echo.New()
	list := func(user string) []Record {
		req := httptest.NewRequest(http.MethodGet, "/wallet/transactions", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set("user_id", user)
		if err := h.Transactions(c); err != nil {
			t.Fatalf("Transactions: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var out struct {
			Transactions []Record `json:"transactions"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return out.Transactions
	}

	got := list("u1")
	if len(got) != 2 {
		t.Fatalf("transactions = %+v", got)
	}
	if got[0].Key != "pay_1" || got[0].Effect.Kind != EffectPremium || got[1].Effect.Coins != 50 {
		t.Fatalf("order = %+v", got)
	}
	if others := list("u2"); len(others) != 0 {
		t.Fatalf("u2 transactions = %+v", others)
	}

	rec := httptest.NewRecorder()
	if err := h.Transactions(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous = %d", rec.Code)
	}
}
