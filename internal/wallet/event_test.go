package wallet

import (
	"errors"
	"testing"
)

func TestResolveIdempotencyKey(t *testing.T) {
	withPayment := `{"id":"evt_body","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1"}}}}`
	orderOnly := `{"id":"evt_body","event":"order.paid","payload":{"order":{"entity":{"id":"order_1"}}}}`
	bare := `{"event":"order.paid","payload":{}}`

	tests := []struct {
		name   string
		body   string
		header string
		want   string
		err    error
	}{
		{name: "payment id wins over header", body: withPayment, header: "evt_hdr", want: "pay_1"},
		{name: "header when no payment", body: orderOnly, header: "evt_hdr", want: "evt_hdr"},
		{name: "body event id last", body: orderOnly, want: "evt_body"},
		{name: "nothing to key on", body: bare, err: ErrMalformedEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.body), tt.header)
			if err != nil {
				t.Fatalf("ParseEvent: %v", err)
			}
			got, err := ResolveIdempotencyKey(ev)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("err = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("key = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestCapturedAndPaidShareKey(t *testing.T) {
	captured, _ := ParseEvent([]byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_9","order_id":"order_9"}}}}`), "evt_a")
	paid, _ := ParseEvent([]byte(`{"event":"order.paid","payload":{"payment":{"entity":{"id":"pay_9","order_id":"order_9"}},"order":{"entity":{"id":"order_9"}}}}`), "evt_b")
	a, _ := ResolveIdempotencyKey(captured)
	b, _ := ResolveIdempotencyKey(paid)
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
}

func TestParseEventRejectsGarbage(t *testing.T) {
	for _, body := range []string{`not json`, `{}`, `{"payload":{}}`} {
		if _, err := ParseEvent([]byte(body), ""); !errors.Is(err, ErrMalformedEvent) {
			t.Fatalf("ParseEvent(%s) err = %v", body, err)
		}
	}
}

func TestNotesAcceptEmptyArray(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"event":"order.paid","payload":{"order":{"entity":{"id":"o","notes":[]}}}}`), "")
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.Payload.Order.Entity.Notes == nil || len(ev.Payload.Order.Entity.Notes) != 0 {
		t.Fatalf("notes = %#v", ev.Payload.Order.Entity.Notes)
	}

	ev, err = ParseEvent([]byte(`{"event":"order.paid","payload":{"order":{"entity":{"id":"o","notes":{"coins":50,"user_id":"u1"}}}}}`), "")
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if got := ev.Payload.Order.Entity.Notes["coins"]; got != "50" {
		t.Fatalf("numeric note = %q", got)
	}
}
