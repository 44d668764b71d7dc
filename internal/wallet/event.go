package wallet

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Notes is the free-form metadata attached to a provider order. The provider
// serializes an empty set as [] rather than {}.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("[]")) || bytes.Equal(b, []byte("null")) {
		*n = Notes{}
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Notes, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	*n = out
	return nil
}

// Payment is the payment entity carried by a webhook.
type Payment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Notes    Notes  `json:"notes"`
}

// Order is a provider order as returned by the order lookup API.
type Order struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
	Receipt    string `json:"receipt,omitempty"`
	Notes      Notes  `json:"notes"`
}

// Event is a decoded webhook body plus the delivery's event id header.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity Payment `json:"entity"`
		} `json:"payment,omitempty"`
		Order *struct {
			Entity Order `json:"entity"`
		} `json:"order,omitempty"`
	} `json:"payload"`

	HeaderEventID string `json:"-"`
}

// ParseEvent decodes a webhook body.
func ParseEvent(body []byte, headerEventID string) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("%w: missing event type", ErrMalformedEvent)
	}
	ev.HeaderEventID = headerEventID
	return ev, nil
}

func (e Event) PaymentID() string {
	if e.Payload.Payment == nil {
		return ""
	}
	return e.Payload.Payment.Entity.ID
}

// OrderID prefers the payment's order reference over the order entity.
func (e Event) OrderID() string {
	if e.Payload.Payment != nil && e.Payload.Payment.Entity.OrderID != "" {
		return e.Payload.Payment.Entity.OrderID
	}
	if e.Payload.Order != nil {
		return e.Payload.Order.Entity.ID
	}
	return ""
}

// ResolveIdempotencyKey picks the identifier shared by every event the
// provider emits for one payment, so that "payment captured" and "order paid"
// for the same money collapse to a single effect. The delivery's event id is
// used only when no payment id is present.
func ResolveIdempotencyKey(e Event) (string, error) {
	switch {
	case e.PaymentID() != "":
		return e.PaymentID(), nil
	case e.HeaderEventID != "":
		return e.HeaderEventID, nil
	case e.ID != "":
		return e.ID, nil
	}
	return "", fmt.Errorf("%w: no payment or event id", ErrMalformedEvent)
}
