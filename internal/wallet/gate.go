package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Notifier is told about applied payments after the ledger commits.
type Notifier interface {
	PaymentApplied(ctx context.Context, userID, summary string) error
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Delivery is one webhook request as received.
type Delivery struct {
	Body      []byte
	Signature string
	EventID   string
}

type Result struct {
	Outcome Outcome `json:"status"`
	Key     string  `json:"key,omitempty"`
	Effect  *Effect `json:"effect,omitempty"`
}

// GateConfig holds the webhook secret and the event types that carry effects.
type GateConfig struct {
	Secret string
	Events []string
}

// Gate turns signed provider webhooks into at-most-once ledger effects.
type Gate struct {
	secret   string
	events   map[string]bool
	orders   OrderLookup
	ledger   Ledger
	notifier Notifier
	now      func() time.Time
}

func NewGate(cfg GateConfig, orders OrderLookup, ledger Ledger, notifier Notifier) *Gate {
	events := make(map[string]bool, len(cfg.Events))
	for _, e := range cfg.Events {
		events[e] = true
	}
	return &Gate{
		secret:   cfg.Secret,
		events:   events,
		orders:   orders,
		ledger:   ledger,
		notifier: notifier,
		now:      time.Now,
	}
}

// Handle verifies, deduplicates and applies one delivery. Redeliveries of an
// applied payment return OutcomeDuplicate with no error.
func (g *Gate) Handle(ctx context.Context, d Delivery) (Result, error) {
	if g.secret == "" {
		return Result{}, fmt.Errorf("%w: webhook secret missing", ErrConfiguration)
	}
	if d.Signature == "" {
		return Result{}, fmt.Errorf("%w: missing signature", ErrAuthentication)
	}
	if !VerifySignature(d.Body, d.Signature, g.secret) {
		return Result{}, fmt.Errorf("%w: signature mismatch", ErrAuthentication)
	}

	ev, err := ParseEvent(d.Body, d.EventID)
	if err != nil {
		return Result{}, err
	}
	if !g.events[ev.Type] {
		slog.InfoContext(ctx, "payment_event_ignored", "event_type", ev.Type, "event_id", d.EventID)
		return Result{Outcome: OutcomeIgnored}, nil
	}

	key, err := ResolveIdempotencyKey(ev)
	if err != nil {
		return Result{}, err
	}
	done, err := g.ledger.HasApplied(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("%w: ledger lookup: %v", ErrUpstream, err)
	}
	if done {
		slog.InfoContext(ctx, "payment_event_duplicate", "key", key, "event_id", d.EventID)
		return Result{Outcome: OutcomeDuplicate, Key: key}, nil
	}

	orderID := ev.OrderID()
	if orderID == "" {
		return Result{}, fmt.Errorf("%w: no order reference", ErrMalformedEvent)
	}
	order, err := g.orders.FetchOrder(ctx, orderID)
	if err != nil {
		return Result{}, classify(err, "order lookup")
	}
	eff, err := DeriveEffect(order)
	if err != nil {
		return Result{}, err
	}

	rec := Record{
		Key:        key,
		EventID:    firstNonEmpty(d.EventID, ev.ID),
		EventType:  ev.Type,
		OrderID:    orderID,
		PaymentID:  ev.PaymentID(),
		Effect:     eff,
		ReceivedAt: g.now().UTC(),
	}
	applied, err := g.ledger.RecordAndApply(ctx, rec)
	if err != nil {
		return Result{}, fmt.Errorf("%w: apply: %v", ErrUpstream, err)
	}
	if !applied {
		slog.InfoContext(ctx, "payment_event_duplicate", "key", key, "event_id", d.EventID, "raced", true)
		return Result{Outcome: OutcomeDuplicate, Key: key}, nil
	}

	slog.InfoContext(ctx, "payment_applied", "key", key, "user_id", eff.UserID, "kind", eff.Kind, "amount", eff.AmountMajor().StringFixed(2))
	if g.notifier != nil {
		if err := g.notifier.PaymentApplied(ctx, eff.UserID, eff.String()); err != nil {
			slog.WarnContext(ctx, "notification failed", "event", "payment_applied", "error", err)
		}
	}
	return Result{Outcome: OutcomeApplied, Key: key, Effect: &eff}, nil
}

// classify keeps configuration and malformed errors as they are and treats
// anything else as a retryable upstream failure.
func classify(err error, op string) error {
	if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrMalformedEvent) || errors.Is(err, ErrUpstream) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
