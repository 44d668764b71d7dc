package wallet

import (
	"context"
	"sync"
	"time"
)

// Record is what the ledger stores for one applied payment.
type Record struct {
	Key        string    `json:"key" bson:"_id"`
	EventID    string    `json:"event_id" bson:"event_id"`
	EventType  string    `json:"event_type" bson:"event_type"`
	OrderID    string    `json:"order_id" bson:"order_id"`
	PaymentID  string    `json:"payment_id,omitempty" bson:"payment_id,omitempty"`
	Effect     Effect    `json:"effect" bson:"effect"`
	ReceivedAt time.Time `json:"received_at" bson:"received_at"`
}

// Balance is a user's spendable coins and current plan.
type Balance struct {
	UserID        string     `json:"user_id"`
	Coins         int64      `json:"coins"`
	Plan          Plan       `json:"plan,omitempty"`
	PlanExpiresAt *time.Time `json:"plan_expires_at,omitempty"`
}

// Ledger records applied payments by idempotency key.
type Ledger interface {
	HasApplied(ctx context.Context, key string) (bool, error)
	// RecordAndApply stores rec and applies its effect in one atomic step.
	// It returns false without applying anything when the key is already
	// recorded, including when a concurrent delivery won the race.
	RecordAndApply(ctx context.Context, rec Record) (bool, error)
	Balance(ctx context.Context, userID string) (Balance, error)
	// Transactions lists a user's applied payments, newest first.
	Transactions(ctx context.Context, userID string) ([]Record, error)
}

// MemoryLedger is an in-process Ledger for tests and local runs.
type MemoryLedger struct {
	mu       sync.Mutex
	now      func() time.Time
	records  map[string]Record
	balances map[string]Balance
}

func NewMemoryLedger(now func() time.Time) *MemoryLedger {
	if now == nil {
		now = time.Now
	}
	return &MemoryLedger{
		now:      now,
		records:  make(map[string]Record),
		balances: make(map[string]Balance),
	}
}

func (l *MemoryLedger) HasApplied(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.records[key]
	return ok, nil
}

func (l *MemoryLedger) RecordAndApply(_ context.Context, rec Record) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[rec.Key]; ok {
		return false, nil
	}
	l.records[rec.Key] = rec

	b := l.balances[rec.Effect.UserID]
	b.UserID = rec.Effect.UserID
	switch rec.Effect.Kind {
	case EffectCoins:
		b.Coins += rec.Effect.Coins
	case EffectPremium:
		exp := l.now().Add(PlanDuration)
		b.Plan, b.PlanExpiresAt = rec.Effect.Plan, &exp
	}
	l.balances[b.UserID] = b
	return true, nil
}

func (l *MemoryLedger) Balance(_ context.Context, userID string) (Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.balances[userID]
	if !ok {
		return Balance{UserID: userID}, nil
	}
	return b, nil
}

// Records returns the number of applied payments.
func (l *MemoryLedger) Records() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
