package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgLedger keeps the idempotency ledger, coin wallets and subscriptions in
// Postgres. The ledger insert and the effect share one transaction.
type PgLedger struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPgLedger(pool *pgxpool.Pool) *PgLedger {
	return &PgLedger{pool: pool, now: time.Now}
}

func (l *PgLedger) HasApplied(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payment_events WHERE idempotency_key = $1)`, key,
	).Scan(&exists)
	return exists, err
}

func (l *PgLedger) RecordAndApply(ctx context.Context, rec Record) (bool, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	eff := rec.Effect
	res, err := tx.Exec(ctx,
		`INSERT INTO payment_events
            (idempotency_key, event_id, event_type, order_id, payment_id, user_id, kind, coins, plan, amount, currency, received_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12)
         ON CONFLICT (idempotency_key) DO NOTHING`,
		rec.Key, rec.EventID, rec.EventType, rec.OrderID, rec.PaymentID, eff.UserID, eff.Kind,
		eff.Coins, string(eff.Plan), eff.AmountMajor(), eff.Currency, rec.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("record payment: %w", err)
	}
	if res.RowsAffected() == 0 {
		return false, nil
	}

	now := l.now()
	switch eff.Kind {
	case EffectCoins:
		_, err = tx.Exec(ctx,
			`INSERT INTO wallets (user_id, coins, updated_at) VALUES ($1, $2, $3)
             ON CONFLICT (user_id) DO UPDATE SET coins = wallets.coins + EXCLUDED.coins, updated_at = EXCLUDED.updated_at`,
			eff.UserID, eff.Coins, now,
		)
	case EffectPremium:
		_, err = tx.Exec(ctx,
			`INSERT INTO subscriptions (user_id, plan, activated_at, expires_at) VALUES ($1, $2, $3, $4)
             ON CONFLICT (user_id) DO UPDATE SET plan = EXCLUDED.plan, activated_at = EXCLUDED.activated_at, expires_at = EXCLUDED.expires_at`,
			eff.UserID, eff.Plan, now, now.Add(PlanDuration),
		)
	default:
		err = fmt.Errorf("unknown effect kind %q", eff.Kind)
	}
	if err != nil {
		return false, fmt.Errorf("apply %s: %w", eff.Kind, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (user_id, amount, type, status, reference, created_at)
         VALUES ($1, $2, $3, 'completed', $4, $5)`,
		eff.UserID, eff.AmountMajor(), "purchase_"+string(eff.Kind), rec.Key, now,
	)
	if err != nil {
		return false, fmt.Errorf("log transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (l *PgLedger) Balance(ctx context.Context, userID string) (Balance, error) {
	b := Balance{UserID: userID}
	err := l.pool.QueryRow(ctx, `SELECT coins FROM wallets WHERE user_id = $1`, userID).Scan(&b.Coins)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, err
	}

	var plan string
	var expires time.Time
	err = l.pool.QueryRow(ctx,
		`SELECT plan, expires_at FROM subscriptions WHERE user_id = $1 AND expires_at > $2`, userID, l.now(),
	).Scan(&plan, &expires)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return Balance{}, err
	default:
		b.Plan, b.PlanExpiresAt = Plan(plan), &expires
	}
	return b, nil
}
