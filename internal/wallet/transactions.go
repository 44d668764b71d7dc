package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sudo-init-do/gigmarket/internal/utils"
)

// Transactions returns the caller's applied payments, newest first.
func (h *Handlers) Transactions(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	recs, err := h.ledger.Transactions(c.Request().Context(), userID)
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "list transactions failed", "user_id", userID, "error", err)
		return utils.Error(c, http.StatusInternalServerError, "could not fetch transactions")
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": recs})
}

func (l *MemoryLedger) Transactions(_ context.Context, userID string) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []Record{}
	for _, r := range l.records {
		if r.Effect.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.After(out[j].ReceivedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (l *PgLedger) Transactions(ctx context.Context, userID string) ([]Record, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT idempotency_key, event_id, event_type, order_id, payment_id,
                kind, coins, COALESCE(plan, ''), amount, currency, received_at
         FROM payment_events WHERE user_id = $1
         ORDER BY received_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		r := Record{Effect: Effect{UserID: userID}}
		var plan string
		var amount decimal.Decimal
		if err := rows.Scan(&r.Key, &r.EventID, &r.EventType, &r.OrderID, &r.PaymentID,
			&r.Effect.Kind, &r.Effect.Coins, &plan, &amount, &r.Effect.Currency, &r.ReceivedAt); err != nil {
			return nil, err
		}
		r.Effect.Plan = Plan(plan)
		// stored in major units; effects carry paise
		r.Effect.Amount = amount.Shift(2).IntPart()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *MongoLedger) Transactions(ctx context.Context, userID string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := l.events.Find(ctx, bson.M{"effect.user_id": userID},
		options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	out := []Record{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
