package wallet

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type EffectKind string

const (
	EffectCoins   EffectKind = "coins"
	EffectPremium EffectKind = "premium"
)

type Plan string

const (
	PlanBasic Plan = "BASIC"
	PlanPro   Plan = "PRO"
	PlanSuper Plan = "SUPER"
)

// PlanDuration is how long one premium payment keeps a plan active.
const PlanDuration = 30 * 24 * time.Hour

// CoinPrice is the price of one coin in paise.
const CoinPrice int64 = 100

// planTiers lists the minimum paid amount, in paise, for each plan,
// highest first. List prices sit a little above the floor.
var planTiers = []struct {
	plan  Plan
	floor int64
	price int64
}{
	{PlanSuper, 12000, 12900},
	{PlanPro, 6000, 6900},
	{PlanBasic, 2900, 2900},
}

// DerivePlan maps a paid amount to the highest plan it covers.
func DerivePlan(amount int64) (Plan, bool) {
	for _, t := range planTiers {
		if amount >= t.floor {
			return t.plan, true
		}
	}
	return "", false
}

// ParsePlan accepts a plan identifier in any case.
func ParsePlan(s string) (Plan, bool) {
	p := Plan(strings.ToUpper(strings.TrimSpace(s)))
	for _, t := range planTiers {
		if t.plan == p {
			return p, true
		}
	}
	return "", false
}

// PlanPrice returns the checkout price of a plan in paise.
func PlanPrice(p Plan) (int64, bool) {
	for _, t := range planTiers {
		if t.plan == p {
			return t.price, true
		}
	}
	return 0, false
}

// Effect is the state change a verified payment produces.
type Effect struct {
	Kind     EffectKind `json:"kind" bson:"kind"`
	UserID   string     `json:"user_id" bson:"user_id"`
	Coins    int64      `json:"coins,omitempty" bson:"coins,omitempty"`
	Plan     Plan       `json:"plan,omitempty" bson:"plan,omitempty"`
	Amount   int64      `json:"amount" bson:"amount"`
	Currency string     `json:"currency" bson:"currency"`
}

// AmountMajor returns the paid amount in rupees.
func (e Effect) AmountMajor() decimal.Decimal {
	return decimal.New(e.Amount, -2)
}

func (e Effect) String() string {
	switch e.Kind {
	case EffectCoins:
		return fmt.Sprintf("%d coins for %s %s", e.Coins, e.AmountMajor().StringFixed(2), e.Currency)
	case EffectPremium:
		return fmt.Sprintf("%s plan for %s %s", e.Plan, e.AmountMajor().StringFixed(2), e.Currency)
	}
	return string(e.Kind)
}

// DeriveEffect builds the effect from the provider's own view of the order.
// The plan comes from the amount actually paid; the plan named in the notes
// is used only when the provider did not report an amount.
func DeriveEffect(order Order) (Effect, error) {
	userID := strings.TrimSpace(order.Notes["user_id"])
	if userID == "" {
		return Effect{}, fmt.Errorf("%w: order %s has no user", ErrMalformedEvent, order.ID)
	}
	paid := order.AmountPaid
	if paid == 0 {
		paid = order.Amount
	}
	eff := Effect{UserID: userID, Amount: paid, Currency: order.Currency}

	switch EffectKind(strings.ToLower(order.Notes["type"])) {
	case EffectCoins:
		coins, err := strconv.ParseInt(strings.TrimSpace(order.Notes["coins"]), 10, 64)
		if err != nil || coins <= 0 {
			return Effect{}, fmt.Errorf("%w: order %s has no coin count", ErrMalformedEvent, order.ID)
		}
		eff.Kind, eff.Coins = EffectCoins, coins
	case EffectPremium:
		plan, ok := DerivePlan(paid)
		if !ok && paid == 0 {
			plan, ok = ParsePlan(order.Notes["plan"])
		}
		if !ok {
			return Effect{}, fmt.Errorf("%w: amount %d buys no plan", ErrMalformedEvent, paid)
		}
		eff.Kind, eff.Plan = EffectPremium, plan
	default:
		return Effect{}, fmt.Errorf("%w: unknown purchase type %q", ErrMalformedEvent, order.Notes["type"])
	}
	return eff, nil
}
