package wallet

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/utils"
)

const maxWebhookBody = 1 << 20

// Handlers serves the payment webhook and the wallet endpoints.
type Handlers struct {
	gate     *Gate
	ledger   Ledger
	provider *ProviderClient
}

func NewHandlers(gate *Gate, ledger Ledger, provider *ProviderClient) *Handlers {
	return &Handlers{gate: gate, ledger: ledger, provider: provider}
}

// Register mounts the authenticated wallet routes. The webhook is mounted
// separately since the provider does not carry a user token.
func (h *Handlers) Register(g *echo.Group) {
	g.GET("/wallet/balance", h.Balance)
	g.POST("/wallet/checkout", h.Checkout)
	g.GET("/wallet/transactions", h.Transactions)
}

// Webhook receives provider callbacks. The body is read raw: the signature
// covers the exact bytes sent.
func (h *Handlers) Webhook(c echo.Context) error {
	ctx := c.Request().Context()
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return utils.Error(c, http.StatusBadRequest, "unreadable body")
	}

	res, err := h.gate.Handle(ctx, Delivery{
		Body:      body,
		Signature: c.Request().Header.Get("x-signature"),
		EventID:   c.Request().Header.Get("x-event-id"),
	})
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, res)
	case errors.Is(err, ErrAuthentication):
		slog.WarnContext(ctx, "payment webhook rejected", "remote_ip", c.RealIP(), "error", err)
		return utils.Error(c, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, ErrMalformedEvent):
		slog.WarnContext(ctx, "payment webhook malformed", "error", err)
		return utils.Error(c, http.StatusBadRequest, "malformed event")
	case errors.Is(err, ErrConfiguration):
		slog.ErrorContext(ctx, "payment webhook misconfigured", "alert", true, "error", err)
		return utils.Error(c, http.StatusInternalServerError, "not configured")
	default:
		slog.ErrorContext(ctx, "payment webhook failed", "error", err)
		return utils.Error(c, http.StatusInternalServerError, "temporarily unavailable")
	}
}

// Balance returns the caller's coins and active plan.
func (h *Handlers) Balance(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	b, err := h.ledger.Balance(c.Request().Context(), userID)
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "balance lookup failed", "user_id", userID, "error", err)
		return utils.Error(c, http.StatusInternalServerError, "failed to load balance")
	}
	return c.JSON(http.StatusOK, b)
}

type checkoutRequest struct {
	Type  string `json:"type" validate:"oneof=coins premium"`
	Coins int64  `json:"coins" validate:"required_if=Type coins,omitempty,min=1,max=100000"`
	Plan  string `json:"plan" validate:"required_if=Type premium"`
}

// Checkout creates a provider order for a coin pack or a plan. The notes set
// here come back through the order lookup when the payment lands.
func (h *Handlers) Checkout(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return utils.Error(c, http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return utils.Error(c, http.StatusBadRequest, utils.ValidationMessage(err))
	}

	notes := Notes{"user_id": userID, "type": req.Type}
	var amount int64
	switch EffectKind(req.Type) {
	case EffectCoins:
		amount = req.Coins * CoinPrice
		notes["coins"] = fmt.Sprint(req.Coins)
	case EffectPremium:
		plan, ok := ParsePlan(req.Plan)
		if !ok {
			return utils.Error(c, http.StatusBadRequest, "unknown plan")
		}
		amount, _ = PlanPrice(plan)
		notes["plan"] = string(plan)
	}

	order, err := h.provider.CreateOrder(c.Request().Context(), OrderRequest{
		Amount:   amount,
		Currency: "INR",
		Receipt:  uuid.NewString(),
		Notes:    notes,
	})
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "checkout failed", "user_id", userID, "error", err)
		if errors.Is(err, ErrConfiguration) {
			return utils.Error(c, http.StatusServiceUnavailable, "payments unavailable")
		}
		return utils.Error(c, http.StatusBadGateway, "could not create order")
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"order_id": order.ID,
		"amount":   order.Amount,
		"currency": order.Currency,
	})
}
