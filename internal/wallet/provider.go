package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// OrderLookup fetches the provider's authoritative view of an order.
type OrderLookup interface {
	FetchOrder(ctx context.Context, orderID string) (Order, error)
}

// ProviderClient talks to the payment provider's REST API with key
// credentials. No client-side timeout is set; callers bound calls with ctx.
type ProviderClient struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

func NewProviderClient(baseURL, keyID, keySecret string, httpClient *http.Client) *ProviderClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ProviderClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: httpClient,
	}
}

func (p *ProviderClient) configured() error {
	if p.keyID == "" || p.keySecret == "" {
		return fmt.Errorf("%w: provider key credentials missing", ErrConfiguration)
	}
	return nil
}

func (p *ProviderClient) FetchOrder(ctx context.Context, orderID string) (Order, error) {
	if err := p.configured(); err != nil {
		return Order{}, err
	}
	var order Order
	if err := p.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &order); err != nil {
		return Order{}, err
	}
	return order, nil
}

// OrderRequest creates a checkout order; notes travel back in the webhook.
type OrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Notes    Notes  `json:"notes"`
}

func (p *ProviderClient) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if err := p.configured(); err != nil {
		return Order{}, err
	}
	var order Order
	if err := p.do(ctx, http.MethodPost, "/orders", req, &order); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (p *ProviderClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(p.keyID, p.keySecret)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		switch resp.StatusCode {
		case http.StatusNotFound, http.StatusBadRequest:
			return fmt.Errorf("%w: provider %s %s: status=%d body=%s", ErrMalformedEvent, method, path, resp.StatusCode, msg)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: provider rejected credentials", ErrConfiguration)
		}
		return fmt.Errorf("%w: provider %s %s: status=%d body=%s", ErrUpstream, method, path, resp.StatusCode, msg)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode provider response: %v", ErrUpstream, err)
	}
	return nil
}
