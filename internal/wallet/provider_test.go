package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProviderClientFetchOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key_id" || pass != "key_secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/orders/order_1":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"order_1","amount":12900,"amount_paid":12900,"currency":"INR","status":"paid","notes":{"user_id":"u1","type":"premium"}}`))
		case "/orders/order_500":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	client := NewProviderClient(srv.URL+"/", "key_id", "key_secret", srv.Client())

	order, err := client.FetchOrder(ctx, "order_1")
	if err != nil {
		t.Fatalf("FetchOrder: %v", err)
	}
	if order.AmountPaid != 12900 || order.Notes["user_id"] != "u1" {
		t.Fatalf("order = %+v", order)
	}

	if _, err := client.FetchOrder(ctx, "missing"); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("404 err = %v", err)
	}
	if _, err := client.FetchOrder(ctx, "order_500"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("502 err = %v", err)
	}

	wrongCreds := NewProviderClient(srv.URL, "key_id", "nope", srv.Client())
	if _, err := wrongCreds.FetchOrder(ctx, "order_1"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("401 err = %v", err)
	}

	unconfigured := NewProviderClient(srv.URL, "", "", nil)
	if _, err := unconfigured.FetchOrder(ctx, "order_1"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("unconfigured err = %v", err)
	}
}

func TestProviderClientCreateOrder(t *testing.T) {
	var got OrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(Order{ID: "order_new", Amount: got.Amount, Currency: got.Currency, Notes: got.Notes})
	}))
	defer srv.Close()

	client := NewProviderClient(srv.URL, "k", "s", srv.Client())
	order, err := client.CreateOrder(context.Background(), OrderRequest{Amount: 5000, Currency: "INR", Notes: Notes{"user_id": "u1"}})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ID != "order_new" || got.Notes["user_id"] != "u1" {
		t.Fatalf("order = %+v, request = %+v", order, got)
	}
}
