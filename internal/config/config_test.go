package config

import (
	"os"
	"testing"
	"time"
)

// unsetEnv clears keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "LEDGER_BACKEND", "PAYMENT_EVENTS", "INBOX_RELOAD_DEBOUNCE",
		"INBOX_PREFETCH_COUNT", "INBOX_PREFETCH_INTERVAL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.LedgerBackend != LedgerPostgres {
		t.Fatalf("LedgerBackend = %q", cfg.LedgerBackend)
	}
	if len(cfg.PaymentEvents) != 1 || cfg.PaymentEvents[0] != "order.paid" {
		t.Fatalf("PaymentEvents = %v", cfg.PaymentEvents)
	}
	if cfg.InboxReloadDebounce != 5*time.Second {
		t.Fatalf("InboxReloadDebounce = %v", cfg.InboxReloadDebounce)
	}
	if cfg.InboxPrefetchCount != 5 || cfg.InboxPrefetchInterval != 200*time.Millisecond {
		t.Fatalf("prefetch = %d/%v", cfg.InboxPrefetchCount, cfg.InboxPrefetchInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LEDGER_BACKEND", "mongo")
	t.Setenv("PAYMENT_EVENTS", "order.paid,payment.captured")
	t.Setenv("INBOX_RELOAD_DEBOUNCE", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.LedgerBackend != LedgerMongo {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.PaymentEvents) != 2 || cfg.PaymentEvents[1] != "payment.captured" {
		t.Fatalf("PaymentEvents = %v", cfg.PaymentEvents)
	}
	if cfg.InboxReloadDebounce != 2*time.Second {
		t.Fatalf("InboxReloadDebounce = %v", cfg.InboxReloadDebounce)
	}
}

func TestLoadRejectsUnknownLedger(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "dynamo")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown ledger backend")
	}
}

func TestDatabaseURL(t *testing.T) {
	cfg := Config{DBUser: "gig", DBPassword: "p@ss", DBHost: "db", DBPort: "5432", DBName: "market"}
	got := cfg.DatabaseURL()
	want := "postgres://gig:p%40ss@db:5432/market"
	if got != want {
		t.Fatalf("DatabaseURL = %q, want %q", got, want)
	}
}

func TestValidateServer(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"secret set", Config{JWTSecret: "s3cret"}, false},
		{"empty secret", Config{}, true},
		{"blank secret", Config{JWTSecret: "  "}, true},
		{"origins", Config{JWTSecret: "s", AllowedOrigins: []string{"https://app.gigmarket.in", "*"}}, false},
		{"bare host origin", Config{JWTSecret: "s", AllowedOrigins: []string{"app.gigmarket.in"}}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.ValidateServer()
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateServer() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestLoadAllowedOrigins(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://app.gigmarket.in,https://admin.gigmarket.in")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://admin.gigmarket.in" {
		t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}
