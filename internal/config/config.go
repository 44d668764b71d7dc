package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Ledger backends accepted by LEDGER_BACKEND.
const (
	LedgerPostgres = "postgres"
	LedgerMongo    = "mongo"
)

// Config holds every setting the server and worker binaries read from the environment.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBName     string `env:"DB_NAME"`

	JWTSecret      string   `env:"JWT_SECRET"`
	RedisAddr      string   `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	PaymentWebhookSecret string   `env:"PAYMENT_WEBHOOK_SECRET"`
	PaymentKeyID         string   `env:"PAYMENT_KEY_ID"`
	PaymentKeySecret     string   `env:"PAYMENT_KEY_SECRET"`
	PaymentAPIURL        string   `env:"PAYMENT_API_URL" envDefault:"https://api.razorpay.com/v1"`
	PaymentEvents        []string `env:"PAYMENT_EVENTS" envSeparator:"," envDefault:"order.paid"`

	LedgerBackend string `env:"LEDGER_BACKEND" envDefault:"postgres"`
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB       string `env:"MONGO_DB" envDefault:"gigmarket"`

	PlunkAPIKey string `env:"PLUNK_API_KEY"`
	PlunkFrom   string `env:"PLUNK_FROM"`
	PlunkAPIURL string `env:"PLUNK_API_URL" envDefault:"https://api.useplunk.com/v1/send"`

	InboxReloadDebounce   time.Duration `env:"INBOX_RELOAD_DEBOUNCE" envDefault:"5s"`
	InboxPrefetchCount    int           `env:"INBOX_PREFETCH_COUNT" envDefault:"5"`
	InboxPrefetchInterval time.Duration `env:"INBOX_PREFETCH_INTERVAL" envDefault:"200ms"`
}

// Load reads an optional .env file and then parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot work at all. Missing payment
// secrets are not fatal here: the webhook reports them per request.
func (c Config) Validate() error {
	switch c.LedgerBackend {
	case LedgerPostgres, LedgerMongo:
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}
	if c.InboxPrefetchCount < 0 {
		return errors.New("INBOX_PREFETCH_COUNT must not be negative")
	}
	return nil
}

// ValidateServer adds the checks only the API server needs: it signs and
// verifies tokens, so an empty JWT_SECRET would accept forged ones.
func (c Config) ValidateServer() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET must be set")
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid ALLOWED_ORIGINS entry %q", o)
		}
	}
	return nil
}

// DatabaseURL builds the postgres DSN from the DB_* variables.
func (c Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   c.DBHost + ":" + c.DBPort,
		Path:   "/" + c.DBName,
	}
	return u.String()
}

func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}
