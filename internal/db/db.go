package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Open connects to Postgres and checks the connection.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	slog.Info("connected to postgres")
	return pool, nil
}

// schema is applied in order at startup. Every statement is idempotent.
var schema = []struct {
	name string
	sql  string
}{
	{"users", `
        CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            email TEXT,
            photo_url TEXT,
            rating DOUBLE PRECISION,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`},
	{"jobs", `
        CREATE TABLE IF NOT EXISTS jobs (
            id TEXT PRIMARY KEY,
            poster_id TEXT NOT NULL,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            budget BIGINT NOT NULL CHECK (budget > 0),
            status TEXT NOT NULL CHECK (status IN ('OPEN', 'IN_PROGRESS', 'COMPLETED', 'CANCELLED')),
            accepted_bid_id TEXT,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS idx_jobs_poster ON jobs(poster_id, created_at DESC)`},
	{"bids", `
        CREATE TABLE IF NOT EXISTS bids (
            id TEXT PRIMARY KEY,
            job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
            worker_id TEXT NOT NULL,
            amount BIGINT NOT NULL CHECK (amount > 0),
            message TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL CHECK (status IN ('PENDING', 'ACCEPTED', 'REJECTED')),
            history JSONB NOT NULL DEFAULT '[]'::jsonb,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS idx_bids_job ON bids(job_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_bids_worker ON bids(worker_id);
        CREATE UNIQUE INDEX IF NOT EXISTS uq_bids_live_worker ON bids(job_id, worker_id) WHERE status <> 'REJECTED';
        CREATE UNIQUE INDEX IF NOT EXISTS uq_bids_accepted ON bids(job_id) WHERE status = 'ACCEPTED'`},
	{"messages", `
        CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
            sender_id TEXT NOT NULL,
            receiver_id TEXT NOT NULL,
            text TEXT NOT NULL,
            deleted BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL,
            read_at TIMESTAMPTZ
        );
        CREATE INDEX IF NOT EXISTS idx_messages_job_created ON messages(job_id, created_at DESC);
        CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(receiver_id, job_id) WHERE read_at IS NULL`},
	{"chat_overlays", `
        CREATE TABLE IF NOT EXISTS chat_overlays (
            user_id TEXT NOT NULL,
            job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
            archived BOOLEAN,
            deleted BOOLEAN NOT NULL DEFAULT FALSE,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (user_id, job_id)
        )`},
	{"notifications", `
        CREATE TABLE IF NOT EXISTS notifications (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id TEXT NOT NULL,
            type TEXT NOT NULL,
            title TEXT NOT NULL,
            body TEXT NOT NULL DEFAULT '',
            reference TEXT NULL,
            metadata JSONB NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            read_at TIMESTAMPTZ NULL
        );
        CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications(user_id) WHERE read_at IS NULL`},
	{"reviews", `
        CREATE TABLE IF NOT EXISTS reviews (
            id TEXT PRIMARY KEY,
            job_id TEXT NOT NULL UNIQUE REFERENCES jobs(id),
            poster_id TEXT NOT NULL,
            worker_id TEXT NOT NULL,
            rating SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
            comment TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS idx_reviews_worker ON reviews(worker_id, created_at DESC)`},
	{"payment_events", `
        CREATE TABLE IF NOT EXISTS payment_events (
            idempotency_key TEXT PRIMARY KEY,
            event_id TEXT NOT NULL DEFAULT '',
            event_type TEXT NOT NULL,
            order_id TEXT NOT NULL,
            payment_id TEXT NOT NULL DEFAULT '',
            user_id TEXT NOT NULL,
            kind TEXT NOT NULL,
            coins BIGINT NOT NULL DEFAULT 0,
            plan TEXT,
            amount NUMERIC(14, 2) NOT NULL,
            currency TEXT NOT NULL,
            received_at TIMESTAMPTZ NOT NULL
        )`},
	{"wallets", `
        CREATE TABLE IF NOT EXISTS wallets (
            user_id TEXT PRIMARY KEY,
            coins BIGINT NOT NULL DEFAULT 0 CHECK (coins >= 0),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`},
	{"subscriptions", `
        CREATE TABLE IF NOT EXISTS subscriptions (
            user_id TEXT PRIMARY KEY,
            plan TEXT NOT NULL CHECK (plan IN ('BASIC', 'PRO', 'SUPER')),
            activated_at TIMESTAMPTZ NOT NULL,
            expires_at TIMESTAMPTZ NOT NULL
        )`},
	{"transactions", `
        CREATE TABLE IF NOT EXISTS transactions (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id TEXT NOT NULL,
            amount NUMERIC(14, 2) NOT NULL,
            type TEXT NOT NULL,
            status TEXT NOT NULL,
            reference TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at DESC)`},
}

// EnsureSchema creates any missing tables and indexes.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range schema {
		if _, err := pool.Exec(ctx, s.sql); err != nil {
			return fmt.Errorf("ensure %s: %w", s.name, err)
		}
	}
	slog.Info("database schema ready", "tables", len(schema))
	return nil
}
