package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore reads and writes the users table.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const profileColumns = `id, name, COALESCE(email, ''), COALESCE(photo_url, ''), rating, created_at`

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.PhotoURL, &p.Rating, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	return p, err
}

func (s *PgStore) Get(ctx context.Context, id string) (Profile, error) {
	return scanProfile(s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM users WHERE id = $1`, id))
}

func (s *PgStore) Upsert(ctx context.Context, id string, req UpdateRequest) (Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx, `
        INSERT INTO users (id, name, email, photo_url) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
        ON CONFLICT (id) DO UPDATE SET
            name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
            email = COALESCE(EXCLUDED.email, users.email),
            photo_url = COALESCE(EXCLUDED.photo_url, users.photo_url)
        RETURNING `+profileColumns,
		id, req.Name, req.Email, req.PhotoURL))
	if err != nil {
		return Profile{}, fmt.Errorf("upsert user: %w", err)
	}
	return p, nil
}
