package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore keeps notifications in the notifications table. The job a
// notification is about is stored as its reference.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const notificationColumns = `id::text, user_id, type, title, body, COALESCE(reference, ''), created_at, read_at`

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.JobID, &n.CreatedAt, &n.ReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, ErrNotificationNotFound
	}
	return n, err
}

func (s *PgStore) Create(ctx context.Context, n Notification) (Notification, error) {
	created, err := scanNotification(s.pool.QueryRow(ctx,
		`INSERT INTO notifications (user_id, type, title, body, reference, created_at)
         VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
         RETURNING `+notificationColumns,
		n.UserID, n.Type, n.Title, n.Body, n.JobID, n.CreatedAt))
	if err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return created, nil
}

func (s *PgStore) List(ctx context.Context, userID string) ([]Notification, error) {
	return s.query(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (s *PgStore) Unread(ctx context.Context, userID string) ([]Notification, error) {
	return s.query(ctx,
		`SELECT `+notificationColumns+` FROM notifications
         WHERE user_id = $1 AND read_at IS NULL ORDER BY created_at DESC`, userID)
}

func (s *PgStore) MarkRead(ctx context.Context, userID, id string, at time.Time) (Notification, error) {
	return scanNotification(s.pool.QueryRow(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, $3)
         WHERE id::text = $1 AND user_id = $2
         RETURNING `+notificationColumns, id, userID, at))
}

func (s *PgStore) query(ctx context.Context, sql, userID string) ([]Notification, error) {
	rows, err := s.pool.Query(ctx, sql, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	out := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// PgDirectory resolves user emails from the users table.
type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) Email(ctx context.Context, userID string) (string, error) {
	var email string
	err := d.pool.QueryRow(ctx, `SELECT COALESCE(email, '') FROM users WHERE id = $1`, userID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && email == "") {
		return "", ErrNoEmail
	}
	return email, err
}
