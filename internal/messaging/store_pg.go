package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/gigmarket/internal/inbox"
	"github.com/sudo-init-do/gigmarket/internal/negotiation"
)

// PgStore keeps messages and overlays in Postgres.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const messageColumns = `id, job_id, sender_id, receiver_id, text, deleted, created_at, read_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.JobID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Deleted, &m.CreatedAt, &m.ReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrMessageNotFound
	}
	return m, err
}

func (s *PgStore) InsertMessage(ctx context.Context, m Message) (Message, bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, job_id, sender_id, receiver_id, text, created_at)
         VALUES ($1, $2, $3, $4, $5, $6)
         ON CONFLICT (id) DO NOTHING`,
		m.ID, m.JobID, m.SenderID, m.ReceiverID, m.Text, m.CreatedAt,
	)
	if err != nil {
		return Message{}, false, fmt.Errorf("insert message: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return m, true, nil
	}
	prev, err := scanMessage(s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, m.ID))
	if err != nil {
		return Message{}, false, err
	}
	if prev.JobID != m.JobID || prev.SenderID != m.SenderID {
		return Message{}, false, ErrMessageConflict
	}
	return prev, false, nil
}

func (s *PgStore) GetMessage(ctx context.Context, jobID, id string) (Message, error) {
	return scanMessage(s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1 AND job_id = $2`, id, jobID))
}

func (s *PgStore) ListMessages(ctx context.Context, jobID string, since time.Time) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages
         WHERE job_id = $1 AND created_at > $2
         ORDER BY created_at ASC`, jobID, since)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PgStore) MarkRead(ctx context.Context, jobID, id string, at time.Time) (Message, error) {
	return scanMessage(s.pool.QueryRow(ctx,
		`UPDATE messages SET read_at = COALESCE(read_at, $3)
         WHERE id = $1 AND job_id = $2
         RETURNING `+messageColumns, id, jobID, at))
}

func (s *PgStore) SetArchived(ctx context.Context, userID, jobID string, archived bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_overlays (user_id, job_id, archived, updated_at)
         VALUES ($1, $2, $3, NOW())
         ON CONFLICT (user_id, job_id) DO UPDATE SET archived = EXCLUDED.archived, updated_at = NOW()`,
		userID, jobID, archived)
	if err != nil {
		return fmt.Errorf("set archived: %w", err)
	}
	return nil
}

func (s *PgStore) DeleteConversation(ctx context.Context, userID, jobID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_overlays (user_id, job_id, deleted, updated_at)
         VALUES ($1, $2, TRUE, NOW())
         ON CONFLICT (user_id, job_id) DO UPDATE SET deleted = TRUE, updated_at = NOW()`,
		userID, jobID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// inboxQuery returns every hired job of $1 with its counterpart, newest
// message, unread count and overlay flags in one round trip.
const inboxQuery = `
SELECT j.id, j.title, j.status, j.poster_id, b.worker_id,
       CASE WHEN j.poster_id = $1 THEN b.worker_id ELSE j.poster_id END,
       COALESCE(u.name, ''), COALESCE(u.photo_url, ''), u.rating,
       lm.id, lm.text, lm.created_at, lm.sender_id, lm.read_at IS NOT NULL, lm.deleted,
       (SELECT COUNT(*) FROM messages m
         WHERE m.job_id = j.id AND m.receiver_id = $1 AND m.read_at IS NULL AND NOT m.deleted),
       o.archived, COALESCE(o.deleted, FALSE)
FROM jobs j
JOIN bids b ON b.id = j.accepted_bid_id
LEFT JOIN users u ON u.id = CASE WHEN j.poster_id = $1 THEN b.worker_id ELSE j.poster_id END
LEFT JOIN LATERAL (
    SELECT id, text, created_at, sender_id, read_at, deleted
    FROM messages WHERE job_id = j.id
    ORDER BY created_at DESC LIMIT 1
) lm ON TRUE
LEFT JOIN chat_overlays o ON o.job_id = j.id AND o.user_id = $1
WHERE j.poster_id = $1 OR b.worker_id = $1`

func (s *PgStore) FetchInbox(ctx context.Context, userID string) ([]inbox.Summary, error) {
	rows, err := s.pool.Query(ctx, inboxQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch inbox: %w", err)
	}
	defer rows.Close()

	out := []inbox.Summary{}
	for rows.Next() {
		var (
			row      inbox.Summary
			status   string
			lmID     *string
			lmText   *string
			lmAt     *time.Time
			lmSender *string
			lmRead   *bool
			lmDel    *bool
			unread   int64
		)
		err := rows.Scan(&row.JobID, &row.JobTitle, &status, &row.PosterID, &row.WorkerID,
			&row.Counterpart.ID, &row.Counterpart.Name, &row.Counterpart.PhotoURL, &row.Counterpart.Rating,
			&lmID, &lmText, &lmAt, &lmSender, &lmRead, &lmDel,
			&unread, &row.Archived, &row.Deleted)
		if err != nil {
			return nil, err
		}
		row.JobStatus = negotiation.JobStatus(status)
		row.IsPoster = row.PosterID == userID
		row.IsWorker = row.WorkerID == userID
		row.UnreadCount = int(unread)
		if lmID != nil && lmAt != nil {
			lm := &inbox.LastMessage{ID: *lmID, At: lmAt.UnixMilli()}
			if lmSender != nil {
				lm.SenderID = *lmSender
			}
			if lmRead != nil {
				lm.Read = *lmRead
			}
			if lmDel != nil {
				lm.Deleted = *lmDel
			}
			if lmText != nil && !lm.Deleted {
				lm.Text = *lmText
			}
			row.LastMessage = lm
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
