package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/gigmarket/internal/negotiation"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgStore keeps jobs and bids in Postgres.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const jobColumns = `id, poster_id, title, description, budget, status, COALESCE(accepted_bid_id, ''), created_at, updated_at`

func scanJob(row pgx.Row) (negotiation.Job, error) {
	var j negotiation.Job
	err := row.Scan(&j.ID, &j.PosterID, &j.Title, &j.Description, &j.Budget, &j.Status, &j.AcceptedBidID, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return negotiation.Job{}, ErrJobNotFound
	}
	return j, err
}

func (s *PgStore) CreateJob(ctx context.Context, job negotiation.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, poster_id, title, description, budget, status, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.PosterID, job.Title, job.Description, job.Budget, job.Status, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PgStore) GetJob(ctx context.Context, id string) (negotiation.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		return negotiation.Job{}, err
	}
	job.Bids, err = loadBids(ctx, s.pool, id)
	return job, err
}

func (s *PgStore) ListJobsByPoster(ctx context.Context, posterID string) ([]negotiation.Job, error) {
	return s.listJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE poster_id = $1 ORDER BY created_at DESC`, posterID)
}

func (s *PgStore) ListJobsByWorker(ctx context.Context, workerID string) ([]negotiation.Job, error) {
	return s.listJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE id IN (SELECT job_id FROM bids WHERE worker_id = $1)
         ORDER BY created_at DESC`, workerID)
}

func (s *PgStore) listJobs(ctx context.Context, query string, arg string) ([]negotiation.Job, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var jobs []negotiation.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		jobs = append(jobs, job)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range jobs {
		if jobs[i].Bids, err = loadBids(ctx, s.pool, jobs[i].ID); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func loadBids(ctx context.Context, q querier, jobID string) ([]negotiation.Bid, error) {
	rows, err := q.Query(ctx,
		`SELECT id, job_id, worker_id, amount, message, status, history, created_at, updated_at
         FROM bids WHERE job_id = $1 ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("load bids: %w", err)
	}
	defer rows.Close()

	var bids []negotiation.Bid
	for rows.Next() {
		var b negotiation.Bid
		var history []byte
		if err := rows.Scan(&b.ID, &b.JobID, &b.WorkerID, &b.Amount, &b.Message, &b.Status, &history, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(history, &b.History); err != nil {
			return nil, fmt.Errorf("decode history for bid %s: %w", b.ID, err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// MutateJob locks the job row for the duration of fn so concurrent
// transitions on the same job serialize.
func (s *PgStore) MutateJob(ctx context.Context, id string, fn func(negotiation.Job) (negotiation.Job, error)) (negotiation.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return negotiation.Job{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	job, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return negotiation.Job{}, err
	}
	if job.Bids, err = loadBids(ctx, tx, id); err != nil {
		return negotiation.Job{}, err
	}

	next, err := fn(job.Clone())
	if err != nil {
		return negotiation.Job{}, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE jobs SET status = $2, accepted_bid_id = NULLIF($3, ''), updated_at = $4 WHERE id = $1`,
		id, next.Status, next.AcceptedBidID, next.UpdatedAt,
	)
	if err != nil {
		return negotiation.Job{}, fmt.Errorf("update job: %w", err)
	}

	kept := make(map[string]bool, len(next.Bids))
	for _, b := range next.Bids {
		kept[b.ID] = true
	}
	for _, b := range job.Bids {
		if kept[b.ID] {
			continue
		}
		if _, err := tx.Exec(ctx, `DELETE FROM bids WHERE id = $1`, b.ID); err != nil {
			return negotiation.Job{}, fmt.Errorf("delete bid: %w", err)
		}
	}
	// Rejections are written before the accepted bid so the partial unique
	// indexes never see two live rows at once.
	for _, pass := range []func(negotiation.Bid) bool{
		func(b negotiation.Bid) bool { return b.Status != negotiation.BidAccepted },
		func(b negotiation.Bid) bool { return b.Status == negotiation.BidAccepted },
	} {
		for _, b := range next.Bids {
			if !pass(b) {
				continue
			}
			if err := upsertBid(ctx, tx, b); err != nil {
				return negotiation.Job{}, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return negotiation.Job{}, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

func upsertBid(ctx context.Context, tx pgx.Tx, b negotiation.Bid) error {
	history := b.History
	if history == nil {
		history = []negotiation.Entry{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO bids (id, job_id, worker_id, amount, message, status, history, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
         ON CONFLICT (id) DO UPDATE SET
            amount = EXCLUDED.amount,
            status = EXCLUDED.status,
            history = EXCLUDED.history,
            updated_at = EXCLUDED.updated_at`,
		b.ID, b.JobID, b.WorkerID, b.Amount, b.Message, b.Status, string(raw), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert bid %s: %w", b.ID, err)
	}
	return nil
}
