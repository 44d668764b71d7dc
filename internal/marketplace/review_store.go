package marketplace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReviewStore persists reviews. CreateReview also refreshes the worker's
// average rating on their profile.
type ReviewStore interface {
	CreateReview(ctx context.Context, r Review) error
	JobReview(ctx context.Context, jobID string) (Review, error)
	WorkerReviews(ctx context.Context, workerID string, limit, offset int) ([]Review, RatingSummary, error)
}

// MemoryReviewStore keeps reviews in process. OnRating, when set, receives
// each new worker average.
type MemoryReviewStore struct {
	mu       sync.Mutex
	reviews  []Review
	OnRating func(workerID string, avg float64)
}

func NewMemoryReviewStore() *MemoryReviewStore {
	return &MemoryReviewStore{}
}

func (s *MemoryReviewStore) CreateReview(_ context.Context, r Review) error {
	s.mu.Lock()
	for _, existing := range s.reviews {
		if existing.JobID == r.JobID {
			s.mu.Unlock()
			return ErrReviewExists
		}
	}
	s.reviews = append(s.reviews, r)
	summary := s.summary(r.WorkerID)
	s.mu.Unlock()

	if s.OnRating != nil {
		s.OnRating(r.WorkerID, summary.AverageRating)
	}
	return nil
}

func (s *MemoryReviewStore) JobReview(_ context.Context, jobID string) (Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reviews {
		if r.JobID == jobID {
			return r, nil
		}
	}
	return Review{}, ErrReviewNotFound
}

func (s *MemoryReviewStore) WorkerReviews(_ context.Context, workerID string, limit, offset int) ([]Review, RatingSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var mine []Review
	for _, r := range s.reviews {
		if r.WorkerID == workerID {
			mine = append(mine, r)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })
	page := []Review{}
	if offset < len(mine) {
		end := offset + limit
		if end > len(mine) {
			end = len(mine)
		}
		page = append(page, mine[offset:end]...)
	}
	return page, s.summary(workerID), nil
}

func (s *MemoryReviewStore) summary(workerID string) RatingSummary {
	sum := RatingSummary{WorkerID: workerID}
	total := 0
	for _, r := range s.reviews {
		if r.WorkerID != workerID {
			continue
		}
		sum.TotalReviews++
		sum.RatingCounts.add(r.Rating, 1)
		total += r.Rating
	}
	if sum.TotalReviews > 0 {
		sum.AverageRating = float64(total) / float64(sum.TotalReviews)
	}
	return sum
}

// PgReviewStore keeps reviews in Postgres and maintains users.rating.
type PgReviewStore struct {
	pool *pgxpool.Pool
}

func NewPgReviewStore(pool *pgxpool.Pool) *PgReviewStore {
	return &PgReviewStore{pool: pool}
}

const reviewColumns = `id, job_id, poster_id, worker_id, rating, comment, created_at`

func scanReview(row pgx.Row) (Review, error) {
	var r Review
	err := row.Scan(&r.ID, &r.JobID, &r.PosterID, &r.WorkerID, &r.Rating, &r.Comment, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Review{}, ErrReviewNotFound
	}
	return r, err
}

func (s *PgReviewStore) CreateReview(ctx context.Context, r Review) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx,
		`INSERT INTO reviews (`+reviewColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)
         ON CONFLICT (job_id) DO NOTHING`,
		r.ID, r.JobID, r.PosterID, r.WorkerID, r.Rating, r.Comment, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrReviewExists
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO users (id, rating)
         SELECT $1, AVG(rating)::float8 FROM reviews WHERE worker_id = $1
         ON CONFLICT (id) DO UPDATE SET rating = EXCLUDED.rating`,
		r.WorkerID,
	)
	if err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PgReviewStore) JobReview(ctx context.Context, jobID string) (Review, error) {
	return scanReview(s.pool.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE job_id = $1`, jobID))
}

func (s *PgReviewStore) WorkerReviews(ctx context.Context, workerID string, limit, offset int) ([]Review, RatingSummary, error) {
	sum := RatingSummary{WorkerID: workerID}
	rows, err := s.pool.Query(ctx,
		`SELECT rating, COUNT(*) FROM reviews WHERE worker_id = $1 GROUP BY rating`, workerID)
	if err != nil {
		return nil, sum, fmt.Errorf("rating breakdown: %w", err)
	}
	total := 0
	for rows.Next() {
		var rating, n int
		if err := rows.Scan(&rating, &n); err != nil {
			rows.Close()
			return nil, sum, err
		}
		sum.RatingCounts.add(rating, n)
		sum.TotalReviews += n
		total += rating * n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, sum, err
	}
	if sum.TotalReviews > 0 {
		sum.AverageRating = float64(total) / float64(sum.TotalReviews)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE worker_id = $1
         ORDER BY created_at DESC LIMIT $2 OFFSET $3`, workerID, limit, offset)
	if err != nil {
		return nil, sum, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()
	out := []Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, sum, err
		}
		out = append(out, r)
	}
	return out, sum, rows.Err()
}
