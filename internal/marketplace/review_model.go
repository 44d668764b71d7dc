package marketplace

import (
	"errors"
	"time"
)

var (
	ErrReviewExists   = errors.New("job already reviewed")
	ErrReviewNotFound = errors.New("no review for this job")
	ErrInvalidReview  = errors.New("invalid review")
)

// Review is a poster's rating of the worker hired on a completed job.
type Review struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	PosterID  string    `json:"poster_id"`
	WorkerID  string    `json:"worker_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewInput is what the poster submits.
type ReviewInput struct {
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

// RatingCounts breaks a worker's reviews down by star count.
type RatingCounts struct {
	FiveStar  int `json:"five_star"`
	FourStar  int `json:"four_star"`
	ThreeStar int `json:"three_star"`
	TwoStar   int `json:"two_star"`
	OneStar   int `json:"one_star"`
}

func (rc *RatingCounts) add(rating, n int) {
	switch rating {
	case 5:
		rc.FiveStar += n
	case 4:
		rc.FourStar += n
	case 3:
		rc.ThreeStar += n
	case 2:
		rc.TwoStar += n
	case 1:
		rc.OneStar += n
	}
}

type RatingSummary struct {
	WorkerID      string       `json:"worker_id"`
	TotalReviews  int          `json:"total_reviews"`
	AverageRating float64      `json:"average_rating"`
	RatingCounts  RatingCounts `json:"rating_counts"`
}
