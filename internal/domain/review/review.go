// Package review holds customer ratings of catalog products.
package review

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopprime/storefront/internal/domain/product"
)

// MaxCommentLength bounds a review comment in characters.
const MaxCommentLength = 2000

var (
	// ErrAlreadyReviewed is returned when the user has reviewed the product
	// before.
	ErrAlreadyReviewed = errors.New("product already reviewed by this user")
	// ErrInvalidRating is returned for ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrCommentTooLong is returned for comments above MaxCommentLength.
	ErrCommentTooLong = errors.New("comment is too long")
)

// Review is one user's rating of a product. A user reviews a product at
// most once.
type Review struct {
	ProductID string
	UserID    string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// Validate checks the rating range and comment length.
func (r *Review) Validate() error {
	if r.Rating < 1 || r.Rating > 5 {
		return ErrInvalidRating
	}
	if utf8.RuneCountInString(r.Comment) > MaxCommentLength {
		return ErrCommentTooLong
	}
	return nil
}

// Repository stores reviews.
type Repository interface {
	// Add stores r and sets CreatedAt. It returns ErrAlreadyReviewed when
	// the user already reviewed the product.
	Add(ctx context.Context, r *Review) error
	// ListByProduct returns the reviews of a product, newest first.
	ListByProduct(ctx context.Context, productID string) ([]Review, error)
}

// Summary aggregates the reviews of one product.
type Summary struct {
	Reviews []Review
	// Average is the mean rating rounded to two places, zero without reviews.
	Average decimal.Decimal
}

// Summarize computes the average rating of reviews.
func Summarize(reviews []Review) Summary {
	s := Summary{Reviews: reviews, Average: decimal.Zero}
	if len(reviews) == 0 {
		return s
	}
	var sum int64
	for _, r := range reviews {
		sum += int64(r.Rating)
	}
	s.Average = decimal.NewFromInt(sum).DivRound(decimal.NewFromInt(int64(len(reviews))), 2)
	return s
}

// Service adds and reads reviews of existing products.
type Service struct {
	reviews  Repository
	products product.Reader
}

// NewService creates a review Service.
func NewService(reviews Repository, products product.Reader) *Service {
	return &Service{reviews: reviews, products: products}
}

// Add records a review for an existing product.
func (s *Service) Add(ctx context.Context, r *Review) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, err := s.products.GetByID(ctx, r.ProductID); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return err
		}
		return errors.Wrapf(err, "get product %s", r.ProductID)
	}
	if err := s.reviews.Add(ctx, r); err != nil {
		if errors.Is(err, ErrAlreadyReviewed) {
			return err
		}
		return errors.Wrap(err, "add review")
	}

	zctx.From(ctx).Info("Review added",
		zap.String("product_id", r.ProductID),
		zap.String("user_id", r.UserID),
		zap.Int("rating", r.Rating),
	)
	return nil
}

// Summary returns the reviews and average rating of a product.
func (s *Service) Summary(ctx context.Context, productID string) (*Summary, error) {
	reviews, err := s.reviews.ListByProduct(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "list reviews")
	}
	sum := Summarize(reviews)
	return &sum, nil
}
