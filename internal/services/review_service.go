package services

import (
	"context"
	"errors"
	"math"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
	"github.com/sharashena/07.E-Commerce-server/internal/repositories"
)

const (
	reviewIDPrefix        = "rev_"
	reviewNotFoundMsg     = "resource not found"
	reviewCommentMax      = 500
	reviewRatingMax       = 5
	defaultReviewCooldown = 5 * time.Minute
)

// CreateReviewCommand submits a rating for a product.
type CreateReviewCommand struct {
	UserID    string
	ProductID string
	Rating    *int
	Comment   string
}

// UpdateReviewCommand edits an existing review.
type UpdateReviewCommand struct {
	ReviewID string
	Actor    Actor
	Rating   *int
	Comment  *string
}

// DeleteReviewCommand removes a review.
type DeleteReviewCommand struct {
	ReviewID string
	Actor    Actor
}

// ReviewServiceDeps bundles collaborators required to construct a ReviewService.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Products    repositories.ProductRepository
	Users       repositories.UserRepository
	Clock       func() time.Time
	IDGenerator func() string
	Sanitizer   func(string) string
	// Cooldown is the minimum gap between edits of the same review.
	Cooldown time.Duration
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	reviews  repositories.ReviewRepository
	products repositories.ProductRepository
	users    repositories.UserRepository
	clock    func() time.Time
	newID    func() string
	sanitize func(string) string
	cooldown time.Duration
	logger   func(context.Context, string, map[string]any)
}

var _ ReviewService = (*reviewService)(nil)

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("review service: product repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("review service: user repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return reviewIDPrefix + ulid.Make().String()
		}
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = trimmed
	}
	cooldown := deps.Cooldown
	if cooldown <= 0 {
		cooldown = defaultReviewCooldown
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reviewService{
		reviews:  deps.Reviews,
		products: deps.Products,
		users:    deps.Users,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		sanitize: sanitize,
		cooldown: cooldown,
		logger:   logger,
	}, nil
}

func (s *reviewService) CreateReview(ctx context.Context, cmd CreateReviewCommand) (Review, error) {
	comment := s.sanitize(cmd.Comment)
	var fields []FieldError
	if trimmed(cmd.ProductID) == "" {
		fields = append(fields, FieldError{Field: "product", Message: "product id is required"})
	}
	fields = append(fields, validateRating(cmd.Rating)...)
	fields = append(fields, validateComment(comment)...)
	if len(fields) > 0 {
		return Review{}, fieldErrors(ErrBadRequest, fields...)
	}

	user, err := s.users.FindByID(ctx, trimmed(cmd.UserID))
	if err != nil {
		return Review{}, translateRepoError(err, reviewNotFoundMsg)
	}
	product, err := s.products.FindByID(ctx, trimmed(cmd.ProductID))
	if err != nil {
		return Review{}, translateRepoError(err, reviewNotFoundMsg)
	}

	now := s.clock()
	review := Review{
		ID:        s.newID(),
		ProductID: product.ID,
		UserID:    user.ID,
		Rating:    *cmd.Rating,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.reviews.Insert(ctx, review); err != nil {
		var dup *repositories.DuplicateError
		if errors.As(err, &dup) {
			return Review{}, conflict("you have already commented on this product")
		}
		return Review{}, translateRepoError(err, reviewNotFoundMsg)
	}

	if err := recomputeProductRating(ctx, s.reviews, s.products, product.ID); err != nil {
		return Review{}, err
	}
	s.logger(ctx, "reviews.created", map[string]any{"reviewId": review.ID, "productId": product.ID, "userId": user.ID})
	return review, nil
}

func (s *reviewService) ListReviews(ctx context.Context) ([]Review, error) {
	reviews, err := s.reviews.List(ctx)
	if err != nil {
		return nil, translateRepoError(err, reviewNotFoundMsg)
	}
	return reviews, nil
}

func (s *reviewService) GetReview(ctx context.Context, reviewID string) (Review, error) {
	review, err := s.reviews.FindByID(ctx, trimmed(reviewID))
	if err != nil {
		return Review{}, translateRepoError(err, reviewNotFoundMsg)
	}
	return review, nil
}

func (s *reviewService) UpdateReview(ctx context.Context, cmd UpdateReviewCommand) (Review, error) {
	var comment *string
	if cmd.Comment != nil {
		c := s.sanitize(*cmd.Comment)
		comment = &c
	}
	fields := validateRating(cmd.Rating)
	if comment != nil {
		fields = append(fields, validateComment(*comment)...)
	}
	if len(fields) > 0 {
		return Review{}, fieldErrors(ErrBadRequest, fields...)
	}

	review, err := s.GetReview(ctx, cmd.ReviewID)
	if err != nil {
		return Review{}, err
	}
	if !cmd.Actor.isAdmin() && cmd.Actor.UserID != review.UserID {
		return Review{}, forbidden(msgAccessDenied)
	}

	sameComment := comment == nil || *comment == review.Comment
	if *cmd.Rating == review.Rating && sameComment {
		return Review{}, badRequest("no changes detected")
	}

	now := s.clock()
	last := review.UpdatedAt
	if last.IsZero() {
		last = review.CreatedAt
	}
	if now.Sub(last) < s.cooldown {
		return Review{}, badRequest("you can only update a review per 5 minutes")
	}

	review.Rating = *cmd.Rating
	if comment != nil {
		review.Comment = *comment
	}
	review.UpdatedAt = now
	saved, err := s.reviews.Update(ctx, review)
	if err != nil {
		return Review{}, translateRepoError(err, reviewNotFoundMsg)
	}

	if err := recomputeProductRating(ctx, s.reviews, s.products, review.ProductID); err != nil {
		return Review{}, err
	}
	s.logger(ctx, "reviews.updated", map[string]any{"reviewId": review.ID, "actorId": cmd.Actor.UserID})
	return saved, nil
}

func (s *reviewService) DeleteReview(ctx context.Context, cmd DeleteReviewCommand) error {
	review, err := s.GetReview(ctx, cmd.ReviewID)
	if err != nil {
		return err
	}
	if !cmd.Actor.isAdmin() && cmd.Actor.UserID != review.UserID {
		return forbidden(msgAccessDenied)
	}
	if err := s.reviews.Delete(ctx, review.ID); err != nil {
		return translateRepoError(err, reviewNotFoundMsg)
	}
	if err := recomputeProductRating(ctx, s.reviews, s.products, review.ProductID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	s.logger(ctx, "reviews.deleted", map[string]any{"reviewId": review.ID, "actorId": cmd.Actor.UserID})
	return nil
}

func validateRating(rating *int) []FieldError {
	switch {
	case rating == nil:
		return []FieldError{{Field: "rating", Message: "rating is required"}}
	case *rating < 0:
		return []FieldError{{Field: "rating", Message: "rating can't be less than 0"}}
	case *rating > reviewRatingMax:
		return []FieldError{{Field: "rating", Message: "rating can't be more than 5"}}
	}
	return nil
}

func validateComment(comment string) []FieldError {
	if utf8.RuneCountInString(comment) > reviewCommentMax {
		return []FieldError{{Field: "comment", Message: "comment length can't be more than 500 characters"}}
	}
	return nil
}

// recomputeProductRating rebuilds the product's average rating and review count from the
// stored reviews. Concurrent writers may interleave; the last recompute wins.
func recomputeProductRating(ctx context.Context, reviews repositories.ReviewRepository, products repositories.ProductRepository, productID string) error {
	list, err := reviews.ListByProduct(ctx, productID)
	if err != nil {
		return translateRepoError(err, reviewNotFoundMsg)
	}
	avg := averageRating(list)
	if err := products.UpdateRating(ctx, productID, avg, len(list)); err != nil {
		return translateRepoError(err, productNotFoundMsg)
	}
	return nil
}

// averageRating is the mean rating rounded to one decimal place, zero when there are no reviews.
func averageRating(reviews []domain.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return math.Round(float64(sum)/float64(len(reviews))*10) / 10
}
