package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
)

type reviewFixture struct {
	svc      ReviewService
	reviews  *memoryReviewRepo
	products *memoryProductRepo
	now      time.Time
}

func newReviewFixture(t *testing.T, reviews ...domain.Review) *reviewFixture {
	t.Helper()
	f := &reviewFixture{
		reviews:  newMemoryReviewRepo(reviews...),
		products: newMemoryProductRepo(domain.Product{ID: "p1", UserID: "seller"}),
		now:      time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC),
	}
	users := newMemoryUserRepo(
		domain.User{ID: "u1", Username: "one", Email: "one@example.com"},
		domain.User{ID: "u2", Username: "two", Email: "two@example.com"},
	)
	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:     f.reviews,
		Products:    f.products,
		Users:       users,
		Clock:       func() time.Time { return f.now },
		IDGenerator: sequenceIDs("rev_"),
	})
	if err != nil {
		t.Fatalf("new review service: %v", err)
	}
	f.svc = svc
	return f
}

func TestReviewServiceCreateRecomputesAggregate(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateReview(ctx, CreateReviewCommand{UserID: "u1", ProductID: "p1", Rating: ptr(5), Comment: "great"}); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if _, err := f.svc.CreateReview(ctx, CreateReviewCommand{UserID: "u2", ProductID: "p1", Rating: ptr(4)}); err != nil {
		t.Fatalf("create second: %v", err)
	}
	product := f.products.products["p1"]
	if product.AvgRating != 4.5 || product.NumOfComments != 2 {
		t.Fatalf("expected 4.5 over 2 reviews, got %v over %d", product.AvgRating, product.NumOfComments)
	}

	_, err := f.svc.CreateReview(ctx, CreateReviewCommand{UserID: "u1", ProductID: "p1", Rating: ptr(1)})
	expectKind(t, err, ErrConflict, "you have already commented on this product")
}

func TestReviewServiceCreateValidation(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateReview(ctx, CreateReviewCommand{UserID: "u1", ProductID: "p1"}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected missing rating rejection, got %v", err)
	}
	if _, err := f.svc.CreateReview(ctx, CreateReviewCommand{UserID: "u1", ProductID: "p1", Rating: ptr(6)}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected out of range rejection, got %v", err)
	}
	if _, err := f.svc.CreateReview(ctx, CreateReviewCommand{UserID: "u1", ProductID: "missing", Rating: ptr(3)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected missing product, got %v", err)
	}
}

func TestReviewServiceUpdateRules(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	f := newReviewFixture(t, domain.Review{ID: "r1", ProductID: "p1", UserID: "u1", Rating: 3, Comment: "ok", CreatedAt: now.Add(-time.Minute), UpdatedAt: now.Add(-time.Minute)})
	ctx := context.Background()
	author := Actor{UserID: "u1", Role: domain.RoleUser}

	_, err := f.svc.UpdateReview(ctx, UpdateReviewCommand{ReviewID: "r1", Actor: author, Rating: ptr(3), Comment: ptr("ok")})
	expectKind(t, err, ErrBadRequest, "no changes detected")

	_, err = f.svc.UpdateReview(ctx, UpdateReviewCommand{ReviewID: "r1", Actor: author, Rating: ptr(4)})
	expectKind(t, err, ErrBadRequest, "you can only update a review per 5 minutes")

	_, err = f.svc.UpdateReview(ctx, UpdateReviewCommand{ReviewID: "r1", Actor: Actor{UserID: "u2"}, Rating: ptr(1)})
	expectKind(t, err, ErrForbidden, "access is denied")

	f.now = now.Add(5 * time.Minute)
	updated, err := f.svc.UpdateReview(ctx, UpdateReviewCommand{ReviewID: "r1", Actor: author, Rating: ptr(4)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Rating != 4 || updated.Comment != "ok" {
		t.Fatalf("unexpected review %+v", updated)
	}
	if f.products.products["p1"].AvgRating != 4 {
		t.Fatalf("expected aggregate refresh")
	}
}

func TestReviewServiceDeleteRecomputes(t *testing.T) {
	f := newReviewFixture(t,
		domain.Review{ID: "r1", ProductID: "p1", UserID: "u1", Rating: 2},
		domain.Review{ID: "r2", ProductID: "p1", UserID: "u2", Rating: 5},
	)
	ctx := context.Background()

	if err := f.svc.DeleteReview(ctx, DeleteReviewCommand{ReviewID: "r2", Actor: Actor{UserID: "admin", Role: domain.RoleAdmin}}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	product := f.products.products["p1"]
	if product.AvgRating != 2 || product.NumOfComments != 1 {
		t.Fatalf("unexpected aggregate %v/%d", product.AvgRating, product.NumOfComments)
	}
}

func TestAverageRatingRoundsToOneDecimal(t *testing.T) {
	got := averageRating([]domain.Review{{Rating: 5}, {Rating: 4}, {Rating: 4}})
	if got != 4.3 {
		t.Fatalf("expected 4.3, got %v", got)
	}
	if averageRating(nil) != 0 {
		t.Fatalf("expected zero for no reviews")
	}
}
