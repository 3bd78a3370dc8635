package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
	pfirestore "github.com/sharashena/07.E-Commerce-server/internal/platform/firestore"
	"github.com/sharashena/07.E-Commerce-server/internal/repositories"
)

const (
	reviewCollection = "reviews"
	reviewTxAttempts = 3
)

// ReviewRepository persists product reviews in Firestore.
type ReviewRepository struct {
	base     *pfirestore.BaseRepository[reviewDocument]
	provider *pfirestore.Provider
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	return &ReviewRepository{
		base:     pfirestore.NewBaseRepository[reviewDocument](provider, reviewCollection),
		provider: provider,
	}, nil
}

// Insert stores the review unless the user already reviewed the product.
func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) error {
	if strings.TrimSpace(review.ID) == "" {
		return errors.New("review id is required")
	}
	ref, err := r.base.DocumentRef(ctx, review.ID)
	if err != nil {
		return err
	}
	coll, err := r.base.CollectionRef(ctx)
	if err != nil {
		return err
	}
	doc := fromDomainReview(review)
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(coll.
			Where("userId", "==", doc.UserID).
			Where("productId", "==", doc.ProductID).
			Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return &repositories.DuplicateError{Fields: []string{"product"}}
		}
		return tx.Create(ref, doc)
	}, pfirestore.WithTxAttempts(reviewTxAttempts))
}

func (r *ReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	doc, err := r.base.Get(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	return toDomainReview(doc), nil
}

// Update stores the new rating and comment.
func (r *ReviewRepository) Update(ctx context.Context, review domain.Review) (domain.Review, error) {
	err := r.base.Update(ctx, review.ID, []firestore.Update{
		{Path: "rating", Value: review.Rating},
		{Path: "comment", Value: review.Comment},
		{Path: "updatedAt", Value: review.UpdatedAt.UTC()},
	})
	if err != nil {
		return domain.Review{}, err
	}
	return review, nil
}

func (r *ReviewRepository) Delete(ctx context.Context, reviewID string) error {
	return r.base.Delete(ctx, reviewID)
}

// List returns every review, newest first.
func (r *ReviewRepository) List(ctx context.Context) ([]domain.Review, error) {
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
}

func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string) ([]domain.Review, error) {
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", productID)
	})
}

func (r *ReviewRepository) ListByUser(ctx context.Context, userID string) ([]domain.Review, error) {
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID)
	})
}

// DeleteByProduct removes every review attached to the product.
func (r *ReviewRepository) DeleteByProduct(ctx context.Context, productID string) (int, error) {
	return r.base.DeleteWhere(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", productID)
	})
}

func (r *ReviewRepository) list(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.Review, error) {
	docs, err := r.base.Query(ctx, build)
	if err != nil {
		return nil, err
	}
	reviews := make([]domain.Review, 0, len(docs))
	for _, doc := range docs {
		reviews = append(reviews, toDomainReview(doc))
	}
	return reviews, nil
}

type reviewDocument struct {
	ProductID string    `firestore:"productId"`
	UserID    string    `firestore:"userId"`
	Rating    int       `firestore:"rating"`
	Comment   string    `firestore:"comment"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func fromDomainReview(review domain.Review) reviewDocument {
	return reviewDocument{
		ProductID: review.ProductID,
		UserID:    review.UserID,
		Rating:    review.Rating,
		Comment:   review.Comment,
		CreatedAt: review.CreatedAt.UTC(),
		UpdatedAt: review.UpdatedAt.UTC(),
	}
}

func toDomainReview(doc pfirestore.Document[reviewDocument]) domain.Review {
	return domain.Review{
		ID:        doc.ID,
		ProductID: doc.Data.ProductID,
		UserID:    doc.Data.UserID,
		Rating:    doc.Data.Rating,
		Comment:   doc.Data.Comment,
		CreatedAt: doc.Data.CreatedAt,
		UpdatedAt: doc.Data.UpdatedAt,
	}
}
