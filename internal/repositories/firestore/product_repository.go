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

const productCollection = "products"

// ProductRepository persists the catalog in Firestore. Equality filters run server-side;
// substring search, price ranges, colors and ordering are applied to the result set.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{base: pfirestore.NewBaseRepository[productDocument](provider, productCollection)}, nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product id is required")
	}
	return r.base.Create(ctx, product.ID, fromDomainProduct(product))
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return toDomainProduct(doc), nil
}

// Update replaces the editable fields. Rating aggregates are left to UpdateRating.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	doc := fromDomainProduct(product)
	err := r.base.Update(ctx, product.ID, []firestore.Update{
		{Path: "name", Value: doc.Name},
		{Path: "category", Value: doc.Category},
		{Path: "company", Value: doc.Company},
		{Path: "price", Value: doc.Price},
		{Path: "description", Value: doc.Description},
		{Path: "colors", Value: doc.Colors},
		{Path: "images", Value: doc.Images},
		{Path: "vip", Value: doc.VIP},
		{Path: "shipping", Value: doc.Shipping},
		{Path: "stock", Value: doc.Stock},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
	if err != nil {
		return domain.Product{}, err
	}
	return r.FindByID(ctx, product.ID)
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	return r.base.Delete(ctx, productID)
}

// List returns products matching filter.
func (r *ProductRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Category != "" {
			q = q.Where("category", "==", string(filter.Category))
		}
		if filter.Company != "" {
			q = q.Where("company", "==", string(filter.Company))
		}
		if filter.VIP != nil {
			q = q.Where("vip", "==", *filter.VIP)
		}
		if filter.Shipping != nil {
			q = q.Where("shipping", "==", *filter.Shipping)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, toDomainProduct(doc))
	}
	return filter.Apply(products), nil
}

func (r *ProductRepository) ListByOwner(ctx context.Context, userID string) ([]domain.Product, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID)
	})
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, toDomainProduct(doc))
	}
	return products, nil
}

// UpdateRating stores the recomputed review aggregate.
func (r *ProductRepository) UpdateRating(ctx context.Context, productID string, avg float64, count int) error {
	return r.base.Update(ctx, productID, []firestore.Update{
		{Path: "avgRating", Value: avg},
		{Path: "numOfComments", Value: count},
	})
}

type productDocument struct {
	Name          string          `firestore:"name"`
	Category      string          `firestore:"category"`
	Company       string          `firestore:"company"`
	Price         int64           `firestore:"price"`
	Description   string          `firestore:"description"`
	Colors        []string        `firestore:"colors"`
	Images        []imageDocument `firestore:"images"`
	VIP           bool            `firestore:"vip"`
	Shipping      bool            `firestore:"shipping"`
	Stock         int             `firestore:"stock"`
	AvgRating     float64         `firestore:"avgRating"`
	NumOfComments int             `firestore:"numOfComments"`
	UserID        string          `firestore:"userId"`
	CreatedAt     time.Time       `firestore:"createdAt"`
	UpdatedAt     time.Time       `firestore:"updatedAt"`
}

func fromDomainProduct(p domain.Product) productDocument {
	images := make([]imageDocument, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, fromDomainImage(img))
	}
	colors := append([]string{}, p.Colors...)
	return productDocument{
		Name:          p.Name,
		Category:      string(p.Category),
		Company:       string(p.Company),
		Price:         p.Price,
		Description:   p.Description,
		Colors:        colors,
		Images:        images,
		VIP:           p.VIP,
		Shipping:      p.Shipping,
		Stock:         p.Stock,
		AvgRating:     p.AvgRating,
		NumOfComments: p.NumOfComments,
		UserID:        p.UserID,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
}

func toDomainProduct(doc pfirestore.Document[productDocument]) domain.Product {
	data := doc.Data
	images := make([]domain.Image, 0, len(data.Images))
	for _, img := range data.Images {
		images = append(images, toDomainImage(img))
	}
	return domain.Product{
		ID:            doc.ID,
		Name:          data.Name,
		Category:      domain.ProductCategory(data.Category),
		Company:       domain.ProductCompany(data.Company),
		Price:         data.Price,
		Description:   data.Description,
		Colors:        data.Colors,
		Images:        images,
		VIP:           data.VIP,
		Shipping:      data.Shipping,
		Stock:         data.Stock,
		AvgRating:     data.AvgRating,
		NumOfComments: data.NumOfComments,
		UserID:        data.UserID,
		CreatedAt:     data.CreatedAt,
		UpdatedAt:     data.UpdatedAt,
	}
}
