package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
	"github.com/sharashena/07.E-Commerce-server/internal/repositories"
)

const (
	productNotFoundMsg    = "resource not found"
	productNameMin        = 2
	productNameMax        = 20
	productDescriptionMax = 500
)

var hexColorPattern = regexp.MustCompile(`^#([0-9a-f]{3}|[0-9a-f]{6})$`)

// ProductInput carries editable product fields. Nil fields are left untouched on update and
// take their defaults on create.
type ProductInput struct {
	Name        *string
	Category    *domain.ProductCategory
	Company     *domain.ProductCompany
	Price       *int64
	Description *string
	Colors      []string
	VIP         *bool
	Shipping    *bool
	Stock       *int
}

// CreateProductCommand adds a product owned by UserID.
type CreateProductCommand struct {
	UserID string
	Input  ProductInput
	Images []domain.ImageUpload
}

// UpdateProductCommand edits a product. DeletedImages lists image ids to drop.
type UpdateProductCommand struct {
	ProductID     string
	Actor         Actor
	Input         ProductInput
	DeletedImages []string
	NewImages     []domain.ImageUpload
}

// DeleteProductCommand removes a product with its reviews and images.
type DeleteProductCommand struct {
	ProductID string
	Actor     Actor
}

// ProductServiceDeps bundles collaborators required to construct the product service.
type ProductServiceDeps struct {
	Products    repositories.ProductRepository
	Reviews     repositories.ReviewRepository
	Images      ImageStore
	Sanitizer   func(string) string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type productService struct {
	products repositories.ProductRepository
	reviews  repositories.ReviewRepository
	images   ImageStore
	sanitize func(string) string
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

var _ ProductService = (*productService)(nil)

// NewProductService wires dependencies into a concrete ProductService implementation.
func NewProductService(deps ProductServiceDeps) (ProductService, error) {
	if deps.Products == nil {
		return nil, errors.New("product service: product repository is required")
	}
	if deps.Reviews == nil {
		return nil, errors.New("product service: review repository is required")
	}
	if deps.Images == nil {
		return nil, errors.New("product service: image store is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = trimmed
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &productService{
		products: deps.Products,
		reviews:  deps.Reviews,
		images:   deps.Images,
		sanitize: sanitize,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *productService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	userID := trimmed(cmd.UserID)
	if userID == "" {
		return Product{}, unauthorized("authentication invalid")
	}

	in := s.normalizeInput(cmd.Input)
	var fields []FieldError
	if in.Name == nil {
		fields = append(fields, FieldError{Field: "name", Message: "product name is required"})
	}
	if in.Category == nil {
		fields = append(fields, FieldError{Field: "category", Message: "category is required"})
	}
	if in.Company == nil {
		fields = append(fields, FieldError{Field: "company", Message: "company is required"})
	}
	if in.Stock == nil {
		fields = append(fields, FieldError{Field: "stock", Message: "product stock is required"})
	}
	if len(in.Colors) == 0 {
		fields = append(fields, FieldError{Field: "colors", Message: "choose at least one color"})
	}
	fields = append(fields, validateProductInput(in)...)
	fields = append(fields, validateImageBatch(cmd.Images, 0)...)
	if len(fields) > 0 {
		return Product{}, fieldErrors(ErrBadRequest, fields...)
	}

	now := s.clock()
	product := Product{
		ID:        s.newID(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyProductInput(&product, in)

	uploaded, err := s.uploadAll(ctx, cmd.Images)
	if err != nil {
		return Product{}, err
	}
	product.Images = uploaded
	if len(product.Images) == 0 {
		product.Images = []domain.Image{domain.DefaultProductImage(s.newID())}
	}

	if err := s.products.Insert(ctx, product); err != nil {
		removeStoredImages(ctx, s.images, s.logger, uploaded...)
		return Product{}, translateRepoError(err, productNotFoundMsg)
	}
	s.logger(ctx, "products.created", map[string]any{"productId": product.ID, "userId": userID, "images": len(uploaded)})
	return product, nil
}

func (s *productService) ListProducts(ctx context.Context) ([]Product, error) {
	products, err := s.products.List(ctx, domain.ProductFilter{})
	if err != nil {
		return nil, translateRepoError(err, productNotFoundMsg)
	}
	return products, nil
}

func (s *productService) FilterProducts(ctx context.Context, filter domain.ProductFilter) ([]Product, error) {
	if filter.Sort != "" && !filter.Sort.Valid() {
		return nil, fieldErrors(ErrBadRequest, FieldError{Field: "sort", Message: fmt.Sprintf("%s is not a valid sort option", filter.Sort)})
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && *filter.MinPrice > *filter.MaxPrice {
		return nil, fieldErrors(ErrBadRequest, FieldError{Field: "minPrice", Message: "minPrice can't be greater than maxPrice"})
	}
	filter.Search = s.sanitize(filter.Search)
	products, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, translateRepoError(err, productNotFoundMsg)
	}
	return products, nil
}

func (s *productService) GetProduct(ctx context.Context, productID string) (Product, error) {
	product, err := s.products.FindByID(ctx, trimmed(productID))
	if err != nil {
		return Product{}, translateRepoError(err, productNotFoundMsg)
	}
	return product, nil
}

func (s *productService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	product, err := s.GetProduct(ctx, cmd.ProductID)
	if err != nil {
		return Product{}, err
	}
	if !cmd.Actor.isAdmin() && cmd.Actor.UserID != product.UserID {
		return Product{}, forbidden(msgAccessDenied)
	}

	in := s.normalizeInput(cmd.Input)
	fields := validateProductInput(in)
	if cmd.Input.Colors != nil && len(in.Colors) == 0 {
		fields = append(fields, FieldError{Field: "colors", Message: "choose at least one color"})
	}

	var kept, dropped []domain.Image
	for _, img := range product.Images {
		if slices.Contains(cmd.DeletedImages, img.ID) {
			dropped = append(dropped, img)
			continue
		}
		// Placeholders give way to real uploads.
		if img.Stored() || len(cmd.NewImages) == 0 {
			kept = append(kept, img)
		}
	}
	fields = append(fields, validateImageBatch(cmd.NewImages, len(kept))...)
	if len(fields) > 0 {
		return Product{}, fieldErrors(ErrBadRequest, fields...)
	}

	uploaded, err := s.uploadAll(ctx, cmd.NewImages)
	if err != nil {
		return Product{}, err
	}

	applyProductInput(&product, in)
	product.Images = append(kept, uploaded...)
	if len(product.Images) == 0 {
		product.Images = []domain.Image{domain.DefaultProductImage(s.newID())}
	}
	product.UpdatedAt = s.clock()

	saved, err := s.products.Update(ctx, product)
	if err != nil {
		removeStoredImages(ctx, s.images, s.logger, uploaded...)
		return Product{}, translateRepoError(err, productNotFoundMsg)
	}
	removeStoredImages(ctx, s.images, s.logger, dropped...)

	s.logger(ctx, "products.updated", map[string]any{
		"productId": saved.ID,
		"actorId":   cmd.Actor.UserID,
		"added":     len(uploaded),
		"removed":   len(dropped),
	})
	return saved, nil
}

func (s *productService) DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error {
	product, err := s.GetProduct(ctx, cmd.ProductID)
	if err != nil {
		return err
	}
	if !cmd.Actor.isAdmin() && cmd.Actor.UserID != product.UserID {
		return forbidden(msgAccessDenied)
	}
	if err := deleteProductCascade(ctx, s.products, s.reviews, s.images, s.logger, product); err != nil {
		return err
	}
	s.logger(ctx, "products.deleted", map[string]any{"productId": product.ID, "actorId": cmd.Actor.UserID})
	return nil
}

func (s *productService) uploadAll(ctx context.Context, uploads []domain.ImageUpload) ([]domain.Image, error) {
	images := make([]domain.Image, 0, len(uploads))
	for _, upload := range uploads {
		img, err := s.images.Upload(ctx, domain.ImageFolderProducts, upload)
		if err != nil {
			removeStoredImages(ctx, s.images, s.logger, images...)
			return nil, fmt.Errorf("product service: upload image: %w", err)
		}
		images = append(images, img)
	}
	return images, nil
}

func (s *productService) normalizeInput(in ProductInput) ProductInput {
	if in.Name != nil {
		name := s.sanitize(*in.Name)
		in.Name = &name
	}
	if in.Description != nil {
		desc := s.sanitize(*in.Description)
		in.Description = &desc
	}
	if in.Category != nil {
		category := domain.ProductCategory(strings.ToLower(trimmed(string(*in.Category))))
		in.Category = &category
	}
	if in.Company != nil {
		company := domain.ProductCompany(strings.ToLower(trimmed(string(*in.Company))))
		in.Company = &company
	}
	if in.Colors != nil {
		colors := make([]string, 0, len(in.Colors))
		for _, c := range in.Colors {
			if c = strings.ToLower(trimmed(c)); c != "" {
				colors = append(colors, c)
			}
		}
		in.Colors = colors
	}
	return in
}

func validateProductInput(in ProductInput) []FieldError {
	var fields []FieldError
	if in.Name != nil {
		n := utf8.RuneCountInString(*in.Name)
		switch {
		case n < productNameMin:
			fields = append(fields, FieldError{Field: "name", Message: "product name can't be less than 2 characters"})
		case n > productNameMax:
			fields = append(fields, FieldError{Field: "name", Message: "product name can't be more than 20 characters"})
		}
	}
	if in.Category != nil && !slices.Contains(domain.ProductCategories, *in.Category) {
		fields = append(fields, FieldError{Field: "category", Message: fmt.Sprintf("%s is not a valid category", *in.Category)})
	}
	if in.Company != nil && !slices.Contains(domain.ProductCompanies, *in.Company) {
		fields = append(fields, FieldError{Field: "company", Message: fmt.Sprintf("%s is not a valid company", *in.Company)})
	}
	if in.Price != nil && *in.Price < 0 {
		fields = append(fields, FieldError{Field: "price", Message: "product price can't be less than 0"})
	}
	if in.Description != nil && utf8.RuneCountInString(*in.Description) > productDescriptionMax {
		fields = append(fields, FieldError{Field: "description", Message: "product description can't be more than 500 characters"})
	}
	if in.Stock != nil && *in.Stock < 0 {
		fields = append(fields, FieldError{Field: "stock", Message: "product stock can't be less than 0"})
	}
	for _, c := range in.Colors {
		if !hexColorPattern.MatchString(c) {
			fields = append(fields, FieldError{Field: "colors", Message: "each color must be a valid hex color"})
			break
		}
	}
	return fields
}

func validateImageBatch(uploads []domain.ImageUpload, existing int) []FieldError {
	var fields []FieldError
	if existing+len(uploads) > maxProductImages {
		fields = append(fields, FieldError{Field: "images", Message: "a product can have at most 10 images"})
	}
	for _, upload := range uploads {
		if fe := validateImageUpload("images", upload); fe != nil {
			fields = append(fields, *fe)
			break
		}
	}
	return fields
}

func applyProductInput(p *Product, in ProductInput) {
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	if in.Company != nil {
		p.Company = *in.Company
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Colors != nil {
		p.Colors = in.Colors
	}
	if in.VIP != nil {
		p.VIP = *in.VIP
	}
	if in.Shipping != nil {
		p.Shipping = *in.Shipping
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
}

// deleteProductCascade removes the product's reviews, its stored images and the product itself.
func deleteProductCascade(
	ctx context.Context,
	products repositories.ProductRepository,
	reviews repositories.ReviewRepository,
	images ImageStore,
	logger func(context.Context, string, map[string]any),
	product Product,
) error {
	removed, err := reviews.DeleteByProduct(ctx, product.ID)
	if err != nil {
		return translateRepoError(err, productNotFoundMsg)
	}
	removeStoredImages(ctx, images, logger, product.Images...)
	if err := products.Delete(ctx, product.ID); err != nil && !isRepoNotFound(err) {
		return translateRepoError(err, productNotFoundMsg)
	}
	logger(ctx, "products.cascade.deleted", map[string]any{"productId": product.ID, "reviews": removed})
	return nil
}
