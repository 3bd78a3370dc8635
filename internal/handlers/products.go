package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/auth"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/httpx"
	"github.com/sharashena/07.E-Commerce-server/internal/services"
)

const maxProductFormBytes = maxProductImages*domain.MaxImageSize + formOverheadBytes

// ProductHandlers exposes the catalog. Reads are public; writes need a session.
type ProductHandlers struct {
	authn    *auth.Authenticator
	products services.ProductService
}

// NewProductHandlers constructs ProductHandlers.
func NewProductHandlers(authn *auth.Authenticator, products services.ProductService) *ProductHandlers {
	return &ProductHandlers{authn: authn, products: products}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/filters", h.filterProducts)
	r.Get("/{productID}", h.getProduct)

	r.Group(func(protected chi.Router) {
		if h.authn != nil {
			protected.Use(h.authn.RequireAuth())
		}
		protected.Post("/", h.createProduct)
		protected.Patch("/{productID}", h.updateProduct)
		protected.Delete("/{productID}", h.deleteProduct)
	})
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.products == nil {
		writeUnavailable(ctx, w)
		return
	}
	products, err := h.products.ListProducts(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	data := make([]productPayload, 0, len(products))
	for _, p := range products {
		data = append(data, buildProductPayload(p, false))
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"totalProducts": len(data), "data": data})
}

func (h *ProductHandlers) filterProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.products == nil {
		writeUnavailable(ctx, w)
		return
	}
	filter, err := parseProductFilter(r)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	products, err := h.products.FilterProducts(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	data := make([]productPayload, 0, len(products))
	for _, p := range products {
		data = append(data, buildProductPayload(p, true))
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"totalProducts": len(data), "data": data})
}

func parseProductFilter(r *http.Request) (domain.ProductFilter, error) {
	if err := r.ParseForm(); err != nil {
		return domain.ProductFilter{}, err
	}
	filter := domain.ProductFilter{
		Search:   strings.TrimSpace(r.Form.Get("name")),
		Category: domain.ProductCategory(strings.ToLower(strings.TrimSpace(r.Form.Get("category")))),
		Company:  domain.ProductCompany(strings.ToLower(strings.TrimSpace(r.Form.Get("company")))),
		Colors:   formList(r, "colors"),
		Sort:     domain.ProductSort(strings.TrimSpace(r.Form.Get("sort"))),
	}
	var err error
	if filter.MinPrice, err = formAmount(r, "minPrice"); err != nil {
		return filter, err
	}
	if filter.MaxPrice, err = formAmount(r, "maxPrice"); err != nil {
		return filter, err
	}
	if filter.VIP, err = formBool(r, "vip"); err != nil {
		return filter, err
	}
	if filter.Shipping, err = formBool(r, "shipping"); err != nil {
		return filter, err
	}
	return filter, nil
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.products == nil {
		writeUnavailable(ctx, w)
		return
	}
	product, err := h.products.GetProduct(ctx, strings.TrimSpace(chi.URLParam(r, "productID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"data": buildProductPayload(product, true)})
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if h.products == nil {
		writeUnavailable(ctx, w)
		return
	}
	input, images, ok := h.readProductForm(w, r)
	if !ok {
		return
	}
	if _, err := h.products.CreateProduct(ctx, services.CreateProductCommand{
		UserID: actor.UserID,
		Input:  input,
		Images: images,
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, "product created")
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if h.products == nil {
		writeUnavailable(ctx, w)
		return
	}
	input, images, ok := h.readProductForm(w, r)
	if !ok {
		return
	}
	if _, err := h.products.UpdateProduct(ctx, services.UpdateProductCommand{
		ProductID:     strings.TrimSpace(chi.URLParam(r, "productID")),
		Actor:         actor,
		Input:         input,
		DeletedImages: formList(r, "deletedImages"),
		NewImages:     images,
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "product updated successfully")
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if h.products == nil {
		writeUnavailable(ctx, w)
		return
	}
	if err := h.products.DeleteProduct(ctx, services.DeleteProductCommand{
		ProductID: strings.TrimSpace(chi.URLParam(r, "productID")),
		Actor:     actor,
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "product deleted successfully")
}

// readProductForm parses the multipart product form. Absent fields stay nil so updates only
// touch what the client sent.
func (h *ProductHandlers) readProductForm(w http.ResponseWriter, r *http.Request) (services.ProductInput, []domain.ImageUpload, bool) {
	ctx := r.Context()
	if err := parseForm(w, r, maxProductFormBytes); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return services.ProductInput{}, nil, false
	}
	images, err := readUploads(r, "images", maxProductImages)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return services.ProductInput{}, nil, false
	}

	in := services.ProductInput{
		Name:        formString(r, "name"),
		Description: formString(r, "description"),
	}
	if v := formString(r, "category"); v != nil {
		category := domain.ProductCategory(*v)
		in.Category = &category
	}
	if v := formString(r, "company"); v != nil {
		company := domain.ProductCompany(*v)
		in.Company = &company
	}
	if _, present := r.Form["colors"]; present {
		in.Colors = formList(r, "colors")
		if in.Colors == nil {
			in.Colors = []string{}
		}
	}

	var fields []httpx.FieldMessage
	if in.Price, err = formAmount(r, "price"); err != nil {
		fields = append(fields, httpx.FieldMessage{Field: "price", Message: err.Error()})
	}
	if in.Stock, err = formInt(r, "stock"); err != nil {
		fields = append(fields, httpx.FieldMessage{Field: "stock", Message: err.Error()})
	}
	if in.VIP, err = formBool(r, "vip"); err != nil {
		fields = append(fields, httpx.FieldMessage{Field: "vip", Message: err.Error()})
	}
	if in.Shipping, err = formBool(r, "shipping"); err != nil {
		fields = append(fields, httpx.FieldMessage{Field: "shipping", Message: err.Error()})
	}
	if len(fields) > 0 {
		httpx.WriteError(ctx, w, httpx.NewError(fields[0].Message, http.StatusBadRequest).WithFields(fields...))
		return services.ProductInput{}, nil, false
	}
	return in, images, true
}
