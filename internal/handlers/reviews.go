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

// ReviewHandlers exposes endpoints for creating and managing product reviews.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
}

// NewReviewHandlers constructs a new ReviewHandlers instance.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService) *ReviewHandlers {
	return &ReviewHandlers{
		authn:   authn,
		reviews: reviews,
	}
}

// Routes registers the /reviews endpoints.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listReviews)
	r.Group(func(protected chi.Router) {
		if h.authn != nil {
			protected.Use(h.authn.RequireAuth())
		}
		protected.Post("/", h.createReview)
		protected.Patch("/{reviewID}", h.updateReview)
		protected.Delete("/{reviewID}", h.deleteReview)
	})
	r.Group(func(admin chi.Router) {
		if h.authn != nil {
			admin.Use(h.authn.RequireAuth(domain.RoleAdmin))
		}
		admin.Get("/{reviewID}", h.getReview)
	})
}

type createReviewRequest struct {
	Product string `json:"product"`
	Rating  *int   `json:"rating"`
	Comment string `json:"comment"`
}

type updateReviewRequest struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

func (h *ReviewHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeUnavailable(ctx, w)
		return
	}
	reviews, err := h.reviews.ListReviews(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	data := make([]reviewPayload, 0, len(reviews))
	for _, review := range reviews {
		data = append(data, buildReviewPayload(review))
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"totalReviews": len(data), "data": data})
}

func (h *ReviewHandlers) getReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeUnavailable(ctx, w)
		return
	}
	review, err := h.reviews.GetReview(ctx, strings.TrimSpace(chi.URLParam(r, "reviewID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"data": buildReviewPayload(review)})
}

func (h *ReviewHandlers) createReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if h.reviews == nil {
		writeUnavailable(ctx, w)
		return
	}
	var req createReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := h.reviews.CreateReview(ctx, services.CreateReviewCommand{
		UserID:    actor.UserID,
		ProductID: strings.TrimSpace(req.Product),
		Rating:    req.Rating,
		Comment:   req.Comment,
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, "review created")
}

func (h *ReviewHandlers) updateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if h.reviews == nil {
		writeUnavailable(ctx, w)
		return
	}
	var req updateReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := h.reviews.UpdateReview(ctx, services.UpdateReviewCommand{
		ReviewID: strings.TrimSpace(chi.URLParam(r, "reviewID")),
		Actor:    actor,
		Rating:   req.Rating,
		Comment:  req.Comment,
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "review updated successfully")
}

func (h *ReviewHandlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if h.reviews == nil {
		writeUnavailable(ctx, w)
		return
	}
	if err := h.reviews.DeleteReview(ctx, services.DeleteReviewCommand{
		ReviewID: strings.TrimSpace(chi.URLParam(r, "reviewID")),
		Actor:    actor,
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "review deleted successfully")
}
