package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/auth"
	"github.com/sharashena/07.E-Commerce-server/internal/services"
)

func newReviewTestRouter(h *ReviewHandlers) chi.Router {
	r := chi.NewRouter()
	r.Route("/reviews", h.Routes)
	return r
}

func TestReviewHandlersCreateSuccess(t *testing.T) {
	sm := newTestSessions(t)
	var captured services.CreateReviewCommand
	svc := &stubReviewService{
		createFn: func(_ context.Context, cmd services.CreateReviewCommand) (services.Review, error) {
			captured = cmd
			return services.Review{ID: "rev_1"}, nil
		},
	}
	router := newReviewTestRouter(NewReviewHandlers(auth.NewAuthenticator(sm), svc))

	body := `{"product":" prod_1 ","rating":4,"comment":"solid chair"}`
	req := authed(t, sm, httptest.NewRequest(http.MethodPost, "/reviews/", jsonBody(body)), "user-1", domain.RoleUser)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if env := decodeEnvelope(t, rr); !env.Success || env.Message != "review created" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if captured.UserID != "user-1" || captured.ProductID != "prod_1" || captured.Comment != "solid chair" {
		t.Fatalf("unexpected command: %+v", captured)
	}
	if captured.Rating == nil || *captured.Rating != 4 {
		t.Fatalf("expected rating 4, got %v", captured.Rating)
	}
}

func TestReviewHandlersCreateMissingRatingIsNil(t *testing.T) {
	sm := newTestSessions(t)
	var captured services.CreateReviewCommand
	svc := &stubReviewService{
		createFn: func(_ context.Context, cmd services.CreateReviewCommand) (services.Review, error) {
			captured = cmd
			return services.Review{}, &services.Error{
				Kind:    services.ErrBadRequest,
				Message: "please provide rating",
				Fields:  []services.FieldError{{Field: "rating", Message: "please provide rating"}},
			}
		},
	}
	router := newReviewTestRouter(NewReviewHandlers(auth.NewAuthenticator(sm), svc))

	req := authed(t, sm, httptest.NewRequest(http.MethodPost, "/reviews/", jsonBody(`{"product":"prod_1","comment":"x"}`)), "user-1", domain.RoleUser)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if captured.Rating != nil {
		t.Fatalf("expected nil rating, got %d", *captured.Rating)
	}
	env := decodeEnvelope(t, rr)
	if len(env.Errors) != 1 || env.Errors[0].Field != "rating" {
		t.Fatalf("unexpected errors: %+v", env.Errors)
	}
}

func TestReviewHandlersCreateInvalidJSON(t *testing.T) {
	sm := newTestSessions(t)
	router := newReviewTestRouter(NewReviewHandlers(auth.NewAuthenticator(sm), &stubReviewService{}))

	req := authed(t, sm, httptest.NewRequest(http.MethodPost, "/reviews/", jsonBody("not json")), "user-1", domain.RoleUser)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestReviewHandlersCreateUnauthenticated(t *testing.T) {
	sm := newTestSessions(t)
	router := newReviewTestRouter(NewReviewHandlers(auth.NewAuthenticator(sm), &stubReviewService{}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/reviews/", jsonBody(`{}`)))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestReviewHandlersCreateServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"duplicate", &services.Error{Kind: services.ErrBadRequest, Message: "you have already reviewed this product"}, http.StatusBadRequest},
		{"missing product", &services.Error{Kind: services.ErrNotFound, Message: "no product with id: prod_1"}, http.StatusNotFound},
		{"unverified", &services.Error{Kind: services.ErrForbidden, Message: "access is denied"}, http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sm := newTestSessions(t)
			svc := &stubReviewService{
				createFn: func(context.Context, services.CreateReviewCommand) (services.Review, error) {
					return services.Review{}, tc.err
				},
			}
			router := newReviewTestRouter(NewReviewHandlers(auth.NewAuthenticator(sm), svc))

			req := authed(t, sm, httptest.NewRequest(http.MethodPost, "/reviews/", jsonBody(`{"product":"prod_1","rating":5}`)), "user-1", domain.RoleUser)
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
		})
	}
}

func TestReviewHandlersListIsPublic(t *testing.T) {
	sm := newTestSessions(t)
	svc := &stubReviewService{
		listFn: func(context.Context) ([]services.Review, error) {
			return []services.Review{{ID: "rev_1", ProductID: "prod_1", UserID: "user-1", Rating: 5, Comment: "great", CreatedAt: testNow, UpdatedAt: testNow}}, nil
		},
	}
	router := newReviewTestRouter(NewReviewHandlers(auth.NewAuthenticator(sm), svc))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reviews/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp struct {
		TotalReviews int `json:"totalReviews"`
		Data         []struct {
			ID      string `json:"id"`
			Product string `json:"product"`
			User    string `json:"user"`
			Rating  int    `json:"rating"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalReviews != 1 || resp.Data[0].Product != "prod_1" || resp.Data[0].Rating != 5 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestReviewHandlersGetRequiresAdmin(t *testing.T) {
	sm := newTestSessions(t)
	svc := &stubReviewService{
		getFn: func(_ context.Context, id string) (services.Review, error) {
			return services.Review{ID: id}, nil
		},
	}
	router := newReviewTestRouter(NewReviewHandlers(auth.NewAuthenticator(sm), svc))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authed(t, sm, httptest.NewRequest(http.MethodGet, "/reviews/rev_1", nil), "user-1", domain.RoleUser))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for customer, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authed(t, sm, httptest.NewRequest(http.MethodGet, "/reviews/rev_1", nil), "admin-1", domain.RoleAdmin))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for admin, got %d", rr.Code)
	}
}

func TestReviewHandlersUpdateAndDelete(t *testing.T) {
	sm := newTestSessions(t)
	var updated services.UpdateReviewCommand
	var deleted services.DeleteReviewCommand
	svc := &stubReviewService{
		updateFn: func(_ context.Context, cmd services.UpdateReviewCommand) (services.Review, error) {
			updated = cmd
			return services.Review{}, nil
		},
		deleteFn: func(_ context.Context, cmd services.DeleteReviewCommand) error {
			deleted = cmd
			return nil
		},
	}
	router := newReviewTestRouter(NewReviewHandlers(auth.NewAuthenticator(sm), svc))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authed(t, sm, httptest.NewRequest(http.MethodPatch, "/reviews/rev_1", jsonBody(`{"comment":"changed"}`)), "user-1", domain.RoleUser))
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected status 200, got %d", rr.Code)
	}
	if updated.ReviewID != "rev_1" || updated.Actor.UserID != "user-1" || updated.Rating != nil {
		t.Fatalf("update: unexpected command %+v", updated)
	}
	if updated.Comment == nil || *updated.Comment != "changed" {
		t.Fatalf("update: expected comment, got %v", updated.Comment)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authed(t, sm, httptest.NewRequest(http.MethodDelete, "/reviews/rev_1", nil), "admin-1", domain.RoleAdmin))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected status 200, got %d", rr.Code)
	}
	if deleted.ReviewID != "rev_1" || deleted.Actor.Role != domain.RoleAdmin {
		t.Fatalf("delete: unexpected command %+v", deleted)
	}
}

func TestReviewHandlersServiceUnavailable(t *testing.T) {
	router := newReviewTestRouter(NewReviewHandlers(nil, nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reviews/", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
