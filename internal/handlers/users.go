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

// UserHandlers exposes account profile endpoints.
type UserHandlers struct {
	authn    *auth.Authenticator
	users    services.UserService
	sessions SessionIssuer
}

// NewUserHandlers constructs UserHandlers.
func NewUserHandlers(authn *auth.Authenticator, users services.UserService, sessions SessionIssuer) *UserHandlers {
	return &UserHandlers{authn: authn, users: users, sessions: sessions}
}

// Routes registers the /users endpoints. Every route requires a session.
func (h *UserHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.With(h.requireAdmin()).Get("/", h.listUsers)
	r.Get("/current-user", h.currentUser)
	r.Post("/send-verify-email", h.sendVerifyEmail)
	r.Post("/verify-email", h.verifyEmail)
	r.Post("/logout", h.logout)
	r.With(h.requireAdmin()).Get("/{userID}", h.getUser)
	r.Patch("/{userID}", h.updateUser)
	r.Delete("/{userID}", h.deleteUser)
}

func (h *UserHandlers) requireAdmin() func(http.Handler) http.Handler {
	if h.authn == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.authn.RequireAuth(domain.RoleAdmin)
}

func (h *UserHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUnavailable(ctx, w)
		return
	}
	users, err := h.users.ListUsers(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	data := make([]userPayload, 0, len(users))
	for _, u := range users {
		data = append(data, buildUserPayload(u))
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"totalUsers": len(data), "data": data})
}

func (h *UserHandlers) currentUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	h.writeUser(w, r, actor.UserID)
}

func (h *UserHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	h.writeUser(w, r, strings.TrimSpace(chi.URLParam(r, "userID")))
}

func (h *UserHandlers) writeUser(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	if h.users == nil {
		writeUnavailable(ctx, w)
		return
	}
	user, err := h.users.GetUser(ctx, userID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"data": buildUserPayload(user)})
}

func (h *UserHandlers) sendVerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if h.users == nil {
		writeUnavailable(ctx, w)
		return
	}
	if err := h.users.SendVerifyEmail(ctx, actor.UserID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "verification link has been sent to your email")
}

func (h *UserHandlers) verifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUnavailable(ctx, w)
		return
	}
	if err := h.users.VerifyEmail(ctx, r.URL.Query().Get("token")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "email is verified")
}

// updateUser always edits the caller's own account; the path id only selects the resource.
func (h *UserHandlers) updateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if h.users == nil {
		writeUnavailable(ctx, w)
		return
	}
	if err := parseForm(w, r, domain.MaxImageSize+formOverheadBytes); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	avatars, err := readUploads(r, "avatar", 1)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	cmd := services.UpdateUserCommand{
		UserID:         actor.UserID,
		Username:       r.FormValue("username"),
		Email:          r.FormValue("email"),
		RemovedImageID: strings.TrimSpace(r.FormValue("removedImageId")),
	}
	if len(avatars) == 1 {
		cmd.Avatar = &avatars[0]
	}

	result, err := h.users.UpdateUser(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if !result.Changed {
		httpx.WriteMessage(w, http.StatusOK, "no changes detected")
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "user updated successfully")
}

func (h *UserHandlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if h.users == nil {
		writeUnavailable(ctx, w)
		return
	}
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if err := h.users.DeleteUser(ctx, services.DeleteUserCommand{UserID: userID, Actor: actor}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	// An admin removing someone else keeps their own session.
	if userID == actor.UserID && h.sessions != nil {
		h.sessions.ClearCookie(w)
	}
	httpx.WriteMessage(w, http.StatusOK, "user successfully deleted")
}

func (h *UserHandlers) logout(w http.ResponseWriter, _ *http.Request) {
	if h.sessions != nil {
		h.sessions.ClearCookie(w)
	}
	httpx.WriteMessage(w, http.StatusOK, "logged out successfully")
}
