package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/httpx"
	"github.com/sharashena/07.E-Commerce-server/internal/services"
)

// SessionIssuer signs session tokens and manages the session cookie.
type SessionIssuer interface {
	Issue(user domain.User) (string, time.Time, error)
	SetCookie(w http.ResponseWriter, token string, expires time.Time)
	ClearCookie(w http.ResponseWriter)
}

// AuthHandlers exposes registration, login and account recovery endpoints.
type AuthHandlers struct {
	auth     services.AuthService
	sessions SessionIssuer
}

// NewAuthHandlers constructs AuthHandlers.
func NewAuthHandlers(authService services.AuthService, sessions SessionIssuer) *AuthHandlers {
	return &AuthHandlers{auth: authService, sessions: sessions}
}

// Routes registers the /auth endpoints.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/forgot-email", h.forgotEmail)
	r.Post("/forgot-password", h.forgotPassword)
	r.Patch("/reset-password", h.resetPassword)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotEmailRequest struct {
	Username string `json:"username"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil {
		writeUnavailable(ctx, w)
		return
	}
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := h.auth.Register(ctx, services.RegisterCommand{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, "user created")
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil || h.sessions == nil {
		writeUnavailable(ctx, w)
		return
	}
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := h.auth.Login(ctx, services.LoginCommand{Email: req.Email, Password: req.Password})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	token, expires, err := h.sessions.Issue(user)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.sessions.SetCookie(w, token, expires)
	httpx.WriteMessage(w, http.StatusOK, fmt.Sprintf("Hi, %s", user.Username))
}

func (h *AuthHandlers) forgotEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil {
		writeUnavailable(ctx, w)
		return
	}
	var req forgotEmailRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.auth.ForgotEmail(ctx, req.Username); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "if username exists, link will be send to the email")
}

func (h *AuthHandlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil {
		writeUnavailable(ctx, w)
		return
	}
	var req forgotPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.auth.ForgotPassword(ctx, req.Email); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "if email exists, link will be send to the email")
}

func (h *AuthHandlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil {
		writeUnavailable(ctx, w)
		return
	}
	var req resetPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.auth.ResetPassword(ctx, services.ResetPasswordCommand{
		Token:           r.URL.Query().Get("token"),
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "password successfully changed")
}
