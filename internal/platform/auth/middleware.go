package auth

import (
	"net/http"
	"strings"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/httpx"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/requestctx"
)

const (
	msgUnauthorized = "unauthorized user"
	msgAccessDenied = "access is denied"
)

// TokenParser verifies a session token.
type TokenParser interface {
	Parse(token string) (*Identity, error)
}

// Authenticator wires session verification into HTTP middleware.
type Authenticator struct {
	sessions TokenParser
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(sessions TokenParser) *Authenticator {
	return &Authenticator{sessions: sessions}
}

// RequireAuth verifies the session from the "token" cookie or a Bearer header. With roles, the
// identity must hold one of them; otherwise any signed-in user passes.
func (a *Authenticator) RequireAuth(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := sessionToken(r)
			if token == "" || a == nil || a.sessions == nil {
				httpx.WriteError(ctx, w, httpx.NewError(msgUnauthorized, http.StatusUnauthorized))
				return
			}
			identity, err := a.sessions.Parse(token)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError(msgUnauthorized, http.StatusUnauthorized))
				return
			}
			requestctx.PrincipalFrom(ctx).SetUserID(identity.UserID)
			if !identity.HasRole(roles...) {
				httpx.WriteError(ctx, w, httpx.NewError(msgAccessDenied, http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if v := strings.TrimSpace(cookie.Value); v != "" {
			return v
		}
	}
	token, _ := extractBearerToken(r.Header.Get("Authorization"))
	return token
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
