package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
)

const (
	// SessionCookieName is the httpOnly cookie carrying the session token.
	SessionCookieName  = "token"
	defaultSessionTTL  = 24 * time.Hour
	minimumSecretBytes = 32
)

var (
	// ErrSessionInvalid covers malformed, forged and expired session tokens.
	ErrSessionInvalid = errors.New("auth: session token invalid")
)

// SessionClaims is the JWT payload issued on login.
type SessionClaims struct {
	UserID   string `json:"userID"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// SessionConfig configures token signing and the session cookie.
type SessionConfig struct {
	Secret       string
	TTL          time.Duration
	Issuer       string
	SecureCookie bool
}

// SessionManager issues and verifies HS256 session tokens.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	secure bool
	now    func() time.Time
}

// NewSessionManager validates the signing secret and builds a manager.
func NewSessionManager(cfg SessionConfig, now func() time.Time) (*SessionManager, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if len(secret) < minimumSecretBytes {
		return nil, fmt.Errorf("auth: session secret must be at least %d bytes", minimumSecretBytes)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: strings.TrimSpace(cfg.Issuer),
		secure: cfg.SecureCookie,
		now:    now,
	}, nil
}

// Issue signs a session token for the user and returns it with its expiry.
func (m *SessionManager) Issue(user domain.User) (string, time.Time, error) {
	now := m.now().UTC()
	expires := now.Add(m.ttl)
	claims := SessionClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign session: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies the token signature and expiry and returns the identity it carries. Expiry
// is checked against the manager clock rather than jwt.TimeFunc.
func (m *SessionManager) Parse(token string) (*Identity, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return nil, ErrSessionInvalid
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(m.now()) {
		return nil, ErrSessionInvalid
	}
	if m.issuer != "" && claims.Issuer != m.issuer {
		return nil, ErrSessionInvalid
	}
	role := domain.Role(claims.Role)
	if claims.UserID == "" || !role.Valid() {
		return nil, ErrSessionInvalid
	}
	return &Identity{UserID: claims.UserID, Username: claims.Username, Role: role}, nil
}

// SetCookie writes the session cookie.
func (m *SessionManager) SetCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires the session cookie.
func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
