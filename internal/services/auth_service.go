package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
	"github.com/sharashena/07.E-Commerce-server/internal/repositories"
)

const (
	defaultTokenTTL     = 15 * time.Minute
	userNotFoundMsg     = "resource not found"
	msgInvalidCreds     = "invalid credentials"
	msgTokenMissing     = "token is missing"
	msgTokenInvalid     = "invalid or expired token"
	msgPasswordMismatch = "passwords doesn't match"
)

// RegisterCommand carries a sign-up request.
type RegisterCommand struct {
	Username string
	Email    string
	Password string
}

// LoginCommand carries credentials.
type LoginCommand struct {
	Email    string
	Password string
}

// ResetPasswordCommand completes the forgot-password flow.
type ResetPasswordCommand struct {
	Token           string
	NewPassword     string
	ConfirmPassword string
}

// AuthServiceDeps bundles collaborators required to construct the auth service.
type AuthServiceDeps struct {
	Users       repositories.UserRepository
	Hasher      PasswordHasher
	Mailer      Mailer
	Sanitizer   func(string) string
	FrontendURL string
	TokenTTL    time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Tokens      func() (string, error)
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type authService struct {
	users       repositories.UserRepository
	hasher      PasswordHasher
	mailer      Mailer
	sanitize    func(string) string
	frontendURL string
	tokenTTL    time.Duration
	clock       func() time.Time
	newID       func() string
	newToken    func() (string, error)
	logger      func(context.Context, string, map[string]any)
}

var _ AuthService = (*authService)(nil)

// NewAuthService wires dependencies into a concrete AuthService implementation.
func NewAuthService(deps AuthServiceDeps) (AuthService, error) {
	if deps.Users == nil {
		return nil, errors.New("auth service: user repository is required")
	}
	if deps.Hasher == nil {
		return nil, errors.New("auth service: password hasher is required")
	}
	if deps.Mailer == nil {
		return nil, errors.New("auth service: mailer is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	tokens := deps.Tokens
	if tokens == nil {
		tokens = newToken
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = trimmed
	}
	ttl := deps.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &authService{
		users:       deps.Users,
		hasher:      deps.Hasher,
		mailer:      deps.Mailer,
		sanitize:    sanitize,
		frontendURL: deps.FrontendURL,
		tokenTTL:    ttl,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		newToken: tokens,
		logger:   logger,
	}, nil
}

func (s *authService) Register(ctx context.Context, cmd RegisterCommand) (User, error) {
	username := s.sanitize(cmd.Username)
	email := normalizeEmail(cmd.Email)
	if fields := collect(validateUsername(username), validateEmail(email), validatePassword("password", cmd.Password)); len(fields) > 0 {
		return User{}, fieldErrors(ErrBadRequest, fields...)
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return User{}, translateRepoError(err, userNotFoundMsg)
	}
	role := domain.RoleUser
	if count == 0 {
		role = domain.RoleAdmin
	}

	hash, err := s.hasher.Hash(cmd.Password)
	if err != nil {
		return User{}, fmt.Errorf("auth service: hash password: %w", err)
	}

	now := s.clock()
	user := User{
		ID:           s.newID(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Avatar:       domain.DefaultAvatar(s.newID()),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Insert(ctx, user); err != nil {
		return User{}, translateRepoError(err, userNotFoundMsg)
	}

	s.logger(ctx, "auth.registered", map[string]any{"userId": user.ID, "role": string(role)})
	return user, nil
}

func (s *authService) Login(ctx context.Context, cmd LoginCommand) (User, error) {
	email := normalizeEmail(cmd.Email)
	if fields := collect(validateEmail(email), validatePassword("password", cmd.Password)); len(fields) > 0 {
		return User{}, fieldErrors(ErrBadRequest, fields...)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if isRepoNotFound(err) {
			return User{}, notFound(msgInvalidCreds)
		}
		return User{}, translateRepoError(err, msgInvalidCreds)
	}
	if err := s.hasher.Compare(user.PasswordHash, cmd.Password); err != nil {
		return User{}, badRequest(msgInvalidCreds)
	}
	return user, nil
}

func (s *authService) ForgotEmail(ctx context.Context, username string) error {
	username = s.sanitize(username)
	if fe := validateUsername(username); fe != nil {
		return fieldErrors(ErrBadRequest, *fe)
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return translateRepoError(err, userNotFoundMsg)
	}

	if err := s.mailer.Send(ctx, user.Email, subjectForgotEmail, forgotEmailBody(user.Email)); err != nil {
		return fmt.Errorf("auth service: send forgot email: %w", err)
	}
	s.logger(ctx, "auth.forgot_email.sent", map[string]any{"userId": user.ID})
	return nil
}

func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if fe := validateEmail(email); fe != nil {
		return fieldErrors(ErrBadRequest, *fe)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return translateRepoError(err, userNotFoundMsg)
	}

	token, err := s.newToken()
	if err != nil {
		return err
	}
	now := s.clock()
	expires := now.Add(s.tokenTTL)
	user.ResetPasswordToken = hashToken(token)
	user.ResetPasswordExpire = &expires
	user.UpdatedAt = now
	if _, err := s.users.Update(ctx, user); err != nil {
		return translateRepoError(err, userNotFoundMsg)
	}

	link := frontendLink(s.frontendURL, "/reset-password", token)
	if err := s.mailer.Send(ctx, user.Email, subjectResetPassword, resetPasswordBody(link)); err != nil {
		return fmt.Errorf("auth service: send reset email: %w", err)
	}
	s.logger(ctx, "auth.reset_password.requested", map[string]any{"userId": user.ID})
	return nil
}

func (s *authService) ResetPassword(ctx context.Context, cmd ResetPasswordCommand) error {
	token := trimmed(cmd.Token)
	if token == "" {
		return notFound(msgTokenMissing)
	}
	if fields := collect(validatePassword("newPassword", cmd.NewPassword), validatePassword("confirmPassword", cmd.ConfirmPassword)); len(fields) > 0 {
		return fieldErrors(ErrBadRequest, fields...)
	}
	if cmd.NewPassword != cmd.ConfirmPassword {
		return badRequest(msgPasswordMismatch)
	}

	user, err := s.users.FindByResetToken(ctx, hashToken(token))
	if err != nil {
		if isRepoNotFound(err) {
			return badRequest(msgTokenInvalid)
		}
		return translateRepoError(err, msgTokenInvalid)
	}
	now := s.clock()
	if user.ResetPasswordExpire == nil || user.ResetPasswordExpire.Before(now) {
		return badRequest(msgTokenInvalid)
	}

	hash, err := s.hasher.Hash(cmd.NewPassword)
	if err != nil {
		return fmt.Errorf("auth service: hash password: %w", err)
	}
	user.PasswordHash = hash
	user.ResetPasswordToken = ""
	user.ResetPasswordExpire = nil
	user.UpdatedAt = now
	if _, err := s.users.Update(ctx, user); err != nil {
		return translateRepoError(err, userNotFoundMsg)
	}

	s.logger(ctx, "auth.password.reset", map[string]any{"userId": user.ID})
	return nil
}
