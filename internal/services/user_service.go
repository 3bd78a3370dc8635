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

const msgAccessDenied = "access is denied"

// UpdateUserCommand edits the caller's own account. Empty strings leave fields unchanged.
type UpdateUserCommand struct {
	UserID         string
	Username       string
	Email          string
	RemovedImageID string
	Avatar         *domain.ImageUpload
}

// UpdateUserResult reports whether anything was written.
type UpdateUserResult struct {
	User    User
	Changed bool
}

// DeleteUserCommand removes an account and everything it owns.
type DeleteUserCommand struct {
	UserID string
	Actor  Actor
}

// UserServiceDeps bundles collaborators required to construct the user service.
type UserServiceDeps struct {
	Users       repositories.UserRepository
	Products    repositories.ProductRepository
	Reviews     repositories.ReviewRepository
	Images      ImageStore
	Mailer      Mailer
	Sanitizer   func(string) string
	FrontendURL string
	TokenTTL    time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Tokens      func() (string, error)
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users       repositories.UserRepository
	products    repositories.ProductRepository
	reviews     repositories.ReviewRepository
	images      ImageStore
	mailer      Mailer
	sanitize    func(string) string
	frontendURL string
	tokenTTL    time.Duration
	clock       func() time.Time
	newID       func() string
	newToken    func() (string, error)
	logger      func(context.Context, string, map[string]any)
}

var _ UserService = (*userService)(nil)

// NewUserService wires dependencies into a concrete UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("user service: product repository is required")
	}
	if deps.Reviews == nil {
		return nil, errors.New("user service: review repository is required")
	}
	if deps.Images == nil {
		return nil, errors.New("user service: image store is required")
	}
	if deps.Mailer == nil {
		return nil, errors.New("user service: mailer is required")
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

	return &userService{
		users:       deps.Users,
		products:    deps.Products,
		reviews:     deps.Reviews,
		images:      deps.Images,
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

func (s *userService) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, translateRepoError(err, userNotFoundMsg)
	}
	return users, nil
}

func (s *userService) GetUser(ctx context.Context, userID string) (User, error) {
	user, err := s.users.FindByID(ctx, trimmed(userID))
	if err != nil {
		return User{}, translateRepoError(err, userNotFoundMsg)
	}
	return user, nil
}

func (s *userService) SendVerifyEmail(ctx context.Context, userID string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	token, err := s.newToken()
	if err != nil {
		return err
	}
	now := s.clock()
	expires := now.Add(s.tokenTTL)
	user.VerifyEmailToken = hashToken(token)
	user.VerifyEmailExpire = &expires
	user.UpdatedAt = now
	if _, err := s.users.Update(ctx, user); err != nil {
		return translateRepoError(err, userNotFoundMsg)
	}

	link := frontendLink(s.frontendURL, "/verify-email", token)
	if err := s.mailer.Send(ctx, user.Email, subjectVerifyEmail, verifyEmailBody(link)); err != nil {
		return fmt.Errorf("user service: send verify email: %w", err)
	}
	s.logger(ctx, "users.verify_email.sent", map[string]any{"userId": user.ID})
	return nil
}

func (s *userService) VerifyEmail(ctx context.Context, token string) error {
	token = trimmed(token)
	if token == "" {
		return notFound(msgTokenMissing)
	}

	user, err := s.users.FindByVerifyToken(ctx, hashToken(token))
	if err != nil {
		return translateRepoError(err, msgTokenInvalid)
	}
	now := s.clock()
	if user.VerifyEmailExpire == nil || user.VerifyEmailExpire.Before(now) {
		return notFound(msgTokenInvalid)
	}

	user.IsVerified = true
	user.VerifiedAt = &now
	user.VerifyEmailToken = ""
	user.VerifyEmailExpire = nil
	user.UpdatedAt = now
	if _, err := s.users.Update(ctx, user); err != nil {
		return translateRepoError(err, userNotFoundMsg)
	}
	s.logger(ctx, "users.email.verified", map[string]any{"userId": user.ID})
	return nil
}

func (s *userService) UpdateUser(ctx context.Context, cmd UpdateUserCommand) (UpdateUserResult, error) {
	username := s.sanitize(cmd.Username)
	email := normalizeEmail(cmd.Email)

	var fields []FieldError
	if username != "" {
		fields = append(fields, collect(validateUsername(username))...)
	}
	if email != "" {
		fields = append(fields, collect(validateEmail(email))...)
	}
	if cmd.Avatar != nil {
		fields = append(fields, collect(validateImageUpload("avatar", *cmd.Avatar))...)
	}
	if len(fields) > 0 {
		return UpdateUserResult{}, fieldErrors(ErrBadRequest, fields...)
	}

	user, err := s.GetUser(ctx, cmd.UserID)
	if err != nil {
		return UpdateUserResult{}, err
	}

	changed := false
	if username != "" && username != user.Username {
		user.Username = username
		changed = true
	}
	if email != "" && email != user.Email {
		user.Email = email
		user.IsVerified = false
		user.VerifiedAt = nil
		changed = true
	}

	var staleAvatar *domain.Image
	if cmd.Avatar != nil {
		uploaded, err := s.images.Upload(ctx, domain.ImageFolderAvatars, *cmd.Avatar)
		if err != nil {
			return UpdateUserResult{}, fmt.Errorf("user service: upload avatar: %w", err)
		}
		previous := user.Avatar
		staleAvatar = &previous
		user.Avatar = uploaded
		changed = true
	}
	if removed := trimmed(cmd.RemovedImageID); removed != "" && removed == user.Avatar.ID {
		previous := user.Avatar
		staleAvatar = &previous
		user.Avatar = domain.DefaultAvatar(s.newID())
		changed = true
	}

	if !changed {
		return UpdateUserResult{User: user}, nil
	}

	user.UpdatedAt = s.clock()
	saved, err := s.users.Update(ctx, user)
	if err != nil {
		if cmd.Avatar != nil {
			removeStoredImages(ctx, s.images, s.logger, user.Avatar)
		}
		return UpdateUserResult{}, translateRepoError(err, userNotFoundMsg)
	}
	if staleAvatar != nil {
		removeStoredImages(ctx, s.images, s.logger, *staleAvatar)
	}

	s.logger(ctx, "users.updated", map[string]any{"userId": saved.ID})
	return UpdateUserResult{User: saved, Changed: true}, nil
}

// DeleteUser removes the account together with the products it owns, the reviews on those
// products, the reviews it wrote and every stored image.
func (s *userService) DeleteUser(ctx context.Context, cmd DeleteUserCommand) error {
	user, err := s.GetUser(ctx, cmd.UserID)
	if err != nil {
		return err
	}
	if !cmd.Actor.isAdmin() && cmd.Actor.UserID != user.ID {
		return forbidden(msgAccessDenied)
	}

	products, err := s.products.ListByOwner(ctx, user.ID)
	if err != nil {
		return translateRepoError(err, userNotFoundMsg)
	}
	for _, product := range products {
		if err := deleteProductCascade(ctx, s.products, s.reviews, s.images, s.logger, product); err != nil {
			return err
		}
	}

	written, err := s.reviews.ListByUser(ctx, user.ID)
	if err != nil {
		return translateRepoError(err, userNotFoundMsg)
	}
	touched := map[string]struct{}{}
	for _, review := range written {
		if err := s.reviews.Delete(ctx, review.ID); err != nil && !isRepoNotFound(err) {
			return translateRepoError(err, userNotFoundMsg)
		}
		touched[review.ProductID] = struct{}{}
	}
	for productID := range touched {
		if err := recomputeProductRating(ctx, s.reviews, s.products, productID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	removeStoredImages(ctx, s.images, s.logger, user.Avatar)

	if err := s.users.Delete(ctx, user.ID); err != nil {
		return translateRepoError(err, userNotFoundMsg)
	}
	s.logger(ctx, "users.deleted", map[string]any{
		"userId":   user.ID,
		"actorId":  cmd.Actor.UserID,
		"products": len(products),
		"reviews":  len(written),
	})
	return nil
}
