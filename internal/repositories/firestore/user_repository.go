package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
	pfirestore "github.com/sharashena/07.E-Commerce-server/internal/platform/firestore"
	"github.com/sharashena/07.E-Commerce-server/internal/repositories"
)

const userCollection = "users"

// UserRepository persists accounts in Firestore. Email and username uniqueness is checked
// inside the same transaction that writes the document.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		base:     pfirestore.NewBaseRepository[userDocument](provider, userCollection),
		provider: provider,
	}, nil
}

// Insert stores a new account, failing with a DuplicateError naming the taken fields.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("user id is required")
	}
	doc := fromDomainUser(user)
	return r.writeUnique(ctx, user.ID, doc, true)
}

// Update replaces the stored account, re-checking uniqueness against other accounts.
func (r *UserRepository) Update(ctx context.Context, user domain.User) (domain.User, error) {
	if strings.TrimSpace(user.ID) == "" {
		return domain.User{}, errors.New("user id is required")
	}
	doc := fromDomainUser(user)
	if err := r.writeUnique(ctx, user.ID, doc, false); err != nil {
		return domain.User{}, err
	}
	return toDomainUser(pfirestore.Document[userDocument]{ID: user.ID, Data: doc}), nil
}

func (r *UserRepository) writeUnique(ctx context.Context, id string, doc userDocument, create bool) error {
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	coll, err := r.base.CollectionRef(ctx)
	if err != nil {
		return err
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if !create {
			if _, err := r.base.GetTx(tx, ref); err != nil {
				return err
			}
		}

		var taken []string
		for _, field := range []struct {
			name  string
			path  string
			value string
		}{
			{name: "username", path: "username", value: doc.Username},
			{name: "email", path: "email", value: doc.Email},
		} {
			snaps, err := tx.Documents(coll.Where(field.path, "==", field.value).Limit(2)).GetAll()
			if err != nil {
				return err
			}
			for _, snap := range snaps {
				if snap.Ref.ID != id {
					taken = append(taken, field.name)
					break
				}
			}
		}
		if len(taken) > 0 {
			return &repositories.DuplicateError{Fields: taken}
		}
		if create {
			return tx.Create(ref, doc)
		}
		return tx.Set(ref, doc)
	})
}

// FindByID loads the account by id.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(doc), nil
}

// FindByEmail looks up an account by its lower-cased email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.findBy(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

// FindByUsername looks up an account by exact username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.findBy(ctx, "username", strings.TrimSpace(username))
}

// FindByResetToken looks up an account by hashed reset-password token.
func (r *UserRepository) FindByResetToken(ctx context.Context, tokenHash string) (domain.User, error) {
	return r.findBy(ctx, "resetPasswordToken", tokenHash)
}

// FindByVerifyToken looks up an account by hashed verify-email token.
func (r *UserRepository) FindByVerifyToken(ctx context.Context, tokenHash string) (domain.User, error) {
	return r.findBy(ctx, "verifyEmailToken", tokenHash)
}

func (r *UserRepository) findBy(ctx context.Context, path string, value string) (domain.User, error) {
	if value == "" {
		return domain.User{}, pfirestore.NotFound(userCollection+".query", path+" is empty")
	}
	doc, err := r.base.First(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(path, "==", value)
	})
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(doc), nil
}

// Delete removes the account document.
func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	return r.base.Delete(ctx, userID)
}

// List returns every account, newest first.
func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, toDomainUser(doc))
	}
	return users, nil
}

// Count returns the number of registered accounts.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	return r.base.Count(ctx, nil)
}

// ClearExpiredTokens unsets reset and verify tokens whose expiry is before now.
func (r *UserRepository) ClearExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	cleared := 0
	for _, pair := range [][2]string{
		{"resetPasswordToken", "resetPasswordExpire"},
		{"verifyEmailToken", "verifyEmailExpire"},
	} {
		tokenPath, expirePath := pair[0], pair[1]
		docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where(expirePath, "<", now.UTC())
		})
		if err != nil {
			return cleared, err
		}
		for _, doc := range docs {
			err := r.base.Update(ctx, doc.ID, []firestore.Update{
				{Path: tokenPath, Value: firestore.Delete},
				{Path: expirePath, Value: firestore.Delete},
			})
			if err != nil && !pfirestore.IsNotFound(err) {
				return cleared, err
			}
			cleared++
		}
	}
	return cleared, nil
}

type userDocument struct {
	Username            string        `firestore:"username"`
	Email               string        `firestore:"email"`
	PasswordHash        string        `firestore:"password"`
	Role                string        `firestore:"role"`
	Avatar              imageDocument `firestore:"avatar"`
	IsVerified          bool          `firestore:"isVerified"`
	VerifiedAt          *time.Time    `firestore:"verifiedAt,omitempty"`
	ResetPasswordToken  string        `firestore:"resetPasswordToken,omitempty"`
	ResetPasswordExpire *time.Time    `firestore:"resetPasswordExpire,omitempty"`
	VerifyEmailToken    string        `firestore:"verifyEmailToken,omitempty"`
	VerifyEmailExpire   *time.Time    `firestore:"verifyEmailExpire,omitempty"`
	CreatedAt           time.Time     `firestore:"createdAt"`
	UpdatedAt           time.Time     `firestore:"updatedAt"`
}

type imageDocument struct {
	ID           string `firestore:"id"`
	Src          string `firestore:"src"`
	Width        int    `firestore:"width,omitempty"`
	Height       int    `firestore:"height,omitempty"`
	ResourceType string `firestore:"resourceType,omitempty"`
}

func fromDomainImage(img domain.Image) imageDocument {
	return imageDocument{ID: img.ID, Src: img.Src, Width: img.Width, Height: img.Height, ResourceType: img.ResourceType}
}

func toDomainImage(doc imageDocument) domain.Image {
	return domain.Image{ID: doc.ID, Src: doc.Src, Width: doc.Width, Height: doc.Height, ResourceType: doc.ResourceType}
}

func fromDomainUser(user domain.User) userDocument {
	role := user.Role
	if role == "" {
		role = domain.RoleUser
	}
	return userDocument{
		Username:            strings.TrimSpace(user.Username),
		Email:               strings.ToLower(strings.TrimSpace(user.Email)),
		PasswordHash:        user.PasswordHash,
		Role:                string(role),
		Avatar:              fromDomainImage(user.Avatar),
		IsVerified:          user.IsVerified,
		VerifiedAt:          utcPtr(user.VerifiedAt),
		ResetPasswordToken:  user.ResetPasswordToken,
		ResetPasswordExpire: utcPtr(user.ResetPasswordExpire),
		VerifyEmailToken:    user.VerifyEmailToken,
		VerifyEmailExpire:   utcPtr(user.VerifyEmailExpire),
		CreatedAt:           user.CreatedAt.UTC(),
		UpdatedAt:           user.UpdatedAt.UTC(),
	}
}

func toDomainUser(doc pfirestore.Document[userDocument]) domain.User {
	data := doc.Data
	user := domain.User{
		ID:                  doc.ID,
		Username:            data.Username,
		Email:               data.Email,
		PasswordHash:        data.PasswordHash,
		Role:                domain.Role(data.Role),
		Avatar:              toDomainImage(data.Avatar),
		IsVerified:          data.IsVerified,
		VerifiedAt:          data.VerifiedAt,
		ResetPasswordToken:  data.ResetPasswordToken,
		ResetPasswordExpire: data.ResetPasswordExpire,
		VerifyEmailToken:    data.VerifyEmailToken,
		VerifyEmailExpire:   data.VerifyEmailExpire,
		CreatedAt:           data.CreatedAt,
		UpdatedAt:           data.UpdatedAt,
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = doc.CreateTime
	}
	return user
}
