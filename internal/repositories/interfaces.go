package repositories

import (
	"context"
	"time"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Users() UserRepository
	Products() ProductRepository
	Reviews() ReviewRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists orders. Status transitions are conditional writes: Update only
// succeeds when the stored status still equals expected, otherwise it returns a conflict.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// FindByOwner returns not found when the order exists but belongs to another user.
	FindByOwner(ctx context.Context, orderID string, userID string) (domain.Order, error)
	Update(ctx context.Context, order domain.Order, expected domain.OrderStatus) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	DeletePending(ctx context.Context, createdBefore time.Time) (int, error)
}

// UserRepository persists accounts and their one-time tokens.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	FindByUsername(ctx context.Context, username string) (domain.User, error)
	FindByResetToken(ctx context.Context, tokenHash string) (domain.User, error)
	FindByVerifyToken(ctx context.Context, tokenHash string) (domain.User, error)
	Update(ctx context.Context, user domain.User) (domain.User, error)
	Delete(ctx context.Context, userID string) error
	List(ctx context.Context) ([]domain.User, error)
	Count(ctx context.Context) (int, error)
	ClearExpiredTokens(ctx context.Context, now time.Time) (int, error)
}

// ProductRepository persists the catalog.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	Update(ctx context.Context, product domain.Product) (domain.Product, error)
	Delete(ctx context.Context, productID string) error
	List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	ListByOwner(ctx context.Context, userID string) ([]domain.Product, error)
	UpdateRating(ctx context.Context, productID string, avg float64, count int) error
}

// ReviewRepository persists product reviews. A user holds at most one review per product.
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) error
	FindByID(ctx context.Context, reviewID string) (domain.Review, error)
	Update(ctx context.Context, review domain.Review) (domain.Review, error)
	Delete(ctx context.Context, reviewID string) error
	List(ctx context.Context) ([]domain.Review, error)
	ListByProduct(ctx context.Context, productID string) ([]domain.Review, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Review, error)
	DeleteByProduct(ctx context.Context, productID string) (int, error)
}

// HealthRepository exposes dependency probes used by readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

// OrderListFilter narrows order listings. Empty UserID lists every order.
type OrderListFilter struct {
	UserID string
	Status []domain.OrderStatus
}

// DuplicateError reports unique-field collisions detected on insert or update.
type DuplicateError struct {
	Fields []string
}

func (e *DuplicateError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "duplicate value"
	}
	return "duplicate value for " + e.Fields[0]
}

func (e *DuplicateError) IsNotFound() bool    { return false }
func (e *DuplicateError) IsConflict() bool    { return true }
func (e *DuplicateError) IsUnavailable() bool { return false }
