package services

import (
	"context"
	"time"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order        = domain.Order
	User         = domain.User
	Product      = domain.Product
	Review       = domain.Review
	HealthReport = domain.HealthReport
)

// OrderService drives the order lifecycle: creation, payment, status transitions and
// cancellation with refund. Every mutation re-reads the order and writes conditionally on
// the status it observed.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	CreatePaymentIntent(ctx context.Context, cmd PaymentIntentCommand) (PaymentIntentResult, error)
	PayOrder(ctx context.Context, cmd OrderActionCommand) (Order, error)
	// ConfirmCardPayment applies a provider-reported settlement to a pending card order.
	ConfirmCardPayment(ctx context.Context, orderID string, intentID string) (Order, error)
	UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	CancelOrder(ctx context.Context, cmd OrderActionCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	ListUserOrders(ctx context.Context, userID string) ([]Order, error)
	PurgeStalePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// AuthService handles account registration, credential checks and recovery flows.
type AuthService interface {
	Register(ctx context.Context, cmd RegisterCommand) (User, error)
	Login(ctx context.Context, cmd LoginCommand) (User, error)
	ForgotEmail(ctx context.Context, username string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, cmd ResetPasswordCommand) error
}

// UserService manages account profiles, email verification and account removal.
type UserService interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, userID string) (User, error)
	SendVerifyEmail(ctx context.Context, userID string) error
	VerifyEmail(ctx context.Context, token string) error
	UpdateUser(ctx context.Context, cmd UpdateUserCommand) (UpdateUserResult, error)
	DeleteUser(ctx context.Context, cmd DeleteUserCommand) error
}

// ProductService manages the catalog and product images.
type ProductService interface {
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	FilterProducts(ctx context.Context, filter domain.ProductFilter) ([]Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error
}

// ReviewService manages product reviews and keeps product rating aggregates current.
type ReviewService interface {
	CreateReview(ctx context.Context, cmd CreateReviewCommand) (Review, error)
	ListReviews(ctx context.Context) ([]Review, error)
	GetReview(ctx context.Context, reviewID string) (Review, error)
	UpdateReview(ctx context.Context, cmd UpdateReviewCommand) (Review, error)
	DeleteReview(ctx context.Context, cmd DeleteReviewCommand) error
}

// CleanupService runs the periodic housekeeping sweep.
type CleanupService interface {
	Run(ctx context.Context) (CleanupReport, error)
}

// SystemService exposes operational metadata such as dependency health.
type SystemService interface {
	HealthReport(ctx context.Context) (HealthReport, error)
}

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns nil when password matches hash.
	Compare(hash string, password string) error
}

// Mailer delivers transactional email.
type Mailer interface {
	Send(ctx context.Context, to string, subject string, html string) error
}

// ImageStore persists uploaded images in an object store.
type ImageStore interface {
	Upload(ctx context.Context, folder string, upload domain.ImageUpload) (domain.Image, error)
	Delete(ctx context.Context, imageID string) error
}
