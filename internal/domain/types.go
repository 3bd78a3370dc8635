package domain

import (
	"strings"
	"time"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending is the initial state; the order awaits payment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid indicates payment was confirmed.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusProcessing indicates the order is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered is terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every known status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid reports whether the status is one of the known lifecycle states.
func (s OrderStatus) Valid() bool {
	for _, candidate := range OrderStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// PaymentMethod captures how the customer settles an order.
type PaymentMethod string

const (
	// PaymentMethodCash settles on delivery.
	PaymentMethodCash PaymentMethod = "cash"
	// PaymentMethodCard settles through the payment gateway.
	PaymentMethodCard PaymentMethod = "card"
)

// Valid reports whether the method is supported.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCash || m == PaymentMethodCard
}

// Order is a customer's purchase record.
type Order struct {
	ID              string
	UserID          string
	Items           []OrderItem
	TotalAmount     int64
	Currency        string
	Status          OrderStatus
	PaymentMethod   PaymentMethod
	PaymentIntentID string
	PaidAt          *time.Time
	ProcessingAt    *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is an immutable line item. UnitPrice is expressed in minor currency units.
type OrderItem struct {
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int
	Image     string
}

// Role names a capability set attached to a user account.
type Role string

const (
	// RoleUser is the default customer role.
	RoleUser Role = "user"
	// RoleAdmin may manage every resource.
	RoleAdmin Role = "admin"
)

// Valid reports whether the role is one this service issues.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Image references an object stored in the image host.
type Image struct {
	ID           string
	Src          string
	Width        int
	Height       int
	ResourceType string
}

// Stored reports whether the image lives in the object store, as opposed to a bundled placeholder.
func (i Image) Stored() bool {
	return i.ID != "" && (strings.HasPrefix(i.ID, ImageFolderProducts+"/") || strings.HasPrefix(i.ID, ImageFolderAvatars+"/"))
}

const (
	// ImageFolderProducts holds product gallery uploads.
	ImageFolderProducts = "images"
	// ImageFolderAvatars holds user avatars.
	ImageFolderAvatars = "avatars"

	defaultProductImageSrc = "/public/assets/default.jpg"
	defaultAvatarSrc       = "/public/assets/default-avatar.jpg"
)

// ImageUpload is a client-supplied image file awaiting storage.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// MaxImageSize caps a single uploaded image.
const MaxImageSize = 5 << 20

// DefaultProductImage returns the placeholder used when a product has no uploaded images.
func DefaultProductImage(id string) Image {
	return Image{ID: id, Src: defaultProductImageSrc, Width: 400, Height: 200, ResourceType: "image"}
}

// DefaultAvatar returns the placeholder avatar assigned to new accounts.
func DefaultAvatar(id string) Image {
	return Image{ID: id, Src: defaultAvatarSrc, ResourceType: "image"}
}

// User is an account able to authenticate against the API.
type User struct {
	ID                  string
	Username            string
	Email               string
	PasswordHash        string
	Role                Role
	Avatar              Image
	IsVerified          bool
	VerifiedAt          *time.Time
	ResetPasswordToken  string
	ResetPasswordExpire *time.Time
	VerifyEmailToken    string
	VerifyEmailExpire   *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ProductCategory enumerates the catalog sections.
type ProductCategory string

// ProductCategories lists accepted categories.
var ProductCategories = []ProductCategory{"living room", "kitchen", "office", "kids", "dining", "bedroom"}

// ProductCompany enumerates the supported manufacturers.
type ProductCompany string

// ProductCompanies lists accepted companies.
var ProductCompanies = []ProductCompany{"ikea", "marcos", "liddy", "caressa"}

// Product is a catalog entry. Price is expressed in minor currency units.
type Product struct {
	ID            string
	Name          string
	Category      ProductCategory
	Company       ProductCompany
	Price         int64
	Description   string
	Colors        []string
	Images        []Image
	VIP           bool
	Shipping      bool
	Stock         int
	AvgRating     float64
	NumOfComments int
	UserID        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Review is a single customer rating of a product.
type Review struct {
	ID        string
	ProductID string
	UserID    string
	Rating    int
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductSort names the supported catalog orderings.
type ProductSort string

const (
	ProductSortNameAsc       ProductSort = "name"
	ProductSortNameDesc      ProductSort = "-name"
	ProductSortPriceAsc      ProductSort = "price"
	ProductSortPriceDesc     ProductSort = "-price"
	ProductSortCreatedAtAsc  ProductSort = "createdAt"
	ProductSortCreatedAtDesc ProductSort = "-createdAt"
)

// ProductFilter narrows catalog listings. Nil pointers mean "no constraint".
type ProductFilter struct {
	Search   string
	Category ProductCategory
	Company  ProductCompany
	MinPrice *int64
	MaxPrice *int64
	Colors   []string
	VIP      *bool
	Shipping *bool
	Sort     ProductSort
}

// HealthStatus values reported by readiness probes.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// DependencyHealth describes the outcome of a single dependency probe.
type DependencyHealth struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency probes for the readiness endpoint.
type HealthReport struct {
	Status      string
	Checks      map[string]DependencyHealth
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
