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

const (
	orderCollection = "orders"
	orderTxTimeout  = 10 * time.Second
)

// OrderRepository persists orders in Firestore. Every update is a transaction guarded by the
// status the caller observed.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base:     pfirestore.NewBaseRepository[orderDocument](provider, orderCollection),
		provider: provider,
	}, nil
}

// Insert stores a new order. The id must not exist yet.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}
	return r.base.Create(ctx, order.ID, fromDomainOrder(order))
}

// FindByID loads the order regardless of owner.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc), nil
}

// FindByOwner loads the order only when it belongs to userID.
func (r *OrderRepository) FindByOwner(ctx context.Context, orderID string, userID string) (domain.Order, error) {
	order, err := r.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.UserID != userID {
		return domain.Order{}, pfirestore.NotFound(orderCollection+".get", "order not found for owner")
	}
	return order, nil
}

// Update replaces the mutable order fields when the stored status still equals expected.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expected domain.OrderStatus) (domain.Order, error) {
	ref, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}

	var saved domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := r.base.GetTx(tx, ref)
		if err != nil {
			return err
		}
		if domain.OrderStatus(current.Data.Status) != expected {
			return pfirestore.Conflict(orderCollection+".update", "order status changed from "+string(expected)+" to "+current.Data.Status)
		}

		doc := fromDomainOrder(order)
		// Owner, items and totals are fixed at creation.
		doc.UserID = current.Data.UserID
		doc.Items = current.Data.Items
		doc.TotalAmount = current.Data.TotalAmount
		doc.Currency = current.Data.Currency
		doc.PaymentMethod = current.Data.PaymentMethod
		doc.CreatedAt = current.Data.CreatedAt
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		saved = toDomainOrder(pfirestore.Document[orderDocument]{ID: order.ID, Data: doc})
		return nil
	}, pfirestore.WithTxTimeout(orderTxTimeout))
	if err != nil {
		return domain.Order{}, err
	}
	return saved, nil
}

// List returns orders newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, status := range filter.Status {
				statuses = append(statuses, string(status))
			}
			q = q.Where("status", "in", statuses)
		}
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, toDomainOrder(doc))
	}
	return orders, nil
}

// DeletePending removes pending orders created before the cutoff.
func (r *OrderRepository) DeletePending(ctx context.Context, createdBefore time.Time) (int, error) {
	return r.base.DeleteWhere(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(domain.OrderStatusPending)).
			Where("createdAt", "<", createdBefore.UTC())
	})
}

type orderDocument struct {
	UserID          string              `firestore:"userId"`
	Items           []orderItemDocument `firestore:"items"`
	TotalAmount     int64               `firestore:"totalAmount"`
	Currency        string              `firestore:"currency"`
	Status          string              `firestore:"status"`
	PaymentMethod   string              `firestore:"paymentMethod"`
	PaymentIntentID string              `firestore:"paymentIntentId,omitempty"`
	PaidAt          *time.Time          `firestore:"paidAt,omitempty"`
	ProcessingAt    *time.Time          `firestore:"processingAt,omitempty"`
	ShippedAt       *time.Time          `firestore:"shippedAt,omitempty"`
	DeliveredAt     *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt     *time.Time          `firestore:"cancelledAt,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"quantity"`
	Image     string `firestore:"image,omitempty"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Image:     item.Image,
		})
	}
	return orderDocument{
		UserID:          order.UserID,
		Items:           items,
		TotalAmount:     order.TotalAmount,
		Currency:        order.Currency,
		Status:          string(order.Status),
		PaymentMethod:   string(order.PaymentMethod),
		PaymentIntentID: order.PaymentIntentID,
		PaidAt:          utcPtr(order.PaidAt),
		ProcessingAt:    utcPtr(order.ProcessingAt),
		ShippedAt:       utcPtr(order.ShippedAt),
		DeliveredAt:     utcPtr(order.DeliveredAt),
		CancelledAt:     utcPtr(order.CancelledAt),
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
	}
}

func toDomainOrder(doc pfirestore.Document[orderDocument]) domain.Order {
	data := doc.Data
	items := make([]domain.OrderItem, 0, len(data.Items))
	for _, item := range data.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Image:     item.Image,
		})
	}
	order := domain.Order{
		ID:              doc.ID,
		UserID:          data.UserID,
		Items:           items,
		TotalAmount:     data.TotalAmount,
		Currency:        data.Currency,
		Status:          domain.OrderStatus(data.Status),
		PaymentMethod:   domain.PaymentMethod(data.PaymentMethod),
		PaymentIntentID: data.PaymentIntentID,
		PaidAt:          data.PaidAt,
		ProcessingAt:    data.ProcessingAt,
		ShippedAt:       data.ShippedAt,
		DeliveredAt:     data.DeliveredAt,
		CancelledAt:     data.CancelledAt,
		CreatedAt:       data.CreatedAt,
		UpdatedAt:       data.UpdatedAt,
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = doc.CreateTime
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = doc.UpdateTime
	}
	return order
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := t.UTC()
	return &value
}
