package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
	"github.com/sharashena/07.E-Commerce-server/internal/payments"
	"github.com/sharashena/07.E-Commerce-server/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventPaid          = "order.paid"
	orderEventStatusChanged = "order.status_changed"
	orderEventCancelled     = "order.cancelled"

	orderIDPrefix       = "ord_"
	defaultCurrency     = "gel"
	orderNotFoundMsg    = "resource not found"
	msgOrderAlreadyPaid = "order is already paid"
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusPaid, domain.OrderStatusCancelled},
	domain.OrderStatusPaid:       {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusCancelled:  {},
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[from], to)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	PaymentMethod  string
	TotalAmount    int64
	Currency       string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// Actor identifies the caller of an order operation.
type Actor struct {
	UserID string
	Role   domain.Role
}

func (a Actor) isAdmin() bool { return a.Role == domain.RoleAdmin }

// CreateOrderCommand carries the checkout payload.
type CreateOrderCommand struct {
	UserID        string
	Items         []domain.OrderItem
	PaymentMethod domain.PaymentMethod
}

// PaymentIntentCommand starts or resumes payment for a pending order.
type PaymentIntentCommand struct {
	OrderID       string
	UserID        string
	PaymentMethod domain.PaymentMethod
}

// PaymentIntentResult is either a cash confirmation or a card client secret.
type PaymentIntentResult struct {
	CashConfirmed bool
	ClientSecret  string
	// Created is true when a new intent was issued, false when an existing one was reused.
	Created bool
}

// OrderActionCommand targets one order on behalf of an actor.
type OrderActionCommand struct {
	OrderID string
	Actor   Actor
}

// UpdateOrderStatusCommand moves an order to Status.
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  domain.OrderStatus
	ActorID string
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Payments    payments.Gateway
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
	Meter       metric.Meter
}

type orderService struct {
	orders      repositories.OrderRepository
	gateway     payments.Gateway
	currency    string
	clock       func() time.Time
	newID       func() string
	events      OrderEventPublisher
	logger      func(context.Context, string, map[string]any)
	transitions metric.Int64Counter
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter("github.com/sharashena/07.E-Commerce-server/internal/services")
	}
	transitions, err := meter.Int64Counter("orders.status.transitions",
		metric.WithDescription("Order status transitions by source and target status"))
	if err != nil {
		return nil, fmt.Errorf("order service: create transition counter: %w", err)
	}

	return &orderService{
		orders:   deps.Orders,
		gateway:  deps.Payments,
		currency: currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:       idGen,
		events:      deps.Events,
		logger:      logger,
		transitions: transitions,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	userID := trimmed(cmd.UserID)
	if userID == "" {
		return domain.Order{}, unauthorized("authentication invalid")
	}
	if len(cmd.Items) == 0 {
		return domain.Order{}, fieldErrors(ErrBadRequest, FieldError{Field: "orderItems", Message: "order must have at least one item"})
	}

	method := cmd.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodCash
	}
	if !method.Valid() {
		return domain.Order{}, fieldErrors(ErrBadRequest, FieldError{Field: "paymentMethod", Message: fmt.Sprintf("%s is not a valid payment method", method)})
	}

	items := make([]domain.OrderItem, 0, len(cmd.Items))
	for i, item := range cmd.Items {
		item.ProductID = trimmed(item.ProductID)
		item.Name = trimmed(item.Name)
		switch {
		case item.ProductID == "":
			return domain.Order{}, fieldErrors(ErrBadRequest, FieldError{Field: fmt.Sprintf("orderItems[%d].product", i), Message: "product is required"})
		case item.Name == "":
			return domain.Order{}, fieldErrors(ErrBadRequest, FieldError{Field: fmt.Sprintf("orderItems[%d].name", i), Message: "name is required"})
		case item.Quantity < 1:
			return domain.Order{}, fieldErrors(ErrBadRequest, FieldError{Field: fmt.Sprintf("orderItems[%d].quantity", i), Message: "quantity must be at least 1"})
		case item.UnitPrice < 0:
			return domain.Order{}, fieldErrors(ErrBadRequest, FieldError{Field: fmt.Sprintf("orderItems[%d].price", i), Message: "price must not be negative"})
		}
		items = append(items, item)
	}

	total, err := domain.OrderTotal(items)
	if err != nil {
		return domain.Order{}, fieldErrors(ErrBadRequest, FieldError{Field: "orderItems", Message: "order total is too large"})
	}

	now := s.clock()
	order := domain.Order{
		ID:            orderIDPrefix + s.newID(),
		UserID:        userID,
		Items:         items,
		TotalAmount:   total,
		Currency:      s.currency,
		Status:        domain.OrderStatusPending,
		PaymentMethod: method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.orders.Insert(ctx, order); err != nil {
		return domain.Order{}, translateRepoError(err, orderNotFoundMsg)
	}

	s.logger(ctx, "orders.created", map[string]any{
		"orderId":       order.ID,
		"userId":        userID,
		"totalAmount":   total,
		"paymentMethod": string(method),
	})
	s.publishEvent(ctx, order, orderEventCreated, "", userID)
	return order, nil
}

func (s *orderService) CreatePaymentIntent(ctx context.Context, cmd PaymentIntentCommand) (PaymentIntentResult, error) {
	if cmd.PaymentMethod == "" {
		return PaymentIntentResult{}, badRequest("payment method is required")
	}
	if !cmd.PaymentMethod.Valid() {
		return PaymentIntentResult{}, badRequest("%s is not a valid payment method", cmd.PaymentMethod)
	}

	order, err := s.orders.FindByOwner(ctx, trimmed(cmd.OrderID), trimmed(cmd.UserID))
	if err != nil {
		return PaymentIntentResult{}, translateRepoError(err, orderNotFoundMsg)
	}
	if order.Status != domain.OrderStatusPending {
		return PaymentIntentResult{}, badRequest(msgOrderAlreadyPaid)
	}
	if cmd.PaymentMethod == domain.PaymentMethodCash {
		return PaymentIntentResult{CashConfirmed: true}, nil
	}

	if order.PaymentIntentID != "" {
		intent, err := s.gateway.RetrieveIntent(ctx, order.PaymentIntentID)
		if err != nil {
			return PaymentIntentResult{}, gatewayError(err)
		}
		return PaymentIntentResult{ClientSecret: intent.ClientSecret}, nil
	}

	intent, err := s.gateway.CreateIntent(ctx, payments.CreateIntentRequest{
		Amount:         order.TotalAmount,
		Currency:       order.Currency,
		Metadata:       map[string]string{"orderId": order.ID},
		IdempotencyKey: "order-" + order.ID,
	})
	if err != nil {
		return PaymentIntentResult{}, gatewayError(err)
	}

	order.PaymentIntentID = intent.ID
	order.UpdatedAt = s.clock()
	if _, err := s.orders.Update(ctx, order, domain.OrderStatusPending); err != nil {
		return PaymentIntentResult{}, translateRepoError(err, orderNotFoundMsg)
	}

	s.logger(ctx, "orders.payment_intent.created", map[string]any{
		"orderId":       order.ID,
		"paymentIntent": intent.ID,
	})
	return PaymentIntentResult{ClientSecret: intent.ClientSecret, Created: true}, nil
}

func (s *orderService) PayOrder(ctx context.Context, cmd OrderActionCommand) (domain.Order, error) {
	order, err := s.loadForActor(ctx, cmd.OrderID, cmd.Actor)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return domain.Order{}, badRequest(msgOrderAlreadyPaid)
	}
	return s.transition(ctx, order, domain.OrderStatusPaid, cmd.Actor.UserID)
}

func (s *orderService) ConfirmCardPayment(ctx context.Context, orderID string, intentID string) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, trimmed(orderID))
	if err != nil {
		return domain.Order{}, translateRepoError(err, orderNotFoundMsg)
	}
	if order.PaymentMethod != domain.PaymentMethodCard || order.PaymentIntentID == "" || order.PaymentIntentID != trimmed(intentID) {
		return domain.Order{}, badRequest("payment intent does not belong to this order")
	}
	if order.Status != domain.OrderStatusPending {
		// Provider retries after the order already moved on are acknowledged without change.
		return order, nil
	}
	return s.transition(ctx, order, domain.OrderStatusPaid, "payment-provider")
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error) {
	if !cmd.Status.Valid() {
		return domain.Order{}, fieldErrors(ErrBadRequest, FieldError{Field: "status", Message: fmt.Sprintf("%s is not a valid status", cmd.Status)})
	}
	order, err := s.orders.FindByID(ctx, trimmed(cmd.OrderID))
	if err != nil {
		return domain.Order{}, translateRepoError(err, orderNotFoundMsg)
	}
	if !CanTransition(order.Status, cmd.Status) {
		return domain.Order{}, badRequest("cannot change order from %s to %s", order.Status, cmd.Status)
	}
	return s.transition(ctx, order, cmd.Status, cmd.ActorID)
}

func (s *orderService) CancelOrder(ctx context.Context, cmd OrderActionCommand) (domain.Order, error) {
	order, err := s.loadForActor(ctx, cmd.OrderID, cmd.Actor)
	if err != nil {
		return domain.Order{}, err
	}

	switch order.Status {
	case domain.OrderStatusCancelled:
		return domain.Order{}, badRequest("order is already cancelled")
	case domain.OrderStatusShipped:
		return domain.Order{}, badRequest("order is on the way and can't be cancelled")
	case domain.OrderStatusDelivered:
		return domain.Order{}, badRequest("order is already delivered and can't be cancelled")
	}

	refundedIntent := ""
	if order.PaymentMethod == domain.PaymentMethodCard && order.PaymentIntentID != "" {
		refund, err := s.gateway.Refund(ctx, order.PaymentIntentID, payments.RefundReasonRequestedByCustomer)
		if err != nil {
			s.logger(ctx, "orders.cancel.refund_failed", map[string]any{
				"orderId":       order.ID,
				"paymentIntent": order.PaymentIntentID,
				"error":         err.Error(),
			})
			return domain.Order{}, gatewayError(err)
		}
		refundedIntent = order.PaymentIntentID
		s.logger(ctx, "orders.cancel.refunded", map[string]any{
			"orderId":       order.ID,
			"paymentIntent": refundedIntent,
			"refund":        refund.ID,
		})
		order.PaymentIntentID = ""
	}

	saved, err := s.transition(ctx, order, domain.OrderStatusCancelled, cmd.Actor.UserID)
	if err != nil && refundedIntent != "" {
		s.logger(ctx, "orders.cancel.persist_after_refund_failed", map[string]any{
			"severity":      "ERROR",
			"orderId":       order.ID,
			"paymentIntent": refundedIntent,
			"error":         err.Error(),
		})
	}
	return saved, err
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, trimmed(orderID))
	if err != nil {
		return domain.Order{}, translateRepoError(err, orderNotFoundMsg)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context) ([]domain.Order, error) {
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{})
	if err != nil {
		return nil, translateRepoError(err, orderNotFoundMsg)
	}
	return orders, nil
}

func (s *orderService) ListUserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	userID = trimmed(userID)
	if userID == "" {
		return nil, unauthorized("authentication invalid")
	}
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{UserID: userID})
	if err != nil {
		return nil, translateRepoError(err, orderNotFoundMsg)
	}
	return orders, nil
}

func (s *orderService) PurgeStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, badRequest("retention must be positive")
	}
	cutoff := s.clock().Add(-olderThan)
	deleted, err := s.orders.DeletePending(ctx, cutoff)
	if err != nil {
		return deleted, translateRepoError(err, orderNotFoundMsg)
	}
	return deleted, nil
}

// loadForActor re-reads the order. Non-admin callers only see their own orders; a foreign
// order is reported as missing.
func (s *orderService) loadForActor(ctx context.Context, orderID string, actor Actor) (domain.Order, error) {
	orderID = trimmed(orderID)
	var (
		order domain.Order
		err   error
	)
	if actor.isAdmin() {
		order, err = s.orders.FindByID(ctx, orderID)
	} else {
		order, err = s.orders.FindByOwner(ctx, orderID, trimmed(actor.UserID))
	}
	if err != nil {
		return domain.Order{}, translateRepoError(err, orderNotFoundMsg)
	}
	return order, nil
}

// transition stamps the target status timestamp and persists conditionally on the prior status.
func (s *orderService) transition(ctx context.Context, order domain.Order, target domain.OrderStatus, actorID string) (domain.Order, error) {
	previous := order.Status
	now := s.clock()
	stamp := now

	order.Status = target
	order.UpdatedAt = now
	switch target {
	case domain.OrderStatusPaid:
		order.PaidAt = &stamp
	case domain.OrderStatusProcessing:
		order.ProcessingAt = &stamp
	case domain.OrderStatusShipped:
		order.ShippedAt = &stamp
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &stamp
	case domain.OrderStatusCancelled:
		order.CancelledAt = &stamp
	}

	saved, err := s.orders.Update(ctx, order, previous)
	if err != nil {
		return domain.Order{}, translateRepoError(err, orderNotFoundMsg)
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(previous)),
		attribute.String("to", string(target)),
	))
	s.logger(ctx, "orders.status.changed", map[string]any{
		"orderId": saved.ID,
		"from":    string(previous),
		"to":      string(target),
		"actorId": actorID,
	})

	eventType := orderEventStatusChanged
	switch target {
	case domain.OrderStatusPaid:
		eventType = orderEventPaid
	case domain.OrderStatusCancelled:
		eventType = orderEventCancelled
	}
	s.publishEvent(ctx, saved, eventType, previous, actorID)
	return saved, nil
}

func (s *orderService) publishEvent(ctx context.Context, order domain.Order, eventType string, previous domain.OrderStatus, actorID string) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:           eventType,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		PaymentMethod:  string(order.PaymentMethod),
		TotalAmount:    order.TotalAmount,
		Currency:       order.Currency,
		ActorID:        actorID,
		OccurredAt:     s.clock(),
	}
	if order.PaymentIntentID != "" {
		event.Metadata = map[string]any{"paymentIntentId": order.PaymentIntentID}
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "orders.event.publish_failed", map[string]any{
			"type":    event.Type,
			"orderId": event.OrderID,
			"error":   err.Error(),
		})
	}
}
