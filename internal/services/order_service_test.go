package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
	"github.com/sharashena/07.E-Commerce-server/internal/payments"
	"github.com/sharashena/07.E-Commerce-server/internal/repositories"
)

var orderTestNow = time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

type testRepoError struct {
	msg      string
	notFound bool
	conflict bool
}

func (e testRepoError) Error() string       { return e.msg }
func (e testRepoError) IsNotFound() bool    { return e.notFound }
func (e testRepoError) IsConflict() bool    { return e.conflict }
func (e testRepoError) IsUnavailable() bool { return false }

// memoryOrderRepo mimics the conditional status write of the Firestore repository.
type memoryOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	updates   int
	updateErr error
}

func newMemoryOrderRepo(orders ...domain.Order) *memoryOrderRepo {
	repo := &memoryOrderRepo{orders: map[string]domain.Order{}}
	for _, o := range orders {
		repo.orders[o.ID] = o
	}
	return repo
}

func (r *memoryOrderRepo) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return testRepoError{msg: "exists", conflict: true}
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memoryOrderRepo) FindByID(_ context.Context, id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, testRepoError{msg: "missing", notFound: true}
	}
	return order, nil
}

func (r *memoryOrderRepo) FindByOwner(ctx context.Context, id, userID string) (domain.Order, error) {
	order, err := r.FindByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if order.UserID != userID {
		return domain.Order{}, testRepoError{msg: "missing", notFound: true}
	}
	return order, nil
}

func (r *memoryOrderRepo) Update(_ context.Context, order domain.Order, expected domain.OrderStatus) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return domain.Order{}, r.updateErr
	}
	current, ok := r.orders[order.ID]
	if !ok {
		return domain.Order{}, testRepoError{msg: "missing", notFound: true}
	}
	if current.Status != expected {
		return domain.Order{}, testRepoError{msg: "status changed", conflict: true}
	}
	r.updates++
	r.orders[order.ID] = order
	return order, nil
}

func (r *memoryOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryOrderRepo) DeletePending(_ context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for id, o := range r.orders {
		if o.Status == domain.OrderStatusPending && o.CreatedAt.Before(before) {
			delete(r.orders, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeGateway struct {
	mu          sync.Mutex
	createCalls int
	getCalls    int
	refundCalls int
	createReq   payments.CreateIntentRequest
	intents     map[string]payments.Intent
	createErr   error
	refundErr   error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]payments.Intent{}}
}

func (g *fakeGateway) CreateIntent(_ context.Context, req payments.CreateIntentRequest) (payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	g.createReq = req
	if g.createErr != nil {
		return payments.Intent{}, g.createErr
	}
	id := fmt.Sprintf("pi_%d", g.createCalls)
	intent := payments.Intent{ID: id, ClientSecret: id + "_secret", Amount: req.Amount, Currency: req.Currency}
	g.intents[id] = intent
	return intent, nil
}

func (g *fakeGateway) RetrieveIntent(_ context.Context, id string) (payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCalls++
	intent, ok := g.intents[id]
	if !ok {
		return payments.Intent{}, fmt.Errorf("%w: no such intent", payments.ErrGateway)
	}
	return intent, nil
}

func (g *fakeGateway) Refund(_ context.Context, id string, reason string) (payments.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls++
	if g.refundErr != nil {
		return payments.Refund{}, g.refundErr
	}
	return payments.Refund{ID: "re_" + id, IntentID: id, Status: "succeeded"}, nil
}

type recordingPublisher struct {
	events []OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.events = append(p.events, event)
	return p.err
}

type orderFixture struct {
	svc       OrderService
	repo      *memoryOrderRepo
	gateway   *fakeGateway
	publisher *recordingPublisher
	logs      []string
}

func newOrderFixture(t *testing.T, orders ...domain.Order) *orderFixture {
	t.Helper()
	f := &orderFixture{
		repo:      newMemoryOrderRepo(orders...),
		gateway:   newFakeGateway(),
		publisher: &recordingPublisher{},
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      f.repo,
		Payments:    f.gateway,
		Clock:       func() time.Time { return orderTestNow },
		IDGenerator: func() string { return "01TEST" },
		Events:      f.publisher,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			f.logs = append(f.logs, event)
		},
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	f.svc = svc
	return f
}

func pendingOrder(id string, method domain.PaymentMethod) domain.Order {
	return domain.Order{
		ID:            id,
		UserID:        "user-1",
		Items:         []domain.OrderItem{{ProductID: "p1", Name: "Sofa", UnitPrice: 2500, Quantity: 1}},
		TotalAmount:   2500,
		Currency:      "gel",
		Status:        domain.OrderStatusPending,
		PaymentMethod: method,
		CreatedAt:     orderTestNow.Add(-time.Hour),
		UpdatedAt:     orderTestNow.Add(-time.Hour),
	}
}

func withStatus(order domain.Order, status domain.OrderStatus) domain.Order {
	order.Status = status
	return order
}

func owner() Actor { return Actor{UserID: "user-1", Role: domain.RoleUser} }
func admin() Actor { return Actor{UserID: "admin-1", Role: domain.RoleAdmin} }

func expectKind(t *testing.T, err error, kind error, message string) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
	if message == "" {
		return
	}
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if svcErr.Message != message {
		t.Fatalf("expected message %q, got %q", message, svcErr.Message)
	}
}

func TestOrderServiceCreateOrderComputesExactTotal(t *testing.T) {
	f := newOrderFixture(t)

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: "user-1",
		Items: []domain.OrderItem{
			{ProductID: "p1", Name: "Chair", UnitPrice: 1000, Quantity: 2},
			{ProductID: "p2", Name: "Lamp", UnitPrice: 500, Quantity: 1},
		},
		PaymentMethod: domain.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.TotalAmount != 2500 {
		t.Fatalf("expected total 2500, got %d", order.TotalAmount)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending, got %s", order.Status)
	}
	if order.ID != "ord_01TEST" || order.UserID != "user-1" || order.PaymentIntentID != "" {
		t.Fatalf("unexpected order %+v", order)
	}
	if f.gateway.createCalls != 0 {
		t.Fatalf("creation must not call the gateway")
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Type != orderEventCreated {
		t.Fatalf("expected order.created event, got %+v", f.publisher.events)
	}
}

func TestOrderServiceCreateOrderDefaultsToCash(t *testing.T) {
	f := newOrderFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: "user-1",
		Items:  []domain.OrderItem{{ProductID: "p1", Name: "Chair", UnitPrice: 0, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.PaymentMethod != domain.PaymentMethodCash {
		t.Fatalf("expected cash default, got %s", order.PaymentMethod)
	}
}

func TestOrderServiceCreateOrderRejectsInvalidInput(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	cases := map[string]CreateOrderCommand{
		"empty":    {UserID: "user-1"},
		"quantity": {UserID: "user-1", Items: []domain.OrderItem{{ProductID: "p1", Name: "x", UnitPrice: 1, Quantity: 0}}},
		"price":    {UserID: "user-1", Items: []domain.OrderItem{{ProductID: "p1", Name: "x", UnitPrice: -1, Quantity: 1}}},
		"method":   {UserID: "user-1", Items: []domain.OrderItem{{ProductID: "p1", Name: "x", UnitPrice: 1, Quantity: 1}}, PaymentMethod: "crypto"},
		"overflow": {UserID: "user-1", Items: []domain.OrderItem{{ProductID: "p1", Name: "x", UnitPrice: 1 << 62, Quantity: 4}}},
	}
	for name, cmd := range cases {
		if _, err := f.svc.CreateOrder(ctx, cmd); !errors.Is(err, ErrBadRequest) {
			t.Fatalf("%s: expected bad request, got %v", name, err)
		}
	}
	if len(f.repo.orders) != 0 {
		t.Fatalf("invalid orders must not be persisted")
	}
}

func TestOrderServiceCreatePaymentIntentRequiresMethod(t *testing.T) {
	f := newOrderFixture(t, pendingOrder("ord_1", domain.PaymentMethodCard))
	_, err := f.svc.CreatePaymentIntent(context.Background(), PaymentIntentCommand{OrderID: "ord_1", UserID: "user-1"})
	expectKind(t, err, ErrBadRequest, "payment method is required")
}

func TestOrderServiceCreatePaymentIntentHidesForeignOrders(t *testing.T) {
	f := newOrderFixture(t, pendingOrder("ord_1", domain.PaymentMethodCard))
	_, err := f.svc.CreatePaymentIntent(context.Background(), PaymentIntentCommand{
		OrderID: "ord_1", UserID: "intruder", PaymentMethod: domain.PaymentMethodCard,
	})
	expectKind(t, err, ErrNotFound, "resource not found")
	if f.gateway.createCalls != 0 {
		t.Fatalf("gateway must not be called for foreign orders")
	}
}

func TestOrderServiceCreatePaymentIntentCash(t *testing.T) {
	f := newOrderFixture(t, pendingOrder("ord_1", domain.PaymentMethodCash))
	result, err := f.svc.CreatePaymentIntent(context.Background(), PaymentIntentCommand{
		OrderID: "ord_1", UserID: "user-1", PaymentMethod: domain.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("create payment intent: %v", err)
	}
	if !result.CashConfirmed {
		t.Fatalf("expected cash confirmation")
	}
	if f.gateway.createCalls != 0 || f.repo.updates != 0 {
		t.Fatalf("cash path must not call gateway or mutate order")
	}
	if f.repo.orders["ord_1"].Status != domain.OrderStatusPending {
		t.Fatalf("cash confirmation must not mark the order paid")
	}
}

func TestOrderServiceCreatePaymentIntentRejectsNonPending(t *testing.T) {
	f := newOrderFixture(t, withStatus(pendingOrder("ord_1", domain.PaymentMethodCard), domain.OrderStatusPaid))
	_, err := f.svc.CreatePaymentIntent(context.Background(), PaymentIntentCommand{
		OrderID: "ord_1", UserID: "user-1", PaymentMethod: domain.PaymentMethodCard,
	})
	expectKind(t, err, ErrBadRequest, "order is already paid")
}

func TestOrderServiceCreatePaymentIntentFollowsRequestedMethod(t *testing.T) {
	f := newOrderFixture(t, pendingOrder("ord_1", domain.PaymentMethodCard))
	res, err := f.svc.CreatePaymentIntent(context.Background(), PaymentIntentCommand{
		OrderID: "ord_1", UserID: "user-1", PaymentMethod: domain.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.CashConfirmed || res.ClientSecret != "" {
		t.Fatalf("expected cash confirmation, got %+v", res)
	}
	if f.gateway.createCalls != 0 {
		t.Fatalf("cash confirmation must not call the gateway")
	}
	if stored := f.repo.orders["ord_1"]; stored.Status != domain.OrderStatusPending || stored.PaymentIntentID != "" {
		t.Fatalf("cash confirmation must not mutate the order: %+v", stored)
	}
}

func TestOrderServiceCreatePaymentIntentIsIdempotent(t *testing.T) {
	f := newOrderFixture(t, pendingOrder("ord_1", domain.PaymentMethodCard))
	ctx := context.Background()
	cmd := PaymentIntentCommand{OrderID: "ord_1", UserID: "user-1", PaymentMethod: domain.PaymentMethodCard}

	first, err := f.svc.CreatePaymentIntent(ctx, cmd)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if !first.Created {
		t.Fatalf("expected first call to create an intent")
	}
	second, err := f.svc.CreatePaymentIntent(ctx, cmd)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second.Created {
		t.Fatalf("expected second call to reuse the intent")
	}
	if first.ClientSecret != second.ClientSecret {
		t.Fatalf("expected identical client secrets, got %q and %q", first.ClientSecret, second.ClientSecret)
	}
	if f.gateway.createCalls != 1 {
		t.Fatalf("expected exactly one intent creation, got %d", f.gateway.createCalls)
	}
	if got := f.repo.orders["ord_1"].PaymentIntentID; got != "pi_1" {
		t.Fatalf("expected stored intent pi_1, got %q", got)
	}
	req := f.gateway.createReq
	if req.Amount != 2500 || req.Currency != "gel" || req.Metadata["orderId"] != "ord_1" || req.IdempotencyKey != "order-ord_1" {
		t.Fatalf("unexpected create request %+v", req)
	}
}

func TestOrderServiceCreatePaymentIntentReusesExistingIntent(t *testing.T) {
	order := pendingOrder("ord_1", domain.PaymentMethodCard)
	order.PaymentIntentID = "pi_123"
	f := newOrderFixture(t, order)
	f.gateway.intents["pi_123"] = payments.Intent{ID: "pi_123", ClientSecret: "pi_123_secret"}

	result, err := f.svc.CreatePaymentIntent(context.Background(), PaymentIntentCommand{
		OrderID: "ord_1", UserID: "user-1", PaymentMethod: domain.PaymentMethodCard,
	})
	if err != nil {
		t.Fatalf("create payment intent: %v", err)
	}
	if result.ClientSecret != "pi_123_secret" {
		t.Fatalf("expected original client secret, got %q", result.ClientSecret)
	}
	if f.gateway.createCalls != 0 || f.gateway.getCalls != 1 {
		t.Fatalf("expected one retrieve and no create, got create=%d get=%d", f.gateway.createCalls, f.gateway.getCalls)
	}
}

func TestOrderServiceCreatePaymentIntentGatewayFailure(t *testing.T) {
	f := newOrderFixture(t, pendingOrder("ord_1", domain.PaymentMethodCard))
	f.gateway.createErr = fmt.Errorf("%w: boom", payments.ErrGateway)

	_, err := f.svc.CreatePaymentIntent(context.Background(), PaymentIntentCommand{
		OrderID: "ord_1", UserID: "user-1", PaymentMethod: domain.PaymentMethodCard,
	})
	expectKind(t, err, ErrGateway, "")
	if f.repo.orders["ord_1"].PaymentIntentID != "" {
		t.Fatalf("failed creation must not store an intent")
	}
}

func TestOrderServicePayOrder(t *testing.T) {
	f := newOrderFixture(t, pendingOrder("ord_1", domain.PaymentMethodCash))
	ctx := context.Background()

	paid, err := f.svc.PayOrder(ctx, OrderActionCommand{OrderID: "ord_1", Actor: owner()})
	if err != nil {
		t.Fatalf("pay order: %v", err)
	}
	if paid.Status != domain.OrderStatusPaid || paid.PaidAt == nil || !paid.PaidAt.Equal(orderTestNow) {
		t.Fatalf("unexpected paid order %+v", paid)
	}

	_, err = f.svc.PayOrder(ctx, OrderActionCommand{OrderID: "ord_1", Actor: owner()})
	expectKind(t, err, ErrBadRequest, "order is already paid")

	last := f.publisher.events[len(f.publisher.events)-1]
	if last.Type != orderEventPaid || last.PreviousStatus != "pending" {
		t.Fatalf("unexpected event %+v", last)
	}
}

func TestOrderServicePayOrderOwnership(t *testing.T) {
	f := newOrderFixture(t, pendingOrder("ord_1", domain.PaymentMethodCash))
	ctx := context.Background()

	_, err := f.svc.PayOrder(ctx, OrderActionCommand{OrderID: "ord_1", Actor: Actor{UserID: "intruder", Role: domain.RoleUser}})
	expectKind(t, err, ErrNotFound, "")

	if _, err := f.svc.PayOrder(ctx, OrderActionCommand{OrderID: "ord_1", Actor: admin()}); err != nil {
		t.Fatalf("admin should be able to mark any order paid: %v", err)
	}
}

func TestOrderServiceConfirmCardPayment(t *testing.T) {
	order := pendingOrder("ord_1", domain.PaymentMethodCard)
	order.PaymentIntentID = "pi_1"
	f := newOrderFixture(t, order)
	ctx := context.Background()

	if _, err := f.svc.ConfirmCardPayment(ctx, "ord_1", "pi_other"); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected mismatch rejection, got %v", err)
	}

	paid, err := f.svc.ConfirmCardPayment(ctx, "ord_1", "pi_1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if paid.Status != domain.OrderStatusPaid || paid.PaidAt == nil {
		t.Fatalf("unexpected order %+v", paid)
	}

	again, err := f.svc.ConfirmCardPayment(ctx, "ord_1", "pi_1")
	if err != nil {
		t.Fatalf("redelivery should be acknowledged: %v", err)
	}
	if again.Status != domain.OrderStatusPaid || f.repo.updates != 1 {
		t.Fatalf("redelivery must not write again")
	}
}

func TestOrderServiceUpdateOrderStatusTransitionTable(t *testing.T) {
	all := domain.OrderStatuses
	for _, from := range all {
		for _, to := range all {
			f := newOrderFixture(t, withStatus(pendingOrder("ord_1", domain.PaymentMethodCash), from))
			saved, err := f.svc.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ord_1", Status: to})
			allowed := CanTransition(from, to)
			if allowed {
				if err != nil {
					t.Fatalf("%s -> %s: unexpected error %v", from, to, err)
				}
				if saved.Status != to {
					t.Fatalf("%s -> %s: status not applied", from, to)
				}
				continue
			}
			expectKind(t, err, ErrBadRequest, fmt.Sprintf("cannot change order from %s to %s", from, to))
			if f.repo.updates != 0 || f.repo.orders["ord_1"].Status != from {
				t.Fatalf("%s -> %s: rejected transition mutated the order", from, to)
			}
		}
	}
}

func TestOrderServiceUpdateOrderStatusStampsTimestamps(t *testing.T) {
	f := newOrderFixture(t, withStatus(pendingOrder("ord_1", domain.PaymentMethodCash), domain.OrderStatusPaid))
	ctx := context.Background()

	steps := []domain.OrderStatus{domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered}
	var last domain.Order
	for _, status := range steps {
		var err error
		last, err = f.svc.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: "ord_1", Status: status, ActorID: "admin-1"})
		if err != nil {
			t.Fatalf("advance to %s: %v", status, err)
		}
	}
	if last.ProcessingAt == nil || last.ShippedAt == nil || last.DeliveredAt == nil {
		t.Fatalf("expected lifecycle timestamps, got %+v", last)
	}
	if last.CancelledAt != nil {
		t.Fatalf("cancelledAt must stay unset")
	}
}

func TestOrderServiceUpdateOrderStatusRejectsUnknownStatus(t *testing.T) {
	f := newOrderFixture(t, pendingOrder("ord_1", domain.PaymentMethodCash))
	_, err := f.svc.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ord_1", Status: "lost"})
	expectKind(t, err, ErrBadRequest, "lost is not a valid status")
}

func TestOrderServiceUpdateOrderStatusShippedFromPending(t *testing.T) {
	f := newOrderFixture(t, pendingOrder("ord_1", domain.PaymentMethodCash))
	_, err := f.svc.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ord_1", Status: domain.OrderStatusShipped})
	expectKind(t, err, ErrBadRequest, "cannot change order from pending to shipped")
}

func TestOrderServiceConcurrentTransitionConflicts(t *testing.T) {
	f := newOrderFixture(t, pendingOrder("ord_1", domain.PaymentMethodCash))
	ctx := context.Background()

	stale, err := f.repo.FindByID(ctx, "ord_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if _, err := f.svc.PayOrder(ctx, OrderActionCommand{OrderID: "ord_1", Actor: owner()}); err != nil {
		t.Fatalf("pay: %v", err)
	}

	stale.Status = domain.OrderStatusCancelled
	_, err = f.repo.Update(ctx, stale, domain.OrderStatusPending)
	if err == nil {
		t.Fatalf("expected stale write to be rejected")
	}
	expectKind(t, translateRepoError(err, orderNotFoundMsg), ErrConflict, "")
}

func TestOrderServiceCancelCashOrder(t *testing.T) {
	f := newOrderFixture(t, pendingOrder("ord_1", domain.PaymentMethodCash))
	cancelled, err := f.svc.CancelOrder(context.Background(), OrderActionCommand{OrderID: "ord_1", Actor: owner()})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected order %+v", cancelled)
	}
	if f.gateway.refundCalls != 0 {
		t.Fatalf("cash cancellation must not refund, got %d calls", f.gateway.refundCalls)
	}
}

func TestOrderServiceCancelCardOrderRefundsOnce(t *testing.T) {
	order := withStatus(pendingOrder("ord_1", domain.PaymentMethodCard), domain.OrderStatusPaid)
	order.PaymentIntentID = "pi_1"
	f := newOrderFixture(t, order)

	cancelled, err := f.svc.CancelOrder(context.Background(), OrderActionCommand{OrderID: "ord_1", Actor: owner()})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.gateway.refundCalls != 1 {
		t.Fatalf("expected exactly one refund, got %d", f.gateway.refundCalls)
	}
	if cancelled.PaymentIntentID != "" || cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cleared intent and cancelled status, got %+v", cancelled)
	}
	if _, err := f.svc.CancelOrder(context.Background(), OrderActionCommand{OrderID: "ord_1", Actor: owner()}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected second cancel to fail, got %v", err)
	}
	if f.gateway.refundCalls != 1 {
		t.Fatalf("second cancel must not refund again")
	}
}

func TestOrderServiceCancelCardOrderWithoutIntent(t *testing.T) {
	f := newOrderFixture(t, pendingOrder("ord_1", domain.PaymentMethodCard))
	if _, err := f.svc.CancelOrder(context.Background(), OrderActionCommand{OrderID: "ord_1", Actor: owner()}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.gateway.refundCalls != 0 {
		t.Fatalf("no intent means no refund")
	}
}

func TestOrderServiceCancelRefundFailureAborts(t *testing.T) {
	order := withStatus(pendingOrder("ord_1", domain.PaymentMethodCard), domain.OrderStatusPaid)
	order.PaymentIntentID = "pi_1"
	f := newOrderFixture(t, order)
	f.gateway.refundErr = fmt.Errorf("%w: declined", payments.ErrGateway)

	_, err := f.svc.CancelOrder(context.Background(), OrderActionCommand{OrderID: "ord_1", Actor: owner()})
	expectKind(t, err, ErrGateway, "")
	stored := f.repo.orders["ord_1"]
	if stored.Status != domain.OrderStatusPaid || stored.PaymentIntentID != "pi_1" {
		t.Fatalf("order must be unchanged after refund failure, got %+v", stored)
	}
}

func TestOrderServiceCancelLogsPersistFailureAfterRefund(t *testing.T) {
	order := withStatus(pendingOrder("ord_1", domain.PaymentMethodCard), domain.OrderStatusPaid)
	order.PaymentIntentID = "pi_1"
	f := newOrderFixture(t, order)
	f.repo.updateErr = testRepoError{msg: "status changed", conflict: true}

	_, err := f.svc.CancelOrder(context.Background(), OrderActionCommand{OrderID: "ord_1", Actor: owner()})
	expectKind(t, err, ErrConflict, "")

	found := false
	for _, event := range f.logs {
		if event == "orders.cancel.persist_after_refund_failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected persist failure to be logged, got %v", f.logs)
	}
}

func TestOrderServiceCancelBlockedStates(t *testing.T) {
	cases := map[domain.OrderStatus]string{
		domain.OrderStatusCancelled: "order is already cancelled",
		domain.OrderStatusShipped:   "order is on the way and can't be cancelled",
		domain.OrderStatusDelivered: "order is already delivered and can't be cancelled",
	}
	for status, message := range cases {
		f := newOrderFixture(t, withStatus(pendingOrder("ord_1", domain.PaymentMethodCash), status))
		_, err := f.svc.CancelOrder(context.Background(), OrderActionCommand{OrderID: "ord_1", Actor: owner()})
		expectKind(t, err, ErrBadRequest, message)
		if f.repo.orders["ord_1"].Status != status || f.repo.updates != 0 {
			t.Fatalf("%s: order must be unchanged", status)
		}
	}
}

func TestOrderServiceTerminalStatesRejectEverything(t *testing.T) {
	for _, terminal := range []domain.OrderStatus{domain.OrderStatusDelivered, domain.OrderStatusCancelled} {
		f := newOrderFixture(t, withStatus(pendingOrder("ord_1", domain.PaymentMethodCash), terminal))
		ctx := context.Background()
		cmd := OrderActionCommand{OrderID: "ord_1", Actor: owner()}

		if _, err := f.svc.PayOrder(ctx, cmd); err == nil {
			t.Fatalf("%s: pay should fail", terminal)
		}
		if _, err := f.svc.CancelOrder(ctx, cmd); err == nil {
			t.Fatalf("%s: cancel should fail", terminal)
		}
		for _, target := range domain.OrderStatuses {
			if _, err := f.svc.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: "ord_1", Status: target}); err == nil {
				t.Fatalf("%s: update to %s should fail", terminal, target)
			}
		}
		if f.repo.updates != 0 {
			t.Fatalf("%s: terminal order was mutated", terminal)
		}
	}
}

func TestOrderServiceListsAndPurge(t *testing.T) {
	mine := pendingOrder("ord_1", domain.PaymentMethodCash)
	theirs := pendingOrder("ord_2", domain.PaymentMethodCash)
	theirs.UserID = "user-2"
	theirs.CreatedAt = orderTestNow.Add(-10 * time.Minute)
	paid := withStatus(pendingOrder("ord_3", domain.PaymentMethodCash), domain.OrderStatusPaid)
	f := newOrderFixture(t, mine, theirs, paid)
	ctx := context.Background()

	all, err := f.svc.ListOrders(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("list orders: %v (%d)", err, len(all))
	}
	own, err := f.svc.ListUserOrders(ctx, "user-1")
	if err != nil || len(own) != 2 {
		t.Fatalf("list user orders: %v (%d)", err, len(own))
	}

	deleted, err := f.svc.PurgeStalePending(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected only the old pending order purged, got %d", deleted)
	}
	if _, ok := f.repo.orders["ord_2"]; !ok {
		t.Fatalf("recent pending order must survive")
	}
	if _, ok := f.repo.orders["ord_3"]; !ok {
		t.Fatalf("paid order must survive")
	}
}

func TestOrderServicePublishFailureDoesNotFailRequest(t *testing.T) {
	f := newOrderFixture(t, pendingOrder("ord_1", domain.PaymentMethodCash))
	f.publisher.err = errors.New("pubsub down")
	if _, err := f.svc.PayOrder(context.Background(), OrderActionCommand{OrderID: "ord_1", Actor: owner()}); err != nil {
		t.Fatalf("pay should succeed despite publish failure: %v", err)
	}
}
