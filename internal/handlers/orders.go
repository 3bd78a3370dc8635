package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/auth"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/httpx"
	"github.com/sharashena/07.E-Commerce-server/internal/services"
)

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency guards order creation and payment intent creation with the middleware.
// It must run after authentication so keys are scoped to the caller.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	guarded := r.With()
	if h.idempotency != nil {
		guarded = r.With(h.idempotency)
	}
	guarded.Post("/", h.createOrder)
	guarded.Post("/{orderID}/payment-intent", h.createPaymentIntent)
	r.Get("/my", h.listMyOrders)
	r.Post("/{orderID}/pay", h.payOrder)
	r.Post("/{orderID}/cancel", h.cancelOrder)

	r.Group(func(admin chi.Router) {
		if h.authn != nil {
			admin.Use(h.authn.RequireAuth(domain.RoleAdmin))
		}
		admin.Get("/", h.listOrders)
		admin.Get("/{orderID}", h.getOrder)
		admin.Patch("/{orderID}", h.updateOrder)
	})
}

type orderItemRequest struct {
	Product  string      `json:"product"`
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Quantity int         `json:"quantity"`
	Image    string      `json:"image"`
}

type createOrderRequest struct {
	OrderItems    []orderItemRequest `json:"orderItems"`
	PaymentMethod string             `json:"paymentMethod"`
}

type paymentIntentRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

type updateOrderRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if h.orders == nil {
		writeUnavailable(ctx, w)
		return
	}
	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	items := make([]domain.OrderItem, 0, len(req.OrderItems))
	for i, item := range req.OrderItems {
		price, err := domain.ParseAmount(item.Price.String())
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid item price", http.StatusBadRequest).WithFields(httpx.FieldMessage{
				Field:   fmt.Sprintf("orderItems[%d].price", i),
				Message: "price must be a number with at most two decimals",
			}))
			return
		}
		items = append(items, domain.OrderItem{
			ProductID: strings.TrimSpace(item.Product),
			Name:      strings.TrimSpace(item.Name),
			UnitPrice: price,
			Quantity:  item.Quantity,
			Image:     strings.TrimSpace(item.Image),
		})
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		UserID:        actor.UserID,
		Items:         items,
		PaymentMethod: domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusCreated, map[string]any{"message": "order created", "orderId": order.ID})
}

func (h *OrderHandlers) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if h.orders == nil {
		writeUnavailable(ctx, w)
		return
	}
	var req paymentIntentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.orders.CreatePaymentIntent(ctx, services.PaymentIntentCommand{
		OrderID:       strings.TrimSpace(chi.URLParam(r, "orderID")),
		UserID:        actor.UserID,
		PaymentMethod: domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if result.CashConfirmed {
		httpx.WriteMessage(w, http.StatusOK, "order set for cash on delivery")
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	httpx.WriteSuccess(w, status, map[string]any{"clientSecret": result.ClientSecret})
}

func (h *OrderHandlers) payOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		writeUnavailable(r.Context(), w)
		return
	}
	h.orderAction(w, r, h.orders.PayOrder, "thank you for your purchase")
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		writeUnavailable(r.Context(), w)
		return
	}
	h.orderAction(w, r, h.orders.CancelOrder, "order cancelled successfully")
}

type orderActionFunc func(ctx context.Context, cmd services.OrderActionCommand) (services.Order, error)

func (h *OrderHandlers) orderAction(w http.ResponseWriter, r *http.Request, action orderActionFunc, message string) {
	ctx := r.Context()
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if _, err := action(ctx, services.OrderActionCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Actor:   actor,
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, message)
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if h.orders == nil {
		writeUnavailable(ctx, w)
		return
	}
	orders, err := h.orders.ListUserOrders(ctx, actor.UserID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"totalOrders": len(orders), "data": buildOrderList(orders)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w)
		return
	}
	orders, err := h.orders.ListOrders(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"totalOrders": len(orders), "data": buildOrderList(orders)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w)
		return
	}
	order, err := h.orders.GetOrder(ctx, strings.TrimSpace(chi.URLParam(r, "orderID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"data": buildOrderPayload(order)})
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if h.orders == nil {
		writeUnavailable(ctx, w)
		return
	}
	var req updateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := h.orders.UpdateOrderStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Status:  domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		ActorID: actor.UserID,
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "order updated successfully")
}
