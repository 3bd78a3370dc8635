package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sharashena/07.E-Commerce-server/internal/payments"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/httpx"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/observability"
	"github.com/sharashena/07.E-Commerce-server/internal/services"
)

const (
	maxWebhookBodySize    = 256 * 1024
	stripeSignatureHeader = "Stripe-Signature"
)

// WebhookVerifier authenticates and decodes a provider delivery.
type WebhookVerifier interface {
	Parse(payload []byte, signature string) (payments.WebhookEvent, error)
}

// PaymentWebhookHandlers receives payment provider callbacks.
type PaymentWebhookHandlers struct {
	verifier WebhookVerifier
	orders   services.OrderService
}

// NewPaymentWebhookHandlers constructs PaymentWebhookHandlers.
func NewPaymentWebhookHandlers(verifier WebhookVerifier, orders services.OrderService) *PaymentWebhookHandlers {
	return &PaymentWebhookHandlers{verifier: verifier, orders: orders}
}

// Routes registers the /webhooks endpoints.
func (h *PaymentWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

// handleStripe acknowledges every authentic delivery it cannot act on so the provider stops
// retrying, and answers 5xx only for transient failures worth a redelivery.
func (h *PaymentWebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)
	if h.verifier == nil || h.orders == nil {
		writeUnavailable(ctx, w)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize+1))
	if err != nil {
		writeBadRequest(ctx, w, "unable to read request body")
		return
	}
	if len(payload) > maxWebhookBodySize {
		httpx.WriteError(ctx, w, httpx.NewError("request body too large", http.StatusRequestEntityTooLarge))
		return
	}

	event, err := h.verifier.Parse(payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			logger.Warn("webhook signature rejected", zap.Error(err))
			writeBadRequest(ctx, w, "invalid webhook signature")
			return
		}
		logger.Warn("webhook payload rejected", zap.Error(err))
		writeBadRequest(ctx, w, "invalid webhook payload")
		return
	}

	fields := []zap.Field{zap.String("eventId", event.ID), zap.String("eventType", event.Type)}
	if event.Type != payments.EventPaymentIntentSucceeded {
		logger.Debug("webhook event ignored", fields...)
		httpx.WriteSuccess(w, http.StatusOK, map[string]any{"received": true})
		return
	}
	fields = append(fields, zap.String("orderId", event.OrderID), zap.String("intentId", event.IntentID))
	if event.OrderID == "" {
		logger.Warn("payment intent without order reference", fields...)
		httpx.WriteSuccess(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	if _, err := h.orders.ConfirmCardPayment(ctx, event.OrderID, event.IntentID); err != nil {
		if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrBadRequest) {
			logger.Warn("payment confirmation skipped", append(fields, zap.Error(err))...)
			httpx.WriteSuccess(w, http.StatusOK, map[string]any{"received": true})
			return
		}
		logger.Error("payment confirmation failed", append(fields, zap.Error(err))...)
		writeServiceError(ctx, w, err)
		return
	}
	logger.Info("card payment confirmed", fields...)
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"received": true})
}
