package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// ErrInvalidSignature is returned when a webhook payload fails signature verification.
var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// EventPaymentIntentSucceeded is the provider event that settles a card order.
const EventPaymentIntentSucceeded = "payment_intent.succeeded"

// WebhookEvent is the verified, provider-neutral subset of a webhook delivery.
type WebhookEvent struct {
	ID       string
	Type     string
	IntentID string
	OrderID  string
	Amount   int64
}

// WebhookVerifier authenticates Stripe webhook deliveries with the endpoint secret.
type WebhookVerifier struct {
	secret string
}

// NewWebhookVerifier constructs a verifier. The secret is the endpoint's signing secret.
func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("payments: webhook secret is required")
	}
	return &WebhookVerifier{secret: secret}, nil
}

// Parse verifies the Stripe-Signature header and decodes payment intent events.
// Events of other types are returned with only ID and Type populated.
func (v *WebhookVerifier) Parse(payload []byte, signature string) (WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	result := WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if !strings.HasPrefix(result.Type, "payment_intent.") || event.Data == nil {
		return result, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return WebhookEvent{}, fmt.Errorf("payments: decode payment intent event: %w", err)
	}
	result.IntentID = intent.ID
	result.OrderID = intent.Metadata["orderId"]
	result.Amount = intent.Amount
	return result, nil
}
