package payments

import (
	"context"
	"errors"
)

// ErrGateway marks failures reported by, or while reaching, the payment provider.
var ErrGateway = errors.New("payments: gateway failure")

// RefundReasonRequestedByCustomer is the only refund reason the order workflow issues.
const RefundReasonRequestedByCustomer = "requested_by_customer"

// Intent is the provider-neutral view of a payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	Metadata     map[string]string
}

// CreateIntentRequest describes a new card payment. Amount is in minor currency units.
type CreateIntentRequest struct {
	Amount         int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

// Refund is the provider-neutral result of a refund.
type Refund struct {
	ID       string
	IntentID string
	Status   string
	Amount   int64
}

// Gateway is the payment provider contract used by the order workflow.
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (Intent, error)
	Refund(ctx context.Context, intentID string, reason string) (Refund, error)
}
