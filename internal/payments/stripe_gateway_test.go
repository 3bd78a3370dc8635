package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

type fakeIntentAPI struct {
	newParams *stripe.PaymentIntentParams
	getID     string
	intent    *stripe.PaymentIntent
	err       error
}

func (f *fakeIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.newParams = params
	return f.intent, f.err
}

func (f *fakeIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.getID = id
	return f.intent, f.err
}

type fakeRefundAPI struct {
	params *stripe.RefundParams
	calls  int
	err    error
}

func (f *fakeRefundAPI) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	f.calls++
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusSucceeded, Amount: 2500}, nil
}

func newTestGateway(t *testing.T, intents *fakeIntentAPI, refunds *fakeRefundAPI) *StripeGateway {
	t.Helper()
	gw, err := NewStripeGateway(StripeGatewayConfig{Clients: &StripeClients{Intents: intents, Refunds: refunds}})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gw
}

func TestStripeGatewayCreateIntent(t *testing.T) {
	intents := &fakeIntentAPI{intent: &stripe.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret", Amount: 2500, Currency: "gel"}}
	gw := newTestGateway(t, intents, &fakeRefundAPI{})

	intent, err := gw.CreateIntent(context.Background(), CreateIntentRequest{
		Amount:         2500,
		Currency:       "GEL",
		Metadata:       map[string]string{"orderId": "ord_1"},
		IdempotencyKey: "order-ord_1",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.ClientSecret != "pi_1_secret" {
		t.Fatalf("unexpected client secret %q", intent.ClientSecret)
	}

	params := intents.newParams
	if params == nil {
		t.Fatalf("expected stripe call")
	}
	if *params.Amount != 2500 || *params.Currency != "gel" {
		t.Fatalf("unexpected amount/currency %d %s", *params.Amount, *params.Currency)
	}
	if params.IdempotencyKey == nil || *params.IdempotencyKey != "order-ord_1" {
		t.Fatalf("expected idempotency key to be forwarded")
	}
	if params.Metadata["orderId"] != "ord_1" {
		t.Fatalf("expected orderId metadata, got %v", params.Metadata)
	}
}

func TestStripeGatewayWrapsFailures(t *testing.T) {
	intents := &fakeIntentAPI{err: errors.New("card_declined")}
	gw := newTestGateway(t, intents, &fakeRefundAPI{})

	if _, err := gw.CreateIntent(context.Background(), CreateIntentRequest{Amount: 100, Currency: "gel"}); !errors.Is(err, ErrGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if _, err := gw.RetrieveIntent(context.Background(), "pi_1"); !errors.Is(err, ErrGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
}

func TestStripeGatewayRefund(t *testing.T) {
	refunds := &fakeRefundAPI{}
	gw := newTestGateway(t, &fakeIntentAPI{}, refunds)

	refund, err := gw.Refund(context.Background(), "pi_1", RefundReasonRequestedByCustomer)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refund.ID != "re_1" || refund.IntentID != "pi_1" {
		t.Fatalf("unexpected refund %+v", refund)
	}
	if *refunds.params.PaymentIntent != "pi_1" {
		t.Fatalf("expected refund for pi_1")
	}
	if *refunds.params.Reason != "requested_by_customer" {
		t.Fatalf("unexpected reason %q", *refunds.params.Reason)
	}
	if *refunds.params.IdempotencyKey != "refund-pi_1" {
		t.Fatalf("unexpected idempotency key %q", *refunds.params.IdempotencyKey)
	}

	refunds.err = errors.New("already refunded")
	if _, err := gw.Refund(context.Background(), "pi_1", "bogus"); !errors.Is(err, ErrGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if refunds.params.Reason != nil {
		t.Fatalf("unknown reasons must not be forwarded")
	}
}

func TestNewStripeGatewayRequiresKey(t *testing.T) {
	if _, err := NewStripeGateway(StripeGatewayConfig{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
