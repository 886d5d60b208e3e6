package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// Intent is the slice of a provider-side payment intent the ledger cares
// about. Raw carries the provider payload for the payments audit column.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Raw          json.RawMessage
}

// Succeeded reports whether the provider confirmed the payment. Nothing the
// client reports is trusted; only this server-side status counts.
func (i Intent) Succeeded() bool {
	return i.Status == string(stripe.PaymentIntentStatusSucceeded)
}

// StripeClient drives the real provider. It is constructed with its own API
// client rather than mutating the package-global stripe.Key.
type StripeClient struct {
	api *client.API
}

func NewStripeClient(secretKey string) (*StripeClient, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeClient{api: api}, nil
}

func (s *StripeClient) Name() string { return "stripe" }

// CreateIntent creates a provider-side PaymentIntent for the amount in minor
// units and returns the client-confirmable secret. The caller persists the
// intent id so ConfirmOrder can re-verify later.
func (s *StripeClient) CreateIntent(ctx context.Context, amountCents int64, currency, orderNumber, receiptEmail string, meta map[string]string) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amountCents),
		Currency:           stripe.String(strings.ToLower(currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Description:        stripe.String("Order " + orderNumber),
	}
	params.Context = ctx
	if receiptEmail != "" {
		params.ReceiptEmail = stripe.String(receiptEmail)
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return toIntent(pi), nil
}

// RetrieveIntent re-reads the intent status directly from the provider.
func (s *StripeClient) RetrieveIntent(ctx context.Context, intentID string) (Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return Intent{}, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}
	return toIntent(pi), nil
}

func toIntent(pi *stripe.PaymentIntent) Intent {
	raw, err := json.Marshal(pi)
	if err != nil {
		raw = nil
	}
	return Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Raw:          raw,
	}
}
