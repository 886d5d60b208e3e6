// Package payment abstracts over the payment backend. The test provider is
// deterministic so the full pipeline can run in test suites; the stripe
// provider creates real PaymentIntents that the client confirms and the
// server re-verifies.
package payment

import "context"

// Result is the outcome of an authorization attempt.
type Result struct {
	OK       bool
	Provider string
	// IntentID is the provider's opaque reference; may be empty on failure.
	IntentID string
	// Raw is stored verbatim in payments.raw_response for audit. Business
	// logic never inspects it beyond what Result already exposes.
	Raw map[string]any
}

// Authorizer authorizes a charge for an order. Amounts are minor currency
// units (cents).
type Authorizer interface {
	Name() string
	Authorize(ctx context.Context, amountCents int64, currency, orderNumber string) (Result, error)
}
