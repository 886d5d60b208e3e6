package payment

import (
	"context"
	"fmt"
	"time"
)

const (
	ReasonAmountMustBePositive = "amount_must_be_positive"
	ReasonSimulatedDecline     = "simulated_decline"
)

// declineThresholdCents: the test provider declines amounts above 100
// currency units when the order number's last digit is odd.
const declineThresholdCents = 100 * 100

// TestAuthorizer is a deterministic stand-in for a real provider. The
// decision is a pure function of the amount and the order number, so tests
// can force either outcome by choosing an order number parity.
type TestAuthorizer struct {
	// now is swappable in tests; the timestamp only tags the fabricated
	// provider reference.
	now func() time.Time
}

func NewTestAuthorizer() *TestAuthorizer {
	return &TestAuthorizer{now: time.Now}
}

func (a *TestAuthorizer) Name() string { return "test" }

func (a *TestAuthorizer) Authorize(_ context.Context, amountCents int64, currency, orderNumber string) (Result, error) {
	if amountCents <= 0 {
		return Result{
			OK:       false,
			Provider: "test",
			Raw:      map[string]any{"reason": ReasonAmountMustBePositive},
		}, nil
	}

	if lastDigitOdd(orderNumber) && amountCents > declineThresholdCents {
		return Result{
			OK:       false,
			Provider: "test",
			IntentID: fmt.Sprintf("test_fail_%d", a.now().UnixMilli()),
			Raw:      map[string]any{"reason": ReasonSimulatedDecline},
		}, nil
	}

	return Result{
		OK:       true,
		Provider: "test",
		IntentID: fmt.Sprintf("test_auth_%d", a.now().UnixMilli()),
		Raw: map[string]any{
			"authorized": true,
			"amount":     amountCents,
			"currency":   currency,
		},
	}, nil
}

func lastDigitOdd(orderNumber string) bool {
	if orderNumber == "" {
		return false
	}
	last := orderNumber[len(orderNumber)-1]
	if last < '0' || last > '9' {
		return false
	}
	return (last-'0')%2 == 1
}
