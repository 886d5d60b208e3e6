package payment

import (
	"context"
	"strings"
	"testing"
	"time"
)

func fixedAuthorizer() *TestAuthorizer {
	a := NewTestAuthorizer()
	a.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return a
}

func TestAuthorizeDeterministicPolicy(t *testing.T) {
	tests := []struct {
		name        string
		amountCents int64
		orderNumber string
		wantOK      bool
		wantReason  string
	}{
		{
			name:        "odd last digit above threshold declines",
			amountCents: 15000,
			orderNumber: "ORD-2026-100003",
			wantOK:      false,
			wantReason:  ReasonSimulatedDecline,
		},
		{
			name:        "odd last digit below threshold authorizes",
			amountCents: 5000,
			orderNumber: "ORD-2026-100003",
			wantOK:      true,
		},
		{
			name:        "even last digit above threshold authorizes",
			amountCents: 20000,
			orderNumber: "ORD-2026-100004",
			wantOK:      true,
		},
		{
			name:        "exactly at threshold authorizes",
			amountCents: 10000,
			orderNumber: "ORD-2026-100007",
			wantOK:      true,
		},
		{
			name:        "zero amount fails",
			amountCents: 0,
			orderNumber: "ORD-2026-100004",
			wantOK:      false,
			wantReason:  ReasonAmountMustBePositive,
		},
		{
			name:        "negative amount fails",
			amountCents: -100,
			orderNumber: "ORD-2026-100004",
			wantOK:      false,
			wantReason:  ReasonAmountMustBePositive,
		},
	}

	a := fixedAuthorizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.Authorize(context.Background(), tt.amountCents, "EUR", tt.orderNumber)
			if err != nil {
				t.Fatalf("Authorize returned error: %v", err)
			}
			if res.OK != tt.wantOK {
				t.Fatalf("OK = %v, want %v", res.OK, tt.wantOK)
			}
			if res.Provider != "test" {
				t.Errorf("Provider = %q, want %q", res.Provider, "test")
			}
			if tt.wantReason != "" {
				got, _ := res.Raw["reason"].(string)
				if got != tt.wantReason {
					t.Errorf("reason = %q, want %q", got, tt.wantReason)
				}
			}
		})
	}
}

func TestAuthorizeReferenceTagging(t *testing.T) {
	a := fixedAuthorizer()

	res, err := a.Authorize(context.Background(), 5000, "EUR", "ORD-2026-100004")
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	if !strings.HasPrefix(res.IntentID, "test_auth_") {
		t.Errorf("IntentID = %q, want test_auth_ prefix", res.IntentID)
	}

	res, err = a.Authorize(context.Background(), 15000, "ORD", "ORD-2026-100003")
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	if !strings.HasPrefix(res.IntentID, "test_fail_") {
		t.Errorf("IntentID = %q, want test_fail_ prefix", res.IntentID)
	}
}

func TestLastDigitOdd(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ORD-2026-100003", true},
		{"ORD-2026-100004", false},
		{"", false},
		{"ORD-ABC", false},
	}
	for _, tt := range tests {
		if got := lastDigitOdd(tt.in); got != tt.want {
			t.Errorf("lastDigitOdd(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
