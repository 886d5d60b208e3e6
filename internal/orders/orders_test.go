package orders

import (
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestStatusCanStartPayment(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusCreated, true},
		{StatusPaymentFailed, true},
		{StatusPaymentAuthorizing, false},
		{StatusPaymentAuthorized, false},
		{StatusStockChecking, false},
		{StatusFulfillmentPending, false},
		{StatusCompleted, false},
		{StatusCancelled, false},
	}
	for _, tt := range tests {
		if got := tt.status.CanStartPayment(); got != tt.want {
			t.Errorf("%s.CanStartPayment() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range []Status{StatusCreated, StatusPaymentAuthorizing, StatusPaymentFailed} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestMakeOrderNumberFormat(t *testing.T) {
	pattern := regexp.MustCompile(fmt.Sprintf(`^ORD-%d-[1-9]\d{5}$`, time.Now().Year()))
	for i := 0; i < 100; i++ {
		n := makeOrderNumber()
		if !pattern.MatchString(n) {
			t.Fatalf("makeOrderNumber() = %q, want match for %s", n, pattern)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("unique violation not recognized")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation misread as unique violation")
	}
	if isUniqueViolation(fmt.Errorf("plain error")) {
		t.Error("plain error misread as unique violation")
	}
	if isUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})) != true {
		t.Error("wrapped unique violation not recognized")
	}
}

func TestDeclineReason(t *testing.T) {
	if got := declineReason(map[string]any{"reason": "simulated_decline"}); got != "simulated_decline" {
		t.Errorf("declineReason = %q", got)
	}
	if got := declineReason(nil); got != "" {
		t.Errorf("declineReason(nil) = %q, want empty", got)
	}
	if got := declineReason(map[string]any{"reason": 42}); got != "" {
		t.Errorf("declineReason(non-string) = %q, want empty", got)
	}
}
