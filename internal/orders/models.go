package orders

import (
	"errors"
	"time"
)

// Sentinel errors the handlers map onto HTTP statuses.
var (
	ErrEmptyCart    = errors.New("cart is empty")
	ErrAlreadyOwned = errors.New("cart contains an already owned course")
	ErrSelfPurchase = errors.New("cart contains the buyer's own course")
	ErrNotFound     = errors.New("order not found")
	ErrForbidden    = errors.New("no access to this order")
	ErrInvalidState = errors.New("order cannot be processed from its current status")
	ErrNotStripe    = errors.New("stripe is not the active payment provider")
)

// Order is the ledger row. Prices are snapshotted in cents at creation time
// and never recomputed.
type Order struct {
	ID            int64     `json:"id"`
	OrderNumber   string    `json:"order_number"`
	UserID        int64     `json:"user_id"`
	Status        Status    `json:"status"`
	FullName      string    `json:"full_name,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	SubtotalCents int64     `json:"subtotal_cents"`
	TotalCents    int64     `json:"total_cents"`
	CreatedAt     time.Time `json:"created_at"`
}

// OrderItem captures a course at its price when the order was created.
type OrderItem struct {
	ID             int64 `json:"id"`
	OrderID        int64 `json:"order_id"`
	CourseID       int64 `json:"course_id"`
	UnitPriceCents int64 `json:"unit_price_cents"`
	Qty            int   `json:"qty"`
	LineTotalCents int64 `json:"line_total_cents"`
}

// ContactInfo is the optional buyer snapshot stored on the order.
type ContactInfo struct {
	FullName string
	Phone    string
}

// Buyer identifies the authenticated caller driving the pipeline.
type Buyer struct {
	ID    int64
	Email string
}

// ProcessingResult is the outcome of ProcessOrder/ConfirmOrder. Exactly one
// of the branches below applies:
//   - Declined: the provider refused the charge (order is payment_failed)
//   - Cancelled: eligibility failed (order is cancelled, already committed)
//   - ClientSecret set: a stripe intent awaits client-side confirmation
//   - otherwise the order completed and GrantedCourseIDs lists the grants.
type ProcessingResult struct {
	OrderID          int64
	OrderNumber      string
	Status           Status
	TotalCents       int64
	GrantedCourseIDs []int64
	Free             bool

	Declined      bool
	DeclineReason string

	Cancelled       bool
	CancelledCode   int
	CancelledReason string

	ClientSecret string
}
