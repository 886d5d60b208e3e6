package orders

// Status is the order lifecycle state. Orders only move forward through the
// pipeline; completed and cancelled are terminal.
type Status string

const (
	StatusCreated            Status = "created"
	StatusPaymentAuthorizing Status = "payment_authorizing"
	StatusPaymentAuthorized  Status = "payment_authorized"
	StatusPaymentFailed      Status = "payment_failed"
	StatusStockChecking      Status = "stock_checking"
	StatusFulfillmentPending Status = "fulfillment_pending"
	StatusCompleted          Status = "completed"
	StatusCancelled          Status = "cancelled"
)

// CanStartPayment reports whether an order may enter payment authorization.
// Only freshly created orders and failed payments are retryable.
func (s Status) CanStartPayment() bool {
	return s == StatusCreated || s == StatusPaymentFailed
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}
