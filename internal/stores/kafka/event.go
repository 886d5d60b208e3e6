package kafka

import "time"

const TopicOrderCompleted = `order-service.order-completed`

// OrderCompletedEvent is published after an order's processing transaction
// commits with status completed. Downstream consumers (analytics, CRM) key
// off the order id.
type OrderCompletedEvent struct {
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      int64     `json:"user_id"`
	CourseIDs   []int64   `json:"course_ids"`
	TotalCents  int64     `json:"total_cents"`
	CompletedAt time.Time `json:"completed_at"`
}
