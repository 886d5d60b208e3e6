// Package notify composes and delivers order notifications. The synchronous
// dispatcher runs inside the fulfillment transaction and persists every
// message to the notification outbox before attempting delivery; the worker
// drains whatever the synchronous path could not send.
package notify

// Input identifies the fulfilled order the dispatcher should announce.
type Input struct {
	OrderID     int64
	OrderNumber string
	UserID      int64
	UserEmail   string
}
