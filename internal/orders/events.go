package orders

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/lucypulova/Elitearn/pkg/logkey"
)

// Audit event types appended to order_events.
const (
	EventOrderCreated       = "ORDER_CREATED"
	EventOrderCancelled     = "ORDER_CANCELLED"
	EventPaymentAuthStart   = "PAYMENT_AUTH_START"
	EventPaymentAuthOK      = "PAYMENT_AUTH_OK"
	EventPaymentAuthFail    = "PAYMENT_AUTH_FAIL"
	EventPaymentIntentMade  = "PAYMENT_INTENT_CREATED"
	EventPaymentConfirmOK   = "PAYMENT_CONFIRM_OK"
	EventPaymentConfirmFail = "PAYMENT_CONFIRM_FAIL"
	EventEligibilityOK      = "ELIGIBILITY_OK"
	EventEligibilityFail    = "ELIGIBILITY_FAIL"
	EventFulfilled          = "FULFILLED"
)

// logOrderEvent appends an audit row. Failures are swallowed: the audit
// trail must never abort the transaction it documents.
func logOrderEvent(ctx context.Context, tx pgx.Tx, orderID int64, eventType, message string, meta map[string]any) {
	var metaJSON []byte
	if meta != nil {
		b, err := json.Marshal(meta)
		if err == nil {
			metaJSON = b
		}
	}
	// A failed statement poisons a postgres transaction, so the insert runs
	// in its own savepoint to keep "best-effort" true to its word.
	sp, err := tx.Begin(ctx)
	if err != nil {
		logEventFailure(orderID, eventType, err)
		return
	}
	if _, err := sp.Exec(ctx, `
		INSERT INTO order_events (order_id, event_type, message, meta)
		VALUES ($1, $2, NULLIF($3, ''), $4)
	`, orderID, eventType, message, metaJSON); err != nil {
		_ = sp.Rollback(ctx)
		logEventFailure(orderID, eventType, err)
		return
	}
	if err := sp.Commit(ctx); err != nil {
		logEventFailure(orderID, eventType, err)
	}
}

func logEventFailure(orderID int64, eventType string, err error) {
	slog.Debug("failed to log order event",
		slog.Int64(logkey.OrderID, orderID),
		slog.String("event_type", eventType),
		slog.String(logkey.Error, err.Error()))
}
