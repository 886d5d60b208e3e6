package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lucypulova/Elitearn/internal/stores/kafka"
	"github.com/lucypulova/Elitearn/pkg/logkey"
)

// lockOrder loads the order row under FOR UPDATE so concurrent processing
// attempts serialize on it. The loser of the race observes the committed
// status and takes the idempotent/conflict path instead of double-charging.
func lockOrder(ctx context.Context, tx pgx.Tx, orderID int64) (Order, error) {
	var o Order
	err := tx.QueryRow(ctx, `
		SELECT id, order_number, user_id, status, total_cents
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID).Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.TotalCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("failed to lock order: %w", err)
	}
	return o, nil
}

// ProcessOrder drives an order through payment authorization and, when the
// charge goes through immediately (test provider or a free order), through
// fulfillment in the same transaction. With the stripe provider a non-free
// order stops at payment_authorizing and hands a client secret back.
//
// Processing an already completed order is a no-op success.
func (c *Conf) ProcessOrder(ctx context.Context, orderID int64, buyer Buyer) (ProcessingResult, error) {
	var res ProcessingResult

	err := c.withTx(ctx, func(tx pgx.Tx) error {
		ord, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if ord.UserID != buyer.ID {
			return ErrForbidden
		}
		if ord.Status == StatusCompleted {
			res = ProcessingResult{OrderID: ord.ID, OrderNumber: ord.OrderNumber, Status: StatusCompleted}
			return nil
		}
		if !ord.Status.CanStartPayment() {
			return fmt.Errorf("%w: %s", ErrInvalidState, ord.Status)
		}

		if err := setStatus(ctx, tx, ord.ID, StatusPaymentAuthorizing); err != nil {
			return err
		}
		logOrderEvent(ctx, tx, ord.ID, EventPaymentAuthStart, "Starting payment authorization",
			map[string]any{"provider": c.providerName()})

		// Free orders never touch a provider: record a captured zero
		// payment and go straight to fulfillment.
		if ord.TotalCents == 0 {
			if err := setStatus(ctx, tx, ord.ID, StatusPaymentAuthorized); err != nil {
				return err
			}
			if err := insertPayment(ctx, tx, ord.ID, c.providerName(), "", "captured", 0, c.currency,
				map[string]any{"free": true}); err != nil {
				return err
			}
			logOrderEvent(ctx, tx, ord.ID, EventPaymentAuthOK, "Free order (no payment required)", nil)

			res, err = c.runFulfillment(ctx, tx, ord, buyer)
			if err != nil {
				return err
			}
			res.Free = true
			return nil
		}

		if c.stripe != nil {
			intent, err := c.stripe.CreateIntent(ctx, ord.TotalCents, c.currency, ord.OrderNumber, buyer.Email,
				map[string]string{
					"order_id":     fmt.Sprintf("%d", ord.ID),
					"order_number": ord.OrderNumber,
					"user_id":      fmt.Sprintf("%d", buyer.ID),
				})
			if err != nil {
				return fmt.Errorf("stripe intent creation failed: %w", err)
			}
			if err := insertPayment(ctx, tx, ord.ID, c.stripe.Name(), intent.ID, "initiated",
				ord.TotalCents, c.currency, json.RawMessage(intent.Raw)); err != nil {
				return err
			}
			logOrderEvent(ctx, tx, ord.ID, EventPaymentIntentMade, "Stripe PaymentIntent created",
				map[string]any{"intent_id": intent.ID})

			res = ProcessingResult{
				OrderID:      ord.ID,
				OrderNumber:  ord.OrderNumber,
				Status:       StatusPaymentAuthorizing,
				ClientSecret: intent.ClientSecret,
			}
			return nil
		}

		pay, err := c.authorizer.Authorize(ctx, ord.TotalCents, c.currency, ord.OrderNumber)
		if err != nil {
			return fmt.Errorf("authorization failed: %w", err)
		}

		payStatus := "authorized"
		if !pay.OK {
			payStatus = "failed"
		}
		if err := insertPayment(ctx, tx, ord.ID, pay.Provider, pay.IntentID, payStatus,
			ord.TotalCents, c.currency, pay.Raw); err != nil {
			return err
		}

		if !pay.OK {
			if err := setStatus(ctx, tx, ord.ID, StatusPaymentFailed); err != nil {
				return err
			}
			logOrderEvent(ctx, tx, ord.ID, EventPaymentAuthFail, "Payment declined", pay.Raw)
			res = ProcessingResult{
				OrderID:       ord.ID,
				OrderNumber:   ord.OrderNumber,
				Status:        StatusPaymentFailed,
				Declined:      true,
				DeclineReason: declineReason(pay.Raw),
			}
			return nil
		}

		if err := setStatus(ctx, tx, ord.ID, StatusPaymentAuthorized); err != nil {
			return err
		}
		logOrderEvent(ctx, tx, ord.ID, EventPaymentAuthOK, "Payment authorized",
			map[string]any{"intent_id": pay.IntentID})

		res, err = c.runFulfillment(ctx, tx, ord, buyer)
		return err
	})
	if err != nil {
		return ProcessingResult{}, err
	}

	if res.Status == StatusCompleted && len(res.GrantedCourseIDs) > 0 {
		c.publishCompleted(res, buyer)
	}
	return res, nil
}

// ConfirmOrder finishes a stripe flow after the client confirmed the intent.
// The intent status is re-read from stripe; the client's word alone is never
// enough to fulfill.
func (c *Conf) ConfirmOrder(ctx context.Context, orderID int64, buyer Buyer, intentID string) (ProcessingResult, error) {
	if c.stripe == nil {
		return ProcessingResult{}, ErrNotStripe
	}

	var res ProcessingResult
	err := c.withTx(ctx, func(tx pgx.Tx) error {
		ord, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if ord.UserID != buyer.ID {
			return ErrForbidden
		}
		if ord.Status == StatusCompleted {
			res = ProcessingResult{OrderID: ord.ID, OrderNumber: ord.OrderNumber, Status: StatusCompleted}
			return nil
		}
		if ord.Status == StatusCancelled {
			return fmt.Errorf("%w: %s", ErrInvalidState, ord.Status)
		}

		intent, err := c.stripe.RetrieveIntent(ctx, intentID)
		if err != nil {
			return fmt.Errorf("stripe intent verification failed: %w", err)
		}

		if !intent.Succeeded() {
			if err := setStatus(ctx, tx, ord.ID, StatusPaymentFailed); err != nil {
				return err
			}
			if err := updateLatestPayment(ctx, tx, ord.ID, intentID, "failed", intent.Raw); err != nil {
				return err
			}
			logOrderEvent(ctx, tx, ord.ID, EventPaymentConfirmFail, "Stripe intent not succeeded",
				map[string]any{"status": intent.Status})
			res = ProcessingResult{
				OrderID:       ord.ID,
				OrderNumber:   ord.OrderNumber,
				Status:        StatusPaymentFailed,
				Declined:      true,
				DeclineReason: intent.Status,
			}
			return nil
		}

		if err := setStatus(ctx, tx, ord.ID, StatusPaymentAuthorized); err != nil {
			return err
		}
		if err := updateLatestPayment(ctx, tx, ord.ID, intentID, "captured", intent.Raw); err != nil {
			return err
		}
		logOrderEvent(ctx, tx, ord.ID, EventPaymentConfirmOK, "Stripe payment succeeded",
			map[string]any{"intent_id": intentID})

		res, err = c.runFulfillment(ctx, tx, ord, buyer)
		return err
	})
	if err != nil {
		return ProcessingResult{}, err
	}

	if res.Status == StatusCompleted && len(res.GrantedCourseIDs) > 0 {
		c.publishCompleted(res, buyer)
	}
	return res, nil
}

func updateLatestPayment(ctx context.Context, tx pgx.Tx, orderID int64, intentID, status string, raw json.RawMessage) error {
	_, err := tx.Exec(ctx, `
		UPDATE payments SET status = $1, raw_response = $2
		WHERE id = (
			SELECT id FROM payments
			WHERE order_id = $3 AND provider = 'stripe' AND intent_id = $4
			ORDER BY id DESC LIMIT 1
		)
	`, status, raw, orderID, intentID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return nil
}

func (c *Conf) providerName() string {
	if c.stripe != nil {
		return c.stripe.Name()
	}
	return c.authorizer.Name()
}

func declineReason(raw map[string]any) string {
	if raw == nil {
		return ""
	}
	if r, ok := raw["reason"].(string); ok {
		return r
	}
	return ""
}

// publishCompleted emits the lifecycle event after the transaction has
// committed. Kafka being down must not fail a paid order, so errors are
// only logged.
func (c *Conf) publishCompleted(res ProcessingResult, buyer Buyer) {
	if c.producer == nil {
		return
	}
	event := kafka.OrderCompletedEvent{
		OrderID:     res.OrderID,
		OrderNumber: res.OrderNumber,
		UserID:      buyer.ID,
		CourseIDs:   res.GrantedCourseIDs,
		TotalCents:  res.TotalCents,
		CompletedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal order completed event", slog.String(logkey.Error, err.Error()))
		return
	}
	key := []byte(fmt.Sprintf("%d", res.OrderID))
	if err := c.producer.ProduceMessage(kafka.TopicOrderCompleted, key, data); err != nil {
		slog.Error("failed to produce order completed event",
			slog.Int64(logkey.OrderID, res.OrderID),
			slog.String(logkey.Error, err.Error()))
	}
}
