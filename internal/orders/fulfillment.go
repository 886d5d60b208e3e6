package orders

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/lucypulova/Elitearn/internal/notify"
)

// runFulfillment verifies eligibility and grants enrollments. It runs inside
// the already-open processing transaction with payment authorized.
//
// Eligibility failure is not an error: the order transitions to cancelled and
// the transaction still commits, because the cancellation is the intended,
// auditable outcome. The policy is all-or-nothing, one ineligible course
// cancels the whole order.
func (c *Conf) runFulfillment(ctx context.Context, tx pgx.Tx, ord Order, buyer Buyer) (ProcessingResult, error) {
	res := ProcessingResult{OrderID: ord.ID, OrderNumber: ord.OrderNumber, TotalCents: ord.TotalCents}

	if err := setStatus(ctx, tx, ord.ID, StatusStockChecking); err != nil {
		return res, err
	}

	type checkedItem struct {
		courseID    int64
		qty         int
		isPublished bool
	}
	rows, err := tx.Query(ctx, `
		SELECT oi.course_id, oi.qty, COALESCE(cr.is_published, FALSE)
		FROM order_items oi
		LEFT JOIN courses cr ON cr.id = oi.course_id
		WHERE oi.order_id = $1
		ORDER BY oi.id ASC
	`, ord.ID)
	if err != nil {
		return res, fmt.Errorf("failed to query order items: %w", err)
	}
	var items []checkedItem
	for rows.Next() {
		var it checkedItem
		if err := rows.Scan(&it.courseID, &it.qty, &it.isPublished); err != nil {
			rows.Close()
			return res, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, fmt.Errorf("error iterating order items: %w", err)
	}

	// Creation rejects empty carts, but an order with no items must still
	// never complete.
	if len(items) == 0 {
		if err := setStatus(ctx, tx, ord.ID, StatusCancelled); err != nil {
			return res, err
		}
		logOrderEvent(ctx, tx, ord.ID, EventOrderCancelled, "No items found for order", nil)
		res.Status = StatusCancelled
		res.Cancelled = true
		res.CancelledCode = http.StatusBadRequest
		res.CancelledReason = "Order has no items"
		return res, nil
	}

	// Publication is re-checked live: a course unpublished between checkout
	// and payment must not be granted.
	for _, it := range items {
		if !it.isPublished {
			if err := setStatus(ctx, tx, ord.ID, StatusCancelled); err != nil {
				return res, err
			}
			logOrderEvent(ctx, tx, ord.ID, EventEligibilityFail, "Course is not available",
				map[string]any{"course_id": it.courseID})
			res.Status = StatusCancelled
			res.Cancelled = true
			res.CancelledCode = http.StatusConflict
			res.CancelledReason = "A course in this order is no longer available"
			return res, nil
		}
	}
	logOrderEvent(ctx, tx, ord.ID, EventEligibilityOK, "All items eligible",
		map[string]any{"count": len(items)})

	if err := setStatus(ctx, tx, ord.ID, StatusFulfillmentPending); err != nil {
		return res, err
	}

	granted := make([]int64, 0, len(items))
	for _, it := range items {
		// Re-purchasing a course reactivates the existing grant and points
		// it at this order instead of duplicating the row.
		_, err := tx.Exec(ctx, `
			INSERT INTO enrollments (user_id, course_id, order_id, status)
			VALUES ($1, $2, $3, 'active')
			ON CONFLICT (user_id, course_id)
			DO UPDATE SET status = 'active', order_id = EXCLUDED.order_id, granted_at = now()
		`, buyer.ID, it.courseID, ord.ID)
		if err != nil {
			return res, fmt.Errorf("failed to upsert enrollment: %w", err)
		}
		granted = append(granted, it.courseID)
	}

	if err := setStatus(ctx, tx, ord.ID, StatusCompleted); err != nil {
		return res, err
	}
	logOrderEvent(ctx, tx, ord.ID, EventFulfilled, "Enrollments granted",
		map[string]any{"granted_courses": granted})

	// Outbox rows are written in this transaction; actual transmission is
	// best-effort and never rolls the order back.
	c.dispatcher.Dispatch(ctx, tx, notify.Input{
		OrderID:     ord.ID,
		OrderNumber: ord.OrderNumber,
		UserID:      buyer.ID,
		UserEmail:   buyer.Email,
	})

	res.Status = StatusCompleted
	res.GrantedCourseIDs = granted
	return res, nil
}
