package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lucypulova/Elitearn/internal/notify"
	"github.com/lucypulova/Elitearn/internal/payment"
)

// db is the slice of pgxpool.Pool the ledger uses. *pgxpool.Pool satisfies
// it; tests substitute a mock pool.
type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// dispatcher fires post-fulfillment notifications inside the processing
// transaction. Satisfied by *notify.Dispatcher; faked in tests.
type dispatcher interface {
	Dispatch(ctx context.Context, tx pgx.Tx, in notify.Input)
}

// producer publishes lifecycle events after commit. Satisfied by the kafka
// store; may be nil when kafka is not configured.
type producer interface {
	ProduceMessage(topic string, key, value []byte) error
}

type Conf struct {
	pool       db
	authorizer payment.Authorizer
	stripe     *payment.StripeClient // nil unless provider == "stripe"
	dispatcher dispatcher
	producer   producer
	currency   string
}

func NewConf(pool db, authorizer payment.Authorizer, stripe *payment.StripeClient, d dispatcher, p producer, currency string) (*Conf, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if authorizer == nil && stripe == nil {
		return nil, fmt.Errorf("no payment backend configured")
	}
	if d == nil {
		return nil, fmt.Errorf("dispatcher is nil")
	}
	return &Conf{
		pool:       pool,
		authorizer: authorizer,
		stripe:     stripe,
		dispatcher: d,
		producer:   p,
		currency:   currency,
	}, nil
}

func (c *Conf) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("failed to rollback tx: %w", err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	return nil
}

// CreateOrder converts the buyer's active cart into an order with a frozen
// price snapshot, marks the cart ordered and empties it.
func (c *Conf) CreateOrder(ctx context.Context, buyer Buyer, contact ContactInfo) (Order, error) {
	var ord Order

	err := c.withTx(ctx, func(tx pgx.Tx) error {
		var cartID int64
		err := tx.QueryRow(ctx, `
			SELECT id FROM carts
			WHERE user_id = $1 AND status = 'active'
			ORDER BY id DESC LIMIT 1
		`, buyer.ID).Scan(&cartID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrEmptyCart
			}
			return fmt.Errorf("failed to query active cart: %w", err)
		}

		type cartLine struct {
			courseID   int64
			qty        int
			priceCents int64
		}
		rows, err := tx.Query(ctx, `
			SELECT ci.course_id, ci.qty, cr.price_cents
			FROM cart_items ci
			JOIN courses cr ON cr.id = ci.course_id
			WHERE ci.cart_id = $1
			ORDER BY ci.id ASC
		`, cartID)
		if err != nil {
			return fmt.Errorf("failed to query cart items: %w", err)
		}
		var lines []cartLine
		var courseIDs []int64
		for rows.Next() {
			var l cartLine
			if err := rows.Scan(&l.courseID, &l.qty, &l.priceCents); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan cart item: %w", err)
			}
			lines = append(lines, l)
			courseIDs = append(courseIDs, l.courseID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating cart items: %w", err)
		}

		if len(lines) == 0 {
			return ErrEmptyCart
		}

		// Defense in depth: the cart endpoints reject these too, but the
		// cart may be stale by checkout time.
		var owned int64
		err = tx.QueryRow(ctx, `
			SELECT course_id FROM enrollments
			WHERE user_id = $1 AND status = 'active' AND course_id = ANY($2)
			LIMIT 1
		`, buyer.ID, courseIDs).Scan(&owned)
		if err == nil {
			return ErrAlreadyOwned
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to check enrollments: %w", err)
		}

		var own int64
		err = tx.QueryRow(ctx, `
			SELECT id FROM courses
			WHERE creator_user_id = $1 AND id = ANY($2)
			LIMIT 1
		`, buyer.ID, courseIDs).Scan(&own)
		if err == nil {
			return ErrSelfPurchase
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to check course ownership: %w", err)
		}

		var subtotal int64
		for _, l := range lines {
			subtotal += int64(l.qty) * l.priceCents
		}
		total := subtotal

		orderID, orderNumber, err := insertOrderWithRetry(ctx, tx, buyer.ID, contact, subtotal, total)
		if err != nil {
			return err
		}

		for _, l := range lines {
			lineTotal := int64(l.qty) * l.priceCents
			_, err := tx.Exec(ctx, `
				INSERT INTO order_items (order_id, course_id, unit_price_cents, qty, line_total_cents)
				VALUES ($1, $2, $3, $4, $5)
			`, orderID, l.courseID, l.priceCents, l.qty, lineTotal)
			if err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, `UPDATE carts SET status = 'ordered', updated_at = now() WHERE id = $1`, cartID); err != nil {
			return fmt.Errorf("failed to mark cart ordered: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return fmt.Errorf("failed to clear cart items: %w", err)
		}

		meta := map[string]any{"cart_id": cartID, "items": len(lines)}
		logOrderEvent(ctx, tx, orderID, EventOrderCreated, "Order created from cart", meta)

		ord = Order{
			ID:            orderID,
			OrderNumber:   orderNumber,
			UserID:        buyer.ID,
			Status:        StatusCreated,
			FullName:      contact.FullName,
			Phone:         contact.Phone,
			SubtotalCents: subtotal,
			TotalCents:    total,
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return ord, nil
}

// insertOrderWithRetry generates an order number and inserts the row,
// regenerating on a unique-constraint collision. Each attempt runs in a
// savepoint so a collision does not poison the outer transaction.
func insertOrderWithRetry(ctx context.Context, tx pgx.Tx, userID int64, contact ContactInfo, subtotal, total int64) (int64, string, error) {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		orderNumber := makeOrderNumber()

		sp, err := tx.Begin(ctx)
		if err != nil {
			return 0, "", fmt.Errorf("failed to open savepoint: %w", err)
		}

		var orderID int64
		err = sp.QueryRow(ctx, `
			INSERT INTO orders (order_number, user_id, status, full_name, phone, subtotal_cents, total_cents)
			VALUES ($1, $2, 'created', NULLIF($3, ''), NULLIF($4, ''), $5, $6)
			RETURNING id
		`, orderNumber, userID, contact.FullName, contact.Phone, subtotal, total).Scan(&orderID)
		if err != nil {
			_ = sp.Rollback(ctx)
			if isUniqueViolation(err) {
				continue
			}
			return 0, "", fmt.Errorf("failed to insert order: %w", err)
		}
		if err := sp.Commit(ctx); err != nil {
			return 0, "", fmt.Errorf("failed to release savepoint: %w", err)
		}
		return orderID, orderNumber, nil
	}
	return 0, "", fmt.Errorf("failed to generate a unique order number after %d attempts", maxAttempts)
}

func makeOrderNumber() string {
	return fmt.Sprintf("ORD-%d-%06d", time.Now().Year(), 100000+rand.Intn(900000))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ListOrders returns the buyer's orders, newest first.
func (c *Conf) ListOrders(ctx context.Context, userID int64) ([]Order, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, order_number, user_id, status, COALESCE(full_name, ''), COALESCE(phone, ''),
		       subtotal_cents, total_cents, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT 200
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.FullName, &o.Phone,
			&o.SubtotalCents, &o.TotalCents, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func setStatus(ctx context.Context, tx pgx.Tx, orderID int64, status Status) error {
	if _, err := tx.Exec(ctx, `UPDATE orders SET status = $1 WHERE id = $2`, string(status), orderID); err != nil {
		return fmt.Errorf("failed to set order status: %w", err)
	}
	return nil
}

func insertPayment(ctx context.Context, tx pgx.Tx, orderID int64, provider, intentID, status string, amountCents int64, currency string, raw any) error {
	var rawJSON []byte
	if raw != nil {
		b, err := json.Marshal(raw)
		if err == nil {
			rawJSON = b
		}
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO payments (order_id, provider, intent_id, status, amount_cents, currency, raw_response)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
	`, orderID, provider, intentID, status, amountCents, currency, rawJSON)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}
