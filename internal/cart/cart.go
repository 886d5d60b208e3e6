// Package cart manages the buyer's single active cart. Cart lines carry no
// price snapshot: prices are read live from the catalog at view time, and
// only order creation freezes them.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrCourseNotFound = errors.New("course not found or not published")
	ErrOwnCourse      = errors.New("cannot buy an own course")
	ErrAlreadyOwned   = errors.New("course already owned")
)

// Line is one cart row with the live catalog price.
type Line struct {
	CourseID       int64  `json:"course_id"`
	Title          string `json:"title"`
	PriceCents     int64  `json:"price_cents"`
	Qty            int    `json:"qty"`
	LineTotalCents int64  `json:"line_total_cents"`
}

// View is the cart as the storefront renders it.
type View struct {
	CartID     int64  `json:"cart_id"`
	Items      []Line `json:"items"`
	TotalCents int64  `json:"total_cents"`
}

type Conf struct {
	pool *pgxpool.Pool
}

func NewConf(pool *pgxpool.Pool) (*Conf, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &Conf{pool: pool}, nil
}

// activeCartID returns the buyer's active cart, creating one lazily on first
// access.
func (c *Conf) activeCartID(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := c.pool.QueryRow(ctx, `
		SELECT id FROM carts
		WHERE user_id = $1 AND status = 'active'
		ORDER BY id DESC LIMIT 1
	`, userID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to query active cart: %w", err)
	}

	err = c.pool.QueryRow(ctx, `
		INSERT INTO carts (user_id) VALUES ($1) RETURNING id
	`, userID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create cart: %w", err)
	}
	return id, nil
}

// Read returns the cart with live prices.
func (c *Conf) Read(ctx context.Context, userID int64) (View, error) {
	cartID, err := c.activeCartID(ctx, userID)
	if err != nil {
		return View{}, err
	}

	rows, err := c.pool.Query(ctx, `
		SELECT ci.course_id, cr.title, cr.price_cents, ci.qty
		FROM cart_items ci
		JOIN courses cr ON cr.id = ci.course_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id ASC
	`, cartID)
	if err != nil {
		return View{}, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	view := View{CartID: cartID, Items: []Line{}}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.CourseID, &l.Title, &l.PriceCents, &l.Qty); err != nil {
			return View{}, fmt.Errorf("failed to scan cart item: %w", err)
		}
		l.LineTotalCents = int64(l.Qty) * l.PriceCents
		view.TotalCents += l.LineTotalCents
		view.Items = append(view.Items, l)
	}
	return view, rows.Err()
}

// AddItem puts a published course in the cart, bumping qty when the line
// already exists. Own courses and already-owned courses are rejected here so
// most bad carts never reach checkout (checkout re-checks anyway).
func (c *Conf) AddItem(ctx context.Context, userID, courseID int64, qty int) (View, error) {
	if qty < 1 {
		qty = 1
	}
	cartID, err := c.activeCartID(ctx, userID)
	if err != nil {
		return View{}, err
	}

	var creatorID int64
	err = c.pool.QueryRow(ctx, `
		SELECT creator_user_id FROM courses
		WHERE id = $1 AND is_published = TRUE
	`, courseID).Scan(&creatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return View{}, ErrCourseNotFound
		}
		return View{}, fmt.Errorf("failed to query course: %w", err)
	}
	if creatorID == userID {
		return View{}, ErrOwnCourse
	}

	var owned bool
	err = c.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM enrollments
			WHERE user_id = $1 AND course_id = $2 AND status = 'active'
		)
	`, userID, courseID).Scan(&owned)
	if err != nil {
		return View{}, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if owned {
		return View{}, ErrAlreadyOwned
	}

	_, err = c.pool.Exec(ctx, `
		INSERT INTO cart_items (cart_id, course_id, qty)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, course_id) DO UPDATE SET qty = cart_items.qty + EXCLUDED.qty
	`, cartID, courseID, qty)
	if err != nil {
		return View{}, fmt.Errorf("failed to upsert cart item: %w", err)
	}
	return c.Read(ctx, userID)
}

// SetQty updates a line's quantity; zero or negative removes the line.
func (c *Conf) SetQty(ctx context.Context, userID, courseID int64, qty int) (View, error) {
	cartID, err := c.activeCartID(ctx, userID)
	if err != nil {
		return View{}, err
	}
	if qty <= 0 {
		if _, err := c.pool.Exec(ctx,
			`DELETE FROM cart_items WHERE cart_id = $1 AND course_id = $2`, cartID, courseID); err != nil {
			return View{}, fmt.Errorf("failed to delete cart item: %w", err)
		}
		return c.Read(ctx, userID)
	}
	if _, err := c.pool.Exec(ctx,
		`UPDATE cart_items SET qty = $1 WHERE cart_id = $2 AND course_id = $3`, qty, cartID, courseID); err != nil {
		return View{}, fmt.Errorf("failed to update cart item: %w", err)
	}
	return c.Read(ctx, userID)
}

// RemoveItem drops a line from the cart.
func (c *Conf) RemoveItem(ctx context.Context, userID, courseID int64) (View, error) {
	cartID, err := c.activeCartID(ctx, userID)
	if err != nil {
		return View{}, err
	}
	if _, err := c.pool.Exec(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1 AND course_id = $2`, cartID, courseID); err != nil {
		return View{}, fmt.Errorf("failed to delete cart item: %w", err)
	}
	return c.Read(ctx, userID)
}
