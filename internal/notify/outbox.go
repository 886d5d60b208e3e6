package notify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Message is one outbox row awaiting delivery.
type Message struct {
	ID      int64
	UserID  int64
	Channel string
	ToAddr  string
	Subject string
	Body    string
}

// Store persists and drains the notification outbox.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &Store{pool: pool}, nil
}

// InsertTx writes a pending outbox row inside the caller's transaction, so
// the message survives a crash between fulfillment and delivery.
func (s *Store) InsertTx(ctx context.Context, tx pgx.Tx, userID int64, toAddr, subject, body string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO notification_outbox (user_id, channel, to_addr, subject, body)
		VALUES ($1, 'email', $2, $3, $4)
		RETURNING id
	`, userID, toAddr, subject, body).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert outbox row: %w", err)
	}
	return id, nil
}

// MarkSentTx marks a row sent inside the caller's transaction. Used by the
// synchronous path after a successful send so the worker does not deliver
// the same message twice.
func (s *Store) MarkSentTx(ctx context.Context, tx pgx.Tx, id int64) error {
	if _, err := tx.Exec(ctx, `
		UPDATE notification_outbox
		SET status = 'sent', sent_at = now(), last_error = NULL
		WHERE id = $1
	`, id); err != nil {
		return fmt.Errorf("failed to mark outbox row sent: %w", err)
	}
	return nil
}

// ClaimPending selects up to limit pending rows oldest first. SKIP LOCKED
// keeps concurrent workers from claiming the same rows; the transaction
// commits before delivery so locks are not held across network I/O.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, COALESCE(user_id, 0), channel, to_addr, subject, body
		FROM notification_outbox
		WHERE status = 'pending'
		ORDER BY id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending outbox rows: %w", err)
	}
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Channel, &m.ToAddr, &m.Subject, &m.Body); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		out = append(out, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim tx: %w", err)
	}
	return out, nil
}

// MarkSent records a successful worker delivery.
func (s *Store) MarkSent(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = 'sent', sent_at = now(), last_error = NULL
		WHERE id = $1
	`, id); err != nil {
		return fmt.Errorf("failed to mark outbox row sent: %w", err)
	}
	return nil
}

// MarkFailed records a failed worker delivery with a truncated error. Failed
// rows are not retried automatically; re-queueing is a manual status flip.
func (s *Store) MarkFailed(ctx context.Context, id int64, sendErr string) error {
	if len(sendErr) > 250 {
		sendErr = sendErr[:250]
	}
	if _, err := s.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = 'failed', last_error = $1
		WHERE id = $2
	`, sendErr, id); err != nil {
		return fmt.Errorf("failed to mark outbox row failed: %w", err)
	}
	return nil
}
