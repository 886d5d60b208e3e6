package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lucypulova/Elitearn/internal/auth"
	"github.com/lucypulova/Elitearn/pkg/logkey"
	"github.com/lucypulova/Elitearn/pkg/mailer"
)

// Audit event types the dispatcher appends to order_events.
const (
	EventEmailSent       = "EMAIL_SENT"
	EventEmailSendFail   = "EMAIL_SEND_FAIL"
	EventSellerEmailSent = "SELLER_EMAIL_SENT"
	EventSellerEmailFail = "SELLER_EMAIL_FAIL"
)

// Dispatcher composes and sends the post-fulfillment messages. It runs inside
// the fulfillment transaction: outbox rows ride on that transaction, while
// the actual SMTP sends are best-effort and never fail the order.
type Dispatcher struct {
	keys     *auth.Keys
	sender   mailer.Sender
	outbox   *Store
	baseURL  string
	currency string
	tokenTTL time.Duration
	baseDir  string

	readFile func(string) ([]byte, error)
}

func NewDispatcher(keys *auth.Keys, sender mailer.Sender, outbox *Store, baseURL, currency string, tokenTTL time.Duration, baseDir string) (*Dispatcher, error) {
	if keys == nil {
		return nil, fmt.Errorf("keys is nil")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is nil")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox store is nil")
	}
	return &Dispatcher{
		keys:     keys,
		sender:   sender,
		outbox:   outbox,
		baseURL:  baseURL,
		currency: currency,
		tokenTTL: tokenTTL,
		baseDir:  baseDir,
		readFile: os.ReadFile,
	}, nil
}

// Dispatch sends the buyer receipt and one summary per seller. Everything in
// here is best-effort: a compose or send problem is logged and swallowed, the
// order is already fulfilled and must stay that way.
func (d *Dispatcher) Dispatch(ctx context.Context, tx pgx.Tx, in Input) {
	createdAt, totalCents, err := d.loadOrderHeader(ctx, tx, in.OrderID)
	if err != nil {
		slog.Error("notify: failed to load order header",
			slog.Int64(logkey.OrderID, in.OrderID), slog.String(logkey.Error, err.Error()))
		return
	}
	lines, err := d.loadLines(ctx, tx, in.OrderID)
	if err != nil {
		slog.Error("notify: failed to load order lines",
			slog.Int64(logkey.OrderID, in.OrderID), slog.String(logkey.Error, err.Error()))
		return
	}
	if len(lines) == 0 {
		return
	}
	assets, err := d.loadAssets(ctx, tx, lines)
	if err != nil {
		slog.Error("notify: failed to load course assets",
			slog.Int64(logkey.OrderID, in.OrderID), slog.String(logkey.Error, err.Error()))
		assets = nil
	}

	d.sendBuyer(ctx, tx, in, createdAt, totalCents, lines, assets)
	d.sendSellers(ctx, tx, in, createdAt, lines)
}

func (d *Dispatcher) sendBuyer(ctx context.Context, tx pgx.Tx, in Input, createdAt time.Time, totalCents int64, lines []line, assets []asset) {
	materials := d.buildMaterials(in.UserID, lines, assets)
	attachments := selectAttachments(assets, d.baseDir, d.readFile)

	subject := buyerSubject(in.OrderNumber)
	body := buyerBody(in.OrderNumber, createdAt, totalCents, d.currency, lines, materials, len(attachments))

	// The outbox copy is what the worker would redeliver, without the
	// attachments of the synchronous send.
	stored := storedBuyerBody(in.OrderNumber, createdAt, totalCents, d.currency, lines, materials)
	outboxID := d.enqueue(ctx, tx, in.UserID, in.UserEmail, subject, stored)

	err := d.sender.Send(mailer.Email{
		To:          in.UserEmail,
		Subject:     subject,
		Text:        body,
		Attachments: attachments,
	})
	if err != nil {
		logOrderEvent(ctx, tx, in.OrderID, EventEmailSendFail, "Buyer email failed",
			map[string]any{"to": in.UserEmail, "error": err.Error()})
		return
	}
	logOrderEvent(ctx, tx, in.OrderID, EventEmailSent, "Buyer confirmation email sent",
		map[string]any{"to": in.UserEmail, "attachments": len(attachments)})
	d.settle(ctx, tx, outboxID)
}

func (d *Dispatcher) sendSellers(ctx context.Context, tx pgx.Tx, in Input, createdAt time.Time, lines []line) {
	type seller struct {
		id    int64
		email string
		items []line
	}
	var order []int64
	bySeller := make(map[int64]*seller)
	for _, l := range lines {
		s, ok := bySeller[l.CreatorID]
		if !ok {
			s = &seller{id: l.CreatorID, email: l.CreatorEmail}
			bySeller[l.CreatorID] = s
			order = append(order, l.CreatorID)
		}
		s.items = append(s.items, l)
	}

	for _, id := range order {
		s := bySeller[id]
		subject := sellerSubject(in.OrderNumber)
		body := sellerBody(in.OrderNumber, createdAt, in.UserEmail, d.currency, s.items)

		outboxID := d.enqueue(ctx, tx, s.id, s.email, subject, body)

		if err := d.sender.Send(mailer.Email{To: s.email, Subject: subject, Text: body}); err != nil {
			logOrderEvent(ctx, tx, in.OrderID, EventSellerEmailFail, "Seller email failed",
				map[string]any{"to": s.email, "seller_id": s.id, "error": err.Error()})
			continue
		}
		logOrderEvent(ctx, tx, in.OrderID, EventSellerEmailSent, "Seller email sent",
			map[string]any{"to": s.email, "seller_id": s.id})
		d.settle(ctx, tx, outboxID)
	}
}

// enqueue writes the outbox row in a savepoint so a write problem cannot
// poison the fulfillment transaction. Returns 0 when the write failed; the
// sync send still proceeds.
func (d *Dispatcher) enqueue(ctx context.Context, tx pgx.Tx, userID int64, toAddr, subject, body string) int64 {
	sp, err := tx.Begin(ctx)
	if err != nil {
		slog.Error("notify: failed to open outbox savepoint", slog.String(logkey.Error, err.Error()))
		return 0
	}
	id, err := d.outbox.InsertTx(ctx, sp, userID, toAddr, subject, body)
	if err != nil {
		_ = sp.Rollback(ctx)
		slog.Error("notify: failed to enqueue outbox row", slog.String(logkey.Error, err.Error()))
		return 0
	}
	if err := sp.Commit(ctx); err != nil {
		slog.Error("notify: failed to commit outbox savepoint", slog.String(logkey.Error, err.Error()))
		return 0
	}
	return id
}

// settle marks a synchronously delivered message sent so the worker does not
// deliver it a second time.
func (d *Dispatcher) settle(ctx context.Context, tx pgx.Tx, outboxID int64) {
	if outboxID == 0 {
		return
	}
	if err := d.outbox.MarkSentTx(ctx, tx, outboxID); err != nil {
		slog.Error("notify: failed to settle outbox row",
			slog.Int64(logkey.OutboxID, outboxID), slog.String(logkey.Error, err.Error()))
	}
}

func (d *Dispatcher) buildMaterials(userID int64, lines []line, assets []asset) []courseMaterials {
	titleByCourse := make(map[int64]string, len(lines))
	var courseOrder []int64
	for _, l := range lines {
		if _, ok := titleByCourse[l.CourseID]; !ok {
			titleByCourse[l.CourseID] = l.Title
			courseOrder = append(courseOrder, l.CourseID)
		}
	}
	byCourse := make(map[int64][]asset)
	for _, a := range assets {
		byCourse[a.CourseID] = append(byCourse[a.CourseID], a)
	}

	var out []courseMaterials
	for _, courseID := range courseOrder {
		list := byCourse[courseID]
		if len(list) == 0 {
			continue
		}
		cm := courseMaterials{CourseTitle: titleByCourse[courseID]}
		for _, a := range list {
			token, err := d.keys.GenerateDownloadToken(a.ID, userID, d.tokenTTL)
			if err != nil {
				slog.Error("notify: failed to sign download token",
					slog.String(logkey.Error, err.Error()))
				continue
			}
			title := a.Title
			if title == "" {
				title = fmt.Sprintf("File #%d", a.ID)
			}
			cm.Links = append(cm.Links, materialLink{
				Title: title,
				URL:   d.baseURL + "/api/public/download/" + url.PathEscape(token),
			})
		}
		if len(cm.Links) > 0 {
			out = append(out, cm)
		}
	}
	return out
}

func (d *Dispatcher) loadOrderHeader(ctx context.Context, tx pgx.Tx, orderID int64) (time.Time, int64, error) {
	var createdAt time.Time
	var totalCents int64
	err := tx.QueryRow(ctx, `
		SELECT created_at, total_cents FROM orders WHERE id = $1
	`, orderID).Scan(&createdAt, &totalCents)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("failed to query order: %w", err)
	}
	return createdAt, totalCents, nil
}

func (d *Dispatcher) loadLines(ctx context.Context, tx pgx.Tx, orderID int64) ([]line, error) {
	rows, err := tx.Query(ctx, `
		SELECT oi.course_id, cr.title, oi.qty, oi.unit_price_cents, oi.line_total_cents,
		       cr.creator_user_id, u.email
		FROM order_items oi
		JOIN courses cr ON cr.id = oi.course_id
		JOIN users u ON u.id = cr.creator_user_id
		WHERE oi.order_id = $1
		ORDER BY oi.id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer rows.Close()

	var out []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.CourseID, &l.Title, &l.Qty, &l.UnitPriceCents, &l.LineTotalCents,
			&l.CreatorID, &l.CreatorEmail); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (d *Dispatcher) loadAssets(ctx context.Context, tx pgx.Tx, lines []line) ([]asset, error) {
	seen := make(map[int64]bool, len(lines))
	var courseIDs []int64
	for _, l := range lines {
		if !seen[l.CourseID] {
			seen[l.CourseID] = true
			courseIDs = append(courseIDs, l.CourseID)
		}
	}

	rows, err := tx.Query(ctx, `
		SELECT id, course_id, title, file_path, COALESCE(mime_type, ''), file_size
		FROM course_assets
		WHERE course_id = ANY($1)
		ORDER BY course_id ASC, id ASC
	`, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query course assets: %w", err)
	}
	defer rows.Close()

	var out []asset
	for rows.Next() {
		var a asset
		if err := rows.Scan(&a.ID, &a.CourseID, &a.Title, &a.FilePath, &a.MimeType, &a.FileSize); err != nil {
			return nil, fmt.Errorf("failed to scan course asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// logOrderEvent appends an audit row, in a savepoint so a failure never
// aborts the fulfillment transaction.
func logOrderEvent(ctx context.Context, tx pgx.Tx, orderID int64, eventType, message string, meta map[string]any) {
	var metaJSON []byte
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			metaJSON = b
		}
	}
	sp, err := tx.Begin(ctx)
	if err != nil {
		slog.Debug("notify: failed to log order event", slog.Int64(logkey.OrderID, orderID),
			slog.String("event_type", eventType), slog.String(logkey.Error, err.Error()))
		return
	}
	if _, err := sp.Exec(ctx, `
		INSERT INTO order_events (order_id, event_type, message, meta)
		VALUES ($1, $2, NULLIF($3, ''), $4)
	`, orderID, eventType, message, metaJSON); err != nil {
		_ = sp.Rollback(ctx)
		slog.Debug("notify: failed to log order event", slog.Int64(logkey.OrderID, orderID),
			slog.String("event_type", eventType), slog.String(logkey.Error, err.Error()))
		return
	}
	if err := sp.Commit(ctx); err != nil {
		slog.Debug("notify: failed to log order event", slog.Int64(logkey.OrderID, orderID),
			slog.String("event_type", eventType), slog.String(logkey.Error, err.Error()))
	}
}
