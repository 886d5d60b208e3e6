package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/lucypulova/Elitearn/internal/notify"
	"github.com/lucypulova/Elitearn/internal/payment"
)

type dispatchRecorder struct {
	calls []notify.Input
}

func (d *dispatchRecorder) Dispatch(_ context.Context, _ pgx.Tx, in notify.Input) {
	d.calls = append(d.calls, in)
}

func newLedger(t *testing.T) (pgxmock.PgxPoolIface, *Conf, *dispatchRecorder) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	rec := &dispatchRecorder{}
	c, err := NewConf(mock, payment.NewTestAuthorizer(), nil, rec, nil, "EUR")
	if err != nil {
		t.Fatalf("NewConf: %v", err)
	}
	return mock, c, rec
}

func expectLockOrder(mock pgxmock.PgxPoolIface, o Order) {
	mock.ExpectQuery("SELECT id, order_number, user_id, status, total_cents").
		WithArgs(o.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "order_number", "user_id", "status", "total_cents"}).
			AddRow(o.ID, o.OrderNumber, o.UserID, o.Status, o.TotalCents))
}

func expectSetStatus(mock pgxmock.PgxPoolIface, orderID int64, status Status) {
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(string(status), orderID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

// Audit events run in their own savepoint: begin, insert, commit.
func expectOrderEvent(mock pgxmock.PgxPoolIface) {
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_events").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
}

func expectInsertPayment(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("INSERT INTO payments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func expectOrderItems(mock pgxmock.PgxPoolIface, orderID int64, rows *pgxmock.Rows) {
	mock.ExpectQuery("SELECT oi.course_id, oi.qty").
		WithArgs(orderID).
		WillReturnRows(rows)
}

func TestProcessOrderCompletedIsIdempotent(t *testing.T) {
	mock, c, rec := newLedger(t)

	mock.ExpectBegin()
	expectLockOrder(mock, Order{ID: 1, OrderNumber: "ORD-2026-123456", UserID: 9, Status: StatusCompleted, TotalCents: 5000})
	mock.ExpectCommit()

	res, err := c.ProcessOrder(context.Background(), 1, Buyer{ID: 9, Email: "buyer@example.test"})
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", res.Status)
	}
	if len(rec.calls) != 0 {
		t.Errorf("completed order must not re-dispatch notifications, got %d calls", len(rec.calls))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProcessOrderForbidden(t *testing.T) {
	mock, c, _ := newLedger(t)

	mock.ExpectBegin()
	expectLockOrder(mock, Order{ID: 1, OrderNumber: "ORD-2026-123456", UserID: 77, Status: StatusCreated, TotalCents: 5000})
	mock.ExpectRollback()

	_, err := c.ProcessOrder(context.Background(), 1, Buyer{ID: 9})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProcessOrderRejectsCancelled(t *testing.T) {
	mock, c, _ := newLedger(t)

	mock.ExpectBegin()
	expectLockOrder(mock, Order{ID: 1, OrderNumber: "ORD-2026-123456", UserID: 9, Status: StatusCancelled, TotalCents: 5000})
	mock.ExpectRollback()

	_, err := c.ProcessOrder(context.Background(), 1, Buyer{ID: 9})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProcessOrderDeclineMarksPaymentFailed(t *testing.T) {
	mock, c, rec := newLedger(t)

	// Odd-ending order number above the threshold forces a decline.
	mock.ExpectBegin()
	expectLockOrder(mock, Order{ID: 2, OrderNumber: "ORD-2026-123457", UserID: 9, Status: StatusCreated, TotalCents: 15000})
	expectSetStatus(mock, 2, StatusPaymentAuthorizing)
	expectOrderEvent(mock)
	expectInsertPayment(mock)
	expectSetStatus(mock, 2, StatusPaymentFailed)
	expectOrderEvent(mock)
	mock.ExpectCommit()

	res, err := c.ProcessOrder(context.Background(), 2, Buyer{ID: 9, Email: "buyer@example.test"})
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if !res.Declined || res.Status != StatusPaymentFailed {
		t.Errorf("res = %+v, want declined payment_failed", res)
	}
	if res.DeclineReason != payment.ReasonSimulatedDecline {
		t.Errorf("decline reason = %q, want %q", res.DeclineReason, payment.ReasonSimulatedDecline)
	}
	if len(rec.calls) != 0 {
		t.Errorf("declined order must not dispatch notifications, got %d calls", len(rec.calls))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProcessOrderUnpublishedCourseCancels(t *testing.T) {
	mock, c, rec := newLedger(t)

	mock.ExpectBegin()
	expectLockOrder(mock, Order{ID: 3, OrderNumber: "ORD-2026-123456", UserID: 9, Status: StatusCreated, TotalCents: 5000})
	expectSetStatus(mock, 3, StatusPaymentAuthorizing)
	expectOrderEvent(mock)
	expectInsertPayment(mock)
	expectSetStatus(mock, 3, StatusPaymentAuthorized)
	expectOrderEvent(mock)
	expectSetStatus(mock, 3, StatusStockChecking)
	expectOrderItems(mock, 3, pgxmock.NewRows([]string{"course_id", "qty", "is_published"}).
		AddRow(int64(7), 1, true).
		AddRow(int64(8), 1, false))
	expectSetStatus(mock, 3, StatusCancelled)
	expectOrderEvent(mock)
	// The cancellation is the outcome, so the transaction still commits.
	mock.ExpectCommit()

	res, err := c.ProcessOrder(context.Background(), 3, Buyer{ID: 9, Email: "buyer@example.test"})
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if !res.Cancelled || res.Status != StatusCancelled {
		t.Errorf("res = %+v, want cancelled", res)
	}
	if res.CancelledCode != 409 {
		t.Errorf("cancelled code = %d, want 409", res.CancelledCode)
	}
	if len(rec.calls) != 0 {
		t.Errorf("cancelled order must not dispatch notifications, got %d calls", len(rec.calls))
	}
	// ExpectationsWereMet also proves no enrollment was granted: an INSERT
	// INTO enrollments would have been an unexpected call.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProcessOrderRetryAfterFailureCompletes(t *testing.T) {
	mock, c, rec := newLedger(t)

	mock.ExpectBegin()
	expectLockOrder(mock, Order{ID: 4, OrderNumber: "ORD-2026-123456", UserID: 9, Status: StatusPaymentFailed, TotalCents: 5000})
	expectSetStatus(mock, 4, StatusPaymentAuthorizing)
	expectOrderEvent(mock)
	expectInsertPayment(mock)
	expectSetStatus(mock, 4, StatusPaymentAuthorized)
	expectOrderEvent(mock)
	expectSetStatus(mock, 4, StatusStockChecking)
	expectOrderItems(mock, 4, pgxmock.NewRows([]string{"course_id", "qty", "is_published"}).
		AddRow(int64(7), 1, true))
	expectOrderEvent(mock)
	expectSetStatus(mock, 4, StatusFulfillmentPending)
	// The grant is an upsert: a prior enrollment is reactivated, never
	// duplicated.
	mock.ExpectExec(`(?s)INSERT INTO enrollments.*ON CONFLICT \(user_id, course_id\)`).
		WithArgs(int64(9), int64(7), int64(4)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectSetStatus(mock, 4, StatusCompleted)
	expectOrderEvent(mock)
	mock.ExpectCommit()

	res, err := c.ProcessOrder(context.Background(), 4, Buyer{ID: 9, Email: "buyer@example.test"})
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", res.Status)
	}
	if len(res.GrantedCourseIDs) != 1 || res.GrantedCourseIDs[0] != 7 {
		t.Errorf("granted = %v, want [7]", res.GrantedCourseIDs)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("dispatch calls = %d, want 1", len(rec.calls))
	}
	if in := rec.calls[0]; in.OrderID != 4 || in.UserID != 9 || in.UserEmail != "buyer@example.test" {
		t.Errorf("dispatch input = %+v", in)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProcessOrderFreeOrderSkipsProvider(t *testing.T) {
	mock, c, rec := newLedger(t)

	// A zero total records a captured payment without an authorizer round
	// trip and goes straight to fulfillment.
	mock.ExpectBegin()
	expectLockOrder(mock, Order{ID: 5, OrderNumber: "ORD-2026-123456", UserID: 9, Status: StatusCreated, TotalCents: 0})
	expectSetStatus(mock, 5, StatusPaymentAuthorizing)
	expectOrderEvent(mock)
	expectSetStatus(mock, 5, StatusPaymentAuthorized)
	expectInsertPayment(mock)
	expectOrderEvent(mock)
	expectSetStatus(mock, 5, StatusStockChecking)
	expectOrderItems(mock, 5, pgxmock.NewRows([]string{"course_id", "qty", "is_published"}).
		AddRow(int64(7), 1, true))
	expectOrderEvent(mock)
	expectSetStatus(mock, 5, StatusFulfillmentPending)
	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(int64(9), int64(7), int64(5)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectSetStatus(mock, 5, StatusCompleted)
	expectOrderEvent(mock)
	mock.ExpectCommit()

	res, err := c.ProcessOrder(context.Background(), 5, Buyer{ID: 9, Email: "buyer@example.test"})
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if res.Status != StatusCompleted || !res.Free {
		t.Errorf("res = %+v, want completed free order", res)
	}
	if len(rec.calls) != 1 {
		t.Errorf("dispatch calls = %d, want 1", len(rec.calls))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
