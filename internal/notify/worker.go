package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lucypulova/Elitearn/pkg/logkey"
	"github.com/lucypulova/Elitearn/pkg/mailer"
	"github.com/lucypulova/Elitearn/pkg/metrics"
)

// outboxStore is the slice of Store the worker needs; faked in tests.
type outboxStore interface {
	ClaimPending(ctx context.Context, limit int) ([]Message, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, sendErr string) error
}

// Worker drains the notification outbox on a fixed interval. Multiple
// instances may run at once; row locking in ClaimPending keeps them off each
// other's batches.
type Worker struct {
	store    outboxStore
	sender   mailer.Sender
	batch    int
	interval time.Duration
	metrics  *metrics.Metrics // optional
}

func NewWorker(store outboxStore, sender mailer.Sender, batch int, interval time.Duration, m *metrics.Metrics) (*Worker, error) {
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is nil")
	}
	if batch < 1 {
		batch = 1
	}
	if interval <= 0 {
		interval = 4 * time.Second
	}
	return &Worker{store: store, sender: sender, batch: batch, interval: interval, metrics: m}, nil
}

// Run loops until the context is cancelled. The in-flight batch finishes
// before Run returns, so a shutdown never strands a half-delivered batch in
// pending limbo longer than one cycle.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("outbox worker started",
		slog.Int("batch", w.batch), slog.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if n := w.processOnce(ctx); n > 0 {
			slog.Info("outbox batch delivered", slog.Int("count", n))
		}
		select {
		case <-ctx.Done():
			slog.Info("outbox worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// processOnce claims one batch and attempts delivery of every message in it.
// Returns the number of messages attempted.
func (w *Worker) processOnce(ctx context.Context) int {
	msgs, err := w.store.ClaimPending(ctx, w.batch)
	if err != nil {
		slog.Error("outbox claim failed", slog.String(logkey.Error, err.Error()))
		return 0
	}
	if len(msgs) == 0 {
		return 0
	}

	for _, m := range msgs {
		err := w.sender.Send(mailer.Email{To: m.ToAddr, Subject: m.Subject, Text: m.Body})
		if err != nil {
			slog.Error("outbox delivery failed",
				slog.Int64(logkey.OutboxID, m.ID), slog.String(logkey.Error, err.Error()))
			w.count("failed")
			if mErr := w.store.MarkFailed(ctx, m.ID, err.Error()); mErr != nil {
				slog.Error("failed to mark outbox row failed",
					slog.Int64(logkey.OutboxID, m.ID), slog.String(logkey.Error, mErr.Error()))
			}
			continue
		}
		w.count("sent")
		if mErr := w.store.MarkSent(ctx, m.ID); mErr != nil {
			slog.Error("failed to mark outbox row sent",
				slog.Int64(logkey.OutboxID, m.ID), slog.String(logkey.Error, mErr.Error()))
		}
	}
	return len(msgs)
}

func (w *Worker) count(outcome string) {
	if w.metrics != nil {
		w.metrics.OutboxDeliveries.WithLabelValues(outcome).Inc()
	}
}
