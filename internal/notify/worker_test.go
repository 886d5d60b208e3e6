package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lucypulova/Elitearn/pkg/mailer"
)

type fakeStore struct {
	pending []Message
	sent    []int64
	failed  map[int64]string
}

func newFakeStore(msgs ...Message) *fakeStore {
	return &fakeStore{pending: msgs, failed: make(map[int64]string)}
}

func (s *fakeStore) ClaimPending(_ context.Context, limit int) ([]Message, error) {
	if limit > len(s.pending) {
		limit = len(s.pending)
	}
	batch := s.pending[:limit]
	s.pending = s.pending[limit:]
	return batch, nil
}

func (s *fakeStore) MarkSent(_ context.Context, id int64) error {
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id int64, sendErr string) error {
	s.failed[id] = sendErr
	return nil
}

type fakeSender struct {
	sent    []mailer.Email
	failFor map[string]error
}

func (f *fakeSender) Send(m mailer.Email) error {
	if err, ok := f.failFor[m.To]; ok {
		return err
	}
	f.sent = append(f.sent, m)
	return nil
}

func TestWorkerProcessOnce(t *testing.T) {
	store := newFakeStore(
		Message{ID: 1, ToAddr: "ok@example.test", Subject: "s1", Body: "b1"},
		Message{ID: 2, ToAddr: "broken@example.test", Subject: "s2", Body: "b2"},
		Message{ID: 3, ToAddr: "ok2@example.test", Subject: "s3", Body: "b3"},
	)
	sender := &fakeSender{failFor: map[string]error{
		"broken@example.test": fmt.Errorf("smtp refused"),
	}}

	w, err := NewWorker(store, sender, 10, time.Second, nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}

	n := w.processOnce(context.Background())
	if n != 3 {
		t.Fatalf("processOnce = %d, want 3", n)
	}

	if len(store.sent) != 2 || store.sent[0] != 1 || store.sent[1] != 3 {
		t.Errorf("sent ids = %v, want [1 3]", store.sent)
	}
	if got := store.failed[2]; got != "smtp refused" {
		t.Errorf("failed[2] = %q, want %q", got, "smtp refused")
	}
	if len(sender.sent) != 2 {
		t.Errorf("delivered %d messages, want 2", len(sender.sent))
	}
}

// A message the synchronous path could not deliver stays pending and a later
// worker cycle delivers it.
func TestWorkerEventuallyDeliversPending(t *testing.T) {
	store := newFakeStore(Message{ID: 7, ToAddr: "late@example.test", Subject: "s", Body: "b"})
	sender := &fakeSender{}

	w, err := NewWorker(store, sender, 5, time.Second, nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}

	if n := w.processOnce(context.Background()); n != 1 {
		t.Fatalf("first cycle processed %d, want 1", n)
	}
	if len(store.sent) != 1 || store.sent[0] != 7 {
		t.Fatalf("sent ids = %v, want [7]", store.sent)
	}

	// Drained: the next cycle is a no-op.
	if n := w.processOnce(context.Background()); n != 0 {
		t.Fatalf("second cycle processed %d, want 0", n)
	}
}

func TestWorkerBatchLimit(t *testing.T) {
	var msgs []Message
	for i := int64(1); i <= 5; i++ {
		msgs = append(msgs, Message{ID: i, ToAddr: "ok@example.test"})
	}
	store := newFakeStore(msgs...)
	sender := &fakeSender{}

	w, err := NewWorker(store, sender, 2, time.Second, nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}

	if n := w.processOnce(context.Background()); n != 2 {
		t.Fatalf("processed %d, want batch of 2", n)
	}
	if len(store.pending) != 3 {
		t.Fatalf("pending left = %d, want 3", len(store.pending))
	}
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{}
	w, err := NewWorker(store, sender, 1, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
