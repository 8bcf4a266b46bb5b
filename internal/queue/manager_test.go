package queue

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func newTestQueue(t *testing.T, visibility time.Duration, maxReceive int) *Manager {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("failed to open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m, err := NewManager(db, visibility, maxReceive)
	if err != nil {
		t.Fatalf("failed to create queue manager: %v", err)
	}
	return m
}

func TestSendReceiveDelete(t *testing.T) {
	m := newTestQueue(t, time.Minute, 3)
	ctx := context.Background()

	id, err := m.Send(ctx, "conductor", `{"task":"deploy"}`)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a message ID")
	}

	msg, err := m.Receive(ctx, "conductor")
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if msg == nil {
		t.Fatal("expected a message")
	}
	if msg.ID != id {
		t.Errorf("expected message %s, got %s", id, msg.ID)
	}
	if msg.Body != `{"task":"deploy"}` {
		t.Errorf("unexpected body: %s", msg.Body)
	}
	if msg.Received != 1 {
		t.Errorf("expected receive count 1, got %d", msg.Received)
	}

	// The message is invisible until the timeout passes.
	again, err := m.Receive(ctx, "conductor")
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if again != nil {
		t.Errorf("expected no visible message, got %s", again.ID)
	}

	if err := m.Delete(ctx, "conductor", id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	stats, err := m.Stats(ctx, "conductor")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Pending != 0 || stats.InFlight != 0 {
		t.Errorf("expected empty queue, got %+v", stats)
	}
	if stats.Completed != 1 {
		t.Errorf("expected 1 completed, got %d", stats.Completed)
	}
}

func TestReceiveEmptyQueue(t *testing.T) {
	m := newTestQueue(t, time.Minute, 3)

	msg, err := m.Receive(context.Background(), "conductor")
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if msg != nil {
		t.Errorf("expected nil on empty queue, got %+v", msg)
	}
}

func TestVisibilityTimeoutRedelivery(t *testing.T) {
	m := newTestQueue(t, 50*time.Millisecond, 3)
	ctx := context.Background()

	id, err := m.Send(ctx, "conductor", "body")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	first, err := m.Receive(ctx, "conductor")
	if err != nil || first == nil {
		t.Fatalf("first receive failed: msg=%v err=%v", first, err)
	}

	// Unacknowledged messages come back after the timeout.
	time.Sleep(100 * time.Millisecond)

	second, err := m.Receive(ctx, "conductor")
	if err != nil {
		t.Fatalf("second receive failed: %v", err)
	}
	if second == nil {
		t.Fatal("expected redelivery after visibility timeout")
	}
	if second.ID != id {
		t.Errorf("expected message %s, got %s", id, second.ID)
	}
	if second.Received != 2 {
		t.Errorf("expected receive count 2, got %d", second.Received)
	}
}

func TestPoisonMessageDropped(t *testing.T) {
	m := newTestQueue(t, 10*time.Millisecond, 1)
	ctx := context.Background()

	if _, err := m.Send(ctx, "conductor", "poison"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	first, err := m.Receive(ctx, "conductor")
	if err != nil || first == nil {
		t.Fatalf("first receive failed: msg=%v err=%v", first, err)
	}

	time.Sleep(50 * time.Millisecond)

	// The redelivery would exceed max receives, so the message is dropped.
	second, err := m.Receive(ctx, "conductor")
	if err != nil {
		t.Fatalf("second receive failed: %v", err)
	}
	if second != nil {
		t.Errorf("expected poison message to be dropped, got %+v", second)
	}

	stats, err := m.Stats(ctx, "conductor")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", stats.Failed)
	}
	if stats.Pending != 0 || stats.InFlight != 0 {
		t.Errorf("expected empty queue, got %+v", stats)
	}
}

func TestExtendKeepsMessageInvisible(t *testing.T) {
	m := newTestQueue(t, 50*time.Millisecond, 3)
	ctx := context.Background()

	id, err := m.Send(ctx, "conductor", "long deploy")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if _, err := m.Receive(ctx, "conductor"); err != nil {
		t.Fatalf("receive failed: %v", err)
	}

	if err := m.Extend(ctx, "conductor", id, time.Minute); err != nil {
		t.Fatalf("extend failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	msg, err := m.Receive(ctx, "conductor")
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if msg != nil {
		t.Errorf("expected message to stay invisible after extend, got %+v", msg)
	}
}

func TestReceiveOrdering(t *testing.T) {
	m := newTestQueue(t, time.Minute, 3)
	ctx := context.Background()

	first, err := m.Send(ctx, "conductor", "first")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := m.Send(ctx, "conductor", "second"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	msg, err := m.Receive(ctx, "conductor")
	if err != nil || msg == nil {
		t.Fatalf("receive failed: msg=%v err=%v", msg, err)
	}
	if msg.ID != first {
		t.Errorf("expected oldest message first, got body %q", msg.Body)
	}
}

func TestQueueIsolation(t *testing.T) {
	m := newTestQueue(t, time.Minute, 3)
	ctx := context.Background()

	if _, err := m.Send(ctx, "conductor", "deploy"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	msg, err := m.Receive(ctx, "other")
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if msg != nil {
		t.Errorf("message leaked across queues: %+v", msg)
	}
}

func TestPurge(t *testing.T) {
	m := newTestQueue(t, time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := m.Send(ctx, "conductor", "body"); err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}

	purged, err := m.Purge(ctx, "conductor")
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if purged != 3 {
		t.Errorf("expected 3 purged, got %d", purged)
	}

	msg, err := m.Receive(ctx, "conductor")
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if msg != nil {
		t.Errorf("expected empty queue after purge, got %+v", msg)
	}
}
