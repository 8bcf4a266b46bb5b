package events

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/interfaces"
)

func TestPublishSyncDeliversToTypeSubscribers(t *testing.T) {
	svc := NewService(common.GetLogger())

	var mu sync.Mutex
	var received []interfaces.Event
	svc.Subscribe(interfaces.EventPowerChanged, func(event interfaces.Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
	})

	svc.PublishSync(interfaces.Event{
		Type:      interfaces.EventPowerChanged,
		NodeID:    "node-1",
		Timestamp: time.Now(),
	})
	svc.PublishSync(interfaces.Event{
		Type:   interfaces.EventNodeDeleted,
		NodeID: "node-1",
	})

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].NodeID != "node-1" {
		t.Errorf("unexpected node ID: %s", received[0].NodeID)
	}
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	svc := NewService(common.GetLogger())

	var count atomic.Int64
	svc.SubscribeAll(func(event interfaces.Event) {
		count.Add(1)
	})

	svc.PublishSync(interfaces.Event{Type: interfaces.EventTaskQueued})
	svc.PublishSync(interfaces.Event{Type: interfaces.EventDeployDone})
	svc.PublishSync(interfaces.Event{Type: interfaces.EventNodeCreated})

	if got := count.Load(); got != 3 {
		t.Errorf("expected 3 events, got %d", got)
	}
}

func TestPublishSyncWaitsForHandlers(t *testing.T) {
	svc := NewService(common.GetLogger())

	var done atomic.Bool
	svc.Subscribe(interfaces.EventTaskCompleted, func(event interfaces.Event) {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
	})

	svc.PublishSync(interfaces.Event{Type: interfaces.EventTaskCompleted})
	if !done.Load() {
		t.Error("PublishSync returned before handler finished")
	}
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	svc := NewService(common.GetLogger())

	var delivered atomic.Bool
	svc.Subscribe(interfaces.EventTaskFailed, func(event interfaces.Event) {
		panic("handler bug")
	})
	svc.Subscribe(interfaces.EventTaskFailed, func(event interfaces.Event) {
		delivered.Store(true)
	})

	svc.PublishSync(interfaces.Event{Type: interfaces.EventTaskFailed})
	if !delivered.Load() {
		t.Error("expected second handler to run despite panic in first")
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	svc := NewService(common.GetLogger())

	var count atomic.Int64
	svc.SubscribeAll(func(event interfaces.Event) {
		count.Add(1)
	})

	svc.Close()
	svc.PublishSync(interfaces.Event{Type: interfaces.EventNodeUpdated})

	if got := count.Load(); got != 0 {
		t.Errorf("expected no delivery after close, got %d", got)
	}
}

func TestNilHandlerIgnored(t *testing.T) {
	svc := NewService(common.GetLogger())
	svc.Subscribe(interfaces.EventNodeCreated, nil)
	svc.SubscribeAll(nil)

	// Publishing must not panic with nil handlers registered.
	svc.PublishSync(interfaces.Event{Type: interfaces.EventNodeCreated})
}
