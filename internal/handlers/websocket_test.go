package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/services/events"
)

func dialTestSocket(t *testing.T, h *WebSocketHandler) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}

	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid message: %v", err)
	}
	return msg
}

func TestWebSocketInitialStatus(t *testing.T) {
	eventSvc := events.NewService(common.GetLogger())
	t.Cleanup(eventSvc.Close)
	h := NewWebSocketHandler(eventSvc, &common.WebSocketConfig{})

	conn := dialTestSocket(t, h)

	msg := readMessage(t, conn)
	if msg.Type != "status" {
		t.Fatalf("expected status message first, got %s", msg.Type)
	}

	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		t.Fatal(err)
	}
	var status StatusUpdate
	if err := json.Unmarshal(payload, &status); err != nil {
		t.Fatal(err)
	}
	if status.Status != "ONLINE" || status.ServerInstanceID == "" {
		t.Errorf("unexpected status payload: %+v", status)
	}
}

func TestWebSocketBroadcastsEvents(t *testing.T) {
	eventSvc := events.NewService(common.GetLogger())
	t.Cleanup(eventSvc.Close)
	h := NewWebSocketHandler(eventSvc, &common.WebSocketConfig{})

	conn := dialTestSocket(t, h)
	readMessage(t, conn) // initial status

	eventSvc.PublishSync(interfaces.Event{
		Type:      interfaces.EventPowerChanged,
		NodeID:    "node-1",
		Timestamp: time.Now(),
	})

	msg := readMessage(t, conn)
	if msg.Type != string(interfaces.EventPowerChanged) {
		t.Errorf("expected power changed event, got %s", msg.Type)
	}
}

func TestWebSocketWhitelist(t *testing.T) {
	eventSvc := events.NewService(common.GetLogger())
	t.Cleanup(eventSvc.Close)
	h := NewWebSocketHandler(eventSvc, &common.WebSocketConfig{
		AllowedEvents: []string{string(interfaces.EventTaskCompleted)},
	})

	conn := dialTestSocket(t, h)
	readMessage(t, conn) // initial status

	// Filtered out by the whitelist.
	eventSvc.PublishSync(interfaces.Event{Type: interfaces.EventNodeUpdated})
	// Passes the whitelist.
	eventSvc.PublishSync(interfaces.Event{Type: interfaces.EventTaskCompleted, TaskID: "task-1"})

	msg := readMessage(t, conn)
	if msg.Type != string(interfaces.EventTaskCompleted) {
		t.Errorf("expected only whitelisted event, got %s", msg.Type)
	}
}

func TestWebSocketClientCount(t *testing.T) {
	eventSvc := events.NewService(common.GetLogger())
	t.Cleanup(eventSvc.Close)
	h := NewWebSocketHandler(eventSvc, nil)

	if h.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", h.ClientCount())
	}

	conn := dialTestSocket(t, h)
	readMessage(t, conn)
	if h.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", h.ClientCount())
	}
}
