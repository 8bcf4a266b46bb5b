package interfaces

import "time"

// EventType identifies the kind of event
type EventType string

const (
	EventNodeCreated      EventType = "node.created"
	EventNodeUpdated      EventType = "node.updated"
	EventNodeDeleted      EventType = "node.deleted"
	EventPowerChanged     EventType = "node.power_changed"
	EventProvisionChanged EventType = "node.provision_changed"
	EventTaskQueued       EventType = "task.queued"
	EventTaskStarted      EventType = "task.started"
	EventTaskCompleted    EventType = "task.completed"
	EventTaskFailed       EventType = "task.failed"
	EventDeployDone       EventType = "deploy.done"
	EventLog              EventType = "log"
)

// Event represents a conductor event
type Event struct {
	Type      EventType              `json:"type"`
	NodeID    string                 `json:"node_id,omitempty"`
	TaskID    string                 `json:"task_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventHandler is a function that handles events
type EventHandler func(event Event)

// EventService provides pub/sub event handling
type EventService interface {
	// Subscribe registers a handler for a specific event type
	Subscribe(eventType EventType, handler EventHandler)

	// SubscribeAll registers a handler for all events
	SubscribeAll(handler EventHandler)

	// Publish sends an event to all subscribers asynchronously
	Publish(event Event)

	// PublishSync sends an event and waits for all handlers to complete
	PublishSync(event Event)

	// Close shuts down the event service
	Close()
}
