package interfaces

import (
	"context"
	"time"
)

// QueueMessage is a message held by the task queue
type QueueMessage struct {
	ID        string    `json:"id"`
	Queue     string    `json:"queue"`
	Body      string    `json:"body"`
	Received  int       `json:"received"`
	CreatedAt time.Time `json:"created_at"`
	VisibleAt time.Time `json:"visible_at"`
}

// QueueStats reports queue depth
type QueueStats struct {
	Name      string `json:"name"`
	Pending   int    `json:"pending"`
	InFlight  int    `json:"in_flight"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
}

// QueueManager is a persistent message queue with visibility timeouts
type QueueManager interface {
	// Send enqueues a message body on the named queue.
	Send(ctx context.Context, queue, body string) (string, error)

	// Receive pops the next visible message, making it invisible for the
	// configured visibility timeout. Returns nil when the queue is empty.
	Receive(ctx context.Context, queue string) (*QueueMessage, error)

	// Delete acknowledges a received message.
	Delete(ctx context.Context, queue, messageID string) error

	// Extend pushes a message's visibility deadline out.
	Extend(ctx context.Context, queue, messageID string, d time.Duration) error

	// Stats returns counters for the named queue.
	Stats(ctx context.Context, queue string) (*QueueStats, error)

	// Purge removes all messages from the named queue.
	Purge(ctx context.Context, queue string) (int, error)

	Close() error
}
