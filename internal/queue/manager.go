// Package queue implements the persistent conductor task queue on top
// of Badger. Messages become invisible for a timeout once received and
// reappear if the receiver never acknowledges them, so a crashed worker
// cannot lose work.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/interfaces"
)

// ErrNoMessage is returned when the queue has no visible messages
var ErrNoMessage = errors.New("no messages in queue")

// storedMessage is the internal structure persisted in Badger
type storedMessage struct {
	ID           string    `json:"id"`
	Body         string    `json:"body"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	VisibleAt    time.Time `json:"visible_at"`
	ReceiveCount int       `json:"receive_count"`
}

// Manager implements interfaces.QueueManager backed by BadgerDB.
// Message data lives at queue:{name}:msg:{id} and a visibility index
// at queue:{name}:index:{visibleAt}:{id} keeps receives ordered and
// cheap to scan.
type Manager struct {
	db                *badger.DB
	visibilityTimeout time.Duration
	maxReceive        int
	logger            arbor.ILogger

	completed atomic.Int64
	failed    atomic.Int64
}

// NewManager creates a Badger-backed queue manager. The db handle is
// shared with the storage layer and not closed here.
func NewManager(db *badger.DB, visibilityTimeout time.Duration, maxReceive int) (*Manager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 3
	}

	return &Manager{
		db:                db,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
		logger:            common.GetLogger(),
	}, nil
}

// Send enqueues a message body on the named queue
func (m *Manager) Send(ctx context.Context, queue, body string) (string, error) {
	id := uuid.New().String()
	msg := storedMessage{
		ID:         id,
		Body:       body,
		EnqueuedAt: time.Now(),
		VisibleAt:  time.Now(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal queue message: %w", err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(msgKey(queue, id), data); err != nil {
			return err
		}
		return txn.Set(indexKey(queue, msg.VisibleAt, id), []byte{})
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue message: %w", err)
	}
	return id, nil
}

// Receive pops the next visible message, making it invisible for the
// visibility timeout. Returns nil when the queue is empty. Messages
// received more than maxReceive times are dropped as poison.
func (m *Manager) Receive(ctx context.Context, queue string) (*interfaces.QueueMessage, error) {
	var claimed storedMessage

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", queue))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			ts, id, err := parseIndexKey(queue, key)
			if err != nil {
				continue
			}
			// Index keys sort by timestamp, the first future entry ends
			// the scan.
			if ts.After(now) {
				break
			}

			item, err := txn.Get(msgKey(queue, id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Orphaned index entry, clean it up
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			var msg storedMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}

			if msg.ReceiveCount >= m.maxReceive {
				// Poison message, drop it so it cannot loop forever
				m.logger.Warn().
					Str("queue", queue).
					Str("message_id", id).
					Int("receive_count", msg.ReceiveCount).
					Msg("Dropping message that exceeded max receives")
				m.failed.Add(1)
				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(msgKey(queue, id)); err != nil {
					return err
				}
				continue
			}

			msg.ReceiveCount++
			msg.VisibleAt = now.Add(m.visibilityTimeout)

			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if err := txn.Set(msgKey(queue, id), data); err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Set(indexKey(queue, msg.VisibleAt, id), []byte{}); err != nil {
				return err
			}

			claimed = msg
			return nil
		}
		return ErrNoMessage
	})

	if err == ErrNoMessage {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}

	return &interfaces.QueueMessage{
		ID:        claimed.ID,
		Queue:     queue,
		Body:      claimed.Body,
		Received:  claimed.ReceiveCount,
		CreatedAt: claimed.EnqueuedAt,
		VisibleAt: claimed.VisibleAt,
	}, nil
}

// Delete acknowledges a received message
func (m *Manager) Delete(ctx context.Context, queue, messageID string) error {
	err := m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(msgKey(queue, messageID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil // Already deleted
			}
			return err
		}

		var msg storedMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &msg)
		}); err != nil {
			return err
		}

		if err := txn.Delete(indexKey(queue, msg.VisibleAt, messageID)); err != nil &&
			err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Delete(msgKey(queue, messageID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	m.completed.Add(1)
	return nil
}

// Extend pushes a message's visibility deadline out, used by long
// running deploys to keep their claim while work continues.
func (m *Manager) Extend(ctx context.Context, queue, messageID string, d time.Duration) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(msgKey(queue, messageID))
		if err != nil {
			return err
		}

		var msg storedMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &msg)
		}); err != nil {
			return err
		}

		oldVisibleAt := msg.VisibleAt
		msg.VisibleAt = time.Now().Add(d)

		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := txn.Set(msgKey(queue, messageID), data); err != nil {
			return err
		}
		if err := txn.Delete(indexKey(queue, oldVisibleAt, messageID)); err != nil &&
			err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(indexKey(queue, msg.VisibleAt, messageID), []byte{})
	})
}

// Stats returns counters for the named queue
func (m *Manager) Stats(ctx context.Context, queue string) (*interfaces.QueueStats, error) {
	stats := &interfaces.QueueStats{
		Name:      queue,
		Completed: m.completed.Load(),
		Failed:    m.failed.Load(),
	}

	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", queue))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ts, _, err := parseIndexKey(queue, it.Item().Key())
			if err != nil {
				continue
			}
			if ts.After(now) {
				stats.InFlight++
			} else {
				stats.Pending++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return stats, nil
}

// Purge removes all messages from the named queue
func (m *Manager) Purge(ctx context.Context, queue string) (int, error) {
	purged := 0
	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:", queue))
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			if strings.Contains(string(key), ":msg:") {
				purged++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue: %w", err)
	}
	return purged, nil
}

// Close releases the manager. The shared db handle stays open.
func (m *Manager) Close() error {
	return nil
}

func msgKey(queue, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", queue, id))
}

// indexKey zero pads the timestamp to 20 digits so lexicographic key
// order matches chronological order.
func indexKey(queue string, visibleAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", queue, visibleAt.UnixNano(), id))
}

func parseIndexKey(queue string, key []byte) (time.Time, string, error) {
	prefix := fmt.Sprintf("queue:%s:index:", queue)
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	suffix := string(key[len(prefix):])
	if len(suffix) < 21 { // 20 digits + 1 colon
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	ts, err := strconv.ParseInt(suffix[:20], 10, 64)
	if err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, ts), suffix[21:], nil
}
