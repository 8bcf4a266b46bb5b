// Package events implements the conductor's pub/sub event bus. Node
// lifecycle changes and task progress are published here and fanned out
// to subscribers such as the websocket handler.
package events

import (
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/interfaces"
)

// Service implements EventService with an in-process pub/sub pattern
type Service struct {
	subscribers map[interfaces.EventType][]interfaces.EventHandler
	all         []interfaces.EventHandler
	mu          sync.RWMutex
	closed      bool
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[interfaces.EventType][]interfaces.EventHandler),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) {
	if handler == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[eventType] = append(s.subscribers[eventType], handler)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")
}

// SubscribeAll registers a handler for every event
func (s *Service) SubscribeAll(handler interfaces.EventHandler) {
	if handler == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, handler)
}

func (s *Service) handlersFor(eventType interfaces.EventType) []interfaces.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}

	handlers := make([]interfaces.EventHandler, 0, len(s.subscribers[eventType])+len(s.all))
	handlers = append(handlers, s.subscribers[eventType]...)
	handlers = append(handlers, s.all...)
	return handlers
}

// Publish sends an event to all subscribers asynchronously
func (s *Service) Publish(event interfaces.Event) {
	handlers := s.handlersFor(event.Type)
	if len(handlers) == 0 {
		return
	}

	for _, handler := range handlers {
		go func(h interfaces.EventHandler) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().
						Str("event_type", string(event.Type)).
						Msgf("Event handler panicked: %v", r)
				}
			}()
			h(event)
		}(handler)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (s *Service) PublishSync(event interfaces.Event) {
	handlers := s.handlersFor(event.Type)
	if len(handlers) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h interfaces.EventHandler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().
						Str("event_type", string(event.Type)).
						Msgf("Event handler panicked: %v", r)
				}
			}()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Close stops delivery of further events
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.logger.Debug().Msg("Event service closed")
}
