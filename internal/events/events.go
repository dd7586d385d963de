package events

import (
	"context"
	"log"
	"sync"
	"time"

	"drop-match-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventMatchCreated is emitted for every match the pairing engine writes
	EventMatchCreated EventType = "match.created"
	// EventMatchConfirmed is emitted when both participants accept
	EventMatchConfirmed EventType = "match.confirmed"
	// EventMatchDeclined is emitted when either participant declines
	EventMatchDeclined EventType = "match.declined"
	// EventMatchingCompleted is emitted after a full scheduler pass
	EventMatchingCompleted EventType = "matching.completed"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// MatchCreatedData contains data for match created events.
type MatchCreatedData struct {
	Match models.Match
}

// MatchResolvedData contains data for confirmed/declined events.
type MatchResolvedData struct {
	Match   models.Match
	Outcome models.Outcome
}

// MatchingCompletedData contains data for completed matching passes.
type MatchingCompletedData struct {
	Summary models.RunSummary
	RanAt   time.Time
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if !m.enabled {
		return
	}

	m.mu.RLock()
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Handlers run asynchronously; a slow subscriber must not block a
	// match transition. The context is detached because the handlers
	// outlive the request that published the event.
	ctx = context.WithoutCancel(ctx)
	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, event); err != nil {
				log.Printf("events: handler for %s failed: %v", event.Type, err)
			}
		}(handler)
	}
}

// PublishMatchCreated publishes a match created event.
func (m *Manager) PublishMatchCreated(ctx context.Context, match models.Match) {
	m.Publish(ctx, EventMatchCreated, MatchCreatedData{Match: match})
}

// PublishMatchResolved publishes the terminal event for a match.
func (m *Manager) PublishMatchResolved(ctx context.Context, match models.Match, outcome models.Outcome) {
	eventType := EventMatchDeclined
	if match.Status == models.MatchConfirmed {
		eventType = EventMatchConfirmed
	}
	m.Publish(ctx, eventType, MatchResolvedData{Match: match, Outcome: outcome})
}

// PublishMatchingCompleted publishes a matching pass summary.
func (m *Manager) PublishMatchingCompleted(ctx context.Context, summary models.RunSummary) {
	m.Publish(ctx, EventMatchingCompleted, MatchingCompletedData{
		Summary: summary,
		RanAt:   time.Now(),
	})
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
}
