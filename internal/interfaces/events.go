package interfaces

import (
	"context"
	"time"
)

// EventType represents different event types in the system
type EventType string

const (
	EventAnalysisStarted   EventType = "analysis.started"
	EventFragmentCompleted EventType = "fragment.completed"
	EventAnalysisCompleted EventType = "analysis.completed"
	EventAnalysisFailed    EventType = "analysis.failed"
	EventDeferredQueued    EventType = "deferred.queued"
	EventDeferredCompleted EventType = "deferred.completed"
	EventBatchRowCompleted EventType = "batch.row_completed"
	EventPrewarmCompleted  EventType = "prewarm.completed"

	// EventAny subscribes to every published event. Used by the
	// websocket hub so clients see the whole stream.
	EventAny EventType = "*"
)

// Event represents a system event
type Event struct {
	Type    EventType   `json:"type"`
	Ticker  string      `json:"ticker,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Unsubscribe from an event type
	Unsubscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
