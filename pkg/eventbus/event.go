// Package eventbus implements an in-process priority pub/sub bus with
// wildcard routing, request/response correlation, replay, and
// dead-lettering, optionally backed by a durable stream for multi-process
// delivery (spec.md §4.1).
package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Event is the unit of pub/sub delivery.
type Event struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	Source        string         `json:"source"`
	Destination   string         `json:"destination,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	Priority      int            `json:"priority"`
	Timestamp     time.Time      `json:"timestamp"`
	TTLSeconds    int            `json:"ttl_seconds,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	RetryCount    int            `json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	AckID         string         `json:"ack_id,omitempty"`
}

// New creates an Event with a fresh id and the current timestamp.
func New(eventType, source string, payload map[string]any) Event {
	return Event{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Source:    source,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Expired reports whether the event's TTL has elapsed (spec.md §3: expired
// events are dead-lettered, never delivered).
func (e Event) Expired() bool {
	if e.TTLSeconds <= 0 {
		return false
	}
	return time.Now().After(e.Timestamp.Add(time.Duration(e.TTLSeconds) * time.Second))
}

// Handler asynchronously processes a delivered event. An error return
// triggers the retry-with-demotion / dead-letter path in the dispatcher.
type Handler func(Event) error

// Interceptor may mutate an event before it is enqueued (e.g. to stamp
// metadata). Returning a non-nil error aborts publish.
type Interceptor func(*Event) error

// Filter may veto delivery of an already-validated event.
type Filter func(Event) bool
