// Package bus provides event bus implementations for filter events.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations. Delivery is
// fire-and-forget: Publish does not wait for handlers.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type, usually the topic it was published on.
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// CorrelationID links the event to the HTTP request that caused it.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// NewEvent builds an event with a fresh ID and the current time.
func NewEvent(topic, source, correlationID string, payload any) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          topic,
		Source:        source,
		Timestamp:     time.Now().UnixMilli(),
		CorrelationID: correlationID,
		Payload:       payload,
	}
}

// DecodePayload converts the event payload into v. Events that crossed a
// broker arrive with a generic map payload, so this round-trips through JSON.
func DecodePayload(event Event, v any) error {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

// Topics for different event types.
const (
	// TopicDecision carries one DecisionPayload per filtered chat turn.
	TopicDecision = "filter.decision"

	// TopicStatus carries the status messages shown to the chat user.
	TopicStatus = "filter.status"

	// TopicSettingsChanged is published after the valves are updated.
	TopicSettingsChanged = "settings.changed"
)

// DecisionPayload is the payload of TopicDecision.
type DecisionPayload struct {
	Mode        string `json:"mode"`
	Enabled     bool   `json:"enabled"`
	Reason      string `json:"reason"`
	Category    string `json:"category"`
	ResultCount int    `json:"result_count,omitempty"`
	Score       int    `json:"score"`
	ChatID      string `json:"chat_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Query       string `json:"query,omitempty"` // sanitized and truncated
	Prefetched  int    `json:"prefetched,omitempty"`
}

// StatusPayload is the payload of TopicStatus.
type StatusPayload struct {
	Level       string `json:"level"`
	Description string `json:"description"`
	Done        bool   `json:"done"`
}

// SettingsPayload is the payload of TopicSettingsChanged.
type SettingsPayload struct {
	Version   int    `json:"version"`
	ChangedBy string `json:"changed_by,omitempty"`
	Mode      string `json:"mode"`
}
