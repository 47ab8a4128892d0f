package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ims-platform/inventory-service/pkg/kafka"
)

// Event represents an event stored in the outbox for reliable delivery. It
// is written in the same transaction as the state change it describes and
// published to Kafka by the background publisher.
type Event struct {
	ID            string          `bson:"_id" json:"id"`
	AggregateID   string          `bson:"aggregate_id" json:"aggregateId"`
	AggregateType string          `bson:"aggregate_type" json:"aggregateType"`
	EventType     string          `bson:"event_type" json:"eventType"`
	Topic         string          `bson:"topic" json:"topic"`
	Payload       json.RawMessage `bson:"payload" json:"payload"`
	CreatedAt     time.Time       `bson:"created_at" json:"createdAt"`
	PublishedAt   *time.Time      `bson:"published_at,omitempty" json:"publishedAt,omitempty"`
	RetryCount    int             `bson:"retry_count" json:"retryCount"`
	LastError     string          `bson:"last_error,omitempty" json:"lastError,omitempty"`
	MaxRetries    int             `bson:"max_retries" json:"maxRetries"`
}

// NewEvent creates an outbox event wrapping an arbitrary payload.
func NewEvent(aggregateID, aggregateType, eventType, topic string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Topic:         topic,
		Payload:       data,
		CreatedAt:     time.Now().UTC(),
		RetryCount:    0,
		MaxRetries:    10,
	}, nil
}

// IsPublished checks if the event has been published
func (e *Event) IsPublished() bool {
	return e.PublishedAt != nil
}

// ShouldRetry checks if the event should be retried
func (e *Event) ShouldRetry() bool {
	return !e.IsPublished() && e.RetryCount < e.MaxRetries
}

// ToKafkaEvent wraps the outbox payload in the Kafka event envelope. The
// aggregate ID becomes the subject so partitioning preserves per-product
// ordering.
func (e *Event) ToKafkaEvent(source string) *kafka.Event {
	ev := kafka.NewEvent(e.EventType, source, e.AggregateID, e.Payload)
	ev.ID = e.ID
	ev.Time = e.CreatedAt
	return ev
}
