package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the CloudEvents-style envelope this service publishes.
type Event struct {
	SpecVersion     string          `json:"specversion"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	ID              string          `json:"id"`
	Subject         string          `json:"subject"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	CorrelationID   string          `json:"correlationid,omitempty"`
	Data            json.RawMessage `json:"data"`
}

// NewEvent creates an event envelope. Subject carries the product ID so
// per-product ordering is preserved by topic partitioning.
func NewEvent(eventType, source, subject string, data json.RawMessage) *Event {
	return &Event{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          source,
		ID:              uuid.New().String(),
		Subject:         subject,
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}
}
