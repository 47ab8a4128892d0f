package kafka

import (
	"time"
)

// Config holds Kafka configuration
type Config struct {
	Brokers  []string
	ClientID string

	// Producer settings
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int // 0: no ack, 1: leader ack, -1: all replicas ack
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Brokers:  []string{"localhost:9092"},
		ClientID: "inventory-service",

		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,
	}
}

// TopicSet names the Kafka topics this service publishes to.
type TopicSet struct {
	InventoryEvents string
	MovementEvents  string
}

// Topics is the default topic set.
var Topics = TopicSet{
	InventoryEvents: "ims.inventory.events",
	MovementEvents:  "ims.movements.events",
}

// TopicConfig holds configuration for a Kafka topic
type TopicConfig struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	RetentionMs       int64
}

// DefaultTopicConfigs returns default configurations for the service topics.
// Movement events keep a longer retention because they back the audit trail
// consumers.
func DefaultTopicConfigs() []TopicConfig {
	return []TopicConfig{
		{Name: Topics.InventoryEvents, Partitions: 6, ReplicationFactor: 3, RetentionMs: 7 * 24 * 60 * 60 * 1000},
		{Name: Topics.MovementEvents, Partitions: 12, ReplicationFactor: 3, RetentionMs: 30 * 24 * 60 * 60 * 1000},
	}
}
