package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/ims-platform/inventory-service/pkg/logging"
	"github.com/ims-platform/inventory-service/pkg/metrics"
	"github.com/ims-platform/inventory-service/pkg/resilience"
)

// CircuitBreakerProducer wraps Producer with circuit breaker protection and
// publish instrumentation.
type CircuitBreakerProducer struct {
	producer       *Producer
	circuitBreaker *resilience.CircuitBreaker
	metrics        *metrics.Metrics
	logger         *logging.Logger
}

// NewCircuitBreakerProducer creates a circuit-breaker protected producer.
// metrics may be nil.
func NewCircuitBreakerProducer(producer *Producer, m *metrics.Metrics, logger *logging.Logger) *CircuitBreakerProducer {
	config := &resilience.CircuitBreakerConfig{
		Name:                  "kafka-producer",
		MaxRequests:           5,
		Interval:              time.Minute,
		Timeout:               30 * time.Second,
		FailureThreshold:      5,
		FailureRatioThreshold: 0.5,
		MinRequestsToTrip:     10,
	}

	var slogLogger *slog.Logger
	if logger != nil && logger.Logger != nil {
		slogLogger = logger.Logger
	} else {
		slogLogger = slog.Default()
	}

	var onState resilience.StateChangeFunc
	if m != nil {
		onState = func(name string, state int) {
			m.SetCircuitBreakerState(name, state)
			if state == 2 {
				m.RecordCircuitBreakerTrip(name)
			}
		}
	}

	return &CircuitBreakerProducer{
		producer:       producer,
		circuitBreaker: resilience.NewCircuitBreaker(config, slogLogger, onState),
		metrics:        m,
		logger:         logger,
	}
}

// PublishEvent publishes an event with circuit breaker protection
func (p *CircuitBreakerProducer) PublishEvent(ctx context.Context, topic string, event *Event) error {
	start := time.Now()

	_, err := p.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return nil, p.producer.PublishEvent(ctx, topic, event)
	})

	duration := time.Since(start)
	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, duration)
	}
	if p.logger != nil {
		p.logger.KafkaPublish(ctx, topic, event.Type, err == nil, duration)
	}

	return err
}

// PublishBatch publishes multiple events with circuit breaker protection
func (p *CircuitBreakerProducer) PublishBatch(ctx context.Context, topic string, events []*Event) error {
	_, err := p.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return nil, p.producer.PublishBatch(ctx, topic, events)
	})
	return err
}

// Close closes the underlying producer
func (p *CircuitBreakerProducer) Close() error {
	return p.producer.Close()
}
