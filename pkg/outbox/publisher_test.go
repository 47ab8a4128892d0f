package outbox

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ims-platform/inventory-service/pkg/kafka"
	"github.com/ims-platform/inventory-service/pkg/logging"
)

type stubRepository struct {
	unpublished []*Event
	published   []string
	retried     []string
}

func (r *stubRepository) Save(_ context.Context, event *Event) error {
	r.unpublished = append(r.unpublished, event)
	return nil
}

func (r *stubRepository) FindUnpublished(_ context.Context, limit int) ([]*Event, error) {
	if len(r.unpublished) > limit {
		return r.unpublished[:limit], nil
	}
	return r.unpublished, nil
}

func (r *stubRepository) MarkPublished(_ context.Context, eventID string) error {
	r.published = append(r.published, eventID)
	return nil
}

func (r *stubRepository) IncrementRetry(_ context.Context, eventID, _ string) error {
	r.retried = append(r.retried, eventID)
	return nil
}

type stubProducer struct {
	batches  map[string][][]*kafka.Event
	failures map[string]error
}

func newStubProducer() *stubProducer {
	return &stubProducer{batches: make(map[string][][]*kafka.Event), failures: make(map[string]error)}
}

func (p *stubProducer) PublishEvent(ctx context.Context, topic string, event *kafka.Event) error {
	return p.PublishBatch(ctx, topic, []*kafka.Event{event})
}

func (p *stubProducer) PublishBatch(_ context.Context, topic string, events []*kafka.Event) error {
	if err := p.failures[topic]; err != nil {
		return err
	}
	p.batches[topic] = append(p.batches[topic], events)
	return nil
}

func mustEvent(t *testing.T, aggregateID, eventType, topic string) *Event {
	t.Helper()
	event, err := NewEvent(aggregateID, "inventory", eventType, topic, map[string]string{"productId": aggregateID})
	require.NoError(t, err)
	return event
}

func newTestPublisher(repo Repository, producer EventProducer) *Publisher {
	logger := logging.New(&logging.Config{ServiceName: "outbox-test", Output: io.Discard})
	return NewPublisher(repo, producer, logger, DefaultPublisherConfig("/outbox-test"))
}

func TestPublisher_ProcessEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("batches events per topic in outbox order", func(t *testing.T) {
		repo := &stubRepository{}
		producer := newStubProducer()
		publisher := newTestPublisher(repo, producer)

		e1 := mustEvent(t, "SKU-100", "stock.added", "inventory-movements")
		e2 := mustEvent(t, "SKU-100", "threshold.updated", "inventory-events")
		e3 := mustEvent(t, "SKU-200", "stock.removed", "inventory-movements")
		repo.unpublished = []*Event{e1, e2, e3}

		publisher.processEvents(ctx)

		require.Len(t, producer.batches["inventory-movements"], 1)
		movementBatch := producer.batches["inventory-movements"][0]
		require.Len(t, movementBatch, 2)
		assert.Equal(t, e1.ID, movementBatch[0].ID)
		assert.Equal(t, e3.ID, movementBatch[1].ID)

		require.Len(t, producer.batches["inventory-events"], 1)
		assert.ElementsMatch(t, []string{e1.ID, e2.ID, e3.ID}, repo.published)
		assert.Empty(t, repo.retried)
		assert.Equal(t, 3, publisher.Stats()["published"])
	})

	t.Run("failed batch marks every event for retry", func(t *testing.T) {
		repo := &stubRepository{}
		producer := newStubProducer()
		producer.failures["inventory-movements"] = fmt.Errorf("broker unavailable")
		publisher := newTestPublisher(repo, producer)

		e1 := mustEvent(t, "SKU-100", "stock.added", "inventory-movements")
		e2 := mustEvent(t, "SKU-100", "threshold.updated", "inventory-events")
		repo.unpublished = []*Event{e1, e2}

		publisher.processEvents(ctx)

		assert.Equal(t, []string{e1.ID}, repo.retried)
		assert.Equal(t, []string{e2.ID}, repo.published)
		assert.Equal(t, 1, publisher.Stats()["failed"])
		assert.Equal(t, 1, publisher.Stats()["published"])
	})
}
