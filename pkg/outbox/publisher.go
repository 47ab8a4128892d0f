package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ims-platform/inventory-service/pkg/kafka"
	"github.com/ims-platform/inventory-service/pkg/logging"
)

// EventProducer is the publishing side the publisher drains the outbox
// into. Satisfied by kafka.CircuitBreakerProducer.
type EventProducer interface {
	PublishEvent(ctx context.Context, topic string, event *kafka.Event) error
	PublishBatch(ctx context.Context, topic string, events []*kafka.Event) error
}

// Publisher drains unpublished outbox events to Kafka on a poll interval.
type Publisher struct {
	repo      Repository
	producer  EventProducer
	logger    *logging.Logger
	source    string
	interval  time.Duration
	batchSize int

	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	stoppedCh    chan struct{}
	publishedCnt int
	failedCnt    int
}

// PublisherConfig holds configuration for the outbox publisher
type PublisherConfig struct {
	Source       string
	PollInterval time.Duration
	BatchSize    int
}

// DefaultPublisherConfig returns default configuration
func DefaultPublisherConfig(source string) *PublisherConfig {
	return &PublisherConfig{
		Source:       source,
		PollInterval: 1 * time.Second,
		BatchSize:    100,
	}
}

// NewPublisher creates a new outbox publisher
func NewPublisher(repo Repository, producer EventProducer, logger *logging.Logger, config *PublisherConfig) *Publisher {
	if config == nil {
		config = DefaultPublisherConfig("outbox")
	}

	return &Publisher{
		repo:      repo,
		producer:  producer,
		logger:    logger,
		source:    config.Source,
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start starts the publisher loop
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("publisher already running")
	}
	p.running = true
	p.mu.Unlock()

	p.logger.Info("Starting outbox publisher", "interval", p.interval, "batchSize", p.batchSize)

	go p.run(ctx)
	return nil
}

// Stop stops the publisher loop and waits for it to exit
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("publisher not running")
	}
	p.mu.Unlock()

	close(p.stopCh)
	<-p.stoppedCh

	p.mu.Lock()
	p.running = false
	published, failed := p.publishedCnt, p.failedCnt
	p.mu.Unlock()

	p.logger.Info("Outbox publisher stopped", "published", published, "failed", failed)
	return nil
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.stoppedCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.processEvents(ctx)
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Publisher) processEvents(ctx context.Context) {
	events, err := p.repo.FindUnpublished(ctx, p.batchSize)
	if err != nil {
		p.logger.WithError(err).Error("Failed to find unpublished events")
		return
	}

	if len(events) == 0 {
		return
	}

	for _, group := range groupByTopic(events) {
		p.publishGroup(ctx, group)
	}
}

// topicGroup is one topic's slice of a poll batch, in outbox order.
type topicGroup struct {
	topic  string
	events []*Event
}

// groupByTopic splits a batch into per-topic runs, preserving the relative
// order of events within each topic.
func groupByTopic(events []*Event) []topicGroup {
	var groups []topicGroup
	index := make(map[string]int)
	for _, event := range events {
		i, ok := index[event.Topic]
		if !ok {
			i = len(groups)
			index[event.Topic] = i
			groups = append(groups, topicGroup{topic: event.Topic})
		}
		groups[i].events = append(groups[i].events, event)
	}
	return groups
}

// publishGroup sends one topic's events as a single batch. Kafka writes are
// all-or-nothing per batch, so a failure marks every event for retry.
func (p *Publisher) publishGroup(ctx context.Context, group topicGroup) {
	batch := make([]*kafka.Event, 0, len(group.events))
	for _, event := range group.events {
		batch = append(batch, event.ToKafkaEvent(p.source))
	}

	if err := p.producer.PublishBatch(ctx, group.topic, batch); err != nil {
		p.logger.WithError(err).Error("Failed to publish outbox batch",
			"topic", group.topic,
			"count", len(group.events),
		)
		for _, event := range group.events {
			p.countFailed()
			if err := p.repo.IncrementRetry(ctx, event.ID, err.Error()); err != nil {
				p.logger.WithError(err).Error("Failed to increment retry count", "eventId", event.ID)
			}
		}
		return
	}

	for _, event := range group.events {
		p.countPublished()
		if err := p.repo.MarkPublished(ctx, event.ID); err != nil {
			p.logger.WithError(err).Error("Failed to mark event as published", "eventId", event.ID)
		}
	}
}

func (p *Publisher) countPublished() {
	p.mu.Lock()
	p.publishedCnt++
	p.mu.Unlock()
}

func (p *Publisher) countFailed() {
	p.mu.Lock()
	p.failedCnt++
	p.mu.Unlock()
}

// IsRunning returns whether the publisher is running
func (p *Publisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats returns publish counters
func (p *Publisher) Stats() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]int{
		"published": p.publishedCnt,
		"failed":    p.failedCnt,
	}
}
