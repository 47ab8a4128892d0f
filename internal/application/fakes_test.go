package application

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/ims-platform/inventory-service/internal/domain"
	"github.com/ims-platform/inventory-service/pkg/api"
	"github.com/ims-platform/inventory-service/pkg/logging"
	"github.com/ims-platform/inventory-service/pkg/metrics"
	"github.com/ims-platform/inventory-service/pkg/outbox"
)

// fakeStore is an in-memory InventoryStore with real compare-and-swap
// semantics so concurrency tests exercise the same conflict paths as the
// MongoDB implementation. Like the real store, it drains the aggregate's
// pending events into the outbox when a write lands.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*domain.InventoryRecord
	outbox  *fakeOutbox

	// beforeCAS runs inside CompareAndSwap before the version check,
	// letting tests interleave a competing write.
	beforeCAS func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*domain.InventoryRecord)}
}

func (s *fakeStore) Get(_ context.Context, productID string) (*domain.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *fakeStore) CreateIfAbsent(_ context.Context, record *domain.InventoryRecord) (*domain.InventoryRecord, error) {
	events := record.PullEvents()
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[record.ProductID]; ok {
		return existing.Clone(), domain.ErrAlreadyExists
	}
	s.records[record.ProductID] = record.Clone()
	s.saveEvents(record, events)
	return record.Clone(), nil
}

func (s *fakeStore) CompareAndSwap(_ context.Context, expectedVersion int64, record *domain.InventoryRecord) error {
	if s.beforeCAS != nil {
		s.beforeCAS()
	}
	events := record.PullEvents()
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[record.ProductID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	s.records[record.ProductID] = record.Clone()
	s.saveEvents(record, events)
	return nil
}

func (s *fakeStore) saveEvents(record *domain.InventoryRecord, eventTypes []string) {
	if s.outbox == nil {
		return
	}
	for _, eventType := range eventTypes {
		event, err := outbox.NewEvent(record.ProductID, "inventory", eventType, "", record)
		if err != nil {
			panic(err)
		}
		s.outbox.mu.Lock()
		s.outbox.events = append(s.outbox.events, event)
		s.outbox.mu.Unlock()
	}
}

func (s *fakeStore) Scan(_ context.Context, cursor string, limit int) ([]*domain.InventoryRecord, string, error) {
	boundary, err := api.DecodeCursor(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		if boundary == "" || id > boundary {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var page []*domain.InventoryRecord
	for _, id := range ids {
		if len(page) == limit {
			return page, api.EncodeCursor(page[len(page)-1].ProductID), nil
		}
		page = append(page, s.records[id].Clone())
	}
	return page, "", nil
}

// fakeLedger is an in-memory MovementLedger with movement ID uniqueness.
type fakeLedger struct {
	mu        sync.Mutex
	byID      map[string]*domain.StockMovement
	byProduct map[string][]*domain.StockMovement
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		byID:      make(map[string]*domain.StockMovement),
		byProduct: make(map[string][]*domain.StockMovement),
	}
}

func (l *fakeLedger) Append(_ context.Context, movement *domain.StockMovement) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byID[movement.MovementID]; ok {
		return domain.ErrDuplicateMovement
	}
	copied := *movement
	l.byID[movement.MovementID] = &copied
	l.byProduct[movement.ProductID] = append(l.byProduct[movement.ProductID], &copied)
	return nil
}

func (l *fakeLedger) FindByMovementID(_ context.Context, movementID string) (*domain.StockMovement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	movement, ok := l.byID[movementID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *movement
	return &copied, nil
}

func (l *fakeLedger) ListByProduct(_ context.Context, productID, cursor string, limit int) ([]*domain.StockMovement, string, error) {
	start := 0
	if cursor != "" {
		raw, err := api.DecodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
		}
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
		}
		start = offset
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.byProduct[productID]
	var page []*domain.StockMovement
	for i := start; i < len(entries) && len(page) < limit; i++ {
		copied := *entries[i]
		page = append(page, &copied)
	}

	next := ""
	if start+len(page) < len(entries) {
		next = api.EncodeCursor(strconv.Itoa(start + len(page)))
	}
	return page, next, nil
}

// fakeOutbox collects saved events for assertions.
type fakeOutbox struct {
	mu     sync.Mutex
	events []*outbox.Event
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{}
}

func (o *fakeOutbox) Save(_ context.Context, event *outbox.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return nil
}

func (o *fakeOutbox) FindUnpublished(_ context.Context, _ int) ([]*outbox.Event, error) {
	return nil, nil
}

func (o *fakeOutbox) MarkPublished(_ context.Context, _ string) error {
	return nil
}

func (o *fakeOutbox) IncrementRetry(_ context.Context, _, _ string) error {
	return nil
}

func (o *fakeOutbox) eventTypes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	types := make([]string, 0, len(o.events))
	for _, e := range o.events {
		types = append(types, e.EventType)
	}
	return types
}

type serviceFixture struct {
	store   *fakeStore
	ledger  *fakeLedger
	outbox  *fakeOutbox
	service *StockApplicationService
	reports *ReportApplicationService
}

func newServiceFixture() *serviceFixture {
	store := newFakeStore()
	ledger := newFakeLedger()
	outboxRepo := newFakeOutbox()
	store.outbox = outboxRepo
	logger := logging.New(&logging.Config{ServiceName: "inventory-service-test", Output: io.Discard})
	m := metrics.New(metrics.DefaultConfig("inventory-service-test"))

	return &serviceFixture{
		store:   store,
		ledger:  ledger,
		outbox:  outboxRepo,
		service: NewStockApplicationService(store, ledger, DefaultStockServiceConfig(), m, logger),
		reports: NewReportApplicationService(store, logger),
	}
}
