package application

import (
	"context"
	"sort"
	"time"

	"github.com/ims-platform/inventory-service/internal/domain"
	apperrors "github.com/ims-platform/inventory-service/pkg/errors"
	"github.com/ims-platform/inventory-service/pkg/logging"
)

// reportScanPageSize bounds each store page while building a report.
const reportScanPageSize = 500

// ReportApplicationService builds stock level reports from full store scans.
// Reports read committed record state only; they never consult the ledger.
type ReportApplicationService struct {
	store  domain.InventoryStore
	logger *logging.Logger
}

// NewReportApplicationService creates a new ReportApplicationService
func NewReportApplicationService(store domain.InventoryStore, logger *logging.Logger) *ReportApplicationService {
	return &ReportApplicationService{
		store:  store,
		logger: logger,
	}
}

// LowStockReport lists products with stock at or below their reorder
// threshold, most urgent first. Urgency is the quantity to threshold ratio;
// out-of-stock products are excluded so the two reports stay disjoint. A
// threshold override replaces every record's own threshold for this report
// only.
func (s *ReportApplicationService) LowStockReport(ctx context.Context, query LowStockQuery) (*LowStockReportDTO, error) {
	if query.ThresholdOverride != nil && *query.ThresholdOverride < 0 {
		return nil, apperrors.ErrValidation("threshold override must not be negative")
	}

	records, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]LowStockItemDTO, 0)
	for _, record := range records {
		threshold := record.ReorderThreshold
		if query.ThresholdOverride != nil {
			threshold = *query.ThresholdOverride
		}
		if record.Quantity == 0 || record.Quantity > threshold {
			continue
		}
		item := ToLowStockItemDTO(record)
		if query.ThresholdOverride != nil {
			item.StockRatio = float64(record.Quantity) / float64(threshold)
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].StockRatio != items[j].StockRatio {
			return items[i].StockRatio < items[j].StockRatio
		}
		return items[i].ProductID < items[j].ProductID
	})

	s.logger.Info("Generated low stock report", "itemCount", len(items))
	return &LowStockReportDTO{Items: items, GeneratedAt: time.Now().UTC()}, nil
}

// OutOfStockReport lists products with zero on-hand stock, most recently
// updated first.
func (s *ReportApplicationService) OutOfStockReport(ctx context.Context) (*OutOfStockReportDTO, error) {
	records, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]OutOfStockItemDTO, 0)
	for _, record := range records {
		if record.IsOutOfStock() {
			items = append(items, ToOutOfStockItemDTO(record))
		}
	}

	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ProductID < items[j].ProductID
	})

	s.logger.Info("Generated out of stock report", "itemCount", len(items))
	return &OutOfStockReportDTO{Items: items, GeneratedAt: time.Now().UTC()}, nil
}

// SummaryReport aggregates totals across all inventory records
func (s *ReportApplicationService) SummaryReport(ctx context.Context) (*SummaryReportDTO, error) {
	records, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &SummaryReportDTO{GeneratedAt: time.Now().UTC()}
	for _, record := range records {
		report.TotalProducts++
		report.TotalQuantity += record.Quantity
		report.TotalReserved += record.ReservedQuantity
		if record.IsLowStock() {
			report.LowStockCount++
		}
		if record.IsOutOfStock() {
			report.OutOfStockCount++
		}
	}
	return report, nil
}

// scanAll walks every store page. Each page is a consistent read but the
// report as a whole is a point-in-time approximation under concurrent writes.
func (s *ReportApplicationService) scanAll(ctx context.Context) ([]*domain.InventoryRecord, error) {
	var all []*domain.InventoryRecord
	cursor := ""
	for {
		records, nextCursor, err := s.store.Scan(ctx, cursor, reportScanPageSize)
		if err != nil {
			s.logger.Error("Failed to scan inventory records", "error", err)
			return nil, apperrors.ErrInternal("failed to scan inventory records").Wrap(err)
		}
		all = append(all, records...)
		if nextCursor == "" {
			return all, nil
		}
		cursor = nextCursor
	}
}
