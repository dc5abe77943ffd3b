package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orderguard/backend/internal/domain"
	"github.com/sirupsen/logrus"
)

// defaultHistoryLimit caps how many processed POs a history listing returns
const defaultHistoryLimit = 100

// OrderServiceConfig holds configuration for the order service
type OrderServiceConfig struct {
	CacheTTL       time.Duration
	MonthlyPOLimit int // 0 means unlimited
}

// ProcessResult is the outcome of one purchase order run
type ProcessResult struct {
	Order       *domain.ProcessedPO `json:"order"`
	EmailReport string              `json:"emailReport"`
}

// OrderService reconciles purchase orders against price books
type OrderService struct {
	books     domain.PriceBookRepository
	orders    domain.OrderRepository
	extractor domain.DocumentExtractor
	cache     domain.CacheRepository
	exporter  domain.ResultExporter
	cacheTTL  time.Duration
	poLimit   int
	now       func() time.Time
	log       *logrus.Entry

	// quotaMu serializes the final quota check with the save
	quotaMu sync.Mutex
}

// NewOrderService creates a new order service with dependencies.
// cache may be nil, in which case every PDF is sent to the extractor.
func NewOrderService(
	books domain.PriceBookRepository,
	orders domain.OrderRepository,
	extractor domain.DocumentExtractor,
	cache domain.CacheRepository,
	exporter domain.ResultExporter,
	config OrderServiceConfig,
	logger *logrus.Logger,
) *OrderService {
	cacheTTL := config.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 24 * time.Hour
	}

	return &OrderService{
		books:     books,
		orders:    orders,
		extractor: extractor,
		cache:     cache,
		exporter:  exporter,
		cacheTTL:  cacheTTL,
		poLimit:   config.MonthlyPOLimit,
		now:       time.Now,
		log:       logger.WithField("component", "orders"),
	}
}

// ProcessOrder extracts the PDF's line items, reconciles them against the
// selected price book and stores the outcome.
// Flow: quota -> load price book -> extract (cache first) -> reconcile -> persist
func (s *OrderService) ProcessOrder(
	ctx context.Context,
	orgID, bookID uuid.UUID,
	filename string,
	pdf []byte,
) (*ProcessResult, error) {
	if orgID == uuid.Nil || bookID == uuid.Nil || len(pdf) == 0 {
		return nil, domain.ErrInvalidRequest
	}

	now := s.now().UTC()
	if err := s.checkQuota(ctx, orgID, now); err != nil {
		return nil, err
	}

	book, err := s.books.GetPriceBook(ctx, orgID, bookID)
	if err != nil {
		return nil, err
	}
	items, err := s.books.ListPriceItems(ctx, orgID, bookID)
	if err != nil {
		return nil, err
	}
	// Surface an empty book before paying for an extraction call.
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %q", domain.ErrEmptyPriceBook, book.Name)
	}

	lines, err := s.extract(ctx, pdf)
	if err != nil {
		return nil, err
	}

	results, err := Reconcile(lines, domain.PriceMap(items))
	if err != nil {
		return nil, err
	}

	po := &domain.ProcessedPO{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Filename:       strings.TrimSpace(filename),
		PriceBookID:    book.ID,
		PriceBookName:  book.Name,
		ProcessedAt:    now,
		Summary:        Summarize(results),
		Results:        results,
	}
	if err := s.saveWithinQuota(ctx, po); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"organization_id":   orgID,
		"order_id":          po.ID,
		"price_book_id":     book.ID,
		"lines":             po.Summary.Total,
		"matched":           po.Summary.Matched,
		"mismatched":        po.Summary.Mismatched,
		"not_found":         po.Summary.NotFound,
		"extraction_issues": po.Summary.ExtractionIssues,
	}).Info("purchase order processed")

	return &ProcessResult{
		Order:       po,
		EmailReport: FormatEmail(results, book.Name),
	}, nil
}

// ListOrders returns the organization's processing history, newest first, without line results
func (s *OrderService) ListOrders(ctx context.Context, orgID uuid.UUID) ([]domain.ProcessedPO, error) {
	if orgID == uuid.Nil {
		return nil, domain.ErrInvalidRequest
	}
	return s.orders.ListProcessedPOs(ctx, orgID, defaultHistoryLimit)
}

// GetOrder returns one processed purchase order with its results
func (s *OrderService) GetOrder(ctx context.Context, orgID, poID uuid.UUID) (*domain.ProcessedPO, error) {
	if orgID == uuid.Nil || poID == uuid.Nil {
		return nil, domain.ErrInvalidRequest
	}
	return s.orders.GetProcessedPO(ctx, orgID, poID)
}

// GetReport re-renders the email summary of a stored purchase order
func (s *OrderService) GetReport(ctx context.Context, orgID, poID uuid.UUID) (string, error) {
	po, err := s.GetOrder(ctx, orgID, poID)
	if err != nil {
		return "", err
	}
	return FormatEmail(po.Results, po.PriceBookName), nil
}

// ExportOrder renders a stored purchase order as an XLSX workbook
func (s *OrderService) ExportOrder(ctx context.Context, orgID, poID uuid.UUID) ([]byte, error) {
	po, err := s.GetOrder(ctx, orgID, poID)
	if err != nil {
		return nil, err
	}
	return s.exporter.ExportResults(po)
}

// DeleteOrder removes a processed purchase order
func (s *OrderService) DeleteOrder(ctx context.Context, orgID, poID uuid.UUID) error {
	if orgID == uuid.Nil || poID == uuid.Nil {
		return domain.ErrInvalidRequest
	}
	return s.orders.DeleteProcessedPO(ctx, orgID, poID)
}

// checkQuota enforces the monthly purchase order allowance
func (s *OrderService) checkQuota(ctx context.Context, orgID uuid.UUID, now time.Time) error {
	if s.poLimit <= 0 {
		return nil
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	count, err := s.orders.CountProcessedPOsSince(ctx, orgID, monthStart)
	if err != nil {
		return err
	}
	if count >= s.poLimit {
		return fmt.Errorf("%w: %d of %d used", domain.ErrQuotaExceeded, count, s.poLimit)
	}
	return nil
}

// saveWithinQuota re-checks the allowance and stores po. Orders processed
// concurrently by this instance cannot push the month over the limit.
func (s *OrderService) saveWithinQuota(ctx context.Context, po *domain.ProcessedPO) error {
	if s.poLimit > 0 {
		s.quotaMu.Lock()
		defer s.quotaMu.Unlock()
		if err := s.checkQuota(ctx, po.OrganizationID, po.ProcessedAt); err != nil {
			return err
		}
	}

	if err := s.orders.SaveProcessedPO(ctx, po); err != nil {
		return fmt.Errorf("save processed purchase order: %w", err)
	}
	return nil
}

// extract returns cached line items for a previously seen PDF or calls the extractor
func (s *OrderService) extract(ctx context.Context, pdf []byte) ([]domain.ExtractedLineItem, error) {
	cacheKey := generateCacheKey(pdf)

	if lines, err := s.getFromCache(ctx, cacheKey); err == nil {
		s.log.WithField("cache_key", cacheKey).Debug("extraction cache hit")
		return lines, nil
	}

	lines, err := s.extractor.Extract(ctx, pdf)
	if err != nil {
		if !errors.Is(err, domain.ErrExtractionFailed) {
			err = fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
		}
		return nil, err
	}

	// Log but don't fail if caching fails
	if err := s.setInCache(ctx, cacheKey, lines); err != nil {
		s.log.WithError(err).Warn("failed to cache extraction result")
	}

	return lines, nil
}

// generateCacheKey creates a content-addressed cache key.
// Format: "extraction:{sha256 of the PDF bytes}"
func generateCacheKey(pdf []byte) string {
	sum := sha256.Sum256(pdf)
	return "extraction:" + hex.EncodeToString(sum[:])
}

// getFromCache retrieves extracted line items from cache
func (s *OrderService) getFromCache(ctx context.Context, key string) ([]domain.ExtractedLineItem, error) {
	if s.cache == nil {
		return nil, domain.ErrCacheMiss
	}

	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var lines []domain.ExtractedLineItem
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, domain.ErrCacheMiss
	}
	return lines, nil
}

// setInCache stores extracted line items in cache
func (s *OrderService) setInCache(ctx context.Context, key string, lines []domain.ExtractedLineItem) error {
	if s.cache == nil {
		return nil
	}

	raw, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, key, raw, s.cacheTTL)
}
