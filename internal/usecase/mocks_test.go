package usecase

import (
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/orderguard/backend/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func strPtr(s string) *string {
	return &s
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func line(model, price string) domain.ExtractedLineItem {
	item := domain.ExtractedLineItem{}
	if model != "" {
		item.ModelCandidate = strPtr(model)
	}
	if price != "" {
		item.PriceCandidate = decPtr(price)
	}
	return item
}

func newTestLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

// MockCacheRepository is a mock implementation of domain.CacheRepository
type MockCacheRepository struct {
	data      map[string][]byte
	getError  error
	setError  error
	getCalled bool
	setCalled bool
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		data: make(map[string][]byte),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	m.getCalled = true
	if m.getError != nil {
		return nil, m.getError
	}
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, domain.ErrCacheMiss
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.setCalled = true
	if m.setError != nil {
		return m.setError
	}
	m.data[key] = value
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *MockCacheRepository) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.data[key]
	return ok, nil
}

// MockExtractor is a mock implementation of domain.DocumentExtractor
type MockExtractor struct {
	items     []domain.ExtractedLineItem
	err       error
	calls     int
	onExtract func()
}

func (m *MockExtractor) Extract(ctx context.Context, pdf []byte) ([]domain.ExtractedLineItem, error) {
	m.calls++
	if m.onExtract != nil {
		m.onExtract()
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.items, nil
}

// MockParser is a mock implementation of domain.PriceBookParser
type MockParser struct {
	result *domain.PriceBookImport
	err    error
}

func (m *MockParser) ParsePriceBook(r io.Reader) (*domain.PriceBookImport, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// MockExporter is a mock implementation of domain.ResultExporter
type MockExporter struct {
	exported *domain.ProcessedPO
}

func (m *MockExporter) ExportResults(po *domain.ProcessedPO) ([]byte, error) {
	m.exported = po
	return []byte("xlsx"), nil
}

// MockStore is an in-memory domain.PriceBookRepository and domain.OrderRepository
type MockStore struct {
	books    map[uuid.UUID]domain.PriceBook
	items    map[uuid.UUID][]domain.PriceItem
	orders   map[uuid.UUID]domain.ProcessedPO
	countErr error
	saveErr  error
}

func NewMockStore() *MockStore {
	return &MockStore{
		books:  make(map[uuid.UUID]domain.PriceBook),
		items:  make(map[uuid.UUID][]domain.PriceItem),
		orders: make(map[uuid.UUID]domain.ProcessedPO),
	}
}

func (m *MockStore) addBook(orgID uuid.UUID, name string, items ...domain.PriceItem) domain.PriceBook {
	book := domain.PriceBook{ID: uuid.New(), OrganizationID: orgID, Name: name, ItemCount: len(items)}
	m.books[book.ID] = book
	m.items[book.ID] = items
	return book
}

func (m *MockStore) CreatePriceBook(ctx context.Context, book *domain.PriceBook, items []domain.PriceItem) error {
	m.books[book.ID] = *book
	m.items[book.ID] = items
	return nil
}

func (m *MockStore) ReplacePriceItems(ctx context.Context, orgID, bookID uuid.UUID, items []domain.PriceItem) (*domain.PriceBook, error) {
	book, err := m.GetPriceBook(ctx, orgID, bookID)
	if err != nil {
		return nil, err
	}
	book.ItemCount = len(items)
	m.books[bookID] = *book
	m.items[bookID] = items
	return book, nil
}

func (m *MockStore) GetPriceBook(ctx context.Context, orgID, bookID uuid.UUID) (*domain.PriceBook, error) {
	book, ok := m.books[bookID]
	if !ok || book.OrganizationID != orgID {
		return nil, domain.ErrPriceBookNotFound
	}
	return &book, nil
}

func (m *MockStore) GetPriceBookByName(ctx context.Context, orgID uuid.UUID, name string) (*domain.PriceBook, error) {
	for _, book := range m.books {
		if book.OrganizationID == orgID && book.Name == name {
			return &book, nil
		}
	}
	return nil, domain.ErrPriceBookNotFound
}

func (m *MockStore) ListPriceBooks(ctx context.Context, orgID uuid.UUID, search string) ([]domain.PriceBook, error) {
	var books []domain.PriceBook
	for _, book := range m.books {
		if book.OrganizationID == orgID && strings.Contains(strings.ToLower(book.Name), strings.ToLower(search)) {
			books = append(books, book)
		}
	}
	sort.Slice(books, func(i, j int) bool { return books[i].Name < books[j].Name })
	return books, nil
}

func (m *MockStore) ListPriceItems(ctx context.Context, orgID, bookID uuid.UUID) ([]domain.PriceItem, error) {
	if _, err := m.GetPriceBook(ctx, orgID, bookID); err != nil {
		return nil, err
	}
	return m.items[bookID], nil
}

func (m *MockStore) DeletePriceBook(ctx context.Context, orgID, bookID uuid.UUID) error {
	if _, err := m.GetPriceBook(ctx, orgID, bookID); err != nil {
		return err
	}
	delete(m.books, bookID)
	delete(m.items, bookID)
	return nil
}

func (m *MockStore) SaveProcessedPO(ctx context.Context, po *domain.ProcessedPO) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.orders[po.ID] = *po
	return nil
}

func (m *MockStore) GetProcessedPO(ctx context.Context, orgID, poID uuid.UUID) (*domain.ProcessedPO, error) {
	po, ok := m.orders[poID]
	if !ok || po.OrganizationID != orgID {
		return nil, domain.ErrOrderNotFound
	}
	return &po, nil
}

func (m *MockStore) ListProcessedPOs(ctx context.Context, orgID uuid.UUID, limit int) ([]domain.ProcessedPO, error) {
	var orders []domain.ProcessedPO
	for _, po := range m.orders {
		if po.OrganizationID == orgID {
			po.Results = nil
			orders = append(orders, po)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ProcessedAt.After(orders[j].ProcessedAt) })
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (m *MockStore) CountProcessedPOsSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	count := 0
	for _, po := range m.orders {
		if po.OrganizationID == orgID && !po.ProcessedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MockStore) DeleteProcessedPO(ctx context.Context, orgID, poID uuid.UUID) error {
	if _, err := m.GetProcessedPO(ctx, orgID, poID); err != nil {
		return err
	}
	delete(m.orders, poID)
	return nil
}
