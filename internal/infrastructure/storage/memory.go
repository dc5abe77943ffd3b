package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orderguard/backend/internal/domain"
)

// MemoryStore is a process-local domain.Store for tests and demos
type MemoryStore struct {
	mu     sync.RWMutex
	books  map[uuid.UUID]domain.PriceBook
	items  map[uuid.UUID][]domain.PriceItem
	orders map[uuid.UUID]domain.ProcessedPO
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:  make(map[uuid.UUID]domain.PriceBook),
		items:  make(map[uuid.UUID][]domain.PriceItem),
		orders: make(map[uuid.UUID]domain.ProcessedPO),
	}
}

func (s *MemoryStore) CreatePriceBook(ctx context.Context, book *domain.PriceBook, items []domain.PriceItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.books {
		if existing.OrganizationID == book.OrganizationID && existing.Name == book.Name {
			return fmt.Errorf("%w: %q", domain.ErrPriceBookExists, book.Name)
		}
	}

	book.ItemCount = len(items)
	s.books[book.ID] = *book
	s.items[book.ID] = append([]domain.PriceItem(nil), items...)
	return nil
}

func (s *MemoryStore) ReplacePriceItems(ctx context.Context, orgID, bookID uuid.UUID, items []domain.PriceItem) (*domain.PriceBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[bookID]
	if !ok || book.OrganizationID != orgID {
		return nil, domain.ErrPriceBookNotFound
	}

	book.ItemCount = len(items)
	book.UpdatedAt = time.Now().UTC()
	s.books[bookID] = book
	s.items[bookID] = append([]domain.PriceItem(nil), items...)
	return &book, nil
}

func (s *MemoryStore) GetPriceBook(ctx context.Context, orgID, bookID uuid.UUID) (*domain.PriceBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[bookID]
	if !ok || book.OrganizationID != orgID {
		return nil, domain.ErrPriceBookNotFound
	}
	return &book, nil
}

func (s *MemoryStore) GetPriceBookByName(ctx context.Context, orgID uuid.UUID, name string) (*domain.PriceBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, book := range s.books {
		if book.OrganizationID == orgID && book.Name == name {
			return &book, nil
		}
	}
	return nil, domain.ErrPriceBookNotFound
}

func (s *MemoryStore) ListPriceBooks(ctx context.Context, orgID uuid.UUID, search string) ([]domain.PriceBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(search)
	books := []domain.PriceBook{}
	for _, book := range s.books {
		if book.OrganizationID != orgID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(book.Name), search) {
			continue
		}
		books = append(books, book)
	}

	sort.Slice(books, func(i, j int) bool { return books[i].Name < books[j].Name })
	return books, nil
}

func (s *MemoryStore) ListPriceItems(ctx context.Context, orgID, bookID uuid.UUID) ([]domain.PriceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[bookID]
	if !ok || book.OrganizationID != orgID {
		return nil, domain.ErrPriceBookNotFound
	}

	items := append([]domain.PriceItem{}, s.items[bookID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].ModelNumber < items[j].ModelNumber })
	return items, nil
}

func (s *MemoryStore) DeletePriceBook(ctx context.Context, orgID, bookID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[bookID]
	if !ok || book.OrganizationID != orgID {
		return domain.ErrPriceBookNotFound
	}
	delete(s.books, bookID)
	delete(s.items, bookID)
	return nil
}

func (s *MemoryStore) SaveProcessedPO(ctx context.Context, po *domain.ProcessedPO) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *po
	stored.Results = append([]domain.ComparisonResult(nil), po.Results...)
	s.orders[po.ID] = stored
	return nil
}

func (s *MemoryStore) GetProcessedPO(ctx context.Context, orgID, poID uuid.UUID) (*domain.ProcessedPO, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.orders[poID]
	if !ok || po.OrganizationID != orgID {
		return nil, domain.ErrOrderNotFound
	}
	po.Results = append([]domain.ComparisonResult{}, po.Results...)
	return &po, nil
}

func (s *MemoryStore) ListProcessedPOs(ctx context.Context, orgID uuid.UUID, limit int) ([]domain.ProcessedPO, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := []domain.ProcessedPO{}
	for _, po := range s.orders {
		if po.OrganizationID == orgID {
			po.Results = nil
			orders = append(orders, po)
		}
	}

	sort.Slice(orders, func(i, j int) bool { return orders[i].ProcessedAt.After(orders[j].ProcessedAt) })
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *MemoryStore) CountProcessedPOsSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, po := range s.orders {
		if po.OrganizationID == orgID && !po.ProcessedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) DeleteProcessedPO(ctx context.Context, orgID, poID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.orders[poID]
	if !ok || po.OrganizationID != orgID {
		return domain.ErrOrderNotFound
	}
	delete(s.orders, poID)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
