package domain

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// DocumentExtractor turns a purchase order PDF into line items.
// It returns an empty slice when no items are found and an error wrapping
// ErrExtractionFailed only when the service itself failed.
type DocumentExtractor interface {
	Extract(ctx context.Context, pdf []byte) ([]ExtractedLineItem, error)
}

// PriceBookParser reads an uploaded price list
type PriceBookParser interface {
	ParsePriceBook(r io.Reader) (*PriceBookImport, error)
}

// ResultExporter renders a processed purchase order as a downloadable workbook
type ResultExporter interface {
	ExportResults(po *ProcessedPO) ([]byte, error)
}

// PriceBookRepository persists price books and their items. Every call is
// scoped to one organization.
type PriceBookRepository interface {
	CreatePriceBook(ctx context.Context, book *PriceBook, items []PriceItem) error
	ReplacePriceItems(ctx context.Context, orgID, bookID uuid.UUID, items []PriceItem) (*PriceBook, error)
	GetPriceBook(ctx context.Context, orgID, bookID uuid.UUID) (*PriceBook, error)
	GetPriceBookByName(ctx context.Context, orgID uuid.UUID, name string) (*PriceBook, error)
	ListPriceBooks(ctx context.Context, orgID uuid.UUID, search string) ([]PriceBook, error)
	ListPriceItems(ctx context.Context, orgID, bookID uuid.UUID) ([]PriceItem, error)
	DeletePriceBook(ctx context.Context, orgID, bookID uuid.UUID) error
}

// OrderRepository persists processed purchase orders
type OrderRepository interface {
	SaveProcessedPO(ctx context.Context, po *ProcessedPO) error
	GetProcessedPO(ctx context.Context, orgID, poID uuid.UUID) (*ProcessedPO, error)
	ListProcessedPOs(ctx context.Context, orgID uuid.UUID, limit int) ([]ProcessedPO, error)
	CountProcessedPOsSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error)
	DeleteProcessedPO(ctx context.Context, orgID, poID uuid.UUID) error
}

// Store is the single storage abstraction selected at startup
type Store interface {
	PriceBookRepository
	OrderRepository
	Ping(ctx context.Context) error
	Close() error
}
