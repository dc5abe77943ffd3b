package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/orderguard/backend/internal/domain"
	"github.com/sirupsen/logrus"
)

// maxPriceBookNameLength bounds the display name of a price book
const maxPriceBookNameLength = 100

// PriceBookUpload is returned after a price list was imported
type PriceBookUpload struct {
	PriceBook   domain.PriceBook `json:"priceBook"`
	Duplicates  []string         `json:"duplicates,omitempty"`
	SkippedRows []int            `json:"skippedRows,omitempty"`
}

// PriceBookService manages an organization's price books
type PriceBookService struct {
	repo   domain.PriceBookRepository
	parser domain.PriceBookParser
	log    *logrus.Entry
}

// NewPriceBookService creates a new price book service with dependencies
func NewPriceBookService(repo domain.PriceBookRepository, parser domain.PriceBookParser, logger *logrus.Logger) *PriceBookService {
	return &PriceBookService{
		repo:   repo,
		parser: parser,
		log:    logger.WithField("component", "pricebooks"),
	}
}

// ListPriceBooks returns the organization's price books ordered by name.
// A non-empty search filters by a case-insensitive name substring.
func (s *PriceBookService) ListPriceBooks(ctx context.Context, orgID uuid.UUID, search string) ([]domain.PriceBook, error) {
	if orgID == uuid.Nil {
		return nil, domain.ErrInvalidRequest
	}
	return s.repo.ListPriceBooks(ctx, orgID, strings.TrimSpace(search))
}

// GetPriceBook returns a price book together with its items
func (s *PriceBookService) GetPriceBook(ctx context.Context, orgID, bookID uuid.UUID) (*domain.PriceBookDetail, error) {
	if orgID == uuid.Nil || bookID == uuid.Nil {
		return nil, domain.ErrInvalidRequest
	}

	book, err := s.repo.GetPriceBook(ctx, orgID, bookID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListPriceItems(ctx, orgID, bookID)
	if err != nil {
		return nil, err
	}

	return &domain.PriceBookDetail{PriceBook: *book, Items: items}, nil
}

// CreatePriceBook imports a spreadsheet as a new price book named name
func (s *PriceBookService) CreatePriceBook(ctx context.Context, orgID uuid.UUID, name string, file io.Reader) (*PriceBookUpload, error) {
	name = strings.TrimSpace(name)
	if orgID == uuid.Nil || name == "" || len(name) > maxPriceBookNameLength {
		return nil, domain.ErrInvalidRequest
	}

	if _, err := s.repo.GetPriceBookByName(ctx, orgID, name); err == nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrPriceBookExists, name)
	} else if !errors.Is(err, domain.ErrPriceBookNotFound) {
		return nil, err
	}

	imported, err := s.importItems(file)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	book := &domain.PriceBook{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           name,
		ItemCount:      len(imported.Items),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreatePriceBook(ctx, book, imported.Items); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"organization_id": orgID,
		"price_book_id":   book.ID,
		"items":           book.ItemCount,
		"duplicates":      len(imported.Duplicates),
		"skipped_rows":    len(imported.SkippedRows),
	}).Info("price book created")

	return &PriceBookUpload{
		PriceBook:   *book,
		Duplicates:  imported.Duplicates,
		SkippedRows: imported.SkippedRows,
	}, nil
}

// ReplacePriceBook swaps every item of an existing book for the uploaded ones
func (s *PriceBookService) ReplacePriceBook(ctx context.Context, orgID, bookID uuid.UUID, file io.Reader) (*PriceBookUpload, error) {
	if orgID == uuid.Nil || bookID == uuid.Nil {
		return nil, domain.ErrInvalidRequest
	}

	if _, err := s.repo.GetPriceBook(ctx, orgID, bookID); err != nil {
		return nil, err
	}

	imported, err := s.importItems(file)
	if err != nil {
		return nil, err
	}

	book, err := s.repo.ReplacePriceItems(ctx, orgID, bookID, imported.Items)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"organization_id": orgID,
		"price_book_id":   bookID,
		"items":           book.ItemCount,
	}).Info("price book replaced")

	return &PriceBookUpload{
		PriceBook:   *book,
		Duplicates:  imported.Duplicates,
		SkippedRows: imported.SkippedRows,
	}, nil
}

// DeletePriceBook removes a book and all of its items
func (s *PriceBookService) DeletePriceBook(ctx context.Context, orgID, bookID uuid.UUID) error {
	if orgID == uuid.Nil || bookID == uuid.Nil {
		return domain.ErrInvalidRequest
	}
	if err := s.repo.DeletePriceBook(ctx, orgID, bookID); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"organization_id": orgID,
		"price_book_id":   bookID,
	}).Info("price book deleted")
	return nil
}

// importItems parses the upload and rejects sheets that produced no usable rows
func (s *PriceBookService) importItems(file io.Reader) (*domain.PriceBookImport, error) {
	imported, err := s.parser.ParsePriceBook(file)
	if err != nil {
		return nil, err
	}

	if len(imported.Duplicates) > 0 {
		s.log.WithField("models", imported.Duplicates).Warn("duplicate model numbers in upload, last row kept")
	}
	if len(imported.Items) == 0 {
		return nil, domain.ErrEmptyPriceBook
	}
	return imported, nil
}
