package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/orderguard/backend/internal/domain"
	"github.com/shopspring/decimal"
)

// Dialect selects the SQL flavour of a SQLStore
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLStore is a domain.Store backed by database/sql. Postgres and SQLite share
// every query; only placeholders and column types differ.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	onClose func()
}

// NewSQLStore wraps an open database. Call Migrate before first use.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Migrate creates the schema if it does not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	ts := "TIMESTAMP"
	if s.dialect == DialectPostgres {
		ts = "TIMESTAMPTZ"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS price_books (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			name TEXT NOT NULL,
			item_count INTEGER NOT NULL DEFAULT 0,
			created_at %[1]s NOT NULL,
			updated_at %[1]s NOT NULL,
			UNIQUE (organization_id, name)
		)`, ts),
		`CREATE TABLE IF NOT EXISTS price_items (
			price_book_id TEXT NOT NULL REFERENCES price_books(id) ON DELETE CASCADE,
			model_number TEXT NOT NULL,
			price NUMERIC(14,2) NOT NULL,
			source_column TEXT NOT NULL DEFAULT '',
			source_row INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (price_book_id, model_number)
		)`,
		// processed_pos keeps no foreign key to price_books: history outlives the book
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS processed_pos (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			price_book_id TEXT NOT NULL,
			price_book_name TEXT NOT NULL,
			processed_at %s NOT NULL,
			total INTEGER NOT NULL,
			matched INTEGER NOT NULL,
			mismatched INTEGER NOT NULL,
			not_found INTEGER NOT NULL,
			extraction_issues INTEGER NOT NULL,
			net_discrepancy NUMERIC(14,2) NOT NULL
		)`, ts),
		`CREATE TABLE IF NOT EXISTS po_line_items (
			processed_po_id TEXT NOT NULL REFERENCES processed_pos(id) ON DELETE CASCADE,
			line INTEGER NOT NULL,
			model TEXT NOT NULL,
			po_price NUMERIC(14,2),
			book_price NUMERIC(14,2),
			status TEXT NOT NULL,
			discrepancy NUMERIC(14,2),
			description TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (processed_po_id, line)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_processed_pos_org_time ON processed_pos (organization_id, processed_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) CreatePriceBook(ctx context.Context, book *domain.PriceBook, items []domain.PriceItem) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO price_books (id, organization_id, name, item_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
			book.ID, book.OrganizationID, book.Name, len(items), book.CreatedAt.UTC(), book.UpdatedAt.UTC())
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %q", domain.ErrPriceBookExists, book.Name)
			}
			return fmt.Errorf("insert price book: %w", err)
		}
		book.ItemCount = len(items)
		return s.insertItems(ctx, tx, book.ID, items)
	})
}

func (s *SQLStore) ReplacePriceItems(ctx context.Context, orgID, bookID uuid.UUID, items []domain.PriceItem) (*domain.PriceBook, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(`
			UPDATE price_books SET item_count = ?, updated_at = ?
			WHERE id = ? AND organization_id = ?`),
			len(items), time.Now().UTC(), bookID, orgID)
		if err != nil {
			return fmt.Errorf("update price book: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrPriceBookNotFound
		}

		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM price_items WHERE price_book_id = ?`), bookID); err != nil {
			return fmt.Errorf("delete price items: %w", err)
		}
		return s.insertItems(ctx, tx, bookID, items)
	})
	if err != nil {
		return nil, err
	}
	return s.GetPriceBook(ctx, orgID, bookID)
}

func (s *SQLStore) insertItems(ctx context.Context, tx *sql.Tx, bookID uuid.UUID, items []domain.PriceItem) error {
	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO price_items (price_book_id, model_number, price, source_column, source_row)
		VALUES (?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare price items: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.ExecContext(ctx, bookID, item.ModelNumber, item.Price, item.SourceColumn, item.SourceRow); err != nil {
			return fmt.Errorf("insert price item %q: %w", item.ModelNumber, err)
		}
	}
	return nil
}

const priceBookColumns = `id, organization_id, name, item_count, created_at, updated_at`

// likeEscaper makes a search term match literally inside LIKE ... ESCAPE '\'
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func scanPriceBook(row interface{ Scan(...any) error }) (*domain.PriceBook, error) {
	var book domain.PriceBook
	if err := row.Scan(&book.ID, &book.OrganizationID, &book.Name, &book.ItemCount, &book.CreatedAt, &book.UpdatedAt); err != nil {
		return nil, err
	}
	book.CreatedAt = book.CreatedAt.UTC()
	book.UpdatedAt = book.UpdatedAt.UTC()
	return &book, nil
}

func (s *SQLStore) GetPriceBook(ctx context.Context, orgID, bookID uuid.UUID) (*domain.PriceBook, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+priceBookColumns+` FROM price_books
		WHERE id = ? AND organization_id = ?`), bookID, orgID)

	book, err := scanPriceBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPriceBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get price book: %w", err)
	}
	return book, nil
}

func (s *SQLStore) GetPriceBookByName(ctx context.Context, orgID uuid.UUID, name string) (*domain.PriceBook, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+priceBookColumns+` FROM price_books
		WHERE organization_id = ? AND name = ?`), orgID, name)

	book, err := scanPriceBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPriceBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get price book by name: %w", err)
	}
	return book, nil
}

func (s *SQLStore) ListPriceBooks(ctx context.Context, orgID uuid.UUID, search string) ([]domain.PriceBook, error) {
	query := `SELECT ` + priceBookColumns + ` FROM price_books WHERE organization_id = ?`
	args := []any{orgID}
	if search != "" {
		query += ` AND LOWER(name) LIKE ? ESCAPE '\'`
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(search))+"%")
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list price books: %w", err)
	}
	defer rows.Close()

	books := []domain.PriceBook{}
	for rows.Next() {
		book, err := scanPriceBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan price book: %w", err)
		}
		books = append(books, *book)
	}
	return books, rows.Err()
}

func (s *SQLStore) ListPriceItems(ctx context.Context, orgID, bookID uuid.UUID) ([]domain.PriceItem, error) {
	if _, err := s.GetPriceBook(ctx, orgID, bookID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT model_number, price, source_column, source_row FROM price_items
		WHERE price_book_id = ? ORDER BY model_number`), bookID)
	if err != nil {
		return nil, fmt.Errorf("list price items: %w", err)
	}
	defer rows.Close()

	items := []domain.PriceItem{}
	for rows.Next() {
		var item domain.PriceItem
		if err := rows.Scan(&item.ModelNumber, &item.Price, &item.SourceColumn, &item.SourceRow); err != nil {
			return nil, fmt.Errorf("scan price item: %w", err)
		}
		item.Price = item.Price.Round(2)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLStore) DeletePriceBook(ctx context.Context, orgID, bookID uuid.UUID) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM price_books WHERE id = ? AND organization_id = ?`), bookID, orgID)
		if err != nil {
			return fmt.Errorf("delete price book: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrPriceBookNotFound
		}
		// Explicit cascade; SQLite enforces foreign keys only when enabled per connection
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM price_items WHERE price_book_id = ?`), bookID); err != nil {
			return fmt.Errorf("delete price items: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) SaveProcessedPO(ctx context.Context, po *domain.ProcessedPO) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		sum := po.Summary
		_, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO processed_pos (id, organization_id, filename, price_book_id, price_book_name, processed_at,
				total, matched, mismatched, not_found, extraction_issues, net_discrepancy)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			po.ID, po.OrganizationID, po.Filename, po.PriceBookID, po.PriceBookName, po.ProcessedAt.UTC(),
			sum.Total, sum.Matched, sum.Mismatched, sum.NotFound, sum.ExtractionIssues, sum.NetDiscrepancy)
		if err != nil {
			return fmt.Errorf("insert processed purchase order: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, s.rebind(`
			INSERT INTO po_line_items (processed_po_id, line, model, po_price, book_price, status, discrepancy, description)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`))
		if err != nil {
			return fmt.Errorf("prepare line items: %w", err)
		}
		defer stmt.Close()

		for _, r := range po.Results {
			_, err := stmt.ExecContext(ctx, po.ID, r.Line, r.Model,
				nullDecimal(r.POPrice), nullDecimal(r.BookPrice), string(r.Status), nullDecimal(r.Discrepancy), r.Description)
			if err != nil {
				return fmt.Errorf("insert line item %d: %w", r.Line, err)
			}
		}
		return nil
	})
}

const processedPOColumns = `id, organization_id, filename, price_book_id, price_book_name, processed_at,
	total, matched, mismatched, not_found, extraction_issues, net_discrepancy`

func scanProcessedPO(row interface{ Scan(...any) error }) (*domain.ProcessedPO, error) {
	var po domain.ProcessedPO
	sum := &po.Summary
	err := row.Scan(&po.ID, &po.OrganizationID, &po.Filename, &po.PriceBookID, &po.PriceBookName, &po.ProcessedAt,
		&sum.Total, &sum.Matched, &sum.Mismatched, &sum.NotFound, &sum.ExtractionIssues, &sum.NetDiscrepancy)
	if err != nil {
		return nil, err
	}
	po.ProcessedAt = po.ProcessedAt.UTC()
	sum.NetDiscrepancy = sum.NetDiscrepancy.Round(2)
	return &po, nil
}

func (s *SQLStore) GetProcessedPO(ctx context.Context, orgID, poID uuid.UUID) (*domain.ProcessedPO, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+processedPOColumns+` FROM processed_pos
		WHERE id = ? AND organization_id = ?`), poID, orgID)

	po, err := scanProcessedPO(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get processed purchase order: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT line, model, po_price, book_price, status, discrepancy, description FROM po_line_items
		WHERE processed_po_id = ? ORDER BY line`), poID)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	po.Results = []domain.ComparisonResult{}
	for rows.Next() {
		var (
			r                              domain.ComparisonResult
			status                         string
			poPrice, bookPrice, difference decimal.NullDecimal
		)
		if err := rows.Scan(&r.Line, &r.Model, &poPrice, &bookPrice, &status, &difference, &r.Description); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		r.Status = domain.Status(status)
		r.POPrice = decimalPtr(poPrice)
		r.BookPrice = decimalPtr(bookPrice)
		r.Discrepancy = decimalPtr(difference)
		po.Results = append(po.Results, r)
	}
	return po, rows.Err()
}

func (s *SQLStore) ListProcessedPOs(ctx context.Context, orgID uuid.UUID, limit int) ([]domain.ProcessedPO, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+processedPOColumns+` FROM processed_pos
		WHERE organization_id = ? ORDER BY processed_at DESC LIMIT ?`), orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list processed purchase orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.ProcessedPO{}
	for rows.Next() {
		po, err := scanProcessedPO(rows)
		if err != nil {
			return nil, fmt.Errorf("scan processed purchase order: %w", err)
		}
		orders = append(orders, *po)
	}
	return orders, rows.Err()
}

func (s *SQLStore) CountProcessedPOsSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM processed_pos WHERE organization_id = ? AND processed_at >= ?`),
		orgID, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count processed purchase orders: %w", err)
	}
	return count, nil
}

func (s *SQLStore) DeleteProcessedPO(ctx context.Context, orgID, poID uuid.UUID) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM processed_pos WHERE id = ? AND organization_id = ?`), poID, orgID)
		if err != nil {
			return fmt.Errorf("delete processed purchase order: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrOrderNotFound
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM po_line_items WHERE processed_po_id = ?`), poID); err != nil {
			return fmt.Errorf("delete line items: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	err := s.db.Close()
	if s.onClose != nil {
		s.onClose()
	}
	return err
}

// inTx runs fn in a transaction, committing only if it returns nil
func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// rebind rewrites ? placeholders to $1, $2, ... for Postgres
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal.Round(2)
	return &v
}
