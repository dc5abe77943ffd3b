// Package spreadsheet reads price lists from and writes results to XLSX workbooks.
package spreadsheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/orderguard/backend/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// headerSearchRows is how many leading rows may precede the header row
const headerSearchRows = 10

var (
	modelHeaders = []string{"model number", "model", "sku", "model/sku"}
	priceHeaders = []string{"correct base price", "price", "base price", "unit price"}

	priceNoise = strings.NewReplacer("$", "", ",", "", " ", "")
)

// Parser reads price books from XLSX workbooks
type Parser struct{}

// NewParser creates a price book parser
func NewParser() *Parser {
	return &Parser{}
}

// ParsePriceBook reads the first sheet of the workbook. The header row must
// name a model column and a price column; rows without a model are skipped,
// rows with an unreadable price are skipped and reported, and the last row
// wins when a model number repeats.
func (p *Parser) ParsePriceBook(r io.Reader) (*domain.PriceBookImport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSpreadsheet, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", domain.ErrInvalidSpreadsheet)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSpreadsheet, err)
	}

	headerRow, modelCol, priceCol, err := findHeader(rows)
	if err != nil {
		return nil, err
	}
	priceHeader := strings.TrimSpace(rows[headerRow][priceCol])

	result := &domain.PriceBookImport{Items: []domain.PriceItem{}}
	positions := make(map[string]int)
	reported := make(map[string]bool)

	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		sheetRow := i + 1

		model := strings.TrimSpace(cell(row, modelCol))
		if model == "" {
			continue
		}

		price, err := parsePrice(cell(row, priceCol))
		if err != nil {
			result.SkippedRows = append(result.SkippedRows, sheetRow)
			continue
		}

		item := domain.PriceItem{
			ModelNumber:  model,
			Price:        price,
			SourceColumn: priceHeader,
			SourceRow:    sheetRow,
		}

		if pos, seen := positions[model]; seen {
			result.Items[pos] = item
			if !reported[model] {
				result.Duplicates = append(result.Duplicates, model)
				reported[model] = true
			}
			continue
		}
		positions[model] = len(result.Items)
		result.Items = append(result.Items, item)
	}

	return result, nil
}

// findHeader locates the first row naming both a model and a price column
func findHeader(rows [][]string) (row, modelCol, priceCol int, err error) {
	for i := 0; i < len(rows) && i < headerSearchRows; i++ {
		modelCol = matchColumn(rows[i], modelHeaders)
		priceCol = matchColumn(rows[i], priceHeaders)
		if modelCol >= 0 && priceCol >= 0 {
			return i, modelCol, priceCol, nil
		}
	}
	return 0, 0, 0, fmt.Errorf("%w: required columns %q and %q not found",
		domain.ErrInvalidSpreadsheet, "Model Number", "Correct Base Price")
}

// matchColumn returns the index of the column whose header matches the
// earliest alias, or -1
func matchColumn(header []string, aliases []string) int {
	for _, alias := range aliases {
		for i, name := range header {
			if strings.EqualFold(strings.TrimSpace(name), alias) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}

func parsePrice(raw string) (decimal.Decimal, error) {
	cleaned := priceNoise.Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty price")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %s", raw)
	}
	return d.Round(2), nil
}
