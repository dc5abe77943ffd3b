package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceBook is an organization-scoped reference list of canonical prices
type PriceBook struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organizationId"`
	Name           string    `json:"name"`
	ItemCount      int       `json:"itemCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PriceItem is one row of a price book. ModelNumber is unique within its book.
type PriceItem struct {
	ModelNumber  string          `json:"modelNumber"`
	Price        decimal.Decimal `json:"price"`
	SourceColumn string          `json:"sourceColumn,omitempty"` // header of the price column
	SourceRow    int             `json:"sourceRow,omitempty"`    // 1-based spreadsheet row
}

// PriceBookDetail is a price book together with its items
type PriceBookDetail struct {
	PriceBook
	Items []PriceItem `json:"items"`
}

// PriceBookImport is the result of parsing an uploaded price list
type PriceBookImport struct {
	Items []PriceItem `json:"items"`
	// Duplicates lists model numbers that appeared more than once; the last row won.
	Duplicates []string `json:"duplicates,omitempty"`
	// SkippedRows lists 1-based rows dropped because the price could not be parsed.
	SkippedRows []int `json:"skippedRows,omitempty"`
}

// PriceMap returns the lookup table the reconciler consumes
func PriceMap(items []PriceItem) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(items))
	for _, item := range items {
		m[item.ModelNumber] = item.Price
	}
	return m
}
