package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the classification of one purchase order line
type Status string

const (
	StatusMatch               Status = "Match"
	StatusMismatch            Status = "Mismatch"
	StatusModelNotFound       Status = "Model Not Found"
	StatusDataExtractionIssue Status = "Data Extraction Issue"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusMatch, StatusMismatch, StatusModelNotFound, StatusDataExtractionIssue:
		return true
	}
	return false
}

// ExtractedLineItem is one PO line as interpreted by the extraction service.
// Any field may be missing when the extraction was ambiguous.
type ExtractedLineItem struct {
	ModelCandidate    *string          `json:"model"`
	PriceCandidate    *decimal.Decimal `json:"price"`
	RawPrice          string           `json:"rawPrice,omitempty"`
	SourceDescription string           `json:"description,omitempty"`
}

// ComparisonResult is the reconciled record for one extracted line
type ComparisonResult struct {
	Line        int              `json:"line"`
	Model       string           `json:"model"`
	POPrice     *decimal.Decimal `json:"po_price"`
	BookPrice   *decimal.Decimal `json:"book_price"`
	Status      Status           `json:"status"`
	Discrepancy *decimal.Decimal `json:"discrepancy"`
	Description string           `json:"description,omitempty"`
}

// Summary aggregates a result set by status
type Summary struct {
	Total            int             `json:"total"`
	Matched          int             `json:"matched"`
	Mismatched       int             `json:"mismatched"`
	NotFound         int             `json:"notFound"`
	ExtractionIssues int             `json:"extractionIssues"`
	NetDiscrepancy   decimal.Decimal `json:"netDiscrepancy"`
}

// ProcessedPO is the persisted record of one reconciliation run
type ProcessedPO struct {
	ID             uuid.UUID          `json:"id"`
	OrganizationID uuid.UUID          `json:"organizationId"`
	Filename       string             `json:"filename"`
	PriceBookID    uuid.UUID          `json:"priceBookId"`
	PriceBookName  string             `json:"priceBookName"`
	ProcessedAt    time.Time          `json:"processedAt"`
	Summary        Summary            `json:"summary"`
	Results        []ComparisonResult `json:"results,omitempty"`
}
