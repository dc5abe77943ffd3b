package usecase

import (
	"strings"

	"github.com/orderguard/backend/internal/domain"
	"github.com/shopspring/decimal"
)

// pricePrecision is the number of decimal places prices are compared at
const pricePrecision = 2

// Reconcile classifies every extracted line against the price book and
// returns one result per input item, in input order.
//
// Model numbers are matched exactly and case-sensitively. Prices are compared
// as decimals rounded to two places, never as floats. Lines whose model or
// price could not be read are reported as data extraction issues rather than
// failing the call; the only error is ErrEmptyPriceBook, returned before any
// line is classified.
func Reconcile(items []domain.ExtractedLineItem, book map[string]decimal.Decimal) ([]domain.ComparisonResult, error) {
	if len(book) == 0 {
		return nil, domain.ErrEmptyPriceBook
	}

	results := make([]domain.ComparisonResult, 0, len(items))
	for i, item := range items {
		results = append(results, classify(i+1, item, book))
	}
	return results, nil
}

// classify is a pure function of one line and the book
func classify(line int, item domain.ExtractedLineItem, book map[string]decimal.Decimal) domain.ComparisonResult {
	result := domain.ComparisonResult{
		Line:        line,
		Status:      domain.StatusDataExtractionIssue,
		Description: item.SourceDescription,
	}

	if item.ModelCandidate != nil {
		result.Model = *item.ModelCandidate
	}
	if item.PriceCandidate != nil {
		po := item.PriceCandidate.Round(pricePrecision)
		result.POPrice = &po
	}

	// A zero price is valid; only a missing or negative price is unusable.
	if strings.TrimSpace(result.Model) == "" || result.POPrice == nil || result.POPrice.IsNegative() {
		return result
	}

	bookPrice, ok := book[result.Model]
	if !ok {
		result.Status = domain.StatusModelNotFound
		return result
	}

	bp := bookPrice.Round(pricePrecision)
	result.BookPrice = &bp

	discrepancy := bp.Sub(*result.POPrice)
	result.Discrepancy = &discrepancy
	if discrepancy.IsZero() {
		result.Status = domain.StatusMatch
	} else {
		result.Status = domain.StatusMismatch
	}
	return result
}
