package domain

import "errors"

var (
	// ErrEmptyPriceBook is returned when the selected price book has no items
	ErrEmptyPriceBook = errors.New("price book has no items")

	// ErrPriceBookNotFound is returned when a price book does not exist for the organization
	ErrPriceBookNotFound = errors.New("price book not found")

	// ErrPriceBookExists is returned when the organization already has a book with that name
	ErrPriceBookExists = errors.New("price book already exists")

	// ErrOrderNotFound is returned when a processed purchase order does not exist
	ErrOrderNotFound = errors.New("processed purchase order not found")

	// ErrExtractionFailed is returned when the document extraction service fails outright.
	// Callers should treat it as retryable.
	ErrExtractionFailed = errors.New("document extraction service failed")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrInvalidSpreadsheet is returned when an uploaded price list cannot be read
	ErrInvalidSpreadsheet = errors.New("invalid price book spreadsheet")

	// ErrQuotaExceeded is returned when the organization used its monthly PO allowance
	ErrQuotaExceeded = errors.New("monthly purchase order limit reached")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")
)
