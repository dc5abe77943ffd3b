package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/orderguard/backend/internal/domain"
)

// apiError is the JSON body of every failed request
type apiError struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

// mapError translates a usecase error into a status and an error code
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, domain.ErrInvalidSpreadsheet):
		return http.StatusBadRequest, "INVALID_SPREADSHEET"
	case errors.Is(err, domain.ErrPriceBookNotFound):
		return http.StatusNotFound, "PRICE_BOOK_NOT_FOUND"
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "ORDER_NOT_FOUND"
	case errors.Is(err, domain.ErrPriceBookExists):
		return http.StatusConflict, "PRICE_BOOK_EXISTS"
	case tooLarge(err):
		return http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE"
	case errors.Is(err, domain.ErrEmptyPriceBook):
		return http.StatusUnprocessableEntity, "EMPTY_PRICE_BOOK"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "QUOTA_EXCEEDED"
	case errors.Is(err, domain.ErrExtractionFailed):
		return http.StatusBadGateway, "EXTRACTION_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// writeError aborts the request with the mapped error body
func (h *Handler) writeError(c *gin.Context, err error) {
	status, code := mapError(err)

	body := apiError{Error: err.Error(), Code: code}
	switch {
	case status == http.StatusBadGateway:
		body.Retryable = true
		h.log.WithError(err).Warn("document extraction failed")
	case status >= http.StatusInternalServerError:
		// Internal details stay in the log
		body.Error = "internal server error"
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}

	c.AbortWithStatusJSON(status, body)
}

// tooLarge reports whether err came from an upload exceeding the body limit
func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
