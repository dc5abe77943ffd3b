package http

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/orderguard/backend/internal/domain"
	"github.com/orderguard/backend/internal/usecase"
	"github.com/sirupsen/logrus"
)

const (
	serviceName    = "orderguard-backend"
	serviceVersion = "1.0.0"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Pinger reports whether a backing service is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	priceBooks *usecase.PriceBookService
	orders     *usecase.OrderService
	store      Pinger
	log        *logrus.Entry
}

// NewHandler creates a new HTTP handler. store may be nil.
func NewHandler(priceBooks *usecase.PriceBookService, orders *usecase.OrderService, store Pinger, logger *logrus.Logger) *Handler {
	return &Handler{
		priceBooks: priceBooks,
		orders:     orders,
		store:      store,
		log:        logger.WithField("component", "http"),
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	}

	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.log.WithError(err).Warn("storage ping failed")
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
		}
	}

	c.JSON(status, body)
}

// ListPriceBooks handles GET /api/v1/pricebooks
func (h *Handler) ListPriceBooks(c *gin.Context) {
	books, err := h.priceBooks.ListPriceBooks(c.Request.Context(), organizationID(c), c.Query("search"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"priceBooks": books})
}

// CreatePriceBook handles POST /api/v1/pricebooks with a spreadsheet upload
func (h *Handler) CreatePriceBook(c *gin.Context) {
	file, _, err := openUpload(c, ".xlsx")
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer file.Close()

	upload, err := h.priceBooks.CreatePriceBook(c.Request.Context(), organizationID(c), c.PostForm("name"), file)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, upload)
}

// GetPriceBook handles GET /api/v1/pricebooks/:id
func (h *Handler) GetPriceBook(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	book, err := h.priceBooks.GetPriceBook(c.Request.Context(), organizationID(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

// ReplacePriceBook handles PUT /api/v1/pricebooks/:id with a new spreadsheet
func (h *Handler) ReplacePriceBook(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	file, _, err := openUpload(c, ".xlsx")
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer file.Close()

	upload, err := h.priceBooks.ReplacePriceBook(c.Request.Context(), organizationID(c), id, file)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, upload)
}

// DeletePriceBook handles DELETE /api/v1/pricebooks/:id
func (h *Handler) DeletePriceBook(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.priceBooks.DeletePriceBook(c.Request.Context(), organizationID(c), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ProcessOrder handles POST /api/v1/orders: a PDF upload checked against pricebook_id
func (h *Handler) ProcessOrder(c *gin.Context) {
	file, header, err := openUpload(c, ".pdf")
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer file.Close()

	bookID, err := uuid.Parse(strings.TrimSpace(c.PostForm("pricebook_id")))
	if err != nil {
		h.writeError(c, fmt.Errorf("%w: pricebook_id must be a UUID", domain.ErrInvalidRequest))
		return
	}

	pdf, err := io.ReadAll(file)
	if err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.orders.ProcessOrder(c.Request.Context(), organizationID(c), bookID, header.Filename, pdf)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// ListOrders handles GET /api/v1/orders
func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), organizationID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// GetOrder handles GET /api/v1/orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), organizationID(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetOrderReport handles GET /api/v1/orders/:id/report and returns the email body as plain text
func (h *Handler) GetOrderReport(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	report, err := h.orders.GetReport(c.Request.Context(), organizationID(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.String(http.StatusOK, report)
}

// ExportOrder handles GET /api/v1/orders/:id/export and returns an XLSX attachment
func (h *Handler) ExportOrder(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	data, err := h.orders.ExportOrder(c.Request.Context(), organizationID(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="po-%s.xlsx"`, id))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// DeleteOrder handles DELETE /api/v1/orders/:id
func (h *Handler) DeleteOrder(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.orders.DeleteOrder(c.Request.Context(), organizationID(c), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// pathID parses the :id path parameter
func pathID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: id must be a UUID", domain.ErrInvalidRequest)
	}
	return id, nil
}

// openUpload returns the multipart "file" field after checking its extension
func openUpload(c *gin.Context, ext string) (multipart.File, *multipart.FileHeader, error) {
	header, err := c.FormFile("file")
	if err != nil {
		if tooLarge(err) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: file is required", domain.ErrInvalidRequest)
	}

	if !strings.EqualFold(filepath.Ext(header.Filename), ext) {
		return nil, nil, fmt.Errorf("%w: file must be a %s document", domain.ErrInvalidRequest, ext)
	}

	file, err := header.Open()
	if err != nil {
		return nil, nil, err
	}
	return file, header, nil
}
