package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/orderguard/backend/config"
	"github.com/orderguard/backend/internal/domain"
	"github.com/orderguard/backend/internal/infrastructure/cache"
	"github.com/orderguard/backend/internal/infrastructure/spreadsheet"
	"github.com/orderguard/backend/internal/infrastructure/storage"
	"github.com/orderguard/backend/internal/usecase"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	// Set Gin to test mode once for all tests
	gin.SetMode(gin.TestMode)

	os.Exit(m.Run())
}

// fakeExtractor returns canned line items instead of calling an LLM
type fakeExtractor struct {
	items []domain.ExtractedLineItem
	err   error
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, pdf []byte) ([]domain.ExtractedLineItem, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

// fakePinger reports a fixed storage health
type fakePinger struct {
	err error
}

func (p fakePinger) Ping(ctx context.Context) error {
	return p.err
}

type testServer struct {
	router    *gin.Engine
	extractor *fakeExtractor
	orgID     uuid.UUID
}

// setupTestServer wires the router over the in-memory store and a fake extractor
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	return setupTestServerWithPinger(t, nil)
}

func setupTestServerWithPinger(t *testing.T, pinger Pinger) *testServer {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"http://localhost:*"},
			MaxUploadMB:    1,
		},
	}

	logger, _ := test.NewNullLogger()
	store := storage.NewMemoryStore()
	memCache := cache.NewMemoryCache()
	t.Cleanup(func() { memCache.Close() })

	extractor := &fakeExtractor{}
	priceBooks := usecase.NewPriceBookService(store, spreadsheet.NewParser(), logger)
	orders := usecase.NewOrderService(
		store, store, extractor, memCache, spreadsheet.NewExporter(),
		usecase.OrderServiceConfig{}, logger,
	)

	if pinger == nil {
		pinger = store
	}
	handler := NewHandler(priceBooks, orders, pinger, logger)
	router := SetupRouter(cfg, handler, logger)
	require.NotNil(t, router)

	return &testServer{router: router, extractor: extractor, orgID: uuid.New()}
}

// do sends a request as the server's organization
func (s *testServer) do(method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	return s.doAs(s.orgID, method, path, body, contentType)
}

func (s *testServer) doAs(orgID uuid.UUID, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if orgID != uuid.Nil {
		req.Header.Set(OrganizationHeader, orgID.String())
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// xlsxPriceBook builds a spreadsheet with the given model/price rows
func xlsxPriceBook(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	all := append([][]any{{"Model Number", "Correct Base Price"}}, rows...)
	for i, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// multipartBody encodes form fields and an optional file upload
func multipartBody(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

// createBook uploads a price book and returns its id
func (s *testServer) createBook(t *testing.T, name string, rows ...[]any) uuid.UUID {
	t.Helper()
	body, ct := multipartBody(t, map[string]string{"name": name}, "prices.xlsx", xlsxPriceBook(t, rows...))
	w := s.do(http.MethodPost, "/api/v1/pricebooks", body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp usecase.PriceBookUpload
	decodeJSON(t, w, &resp)
	return resp.PriceBook.ID
}

// processOrder uploads a PDF against bookID
func (s *testServer) processOrder(t *testing.T, bookID string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, map[string]string{"pricebook_id": bookID}, "PO-1042.pdf", []byte("%PDF-1.4 fake order"))
	return s.do(http.MethodPost, "/api/v1/orders", body, ct)
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func str(s string) *string {
	return &s
}

func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status", func(t *testing.T) {
		srv := setupTestServer(t)

		w := srv.doAs(uuid.Nil, http.MethodGet, "/health", nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		var response map[string]any
		decodeJSON(t, w, &response)
		assert.Equal(t, "healthy", response["status"])
		assert.Equal(t, "orderguard-backend", response["service"])
		version, ok := response["version"].(string)
		assert.True(t, ok && strings.TrimSpace(version) != "")
	})

	t.Run("reports storage outage", func(t *testing.T) {
		srv := setupTestServerWithPinger(t, fakePinger{err: errors.New("connection refused")})

		w := srv.doAs(uuid.Nil, http.MethodGet, "/health", nil, "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "unhealthy")
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		srv := setupTestServer(t)

		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
			w := srv.doAs(uuid.Nil, method, "/health", nil, "")
			assert.Equal(t, http.StatusNotFound, w.Code, method)
		}
	})
}

func TestAPIRequiresOrganization(t *testing.T) {
	srv := setupTestServer(t)

	for _, path := range []string{"/api/v1/pricebooks", "/api/v1/orders"} {
		w := srv.doAs(uuid.Nil, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)

		var resp apiError
		decodeJSON(t, w, &resp)
		assert.Equal(t, "INVALID_ORGANIZATION", resp.Code)
	}
}

func TestPriceBookEndpoints(t *testing.T) {
	t.Run("create, list, get, replace and delete", func(t *testing.T) {
		srv := setupTestServer(t)
		bookID := srv.createBook(t, "Retail 2025", []any{"ABC123", 299.99}, []any{"XYZ789", "1,049.50"})

		w := srv.do(http.MethodGet, "/api/v1/pricebooks?search=retail", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		var list struct {
			PriceBooks []domain.PriceBook `json:"priceBooks"`
		}
		decodeJSON(t, w, &list)
		require.Len(t, list.PriceBooks, 1)
		assert.Equal(t, "Retail 2025", list.PriceBooks[0].Name)
		assert.Equal(t, 2, list.PriceBooks[0].ItemCount)

		w = srv.do(http.MethodGet, "/api/v1/pricebooks/"+bookID.String(), nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		var detail domain.PriceBookDetail
		decodeJSON(t, w, &detail)
		require.Len(t, detail.Items, 2)
		assert.True(t, detail.Items[0].Price.Equal(decimal.RequireFromString("299.99")))

		body, ct := multipartBody(t, nil, "prices-v2.XLSX", xlsxPriceBook(t, []any{"ABC123", 279.99}))
		w = srv.do(http.MethodPut, "/api/v1/pricebooks/"+bookID.String(), body, ct)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var replaced usecase.PriceBookUpload
		decodeJSON(t, w, &replaced)
		assert.Equal(t, 1, replaced.PriceBook.ItemCount)

		w = srv.do(http.MethodDelete, "/api/v1/pricebooks/"+bookID.String(), nil, "")
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = srv.do(http.MethodGet, "/api/v1/pricebooks/"+bookID.String(), nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		srv := setupTestServer(t)
		srv.createBook(t, "Retail", []any{"ABC123", 10})

		body, ct := multipartBody(t, map[string]string{"name": "Retail"}, "prices.xlsx", xlsxPriceBook(t, []any{"ABC123", 10}))
		w := srv.do(http.MethodPost, "/api/v1/pricebooks", body, ct)
		assert.Equal(t, http.StatusConflict, w.Code)

		var resp apiError
		decodeJSON(t, w, &resp)
		assert.Equal(t, "PRICE_BOOK_EXISTS", resp.Code)
	})

	t.Run("rejects bad uploads", func(t *testing.T) {
		srv := setupTestServer(t)

		tests := []struct {
			name     string
			fields   map[string]string
			filename string
			content  []byte
			wantCode string
		}{
			{"missing file", map[string]string{"name": "Retail"}, "", nil, "INVALID_REQUEST"},
			{"wrong extension", map[string]string{"name": "Retail"}, "prices.csv", []byte("a,b"), "INVALID_REQUEST"},
			{"missing name", nil, "prices.xlsx", xlsxPriceBook(t, []any{"ABC123", 10}), "INVALID_REQUEST"},
			{"not a workbook", map[string]string{"name": "Retail"}, "prices.xlsx", []byte("not a zip"), "INVALID_SPREADSHEET"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				body, ct := multipartBody(t, tt.fields, tt.filename, tt.content)
				w := srv.do(http.MethodPost, "/api/v1/pricebooks", body, ct)
				assert.Equal(t, http.StatusBadRequest, w.Code)

				var resp apiError
				decodeJSON(t, w, &resp)
				assert.Equal(t, tt.wantCode, resp.Code)
			})
		}
	})

	t.Run("sheet without usable rows is unprocessable", func(t *testing.T) {
		srv := setupTestServer(t)
		body, ct := multipartBody(t, map[string]string{"name": "Empty"}, "prices.xlsx", xlsxPriceBook(t))
		w := srv.do(http.MethodPost, "/api/v1/pricebooks", body, ct)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		srv := setupTestServer(t)
		w := srv.do(http.MethodGet, "/api/v1/pricebooks/not-a-uuid", nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("books are scoped to the organization", func(t *testing.T) {
		srv := setupTestServer(t)
		bookID := srv.createBook(t, "Retail", []any{"ABC123", 10})

		w := srv.doAs(uuid.New(), http.MethodGet, "/api/v1/pricebooks/"+bookID.String(), nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestOrderEndpoints(t *testing.T) {
	t.Run("process, inspect, export and delete", func(t *testing.T) {
		srv := setupTestServer(t)
		bookID := srv.createBook(t, "Retail", []any{"ABC123", 299.99})
		srv.extractor.items = []domain.ExtractedLineItem{
			{ModelCandidate: str("ABC123"), PriceCandidate: dec("279.99")},
			{ModelCandidate: str("ZZZ999"), PriceCandidate: dec("10")},
			{RawPrice: "N/A"},
		}

		w := srv.processOrder(t, bookID.String())
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var result usecase.ProcessResult
		decodeJSON(t, w, &result)
		require.NotNil(t, result.Order)
		assert.Equal(t, "PO-1042.pdf", result.Order.Filename)
		assert.Equal(t, 3, result.Order.Summary.Total)
		assert.Equal(t, 1, result.Order.Summary.Mismatched)
		assert.Equal(t, 1, result.Order.Summary.NotFound)
		assert.Equal(t, 1, result.Order.Summary.ExtractionIssues)
		require.Len(t, result.Order.Results, 3)
		assert.Equal(t, domain.StatusMismatch, result.Order.Results[0].Status)
		assert.True(t, result.Order.Results[0].Discrepancy.Equal(decimal.RequireFromString("20")))
		assert.Contains(t, result.EmailReport, "Ref Price Book: Retail")

		orderPath := "/api/v1/orders/" + result.Order.ID.String()

		w = srv.do(http.MethodGet, "/api/v1/orders", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		var history struct {
			Orders []domain.ProcessedPO `json:"orders"`
		}
		decodeJSON(t, w, &history)
		require.Len(t, history.Orders, 1)
		assert.Equal(t, result.Order.ID, history.Orders[0].ID)

		w = srv.do(http.MethodGet, orderPath, nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		var stored domain.ProcessedPO
		decodeJSON(t, w, &stored)
		assert.Len(t, stored.Results, 3)

		w = srv.do(http.MethodGet, orderPath+"/report", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
		assert.Equal(t, result.EmailReport, w.Body.String())

		w = srv.do(http.MethodGet, orderPath+"/export", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), result.Order.ID.String()+".xlsx")
		wb, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		assert.Contains(t, wb.GetSheetList(), "Results")
		wb.Close()

		w = srv.do(http.MethodDelete, orderPath, nil, "")
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = srv.do(http.MethodGet, orderPath, nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		var resp apiError
		decodeJSON(t, w, &resp)
		assert.Equal(t, "ORDER_NOT_FOUND", resp.Code)
	})

	t.Run("unknown price book", func(t *testing.T) {
		srv := setupTestServer(t)

		w := srv.processOrder(t, uuid.NewString())
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Zero(t, srv.extractor.calls)
	})

	t.Run("invalid price book id", func(t *testing.T) {
		srv := setupTestServer(t)

		w := srv.processOrder(t, "retail")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("requires a pdf", func(t *testing.T) {
		srv := setupTestServer(t)
		bookID := srv.createBook(t, "Retail", []any{"ABC123", 10})

		body, ct := multipartBody(t, map[string]string{"pricebook_id": bookID.String()}, "order.docx", []byte("x"))
		w := srv.do(http.MethodPost, "/api/v1/orders", body, ct)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("extraction failure is retryable", func(t *testing.T) {
		srv := setupTestServer(t)
		bookID := srv.createBook(t, "Retail", []any{"ABC123", 10})
		srv.extractor.err = errors.New("upstream timeout")

		w := srv.processOrder(t, bookID.String())
		assert.Equal(t, http.StatusBadGateway, w.Code)

		var resp apiError
		decodeJSON(t, w, &resp)
		assert.Equal(t, "EXTRACTION_FAILED", resp.Code)
		assert.True(t, resp.Retryable)

		w = srv.do(http.MethodGet, "/api/v1/orders", nil, "")
		assert.JSONEq(t, `{"orders":[]}`, w.Body.String())
	})

	t.Run("upload over the size limit", func(t *testing.T) {
		srv := setupTestServer(t)
		bookID := srv.createBook(t, "Retail", []any{"ABC123", 10})

		big := bytes.Repeat([]byte("0"), 2<<20)
		body, ct := multipartBody(t, map[string]string{"pricebook_id": bookID.String()}, "huge.pdf", big)
		w := srv.do(http.MethodPost, "/api/v1/orders", body, ct)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Zero(t, srv.extractor.calls)
	})
}

// TestCORSIntegration tests CORS headers work end-to-end with full router
func TestCORSIntegration(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/orders", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

// TestRecoveryMiddleware tests panic recovery
func TestRecoveryMiddleware(t *testing.T) {
	srv := setupTestServer(t)
	srv.router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	w := srv.doAs(uuid.Nil, http.MethodGet, "/panic", nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp apiError
	decodeJSON(t, w, &resp)
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
}

// TestAPIVersioning tests that API v1 routes are correctly versioned
func TestAPIVersioning(t *testing.T) {
	srv := setupTestServer(t)

	for _, path := range []string{"/api/pricebooks", "/pricebooks", "/api/v2/orders"} {
		w := srv.do(http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}
