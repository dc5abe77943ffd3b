package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/orderguard/backend/internal/domain"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Supported document extraction providers
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-1.5-flash"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
)

// Config holds the settings of the extraction client
type Config struct {
	Provider          string
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	MaxAttempts       int
	RequestsPerMinute int
}

// Client extracts purchase order line items with a document-understanding LLM
type Client struct {
	httpClient  *http.Client
	provider    string
	apiKey      string
	baseURL     string
	model       string
	maxAttempts int
	rateLimiter *rate.Limiter
	backoff     func(attempt int) time.Duration
	log         *logrus.Entry
}

// NewClient creates a new extraction client for the configured provider
func NewClient(cfg Config, logger *logrus.Logger) (*Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderGemini
	}

	baseURL, model := cfg.BaseURL, cfg.Model
	switch provider {
	case ProviderGemini:
		if baseURL == "" {
			baseURL = defaultGeminiBaseURL
		}
		if model == "" {
			model = defaultGeminiModel
		}
	case ProviderOpenAI:
		if baseURL == "" {
			baseURL = defaultOpenAIBaseURL
		}
		if model == "" {
			model = defaultOpenAIModel
		}
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}

	// rate.Limit is requests per second
	limiter := rate.NewLimiter(rate.Limit(float64(perMinute)/60), 5)

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		provider:    provider,
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		maxAttempts: maxAttempts,
		rateLimiter: limiter,
		backoff:     exponentialBackoff,
		log:         logger.WithFields(logrus.Fields{"component": "llm", "provider": provider}),
	}, nil
}

// Extract sends the PDF to the provider and normalizes the returned line items.
// An empty slice means the document was read but contained no line items.
func (c *Client) Extract(ctx context.Context, pdf []byte) ([]domain.ExtractedLineItem, error) {
	if len(pdf) == 0 {
		return nil, domain.ErrInvalidRequest
	}

	endpoint, payload, err := c.buildRequest(pdf)
	if err != nil {
		return nil, err
	}

	body, err := c.post(ctx, endpoint, payload)
	if err != nil {
		return nil, err
	}

	text, err := c.responseText(body)
	if err != nil {
		return nil, err
	}

	items, err := parseLineItems(text)
	if err != nil {
		c.log.WithError(err).Warn("could not read line items from model output")
		return nil, err
	}

	c.log.WithField("lines", len(items)).Info("extracted purchase order line items")
	return items, nil
}

func (c *Client) buildRequest(pdf []byte) (string, []byte, error) {
	var (
		endpoint string
		request  any
	)
	switch c.provider {
	case ProviderOpenAI:
		endpoint = c.baseURL + "/chat/completions"
		request = newOpenAIRequest(c.model, pdf)
	default:
		endpoint = fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
		request = newGeminiRequest(pdf)
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return endpoint, payload, nil
}

func (c *Client) responseText(body []byte) (string, error) {
	switch c.provider {
	case ProviderOpenAI:
		return openAIText(body)
	default:
		return geminiText(body)
	}
}

// doRequest executes an HTTP POST request with proper headers and error handling
func (c *Client) doRequest(ctx context.Context, endpoint string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "OrderGuard/1.0")

	switch c.provider {
	case ProviderOpenAI:
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	default:
		req.Header.Set("x-goog-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}

	return resp, nil
}

// post sends the request, retrying transport errors, 429 and 5xx responses
func (c *Client) post(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		// Wait for rate limiter
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrExtractionFailed, err)
		}

		resp, err := c.doRequest(ctx, endpoint, payload)
		if err != nil {
			c.log.WithError(err).WithField("attempt", attempt).Warn("extraction request failed")
			lastErr = err
			if err := c.wait(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			c.log.WithError(readErr).WithField("attempt", attempt).Warn("reading extraction response failed")
			lastErr = fmt.Errorf("%w: read response: %v", domain.ErrExtractionFailed, readErr)
			if err := c.wait(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			c.log.WithFields(logrus.Fields{
				"attempt": attempt,
				"status":  resp.StatusCode,
			}).Warn("extraction service returned an error")

			lastErr = fmt.Errorf("%w: status %d: %s", domain.ErrExtractionFailed, resp.StatusCode, truncate(string(body), 200))
			if !retryable(resp.StatusCode) {
				return nil, lastErr
			}
			if err := c.wait(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		return body, nil
	}

	c.log.WithField("attempts", c.maxAttempts).Error("all extraction attempts failed")
	return nil, lastErr
}

// wait sleeps between attempts unless the context ends first
func (c *Client) wait(ctx context.Context, attempt int) error {
	if attempt >= c.maxAttempts {
		return nil
	}
	timer := time.NewTimer(c.backoff(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrExtractionFailed, ctx.Err())
	case <-timer.C:
		return nil
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// exponentialBackoff returns 500ms, 1s, 2s, ... for attempts 1, 2, 3, ...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
