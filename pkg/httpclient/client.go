package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
)

// BaseClient provides common JSON request functionality. Requests are retried
// by retryablehttp on connection errors and 5xx responses.
type BaseClient struct {
	baseURL    string
	httpClient *retryablehttp.Client
	headers    map[string]string
	logger     hclog.Logger
}

// NewBaseClient creates a new base HTTP client
// Parameters:
//   - baseURL: The base URL for API requests (trailing slash will be removed)
//   - timeout: per-attempt HTTP timeout
//   - logger: logger for request tracing, may be nil
func NewBaseClient(baseURL string, timeout time.Duration, logger hclog.Logger) *BaseClient {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil // requests are traced through our own logger
	retryClient.HTTPClient.Timeout = timeout
	// Return the last response instead of a generic "giving up" error so the
	// caller can extract the backend's error message.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &BaseClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: retryClient,
		headers:    make(map[string]string),
		logger:     logger,
	}
}

// SetHeader sets a custom header that will be included in all requests
func (c *BaseClient) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetRetryMax overrides the number of retries; 0 disables retrying
func (c *BaseClient) SetRetryMax(n int) {
	c.httpClient.RetryMax = n
}

// SetRetryWait overrides the retry backoff bounds
func (c *BaseClient) SetRetryWait(minWait, maxWait time.Duration) {
	c.httpClient.RetryWaitMin = minWait
	c.httpClient.RetryWaitMax = maxWait
}

// DoJSON performs an HTTP request with JSON request/response bodies
// Parameters:
//   - ctx: request context
//   - method: HTTP method (GET, POST, PUT, DELETE, etc.)
//   - path: API path (will be appended to baseURL)
//   - reqBody: Request body (will be JSON marshaled), can be nil for GET requests
//   - respBody: Response body (will be JSON unmarshaled into), can be nil if response not needed
//
// Returns error if request fails or response status is not 2xx
func (c *BaseClient) DoJSON(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	fullURL := c.URL(path)

	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if reqBody != nil || method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.ApplyHeaders(req.Header)

	c.logger.Debug("sending request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StatusError(resp.StatusCode, body)
	}

	if respBody != nil && len(body) > 0 {
		if err := json.Unmarshal(body, respBody); err != nil {
			return fmt.Errorf("failed to unmarshal response body: %w", err)
		}
	}

	return nil
}

// StatusError builds an error for a non-2xx response, preferring the
// backend's "error" or "message" field over the raw body
func StatusError(status int, body []byte) error {
	var errorResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	if jsonErr := json.Unmarshal(body, &errorResp); jsonErr == nil {
		if errorResp.Error != "" {
			return fmt.Errorf("request failed with status %d: %s", status, errorResp.Error)
		}
		if errorResp.Message != "" {
			return fmt.Errorf("request failed with status %d: %s", status, errorResp.Message)
		}
	}

	bodyStr := strings.TrimSpace(string(body))
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}
	return fmt.Errorf("request failed with status %d: %s", status, bodyStr)
}

// URL joins path onto the base URL
func (c *BaseClient) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// ApplyHeaders copies the custom headers onto h
func (c *BaseClient) ApplyHeaders(h http.Header) {
	for key, value := range c.headers {
		h.Set(key, value)
	}
}

// GetBaseURL returns the base URL of the client
func (c *BaseClient) GetBaseURL() string {
	return c.baseURL
}

// GetHeader returns the value of a specific header
func (c *BaseClient) GetHeader(key string) string {
	return c.headers[key]
}
