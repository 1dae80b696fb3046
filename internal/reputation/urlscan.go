package reputation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultURLScanBaseURL = "https://urlscan.io"

// URLScanClient talks to the urlscan.io scan API.
type URLScanClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// URLScanOption customises client instantiation.
type URLScanOption func(*URLScanClient)

// WithURLScanBaseURL overrides the API base URL, primarily for tests.
func WithURLScanBaseURL(base string) URLScanOption {
	return func(c *URLScanClient) {
		if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithURLScanHTTPClient overrides the default HTTP client.
func WithURLScanHTTPClient(h *http.Client) URLScanOption {
	return func(c *URLScanClient) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// NewURLScanClient constructs a client with the given API key.
func NewURLScanClient(apiKey string, opts ...URLScanOption) *URLScanClient {
	c := &URLScanClient{
		baseURL:    defaultURLScanBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AnalyzeURL submits target as a private scan and attempts a single result
// fetch. urlscan usually needs time before results exist, so a failed fetch
// yields a pending marker with the scan UUID instead of an error; clients can
// retry later on their own. A submission without a UUID returns the raw
// submission payload.
func (c *URLScanClient) AnalyzeURL(ctx context.Context, target string) (json.RawMessage, error) {
	submission, uuid, err := c.submit(ctx, target)
	if err != nil {
		return nil, err
	}
	if uuid == "" {
		return submission, nil
	}
	result, err := c.fetchResult(ctx, uuid)
	if err != nil {
		pending, merr := json.Marshal(map[string]any{
			"pending": true,
			"uuid":    uuid,
			"message": "Result not ready yet. Try again shortly.",
		})
		if merr != nil {
			return nil, merr
		}
		return pending, nil
	}
	return result, nil
}

func (c *URLScanClient) submit(ctx context.Context, target string) (json.RawMessage, string, error) {
	payload, err := json.Marshal(map[string]string{"url": target, "visibility": "private"})
	if err != nil {
		return nil, "", fmt.Errorf("encode scan request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/scan/", bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("create scan request: %w", err)
	}
	req.Header.Set("API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("submit scan: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read scan response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", &ProviderError{Provider: "urlscan", Status: resp.StatusCode, Body: string(body)}
	}

	var parsed struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, "", fmt.Errorf("decode scan response: %w", err)
	}
	return body, parsed.UUID, nil
}

func (c *URLScanClient) fetchResult(ctx context.Context, uuid string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/result/"+url.PathEscape(uuid)+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("create result request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch result: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read result response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: "urlscan", Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
