package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultVirusTotalBaseURL = "https://www.virustotal.com"

// VirusTotalClient talks to the VirusTotal v3 URL analysis API.
type VirusTotalClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// VirusTotalOption customises client instantiation.
type VirusTotalOption func(*VirusTotalClient)

// WithVirusTotalBaseURL overrides the API base URL, primarily for tests.
func WithVirusTotalBaseURL(base string) VirusTotalOption {
	return func(c *VirusTotalClient) {
		if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithVirusTotalHTTPClient overrides the default HTTP client.
func WithVirusTotalHTTPClient(h *http.Client) VirusTotalOption {
	return func(c *VirusTotalClient) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// NewVirusTotalClient constructs a client with the given API key.
func NewVirusTotalClient(apiKey string, opts ...VirusTotalOption) *VirusTotalClient {
	c := &VirusTotalClient{
		baseURL:    defaultVirusTotalBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AnalyzeURL submits target for analysis and, when the provider returns an
// analysis identifier, fetches that analysis exactly once. No polling or retry:
// the result may still be marked "processing" by the provider, which callers
// accept as-is. A missing identifier yields a null payload, not an error.
func (c *VirusTotalClient) AnalyzeURL(ctx context.Context, target string) (json.RawMessage, error) {
	id, err := c.submit(ctx, target)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	return c.fetchAnalysis(ctx, id)
}

func (c *VirusTotalClient) submit(ctx context.Context, target string) (string, error) {
	form := url.Values{"url": {target}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v3/urls", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit url: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read submit response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{Provider: "virustotal", Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	return payload.Data.ID, nil
}

func (c *VirusTotalClient) fetchAnalysis(ctx context.Context, id string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/analyses/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("create analysis request: %w", err)
	}
	req.Header.Set("x-apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch analysis: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read analysis response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: "virustotal", Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode analysis response: %w", err)
	}
	return payload.Data, nil
}
