package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVirusTotalSubmitsThenFetchesOnce(t *testing.T) {
	var submits, fetches int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v3/urls":
			submits++
			if got := r.Header.Get("x-apikey"); got != "test-key" {
				t.Errorf("unexpected api key header: %q", got)
			}
			if got := r.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
				t.Errorf("unexpected content type: %q", got)
			}
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse form: %v", err)
			}
			if got := r.PostForm.Get("url"); got != "http://example.com" {
				t.Errorf("unexpected submitted url: %q", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"id": "analysis-1"}})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v3/analyses/analysis-1":
			fetches++
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"id":         "analysis-1",
					"attributes": map[string]any{"stats": map[string]int{"malicious": 2}},
				},
			})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewVirusTotalClient("test-key", WithVirusTotalBaseURL(server.URL))
	payload, err := client.AnalyzeURL(context.Background(), "http://example.com")
	if err != nil {
		t.Fatalf("AnalyzeURL returned error: %v", err)
	}
	if submits != 1 || fetches != 1 {
		t.Fatalf("expected one submit and one fetch, got %d and %d", submits, fetches)
	}
	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil || parsed.ID != "analysis-1" {
		t.Fatalf("unexpected payload %s (err %v)", payload, err)
	}
}

func TestVirusTotalMissingIDYieldsNullPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			t.Errorf("analysis fetch should not happen without an id")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{}})
	}))
	defer server.Close()

	client := NewVirusTotalClient("test-key", WithVirusTotalBaseURL(server.URL))
	payload, err := client.AnalyzeURL(context.Background(), "http://example.com")
	if err != nil {
		t.Fatalf("AnalyzeURL returned error: %v", err)
	}
	if payload != nil {
		t.Fatalf("expected nil payload, got %s", payload)
	}
}

func TestVirusTotalSubmitErrorSurfacesProviderBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"WrongCredentialsError"}}`))
	}))
	defer server.Close()

	client := NewVirusTotalClient("bad-key", WithVirusTotalBaseURL(server.URL))
	_, err := client.AnalyzeURL(context.Background(), "http://example.com")
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.Status != http.StatusUnauthorized || provErr.Provider != "virustotal" {
		t.Fatalf("unexpected provider error: %+v", provErr)
	}
}

func TestURLScanPendingWhenResultNotReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/scan/":
			if got := r.Header.Get("API-Key"); got != "scan-key" {
				t.Errorf("unexpected api key header: %q", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"uuid": "scan-uuid", "message": "Submission successful"})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/result/scan-uuid/":
			w.WriteHeader(http.StatusNotFound)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewURLScanClient("scan-key", WithURLScanBaseURL(server.URL))
	payload, err := client.AnalyzeURL(context.Background(), "http://example.com")
	if err != nil {
		t.Fatalf("AnalyzeURL returned error: %v", err)
	}
	var parsed struct {
		Pending bool   `json:"pending"`
		UUID    string `json:"uuid"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("unmarshal pending payload: %v", err)
	}
	if !parsed.Pending || parsed.UUID != "scan-uuid" {
		t.Fatalf("unexpected pending payload: %s", payload)
	}
}

func TestURLScanReturnsResultWhenReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			_ = json.NewEncoder(w).Encode(map[string]string{"uuid": "scan-uuid"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"verdicts": map[string]any{"overall": map[string]int{"score": 0}}})
		}
	}))
	defer server.Close()

	client := NewURLScanClient("scan-key", WithURLScanBaseURL(server.URL))
	payload, err := client.AnalyzeURL(context.Background(), "http://example.com")
	if err != nil {
		t.Fatalf("AnalyzeURL returned error: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if _, ok := parsed["verdicts"]; !ok {
		t.Fatalf("expected result payload, got %s", payload)
	}
}
