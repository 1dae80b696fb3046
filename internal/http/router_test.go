package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"log/slog"

	"github.com/phishscope/phishscope/internal/config"
	"github.com/phishscope/phishscope/internal/report"
	"github.com/phishscope/phishscope/internal/repository/memory"
	"github.com/phishscope/phishscope/internal/service/auth"
	"github.com/phishscope/phishscope/internal/service/scan"
	"github.com/phishscope/phishscope/internal/ws"
)

type stubAnalyzer struct {
	mu      sync.Mutex
	calls   []string
	payload json.RawMessage
	err     error
}

func (s *stubAnalyzer) AnalyzeURL(_ context.Context, target string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, target)
	if s.err != nil {
		return nil, s.err
	}
	return s.payload, nil
}

func (s *stubAnalyzer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newTestRouter(t *testing.T, analyzer scan.Analyzer) (*Router, *memory.Store) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store := memory.New()
	cfg := config.Config{
		SessionTTL:     24 * time.Hour,
		APITokenSecret: "test-secret",
		APITokenTTL:    time.Hour,
	}
	hub := ws.NewHub()
	authSvc := auth.New(store, store, logger, cfg)
	scanSvc := scan.New(store, analyzer, nil, hub, logger)
	webFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>shell</html>")},
		"app.js":     &fstest.MapFile{Data: []byte("// app")},
	}
	router := NewRouter(logger, authSvc, scanSvc, hub, NewMemoryRateLimiter(), cfg, webFS)
	t.Cleanup(router.Close)
	return router, store
}

func doJSON(t *testing.T, router *Router, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:51234"
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func registerAccount(t *testing.T, router *Router, email string) []*http.Cookie {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    email,
		"password": "hunter22",
		"name":     "Sam",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("register returned %d: %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("register did not set a session cookie")
	}
	return cookies
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &stubAnalyzer{})
	rec := doJSON(t, router, http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestProtectedRoutesRejectAnonymous(t *testing.T) {
	analyzer := &stubAnalyzer{payload: json.RawMessage(`{"id":"a1"}`)}
	router, _ := newTestRouter(t, analyzer)

	cases := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/user/scans", nil},
		{http.MethodPost, "/api/analyze/url", map[string]string{"url": "http://example.com"}},
		{http.MethodPost, "/api/analyze/email", map[string]string{"emailText": "visit http://example.com"}},
		{http.MethodPost, "/api/auth/token", nil},
	}
	for _, tc := range cases {
		rec := doJSON(t, router, tc.method, tc.path, tc.body, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", tc.method, tc.path, rec.Code)
		}
		body := decodeBody(t, rec)
		if body["error"] != "Authentication required" {
			t.Errorf("%s %s: unexpected error message %v", tc.method, tc.path, body["error"])
		}
	}
	if analyzer.callCount() != 0 {
		t.Fatalf("analyzer invoked %d times for anonymous requests", analyzer.callCount())
	}
}

func TestRegisterValidation(t *testing.T) {
	router, _ := newTestRouter(t, &stubAnalyzer{})

	rec := doJSON(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"email": "sam@example.com",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Email, password, and name are required" {
		t.Fatalf("unexpected error message: %v", body["error"])
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	router, _ := newTestRouter(t, &stubAnalyzer{})
	registerAccount(t, router, "sam@example.com")

	rec := doJSON(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "sam@example.com",
		"password": "hunter22",
		"name":     "Sam",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "User already exists" {
		t.Fatalf("unexpected error message: %v", body["error"])
	}
}

func TestLoginWrongPassword(t *testing.T) {
	router, _ := newTestRouter(t, &stubAnalyzer{})
	registerAccount(t, router, "sam@example.com")

	rec := doJSON(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "sam@example.com",
		"password": "not-the-password",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Invalid credentials" {
		t.Fatalf("unexpected error message: %v", body["error"])
	}
}

func TestMeLifecycle(t *testing.T) {
	router, _ := newTestRouter(t, &stubAnalyzer{})

	rec := doJSON(t, router, http.MethodGet, "/api/auth/me", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 before login, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Not authenticated" {
		t.Fatalf("unexpected error message: %v", body["error"])
	}

	cookies := registerAccount(t, router, "sam@example.com")
	rec = doJSON(t, router, http.MethodGet, "/api/auth/me", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after login, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("missing user object: %v", body)
	}
	if user["email"] != "sam@example.com" {
		t.Fatalf("unexpected user payload: %v", user)
	}

	// Logout invalidates the session.
	rec = doJSON(t, router, http.MethodPost, "/api/auth/logout", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout returned %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/auth/me", nil, cookies)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestAnalyzeURLRoundTrip(t *testing.T) {
	analyzer := &stubAnalyzer{payload: json.RawMessage(`{"id":"a1","type":"analysis","attributes":{"stats":{"malicious":0,"harmless":70}}}`)}
	router, _ := newTestRouter(t, analyzer)
	cookies := registerAccount(t, router, "sam@example.com")

	rec := doJSON(t, router, http.MethodPost, "/api/analyze/url", map[string]string{
		"url": "http://example.com",
	}, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze returned %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["url"] != "http://example.com" {
		t.Fatalf("unexpected record url: %v", body["url"])
	}
	if _, ok := body["virusTotal"]; !ok {
		t.Fatalf("record missing virusTotal payload: %v", body)
	}
	if analyzer.callCount() != 1 {
		t.Fatalf("expected single provider call, got %d", analyzer.callCount())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/user/scans", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("history returned %d", rec.Code)
	}
	history := decodeBody(t, rec)
	scans, ok := history["scans"].([]any)
	if !ok {
		t.Fatalf("missing scans array: %v", history)
	}
	if len(scans) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(scans))
	}
	entry, ok := scans[0].(map[string]any)
	if !ok || entry["url"] != "http://example.com" {
		t.Fatalf("unexpected history entry: %v", scans[0])
	}

	// The stored payload is the unwrapped data object: attributes sit at the
	// top level, where renderers and the normalizer look for them.
	vt, ok := entry["virusTotal"].(map[string]any)
	if !ok {
		t.Fatalf("virusTotal payload is not an object: %v", entry["virusTotal"])
	}
	if _, ok := vt["attributes"].(map[string]any); !ok {
		t.Fatalf("stored payload missing top-level attributes: %v", vt)
	}
	raw, err := json.Marshal(vt)
	if err != nil {
		t.Fatalf("re-marshal stored payload: %v", err)
	}
	stats := report.Summarize(raw)
	if stats.Harmless != 70 || stats.Risk() != report.RiskLow {
		t.Fatalf("stored payload did not normalize: %+v", stats)
	}
}

func TestAnalyzeURLMissingBody(t *testing.T) {
	router, _ := newTestRouter(t, &stubAnalyzer{})
	cookies := registerAccount(t, router, "sam@example.com")

	rec := doJSON(t, router, http.MethodPost, "/api/analyze/url", map[string]string{}, cookies)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Missing url string" {
		t.Fatalf("unexpected error message: %v", body["error"])
	}
}

func TestAnalyzeEmailMissingBody(t *testing.T) {
	router, _ := newTestRouter(t, &stubAnalyzer{})
	cookies := registerAccount(t, router, "sam@example.com")

	rec := doJSON(t, router, http.MethodPost, "/api/analyze/email", map[string]string{}, cookies)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Missing emailText string" {
		t.Fatalf("unexpected error message: %v", body["error"])
	}
}

func TestAPITokenBearerAccess(t *testing.T) {
	router, _ := newTestRouter(t, &stubAnalyzer{})
	cookies := registerAccount(t, router, "sam@example.com")

	rec := doJSON(t, router, http.MethodPost, "/api/auth/token", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("token issuance returned %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("missing token in response: %v", body)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/user/scans", nil)
	req.RemoteAddr = "192.0.2.10:51234"
	req.Header.Set("Authorization", "Bearer "+token)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("bearer access returned %d: %s", rec2.Code, rec2.Body.String())
	}
}

func TestRegisterRateLimit(t *testing.T) {
	router, _ := newTestRouter(t, &stubAnalyzer{})

	var last *httptest.ResponseRecorder
	for i := 0; i < rateLimitRegister+1; i++ {
		last = doJSON(t, router, http.MethodPost, "/api/auth/register", map[string]string{}, nil)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after exhausting limit, got %d", last.Code)
	}
	if last.Header().Get("X-RateLimit-Limit") == "" {
		t.Fatal("missing X-RateLimit-Limit header")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t, &stubAnalyzer{})
	rec := doJSON(t, router, http.MethodDelete, "/api/health", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSPAFallback(t *testing.T) {
	router, _ := newTestRouter(t, &stubAnalyzer{})

	rec := doJSON(t, router, http.MethodGet, "/dashboard", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for SPA route, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("shell")) {
		t.Fatalf("expected index.html shell, got %q", rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/app.js", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for static asset, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("// app")) {
		t.Fatalf("expected asset contents, got %q", rec.Body.String())
	}

	// Unknown /api paths fall through to the shell as well.
	rec = doJSON(t, router, http.MethodGet, "/api/does-not-exist", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown api path, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("shell")) {
		t.Fatalf("expected index.html shell for unknown api path, got %q", rec.Body.String())
	}
}
