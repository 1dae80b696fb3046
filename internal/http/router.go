package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phishscope/phishscope/internal/config"
	"github.com/phishscope/phishscope/internal/reputation"
	"github.com/phishscope/phishscope/internal/repository"
	"github.com/phishscope/phishscope/internal/service/auth"
	"github.com/phishscope/phishscope/internal/service/scan"
	"github.com/phishscope/phishscope/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	scans    scan.Service
	hub      *ws.Hub
	upgrader websocket.Upgrader
	limiter  RateLimiter
	cfg      config.Config
	webFS    fs.FS

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitRegister  = 5
	rateLimitLogin     = 12
	rateLimitAnalyze   = 30
	rateLimitUserRead  = 120
	rateLimitWebsocket = 30
	sseHeartbeatEvery  = 30 * time.Second
)

// NewRouter assembles routes with dependencies. webFS holds the SPA shell
// served for unmatched GET paths.
func NewRouter(logger *slog.Logger, authSvc auth.Service, scanSvc scan.Service, hub *ws.Hub, limiter RateLimiter, cfg config.Config, webFS fs.FS) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
		auth:   authSvc,
		scans:  scanSvc,
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter: limiter,
		cfg:     cfg,
		webFS:   webFS,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/api/health", r.audit(r.handleHealth))
	r.mux.HandleFunc("/api/auth/register", r.audit(r.withRateLimit("/api/auth/register", rateLimitRegister, rateWindowDefault, rateLimitKeyIP, r.handleRegister)))
	r.mux.HandleFunc("/api/auth/login", r.audit(r.withRateLimit("/api/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/api/auth/logout", r.audit(r.handleLogout))
	r.mux.HandleFunc("/api/auth/me", r.audit(r.handleMe))
	r.mux.HandleFunc("/api/auth/token", r.audit(r.handlerAuthRate("/api/auth/token", rateLimitUserRead, rateWindowDefault, r.handleAPIToken)))
	r.mux.HandleFunc("/api/user/scans", r.audit(r.handlerAuthRate("/api/user/scans", rateLimitUserRead, rateWindowDefault, r.handleScanHistory)))
	r.mux.HandleFunc("/api/analyze/url", r.audit(r.handlerAuthRate("/api/analyze/url", rateLimitAnalyze, rateWindowDefault, r.handleAnalyzeURL)))
	r.mux.HandleFunc("/api/analyze/email", r.audit(r.handlerAuthRate("/api/analyze/email", rateLimitAnalyze, rateWindowDefault, r.handleAnalyzeEmail)))
	r.mux.HandleFunc("/api/ws/scans", r.audit(r.handlerAuthRate("/api/ws/scans", rateLimitWebsocket, rateWindowRealtime, r.handleScanStreamWS)))
	r.mux.HandleFunc("/api/sse/scans", r.audit(r.handlerAuthRate("/api/sse/scans", rateLimitWebsocket, rateWindowRealtime, r.handleScanStreamSSE)))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/", r.audit(r.handleSPA))
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.Email == "" || payload.Password == "" || payload.Name == "" {
		writeError(w, http.StatusBadRequest, "Email, password, and name are required")
		return
	}
	account, session, err := r.auth.Register(req.Context(), payload.Email, payload.Password, payload.Name)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateAccount) {
			writeError(w, http.StatusBadRequest, "User already exists")
			return
		}
		r.logger.Error("registration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}
	r.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User registered successfully",
		"user":    account.Public(),
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.Email == "" || payload.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	account, session, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		r.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	r.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    account.Public(),
	})
}

func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if err := r.auth.Logout(req.Context(), r.sessionToken(req)); err != nil {
		r.logger.Error("logout failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Logout failed")
		return
	}
	r.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	account, err := r.resolveAccount(req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": account.Public()})
}

func (r *Router) handleAPIToken(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	account, err := r.resolveAccount(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	signed, ttl, err := r.auth.IssueAPIToken(account)
	if err != nil {
		r.logger.Error("token issuance failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Token issuance failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     signed,
		"expiresIn": int(ttl.Seconds()),
	})
}

func (r *Router) handleScanHistory(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for scan history", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	scans, err := r.scans.History(req.Context(), info.UserID)
	if err != nil {
		r.logger.Error("history lookup failed", "error", err, "user_id", info.UserID)
		writeError(w, http.StatusInternalServerError, "Failed to load scan history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scans": scans})
}

func (r *Router) handleAnalyzeURL(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for url analysis", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.URL) == "" {
		writeError(w, http.StatusBadRequest, "Missing url string")
		return
	}
	record, err := r.scans.AnalyzeURL(req.Context(), info.UserID, payload.URL)
	if err != nil {
		var provErr *reputation.ProviderError
		if errors.As(err, &provErr) {
			writeErrorDetails(w, http.StatusInternalServerError, "VirusTotal analysis failed", provErr.Body)
			return
		}
		r.logger.Error("url analysis failed", "error", err, "url", payload.URL)
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to analyze URL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (r *Router) handleAnalyzeEmail(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for email analysis", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	var payload struct {
		EmailText string `json:"emailText"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || payload.EmailText == "" {
		writeError(w, http.StatusBadRequest, "Missing emailText string")
		return
	}
	record, err := r.scans.AnalyzeEmail(req.Context(), info.UserID, payload.EmailText)
	if err != nil {
		r.logger.Error("email analysis failed", "error", err)
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to analyze email", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (r *Router) handleScanStreamWS(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for scan websocket", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(info.UserID, client)
	go func() {
		defer func() {
			r.hub.Unregister(info.UserID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleScanStreamSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for scan sse", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.hub.Register(info.UserID, client)
	defer func() {
		r.hub.Unregister(info.UserID, client)
		client.Close()
	}()

	heartbeat := time.NewTicker(sseHeartbeatEvery)
	defer heartbeat.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-heartbeat.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

// handleSPA serves the embedded frontend: static assets when they exist, the
// application shell for every other GET path, unknown /api paths included.
func (r *Router) handleSPA(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.notFound(w)
		return
	}
	name := strings.TrimPrefix(req.URL.Path, "/")
	if name != "" {
		if _, err := fs.Stat(r.webFS, name); err == nil {
			http.ServeFileFS(w, req, r.webFS, name)
			return
		}
	}
	http.ServeFileFS(w, req, r.webFS, "index.html")
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		route := routeLabel(req.URL.Path)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

// routeLabel keeps metric label cardinality bounded: API routes are a fixed
// set, everything else is the SPA.
func routeLabel(path string) string {
	if strings.HasPrefix(path, "/api/") {
		return path
	}
	return "spa"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

// Hijack exposes the underlying connection for websocket upgrades.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
