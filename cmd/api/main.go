package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phishscope/phishscope/internal/app/migrate"
	"github.com/phishscope/phishscope/internal/config"
	httpx "github.com/phishscope/phishscope/internal/http"
	"github.com/phishscope/phishscope/internal/logger"
	"github.com/phishscope/phishscope/internal/reputation"
	"github.com/phishscope/phishscope/internal/repository"
	"github.com/phishscope/phishscope/internal/repository/memory"
	"github.com/phishscope/phishscope/internal/repository/postgres"
	"github.com/phishscope/phishscope/internal/service/auth"
	"github.com/phishscope/phishscope/internal/service/scan"
	"github.com/phishscope/phishscope/internal/ws"
	"github.com/phishscope/phishscope/web"
)

func main() {
	cfg := config.Load()
	log := logger.New("api", slog.LevelInfo)

	if strings.TrimSpace(cfg.VirusTotalAPIKey) == "" {
		log.Error("VIRUSTOTAL_API_KEY is required")
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.APITokenSecret) == "" {
		log.Error("API_TOKEN_SECRET is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Default to the in-memory store; Postgres is opt-in via DATABASE_URL.
	var store repository.Store = memory.New()
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			log.Error("failed to configure migrations", "error", err)
			os.Exit(1)
		}
		defer runner.Close()
		if err := runner.Ping(ctx); err != nil {
			log.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		if err := runner.Ensure(ctx); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		store = postgres.New(pool)
		log.Info("using postgres store")
	} else {
		log.Info("using in-memory store")
	}

	primary := reputation.NewVirusTotalClient(cfg.VirusTotalAPIKey)
	var secondary scan.Analyzer
	if cfg.URLScanAPIKey != "" {
		secondary = reputation.NewURLScanClient(cfg.URLScanAPIKey)
	}

	hub := ws.NewHub()
	authSvc := auth.New(store, store, log, cfg)
	scanSvc := scan.New(store, primary, secondary, hub, log)

	var limiter httpx.RateLimiter
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}
	if limiter == nil {
		limiter = httpx.NewMemoryRateLimiter()
	}

	router := httpx.NewRouter(log, authSvc, scanSvc, hub, limiter, cfg, web.FS())
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
