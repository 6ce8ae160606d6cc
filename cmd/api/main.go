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

	"wasmgate/internal/app/migrate"
	httpx "wasmgate/internal/http"
	"wasmgate/internal/repository/postgres"
	"wasmgate/internal/service/admission"
	"wasmgate/internal/service/apikey"
	"wasmgate/internal/service/auth"
	"wasmgate/internal/service/cleanup"
	"wasmgate/internal/service/sandbox"
	"wasmgate/internal/service/usage"
	"wasmgate/internal/ws"
	"wasmgate/pkg/config"
	"wasmgate/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	if err := runner.Up(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	var distributed admission.CounterBackend
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		backend, err := admission.NewRedisBackend(addr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTimeout)
		if err != nil {
			log.Warn("distributed counter store unavailable, counting locally", "error", err)
		} else {
			distributed = backend
		}
	}
	controller := admission.NewController(distributed, admission.NewMemoryBackend(cfg.FallbackSweepInterval), log, cfg.CountDeniedRequests)
	defer controller.Close()

	usageHub := ws.NewHub()
	defer usageHub.Close()

	authSvc := auth.New(repo, repo, log, cfg.CredentialCacheTTL)
	keySvc := apikey.New(repo, repo, authSvc, log)
	executor := sandbox.New(log, cfg.ExecutionSlots)
	recorder := usage.NewRecorder(repo, usageHub, log, cfg.UsageQueueSize, cfg.UsageBatchSize, cfg.UsageFlushInterval)
	defer recorder.Close()

	janitor := cleanup.New(repo, log, cfg.CleanupInterval, cfg.UsageRetention)
	defer janitor.Close()

	router := httpx.NewRouter(log, cfg, authSvc, controller, executor, recorder, keySvc, usageHub, pool.Ping)

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
