// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/config"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/database"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/handler"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/logger"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/metrics"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/repository"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/service"
)

// redisKeyPrefix namespaces every key the service writes to Redis.
const redisKeyPrefix = "tickets:"

func main() {
	cfg := config.Load()
	logger.Set(logger.New(cfg.Env))
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx := context.Background()

	// ── 1. Metrics ───────────────────────────────────────────────────────
	m := metrics.New()
	if err := metrics.RegisterRuntime(prometheus.DefaultRegisterer); err != nil {
		logger.Fatal("register runtime collectors", zap.Error(err))
	}

	// ── 2. Storage ───────────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, m)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	defer closeStore()

	// ── 3. Wire up layers ────────────────────────────────────────────────
	protocol, err := service.NewProtocol(cfg.Booking.Variant, store, cfg.Booking.RaceGap)
	if err != nil {
		logger.Fatal("booking protocol", zap.Error(err))
	}
	svc := service.NewBookingService(store, protocol, m)
	h := handler.NewBookingHandler(svc)
	router := handler.NewRouter(h, m, prometheus.DefaultGatherer, cfg.Metrics)

	if protocol.Variant() == config.VariantUnsafe {
		logger.Warn("unsafe booking protocol enabled; concurrent bookings can oversell",
			zap.Duration("race_gap", cfg.Booking.RaceGap))
	}

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     zap.NewStdLog(logger.Get()),
	}

	go func() {
		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.Store.Backend),
			zap.String("variant", protocol.Variant()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}

// openStore connects the configured backend and returns it with its
// cleanup func.
func openStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (repository.Store, func(), error) {
	retry := func(target string) database.Retry {
		return database.Retry{
			Attempts:  cfg.Retry.Attempts,
			Delay:     cfg.Retry.Delay,
			OnFailure: database.LogRetries(target, cfg.Retry.Attempts),
		}
	}

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := database.NewPool(ctx, cfg.Database, retry("postgres"))
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("connected to postgres",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.DBName),
		)
		return repository.NewPostgresStore(pool, retry("postgres"), m), pool.Close, nil

	case config.BackendRedis:
		client := repository.NewRedisClient(cfg.Redis)
		store := repository.NewRedisStore(client, redisKeyPrefix, retry("redis"), m)
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr()))
		return store, func() { _ = client.Close() }, nil

	default:
		logger.Warn("using in-memory store; state is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}
}
