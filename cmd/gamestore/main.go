// Package main запускает HTTP-сервер магазина игровых кодов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/gamecodes-store/internal/cache"
	"github.com/mmeshcher/gamecodes-store/internal/codes"
	"github.com/mmeshcher/gamecodes-store/internal/config"
	"github.com/mmeshcher/gamecodes-store/internal/handler"
	"github.com/mmeshcher/gamecodes-store/internal/metrics"
	"github.com/mmeshcher/gamecodes-store/internal/middleware"
	"github.com/mmeshcher/gamecodes-store/internal/repository"
	"github.com/mmeshcher/gamecodes-store/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	key, err := cfg.EncryptionKey()
	if err != nil {
		sugar.Fatalw("code encryption key error", "error", err.Error())
	}
	cipher, err := codes.NewCipher(key)
	if err != nil {
		sugar.Fatalw("code cipher initialization error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI, repository.Options{
		LockTimeout: cfg.LockTimeout,
		TxTimeout:   cfg.TxTimeout,
	})
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	m := metrics.New()
	opts := []service.Option{service.WithMetrics(m), service.WithLogger(logger)}
	handlerOpts := []handler.Option{
		handler.WithMetricsHandler(m.Handler()),
		handler.WithHealthCheck("postgres", repo),
	}

	if cfg.RedisAddress != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer client.Close()

		idem := cache.NewIdempotencyStore(client, 0)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := idem.Ping(pingCtx)
		cancel()
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}

		opts = append(opts, service.WithIdempotencyStore(idem))
		handlerOpts = append(handlerOpts, handler.WithHealthCheck("redis", idem))
	} else {
		sugar.Warn("redis address is not set, idempotency keys are ignored")
	}

	svc := service.NewService(repo, cipher, opts...)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret, svc, logger)
	h := handler.NewHandler(svc, logger, authMiddleware, handlerOpts...)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting game store server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
