// Package main запускает HTTP-сервер и диспетчер уведомлений сервиса присуждения тендеров.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/agrotender/internal/cache"
	"github.com/mmeshcher/agrotender/internal/config"
	"github.com/mmeshcher/agrotender/internal/handler"
	"github.com/mmeshcher/agrotender/internal/middleware"
	"github.com/mmeshcher/agrotender/internal/notify"
	"github.com/mmeshcher/agrotender/internal/repository"
	"github.com/mmeshcher/agrotender/internal/service"
	"github.com/mmeshcher/agrotender/internal/telemetry"
)

const profileCacheSize = 10_000

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier, closeNotifier, err := newNotifier(ctx, cfg, logger)
	if err != nil {
		sugar.Fatalw("notifier initialization error", "error", err.Error())
	}
	defer closeNotifier()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, "agrotender")
	if err != nil {
		sugar.Fatalw("telemetry initialization error", "error", err.Error())
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			sugar.Warnw("telemetry shutdown error", "error", err.Error())
		}
	}()

	metrics, err := telemetry.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		sugar.Fatalw("metrics initialization error", "error", err.Error())
	}

	profiles, err := cache.NewProfileCache(profileCacheSize, cfg.ProfileCacheTTL)
	if err != nil {
		sugar.Fatalw("profile cache initialization error", "error", err.Error())
	}
	defer profiles.Close()

	dispatcher := service.NewDispatcher(repo, notifier, logger,
		service.WithDispatchInterval(cfg.OutboxInterval),
		service.WithDispatchBatchSize(cfg.OutboxBatchSize),
		service.WithDispatcherMetrics(metrics),
	)

	svc := service.NewService(repo, logger,
		service.WithProfileCache(profiles),
		service.WithMetrics(metrics),
		service.WithAwardHook(dispatcher.Wake),
	)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Доставка уведомлений из outbox
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	g.Go(func() error {
		sugar.Infow("starting tender award server", "addr", cfg.RunAddress)
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

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}

// newNotifier выбирает транспорт уведомлений: NATS, затем webhook, иначе журнал.
func newNotifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.Notifier, func(), error) {
	switch {
	case cfg.NATSURL != "":
		js, err := notify.ConnectJetStream(ctx, cfg.NATSURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return js, func() { _ = js.Close() }, nil
	case cfg.NotifierURL != "":
		logger.Info("using webhook notifier", zap.String("url", cfg.NotifierURL))
		return notify.NewWebhook(cfg.NotifierURL, logger), func() {}, nil
	default:
		logger.Warn("no notification transport configured, notifications are only logged")
		return notify.NewLog(logger), func() {}, nil
	}
}
