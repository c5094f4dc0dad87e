package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Migyaba/external-settlement-service/internal/api"
	"github.com/Migyaba/external-settlement-service/internal/domain"
	"github.com/Migyaba/external-settlement-service/internal/engine"
	"github.com/Migyaba/external-settlement-service/internal/infra"
	"github.com/Migyaba/external-settlement-service/internal/infra/directory"
	"github.com/Migyaba/external-settlement-service/internal/infra/hub"
	"github.com/Migyaba/external-settlement-service/internal/infra/messenger"
	"github.com/Migyaba/external-settlement-service/internal/infra/storage"
	"github.com/Migyaba/external-settlement-service/internal/service"
)

// Bootstrap orchestrates the application startup and shutdown sequence
type Bootstrap struct {
	Config     *infra.Config
	Metrics    *infra.Metrics
	Store      domain.NotificationStore
	Resolver   *directory.Resolver
	Refresher  *directory.Refresher
	Messenger  domain.Messenger
	Dispatcher *service.Dispatcher
	Reconciler *engine.Reconciler
	Server     *http.Server

	// closed in reverse order on shutdown
	closers []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration from path and builds every component.
func (b *Bootstrap) Initialize(ctx context.Context, path string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("🚀 Bootstrapping settlement service...", slog.String("version", cfg.App.Version))

	b.Metrics = infra.NewMetrics()

	// 3. Notification store
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	b.Store = store
	b.closers = append(b.closers, namedCloser{"store", store})
	slog.Info("✅ Notification store ready", slog.String("driver", cfg.Storage.Driver))

	// 4. Directory resolver
	var cache directory.AccountCache
	if cfg.Directory.RedisAddr != "" {
		rc, err := directory.NewRedisCache(ctx, cfg.Directory.RedisAddr, cfg.Directory.RedisDB)
		if err != nil {
			slog.Warn("Redis unavailable, using in-memory directory cache", slog.Any("error", err))
		} else {
			cache = rc
			b.closers = append(b.closers, namedCloser{"redis", rc})
		}
	}
	b.Resolver = directory.NewResolver(cfg, cache, b.Metrics)
	if cfg.Directory.RefreshIntervalSec > 0 {
		b.Refresher = directory.NewRefresher(b.Resolver, time.Duration(cfg.Directory.RefreshIntervalSec)*time.Second)
	}

	// 5. Messenger
	switch cfg.Notify.Driver {
	case "nats":
		nm, err := messenger.NewNATSMessenger(cfg.Notify.NATSURL, cfg.Notify.SubjectPrefix)
		if err != nil {
			b.Close()
			return fmt.Errorf("connect nats: %w", err)
		}
		b.Messenger = nm
		b.closers = append(b.closers, namedCloser{"nats", nm})
	default:
		b.Messenger = messenger.NewLogMessenger(nil)
	}
	slog.Info("✅ Messenger ready", slog.String("driver", cfg.Notify.Driver))

	// 6. Notification fan-out and reconciliation
	notifier := service.NewNotifier(b.Resolver, b.Messenger, cfg.Notify.OperatorAddress, cfg.Notify.Concurrency, b.Metrics)
	b.Dispatcher = service.NewDispatcher(notifier, cfg.AsyncNotify(), time.Duration(cfg.Notify.TimeoutSec)*time.Second, b.Metrics)
	b.Reconciler = engine.NewReconciler(
		hub.NewClient(cfg, b.Metrics),
		b.Store,
		b.Dispatcher,
		engine.WithTolerance(cfg.AmountTolerance()),
		engine.WithMetrics(b.Metrics),
	)

	// 7. HTTP surface
	router := api.NewRouter(cfg, api.NewHandler(b.Reconciler), b.Metrics)
	b.Server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (b *Bootstrap) Run(ctx context.Context) error {
	if b.Refresher != nil {
		b.Refresher.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("✨ Settlement service listening", slog.String("addr", b.Server.Addr))
		if err := b.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			b.Shutdown(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}

	slog.Info("👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), b.Config.ShutdownTimeout())
	defer cancel()
	return b.Shutdown(shutdownCtx)
}

// Shutdown stops intake, drains in-flight notifications, then releases resources.
func (b *Bootstrap) Shutdown(ctx context.Context) error {
	var errs []error
	if b.Server != nil {
		if err := b.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if b.Refresher != nil {
		b.Refresher.Stop()
	}
	if b.Dispatcher != nil {
		if err := b.Dispatcher.Drain(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain notifications: %w", err))
		}
	}
	if err := b.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases store, cache and broker connections.
func (b *Bootstrap) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		nc := b.closers[i]
		if err := nc.c.Close(); err != nil {
			slog.Error("Failed to close resource", slog.String("resource", nc.name), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("close %s: %w", nc.name, err))
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
