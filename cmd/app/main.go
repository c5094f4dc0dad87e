package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Migyaba/external-settlement-service/internal/app"
	"github.com/Migyaba/external-settlement-service/internal/infra"
)

func main() {
	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(ctx, infra.ConfigPath()); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := bootstrap.Run(ctx); err != nil {
		slog.Error("❌ Settlement service stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("👋 Settlement service stopped")
}
