package storage

import (
	"context"
	"fmt"

	"github.com/Migyaba/external-settlement-service/internal/domain"
	"github.com/Migyaba/external-settlement-service/internal/infra"
)

// Open returns the notification store selected by configuration.
func Open(ctx context.Context, cfg *infra.Config) (domain.NotificationStore, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return NewPostgresStore(ctx, cfg.Storage.PostgresDSN)
	case "sqlite":
		return NewSQLiteStore(cfg.Storage.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

var (
	_ domain.NotificationStore = (*SQLiteStore)(nil)
	_ domain.NotificationStore = (*PostgresStore)(nil)
)
