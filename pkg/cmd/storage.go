package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/braidflow/braid/pkg/storage"
	"github.com/braidflow/braid/pkg/storage/file"
	"github.com/braidflow/braid/pkg/storage/postgres"
	"github.com/braidflow/braid/pkg/storage/redis"
)

// NewExecutionStorage selects a storage backend from the database URL
// scheme. postgres:// and redis:// URLs get their drivers; anything else is
// treated as a file path.
func NewExecutionStorage(ctx context.Context, logger *slog.Logger, databaseURL string) (storage.ExecutionStorage, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgres.NewStorage(ctx, logger, databaseURL)
	case strings.HasPrefix(databaseURL, "redis://"), strings.HasPrefix(databaseURL, "rediss://"):
		return redis.NewStorage(ctx, logger, databaseURL)
	default:
		return file.NewStorage(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}
