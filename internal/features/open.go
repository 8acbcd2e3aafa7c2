package features

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/postgres"
)

// TrackedStore is a Store that also records indexing status.
type TrackedStore interface {
	Store
	StatusMarker
}

// Open returns the PostgreSQL feature store when cfg enables it, migrated
// and ready, or a process-local MemoryStore otherwise.
func Open(ctx context.Context, cfg config.PostgresConfig) (TrackedStore, error) {
	if !cfg.Enabled {
		slog.Warn("postgres disabled, features are kept in memory")
		return NewMemoryStore(), nil
	}
	db, err := postgres.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting feature store: %w", err)
	}
	st := NewPostgresStore(db)
	if err := st.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("feature store connected", "host", cfg.Host, "database", cfg.Database)
	return st, nil
}
