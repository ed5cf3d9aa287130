package db

import (
	"context"
	"fmt"

	"payday/internal/config"
	"payday/internal/jobs"
	"payday/internal/store/postgres"
	"payday/internal/store/sqlite"
)

// OpenStore opens the ledger store selected by store_driver and applies its
// schema. The returned func releases the underlying connections.
func OpenStore(ctx context.Context, cfg *config.Config, applicationName string) (jobs.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := Connect(ctx, cfg.DatabaseURL, PoolOptions{
			ApplicationName: applicationName,
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			LedgerTimeout:   cfg.LedgerTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		store := postgres.New(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return store, pool.Close, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown store_driver %q", config.ErrInvalidConfig, cfg.StoreDriver)
	}
}
