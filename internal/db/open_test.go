package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"payday/internal/config"
	"payday/internal/jobs"
)

func TestOpenSQLiteStore(t *testing.T) {
	cfg := config.Default()
	cfg.StoreDriver = config.DriverSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "open.db")

	store, closeFn, err := OpenStore(context.Background(), cfg, "payday-test")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()

	p, err := store.EnsureParticipant(context.Background(), "p1", "one", 10)
	if err != nil || p.Balance != 10 {
		t.Fatalf("participant=%+v err=%v", p, err)
	}
	var _ jobs.Store = store
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.StoreDriver = "mysql"
	if _, _, err := OpenStore(context.Background(), cfg, ""); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("err=%v", err)
	}
}

func TestPoolOptionsApply(t *testing.T) {
	cfg, err := pgxpool.ParseConfig("postgres://payday@localhost:5432/payday")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	PoolOptions{ApplicationName: "payday-api", MaxConns: 8, MinConns: 10, LedgerTimeout: 5 * time.Second}.apply(cfg)
	if cfg.MaxConns != 8 {
		t.Fatalf("max=%d", cfg.MaxConns)
	}
	if cfg.MinConns > cfg.MaxConns {
		t.Fatalf("min=%d above max", cfg.MinConns)
	}
	if got := cfg.ConnConfig.RuntimeParams["application_name"]; got != "payday-api" {
		t.Fatalf("application_name=%q", got)
	}
	if got := cfg.ConnConfig.RuntimeParams["statement_timeout"]; got != "5000" {
		t.Fatalf("statement_timeout=%q", got)
	}
}
