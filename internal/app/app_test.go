package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"payday/internal/config"
	"payday/internal/jobs"
)

func TestBootstrapSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.StoreDriver = config.DriverSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "app.db")
	cfg.StarterBalance = 25

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := Bootstrap(context.Background(), cfg, logger, "payday-test", nil)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer a.Close(context.Background())

	p, err := a.Jobs.Register(context.Background(), "p1", "one")
	if err != nil || p.Balance != 25 {
		t.Fatalf("participant=%+v err=%v", p, err)
	}
	if _, err := a.Jobs.SelectProfession(context.Background(), "p1", jobs.Interpol, false); err != nil {
		t.Fatalf("select: %v", err)
	}
	families, err := a.Registry.Gather()
	if err != nil || len(families) == 0 {
		t.Fatalf("metrics families=%d err=%v", len(families), err)
	}
}

func TestBootstrapBadProfessionsFile(t *testing.T) {
	cfg := config.Default()
	cfg.StoreDriver = config.DriverSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "app.db")
	cfg.ProfessionsFile = filepath.Join(t.TempDir(), "missing.toml")

	if _, err := Bootstrap(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), "payday-test", nil); err == nil {
		t.Fatalf("expected error")
	}
}
