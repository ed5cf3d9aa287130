// Package app wires configuration, storage, telemetry and the engine
// together for the payday binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"payday/internal/config"
	"payday/internal/db"
	"payday/internal/jobs"
	"payday/internal/telemetry"
)

type App struct {
	Config   *config.Config
	Log      *slog.Logger
	Store    jobs.Store
	Jobs     *jobs.Service
	Registry *prometheus.Registry

	closers []func(context.Context) error
}

// Bootstrap builds the engine for one process. name is used for the
// tracing service name and the database application name.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger, name string, notifier jobs.Notifier) (*App, error) {
	a := &App{Config: cfg, Log: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	shutdown, err := telemetry.Setup(ctx, name, cfg.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	reg, err := cfg.Registry()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	store, closeStore, err := db.OpenStore(ctx, cfg, name)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, func(context.Context) error { closeStore(); return nil })

	opts := []jobs.Option{
		jobs.WithMetrics(jobs.NewMetrics(a.Registry)),
		jobs.WithFinePolicy(cfg.FinePolicy()),
		jobs.WithTimeouts(cfg.LedgerTimeout, cfg.NotifyTimeout),
		jobs.WithStarterBalance(cfg.StarterBalance),
	}
	if notifier != nil {
		opts = append(opts, jobs.WithNotifier(notifier))
	}
	svc, err := jobs.NewService(store, reg, logger, opts...)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Jobs = svc
	logger.Info("engine ready",
		"store", cfg.StoreDriver,
		"professions", len(reg.Professions()),
		"fining", reg.FiningProfession(),
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Log.Warn("shutdown step failed", "err", err)
		}
	}
	a.closers = nil
}
