package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"payday/internal/app"
	"payday/internal/config"
	"payday/internal/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := cfg.Logger()

	a, err := app.Bootstrap(ctx, cfg, logger, "payday-worker", nil)
	if err != nil {
		logger.Error("bootstrap failed", "err", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())

	runOnce := strings.EqualFold(strings.TrimSpace(os.Getenv("PAYDAY_WORKER_RUN_ONCE")), "true")
	if runOnce {
		if err := maintain(ctx, logger, a.Jobs, cfg.PurgeEvery); err != nil {
			logger.Error("maintenance failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.PurgeEvery)
	defer ticker.Stop()

	logger.Info("worker started", "purge_every", cfg.PurgeEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := maintain(ctx, logger, a.Jobs, cfg.PurgeEvery); err != nil {
				logger.Error("maintenance failed", "err", err)
			}
		}
	}
}

// maintain purges expired cooldown rows and logs the fines issued during the
// last interval.
func maintain(ctx context.Context, logger *slog.Logger, svc *jobs.Service, window time.Duration) error {
	purged, err := svc.PurgeExpiredCooldowns(ctx)
	if err != nil {
		return err
	}
	stats, err := svc.FineStats(ctx, "", time.Now().Add(-window))
	if err != nil {
		return err
	}
	logger.Info("maintenance complete",
		"purged_cooldowns", purged,
		"fines", stats.Count,
		"fined_total", stats.TotalFined,
		"bonus_total", stats.TotalBonus,
	)
	return nil
}
