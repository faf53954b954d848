// Package scheduler ticks every product on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"github.com/valeevte/valora/internal/logging"
)

type Config struct {
	Interval time.Duration
	// Workers bounds the ticks running at once within one pass.
	Workers int
	// RunOnStart runs one pass immediately instead of waiting a full interval.
	RunOnStart bool
}

// Ticker is the part of simulation.Service the scheduler drives.
type Ticker interface {
	TickAll(ctx context.Context, workers int) (ticked, failed int, err error)
}

// Run blocks until ctx is cancelled.
func Run(ctx context.Context, svc Ticker, cfg Config) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logging.Info(ctx, "scheduler: started", "interval", interval.String(), "workers", workers)

	if cfg.RunOnStart {
		pass(ctx, svc, workers)
	}
	for {
		select {
		case <-ctx.Done():
			logging.Info(context.Background(), "scheduler: stopping due to context cancelled")
			return
		case <-ticker.C:
			pass(ctx, svc, workers)
		}
	}
}

func pass(ctx context.Context, svc Ticker, workers int) {
	start := time.Now()
	ticked, failed, err := svc.TickAll(ctx, workers)
	if err != nil && ctx.Err() == nil {
		logging.Error(ctx, "scheduler: pass failed", "error", err)
		return
	}
	logging.Info(ctx, "scheduler: pass done",
		"ticked", ticked,
		"failed", failed,
		"duration", time.Since(start).String(),
	)
}
