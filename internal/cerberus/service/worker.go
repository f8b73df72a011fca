package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// loopConfig describes one long-lived worker.
type loopConfig struct {
	name     string
	interval time.Duration
	// health is the service whose status follows step's result; empty skips reporting.
	health string
	step   func(ctx context.Context) error
}

// runLoop calls step every interval until ctx ends. Each iteration is its own
// recovery point: errors and panics are logged and the loop carries on.
// Hardware unavailability is logged on transition only.
func runLoop(ctx context.Context, lc loopConfig, hr HealthReporter, logger *zap.Logger) error {
	logger = logger.With(zap.String("worker", lc.name))
	logger.Info("worker started", zap.Duration("interval", lc.interval))

	ticker := time.NewTicker(lc.interval)
	defer ticker.Stop()

	degraded := false
	for {
		err := safeStep(ctx, lc.step)
		switch {
		case err == nil:
			if degraded {
				logger.Info("hardware back")
			}
			degraded = false
			report(hr, lc.health, true)
		case ctx.Err() != nil:
		case errors.Is(err, ErrHardwareUnavailable):
			if !degraded {
				logger.Warn("hardware unavailable; retrying each tick", zap.Error(err))
			}
			degraded = true
			report(hr, lc.health, false)
		default:
			logger.Error("iteration failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func safeStep(ctx context.Context, step func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return step(ctx)
}

func report(hr HealthReporter, service string, serving bool) {
	if service != "" {
		hr.SetServing(service, serving)
	}
}
