package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/store"
)

// DetectionPruner deletes archived detections older than the retention
// period. A retention of 0 disables it.
type DetectionPruner struct {
	store     store.DetectionStore
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	cancel    context.CancelFunc
	done      chan struct{}
	started   bool
}

type PrunerConfig struct {
	// RetentionDays of archive to keep. 0 keeps everything.
	RetentionDays int

	// IntervalHours between runs. Defaults to 6.
	IntervalHours int
}

func NewDetectionPruner(s store.DetectionStore, cfg PrunerConfig, logger *zap.Logger) *DetectionPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	return &DetectionPruner{
		store:     s,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start prunes once immediately, then on every interval, until ctx is
// cancelled or Stop is called.
func (p *DetectionPruner) Start(ctx context.Context) {
	p.started = true
	if p.retention <= 0 {
		p.logger.Info("detection pruner disabled", zap.Int("retention_days", 0))
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.logger.Info("detection pruner started",
		zap.Duration("retention", p.retention), zap.Duration("interval", p.interval))
}

// Stop signals the loop to exit and waits for it. It is a no-op before Start.
func (p *DetectionPruner) Stop() {
	if !p.started {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *DetectionPruner) loop(ctx context.Context) {
	defer close(p.done)

	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("detection pruner stopped")
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *DetectionPruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)

	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("detection prune failed", zap.Error(err))
		}
		return
	}
	if deleted > 0 {
		p.logger.Info("pruned archived detections",
			zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
}
