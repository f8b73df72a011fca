package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

// DetectionStore archives every logged detection. The in-memory log is bounded;
// the archive keeps history until the pruner removes it.
type DetectionStore interface {
	RecordDetection(ctx context.Context, ev types.DetectionEvent) error
	// RecentDetections returns up to limit events, newest first.
	RecentDetections(ctx context.Context, limit int) ([]types.DetectionEvent, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
