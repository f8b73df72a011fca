package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Cerberus/server/internal/db"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

type DetectionStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDetectionStore(db *sql.DB, writer *dbpkg.Worker) *DetectionStore {
	return &DetectionStore{db: db, writer: writer}
}

func (s *DetectionStore) RecordDetection(ctx context.Context, ev types.DetectionEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	var image, video any
	if ev.ImagePath != "" {
		image = ev.ImagePath
	}
	if ev.VideoPath != "" {
		video = ev.VideoPath
	}

	var awaiting int
	if ev.AwaitingSecondFactor {
		awaiting = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO detection_events(
  event_id, kind, name, detected_at_ms, image_path, video_path, awaiting_second_factor
) VALUES (?, ?, ?, ?, ?, ?, ?);
`, ev.ID, string(ev.Kind), ev.Name, ev.Timestamp.UTC().UnixMilli(), image, video, awaiting); err != nil {
			return fmt.Errorf("RecordDetection insert: %w", err)
		}
		return nil
	})
}

func (s *DetectionStore) RecentDetections(ctx context.Context, limit int) ([]types.DetectionEvent, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT event_id, kind, name, detected_at_ms, image_path, video_path, awaiting_second_factor
FROM detection_events
ORDER BY detected_at_ms DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentDetections query: %w", err)
	}
	defer rows.Close()

	var out []types.DetectionEvent
	for rows.Next() {
		var (
			ev         types.DetectionEvent
			kind       string
			detectedMs int64
			image      sql.NullString
			video      sql.NullString
			awaiting   int
		)
		if err := rows.Scan(&ev.ID, &kind, &ev.Name, &detectedMs, &image, &video, &awaiting); err != nil {
			return nil, fmt.Errorf("RecentDetections scan: %w", err)
		}
		ev.Kind = types.EventKind(kind)
		ev.Timestamp = time.UnixMilli(detectedMs).UTC()
		ev.ImagePath = image.String
		ev.VideoPath = video.String
		ev.AwaitingSecondFactor = awaiting == 1
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RecentDetections rows: %w", err)
	}
	return out, nil
}

// PruneOlderThan deletes archived detections older than cutoff and returns
// the number of rows removed.
func (s *DetectionStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM detection_events
WHERE detected_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
