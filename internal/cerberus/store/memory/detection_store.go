package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

// DetectionStore is an in-memory append-only detection archive.
type DetectionStore struct {
	mu     sync.Mutex
	events []types.DetectionEvent
}

func NewDetectionStore() *DetectionStore {
	return &DetectionStore{}
}

func (s *DetectionStore) RecordDetection(_ context.Context, ev types.DetectionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *DetectionStore) RecentDetections(_ context.Context, limit int) ([]types.DetectionEvent, error) {
	s.mu.Lock()
	out := make([]types.DetectionEvent, len(s.events))
	copy(out, s.events)
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *DetectionStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var deleted int64
	for _, ev := range s.events {
		if ev.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return deleted, nil
}

// Events returns a copy of all archived events in insertion order. Test-only helper.
func (s *DetectionStore) Events() []types.DetectionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.DetectionEvent, len(s.events))
	copy(out, s.events)
	return out
}
