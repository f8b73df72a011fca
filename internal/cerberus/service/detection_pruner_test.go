package service_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/service"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/store/memory"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

func TestDetectionPruner_DisabledWhenRetentionZero(t *testing.T) {
	pruner := service.NewDetectionPruner(memory.NewDetectionStore(), service.PrunerConfig{
		RetentionDays: 0,
		IntervalHours: 1,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pruner.Start(ctx)
	// Stop must return immediately.
	pruner.Stop()
}

func TestDetectionPruner_StopWithoutStart(t *testing.T) {
	pruner := service.NewDetectionPruner(memory.NewDetectionStore(), service.PrunerConfig{
		RetentionDays: 30,
	}, zap.NewNop())

	stopped := make(chan struct{})
	go func() {
		pruner.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked although Start was never called")
	}
}

func TestDetectionPruner_PrunesOnStart(t *testing.T) {
	ms := memory.NewDetectionStore()
	ctx := context.Background()

	for id, age := range map[string]int{"old": 40, "recent": 1} {
		if err := ms.RecordDetection(ctx, types.DetectionEvent{
			ID:        id,
			Kind:      types.EventMotion,
			Timestamp: time.Now().UTC().AddDate(0, 0, -age),
		}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	pruner := service.NewDetectionPruner(ms, service.PrunerConfig{RetentionDays: 30, IntervalHours: 1}, zap.NewNop())
	pruner.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for len(ms.Events()) != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	pruner.Stop()

	events := ms.Events()
	if len(events) != 1 || events[0].ID != "recent" {
		t.Errorf("expected only the recent event to survive, got %+v", events)
	}
}

func TestDetectionPruner_StopsOnContextCancel(t *testing.T) {
	pruner := service.NewDetectionPruner(memory.NewDetectionStore(), service.PrunerConfig{
		RetentionDays: 7,
		IntervalHours: 1,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	pruner.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		pruner.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pruner did not stop after context cancel")
	}
}
