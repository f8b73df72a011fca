package timeutil_test

import (
	"testing"
	"time"

	"github.com/BrandonDHaskell/Cerberus/server/internal/timeutil"
)

func TestMockClock_AdvanceFiresDueTimers(t *testing.T) {
	start := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	c := timeutil.NewMockClock(start)

	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "late") })
	c.AfterFunc(1*time.Second, func() { fired = append(fired, "early") })

	c.Advance(500 * time.Millisecond)
	if len(fired) != 0 {
		t.Fatalf("expected nothing fired yet, got %v", fired)
	}

	c.Advance(2 * time.Second)
	if len(fired) != 2 || fired[0] != "early" || fired[1] != "late" {
		t.Fatalf("expected [early late], got %v", fired)
	}
	if !c.Now().Equal(start.Add(2500 * time.Millisecond)) {
		t.Errorf("unexpected now: %v", c.Now())
	}
}

func TestMockClock_StoppedTimerNeverFires(t *testing.T) {
	c := timeutil.NewMockClock(time.Unix(0, 0))

	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })
	if !tm.Stop() {
		t.Fatal("expected Stop to report an active timer")
	}
	if tm.Stop() {
		t.Error("second Stop should report inactive")
	}

	c.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired")
	}
	if c.Pending() != 0 {
		t.Errorf("expected 0 pending timers, got %d", c.Pending())
	}
}

func TestRealClock_AfterFunc(t *testing.T) {
	done := make(chan struct{})
	timeutil.RealClock{}.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("real AfterFunc did not fire")
	}
}
