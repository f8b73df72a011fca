package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/service"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
	"github.com/BrandonDHaskell/Cerberus/server/internal/timeutil"
)

func newLock(cfg service.LockConfig) (*service.LockActuator, *fakePin, *timeutil.MockClock) {
	clock := newClock()
	pin := &fakePin{}
	return service.NewLockActuator(cfg, pin, clock, zap.NewNop()), pin, clock
}

func TestLock_UnlockRelocksAfterDuration(t *testing.T) {
	l, pin, clock := newLock(service.LockConfig{})

	if err := l.Unlock(5 * time.Second); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	st := l.State()
	if st.Position != types.Unlocked || st.RelockAt == nil || !st.RelockAt.Equal(epoch.Add(5*time.Second)) {
		t.Fatalf("unexpected state after unlock: %+v", st)
	}

	clock.Advance(4 * time.Second)
	if l.State().Position != types.Unlocked {
		t.Fatal("relocked too early")
	}
	clock.Advance(time.Second)
	if st := l.State(); st.Position != types.Locked || st.RelockAt != nil {
		t.Fatalf("expected locked with no deadline, got %+v", st)
	}
	if diff := cmp.Diff([]bool{false, true}, pin.Writes()); diff != "" {
		t.Errorf("pin writes (-want +got):\n%s", diff)
	}
}

func TestLock_LockCancelsPendingRelock(t *testing.T) {
	l, pin, clock := newLock(service.LockConfig{})

	_ = l.Unlock(5 * time.Second)
	if err := l.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if l.State().Position != types.Locked {
		t.Fatal("expected immediate lock")
	}

	clock.Advance(time.Minute)
	if diff := cmp.Diff([]bool{false, true}, pin.Writes()); diff != "" {
		t.Errorf("no further pin writes expected (-want +got):\n%s", diff)
	}
	if clock.Pending() != 0 {
		t.Errorf("expected no live timers, got %d", clock.Pending())
	}
}

func TestLock_SecondUnlockRestartsTimer(t *testing.T) {
	l, pin, clock := newLock(service.LockConfig{})

	_ = l.Unlock(5 * time.Second)
	clock.Advance(3 * time.Second)
	_ = l.Unlock(5 * time.Second)

	clock.Advance(3 * time.Second) // first window would have ended here
	if l.State().Position != types.Unlocked {
		t.Fatal("first timer relocked after being superseded")
	}
	clock.Advance(2 * time.Second)
	if l.State().Position != types.Locked {
		t.Fatal("expected relock at end of second window")
	}
	if diff := cmp.Diff([]bool{false, false, true}, pin.Writes()); diff != "" {
		t.Errorf("pin writes (-want +got):\n%s", diff)
	}
}

func TestLock_ShorterUnlockWins(t *testing.T) {
	l, _, clock := newLock(service.LockConfig{})

	_ = l.Unlock(30 * time.Second)
	_ = l.Unlock(2 * time.Second)
	clock.Advance(2 * time.Second)

	if l.State().Position != types.Locked {
		t.Error("last writer's duration should apply")
	}
}

func TestLock_RelockRetriesOnPinFailure(t *testing.T) {
	l, pin, clock := newLock(service.LockConfig{RelockRetry: time.Second})
	pin.failLocks = 2

	_ = l.Unlock(5 * time.Second)
	clock.Advance(5 * time.Second)
	if l.State().Position != types.Unlocked {
		t.Fatal("state must stay unlocked while the pin write fails")
	}
	clock.Advance(time.Second)
	clock.Advance(time.Second)
	if l.State().Position != types.Locked {
		t.Fatal("expected relock after retries")
	}
}

func TestLock_ReleaseWhenLocked(t *testing.T) {
	l, pin, clock := newLock(service.LockConfig{ReleaseWhenLocked: true})

	_ = l.Unlock(time.Second)
	clock.Advance(time.Second)
	if pin.releases != 1 {
		t.Errorf("expected 1 release, got %d", pin.releases)
	}
}

func TestLock_Disabled(t *testing.T) {
	l := service.NewLockActuator(service.LockConfig{}, nil, newClock(), zap.NewNop())

	if l.Available() {
		t.Error("expected unavailable")
	}
	if err := l.Unlock(time.Second); !errors.Is(err, service.ErrHardwareUnavailable) {
		t.Errorf("Unlock: expected ErrHardwareUnavailable, got %v", err)
	}
	if err := l.Lock(); !errors.Is(err, service.ErrHardwareUnavailable) {
		t.Errorf("Lock: expected ErrHardwareUnavailable, got %v", err)
	}
}

func TestLock_RejectsNonPositiveDuration(t *testing.T) {
	l, pin, _ := newLock(service.LockConfig{})

	if err := l.Unlock(0); !errors.Is(err, service.ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
	if len(pin.Writes()) != 0 {
		t.Error("no pin write expected")
	}
}
