package service

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
	"github.com/BrandonDHaskell/Cerberus/server/internal/timeutil"
)

type LockConfig struct {
	// ReleaseWhenLocked stops driving the pin after each successful lock.
	ReleaseWhenLocked bool
	// RelockRetry is the wait before retrying a failed relock.
	RelockRetry time.Duration
}

// LockActuator is the only component that touches the lock pin. Every pin
// write happens under mu, and every Unlock or Lock bumps gen so that a relock
// timer from an older sequence does nothing when it fires.
type LockActuator struct {
	cfg    LockConfig
	pin    LockPin
	clock  timeutil.Clock
	logger *zap.Logger

	mu       sync.Mutex
	position types.LockPosition
	relockAt time.Time
	timer    timeutil.Timer
	gen      uint64
}

// NewLockActuator returns an actuator for pin. A nil pin yields a disabled
// actuator whose Unlock and Lock report ErrHardwareUnavailable.
func NewLockActuator(cfg LockConfig, pin LockPin, clock timeutil.Clock, logger *zap.Logger) *LockActuator {
	if cfg.RelockRetry <= 0 {
		cfg.RelockRetry = time.Second
	}
	return &LockActuator{
		cfg:      cfg,
		pin:      pin,
		clock:    clock,
		logger:   logger,
		position: types.Locked,
	}
}

func (l *LockActuator) Available() bool { return l.pin != nil }

// Unlock opens the lock and (re)starts the relock timer. A call while an
// earlier window is still open replaces that window.
func (l *LockActuator) Unlock(d time.Duration) error {
	if l.pin == nil {
		return ErrHardwareUnavailable
	}
	if d <= 0 {
		return ErrInvalidPeriod
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.pin.SetLocked(false); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}

	l.gen++
	l.stopTimerLocked()
	gen := l.gen
	l.timer = l.clock.AfterFunc(d, func() { l.relock(gen) })
	l.position = types.Unlocked
	l.relockAt = l.clock.Now().Add(d)

	l.logger.Info("lock opened", zap.Duration("duration", d), zap.Time("relock_at", l.relockAt))
	return nil
}

// Lock closes the lock now and cancels any pending relock.
func (l *LockActuator) Lock() error {
	if l.pin == nil {
		return ErrHardwareUnavailable
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.gen++
	l.stopTimerLocked()
	if err := l.lockLocked(l.gen); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	l.logger.Info("lock closed")
	return nil
}

func (l *LockActuator) State() types.LockState {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := types.LockState{Position: l.position}
	if l.position == types.Unlocked && !l.relockAt.IsZero() {
		at := l.relockAt
		st.RelockAt = &at
	}
	return st
}

func (l *LockActuator) relock(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.gen {
		return
	}
	l.timer = nil
	if err := l.lockLocked(gen); err != nil {
		return
	}
	l.logger.Info("lock relocked")
}

// lockLocked drives the pin locked. On failure it schedules a retry for the
// same generation so the door cannot stay open.
func (l *LockActuator) lockLocked(gen uint64) error {
	if err := l.pin.SetLocked(true); err != nil {
		l.logger.Error("relock failed; retrying",
			zap.Duration("retry_in", l.cfg.RelockRetry), zap.Error(err))
		l.timer = l.clock.AfterFunc(l.cfg.RelockRetry, func() { l.relock(gen) })
		l.relockAt = l.clock.Now().Add(l.cfg.RelockRetry)
		return err
	}

	l.position = types.Locked
	l.relockAt = time.Time{}

	if l.cfg.ReleaseWhenLocked {
		if err := l.pin.Release(); err != nil {
			l.logger.Warn("release lock pin failed", zap.Error(err))
		}
	}
	return nil
}

func (l *LockActuator) stopTimerLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}
