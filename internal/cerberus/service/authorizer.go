package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
	"github.com/BrandonDHaskell/Cerberus/server/internal/timeutil"
)

// Decision is the outcome of feeding one event to an Authorizer.
type Decision int

const (
	DecisionIgnored Decision = iota
	DecisionPending
	DecisionRefreshed
	DecisionUnlocked
	DecisionMismatch
	DecisionNoPending
)

func (d Decision) String() string {
	switch d {
	case DecisionIgnored:
		return "ignored"
	case DecisionPending:
		return "pending"
	case DecisionRefreshed:
		return "refreshed"
	case DecisionUnlocked:
		return "unlocked"
	case DecisionMismatch:
		return "mismatch"
	case DecisionNoPending:
		return "no_pending"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Door is what an Authorizer opens.
type Door interface {
	Unlock(d time.Duration) error
}

// Authorizer turns identity and fingerprint events into unlock decisions.
type Authorizer interface {
	OnIdentity(ctx context.Context, name string) (Decision, error)
	OnFingerprint(ctx context.Context, name string) (Decision, error)
	// Expire clears a pending verification whose deadline has passed and
	// returns it.
	Expire() (types.PendingVerification, bool)
	Pending() (types.PendingVerification, bool)
	RequiresSecondFactor() bool
}

type AuthorizerConfig struct {
	// Timeout is how long a face match waits for its fingerprint.
	Timeout        time.Duration
	UnlockDuration time.Duration
	// RefreshOnRematch extends the deadline when the pending person is seen again.
	RefreshOnRematch bool
}

func (c AuthorizerConfig) withDefaults() AuthorizerConfig {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UnlockDuration <= 0 {
		c.UnlockDuration = 5 * time.Second
	}
	return c
}

// TwoFactorAuthorizer holds at most one PendingVerification. The first
// pending identity wins until it resolves or expires.
type TwoFactorAuthorizer struct {
	cfg    AuthorizerConfig
	clock  timeutil.Clock
	door   Door
	logger *zap.Logger

	mu      sync.Mutex
	pending *types.PendingVerification
}

func NewTwoFactorAuthorizer(cfg AuthorizerConfig, clock timeutil.Clock, door Door, logger *zap.Logger) *TwoFactorAuthorizer {
	return &TwoFactorAuthorizer{cfg: cfg.withDefaults(), clock: clock, door: door, logger: logger}
}

func (a *TwoFactorAuthorizer) RequiresSecondFactor() bool { return true }

func (a *TwoFactorAuthorizer) OnIdentity(_ context.Context, name string) (Decision, error) {
	if name == "" || name == types.UnknownName {
		return DecisionIgnored, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	a.expireLocked(now)

	switch {
	case a.pending == nil:
		a.pending = &types.PendingVerification{
			Name:      name,
			CreatedAt: now,
			Deadline:  now.Add(a.cfg.Timeout),
		}
		a.logger.Info("awaiting second factor",
			zap.String("name", name), zap.Time("deadline", a.pending.Deadline))
		return DecisionPending, nil

	case a.pending.Name == name && a.cfg.RefreshOnRematch:
		a.pending.Deadline = now.Add(a.cfg.Timeout)
		return DecisionRefreshed, nil

	default:
		return DecisionIgnored, nil
	}
}

// OnFingerprint resolves the pending verification. name is the person the
// scanned template belongs to, or UnknownName.
func (a *TwoFactorAuthorizer) OnFingerprint(_ context.Context, name string) (Decision, error) {
	a.mu.Lock()
	if a.pending == nil {
		a.mu.Unlock()
		return DecisionNoPending, nil
	}
	if a.expireLocked(a.clock.Now()) {
		a.mu.Unlock()
		return DecisionNoPending, ErrVerificationTimeout
	}
	if name != a.pending.Name {
		want := a.pending.Name
		a.mu.Unlock()
		a.logger.Warn("fingerprint mismatch",
			zap.String("pending", want), zap.String("scanned", name))
		return DecisionMismatch, ErrFingerprintMismatch
	}
	a.pending = nil
	a.mu.Unlock()

	a.logger.Info("second factor confirmed", zap.String("name", name))
	if err := a.door.Unlock(a.cfg.UnlockDuration); err != nil {
		return DecisionUnlocked, fmt.Errorf("unlock for %q: %w", name, err)
	}
	return DecisionUnlocked, nil
}

func (a *TwoFactorAuthorizer) Expire() (types.PendingVerification, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending == nil {
		return types.PendingVerification{}, false
	}
	p := *a.pending
	if !a.expireLocked(a.clock.Now()) {
		return types.PendingVerification{}, false
	}
	return p, true
}

func (a *TwoFactorAuthorizer) Pending() (types.PendingVerification, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending == nil || a.clock.Now().After(a.pending.Deadline) {
		return types.PendingVerification{}, false
	}
	return *a.pending, true
}

// expireLocked clears the pending record once now is strictly past its deadline.
func (a *TwoFactorAuthorizer) expireLocked(now time.Time) bool {
	if a.pending != nil && now.After(a.pending.Deadline) {
		a.pending = nil
		return true
	}
	return false
}

// SingleFactorAuthorizer unlocks on any known face. Used when no
// fingerprint sensor is configured.
type SingleFactorAuthorizer struct {
	cfg    AuthorizerConfig
	door   Door
	logger *zap.Logger
}

func NewSingleFactorAuthorizer(cfg AuthorizerConfig, door Door, logger *zap.Logger) *SingleFactorAuthorizer {
	return &SingleFactorAuthorizer{cfg: cfg.withDefaults(), door: door, logger: logger}
}

func (a *SingleFactorAuthorizer) RequiresSecondFactor() bool { return false }

func (a *SingleFactorAuthorizer) OnIdentity(_ context.Context, name string) (Decision, error) {
	if name == "" || name == types.UnknownName {
		return DecisionIgnored, nil
	}
	a.logger.Info("face accepted", zap.String("name", name))
	if err := a.door.Unlock(a.cfg.UnlockDuration); err != nil {
		return DecisionUnlocked, fmt.Errorf("unlock for %q: %w", name, err)
	}
	return DecisionUnlocked, nil
}

func (a *SingleFactorAuthorizer) OnFingerprint(context.Context, string) (Decision, error) {
	return DecisionNoPending, nil
}

func (a *SingleFactorAuthorizer) Expire() (types.PendingVerification, bool) {
	return types.PendingVerification{}, false
}

func (a *SingleFactorAuthorizer) Pending() (types.PendingVerification, bool) {
	return types.PendingVerification{}, false
}
