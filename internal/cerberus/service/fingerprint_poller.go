package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

// FingerprintPoller expires stale verifications and, while one is pending,
// reads the sensor with a bounded scan and feeds the result to the Authorizer.
type FingerprintPoller struct {
	registry    *FingerprintRegistry
	auth        Authorizer
	scanTimeout time.Duration
	logger      *zap.Logger
}

func NewFingerprintPoller(registry *FingerprintRegistry, auth Authorizer, scanTimeout time.Duration, logger *zap.Logger) *FingerprintPoller {
	if scanTimeout <= 0 {
		scanTimeout = time.Second
	}
	return &FingerprintPoller{registry: registry, auth: auth, scanTimeout: scanTimeout, logger: logger}
}

// Step runs one poll. The returned decision is DecisionNoPending when no scan
// was attempted.
func (p *FingerprintPoller) Step(ctx context.Context) (Decision, error) {
	if expired, ok := p.auth.Expire(); ok {
		p.logger.Info("second-factor window closed",
			zap.String("name", expired.Name), zap.Time("deadline", expired.Deadline))
	}
	if !p.registry.Available() {
		return DecisionNoPending, ErrHardwareUnavailable
	}
	if _, ok := p.auth.Pending(); !ok {
		return DecisionNoPending, nil
	}

	id, err := p.registry.Scan(ctx, p.scanTimeout)
	name := types.UnknownName
	switch {
	case err == nil:
		if n, ok := p.registry.Resolve(id); ok {
			name = n
		} else {
			p.logger.Warn("scanned template has no enrollment", zap.Uint16("template_id", uint16(id)))
		}
	case errors.Is(err, ErrNoFinger), errors.Is(err, ErrDeviceBusy):
		return DecisionNoPending, nil
	case errors.Is(err, ErrUnknownFingerprint):
	default:
		return DecisionNoPending, err
	}

	dec, err := p.auth.OnFingerprint(ctx, name)
	if errors.Is(err, ErrFingerprintMismatch) || errors.Is(err, ErrVerificationTimeout) {
		// Routine outcomes; the authorizer has already logged them.
		return dec, nil
	}
	return dec, err
}
