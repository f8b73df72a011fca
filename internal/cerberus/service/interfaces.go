package service

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

// FrameSource yields the current camera frame. Implementations must be safe
// for concurrent use; the motion and face workers read independently.
type FrameSource interface {
	Next(ctx context.Context) (types.Frame, error)
}

// FaceMatcher wraps the biometric feature extractor. Matching against known
// identities happens in KnownIdentitySet.BestMatch, not here.
type FaceMatcher interface {
	Locate(ctx context.Context, f types.Frame) ([]types.BoundingBox, error)
	Embed(ctx context.Context, f types.Frame, box types.BoundingBox) (types.Embedding, error)
}

// FingerprintDevice is the sensor. TryScan returns ErrNoFinger when nothing
// was placed on it before timeout and ErrUnknownFingerprint when the print
// matched no stored template.
type FingerprintDevice interface {
	TryScan(ctx context.Context, timeout time.Duration) (types.TemplateID, error)
	Enroll(ctx context.Context) (types.TemplateID, error)
	Delete(ctx context.Context, id types.TemplateID) error
}

// EvidenceWriter persists artifacts and returns the public path of each.
type EvidenceWriter interface {
	WriteImage(ctx context.Context, f types.Frame) (string, error)
	WriteClip(ctx context.Context, frames []types.Frame) (string, error)
}

// Notifier must not block; delivery failures are the notifier's to log.
type Notifier interface {
	Notify(ev types.DetectionEvent)
}

// LockPin drives the physical lock output.
type LockPin interface {
	SetLocked(locked bool) error
	// Release stops driving the pin without changing the logical lock state.
	Release() error
}

// DatasetSource lists the labelled training images.
type DatasetSource interface {
	Images(ctx context.Context) ([]types.LabeledFrame, error)
}

// HealthReporter receives per-device serving status.
type HealthReporter interface {
	SetServing(service string, serving bool)
}

// Health service names.
const (
	HealthCamera      = "camera"
	HealthMatcher     = "matcher"
	HealthFingerprint = "fingerprint"
	HealthLock        = "lock"
)

type nopNotifier struct{}

func (nopNotifier) Notify(types.DetectionEvent) {}

type nopHealth struct{}

func (nopHealth) SetServing(string, bool) {}
