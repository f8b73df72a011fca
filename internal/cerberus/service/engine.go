package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/store"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
	"github.com/BrandonDHaskell/Cerberus/server/internal/timeutil"
)

type Config struct {
	Motion MotionConfig
	Face   FaceConfig
	Auth   AuthorizerConfig
	Lock   LockConfig

	// SecondFactor selects the two-factor authorizer. When set and the
	// fingerprint device is missing, faces alone never open the lock.
	SecondFactor bool

	FingerprintInterval time.Duration
	ScanTimeout         time.Duration

	LogCapacity  int
	RingCapacity int

	// ManualUnlock is the window used by Unlock when the caller passes 0.
	ManualUnlock time.Duration
}

// Dependencies are the collaborators handed to NewEngine. Any device may be
// nil; the matching capability is then disabled. Identities and Enrollments
// are required.
type Dependencies struct {
	Frames      FrameSource
	Matcher     FaceMatcher
	Fingerprint FingerprintDevice
	Pin         LockPin
	Evidence    EvidenceWriter
	Notifier    Notifier
	Dataset     DatasetSource

	Identities  store.IdentityStore
	Enrollments store.EnrollmentStore
	Detections  store.DetectionStore

	Health HealthReporter
	Clock  timeutil.Clock
	Logger *zap.Logger
}

// Engine is the shared context every worker and the HTTP layer go through.
// Each piece of mutable state lives behind its own component.
type Engine struct {
	cfg    Config
	deps   Dependencies
	logger *zap.Logger

	motionEnabled atomic.Bool

	history  *History
	gallery  *Gallery
	lock     *LockActuator
	auth     Authorizer
	registry *FingerprintRegistry
	trainer  *Trainer
	motion   *MotionDetector
	faces    *FaceRecognizer
	poller   *FingerprintPoller
}

func NewEngine(cfg Config, deps Dependencies) *Engine {
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Health == nil {
		deps.Health = nopHealth{}
	}
	if cfg.FingerprintInterval <= 0 {
		cfg.FingerprintInterval = 200 * time.Millisecond
	}
	if cfg.ManualUnlock <= 0 {
		cfg.ManualUnlock = 5 * time.Second
	}
	log := deps.Logger

	e := &Engine{cfg: cfg, deps: deps, logger: log}
	e.motionEnabled.Store(true)

	e.history = NewHistory(cfg.LogCapacity, cfg.RingCapacity, deps.Detections, deps.Notifier, log.Named("history"))
	e.gallery = NewGallery()
	e.lock = NewLockActuator(cfg.Lock, deps.Pin, deps.Clock, log.Named("lock"))

	if cfg.SecondFactor {
		e.auth = NewTwoFactorAuthorizer(cfg.Auth, deps.Clock, e.lock, log.Named("auth"))
	} else {
		e.auth = NewSingleFactorAuthorizer(cfg.Auth, e.lock, log.Named("auth"))
	}

	e.registry = NewFingerprintRegistry(deps.Fingerprint, deps.Enrollments, deps.Clock, log.Named("fingerprint"))
	e.trainer = NewTrainer(deps.Dataset, deps.Matcher, deps.Identities, e.gallery, log.Named("trainer"))
	e.motion = NewMotionDetector(cfg.Motion, deps.Clock, e.history, deps.Evidence, &e.motionEnabled, log.Named("motion"))
	e.faces = NewFaceRecognizer(cfg.Face, deps.Matcher, e.gallery, e.auth, e.history, deps.Evidence, deps.Clock, log.Named("face"))
	e.poller = NewFingerprintPoller(e.registry, e.auth, cfg.ScanTimeout, log.Named("fingerprint"))
	return e
}

// Load restores persisted state and drives the lock closed.
func (e *Engine) Load(ctx context.Context) error {
	if err := e.trainer.Load(ctx); err != nil {
		return err
	}
	if err := e.registry.Load(ctx); err != nil {
		return err
	}
	if e.deps.Detections != nil {
		recent, err := e.deps.Detections.RecentDetections(ctx, e.history.log.capacity)
		if err != nil {
			return fmt.Errorf("load detections: %w", err)
		}
		e.history.Seed(recent)
	}

	if !e.lock.Available() {
		e.logger.Warn("lock control disabled: no lock pin")
		e.deps.Health.SetServing(HealthLock, false)
	} else if err := e.lock.Lock(); err != nil {
		e.logger.Error("initial lock failed", zap.Error(err))
		e.deps.Health.SetServing(HealthLock, false)
	} else {
		e.deps.Health.SetServing(HealthLock, true)
	}

	if e.cfg.SecondFactor && !e.registry.Available() {
		e.logger.Warn("second factor required but no fingerprint sensor; faces will not unlock")
		e.deps.Health.SetServing(HealthFingerprint, false)
	}
	return nil
}

// Run starts the workers and blocks until ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if e.deps.Frames == nil {
		e.logger.Warn("detection disabled: no frame source")
		e.deps.Health.SetServing(HealthCamera, false)
	} else {
		g.Go(func() error {
			return runLoop(ctx, loopConfig{
				name:     "motion",
				interval: e.motion.cfg.Interval,
				health:   HealthCamera,
				step:     e.motionStep,
			}, e.deps.Health, e.logger)
		})

		if e.deps.Matcher == nil {
			e.logger.Warn("face recognition disabled: no matcher")
			e.deps.Health.SetServing(HealthMatcher, false)
		} else {
			g.Go(func() error {
				return runLoop(ctx, loopConfig{
					name:     "face",
					interval: e.faces.cfg.Interval,
					health:   HealthMatcher,
					step:     e.faceStep,
				}, e.deps.Health, e.logger)
			})
		}
	}

	if e.auth.RequiresSecondFactor() {
		g.Go(func() error {
			return runLoop(ctx, loopConfig{
				name:     "fingerprint",
				interval: e.cfg.FingerprintInterval,
				health:   HealthFingerprint,
				step: func(ctx context.Context) error {
					_, err := e.poller.Step(ctx)
					return err
				},
			}, e.deps.Health, e.logger)
		})
	}

	g.Go(func() error { return e.trainer.Run(ctx) })

	return g.Wait()
}

func (e *Engine) motionStep(ctx context.Context) error {
	f, err := e.deps.Frames.Next(ctx)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if _, err := e.motion.Observe(ctx, f); err != nil {
		e.logger.Warn("motion event dropped", zap.Error(err))
	}
	return nil
}

func (e *Engine) faceStep(ctx context.Context) error {
	f, err := e.deps.Frames.Next(ctx)
	if err != nil {
		// The motion worker owns camera health.
		e.logger.Debug("face capture skipped", zap.Error(err))
		return nil
	}
	_, err = e.faces.Observe(ctx, f)
	return err
}

// ── Control surface ──

// Unlock opens the door for d, or the configured manual window when d is 0.
func (e *Engine) Unlock(d time.Duration) error {
	if d == 0 {
		d = e.cfg.ManualUnlock
	}
	return e.lock.Unlock(d)
}

func (e *Engine) Lock() error { return e.lock.Lock() }

func (e *Engine) LockState() types.LockState { return e.lock.State() }

func (e *Engine) LockAvailable() bool { return e.lock.Available() }

func (e *Engine) Pending() (types.PendingVerification, bool) { return e.auth.Pending() }

func (e *Engine) Detections() []types.DetectionEvent { return e.history.Detections() }

func (e *Engine) MotionEnabled() bool { return e.motionEnabled.Load() }

func (e *Engine) SetMotionEnabled(on bool) {
	e.motionEnabled.Store(on)
	e.logger.Info("motion detection toggled", zap.Bool("enabled", on))
}

// ToggleMotion flips the motion flag and returns the new value.
func (e *Engine) ToggleMotion() bool {
	for {
		old := e.motionEnabled.Load()
		if e.motionEnabled.CompareAndSwap(old, !old) {
			e.logger.Info("motion detection toggled", zap.Bool("enabled", !old))
			return !old
		}
	}
}

func (e *Engine) Registry() *FingerprintRegistry { return e.registry }

func (e *Engine) Trainer() *Trainer { return e.trainer }

func (e *Engine) KnownIdentities() []string { return e.gallery.Load().Names() }

// Status assembles the observable state.
func (e *Engine) Status() types.StatusResponse {
	st := types.StatusResponse{
		Status:          "success",
		Lock:            e.lock.State(),
		LockAvailable:   e.lock.Available(),
		SecondFactor:    e.auth.RequiresSecondFactor(),
		MotionEnabled:   e.motionEnabled.Load(),
		Detections:      e.history.Len(),
		KnownIdentities: e.gallery.Load().Len(),
		Enrollments:     e.registry.Len(),
		ServerTime:      e.deps.Clock.Now().UTC().Format(time.RFC3339),
	}
	if p, ok := e.auth.Pending(); ok {
		st.Pending = &p
	}
	return st
}
