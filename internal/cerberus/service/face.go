package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
	"github.com/BrandonDHaskell/Cerberus/server/internal/timeutil"
)

type FaceConfig struct {
	Interval  time.Duration
	Tolerance float64
}

func (c FaceConfig) withDefaults() FaceConfig {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.Tolerance <= 0 {
		c.Tolerance = DefaultTolerance
	}
	return c
}

// FaceRecognizer logs every face it sees and hands known ones to the
// Authorizer. It never opens the lock itself.
type FaceRecognizer struct {
	cfg      FaceConfig
	matcher  FaceMatcher
	gallery  *Gallery
	auth     Authorizer
	history  *History
	evidence EvidenceWriter
	clock    timeutil.Clock
	logger   *zap.Logger
}

func NewFaceRecognizer(cfg FaceConfig, matcher FaceMatcher, gallery *Gallery, auth Authorizer, history *History, evidence EvidenceWriter, clock timeutil.Clock, logger *zap.Logger) *FaceRecognizer {
	return &FaceRecognizer{
		cfg:      cfg.withDefaults(),
		matcher:  matcher,
		gallery:  gallery,
		auth:     auth,
		history:  history,
		evidence: evidence,
		clock:    clock,
		logger:   logger,
	}
}

// Observe runs one recognition pass over f and returns the events it logged.
func (r *FaceRecognizer) Observe(ctx context.Context, f types.Frame) ([]types.DetectionEvent, error) {
	boxes, err := r.matcher.Locate(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("locate faces: %w", err)
	}
	if len(boxes) == 0 {
		return nil, nil
	}

	// One snapshot per frame so a concurrent retrain cannot split a pass.
	known := r.gallery.Load()

	// Identity events are logged even when the image cannot be saved.
	imagePath, _, err := r.history.WriteEvidence(ctx, r.evidence, f, false)
	if err != nil {
		r.logger.Warn("face evidence not saved", zap.Error(err))
		imagePath = ""
	}

	var out []types.DetectionEvent
	for _, box := range boxes {
		emb, err := r.matcher.Embed(ctx, f, box)
		if err != nil {
			if errors.Is(err, ErrHardwareUnavailable) || ctx.Err() != nil {
				return out, fmt.Errorf("embed face: %w", err)
			}
			r.logger.Warn("embed face failed", zap.Any("box", box), zap.Error(err))
			continue
		}

		name, dist := known.BestMatch(emb, r.cfg.Tolerance)

		awaiting := false
		if name != types.UnknownName {
			dec, err := r.auth.OnIdentity(ctx, name)
			if err != nil {
				r.logger.Error("authorize identity", zap.String("name", name), zap.Error(err))
			}
			if p, ok := r.auth.Pending(); ok && p.Name == name {
				awaiting = true
			}
			r.logger.Info("face recognised",
				zap.String("name", name), zap.Float64("distance", dist), zap.Stringer("decision", dec))
		} else {
			r.logger.Info("unknown face")
		}

		ev := types.DetectionEvent{
			ID:                   uuid.NewString(),
			Kind:                 types.EventIdentity,
			Name:                 name,
			Timestamp:            r.clock.Now(),
			ImagePath:            imagePath,
			AwaitingSecondFactor: awaiting,
		}
		r.history.Record(ctx, ev)
		out = append(out, ev)
	}
	return out, nil
}
