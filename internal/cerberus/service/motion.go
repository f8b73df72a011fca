package service

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
	"github.com/BrandonDHaskell/Cerberus/server/internal/timeutil"
)

type MotionConfig struct {
	Interval time.Duration
	// PixelDelta is the grey-level change a pixel must exceed to count.
	PixelDelta uint8
	// PixelThreshold is the changed-pixel count that must be exceeded.
	PixelThreshold int
	Cooldown       time.Duration
	// AnalysisWidth downscales frames before diffing. 0 keeps full size.
	AnalysisWidth int
}

func (c MotionConfig) withDefaults() MotionConfig {
	if c.Interval <= 0 {
		c.Interval = 500 * time.Millisecond
	}
	if c.PixelDelta == 0 {
		c.PixelDelta = 30
	}
	if c.PixelThreshold <= 0 {
		c.PixelThreshold = 800
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 10 * time.Second
	}
	return c
}

// MotionDetector diffs consecutive frames. It is driven by a single worker
// and keeps its baseline unsynchronised.
type MotionDetector struct {
	cfg      MotionConfig
	clock    timeutil.Clock
	history  *History
	evidence EvidenceWriter
	enabled  *atomic.Bool
	logger   *zap.Logger

	prev     *image.Gray
	lastEmit time.Time
	emitted  bool
}

func NewMotionDetector(cfg MotionConfig, clock timeutil.Clock, history *History, evidence EvidenceWriter, enabled *atomic.Bool, logger *zap.Logger) *MotionDetector {
	if enabled == nil {
		enabled = new(atomic.Bool)
		enabled.Store(true)
	}
	return &MotionDetector{
		cfg:      cfg.withDefaults(),
		clock:    clock,
		history:  history,
		evidence: evidence,
		enabled:  enabled,
		logger:   logger,
	}
}

// Observe buffers f, diffs it against the previous frame and, when motion is
// enabled and the cooldown has passed, records a motion event. A nil event
// with a nil error means nothing was emitted. An error means an event was
// due but its evidence could not be written; it was dropped.
func (m *MotionDetector) Observe(ctx context.Context, f types.Frame) (*types.DetectionEvent, error) {
	m.history.CaptureFrame(f)

	gray := m.grayscale(f.Image)
	prev := m.prev
	m.prev = gray
	if prev == nil || prev.Bounds() != gray.Bounds() {
		return nil, nil
	}

	changed := changedPixels(prev, gray, m.cfg.PixelDelta)
	if changed <= m.cfg.PixelThreshold || !m.enabled.Load() {
		return nil, nil
	}

	now := m.clock.Now()
	if m.emitted && now.Sub(m.lastEmit) < m.cfg.Cooldown {
		return nil, nil
	}
	// The cooldown restarts even if the evidence below fails.
	m.lastEmit, m.emitted = now, true

	imagePath, clipPath, err := m.history.WriteEvidence(ctx, m.evidence, f, true)
	if err != nil {
		return nil, err
	}

	ev := types.DetectionEvent{
		ID:        uuid.NewString(),
		Kind:      types.EventMotion,
		Name:      types.MotionName,
		Timestamp: now,
		ImagePath: imagePath,
		VideoPath: clipPath,
	}
	m.history.Record(ctx, ev)
	m.logger.Info("motion detected", zap.Int("changed_pixels", changed), zap.String("event_id", ev.ID))
	return &ev, nil
}

func (m *MotionDetector) grayscale(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := b.Sub(b.Min)
	if w := m.cfg.AnalysisWidth; w > 0 && dst.Dx() > w {
		dst = image.Rect(0, 0, w, dst.Dy()*w/dst.Dx())
	}

	gray := image.NewGray(dst)
	if dst.Size() == b.Size() {
		draw.Draw(gray, dst, src, b.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(gray, dst, src, b, draw.Src, nil)
	}
	return gray
}

// changedPixels counts pixels whose grey level moved by more than delta.
func changedPixels(a, b *image.Gray, delta uint8) int {
	r := a.Bounds()
	n := 0
	for y := 0; y < r.Dy(); y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+r.Dx()]
		rb := b.Pix[y*b.Stride : y*b.Stride+r.Dx()]
		for x := range ra {
			d := int(ra[x]) - int(rb[x])
			if d < 0 {
				d = -d
			}
			if d > int(delta) {
				n++
			}
		}
	}
	return n
}
