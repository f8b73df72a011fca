package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/store"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

// History is the single exclusion domain shared by the frame ring and the
// detection log. Evidence is built from a frame snapshot taken under the same
// lock that appends to the log.
type History struct {
	mu   sync.Mutex
	ring *FrameRing
	log  *DetectionLog

	archive  store.DetectionStore
	notifier Notifier
	logger   *zap.Logger

	// archiveTimeout bounds each archive write so a slow disk never holds
	// up a detection worker for long.
	archiveTimeout time.Duration
}

func NewHistory(logCapacity, ringCapacity int, archive store.DetectionStore, notifier Notifier, logger *zap.Logger) *History {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{
		ring:           NewFrameRing(ringCapacity),
		log:            NewDetectionLog(logCapacity),
		archive:        archive,
		notifier:       notifier,
		logger:         logger,
		archiveTimeout: 5 * time.Second,
	}
}

func (h *History) CaptureFrame(f types.Frame) {
	h.mu.Lock()
	h.ring.Push(f)
	h.mu.Unlock()
}

// Frames returns the buffered frames, oldest first.
func (h *History) Frames() []types.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ring.Frames()
}

// WriteEvidence persists trigger as an image and, when withClip is set, the
// buffered frames as a clip. Any failure is reported as ErrEvidencePersistence
// and no path is returned for the failed artifact.
func (h *History) WriteEvidence(ctx context.Context, w EvidenceWriter, trigger types.Frame, withClip bool) (imagePath, clipPath string, err error) {
	if w == nil {
		return "", "", fmt.Errorf("%w: no evidence writer", ErrEvidencePersistence)
	}

	var frames []types.Frame
	if withClip {
		frames = h.Frames()
		if len(frames) == 0 {
			return "", "", fmt.Errorf("%w: %w", ErrEvidencePersistence, ErrEmptyClip)
		}
	}

	imagePath, err = w.WriteImage(ctx, trigger)
	if err != nil {
		return "", "", fmt.Errorf("%w: image: %w", ErrEvidencePersistence, err)
	}
	if !withClip {
		return imagePath, "", nil
	}

	clipPath, err = w.WriteClip(ctx, frames)
	if err != nil {
		return imagePath, "", fmt.Errorf("%w: clip: %w", ErrEvidencePersistence, err)
	}
	return imagePath, clipPath, nil
}

// Record appends ev to the log, archives it and hands it to the notifier.
// Archive failures are logged; the in-memory log stays authoritative.
func (h *History) Record(ctx context.Context, ev types.DetectionEvent) {
	h.mu.Lock()
	h.log.Append(ev)
	h.mu.Unlock()

	if h.archive != nil {
		actx, cancel := context.WithTimeout(ctx, h.archiveTimeout)
		if err := h.archive.RecordDetection(actx, ev); err != nil {
			h.logger.Warn("archive detection failed", zap.String("event_id", ev.ID), zap.Error(err))
		}
		cancel()
	}

	h.notifier.Notify(ev)
}

// Seed restores events from the archive at startup. events must be newest
// first; nothing is re-archived or re-notified.
func (h *History) Seed(events []types.DetectionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(events) - 1; i >= 0; i-- {
		h.log.Append(events[i])
	}
}

// Detections returns a newest-first snapshot of the log.
func (h *History) Detections() []types.DetectionEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.log.Read()
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.log.Len()
}
