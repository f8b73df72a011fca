// Package camera fetches frames from a still-image endpoint such as the
// snapshot URL exposed by most IP cameras and by libcamera/mjpg-streamer.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/service"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
	"github.com/BrandonDHaskell/Cerberus/server/internal/retry"
)

type Config struct {
	URL string
	// Timeout bounds a single fetch. Defaults to 3s.
	Timeout time.Duration
	// Attempts for transient failures within one Next call. Defaults to 2.
	Attempts int
}

// Snapshot is a FrameSource backed by an HTTP snapshot URL. Safe for
// concurrent use.
type Snapshot struct {
	url      string
	client   *http.Client
	attempts int
	seq      atomic.Uint64
}

func NewSnapshot(cfg Config) (*Snapshot, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("camera: %w: no snapshot URL", service.ErrHardwareUnavailable)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 2
	}
	return &Snapshot{
		url:      cfg.URL,
		client:   &http.Client{Timeout: cfg.Timeout},
		attempts: cfg.Attempts,
	}, nil
}

// Next fetches and decodes one frame. Connection failures report
// ErrHardwareUnavailable; bad responses report ErrTransientCapture.
func (s *Snapshot) Next(ctx context.Context) (types.Frame, error) {
	var f types.Frame
	err := retry.Do(ctx, s.attempts, 100*time.Millisecond,
		func(err error) bool { return errors.Is(err, service.ErrTransientCapture) },
		func(ctx context.Context) error {
			img, err := s.fetch(ctx)
			if err != nil {
				return err
			}
			f = types.Frame{Image: img, Timestamp: time.Now(), Seq: s.seq.Add(1)}
			return nil
		})
	return f, err
}

func (s *Snapshot) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("camera: %w: %v", service.ErrHardwareUnavailable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("camera: %w: %v", service.ErrHardwareUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("camera: %w: status %d", service.ErrTransientCapture, resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("camera: %w: decode: %v", service.ErrTransientCapture, err)
	}
	return img, nil
}
