// Package evidence writes detection artifacts to disk: a JPEG still for each
// event and an animated GIF built from the frame ring for motion events.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

const (
	imagesDir = "images"
	videosDir = "videos"
)

type Config struct {
	// Root is the directory served under PublicPrefix.
	Root string
	// PublicPrefix is prepended to returned paths. Defaults to "/static".
	PublicPrefix string
	// FPS is the clip playback rate. Defaults to 10.
	FPS int
	// ClipWidth caps the clip frame width; frames are scaled down to fit.
	// Defaults to 320.
	ClipWidth   int
	JPEGQuality int
}

// Writer implements service.EvidenceWriter. Files are written to a temporary
// name, synced and renamed, so a returned path always names a complete file.
type Writer struct {
	root    string
	prefix  string
	delay   int
	width   int
	quality int
	logger  *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Writer, error) {
	if cfg.Root == "" {
		return nil, errors.New("evidence: root directory required")
	}
	if cfg.PublicPrefix == "" {
		cfg.PublicPrefix = "/static"
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 10
	}
	if cfg.ClipWidth <= 0 {
		cfg.ClipWidth = 320
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 85
	}
	for _, d := range []string{imagesDir, videosDir} {
		if err := os.MkdirAll(filepath.Join(cfg.Root, d), 0o755); err != nil {
			return nil, fmt.Errorf("evidence: create %s dir: %w", d, err)
		}
	}

	delay := 100 / cfg.FPS
	if delay < 1 {
		delay = 1
	}
	return &Writer{
		root:    cfg.Root,
		prefix:  cfg.PublicPrefix,
		delay:   delay,
		width:   cfg.ClipWidth,
		quality: cfg.JPEGQuality,
		logger:  logger,
	}, nil
}

func (w *Writer) Root() string { return w.root }

func (w *Writer) WriteImage(ctx context.Context, f types.Frame) (string, error) {
	if f.Image == nil {
		return "", errors.New("evidence: frame has no image")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := uuid.NewString() + ".jpg"
	err := w.writeFile(imagesDir, name, func(out io.Writer) error {
		return jpeg.Encode(out, f.Image, &jpeg.Options{Quality: w.quality})
	})
	if err != nil {
		return "", err
	}
	return path.Join(w.prefix, imagesDir, name), nil
}

// WriteClip encodes frames oldest first at the configured rate.
func (w *Writer) WriteClip(ctx context.Context, frames []types.Frame) (string, error) {
	if len(frames) == 0 {
		return "", errors.New("evidence: no frames")
	}

	bounds := w.clipBounds(frames[0].Image.Bounds())
	anim := &gif.GIF{
		Image: make([]*image.Paletted, 0, len(frames)),
		Delay: make([]int, 0, len(frames)),
		Config: image.Config{
			ColorModel: color.Palette(palette.Plan9),
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
		},
	}
	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if f.Image == nil {
			continue
		}
		anim.Image = append(anim.Image, w.quantize(f.Image, bounds))
		anim.Delay = append(anim.Delay, w.delay)
	}
	if len(anim.Image) == 0 {
		return "", errors.New("evidence: no decodable frames")
	}

	name := uuid.NewString() + ".gif"
	if err := w.writeFile(videosDir, name, func(out io.Writer) error {
		return gif.EncodeAll(out, anim)
	}); err != nil {
		return "", err
	}
	w.logger.Debug("clip written", zap.String("file", name), zap.Int("frames", len(anim.Image)))
	return path.Join(w.prefix, videosDir, name), nil
}

func (w *Writer) clipBounds(src image.Rectangle) image.Rectangle {
	dx, dy := src.Dx(), src.Dy()
	if dx > w.width {
		dy = dy * w.width / dx
		dx = w.width
	}
	if dy < 1 {
		dy = 1
	}
	return image.Rect(0, 0, dx, dy)
}

func (w *Writer) quantize(src image.Image, bounds image.Rectangle) *image.Paletted {
	scaled := image.NewRGBA(bounds)
	draw.ApproxBiLinear.Scale(scaled, bounds, src, src.Bounds(), draw.Src, nil)

	dst := image.NewPaletted(bounds, palette.Plan9)
	draw.FloydSteinberg.Draw(dst, bounds, scaled, image.Point{})
	return dst
}

func (w *Writer) writeFile(dir, name string, encode func(io.Writer) error) error {
	target := filepath.Join(w.root, dir, name)
	tmp, err := os.CreateTemp(filepath.Join(w.root, dir), ".tmp-*")
	if err != nil {
		return fmt.Errorf("evidence: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := encode(tmp); err != nil {
		cleanup()
		return fmt.Errorf("evidence: encode %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("evidence: sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("evidence: close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("evidence: rename %s: %w", name, err)
	}
	return nil
}
