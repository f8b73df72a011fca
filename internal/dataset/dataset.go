// Package dataset stores the face training images, one directory per person:
//
//	<root>/<name>/<name>_<YYYYmmdd_HHMMSSffffff>.jpg
package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/service"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
	"github.com/BrandonDHaskell/Cerberus/server/internal/timeutil"
)

// MaxImageBytes bounds a single upload.
const MaxImageBytes = 10 << 20

var (
	// ErrNotImage is returned for uploads that do not decode as JPEG or PNG.
	ErrNotImage = errors.New("dataset: not an image")
	ErrTooLarge = errors.New("dataset: upload too large")
)

// Store implements service.DatasetSource over a directory tree. Writes are
// serialised so concurrent uploads for one name never collide on a file name.
type Store struct {
	root   string
	prefix string
	clock  timeutil.Clock
	logger *zap.Logger

	mu sync.Mutex
}

func New(root string, clock timeutil.Clock, logger *zap.Logger) (*Store, error) {
	if root == "" {
		return nil, errors.New("dataset: root directory required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("dataset: create root: %w", err)
	}
	return &Store{root: root, prefix: "/dataset", clock: clock, logger: logger}, nil
}

func (s *Store) Root() string { return s.root }

// SaveImages validates and stores each upload for name. Nothing is written
// unless every upload decodes.
func (s *Store) SaveImages(name string, uploads []io.Reader) ([]string, error) {
	name, err := service.ValidateName(name)
	if err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, fmt.Errorf("dataset: %w: no images", service.ErrInvalidName)
	}

	blobs := make([][]byte, 0, len(uploads))
	for i, r := range uploads {
		b, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
		if err != nil {
			return nil, fmt.Errorf("dataset: read upload %d: %w", i, err)
		}
		if len(b) > MaxImageBytes {
			return nil, fmt.Errorf("%w: upload %d exceeds %d bytes", ErrTooLarge, i, MaxImageBytes)
		}
		if _, _, err := image.DecodeConfig(bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("%w: upload %d", ErrNotImage, i)
		}
		blobs = append(blobs, b)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("dataset: create %s: %w", name, err)
	}

	saved := make([]string, 0, len(blobs))
	for _, b := range blobs {
		file, err := s.freeName(dir, name)
		if err != nil {
			return saved, err
		}
		if err := os.WriteFile(filepath.Join(dir, file), b, 0o644); err != nil {
			return saved, fmt.Errorf("dataset: write %s: %w", file, err)
		}
		saved = append(saved, path.Join(s.prefix, name, file))
	}

	s.logger.Info("dataset images saved", zap.String("name", name), zap.Int("count", len(saved)))
	return saved, nil
}

func (s *Store) freeName(dir, name string) (string, error) {
	stamp := strings.Replace(s.clock.Now().Format("20060102_150405.000000"), ".", "", 1)
	for i := 0; i < 1000; i++ {
		file := fmt.Sprintf("%s_%s.jpg", name, stamp)
		if i > 0 {
			file = fmt.Sprintf("%s_%s_%d.jpg", name, stamp, i)
		}
		_, err := os.Stat(filepath.Join(dir, file))
		if errors.Is(err, os.ErrNotExist) {
			return file, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("dataset: no free file name for %s", name)
}

// Users maps each person to the public paths of their images.
func (s *Store) Users() (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	people, err := s.people()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(people))
	for _, name := range people {
		files, err := s.files(name)
		if err != nil {
			return nil, err
		}
		paths := make([]string, 0, len(files))
		for _, f := range files {
			paths = append(paths, path.Join(s.prefix, name, f))
		}
		out[name] = paths
	}
	return out, nil
}

// Delete removes name and all of its images.
func (s *Store) Delete(name string) error {
	name, err := service.ValidateName(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, name)
	fi, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) || (err == nil && !fi.IsDir()) {
		return fmt.Errorf("user %q: %w", name, service.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("dataset: delete %s: %w", name, err)
	}
	s.logger.Info("dataset user deleted", zap.String("name", name))
	return nil
}

// Images decodes every stored image. Files that fail to decode are skipped
// with a warning.
func (s *Store) Images(ctx context.Context) ([]types.LabeledFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	people, err := s.people()
	if err != nil {
		return nil, err
	}

	var out []types.LabeledFrame
	for _, name := range people {
		files, err := s.files(name)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			img, err := decodeFile(filepath.Join(s.root, name, f))
			if err != nil {
				s.logger.Warn("skip dataset image", zap.String("name", name), zap.String("file", f), zap.Error(err))
				continue
			}
			out = append(out, types.LabeledFrame{
				Name:  name,
				Frame: types.Frame{Image: img, Seq: uint64(len(out) + 1)},
			})
		}
	}
	return out, nil
}

func (s *Store) people() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("dataset: list: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, err := service.ValidateName(e.Name()); err != nil {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) files(name string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, name))
	if err != nil {
		return nil, fmt.Errorf("dataset: list %s: %w", name, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func decodeFile(p string) (image.Image, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
