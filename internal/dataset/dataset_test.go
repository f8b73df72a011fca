package dataset_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/service"
	"github.com/BrandonDHaskell/Cerberus/server/internal/dataset"
	"github.com/BrandonDHaskell/Cerberus/server/internal/timeutil"
)

var stamp = time.Date(2026, 3, 1, 9, 30, 15, 123456000, time.Local)

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func newStore(t *testing.T) (*dataset.Store, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(stamp)
	s, err := dataset.New(t.TempDir(), clock, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, clock
}

func TestSaveImages_NamingAndUsers(t *testing.T) {
	s, _ := newStore(t)
	img := jpegBytes(t)

	saved, err := s.SaveImages("alice", []io.Reader{bytes.NewReader(img), bytes.NewReader(img)})
	if err != nil {
		t.Fatalf("SaveImages: %v", err)
	}
	want := []string{
		"/dataset/alice/alice_20260301_093015123456.jpg",
		"/dataset/alice/alice_20260301_093015123456_1.jpg",
	}
	if diff := cmp.Diff(want, saved); diff != "" {
		t.Errorf("saved paths (-want +got):\n%s", diff)
	}

	users, err := s.Users()
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if diff := cmp.Diff(map[string][]string{"alice": want}, users); diff != "" {
		t.Errorf("users (-want +got):\n%s", diff)
	}
}

func TestSaveImages_RejectsNonImage(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.SaveImages("bob", []io.Reader{bytes.NewReader(jpegBytes(t)), strings.NewReader("not an image")})
	if !errors.Is(err, dataset.ErrNotImage) {
		t.Fatalf("expected ErrNotImage, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(s.Root(), "bob")); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("expected nothing written for a rejected batch")
	}
}

func TestSaveImages_RejectsBadName(t *testing.T) {
	s, _ := newStore(t)
	for _, name := range []string{"", "../etc", "Unknown", "a/b"} {
		if _, err := s.SaveImages(name, []io.Reader{bytes.NewReader(jpegBytes(t))}); !errors.Is(err, service.ErrInvalidName) {
			t.Errorf("name %q: expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestDelete(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.SaveImages("carol", []io.Reader{bytes.NewReader(jpegBytes(t))}); err != nil {
		t.Fatalf("SaveImages: %v", err)
	}

	if err := s.Delete("carol"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("carol"); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}

	users, _ := s.Users()
	if len(users) != 0 {
		t.Errorf("expected no users, got %v", users)
	}
}

func TestImages_DecodesAndSkipsCorrupt(t *testing.T) {
	s, clock := newStore(t)
	img := jpegBytes(t)
	if _, err := s.SaveImages("alice", []io.Reader{bytes.NewReader(img)}); err != nil {
		t.Fatalf("SaveImages alice: %v", err)
	}
	clock.Advance(time.Second)
	if _, err := s.SaveImages("bob", []io.Reader{bytes.NewReader(img)}); err != nil {
		t.Fatalf("SaveImages bob: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.Root(), "bob", "broken.jpg"), []byte("junk"), 0o644); err != nil {
		t.Fatalf("write junk: %v", err)
	}

	frames, err := s.Images(context.Background())
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	var names []string
	for _, f := range frames {
		names = append(names, f.Name)
		if f.Frame.Image == nil {
			t.Errorf("%s: nil image", f.Name)
		}
	}
	if diff := cmp.Diff([]string{"alice", "bob"}, names); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
}

func TestImages_EmptyDataset(t *testing.T) {
	s, _ := newStore(t)
	frames, err := s.Images(context.Background())
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(frames) != 0 {
		t.Errorf("expected no frames, got %d", len(frames))
	}
}
