package camera_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/service"
	"github.com/BrandonDHaskell/Cerberus/server/internal/hardware/camera"
)

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 6)), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestSnapshot_DecodesFrame(t *testing.T) {
	body := jpegBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cam, err := camera.NewSnapshot(camera.Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}

	f1, err := cam.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if b := f1.Image.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
		t.Errorf("unexpected bounds %v", b)
	}
	f2, _ := cam.Next(context.Background())
	if f2.Seq <= f1.Seq {
		t.Errorf("expected increasing seq, got %d then %d", f1.Seq, f2.Seq)
	}
}

func TestSnapshot_RetriesTransientFailure(t *testing.T) {
	body := jpegBytes(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cam, _ := camera.NewSnapshot(camera.Config{URL: srv.URL, Attempts: 2})
	if _, err := cam.Next(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestSnapshot_GarbageIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not an image"))
	}))
	defer srv.Close()

	cam, _ := camera.NewSnapshot(camera.Config{URL: srv.URL, Attempts: 1})
	_, err := cam.Next(context.Background())
	if !errors.Is(err, service.ErrTransientCapture) {
		t.Fatalf("expected ErrTransientCapture, got %v", err)
	}
}

func TestSnapshot_UnreachableIsHardwareUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cam, _ := camera.NewSnapshot(camera.Config{URL: url, Attempts: 3})
	_, err := cam.Next(context.Background())
	if !errors.Is(err, service.ErrHardwareUnavailable) {
		t.Fatalf("expected ErrHardwareUnavailable, got %v", err)
	}
}

func TestNewSnapshot_RequiresURL(t *testing.T) {
	if _, err := camera.NewSnapshot(camera.Config{}); !errors.Is(err, service.ErrHardwareUnavailable) {
		t.Fatalf("expected ErrHardwareUnavailable, got %v", err)
	}
}
