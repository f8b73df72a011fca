package service_test

import (
	"testing"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/service"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

func TestFrameRing_KeepsLastFramesInOrder(t *testing.T) {
	r := service.NewFrameRing(100)
	for i := 0; i < 150; i++ {
		r.Push(types.Frame{Seq: uint64(i)})
	}

	frames := r.Frames()
	if len(frames) != 100 {
		t.Fatalf("expected 100 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if want := uint64(50 + i); f.Seq != want {
			t.Fatalf("frame %d: expected seq %d, got %d", i, want, f.Seq)
		}
	}
}

func TestFrameRing_UnderCapacity(t *testing.T) {
	r := service.NewFrameRing(4)
	r.Push(types.Frame{Seq: 1})
	r.Push(types.Frame{Seq: 2})

	frames := r.Frames()
	if len(frames) != 2 || frames[0].Seq != 1 || frames[1].Seq != 2 {
		t.Errorf("unexpected frames: %+v", frames)
	}
	if r.Cap() != 4 {
		t.Errorf("expected cap 4, got %d", r.Cap())
	}
}

func TestFrameRing_FramesIsCopy(t *testing.T) {
	r := service.NewFrameRing(2)
	r.Push(types.Frame{Seq: 1})
	snap := r.Frames()
	r.Push(types.Frame{Seq: 2})
	r.Push(types.Frame{Seq: 3})

	if snap[0].Seq != 1 {
		t.Errorf("snapshot changed under later pushes: %+v", snap)
	}
}
