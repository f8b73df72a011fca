package service

import "github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"

const DefaultRingCapacity = 100

// FrameRing keeps the most recent frames in arrival order. Not safe for
// concurrent use on its own; History guards it.
type FrameRing struct {
	buf   []types.Frame
	start int
	n     int
}

func NewFrameRing(capacity int) *FrameRing {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &FrameRing{buf: make([]types.Frame, capacity)}
}

// Push appends f, silently dropping the oldest frame when full.
func (r *FrameRing) Push(f types.Frame) {
	c := len(r.buf)
	if r.n < c {
		r.buf[(r.start+r.n)%c] = f
		r.n++
		return
	}
	r.buf[r.start] = f
	r.start = (r.start + 1) % c
}

// Frames returns a copy of the buffered frames, oldest first.
func (r *FrameRing) Frames() []types.Frame {
	out := make([]types.Frame, r.n)
	c := len(r.buf)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%c]
	}
	return out
}

func (r *FrameRing) Len() int { return r.n }
func (r *FrameRing) Cap() int { return len(r.buf) }
