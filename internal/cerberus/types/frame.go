package types

import (
	"image"
	"time"
)

// Frame is a single decoded camera capture. Image must not be modified once the
// frame has been handed to a consumer; detectors and the ring buffer share it.
type Frame struct {
	Image     image.Image
	Timestamp time.Time
	Seq       uint64
}

// BoundingBox locates a face inside a frame, in pixel coordinates.
type BoundingBox struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Embedding is the fixed-length face descriptor produced by the matcher.
type Embedding []float64

// LabeledFrame is a training image tagged with the person it belongs to.
type LabeledFrame struct {
	Name  string
	Frame Frame
}
