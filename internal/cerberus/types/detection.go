package types

import "time"

type EventKind string

const (
	EventMotion   EventKind = "motion"
	EventIdentity EventKind = "identity"
)

const (
	// UnknownName is reported for faces that match no known identity.
	UnknownName = "Unknown"
	// MotionName is the display name carried by motion events.
	MotionName = "Motion Detected"
)

// DetectionEvent is one entry of the rolling detection history. Values are
// never mutated after creation.
type DetectionEvent struct {
	ID                   string    `json:"id"`
	Kind                 EventKind `json:"kind"`
	Name                 string    `json:"name"`
	Timestamp            time.Time `json:"timestamp"`
	ImagePath            string    `json:"image,omitempty"`
	VideoPath            string    `json:"video,omitempty"`
	AwaitingSecondFactor bool      `json:"awaiting_second_factor"`
}
