package types

import "time"

type LockPosition string

const (
	Locked   LockPosition = "locked"
	Unlocked LockPosition = "unlocked"
)

// LockState describes the actuator. RelockAt is set only while an unlock
// window is open.
type LockState struct {
	Position LockPosition `json:"position"`
	RelockAt *time.Time   `json:"relock_at,omitempty"`
}

// PendingVerification is a face match waiting for fingerprint confirmation.
type PendingVerification struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Deadline  time.Time `json:"deadline"`
}

// TemplateID is the slot number the fingerprint sensor assigned to a template.
type TemplateID uint16

type FingerprintEnrollment struct {
	TemplateID TemplateID `json:"id"`
	Name       string     `json:"name"`
	EnrolledAt time.Time  `json:"enrolled_at"`
}
