package types

// MessageResponse is the generic envelope used by the control endpoints.
type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type DetectResponse struct {
	Status        string           `json:"status"`
	DetectedFaces []DetectionEvent `json:"detected_faces"`
}

type MotionStatusResponse struct {
	Status        string `json:"status"`
	MotionEnabled bool   `json:"motion_enabled"`
}

type UnlockRequest struct {
	Seconds int `json:"seconds,omitempty"`
}

type RegisterTokenRequest struct {
	Token string `json:"token"`
}

type EnrollFingerprintRequest struct {
	Name string `json:"name"`
}

type FingerprintEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type FingerprintsResponse struct {
	Status       string             `json:"status"`
	Fingerprints []FingerprintEntry `json:"fingerprints"`
}

type EnrollFingerprintResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
	Name   string `json:"name"`
}

// StatusResponse is the observable engine state.
type StatusResponse struct {
	Status          string               `json:"status"`
	Lock            LockState            `json:"lock"`
	LockAvailable   bool                 `json:"lock_available"`
	Pending         *PendingVerification `json:"pending,omitempty"`
	SecondFactor    bool                 `json:"second_factor"`
	MotionEnabled   bool                 `json:"motion_enabled"`
	Detections      int                  `json:"detections"`
	KnownIdentities int                  `json:"known_identities"`
	Enrollments     int                  `json:"enrollments"`
	ServerTime      string               `json:"server_time"`
}
