package service

import "errors"

var (
	// ErrHardwareUnavailable means a device is missing or failed to
	// initialise. Workers skip the tick and retry on the next one.
	ErrHardwareUnavailable = errors.New("hardware unavailable")

	// ErrTransientCapture is a single failed read from an otherwise working device.
	ErrTransientCapture = errors.New("transient capture error")

	// ErrEvidencePersistence means an image or clip could not be written.
	ErrEvidencePersistence = errors.New("evidence persistence failure")

	ErrVerificationTimeout = errors.New("second-factor verification timed out")
	ErrFingerprintMismatch = errors.New("fingerprint does not match pending identity")

	// ErrNoFinger is returned by a scan that saw nothing on the sensor.
	ErrNoFinger = errors.New("no finger on sensor")

	// ErrUnknownFingerprint is returned by a scan whose print matched no stored template.
	ErrUnknownFingerprint = errors.New("fingerprint not recognised")

	ErrDeviceBusy    = errors.New("device busy")
	ErrEmptyClip     = errors.New("no buffered frames for clip")
	ErrInvalidName   = errors.New("invalid name")
	ErrNotFound      = errors.New("not found")
	ErrInvalidPeriod = errors.New("unlock duration must be positive")
)
