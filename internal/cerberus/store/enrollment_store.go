package store

import (
	"context"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

// EnrollmentStore persists the fingerprint template → person mapping, rewritten
// wholesale on every mutation.
type EnrollmentStore interface {
	LoadEnrollments(ctx context.Context) ([]types.FingerprintEnrollment, error)
	ReplaceEnrollments(ctx context.Context, enrollments []types.FingerprintEnrollment) error
}
