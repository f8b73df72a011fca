package memory

import (
	"context"
	"sync"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

type EnrollmentStore struct {
	mu          sync.RWMutex
	enrollments []types.FingerprintEnrollment
	writes      int
}

func NewEnrollmentStore(initial ...types.FingerprintEnrollment) *EnrollmentStore {
	return &EnrollmentStore{enrollments: append([]types.FingerprintEnrollment(nil), initial...)}
}

func (s *EnrollmentStore) LoadEnrollments(_ context.Context) ([]types.FingerprintEnrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.FingerprintEnrollment(nil), s.enrollments...), nil
}

func (s *EnrollmentStore) ReplaceEnrollments(_ context.Context, enrollments []types.FingerprintEnrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments = append([]types.FingerprintEnrollment(nil), enrollments...)
	s.writes++
	return nil
}

// Writes reports how many times the mapping was rewritten. Test-only helper.
func (s *EnrollmentStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
