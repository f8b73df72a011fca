package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/store"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
	"github.com/BrandonDHaskell/Cerberus/server/internal/timeutil"
)

// FingerprintRegistry owns the sensor and the template -> name mapping.
// Scans, enrolments and deletions are serialised on devMu; the mapping is
// persisted before it is published.
type FingerprintRegistry struct {
	device FingerprintDevice
	store  store.EnrollmentStore
	clock  timeutil.Clock
	logger *zap.Logger

	devMu sync.Mutex

	mu          sync.RWMutex
	enrollments map[types.TemplateID]types.FingerprintEnrollment
}

func NewFingerprintRegistry(device FingerprintDevice, s store.EnrollmentStore, clock timeutil.Clock, logger *zap.Logger) *FingerprintRegistry {
	return &FingerprintRegistry{
		device:      device,
		store:       s,
		clock:       clock,
		logger:      logger,
		enrollments: make(map[types.TemplateID]types.FingerprintEnrollment),
	}
}

func (r *FingerprintRegistry) Available() bool { return r.device != nil }

// Load replaces the in-memory mapping with the persisted one.
func (r *FingerprintRegistry) Load(ctx context.Context) error {
	list, err := r.store.LoadEnrollments(ctx)
	if err != nil {
		return fmt.Errorf("load enrollments: %w", err)
	}
	m := make(map[types.TemplateID]types.FingerprintEnrollment, len(list))
	for _, e := range list {
		m[e.TemplateID] = e
	}

	r.mu.Lock()
	r.enrollments = m
	r.mu.Unlock()
	return nil
}

// Scan waits up to timeout for a finger. When another device operation is in
// progress it returns ErrDeviceBusy immediately instead of queueing.
func (r *FingerprintRegistry) Scan(ctx context.Context, timeout time.Duration) (types.TemplateID, error) {
	if r.device == nil {
		return 0, ErrHardwareUnavailable
	}
	if !r.devMu.TryLock() {
		return 0, ErrDeviceBusy
	}
	defer r.devMu.Unlock()
	return r.device.TryScan(ctx, timeout)
}

// Enroll captures a new template and maps it to name.
func (r *FingerprintRegistry) Enroll(ctx context.Context, name string) (types.FingerprintEnrollment, error) {
	name, err := ValidateName(name)
	if err != nil {
		return types.FingerprintEnrollment{}, err
	}
	if r.device == nil {
		return types.FingerprintEnrollment{}, ErrHardwareUnavailable
	}

	r.devMu.Lock()
	defer r.devMu.Unlock()

	id, err := r.device.Enroll(ctx)
	if err != nil {
		return types.FingerprintEnrollment{}, fmt.Errorf("enroll %q: %w", name, err)
	}

	e := types.FingerprintEnrollment{TemplateID: id, Name: name, EnrolledAt: r.clock.Now().UTC()}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.copyLocked()
	next[id] = e
	if err := r.store.ReplaceEnrollments(ctx, sortedEnrollments(next)); err != nil {
		// Keep the sensor consistent with what was persisted.
		if derr := r.device.Delete(ctx, id); derr != nil {
			r.logger.Error("roll back template after failed save",
				zap.Uint16("template_id", uint16(id)), zap.Error(derr))
		}
		return types.FingerprintEnrollment{}, fmt.Errorf("save enrollment: %w", err)
	}
	r.enrollments = next

	r.logger.Info("fingerprint enrolled", zap.String("name", name), zap.Uint16("template_id", uint16(id)))
	return e, nil
}

// Delete removes the template from the sensor and the mapping.
func (r *FingerprintRegistry) Delete(ctx context.Context, id types.TemplateID) error {
	r.mu.RLock()
	_, ok := r.enrollments[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("fingerprint %d: %w", id, ErrNotFound)
	}

	if r.device != nil {
		r.devMu.Lock()
		err := r.device.Delete(ctx, id)
		r.devMu.Unlock()
		if err != nil {
			return fmt.Errorf("delete template %d: %w", id, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.copyLocked()
	delete(next, id)
	if err := r.store.ReplaceEnrollments(ctx, sortedEnrollments(next)); err != nil {
		return fmt.Errorf("save enrollment: %w", err)
	}
	r.enrollments = next

	r.logger.Info("fingerprint deleted", zap.Uint16("template_id", uint16(id)))
	return nil
}

// Resolve returns the person enrolled under id.
func (r *FingerprintRegistry) Resolve(id types.TemplateID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.enrollments[id]
	return e.Name, ok
}

// List returns the enrollments ordered by template id.
func (r *FingerprintRegistry) List() []types.FingerprintEnrollment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedEnrollments(r.enrollments)
}

func (r *FingerprintRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.enrollments)
}

func (r *FingerprintRegistry) copyLocked() map[types.TemplateID]types.FingerprintEnrollment {
	m := make(map[types.TemplateID]types.FingerprintEnrollment, len(r.enrollments)+1)
	for k, v := range r.enrollments {
		m[k] = v
	}
	return m
}

func sortedEnrollments(m map[types.TemplateID]types.FingerprintEnrollment) []types.FingerprintEnrollment {
	out := make([]types.FingerprintEnrollment, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TemplateID < out[j].TemplateID })
	return out
}

// ValidateName trims name and rejects anything that is empty, reserved or
// unsafe as a directory name.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	case len(name) > 64:
		return "", fmt.Errorf("%w: longer than 64 bytes", ErrInvalidName)
	case name == types.UnknownName || name == types.MotionName:
		return "", fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	case name == "." || name == ".." || strings.ContainsAny(name, `/\`+"\x00"):
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}
