package service_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/service"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
	"github.com/BrandonDHaskell/Cerberus/server/internal/timeutil"
)

var epoch = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func newClock() *timeutil.MockClock { return timeutil.NewMockClock(epoch) }

// grayFrame returns a 100x100 frame whose first lit pixels are white and the
// rest black.
func grayFrame(seq uint64, lit int) types.Frame {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for i := 0; i < lit && i < len(img.Pix); i++ {
		img.Pix[i] = 255
	}
	return types.Frame{Image: img, Seq: seq, Timestamp: epoch}
}

// ── Lock pin ──

type fakePin struct {
	mu        sync.Mutex
	writes    []bool
	releases  int
	failLocks int // number of SetLocked(true) calls that fail
	failAll   error
}

func (p *fakePin) SetLocked(locked bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll != nil {
		return p.failAll
	}
	if locked && p.failLocks > 0 {
		p.failLocks--
		return errors.New("gpio write failed")
	}
	p.writes = append(p.writes, locked)
	return nil
}

func (p *fakePin) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases++
	return nil
}

func (p *fakePin) Writes() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.writes...)
}

// ── Door ──

type fakeDoor struct {
	mu      sync.Mutex
	unlocks []time.Duration
}

func (d *fakeDoor) Unlock(dur time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unlocks = append(d.unlocks, dur)
	return nil
}

func (d *fakeDoor) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.unlocks)
}

// ── Evidence ──

type fakeEvidence struct {
	mu       sync.Mutex
	images   int
	clips    [][]types.Frame
	imageErr error
	clipErr  error
}

func (e *fakeEvidence) WriteImage(_ context.Context, f types.Frame) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.imageErr != nil {
		return "", e.imageErr
	}
	e.images++
	return fmt.Sprintf("/static/images/%d.jpg", f.Seq), nil
}

func (e *fakeEvidence) WriteClip(_ context.Context, frames []types.Frame) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clipErr != nil {
		return "", e.clipErr
	}
	e.clips = append(e.clips, frames)
	return fmt.Sprintf("/static/videos/%d.gif", len(e.clips)), nil
}

// ── Matcher ──

// fakeMatcher reports one face per frame and embeds it as the vector
// registered for the frame's Seq.
type fakeMatcher struct {
	mu      sync.Mutex
	vectors map[uint64][]types.Embedding
	err     error
}

func (m *fakeMatcher) Locate(_ context.Context, f types.Frame) ([]types.BoundingBox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	boxes := make([]types.BoundingBox, len(m.vectors[f.Seq]))
	for i := range boxes {
		boxes[i] = types.BoundingBox{Top: i, Right: i + 10, Bottom: i + 10, Left: i}
	}
	return boxes, nil
}

func (m *fakeMatcher) Embed(_ context.Context, f types.Frame, box types.BoundingBox) (types.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vectors[f.Seq][box.Top], nil
}

// ── Fingerprint device ──

type fakeDevice struct {
	mu       sync.Mutex
	scans    []scanResult
	nextID   types.TemplateID
	deleted  []types.TemplateID
	enrolErr error
}

type scanResult struct {
	id  types.TemplateID
	err error
}

func (d *fakeDevice) TryScan(context.Context, time.Duration) (types.TemplateID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.scans) == 0 {
		return 0, service.ErrNoFinger
	}
	r := d.scans[0]
	d.scans = d.scans[1:]
	return r.id, r.err
}

func (d *fakeDevice) Enroll(context.Context) (types.TemplateID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enrolErr != nil {
		return 0, d.enrolErr
	}
	id := d.nextID
	d.nextID++
	return id, nil
}

func (d *fakeDevice) Delete(_ context.Context, id types.TemplateID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = append(d.deleted, id)
	return nil
}

func (d *fakeDevice) queue(results ...scanResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scans = append(d.scans, results...)
}

// ── Dataset ──

type fakeDataset struct {
	images []types.LabeledFrame
}

func (d *fakeDataset) Images(context.Context) ([]types.LabeledFrame, error) {
	return d.images, nil
}

// ── Notifier ──

type recordingNotifier struct {
	mu     sync.Mutex
	events []types.DetectionEvent
}

func (n *recordingNotifier) Notify(ev types.DetectionEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) Events() []types.DetectionEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]types.DetectionEvent(nil), n.events...)
}

// ── Failing stores ──

type failingEnrollmentStore struct{}

func (failingEnrollmentStore) LoadEnrollments(context.Context) ([]types.FingerprintEnrollment, error) {
	return nil, nil
}

func (failingEnrollmentStore) ReplaceEnrollments(context.Context, []types.FingerprintEnrollment) error {
	return errors.New("disk full")
}

type failingIdentityStore struct{}

func (failingIdentityStore) LoadIdentities(context.Context) (map[string][]types.Embedding, error) {
	return nil, nil
}

func (failingIdentityStore) ReplaceIdentities(context.Context, map[string][]types.Embedding) error {
	return errors.New("disk full")
}

