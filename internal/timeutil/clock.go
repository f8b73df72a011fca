// Package timeutil provides a testable abstraction over wall-clock time.
package timeutil

import (
	"sort"
	"sync"
	"time"
)

// Clock is the subset of the time package the engine depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f in its own goroutine after d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call from running. It reports whether the call was
	// still pending.
	Stop() bool
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// MockClock is a manually advanced clock for tests. Scheduled functions run
// synchronously inside Advance, in deadline order.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

// NewMockClock returns a MockClock set to t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &mockTimer{deadline: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d and runs every timer that came due.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now

	var due, keep []*mockTimer
	for _, t := range c.timers {
		if t.isStopped() {
			continue
		}
		if !t.deadline.After(now) {
			due = append(due, t)
		} else {
			keep = append(keep, t)
		}
	}
	c.timers = keep
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		t.fire()
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *MockClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.isStopped() {
			n++
		}
	}
	return n
}

type mockTimer struct {
	mu       sync.Mutex
	deadline time.Time
	fn       func()
	done     bool
}

func (t *mockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.done
	t.done = true
	return wasActive
}

func (t *mockTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *mockTimer) fire() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.mu.Unlock()
	t.fn()
}
