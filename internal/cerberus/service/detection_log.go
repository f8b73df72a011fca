package service

import "github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"

const DefaultLogCapacity = 50

// DetectionLog is the bounded newest-first event list. Not safe for
// concurrent use on its own; History guards it.
type DetectionLog struct {
	events   []types.DetectionEvent
	capacity int
}

func NewDetectionLog(capacity int) *DetectionLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &DetectionLog{events: make([]types.DetectionEvent, 0, capacity), capacity: capacity}
}

// Append puts ev at the front and evicts whatever falls past capacity.
func (l *DetectionLog) Append(ev types.DetectionEvent) {
	if len(l.events) < l.capacity {
		l.events = append(l.events, types.DetectionEvent{})
	}
	copy(l.events[1:], l.events[:len(l.events)-1])
	l.events[0] = ev
}

// Read returns a snapshot the caller may keep and iterate freely.
func (l *DetectionLog) Read() []types.DetectionEvent {
	out := make([]types.DetectionEvent, len(l.events))
	copy(out, l.events)
	return out
}

func (l *DetectionLog) Len() int { return len(l.events) }
