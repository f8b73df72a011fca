// Package gpio drives the lock relay through a single GPIO output.
package gpio

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/service"
)

// LockPin implements service.LockPin on a periph GPIO line.
type LockPin struct {
	pin gpio.PinIO
	// lockedHigh selects the level that means locked. The stock relay board
	// locks on high.
	lockedHigh bool
}

// Open initialises the host drivers and looks up name (e.g. "GPIO18").
func Open(name string, lockedHigh bool) (*LockPin, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio host init: %w: %v", service.ErrHardwareUnavailable, err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio %s: %w: no such pin", name, service.ErrHardwareUnavailable)
	}
	return New(p, lockedHigh), nil
}

// New wraps an already resolved pin.
func New(p gpio.PinIO, lockedHigh bool) *LockPin {
	return &LockPin{pin: p, lockedHigh: lockedHigh}
}

func (l *LockPin) SetLocked(locked bool) error {
	level := gpio.Level(locked == l.lockedHigh)
	if err := l.pin.Out(level); err != nil {
		return fmt.Errorf("gpio %s out %s: %w", l.pin.Name(), level, err)
	}
	return nil
}

// Release switches the line to a floating input. The relay holds its state
// on boards with a pull resistor on the control line.
func (l *LockPin) Release() error {
	if err := l.pin.In(gpio.Float, gpio.NoEdge); err != nil {
		return fmt.Errorf("gpio %s release: %w", l.pin.Name(), err)
	}
	return nil
}
