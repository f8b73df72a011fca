// Package fingerprint drives R30x/ZFM-compatible optical fingerprint sensors
// over a UART.
package fingerprint

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/service"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
	"github.com/BrandonDHaskell/Cerberus/server/internal/retry"
)

// Port is the byte stream to the sensor. serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
}

// PortOptions are the UART line settings.
type PortOptions struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
}

// SerialMode fills defaults (57600 8N1) and converts to a serial.Mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = 57600
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	mode := &serial.Mode{BaudRate: o.BaudRate, DataBits: o.DataBits}

	switch o.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %d", o.StopBits)
	}

	switch strings.ToUpper(strings.TrimSpace(o.Parity)) {
	case "", "N", "NONE":
		mode.Parity = serial.NoParity
	case "E", "EVEN":
		mode.Parity = serial.EvenParity
	case "O", "ODD":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", o.Parity)
	}
	return mode, nil
}

type Config struct {
	Path     string
	Port     PortOptions
	Address  uint32
	Password uint32

	// ReadTimeout bounds each reply from the sensor.
	ReadTimeout time.Duration
	// PollInterval is the gap between image captures while waiting for a finger.
	PollInterval time.Duration
	// EnrollTimeout bounds each finger placement during enrolment.
	EnrollTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Address == 0 {
		c.Address = DefaultAddress
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.EnrollTimeout <= 0 {
		c.EnrollTimeout = 15 * time.Second
	}
	return c
}

// Sensor implements service.FingerprintDevice.
type Sensor struct {
	cfg Config

	mu       sync.Mutex
	port     Port
	capacity int
}

// Open opens the UART, verifies the sensor password and reads its library
// size. Any failure is reported as ErrHardwareUnavailable.
func Open(cfg Config) (*Sensor, error) {
	cfg = cfg.withDefaults()

	mode, err := cfg.Port.SerialMode()
	if err != nil {
		return nil, err
	}
	p, err := serial.Open(cfg.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %v", cfg.Path, service.ErrHardwareUnavailable, err)
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set read timeout: %w: %v", service.ErrHardwareUnavailable, err)
	}

	s, err := New(p, cfg)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already open port and performs the handshake.
func New(p Port, cfg Config) (*Sensor, error) {
	s := &Sensor{cfg: cfg.withDefaults(), port: p}

	pwd := binary.BigEndian.AppendUint32(nil, s.cfg.Password)
	if _, err := s.expectOK(cmdVerifyPassword, pwd...); err != nil {
		return nil, fmt.Errorf("handshake: %w: %v", service.ErrHardwareUnavailable, err)
	}

	params, err := s.expectOK(cmdReadSysPara)
	if err != nil || len(params) < 6 {
		return nil, fmt.Errorf("read parameters: %w: %v", service.ErrHardwareUnavailable, err)
	}
	s.capacity = int(binary.BigEndian.Uint16(params[4:6]))
	return s, nil
}

func (s *Sensor) Capacity() int { return s.capacity }

func (s *Sensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}

// TryScan waits up to timeout for a finger and searches the library for it.
func (s *Sensor) TryScan(ctx context.Context, timeout time.Duration) (types.TemplateID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.waitFinger(ctx, timeout); err != nil {
		return 0, err
	}
	if _, err := s.expectOK(cmdImage2Tz, 1); err != nil {
		return 0, s.deviceErr(err)
	}

	args := []byte{1, 0, 0}
	args = binary.BigEndian.AppendUint16(args, uint16(s.capacity))
	code, data, err := s.command(cmdSearch, args...)
	if err != nil {
		return 0, s.deviceErr(err)
	}
	switch code {
	case codeOK:
		if len(data) < 2 {
			return 0, fmt.Errorf("%w: short search reply", ErrProtocol)
		}
		return types.TemplateID(binary.BigEndian.Uint16(data[0:2])), nil
	case codeNotFound:
		return 0, service.ErrUnknownFingerprint
	default:
		return 0, &confirmError{cmd: cmdSearch, code: code}
	}
}

// Enroll captures the same finger twice, merges the scans and stores the
// template in the first free slot.
func (s *Sensor) Enroll(ctx context.Context) (types.TemplateID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, err := s.freeSlot()
	if err != nil {
		return 0, err
	}

	for buf := byte(1); buf <= 2; buf++ {
		if err := s.waitFinger(ctx, s.cfg.EnrollTimeout); err != nil {
			return 0, fmt.Errorf("scan %d: %w", buf, err)
		}
		if _, err := s.expectOK(cmdImage2Tz, buf); err != nil {
			return 0, fmt.Errorf("scan %d: %w", buf, s.deviceErr(err))
		}
		if buf == 1 {
			if err := s.waitLifted(ctx, s.cfg.EnrollTimeout); err != nil {
				return 0, err
			}
		}
	}

	code, _, err := s.command(cmdRegModel)
	if err != nil {
		return 0, s.deviceErr(err)
	}
	switch code {
	case codeOK:
	case codeEnrollMismatch:
		return 0, ErrEnrollMismatch
	default:
		return 0, &confirmError{cmd: cmdRegModel, code: code}
	}

	args := binary.BigEndian.AppendUint16([]byte{1}, uint16(slot))
	if _, err := s.expectOK(cmdStore, args...); err != nil {
		return 0, s.deviceErr(err)
	}
	return types.TemplateID(slot), nil
}

func (s *Sensor) Delete(_ context.Context, id types.TemplateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	args := binary.BigEndian.AppendUint16(nil, uint16(id))
	args = binary.BigEndian.AppendUint16(args, 1)
	if _, err := s.expectOK(cmdDeleteChar, args...); err != nil {
		return s.deviceErr(err)
	}
	return nil
}

// freeSlot reads the index table pages until it finds an unused template slot.
func (s *Sensor) freeSlot() (int, error) {
	for page := 0; page*256 < s.capacity; page++ {
		table, err := s.expectOK(cmdReadIndexTable, byte(page))
		if err != nil {
			return 0, s.deviceErr(err)
		}
		for i, b := range table {
			if b == 0xFF {
				continue
			}
			// Bit n of byte i marks slot page*256 + i*8 + n.
			slot := page*256 + i*8 + bits.TrailingZeros8(^b)
			if slot < s.capacity {
				return slot, nil
			}
		}
	}
	return 0, ErrLibraryFull
}

func (s *Sensor) waitFinger(ctx context.Context, timeout time.Duration) error {
	err := retry.Poll(ctx, timeout, s.cfg.PollInterval, func(context.Context) (bool, error) {
		code, _, err := s.command(cmdGenImage)
		if err != nil {
			return false, s.deviceErr(err)
		}
		switch code {
		case codeOK:
			return true, nil
		case codeNoFinger:
			return false, nil
		default:
			// Smudged or partial image; try again.
			return false, nil
		}
	})
	if errors.Is(err, retry.ErrTimeout) {
		return service.ErrNoFinger
	}
	return err
}

func (s *Sensor) waitLifted(ctx context.Context, timeout time.Duration) error {
	err := retry.Poll(ctx, timeout, s.cfg.PollInterval, func(context.Context) (bool, error) {
		code, _, err := s.command(cmdGenImage)
		if err != nil {
			return false, s.deviceErr(err)
		}
		return code == codeNoFinger, nil
	})
	if errors.Is(err, retry.ErrTimeout) {
		return fmt.Errorf("finger not lifted: %w", err)
	}
	return err
}

// expectOK sends cmd and returns the reply data after the confirmation code,
// or a *confirmError for any code other than OK.
func (s *Sensor) expectOK(cmd byte, args ...byte) ([]byte, error) {
	code, data, err := s.command(cmd, args...)
	if err != nil {
		return nil, err
	}
	if code != codeOK {
		return nil, &confirmError{cmd: cmd, code: code}
	}
	return data, nil
}

func (s *Sensor) command(cmd byte, args ...byte) (byte, []byte, error) {
	payload := append([]byte{cmd}, args...)
	if _, err := s.port.Write(encodePacket(s.cfg.Address, pidCommand, payload)); err != nil {
		return 0, nil, fmt.Errorf("write: %w", err)
	}

	p, err := readPacket(s.port, s.cfg.Address)
	if err != nil {
		return 0, nil, err
	}
	if p.pid != pidAck || len(p.payload) == 0 {
		return 0, nil, fmt.Errorf("%w: unexpected packet id 0x%02X", ErrProtocol, p.pid)
	}
	return p.payload[0], p.payload[1:], nil
}

// deviceErr marks link-level failures as hardware unavailability and leaves
// sensor-reported failures as they are.
func (s *Sensor) deviceErr(err error) error {
	var ce *confirmError
	if errors.As(err, &ce) || errors.Is(err, ErrProtocol) {
		return err
	}
	return fmt.Errorf("%w: %v", service.ErrHardwareUnavailable, err)
}
