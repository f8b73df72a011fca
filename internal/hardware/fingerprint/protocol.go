package fingerprint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Packet layout for the R30x / ZFM family:
//
//	EF 01 | addr(4) | pid(1) | len(2) | payload | checksum(2)
//
// len counts payload plus checksum. The checksum is the 16-bit sum of pid,
// both len bytes and every payload byte.
const (
	startCode      uint16 = 0xEF01
	DefaultAddress uint32 = 0xFFFFFFFF
	headerLen             = 9

	pidCommand byte = 0x01
	pidAck     byte = 0x07
)

const (
	cmdGenImage       byte = 0x01
	cmdImage2Tz       byte = 0x02
	cmdSearch         byte = 0x04
	cmdRegModel       byte = 0x05
	cmdStore          byte = 0x06
	cmdDeleteChar     byte = 0x0C
	cmdReadSysPara    byte = 0x0F
	cmdVerifyPassword byte = 0x13
	cmdReadIndexTable byte = 0x1F
)

// Confirmation codes.
const (
	codeOK             byte = 0x00
	codeNoFinger       byte = 0x02
	codeNotFound       byte = 0x09
	codeEnrollMismatch byte = 0x0A
)

var (
	ErrProtocol       = errors.New("fingerprint: protocol error")
	ErrReadTimeout    = errors.New("fingerprint: read timed out")
	ErrEnrollMismatch = errors.New("fingerprint: the two scans did not match")
	ErrLibraryFull    = errors.New("fingerprint: template library full")
)

// confirmError is a non-OK confirmation code the caller did not expect.
type confirmError struct {
	cmd  byte
	code byte
}

func (e *confirmError) Error() string {
	return fmt.Sprintf("fingerprint: command 0x%02X failed with code 0x%02X", e.cmd, e.code)
}

type packet struct {
	pid     byte
	payload []byte
}

func checksum(pid byte, length uint16, payload []byte) uint16 {
	sum := uint16(pid) + length>>8 + length&0xFF
	for _, b := range payload {
		sum += uint16(b)
	}
	return sum
}

func encodePacket(addr uint32, pid byte, payload []byte) []byte {
	length := uint16(len(payload) + 2)
	buf := make([]byte, 0, headerLen+len(payload)+2)
	buf = binary.BigEndian.AppendUint16(buf, startCode)
	buf = binary.BigEndian.AppendUint32(buf, addr)
	buf = append(buf, pid)
	buf = binary.BigEndian.AppendUint16(buf, length)
	buf = append(buf, payload...)
	buf = binary.BigEndian.AppendUint16(buf, checksum(pid, length, payload))
	return buf
}

func readPacket(r io.Reader, addr uint32) (packet, error) {
	hdr := make([]byte, headerLen)
	if err := readFull(r, hdr); err != nil {
		return packet{}, err
	}
	if binary.BigEndian.Uint16(hdr[0:2]) != startCode {
		return packet{}, fmt.Errorf("%w: bad start code % X", ErrProtocol, hdr[0:2])
	}
	if got := binary.BigEndian.Uint32(hdr[2:6]); got != addr {
		return packet{}, fmt.Errorf("%w: address 0x%08X, want 0x%08X", ErrProtocol, got, addr)
	}
	pid := hdr[6]
	length := binary.BigEndian.Uint16(hdr[7:9])
	if length < 2 {
		return packet{}, fmt.Errorf("%w: length %d", ErrProtocol, length)
	}

	body := make([]byte, length)
	if err := readFull(r, body); err != nil {
		return packet{}, err
	}
	payload := body[:length-2]
	if want, got := checksum(pid, length, payload), binary.BigEndian.Uint16(body[length-2:]); want != got {
		return packet{}, fmt.Errorf("%w: checksum 0x%04X, want 0x%04X", ErrProtocol, got, want)
	}
	return packet{pid: pid, payload: payload}, nil
}

// readFull is io.ReadFull for ports whose Read returns (0, nil) on timeout.
func readFull(r io.Reader, buf []byte) error {
	for off := 0; off < len(buf); {
		n, err := r.Read(buf[off:])
		off += n
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrReadTimeout
		}
	}
	return nil
}
