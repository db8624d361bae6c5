// Package onewire implements the sensor link: the 1-Wire bus protocol for
// DS18B20 temperature probes, with presence detection, scratchpad CRC
// validation, fault classification, and per-kind retry budgets.
// The electrical layer is abstracted behind the Bus interface; the real
// implementation bit-bangs a GPIO line, the fake replays scripted frames.
package onewire

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Bus is the electrical boundary of the 1-Wire protocol. All operations have
// bounded timeouts; a stuck bus surfaces as a wrapped ErrTimeout.
type Bus interface {
	// Reset issues a bus reset and reports whether any device answered
	// with a presence pulse.
	Reset() (bool, error)

	// WriteByte shifts one byte onto the bus, LSB first.
	WriteByte(b byte) error

	// ReadByte shifts one byte off the bus, LSB first.
	ReadByte() (byte, error)

	// Close releases the bus line.
	Close() error
}

// ROM commands.
const (
	cmdMatchROM       = 0x55
	cmdSkipROM        = 0xCC
	cmdConvertT       = 0x44
	cmdReadScratchpad = 0xBE
)

// ds18b20Family is the family code in the first ROM byte.
const ds18b20Family = 0x28

// Classified sensor faults. Use errors.Is to test; Kind maps them to the
// fault taxonomy.
var (
	ErrAbsent    = errors.New("onewire: no presence pulse")
	ErrCRC       = errors.New("onewire: scratchpad crc mismatch")
	ErrTimeout   = errors.New("onewire: bus timeout")
	ErrUntrusted = errors.New("onewire: reading outside sensor operating range")
)

// Kind classifies a poll error. Out-of-range readings are untrusted and
// classified with CRC mismatches rather than accepted.
type Kind int

const (
	KindNone Kind = iota
	KindAbsent
	KindCRC
	KindTimeout
)

// KindOf returns the fault classification for a poll error.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAbsent):
		return KindAbsent
	case errors.Is(err, ErrCRC), errors.Is(err, ErrUntrusted):
		return KindCRC
	default:
		return KindTimeout
	}
}

// ROM is a 64-bit 1-Wire device address: family code, 48-bit serial, CRC.
type ROM [8]byte

// ParseROM parses a 16-digit hex address (as printed, CRC byte first) and
// validates its embedded CRC and family code.
func ParseROM(s string) (ROM, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 8 {
		return ROM{}, fmt.Errorf("rom %q: want 16 hex digits", s)
	}
	var rom ROM
	// Printed form is big-endian; the bus sends the family code first.
	for i := range rom {
		rom[i] = raw[7-i]
	}
	if rom[0] != ds18b20Family {
		return ROM{}, fmt.Errorf("rom %q: family %#02x is not a DS18B20", s, rom[0])
	}
	if CRC8(rom[:7]) != rom[7] {
		return ROM{}, fmt.Errorf("rom %q: address crc mismatch", s)
	}
	return rom, nil
}

func (r ROM) String() string {
	var printed [8]byte
	for i := range printed {
		printed[i] = r[7-i]
	}
	return hex.EncodeToString(printed[:])
}
