//go:build linux

package onewire

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealBus bit-bangs the 1-Wire protocol on a Linux GPIO character device
// line. The line is driven low by reconfiguring it as output-low and
// released by reconfiguring it as input; an external pull-up raises the bus.
type RealBus struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// Bus timing, per the DS18B20 datasheet. User-space sleeps overshoot these,
// which the protocol tolerates everywhere except the sample points, where we
// read immediately after the drive phase.
const (
	resetLowTime     = 480 * time.Microsecond
	presenceWaitTime = 70 * time.Microsecond
	presenceEndTime  = 410 * time.Microsecond
	slotLowWrite1    = 6 * time.Microsecond
	slotLowWrite0    = 60 * time.Microsecond
	slotRecovery     = 10 * time.Microsecond
	slotReadSample   = 9 * time.Microsecond
	slotTotal        = 70 * time.Microsecond

	// How long to wait for a released bus to return high before declaring
	// the line stuck.
	busIdleTimeout = 5 * time.Millisecond
)

// NewRealBus opens the 1-Wire bus on the given GPIO chip and line offset.
func NewRealBus(chipName string, offset int) (*RealBus, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	// Released state: input, bus pulled high externally.
	line, err := chip.RequestLine(offset, gpiocdev.AsInput)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request 1wire line %d: %w", offset, err)
	}
	return &RealBus{chip: chip, line: line}, nil
}

// Reset issues a reset pulse and samples for a presence pulse.
func (b *RealBus) Reset() (bool, error) {
	if err := b.waitIdle(); err != nil {
		return false, err
	}

	if err := b.drive(); err != nil {
		return false, err
	}
	time.Sleep(resetLowTime)
	if err := b.release(); err != nil {
		return false, err
	}

	time.Sleep(presenceWaitTime)
	v, err := b.line.Value()
	if err != nil {
		return false, fmt.Errorf("sample presence: %w", err)
	}
	time.Sleep(presenceEndTime)

	// A present device holds the bus low during the presence window.
	return v == 0, nil
}

// WriteByte shifts one byte onto the bus, LSB first.
func (b *RealBus) WriteByte(v byte) error {
	for i := 0; i < 8; i++ {
		if err := b.writeBit(v&1 != 0); err != nil {
			return err
		}
		v >>= 1
	}
	return nil
}

// ReadByte shifts one byte off the bus, LSB first.
func (b *RealBus) ReadByte() (byte, error) {
	var v byte
	for i := 0; i < 8; i++ {
		bit, err := b.readBit()
		if err != nil {
			return 0, err
		}
		if bit {
			v |= 1 << i
		}
	}
	return v, nil
}

// Close releases the bus line.
func (b *RealBus) Close() error {
	var errs []error
	if b.line != nil {
		if err := b.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (b *RealBus) writeBit(bit bool) error {
	if err := b.drive(); err != nil {
		return err
	}
	if bit {
		time.Sleep(slotLowWrite1)
	} else {
		time.Sleep(slotLowWrite0)
	}
	if err := b.release(); err != nil {
		return err
	}
	time.Sleep(slotTotal - slotLowWrite1)
	return nil
}

func (b *RealBus) readBit() (bool, error) {
	if err := b.drive(); err != nil {
		return false, err
	}
	time.Sleep(slotLowWrite1)
	if err := b.release(); err != nil {
		return false, err
	}
	time.Sleep(slotReadSample)
	v, err := b.line.Value()
	if err != nil {
		return false, fmt.Errorf("sample bit: %w", err)
	}
	time.Sleep(slotTotal)
	return v != 0, nil
}

// drive pulls the bus low.
func (b *RealBus) drive() error {
	if err := b.line.Reconfigure(gpiocdev.AsOutput(0)); err != nil {
		return fmt.Errorf("drive bus low: %w", err)
	}
	return nil
}

// release lets the pull-up raise the bus.
func (b *RealBus) release() error {
	if err := b.line.Reconfigure(gpiocdev.AsInput); err != nil {
		return fmt.Errorf("release bus: %w", err)
	}
	return nil
}

// waitIdle waits for the released bus to read high, bounding the wait so a
// shorted line surfaces as a timeout instead of a hang.
func (b *RealBus) waitIdle() error {
	deadline := time.Now().Add(busIdleTimeout)
	for {
		v, err := b.line.Value()
		if err != nil {
			return fmt.Errorf("sample bus: %w", err)
		}
		if v != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("bus held low for %v: %w", busIdleTimeout, ErrTimeout)
		}
		time.Sleep(100 * time.Microsecond)
	}
}
