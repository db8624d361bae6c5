package onewire

import (
	"fmt"
	"time"

	"github.com/abreis/heater-control/internal/logic"
)

// Conversion delay for the DS18B20's default 12-bit resolution. This is a
// property of the sensor, not a tunable.
const convDelay = 750 * time.Millisecond

// Documented DS18B20 operating range. Raw values decoding outside it are
// untrusted and classified with CRC mismatches.
const (
	rangeMin = logic.Centidegrees(-5500)
	rangeMax = logic.Centidegrees(12500)
)

// Budgets holds the independent retry budget for each fault kind. A budget
// of n means a poll performs up to n+1 full bus transactions before the
// fault escalates to the caller.
type Budgets struct {
	Absent  int
	CRC     int
	Timeout int
}

func (b Budgets) forKind(k Kind) int {
	switch k {
	case KindAbsent:
		return b.Absent
	case KindCRC:
		return b.CRC
	case KindTimeout:
		return b.Timeout
	}
	return 0
}

// Probe reads one addressed DS18B20 on a shared bus.
type Probe struct {
	bus   Bus
	rom   ROM
	sleep func(time.Duration) // injectable conversion wait
}

// NewProbe creates a probe for the sensor at the given ROM address.
func NewProbe(bus Bus, rom ROM) *Probe {
	return &Probe{bus: bus, rom: rom, sleep: time.Sleep}
}

// Poll runs one full measurement transaction:
// reset/presence, Convert T, fixed conversion wait, scratchpad read with CRC
// check, and fixed-point decode. Each attempt is bounded by one conversion
// delay plus the bus timeouts.
func (p *Probe) Poll() (logic.Centidegrees, error) {
	if err := p.address(); err != nil {
		return 0, err
	}
	if err := p.bus.WriteByte(cmdConvertT); err != nil {
		return 0, fmt.Errorf("convert: %w", err)
	}

	p.sleep(convDelay)

	if err := p.address(); err != nil {
		return 0, err
	}
	if err := p.bus.WriteByte(cmdReadScratchpad); err != nil {
		return 0, fmt.Errorf("read scratchpad: %w", err)
	}

	var pad [9]byte
	for i := range pad {
		b, err := p.bus.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("scratchpad byte %d: %w", i, err)
		}
		pad[i] = b
	}

	if CRC8(pad[:8]) != pad[8] {
		return 0, ErrCRC
	}

	return decode(pad[0], pad[1])
}

// PollRetry polls with per-kind retry budgets. Every retry restarts the full
// bus transaction; there is no partial retry mid-scratchpad-read. The
// returned error, if any, is the last attempt's fault.
func (p *Probe) PollRetry(budgets Budgets) (logic.Centidegrees, error) {
	var attempts [4]int // indexed by Kind
	for {
		temp, err := p.Poll()
		if err == nil {
			return temp, nil
		}
		kind := KindOf(err)
		attempts[kind]++
		if attempts[kind] > budgets.forKind(kind) {
			return 0, err
		}
	}
}

// address selects this probe's sensor: bus reset, presence check, Match ROM.
func (p *Probe) address() error {
	presence, err := p.bus.Reset()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if !presence {
		return ErrAbsent
	}
	if err := p.bus.WriteByte(cmdMatchROM); err != nil {
		return fmt.Errorf("match rom: %w", err)
	}
	for _, b := range p.rom {
		if err := p.bus.WriteByte(b); err != nil {
			return fmt.Errorf("match rom: %w", err)
		}
	}
	return nil
}

// decode converts the raw 16-bit two's-complement scratchpad value
// (sixteenths of a degree) to Centidegrees, gating on the documented range.
func decode(lsb, msb byte) (logic.Centidegrees, error) {
	raw := int16(uint16(msb)<<8 | uint16(lsb))
	centi := logic.Centidegrees(int32(raw) * 25 / 4)
	if centi < rangeMin || centi > rangeMax {
		return 0, fmt.Errorf("decoded %s: %w", centi, ErrUntrusted)
	}
	return centi, nil
}
