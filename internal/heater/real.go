//go:build linux

package heater

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealActuator drives the SSR control line on actual hardware using the
// Linux GPIO character device.
type RealActuator struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealActuator requests the SSR line as an output, initially off.
func NewRealActuator(chipName string, offset int) (*RealActuator, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request ssr line %d: %w", offset, err)
	}
	return &RealActuator{chip: chip, line: line}, nil
}

// Set drives the SSR line.
func (a *RealActuator) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := a.line.SetValue(v); err != nil {
		return fmt.Errorf("set ssr line: %w", err)
	}
	return nil
}

// Close forces the line low before releasing it, so the heater is off after
// shutdown regardless of the line's last commanded state.
func (a *RealActuator) Close() error {
	var errs []error
	if a.line != nil {
		if err := a.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear ssr line: %w", err))
		}
		if err := a.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if a.chip != nil {
		if err := a.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
