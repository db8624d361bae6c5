// Package logic contains the pure control-loop state machine for the heater.
// This package has NO external dependencies (no bus, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"strings"
	"time"
)

// Centidegrees is a fixed-point temperature in hundredths of a degree Celsius.
// All control comparisons operate on this type; readings are already quantized
// by the sensor, so no floating-point tolerance is needed.
type Centidegrees int32

// FromDegrees converts a floating-point Celsius value to Centidegrees,
// rounding to the nearest hundredth.
func FromDegrees(d float64) Centidegrees {
	if d < 0 {
		return Centidegrees(d*100 - 0.5)
	}
	return Centidegrees(d*100 + 0.5)
}

// Degrees returns the value as floating-point Celsius (for display only).
func (c Centidegrees) Degrees() float64 {
	return float64(c) / 100
}

func (c Centidegrees) String() string {
	whole := c / 100
	frac := c % 100
	if frac < 0 {
		frac = -frac
	}
	if c < 0 && whole == 0 {
		return fmt.Sprintf("-0.%02d", frac)
	}
	return fmt.Sprintf("%d.%02d", whole, frac)
}

// Mode is the controller operating mode.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
	ModeOff    Mode = "off"
)

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case ModeAuto:
		return ModeAuto, nil
	case ModeManual:
		return ModeManual, nil
	case ModeOff:
		return ModeOff, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Cause tags who produced the current actuator command.
type Cause string

const (
	CauseAuto     Cause = "auto"
	CauseManual   Cause = "manual_override"
	CauseFailSafe Cause = "fail_safe"
)

// State is the control-loop state.
type State string

const (
	StateIdle     State = "idle"
	StateHeating  State = "heating"
	StateFailSafe State = "fail_safe"
)

// Input is one control-cycle sample. Valid is true only when a valid reading
// exists within the staleness window; Temperature is meaningful only then.
type Input struct {
	Time        time.Time
	Valid       bool
	Temperature Centidegrees
	Target      Centidegrees
	HystLow     Centidegrees
	HystHigh    Centidegrees
	Mode        Mode
	ManualOn    bool // last accepted manual command
	Escalated   bool // a sensor fault counter exceeded its threshold
}

// Decision is the control loop's output for one cycle.
type Decision struct {
	State    State
	HeaterOn bool
	Cause    Cause
}
