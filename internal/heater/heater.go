// Package heater provides the heating actuator driver with hardware
// abstraction. The real implementation switches a solid-state relay through
// a Linux GPIO output line; the fake allows testing without hardware.
package heater

// Actuator switches the heating element.
type Actuator interface {
	// Set drives the element on or off.
	Set(on bool) error

	// Close releases the actuator, leaving the element off.
	Close() error
}

// PatternSteps is the number of equal-duration steps in one duty pattern
// cycle.
const PatternSteps = 100

// DutyPattern turns a duty percentage into a pattern of on/off steps of
// equal duration. The on steps are distributed as evenly as possible,
// maximizing the number of transitions, so a replaced pattern can be resumed
// from any step position without a duty glitch.
func DutyPattern(percent int) [PatternSteps]bool {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	var steps [PatternSteps]bool
	// Error-accumulator distribution; starting at half the total centers
	// the on pulses.
	acc := PatternSteps / 2
	for i := range steps {
		acc += percent
		if acc >= PatternSteps {
			steps[i] = true
			acc -= PatternSteps
		}
	}
	return steps
}
