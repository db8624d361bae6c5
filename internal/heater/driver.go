package heater

import (
	"context"
	"log"
	"time"

	"github.com/abreis/heater-control/internal/state"
)

// Driver owns the actuator and applies the store's authoritative command to
// it. Full-on and off commands are driven statically; a fractional manual
// duty is driven by stepping through an evenly-distributed pattern, one step
// per step interval. No other task touches the actuator.
type Driver struct {
	act  Actuator
	st   *state.Store
	step time.Duration
}

// NewDriver creates a Driver applying store commands to the actuator.
func NewDriver(act Actuator, st *state.Store, step time.Duration) *Driver {
	return &Driver{act: act, st: st, step: step}
}

// Run applies commands until the context is cancelled, reporting progress
// through checkin on every step. On exit the actuator is forced off.
func (d *Driver) Run(ctx context.Context, checkin func()) {
	ticker := time.NewTicker(d.step)
	defer ticker.Stop()
	defer d.act.Set(false)

	changes := d.st.Subscribe()

	pattern := DutyPattern(0)
	duty := 0
	idx := 0
	last := false
	driven := false

	for {
		select {
		case <-ctx.Done():
			return

		case <-changes:
			cmd := d.st.Snapshot().Actuator
			if cmd.Duty != duty {
				duty = cmd.Duty
				// Replace the pattern in place; even distribution means
				// resuming at the current step lands on the new duty
				// immediately.
				pattern = DutyPattern(duty)
			}

		case <-ticker.C:
			if checkin != nil {
				checkin()
			}
			on := pattern[idx]
			idx = (idx + 1) % PatternSteps
			if driven && on == last {
				continue
			}
			if err := d.act.Set(on); err != nil {
				log.Printf("heater: set actuator: %v", err)
				continue
			}
			last = on
			driven = true
		}
	}
}
