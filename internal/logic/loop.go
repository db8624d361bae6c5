package logic

import "time"

// Loop is the hysteresis control state machine. One Loop drives one heater.
//
// Transitions into FailSafe are never rate-limited. All other transitions that
// would toggle the actuator are rejected while the minimum dwell time since the
// previous toggle has not elapsed, to prevent relay chatter.
type Loop struct {
	minDwell   time.Duration
	state      State
	heaterOn   bool
	lastToggle time.Time
	hasToggled bool
}

// NewLoop creates a control loop starting in Idle with the heater off.
func NewLoop(minDwell time.Duration) *Loop {
	return &Loop{
		minDwell: minDwell,
		state:    StateIdle,
	}
}

// State returns the current control state.
func (l *Loop) State() State {
	return l.state
}

// Step consumes one input sample and returns the actuator decision.
// The worst outcome of any input is a transition into FailSafe; Step itself
// never fails.
func (l *Loop) Step(in Input) Decision {
	// Fail-safe conditions pre-empt everything, including manual mode.
	if !in.Valid || in.Escalated || in.Mode == ModeOff {
		if l.state != StateFailSafe {
			l.state = StateFailSafe
		}
		l.setOutput(false, in.Time)
		return Decision{State: l.state, HeaterOn: false, Cause: CauseFailSafe}
	}

	if l.state == StateFailSafe {
		// Recovery requires a fresh valid reading and mode != off, and lands
		// in Idle with the heater off. Re-heating waits for Idle's own entry
		// condition on a later cycle, so a single borderline reading after a
		// fault cannot restart the heater.
		l.state = StateIdle
		l.setOutput(false, in.Time)
		cause := CauseAuto
		if in.Mode == ModeManual {
			cause = CauseManual
		}
		return Decision{State: l.state, HeaterOn: false, Cause: cause}
	}

	if in.Mode == ModeManual {
		// The state machine is bypassed; the command is the last accepted
		// manual command, verbatim.
		l.state = StateIdle
		l.setOutput(in.ManualOn, in.Time)
		return Decision{State: l.state, HeaterOn: l.heaterOn, Cause: CauseManual}
	}

	switch l.state {
	case StateIdle:
		if in.Temperature <= in.Target-in.HystLow {
			l.transition(StateHeating, true, in.Time)
		}
	case StateHeating:
		if in.Temperature >= in.Target+in.HystHigh {
			l.transition(StateIdle, false, in.Time)
		}
	}

	return Decision{State: l.state, HeaterOn: l.heaterOn, Cause: CauseAuto}
}

// transition applies a state change unless it would toggle the actuator
// within the minimum dwell time. Rejected transitions leave state and
// command unchanged.
func (l *Loop) transition(to State, on bool, now time.Time) {
	if on != l.heaterOn && !l.canToggle(now) {
		return
	}
	l.state = to
	l.setOutput(on, now)
}

func (l *Loop) canToggle(now time.Time) bool {
	return !l.hasToggled || now.Sub(l.lastToggle) >= l.minDwell
}

func (l *Loop) setOutput(on bool, now time.Time) {
	if on == l.heaterOn {
		return
	}
	l.heaterOn = on
	l.lastToggle = now
	l.hasToggled = true
}
