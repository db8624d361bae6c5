package logic

import (
	"testing"
	"time"
)

func autoInput(at time.Time, temp Centidegrees) Input {
	return Input{
		Time:        at,
		Valid:       true,
		Temperature: temp,
		Target:      2200,
		HystLow:     50,
		HystHigh:    50,
		Mode:        ModeAuto,
	}
}

func TestFromDegrees(t *testing.T) {
	tests := []struct {
		in   float64
		want Centidegrees
	}{
		{22.0, 2200},
		{22.5, 2250},
		{0.01, 1},
		{-10.12, -1012},
		{150.0, 15000},
	}
	for _, tt := range tests {
		if got := FromDegrees(tt.in); got != tt.want {
			t.Errorf("FromDegrees(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCentidegreesString(t *testing.T) {
	tests := []struct {
		in   Centidegrees
		want string
	}{
		{2200, "22.00"},
		{2206, "22.06"},
		{-1012, "-10.12"},
		{-50, "-0.50"},
		{0, "0.00"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"auto", "Auto", "AUTO"} {
		m, err := ParseMode(s)
		if err != nil || m != ModeAuto {
			t.Errorf("ParseMode(%q) = %v, %v", s, m, err)
		}
	}
	if _, err := ParseMode("boost"); err == nil {
		t.Error("ParseMode(boost): expected error")
	}
}

// TestHysteresisScenario runs the canonical cycle: setpoint 22.00, band
// ±0.50, auto mode. 21.00 starts heating, 22.60 stops it.
func TestHysteresisScenario(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLoop(0)

	d := l.Step(autoInput(start, 2100))
	if d.State != StateHeating || !d.HeaterOn || d.Cause != CauseAuto {
		t.Fatalf("21.00: got %+v, want Heating/on/auto", d)
	}

	// Inside the band: no change in either direction.
	d = l.Step(autoInput(start.Add(time.Minute), 2230))
	if d.State != StateHeating || !d.HeaterOn {
		t.Fatalf("22.30 while heating: got %+v, want Heating/on", d)
	}

	d = l.Step(autoInput(start.Add(2*time.Minute), 2260))
	if d.State != StateIdle || d.HeaterOn {
		t.Fatalf("22.60: got %+v, want Idle/off", d)
	}

	// Inside the band again: stays idle.
	d = l.Step(autoInput(start.Add(3*time.Minute), 2180))
	if d.State != StateIdle || d.HeaterOn {
		t.Fatalf("21.80 while idle: got %+v, want Idle/off", d)
	}
}

// TestAntiChatter feeds a sequence straddling the hysteresis band and checks
// the actuator never toggles more than once per minimum dwell interval.
func TestAntiChatter(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	dwell := time.Minute
	l := NewLoop(dwell)

	temps := []Centidegrees{2100, 2260, 2100, 2260, 2100, 2260, 2100}
	period := 10 * time.Second

	var lastToggle time.Time
	var toggled bool
	on := false
	for i, temp := range temps {
		at := start.Add(time.Duration(i) * period)
		d := l.Step(autoInput(at, temp))
		if d.HeaterOn != on {
			if toggled && at.Sub(lastToggle) < dwell {
				t.Fatalf("step %d: toggle %v after %v, dwell is %v",
					i, d.HeaterOn, at.Sub(lastToggle), dwell)
			}
			on = d.HeaterOn
			lastToggle = at
			toggled = true
		}
	}

	// The first crossing toggles; the rest land inside the dwell window.
	if !on {
		t.Error("expected heater on after sequence (only first toggle allowed)")
	}
}

func TestDwellExpiryAllowsToggle(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLoop(time.Minute)

	d := l.Step(autoInput(start, 2100))
	if !d.HeaterOn {
		t.Fatal("expected heating")
	}
	// Above band but inside dwell: rejected.
	d = l.Step(autoInput(start.Add(30*time.Second), 2260))
	if !d.HeaterOn || d.State != StateHeating {
		t.Fatalf("inside dwell: got %+v, want unchanged Heating/on", d)
	}
	// After dwell: accepted.
	d = l.Step(autoInput(start.Add(61*time.Second), 2260))
	if d.HeaterOn || d.State != StateIdle {
		t.Fatalf("after dwell: got %+v, want Idle/off", d)
	}
}

func TestFailSafeNeverRateLimited(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLoop(time.Hour)

	d := l.Step(autoInput(start, 2100))
	if !d.HeaterOn {
		t.Fatal("expected heating")
	}

	// One second later a fault escalates: the off transition must not be
	// held back by the dwell timer.
	in := autoInput(start.Add(time.Second), 2100)
	in.Escalated = true
	d = l.Step(in)
	if d.State != StateFailSafe || d.HeaterOn || d.Cause != CauseFailSafe {
		t.Fatalf("escalated: got %+v, want FailSafe/off", d)
	}
}

func TestFailSafeOnStaleReading(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLoop(0)

	l.Step(autoInput(start, 2100))
	in := Input{Time: start.Add(time.Minute), Valid: false, Mode: ModeAuto,
		Target: 2200, HystLow: 50, HystHigh: 50}
	d := l.Step(in)
	if d.State != StateFailSafe || d.HeaterOn {
		t.Fatalf("stale: got %+v, want FailSafe/off", d)
	}
}

func TestFailSafeOnModeOff(t *testing.T) {
	l := NewLoop(0)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	in := autoInput(start, 2100)
	in.Mode = ModeOff
	d := l.Step(in)
	if d.State != StateFailSafe || d.HeaterOn {
		t.Fatalf("mode off: got %+v, want FailSafe/off", d)
	}
}

// TestFailSafeRecoversThroughIdle checks that a single valid reading below
// the band after a fault does not restart the heater on the same cycle.
func TestFailSafeRecoversThroughIdle(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLoop(0)

	in := autoInput(start, 2100)
	in.Valid = false
	d := l.Step(in)
	if d.State != StateFailSafe {
		t.Fatal("expected FailSafe")
	}

	// Fresh valid reading, cold: recovers to Idle, heater stays off.
	d = l.Step(autoInput(start.Add(time.Minute), 2100))
	if d.State != StateIdle || d.HeaterOn {
		t.Fatalf("recovery cycle: got %+v, want Idle/off", d)
	}

	// Next cycle Idle's entry condition fires normally.
	d = l.Step(autoInput(start.Add(2*time.Minute), 2100))
	if d.State != StateHeating || !d.HeaterOn {
		t.Fatalf("post-recovery cycle: got %+v, want Heating/on", d)
	}
}

func TestFailSafeRecoveryReportsManualCause(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLoop(0)

	in := autoInput(start, 2100)
	in.Mode = ModeManual
	in.ManualOn = true
	in.Valid = false
	d := l.Step(in)
	if d.State != StateFailSafe {
		t.Fatal("expected FailSafe")
	}

	// The recovery cycle keeps the heater off but must not report "auto"
	// while the operator is in manual mode.
	in = autoInput(start.Add(time.Minute), 2100)
	in.Mode = ModeManual
	in.ManualOn = true
	d = l.Step(in)
	if d.State != StateIdle || d.HeaterOn || d.Cause != CauseManual {
		t.Fatalf("recovery cycle: got %+v, want Idle/off/manual_override", d)
	}

	// The cycle after that obeys the manual command again.
	in = autoInput(start.Add(2*time.Minute), 2100)
	in.Mode = ModeManual
	in.ManualOn = true
	d = l.Step(in)
	if !d.HeaterOn || d.Cause != CauseManual {
		t.Fatalf("post-recovery cycle: got %+v, want on/manual_override", d)
	}
}

func TestManualBypassAndPreemption(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLoop(0)

	// Manual on, even above the band.
	in := autoInput(start, 2500)
	in.Mode = ModeManual
	in.ManualOn = true
	d := l.Step(in)
	if !d.HeaterOn || d.Cause != CauseManual {
		t.Fatalf("manual on: got %+v, want on/manual_override", d)
	}

	// A stale reading still pre-empts manual mode.
	in = Input{Time: start.Add(time.Minute), Valid: false, Mode: ModeManual, ManualOn: true}
	d = l.Step(in)
	if d.State != StateFailSafe || d.HeaterOn || d.Cause != CauseFailSafe {
		t.Fatalf("manual with stale reading: got %+v, want FailSafe/off", d)
	}

	// Manual off is obeyed verbatim.
	in = autoInput(start.Add(2*time.Minute), 2100)
	in.Mode = ModeManual
	in.ManualOn = false
	l.Step(in) // recovery cycle lands in Idle
	d = l.Step(in)
	if d.HeaterOn || d.Cause != CauseManual {
		t.Fatalf("manual off: got %+v, want off/manual_override", d)
	}
}

// TestEscalationScenario: three consecutive CRC faults over threshold 2 must
// reach FailSafe within one cycle of the threshold being crossed, regardless
// of the last valid reading.
func TestEscalationScenario(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLoop(0)

	d := l.Step(autoInput(start, 2100))
	if d.State != StateHeating {
		t.Fatal("expected heating before faults")
	}

	// Faults 1 and 2: the last valid reading is still within the staleness
	// window and the counter has not exceeded the threshold.
	for i := 1; i <= 2; i++ {
		d = l.Step(autoInput(start.Add(time.Duration(i)*time.Second), 2100))
		if d.State != StateHeating {
			t.Fatalf("fault %d below threshold: got %v, want Heating", i, d.State)
		}
	}

	// Fault 3 crosses threshold 2: escalated input this cycle.
	in := autoInput(start.Add(3*time.Second), 2100)
	in.Escalated = true
	d = l.Step(in)
	if d.State != StateFailSafe || d.HeaterOn {
		t.Fatalf("fault over threshold: got %+v, want FailSafe/off", d)
	}
}
