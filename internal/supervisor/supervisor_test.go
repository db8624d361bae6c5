package supervisor

import (
	"testing"
	"time"

	"github.com/abreis/heater-control/internal/logic"
	"github.com/abreis/heater-control/internal/memlog"
	"github.com/abreis/heater-control/internal/state"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSupervisor(clock *fakeClock) (*Supervisor, *state.Store, *FakeWatchdog) {
	st := state.New(
		state.Setpoint{
			Target:   logic.FromDegrees(22.0),
			HystLow:  50,
			HystHigh: 50,
			Mode:     logic.ModeAuto,
		},
		state.Limits{MinTarget: logic.FromDegrees(5.0), MaxTarget: logic.FromDegrees(35.0)},
		clock.now,
	)
	wd := NewFakeWatchdog()
	sup := New(st, memlog.New(4096), wd, 2, 30*time.Second, clock.now)
	return sup, st, wd
}

func TestWatchdogPettedWhileTasksLive(t *testing.T) {
	clock := newFakeClock()
	sup, _, wd := newTestSupervisor(clock)

	checkin := sup.Register("control", 5*time.Second)

	sup.Step()
	if wd.Pets() != 1 {
		t.Fatalf("pets: got %d, want 1", wd.Pets())
	}

	clock.advance(4 * time.Second)
	checkin()
	sup.Step()
	if wd.Pets() != 2 {
		t.Fatalf("pets after checkin: got %d, want 2", wd.Pets())
	}
}

func TestWatchdogWithheldOnStall(t *testing.T) {
	clock := newFakeClock()
	sup, _, wd := newTestSupervisor(clock)

	checkin := sup.Register("control", 5*time.Second)
	sup.Register("sensor", time.Minute)

	clock.advance(6 * time.Second)
	sup.Step()
	if wd.Pets() != 0 {
		t.Fatalf("pets with stalled task: got %d, want 0", wd.Pets())
	}

	// The stalled task recovering restores watchdog service.
	checkin()
	sup.Step()
	if wd.Pets() != 1 {
		t.Fatalf("pets after recovery: got %d, want 1", wd.Pets())
	}
}

func TestSensorFaultEscalation(t *testing.T) {
	clock := newFakeClock()
	sup, st, _ := newTestSupervisor(clock)

	// Threshold is 2: two faults stay below it.
	st.RecordFault("case", state.FaultCrcMismatch)
	st.RecordFault("case", state.FaultCrcMismatch)
	sup.Step()
	if st.Snapshot().FailSafeForced {
		t.Fatal("forced below threshold")
	}

	st.RecordFault("case", state.FaultCrcMismatch)
	sup.Step()
	snap := st.Snapshot()
	if !snap.FailSafeForced {
		t.Fatal("not forced above threshold")
	}
	if snap.Actuator.On || snap.Actuator.Cause != logic.CauseFailSafe {
		t.Errorf("actuator: %+v", snap.Actuator)
	}

	// Control-loop writes are discarded while forced.
	st.WriteActuator(logic.Decision{State: logic.StateHeating, HeaterOn: true, Cause: logic.CauseAuto})
	if st.Snapshot().Actuator.On {
		t.Error("control write took effect under override")
	}

	// A successful reading clears the counters and releases the override.
	st.RecordReading("case", logic.FromDegrees(21.0), clock.now())
	sup.Step()
	if st.Snapshot().FailSafeForced {
		t.Error("override held after faults cleared")
	}
}

func TestNetworkOutageEscalation(t *testing.T) {
	clock := newFakeClock()
	sup, st, _ := newTestSupervisor(clock)

	st.SetLink("mqtt", false)
	st.SetLink("http", false)

	// Inside the grace period nothing happens.
	sup.Step()
	if st.Snapshot().FailSafeForced {
		t.Fatal("forced inside grace period")
	}

	clock.advance(31 * time.Second)
	sup.Step()
	if !st.Snapshot().FailSafeForced {
		t.Fatal("not forced after grace period")
	}

	// One adapter recovering releases the override.
	st.SetLink("mqtt", true)
	sup.Step()
	if st.Snapshot().FailSafeForced {
		t.Error("override held with one adapter up")
	}
}

func TestNoLinksMeansNoNetworkEscalation(t *testing.T) {
	clock := newFakeClock()
	sup, st, _ := newTestSupervisor(clock)

	clock.advance(time.Hour)
	sup.Step()
	if st.Snapshot().FailSafeForced {
		t.Error("forced with no registered links")
	}
}
