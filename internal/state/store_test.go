package state

import (
	"errors"
	"testing"
	"time"

	"github.com/abreis/heater-control/internal/logic"
)

func testStore(now func() time.Time) *Store {
	return New(
		Setpoint{Target: 2200, HystLow: 50, HystHigh: 50, Mode: logic.ModeAuto},
		Limits{MinTarget: 500, MaxTarget: 9000},
		now,
	)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestWriteSetpointVersioning(t *testing.T) {
	s := testStore(nil)

	v0 := s.Snapshot().Setpoint.Version

	if err := s.WriteSetpoint(2350, logic.ModeAuto); err != nil {
		t.Fatalf("accepted write failed: %v", err)
	}
	snap := s.Snapshot()
	if snap.Setpoint.Version != v0+1 {
		t.Errorf("version after accept: got %d, want %d", snap.Setpoint.Version, v0+1)
	}
	if snap.Setpoint.Target != 2350 {
		t.Errorf("target: got %d, want 2350", snap.Setpoint.Target)
	}

	// Rejected writes must not bump the version or mutate anything.
	err := s.WriteSetpoint(15000, logic.ModeAuto)
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	snap = s.Snapshot()
	if snap.Setpoint.Version != v0+1 {
		t.Errorf("version after reject: got %d, want %d", snap.Setpoint.Version, v0+1)
	}
	if snap.Setpoint.Target != 2350 {
		t.Errorf("target after reject: got %d, want 2350", snap.Setpoint.Target)
	}

	err = s.WriteSetpoint(2200, logic.Mode("boost"))
	if !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestWriteManual(t *testing.T) {
	s := testStore(nil)

	if err := s.WriteManual(40); err != nil {
		t.Fatalf("manual 40: %v", err)
	}
	snap := s.Snapshot()
	if snap.Setpoint.Mode != logic.ModeManual || snap.Setpoint.ManualDuty != 40 {
		t.Errorf("got mode=%s duty=%d, want manual/40", snap.Setpoint.Mode, snap.Setpoint.ManualDuty)
	}

	if err := s.WriteManual(150); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("manual 150: expected ErrOutOfRange, got %v", err)
	}
}

func TestReadingClearsSensorFaults(t *testing.T) {
	s := testStore(nil)

	s.RecordFault("case", FaultCrcMismatch)
	s.RecordFault("case", FaultCrcMismatch)
	if n := s.RecordFault("case", FaultCrcMismatch); n != 3 {
		t.Fatalf("fault count: got %d, want 3", n)
	}

	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.RecordReading("case", 2150, at)

	snap := s.Snapshot()
	r, ok := snap.Readings["case"]
	if !ok || !r.Valid || r.Temperature != 2150 {
		t.Fatalf("reading: got %+v, want valid 21.50", r)
	}
	// Snapshot consistency: the valid reading and the cleared fault record
	// must appear together.
	if _, ok := snap.Faults["case"][FaultCrcMismatch]; ok {
		t.Error("crc fault record survived a successful reading")
	}
}

func TestFaultCountersMonotonicWithinEpisode(t *testing.T) {
	s := testStore(nil)

	last := 0
	for i := 0; i < 5; i++ {
		n := s.RecordFault("case", FaultSensorAbsent)
		if n <= last {
			t.Fatalf("count not increasing: %d after %d", n, last)
		}
		last = n
	}
	// A network fault on another source does not touch the sensor episode.
	s.RecordFault("mqtt", FaultNetworkDisconnected)
	if got := s.Snapshot().Faults["case"][FaultSensorAbsent].Count; got != 5 {
		t.Errorf("sensor count: got %d, want 5", got)
	}
}

func TestSupervisorOverrideWins(t *testing.T) {
	s := testStore(nil)

	s.WriteActuator(logic.Decision{State: logic.StateHeating, HeaterOn: true, Cause: logic.CauseAuto})
	if !s.Snapshot().Actuator.On {
		t.Fatal("expected heater on")
	}

	s.ForceFailSafe()
	snap := s.Snapshot()
	if snap.Actuator.On || snap.Actuator.Cause != logic.CauseFailSafe || !snap.FailSafeForced {
		t.Fatalf("after force: got %+v forced=%v", snap.Actuator, snap.FailSafeForced)
	}

	// A concurrently pending control-loop write is discarded.
	s.WriteActuator(logic.Decision{State: logic.StateHeating, HeaterOn: true, Cause: logic.CauseAuto})
	snap = s.Snapshot()
	if snap.Actuator.On || snap.ControlState != logic.StateFailSafe {
		t.Fatalf("control write during override applied: %+v", snap.Actuator)
	}

	s.ReleaseFailSafe()
	s.WriteActuator(logic.Decision{State: logic.StateHeating, HeaterOn: true, Cause: logic.CauseAuto})
	if !s.Snapshot().Actuator.On {
		t.Error("control write after release not applied")
	}
}

func TestManualDutyFlowsIntoActuator(t *testing.T) {
	s := testStore(nil)

	if err := s.WriteManual(40); err != nil {
		t.Fatal(err)
	}
	s.WriteActuator(logic.Decision{State: logic.StateIdle, HeaterOn: true, Cause: logic.CauseManual})
	snap := s.Snapshot()
	if !snap.Actuator.On || snap.Actuator.Duty != 40 {
		t.Errorf("actuator: got on=%v duty=%d, want on/40", snap.Actuator.On, snap.Actuator.Duty)
	}
}

func TestSubscribeCoalescedWake(t *testing.T) {
	s := testStore(nil)
	ch := s.Subscribe()

	// Several mutations, one pending wake.
	s.RecordFault("case", FaultCrcMismatch)
	s.RecordFault("case", FaultCrcMismatch)
	s.SetLink("mqtt", true)

	select {
	case <-ch:
	default:
		t.Fatal("expected a pending wake")
	}
	select {
	case <-ch:
		t.Fatal("wakes were not coalesced")
	default:
	}

	// After draining, a new change wakes again.
	s.SetLink("mqtt", false)
	select {
	case <-ch:
	default:
		t.Fatal("expected wake after new change")
	}
}

func TestLatestValid(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := testStore(fixedClock(now))

	s.RecordReading("old", 2000, now.Add(-2*time.Minute))
	s.RecordReading("fresh", 2100, now.Add(-10*time.Second))

	snap := s.Snapshot()
	r, ok := snap.LatestValid(time.Minute, now)
	if !ok || r.SensorID != "fresh" {
		t.Fatalf("got %+v ok=%v, want fresh reading", r, ok)
	}

	// Everything outside the window: no valid reading.
	if _, ok := snap.LatestValid(5*time.Second, now); ok {
		t.Error("stale readings reported as valid")
	}
}

func TestSetLinkEdgeOnly(t *testing.T) {
	s := testStore(nil)
	ch := s.Subscribe()

	s.SetLink("mqtt", true)
	<-ch
	// Same value again: no new wake.
	s.SetLink("mqtt", true)
	select {
	case <-ch:
		t.Fatal("unchanged link state produced a wake")
	default:
	}
}
