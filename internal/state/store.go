// Package state holds the single shared mutable aggregate of the controller:
// latest readings, setpoint, actuator command, fault records, and link status.
// All tasks hold a handle to one Store and never keep private copies for
// decisions. Every critical section is short and free of I/O.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abreis/heater-control/internal/logic"
)

// Validation errors returned by setpoint/manual writes. Adapters map these to
// their own rejection responses; they never reach the aggregate.
var (
	ErrOutOfRange  = errors.New("out of range")
	ErrInvalidMode = errors.New("invalid mode")
)

// FaultKind classifies a fault record.
type FaultKind string

const (
	FaultSensorTimeout       FaultKind = "sensor_timeout"
	FaultCrcMismatch         FaultKind = "crc_mismatch"
	FaultSensorAbsent        FaultKind = "sensor_absent"
	FaultNetworkDisconnected FaultKind = "network_disconnected"
)

// sensorFaultKinds are the kinds cleared by a successful sensor poll.
var sensorFaultKinds = []FaultKind{FaultSensorTimeout, FaultCrcMismatch, FaultSensorAbsent}

// Reading is one validated temperature measurement. Immutable once created;
// superseded by the next reading for the same sensor.
type Reading struct {
	SensorID    string
	Temperature logic.Centidegrees
	At          time.Time
	Valid       bool
}

// Setpoint is the target configuration. Version strictly increases on every
// accepted mutation so readers can detect change.
type Setpoint struct {
	Target   logic.Centidegrees
	HystLow  logic.Centidegrees
	HystHigh logic.Centidegrees
	Mode     logic.Mode
	// ManualDuty is the last accepted manual command, as a duty percentage.
	// 0 is off, 100 is fully on. Only meaningful in manual mode.
	ManualDuty int
	Version    uint64
}

// Actuator is the authoritative heater command.
type Actuator struct {
	On        bool
	Duty      int // duty percentage actually driven; 0 or 100 outside manual
	Cause     logic.Cause
	ChangedAt time.Time
}

// FaultRecord counts consecutive occurrences of one fault kind on one source.
type FaultRecord struct {
	Kind  FaultKind
	Count int
	First time.Time
	Last  time.Time
}

// LinkStatus reports a network adapter's connection state.
type LinkStatus struct {
	Connected bool
	Since     time.Time
}

// Snapshot is a consistent point-in-time copy of the aggregate.
// It is a value type with copied maps, safe to use after the lock is released.
type Snapshot struct {
	Readings       map[string]Reading
	Setpoint       Setpoint
	Actuator       Actuator
	ControlState   logic.State
	Faults         map[string]map[FaultKind]FaultRecord
	Links          map[string]LinkStatus
	FailSafeForced bool
	StartTime      time.Time
	Taken          time.Time
}

// LatestValid returns the most recent valid reading within the staleness
// window, if any.
func (s Snapshot) LatestValid(staleness time.Duration, now time.Time) (Reading, bool) {
	var best Reading
	found := false
	for _, r := range s.Readings {
		if !r.Valid || now.Sub(r.At) > staleness {
			continue
		}
		if !found || r.At.After(best.At) {
			best = r
			found = true
		}
	}
	return best, found
}

// MaxSensorFaults returns the highest consecutive sensor-fault count across
// all sensors and sensor fault kinds.
func (s Snapshot) MaxSensorFaults() int {
	max := 0
	for _, kinds := range s.Faults {
		for kind, rec := range kinds {
			if kind == FaultNetworkDisconnected {
				continue
			}
			if rec.Count > max {
				max = rec.Count
			}
		}
	}
	return max
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Taken.Sub(s.StartTime)
}

// Limits bound the accepted setpoint range.
type Limits struct {
	MinTarget logic.Centidegrees
	MaxTarget logic.Centidegrees
}

// Store is the shared state store. One mutex guards the whole aggregate;
// readers get full snapshots under the same lock, so no reader ever observes
// a half-updated aggregate.
type Store struct {
	mu sync.Mutex

	readings     map[string]Reading
	setpoint     Setpoint
	actuator     Actuator
	controlState logic.State
	faults       map[string]map[FaultKind]FaultRecord
	links        map[string]LinkStatus
	forced       bool // supervisor fail-safe override latch

	limits    Limits
	startTime time.Time
	now       func() time.Time

	subs []chan struct{}
}

// New creates a Store with the given initial setpoint and limits.
// The now function is injectable for tests; nil means time.Now.
func New(initial Setpoint, limits Limits, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	initial.Version = 1
	return &Store{
		readings:     make(map[string]Reading),
		setpoint:     initial,
		actuator:     Actuator{Cause: logic.CauseFailSafe, ChangedAt: now()},
		controlState: logic.StateIdle,
		faults:       make(map[string]map[FaultKind]FaultRecord),
		links:        make(map[string]LinkStatus),
		limits:       limits,
		startTime:    now(),
		now:          now,
	}
}

// Snapshot returns a consistent point-in-time copy of the aggregate.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Readings:       make(map[string]Reading, len(s.readings)),
		Setpoint:       s.setpoint,
		Actuator:       s.actuator,
		ControlState:   s.controlState,
		Faults:         make(map[string]map[FaultKind]FaultRecord, len(s.faults)),
		Links:          make(map[string]LinkStatus, len(s.links)),
		FailSafeForced: s.forced,
		StartTime:      s.startTime,
		Taken:          s.now(),
	}
	for id, r := range s.readings {
		snap.Readings[id] = r
	}
	for id, kinds := range s.faults {
		cp := make(map[FaultKind]FaultRecord, len(kinds))
		for k, rec := range kinds {
			cp[k] = rec
		}
		snap.Faults[id] = cp
	}
	for name, link := range s.links {
		snap.Links[name] = link
	}
	return snap
}

// WriteSetpoint validates and applies a new target temperature and mode.
// The version is bumped only on accepted writes; rejected writes have no
// side effects.
func (s *Store) WriteSetpoint(target logic.Centidegrees, mode logic.Mode) error {
	switch mode {
	case logic.ModeAuto, logic.ModeManual, logic.ModeOff:
	default:
		return fmt.Errorf("mode %q: %w", mode, ErrInvalidMode)
	}
	if target < s.limits.MinTarget || target > s.limits.MaxTarget {
		return fmt.Errorf("target %s outside [%s, %s]: %w",
			target, s.limits.MinTarget, s.limits.MaxTarget, ErrOutOfRange)
	}

	s.mu.Lock()
	s.setpoint.Target = target
	s.setpoint.Mode = mode
	s.setpoint.Version++
	s.mu.Unlock()
	s.notify()
	return nil
}

// WriteManual validates and applies a manual duty command (0..100) and
// switches the controller to manual mode.
func (s *Store) WriteManual(duty int) error {
	if duty < 0 || duty > 100 {
		return fmt.Errorf("duty %d outside [0, 100]: %w", duty, ErrOutOfRange)
	}

	s.mu.Lock()
	s.setpoint.Mode = logic.ModeManual
	s.setpoint.ManualDuty = duty
	s.setpoint.Version++
	s.mu.Unlock()
	s.notify()
	return nil
}

// WriteActuator records a control-loop decision as the authoritative command.
// While the supervisor's fail-safe override is latched, any write whose cause
// is not fail-safe is discarded: the supervisor always wins.
func (s *Store) WriteActuator(dec logic.Decision) {
	s.mu.Lock()
	if s.forced && dec.Cause != logic.CauseFailSafe {
		s.mu.Unlock()
		return
	}

	duty := 0
	if dec.HeaterOn {
		duty = 100
		if dec.Cause == logic.CauseManual {
			duty = s.setpoint.ManualDuty
		}
	}

	changed := s.controlState != dec.State ||
		s.actuator.On != dec.HeaterOn ||
		s.actuator.Duty != duty ||
		s.actuator.Cause != dec.Cause
	s.controlState = dec.State
	if changed {
		s.actuator = Actuator{On: dec.HeaterOn, Duty: duty, Cause: dec.Cause, ChangedAt: s.now()}
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// ForceFailSafe latches the supervisor's fail-safe override: the actuator
// command becomes off with the fail-safe cause, and control-loop writes are
// discarded until ReleaseFailSafe.
func (s *Store) ForceFailSafe() {
	s.mu.Lock()
	already := s.forced
	s.forced = true
	s.controlState = logic.StateFailSafe
	s.actuator = Actuator{On: false, Duty: 0, Cause: logic.CauseFailSafe, ChangedAt: s.now()}
	s.mu.Unlock()
	if !already {
		s.notify()
	}
}

// ReleaseFailSafe clears the supervisor override. The control loop regains
// authority on its next write.
func (s *Store) ReleaseFailSafe() {
	s.mu.Lock()
	was := s.forced
	s.forced = false
	s.mu.Unlock()
	if was {
		s.notify()
	}
}

// RecordReading stores a new valid reading and, in the same critical section,
// resets the sensor's fault records. A snapshot can therefore never pair a
// valid reading with a stale fault record the reading just cleared.
func (s *Store) RecordReading(sensorID string, temp logic.Centidegrees, at time.Time) {
	s.mu.Lock()
	s.readings[sensorID] = Reading{
		SensorID:    sensorID,
		Temperature: temp,
		At:          at,
		Valid:       true,
	}
	if kinds, ok := s.faults[sensorID]; ok {
		for _, k := range sensorFaultKinds {
			delete(kinds, k)
		}
	}
	s.mu.Unlock()
	s.notify()
}

// RecordFault increments the consecutive-occurrence counter for one fault
// kind on one source and returns the new count.
func (s *Store) RecordFault(sourceID string, kind FaultKind) int {
	s.mu.Lock()
	kinds, ok := s.faults[sourceID]
	if !ok {
		kinds = make(map[FaultKind]FaultRecord)
		s.faults[sourceID] = kinds
	}
	rec, ok := kinds[kind]
	now := s.now()
	if !ok {
		rec = FaultRecord{Kind: kind, First: now}
	}
	rec.Count++
	rec.Last = now
	kinds[kind] = rec
	count := rec.Count
	s.mu.Unlock()
	s.notify()
	return count
}

// ClearFault resets one fault record after a successful operation of the
// same kind.
func (s *Store) ClearFault(sourceID string, kind FaultKind) {
	s.mu.Lock()
	changed := false
	if kinds, ok := s.faults[sourceID]; ok {
		if _, ok := kinds[kind]; ok {
			delete(kinds, kind)
			changed = true
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// SetLink records a network adapter's connection state.
func (s *Store) SetLink(name string, connected bool) {
	s.mu.Lock()
	prev, ok := s.links[name]
	changed := !ok || prev.Connected != connected
	if changed {
		s.links[name] = LinkStatus{Connected: connected, Since: s.now()}
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Subscribe returns a channel that receives an edge-triggered wake after the
// aggregate changes. Wakes are coalesced: at least one notification arrives
// after the last observed state differs from current state, but not one per
// mutation. Subscribers must drain and re-read a snapshot.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// notify wakes all subscribers without blocking. Called outside mutations'
// hot path but after the critical section has completed, so a woken reader
// always observes the new state.
func (s *Store) notify() {
	s.mu.Lock()
	subs := s.subs
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default: // a wake is already pending; coalesce
		}
	}
}
