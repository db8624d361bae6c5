// Package supervisor tracks task liveness, services the hardware watchdog,
// and escalates cross-cutting faults into the store's fail-safe override.
// The watchdog is petted only when every registered task has reported
// progress within its window, so a stalled task resets the device.
package supervisor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/abreis/heater-control/internal/memlog"
	"github.com/abreis/heater-control/internal/state"
)

// Supervisor monitors registered tasks and the fault counters in the store.
type Supervisor struct {
	store *state.Store
	log   *memlog.Log
	wd    Watchdog

	// Sensor fault counts above this force the fail-safe override.
	faultThreshold int
	// All network links down for longer than this force the override.
	netGrace time.Duration

	now func() time.Time

	mu      sync.Mutex
	tasks   map[string]*task
	stalled bool // last step saw a stalled task
	forced  bool // override is currently held
}

type task struct {
	window time.Duration
	last   time.Time
}

// New creates a Supervisor. The now function is injectable for tests; nil
// means time.Now.
func New(store *state.Store, log *memlog.Log, wd Watchdog, faultThreshold int, netGrace time.Duration, now func() time.Time) *Supervisor {
	if now == nil {
		now = time.Now
	}
	return &Supervisor{
		store:          store,
		log:            log,
		wd:             wd,
		faultThreshold: faultThreshold,
		netGrace:       netGrace,
		now:            now,
		tasks:          make(map[string]*task),
	}
}

// Register adds a task to the liveness registry and returns its check-in
// handle. The task must call the handle at least once per window or the
// watchdog stops being serviced. Register before Run; the task counts as
// live at registration.
func (s *Supervisor) Register(name string, window time.Duration) func() {
	s.mu.Lock()
	t := &task{window: window, last: s.now()}
	s.tasks[name] = t
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		t.last = s.now()
		s.mu.Unlock()
	}
}

// Run supervises until ctx is cancelled. tick is injectable for tests; pass
// time.Tick for production use.
func (s *Supervisor) Run(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.Step()
		}
	}
}

// Step performs one supervision pass: service the watchdog if every task is
// live, then reconcile the fail-safe override with the current fault state.
func (s *Supervisor) Step() {
	now := s.now()

	stalled := s.stalledTasks(now)
	s.mu.Lock()
	wasStalled := s.stalled
	s.stalled = len(stalled) > 0
	s.mu.Unlock()

	if len(stalled) == 0 {
		if err := s.wd.Pet(); err != nil {
			s.log.Warnf("supervisor: pet watchdog: %v", err)
		}
		if wasStalled {
			s.log.Infof("supervisor: all tasks live again")
		}
	} else if !wasStalled {
		s.log.Errorf("supervisor: stalled tasks %v, withholding watchdog", stalled)
	}

	snap := s.store.Snapshot()
	reason := s.escalation(snap, now)

	s.mu.Lock()
	wasForced := s.forced
	s.forced = reason != ""
	s.mu.Unlock()

	if reason != "" {
		// Latch on every pass; the override beats concurrent control writes.
		s.store.ForceFailSafe()
		if !wasForced {
			s.log.Errorf("supervisor: forcing fail-safe: %s", reason)
		}
	} else if wasForced {
		s.store.ReleaseFailSafe()
		s.log.Infof("supervisor: fail-safe released")
	}
}

func (s *Supervisor) stalledTasks(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stalled []string
	for name, t := range s.tasks {
		if now.Sub(t.last) > t.window {
			stalled = append(stalled, name)
		}
	}
	sort.Strings(stalled)
	return stalled
}

// escalation returns a non-empty reason when the fail-safe override must be
// held: any sensor's fault counter over the threshold, or every network
// adapter disconnected beyond the grace period.
func (s *Supervisor) escalation(snap state.Snapshot, now time.Time) string {
	if snap.MaxSensorFaults() > s.faultThreshold {
		return "sensor fault count over threshold"
	}

	if len(snap.Links) > 0 {
		allDown := true
		for _, link := range snap.Links {
			if link.Connected || now.Sub(link.Since) < s.netGrace {
				allDown = false
				break
			}
		}
		if allDown {
			return "all network adapters disconnected"
		}
	}
	return ""
}
