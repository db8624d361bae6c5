package heater

import "sync"

// FakeActuator records every level driven, for test assertions.
type FakeActuator struct {
	mu sync.Mutex

	// Levels contains every value passed to Set, in order.
	Levels []bool

	// SetErr, if set, will be returned by Set.
	SetErr error

	// Closed tracks if Close was called.
	Closed bool

	on bool
}

// NewFakeActuator creates a FakeActuator, initially off.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// Set records the driven level.
func (f *FakeActuator) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetErr != nil {
		return f.SetErr
	}
	f.Levels = append(f.Levels, on)
	f.on = on
	return nil
}

// On reports the last driven level.
func (f *FakeActuator) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// Close marks the actuator as closed and the element off.
func (f *FakeActuator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	f.on = false
	return nil
}
