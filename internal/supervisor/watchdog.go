package supervisor

import "sync"

// Watchdog is the hardware watchdog boundary. It is petted only while every
// monitored task is live; a missed pet resets the device.
type Watchdog interface {
	// Pet services the watchdog, postponing the hardware reset.
	Pet() error

	// Close disarms the watchdog and releases the device.
	Close() error
}

// FakeWatchdog records pets for test assertions. Safe for concurrent use.
type FakeWatchdog struct {
	mu sync.Mutex

	pets   int
	closed bool

	// PetError, if set, is returned by Pet.
	PetError error
}

// NewFakeWatchdog creates a FakeWatchdog for testing.
func NewFakeWatchdog() *FakeWatchdog {
	return &FakeWatchdog{}
}

// Pet records one service of the watchdog.
func (f *FakeWatchdog) Pet() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PetError != nil {
		return f.PetError
	}
	f.pets++
	return nil
}

// Pets returns the number of times Pet was called.
func (f *FakeWatchdog) Pets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pets
}

// Close marks the watchdog as closed.
func (f *FakeWatchdog) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeWatchdog) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
