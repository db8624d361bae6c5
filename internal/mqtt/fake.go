package mqtt

import "sync"

// FakePublisher records published state payloads for test assertions.
// Safe for concurrent use so tests can drive a Pump in a goroutine.
type FakePublisher struct {
	mu sync.Mutex

	payloads  [][]byte
	connected bool
	closed    bool

	// PublishError, if set, is returned by PublishState.
	PublishError error
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{connected: true}
}

// PublishState records the payload.
func (f *FakePublisher) PublishState(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

// States returns a copy of the recorded payloads.
func (f *FakePublisher) States() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.payloads))
	copy(out, f.payloads)
	return out
}

// SetConnected controls the value returned by IsConnected.
func (f *FakePublisher) SetConnected(connected bool) {
	f.mu.Lock()
	f.connected = connected
	f.mu.Unlock()
}

// IsConnected reports the fake connection state.
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded payloads.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	f.payloads = nil
	f.closed = false
	f.PublishError = nil
	f.mu.Unlock()
}
