package onewire

// FakeBus is a test double that replays scripted bus transactions.
// Each Reset consumes the next presence value; each Read Scratchpad command
// loads the next scripted frame into the read queue.
type FakeBus struct {
	// Presence contains scripted presence-pulse results, one per Reset.
	// When exhausted, the last value repeats.
	Presence []bool

	// Scratchpads contains scripted 9-byte frames, one per Read Scratchpad
	// command observed on the bus.
	Scratchpads [][]byte

	// ResetErr, WriteErr, and ReadErr, if set, are returned by the
	// corresponding operations.
	ResetErr error
	WriteErr error
	ReadErr  error

	// Writes records every byte written to the bus.
	Writes []byte

	// Resets counts Reset calls.
	Resets int

	// Closed tracks if Close was called.
	Closed bool

	presenceIdx int
	padIdx      int
	readQueue   []byte
}

// NewFakeBus creates a FakeBus that always reports presence and serves the
// given scratchpad frames in order.
func NewFakeBus(scratchpads ...[]byte) *FakeBus {
	return &FakeBus{Presence: []bool{true}, Scratchpads: scratchpads}
}

// Reset consumes the next scripted presence result.
func (f *FakeBus) Reset() (bool, error) {
	if f.ResetErr != nil {
		return false, f.ResetErr
	}
	f.Resets++
	if len(f.Presence) == 0 {
		return false, nil
	}
	p := f.Presence[f.presenceIdx]
	if f.presenceIdx < len(f.Presence)-1 {
		f.presenceIdx++
	}
	return p, nil
}

// WriteByte records the byte. A Read Scratchpad command queues the next
// scripted frame for reading.
func (f *FakeBus) WriteByte(b byte) error {
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.Writes = append(f.Writes, b)
	if b == cmdReadScratchpad && f.padIdx < len(f.Scratchpads) {
		f.readQueue = append([]byte(nil), f.Scratchpads[f.padIdx]...)
		f.padIdx++
	}
	return nil
}

// ReadByte serves the queued scratchpad frame. Reading past the frame
// returns 0xFF, matching an idle bus.
func (f *FakeBus) ReadByte() (byte, error) {
	if f.ReadErr != nil {
		return 0, f.ReadErr
	}
	if len(f.readQueue) == 0 {
		return 0xFF, nil
	}
	b := f.readQueue[0]
	f.readQueue = f.readQueue[1:]
	return b, nil
}

// Close marks the bus as closed.
func (f *FakeBus) Close() error {
	f.Closed = true
	return nil
}
