package mqtt

import "log"

// stateBuffer is a fixed-capacity FIFO holding state payloads produced while
// the broker link is down, replayed in order after reconnection. Only the
// newest payloads are kept when full. Not safe for concurrent use; the
// client synchronizes.
type stateBuffer struct {
	buf      [][]byte
	capacity int
	head     int // next write position
	count    int
	dropped  bool // true if any payload was dropped since last drain
}

func newStateBuffer(capacity int) *stateBuffer {
	return &stateBuffer{
		buf:      make([][]byte, capacity),
		capacity: capacity,
	}
}

func (s *stateBuffer) push(payload []byte) {
	if s.count == s.capacity {
		if !s.dropped {
			log.Printf("mqtt: offline buffer full (%d payloads), dropping oldest", s.capacity)
			s.dropped = true
		}
		// Overwrite oldest: head already points at it.
		s.buf[s.head] = payload
		s.head = (s.head + 1) % s.capacity
		return
	}
	s.buf[s.head] = payload
	s.head = (s.head + 1) % s.capacity
	s.count++
}

func (s *stateBuffer) drain() [][]byte {
	if s.count == 0 {
		return nil
	}

	out := make([][]byte, s.count)
	start := (s.head - s.count + s.capacity) % s.capacity
	for i := 0; i < s.count; i++ {
		out[i] = s.buf[(start+i)%s.capacity]
	}

	s.buf = make([][]byte, s.capacity)
	s.count = 0
	s.head = 0
	s.dropped = false
	return out
}

func (s *stateBuffer) len() int {
	return s.count
}
