// Package sink buffers received events between a driver callback and a
// single consumer.
package sink

import (
	"iter"
	"sync"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 1024

// Sink is a fixed-capacity FIFO of events. Push never waits for the
// consumer: when the buffer is full the overflow policy discards either the
// oldest buffered event or the arriving one.
type Sink struct {
	mu      sync.Mutex
	buf     []contracts.MIDIEvent
	head    int // Index of the oldest event.
	n       int // Number of buffered events.
	dropped uint64
	policy  contracts.OverflowPolicy
	notify  chan struct{}
}

// New allocates a sink holding up to capacity events.
func New(capacity int, policy contracts.OverflowPolicy) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Sink{
		buf:    make([]contracts.MIDIEvent, capacity),
		policy: policy,
		notify: make(chan struct{}, 1),
	}
}

// Push appends ev. It reports false when an event had to be discarded.
func (s *Sink) Push(ev contracts.MIDIEvent) bool {
	s.mu.Lock()
	kept := true
	switch {
	case s.n < len(s.buf):
		s.buf[(s.head+s.n)%len(s.buf)] = ev
		s.n++
	case s.policy == contracts.DropNewest:
		s.dropped++
		kept = false
	default:
		s.buf[s.head] = ev
		s.head = (s.head + 1) % len(s.buf)
		s.dropped++
		kept = false
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return kept
}

// pop removes the oldest event.
func (s *Sink) pop() (contracts.MIDIEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n == 0 {
		return contracts.MIDIEvent{}, false
	}
	ev := s.buf[s.head]
	s.buf[s.head] = contracts.MIDIEvent{}
	s.head = (s.head + 1) % len(s.buf)
	s.n--
	return ev, true
}

// Drain yields buffered events oldest first, removing each as it is
// yielded. Iteration stops after as many events as were buffered when it
// started, so a fast producer cannot keep it running forever. Events the
// consumer does not reach stay buffered for the next drain.
func (s *Sink) Drain() iter.Seq[contracts.MIDIEvent] {
	return func(yield func(contracts.MIDIEvent) bool) {
		for budget := s.Len(); budget > 0; budget-- {
			ev, ok := s.pop()
			if !ok || !yield(ev) {
				return
			}
		}
	}
}

// Notify returns a channel that receives a value after pushes. Signals
// coalesce: one receive may stand for many events.
func (s *Sink) Notify() <-chan struct{} {
	return s.notify
}

// Len returns the number of buffered events.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Cap returns the capacity.
func (s *Sink) Cap() int {
	return len(s.buf)
}

// Dropped returns how many events were discarded on overflow.
func (s *Sink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Reset discards every buffered event.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.buf)
	s.head, s.n = 0, 0
}
