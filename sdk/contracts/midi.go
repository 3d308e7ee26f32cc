package contracts

import (
	"context"
	"iter"
)

// MIDIEvent is a received MIDI message.
type MIDIEvent struct {
	Time float64 `json:"time"` // Seconds on the port's monotonic clock.
	Data string  `json:"data"` // Two lowercase hex digits per byte.
	Raw  []byte  `json:"-"`    // Private copy of the received bytes.
}

// SessionState is the state of a MIDI session.
type SessionState int32

const (
	// StateIdle means no port is open.
	StateIdle SessionState = iota
	// StateEnumerating means a port refresh is in progress.
	StateEnumerating
	// StateOpen means a port is open and delivering events.
	StateOpen
	// StateClosing means the open port is being released.
	StateClosing
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEnumerating:
		return "enumerating"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// StateListener observes session transitions. It is called synchronously on
// the control goroutine.
type StateListener func(from, to SessionState)

// ClientMIDI is the boundary consumed by presentation layers.
type ClientMIDI interface {
	// Enumerate refreshes the port list and returns it with the synthetic
	// NONE entry first. On failure the previous list is returned with the error.
	Enumerate() ([]PortEntry, error)
	// Select opens the port at index (1-based), or closes the current port
	// for index 0.
	Select(index int) error
	// SelectByName opens the port whose display name matches name.
	SelectByName(name string) error
	// Close closes the current port. Calling it repeatedly is a no-op.
	Close() error
	// Stop closes the current port and rejects further control calls.
	Stop() error

	State() SessionState
	Selected() (PortDescriptor, bool)

	// Drain yields the events received since the previous drain, in arrival order.
	Drain() iter.Seq[MIDIEvent]
	// Notify signals, coalesced, that events are waiting to be drained.
	Notify() <-chan struct{}
	// Events pushes drained events to the returned channel until ctx is done.
	Events(ctx context.Context) <-chan MIDIEvent
	// Dropped returns how many events overflowed the event buffer.
	Dropped() uint64
}
