// Package session drives port enumeration, selection and event delivery as
// a single state machine.
package session

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/leandrodaf/midiport/internal/decoder"
	"github.com/leandrodaf/midiport/internal/logger"
	"github.com/leandrodaf/midiport/internal/registry"
	"github.com/leandrodaf/midiport/internal/sink"
	"github.com/leandrodaf/midiport/sdk/contracts"
)

// Session implements contracts.ClientMIDI.
//
// Control calls (Enumerate, Select, Close, Stop) are serialized and may
// block on driver I/O. Received messages are decoded on the driver's
// goroutine and buffered until drained by one consumer.
type Session struct {
	mu       sync.Mutex
	state    atomic.Int32
	stopped  bool
	registry *registry.Registry
	sink     *sink.Sink
	filter   *contracts.MIDIEventFilter
	ignore   contracts.IgnoreTypes
	listener contracts.StateListener
	logger   contracts.Logger
	backend  string
}

var _ contracts.ClientMIDI = (*Session)(nil)

// New creates an idle session on transport. Zero-valued options fall back
// to their defaults.
func New(transport contracts.Transport, opts contracts.ClientOptions) *Session {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	ignore := contracts.DefaultIgnoreTypes
	if opts.IgnoreTypes != nil {
		ignore = *opts.IgnoreTypes
	}

	s := &Session{
		registry: registry.New(transport, log),
		sink:     sink.New(opts.SinkCapacity, opts.OverflowPolicy),
		filter:   opts.MIDIEventFilter,
		ignore:   ignore,
		listener: opts.StateListener,
		logger:   log,
		backend:  transport.Name(),
	}
	s.state.Store(int32(contracts.StateIdle))
	return s
}

// State returns the current state.
func (s *Session) State() contracts.SessionState {
	return contracts.SessionState(s.state.Load())
}

func (s *Session) transition(to contracts.SessionState) {
	from := contracts.SessionState(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	s.logger.Debug("Session state changed",
		s.logger.Field().String("from", from.String()),
		s.logger.Field().String("to", to.String()))
	if s.listener != nil {
		s.listener(from, to)
	}
}

// Enumerate refreshes the port list. While a port is open the driver is
// not queried and the current list is returned.
func (s *Session) Enumerate() ([]contracts.PortEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return entries(s.registry.Snapshot()), contracts.ErrSessionStopped
	}
	if s.State() == contracts.StateOpen {
		s.logger.Debug("Port open; returning current port list")
		return entries(s.registry.Snapshot()), nil
	}

	s.transition(contracts.StateEnumerating)
	snap, err := s.registry.Refresh()
	s.transition(contracts.StateIdle)

	if err == nil {
		s.logger.Info("MIDI ports enumerated",
			s.logger.Field().String("backend", s.backend),
			s.logger.Field().Int("count", len(snap.Ports)))
	}
	return entries(snap), err
}

func entries(snap registry.Snapshot) []contracts.PortEntry {
	out := make([]contracts.PortEntry, 0, len(snap.Ports)+1)
	out = append(out, contracts.PortEntry{Index: contracts.NoneIndex, DisplayName: contracts.NoneName})
	for i, p := range snap.Ports {
		out = append(out, contracts.PortEntry{Index: i + 1, ID: p.ID, DisplayName: p.DisplayName})
	}
	return out
}

// Select opens the port at index, closing any open port first. Index 0
// closes the open port. An invalid index leaves the session unchanged; a
// port that fails to open leaves the session idle.
func (s *Session) Select(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return contracts.ErrSessionStopped
	}
	if n := len(s.registry.Snapshot().Ports); index < contracts.NoneIndex || index > n {
		return fmt.Errorf("%w: index %d, %d ports available", contracts.ErrInvalidSelection, index, n)
	}
	if index == contracts.NoneIndex {
		return s.closeLocked()
	}
	return s.openLocked(func() (*registry.Handle, error) {
		return s.registry.Open(index, s.receive)
	})
}

// SelectByName opens the port whose display name is name in the current list.
func (s *Session) SelectByName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return contracts.ErrSessionStopped
	}
	if s.registry.IndexOf(name) == contracts.NoneIndex {
		return fmt.Errorf("%w: no port named %q", contracts.ErrPortUnavailable, name)
	}
	return s.openLocked(func() (*registry.Handle, error) {
		return s.registry.OpenByName(name, s.receive)
	})
}

func (s *Session) openLocked(open func() (*registry.Handle, error)) error {
	if s.State() == contracts.StateOpen {
		s.transition(contracts.StateClosing)
	}

	h, err := open()
	if err != nil {
		s.transition(contracts.StateIdle)
		return err
	}

	s.transition(contracts.StateOpen)
	s.logger.Info("MIDI port selected",
		s.logger.Field().Int("index", h.Index),
		s.logger.Field().String("port", h.Port.DisplayName))
	return nil
}

// Close closes the open port. It is a no-op when no port is open.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.registry.Current() == nil {
		return nil
	}

	s.transition(contracts.StateClosing)
	err := s.registry.Close()
	s.transition(contracts.StateIdle)

	if dropped := s.sink.Dropped(); dropped > 0 {
		s.logger.Warn("MIDI events were dropped on overflow",
			s.logger.Field().Uint64("dropped", dropped),
			s.logger.Field().Int("capacity", s.sink.Cap()))
	}
	return err
}

// Stop closes the open port and rejects further control calls. Events
// still buffered can be drained.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	err := s.closeLocked()
	s.stopped = true
	s.logger.Info("MIDI session stopped")
	return err
}

// Selected returns the descriptor of the open port.
func (s *Session) Selected() (contracts.PortDescriptor, bool) {
	h := s.registry.Current()
	if h == nil {
		return contracts.PortDescriptor{}, false
	}
	return h.Port, true
}

// receive runs on the driver goroutine. It must not block or log.
func (s *Session) receive(timestamp float64, data []byte) {
	if decoder.Ignored(data, s.ignore) {
		return
	}
	if !s.filter.Allows(decoder.Command(data)) {
		return
	}
	s.sink.Push(decoder.Decode(timestamp, data))
}

// Drain yields the events received since the previous drain.
func (s *Session) Drain() iter.Seq[contracts.MIDIEvent] {
	return s.sink.Drain()
}

// Notify signals that events are waiting.
func (s *Session) Notify() <-chan struct{} {
	return s.sink.Notify()
}

// Dropped returns how many events overflowed the buffer.
func (s *Session) Dropped() uint64 {
	return s.sink.Dropped()
}

// Events delivers events on a channel until ctx is done. The session has a
// single consumer: use either Events or Drain, not both.
func (s *Session) Events(ctx context.Context) <-chan contracts.MIDIEvent {
	out := make(chan contracts.MIDIEvent, 64)
	go func() {
		defer close(out)
		for {
			for ev := range s.sink.Drain() {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-s.sink.Notify():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
