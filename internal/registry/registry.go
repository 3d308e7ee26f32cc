// Package registry tracks the enumerated MIDI input ports and the single
// port that may be open at a time.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/leandrodaf/midiport/internal/midi/portset"
	"github.com/leandrodaf/midiport/sdk/contracts"
)

// None is the selection index meaning "no port".
const None = contracts.NoneIndex

// Snapshot is the result of one enumeration.
type Snapshot struct {
	Ports      []contracts.PortDescriptor
	Generation uint64 // Incremented by every successful refresh.
	TakenAt    time.Time
}

// Handle is the exclusive ownership of an open port.
type Handle struct {
	ID         uuid.UUID
	Index      int // Selection index, 1-based.
	Port       contracts.PortDescriptor
	Generation uint64 // Snapshot the port was selected from.
	OpenedAt   time.Time

	token contracts.PortToken
	gate  *portset.Gate
}

// Closed reports whether the handle has been released.
func (h *Handle) Closed() bool {
	return h.gate.Closed()
}

// Registry holds the latest snapshot and the open handle. Control calls are
// serialized; Snapshot may be read from any goroutine.
type Registry struct {
	mu        sync.Mutex
	transport contracts.Transport
	logger    contracts.Logger
	snapshot  atomic.Pointer[Snapshot]
	current   *Handle
}

// New creates a registry with an empty snapshot.
func New(transport contracts.Transport, logger contracts.Logger) *Registry {
	r := &Registry{transport: transport, logger: logger}
	r.snapshot.Store(&Snapshot{})
	return r
}

// Snapshot returns a copy of the latest snapshot.
func (r *Registry) Snapshot() Snapshot {
	s := r.snapshot.Load()
	return Snapshot{Ports: slices.Clone(s.Ports), Generation: s.Generation, TakenAt: s.TakenAt}
}

// Refresh replaces the snapshot with a fresh enumeration. On failure the
// previous snapshot is kept and returned together with the error.
func (r *Registry) Refresh() (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.snapshot.Load()
	ports, err := r.transport.ListPorts()
	if err != nil {
		if !errors.Is(err, contracts.ErrDeviceEnumeration) {
			err = fmt.Errorf("%w: %v", contracts.ErrDeviceEnumeration, err)
		}
		r.logger.Warn("Port refresh failed; keeping previous list",
			r.logger.Field().Error("error", err),
			r.logger.Field().Uint64("generation", prev.Generation))
		return r.Snapshot(), err
	}

	next := &Snapshot{
		Ports:      slices.Clone(ports),
		Generation: prev.Generation + 1,
		TakenAt:    time.Now(),
	}
	r.snapshot.Store(next)
	r.logger.Debug("Ports refreshed",
		r.logger.Field().Int("count", len(ports)),
		r.logger.Field().Uint64("generation", next.Generation))
	return r.Snapshot(), nil
}

// Open closes the current handle, if any, and opens the port at index
// (1-based) of the snapshot. Index None only closes. An out-of-range index
// fails with ErrInvalidSelection before anything is closed.
func (r *Registry) Open(index int, onReceive contracts.ReceiveFunc) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.snapshot.Load()
	if index < None || index > len(snap.Ports) {
		return nil, fmt.Errorf("%w: index %d, %d ports available", contracts.ErrInvalidSelection, index, len(snap.Ports))
	}

	if err := r.closeLocked(); err != nil {
		return nil, err
	}
	if index == None {
		return nil, nil
	}
	return r.openLocked(snap, index, onReceive)
}

// OpenByName opens the first port in the snapshot whose display name is name.
func (r *Registry) OpenByName(name string, onReceive contracts.ReceiveFunc) (*Handle, error) {
	index := r.IndexOf(name)
	if index == None {
		return nil, fmt.Errorf("%w: no port named %q", contracts.ErrPortUnavailable, name)
	}
	return r.Open(index, onReceive)
}

// IndexOf returns the selection index of the port called name, or None.
func (r *Registry) IndexOf(name string) int {
	snap := r.snapshot.Load()
	i := slices.IndexFunc(snap.Ports, func(p contracts.PortDescriptor) bool {
		return p.DisplayName == name
	})
	return i + 1
}

func (r *Registry) openLocked(snap *Snapshot, index int, onReceive contracts.ReceiveFunc) (*Handle, error) {
	h := &Handle{
		ID:         uuid.New(),
		Index:      index,
		Port:       snap.Ports[index-1],
		Generation: snap.Generation,
		OpenedAt:   time.Now(),
		gate:       portset.NewGate(onReceive),
	}

	token, err := r.transport.OpenPort(h.Port.ID, func(ts float64, data []byte) {
		h.gate.Deliver(ts, data)
	})
	if err != nil {
		h.gate.Shut()
		if !errors.Is(err, contracts.ErrPortBusy) && !errors.Is(err, contracts.ErrPortUnavailable) {
			err = fmt.Errorf("%w: %v", contracts.ErrPortUnavailable, err)
		}
		r.logger.Error("Failed to open MIDI port",
			r.logger.Field().String("port", h.Port.DisplayName),
			r.logger.Field().Error("error", err))
		return nil, err
	}
	h.token = token
	r.current = h

	r.logger.Info("MIDI port opened",
		r.logger.Field().String("port", h.Port.DisplayName),
		r.logger.Field().String("handle", h.ID.String()))
	return h, nil
}

// Close releases the open handle. It is a no-op when nothing is open.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

// closeLocked drops the current handle even when the transport reports an
// error, since its gate no longer delivers anything.
func (r *Registry) closeLocked() error {
	h := r.current
	if h == nil {
		return nil
	}
	r.current = nil
	h.gate.Shut()

	if err := r.transport.ClosePort(h.token); err != nil {
		r.logger.Warn("MIDI port did not close cleanly",
			r.logger.Field().String("port", h.Port.DisplayName),
			r.logger.Field().Error("error", err))
		return fmt.Errorf("closing %s: %w", h.Port.DisplayName, err)
	}
	r.logger.Info("MIDI port closed", r.logger.Field().String("port", h.Port.DisplayName))
	return nil
}

// Current returns the open handle, or nil.
func (r *Registry) Current() *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}
