package contracts

import "errors"

var (
	// ErrDeviceEnumeration is returned when the MIDI subsystem cannot be queried.
	ErrDeviceEnumeration = errors.New("MIDI device enumeration failed")
	// ErrPortUnavailable is returned when a port id no longer exists.
	ErrPortUnavailable = errors.New("MIDI port unavailable")
	// ErrPortBusy is returned when a port is exclusively held elsewhere.
	ErrPortBusy = errors.New("MIDI port busy")
	// ErrInvalidSelection is returned for selection indexes outside the port list.
	ErrInvalidSelection = errors.New("invalid MIDI port selection")
	// ErrDecode is reserved; decoding is total and never returns it.
	ErrDecode = errors.New("MIDI decode error")
	// ErrUnsupportedBackend is returned when no transport exists for the requested backend.
	ErrUnsupportedBackend = errors.New("unsupported MIDI backend")
	// ErrSessionStopped is returned by control calls made after Stop.
	ErrSessionStopped = errors.New("MIDI session stopped")
)
