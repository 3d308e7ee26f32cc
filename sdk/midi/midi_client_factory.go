package midi

import (
	"fmt"
	"runtime"
	"slices"
	"sync"

	"github.com/leandrodaf/midiport/internal/midi/mididarwin"
	"github.com/leandrodaf/midiport/internal/midi/midiportmidi"
	"github.com/leandrodaf/midiport/internal/midi/midirtmidi"
	"github.com/leandrodaf/midiport/internal/midi/midivirtual"
	"github.com/leandrodaf/midiport/internal/midi/midiwindows"
	"github.com/leandrodaf/midiport/sdk/contracts"
	"go.uber.org/multierr"
)

type initializer func(*contracts.ClientOptions) (contracts.Transport, error)

// backendInitializers maps backend names to transport initializers.
var backendInitializers = map[string]initializer{
	mididarwin.BackendName:   mididarwin.NewMIDIClient,   // macOS CoreMIDI.
	midiwindows.BackendName:  midiwindows.NewMIDIClient,  // Windows Multimedia API.
	midirtmidi.BackendName:   midirtmidi.NewMIDIClient,   // RtMidi through gomidi (cgo).
	midiportmidi.BackendName: midiportmidi.NewMIDIClient, // PortMidi (portmidi build tag).
	midivirtual.BackendName:  midivirtual.NewMIDIClient,  // In-process devices.
}

// platformDefaults maps OS names to the backend used when none is configured.
var platformDefaults = map[string]string{
	"darwin":  mididarwin.BackendName,
	"windows": midiwindows.BackendName,
}

// Native clients are created once per process and shared by every session.
// A failed initialization is not remembered, so a later call retries it.
var (
	transportsMu sync.Mutex
	transports   = map[string]contracts.Transport{}
)

// Backends lists the backend names NewMIDIClient accepts.
func Backends() []string {
	names := make([]string, 0, len(backendInitializers))
	for name := range backendInitializers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultBackend returns the backend used on goos when none is configured.
func DefaultBackend(goos string) string {
	if name, ok := platformDefaults[goos]; ok {
		return name
	}
	return midirtmidi.BackendName
}

// NewTransport returns the transport for opts. An injected transport wins;
// otherwise the named backend, or the platform default, is initialized on
// first use and reused afterwards.
func NewTransport(opts *contracts.ClientOptions) (contracts.Transport, error) {
	if opts.Transport != nil {
		return opts.Transport, nil
	}

	name := opts.Backend
	if name == "" {
		name = DefaultBackend(runtime.GOOS)
	}
	newTransport, ok := backendInitializers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", contracts.ErrUnsupportedBackend, name, Backends())
	}

	transportsMu.Lock()
	defer transportsMu.Unlock()

	if t, ok := transports[name]; ok {
		return t, nil
	}
	t, err := newTransport(opts)
	if err != nil {
		return nil, err
	}
	transports[name] = t
	opts.Logger.Debug("MIDI backend initialized", opts.Logger.Field().String("backend", name))
	return t, nil
}

// Shutdown closes every shared transport. Sessions must be stopped first.
func Shutdown() error {
	transportsMu.Lock()
	defer transportsMu.Unlock()

	var err error
	for name, t := range transports {
		err = multierr.Append(err, t.Close())
		delete(transports, name)
	}
	return err
}
