package midi

import (
	"github.com/leandrodaf/midiport/internal/session"
	"github.com/leandrodaf/midiport/sdk/contracts"
)

// NewMIDIClient creates a MIDI session with the specified options.
// It applies default options, binds the configured transport backend and
// returns an idle session.
//
// opts ...contracts.Option: A variadic list of option functions to customize the client configuration.
//
// Returns:
//   - contracts.ClientMIDI: An idle MIDI session.
//   - error: ErrUnsupportedBackend, or the backend's initialization error.
func NewMIDIClient(opts ...contracts.Option) (contracts.ClientMIDI, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}

	transport, err := NewTransport(&options)
	if err != nil {
		return nil, err
	}

	return session.New(transport, options), nil
}
