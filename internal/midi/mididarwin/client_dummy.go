//go:build !darwin
// +build !darwin

package mididarwin

import (
	"fmt"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

// BackendName is the name used to select this backend.
const BackendName = "coremidi"

// NewMIDIClient reports that CoreMIDI is unavailable on this platform.
func NewMIDIClient(options *contracts.ClientOptions) (contracts.Transport, error) {
	options.Logger.Warn("CoreMIDI requested on a non-macOS system")
	return nil, fmt.Errorf("%w: %s requires macOS", contracts.ErrUnsupportedBackend, BackendName)
}
