//go:build !portmidi

package midiportmidi

import (
	"fmt"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

// NewMIDIClient reports that this build carries no PortMidi support.
// Build with -tags portmidi and libportmidi installed to enable it.
func NewMIDIClient(options *contracts.ClientOptions) (contracts.Transport, error) {
	options.Logger.Warn("PortMidi requested in a build without the portmidi tag")
	return nil, fmt.Errorf("%w: %s requires the portmidi build tag", contracts.ErrUnsupportedBackend, BackendName)
}
