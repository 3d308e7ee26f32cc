//go:build !cgo || nortmidi

package midirtmidi

import (
	"fmt"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

// NewMIDIClient reports that this build carries no RtMidi support.
func NewMIDIClient(options *contracts.ClientOptions) (contracts.Transport, error) {
	options.Logger.Warn("RtMidi requested in a build without cgo")
	return nil, fmt.Errorf("%w: %s requires cgo", contracts.ErrUnsupportedBackend, BackendName)
}
