//go:build !windows
// +build !windows

package midiwindows

import (
	"fmt"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

// BackendName is the name used to select this backend.
const BackendName = "winmm"

// NewMIDIClient reports that WinMM is unavailable on this platform.
func NewMIDIClient(options *contracts.ClientOptions) (contracts.Transport, error) {
	options.Logger.Warn("WinMM requested on a non-Windows system")
	return nil, fmt.Errorf("%w: %s requires Windows", contracts.ErrUnsupportedBackend, BackendName)
}
