package midiportmidi

import "github.com/leandrodaf/midiport/sdk/contracts"

// BackendName is the name used to select this backend.
const BackendName = "portmidi"

// readErrors logs the first error of a streak of failed reads and, once
// reads succeed again, how many failed.
type readErrors struct {
	count uint64
}

func (r *readErrors) failed(logger contracts.Logger, err error) {
	if r.count == 0 {
		logger.Warn("PortMidi read failed", logger.Field().Error("error", err))
	}
	r.count++
}

func (r *readErrors) succeeded(logger contracts.Logger) {
	if r.count == 0 {
		return
	}
	logger.Info("PortMidi reads recovered", logger.Field().Uint64("failedReads", r.count))
	r.count = 0
}
