package midirtmidi

import "strings"

// BackendName is the name used to select this backend.
const BackendName = "rtmidi"

// SanitizePortName strips the port location RtMidi appends to device
// names, e.g. "USB MIDI 1 20:0" on ALSA or "USB MIDI 1 1" on WinMM, so
// that names stay stable when a device moves to another client or slot.
func SanitizePortName(name string) string {
	i := strings.LastIndexByte(name, ' ')
	if i <= 0 {
		return name
	}
	suffix := name[i+1:]
	if suffix == "" {
		return name
	}
	for _, r := range suffix {
		if (r < '0' || r > '9') && r != ':' {
			return name
		}
	}
	return strings.TrimRight(name[:i], " ")
}

// displayName applies SanitizePortName where RtMidi decorates names; on
// macOS CoreMIDI names are passed through untouched.
func displayName(raw, goos string) string {
	if goos == "darwin" {
		return raw
	}
	return SanitizePortName(raw)
}
