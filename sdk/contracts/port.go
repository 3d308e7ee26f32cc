package contracts

// PortID identifies a port within one enumeration snapshot. Its format is
// owned by the transport that produced it and must be treated as opaque.
type PortID string

// PortToken is the transport-issued handle of an opened port.
type PortToken uint64

// PortDescriptor describes a MIDI input port as seen by one enumeration.
// Descriptors are never mutated; the next enumeration supersedes them.
type PortDescriptor struct {
	ID           PortID `json:"id"`                     // Per-snapshot identity, not stable across refreshes.
	DisplayName  string `json:"displayName"`            // Name shown to users.
	Manufacturer string `json:"manufacturer,omitempty"` // Manufacturer, when the platform reports one.
}

// NoneIndex is the selection index meaning "no port".
const NoneIndex = 0

// NoneName is the display name of the synthetic leading entry.
const NoneName = "NONE"

// PortEntry is one row of the selectable port list. Index 0 is always the
// synthetic NONE entry; index i >= 1 maps to snapshot position i-1.
type PortEntry struct {
	Index       int    `json:"index"`
	ID          PortID `json:"id,omitempty"`
	DisplayName string `json:"displayName"`
}

// IsNone reports whether the entry is the synthetic NONE row.
func (e PortEntry) IsNone() bool {
	return e.Index == NoneIndex
}
