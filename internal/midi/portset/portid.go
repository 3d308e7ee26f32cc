package portset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

// FormatID builds the id of a port addressed by enumeration index. The
// name is part of the id so a reordered device list is detected on open.
func FormatID(index int, name string) contracts.PortID {
	return contracts.PortID(strconv.Itoa(index) + ":" + name)
}

// ParseID splits an id produced by FormatID.
func ParseID(id contracts.PortID) (int, string, error) {
	idx, name, ok := strings.Cut(string(id), ":")
	if !ok {
		return 0, "", fmt.Errorf("%w: malformed port id %q", contracts.ErrPortUnavailable, id)
	}
	index, err := strconv.Atoi(idx)
	if err != nil || index < 0 {
		return 0, "", fmt.Errorf("%w: malformed port id %q", contracts.ErrPortUnavailable, id)
	}
	return index, name, nil
}

// Resolve checks that index still names the port recorded in id. names is
// the current enumeration.
func Resolve(id contracts.PortID, names []string) (int, error) {
	index, name, err := ParseID(id)
	if err != nil {
		return 0, err
	}
	if index >= len(names) || names[index] != name {
		return 0, fmt.Errorf("%w: %q is no longer at position %d", contracts.ErrPortUnavailable, name, index)
	}
	return index, nil
}
