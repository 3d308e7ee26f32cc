// Package decoder turns raw MIDI bytes into events.
package decoder

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/leandrodaf/midiport/sdk/contracts"
	gomidi "gitlab.com/gomidi/midi/v2"
)

// Decode builds an event from a received message. Data is the lowercase
// hex rendering of raw, two digits per byte without separators. Decode is
// total: every byte sequence, including an empty one, decodes.
func Decode(timestamp float64, raw []byte) contracts.MIDIEvent {
	return contracts.MIDIEvent{
		Time: timestamp,
		Data: hex.EncodeToString(raw),
		Raw:  bytes.Clone(raw),
	}
}

// Command returns the command of a message: the high nibble for channel
// messages, the full status byte for system messages and 0 when raw does
// not start with a status byte.
func Command(raw []byte) byte {
	if len(raw) == 0 || raw[0] < 0x80 {
		return 0
	}
	if raw[0] < 0xF0 {
		return raw[0] & 0xF0
	}
	return raw[0]
}

// MessageLength returns the length in bytes of a message starting with
// status, -1 for variable-length SysEx and 0 for data bytes.
func MessageLength(status byte) int {
	switch {
	case status < 0x80:
		return 0
	case status < 0xC0, status >= 0xE0 && status < 0xF0:
		return 3
	case status < 0xE0:
		return 2
	}
	switch status {
	case 0xF0:
		return -1
	case 0xF1, 0xF3:
		return 2
	case 0xF2:
		return 3
	}
	return 1
}

// Ignored reports whether raw belongs to a message class dropped by ignore.
func Ignored(raw []byte, ignore contracts.IgnoreTypes) bool {
	if len(raw) == 0 {
		return false
	}
	switch raw[0] {
	case 0xF0, 0xF7:
		return ignore.SysEx
	case 0xF1, 0xF8:
		return ignore.TimeCode
	case 0xFE:
		return ignore.ActiveSense
	}
	return false
}

// Describe renders a short human-readable summary of a message. Channels
// are printed 1-based.
func Describe(raw []byte) string {
	if len(raw) == 0 {
		return "empty"
	}
	msg := gomidi.Message(raw)

	var channel, key, velocity, controller, value, program uint8
	var bend int16
	var bendAbs uint16
	switch {
	case msg.GetNoteOn(&channel, &key, &velocity):
		return fmt.Sprintf("note on ch=%d key=%d vel=%d", channel+1, key, velocity)
	case msg.GetNoteOff(&channel, &key, &velocity):
		return fmt.Sprintf("note off ch=%d key=%d vel=%d", channel+1, key, velocity)
	case msg.GetControlChange(&channel, &controller, &value):
		return fmt.Sprintf("control change ch=%d cc=%d val=%d", channel+1, controller, value)
	case msg.GetProgramChange(&channel, &program):
		return fmt.Sprintf("program change ch=%d prog=%d", channel+1, program)
	case msg.GetPitchBend(&channel, &bend, &bendAbs):
		return fmt.Sprintf("pitch bend ch=%d val=%d", channel+1, bend)
	}

	switch Command(raw) {
	case 0:
		return fmt.Sprintf("data %d bytes", len(raw))
	case 0xF0:
		return fmt.Sprintf("sysex %d bytes", len(raw))
	}
	return msg.String()
}
