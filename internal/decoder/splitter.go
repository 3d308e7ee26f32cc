package decoder

// maxSysEx bounds a buffered SysEx message. Longer messages are delivered
// in pieces of this size.
const maxSysEx = 64 * 1024

// Splitter cuts a byte stream into single MIDI messages. Drivers that pack
// several messages into one packet (CoreMIDI) or split a SysEx message over
// several buffers (WinMM) feed their packets through a Splitter, which keeps
// the unfinished SysEx between calls.
//
// A Splitter is not safe for concurrent use; keep one per input port.
type Splitter struct {
	sysex   []byte
	inSysEx bool
}

// Split calls emit once per complete message in packet. System real-time
// bytes inside a SysEx message are emitted on their own. A SysEx message
// cut short by a new status byte is emitted as received. Packets starting
// with a data byte outside a SysEx message are dropped from that byte on.
//
// The slice passed to emit is only valid during the call.
func (s *Splitter) Split(packet []byte, emit func(msg []byte)) {
	for i := 0; i < len(packet); {
		b := packet[i]

		if s.inSysEx {
			switch {
			case b >= 0xF8:
				emit(packet[i : i+1])
			case b == 0xF7:
				s.sysex = append(s.sysex, b)
				s.flush(emit)
			case b >= 0x80:
				// Unterminated SysEx; handle b as a new status below.
				s.flush(emit)
				continue
			default:
				s.sysex = append(s.sysex, b)
				if len(s.sysex) >= maxSysEx {
					emit(s.sysex)
					s.sysex = s.sysex[:0]
				}
			}
			i++
			continue
		}

		n := MessageLength(b)
		switch {
		case n == 0:
			return
		case n < 0:
			s.inSysEx = true
			s.sysex = append(s.sysex[:0], b)
			i++
		default:
			end := min(i+n, len(packet))
			emit(packet[i:end])
			i = end
		}
	}
}

func (s *Splitter) flush(emit func([]byte)) {
	if len(s.sysex) > 0 {
		emit(s.sysex)
	}
	s.sysex = s.sysex[:0]
	s.inSysEx = false
}

// Pending reports whether a SysEx message is waiting for more bytes.
func (s *Splitter) Pending() bool {
	return s.inSysEx
}

// Reset discards an unfinished SysEx message.
func (s *Splitter) Reset() {
	s.sysex = s.sysex[:0]
	s.inSysEx = false
}
