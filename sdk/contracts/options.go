package contracts

// MIDICommand represents the types of MIDI commands for event filtering.
type MIDICommand byte

const (
	// NoteOff is the MIDI command for a Note Off event (0x80).
	NoteOff MIDICommand = 0x80
	// NoteOn is the MIDI command for a Note On event (0x90).
	NoteOn MIDICommand = 0x90
	// PolyAftertouch is the MIDI command for polyphonic key pressure (0xA0).
	PolyAftertouch MIDICommand = 0xA0
	// ControlChange is the MIDI command for a controller change (0xB0).
	ControlChange MIDICommand = 0xB0
	// ProgramChange is the MIDI command for a program change (0xC0).
	ProgramChange MIDICommand = 0xC0
	// ChannelAftertouch is the MIDI command for channel pressure (0xD0).
	ChannelAftertouch MIDICommand = 0xD0
	// PitchBend is the MIDI command for a pitch bend change (0xE0).
	PitchBend MIDICommand = 0xE0
	// SysEx is the status byte opening a system exclusive message (0xF0).
	SysEx MIDICommand = 0xF0
)

// MIDIEventFilter allows users to specify which MIDI commands to capture.
type MIDIEventFilter struct {
	Commands []MIDICommand // List of MIDI commands to filter.
}

// Allows reports whether command passes the filter. An empty filter allows everything.
func (f *MIDIEventFilter) Allows(command byte) bool {
	if f == nil || len(f.Commands) == 0 {
		return true
	}
	for _, c := range f.Commands {
		if byte(c) == command {
			return true
		}
	}
	return false
}

// IgnoreTypes selects message classes dropped before they reach the event buffer.
type IgnoreTypes struct {
	SysEx       bool // System exclusive messages.
	TimeCode    bool // MIDI time code quarter frames and clock ticks.
	ActiveSense bool // Active sensing.
}

// DefaultIgnoreTypes keeps SysEx and drops timing and active sensing.
var DefaultIgnoreTypes = IgnoreTypes{SysEx: false, TimeCode: true, ActiveSense: true}

// OverflowPolicy decides which event is discarded when the event buffer is full.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest buffered event to make room.
	DropOldest OverflowPolicy = iota
	// DropNewest discards the arriving event.
	DropNewest
)

func (p OverflowPolicy) String() string {
	if p == DropNewest {
		return "drop-newest"
	}
	return "drop-oldest"
}

// CoreMIDIConfig holds configuration for native MIDI clients.
type CoreMIDIConfig struct {
	ClientName string // Name of the MIDI client registered with the OS.
}

// ClientOptions defines the configuration options for the MIDI client.
type ClientOptions struct {
	Logger          Logger           // Logger for logging events and errors.
	LogLevel        LogLevel         // Level of logging to use.
	LogFilePath     string           // File path for logging if file logging is enabled.
	MIDIEventFilter *MIDIEventFilter // Optional filter for MIDI events to capture.
	CoreMIDIConfig  *CoreMIDIConfig  // Native client configuration.
	IgnoreTypes     *IgnoreTypes     // Message classes to drop.
	Backend         string           // Transport backend; empty selects the platform default.
	Transport       Transport        // Injected transport, overrides Backend.
	SinkCapacity    int              // Event buffer capacity.
	OverflowPolicy  OverflowPolicy   // Event buffer overflow policy.
	StateListener   StateListener    // Optional observer of session transitions.
}

// Option is a function that modifies ClientOptions.
type Option func(*ClientOptions)

// WithLogger sets the logger for the MIDI client.
func WithLogger(l Logger) Option {
	return func(opts *ClientOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level for the MIDI client.
func WithLogLevel(level LogLevel) Option {
	return func(opts *ClientOptions) {
		opts.LogLevel = level
	}
}

// WithLogFile directs log output to the file at path.
func WithLogFile(path string) Option {
	return func(opts *ClientOptions) {
		opts.LogFilePath = path
	}
}

// WithMIDIEventFilter sets the MIDI event filter for the MIDI client.
func WithMIDIEventFilter(filter MIDIEventFilter) Option {
	return func(opts *ClientOptions) {
		opts.MIDIEventFilter = &filter
	}
}

// WithCoreMIDIConfig sets the native client configuration.
func WithCoreMIDIConfig(config CoreMIDIConfig) Option {
	return func(opts *ClientOptions) {
		opts.CoreMIDIConfig = &config
	}
}

// WithIgnoreTypes sets which message classes are dropped.
func WithIgnoreTypes(ignore IgnoreTypes) Option {
	return func(opts *ClientOptions) {
		opts.IgnoreTypes = &ignore
	}
}

// WithBackend selects a transport backend by name ("coremidi", "winmm",
// "rtmidi", "portmidi" or "virtual").
func WithBackend(name string) Option {
	return func(opts *ClientOptions) {
		opts.Backend = name
	}
}

// WithTransport injects a transport instead of the process-wide backend.
func WithTransport(t Transport) Option {
	return func(opts *ClientOptions) {
		opts.Transport = t
	}
}

// WithSinkCapacity sets how many undrained events are kept.
func WithSinkCapacity(n int) Option {
	return func(opts *ClientOptions) {
		opts.SinkCapacity = n
	}
}

// WithOverflowPolicy sets the event buffer overflow policy.
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(opts *ClientOptions) {
		opts.OverflowPolicy = p
	}
}

// WithStateListener registers an observer of session state transitions.
func WithStateListener(l StateListener) Option {
	return func(opts *ClientOptions) {
		opts.StateListener = l
	}
}
