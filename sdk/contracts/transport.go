package contracts

// ReceiveFunc is invoked by a transport for every inbound message. It runs
// on a driver-owned goroutine, must return quickly and must not retain data
// after returning.
type ReceiveFunc func(timestamp float64, data []byte)

// Transport binds the core to one platform MIDI subsystem.
type Transport interface {
	// Name returns the backend name, e.g. "coremidi".
	Name() string
	// ListPorts returns a fresh snapshot of the input ports.
	ListPorts() ([]PortDescriptor, error)
	// OpenPort opens the port and registers onReceive for its messages.
	OpenPort(id PortID, onReceive ReceiveFunc) (PortToken, error)
	// ClosePort unregisters the callback and releases the port. Once it
	// returns no invocation of the port's ReceiveFunc is running or will
	// start. Closing an unknown or closed token is a no-op.
	ClosePort(token PortToken) error
	// Close releases every open port and the native client.
	Close() error
}
