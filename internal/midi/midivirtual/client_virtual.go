// Package midivirtual provides in-process MIDI input ports. Devices are
// plugged, unplugged and played from Go code, which makes the backend
// useful for demos and as the driver in tests.
package midivirtual

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/leandrodaf/midiport/internal/midi/portset"
	"github.com/leandrodaf/midiport/sdk/contracts"
	"go.uber.org/multierr"
)

// BackendName is the name used to select this backend.
const BackendName = "virtual"

type device struct {
	name         string
	manufacturer string
}

// Transport is a contracts.Transport over virtual devices.
type Transport struct {
	mu        sync.Mutex
	devices   []device
	busy      map[string]bool
	failure   error
	ports     *portset.Set
	listCalls atomic.Int64
	openCalls atomic.Int64
}

// New returns a transport with the given devices plugged in.
func New(names ...string) *Transport {
	t := &Transport{busy: make(map[string]bool), ports: portset.New()}
	for _, n := range names {
		t.AddPort(n, "")
	}
	return t
}

// NewMIDIClient builds the virtual transport for the client factory. It
// starts with a single "Virtual Keyboard" device.
func NewMIDIClient(options *contracts.ClientOptions) (contracts.Transport, error) {
	options.Logger.Info("Virtual MIDI transport created")
	return New("Virtual Keyboard"), nil
}

// Name implements contracts.Transport.
func (t *Transport) Name() string { return BackendName }

// AddPort plugs in a device at the end of the port list.
func (t *Transport) AddPort(name, manufacturer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.devices = append(t.devices, device{name: name, manufacturer: manufacturer})
}

// RemovePort unplugs the device called name. Open connections to it stay
// registered but receive nothing further.
func (t *Transport) RemovePort(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := slices.IndexFunc(t.devices, func(d device) bool { return d.name == name })
	if i < 0 {
		return false
	}
	t.devices = slices.Delete(t.devices, i, i+1)
	return true
}

// SetFailure makes ListPorts and OpenPort fail with err until cleared with nil.
func (t *Transport) SetFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failure = err
}

// SetBusy marks a device as held by another application.
func (t *Transport) SetBusy(name string, busy bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.busy[name] = busy
}

// ListCalls returns how many times ListPorts was called.
func (t *Transport) ListCalls() int { return int(t.listCalls.Load()) }

// OpenCalls returns how many times OpenPort was called.
func (t *Transport) OpenCalls() int { return int(t.openCalls.Load()) }

// OpenPorts returns the number of open connections.
func (t *Transport) OpenPorts() int { return t.ports.Len() }

func (t *Transport) names() []string {
	names := make([]string, len(t.devices))
	for i, d := range t.devices {
		names[i] = d.name
	}
	return names
}

// ListPorts implements contracts.Transport.
func (t *Transport) ListPorts() ([]contracts.PortDescriptor, error) {
	t.listCalls.Add(1)
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failure != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrDeviceEnumeration, t.failure)
	}
	ports := make([]contracts.PortDescriptor, len(t.devices))
	for i, d := range t.devices {
		ports[i] = contracts.PortDescriptor{
			ID:           portset.FormatID(i, d.name),
			DisplayName:  d.name,
			Manufacturer: d.manufacturer,
		}
	}
	return ports, nil
}

// OpenPort implements contracts.Transport.
func (t *Transport) OpenPort(id contracts.PortID, onReceive contracts.ReceiveFunc) (contracts.PortToken, error) {
	t.openCalls.Add(1)
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failure != nil {
		return 0, fmt.Errorf("%w: %v", contracts.ErrPortUnavailable, t.failure)
	}
	index, err := portset.Resolve(id, t.names())
	if err != nil {
		return 0, err
	}
	name := t.devices[index].name
	if t.busy[name] {
		return 0, fmt.Errorf("%w: %s is held by another application", contracts.ErrPortBusy, name)
	}

	conn, err := t.ports.Reserve(id, name, onReceive)
	if err != nil {
		return 0, err
	}
	return conn.Token, nil
}

// ClosePort implements contracts.Transport.
func (t *Transport) ClosePort(token contracts.PortToken) error {
	conn, ok := t.ports.Release(token)
	if !ok {
		return nil
	}
	conn.Shut()
	return nil
}

// Close implements contracts.Transport.
func (t *Transport) Close() error {
	var err error
	for _, token := range t.ports.Tokens() {
		err = multierr.Append(err, t.ClosePort(token))
	}
	return err
}

// Send delivers data from the device called name to every connection open
// on it, stamped with the time since each connection was opened. It
// returns the number of connections that received the message. Send may be
// called from any goroutine and plays the role of the driver thread.
func (t *Transport) Send(name string, data []byte) int {
	return t.deliver(name, func(c *portset.Conn) bool { return c.Deliver(data) })
}

// SendAt is like Send with an explicit timestamp.
func (t *Transport) SendAt(name string, timestamp float64, data []byte) int {
	return t.deliver(name, func(c *portset.Conn) bool { return c.DeliverAt(timestamp, data) })
}

func (t *Transport) deliver(name string, send func(*portset.Conn) bool) int {
	t.mu.Lock()
	plugged := slices.ContainsFunc(t.devices, func(d device) bool { return d.name == name })
	t.mu.Unlock()
	if !plugged {
		return 0
	}

	delivered := 0
	for _, token := range t.ports.Tokens() {
		conn, ok := t.ports.Get(token)
		if !ok || conn.Native != name {
			continue
		}
		if send(conn) {
			delivered++
		}
	}
	return delivered
}
