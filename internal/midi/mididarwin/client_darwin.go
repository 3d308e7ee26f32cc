//go:build darwin
// +build darwin

package mididarwin

import (
	"fmt"
	"sync"

	"github.com/leandrodaf/midiport/internal/decoder"
	"github.com/leandrodaf/midiport/internal/midi/portset"
	"github.com/leandrodaf/midiport/sdk/contracts"
	"github.com/youpy/go-coremidi"
	"go.uber.org/multierr"
)

// BackendName is the name used to select this backend.
const BackendName = "coremidi"

// internalPortConnection is an interface for handling disconnection from a MIDI port.
type internalPortConnection interface {
	Disconnect()
}

// darwinConn is the native state of one connected source. split is only
// used from the CoreMIDI read thread; conn only under Transport.mu.
type darwinConn struct {
	source string
	split  decoder.Splitter
	conn   internalPortConnection
}

// Transport reads MIDI sources through CoreMIDI. One input port is shared
// by every connected source; packets are routed by source name.
type Transport struct {
	logger    contracts.Logger
	client    coremidi.Client
	mu        sync.Mutex
	inputPort *coremidi.InputPort
	ports     *portset.Set
}

// NewMIDIClient creates the CoreMIDI client registered under the configured name.
func NewMIDIClient(options *contracts.ClientOptions) (contracts.Transport, error) {
	client, err := coremidi.NewClient(options.CoreMIDIConfig.ClientName)
	if err != nil {
		return nil, fmt.Errorf("%w: creating CoreMIDI client: %v", contracts.ErrDeviceEnumeration, err)
	}
	options.Logger.Info("CoreMIDI client successfully created",
		options.Logger.Field().String("client", options.CoreMIDIConfig.ClientName))

	return &Transport{
		logger: options.Logger,
		client: client,
		ports:  portset.New(),
	}, nil
}

// Name implements contracts.Transport.
func (t *Transport) Name() string { return BackendName }

// ListPorts returns every CoreMIDI source.
func (t *Transport) ListPorts() ([]contracts.PortDescriptor, error) {
	sources, err := coremidi.AllSources()
	if err != nil {
		return nil, fmt.Errorf("%w: listing CoreMIDI sources: %v", contracts.ErrDeviceEnumeration, err)
	}

	ports := make([]contracts.PortDescriptor, len(sources))
	for i, source := range sources {
		entity := source.Entity()
		ports[i] = contracts.PortDescriptor{
			ID:           portset.FormatID(i, source.Name()),
			DisplayName:  source.Name(),
			Manufacturer: entity.Manufacturer(),
		}
	}
	return ports, nil
}

// OpenPort connects the source identified by id to the shared input port.
func (t *Transport) OpenPort(id contracts.PortID, onReceive contracts.ReceiveFunc) (contracts.PortToken, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sources, err := coremidi.AllSources()
	if err != nil {
		return 0, fmt.Errorf("%w: retrieving CoreMIDI sources: %v", contracts.ErrPortUnavailable, err)
	}
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	index, err := portset.Resolve(id, names)
	if err != nil {
		return 0, err
	}
	source := sources[index]

	if t.inputPort == nil {
		port, err := coremidi.NewInputPort(t.client, "Input Port", t.handleMIDIMessage)
		if err != nil {
			return 0, fmt.Errorf("%w: creating input port: %v", contracts.ErrPortUnavailable, err)
		}
		t.inputPort = &port
	}

	native := &darwinConn{source: source.Name()}
	conn, err := t.ports.Reserve(id, native, onReceive)
	if err != nil {
		return 0, err
	}

	pc, err := t.inputPort.Connect(source)
	if err != nil {
		t.ports.Release(conn.Token)
		conn.Shut()
		return 0, fmt.Errorf("%w: connecting %s: %v", contracts.ErrPortUnavailable, source.Name(), err)
	}
	native.conn = pc

	t.logger.Debug("CoreMIDI source connected", t.logger.Field().String("source", source.Name()))
	return conn.Token, nil
}

// handleMIDIMessage runs on the CoreMIDI thread and routes a packet to the
// connections open on its source. A packet may hold several messages or a
// piece of a SysEx message; each complete message is delivered separately.
func (t *Transport) handleMIDIMessage(source coremidi.Source, packet coremidi.Packet) {
	if len(packet.Data) == 0 {
		return
	}
	name := source.Name()
	for _, token := range t.ports.Tokens() {
		conn, ok := t.ports.Get(token)
		if !ok {
			continue
		}
		if native, ok := conn.Native.(*darwinConn); ok && native.source == name {
			native.split.Split(packet.Data, func(msg []byte) {
				conn.Deliver(msg)
			})
		}
	}
}

// ClosePort disconnects the source. Unknown tokens are ignored.
func (t *Transport) ClosePort(token contracts.PortToken) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, ok := t.ports.Release(token)
	if !ok {
		return nil
	}
	conn.Shut()
	if native, ok := conn.Native.(*darwinConn); ok && native.conn != nil {
		native.conn.Disconnect()
		t.logger.Debug("CoreMIDI source disconnected", t.logger.Field().String("source", native.source))
	}
	return nil
}

// Close disconnects every source.
func (t *Transport) Close() error {
	var err error
	for _, token := range t.ports.Tokens() {
		err = multierr.Append(err, t.ClosePort(token))
	}
	return err
}
