//go:build portmidi

// Package midiportmidi reads MIDI input through PortMidi. PortMidi has no
// input callbacks, so every open stream is polled by its own goroutine.
package midiportmidi

import (
	"fmt"
	"sync"
	"time"

	"github.com/leandrodaf/midiport/internal/decoder"
	"github.com/leandrodaf/midiport/internal/midi/portset"
	"github.com/leandrodaf/midiport/sdk/contracts"
	"github.com/rakyll/portmidi"
	"go.uber.org/multierr"
)

const (
	bufferSize   = 1024
	readBatch    = 64
	pollInterval = time.Millisecond
)

type pmConn struct {
	stream *portmidi.Stream
	done   chan struct{}
	exited chan struct{}
}

// Transport is a contracts.Transport over PortMidi.
type Transport struct {
	logger contracts.Logger
	mu     sync.Mutex
	ports  *portset.Set
}

// NewMIDIClient initializes PortMidi.
func NewMIDIClient(options *contracts.ClientOptions) (contracts.Transport, error) {
	if err := portmidi.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: initializing PortMidi: %v", contracts.ErrDeviceEnumeration, err)
	}
	options.Logger.Info("PortMidi initialized", options.Logger.Field().Int("devices", portmidi.CountDevices()))
	return &Transport{logger: options.Logger, ports: portset.New()}, nil
}

// Name implements contracts.Transport.
func (t *Transport) Name() string { return BackendName }

// ListPorts lists the PortMidi devices that accept input.
func (t *Transport) ListPorts() ([]contracts.PortDescriptor, error) {
	n := portmidi.CountDevices()
	if n < 0 {
		return nil, fmt.Errorf("%w: PortMidi returned %d devices", contracts.ErrDeviceEnumeration, n)
	}
	var ports []contracts.PortDescriptor
	for i := 0; i < n; i++ {
		info := portmidi.Info(portmidi.DeviceID(i))
		if info == nil || !info.IsInputAvailable {
			continue
		}
		ports = append(ports, contracts.PortDescriptor{
			ID:           portset.FormatID(i, info.Name),
			DisplayName:  info.Name,
			Manufacturer: info.Interface,
		})
	}
	return ports, nil
}

// OpenPort opens an input stream and starts polling it.
func (t *Transport) OpenPort(id contracts.PortID, onReceive contracts.ReceiveFunc) (contracts.PortToken, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	index, name, err := portset.ParseID(id)
	if err != nil {
		return 0, err
	}
	info := portmidi.Info(portmidi.DeviceID(index))
	if info == nil || info.Name != name || !info.IsInputAvailable {
		return 0, fmt.Errorf("%w: %q is no longer device %d", contracts.ErrPortUnavailable, name, index)
	}
	if info.IsOpened {
		return 0, fmt.Errorf("%w: %s is already open", contracts.ErrPortBusy, name)
	}

	pc := &pmConn{done: make(chan struct{}), exited: make(chan struct{})}
	conn, err := t.ports.Reserve(id, pc, onReceive)
	if err != nil {
		return 0, err
	}
	stream, err := portmidi.NewInputStream(portmidi.DeviceID(index), bufferSize)
	if err != nil {
		t.ports.Release(conn.Token)
		conn.Shut()
		return 0, fmt.Errorf("%w: opening %s: %v", contracts.ErrPortUnavailable, name, err)
	}
	pc.stream = stream
	go t.poll(conn, pc, portmidi.Time())

	t.logger.Debug("PortMidi stream opened", t.logger.Field().String("port", name))
	return conn.Token, nil
}

// poll reads the stream until done is closed. Timestamps are reported
// relative to base, the PortMidi clock when the stream was opened.
//
// Stream.Read keeps three bytes of each PortMidi event word, so SysEx
// cannot be reassembled; its words are skipped and counted.
func (t *Transport) poll(conn *portset.Conn, pc *pmConn, base portmidi.Timestamp) {
	defer close(pc.exited)

	var failing readErrors
	var skipped uint64
	defer func() {
		if skipped > 0 {
			t.logger.Warn("PortMidi SysEx words skipped", t.logger.Field().Uint64("words", skipped))
		}
	}()

	for {
		select {
		case <-pc.done:
			return
		default:
		}

		events, err := pc.stream.Read(readBatch)
		if err != nil {
			failing.failed(t.logger, err)
		} else {
			failing.succeeded(t.logger)
		}
		if len(events) == 0 {
			time.Sleep(pollInterval)
			continue
		}
		for _, ev := range events {
			msg := [3]byte{byte(ev.Status), byte(ev.Data1), byte(ev.Data2)}
			n := decoder.MessageLength(msg[0])
			if n <= 0 {
				skipped++
				continue
			}
			conn.DeliverAt(float64(ev.Timestamp-base)/1000, msg[:n])
		}
	}
}

// ClosePort stops polling and closes the stream. Unknown tokens are ignored.
func (t *Transport) ClosePort(token contracts.PortToken) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, ok := t.ports.Release(token)
	if !ok {
		return nil
	}
	conn.Shut()

	pc, ok := conn.Native.(*pmConn)
	if !ok || pc.stream == nil {
		return nil
	}
	close(pc.done)
	<-pc.exited
	return pc.stream.Close()
}

// Close closes every stream and terminates PortMidi.
func (t *Transport) Close() error {
	var err error
	for _, token := range t.ports.Tokens() {
		err = multierr.Append(err, t.ClosePort(token))
	}
	return multierr.Append(err, portmidi.Terminate())
}
