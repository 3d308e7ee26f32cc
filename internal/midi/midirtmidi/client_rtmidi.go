//go:build cgo && !nortmidi

// Package midirtmidi reads MIDI input through RtMidi, which covers ALSA,
// JACK, CoreMIDI and WinMM behind one API.
package midirtmidi

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/leandrodaf/midiport/internal/midi/portset"
	"github.com/leandrodaf/midiport/sdk/contracts"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/multierr"
)

// rtConn is only touched under Transport.mu.
type rtConn struct {
	in   drivers.In
	stop func()
}

// Transport is a contracts.Transport over gomidi's RtMidi driver.
type Transport struct {
	logger contracts.Logger
	ignore contracts.IgnoreTypes
	mu     sync.Mutex
	drv    *rtmididrv.Driver
	ports  *portset.Set
}

// NewMIDIClient creates the RtMidi driver.
func NewMIDIClient(options *contracts.ClientOptions) (contracts.Transport, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("%w: starting RtMidi: %v", contracts.ErrDeviceEnumeration, err)
	}
	ignore := contracts.DefaultIgnoreTypes
	if options.IgnoreTypes != nil {
		ignore = *options.IgnoreTypes
	}
	options.Logger.Info("RtMidi driver created", options.Logger.Field().String("driver", drv.String()))

	return &Transport{
		logger: options.Logger,
		ignore: ignore,
		drv:    drv,
		ports:  portset.New(),
	}, nil
}

// Name implements contracts.Transport.
func (t *Transport) Name() string { return BackendName }

// ListPorts lists the RtMidi input ports.
func (t *Transport) ListPorts() ([]contracts.PortDescriptor, error) {
	ins, err := t.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrDeviceEnumeration, err)
	}
	ports := make([]contracts.PortDescriptor, len(ins))
	for i, in := range ins {
		ports[i] = contracts.PortDescriptor{
			ID:          portset.FormatID(in.Number(), in.String()),
			DisplayName: displayName(in.String(), runtime.GOOS),
		}
	}
	return ports, nil
}

func (t *Transport) find(id contracts.PortID) (drivers.In, error) {
	number, name, err := portset.ParseID(id)
	if err != nil {
		return nil, err
	}
	ins, err := t.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrPortUnavailable, err)
	}
	for _, in := range ins {
		if in.Number() == number && in.String() == name {
			return in, nil
		}
	}
	return nil, fmt.Errorf("%w: %q is no longer port %d", contracts.ErrPortUnavailable, name, number)
}

// OpenPort opens the input and starts listening on it.
func (t *Transport) OpenPort(id contracts.PortID, onReceive contracts.ReceiveFunc) (contracts.PortToken, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	in, err := t.find(id)
	if err != nil {
		return 0, err
	}
	rc := &rtConn{in: in}
	conn, err := t.ports.Reserve(id, rc, onReceive)
	if err != nil {
		return 0, err
	}

	if err := in.Open(); err != nil {
		t.ports.Release(conn.Token)
		conn.Shut()
		return 0, classifyOpenError(in.String(), err)
	}

	stop, err := in.Listen(func(msg []byte, milliseconds int32) {
		conn.DeliverAt(float64(milliseconds)/1000, msg)
	}, drivers.ListenConfig{
		SysEx:           !t.ignore.SysEx,
		TimeCode:        !t.ignore.TimeCode,
		ActiveSense:     !t.ignore.ActiveSense,
		SysExBufferSize: 4096,
		OnErr: func(err error) {
			t.logger.Warn("RtMidi input error", t.logger.Field().String("port", in.String()), t.logger.Field().Error("error", err))
		},
	})
	if err != nil {
		t.ports.Release(conn.Token)
		conn.Shut()
		_ = in.Close()
		return 0, fmt.Errorf("%w: listening on %s: %v", contracts.ErrPortUnavailable, in.String(), err)
	}
	rc.stop = stop

	t.logger.Debug("RtMidi port opened", t.logger.Field().String("port", in.String()))
	return conn.Token, nil
}

func classifyOpenError(name string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "busy") || strings.Contains(msg, "allocated") || strings.Contains(msg, "in use") {
		return fmt.Errorf("%w: %s: %v", contracts.ErrPortBusy, name, err)
	}
	return fmt.Errorf("%w: opening %s: %v", contracts.ErrPortUnavailable, name, err)
}

// ClosePort stops listening and closes the input. Unknown tokens are ignored.
func (t *Transport) ClosePort(token contracts.PortToken) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, ok := t.ports.Release(token)
	if !ok {
		return nil
	}
	conn.Shut()

	rc, ok := conn.Native.(*rtConn)
	if !ok || rc.stop == nil {
		return nil
	}
	rc.stop()
	if err := rc.in.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", rc.in.String(), err)
	}
	return nil
}

// Close closes every open input and the driver.
func (t *Transport) Close() error {
	var err error
	for _, token := range t.ports.Tokens() {
		err = multierr.Append(err, t.ClosePort(token))
	}
	return multierr.Append(err, t.drv.Close())
}
