//go:build windows
// +build windows

package midiwindows

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/leandrodaf/midiport/internal/decoder"
	"github.com/leandrodaf/midiport/internal/midi/portset"
	"github.com/leandrodaf/midiport/sdk/contracts"
	"go.uber.org/multierr"
	"golang.org/x/sys/windows"
)

// BackendName is the name used to select this backend.
const BackendName = "winmm"

// Type definitions for MIDI handles
type HMIDIIN windows.Handle

// Constants for callback flags
const (
	CALLBACK_FUNCTION = 0x00030000 // Indicates that the callback is a function
	MIDI_IO_STATUS    = 0x00000020 // MIDI input/output status
)

// Constants for MIDI message types
const (
	MIM_OPEN      = 0x3C1 // MIDI device opened
	MIM_CLOSE     = 0x3C2 // MIDI device closed
	MIM_DATA      = 0x3C3 // MIDI data received
	MIM_LONGDATA  = 0x3C4 // SysEx buffer received
	MIM_ERROR     = 0x3C5 // MIDI error
	MIM_LONGERROR = 0x3C6 // Long MIDI error
	MIM_MOREDATA  = 0x3CC // More MIDI data available
)

// MMRESULT codes returned by midiInOpen.
const (
	MMSYSERR_NOERROR     = 0
	MMSYSERR_BADDEVICEID = 2
	MMSYSERR_ALLOCATED   = 4
	MMSYSERR_NODRIVER    = 6
)

// Struct representing MIDI device capabilities
type midiInCaps struct {
	wMid           uint16
	wPid           uint16
	vDriverVersion uint32
	szPname        [32]uint16
	dwSupport      uint32
}

// Load the winmm.dll library and required functions
var (
	winmm                = windows.NewLazySystemDLL("winmm.dll")
	procMidiInGetNumDevs = winmm.NewProc("midiInGetNumDevs")
	procMidiInGetDevCaps = winmm.NewProc("midiInGetDevCapsW")
	procMidiInOpen       = winmm.NewProc("midiInOpen")
	procMidiInStart      = winmm.NewProc("midiInStart")
	procMidiInStop       = winmm.NewProc("midiInStop")
	procMidiInReset      = winmm.NewProc("midiInReset")
	procMidiInClose      = winmm.NewProc("midiInClose")

	procMidiInPrepareHeader   = winmm.NewProc("midiInPrepareHeader")
	procMidiInUnprepareHeader = winmm.NewProc("midiInUnprepareHeader")
	procMidiInAddBuffer       = winmm.NewProc("midiInAddBuffer")
)

// SysEx input buffers queued per open device.
const (
	sysexBuffers    = 4
	sysexBufferSize = 1024
)

// midiHdr mirrors MIDIHDR.
type midiHdr struct {
	lpData          uintptr
	dwBufferLength  uint32
	dwBytesRecorded uint32
	dwUser          uintptr
	dwFlags         uint32
	lpNext          uintptr
	reserved        uintptr
	dwOffset        uint32
	dwReserved      [8]uintptr
}

// winConn is the native state of one open device. The headers and their
// buffers stay referenced here while WinMM owns them. split is only used
// from the WinMM callback thread.
type winConn struct {
	handle  HMIDIIN
	headers [sysexBuffers]*midiHdr
	buffers [sysexBuffers][]byte
	split   decoder.Splitter
}

// The driver calls back with the port token as instance data, so open
// ports live in a process-wide set. windows.NewCallback slots are limited
// and never freed; one callback serves every port.
var (
	openPorts    = portset.New()
	callbackOnce sync.Once
	callback     uintptr
	errorCount   atomic.Uint64
)

// Transport reads MIDI input devices through WinMM.
type Transport struct {
	logger contracts.Logger
	mu     sync.Mutex
	tokens map[contracts.PortToken]struct{}
}

// NewMIDIClient creates the WinMM transport.
func NewMIDIClient(options *contracts.ClientOptions) (contracts.Transport, error) {
	if err := winmm.Load(); err != nil {
		return nil, fmt.Errorf("%w: loading winmm.dll: %v", contracts.ErrDeviceEnumeration, err)
	}
	callbackOnce.Do(func() {
		callback = windows.NewCallback(midiInCallback)
	})
	options.Logger.Info("MIDI client created for Windows")

	return &Transport{
		logger: options.Logger,
		tokens: make(map[contracts.PortToken]struct{}),
	}, nil
}

// Name implements contracts.Transport.
func (t *Transport) Name() string { return BackendName }

func deviceName(id uint32) (string, midiInCaps, bool) {
	var caps midiInCaps
	r1, _, _ := procMidiInGetDevCaps.Call(
		uintptr(id),
		uintptr(unsafe.Pointer(&caps)),
		unsafe.Sizeof(caps),
	)
	if r1 != MMSYSERR_NOERROR {
		return "", caps, false
	}
	return windows.UTF16ToString(caps.szPname[:]), caps, true
}

// ListPorts lists the available MIDI input devices
func (t *Transport) ListPorts() ([]contracts.PortDescriptor, error) {
	if err := procMidiInGetNumDevs.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrDeviceEnumeration, err)
	}
	r0, _, _ := procMidiInGetNumDevs.Call()
	numDevices := uint32(r0)

	ports := make([]contracts.PortDescriptor, 0, numDevices)
	for i := uint32(0); i < numDevices; i++ {
		name, caps, ok := deviceName(i)
		if !ok {
			t.logger.Warn("Failed to get information for MIDI device", t.logger.Field().Int("device", int(i)))
			continue
		}
		ports = append(ports, contracts.PortDescriptor{
			ID:           portset.FormatID(int(i), name),
			DisplayName:  name,
			Manufacturer: fmt.Sprintf("MID: %d PID: %d", caps.wMid, caps.wPid),
		})
	}
	return ports, nil
}

// OpenPort opens and starts the input device identified by id.
func (t *Transport) OpenPort(id contracts.PortID, onReceive contracts.ReceiveFunc) (contracts.PortToken, error) {
	index, name, err := portset.ParseID(id)
	if err != nil {
		return 0, err
	}
	if current, _, ok := deviceName(uint32(index)); !ok || current != name {
		return 0, fmt.Errorf("%w: %q is no longer device %d", contracts.ErrPortUnavailable, name, index)
	}

	native := &winConn{}
	conn, err := openPorts.Reserve(id, native, onReceive)
	if err != nil {
		return 0, err
	}

	r1, _, _ := procMidiInOpen.Call(
		uintptr(unsafe.Pointer(&native.handle)),
		uintptr(index),
		callback,
		uintptr(conn.Token),
		uintptr(CALLBACK_FUNCTION|MIDI_IO_STATUS),
	)
	if r1 != MMSYSERR_NOERROR {
		openPorts.Release(conn.Token)
		conn.Shut()
		return 0, openError(name, r1)
	}
	handle := native.handle

	if err := native.queueBuffers(); err != nil {
		openPorts.Release(conn.Token)
		conn.Shut()
		native.release()
		return 0, fmt.Errorf("%w: preparing SysEx buffers for %s: %v", contracts.ErrPortUnavailable, name, err)
	}

	if r1, _, _ := procMidiInStart.Call(uintptr(handle)); r1 != MMSYSERR_NOERROR {
		openPorts.Release(conn.Token)
		conn.Shut()
		native.release()
		return 0, fmt.Errorf("%w: starting %s: MMRESULT %d", contracts.ErrPortUnavailable, name, r1)
	}

	t.mu.Lock()
	t.tokens[conn.Token] = struct{}{}
	t.mu.Unlock()

	t.logger.Info("MIDI device connected", t.logger.Field().String("device", name))
	return conn.Token, nil
}

func openError(name string, code uintptr) error {
	switch code {
	case MMSYSERR_ALLOCATED:
		return fmt.Errorf("%w: %s is in use by another application", contracts.ErrPortBusy, name)
	case MMSYSERR_BADDEVICEID, MMSYSERR_NODRIVER:
		return fmt.Errorf("%w: %s: MMRESULT %d", contracts.ErrPortUnavailable, name, code)
	}
	return fmt.Errorf("%w: opening %s: MMRESULT %d", contracts.ErrPortUnavailable, name, code)
}

// queueBuffers prepares the SysEx buffers and hands them to the driver.
func (w *winConn) queueBuffers() error {
	for i := range w.headers {
		w.buffers[i] = make([]byte, sysexBufferSize)
		w.headers[i] = &midiHdr{
			lpData:         uintptr(unsafe.Pointer(&w.buffers[i][0])),
			dwBufferLength: sysexBufferSize,
		}
		hdr := uintptr(unsafe.Pointer(w.headers[i]))
		if r1, _, _ := procMidiInPrepareHeader.Call(uintptr(w.handle), hdr, unsafe.Sizeof(midiHdr{})); r1 != MMSYSERR_NOERROR {
			w.headers[i] = nil
			return fmt.Errorf("midiInPrepareHeader: MMRESULT %d", r1)
		}
		if r1, _, _ := procMidiInAddBuffer.Call(uintptr(w.handle), hdr, unsafe.Sizeof(midiHdr{})); r1 != MMSYSERR_NOERROR {
			return fmt.Errorf("midiInAddBuffer: MMRESULT %d", r1)
		}
	}
	return nil
}

// release stops the device, takes back the SysEx buffers and closes it.
func (w *winConn) release() error {
	var err error
	if r1, _, _ := procMidiInStop.Call(uintptr(w.handle)); r1 != MMSYSERR_NOERROR {
		err = multierr.Append(err, fmt.Errorf("midiInStop: MMRESULT %d", r1))
	}
	procMidiInReset.Call(uintptr(w.handle))
	for i, hdr := range w.headers {
		if hdr == nil {
			continue
		}
		if r1, _, _ := procMidiInUnprepareHeader.Call(uintptr(w.handle), uintptr(unsafe.Pointer(hdr)), unsafe.Sizeof(midiHdr{})); r1 != MMSYSERR_NOERROR {
			err = multierr.Append(err, fmt.Errorf("midiInUnprepareHeader: MMRESULT %d", r1))
		}
		w.headers[i] = nil
	}
	if r1, _, _ := procMidiInClose.Call(uintptr(w.handle)); r1 != MMSYSERR_NOERROR {
		err = multierr.Append(err, fmt.Errorf("midiInClose: MMRESULT %d", r1))
	}
	return err
}

// midiInCallback runs on a WinMM thread. For MIM_DATA dwParam1 packs a
// short message; for MIM_LONGDATA it points at a filled SysEx header.
// dwParam2 holds milliseconds since midiInStart.
func midiInCallback(hMidiIn uintptr, wMsg uint32, dwInstance uintptr, dwParam1 uintptr, dwParam2 uintptr) uintptr {
	switch wMsg {
	case MIM_DATA, MIM_MOREDATA:
		conn, ok := openPorts.Get(contracts.PortToken(dwInstance))
		if !ok {
			return 0
		}
		msg := [3]byte{byte(dwParam1), byte(dwParam1 >> 8), byte(dwParam1 >> 16)}
		n := decoder.MessageLength(msg[0])
		if n <= 0 {
			return 0
		}
		conn.DeliverAt(float64(dwParam2)/1000, msg[:n])
	case MIM_LONGDATA:
		// Closed ports are not in the set, so buffers returned by
		// midiInReset are not queued again.
		conn, ok := openPorts.Get(contracts.PortToken(dwInstance))
		if !ok {
			return 0
		}
		native, ok := conn.Native.(*winConn)
		if !ok {
			return 0
		}
		hdr := (*midiHdr)(unsafe.Pointer(dwParam1))
		if hdr.dwBytesRecorded > 0 {
			data := unsafe.Slice((*byte)(unsafe.Pointer(hdr.lpData)), hdr.dwBytesRecorded)
			ts := float64(dwParam2) / 1000
			native.split.Split(data, func(msg []byte) {
				conn.DeliverAt(ts, msg)
			})
		}
		procMidiInAddBuffer.Call(hMidiIn, dwParam1, unsafe.Sizeof(midiHdr{}))
	case MIM_ERROR, MIM_LONGERROR:
		errorCount.Add(1)
	}
	return 0
}

// ClosePort stops and closes the device. Unknown tokens are ignored.
func (t *Transport) ClosePort(token contracts.PortToken) error {
	t.mu.Lock()
	_, mine := t.tokens[token]
	delete(t.tokens, token)
	t.mu.Unlock()
	if !mine {
		return nil
	}

	conn, ok := openPorts.Release(token)
	if !ok {
		return nil
	}
	conn.Shut()

	native, ok := conn.Native.(*winConn)
	if !ok || native.handle == 0 {
		return nil
	}
	err := native.release()
	if n := errorCount.Swap(0); n > 0 {
		t.logger.Warn("WinMM reported invalid MIDI input", t.logger.Field().Uint64("errors", n))
	}
	return err
}

// Close closes every device opened by this transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	tokens := make([]contracts.PortToken, 0, len(t.tokens))
	for tok := range t.tokens {
		tokens = append(tokens, tok)
	}
	t.mu.Unlock()

	var err error
	for _, tok := range tokens {
		err = multierr.Append(err, t.ClosePort(tok))
	}
	return err
}
