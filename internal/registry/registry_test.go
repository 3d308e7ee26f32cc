package registry

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/leandrodaf/midiport/internal/logger"
	"github.com/leandrodaf/midiport/internal/midi/midivirtual"
	"github.com/leandrodaf/midiport/sdk/contracts"
)

func newRegistry(t *testing.T, names ...string) (*Registry, *midivirtual.Transport) {
	t.Helper()
	tr := midivirtual.New(names...)
	r := New(tr, logger.NewNopLogger())
	if _, err := r.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return r, tr
}

func TestRefreshReplacesSnapshot(t *testing.T) {
	r, tr := newRegistry(t, "IAC Bus 1")

	tr.AddPort("USB MIDI 1", "Roland")
	snap, err := r.Refresh()
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(snap.Ports) != 2 || snap.Generation != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Ports[1].Manufacturer != "Roland" {
		t.Fatalf("manufacturer = %q", snap.Ports[1].Manufacturer)
	}
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	r, tr := newRegistry(t, "IAC Bus 1", "USB MIDI 1")
	tr.SetFailure(errors.New("driver not loaded"))

	snap, err := r.Refresh()
	if !errors.Is(err, contracts.ErrDeviceEnumeration) {
		t.Fatalf("err = %v, want ErrDeviceEnumeration", err)
	}
	if len(snap.Ports) != 2 || snap.Generation != 1 {
		t.Fatalf("stale snapshot = %+v", snap)
	}
	if got := r.Snapshot(); len(got.Ports) != 2 {
		t.Fatalf("Snapshot lost ports: %+v", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r, _ := newRegistry(t, "IAC Bus 1")
	snap := r.Snapshot()
	snap.Ports[0].DisplayName = "changed"
	if r.Snapshot().Ports[0].DisplayName != "IAC Bus 1" {
		t.Fatal("snapshot shares storage with the registry")
	}
}

func TestOpenInvalidIndexHasNoSideEffects(t *testing.T) {
	r, tr := newRegistry(t, "IAC Bus 1", "USB MIDI 1")
	h, err := r.Open(1, func(float64, []byte) {})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for _, index := range []int{-1, 3, 5} {
		if _, err := r.Open(index, nil); !errors.Is(err, contracts.ErrInvalidSelection) {
			t.Fatalf("Open(%d) err = %v, want ErrInvalidSelection", index, err)
		}
	}
	if r.Current() != h || h.Closed() {
		t.Fatal("invalid selection closed the open port")
	}
	if tr.OpenPorts() != 1 {
		t.Fatalf("OpenPorts = %d, want 1", tr.OpenPorts())
	}
}

func TestOpenKeepsSingleHandle(t *testing.T) {
	r, tr := newRegistry(t, "IAC Bus 1", "USB MIDI 1")

	first, err := r.Open(1, func(float64, []byte) {})
	if err != nil {
		t.Fatalf("Open(1): %v", err)
	}
	second, err := r.Open(2, func(float64, []byte) {})
	if err != nil {
		t.Fatalf("Open(2): %v", err)
	}

	if !first.Closed() {
		t.Fatal("first handle still open after switching")
	}
	if second.Port.DisplayName != "USB MIDI 1" || second.Index != 2 {
		t.Fatalf("second handle = %+v", second)
	}
	if first.ID == second.ID {
		t.Fatal("handles share an id")
	}
	if tr.OpenPorts() != 1 {
		t.Fatalf("OpenPorts = %d, want 1", tr.OpenPorts())
	}
}

func TestOpenNoneCloses(t *testing.T) {
	r, tr := newRegistry(t, "USB MIDI 1")
	if _, err := r.Open(1, func(float64, []byte) {}); err != nil {
		t.Fatalf("Open: %v", err)
	}

	h, err := r.Open(None, nil)
	if err != nil || h != nil {
		t.Fatalf("Open(None) = %v, %v", h, err)
	}
	if r.Current() != nil || tr.OpenPorts() != 0 {
		t.Fatal("port still open after selecting None")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	r, _ := newRegistry(t, "USB MIDI 1")
	if _, err := r.Open(1, func(float64, []byte) {}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if r.Current() != nil {
		t.Fatal("handle survived Close")
	}
}

func TestOpenStalePort(t *testing.T) {
	r, tr := newRegistry(t, "IAC Bus 1", "USB MIDI 1")
	tr.RemovePort("IAC Bus 1")

	_, err := r.Open(1, func(float64, []byte) {})
	if !errors.Is(err, contracts.ErrPortUnavailable) {
		t.Fatalf("err = %v, want ErrPortUnavailable", err)
	}
	if r.Current() != nil {
		t.Fatal("failed open left a handle")
	}
}

func TestOpenBusyPort(t *testing.T) {
	r, tr := newRegistry(t, "USB MIDI 1")
	tr.SetBusy("USB MIDI 1", true)

	if _, err := r.Open(1, func(float64, []byte) {}); !errors.Is(err, contracts.ErrPortBusy) {
		t.Fatalf("err = %v, want ErrPortBusy", err)
	}
}

func TestOpenByName(t *testing.T) {
	r, _ := newRegistry(t, "IAC Bus 1", "USB MIDI 1")

	h, err := r.OpenByName("USB MIDI 1", func(float64, []byte) {})
	if err != nil {
		t.Fatalf("OpenByName: %v", err)
	}
	if h.Index != 2 {
		t.Fatalf("Index = %d, want 2", h.Index)
	}
	if _, err := r.OpenByName("Keystation", nil); !errors.Is(err, contracts.ErrPortUnavailable) {
		t.Fatalf("err = %v, want ErrPortUnavailable", err)
	}
}

func TestClosedHandleStopsDelivery(t *testing.T) {
	r, tr := newRegistry(t, "USB MIDI 1")

	var received atomic.Int64
	if _, err := r.Open(1, func(float64, []byte) { received.Add(1) }); err != nil {
		t.Fatalf("Open: %v", err)
	}
	tr.Send("USB MIDI 1", []byte{0x90, 0x3C, 0x40})
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	tr.Send("USB MIDI 1", []byte{0x80, 0x3C, 0x00})

	if received.Load() != 1 {
		t.Fatalf("received %d messages, want 1", received.Load())
	}
}
