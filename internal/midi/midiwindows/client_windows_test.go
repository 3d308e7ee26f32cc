//go:build windows

package midiwindows

import (
	"testing"
	"unsafe"
)

func TestMidiHdrMatchesWinMMLayout(t *testing.T) {
	// sizeof(MIDIHDR) on 64-bit and 32-bit Windows.
	want := uintptr(120)
	if unsafe.Sizeof(uintptr(0)) == 4 {
		want = 64
	}
	if got := unsafe.Sizeof(midiHdr{}); got != want {
		t.Fatalf("sizeof(midiHdr) = %d, want %d", got, want)
	}
	if off := unsafe.Offsetof(midiHdr{}.dwBytesRecorded); off != unsafe.Sizeof(uintptr(0))+4 {
		t.Errorf("dwBytesRecorded offset = %d", off)
	}
}
