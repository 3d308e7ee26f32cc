package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leandrodaf/midiport/internal/logger"
	"github.com/leandrodaf/midiport/internal/midi/midivirtual"
	"github.com/leandrodaf/midiport/internal/session"
	"github.com/leandrodaf/midiport/sdk/contracts"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, names ...string) (*Server, *midivirtual.Transport, *session.Session) {
	t.Helper()
	tr := midivirtual.New(names...)
	sess := session.New(tr, contracts.ClientOptions{})
	t.Cleanup(func() { sess.Stop() })
	return NewServer(sess, logger.NewNopLogger()), tr, sess
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[map[string]string](t, w)
	if got["status"] != "healthy" || got["state"] != "idle" {
		t.Errorf("body = %v", got)
	}
}

func TestListPorts(t *testing.T) {
	s, _, _ := newTestServer(t, "USB MIDI 1")
	w := do(t, s, http.MethodGet, "/api/v1/ports", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[struct {
		Ports []contracts.PortEntry `json:"ports"`
	}](t, w)
	if len(got.Ports) != 2 {
		t.Fatalf("ports = %+v", got.Ports)
	}
	if got.Ports[0].DisplayName != contracts.NoneName || got.Ports[1].DisplayName != "USB MIDI 1" {
		t.Errorf("ports = %+v", got.Ports)
	}
}

func TestListPortsEnumerationFailureKeepsPreviousList(t *testing.T) {
	s, tr, _ := newTestServer(t, "USB MIDI 1")
	if w := do(t, s, http.MethodGet, "/api/v1/ports", ""); w.Code != http.StatusOK {
		t.Fatalf("first enumeration: status = %d", w.Code)
	}

	tr.SetFailure(errors.New("driver gone"))
	w := do(t, s, http.MethodGet, "/api/v1/ports", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	got := decode[struct {
		Error string                `json:"error"`
		Ports []contracts.PortEntry `json:"ports"`
	}](t, w)
	if got.Error == "" {
		t.Error("error message missing")
	}
	if len(got.Ports) != 2 || got.Ports[0].DisplayName != contracts.NoneName || got.Ports[1].DisplayName != "USB MIDI 1" {
		t.Errorf("ports = %+v, want the previous list", got.Ports)
	}
}

func TestSelectionLifecycle(t *testing.T) {
	s, _, sess := newTestServer(t, "USB MIDI 1", "Keys")
	do(t, s, http.MethodGet, "/api/v1/ports", "")

	w := do(t, s, http.MethodPut, "/api/v1/selection", `{"index":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", w.Code, w.Body)
	}
	got := decode[selectionResponse](t, w)
	if !got.Selected || got.Port == nil || got.Port.DisplayName != "Keys" || got.State != "open" {
		t.Errorf("selection = %+v", got)
	}

	w = do(t, s, http.MethodDelete, "/api/v1/selection", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", w.Code)
	}
	if sess.State() != contracts.StateIdle {
		t.Errorf("state = %v, want idle", sess.State())
	}

	got = decode[selectionResponse](t, do(t, s, http.MethodGet, "/api/v1/selection", ""))
	if got.Selected || got.Port != nil {
		t.Errorf("selection after delete = %+v", got)
	}
}

func TestSelectionByName(t *testing.T) {
	s, _, _ := newTestServer(t, "USB MIDI 1", "Keys")
	do(t, s, http.MethodGet, "/api/v1/ports", "")

	w := do(t, s, http.MethodPut, "/api/v1/selection", `{"name":"USB MIDI 1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	if got := decode[selectionResponse](t, w); got.Port.DisplayName != "USB MIDI 1" {
		t.Errorf("selection = %+v", got)
	}
}

func TestSelectionErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		busy   bool
		status int
	}{
		{"out of range", `{"index":5}`, false, http.StatusBadRequest},
		{"missing fields", `{}`, false, http.StatusBadRequest},
		{"malformed", `{"index":`, false, http.StatusBadRequest},
		{"busy", `{"index":1}`, true, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, tr, sess := newTestServer(t, "USB MIDI 1", "Keys")
			do(t, s, http.MethodGet, "/api/v1/ports", "")
			tr.SetBusy("USB MIDI 1", tt.busy)

			w := do(t, s, http.MethodPut, "/api/v1/selection", tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.status, w.Body)
			}
			if sess.State() != contracts.StateIdle {
				t.Errorf("state = %v, want idle", sess.State())
			}
		})
	}
}

func TestStoppedSessionIsGone(t *testing.T) {
	s, _, sess := newTestServer(t, "USB MIDI 1")
	if err := sess.Stop(); err != nil {
		t.Fatal(err)
	}
	w := do(t, s, http.MethodGet, "/api/v1/ports", "")
	if w.Code != http.StatusGone {
		t.Errorf("status = %d, want 410", w.Code)
	}
}

type eventsBody struct {
	Events  []contracts.MIDIEvent `json:"events"`
	Dropped uint64                `json:"dropped"`
}

func TestDrainEvents(t *testing.T) {
	s, tr, _ := newTestServer(t, "USB MIDI 1")
	do(t, s, http.MethodGet, "/api/v1/ports", "")
	do(t, s, http.MethodPut, "/api/v1/selection", `{"index":1}`)

	tr.SendAt("USB MIDI 1", 1.0, []byte{0x90, 0x3c, 0x64})
	tr.SendAt("USB MIDI 1", 1.5, []byte{0x80, 0x3c, 0x00})
	tr.SendAt("USB MIDI 1", 2.0, []byte{0xb0, 0x07, 0x7f})

	got := decode[eventsBody](t, do(t, s, http.MethodGet, "/api/v1/events?max=2", ""))
	if len(got.Events) != 2 || got.Events[0].Data != "903c64" || got.Events[1].Data != "803c00" {
		t.Fatalf("first drain = %+v", got.Events)
	}

	got = decode[eventsBody](t, do(t, s, http.MethodGet, "/api/v1/events", ""))
	if len(got.Events) != 1 || got.Events[0].Data != "b0077f" || got.Events[0].Time != 2.0 {
		t.Fatalf("second drain = %+v", got.Events)
	}

	got = decode[eventsBody](t, do(t, s, http.MethodGet, "/api/v1/events", ""))
	if len(got.Events) != 0 {
		t.Errorf("events replayed: %+v", got.Events)
	}
}

func TestDrainEventsBadMax(t *testing.T) {
	s, _, _ := newTestServer(t)
	for _, q := range []string{"0", "-1", "x"} {
		w := do(t, s, http.MethodGet, "/api/v1/events?max="+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("max=%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestStreamEvents(t *testing.T) {
	s, tr, _ := newTestServer(t, "USB MIDI 1")
	do(t, s, http.MethodGet, "/api/v1/ports", "")
	do(t, s, http.MethodPut, "/api/v1/selection", `{"index":1}`)
	tr.SendAt("USB MIDI 1", 0.25, []byte{0x90, 0x3c, 0x64})

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		if strings.HasPrefix(line, "data:") {
			break
		}
	}
	if len(lines) < 2 || lines[0] != "event:midi" {
		t.Fatalf("stream lines = %q", lines)
	}
	var ev contracts.MIDIEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[len(lines)-1], "data:")), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Data != "903c64" || ev.Time != 0.25 {
		t.Errorf("event = %+v", ev)
	}

	// The drain endpoint is locked out while the stream runs.
	if w := do(t, s, http.MethodGet, "/api/v1/events", ""); w.Code != http.StatusConflict {
		t.Errorf("drain during stream: status = %d, want 409", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{contracts.ErrInvalidSelection, http.StatusBadRequest},
		{fmt.Errorf("%w: gone", contracts.ErrPortUnavailable), http.StatusNotFound},
		{contracts.ErrPortBusy, http.StatusConflict},
		{contracts.ErrSessionStopped, http.StatusGone},
		{contracts.ErrDeviceEnumeration, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
