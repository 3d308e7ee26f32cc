package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leandrodaf/midiport/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestListVirtual(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	out, err := run(t, "--backend", "virtual", "--config", cfgPath, "--log-level", "error", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := "  0  NONE\n  1  Virtual Keyboard\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestUnknownBackend(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	_, err := run(t, "--backend", "nope", "--config", cfgPath, "list")
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("err = %v", err)
	}
}

func TestMonitorRemembersPort(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	out, err := run(t, "--backend", "virtual", "--config", cfgPath, "--log-level", "error",
		"monitor", "--port", "1", "--duration", "20ms")
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if !strings.Contains(out, "Monitoring Virtual Keyboard") {
		t.Errorf("output = %q", out)
	}

	cfg, err := config.LoadFrom(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LastPort != "Virtual Keyboard" {
		t.Errorf("LastPort = %q", cfg.LastPort)
	}

	// Without --port or --name the remembered port is reopened.
	out, err = run(t, "--backend", "virtual", "--config", cfgPath, "--log-level", "error",
		"monitor", "--duration", "20ms")
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if !strings.Contains(out, "Monitoring Virtual Keyboard") {
		t.Errorf("output = %q", out)
	}
}

func TestMonitorNeedsPort(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	_, err := run(t, "--backend", "virtual", "--config", cfgPath, "--log-level", "error", "monitor")
	if err == nil || !strings.Contains(err.Error(), "no port chosen") {
		t.Errorf("err = %v", err)
	}
}

func TestMonitorInvalidIndex(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	_, err := run(t, "--backend", "virtual", "--config", cfgPath, "--log-level", "error",
		"monitor", "--port", "7", "--duration", "20ms")
	if err == nil || !strings.Contains(err.Error(), "invalid") {
		t.Errorf("err = %v", err)
	}
}
