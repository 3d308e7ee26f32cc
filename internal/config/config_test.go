package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

func TestLoadFromMissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if *cfg != *DefaultConfig() {
		t.Errorf("got %+v, want defaults", cfg)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	want := &Config{
		Backend:      "virtual",
		SinkCapacity: 64,
		Overflow:     "drop-newest",
		LogLevel:     "debug",
		LastPort:     "USB MIDI 1",
	}
	if err := want.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if *got != *want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestLoadFromPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"lastPort":"Keys"}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.LastPort != "Keys" || cfg.SinkCapacity != 1024 || cfg.LogLevel != "info" {
		t.Errorf("got %+v", cfg)
	}
}

func TestLoadFromInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"backend":`},
		{"negative capacity", `{"sinkCapacity":-1}`},
		{"unknown overflow", `{"overflow":"drop-all"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(tt.body), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFrom(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestParseOverflow(t *testing.T) {
	tests := []struct {
		name    string
		want    contracts.OverflowPolicy
		wantErr bool
	}{
		{"", contracts.DropOldest, false},
		{"drop-oldest", contracts.DropOldest, false},
		{"drop-newest", contracts.DropNewest, false},
		{"DROP-NEWEST", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseOverflow(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOverflow(%q) err = %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOverflow(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOptions(t *testing.T) {
	cfg := &Config{Backend: "virtual", SinkCapacity: 16, Overflow: "drop-newest", LogLevel: "warn"}
	var opts contracts.ClientOptions
	for _, opt := range cfg.Options() {
		opt(&opts)
	}
	if opts.Backend != "virtual" || opts.SinkCapacity != 16 ||
		opts.OverflowPolicy != contracts.DropNewest || opts.LogLevel != contracts.WarnLevel {
		t.Errorf("got %+v", opts)
	}
	if opts.LogFilePath != "" {
		t.Errorf("LogFilePath = %q, want empty", opts.LogFilePath)
	}
}
