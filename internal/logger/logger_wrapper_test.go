package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leandrodaf/midiport/sdk/contracts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerWritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapLoggerFrom(zap.New(core))

	log.Info("MIDI device selected",
		log.Field().Int("index", 1),
		log.Field().String("port", "USB MIDI 1"),
		log.Field().Error("error", errors.New("boom")),
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["index"] != int64(1) {
		t.Errorf("index = %v, want 1", ctx["index"])
	}
	if ctx["port"] != "USB MIDI 1" {
		t.Errorf("port = %v, want USB MIDI 1", ctx["port"])
	}
	if ctx["error"] != "boom" {
		t.Errorf("error = %v, want boom", ctx["error"])
	}
}

func TestZapLoggerSetLevel(t *testing.T) {
	tests := []struct {
		level contracts.LogLevel
		want  int
	}{
		{contracts.DebugLevel, 4},
		{contracts.InfoLevel, 3},
		{contracts.WarnLevel, 2},
		{contracts.ErrorLevel, 1},
	}

	for _, tt := range tests {
		t.Run(zapLevelName(tt.level), func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			log := NewZapLoggerFrom(zap.New(core))
			log.SetLevel(tt.level)

			log.Debug("d")
			log.Info("i")
			log.Warn("w")
			log.Error("e")

			if got := logs.Len(); got != tt.want {
				t.Errorf("entries = %d, want %d", got, tt.want)
			}
		})
	}
}

func zapLevelName(l contracts.LogLevel) string {
	return toZapLevel(l).String()
}

func TestZapLoggerFileDestination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "midi.log")
	log := NewZapLogger().(*ZapLogger)

	if err := log.SetDestination(contracts.FileLog, path); err != nil {
		t.Fatalf("SetDestination: %v", err)
	}
	log.Warn("event buffer full", log.Field().Uint64("dropped", 3))
	if err := log.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"dropped":3`) {
		t.Errorf("log file missing field: %s", data)
	}
}

func TestZapLoggerFileDestinationRequiresPath(t *testing.T) {
	log := NewZapLogger()
	if err := log.SetDestination(contracts.FileLog); err == nil {
		t.Fatal("expected error for missing file path")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	log := NewNopLogger()
	log.Error("ignored", log.Field().Bool("ok", true))
}
