package main

import (
	"fmt"

	"github.com/leandrodaf/midiport/internal/config"
	"github.com/leandrodaf/midiport/internal/logger"
	"github.com/leandrodaf/midiport/sdk/contracts"
	"github.com/leandrodaf/midiport/sdk/midi"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	backend    string
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "midiport",
		Short: "List, select and monitor MIDI input ports",
		Long: `midiport enumerates the MIDI input ports of this machine, opens one
of them and prints or serves the messages it receives.

Examples:
  midiport list
  midiport monitor --port 1 --describe
  midiport monitor --name "USB MIDI 1"
  midiport serve --addr :8080`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&g.backend, "backend", "b", "", fmt.Sprintf("MIDI backend %v", midi.Backends()))
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file (default ~/.config/midiport/config.json)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(newListCmd(g))
	root.AddCommand(newMonitorCmd(g))
	root.AddCommand(newServeCmd(g))
	return root
}

// loadConfig reads the config file and applies flag overrides.
func (g *globals) loadConfig() (*config.Config, string, error) {
	path := g.configPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = p
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, "", err
	}
	if g.backend != "" {
		cfg.Backend = g.backend
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	return cfg, path, nil
}

// session bundles an open client with what the commands need around it.
type session struct {
	client contracts.ClientMIDI
	log    contracts.Logger
	cfg    *config.Config
	path   string
}

func (g *globals) openSession() (*session, error) {
	cfg, path, err := g.loadConfig()
	if err != nil {
		return nil, err
	}

	log := logger.NewZapLogger()
	opts := append(cfg.Options(), contracts.WithLogger(log))
	client, err := midi.NewMIDIClient(opts...)
	if err != nil {
		return nil, err
	}
	return &session{client: client, log: log, cfg: cfg, path: path}, nil
}

// close stops the session and releases the native MIDI clients.
func (s *session) close() error {
	return multierr.Combine(s.client.Stop(), midi.Shutdown())
}
