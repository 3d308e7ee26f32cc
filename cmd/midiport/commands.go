package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/leandrodaf/midiport/internal/api"
	"github.com/leandrodaf/midiport/internal/decoder"
	"github.com/leandrodaf/midiport/sdk/contracts"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func newListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List MIDI input ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := g.openSession()
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, s.close()) }()

			ports, err := s.client.Enumerate()
			if err != nil {
				return err
			}
			printPorts(cmd.OutOrStdout(), ports)
			return nil
		},
	}
}

func printPorts(w io.Writer, ports []contracts.PortEntry) {
	for _, p := range ports {
		fmt.Fprintf(w, "%3d  %s\n", p.Index, p.DisplayName)
	}
}

type monitorFlags struct {
	port     int
	name     string
	describe bool
	duration time.Duration
}

func newMonitorCmd(g *globals) *cobra.Command {
	f := &monitorFlags{}
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Open a port and print the messages it receives",
		Long: `Opens the port chosen by --port or --name and prints every message as
"<seconds> <hex>". Without either flag the last monitored port is reopened.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, g, f)
		},
	}
	cmd.Flags().IntVarP(&f.port, "port", "p", -1, "Port index as printed by list")
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "Port display name")
	cmd.Flags().BoolVarP(&f.describe, "describe", "d", false, "Append a readable description of each message")
	cmd.Flags().DurationVar(&f.duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	cmd.MarkFlagsMutuallyExclusive("port", "name")
	return cmd
}

func runMonitor(cmd *cobra.Command, g *globals, f *monitorFlags) (err error) {
	s, err := g.openSession()
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, s.close()) }()

	if _, err := s.client.Enumerate(); err != nil {
		return err
	}

	switch {
	case f.port >= 0:
		err = s.client.Select(f.port)
	case f.name != "":
		err = s.client.SelectByName(f.name)
	case s.cfg.LastPort != "":
		err = s.client.SelectByName(s.cfg.LastPort)
	default:
		return errors.New("no port chosen: use --port or --name")
	}
	if err != nil {
		return err
	}

	port, ok := s.client.Selected()
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "No port selected.")
		return nil
	}
	if s.cfg.LastPort != port.DisplayName {
		s.cfg.LastPort = port.DisplayName
		if err := s.cfg.SaveTo(s.path); err != nil {
			s.log.Warn("Could not save config", s.log.Field().Error("error", err))
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if f.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.duration)
		defer cancel()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Monitoring %s. Press Ctrl+C to exit.\n", port.DisplayName)
	for ev := range s.client.Events(ctx) {
		if f.describe {
			fmt.Fprintf(out, "%10.6f  %-12s %s\n", ev.Time, ev.Data, decoder.Describe(ev.Raw))
		} else {
			fmt.Fprintf(out, "%10.6f  %s\n", ev.Time, ev.Data)
		}
	}
	if dropped := s.client.Dropped(); dropped > 0 {
		fmt.Fprintf(out, "%d messages dropped on overflow\n", dropped)
	}
	return nil
}

func newServeCmd(g *globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the MIDI session over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := g.openSession()
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, s.close()) }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return api.NewServer(s.client, s.log).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "Listen address")
	return cmd
}
