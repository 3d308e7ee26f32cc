package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/leandrodaf/midiport/internal/logger"
	"github.com/leandrodaf/midiport/sdk/contracts"
	"github.com/leandrodaf/midiport/sdk/midi"
)

func main() {
	log := logger.NewZapLogger()

	client, err := midi.NewMIDIClient(
		contracts.WithLogger(log),
		contracts.WithLogLevel(contracts.InfoLevel),
		contracts.WithMIDIEventFilter(contracts.MIDIEventFilter{
			Commands: []contracts.MIDICommand{contracts.NoteOn, contracts.NoteOff},
		}),
	)
	if err != nil {
		log.Error("Failed to initialize MIDI client", log.Field().Error("error", err))
		return
	}
	defer midi.Shutdown()
	defer client.Stop()

	ports, err := client.Enumerate()
	if err != nil {
		log.Error("Error listing MIDI ports", log.Field().Error("error", err))
		return
	}
	if len(ports) < 2 {
		log.Error("No MIDI input ports found")
		return
	}
	for _, p := range ports {
		fmt.Printf("%d: %s\n", p.Index, p.DisplayName)
	}

	if err = client.Select(1); err != nil {
		log.Error("Failed to select MIDI port", log.Field().Error("error", err))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("Capturing MIDI events... Press Ctrl+C to exit.")
	for event := range client.Events(ctx) {
		log.Info("MIDI Event",
			log.Field().Float64("Time", event.Time),
			log.Field().String("Data", event.Data),
		)
	}
}
