package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"midisampler"
)

func jackCommand() *cobra.Command {
	var clientName string

	cmd := &cobra.Command{
		Use:   "jack",
		Short: "Run as a JACK client playing notes from its MIDI input port",
		Long: `Registers one audio output port per channel and a midi_in port.
If --midi is given the file is played as well. Requires a build with -tags jack.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(false)
			if err != nil {
				return err
			}
			ss, err := newSession(settings)
			if err != nil {
				return err
			}
			defer ss.Close()

			host, err := midisampler.NewJackHost(ss.sampler, ss.inst, ss.reverb, clientName)
			if err != nil {
				return err
			}
			defer host.Close()

			if err := host.Start(); err != nil {
				return err
			}
			defer host.Stop()

			if ss.song != nil {
				if err := ss.sampler.StartPlayback(); err != nil {
					return err
				}
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			cliDebug("JACK client %q running, interrupt to quit", clientName)
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&clientName, "client-name", "msplay", "JACK client name")
	return cmd
}
