package main

import (
	"fmt"
	"strings"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"midisampler"
)

var cliDebug = debuggo.Debug("msampler:cli")

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "msplay",
		Short:         "Polyphonic MIDI sample player",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(configFile)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	if err := setupFlags(rootCmd); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		renderCommand(),
		playCommand(),
		jackCommand(),
		versionCommand(),
	)
	return rootCmd
}

// setupFlags defines the engine and input flags shared by all subcommands
// and binds them to viper keys of the same name.
func setupFlags(rootCmd *cobra.Command) error {
	def := midisampler.DefaultAudioConfig()
	env := midisampler.DefaultEnvelope()

	flags := rootCmd.PersistentFlags()
	flags.String("sample", "", "WAV or FLAC sample to play")
	flags.String("sfz", "", "SFZ instrument definition (instead of --sample)")
	flags.Int("root-note", 60, "Root note of --sample")
	flags.Bool("loop", false, "Loop --sample over its whole length")
	flags.String("midi", "", "Standard MIDI file to play (optional for jack)")

	flags.Uint32("sample-rate", def.SampleRate, "Output sample rate in Hz")
	flags.Uint16("channels", def.Channels, "Output channels (1 or 2)")
	flags.Uint16("polyphony", def.MaxPolyphony, "Maximum simultaneous voices")
	flags.Int("buffer-size", def.BufferSize, "Render block size in frames")

	flags.Float64("attack", env.Attack, "Envelope attack in seconds")
	flags.Float64("decay", env.Decay, "Envelope decay in seconds")
	flags.Float64("sustain", env.Sustain, "Envelope sustain level (0-1)")
	flags.Float64("release", env.Release, "Envelope release in seconds")
	flags.Float64("bend-range", 2, "Pitch bend range in semitones")

	flags.Float64("reverb", 0, "Reverb send level (0-1)")
	flags.Float64("room-size", 0.5, "Reverb room size (0-1)")
	flags.Float64("tail", 10, "Maximum seconds rendered after the last MIDI event")

	if err := viper.BindPFlags(flags); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

func initConfig(configFile string) error {
	viper.SetEnvPrefix("MSPLAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if configFile == "" {
		return nil
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", configFile, err)
	}
	cliDebug("Using config file %s", viper.ConfigFileUsed())
	return nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the sampler version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "msplay %s\n", midisampler.Version)
		},
	}
}
