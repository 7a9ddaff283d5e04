package main

import (
	"fmt"

	"github.com/spf13/viper"

	"midisampler"
)

// Settings is the resolved command line, environment and config file input.
type Settings struct {
	Sample   string
	SFZ      string
	RootNote int
	Loop     bool
	MIDI     string

	Audio     midisampler.AudioConfig
	Envelope  midisampler.EnvelopeParams
	BendRange float64

	// set when the envelope or bend range was given explicitly, so it
	// overrides the values of an SFZ file
	EnvelopeSet  bool
	BendRangeSet bool

	Reverb   float64
	RoomSize float64
	Tail     float64
}

// loadSettings resolves the flags. requireMIDI is false for live hosts that
// take notes from an input port instead of a file.
func loadSettings(requireMIDI bool) (*Settings, error) {
	s := &Settings{
		Sample:   viper.GetString("sample"),
		SFZ:      viper.GetString("sfz"),
		RootNote: viper.GetInt("root-note"),
		Loop:     viper.GetBool("loop"),
		MIDI:     viper.GetString("midi"),
		Audio: midisampler.AudioConfig{
			SampleRate:   viper.GetUint32("sample-rate"),
			Channels:     viper.GetUint16("channels"),
			MaxPolyphony: viper.GetUint16("polyphony"),
			BufferSize:   viper.GetInt("buffer-size"),
		},
		Envelope: midisampler.EnvelopeParams{
			Attack:  viper.GetFloat64("attack"),
			Decay:   viper.GetFloat64("decay"),
			Sustain: viper.GetFloat64("sustain"),
			Release: viper.GetFloat64("release"),
		},
		BendRange: viper.GetFloat64("bend-range"),
		Reverb:    viper.GetFloat64("reverb"),
		RoomSize:  viper.GetFloat64("room-size"),
		Tail:      viper.GetFloat64("tail"),
	}

	for _, key := range []string{"attack", "decay", "sustain", "release"} {
		s.EnvelopeSet = s.EnvelopeSet || viper.IsSet(key)
	}
	s.BendRangeSet = viper.IsSet("bend-range")

	switch {
	case s.Sample == "" && s.SFZ == "":
		return nil, fmt.Errorf("one of --sample or --sfz is required")
	case s.Sample != "" && s.SFZ != "":
		return nil, fmt.Errorf("--sample and --sfz are mutually exclusive")
	case requireMIDI && s.MIDI == "":
		return nil, fmt.Errorf("--midi is required")
	case s.RootNote < 0 || s.RootNote > 127:
		return nil, fmt.Errorf("--root-note %d outside 0-127", s.RootNote)
	case s.Tail < 0:
		return nil, fmt.Errorf("--tail must not be negative")
	}
	return s, nil
}
