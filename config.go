package midisampler

import "fmt"

const (
	// MaxVoices is the hard ceiling on polyphony. Larger requests are clamped.
	MaxVoices = 64

	// MaxSamplesPerInstrument bounds the sample collection of one instrument.
	MaxSamplesPerInstrument = 128

	// DefaultBufferSize is the render block size used when none is configured.
	DefaultBufferSize = 512

	maxNameLength = 63
)

// AudioConfig describes the output format of a Sampler. It is copied on
// creation and never changes afterwards.
type AudioConfig struct {
	SampleRate   uint32 // Hz, e.g. 44100 or 48000
	Channels     uint16 // 1 = mono, 2 = stereo
	MaxPolyphony uint16 // simultaneous voices, clamped to MaxVoices
	BufferSize   int    // render block size in frames
}

// DefaultAudioConfig returns the configuration used by the msplay tool.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:   44100,
		Channels:     2,
		MaxPolyphony: 32,
		BufferSize:   DefaultBufferSize,
	}
}

// Validate checks the configuration and returns a normalized copy.
func (c AudioConfig) Validate() (AudioConfig, error) {
	if c.SampleRate == 0 {
		return c, fmt.Errorf("sample rate must be positive: %w", ErrInvalidParam)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return c, fmt.Errorf("unsupported channel count %d: %w", c.Channels, ErrInvalidParam)
	}
	if c.MaxPolyphony == 0 {
		return c, fmt.Errorf("polyphony must be at least 1: %w", ErrInvalidParam)
	}
	if c.MaxPolyphony > MaxVoices {
		engineDebug("Clamping polyphony %d to %d", c.MaxPolyphony, MaxVoices)
		c.MaxPolyphony = MaxVoices
	}
	if c.BufferSize < 0 {
		return c, fmt.Errorf("negative buffer size %d: %w", c.BufferSize, ErrInvalidParam)
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	return c, nil
}
