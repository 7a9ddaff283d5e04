package midisampler

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/patrickmn/go-cache"
)

var sampleDebug = debuggo.Debug("msampler:sample")

// SampleMeta describes how a sample is mapped and played.
type SampleMeta struct {
	RootNote     uint8  // MIDI note at which the sample plays unshifted
	VelocityLow  uint8  // lowest velocity served by this sample
	VelocityHigh uint8  // highest velocity served by this sample
	LoopEnabled  bool   // wrap to LoopStart when playback runs off the end
	LoopStart    uint32 // loop start in frames
	LoopEnd      uint32 // loop end in frames
}

// FullRangeMeta returns metadata that serves every velocity at the given root note.
func FullRangeMeta(rootNote uint8) SampleMeta {
	return SampleMeta{RootNote: rootNote, VelocityLow: 0, VelocityHigh: 127}
}

func (m SampleMeta) validate(numFrames int) error {
	if m.RootNote > 127 {
		return fmt.Errorf("root note %d out of range: %w", m.RootNote, ErrInvalidParam)
	}
	if m.VelocityLow > m.VelocityHigh || m.VelocityHigh > 127 {
		return fmt.Errorf("velocity range [%d,%d] invalid: %w", m.VelocityLow, m.VelocityHigh, ErrInvalidParam)
	}
	if m.loops() && int64(m.LoopStart) >= int64(numFrames) {
		return fmt.Errorf("loop start %d beyond %d frames: %w", m.LoopStart, numFrames, ErrInvalidParam)
	}
	return nil
}

func (m SampleMeta) loops() bool {
	return m.LoopEnabled && m.LoopEnd > m.LoopStart
}

func (m SampleMeta) matchesVelocity(velocity uint8) bool {
	return velocity >= m.VelocityLow && velocity <= m.VelocityHigh
}

// SampleBuffer is an immutable PCM sample owned by an Instrument. Voices read
// it concurrently without synchronization; nothing writes to it after load.
type SampleBuffer struct {
	data       []float32 // interleaved when channels > 1
	frames     int
	channels   int
	sampleRate int
	path       string
	meta       SampleMeta
}

// Frames returns the number of frames in the sample
func (sb *SampleBuffer) Frames() int { return sb.frames }

// Channels returns the channel count of the source data
func (sb *SampleBuffer) Channels() int { return sb.channels }

// SampleRate returns the rate the sample was recorded at, 0 for memory samples.
func (sb *SampleBuffer) SampleRate() int { return sb.sampleRate }

// Path returns the file the sample was decoded from, empty for memory samples.
func (sb *SampleBuffer) Path() string { return sb.path }

// Meta returns the sample's mapping metadata
func (sb *SampleBuffer) Meta() SampleMeta { return sb.meta }

// Frame returns the value of one channel at one frame.
func (sb *SampleBuffer) Frame(frame, channel int) float32 {
	return sb.data[frame*sb.channels+channel]
}

// pcmData is decoded, normalized audio before it is bound to metadata.
type pcmData struct {
	data       []float32
	channels   int
	sampleRate int
	path       string
}

func (p *pcmData) frames() int {
	if p.channels == 0 {
		return 0
	}
	return len(p.data) / p.channels
}

func newSampleBuffer(p *pcmData, meta SampleMeta) (*SampleBuffer, error) {
	if p.channels < 1 {
		return nil, fmt.Errorf("sample has %d channels: %w", p.channels, ErrInvalidFormat)
	}
	frames := p.frames()
	if frames == 0 {
		return nil, fmt.Errorf("sample has no frames: %w", ErrInvalidFormat)
	}
	if err := meta.validate(frames); err != nil {
		return nil, err
	}
	return &SampleBuffer{
		data:       p.data[:frames*p.channels],
		frames:     frames,
		channels:   p.channels,
		sampleRate: p.sampleRate,
		path:       p.path,
		meta:       meta,
	}, nil
}

// decodeSampleFile decodes a WAV or FLAC file into normalized float PCM.
// Only 8-bit and 16-bit integer PCM is accepted.
func decodeSampleFile(filePath string) (*pcmData, error) {
	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("sample file %s: %w", filePath, ErrFileNotFound)
		}
		return nil, fmt.Errorf("stat sample file %s: %w", filePath, err)
	}

	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".wav":
		return decodeWAV(filePath)
	case ".flac":
		return decodeFLAC(filePath)
	default:
		return nil, fmt.Errorf("unsupported audio format %q (supported: .wav, .flac): %w", ext, ErrInvalidFormat)
	}
}

func decodeWAV(filePath string) (*pcmData, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file %s: %w", filePath, err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file %s: %w", filePath, ErrInvalidFormat)
	}
	if decoder.WavAudioFormat != 1 {
		return nil, fmt.Errorf("WAV file %s is not integer PCM (format %d): %w",
			filePath, decoder.WavAudioFormat, ErrInvalidFormat)
	}

	var scale func(int) float32
	switch decoder.BitDepth {
	case 16:
		scale = func(v int) float32 { return float32(v) / 32768.0 }
	case 8:
		// 8-bit WAV data is unsigned
		scale = func(v int) float32 { return float32(v-128) / 128.0 }
	default:
		return nil, fmt.Errorf("WAV file %s has %d-bit samples, only 8 and 16 are supported: %w",
			filePath, decoder.BitDepth, ErrInvalidFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data from %s: %v: %w", filePath, err, ErrInvalidFormat)
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		return nil, fmt.Errorf("WAV file %s declares no channels: %w", filePath, ErrInvalidFormat)
	}

	frames := len(buf.Data) / channels
	samples := make([]float32, frames*channels)
	for i := range samples {
		samples[i] = scale(buf.Data[i])
	}

	sampleDebug("Decoded WAV %s: %d Hz, %d ch, %d-bit, %d frames",
		filePath, decoder.SampleRate, channels, decoder.BitDepth, frames)

	return &pcmData{
		data:       samples,
		channels:   channels,
		sampleRate: int(decoder.SampleRate),
		path:       filePath,
	}, nil
}

func decodeFLAC(filePath string) (*pcmData, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file %s: %w", filePath, err)
	}
	defer file.Close()

	stream, err := flac.New(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create FLAC decoder for %s: %v: %w", filePath, err, ErrInvalidFormat)
	}
	defer stream.Close()

	info := stream.Info
	if info == nil {
		return nil, fmt.Errorf("no stream info in FLAC file %s: %w", filePath, ErrInvalidFormat)
	}

	var divisor float32
	switch info.BitsPerSample {
	case 16:
		divisor = 32768.0
	case 8:
		divisor = 128.0
	default:
		return nil, fmt.Errorf("FLAC file %s has %d-bit samples, only 8 and 16 are supported: %w",
			filePath, info.BitsPerSample, ErrInvalidFormat)
	}

	channels := int(info.NChannels)
	samples := make([]float32, 0, int(info.NSamples)*channels)
	for {
		frame, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read FLAC frame from %s: %v: %w", filePath, err, ErrInvalidFormat)
		}
		if len(frame.Subframes) < channels {
			return nil, fmt.Errorf("FLAC frame in %s has %d subframes, want %d: %w",
				filePath, len(frame.Subframes), channels, ErrInvalidFormat)
		}

		for i := 0; i < len(frame.Subframes[0].Samples); i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, float32(frame.Subframes[ch].Samples[i])/divisor)
			}
		}
	}

	sampleDebug("Decoded FLAC %s: %d Hz, %d ch, %d-bit, %d frames",
		filePath, info.SampleRate, channels, info.BitsPerSample, len(samples)/channels)

	return &pcmData{
		data:       samples,
		channels:   channels,
		sampleRate: int(info.SampleRate),
		path:       filePath,
	}, nil
}

// SampleCache keeps decoded audio by path so several sample definitions that
// point at the same file decode it once. It is safe for concurrent use.
type SampleCache struct {
	samples *cache.Cache
}

// NewSampleCache creates a new sample cache
func NewSampleCache() *SampleCache {
	// no expiry and no janitor goroutine: entries live until Clear
	return &SampleCache{
		samples: cache.New(cache.NoExpiration, 0),
	}
}

func (sc *SampleCache) load(filePath string) (*pcmData, error) {
	if cached, ok := sc.samples.Get(filePath); ok {
		sampleDebug("Sample already cached: %s", filePath)
		return cached.(*pcmData), nil
	}

	pcm, err := decodeSampleFile(filePath)
	if err != nil {
		return nil, err
	}
	sc.samples.Set(filePath, pcm, cache.NoExpiration)
	return pcm, nil
}

// Contains reports whether a file has already been decoded
func (sc *SampleCache) Contains(filePath string) bool {
	_, ok := sc.samples.Get(filePath)
	return ok
}

// Clear removes all samples from the cache
func (sc *SampleCache) Clear() {
	sc.samples.Flush()
	sampleDebug("Sample cache cleared")
}

// Size returns the number of cached samples
func (sc *SampleCache) Size() int {
	return sc.samples.ItemCount()
}
