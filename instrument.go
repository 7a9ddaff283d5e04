package midisampler

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

const defaultPitchBendRange = 2.0

// Instrument owns a set of samples, an envelope and pitch-bend state.
//
// The sample list and envelope are published through atomic pointers so the
// render path reads consistent snapshots without locking; mutators copy, modify
// and swap under mu.
type Instrument struct {
	name    string
	sampler *Sampler

	mu       sync.Mutex
	samples  atomic.Pointer[[]*SampleBuffer]
	envelope atomic.Pointer[EnvelopeParams]

	bendRange atomic.Uint64 // float64 bits, semitones
	bendValue atomic.Int32
	bendMult  atomic.Uint64 // float64 bits
	bendGen   atomic.Uint32

	destroyed atomic.Bool
}

func newInstrument(s *Sampler, name string) *Instrument {
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	inst := &Instrument{name: name, sampler: s}
	empty := make([]*SampleBuffer, 0)
	inst.samples.Store(&empty)
	env := DefaultEnvelope()
	inst.envelope.Store(&env)
	inst.bendRange.Store(math.Float64bits(defaultPitchBendRange))
	inst.bendMult.Store(math.Float64bits(1.0))
	return inst
}

// Name returns the instrument name
func (inst *Instrument) Name() string { return inst.name }

// NumSamples returns how many samples the instrument owns
func (inst *Instrument) NumSamples() int { return len(*inst.samples.Load()) }

// Samples returns the instrument's samples in load order. The returned slice
// must not be modified.
func (inst *Instrument) Samples() []*SampleBuffer { return *inst.samples.Load() }

// Envelope returns the envelope applied to newly triggered notes
func (inst *Instrument) Envelope() EnvelopeParams { return *inst.envelope.Load() }

// Destroyed reports whether the instrument has been destroyed
func (inst *Instrument) Destroyed() bool { return inst.destroyed.Load() }

func (inst *Instrument) usable() error {
	if inst == nil {
		return fmt.Errorf("nil instrument: %w", ErrInvalidParam)
	}
	if inst.destroyed.Load() {
		return fmt.Errorf("instrument %q destroyed: %w", inst.name, ErrInvalidParam)
	}
	return nil
}

// LoadSample decodes a WAV or FLAC file and appends it to the instrument.
func (inst *Instrument) LoadSample(filePath string, meta SampleMeta) error {
	if err := inst.usable(); err != nil {
		return err
	}
	if inst.NumSamples() >= MaxSamplesPerInstrument {
		return fmt.Errorf("instrument %q holds %d samples: %w", inst.name, MaxSamplesPerInstrument, ErrBufferOverflow)
	}

	pcm, err := decodeSampleFile(filePath)
	if err != nil {
		return err
	}
	return inst.addPCM(pcm, meta)
}

// LoadSampleMemory copies numFrames frames of interleaved PCM from data and
// appends them to the instrument as a new sample.
func (inst *Instrument) LoadSampleMemory(data []float32, numFrames int, channels int, meta SampleMeta) error {
	if err := inst.usable(); err != nil {
		return err
	}
	if numFrames <= 0 || channels <= 0 || len(data) < numFrames*channels {
		return fmt.Errorf("memory sample of %d frames x %d channels from %d values: %w",
			numFrames, channels, len(data), ErrInvalidParam)
	}
	if inst.NumSamples() >= MaxSamplesPerInstrument {
		return fmt.Errorf("instrument %q holds %d samples: %w", inst.name, MaxSamplesPerInstrument, ErrBufferOverflow)
	}

	pcm := &pcmData{
		data:     make([]float32, numFrames*channels),
		channels: channels,
	}
	copy(pcm.data, data)
	return inst.addPCM(pcm, meta)
}

func (inst *Instrument) addPCM(pcm *pcmData, meta SampleMeta) error {
	sb, err := newSampleBuffer(pcm, meta)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if err := inst.usable(); err != nil {
		return err
	}
	current := *inst.samples.Load()
	if len(current) >= MaxSamplesPerInstrument {
		return fmt.Errorf("instrument %q holds %d samples: %w", inst.name, MaxSamplesPerInstrument, ErrBufferOverflow)
	}
	next := make([]*SampleBuffer, len(current), len(current)+1)
	copy(next, current)
	next = append(next, sb)
	inst.samples.Store(&next)

	engineDebug("Instrument %q: added sample #%d (root=%d vel=%d-%d loop=%v frames=%d ch=%d)",
		inst.name, len(next), meta.RootNote, meta.VelocityLow, meta.VelocityHigh,
		meta.loops(), sb.frames, sb.channels)
	return nil
}

// SetEnvelope replaces the envelope used for notes triggered from now on.
func (inst *Instrument) SetEnvelope(p EnvelopeParams) error {
	if err := inst.usable(); err != nil {
		return err
	}
	if !p.valid() {
		return fmt.Errorf("envelope %+v out of range: %w", p, ErrInvalidParam)
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.envelope.Store(&p)
	engineDebug("Instrument %q: envelope A=%.3fs D=%.3fs S=%.2f R=%.3fs",
		inst.name, p.Attack, p.Decay, p.Sustain, p.Release)
	return nil
}

// PitchBendRange returns the bend range in semitones
func (inst *Instrument) PitchBendRange() float64 {
	return math.Float64frombits(inst.bendRange.Load())
}

// SetPitchBendRange sets the bend range in semitones and reapplies the
// current bend value.
func (inst *Instrument) SetPitchBendRange(semitones float64) error {
	if err := inst.usable(); err != nil {
		return err
	}
	if semitones < 0 || semitones > 48 || math.IsNaN(semitones) {
		return fmt.Errorf("pitch bend range %.2f: %w", semitones, ErrInvalidParam)
	}
	inst.bendRange.Store(math.Float64bits(semitones))
	return inst.applyPitchBend(int16(inst.bendValue.Load()))
}

// PitchBendValue returns the last pitch bend value
func (inst *Instrument) PitchBendValue() int16 {
	return int16(inst.bendValue.Load())
}

// PitchBend sets the 14-bit signed bend (-8192..8191, 0 = centre). Voices on
// this instrument pick the new ratio up at their next render block. Safe to
// call concurrently with Sampler.Process.
func (inst *Instrument) PitchBend(value int16) error {
	if err := inst.usable(); err != nil {
		return err
	}
	if value < -8192 || value > 8191 {
		return fmt.Errorf("pitch bend %d outside -8192..8191: %w", value, ErrInvalidParam)
	}
	return inst.applyPitchBend(value)
}

func (inst *Instrument) applyPitchBend(value int16) error {
	inst.bendValue.Store(int32(value))
	inst.bendMult.Store(math.Float64bits(bendMultiplier(value, inst.PitchBendRange())))
	inst.bendGen.Add(1)
	return nil
}

func (inst *Instrument) pitchBendMultiplier() float64 {
	return math.Float64frombits(inst.bendMult.Load())
}

func bendMultiplier(value int16, rangeSemitones float64) float64 {
	semitones := float64(value) / 8192.0 * rangeSemitones
	return math.Pow(2.0, semitones/12.0)
}

// FindSample resolves a note and velocity to a sample. Samples whose velocity
// range contains velocity win, closest root note first; when none matches the
// velocity, the closest root note over all samples is used. Earlier samples
// win ties. Returns nil only for an instrument without samples.
func (inst *Instrument) FindSample(note, velocity uint8) *SampleBuffer {
	return findSample(*inst.samples.Load(), note, velocity)
}

func findSample(samples []*SampleBuffer, note, velocity uint8) *SampleBuffer {
	var best *SampleBuffer
	minDistance := 128

	for _, sb := range samples {
		if !sb.meta.matchesVelocity(velocity) {
			continue
		}
		if d := noteDistance(note, sb.meta.RootNote); d < minDistance {
			minDistance = d
			best = sb
		}
	}
	if best != nil {
		return best
	}

	for _, sb := range samples {
		if d := noteDistance(note, sb.meta.RootNote); d < minDistance {
			minDistance = d
			best = sb
		}
	}
	return best
}

func noteDistance(a, b uint8) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}
