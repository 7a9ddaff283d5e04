package midisampler

import "math"

// noteFrequencies maps MIDI note numbers to equal-tempered frequencies (A4 = 440 Hz).
var noteFrequencies = func() (table [128]float64) {
	for n := range table {
		table[n] = 440.0 * math.Pow(2.0, float64(n-69)/12.0)
	}
	return table
}()

// NoteFrequency returns the frequency of a MIDI note in Hz
func NoteFrequency(note uint8) float64 {
	return noteFrequencies[note&0x7F]
}

// Voice is one pool slot. Slots are reused across notes and only ever
// touched by the render path once the sampler is running.
type Voice struct {
	slotID uint32
	id     VoiceID

	active   bool
	note     uint8
	velocity uint8

	sample     *SampleBuffer // not owned
	instrument *Instrument   // not owned

	position  float64
	baseSpeed float64 // pitch ratio without bend
	speed     float64
	bendMult  float64
	bendGen   uint32
	gain      float64 // velocity/127

	env envelope
}

// trigger binds the voice to a sample and starts its envelope from silence.
func (v *Voice) trigger(inst *Instrument, sample *SampleBuffer, note, velocity uint8, params EnvelopeParams, sampleRate uint32) {
	v.active = true
	v.note = note
	v.velocity = velocity
	v.sample = sample
	v.instrument = inst
	v.position = 0

	v.baseSpeed = NoteFrequency(note) / NoteFrequency(sample.meta.RootNote)
	v.bendGen = inst.bendGen.Load()
	v.bendMult = inst.pitchBendMultiplier()
	v.speed = v.baseSpeed * v.bendMult
	v.gain = float64(velocity) / 127.0

	v.env.init(sampleRate, params)
	v.env.trigger()
}

func (v *Voice) release() {
	v.env.release()
}

func (v *Voice) stop() {
	v.active = false
	v.sample = nil
	v.instrument = nil
}

// syncInstrument applies instrument state changed from the control side since
// the last block. It reports false when the instrument has gone away.
func (v *Voice) syncInstrument() bool {
	inst := v.instrument
	if inst.destroyed.Load() {
		v.stop()
		return false
	}
	if g := inst.bendGen.Load(); g != v.bendGen {
		v.bendGen = g
		v.bendMult = inst.pitchBendMultiplier()
		v.speed = v.baseSpeed * v.bendMult
	}
	return true
}

// process mixes up to numFrames frames of this voice into out, which is
// interleaved with outChannels channels. Output is added, never overwritten.
// Multi-channel samples are read from their first channel only.
func (v *Voice) process(out []float32, numFrames int, outChannels int) {
	if !v.active || v.sample == nil {
		return
	}
	if !v.syncInstrument() {
		return
	}

	sample := v.sample
	data := sample.data
	stride := sample.channels
	frames := sample.frames
	endPos := float64(frames)
	loops := sample.meta.loops()
	loopStart := float64(sample.meta.LoopStart)

	position := v.position
	speed := v.speed
	gain := v.gain

	for i := 0; i < numFrames; i++ {
		if position >= endPos {
			if !loops {
				v.active = false
				break
			}
			position = loopStart
		}

		index := int(position)
		frac := position - float64(index)

		s0 := float64(data[index*stride])
		s1 := s0
		if index+1 < frames {
			s1 = float64(data[(index+1)*stride])
		}
		value := s0 + frac*(s1-s0)

		final := float32(value * v.env.process() * gain)
		if outChannels == 2 {
			out[i*2] += final
			out[i*2+1] += final
		} else {
			out[i] += final
		}

		position += speed

		if !v.env.isActive() {
			v.active = false
			break
		}
	}

	v.position = position
}

// Active reports whether the voice is sounding
func (v *Voice) Active() bool { return v.active }

// Note returns the note the voice was last triggered with
func (v *Voice) Note() uint8 { return v.note }

// Stage returns the envelope stage
func (v *Voice) Stage() EnvelopeStage { return v.env.stage }
