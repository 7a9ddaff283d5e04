package midisampler

import (
	"github.com/GeoffreyPlitt/debuggo"
)

var reverbDebug = debuggo.Debug("msampler:reverb")

// Freeverb after Jezar at Dreampoint: eight parallel damped combs feeding
// four series allpasses per channel. Delay lengths are tuned for 44.1 kHz
// and scaled to the output rate.

const (
	numCombs     = 8
	numAllpasses = 4

	fixedGain    = 0.015
	scaleWet     = 3.0
	scaleDry     = 2.0
	scaleDamp    = 0.4
	scaleRoom    = 0.28
	offsetRoom   = 0.7
	initialRoom  = 0.5
	initialDamp  = 0.5
	initialWet   = 1.0 / scaleWet
	initialDry   = 0.0
	initialWidth = 1.0
	stereoSpread = 23
)

var (
	combTunings    = [numCombs]int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
	allpassTunings = [numAllpasses]int{556, 441, 341, 225}
)

// combFilter is a feedback comb with a one-pole lowpass in the loop
type combFilter struct {
	buffer      []float64
	bufferIdx   int
	feedback    float64
	damp1       float64
	damp2       float64
	filterStore float64
}

func newCombFilter(size int) *combFilter {
	return &combFilter{buffer: make([]float64, max(size, 1))}
}

func (cf *combFilter) process(input float64) float64 {
	output := cf.buffer[cf.bufferIdx]
	cf.filterStore = (output * cf.damp2) + (cf.filterStore * cf.damp1)
	cf.buffer[cf.bufferIdx] = input + (cf.filterStore * cf.feedback)

	cf.bufferIdx++
	if cf.bufferIdx >= len(cf.buffer) {
		cf.bufferIdx = 0
	}
	return output
}

func (cf *combFilter) setDamp(val float64) {
	cf.damp1 = val
	cf.damp2 = 1.0 - val
}

type allpassFilter struct {
	buffer    []float64
	bufferIdx int
	feedback  float64
}

func newAllpassFilter(size int) *allpassFilter {
	return &allpassFilter{buffer: make([]float64, max(size, 1)), feedback: 0.5}
}

func (af *allpassFilter) process(input float64) float64 {
	bufout := af.buffer[af.bufferIdx]
	output := -input + bufout
	af.buffer[af.bufferIdx] = input + (bufout * af.feedback)

	af.bufferIdx++
	if af.bufferIdx >= len(af.buffer) {
		af.bufferIdx = 0
	}
	return output
}

// Freeverb is a stereo reverberator. It is not safe for concurrent use.
type Freeverb struct {
	combsL     [numCombs]*combFilter
	combsR     [numCombs]*combFilter
	allpassesL [numAllpasses]*allpassFilter
	allpassesR [numAllpasses]*allpassFilter

	gain     float64
	roomSize float64
	damp     float64
	wet      float64
	dry      float64
	width    float64
}

// NewFreeverb creates a new Freeverb processor
func NewFreeverb(sampleRate int) *Freeverb {
	fv := &Freeverb{
		gain:     fixedGain,
		roomSize: initialRoom,
		damp:     initialDamp,
		wet:      initialWet * scaleWet,
		dry:      initialDry,
		width:    initialWidth,
	}

	scaleFactor := float64(sampleRate) / 44100.0
	for i, tuning := range combTunings {
		delay := int(float64(tuning) * scaleFactor)
		fv.combsL[i] = newCombFilter(delay)
		fv.combsR[i] = newCombFilter(delay + stereoSpread)
	}
	for i, tuning := range allpassTunings {
		delay := int(float64(tuning) * scaleFactor)
		fv.allpassesL[i] = newAllpassFilter(delay)
		fv.allpassesR[i] = newAllpassFilter(delay + stereoSpread)
	}
	fv.updateParameters()

	reverbDebug("Freeverb initialized: sampleRate=%d, scaleFactor=%.2f", sampleRate, scaleFactor)
	return fv
}

func (fv *Freeverb) updateParameters() {
	roomScaled := (fv.roomSize * scaleRoom) + offsetRoom
	dampScaled := fv.damp * scaleDamp

	for i := 0; i < numCombs; i++ {
		fv.combsL[i].feedback = roomScaled
		fv.combsR[i].feedback = roomScaled
		fv.combsL[i].setDamp(dampScaled)
		fv.combsR[i].setDamp(dampScaled)
	}
}

func clamp01(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

// SetRoomSize sets the room size (0.0 to 1.0)
func (fv *Freeverb) SetRoomSize(size float64) {
	fv.roomSize = clamp01(size)
	fv.updateParameters()
}

// SetDamping sets the damping amount (0.0 to 1.0)
func (fv *Freeverb) SetDamping(damp float64) {
	fv.damp = clamp01(damp)
	fv.updateParameters()
}

// SetWet sets the wet level (0.0 to 1.0)
func (fv *Freeverb) SetWet(wet float64) { fv.wet = clamp01(wet) * scaleWet }

// SetDry sets the dry level (0.0 to 1.0)
func (fv *Freeverb) SetDry(dry float64) { fv.dry = clamp01(dry) * scaleDry }

// SetWidth sets the stereo width (0.0 to 1.0)
func (fv *Freeverb) SetWidth(width float64) { fv.width = clamp01(width) }

// RoomSize returns the current room size
func (fv *Freeverb) RoomSize() float64 { return fv.roomSize }

// Damping returns the current damping
func (fv *Freeverb) Damping() float64 { return fv.damp }

// Wet returns the current wet level
func (fv *Freeverb) Wet() float64 { return fv.wet / scaleWet }

// Dry returns the current dry level
func (fv *Freeverb) Dry() float64 { return fv.dry / scaleDry }

// Width returns the current stereo width
func (fv *Freeverb) Width() float64 { return fv.width }

// ProcessStereo processes a stereo sample pair through the reverb
func (fv *Freeverb) ProcessStereo(inputL, inputR float64) (outputL, outputR float64) {
	input := (inputL + inputR) * fv.gain

	var outL, outR float64
	for i := 0; i < numCombs; i++ {
		outL += fv.combsL[i].process(input)
		outR += fv.combsR[i].process(input)
	}
	for i := 0; i < numAllpasses; i++ {
		outL = fv.allpassesL[i].process(outL)
		outR = fv.allpassesR[i].process(outR)
	}

	wet1 := fv.wet * (fv.width/2.0 + 0.5)
	wet2 := fv.wet * ((1.0 - fv.width) / 2.0)

	outputL = outL*wet1 + outR*wet2 + inputL*fv.dry
	outputR = outR*wet1 + outL*wet2 + inputR*fv.dry
	return outputL, outputR
}

// ProcessMono processes a mono sample through the reverb
func (fv *Freeverb) ProcessMono(input float64) float64 {
	outL, _ := fv.ProcessStereo(input, input)
	return outL
}

// Reverb is a master send effect for interleaved sampler output. The signal
// passes dry and the reverberated copy is added scaled by the send level.
type Reverb struct {
	fv       *Freeverb
	channels int
	send     float64
}

// NewReverb creates a send reverb for blocks of the given format.
func NewReverb(sampleRate uint32, channels uint16, send float64) *Reverb {
	fv := NewFreeverb(int(sampleRate))
	fv.SetWet(1.0)
	fv.SetDry(0.0)
	r := &Reverb{fv: fv, channels: int(channels), send: clamp01(send)}
	reverbDebug("Reverb send %.2f on %d channels", r.send, r.channels)
	return r
}

// Freeverb exposes the underlying reverberator for tuning.
func (r *Reverb) Freeverb() *Freeverb { return r.fv }

// SetSend sets the send level (0.0 to 1.0)
func (r *Reverb) SetSend(send float64) { r.send = clamp01(send) }

// Send returns the send level
func (r *Reverb) Send() float64 { return r.send }

// Process adds reverb to numFrames interleaved frames of buf in place.
// A zero send leaves buf untouched.
func (r *Reverb) Process(buf []float32, numFrames int) {
	if r.send == 0 {
		return
	}
	switch r.channels {
	case 2:
		for i := 0; i < numFrames; i++ {
			l, rr := float64(buf[i*2]), float64(buf[i*2+1])
			wetL, wetR := r.fv.ProcessStereo(l, rr)
			buf[i*2] = float32(l + wetL*r.send)
			buf[i*2+1] = float32(rr + wetR*r.send)
		}
	case 1:
		for i := 0; i < numFrames; i++ {
			dry := float64(buf[i])
			buf[i] = float32(dry + r.fv.ProcessMono(dry)*r.send)
		}
	}
}
