package midisampler

import "math"

// EnvelopeParams is an ADSR parameter set. Times are in seconds.
type EnvelopeParams struct {
	Attack  float64
	Decay   float64
	Sustain float64 // level in [0,1]
	Release float64
}

// DefaultEnvelope is assigned to every new instrument.
func DefaultEnvelope() EnvelopeParams {
	return EnvelopeParams{
		Attack:  0.005,
		Decay:   0.05,
		Sustain: 0.7,
		Release: 0.1,
	}
}

func (p EnvelopeParams) valid() bool {
	for _, v := range [...]float64{p.Attack, p.Decay, p.Release, p.Sustain} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return p.Attack >= 0 && p.Decay >= 0 && p.Release >= 0 &&
		p.Sustain >= 0 && p.Sustain <= 1
}

// EnvelopeStage represents the current stage of the ADSR envelope
type EnvelopeStage int

const (
	EnvelopeIdle EnvelopeStage = iota
	EnvelopeAttack
	EnvelopeDecay
	EnvelopeSustain
	EnvelopeRelease
)

func (s EnvelopeStage) String() string {
	switch s {
	case EnvelopeIdle:
		return "idle"
	case EnvelopeAttack:
		return "attack"
	case EnvelopeDecay:
		return "decay"
	case EnvelopeSustain:
		return "sustain"
	case EnvelopeRelease:
		return "release"
	}
	return "unknown"
}

// envelope is a linear ADSR generator producing one gain value per frame.
// Per-sample deltas are computed once in init so process never divides.
// The zero value is an idle generator that outputs silence.
type envelope struct {
	stage EnvelopeStage
	level float64

	sustain        float64
	attackSamples  uint32
	decaySamples   uint32
	releaseSamples uint32

	attackDelta  float64
	decayDelta   float64
	releaseDelta float64

	stageSamples uint32
	processed    uint32
}

// stageLength converts a stage time to samples, at least one and saturating
// at math.MaxUint32.
func stageLength(seconds float64, sampleRate uint32) uint32 {
	n := seconds * float64(sampleRate)
	switch {
	case n >= math.MaxUint32:
		return math.MaxUint32
	case n < 1:
		return 1
	}
	return uint32(n)
}

func (e *envelope) init(sampleRate uint32, p EnvelopeParams) {
	*e = envelope{
		sustain:        p.Sustain,
		attackSamples:  stageLength(p.Attack, sampleRate),
		decaySamples:   stageLength(p.Decay, sampleRate),
		releaseSamples: stageLength(p.Release, sampleRate),
	}
	e.attackDelta = 1.0 / float64(e.attackSamples)
	e.decayDelta = (1.0 - p.Sustain) / float64(e.decaySamples)
	// Release ramps down from the configured sustain level, not from the
	// level the generator happens to be at when released.
	e.releaseDelta = p.Sustain / float64(e.releaseSamples)
}

// trigger restarts the attack from silence whatever the current stage.
func (e *envelope) trigger() {
	e.stage = EnvelopeAttack
	e.level = 0
	e.stageSamples = e.attackSamples
	e.processed = 0
}

func (e *envelope) release() {
	if e.stage == EnvelopeIdle {
		return
	}
	e.stage = EnvelopeRelease
	e.stageSamples = e.releaseSamples
	e.processed = 0
}

// process returns the level for the current frame and then advances one
// frame, so the first attack frame is exactly zero.
func (e *envelope) process() float64 {
	out := e.level

	switch e.stage {
	case EnvelopeIdle:
		return 0
	case EnvelopeAttack:
		if e.processed < e.stageSamples {
			e.level += e.attackDelta
			e.processed++
		} else {
			e.stage = EnvelopeDecay
			e.stageSamples = e.decaySamples
			e.processed = 0
			e.level = 1
		}
	case EnvelopeDecay:
		if e.processed < e.stageSamples {
			e.level -= e.decayDelta
			e.processed++
		} else {
			e.stage = EnvelopeSustain
			e.level = e.sustain
		}
	case EnvelopeSustain:
		e.level = e.sustain
	case EnvelopeRelease:
		if e.processed < e.stageSamples {
			e.level -= e.releaseDelta
			e.processed++
		} else {
			e.stage = EnvelopeIdle
			e.level = 0
		}
	}

	if e.level < 0 {
		e.level = 0
	} else if e.level > 1 {
		e.level = 1
	}

	return out
}

func (e *envelope) isActive() bool {
	return e.stage != EnvelopeIdle
}
