package midisampler

import (
	"math"
	"testing"
)

// 1 kHz keeps stage lengths readable: 0.01 s = 10 samples.
const envTestRate = 1000

func testEnvelope(p EnvelopeParams) *envelope {
	var e envelope
	e.init(envTestRate, p)
	e.trigger()
	return &e
}

func TestEnvelopeStartsFromSilence(t *testing.T) {
	e := testEnvelope(EnvelopeParams{Attack: 0.01, Decay: 0.01, Sustain: 0.5, Release: 0.01})

	if e.stage != EnvelopeAttack {
		t.Fatalf("Expected attack stage after trigger, got %s", e.stage)
	}
	if level := e.process(); level != 0 {
		t.Errorf("Expected first attack sample to be exactly 0, got %f", level)
	}
	if level := e.process(); level <= 0 {
		t.Errorf("Expected attack to rise, got %f", level)
	}
}

func TestEnvelopeReachesSustain(t *testing.T) {
	e := testEnvelope(EnvelopeParams{Attack: 0.01, Decay: 0.01, Sustain: 0.5, Release: 0.01})

	// 10 attack steps, the switch to decay, 10 decay steps, the switch to sustain
	for i := 0; i < 25; i++ {
		e.process()
	}

	if e.stage != EnvelopeSustain {
		t.Fatalf("Expected sustain stage, got %s", e.stage)
	}
	for i := 0; i < 5; i++ {
		if level := e.process(); level != 0.5 {
			t.Errorf("Expected sustain level exactly 0.5, got %f", level)
		}
	}
}

func TestEnvelopeAttackPeak(t *testing.T) {
	e := testEnvelope(EnvelopeParams{Attack: 0.01, Decay: 0.01, Sustain: 0.5, Release: 0.01})

	var peak float64
	for i := 0; i < 25; i++ {
		if level := e.process(); level > peak {
			peak = level
		}
	}
	if peak != 1.0 {
		t.Errorf("Expected attack to peak at 1.0, got %f", peak)
	}
}

func TestEnvelopeReleaseReachesIdle(t *testing.T) {
	tests := []struct {
		name    string
		prelude int // process calls before release
	}{
		{"during attack", 3},
		{"during decay", 15},
		{"during sustain", 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEnvelope(EnvelopeParams{Attack: 0.01, Decay: 0.01, Sustain: 0.5, Release: 0.01})
			for i := 0; i < tt.prelude; i++ {
				e.process()
			}

			e.release()
			if e.stage != EnvelopeRelease {
				t.Fatalf("Expected release stage, got %s", e.stage)
			}

			calls := 0
			for e.isActive() {
				level := e.process()
				if level < 0 || level > 1 {
					t.Fatalf("Level %f outside [0,1]", level)
				}
				calls++
				if calls > 100 {
					t.Fatal("Envelope never reached idle")
				}
			}

			if releaseSamples := int(e.releaseSamples); calls > releaseSamples+1 {
				t.Errorf("Expected idle within %d calls, took %d", releaseSamples+1, calls)
			}
			if e.level != 0 {
				t.Errorf("Expected level 0 when idle, got %f", e.level)
			}
		})
	}
}

func TestEnvelopeZeroLengthStages(t *testing.T) {
	e := testEnvelope(EnvelopeParams{Attack: 0, Decay: 0, Sustain: 1.0, Release: 0})

	if e.attackSamples != 1 || e.decaySamples != 1 || e.releaseSamples != 1 {
		t.Fatalf("Expected 1-sample stages, got A=%d D=%d R=%d",
			e.attackSamples, e.decaySamples, e.releaseSamples)
	}
	if level := e.process(); level != 0 {
		t.Errorf("Expected first sample 0, got %f", level)
	}
	if level := e.process(); level != 1.0 {
		t.Errorf("Expected full level on second sample, got %f", level)
	}
}

func TestEnvelopeRetrigger(t *testing.T) {
	e := testEnvelope(EnvelopeParams{Attack: 0.01, Decay: 0.01, Sustain: 0.5, Release: 0.01})
	for i := 0; i < 30; i++ {
		e.process()
	}

	e.trigger()
	if e.stage != EnvelopeAttack {
		t.Errorf("Expected attack after retrigger, got %s", e.stage)
	}
	if level := e.process(); level != 0 {
		t.Errorf("Expected retrigger to restart from 0, got %f", level)
	}
}

func TestEnvelopeIdle(t *testing.T) {
	var e envelope

	if e.isActive() {
		t.Error("Expected zero envelope to be idle")
	}
	if level := e.process(); level != 0 {
		t.Errorf("Expected idle envelope to output 0, got %f", level)
	}

	e.release()
	if e.stage != EnvelopeIdle {
		t.Errorf("Expected release from idle to stay idle, got %s", e.stage)
	}
}

func TestEnvelopeUsesSampleRate(t *testing.T) {
	var e envelope
	e.init(48000, EnvelopeParams{Attack: 0.01, Decay: 0.02, Sustain: 0.5, Release: 0.1})

	if e.attackSamples != 480 {
		t.Errorf("Expected 480 attack samples, got %d", e.attackSamples)
	}
	if e.decaySamples != 960 {
		t.Errorf("Expected 960 decay samples, got %d", e.decaySamples)
	}
	if e.releaseSamples != 4800 {
		t.Errorf("Expected 4800 release samples, got %d", e.releaseSamples)
	}
}

func TestEnvelopeStageLengthSaturates(t *testing.T) {
	var e envelope
	e.init(48000, EnvelopeParams{Attack: 1e5, Decay: 1e9, Sustain: 1, Release: 0.5})

	if e.attackSamples != math.MaxUint32 {
		t.Errorf("Expected attack to saturate at %d samples, got %d", uint32(math.MaxUint32), e.attackSamples)
	}
	if e.decaySamples != math.MaxUint32 {
		t.Errorf("Expected decay to saturate at %d samples, got %d", uint32(math.MaxUint32), e.decaySamples)
	}
	if e.releaseSamples != 24000 {
		t.Errorf("Expected 24000 release samples, got %d", e.releaseSamples)
	}

	e.trigger()
	e.process()
	if level := e.process(); level <= 0 || level > 1e-9 {
		t.Errorf("Expected a very slow attack, got level %g after one sample", level)
	}
}

func TestEnvelopeParamsValidation(t *testing.T) {
	tests := []struct {
		name   string
		params EnvelopeParams
		valid  bool
	}{
		{"default", DefaultEnvelope(), true},
		{"zero", EnvelopeParams{}, true},
		{"negative attack", EnvelopeParams{Attack: -1}, false},
		{"sustain above one", EnvelopeParams{Sustain: 1.5}, false},
		{"negative sustain", EnvelopeParams{Sustain: -0.1}, false},
		{"infinite attack", EnvelopeParams{Attack: math.Inf(1)}, false},
		{"infinite release", EnvelopeParams{Release: math.Inf(1)}, false},
		{"NaN decay", EnvelopeParams{Decay: math.NaN()}, false},
		{"NaN sustain", EnvelopeParams{Sustain: math.NaN()}, false},
		{"huge attack", EnvelopeParams{Attack: 1e5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.valid(); got != tt.valid {
				t.Errorf("valid() = %v, want %v", got, tt.valid)
			}
		})
	}
}
