package midisampler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeSfz(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

func TestLoadSFZ(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "samples"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeSineWAV(t, filepath.Join(dir, "samples"), "c4.wav", 2000, 44100)
	writeSineWAV(t, dir, "e4.wav", 1500, 44100)

	path := writeSfz(t, dir, "piano.sfz", `
<global> ampeg_attack=0.02 ampeg_decay=0.1 ampeg_sustain=50 ampeg_release=0.3 bend_up=1200
<group> lovel=0 hivel=80
<region> sample=samples\c4.wav pitch_keycenter=c4
<region> sample=e4.wav key=64 loop_mode=loop_continuous loop_start=100
<group> lovel=81 hivel=127
<region> sample=samples/c4.wav pitch_keycenter=60 loop_mode=loop_sustain loop_start=10 loop_end=500
<region> lokey=0 hikey=10
`)

	s := newTestSampler(t, AudioConfig{SampleRate: 44100, Channels: 2, MaxPolyphony: 8})
	inst, err := LoadSFZ(s, path)
	if err != nil {
		t.Fatalf("LoadSFZ failed: %v", err)
	}

	if inst.Name() != "piano" {
		t.Errorf("Expected instrument named after the file, got %q", inst.Name())
	}
	if inst.NumSamples() != 3 {
		t.Fatalf("Expected 3 samples (region without sample skipped), got %d", inst.NumSamples())
	}

	samples := inst.Samples()
	soft, e4, loud := samples[0].Meta(), samples[1].Meta(), samples[2].Meta()

	if soft.RootNote != 60 || soft.VelocityLow != 0 || soft.VelocityHigh != 80 || soft.LoopEnabled {
		t.Errorf("Unexpected soft C4 meta: %+v", soft)
	}
	if e4.RootNote != 64 || !e4.LoopEnabled || e4.LoopStart != 100 || e4.LoopEnd != 1500 {
		t.Errorf("Unexpected E4 meta: %+v", e4)
	}
	if loud.VelocityLow != 81 || loud.LoopStart != 10 || loud.LoopEnd != 500 {
		t.Errorf("Unexpected loud C4 meta: %+v", loud)
	}
	if samples[0].Path() != samples[2].Path() {
		t.Errorf("Expected both C4 regions to use one file, got %q and %q", samples[0].Path(), samples[2].Path())
	}
	if &samples[0].data[0] != &samples[2].data[0] {
		t.Error("Expected regions sharing a file to share decoded data")
	}

	want := EnvelopeParams{Attack: 0.02, Decay: 0.1, Sustain: 0.5, Release: 0.3}
	if inst.Envelope() != want {
		t.Errorf("Expected envelope %+v, got %+v", want, inst.Envelope())
	}
	if inst.PitchBendRange() != 12 {
		t.Errorf("Expected bend range 12 semitones, got %f", inst.PitchBendRange())
	}

	if got := inst.FindSample(62, 100); got != samples[2] {
		t.Errorf("Expected loud layer for velocity 100, got %+v", got.Meta())
	}
	if got := inst.FindSample(63, 40); got != samples[1] {
		t.Errorf("Expected E4 for note 63 at velocity 40, got %+v", got.Meta())
	}
}

func TestLoadSFZDefaults(t *testing.T) {
	dir := t.TempDir()
	writeSineWAV(t, dir, "a.wav", 100, 44100)
	path := writeSfz(t, dir, "plain.sfz", "<region> sample=a.wav\n")

	s := newTestSampler(t, AudioConfig{SampleRate: 44100, Channels: 2, MaxPolyphony: 8})
	inst, err := LoadSFZ(s, path)
	if err != nil {
		t.Fatalf("LoadSFZ failed: %v", err)
	}

	meta := inst.Samples()[0].Meta()
	if meta.RootNote != 60 || meta.VelocityLow != 0 || meta.VelocityHigh != 127 {
		t.Errorf("Expected default mapping, got %+v", meta)
	}
	if inst.Envelope() != DefaultEnvelope() {
		t.Errorf("Expected default envelope, got %+v", inst.Envelope())
	}
	if inst.PitchBendRange() != 2 {
		t.Errorf("Expected default bend range 2, got %f", inst.PitchBendRange())
	}
}

func TestLoadSFZErrors(t *testing.T) {
	dir := t.TempDir()
	writeSineWAV(t, dir, "a.wav", 100, 44100)

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"missing sample", "<region> sample=missing.wav\n", ErrFileNotFound},
		{"no regions", "<global> ampeg_release=1\n", ErrInvalidFormat},
		{"regions without samples", "<region> key=60\n", ErrInvalidFormat},
		{"bad velocity range", "<region> sample=a.wav lovel=100 hivel=10\n", ErrInvalidParam},
		{"loop past end", "<region> sample=a.wav loop_mode=loop_continuous loop_start=500 loop_end=600\n", ErrInvalidParam},
		{"bad sustain", "<region> sample=a.wav ampeg_sustain=150\n", ErrInvalidParam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSampler(t, AudioConfig{SampleRate: 44100, Channels: 2, MaxPolyphony: 8})
			path := writeSfz(t, dir, "broken.sfz", tt.content)

			inst, err := LoadSFZ(s, path)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if inst != nil {
				t.Error("Expected no instrument on error")
			}
			if n := len(s.Instruments()); n != 0 {
				t.Errorf("Expected failed load to leave no instruments, got %d", n)
			}
		})
	}

	s := newTestSampler(t, AudioConfig{SampleRate: 44100, Channels: 2, MaxPolyphony: 8})
	if _, err := LoadSFZ(s, filepath.Join(dir, "none.sfz")); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Expected ErrFileNotFound for a missing SFZ, got %v", err)
	}
}

func TestLoadSFZPlays(t *testing.T) {
	dir := t.TempDir()
	writeSineWAV(t, dir, "tone.wav", 4410, 44100)
	path := writeSfz(t, dir, "tone.sfz", "<region> sample=tone.wav pitch_keycenter=a4 ampeg_attack=0\n")

	s := newTestSampler(t, AudioConfig{SampleRate: 44100, Channels: 2, MaxPolyphony: 8})
	inst, err := LoadSFZ(s, path)
	if err != nil {
		t.Fatalf("LoadSFZ failed: %v", err)
	}

	s.NoteOn(inst, 69, 127)
	if peak := maxAbs(process(t, s, 512)); peak < 0.1 {
		t.Errorf("Expected the SFZ instrument to sound, peak %f", peak)
	}
}
