package midisampler

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// smfBytes assembles a standard MIDI file from a header and raw chunks.
func smfBytes(format, tracks, division uint16, chunks ...[]byte) []byte {
	out := []byte("MThd")
	out = binary.BigEndian.AppendUint32(out, 6)
	out = binary.BigEndian.AppendUint16(out, format)
	out = binary.BigEndian.AppendUint16(out, tracks)
	out = binary.BigEndian.AppendUint16(out, division)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func chunk(id string, body []byte) []byte {
	out := []byte(id)
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

func endOfTrack() []byte { return []byte{0x00, 0xFF, 0x2F, 0x00} }

func TestParseMIDI(t *testing.T) {
	track := []byte{
		0x00, 0xFF, 0x51, 0x03, 0x0F, 0x42, 0x40, // tempo 1000000
		0x00, 0x90, 0x3C, 0x64, // note on 60
		0x60, 0x3E, 0x50, // running status: note on 62 at tick 96
		0x81, 0x40, 0x3C, 0x00, // running status, velocity 0: note off 60 at tick 288
		0x00, 0x81, 0x3E, 0x40, // note off 62, channel 2
		0x00, 0xE0, 0x00, 0x40, // pitch bend centre
		0x00, 0xE0, 0x7F, 0x7F, // pitch bend max
		0x00, 0xC0, 0x05, // program change, skipped
		0x00, 0xF0, 0x02, 0x01, 0xF7, // sysex, skipped
		0x00, 0xFF, 0x01, 0x02, 'h', 'i', // text meta, skipped
	}
	track = append(track, endOfTrack()...)

	f, err := ParseMIDI(smfBytes(0, 1, 96, chunk("MTrk", track)))
	if err != nil {
		t.Fatalf("ParseMIDI failed: %v", err)
	}

	if f.Format != 0 || f.Tracks != 1 || f.TicksPerBeat != 96 {
		t.Errorf("Unexpected header: format %d, %d tracks, %d ticks/beat", f.Format, f.Tracks, f.TicksPerBeat)
	}
	if f.Tempo != 1000000 {
		t.Errorf("Expected tempo 1000000, got %d", f.Tempo)
	}

	want := []MIDIEvent{
		{Tick: 0, Type: MIDINoteOn, Channel: 0, Note: 60, Velocity: 100},
		{Tick: 96, Type: MIDINoteOn, Channel: 0, Note: 62, Velocity: 80},
		{Tick: 288, Type: MIDINoteOff, Channel: 0, Note: 60},
		{Tick: 288, Type: MIDINoteOff, Channel: 1, Note: 62},
		{Tick: 288, Type: MIDIPitchBend, Bend: 0},
		{Tick: 288, Type: MIDIPitchBend, Bend: 8191},
	}
	if len(f.Events) != len(want) {
		t.Fatalf("Expected %d events, got %d: %+v", len(want), len(f.Events), f.Events)
	}
	for i := range want {
		if f.Events[i] != want[i] {
			t.Errorf("Event %d: expected %+v, got %+v", i, want[i], f.Events[i])
		}
	}
}

func TestParseMIDIDefaults(t *testing.T) {
	track := append([]byte{0x00, 0xE0, 0x00, 0x00}, endOfTrack()...)

	f, err := ParseMIDI(smfBytes(1, 1, 480, chunk("MTrk", track)))
	if err != nil {
		t.Fatalf("ParseMIDI failed: %v", err)
	}
	if f.Tempo != DefaultTempo {
		t.Errorf("Expected default tempo, got %d", f.Tempo)
	}
	if len(f.Events) != 1 || f.Events[0].Bend != -8192 {
		t.Errorf("Expected one bend of -8192, got %+v", f.Events)
	}
}

func TestParseMIDIIgnoresTrailingChunks(t *testing.T) {
	track := append([]byte{0x00, 0x90, 0x40, 0x7F}, endOfTrack()...)
	data := smfBytes(0, 1, 96, chunk("MTrk", track), chunk("XFIH", []byte{1, 2, 3}))

	f, err := ParseMIDI(data)
	if err != nil {
		t.Fatalf("ParseMIDI failed: %v", err)
	}
	if len(f.Events) != 1 || f.Events[0].Note != 64 {
		t.Errorf("Expected one note on 64, got %+v", f.Events)
	}
}

func TestParseMIDIReadsFirstTrackOnly(t *testing.T) {
	first := append([]byte{0x00, 0x90, 0x40, 0x7F}, endOfTrack()...)
	second := append([]byte{0x00, 0x90, 0x41, 0x7F}, endOfTrack()...)

	f, err := ParseMIDI(smfBytes(1, 2, 96, chunk("MTrk", first), chunk("MTrk", second)))
	if err != nil {
		t.Fatalf("ParseMIDI failed: %v", err)
	}
	if len(f.Events) != 1 || f.Events[0].Note != 64 {
		t.Errorf("Expected only the first track, got %+v", f.Events)
	}
}

func TestParseMIDIErrors(t *testing.T) {
	valid := chunk("MTrk", endOfTrack())

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not a MIDI file", []byte("RIFF\x00\x00\x00\x04WAVE")},
		{"short header", append([]byte("MThd\x00\x00\x00\x02"), 0, 0)},
		{"unsupported format", smfBytes(3, 1, 96, valid)},
		{"SMPTE division", smfBytes(0, 1, 0xE728, valid)},
		{"zero division", smfBytes(0, 1, 0, valid)},
		{"no track", smfBytes(0, 1, 96)},
		{"no tracks declared", smfBytes(0, 0, 96)},
		{"track beyond declared count", smfBytes(0, 0, 96, valid)},
		{"fewer tracks than declared", smfBytes(1, 2, 96, valid)},
		{"missing end of track", smfBytes(0, 1, 96, chunk("MTrk", []byte{0x00, 0x90, 0x3C, 0x40}))},
		{"missing running status", smfBytes(0, 1, 96, chunk("MTrk", append([]byte{0x00, 0x3C, 0x64}, endOfTrack()...)))},
		{"system common in track", smfBytes(0, 1, 96, chunk("MTrk", append([]byte{0x00, 0xF2, 0x00, 0x00}, endOfTrack()...)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMIDI(tt.data)
			if !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("Expected ErrInvalidFormat, got %v", err)
			}
		})
	}
}

func TestMIDIFileTiming(t *testing.T) {
	f := &MIDIFile{
		TicksPerBeat: 96,
		Tempo:        DefaultTempo,
		Events: []MIDIEvent{
			{Tick: 0, Type: MIDINoteOn, Note: 60, Velocity: 100},
			{Tick: 192, Type: MIDINoteOff, Note: 60},
		},
	}

	if got := f.FrameAt(96, 1000); got != 500 {
		t.Errorf("Expected one beat at 120 BPM to be 500 frames at 1 kHz, got %d", got)
	}
	if got := f.FrameAt(48, 44100); got != 11025 {
		t.Errorf("Expected half a beat to be 11025 frames at 44.1 kHz, got %d", got)
	}
	if got := f.DurationFrames(1000); got != 1000 {
		t.Errorf("Expected duration 1000 frames, got %d", got)
	}
	if got := (&MIDIFile{TicksPerBeat: 96, Tempo: DefaultTempo}).DurationFrames(1000); got != 0 {
		t.Errorf("Expected empty file to last 0 frames, got %d", got)
	}
}

func TestReadMIDIFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mid")
	track := append([]byte{0x00, 0x90, 0x3C, 0x64, 0x60, 0x80, 0x3C, 0x00}, endOfTrack()...)
	if err := os.WriteFile(path, smfBytes(0, 1, 96, chunk("MTrk", track)), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := ReadMIDIFile(path)
	if err != nil {
		t.Fatalf("ReadMIDIFile failed: %v", err)
	}
	if len(f.Events) != 2 || f.Events[1].Type != MIDINoteOff || f.Events[1].Tick != 96 {
		t.Errorf("Unexpected events: %+v", f.Events)
	}

	if _, err := ReadMIDIFile(filepath.Join(dir, "missing.mid")); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Expected ErrFileNotFound, got %v", err)
	}
}

func TestMIDIEventTypeString(t *testing.T) {
	if MIDINoteOn.String() != "note-on" || MIDINoteOff.String() != "note-off" ||
		MIDIPitchBend.String() != "pitch-bend" || MIDIEventType(9).String() != "unknown" {
		t.Error("Unexpected event type names")
	}
}
