package midisampler

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"

	"github.com/GeoffreyPlitt/debuggo"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

var midiDebug = debuggo.Debug("msampler:midi")

// DefaultTempo is the tempo of a file without a tempo meta event, in
// microseconds per quarter note (120 BPM).
const DefaultTempo = 500000

// MIDIEventType is the kind of a decoded track event.
type MIDIEventType uint8

const (
	MIDINoteOn MIDIEventType = iota
	MIDINoteOff
	MIDIPitchBend
)

func (t MIDIEventType) String() string {
	switch t {
	case MIDINoteOn:
		return "note-on"
	case MIDINoteOff:
		return "note-off"
	case MIDIPitchBend:
		return "pitch-bend"
	}
	return "unknown"
}

// MIDIEvent is one channel event of a track. Note events use Note and
// Velocity; pitch bend events use Bend (-8192..8191).
type MIDIEvent struct {
	Tick     uint32 // absolute time in ticks
	Type     MIDIEventType
	Channel  uint8
	Note     uint8
	Velocity uint8
	Bend     int16
}

// MIDIFile is the event list of the first track of a standard MIDI file.
type MIDIFile struct {
	Format       uint16
	Tracks       uint16 // as declared in the header
	TicksPerBeat uint16
	Tempo        uint32 // microseconds per beat
	Events       []MIDIEvent
}

// FrameAt converts a tick position to an output frame using the file's tempo.
func (f *MIDIFile) FrameAt(tick uint32, sampleRate uint32) uint64 {
	seconds := float64(tick) * float64(f.Tempo) / float64(f.TicksPerBeat) / 1e6
	return uint64(seconds * float64(sampleRate))
}

// DurationFrames returns the frame of the last event.
func (f *MIDIFile) DurationFrames(sampleRate uint32) uint64 {
	if len(f.Events) == 0 {
		return 0
	}
	return f.FrameAt(f.Events[len(f.Events)-1].Tick, sampleRate)
}

// ReadMIDIFile parses a standard MIDI file from disk.
func ReadMIDIFile(filePath string) (*MIDIFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("MIDI file %s: %w", filePath, ErrFileNotFound)
		}
		return nil, fmt.Errorf("failed to read MIDI file %s: %w", filePath, err)
	}

	f, err := ParseMIDI(data)
	if err != nil {
		return nil, fmt.Errorf("MIDI file %s: %w", filePath, err)
	}
	midiDebug("Parsed %s: format %d, %d tracks declared, %d ticks/beat, tempo %d, %d events",
		filePath, f.Format, f.Tracks, f.TicksPerBeat, f.Tempo, len(f.Events))
	return f, nil
}

// ParseMIDI parses standard MIDI file bytes. Only the first track is used.
// Note-on, note-off and pitch bend events are kept; other channel messages,
// system exclusive and meta events are skipped, except that a tempo meta event
// sets the file tempo. The last tempo event of the track wins.
func ParseMIDI(data []byte) (f *MIDIFile, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty MIDI data: %w", ErrInvalidFormat)
	}

	// smf panics on some malformed tracks, e.g. a data byte with no running
	// status or a track chunk beyond the declared track count
	defer func() {
		if r := recover(); r != nil {
			f, err = nil, fmt.Errorf("malformed MIDI data (%v): %w", r, ErrInvalidFormat)
		}
	}()

	sm, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI data (%v): %w", err, ErrInvalidFormat)
	}

	ticks, ok := sm.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("time format %v not supported: %w", sm.TimeFormat, ErrInvalidFormat)
	}
	if ticks == 0 {
		return nil, fmt.Errorf("zero ticks per beat: %w", ErrInvalidFormat)
	}
	if len(sm.Tracks) == 0 {
		return nil, fmt.Errorf("no MTrk chunk: %w", ErrInvalidFormat)
	}

	f = &MIDIFile{
		Format:       sm.Format(),
		Tracks:       sm.NumTracks(),
		TicksPerBeat: uint16(ticks),
		Tempo:        DefaultTempo,
	}

	var tick uint32
	for _, ev := range sm.Tracks[0] {
		tick += ev.Delta

		var bpm float64
		if ev.Message.GetMetaTempo(&bpm) {
			if bpm > 0 && !math.IsInf(bpm, 0) {
				f.Tempo = uint32(math.Round(60000000 / bpm))
				midiDebug("Tempo %d us/beat at tick %d", f.Tempo, tick)
			}
			continue
		}

		if event, ok := decodeChannelEvent(midi.Message(ev.Message), tick); ok {
			f.Events = append(f.Events, event)
		}
	}
	return f, nil
}

// decodeChannelEvent maps a channel message onto a track event. A note-on
// with velocity 0 is a note-off.
func decodeChannelEvent(msg midi.Message, tick uint32) (MIDIEvent, bool) {
	var channel, key, velocity uint8
	switch {
	case msg.GetNoteStart(&channel, &key, &velocity):
		return MIDIEvent{Tick: tick, Type: MIDINoteOn, Channel: channel, Note: key, Velocity: velocity}, true
	case msg.GetNoteEnd(&channel, &key):
		return MIDIEvent{Tick: tick, Type: MIDINoteOff, Channel: channel, Note: key}, true
	}

	var relative int16
	var absolute uint16
	if msg.GetPitchBend(&channel, &relative, &absolute) {
		return MIDIEvent{Tick: tick, Type: MIDIPitchBend, Channel: channel, Bend: relative}, true
	}
	return MIDIEvent{}, false
}
