package midisampler

import (
	"fmt"
	"sync/atomic"

	"github.com/GeoffreyPlitt/debuggo"
)

var seqDebug = debuggo.Debug("msampler:sequencer")

// scheduledEvent is a track event with its time converted to output frames.
type scheduledEvent struct {
	frame uint64
	MIDIEvent
}

// sequence is an immutable track bound to one instrument.
type sequence struct {
	instrument *Instrument
	events     []scheduledEvent
	length     uint64 // frame of the last event
}

// sequencer plays one loaded track from inside Sampler.Process. Control
// goroutines publish the track and flip the play state through atomics;
// everything below the render-owned marker is touched only by the render path.
//
// state packs a start generation with the playing flag in bit 0, so the render
// path can end playback without clobbering a StartPlayback that raced it.
type sequencer struct {
	track atomic.Pointer[sequence]
	state atomic.Uint64

	// render-owned
	current *sequence
	gen     uint64
	running bool
	cursor  int
	clock   uint64
}

func (q *sequencer) start() {
	for {
		old := q.state.Load()
		if q.state.CompareAndSwap(old, (old|1)+2) {
			return
		}
	}
}

func (q *sequencer) stop() {
	for {
		old := q.state.Load()
		if old&1 == 0 || q.state.CompareAndSwap(old, old&^1) {
			return
		}
	}
}

func (q *sequencer) playing() bool {
	return q.state.Load()&1 != 0
}

func (q *sequencer) detach(inst *Instrument) {
	if seq := q.track.Load(); seq != nil && seq.instrument == inst {
		q.stop()
		q.track.Store(nil)
	}
}

// dispatch applies every event due before the end of the next numFrames
// frames. Timing is block granular: events land at the start of the block.
func (q *sequencer) dispatch(s *Sampler, numFrames uint64) {
	state := q.state.Load()
	if state&1 == 0 {
		if q.running {
			// stopped from the control side
			q.running = false
			q.releaseCurrent(s)
			q.current = nil
		}
		return
	}

	if gen := state >> 1; !q.running || gen != q.gen {
		if q.running {
			// restarted: the previous pass ends like a stop
			q.releaseCurrent(s)
		}
		q.gen = gen
		q.current = q.track.Load()
		q.cursor = 0
		q.clock = 0
		q.running = true
	}

	seq := q.current
	if seq == nil || seq.instrument.destroyed.Load() {
		q.finish(state)
		return
	}

	end := q.clock + numFrames
	for q.cursor < len(seq.events) && seq.events[q.cursor].frame < end {
		ev := &seq.events[q.cursor]
		switch ev.Type {
		case MIDINoteOn:
			s.startNote(seq.instrument, ev.Note, ev.Velocity, VoiceID(s.nextID.Add(1)))
		case MIDINoteOff:
			s.releaseNote(seq.instrument, ev.Note)
		case MIDIPitchBend:
			seq.instrument.applyPitchBend(ev.Bend)
		}
		q.cursor++
	}
	q.clock = end

	if q.cursor >= len(seq.events) {
		q.finish(state)
	}
}

// releaseCurrent releases the notes of the track being played.
func (q *sequencer) releaseCurrent(s *Sampler) {
	if q.current != nil && !q.current.instrument.destroyed.Load() {
		s.releaseInstrument(q.current.instrument)
	}
}

// finish ends playback unless a new start arrived since state was read.
func (q *sequencer) finish(state uint64) {
	q.running = false
	q.current = nil
	q.state.CompareAndSwap(state, state&^1)
}

// LoadMIDIFile parses a MIDI file and binds its first track to inst for
// playback. Any running playback is stopped.
func (s *Sampler) LoadMIDIFile(inst *Instrument, filePath string) error {
	f, err := ReadMIDIFile(filePath)
	if err != nil {
		return err
	}
	return s.LoadMIDI(inst, f)
}

// LoadMIDI binds a parsed MIDI file to inst for playback. Any running
// playback is stopped.
func (s *Sampler) LoadMIDI(inst *Instrument, f *MIDIFile) error {
	if err := s.usable(); err != nil {
		return err
	}
	if err := inst.usable(); err != nil {
		return err
	}
	if inst.sampler != s {
		return fmt.Errorf("instrument %q belongs to another sampler: %w", inst.name, ErrInvalidParam)
	}
	if f == nil || f.TicksPerBeat == 0 {
		return fmt.Errorf("MIDI file without time base: %w", ErrInvalidParam)
	}

	seq := &sequence{
		instrument: inst,
		events:     make([]scheduledEvent, len(f.Events)),
	}
	for i, ev := range f.Events {
		seq.events[i] = scheduledEvent{frame: f.FrameAt(ev.Tick, s.config.SampleRate), MIDIEvent: ev}
	}
	seq.length = f.DurationFrames(s.config.SampleRate)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq.stop()
	s.seq.track.Store(seq)

	seqDebug("Loaded %d events for %q, %d frames at %d Hz",
		len(seq.events), inst.name, seq.length, s.config.SampleRate)
	return nil
}

// StartPlayback plays the loaded track from its beginning. Restarting while
// playing rewinds.
func (s *Sampler) StartPlayback() error {
	if err := s.usable(); err != nil {
		return err
	}
	if s.seq.track.Load() == nil {
		return fmt.Errorf("no MIDI file loaded: %w", ErrNotInitialized)
	}
	s.seq.start()
	seqDebug("Playback started")
	return nil
}

// StopPlayback stops the sequencer. Notes it started are released on the
// next render block.
func (s *Sampler) StopPlayback() {
	s.seq.stop()
	seqDebug("Playback stopped")
}

// IsPlaying reports whether the sequencer has events left to dispatch.
func (s *Sampler) IsPlaying() bool {
	return s.seq.playing()
}
