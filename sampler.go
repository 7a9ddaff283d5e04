package midisampler

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/GeoffreyPlitt/debuggo"
)

var engineDebug = debuggo.Debug("msampler:engine")

// VoiceID identifies one note-on request. It is never zero.
type VoiceID uint32

// Stats is a snapshot of the sampler's monitoring counters.
type Stats struct {
	FramesProcessed uint64
	Xruns           uint32
	ActiveVoices    int
	DroppedEvents   uint64
	PendingEvents   int
}

// VoiceInfo describes one active voice, see Sampler.ActiveVoices.
type VoiceInfo struct {
	Slot       int
	SlotID     uint32
	ID         VoiceID
	Note       uint8
	Velocity   uint8
	Stage      EnvelopeStage
	Instrument string
}

// Sampler is a polyphonic sample player with a fixed voice pool.
//
// Two kinds of callers share a Sampler. The render goroutine calls Process
// repeatedly; it never blocks, never allocates and owns the voice pool. Control
// goroutines call everything else. NoteOn and NoteOff only enqueue events and
// PitchBend only updates atomics, so they are safe while Process runs.
// Instrument and sample management is serialized by a control mutex that the
// render path never takes. AllNotesOff touches voices directly and must not
// overlap a Process call.
type Sampler struct {
	config AudioConfig

	voices []Voice
	queue  eventQueue

	mu          sync.Mutex // control operations only
	instruments []*Instrument

	nextID atomic.Uint32

	seq sequencer

	framesProcessed atomic.Uint64
	xruns           atomic.Uint32
	droppedEvents   atomic.Uint64
	activeVoices    atomic.Int32

	closed atomic.Bool
}

// NewSampler creates a sampler for the given output configuration.
func NewSampler(config AudioConfig) (*Sampler, error) {
	cfg, err := config.Validate()
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler: %w", err)
	}

	s := &Sampler{
		config: cfg,
		voices: make([]Voice, cfg.MaxPolyphony),
	}
	for i := range s.voices {
		s.voices[i].slotID = uint32(i + 1)
		s.voices[i].bendMult = 1.0
	}

	engineDebug("Sampler created: %d Hz, %d ch, %d voices, block %d",
		cfg.SampleRate, cfg.Channels, cfg.MaxPolyphony, cfg.BufferSize)
	return s, nil
}

// Config returns the normalized configuration
func (s *Sampler) Config() AudioConfig { return s.config }

// Close stops playback and releases all instruments. The sampler rejects
// further operations.
func (s *Sampler) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.seq.stop()

	s.mu.Lock()
	for _, inst := range s.instruments {
		inst.destroyed.Store(true)
	}
	s.instruments = nil
	s.mu.Unlock()

	engineDebug("Sampler closed after %d frames", s.framesProcessed.Load())
	return nil
}

func (s *Sampler) usable() error {
	if s.closed.Load() {
		return fmt.Errorf("sampler closed: %w", ErrNotInitialized)
	}
	return nil
}

// NewInstrument creates an empty instrument with the default envelope.
func (s *Sampler) NewInstrument(name string) (*Instrument, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	inst := newInstrument(s, name)

	s.mu.Lock()
	s.instruments = append(s.instruments, inst)
	s.mu.Unlock()

	engineDebug("Instrument created: %q", inst.name)
	return inst, nil
}

// Instruments returns the live instruments in creation order.
func (s *Sampler) Instruments() []*Instrument {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Instrument, len(s.instruments))
	copy(out, s.instruments)
	return out
}

// DestroyInstrument detaches an instrument. Voices still playing it are
// silenced by the next Process call before they read any more of its samples.
// From the moment it returns they are no longer listed by ActiveVoices;
// Stats().ActiveVoices drops them after that next Process call.
func (s *Sampler) DestroyInstrument(inst *Instrument) error {
	if inst == nil || inst.sampler != s {
		return fmt.Errorf("instrument does not belong to this sampler: %w", ErrInvalidParam)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if inst.destroyed.Swap(true) {
		return nil
	}
	for i, candidate := range s.instruments {
		if candidate == inst {
			s.instruments = append(s.instruments[:i], s.instruments[i+1:]...)
			break
		}
	}
	s.seq.detach(inst)

	engineDebug("Instrument destroyed: %q", inst.name)
	return nil
}

func (s *Sampler) checkNote(inst *Instrument, note uint8) error {
	if err := s.usable(); err != nil {
		return err
	}
	if err := inst.usable(); err != nil {
		return err
	}
	if inst.sampler != s {
		return fmt.Errorf("instrument %q belongs to another sampler: %w", inst.name, ErrInvalidParam)
	}
	if note > 127 {
		return fmt.Errorf("note %d out of range: %w", note, ErrInvalidParam)
	}
	return nil
}

// NoteOn queues a note start. The voice is allocated by the next Process
// call. A full queue drops the event and returns ErrBufferOverflow.
func (s *Sampler) NoteOn(inst *Instrument, note, velocity uint8) (VoiceID, error) {
	if err := s.checkNote(inst, note); err != nil {
		return 0, err
	}
	if velocity > 127 {
		return 0, fmt.Errorf("velocity %d out of range: %w", velocity, ErrInvalidParam)
	}
	if inst.NumSamples() == 0 {
		return 0, fmt.Errorf("instrument %q has no samples: %w", inst.name, ErrInvalidParam)
	}

	id := VoiceID(s.nextID.Add(1))
	if id == 0 {
		id = VoiceID(s.nextID.Add(1))
	}

	if !s.queue.push(event{kind: eventNoteOn, note: note, velocity: velocity, id: id, instrument: inst}) {
		s.droppedEvents.Add(1)
		return 0, fmt.Errorf("note on %d dropped: %w", note, ErrBufferOverflow)
	}
	return id, nil
}

// NoteOff queues the release of every voice playing note on inst.
func (s *Sampler) NoteOff(inst *Instrument, note uint8) error {
	if err := s.checkNote(inst, note); err != nil {
		return err
	}
	if !s.queue.push(event{kind: eventNoteOff, note: note, instrument: inst}) {
		s.droppedEvents.Add(1)
		return fmt.Errorf("note off %d dropped: %w", note, ErrBufferOverflow)
	}
	return nil
}

// AllNotesOff silences every voice immediately, without release. It writes
// the voice pool directly and must not run concurrently with Process.
func (s *Sampler) AllNotesOff() {
	for i := range s.voices {
		if s.voices[i].active {
			s.voices[i].stop()
		}
	}
	s.activeVoices.Store(0)
	engineDebug("All notes off")
}

// ReportXrun records a buffer underrun observed by the audio host.
func (s *Sampler) ReportXrun() {
	s.xruns.Add(1)
}

// FramesProcessed returns the total number of frames rendered
func (s *Sampler) FramesProcessed() uint64 {
	return s.framesProcessed.Load()
}

// Xruns returns the number of reported buffer underruns
func (s *Sampler) Xruns() uint32 {
	return s.xruns.Load()
}

// Stats returns a snapshot of the monitoring counters. ActiveVoices is the
// count at the end of the last Process call.
func (s *Sampler) Stats() Stats {
	return Stats{
		FramesProcessed: s.framesProcessed.Load(),
		Xruns:           s.xruns.Load(),
		ActiveVoices:    int(s.activeVoices.Load()),
		DroppedEvents:   s.droppedEvents.Load(),
		PendingEvents:   s.queue.pending(),
	}
}

// ActiveVoices lists the sounding voices, leaving out those of destroyed
// instruments. It reads the voice pool directly and must not run concurrently
// with Process.
func (s *Sampler) ActiveVoices() []VoiceInfo {
	var out []VoiceInfo
	for i := range s.voices {
		v := &s.voices[i]
		if !v.active || (v.instrument != nil && v.instrument.destroyed.Load()) {
			continue
		}
		info := VoiceInfo{
			Slot:     i,
			SlotID:   v.slotID,
			ID:       v.id,
			Note:     v.note,
			Velocity: v.velocity,
			Stage:    v.env.stage,
		}
		if v.instrument != nil {
			info.Instrument = v.instrument.name
		}
		out = append(out, info)
	}
	return out
}

// Process renders numFrames interleaved frames into output. It first clears
// the frames, applies queued events and due sequencer events, then mixes every
// active voice. Invalid arguments leave output untouched.
func (s *Sampler) Process(output []float32, numFrames int) error {
	channels := int(s.config.Channels)
	if numFrames < 0 || len(output) < numFrames*channels {
		return ErrInvalidParam
	}
	if s.closed.Load() {
		return ErrNotInitialized
	}

	block := output[:numFrames*channels]
	clear(block)

	s.drainEvents()
	s.seq.dispatch(s, uint64(numFrames))

	active := 0
	for i := range s.voices {
		v := &s.voices[i]
		if v.active {
			v.process(block, numFrames, channels)
			if v.active {
				active++
			}
		}
	}

	s.activeVoices.Store(int32(active))
	s.framesProcessed.Add(uint64(numFrames))
	return nil
}

func (s *Sampler) drainEvents() {
	var e event
	for i := 0; i < EventQueueCapacity; i++ {
		if !s.queue.pop(&e) {
			break
		}
		if e.instrument.destroyed.Load() {
			continue
		}
		switch e.kind {
		case eventNoteOn:
			s.startNote(e.instrument, e.note, e.velocity, e.id)
		case eventNoteOff:
			s.releaseNote(e.instrument, e.note)
		}
	}
}

// allocateVoice returns the first idle slot, or slot 0 when all are busy.
func (s *Sampler) allocateVoice() *Voice {
	for i := range s.voices {
		if !s.voices[i].active {
			return &s.voices[i]
		}
	}
	return &s.voices[0]
}

func (s *Sampler) startNote(inst *Instrument, note, velocity uint8, id VoiceID) {
	sample := inst.FindSample(note, velocity)
	if sample == nil {
		return
	}
	v := s.allocateVoice()
	v.trigger(inst, sample, note, velocity, inst.Envelope(), s.config.SampleRate)
	v.id = id
}

func (s *Sampler) releaseNote(inst *Instrument, note uint8) {
	for i := range s.voices {
		v := &s.voices[i]
		if v.active && v.note == note && v.instrument == inst {
			v.release()
		}
	}
}

func (s *Sampler) releaseInstrument(inst *Instrument) {
	for i := range s.voices {
		v := &s.voices[i]
		if v.active && v.instrument == inst {
			v.release()
		}
	}
}
