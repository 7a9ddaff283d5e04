package main

import (
	"fmt"

	"midisampler"
)

// session is a sampler with one instrument and a loaded MIDI file, ready to
// render.
type session struct {
	settings *Settings
	sampler  *midisampler.Sampler
	inst     *midisampler.Instrument
	reverb   *midisampler.Reverb
	song     *midisampler.MIDIFile // nil for live sessions

	maxFrames uint64 // last event plus the allowed tail
}

func newSession(settings *Settings) (*session, error) {
	sampler, err := midisampler.NewSampler(settings.Audio)
	if err != nil {
		return nil, err
	}
	cfg := sampler.Config()

	ss := &session{settings: settings, sampler: sampler}
	if err := ss.loadInstrument(); err != nil {
		sampler.Close()
		return nil, err
	}

	if settings.MIDI != "" {
		ss.song, err = midisampler.ReadMIDIFile(settings.MIDI)
		if err != nil {
			sampler.Close()
			return nil, err
		}
		if err := sampler.LoadMIDI(ss.inst, ss.song); err != nil {
			sampler.Close()
			return nil, err
		}
		ss.maxFrames = ss.song.DurationFrames(cfg.SampleRate) + uint64(settings.Tail*float64(cfg.SampleRate))
	}

	if settings.Reverb > 0 {
		ss.reverb = midisampler.NewReverb(cfg.SampleRate, cfg.Channels, settings.Reverb)
		ss.reverb.Freeverb().SetRoomSize(settings.RoomSize)
	}

	cliDebug("Session ready: instrument %q, %d samples", ss.inst.Name(), ss.inst.NumSamples())
	return ss, nil
}

func (ss *session) loadInstrument() error {
	st := ss.settings

	if st.SFZ != "" {
		inst, err := midisampler.LoadSFZ(ss.sampler, st.SFZ)
		if err != nil {
			return err
		}
		ss.inst = inst
	} else {
		inst, err := ss.sampler.NewInstrument(st.Sample)
		if err != nil {
			return err
		}
		meta := midisampler.FullRangeMeta(uint8(st.RootNote))
		if st.Loop {
			meta.LoopEnabled = true
			meta.LoopEnd = ^uint32(0)
		}
		if err := inst.LoadSample(st.Sample, meta); err != nil {
			return fmt.Errorf("failed to load sample: %w", err)
		}
		ss.inst = inst
	}

	if st.SFZ == "" || st.EnvelopeSet {
		if err := ss.inst.SetEnvelope(st.Envelope); err != nil {
			return err
		}
	}
	if st.SFZ == "" || st.BendRangeSet {
		if err := ss.inst.SetPitchBendRange(st.BendRange); err != nil {
			return err
		}
	}
	return nil
}

// renderBlock renders the next numFrames frames into block. It reports false
// once the song has finished and every voice has gone quiet, or the tail limit
// has been reached.
func (ss *session) renderBlock(block []float32, numFrames int) (bool, error) {
	if err := ss.sampler.Process(block, numFrames); err != nil {
		return false, err
	}
	if ss.reverb != nil {
		ss.reverb.Process(block, numFrames)
	}

	stats := ss.sampler.Stats()
	if stats.FramesProcessed >= ss.maxFrames {
		return false, nil
	}
	return ss.sampler.IsPlaying() || stats.ActiveVoices > 0, nil
}

func (ss *session) Close() error {
	return ss.sampler.Close()
}
