//go:build jack
// +build jack

package midisampler

import (
	"fmt"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/xthexder/go-jack"
	"gitlab.com/gomidi/midi/v2"
)

var jackDebug = debuggo.Debug("msampler:jack")

// JackHost drives a Sampler from the JACK process callback. Incoming JACK
// MIDI is routed to one instrument; output goes to one port per channel.
type JackHost struct {
	client   *jack.Client
	sampler  *Sampler
	inst     *Instrument
	reverb   *Reverb
	outPorts []*jack.Port
	midiIn   *jack.Port

	buf []float32 // interleaved render buffer, sized once
}

// NewJackHost opens a JACK client named clientName. The JACK server must run
// at the sampler's sample rate. reverb may be nil.
func NewJackHost(s *Sampler, inst *Instrument, reverb *Reverb, clientName string) (*JackHost, error) {
	jackDebug("Creating JACK client: %s", clientName)

	client, code := jack.ClientOpen(clientName, jack.NoStartServer)
	if client == nil || code != 0 {
		return nil, fmt.Errorf("failed to open JACK client: %w", jack.StrError(code))
	}

	cfg := s.Config()
	if rate := client.GetSampleRate(); rate != cfg.SampleRate {
		client.Close()
		return nil, fmt.Errorf("JACK runs at %d Hz, sampler at %d Hz: %w", rate, cfg.SampleRate, ErrInvalidParam)
	}

	bufferSize := int(client.GetBufferSize())
	if bufferSize < cfg.BufferSize {
		bufferSize = cfg.BufferSize
	}

	jh := &JackHost{
		client:  client,
		sampler: s,
		inst:    inst,
		reverb:  reverb,
		buf:     make([]float32, bufferSize*int(cfg.Channels)),
	}

	for ch := 0; ch < int(cfg.Channels); ch++ {
		port := client.PortRegister(fmt.Sprintf("out_%d", ch+1), jack.DEFAULT_AUDIO_TYPE, jack.PortIsOutput, 0)
		if port == nil {
			client.Close()
			return nil, fmt.Errorf("failed to register audio output port %d", ch+1)
		}
		jh.outPorts = append(jh.outPorts, port)
	}

	jh.midiIn = client.PortRegister("midi_in", jack.DEFAULT_MIDI_TYPE, jack.PortIsInput, 0)
	if jh.midiIn == nil {
		client.Close()
		return nil, fmt.Errorf("failed to register MIDI input port")
	}

	if code := client.SetProcessCallback(jh.process); code != 0 {
		client.Close()
		return nil, fmt.Errorf("failed to set process callback: %w", jack.StrError(code))
	}
	if code := client.SetXRunCallback(jh.xrun); code != 0 {
		jackDebug("Warning: xrun callback not installed: %v", jack.StrError(code))
	}

	jackDebug("JACK client created (sample rate: %d Hz, buffer size: %d)", cfg.SampleRate, bufferSize)
	return jh, nil
}

// Start activates the JACK client and begins audio processing
func (jh *JackHost) Start() error {
	if code := jh.client.Activate(); code != 0 {
		return fmt.Errorf("failed to activate JACK client: %w", jack.StrError(code))
	}
	jackDebug("JACK client activated")
	return nil
}

// Stop deactivates the JACK client
func (jh *JackHost) Stop() error {
	if code := jh.client.Deactivate(); code != 0 {
		return fmt.Errorf("failed to deactivate JACK client: %w", jack.StrError(code))
	}
	jackDebug("JACK client deactivated")
	return nil
}

// Close closes the JACK client connection
func (jh *JackHost) Close() error {
	if code := jh.client.Close(); code != 0 {
		return fmt.Errorf("failed to close JACK client: %w", jack.StrError(code))
	}
	jackDebug("JACK client closed")
	return nil
}

func (jh *JackHost) xrun() int {
	jh.sampler.ReportXrun()
	return 0
}

// process runs on the JACK realtime thread.
func (jh *JackHost) process(nframes uint32) int {
	n := int(nframes)
	channels := len(jh.outPorts)

	for _, ev := range jh.midiIn.GetMidiEvents(nframes) {
		jh.handleMidi(ev.Buffer)
	}

	if n*channels > len(jh.buf) {
		// the server grew its period beyond what was allocated
		for _, port := range jh.outPorts {
			clear(port.GetBuffer(nframes))
		}
		jh.sampler.ReportXrun()
		return 0
	}

	block := jh.buf[:n*channels]
	if err := jh.sampler.Process(block, n); err != nil {
		return 1
	}
	if jh.reverb != nil {
		jh.reverb.Process(block, n)
	}

	for ch, port := range jh.outPorts {
		out := port.GetBuffer(nframes)
		for i := 0; i < n; i++ {
			out[i] = jack.AudioSample(block[i*channels+ch])
		}
	}
	return 0
}

func (jh *JackHost) handleMidi(data []byte) {
	if len(data) < 2 {
		return
	}
	ev, ok := decodeChannelEvent(midi.Message(data), 0)
	if !ok {
		return
	}
	switch ev.Type {
	case MIDINoteOn:
		jh.sampler.NoteOn(jh.inst, ev.Note, ev.Velocity)
	case MIDINoteOff:
		jh.sampler.NoteOff(jh.inst, ev.Note)
	case MIDIPitchBend:
		jh.inst.PitchBend(ev.Bend)
	}
}
