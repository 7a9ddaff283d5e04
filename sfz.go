package midisampler

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	defaultKeyCenter = 60
	defaultBendCents = 200
)

// LoadSFZ creates an instrument from an SFZ file. Each region with a sample
// becomes one sample of the instrument; regions sharing a file decode it once.
// The envelope and pitch-bend range come from the first region, with group and
// global fallback. Key ranges (lokey/hikey) are not used: notes are resolved
// by closest root note.
func LoadSFZ(s *Sampler, sfzPath string) (*Instrument, error) {
	data, err := ParseSfzFile(sfzPath)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSuffix(filepath.Base(sfzPath), filepath.Ext(sfzPath))
	inst, err := s.NewInstrument(name)
	if err != nil {
		return nil, err
	}

	if err := loadSfzRegions(inst, data, filepath.Dir(sfzPath)); err != nil {
		s.DestroyInstrument(inst)
		return nil, fmt.Errorf("failed to load SFZ %s: %w", sfzPath, err)
	}
	return inst, nil
}

func loadSfzRegions(inst *Instrument, data *SfzData, baseDir string) error {
	cache := NewSampleCache()
	var first *SfzSection

	for i, region := range data.Regions {
		samplePath := region.GetInheritedStringOpcode("sample")
		if samplePath == "" {
			parserDebug("Region %d has no sample, skipping", i)
			continue
		}
		samplePath = filepath.Join(baseDir, filepath.FromSlash(strings.ReplaceAll(samplePath, `\`, "/")))

		pcm, err := cache.load(samplePath)
		if err != nil {
			return fmt.Errorf("region %d: %w", i, err)
		}

		meta, err := regionMeta(region, pcm.frames())
		if err != nil {
			return fmt.Errorf("region %d: %w", i, err)
		}
		if err := inst.addPCM(pcm, meta); err != nil {
			return fmt.Errorf("region %d: %w", i, err)
		}
		if first == nil {
			first = region
		}
	}

	if first == nil {
		return fmt.Errorf("no playable regions: %w", ErrInvalidFormat)
	}

	defaults := DefaultEnvelope()
	env := EnvelopeParams{
		Attack:  first.GetInheritedFloatOpcode("ampeg_attack", defaults.Attack),
		Decay:   first.GetInheritedFloatOpcode("ampeg_decay", defaults.Decay),
		Sustain: first.GetInheritedFloatOpcode("ampeg_sustain", defaults.Sustain*100) / 100,
		Release: first.GetInheritedFloatOpcode("ampeg_release", defaults.Release),
	}
	if err := inst.SetEnvelope(env); err != nil {
		return err
	}

	bendCents := first.GetInheritedFloatOpcode("bend_up", defaultBendCents)
	if bendCents < 0 {
		bendCents = -bendCents
	}
	if err := inst.SetPitchBendRange(bendCents / 100); err != nil {
		return err
	}

	parserDebug("Instrument %q: %d samples from %d regions (%d files)",
		inst.name, inst.NumSamples(), len(data.Regions), cache.Size())
	return nil
}

// regionMeta maps a region's opcodes onto sample metadata.
func regionMeta(region *SfzSection, frames int) (SampleMeta, error) {
	root := region.GetInheritedNoteOpcode("pitch_keycenter", -1)
	if root < 0 {
		root = region.GetInheritedNoteOpcode("key", defaultKeyCenter)
	}

	lovel := region.GetInheritedIntOpcode("lovel", 0)
	hivel := region.GetInheritedIntOpcode("hivel", 127)
	if lovel < 0 || hivel > 127 || lovel > hivel {
		return SampleMeta{}, fmt.Errorf("velocity range %d-%d: %w", lovel, hivel, ErrInvalidParam)
	}

	meta := SampleMeta{
		RootNote:     uint8(root),
		VelocityLow:  uint8(lovel),
		VelocityHigh: uint8(hivel),
	}

	switch mode := region.GetInheritedStringOpcode("loop_mode"); mode {
	case "loop_continuous", "loop_sustain":
		loopStart := region.GetInheritedIntOpcode("loop_start", 0)
		loopEnd := region.GetInheritedIntOpcode("loop_end", frames)
		if loopStart < 0 || loopEnd < 0 {
			return SampleMeta{}, fmt.Errorf("loop %d-%d: %w", loopStart, loopEnd, ErrInvalidParam)
		}
		meta.LoopEnabled = true
		meta.LoopStart = uint32(loopStart)
		meta.LoopEnd = uint32(loopEnd)
	case "", "no_loop", "one_shot":
	default:
		parserDebug("Warning: Unsupported loop_mode %q, playing without loop", mode)
	}
	return meta, nil
}
