package main

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/cobra"
)

func renderCommand() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a MIDI file to a 16-bit WAV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(true)
			if err != nil {
				return err
			}
			ss, err := newSession(settings)
			if err != nil {
				return err
			}
			defer ss.Close()

			frames, err := renderToWAV(ss, outPath)
			if err != nil {
				return err
			}
			rate := ss.sampler.Config().SampleRate
			fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d frames (%.2fs) to %s\n",
				frames, float64(frames)/float64(rate), outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "out.wav", "Output WAV file")
	return cmd
}

// renderToWAV runs the session offline and writes the output as 16-bit PCM.
func renderToWAV(ss *session, outPath string) (uint64, error) {
	cfg := ss.sampler.Config()

	f, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", outPath, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, int(cfg.SampleRate), 16, int(cfg.Channels), 1)

	channels := int(cfg.Channels)
	block := make([]float32, cfg.BufferSize*channels)
	intBuf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: int(cfg.SampleRate)},
		Data:           make([]int, len(block)),
		SourceBitDepth: 16,
	}

	if err := ss.sampler.StartPlayback(); err != nil {
		return 0, err
	}

	var frames uint64
	for {
		more, err := ss.renderBlock(block, cfg.BufferSize)
		if err != nil {
			return frames, err
		}
		for i, v := range block {
			intBuf.Data[i] = floatToPCM16(v)
		}
		if err := enc.Write(intBuf); err != nil {
			return frames, fmt.Errorf("failed to write %s: %w", outPath, err)
		}
		frames += uint64(cfg.BufferSize)
		if !more {
			break
		}
	}

	if err := enc.Close(); err != nil {
		return frames, fmt.Errorf("failed to finalize %s: %w", outPath, err)
	}
	cliDebug("Wrote %d frames to %s", frames, outPath)
	return frames, nil
}

func floatToPCM16(v float32) int {
	switch {
	case v >= 1:
		return 32767
	case v <= -1:
		return -32768
	}
	return int(v * 32767)
}
