package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallnest/ringbuffer"
	"github.com/spf13/cobra"

	"midisampler"
)

func playCommand() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a MIDI file through the default audio device",
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

			if metricsAddr != "" {
				stop, err := serveMetrics(ss.sampler, metricsAddr)
				if err != nil {
					return err
				}
				defer stop()
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return play(ctx, ss)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while playing")
	return cmd
}

// sessionReader feeds oto from the sampler. oto calls Read from its own
// goroutine, which makes that goroutine the render context. Rendered blocks
// are encoded as float32LE into a two-block ring that Read drains. Realtime
// mode is entered on the first Read and left on the last one.
type sessionReader struct {
	ss      *session
	block   []float32
	frames  int
	encoded []byte
	ring    *ringbuffer.RingBuffer
	done    atomic.Bool

	realtime bool // render goroutine locked by EnableRealtime
	finished bool // EOF or error returned
}

func newSessionReader(ss *session) *sessionReader {
	cfg := ss.sampler.Config()
	n := cfg.BufferSize * int(cfg.Channels)
	return &sessionReader{
		ss:      ss,
		block:   make([]float32, n),
		frames:  cfg.BufferSize,
		encoded: make([]byte, n*4),
		ring:    ringbuffer.New(2 * n * 4),
	}
}

func (r *sessionReader) Read(p []byte) (int, error) {
	if r.finished {
		return 0, io.EOF
	}
	if !r.realtime {
		midisampler.EnableRealtime()
		r.realtime = true
	}

	for !r.done.Load() && r.ring.Free() >= len(r.encoded) {
		more, err := r.ss.renderBlock(r.block, r.frames)
		if err != nil {
			r.finish()
			return 0, err
		}
		for i, v := range r.block {
			binary.LittleEndian.PutUint32(r.encoded[i*4:], math.Float32bits(v))
		}
		if _, err := r.ring.Write(r.encoded); err != nil {
			r.finish()
			return 0, fmt.Errorf("failed to buffer audio: %w", err)
		}
		if !more {
			r.done.Store(true)
		}
	}

	n, err := r.ring.Read(p)
	if errors.Is(err, ringbuffer.ErrIsEmpty) {
		r.finish()
		return 0, io.EOF
	}
	return n, err
}

// finish leaves realtime mode on the goroutine that entered it.
func (r *sessionReader) finish() {
	r.finished = true
	if r.realtime {
		midisampler.DisableRealtime()
		r.realtime = false
	}
}

func play(ctx context.Context, ss *session) error {
	cfg := ss.sampler.Config()

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   int(cfg.SampleRate),
		ChannelCount: int(cfg.Channels),
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(cfg.BufferSize) * time.Second / time.Duration(cfg.SampleRate),
	})
	if err != nil {
		return fmt.Errorf("failed to open audio device: %w", err)
	}
	<-ready

	if err := ss.sampler.StartPlayback(); err != nil {
		return err
	}

	reader := newSessionReader(ss)
	player := otoCtx.NewPlayer(reader)
	defer player.Close()
	player.Play()
	cliDebug("Playing %s", ss.settings.MIDI)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			ss.sampler.StopPlayback()
			reader.done.Store(true)
			return nil
		case <-ticker.C:
		}
	}

	if err := player.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("playback failed: %w", err)
	}
	stats := ss.sampler.Stats()
	cliDebug("Playback finished: %d frames, %d dropped events", stats.FramesProcessed, stats.DroppedEvents)
	return nil
}

func serveMetrics(s *midisampler.Sampler, addr string) (func(), error) {
	registry := prometheus.NewRegistry()
	if _, err := midisampler.NewSamplerMetrics(registry, s); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cliDebug("Metrics server stopped: %v", err)
		}
	}()
	cliDebug("Serving metrics on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
