//go:build !headless

package audiosink

import (
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/retrocore/retrocore/audio"
)

// AudioSink is the default oto-backed system.SampleSink: Write feeds the
// mixed frames straight into a ring buffer, and oto's own player callback
// drains that same ring on its own thread via Read, exactly the split
// audio_backend_oto.go's OtoPlayer keeps between SoundChip.ReadSampleFromRing
// (the producer-side chip) and Read (the oto callback).
type AudioSink struct {
	cfg Config
	ctx *oto.Context

	mu     sync.Mutex
	player *oto.Player
	ring   *audio.RingBuffer

	started bool
}

// NewAudioSink opens an oto playback context at cfg's sample rate and
// channel count and starts the player immediately, folding what would be
// separate NewOtoPlayer+SetupPlayer+Start calls into one.
func NewAudioSink(cfg Config) (*AudioSink, error) {
	op := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   4,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	// A few hundred milliseconds of headroom absorbs scheduling jitter
	// between the emulation thread's per-frame flush and oto's pull rate.
	ring := audio.NewRingBuffer(cfg.SampleRate/4, cfg.Channels)

	s := &AudioSink{cfg: cfg, ctx: ctx, ring: ring}
	s.player = ctx.NewPlayer(s)
	s.player.Play()
	s.started = true
	return s, nil
}

// Write implements system.SampleSink: hand frames to the ring buffer,
// never blocking the caller.
func (s *AudioSink) Write(frames []float32) (dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Write(frames)
}

// Read implements io.Reader for oto.Player: drain the ring into p,
// zero-filling any underrun so playback never stutters on silence.
func (s *AudioSink) Read(p []byte) (n int, err error) {
	samples := byteFloats(p)
	s.mu.Lock()
	got := s.ring.Read(samples)
	s.mu.Unlock()
	for i := got; i < len(samples); i++ {
		samples[i] = 0
	}
	return len(p), nil
}

// Close stops playback and releases the oto player.
func (s *AudioSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		err := s.player.Close()
		s.player = nil
		s.started = false
		return err
	}
	return nil
}

// IsStarted reports whether playback has been started.
func (s *AudioSink) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
