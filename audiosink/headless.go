//go:build headless

// headless.go - the no-device AudioSink used by cmd/retrocore's smoke-test
// mode and by tests, grounded on audio_backend_headless.go's no-op
// OtoPlayer stand-in.

package audiosink

import (
	"sync"
	"sync/atomic"
)

// AudioSink is the headless system.SampleSink: it counts and optionally
// records the frames it receives but plays nothing, mirroring the
// headless OtoPlayer's role as a drop-in stand-in with no real device.
type AudioSink struct {
	cfg Config

	mu   sync.Mutex
	last []float32

	written uint64
	started bool
}

// NewAudioSink constructs a headless AudioSink. It never fails.
func NewAudioSink(cfg Config) (*AudioSink, error) {
	return &AudioSink{cfg: cfg, started: true}, nil
}

// Write implements system.SampleSink: record the frames and report no
// drops, since there is no bounded device buffer to overflow.
func (s *AudioSink) Write(frames []float32) (dropped int) {
	s.mu.Lock()
	s.last = append(s.last[:0], frames...)
	s.mu.Unlock()
	atomic.AddUint64(&s.written, uint64(len(frames)/s.cfg.Channels))
	return 0
}

// LastFrame returns the most recently written sample frames, for test
// assertions.
func (s *AudioSink) LastFrame() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float32, len(s.last))
	copy(out, s.last)
	return out
}

// FramesWritten returns the total number of sample frames written so far.
func (s *AudioSink) FramesWritten() uint64 { return atomic.LoadUint64(&s.written) }

// Close is a no-op; it exists for interface parity with the real backend.
func (s *AudioSink) Close() error { return nil }

// IsStarted always reports true: the headless sink has nothing to start.
func (s *AudioSink) IsStarted() bool { return s.started }
