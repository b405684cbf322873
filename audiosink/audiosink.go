// Package audiosink implements the default host sample sink satisfying
// system.SampleSink, split into "real" and "headless" backends behind a
// build tag.
//
// The real backend is a ring-buffer-backed io.Reader handed to an
// oto.Player; the headless backend is its build-tag-swapped no-op
// counterpart.
package audiosink

// Config holds the sample-rate/channel options every backend's
// constructor accepts.
type Config struct {
	SampleRate int
	Channels   int
}

// DefaultConfig returns the 48kHz stereo default every System Core's
// mixer output (system.mixUnits) already assumes.
func DefaultConfig() Config {
	return Config{SampleRate: 48000, Channels: 2}
}
