// Package system composes the processor hosts, buses, video/audio units,
// and cartridge/disc layers this module ships into one System Core per
// console, and drives them with a clockdrv.Driver.
//
// Follows a flag-driven Config struct wiring one of each subsystem
// together, generalized from a single fixed machine to one System Core
// type per console family.
package system

import (
	"github.com/retrocore/retrocore/audio"
	"github.com/retrocore/retrocore/cart"
	"github.com/retrocore/retrocore/video"
)

// Config holds the host-settable options every System Core accepts at
// construction, as a plain-struct composition in the style of a
// GUIConfig/AudioConfig pair. No persistence of this struct is
// implemented; the host fills it once at startup.
type Config struct {
	// RegionOverride forces NTSC/PAL/region timing instead of the value
	// cart.DetectGenesisRegion (or the console's own header convention)
	// would infer. Zero value means "use detected region".
	RegionOverride cart.Region

	// Deinterlace renders interlaced double-resolution modes (Genesis
	// VDP's interlace mode 2, etc.) at full vertical resolution instead of
	// field-blending.
	Deinterlace bool

	// AudioInterpolation selects the PCM interpolation mode where a unit
	// supports more than one; only the Sega CD's RF5C164 (5 modes) reads
	// it, and the SNES DSP has a single linear mode.
	AudioInterpolation int

	// Overclock scales CPU host budgets up for a faster-than-retail run,
	// explicitly a debug/accessibility feature, never default-on.
	Overclock float64

	// LowPassCutoffHz selects which audio.LowPass preset the mixer chain
	// applies; 0 means "no low-pass filtering".
	LowPassCutoffHz float64

	// DynamicResamplingTarget is the queue-level fraction the resampler's
	// ±0.5% dynamic ratio control steers toward.
	DynamicResamplingTarget float64

	// YM2612BusyMode selects which busy-flag model the Genesis/Sega CD's
	// FM synth reports; hosts can select between the strict and lenient
	// busy-polling behaviors real software relies on.
	YM2612BusyMode int
}

// DefaultConfig returns the conservative defaults every System Core
// constructor falls back to for zero-valued fields.
func DefaultConfig() Config {
	return Config{
		DynamicResamplingTarget: 0.5,
		LowPassCutoffHz:         15000,
	}
}

// RenderSink receives completed frames from a System Core's video unit(s).
// The default videosink.Renderer implements this; tests and cmd/retrocore's
// headless mode supply their own.
type RenderSink interface {
	Present(f video.Frame)
}

// SampleSink receives mixed audio frames from a System Core's audio-flush
// worker. The default audiosink.AudioSink implements this.
type SampleSink interface {
	Write(frames []float32) (dropped int)
}

// mixUnits sums the per-unit Sample outputs of every attached audio.Unit
// into one stereo frame, applying equal-weight mixing; System Cores with
// per-chip gain staging wrap this with their own scaling before calling it.
func mixUnits(units []audio.Unit) [2]float32 {
	var l, r float32
	for _, u := range units {
		s := u.Sample()
		switch len(s) {
		case 1:
			l += s[0]
			r += s[0]
		case 2:
			l += s[0]
			r += s[1]
		}
	}
	return [2]float32{l, r}
}
