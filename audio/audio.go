// Package audio holds the pieces every sound chip shares: the MC-tick-
// stepped Unit contract, a lock-free-by-convention ring buffer for handing
// samples to the host audio sink, the low-pass filter library, and the
// dynamic-ratio polyphase resampler.
//
// Follows a per-clock Clock/Sample split (one call advances chip state,
// one call reads the current analog level), generalized here into the
// Unit interface every chip in the audio/<chip> subpackages implements,
// driven by this module's mclock ticks rather than a fixed
// clocksPerSample accumulator.
package audio

import "github.com/retrocore/retrocore/mclock"

// Unit is implemented by every sound chip. StepTo advances the chip's
// internal state to MC tick `to`; Sample returns the chip's current
// instantaneous output level(s) without side effects, so the System Core's
// mixer can call it at its own cadence independent of how often StepTo
// batches chip-internal clock ticks.
type Unit interface {
	StepTo(to mclock.Tick)
	Sample() []float32 // one value per output channel (1=mono, 2=stereo)
}

// RingBuffer is a fixed-capacity float32 sample ring the mixer writes into
// and the host AudioSink drains from. It is single-producer/single-consumer
// by construction (the System Core's audio-flush worker is the only writer,
// the host callback is the only reader); callers are responsible for not
// overlapping a Write with a Read from two different goroutines without
// their own synchronization, matching the worker-boundary model.
type RingBuffer struct {
	buf        []float32
	channels   int
	writePos   int
	readPos    int
	filled     int
}

// NewRingBuffer creates a ring buffer holding up to capacityFrames frames
// of `channels`-channel audio.
func NewRingBuffer(capacityFrames, channels int) *RingBuffer {
	return &RingBuffer{buf: make([]float32, capacityFrames*channels), channels: channels}
}

// Write appends frames (each a `channels`-length slice flattened into one
// []float32) to the buffer, dropping the oldest frames if it would
// overflow so the producer never blocks.
func (r *RingBuffer) Write(frames []float32) (dropped int) {
	n := len(frames) / r.channels
	cap := len(r.buf) / r.channels
	if n > cap {
		dropped = n - cap
		frames = frames[len(frames)-cap*r.channels:]
		n = cap
	}
	for i := 0; i < n; i++ {
		for c := 0; c < r.channels; c++ {
			r.buf[r.writePos*r.channels+c] = frames[i*r.channels+c]
		}
		r.writePos = (r.writePos + 1) % cap
		if r.filled < cap {
			r.filled++
		} else {
			r.readPos = (r.readPos + 1) % cap
			dropped++
		}
	}
	return dropped
}

// Read drains up to len(out)/channels frames into out, returning the number
// of frames actually read; remaining slots in out are left untouched
// (callers typically zero-fill on underrun).
func (r *RingBuffer) Read(out []float32) int {
	cap := len(r.buf) / r.channels
	want := len(out) / r.channels
	n := r.filled
	if n > want {
		n = want
	}
	for i := 0; i < n; i++ {
		for c := 0; c < r.channels; c++ {
			out[i*r.channels+c] = r.buf[r.readPos*r.channels+c]
		}
		r.readPos = (r.readPos + 1) % cap
	}
	r.filled -= n
	return n
}

// QueueLevel returns the fraction of the buffer currently filled, in
// [0,1], used by the dynamic resampler to steer its ratio ("dynamic
// ±0.5% ratio control against queue level").
func (r *RingBuffer) QueueLevel() float64 {
	cap := len(r.buf) / r.channels
	if cap == 0 {
		return 0
	}
	return float64(r.filled) / float64(cap)
}
