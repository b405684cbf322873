package system

import "github.com/retrocore/retrocore/mclock"

// mcScaledDecoder wraps a cpu.Decoder whose Step() returns ticks in its
// own native cycle domain (documented per architecture: the NES 6502
// returns CPU cycles that the System Core multiplies by 12 for MC, the
// SNES 65816 by its own /6 ratio against the dot clock, SPC700 against
// its shared oscillator ratio with the S-DSP) into this System Core's
// shared master-clock domain, so every cpu.Host's Committed() value is
// directly comparable by clockdrv.Driver regardless of which CPU family
// produced it.
//
// Decoders that already return MC-scaled ticks (the 68000's word-timing
// model, the SM83's T-cycle-as-MC-unit convention) are wired directly to
// cpu.NewHost without this wrapper.
type mcScaledDecoder struct {
	step  func() mclock.Tick
	ratio mclock.Tick
}

func (d mcScaledDecoder) Step() mclock.Tick { return d.step() * d.ratio }
