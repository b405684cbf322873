// Package sn76489 implements the SN76489 / SN76489A programmable sound
// generator used by the Sega Master System, Game Gear, and (as the
// Genesis's secondary PSG) the Mega Drive.
//
// Implements the register latch format, LFSR feedback taps, the
// Sega-vs-TI variant table, and the documented period-0 quirk, driven by
// this module's MC-tick-based audio.Unit contract: StepTo walks the
// internal /16 divider itself instead of a caller-supplied
// Clock/Run(clocks) pair.
package sn76489

import (
	"math"

	"github.com/retrocore/retrocore/mclock"
)

// ToneZero selects how a tone register value of 0 behaves: the Sega
// variant treats it as 1 (maximum frequency), the original TI part as
// 1024 (minimum), per the documented period-0 quirk.
type ToneZero int

const (
	ToneZeroAsOne ToneZero = iota
	ToneZeroAs1024
)

// Config captures the Sega/TI variant differences.
type Config struct {
	LFSRBits       int
	WhiteNoiseTaps uint16
	ToneZero       ToneZero
}

var Sega = Config{LFSRBits: 16, WhiteNoiseTaps: 0x0009, ToneZero: ToneZeroAsOne}
var TI = Config{LFSRBits: 15, WhiteNoiseTaps: 0x0003, ToneZero: ToneZeroAs1024}

var volumeTable [16]float32

func init() {
	for i := 0; i < 15; i++ {
		volumeTable[i] = float32(math.Pow(10, -2.0*float64(i)/20.0))
	}
	volumeTable[15] = 0
}

// PSG is the SN76489: 3 square-wave tone channels and 1 noise channel.
type PSG struct {
	toneReg     [3]uint16
	toneCounter [3]uint16
	toneOutput  [3]bool

	noiseReg     uint8
	noiseCounter uint16
	noiseShift   uint16
	noiseToggle  bool
	noiseOut     bool

	volume [4]uint8

	latchedChannel uint8
	latchedType    uint8

	feedbackShift  uint
	lfsrInitial    uint16
	whiteNoiseTaps uint16
	toneZeroValue  uint16

	// stereoPanning holds the Game-Gear-only $06 stereo register (bit per
	// channel per side); ignored on SMS/Genesis hosts that never write it.
	stereoPanning uint8

	gain float32

	mc           mclock.Tick
	mcPerClock   mclock.Divider // MC ticks per chip input clock (before the /16 divider)
	clockRemainder mclock.Tick
	clockDivider int
}

// New creates an SN76489/SN76489A for the given variant, stepped at
// mcPerClock MC ticks per chip input clock (3579545 Hz on SMS; the Genesis
// wiring divides further upstream since its PSG shares the Z80's clock).
func New(mcPerClock mclock.Divider, cfg Config) *PSG {
	feedbackShift := uint(cfg.LFSRBits - 1)
	lfsrInitial := uint16(1) << feedbackShift
	toneZeroValue := uint16(1)
	if cfg.ToneZero == ToneZeroAs1024 {
		toneZeroValue = 1024
	}
	p := &PSG{
		mcPerClock:     mcPerClock,
		noiseShift:     lfsrInitial,
		feedbackShift:  feedbackShift,
		lfsrInitial:    lfsrInitial,
		whiteNoiseTaps: cfg.WhiteNoiseTaps,
		toneZeroValue:  toneZeroValue,
		gain:           0.25,
	}
	for i := range p.volume {
		p.volume[i] = 0x0F
	}
	return p
}

// Write handles a write to the PSG's single write-only I/O port.
func (p *PSG) Write(value uint8) {
	if value&0x80 != 0 {
		p.latchedChannel = (value >> 5) & 0x03
		p.latchedType = (value >> 4) & 0x01
		data := value & 0x0F
		if p.latchedType == 1 {
			p.volume[p.latchedChannel] = data
		} else if p.latchedChannel < 3 {
			p.toneReg[p.latchedChannel] = (p.toneReg[p.latchedChannel] & 0x3F0) | uint16(data)
		} else {
			p.noiseReg = data & 0x07
			p.noiseShift = p.lfsrInitial
		}
	} else if p.latchedType == 0 {
		if p.latchedChannel < 3 {
			data := uint16(value & 0x3F)
			p.toneReg[p.latchedChannel] = (p.toneReg[p.latchedChannel] & 0x0F) | (data << 4)
		} else {
			p.noiseReg = value & 0x07
			p.noiseShift = p.lfsrInitial
		}
	}
}

// WriteStereo handles a write to the Game Gear's stereo panning port.
func (p *PSG) WriteStereo(value uint8) { p.stereoPanning = value }

// StepTo implements audio.Unit, advancing the chip's tone/noise counters
// by however many chip clocks fall within the elapsed MC ticks.
func (p *PSG) StepTo(to mclock.Tick) {
	clocks, rem := p.mcPerClock.Steps(to-p.mc, p.clockRemainder)
	p.mc = to
	p.clockRemainder = rem
	for i := uint64(0); i < clocks; i++ {
		p.clockOnce()
	}
}

func (p *PSG) clockOnce() {
	p.clockDivider++
	if p.clockDivider < 16 {
		return
	}
	p.clockDivider = 0

	for i := 0; i < 3; i++ {
		if p.toneCounter[i] > 0 {
			p.toneCounter[i]--
		} else {
			if p.toneReg[i] == 0 {
				p.toneCounter[i] = p.toneZeroValue
			} else {
				p.toneCounter[i] = p.toneReg[i]
			}
			p.toneOutput[i] = !p.toneOutput[i]
		}
	}

	if p.noiseCounter > 0 {
		p.noiseCounter--
		return
	}
	switch p.noiseReg & 0x03 {
	case 0:
		p.noiseCounter = 0x10
	case 1:
		p.noiseCounter = 0x20
	case 2:
		p.noiseCounter = 0x40
	case 3:
		if p.toneReg[2] == 0 {
			p.noiseCounter = p.toneZeroValue
		} else {
			p.noiseCounter = p.toneReg[2]
		}
	}
	p.noiseToggle = !p.noiseToggle
	if !p.noiseToggle {
		return
	}
	p.noiseOut = p.noiseShift&1 != 0
	var feedback uint16
	if p.noiseReg&0x04 != 0 {
		tapped := p.noiseShift & p.whiteNoiseTaps
		tapped ^= tapped >> 8
		tapped ^= tapped >> 4
		tapped ^= tapped >> 2
		tapped ^= tapped >> 1
		feedback = (tapped & 1) << p.feedbackShift
	} else {
		feedback = (p.noiseShift & 1) << p.feedbackShift
	}
	p.noiseShift = (p.noiseShift >> 1) | feedback
}

// Sample implements audio.Unit: mono while the Game Gear stereo panning
// register holds 0 (as on SMS/Genesis, where it is never written), stereo
// once it holds a nonzero value.
func (p *PSG) Sample() []float32 {
	if p.stereoPanning == 0 {
		var mono float32
		for i := 0; i < 3; i++ {
			if p.toneOutput[i] {
				mono += volumeTable[p.volume[i]]
			}
		}
		if p.noiseOut {
			mono += volumeTable[p.volume[3]]
		}
		return []float32{mono * p.gain}
	}

	var left, right float32
	for i := 0; i < 3; i++ {
		if !p.toneOutput[i] {
			continue
		}
		v := volumeTable[p.volume[i]]
		if p.stereoPanning&(1<<uint(4+i)) != 0 {
			left += v
		}
		if p.stereoPanning&(1<<uint(i)) != 0 {
			right += v
		}
	}
	if p.noiseOut {
		v := volumeTable[p.volume[3]]
		if p.stereoPanning&0x80 != 0 {
			left += v
		}
		if p.stereoPanning&0x08 != 0 {
			right += v
		}
	}
	return []float32{left * p.gain, right * p.gain}
}

// SetGain scales the mixed output; Genesis hosts lower this relative to
// the YM2612 to match real hardware's relative PSG/FM balance.
func (p *PSG) SetGain(gain float32) { p.gain = gain }
