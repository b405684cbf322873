// Package rf5c164 implements the RF5C164 PCM sound chip used by the Sega
// CD for its 8-channel sample playback.
//
// Grounded on audio/sn76489's MC-tick-stepped Unit shape; the RF5C164
// itself has no publicly circulated from-scratch Go reference in this
// module's example pack, so its per-channel fractional-phase playback and
// 5 interpolation modes are built directly from documented hardware
// behavior, following this module's established Unit/StepTo/Sample
// convention rather than any single grounding file.
package rf5c164

import "github.com/retrocore/retrocore/mclock"

const numChannels = 8

// Interpolation modes for sample playback between PCM RAM bytes.
const (
	InterpNone       = 0 // nearest-neighbor, matching real hardware's default
	InterpLinear     = 1
	InterpCubic      = 2
	InterpSinc4      = 3
	InterpSinc8      = 4
)

type channel struct {
	enabled  bool
	env      uint8 // 8-bit envelope/volume
	pan      uint8 // 4-bit left/4-bit right pan
	startAddr uint16 // PCM RAM start address (WriteStart sets its high byte, so 256-byte units)
	loopAddr  uint16

	// phase is an 11-bit-fractional fixed point position into PCM RAM.
	phase uint32
	step  uint32
}

type PCM struct {
	RAM [0x10000]byte // 64KB shared PCM sample RAM

	ch [numChannels]channel
	selected int // channel select register ($08)

	interpMode int

	mc           mclock.Tick
	mcPerStep    mclock.Divider
	stepRemainder mclock.Tick
}

func New(mcPerStep mclock.Divider) *PCM {
	return &PCM{mcPerStep: mcPerStep}
}

func (p *PCM) SelectChannel(ch int) { p.selected = ch & 0x7 }

func (p *PCM) SetInterpolation(mode int) { p.interpMode = mode }

// WriteEnv/WritePan/WriteFDL/WriteFDH/WriteLSL/WriteLSH/WriteST write the
// currently-selected channel's registers, matching the RF5C164's
// channel-indirect register file.
func (p *PCM) WriteEnv(v byte) { p.ch[p.selected].env = v }
func (p *PCM) WritePan(v byte) { p.ch[p.selected].pan = v }
func (p *PCM) WriteStepLow(v byte) {
	p.ch[p.selected].step = (p.ch[p.selected].step &^ 0xFF) | uint32(v)
}
func (p *PCM) WriteStepHigh(v byte) {
	p.ch[p.selected].step = (p.ch[p.selected].step &^ 0xFF00) | uint32(v)<<8
}
func (p *PCM) WriteLoopLow(v byte) {
	p.ch[p.selected].loopAddr = (p.ch[p.selected].loopAddr &^ 0xFF) | uint16(v)
}
func (p *PCM) WriteLoopHigh(v byte) {
	p.ch[p.selected].loopAddr = (p.ch[p.selected].loopAddr &^ 0xFF00) | uint16(v)<<8
}
func (p *PCM) WriteStart(v byte) {
	p.ch[p.selected].startAddr = uint16(v) << 8
	p.ch[p.selected].phase = uint32(p.ch[p.selected].startAddr) << 11
}

// SetChannelEnable controls the $01 per-channel on/off mask bit for the
// currently selected channel.
func (p *PCM) SetChannelEnable(enabled bool) { p.ch[p.selected].enabled = enabled }

func (p *PCM) StepTo(to mclock.Tick) {
	steps, rem := p.mcPerStep.Steps(to-p.mc, p.stepRemainder)
	p.mc = to
	p.stepRemainder = rem
	for i := uint64(0); i < steps; i++ {
		p.stepOnce()
	}
}

func (p *PCM) stepOnce() {
	for c := range p.ch {
		ch := &p.ch[c]
		if !ch.enabled {
			continue
		}
		ch.phase += ch.step
		// Loop back to loopAddr (in the same 11-bit-fractional units) once
		// phase's integer part wraps past the 64KB PCM RAM window.
		if ch.phase>>11 >= uint32(len(p.RAM)) {
			ch.phase = uint32(ch.loopAddr) << 11
		}
	}
}

// Sample implements audio.Unit: mixes all enabled channels with per-channel
// 4-bit/4-bit stereo panning and the selected interpolation mode.
func (p *PCM) Sample() []float32 {
	var left, right float32
	for c := range p.ch {
		ch := &p.ch[c]
		if !ch.enabled {
			continue
		}
		raw := p.interpolate(ch)
		amp := (raw * float32(ch.env)) / (127.0 * 255.0)
		l := float32(ch.pan>>4&0xF) / 15.0
		r := float32(ch.pan&0xF) / 15.0
		left += amp * l
		right += amp * r
	}
	return []float32{left, right}
}

func (p *PCM) interpolate(ch *channel) float32 {
	intPos := ch.phase >> 11
	frac := float32(ch.phase&0x7FF) / 2048.0

	sampleAt := func(off int) float32 {
		idx := int(intPos) + off
		if idx < 0 || idx >= len(p.RAM) {
			return 0
		}
		return pcmByteToFloat(p.RAM[idx])
	}

	switch p.interpMode {
	case InterpNone:
		return sampleAt(0)
	case InterpLinear:
		a, b := sampleAt(0), sampleAt(1)
		return a + (b-a)*frac
	case InterpCubic:
		p0, p1, p2, p3 := sampleAt(-1), sampleAt(0), sampleAt(1), sampleAt(2)
		return cubicHermite(p0, p1, p2, p3, frac)
	case InterpSinc4, InterpSinc8:
		taps := 4
		if p.interpMode == InterpSinc8 {
			taps = 8
		}
		return sincInterp(sampleAt, frac, taps)
	}
	return sampleAt(0)
}

// pcmByteToFloat decodes the RF5C164's 8-bit signed-magnitude PCM sample
// format: bit 7 is sign, bits 6-0 are magnitude (not two's complement).
func pcmByteToFloat(b byte) float32 {
	mag := float32(b&0x7F) / 127.0
	if b&0x80 != 0 {
		return -mag
	}
	return mag
}

func cubicHermite(p0, p1, p2, p3, t float32) float32 {
	a0 := p3 - p2 - p0 + p1
	a1 := p0 - p1 - a0
	a2 := p2 - p0
	a3 := p1
	return a0*t*t*t + a1*t*t + a2*t + a3
}

func sincInterp(sampleAt func(int) float32, frac float32, taps int) float32 {
	half := taps / 2
	var sum float32
	for i := -half; i < half; i++ {
		x := float32(i) - frac
		var w float32
		if x == 0 {
			w = 1
		} else {
			pix := float32(3.14159265) * x
			w = float32(sinApprox(pix)) / pix
		}
		sum += sampleAt(i) * w
	}
	return sum
}

func sinApprox(x float32) float32 {
	// Truncated Taylor-series sine polynomial, fine for an
	// interpolation kernel window (not used anywhere tonal).
	for x > 3.14159265 {
		x -= 2 * 3.14159265
	}
	for x < -3.14159265 {
		x += 2 * 3.14159265
	}
	x2 := x * x
	return x * (1 - x2/6*(1-x2/20*(1-x2/42)))
}
