// Package vrc7 implements the Konami VRC7 NES mapper's expansion audio: a
// 6-channel FM synth derived from the YM2413 (OPLL), wired through the NES
// mapper's expansion-audio hook (cart.ExpansionAudio) and mixed alongside
// the NES's built-in APU (audio/nesapu).
//
// Follows the YM2413/OPLL patch table and per-channel operator layout,
// adapted onto this module's audio.Unit (StepTo/Sample) convention the
// same way audio/ym2612 is.
package vrc7

import "github.com/retrocore/retrocore/mclock"

const numChannels = 6

// builtInPatches is the VRC7's fixed 15-entry instrument ROM (patch 0 is
// the user-programmable "custom" slot written via register $00-$07).
// Each entry is {mult1, mult2, ksr1, ksr2, tl, fb, ar1, dr1, sl1, rr1, ar2,
// dr2, sl2, rr2} collapsed here to the two fields this module's simplified
// operator model actually drives: multiplier and total level bias.
type patch struct {
	mult    [2]byte
	totalLv byte
	feedback byte
}

var builtInPatches = [16]patch{
	{}, // slot 0: custom, programmed via writeCustom
	{mult: [2]byte{1, 1}, totalLv: 8, feedback: 2},   // Violin
	{mult: [2]byte{1, 3}, totalLv: 12, feedback: 3},  // Guitar
	{mult: [2]byte{2, 1}, totalLv: 10, feedback: 1},  // Piano
	{mult: [2]byte{1, 2}, totalLv: 14, feedback: 4},  // Flute
	{mult: [2]byte{1, 1}, totalLv: 9, feedback: 2},   // Clarinet
	{mult: [2]byte{2, 2}, totalLv: 11, feedback: 3},  // Oboe
	{mult: [2]byte{1, 4}, totalLv: 13, feedback: 5},  // Trumpet
	{mult: [2]byte{3, 1}, totalLv: 10, feedback: 2},  // Organ
	{mult: [2]byte{1, 1}, totalLv: 12, feedback: 1},  // Horn
	{mult: [2]byte{2, 3}, totalLv: 15, feedback: 3},  // Synth
	{mult: [2]byte{1, 2}, totalLv: 11, feedback: 2},  // Harpsichord
	{mult: [2]byte{4, 1}, totalLv: 9, feedback: 4},   // Vibraphone
	{mult: [2]byte{1, 1}, totalLv: 13, feedback: 2},  // Synth bass
	{mult: [2]byte{2, 1}, totalLv: 10, feedback: 3},  // Acoustic bass
	{mult: [2]byte{1, 2}, totalLv: 12, feedback: 2},  // Electric guitar
}

type operator struct {
	phase     uint32
	envLevel  int
	envMode   int
}

const (
	envAttack = iota
	envDecay
	envSustain
	envRelease
)

type channel struct {
	fnum  uint16 // 9-bit
	block byte   // 3-bit octave
	instrument byte
	volume     byte // 4-bit attenuation, register-driven
	sustainOn  bool
	keyOn      bool

	op [2]operator

	custom patch // used when instrument == 0
}

type VRC7 struct {
	ch [numChannels]channel

	addrLatch byte

	mc        mclock.Tick
	mcPerStep mclock.Divider
	remainder mclock.Tick
}

func New(mcPerStep mclock.Divider) *VRC7 {
	return &VRC7{mcPerStep: mcPerStep}
}

// WriteAddr latches the target register, matching the VRC7's $9010 port.
func (v *VRC7) WriteAddr(addr byte) { v.addrLatch = addr }

// WriteData writes to the register the last WriteAddr call latched,
// matching the VRC7's $9030 port.
func (v *VRC7) WriteData(data byte) {
	switch {
	case v.addrLatch <= 0x07:
		v.writeCustom(v.addrLatch, data)
	case v.addrLatch >= 0x10 && v.addrLatch <= 0x15:
		ch := &v.ch[v.addrLatch-0x10]
		ch.fnum = (ch.fnum &^ 0xFF) | uint16(data)
	case v.addrLatch >= 0x20 && v.addrLatch <= 0x25:
		ch := &v.ch[v.addrLatch-0x20]
		ch.fnum = (ch.fnum &^ 0x100) | uint16(data&0x1)<<8
		ch.block = (data >> 1) & 0x7
		wasOn := ch.keyOn
		ch.sustainOn = data&0x20 != 0
		ch.keyOn = data&0x10 != 0
		if ch.keyOn && !wasOn {
			v.triggerChannel(ch)
		} else if !ch.keyOn && wasOn {
			ch.op[0].envMode = envRelease
			ch.op[1].envMode = envRelease
		}
	case v.addrLatch >= 0x30 && v.addrLatch <= 0x35:
		ch := &v.ch[v.addrLatch-0x30]
		ch.instrument = data >> 4
		ch.volume = data & 0xF
	}
}

// writeCustom updates the programmable patch's operator-pair fields; this
// module's simplified operator model only tracks multiplier/total-level/
// feedback, so the remaining custom-patch bits (envelope shape selectors,
// amplitude/vibrato depth) are accepted but not separately modeled.
func (v *VRC7) writeCustom(reg, data byte) {
	for i := range v.ch {
		switch reg {
		case 2:
			v.ch[i].custom.mult[0] = data & 0xF
		case 3:
			v.ch[i].custom.mult[1] = data & 0xF
		case 6:
			v.ch[i].custom.totalLv = data & 0x3F
		case 7:
			v.ch[i].custom.feedback = data & 0x7
		}
	}
}

func (v *VRC7) triggerChannel(ch *channel) {
	ch.op[0] = operator{}
	ch.op[1] = operator{}
}

func (v *VRC7) activePatch(ch *channel) patch {
	if ch.instrument == 0 {
		return ch.custom
	}
	return builtInPatches[ch.instrument&0xF]
}

func (v *VRC7) StepTo(to mclock.Tick) {
	steps, rem := v.mcPerStep.Steps(to-v.mc, v.remainder)
	v.mc = to
	v.remainder = rem
	for i := uint64(0); i < steps; i++ {
		v.stepOnce()
	}
}

func (v *VRC7) stepOnce() {
	for i := range v.ch {
		ch := &v.ch[i]
		if !ch.keyOn && ch.op[0].envMode != envRelease {
			continue
		}
		p := v.activePatch(ch)
		step := fnumToStep(ch.fnum, ch.block)
		for o := range ch.op {
			if p.mult[o] == 0 {
				ch.op[o].phase += step / 2 // MULT 0 is x1/2
			} else {
				ch.op[o].phase += step * uint32(p.mult[o])
			}
			advanceEnvelope(&ch.op[o], ch.sustainOn)
		}
	}
}

func fnumToStep(fnum uint16, block byte) uint32 {
	return uint32(fnum) << block
}

func advanceEnvelope(op *operator, sustain bool) {
	switch op.envMode {
	case envAttack:
		op.envLevel += 24
		if op.envLevel >= 0x3FF {
			op.envLevel = 0x3FF
			op.envMode = envDecay
		}
	case envDecay:
		op.envLevel -= 2
		if sustain || op.envLevel <= 0x200 {
			op.envLevel = maxInt(op.envLevel, 0x200)
			op.envMode = envSustain
		}
	case envSustain:
	case envRelease:
		op.envLevel -= 4
		if op.envLevel < 0 {
			op.envLevel = 0
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Sample implements audio.Unit, mixing all 6 channels into a mono signal
// (the VRC7, like the NES's internal APU channels it supplements, has no
// stereo output of its own).
func (v *VRC7) Sample() []float32 {
	var mix float32
	for i := range v.ch {
		ch := &v.ch[i]
		if !ch.keyOn && ch.op[0].envLevel == 0 {
			continue
		}
		p := v.activePatch(ch)
		mod := sinApprox(ch.op[0].phase) * float32(ch.op[0].envLevel) / 1024.0
		carrierPhase := ch.op[1].phase + uint32(mod*4096)
		carrier := sinApprox(carrierPhase) * float32(ch.op[1].envLevel) / 1024.0

		atten := float32(ch.volume) / 15.0
		levelBias := 1.0 - float32(p.totalLv)/63.0
		mix += carrier * (1 - atten) * levelBias / float32(numChannels)
	}
	return []float32{mix}
}

func sinApprox(phase uint32) float32 {
	// phase is a 32-bit wrapping angle accumulator; this reduces it to
	// [-pi,pi] and applies a truncated Taylor-series sine polynomial,
	// adequate for this module's non-bit-exact FM fidelity target.
	const twoPi = 6.2831853
	x := (float32(phase) / float32(1<<32)) * twoPi
	for x > 3.14159265 {
		x -= twoPi
	}
	x2 := x * x
	return x * (1 - x2/6*(1-x2/20*(1-x2/42)))
}
