// Package ym2612 implements the YM2612 FM synthesizer (Genesis). The
// YM2413/OPLL-derived audio/vrc7 follows a similar operator/envelope shape
// in its own, separate implementation.
//
// Timer A/B counting and CSM key-on/key-off behavior are reworked onto
// this package's own channel/operator layout. Otherwise this follows
// general FM synthesis structure: 4 operators x 6 channels, 8 algorithms,
// phase/envelope generators, and an LFO.
package ym2612

import (
	"math"

	"github.com/retrocore/retrocore/mclock"
)

const numChannels = 6
const numOperators = 4

// Envelope generator states.
const (
	egAttack = iota
	egDecay
	egSustain
	egRelease
	egOff
)

// SSG-EG flags (register $90-$9F low nibble).
const (
	ssgEnable  = 0x08
	ssgAttack  = 0x04
)

const ssgCenter = 0x400

// Channel 3 special mode selectors (register $27 bits 6-7).
const (
	ch3ModeNormal = 0
	ch3ModeCSM    = 2
)

type operator struct {
	mul, dt  uint8
	tl       uint8 // total level, 0=loud.. 127=silent
	ar, d1r, d2r, rr uint8
	sl       uint8
	ssgEG    uint8

	phaseCounter uint32
	egLevel      uint16 // 10-bit, 0=loud.. 0x3FF=silent
	egState      int
	keyOn        bool
	ssgInverted  bool
}

type channel struct {
	op [numOperators]operator

	fnum  uint16
	block uint8
	algorithm uint8
	feedback  uint8

	panLeft, panRight bool
	amsEnable, pmsDepth uint8

	op1Out, lastOp1Out int32 // feedback history for the self-feedback operator
}

type timer struct {
	period  uint16
	counter uint16
}

// YM2612 is the 6-channel, 4-operator-per-channel FM synthesizer.
type YM2612 struct {
	ch [numChannels]channel

	addrLatch [2]uint8 // per-port address latch (ports 0/1 select channels 1-3 / 4-6)

	ch3Mode uint8
	ch3FreqPerOp [numOperators]struct{ fnum uint16; block uint8 } // channel 3 special-mode per-operator frequency

	timerA         timer
	timerB         timer
	timerBSubCount int
	timerALoad, timerBLoad     bool
	timerAEnable, timerBEnable bool
	timerAOver, timerBOver     bool
	csmKeyOn bool

	lfoEnable bool
	lfoFreq   uint8
	lfoPhase  uint32

	dacEnable bool
	dacValue  int8

	// busyUntil models the chip's documented ~oscillator-relative write
	// busy period. busyMode selects which of the historically-observed
	// per-revision models applies, left user-selectable rather than
	// fixed to one revision.
	busyUntil mclock.Tick
	busyMode  BusyMode

	mc         mclock.Tick
	mcPerSample mclock.Divider
	sampleRemainder mclock.Tick

	// resetLine tracks the Genesis's Z80-controlled /RESET line propagation
	// into the YM2612's own internal reset.
	resetLine bool
}

// BusyMode selects which die revision's busy-flag timing the chip
// reports.
type BusyMode int

const (
	// BusyFixedCycle models the common discrete-YM2612 busy window as a
	// flat cycle count after every register write.
	BusyFixedCycle BusyMode = iota
	// BusyAlwaysClear never reports busy, matching the documented
	// inaccurate behavior of some later die revisions/clone chips that
	// software nonetheless had to tolerate.
	BusyAlwaysClear
)

func New(mcPerSample mclock.Divider) *YM2612 {
	y := &YM2612{mcPerSample: mcPerSample}
	for c := range y.ch {
		y.ch[c].panLeft = true
		y.ch[c].panRight = true
		for o := range y.ch[c].op {
			y.ch[c].op[o].egState = egOff
			y.ch[c].op[o].egLevel = 0x3FF
		}
	}
	return y
}

// AssertReset propagates the Z80 bus /RESET line into the chip, per the
// Genesis's documented Z80-reset-also-resets-YM2612 wiring.
func (y *YM2612) AssertReset(asserted bool) {
	if asserted && !y.resetLine {
		*y = *New(y.mcPerSample)
	}
	y.resetLine = asserted
}

// WriteAddr latches a register address for port 0 (channels 1-3, global
// registers) or port 1 (channels 4-6).
func (y *YM2612) WriteAddr(port int, addr uint8) { y.addrLatch[port&1] = addr }

// WriteData writes to the register last latched by WriteAddr on the given
// port, and starts the chip's write-busy period.
func (y *YM2612) WriteData(port int, data uint8) {
	if y.busyMode == BusyFixedCycle {
		y.busyUntil = y.mc + mclock.Tick(32)
	}
	addr := y.addrLatch[port&1]
	y.writeRegister(port&1, addr, data)
}

// SetBusyMode selects the busy-flag timing model (see BusyMode).
func (y *YM2612) SetBusyMode(mode BusyMode) { y.busyMode = mode }

// Busy reports the chip's busy-flag bit as read through status port $00.
func (y *YM2612) Busy() bool {
	if y.busyMode == BusyAlwaysClear {
		return false
	}
	return y.mc < y.busyUntil
}

func (y *YM2612) writeRegister(port int, addr, data uint8) {
	switch {
	case addr == 0x22:
		y.lfoEnable = data&0x08 != 0
		y.lfoFreq = data & 0x07
	case addr == 0x24:
		y.timerA.period = (y.timerA.period & 0x3) | uint16(data)<<2
	case addr == 0x25:
		y.timerA.period = (y.timerA.period & 0x3FC) | uint16(data&0x3)
	case addr == 0x26:
		y.timerB.period = uint16(data)
	case addr == 0x27:
		y.ch3Mode = (data >> 6) & 0x3
		y.timerALoad = data&0x01 != 0
		y.timerBLoad = data&0x02 != 0
		y.timerAEnable = data&0x04 != 0
		y.timerBEnable = data&0x08 != 0
		if data&0x10 != 0 {
			y.timerAOver = false
		}
		if data&0x20 != 0 {
			y.timerBOver = false
		}
	case addr == 0x28:
		ch := data & 0x07
		if ch >= 3 {
			ch -= 1 // $28's channel select skips the port-1 gap: 0-2=ch1-3, 4-6=ch4-6
		}
		if int(ch) >= numChannels {
			return
		}
		for i := 0; i < numOperators; i++ {
			op := &y.ch[ch].op[i]
			keyOn := data&(0x10<<uint(i)) != 0
			if keyOn && !op.keyOn {
				op.phaseCounter = 0
				op.egState = egAttack
				op.ssgInverted = op.ssgEG&ssgAttack != 0
			} else if !keyOn && op.keyOn {
				op.egState = egRelease
			}
			op.keyOn = keyOn
		}
	case addr == 0x2A:
		y.dacValue = int8(data - 0x80)
	case addr == 0x2B:
		y.dacEnable = data&0x80 != 0
	case addr >= 0x30 && addr <= 0x9E:
		y.writeOperatorRegister(port, addr, data)
	case addr >= 0xA0 && addr <= 0xA2:
		y.writeFnumLow(port, addr-0xA0, data)
	case addr >= 0xA4 && addr <= 0xA6:
		y.writeFnumHigh(port, addr-0xA4, data)
	case addr >= 0xA8 && addr <= 0xAA:
		// Channel 3 special-mode per-operator frequency, low byte.
		y.ch3FreqPerOp[addr-0xA8].fnum = (y.ch3FreqPerOp[addr-0xA8].fnum & 0x700) | uint16(data)
	case addr >= 0xAC && addr <= 0xAE:
		slot := addr - 0xAC
		y.ch3FreqPerOp[slot].block = (data >> 3) & 0x7
		y.ch3FreqPerOp[slot].fnum = (y.ch3FreqPerOp[slot].fnum & 0xFF) | uint16(data&0x7)<<8
	case addr >= 0xB0 && addr <= 0xB2:
		ch := port*3 + int(addr-0xB0)
		y.ch[ch].algorithm = data & 0x07
		y.ch[ch].feedback = (data >> 3) & 0x07
	case addr >= 0xB4 && addr <= 0xB6:
		ch := port*3 + int(addr-0xB4)
		y.ch[ch].panLeft = data&0x80 != 0
		y.ch[ch].panRight = data&0x40 != 0
		y.ch[ch].amsEnable = (data >> 4) & 0x3
		y.ch[ch].pmsDepth = data & 0x7
	}
}

// writeFnumLow handles the frequency-low registers ($A0-$A2): it replaces
// the low 8 F-num bits and keeps the current block and F-num high bits.
// writeFnumHigh ($A4-$A6) applies block and F-num high at once; a high-
// byte write is not held back until the next low-byte write.
func (y *YM2612) writeFnumLow(port int, slot uint8, data uint8) {
	ch := port*3 + int(slot)
	y.ch[ch].fnum = (y.ch[ch].fnum & 0x700) | uint16(data)
}

func (y *YM2612) writeFnumHigh(port int, slot uint8, data uint8) {
	ch := port*3 + int(slot)
	y.ch[ch].block = (data >> 3) & 0x7
	y.ch[ch].fnum = (y.ch[ch].fnum & 0xFF) | uint16(data&0x7)<<8
}

func (y *YM2612) writeOperatorRegister(port int, addr, data uint8) {
	slot := (addr >> 2) & 0x03
	chSel := addr & 0x03
	if chSel == 3 {
		return // no channel at slot offset 3 within a 4-register group
	}
	ch := port*3 + int(chSel)
	if ch >= numChannels {
		return
	}
	op := &y.ch[ch].op[slot]
	switch {
	case addr >= 0x30 && addr <= 0x3E:
		op.dt = (data >> 4) & 0x7
		op.mul = data & 0xF
	case addr >= 0x40 && addr <= 0x4E:
		op.tl = data & 0x7F
	case addr >= 0x50 && addr <= 0x5E:
		op.ar = data & 0x1F
	case addr >= 0x60 && addr <= 0x6E:
		op.d1r = data & 0x1F
	case addr >= 0x70 && addr <= 0x7E:
		op.d2r = data & 0x1F
	case addr >= 0x80 && addr <= 0x8E:
		op.sl = (data >> 4) & 0xF
		op.rr = data & 0xF
	case addr >= 0x90 && addr <= 0x9E:
		op.ssgEG = data & 0xF
	}
}

// StepTo implements audio.Unit.
func (y *YM2612) StepTo(to mclock.Tick) {
	steps, rem := y.mcPerSample.Steps(to-y.mc, y.sampleRemainder)
	y.mc = to
	y.sampleRemainder = rem
	for i := uint64(0); i < steps; i++ {
		y.stepSample()
	}
}

func (y *YM2612) stepSample() {
	y.stepTimers()
	if y.lfoEnable {
		y.lfoPhase++
	}
	for c := range y.ch {
		for o := range y.ch[c].op {
			y.stepEnvelope(&y.ch[c].op[o])
			y.stepPhase(c, o)
		}
	}
}

// stepTimers implements Timer A/B counting and CSM key-on/key-off
// sequencing.
func (y *YM2612) stepTimers() {
	if y.timerALoad {
		if y.csmKeyOn {
			y.csmKeyOff()
			y.csmKeyOn = false
		}
		y.timerA.counter++
		if y.timerA.counter >= 1024-y.timerA.period {
			y.timerA.counter = 0
			if y.timerAEnable {
				y.timerAOver = true
			}
			if y.ch3Mode == ch3ModeCSM {
				y.csmKeyOnAll()
				y.csmKeyOn = true
			}
		}
	}

	y.timerBSubCount++
	if y.timerBSubCount >= 16 {
		y.timerBSubCount = 0
		if y.timerBLoad {
			y.timerB.counter++
			if y.timerB.counter >= 256-y.timerB.period {
				y.timerB.counter = 0
				if y.timerBEnable {
					y.timerBOver = true
				}
			}
		}
	}
}

func (y *YM2612) csmKeyOnAll() {
	ch := &y.ch[2]
	for i := 0; i < numOperators; i++ {
		op := &ch.op[i]
		op.phaseCounter = 0
		op.egState = egAttack
		op.ssgInverted = op.ssgEG&ssgAttack != 0
	}
}

func (y *YM2612) csmKeyOff() {
	ch := &y.ch[2]
	for i := 0; i < numOperators; i++ {
		op := &ch.op[i]
		if !op.keyOn {
			if op.ssgEG&ssgEnable != 0 && op.ssgInverted {
				op.egLevel = (ssgCenter - op.egLevel) & 0x3FF
				op.ssgInverted = false
			}
			op.egState = egRelease
		}
	}
}

// TimerAOverflow/TimerBOverflow/ClearTimerA/ClearTimerB expose the timer
// overflow flags the Z80 or 68000 host reads through status port $00 and
// clears through register $27.
func (y *YM2612) TimerAOverflow() bool { return y.timerAOver }
func (y *YM2612) TimerBOverflow() bool { return y.timerBOver }

const fmClockShift = 16 // phase accumulator fixed-point fraction bits

func (y *YM2612) stepPhase(c, o int) {
	ch := &y.ch[c]
	op := &ch.op[o]
	fnum, block := ch.fnum, ch.block
	if c == 2 && y.ch3Mode == ch3ModeCSM {
		fnum, block = y.ch3FreqPerOp[o].fnum, y.ch3FreqPerOp[o].block
	}
	freq := fnumToFrequencyStep(fnum, block, op.mul, op.dt)
	op.phaseCounter += freq
}

// fnumToFrequencyStep approximates the YM2612's documented F-NUM/BLOCK to
// phase-increment formula: phase_inc = fnum << block, scaled by detune and
// multiple, shifted into a 32-bit fixed-point phase accumulator.
func fnumToFrequencyStep(fnum uint16, block, mul, dt uint8) uint32 {
	base := uint32(fnum) << uint(block)
	m := uint32(mul)
	if m == 0 {
		m = 1 // MUL=0 means x0.5 on real hardware; approximated here as the x1 floor
	}
	step := (base * m) >> 1
	detune := detuneTable[dt&0x7]
	return uint32(int64(step) + int64(detune))
}

// detuneTable is a coarse approximation of the YM2612's 3-bit detune
// field; real hardware's table is frequency-dependent, simplified here to
// a fixed per-step offset sufficient for audible detune effects.
var detuneTable = [8]int32{0, 2, 4, 6, 0, -2, -4, -6}

func (y *YM2612) stepEnvelope(op *operator) {
	const egOff10 = 0x3FF
	switch op.egState {
	case egAttack:
		rate := effectiveRate(op.ar, op)
		if rate == 0 {
			return
		}
		if rate >= 62 {
			op.egLevel = 0
			op.egState = egDecay
			return
		}
		step := attackStep(rate, op.egLevel)
		if op.egLevel > uint16(step) {
			op.egLevel -= uint16(step)
		} else {
			op.egLevel = 0
		}
		if op.egLevel == 0 {
			op.egState = egDecay
		}
	case egDecay:
		rate := effectiveRate(op.d1r, op)
		op.egLevel = advanceDecay(op.egLevel, rate)
		if op.egLevel >= uint16(op.sl)<<5 {
			op.egState = egSustain
		}
	case egSustain:
		rate := effectiveRate(op.d2r, op)
		op.egLevel = advanceDecay(op.egLevel, rate)
		if op.egLevel >= egOff10 {
			op.egLevel = egOff10
			op.egState = egOff
		}
	case egRelease:
		rate := effectiveRate(op.rr*2+1, op)
		op.egLevel = advanceDecay(op.egLevel, rate)
		if op.egLevel >= egOff10 {
			op.egLevel = egOff10
			op.egState = egOff
		}
	}
}

// effectiveRate folds key-scale into the raw rate register, the standard
// YM2612 rate-scaling formula; key-scale-rate is approximated here via the
// operator's own ar/d1r/d2r/rr magnitude rather than the full per-note
// table, since exact per-note KSR is outside this module's fidelity
// target (exact circuit-level modeling is out of scope).
func effectiveRate(rate uint8, op *operator) int {
	r := int(rate) * 2
	if r > 63 {
		r = 63
	}
	return r
}

func attackStep(rate int, level uint16) int {
	if rate == 0 {
		return 0
	}
	step := (int(level) * rate) / 128
	if step < 1 {
		step = 1
	}
	return step
}

func advanceDecay(level uint16, rate int) uint16 {
	if rate == 0 {
		return level
	}
	step := uint16(rate / 4)
	if step < 1 {
		step = 1
	}
	if int(level)+int(step) > 0x3FF {
		return 0x3FF
	}
	return level + step
}

// Sample implements audio.Unit: renders one stereo frame by evaluating
// every channel's algorithm graph and summing pan-gated outputs, plus the
// DAC channel when $2B enables it (replacing channel 6's FM output, per
// hardware).
func (y *YM2612) Sample() []float32 {
	var left, right float32
	for c := range y.ch {
		var v float32
		if c == 5 && y.dacEnable {
			v = float32(y.dacValue) / 128.0
		} else {
			v = y.renderChannel(c)
		}
		if y.ch[c].panLeft {
			left += v
		}
		if y.ch[c].panRight {
			right += v
		}
	}
	return []float32{left / numChannels, right / numChannels}
}

// renderChannel evaluates the 4-operator algorithm graph for one channel.
// The 8 algorithms are the standard YM2612 operator-connection table;
// feedback is applied only to operator 1 per hardware.
func (y *YM2612) renderChannel(c int) float32 {
	ch := &y.ch[c]
	out := [numOperators]int32{}
	for o := 0; o < numOperators; o++ {
		var modIn int32
		switch ch.algorithm {
		case 0:
			if o == 1 {
				modIn = out[0]
			} else if o == 2 {
				modIn = out[1]
			} else if o == 3 {
				modIn = out[2]
			}
		case 1:
			if o == 2 {
				modIn = out[0] + out[1]
			} else if o == 3 {
				modIn = out[2]
			}
		case 2:
			if o == 2 {
				modIn = out[1]
			} else if o == 3 {
				modIn = out[0] + out[2]
			}
		case 3:
			if o == 1 {
				modIn = out[0]
			} else if o == 3 {
				modIn = out[1] + out[2]
			}
		case 4:
			if o == 1 {
				modIn = out[0]
			}
			if o == 3 {
				modIn = out[2]
			}
		case 5:
			if o > 0 {
				modIn = out[0]
			}
		case 6:
			if o == 1 {
				modIn = out[0]
			}
		default: // 7: all operators output directly (additive)
		}
		feedback := int32(0)
		if o == 0 && ch.feedback > 0 {
			feedback = (ch.lastOp1Out + out[0]) >> (9 - ch.feedback)
		}
		out[o] = operatorOutput(&ch.op[o], modIn+feedback)
	}
	ch.lastOp1Out = out[0]

	var mix int32
	switch ch.algorithm {
	case 0, 1, 2, 3:
		mix = out[3]
	case 4:
		mix = out[1] + out[3]
	case 5, 6:
		mix = out[1] + out[2] + out[3]
	default:
		mix = out[0] + out[1] + out[2] + out[3]
	}
	return float32(mix) / 8192.0
}

func operatorOutput(op *operator, modulation int32) int32 {
	phase := (op.phaseCounter >> 10) & 0x3FF
	phaseF := float64(int32(phase)+modulation&0x3FF) / 1024.0 * 2 * math.Pi
	sinVal := math.Sin(phaseF)

	level := float64(op.egLevel) + float64(op.tl)*8
	atten := math.Pow(10, -level/2000.0)

	return int32(sinVal * atten * 8192)
}
