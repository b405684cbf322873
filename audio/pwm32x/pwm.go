// Package pwm32x implements the 32X's 2-channel PWM sound hardware: each
// SH-2 writes samples into a 3-deep FIFO that drains at a programmable
// rate.
package pwm32x

import "github.com/retrocore/retrocore/mclock"

const fifoDepth = 3

type channel struct {
	fifo    [fifoDepth]int16
	fifoLen int
	current int16
}

// PWM is the 32X's pulse-width-modulation audio unit: 2 channels (L/R),
// each a 3-deep FIFO the SH-2s write to, drained at the rate the CYCLE
// register selects.
type PWM struct {
	ch [2]channel

	cycleReg uint16 // PWM sample period in SH-2 cycles

	mc         mclock.Tick
	mcPerCycle mclock.Divider
	remainder  mclock.Tick

	dreqEnable [2]bool
	RaiseDREQ  func(ch int) // drives the SH-2's DMA request for FIFO refill
}

func New(mcPerCycle mclock.Divider) *PWM {
	return &PWM{mcPerCycle: mcPerCycle}
}

// SetCycle sets the PWM sample period register.
func (p *PWM) SetCycle(v uint16) { p.cycleReg = v }

// Push writes one sample into channel ch's FIFO (0=left/mono, 1=right);
// if the FIFO is already full the new sample is dropped and the pending
// samples are left as they are: the write position simply does not
// advance, and the CPU is not stalled.
func (p *PWM) Push(ch int, sample int16) {
	c := &p.ch[ch&1]
	if c.fifoLen >= fifoDepth {
		return
	}
	c.fifo[c.fifoLen] = sample
	c.fifoLen++
}

// FIFOFull/FIFOEmpty report per-channel FIFO status for the SH-2's PWM
// status register polling.
func (p *PWM) FIFOFull(ch int) bool  { return p.ch[ch&1].fifoLen >= fifoDepth }
func (p *PWM) FIFOEmpty(ch int) bool { return p.ch[ch&1].fifoLen == 0 }

func (p *PWM) SetDREQEnable(ch int, enable bool) { p.dreqEnable[ch&1] = enable }

func (p *PWM) StepTo(to mclock.Tick) {
	steps, rem := p.mcPerCycle.Steps(to-p.mc, p.remainder)
	p.mc = to
	p.remainder = rem
	for i := uint64(0); i < steps; i++ {
		p.stepOnce()
	}
}

func (p *PWM) NextDeadline() mclock.Tick { return p.mc + mclock.Tick(p.mcPerCycle) }

func (p *PWM) stepOnce() {
	for i := range p.ch {
		c := &p.ch[i]
		if c.fifoLen > 0 {
			c.current = c.fifo[0]
			copy(c.fifo[:], c.fifo[1:c.fifoLen])
			c.fifoLen--
			if p.dreqEnable[i] && p.RaiseDREQ != nil {
				p.RaiseDREQ(i)
			}
		}
	}
}

// Sample implements audio.Unit. Real hardware outputs a pulse-width
// modulated analog signal; this module models its already-demodulated
// equivalent level, matching every other chip's Unit.Sample contract.
func (p *PWM) Sample() []float32 {
	const fullScale = 1 << 11 // 12-bit PWM value
	left := float32(p.ch[0].current) / fullScale
	right := float32(p.ch[1].current) / fullScale
	return []float32{left, right}
}
