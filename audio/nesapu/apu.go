// Package nesapu implements the NES's built-in APU: 2 pulse channels, a
// triangle channel, a noise channel, and the DMC sample-playback channel,
// driven by the frame counter's 4/5-step sequence.
//
// Channel decomposition follows Square1/Square2/Triangle/Noise/DMC
// fields plus a frameCounter owning the quarter/half-frame clocking,
// expressed here as plain-struct register-write methods against the
// audio.Unit Sample contract rather than a register-tag/snapshot
// framework.
package nesapu

import "github.com/retrocore/retrocore/mclock"

var dutyTable = [4][8]byte{
	{0, 1, 0, 0, 0, 0, 0, 0},
	{0, 1, 1, 0, 0, 0, 0, 0},
	{0, 1, 1, 1, 1, 0, 0, 0},
	{1, 0, 0, 1, 1, 1, 1, 1},
}

var lengthTable = [32]byte{
	10, 254, 20, 2, 40, 4, 80, 6, 160, 8, 60, 10, 14, 12, 26, 14,
	12, 16, 24, 18, 48, 20, 96, 22, 192, 24, 72, 26, 16, 28, 32, 30,
}

var noisePeriodTable = [16]uint16{
	4, 8, 16, 32, 64, 96, 128, 160, 202, 254, 380, 508, 762, 1016, 2034, 4068,
}

var dmcRateTable = [16]uint16{
	428, 380, 340, 320, 286, 254, 226, 214, 190, 160, 142, 128, 106, 84, 72, 54,
}

var triangleSequence = [32]byte{
	15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0,
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
}

type pulse struct {
	duty     byte
	envelope envelope
	sweep    sweepUnit
	timer    uint16
	timerPeriod uint16
	lengthCounter byte
	sequencePos  byte
	enabled      bool
}

type envelope struct {
	constantVolume bool
	volume         byte
	startFlag      bool
	divider        byte
	decayLevel     byte
	loop           bool
}

func (e *envelope) clock() {
	if e.startFlag {
		e.startFlag = false
		e.decayLevel = 15
		e.divider = e.volume
		return
	}
	if e.divider > 0 {
		e.divider--
		return
	}
	e.divider = e.volume
	if e.decayLevel > 0 {
		e.decayLevel--
	} else if e.loop {
		e.decayLevel = 15
	}
}

func (e *envelope) output() byte {
	if e.constantVolume {
		return e.volume
	}
	return e.decayLevel
}

type sweepUnit struct {
	enabled bool
	period  byte
	negate  bool
	shift   byte
	divider byte
	reload  bool
}

type triangle struct {
	timer        uint16
	timerPeriod  uint16
	sequencePos  byte
	lengthCounter byte
	linearCounter byte
	linearReload  byte
	linearReloadFlag bool
	controlFlag   bool
	enabled       bool
}

type noise struct {
	envelope envelope
	timer    uint16
	timerPeriod uint16
	shift    uint16
	mode     bool
	lengthCounter byte
	enabled  bool
}

type dmc struct {
	rate      uint16
	timer     uint16
	sampleAddr uint16
	sampleLen  uint16
	addr       uint16
	bytesRemaining uint16
	buffer     byte
	bufferEmpty bool
	shiftReg   byte
	bitsRemaining byte
	output     byte
	loop       bool
	irqEnable  bool
	irqFlag    bool
	silence    bool

	ReadMemory func(addr uint16) byte
	RequestDMA func(cpuCycles int) // models the CPU-cycle-stealing DMA fetch
}

type frameCounter struct {
	mode     byte // 0=4-step, 1=5-step
	irqInhibit bool
	irqFlag  bool
	step     int
	divider  int
}

type APU struct {
	pulse1, pulse2 pulse
	tri            triangle
	noiseCh        noise
	dmcCh          dmc
	fc             frameCounter

	mc       mclock.Tick
	mcPerCPUCycle mclock.Divider // APU's internal clock runs at half the CPU rate
	cycleRemainder mclock.Tick
	cpuCycle int

	RaiseIRQ func()
}

func New(mcPerCPUCycle mclock.Divider) *APU {
	a := &APU{mcPerCPUCycle: mcPerCPUCycle}
	a.noiseCh.shift = 1
	return a
}

// SetDMCMemory wires the DMC channel's sample-fetch and CPU-cycle-steal
// callbacks to the host CPU bus; the System Core calls this once at
// construction since dmc's fields are unexported.
func (a *APU) SetDMCMemory(read func(addr uint16) byte, requestDMA func(cpuCycles int)) {
	a.dmcCh.ReadMemory = read
	a.dmcCh.RequestDMA = requestDMA
}

// WriteRegister handles $4000-$4013/$4015/$4017.
func (a *APU) WriteRegister(addr uint16, v byte) {
	switch addr {
	case 0x4000, 0x4004:
		p := a.pulseFor(addr)
		p.duty = (v >> 6) & 0x3
		p.envelope.loop = v&0x20 != 0
		p.envelope.constantVolume = v&0x10 != 0
		p.envelope.volume = v & 0xF
	case 0x4001, 0x4005:
		p := a.pulseFor(addr)
		p.sweep.enabled = v&0x80 != 0
		p.sweep.period = (v >> 4) & 0x7
		p.sweep.negate = v&0x08 != 0
		p.sweep.shift = v & 0x7
		p.sweep.reload = true
	case 0x4002, 0x4006:
		p := a.pulseFor(addr)
		p.timerPeriod = (p.timerPeriod &^ 0xFF) | uint16(v)
	case 0x4003, 0x4007:
		p := a.pulseFor(addr)
		p.timerPeriod = (p.timerPeriod &^ 0x700) | uint16(v&0x7)<<8
		p.lengthCounter = lengthTable[v>>3]
		p.sequencePos = 0
		p.envelope.startFlag = true
	case 0x4008:
		a.tri.controlFlag = v&0x80 != 0
		a.tri.linearReload = v & 0x7F
	case 0x400A:
		a.tri.timerPeriod = (a.tri.timerPeriod &^ 0xFF) | uint16(v)
	case 0x400B:
		a.tri.timerPeriod = (a.tri.timerPeriod &^ 0x700) | uint16(v&0x7)<<8
		a.tri.lengthCounter = lengthTable[v>>3]
		a.tri.linearReloadFlag = true
	case 0x400C:
		a.noiseCh.envelope.loop = v&0x20 != 0
		a.noiseCh.envelope.constantVolume = v&0x10 != 0
		a.noiseCh.envelope.volume = v & 0xF
	case 0x400E:
		a.noiseCh.mode = v&0x80 != 0
		a.noiseCh.timerPeriod = noisePeriodTable[v&0xF]
	case 0x400F:
		a.noiseCh.lengthCounter = lengthTable[v>>3]
		a.noiseCh.envelope.startFlag = true
	case 0x4010:
		a.dmcCh.irqEnable = v&0x80 != 0
		a.dmcCh.loop = v&0x40 != 0
		a.dmcCh.rate = dmcRateTable[v&0xF]
	case 0x4011:
		a.dmcCh.output = v & 0x7F
	case 0x4012:
		a.dmcCh.sampleAddr = 0xC000 | uint16(v)<<6
	case 0x4013:
		a.dmcCh.sampleLen = uint16(v)<<4 + 1
	case 0x4015:
		a.pulse1.enabled = v&0x01 != 0
		a.pulse2.enabled = v&0x02 != 0
		a.tri.enabled = v&0x04 != 0
		a.noiseCh.enabled = v&0x08 != 0
		if v&0x10 != 0 && a.dmcCh.bytesRemaining == 0 {
			a.dmcCh.addr = a.dmcCh.sampleAddr
			a.dmcCh.bytesRemaining = a.dmcCh.sampleLen
		} else if v&0x10 == 0 {
			a.dmcCh.bytesRemaining = 0
		}
		a.dmcCh.irqFlag = false
		if !a.pulse1.enabled {
			a.pulse1.lengthCounter = 0
		}
		if !a.pulse2.enabled {
			a.pulse2.lengthCounter = 0
		}
		if !a.tri.enabled {
			a.tri.lengthCounter = 0
		}
		if !a.noiseCh.enabled {
			a.noiseCh.lengthCounter = 0
		}
	case 0x4017:
		a.fc.mode = v >> 7
		a.fc.irqInhibit = v&0x40 != 0
		if a.fc.irqInhibit {
			a.fc.irqFlag = false
		}
		a.fc.step = 0
		a.fc.divider = 0
	}
}

func (a *APU) pulseFor(addr uint16) *pulse {
	if addr < 0x4004 {
		return &a.pulse1
	}
	return &a.pulse2
}

// ReadStatus handles a read of $4015.
func (a *APU) ReadStatus() byte {
	var v byte
	if a.pulse1.lengthCounter > 0 {
		v |= 0x01
	}
	if a.pulse2.lengthCounter > 0 {
		v |= 0x02
	}
	if a.tri.lengthCounter > 0 {
		v |= 0x04
	}
	if a.noiseCh.lengthCounter > 0 {
		v |= 0x08
	}
	if a.dmcCh.bytesRemaining > 0 {
		v |= 0x10
	}
	if a.fc.irqFlag {
		v |= 0x40
	}
	if a.dmcCh.irqFlag {
		v |= 0x80
	}
	a.fc.irqFlag = false
	return v
}

func (a *APU) StepTo(to mclock.Tick) {
	steps, rem := a.mcPerCPUCycle.Steps(to-a.mc, a.cycleRemainder)
	a.mc = to
	a.cycleRemainder = rem
	for i := uint64(0); i < steps; i++ {
		a.stepCPUCycle()
	}
}

func (a *APU) stepCPUCycle() {
	a.cpuCycle++
	a.stepFrameCounter()
	a.stepTriangleTimer()
	a.stepDMCTimer()
	if a.cpuCycle%2 == 0 {
		a.stepPulseTimer(&a.pulse1)
		a.stepPulseTimer(&a.pulse2)
		a.stepNoiseTimer()
	}
}

func (a *APU) stepFrameCounter() {
	a.fc.divider++
	const quarterFrame = 7457
	if a.fc.divider < quarterFrame {
		return
	}
	a.fc.divider = 0
	a.fc.step++

	a.clockEnvelopes()
	a.clockLinearCounter()

	halfStep := a.fc.mode == 0 && (a.fc.step == 2 || a.fc.step == 4) ||
		a.fc.mode == 1 && (a.fc.step == 2 || a.fc.step == 5)
	if halfStep {
		a.clockLengthCounters()
		a.clockSweeps()
	}

	if a.fc.mode == 0 && a.fc.step == 4 {
		a.fc.step = 0
		if !a.fc.irqInhibit {
			a.fc.irqFlag = true
			if a.RaiseIRQ != nil {
				a.RaiseIRQ()
			}
		}
	} else if a.fc.mode == 1 && a.fc.step == 5 {
		a.fc.step = 0
	}
}

func (a *APU) clockEnvelopes() {
	a.pulse1.envelope.clock()
	a.pulse2.envelope.clock()
	a.noiseCh.envelope.clock()
}

func (a *APU) clockLinearCounter() {
	if a.tri.linearReloadFlag {
		a.tri.linearCounter = a.tri.linearReload
	} else if a.tri.linearCounter > 0 {
		a.tri.linearCounter--
	}
	if !a.tri.controlFlag {
		a.tri.linearReloadFlag = false
	}
}

func (a *APU) clockLengthCounters() {
	for _, lc := range []*byte{&a.pulse1.lengthCounter, &a.pulse2.lengthCounter, &a.tri.lengthCounter, &a.noiseCh.lengthCounter} {
		if *lc > 0 {
			*lc--
		}
	}
}

func (a *APU) clockSweeps() {
	a.clockSweep(&a.pulse1, true)
	a.clockSweep(&a.pulse2, false)
}

func (a *APU) clockSweep(p *pulse, onesComplement bool) {
	if p.sweep.divider == 0 && p.sweep.enabled {
		change := p.timerPeriod >> p.sweep.shift
		if p.sweep.negate {
			if onesComplement {
				p.timerPeriod -= change + 1
			} else {
				p.timerPeriod -= change
			}
		} else {
			p.timerPeriod += change
		}
	}
	if p.sweep.divider == 0 || p.sweep.reload {
		p.sweep.divider = p.sweep.period
		p.sweep.reload = false
	} else {
		p.sweep.divider--
	}
}

func (a *APU) stepPulseTimer(p *pulse) {
	if p.timer == 0 {
		p.timer = p.timerPeriod
		p.sequencePos = (p.sequencePos + 1) % 8
	} else {
		p.timer--
	}
}

func (a *APU) stepTriangleTimer() {
	if a.tri.timer == 0 {
		a.tri.timer = a.tri.timerPeriod
		if a.tri.lengthCounter > 0 && a.tri.linearCounter > 0 {
			a.tri.sequencePos = (a.tri.sequencePos + 1) % 32
		}
	} else {
		a.tri.timer--
	}
}

func (a *APU) stepNoiseTimer() {
	if a.noiseCh.timer == 0 {
		a.noiseCh.timer = a.noiseCh.timerPeriod
		var feedback uint16
		if a.noiseCh.mode {
			feedback = (a.noiseCh.shift & 1) ^ ((a.noiseCh.shift >> 6) & 1)
		} else {
			feedback = (a.noiseCh.shift & 1) ^ ((a.noiseCh.shift >> 1) & 1)
		}
		a.noiseCh.shift = (a.noiseCh.shift >> 1) | (feedback << 14)
	} else {
		a.noiseCh.timer--
	}
}

func (a *APU) stepDMCTimer() {
	d := &a.dmcCh
	if d.bufferEmpty && d.bytesRemaining > 0 && d.ReadMemory != nil {
		d.buffer = d.ReadMemory(d.addr)
		d.bufferEmpty = false
		d.addr++
		d.bytesRemaining--
		if d.RequestDMA != nil {
			d.RequestDMA(4)
		}
		if d.bytesRemaining == 0 {
			if d.loop {
				d.addr = d.sampleAddr
				d.bytesRemaining = d.sampleLen
			} else if d.irqEnable {
				d.irqFlag = true
				if a.RaiseIRQ != nil {
					a.RaiseIRQ()
				}
			}
		}
	}

	if d.timer == 0 {
		d.timer = d.rate
		if !d.silence {
			if d.shiftReg&1 != 0 {
				if d.output <= 125 {
					d.output += 2
				}
			} else if d.output >= 2 {
				d.output -= 2
			}
		}
		d.shiftReg >>= 1
		if d.bitsRemaining > 0 {
			d.bitsRemaining--
		}
		if d.bitsRemaining == 0 {
			d.bitsRemaining = 8
			if !d.bufferEmpty {
				d.shiftReg = d.buffer
				d.bufferEmpty = true
				d.silence = false
			} else {
				d.silence = true
			}
		}
	} else {
		d.timer--
	}
}

// Sample implements audio.Unit: sums the four-channel "instant DAC" mix
// the way real hardware's non-linear mixer approximates (a simplified
// linear mix is used here; the exact resistor-ladder curve is
// circuit-level detail out of scope for this decoder).
func (a *APU) Sample() []float32 {
	p1 := pulseOutput(&a.pulse1, dutyTable[a.pulse1.duty])
	p2 := pulseOutput(&a.pulse2, dutyTable[a.pulse2.duty])
	tri := float32(0)
	if a.tri.enabled && a.tri.lengthCounter > 0 {
		tri = float32(triangleSequence[a.tri.sequencePos]) / 15.0
	}
	noiseOut := float32(0)
	if a.noiseCh.enabled && a.noiseCh.lengthCounter > 0 && a.noiseCh.shift&1 == 0 {
		noiseOut = float32(a.noiseCh.envelope.output()) / 15.0
	}
	dmcOut := float32(a.dmcCh.output) / 127.0

	mix := (p1+p2)*0.25 + tri*0.25 + noiseOut*0.2 + dmcOut*0.3
	return []float32{mix}
}

func pulseOutput(p *pulse, duty [8]byte) float32 {
	if !p.enabled || p.lengthCounter == 0 || p.timerPeriod < 8 {
		return 0
	}
	if duty[p.sequencePos] == 0 {
		return 0
	}
	return float32(p.envelope.output()) / 15.0
}
