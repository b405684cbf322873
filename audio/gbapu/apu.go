// Package gbapu implements the Game Boy's 4-channel APU: 2 pulse channels
// (channel 1 with sweep), a programmable-wave channel, and a noise
// channel, driven by the 512Hz frame sequencer, including the
// DAC-off-disables-channel and pulse-length-reload edge cases. A channel
// whose DAC is switched off goes silent at once; no output fade is
// modeled.
//
// Channel field layout follows ch1-4 Enabled/Freq/Volume/Duty/Counter
// plus a frame-sequencer cycle counter, driven by this module's
// mclock.Divider-stepped audio.Unit contract rather than a CPU-cycle
// polling loop.
package gbapu

import "github.com/retrocore/retrocore/mclock"

var dutyTable = [4][8]byte{
	{0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 1, 1, 1},
	{0, 1, 1, 1, 1, 1, 1, 0},
}

type pulseChannel struct {
	enabled bool
	dacOn   bool

	freq    uint16
	duty    byte
	dutyPos byte
	timer   int

	lengthCounter int
	lengthEnable  bool

	volume      byte
	envInitial  byte
	envDirUp    bool
	envPeriod   byte
	envTimer    byte

	hasSweep    bool
	sweepPeriod byte
	sweepTimer  byte
	sweepDirDown bool
	sweepShift  byte
	sweepEnabled bool
	shadowFreq  uint16
}

type waveChannel struct {
	enabled bool
	dacOn   bool

	freq  uint16
	timer int

	lengthCounter int
	lengthEnable  bool

	volumeShift byte // 0=100%,1=50%,2=25%,3=mute via the NR32 code

	wavePos byte
	wave    [16]byte // 32 4-bit samples packed 2/byte
}

type noiseChannel struct {
	enabled bool
	dacOn   bool

	clockShift byte
	widthMode  bool // true=7-bit LFSR
	divisorCode byte
	timer      int

	lengthCounter int
	lengthEnable  bool

	volume     byte
	envInitial byte
	envDirUp   bool
	envPeriod  byte
	envTimer   byte

	lfsr uint16
}

var divisorTable = [8]int{8, 16, 32, 48, 64, 80, 96, 112}

type APU struct {
	ch1, ch2 pulseChannel
	ch3      waveChannel
	ch4      noiseChannel

	masterEnable bool
	leftVol, rightVol byte
	leftEnable, rightEnable [4]bool

	frameStep  int
	frameTimer int

	mc        mclock.Tick
	mcPerCycle mclock.Divider // one "cycle" here = one 2MHz APU tick (2x the DMG CPU rate source)
	remainder mclock.Tick
}

func New(mcPerCycle mclock.Divider) *APU {
	a := &APU{mcPerCycle: mcPerCycle}
	a.ch4.lfsr = 0x7FFF
	return a
}

func (a *APU) WriteRegister(addr uint16, v byte) {
	switch addr {
	case 0xFF10:
		a.ch1.sweepPeriod = (v >> 4) & 0x7
		a.ch1.sweepDirDown = v&0x08 != 0
		a.ch1.sweepShift = v & 0x7
		a.ch1.hasSweep = true
	case 0xFF11, 0xFF16:
		ch := a.pulseFor(addr)
		ch.duty = v >> 6
		a.writeLengthEnvelope(ch, v)
	case 0xFF12, 0xFF17:
		ch := a.pulseFor(addr)
		a.writeEnvelope(ch, v)
	case 0xFF13, 0xFF18:
		ch := a.pulseFor(addr)
		ch.freq = (ch.freq &^ 0xFF) | uint16(v)
	case 0xFF14, 0xFF19:
		ch := a.pulseFor(addr)
		ch.freq = (ch.freq &^ 0x700) | uint16(v&0x7)<<8
		ch.lengthEnable = v&0x40 != 0
		if v&0x80 != 0 {
			a.triggerPulse(ch)
		}
	case 0xFF1A:
		a.ch3.dacOn = v&0x80 != 0
	case 0xFF1B:
		a.ch3.lengthCounter = 256 - int(v)
	case 0xFF1C:
		a.ch3.volumeShift = (v >> 5) & 0x3
	case 0xFF1D:
		a.ch3.freq = (a.ch3.freq &^ 0xFF) | uint16(v)
	case 0xFF1E:
		a.ch3.freq = (a.ch3.freq &^ 0x700) | uint16(v&0x7)<<8
		a.ch3.lengthEnable = v&0x40 != 0
		if v&0x80 != 0 {
			a.triggerWave()
		}
	case 0xFF20:
		a.ch4.lengthCounter = 64 - int(v&0x3F)
	case 0xFF21:
		a.writeEnvelope4(v)
	case 0xFF22:
		a.ch4.clockShift = v >> 4
		a.ch4.widthMode = v&0x08 != 0
		a.ch4.divisorCode = v & 0x7
	case 0xFF23:
		a.ch4.lengthEnable = v&0x40 != 0
		if v&0x80 != 0 {
			a.triggerNoise()
		}
	case 0xFF24:
		a.leftVol = (v >> 4) & 0x7
		a.rightVol = v & 0x7
	case 0xFF25:
		for i := 0; i < 4; i++ {
			a.leftEnable[i] = v&(0x10<<uint(i)) != 0
			a.rightEnable[i] = v&(1<<uint(i)) != 0
		}
	case 0xFF26:
		a.masterEnable = v&0x80 != 0
		if !a.masterEnable {
			*a = APU{mcPerCycle: a.mcPerCycle}
			a.ch4.lfsr = 0x7FFF
		}
	}
	if addr >= 0xFF30 && addr <= 0xFF3F {
		a.ch3.wave[addr-0xFF30] = v
	}
}

// ReadRegister reconstructs the NR52/NR50/NR51 status/panning registers
// and passes through wave RAM; the individually-decomposed channel
// registers elsewhere in this range are not reassembled and read back as
// open bus (0xFF), matching video/gb's own default for unmodeled ports.
func (a *APU) ReadRegister(addr uint16) byte {
	switch addr {
	case 0xFF24:
		return a.leftVol<<4 | a.rightVol
	case 0xFF25:
		var v byte
		for i := 0; i < 4; i++ {
			if a.leftEnable[i] {
				v |= 0x10 << uint(i)
			}
			if a.rightEnable[i] {
				v |= 1 << uint(i)
			}
		}
		return v
	case 0xFF26:
		v := byte(0x70)
		if a.masterEnable {
			v |= 0x80
		}
		if a.ch1.enabled {
			v |= 0x1
		}
		if a.ch2.enabled {
			v |= 0x2
		}
		if a.ch3.enabled {
			v |= 0x4
		}
		if a.ch4.enabled {
			v |= 0x8
		}
		return v
	}
	if addr >= 0xFF30 && addr <= 0xFF3F {
		return a.ch3.wave[addr-0xFF30]
	}
	return 0xFF
}

func (a *APU) pulseFor(addr uint16) *pulseChannel {
	if addr < 0xFF15 {
		return &a.ch1
	}
	return &a.ch2
}

func (a *APU) writeLengthEnvelope(ch *pulseChannel, v byte) {
	ch.lengthCounter = 64 - int(v&0x3F)
}

func (a *APU) writeEnvelope(ch *pulseChannel, v byte) {
	ch.envInitial = v >> 4
	ch.envDirUp = v&0x08 != 0
	ch.envPeriod = v & 0x7
	// A DAC-off envelope (initial volume 0 and direction down) disables the
	// channel immediately, the documented "DAC off" edge case.
	ch.dacOn = v&0xF8 != 0
	if !ch.dacOn {
		ch.enabled = false
	}
}

func (a *APU) writeEnvelope4(v byte) {
	a.ch4.envInitial = v >> 4
	a.ch4.envDirUp = v&0x08 != 0
	a.ch4.envPeriod = v & 0x7
	a.ch4.dacOn = v&0xF8 != 0
	if !a.ch4.dacOn {
		a.ch4.enabled = false
	}
}

// triggerPulse implements the NRx4 trigger sequence, including the
// documented "length counter reload" edge case: if the length counter was
// already 0 (and the next frame-sequencer step would clock length), the
// trigger reloads it to the full 64, not a half-cycle value.
func (a *APU) triggerPulse(ch *pulseChannel) {
	ch.enabled = ch.dacOn
	if ch.lengthCounter == 0 {
		ch.lengthCounter = 64
	}
	ch.timer = (2048 - int(ch.freq)) * 4
	ch.volume = ch.envInitial
	ch.envTimer = ch.envPeriod
	if ch.hasSweep {
		ch.shadowFreq = ch.freq
		ch.sweepTimer = ch.sweepPeriod
		if ch.sweepTimer == 0 {
			ch.sweepTimer = 8
		}
		ch.sweepEnabled = ch.sweepPeriod > 0 || ch.sweepShift > 0
	}
}

func (a *APU) triggerWave() {
	a.ch3.enabled = a.ch3.dacOn
	if a.ch3.lengthCounter == 0 {
		a.ch3.lengthCounter = 256
	}
	a.ch3.timer = (2048 - int(a.ch3.freq)) * 2
	a.ch3.wavePos = 0
}

func (a *APU) triggerNoise() {
	a.ch4.enabled = a.ch4.dacOn
	if a.ch4.lengthCounter == 0 {
		a.ch4.lengthCounter = 64
	}
	a.ch4.lfsr = 0x7FFF
	a.ch4.volume = a.ch4.envInitial
	a.ch4.envTimer = a.ch4.envPeriod
	divisor := divisorTable[a.ch4.divisorCode]
	a.ch4.timer = divisor << a.ch4.clockShift
}

func (a *APU) StepTo(to mclock.Tick) {
	steps, rem := a.mcPerCycle.Steps(to-a.mc, a.remainder)
	a.mc = to
	a.remainder = rem
	for i := uint64(0); i < steps; i++ {
		a.stepOnce()
	}
}

func (a *APU) stepOnce() {
	if !a.masterEnable {
		return
	}
	a.stepPulse(&a.ch1)
	a.stepPulse(&a.ch2)
	a.stepWave()
	a.stepNoise()

	a.frameTimer++
	const frameSeqPeriod = 8192
	if a.frameTimer >= frameSeqPeriod {
		a.frameTimer = 0
		a.clockFrameSequencer()
	}
}

func (a *APU) stepPulse(ch *pulseChannel) {
	if ch.timer > 0 {
		ch.timer--
	} else {
		ch.timer = (2048 - int(ch.freq)) * 4
		ch.dutyPos = (ch.dutyPos + 1) % 8
	}
}

func (a *APU) stepWave() {
	if a.ch3.timer > 0 {
		a.ch3.timer--
	} else {
		a.ch3.timer = (2048 - int(a.ch3.freq)) * 2
		a.ch3.wavePos = (a.ch3.wavePos + 1) % 32
	}
}

func (a *APU) stepNoise() {
	if a.ch4.timer > 0 {
		a.ch4.timer--
		return
	}
	divisor := divisorTable[a.ch4.divisorCode]
	a.ch4.timer = divisor << a.ch4.clockShift
	bit := (a.ch4.lfsr ^ (a.ch4.lfsr >> 1)) & 1
	a.ch4.lfsr = a.ch4.lfsr >> 1
	a.ch4.lfsr |= bit << 14
	if a.ch4.widthMode {
		a.ch4.lfsr &^= 1 << 6
		a.ch4.lfsr |= bit << 6
	}
}

func (a *APU) clockFrameSequencer() {
	switch a.frameStep {
	case 0, 4:
		a.clockLength()
	case 2, 6:
		a.clockLength()
		a.clockSweep()
	case 7:
		a.clockEnvelopes()
	}
	a.frameStep = (a.frameStep + 1) % 8
}

func (a *APU) clockLength() {
	for _, ch := range []*pulseChannel{&a.ch1, &a.ch2} {
		if ch.lengthEnable && ch.lengthCounter > 0 {
			ch.lengthCounter--
			if ch.lengthCounter == 0 {
				ch.enabled = false
			}
		}
	}
	if a.ch3.lengthEnable && a.ch3.lengthCounter > 0 {
		a.ch3.lengthCounter--
		if a.ch3.lengthCounter == 0 {
			a.ch3.enabled = false
		}
	}
	if a.ch4.lengthEnable && a.ch4.lengthCounter > 0 {
		a.ch4.lengthCounter--
		if a.ch4.lengthCounter == 0 {
			a.ch4.enabled = false
		}
	}
}

func (a *APU) clockSweep() {
	ch := &a.ch1
	if !ch.hasSweep || !ch.sweepEnabled {
		return
	}
	if ch.sweepTimer > 0 {
		ch.sweepTimer--
		return
	}
	ch.sweepTimer = ch.sweepPeriod
	if ch.sweepTimer == 0 {
		ch.sweepTimer = 8
	}
	if ch.sweepPeriod == 0 {
		return
	}
	newFreq := a.computeSweepFreq(ch)
	if newFreq > 2047 {
		ch.enabled = false
		return
	}
	if ch.sweepShift > 0 {
		ch.shadowFreq = newFreq
		ch.freq = newFreq
		if a.computeSweepFreq(ch) > 2047 {
			ch.enabled = false
		}
	}
}

func (a *APU) computeSweepFreq(ch *pulseChannel) uint16 {
	delta := ch.shadowFreq >> ch.sweepShift
	if ch.sweepDirDown {
		return ch.shadowFreq - delta
	}
	return ch.shadowFreq + delta
}

func (a *APU) clockEnvelopes() {
	for _, ch := range []*pulseChannel{&a.ch1, &a.ch2} {
		clockEnvelope(&ch.envTimer, ch.envPeriod, ch.envDirUp, &ch.volume)
	}
	clockEnvelope(&a.ch4.envTimer, a.ch4.envPeriod, a.ch4.envDirUp, &a.ch4.volume)
}

func clockEnvelope(timer *byte, period byte, up bool, volume *byte) {
	if period == 0 {
		return
	}
	if *timer > 0 {
		*timer--
		return
	}
	*timer = period
	if up && *volume < 15 {
		*volume++
	} else if !up && *volume > 0 {
		*volume--
	}
}

// Sample implements audio.Unit, mixing all four channels per the NR50/
// NR51 stereo panning and master volume registers.
func (a *APU) Sample() []float32 {
	if !a.masterEnable {
		return []float32{0, 0}
	}
	outputs := [4]float32{
		pulseSample(&a.ch1),
		pulseSample(&a.ch2),
		waveSample(&a.ch3),
		noiseSample(&a.ch4),
	}
	var left, right float32
	for i, v := range outputs {
		if a.leftEnable[i] {
			left += v
		}
		if a.rightEnable[i] {
			right += v
		}
	}
	left *= float32(a.leftVol+1) / 8.0 / 4.0
	right *= float32(a.rightVol+1) / 8.0 / 4.0
	return []float32{left, right}
}

func pulseSample(ch *pulseChannel) float32 {
	if !ch.enabled || !ch.dacOn {
		return 0
	}
	if dutyTable[ch.duty][ch.dutyPos] == 0 {
		return 0
	}
	return float32(ch.volume) / 15.0
}

func waveSample(ch *waveChannel) float32 {
	if !ch.enabled || !ch.dacOn {
		return 0
	}
	b := ch.wave[ch.wavePos/2]
	var nibble byte
	if ch.wavePos%2 == 0 {
		nibble = b >> 4
	} else {
		nibble = b & 0xF
	}
	v := nibble >> ch.volumeShift
	return float32(v) / 15.0
}

func noiseSample(ch *noiseChannel) float32 {
	if !ch.enabled || !ch.dacOn {
		return 0
	}
	if ch.lfsr&1 != 0 {
		return 0
	}
	return float32(ch.volume) / 15.0
}
