// Package genesis implements the Sega Genesis / Mega Drive VDP: the most
// intricate video unit in this module.
//
// Builds on a dot/line counter shape and dirty-region tracking, reworked
// into the hardware's actual register file, FIFO, DMA engine, and
// plane/sprite/window renderer, modeling the bus contention and latching
// a plain linear framebuffer device would not need.
package genesis

import (
	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
)

// Horizontal modes.
const (
	H32Dots = 256
	H40Dots = 320
)

// Interrupt lines raised to the host 68000 via a callback, matching
// the "raises interrupts to its host CPU via a callback".
const (
	IRQNone = 0
	IRQHInt = 4
	IRQVInt = 6
)

// FIFO depth: the "FIFO of four pending VRAM/CRAM/VSRAM writes".
const fifoDepth = 4

type fifoEntry struct {
	kind byte // 'V'=VRAM, 'C'=CRAM, 'S'=VSRAM
	addr uint16
	data uint16
	dot  int // dot position within the line the write was issued, for CRAM-dot
	line int
}

// DMA modes.
const (
	dmaNone = iota
	dmaFill
	dmaCopy
	dmaTransfer // 68K-to-VRAM
)

// VDP is the Genesis video display processor.
type VDP struct {
	VRAM [0x10000]byte
	CRAM [64]uint16  // 64 BGR 9-bit colors (4 palette lines of 16)
	VSRAM [40]uint16

	Regs [24]uint8

	code uint8
	addr uint16
	ctrlPending bool
	ctrlFirst   uint16

	h40      bool
	pal      bool
	interlaceDouble bool
	deinterlace     bool // host option: render double-screen at 2x vertical res

	dot, line int
	oddFrame  bool

	fifo       [fifoDepth]fifoEntry
	fifoLen    int
	cpuStalled bool

	dmaMode    int
	dmaLen     uint16
	dmaSrcAddr uint32
	dmaFillVal uint16
	dmaBusy    bool

	hCounter    uint8 // line-interrupt down-counter, reloaded from Regs[10]
	hintPending bool
	vintPending bool
	hintReenableDelay int
	vintReenableDelay int

	backdrop video.RGB24 // sampled at render time, not frame-start

	frame video.Frame

	// callbacks into the System Core
	RaiseIRQ    func(level int)
	OnFrame     func(f video.Frame)
	Read68K     func(addr uint32) uint16 // for 68K-to-VRAM DMA source reads
	StallCPU    func(mcTicks mclock.Tick)

	mcPerDot mclock.Divider
	dotRemainder mclock.Tick
	mc mclock.Tick
}

// New creates a Genesis VDP. mcPerDot is the MC ticks per pixel dot (the
// System Core derives this from NTSC/PAL selection).
func New(mcPerDot mclock.Divider) *VDP {
	v := &VDP{mcPerDot: mcPerDot}
	v.allocFrame()
	return v
}

// Frame returns the most recently completed frame buffer.
func (v *VDP) Frame() video.Frame { return v.frame }

func (v *VDP) width() int {
	if v.h40 {
		return H40Dots
	}
	return H32Dots
}

func (v *VDP) linesPerFrame() int {
	if v.pal {
		return 312
	}
	return 262
}

func (v *VDP) allocFrame() {
	h := 224
	if v.interlaceDouble && v.deinterlace {
		h = 448
	}
	v.frame = video.NewFrame(v.width(), h, 8.0/7.0)
}

// StepTo implements clockdrv.Device. It advances the VDP's dot/line
// counters up to MC tick `to`, firing interrupts and frame completion via
// the registered callbacks as boundaries are crossed.
func (v *VDP) StepTo(to mclock.Tick) {
	steps, rem := v.mcPerDot.Steps(to-v.mc, v.dotRemainder)
	v.mc = to
	v.dotRemainder = rem
	for i := uint64(0); i < steps; i++ {
		v.stepDot()
	}
}

// NextDeadline implements clockdrv.Device: the MC tick of the end of the
// current dot, since register writes need dot-accurate CRAM-dot behavior.
func (v *VDP) NextDeadline() mclock.Tick {
	return v.mc + mclock.Tick(v.mcPerDot)
}

func (v *VDP) stepDot() {
	v.dot++
	width := v.width() + 22 // approximate blanking dots per line
	if v.dot >= width {
		v.dot = 0
		v.endOfLine()
	}
	v.drainFIFO()
}

func (v *VDP) endOfLine() {
	activeHeight := 224
	if v.pal {
		activeHeight = 240
	}

	if v.line < activeHeight {
		v.renderLine(v.line)
	}

	if v.hCounter == 0 {
		v.fireHInt()
		v.hCounter = v.Regs[10]
	} else {
		v.hCounter--
	}

	v.line++
	if v.line == activeHeight {
		v.fireVInt()
	}
	if v.line >= v.linesPerFrame() {
		v.line = 0
		v.oddFrame = !v.oddFrame
		v.emitFrame()
	}
}

func (v *VDP) fireHInt() {
	if v.Regs[0]&0x10 == 0 {
		return
	}
	v.hintPending = true
	if v.RaiseIRQ != nil {
		v.RaiseIRQ(IRQHInt)
	}
}

func (v *VDP) fireVInt() {
	if v.Regs[1]&0x20 == 0 {
		return
	}
	v.vintPending = true
	if v.RaiseIRQ != nil {
		v.RaiseIRQ(IRQVInt)
	}
}

func (v *VDP) emitFrame() {
	if v.OnFrame != nil {
		v.OnFrame(v.frame)
	}
}

// StatusODD reports the ODD bit of the status register: it must toggle
// every frame even when deinterlacing is enabled in software.
func (v *VDP) StatusODD() bool { return v.oddFrame }

// Status register bits, read through the control port.
const (
	statusFIFOEmpty = 1 << 9
	statusFIFOFull  = 1 << 8
	statusVInt      = 1 << 7
	statusSpriteOverflow = 1 << 6
	statusSpriteCollision = 1 << 5
	statusODD       = 1 << 4
	statusVBlank    = 1 << 3
	statusHBlank    = 1 << 2
	statusDMA       = 1 << 1
	statusPAL       = 1 << 0
)

// ReadStatus reads the control port, per the common contract;
// reading the status port also aborts any in-progress two-word command
// latch, matching real VDP behavior. The VINT-pending bit stays set until
// AckVInt clears it.
func (v *VDP) ReadStatus() uint16 {
	v.ctrlPending = false
	var s uint16
	if v.fifoLen == 0 {
		s |= statusFIFOEmpty
	}
	if v.fifoLen >= fifoDepth {
		s |= statusFIFOFull
	}
	if v.vintPending {
		s |= statusVInt
	}
	if v.oddFrame {
		s |= statusODD
	}
	activeHeight := 224
	if v.pal {
		activeHeight = 240
	}
	if v.line >= activeHeight {
		s |= statusVBlank
	}
	if v.dot >= v.width() {
		s |= statusHBlank
	}
	if v.dmaBusy {
		s |= statusDMA
	}
	if v.pal {
		s |= statusPAL
	}
	return s
}

// ReadData reads the VDP data port: a VRAM/CRAM/VSRAM readback at the
// current address/code, advancing addr by the configured increment the
// same way WriteData does.
func (v *VDP) ReadData() uint16 {
	var value uint16
	switch v.code & 0x0F {
	case 0x00:
		value = v.vramWord(v.addr)
	case 0x03:
		value = v.CRAM[v.addr>>1&0x3F]
	case 0x05:
		value = v.VSRAM[v.addr>>1&0x3F]
	}
	v.addr += uint16(v.Regs[15])
	return value
}

// AckVInt clears the latched VINT-pending flag the 68000 host observes via
// ReadStatus; the host calls this from its interrupt acknowledge cycle.
func (v *VDP) AckVInt() { v.vintPending = false }

// AckHInt clears the latched HINT-pending flag.
func (v *VDP) AckHInt() { v.hintPending = false }
