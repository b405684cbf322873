// Package smsgg implements the Sega Master System / Game Gear "Mode 4"
// VDP: a TMS9918-family video chip extended with a 4bpp tile format, a
// larger sprite/palette file, and (on Game Gear) wider CRAM entries.
//
// Grounded on video/genesis's dot/line-stepped Device shape and two-byte
// control-port latch, reworked onto Mode 4's much flatter register file:
// no FIFO, no DMA engine, a single flat 32x28 name table instead of dual
// scrollable planes plus a window, and an 8-bit control/data port pair
// instead of the Genesis's 16-bit ports.
package smsgg

import (
	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
)

// Version selects the chip variant: Master System (32-entry, 6-bit BGR
// CRAM) or Game Gear (64-byte CRAM holding 32 12-bit BGR entries, cropped
// viewport).
type Version int

const (
	VersionSMS2NTSC Version = iota
	VersionSMS2PAL
	VersionGameGear
)

func (v Version) cramAddressMask() uint16 {
	if v == VersionGameGear {
		return 0x3F
	}
	return 0x1F
}

func (v Version) isGameGear() bool { return v == VersionGameGear }

func (v Version) LinesPerFrame() int {
	if v == VersionSMS2PAL {
		return 313
	}
	return 262
}

// Mode 4 display geometry. Only the common 192-active-line timing is
// modeled; the extended 224-line Mode 4 variant (selected by an unusual
// combination of the mode-select bits, used by very few SMS titles) is not
// implemented.
const (
	screenWidth  = 256
	activeLines  = 192
	dotsPerLine  = 342
	vramLen      = 0x4000
	cramLen      = 64 // byte-addressed; SMS uses the first 32, GG all 64
)

// Game Gear crops the 256x192 Mode 4 canvas down to its 160x144 LCD,
// centered per the console's documented viewport offset.
const (
	ggVisibleWidth  = 160
	ggVisibleHeight = 144
	ggOffsetX       = 48
	ggOffsetY       = 24
)

type bgCell struct {
	colorIndex  uint8
	paletteBase uint8
	priority    bool
}

// VDP is the Mode 4 video display processor shared by the Master System
// and Game Gear.
type VDP struct {
	VRAM [vramLen]byte
	CRAM [cramLen]byte
	Regs [11]uint8 // raw register mirror for introspection; writeRegister decodes into the fields below

	version Version

	addr          uint16
	ctrlFirst     byte
	ctrlFirstNext bool
	writeToCRAM   bool
	readBuffer    byte

	displayEnabled                       bool
	frameIntEnabled, frameIntPending      bool
	lineIntEnabled, lineIntPending        bool
	spriteOverflow, spriteCollision       bool
	verticalScrollLock, horizontalScrollLock bool
	hideLeftColumn, shiftSpritesLeft     bool
	doubleSpriteHeight, doubleSpriteSize bool

	nameTableBase     uint16
	spriteTableBase   uint16
	spritePatternBase uint16
	backdropColor     uint8
	xScroll, yScroll  uint8
	lineCounterReload uint8
	lineCounter       uint8

	bgLine [screenWidth]bgCell

	dot, line    int
	mc           mclock.Tick
	mcPerDot     mclock.Divider
	dotRemainder mclock.Tick

	frame video.Frame

	// RaiseIRQ mirrors the chip's single level-triggered interrupt output:
	// called with the line's new asserted state whenever it changes, so
	// the host Z80 can track it as a level rather than an edge.
	RaiseIRQ func(asserted bool)
	OnFrame  func(f video.Frame)
}

// New creates a Mode 4 VDP for the given console variant, stepped at
// mcPerDot MC ticks per pixel dot.
func New(version Version, mcPerDot mclock.Divider) *VDP {
	vd := &VDP{version: version, mcPerDot: mcPerDot, ctrlFirstNext: true}
	vd.allocFrame()
	return vd
}

func (vd *VDP) allocFrame() {
	if vd.version.isGameGear() {
		vd.frame = video.NewFrame(ggVisibleWidth, ggVisibleHeight, 1.0)
		return
	}
	vd.frame = video.NewFrame(screenWidth, activeLines, 8.0/7.0)
}

// Frame returns the most recently completed frame.
func (vd *VDP) Frame() video.Frame { return vd.frame }

// StepTo implements clockdrv.Device.
func (vd *VDP) StepTo(to mclock.Tick) {
	steps, rem := vd.mcPerDot.Steps(to-vd.mc, vd.dotRemainder)
	vd.mc = to
	vd.dotRemainder = rem
	for i := uint64(0); i < steps; i++ {
		vd.stepDot()
	}
}

// NextDeadline implements clockdrv.Device.
func (vd *VDP) NextDeadline() mclock.Tick { return vd.mc + mclock.Tick(vd.mcPerDot) }

func (vd *VDP) stepDot() {
	vd.dot++
	if vd.dot >= dotsPerLine {
		vd.dot = 0
		vd.endOfLine()
	}
}

func (vd *VDP) endOfLine() {
	if vd.line < activeLines {
		vd.renderLine(vd.line)
	}

	// The line counter decrements across the active display plus one
	// extra line, reloading from register 10 everywhere else, matching
	// the common down-counter behavior used by Mode 4 line interrupts.
	if vd.line <= activeLines {
		if vd.lineCounter == 0 {
			vd.lineCounter = vd.lineCounterReload
			vd.lineIntPending = true
			vd.updateIRQLine()
		} else {
			vd.lineCounter--
		}
	} else {
		vd.lineCounter = vd.lineCounterReload
	}

	vd.line++
	if vd.line == activeLines {
		vd.frameIntPending = true
		vd.updateIRQLine()
	}
	if vd.line >= vd.version.LinesPerFrame() {
		vd.line = 0
		vd.emitFrame()
	}
}

func (vd *VDP) emitFrame() {
	if vd.OnFrame != nil {
		vd.OnFrame(vd.frame)
	}
}

func (vd *VDP) updateIRQLine() {
	active := (vd.frameIntPending && vd.frameIntEnabled) || (vd.lineIntPending && vd.lineIntEnabled)
	if vd.RaiseIRQ != nil {
		vd.RaiseIRQ(active)
	}
}
