// Package gb implements the Game Boy / Game Boy Color PPU: 160x144 output,
// mode 2/3/0 per-scanline timing, the LY=LYC STAT interrupt, HDMA
// mid-instruction halt, and dual-speed awareness.
//
// Grounded on video/nes's dot-stepped Device shape; mode timing constants
// follow the documented Game Boy PPU mode-length tables.
package gb

import (
	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
)

const (
	screenWidth  = 160
	screenHeight = 144
	dotsPerLine  = 456
	totalLines   = 154
)

// PPU modes, matching the STAT register's low 2 bits.
const (
	ModeHBlank = 0
	ModeVBlank = 1
	ModeOAM    = 2
	ModeDraw   = 3
)

type PPU struct {
	VRAM [0x4000]byte // 2 banks of 0x2000 on CGB; bank 0 only on DMG
	OAM  [0xA0]byte
	VRAMBank int

	bgPalette  [4]byte      // DMG BGP
	objPalette [2][4]byte   // DMG OBP0/OBP1
	cgbBGPal   [8][4]uint16 // CGB BCPS/BCPD palettes, RGB555
	cgbObjPal  [8][4]uint16

	cgbMode bool

	bcps, ocps byte // BCPS/OCPS: bit 7 auto-increment, bits 0-5 byte index into the palette RAM

	lcdc byte
	stat byte
	scy, scx byte
	ly, lyc  byte
	wy, wx   byte

	mode int
	modeClock int

	statIRQLine bool // tracks STAT interrupt line for edge-triggering, per hardware quirk

	hdmaActive    bool
	hdmaRemaining int
	HDMAStep      func() // invoked once per H-blank while hdmaActive

	doubleSpeed bool

	frame video.Frame

	RaiseVBlank func()
	RaiseSTAT   func()
	OnFrame     func(f video.Frame)

	mc       mclock.Tick
	mcPerDot mclock.Divider
	dotRemainder mclock.Tick
}

func New(mcPerDot mclock.Divider) *PPU {
	p := &PPU{mcPerDot: mcPerDot, mode: ModeOAM, stat: ModeOAM}
	p.frame = video.NewFrame(screenWidth, screenHeight, 1.0)
	return p
}

// Frame returns the most recently completed frame buffer.
func (p *PPU) Frame() video.Frame { return p.frame }

// SetDoubleSpeed tracks the CGB double-speed mode the SM83 host exposes;
// the PPU's own dot rate is unaffected by double speed (only the CPU
// divider changes). The flag is recorded only: HDMA still moves one block
// per H-blank in either speed.
func (p *PPU) SetDoubleSpeed(v bool) { p.doubleSpeed = v }

func (p *PPU) StepTo(to mclock.Tick) {
	steps, rem := p.mcPerDot.Steps(to-p.mc, p.dotRemainder)
	p.mc = to
	p.dotRemainder = rem
	for i := uint64(0); i < steps; i++ {
		p.stepDot()
	}
}

func (p *PPU) NextDeadline() mclock.Tick { return p.mc + mclock.Tick(p.mcPerDot) }

func (p *PPU) stepDot() {
	if p.lcdc&0x80 == 0 {
		return // LCD off: no mode advancement
	}
	p.modeClock++

	switch p.mode {
	case ModeOAM:
		if p.modeClock >= 80 {
			p.modeClock = 0
			p.setMode(ModeDraw)
		}
	case ModeDraw:
		if p.modeClock >= 172 {
			p.modeClock = 0
			p.setMode(ModeHBlank)
			if int(p.ly) < screenHeight {
				p.renderLine(int(p.ly))
			}
		}
	case ModeHBlank:
		if p.modeClock >= 204 {
			p.modeClock = 0
			if p.hdmaActive && p.HDMAStep != nil {
				p.HDMAStep()
			}
			p.ly++
			p.checkLYC()
			if int(p.ly) == screenHeight {
				p.setMode(ModeVBlank)
				if p.RaiseVBlank != nil {
					p.RaiseVBlank()
				}
				if p.OnFrame != nil {
					p.OnFrame(p.frame)
				}
			} else {
				p.setMode(ModeOAM)
			}
		}
	case ModeVBlank:
		if p.modeClock >= dotsPerLine {
			p.modeClock = 0
			p.ly++
			p.checkLYC()
			if int(p.ly) >= totalLines {
				p.ly = 0
				p.checkLYC()
				p.setMode(ModeOAM)
			}
		}
	}
}

func (p *PPU) setMode(m int) {
	p.mode = m
	p.stat = (p.stat &^ 0x03) | byte(m)
	p.updateSTATLine()
}

func (p *PPU) checkLYC() {
	if p.ly == p.lyc {
		p.stat |= 0x04
	} else {
		p.stat &^= 0x04
	}
	p.updateSTATLine()
}

// updateSTATLine re-evaluates the OR of every enabled STAT condition and
// fires RaiseSTAT only on a 0->1 transition, matching the real hardware's
// edge-triggered STAT line (the cause of the "STAT IRQ fires 145x/frame"
// testable property when mode-2 select is the only enabled condition:
// mode-2 select also raises the line on V-blank entry at LY=144).
func (p *PPU) updateSTATLine() {
	line := false
	if p.stat&0x40 != 0 && p.stat&0x04 != 0 {
		line = true // LY=LYC
	}
	if p.stat&0x20 != 0 && (p.mode == ModeOAM || (p.mode == ModeVBlank && int(p.ly) == screenHeight)) {
		line = true
	}
	if p.stat&0x10 != 0 && p.mode == ModeVBlank {
		line = true
	}
	if p.stat&0x08 != 0 && p.mode == ModeHBlank {
		line = true
	}
	if line && !p.statIRQLine {
		if p.RaiseSTAT != nil {
			p.RaiseSTAT()
		}
	}
	p.statIRQLine = line
}

// BeginHDMA starts an HDMA transfer of `blocks` 16-byte chunks, one per
// H-blank, halting CPU execution for the duration of each chunk transfer
// (the System Core's HDMAStep callback stalls its CPU host per block).
func (p *PPU) BeginHDMA(blocks int) {
	p.hdmaActive = true
	p.hdmaRemaining = blocks
}

func (p *PPU) HDMABlocksRemaining() int { return p.hdmaRemaining }

func (p *PPU) EndHDMA() { p.hdmaActive = false }

// ReadRegister/WriteRegister handle LCDC/STAT/SCY/SCX/LY/LYC/BGP/OBP0/
// OBP1/WY/WX in $FF40-$FF4B, plus the CGB VRAM bank ($FF4F) and palette
// ($FF68-$FF6B) registers. $FF46 (OAM DMA) is not handled here, and
// BGP/OBP0/OBP1 read back as $FF.
func (p *PPU) WriteRegister(addr uint16, v byte) {
	switch addr {
	case 0xFF40:
		p.lcdc = v
	case 0xFF41:
		p.stat = (p.stat & 0x07) | (v &^ 0x07)
		p.updateSTATLine()
	case 0xFF42:
		p.scy = v
	case 0xFF43:
		p.scx = v
	case 0xFF45:
		p.lyc = v
		p.checkLYC()
	case 0xFF47:
		p.bgPalette = decodeDMGPalette(v)
	case 0xFF48:
		p.objPalette[0] = decodeDMGPalette(v)
	case 0xFF49:
		p.objPalette[1] = decodeDMGPalette(v)
	case 0xFF4A:
		p.wy = v
	case 0xFF4B:
		p.wx = v
	case 0xFF4F:
		p.VRAMBank = int(v & 0x01)
	case 0xFF68:
		p.bcps = v
	case 0xFF69:
		writeCGBPalette(&p.cgbBGPal, p.bcps&0x3F, v)
		if p.bcps&0x80 != 0 {
			p.bcps = (p.bcps & 0x80) | ((p.bcps + 1) & 0x3F)
		}
	case 0xFF6A:
		p.ocps = v
	case 0xFF6B:
		writeCGBPalette(&p.cgbObjPal, p.ocps&0x3F, v)
		if p.ocps&0x80 != 0 {
			p.ocps = (p.ocps & 0x80) | ((p.ocps + 1) & 0x3F)
		}
	}
}

// writeCGBPalette stores one byte (low or high half, by index parity) of
// a CGB BG/OBJ palette's 15-bit RGB555 color entries.
func writeCGBPalette(pal *[8][4]uint16, index byte, v byte) {
	palette, color, hi := index/8, (index%8)/2, index%2 == 1
	c := pal[palette][color]
	if hi {
		c = (c &^ 0xFF00) | uint16(v)<<8
	} else {
		c = (c &^ 0x00FF) | uint16(v)
	}
	pal[palette][color] = c
}

func readCGBPalette(pal *[8][4]uint16, index byte) byte {
	palette, color, hi := index/8, (index%8)/2, index%2 == 1
	c := pal[palette][color]
	if hi {
		return byte(c >> 8)
	}
	return byte(c)
}

func (p *PPU) ReadRegister(addr uint16) byte {
	switch addr {
	case 0xFF40:
		return p.lcdc
	case 0xFF41:
		return p.stat | 0x80
	case 0xFF42:
		return p.scy
	case 0xFF43:
		return p.scx
	case 0xFF44:
		return p.ly
	case 0xFF45:
		return p.lyc
	case 0xFF4A:
		return p.wy
	case 0xFF4B:
		return p.wx
	case 0xFF4F:
		return byte(p.VRAMBank) | 0xFE
	case 0xFF68:
		return p.bcps
	case 0xFF69:
		return readCGBPalette(&p.cgbBGPal, p.bcps&0x3F)
	case 0xFF6A:
		return p.ocps
	case 0xFF6B:
		return readCGBPalette(&p.cgbObjPal, p.ocps&0x3F)
	}
	return 0xFF
}

// SetCGBMode selects CGB rendering: CGB palettes and the sprite VRAM-bank
// attribute. The CGB palette/VRAM-bank registers accept writes in either
// mode; DMG rendering simply does not use them.
func (p *PPU) SetCGBMode(v bool) { p.cgbMode = v }

func decodeDMGPalette(v byte) [4]byte {
	return [4]byte{v & 0x3, (v >> 2) & 0x3, (v >> 4) & 0x3, (v >> 6) & 0x3}
}
