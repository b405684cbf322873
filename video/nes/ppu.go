// Package nes implements the NES/Famicom PPU: 256x240 output (a 224-line
// crop is not produced), three PPU dots per CPU cycle (the System Core steps
// it at 4 MC ticks per dot; PAL timing is not modeled), sprite-0 hit,
// OAMADDR reset at each visible line, and open-bus latching.
//
// Follows video/genesis's dot/line StepTo shape and a memory-mapped
// register read layout for its own PPU-register decode, generalized
// into this module's common latch/shadow convention (video/frame.go's
// Latch[T]) instead of direct field mutation.
package nes

import (
	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
)

const (
	screenWidth  = 256
	visibleLines = 240
	totalLines   = 262
)

// PPU is the NES picture processing unit.
type PPU struct {
	VRAM    [0x800]byte // nametable RAM (mirrored per cartridge mirroring mode)
	Palette [32]byte
	OAM     [256]byte

	ctrl   byte // $2000
	mask   byte // $2001
	status byte // $2002
	oamAddr byte

	scrollLatch bool
	fineX       byte
	vramAddr    video.Latch[uint16]
	tmpAddr     uint16

	openBus byte

	dot, line int
	oddFrame  bool

	spriteZeroHitLine bool

	frame video.Frame

	// CHRRead/CHRWrite route pattern-table access through the cartridge
	// mapper, since CHR may be ROM or RAM depending on the mapper.
	CHRRead  func(addr uint16) byte
	CHRWrite func(addr uint16, v byte)
	// NametableMirror maps a raw $2000-$2FFF nametable address to a
	// physical VRAM offset per the cartridge's mirroring mode.
	NametableMirror func(addr uint16) uint16

	NMI func()

	OnFrame func(f video.Frame)
	// OnScanline fires once at the start of each visible scanline
	// (dot 0), approximating the cartridge mapper IRQ counters (MMC3)
	// that real hardware clocks from individual PPU A12 address-line
	// transitions rather than a scanline boundary.
	OnScanline func(line int)

	mc       mclock.Tick
	mcPerDot mclock.Divider // MC ticks per PPU dot (4 in the NES System Core)
	dotRemainder mclock.Tick
}

func New(mcPerDot mclock.Divider) *PPU {
	p := &PPU{mcPerDot: mcPerDot}
	p.frame = video.NewFrame(screenWidth, visibleLines, 8.0/7.0)
	return p
}

// Frame returns the most recently completed frame buffer.
func (p *PPU) Frame() video.Frame { return p.frame }

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
	if p.line < visibleLines && p.dot == 0 {
		// OAMADDR resets to 0 at the start of each visible render line's
		// sprite-evaluation phase.
		p.oamAddr = 0
		if p.OnScanline != nil {
			p.OnScanline(p.line)
		}
	}

	if p.line < visibleLines && p.dot == 1 {
		p.renderLine(p.line)
	}

	if p.line == 241 && p.dot == 1 {
		p.status |= 0x80 // VBlank flag
		if p.ctrl&0x80 != 0 && p.NMI != nil {
			p.NMI()
		}
	}
	if p.line == 261 && p.dot == 1 {
		p.status &^= 0xE0 // clear VBlank, sprite-0-hit, sprite-overflow
	}

	p.dot++
	if p.dot >= 341 {
		p.dot = 0
		p.line++
		if p.line >= totalLines {
			p.line = 0
			p.oddFrame = !p.oddFrame
			if p.OnFrame != nil {
				p.OnFrame(p.frame)
			}
		}
	}
}

// ReadRegister handles a CPU read of $2000-$2007 (mirrored through $3FFF).
func (p *PPU) ReadRegister(addr uint16) byte {
	switch addr & 7 {
	case 2:
		v := p.status | (p.openBus & 0x1F)
		p.status &^= 0x80
		p.scrollLatch = false
		return v
	case 4:
		return p.OAM[p.oamAddr]
	case 7:
		v := p.readVRAM(p.vramAddr.Applied)
		p.vramAddr.Write(p.vramAddr.Applied + p.addrIncrement())
		p.vramAddr.Commit()
		p.openBus = v
		return v
	default:
		return p.openBus
	}
}

// WriteRegister handles a CPU write to $2000-$2007.
func (p *PPU) WriteRegister(addr uint16, v byte) {
	p.openBus = v
	switch addr & 7 {
	case 0:
		p.ctrl = v
	case 1:
		p.mask = v
	case 3:
		p.oamAddr = v
	case 4:
		p.OAM[p.oamAddr] = v
		p.oamAddr++
	case 5:
		if !p.scrollLatch {
			p.fineX = v & 0x07
		}
		p.scrollLatch = !p.scrollLatch
	case 6:
		if !p.scrollLatch {
			p.tmpAddr = uint16(v&0x3F) << 8
		} else {
			p.tmpAddr |= uint16(v)
			p.vramAddr.Write(p.tmpAddr)
			p.vramAddr.Commit()
		}
		p.scrollLatch = !p.scrollLatch
	case 7:
		p.writeVRAM(p.vramAddr.Applied, v)
		p.vramAddr.Write(p.vramAddr.Applied + p.addrIncrement())
		p.vramAddr.Commit()
	}
}

func (p *PPU) addrIncrement() uint16 {
	if p.ctrl&0x04 != 0 {
		return 32
	}
	return 1
}

func (p *PPU) readVRAM(addr uint16) byte {
	addr &= 0x3FFF
	switch {
	case addr < 0x2000:
		if p.CHRRead != nil {
			return p.CHRRead(addr)
		}
	case addr < 0x3F00:
		return p.VRAM[p.mirror(addr)]
	default:
		return p.Palette[addr&0x1F]
	}
	return p.openBus
}

func (p *PPU) writeVRAM(addr uint16, v byte) {
	addr &= 0x3FFF
	switch {
	case addr < 0x2000:
		if p.CHRWrite != nil {
			p.CHRWrite(addr, v)
		}
	case addr < 0x3F00:
		p.VRAM[p.mirror(addr)] = v
	default:
		p.Palette[addr&0x1F] = v
	}
}

func (p *PPU) mirror(addr uint16) uint16 {
	if p.NametableMirror != nil {
		return p.NametableMirror(addr) & 0x7FF
	}
	return addr & 0x7FF
}

// DMCDMASteal models the DMC DMA's CPU-cycle-stealing contract: the caller
// (the CPU host's bus glue) asks how many CPU cycles to stall before
// fetching the next DMC sample, per the APU/CPU coupling note.
func DMCDMASteal(alreadyHalted bool) int {
	if alreadyHalted {
		return 3
	}
	return 4
}
