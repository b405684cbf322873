// Package snes implements the SNES PPU pair (PPU1/PPU2 modeled as one unit,
// since no software-visible seam between them matters at this module's
// fidelity target): 8 background modes including the Mode 7 affine
// transform, color math, and H/V-IRQ timing. Offset-per-tile (modes 2, 4
// and 6) and mosaic are not rendered; Background.Mosaic is not set by any
// register write.
//
// Grounded on video/genesis's plane+sprite compositing shape
// (video/genesis/render.go), generalized to 4 background layers, variable
// bits-per-pixel per mode, and the Mode 7 matrix transform the Genesis VDP
// has no equivalent of.
package snes

import (
	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
)

const (
	screenWidth = 256
	totalLines  = 262 // NTSC; 312 for PAL, selected via PPU.pal
)

// Background holds one of the four BG layers' scroll/tile-map state.
type Background struct {
	TilemapBase uint16
	CHRBase     uint16
	HScroll     int
	VScroll     int
	Mode7HFlip  bool
	Mode7VFlip  bool
	Mosaic      bool
}

// Mode7 holds the affine transform matrix registers (M7A-M7D) and the
// center point (M7X/M7Y), all signed 13-bit/16-bit fixed point per the
// hardware's documented format.
type Mode7 struct {
	A, B, C, D int32 // 1.7.8 fixed point (16-bit signed)
	X, Y       int32 // signed 13-bit center/origin, sign-extended to 16 bits
	HOffset, VOffset int32
}

// PPU is the SNES picture processing unit pair.
type PPU struct {
	VRAM    [0x10000]uint16
	CGRAM   [256]uint16 // BGR555
	OAM     [544]byte

	bgMode int // 0-7
	bg     [4]Background
	mode7  Mode7

	mainScreen, subScreen byte // per-layer enable bitmasks ($212C/$212D)

	colorMathEnable byte
	colorMathAdd    bool // add vs. subtract
	colorMathHalf   bool

	brightness byte // $2100 low nibble

	ports portState

	pal bool

	dot, line int
	mc        mclock.Tick
	mcPerDot  mclock.Divider
	dotRemainder mclock.Tick

	hIRQLine  int
	hIRQDot   int
	vIRQLine  int
	hIRQEnable, vIRQEnable bool
	RaiseIRQ func()

	frame video.Frame
	OnFrame func(f video.Frame)

	// OnVBlank fires once per frame at the start of the vertical-blank
	// period (line 224), separate from RaiseIRQ since real hardware's
	// VBlank NMI and the H/V-IRQ comparators are independent interrupt
	// sources feeding different CPU vectors.
	OnVBlank func()
}

func New(mcPerDot mclock.Divider) *PPU {
	p := &PPU{brightness: 0x0F}
	p.mcPerDot = mcPerDot
	p.frame = video.NewFrame(screenWidth, 224, 8.0/7.0)
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
	if p.hIRQEnable && p.dot == p.hIRQDot && (p.vIRQLine < 0 || p.line == p.vIRQLine) {
		if p.RaiseIRQ != nil {
			p.RaiseIRQ()
		}
	}
	if p.dot == 0 && p.line < 224 {
		p.renderLine(p.line)
	}
	if p.dot == 0 && p.line == 224 && p.OnVBlank != nil {
		p.OnVBlank()
	}
	if p.vIRQEnable && p.dot == 0 && p.line == p.vIRQLine {
		if p.RaiseIRQ != nil {
			p.RaiseIRQ()
		}
	}
	p.dot++
	if p.dot >= 341 {
		p.dot = 0
		p.line++
		lines := totalLines
		if p.pal {
			lines = 312
		}
		if p.line >= lines {
			p.line = 0
			if p.OnFrame != nil {
				p.OnFrame(p.frame)
			}
		}
	}
}

// SetMode selects the active background mode (0-7).
func (p *PPU) SetMode(mode int) { p.bgMode = mode }

// SetPAL selects NTSC (false) or PAL (true) line counts.
func (p *PPU) SetPAL(pal bool) { p.pal = pal }

// SetHIRQ configures the horizontal-IRQ dot/line comparator ($4207-$420A).
func (p *PPU) SetHIRQ(enable bool, dot, line int) {
	p.hIRQEnable = enable
	p.hIRQDot = dot
	p.vIRQLine = line
}

// SetVIRQ configures the vertical-only IRQ comparator.
func (p *PPU) SetVIRQ(enable bool, line int) {
	p.vIRQEnable = enable
	p.vIRQLine = line
}

// portState holds the PPU's internal address/increment latches for the
// $2115-$2119/$2121-$2122/$2102-$2104/$211B-$2120 port groups; these are
// ordinary hardware-register fields but kept grouped here since they are
// only ever touched through WriteRegister/ReadRegister.
type portState struct {
	vramAddr uint16
	// vramIncOnHigh reports whether the VRAM address autoincrements after
	// the high-byte half of a $2118/$2119 write or $2139/$213A read
	// ($2115 bit 7 clear) rather than after the low-byte half (bit 7 set).
	vramIncOnHigh bool
	vramStep      uint16

	cgramAddr byte
	cgramLow  bool

	oamAddr uint16
	oamLow  bool

	// mode7Lo/mode7Pending hold the first (low) byte of each M7A-D/M7X/M7Y
	// two-write register until its second (high) byte completes the value,
	// indexed A=0,B=1,C=2,D=3,X=4,Y=5.
	mode7Lo      [6]byte
	mode7Pending [6]bool
}

// WriteRegister handles a CPU write to one of the PPU's $2100-$213F ports.
// Unhandled addresses (the indirect HDMA/joypad-adjacent ports outside this
// range) are the System Core's concern, not the PPU's.
func (p *PPU) WriteRegister(addr uint16, v byte) {
	switch addr {
	case 0x2100: // INIDISP
		p.brightness = v & 0x0F
	case 0x2105: // BGMODE
		p.bgMode = int(v & 0x07)
	case 0x2107, 0x2108, 0x2109, 0x210A: // BG1-4 tilemap base/size
		p.bg[addr-0x2107].TilemapBase = uint16(v&0xFC) << 8
	case 0x210B, 0x210C: // BG1/2 and BG3/4 CHR base
		lo := uint16(v&0x0F) << 12
		hi := uint16(v&0xF0) << 8
		if addr == 0x210B {
			p.bg[0].CHRBase, p.bg[1].CHRBase = lo, hi
		} else {
			p.bg[2].CHRBase, p.bg[3].CHRBase = lo, hi
		}
	case 0x210D, 0x210E, 0x210F, 0x2110, 0x2111, 0x2112, 0x2113, 0x2114:
		p.writeScroll(addr, v)
	case 0x2115: // VMAIN
		p.ports.vramIncOnHigh = v&0x80 == 0
		switch v & 0x03 {
		case 0:
			p.ports.vramStep = 1
		case 1:
			p.ports.vramStep = 32
		default:
			p.ports.vramStep = 128
		}
	case 0x2116: // VMADDL
		p.ports.vramAddr = p.ports.vramAddr&0xFF00 | uint16(v)
	case 0x2117: // VMADDH
		p.ports.vramAddr = p.ports.vramAddr&0x00FF | uint16(v)<<8
	case 0x2118: // VMDATAL
		p.writeVRAMWord(false, v)
	case 0x2119: // VMDATAH
		p.writeVRAMWord(true, v)
	case 0x211B, 0x211C, 0x211D, 0x211E: // M7A-M7D
		p.writeMode7Matrix(addr, v)
	case 0x211F: // M7X
		p.mode7.X = p.latchMode7(4, v)
	case 0x2120: // M7Y
		p.mode7.Y = p.latchMode7(5, v)
	case 0x2121: // CGADD
		p.ports.cgramAddr = v
		p.ports.cgramLow = true
	case 0x2122: // CGDATA
		p.writeCGRAM(v)
	case 0x2102: // OAMADDL
		p.ports.oamAddr = p.ports.oamAddr&0x0200 | uint16(v)<<1
		p.ports.oamLow = true
	case 0x2103: // OAMADDH
		p.ports.oamAddr = p.ports.oamAddr&0x01FE | uint16(v&0x01)<<9
	case 0x2104: // OAMDATA
		p.writeOAM(v)
	case 0x212C: // TM
		p.mainScreen = v
	case 0x212D: // TS
		p.subScreen = v
	case 0x2130: // CGWSEL
		p.colorMathHalf = v&0x40 != 0
	case 0x2131: // CGADSUB
		p.colorMathEnable = v & 0x3F
		p.colorMathAdd = v&0x80 == 0
	}
}

// ReadRegister handles a CPU read of a PPU status/data port.
func (p *PPU) ReadRegister(addr uint16) byte {
	switch addr {
	case 0x2138: // OAM data read
		v := p.OAM[p.ports.oamAddr%uint16(len(p.OAM))]
		p.ports.oamAddr++
		return v
	case 0x2139: // VRAM low byte read
		w := p.VRAM[p.ports.vramAddr&0xFFFF]
		if !p.ports.vramIncOnHigh {
			p.ports.vramAddr += p.ports.vramStep
		}
		return byte(w)
	case 0x213A: // VRAM high byte read
		w := p.VRAM[p.ports.vramAddr&0xFFFF]
		if p.ports.vramIncOnHigh {
			p.ports.vramAddr += p.ports.vramStep
		}
		return byte(w >> 8)
	case 0x213B: // CGRAM data read
		w := p.CGRAM[p.ports.cgramAddr]
		if p.ports.cgramLow {
			p.ports.cgramLow = false
			return byte(w)
		}
		p.ports.cgramAddr++
		return byte(w >> 8)
	default:
		return 0
	}
}

// writeScroll handles $210D-$2114, BG1-4's H/V scroll pair. BG1's pair
// ($210D/$210E) doubles as M7HOFS/M7VOFS (the Mode 7 layer's pan offset)
// on real hardware, since Mode 7 has no BG2-4 layers of its own to scroll.
func (p *PPU) writeScroll(addr uint16, v byte) {
	bg := (addr - 0x210D) / 2
	if bg > 3 {
		bg = 3
	}
	horiz := (addr-0x210D)%2 == 0
	if horiz {
		p.bg[bg].HScroll = int(v)
	} else {
		p.bg[bg].VScroll = int(v)
	}
	if bg == 0 {
		if horiz {
			p.mode7.HOffset = int32(int8(v))
		} else {
			p.mode7.VOffset = int32(int8(v))
		}
	}
}

func (p *PPU) writeMode7Matrix(addr uint16, v byte) {
	switch addr {
	case 0x211B:
		p.mode7.A = p.latchMode7(0, v)
	case 0x211C:
		p.mode7.B = p.latchMode7(1, v)
	case 0x211D:
		p.mode7.C = p.latchMode7(2, v)
	case 0x211E:
		p.mode7.D = p.latchMode7(3, v)
	}
}

// latchMode7 implements the two-write low/high byte latch every M7A-D/
// M7X/M7Y register shares: the first write of a pair supplies the low
// byte and is held in ports.mode7Lo until the second write's high byte
// completes the signed 16-bit value.
func (p *PPU) latchMode7(idx int, v byte) int32 {
	if !p.ports.mode7Pending[idx] {
		p.ports.mode7Lo[idx] = v
		p.ports.mode7Pending[idx] = true
		return p.mode7Field(idx)
	}
	p.ports.mode7Pending[idx] = false
	combined := uint16(v)<<8 | uint16(p.ports.mode7Lo[idx])
	return int32(int16(combined))
}

func (p *PPU) mode7Field(idx int) int32 {
	switch idx {
	case 0:
		return p.mode7.A
	case 1:
		return p.mode7.B
	case 2:
		return p.mode7.C
	case 3:
		return p.mode7.D
	case 4:
		return p.mode7.X
	default:
		return p.mode7.Y
	}
}

func (p *PPU) writeVRAMWord(high bool, v byte) {
	addr := p.ports.vramAddr & 0xFFFF
	w := p.VRAM[addr]
	if high {
		w = uint16(v)<<8 | w&0x00FF
	} else {
		w = w&0xFF00 | uint16(v)
	}
	p.VRAM[addr] = w
	if high == p.ports.vramIncOnHigh {
		p.ports.vramAddr += p.ports.vramStep
	}
}

func (p *PPU) writeCGRAM(v byte) {
	w := p.CGRAM[p.ports.cgramAddr]
	if p.ports.cgramLow {
		p.CGRAM[p.ports.cgramAddr] = w&0xFF00 | uint16(v)
		p.ports.cgramLow = false
	} else {
		p.CGRAM[p.ports.cgramAddr] = w&0x00FF | uint16(v&0x7F)<<8
		p.ports.cgramLow = true
		p.ports.cgramAddr++
	}
}

func (p *PPU) writeOAM(v byte) {
	idx := p.ports.oamAddr
	if idx < 512 {
		if p.ports.oamLow {
			p.OAM[idx] = v
		} else {
			p.OAM[idx] = v
			p.ports.oamAddr++
		}
	} else if idx < uint16(len(p.OAM)) {
		p.OAM[idx] = v
		p.ports.oamAddr++
	}
	p.ports.oamLow = !p.ports.oamLow
}

func (p *PPU) decodeColor(c uint16) video.RGB24 {
	scale := float64(p.brightness) / 15.0
	r := uint8(float64(uint8(c&0x1F)<<3|uint8(c&0x1F)>>2) * scale)
	g := uint8(float64(uint8((c>>5)&0x1F)<<3|uint8((c>>5)&0x1F)>>2) * scale)
	b := uint8(float64(uint8((c>>10)&0x1F)<<3|uint8((c>>10)&0x1F)>>2) * scale)
	return video.RGB24{R: r, G: g, B: b}
}
