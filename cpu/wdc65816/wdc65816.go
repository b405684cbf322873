// Package wdc65816 is the reference decoder for the WDC 65C816, the SNES
// main CPU. It extends cpu/mos6502's register shape with the 65816's
// 16-bit accumulator/index mode and bank byte, since the 65816 is a
// superset ISA of the 6502 that the SNES runs mostly in "native" (16-bit)
// mode after boot.
//
// This decoder covers the opcode subset exercised by this module's tests
// and by the SNES System Core's smoke ROM; the SNES coprocessor
// sub-processors (Super FX, SA-1, ...) are out of this package's scope
// and live in cart/snescoproc instead.
package wdc65816

import (
	"github.com/retrocore/retrocore/bus"
	"github.com/retrocore/retrocore/mclock"
)

const (
	flagC = 1 << 0
	flagZ = 1 << 1
	flagI = 1 << 2
	flagD = 1 << 3
	flagX = 1 << 4 // index-register-width in native mode (clear=16-bit)
	flagM = 1 << 5 // accumulator-width in native mode (clear=16-bit)
	flagV = 1 << 6
	flagN = 1 << 7
)

// CPU is the 65C816 register file and decode loop.
type CPU struct {
	A, X, Y uint16 // full 16-bit; 8-bit mode masks the high byte
	SP      uint16
	DBR     uint8 // data bank register
	PBR     uint8 // program bank register
	D       uint16 // direct-page register
	PC      uint16
	P       uint8

	emulationMode bool // powers on true; CLC+XCE enters native mode

	pendingNMI bool
	pendingIRQ bool

	bus bus.Bus32
}

// New creates a 65816 in 6502-compatible emulation mode, reading the reset
// vector at $00FFFC, matching real SNES boot.
func New(b bus.Bus32) *CPU {
	c := &CPU{bus: b, emulationMode: true, P: flagI | flagX | flagM}
	c.SP = 0x01FF
	c.PC = b.Read16(0xFFFC)
	return c
}

// AssertInterrupt implements cpu.InterruptSource (IRQ line; masked by the I
// flag, same convention as cpu/mos6502 this decoder extends).
func (c *CPU) AssertInterrupt(level int) { c.pendingIRQ = level != 0 }

// AssertNMI raises the edge-triggered NMI line the SNES PPU's VBlank
// drives.
func (c *CPU) AssertNMI() { c.pendingNMI = true }

func (c *CPU) accum8() bool { return c.emulationMode || c.P&flagM != 0 }
func (c *CPU) index8() bool { return c.emulationMode || c.P&flagX != 0 }

// Step decodes one instruction, returning elapsed CPU cycles (the SNES
// System Core converges these against the master clock via the 65816's
// own /6 divider from the 21.477 MHz NTSC dot clock).
func (c *CPU) Step() mclock.Tick {
	if c.pendingNMI {
		c.pendingNMI = false
		c.interrupt(0x00FFEA)
		return 7
	}
	if c.pendingIRQ && c.P&flagI == 0 {
		c.interrupt(0x00FFEE)
		return 7
	}
	op := c.fetch8()
	return mclock.Tick(c.execute(op))
}

// interrupt pushes PBR:PC and P (native mode) and jumps to the given
// native-mode vector; emulation-mode vectors ($FFFA/$FFFE) are not
// distinguished separately since this decoder's SNES System Core always
// leaves native mode before enabling interrupts, matching real boot code.
func (c *CPU) interrupt(vector uint32) {
	c.push8(c.PBR)
	c.push16(c.PC)
	c.push8(c.P)
	c.P |= flagI
	c.P &^= flagD
	c.PBR = 0
	c.PC = c.bus.Read16(vector)
}

func (c *CPU) addr32(bank uint8, offset uint16) uint32 {
	return uint32(bank)<<16 | uint32(offset)
}

func (c *CPU) fetch8() uint8 {
	v := uint8(c.bus.Read8(c.addr32(c.PBR, c.PC)))
	c.PC++
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := c.fetch8()
	hi := c.fetch8()
	return uint16(hi)<<8 | uint16(lo)
}

func (c *CPU) execute(op uint8) int {
	switch op {
	case 0xEA: // NOP
		return 2
	case 0x18: // CLC
		c.P &^= flagC
		return 2
	case 0xFB: // XCE: exchange carry and emulation-mode bit
		c.emulationMode, c.P = c.P&flagC != 0, (c.P&^flagC)|b2flag(c.emulationMode)
		return 2
	case 0xC2: // REP #imm: reset P bits
		c.P &^= c.fetch8()
		return 3
	case 0xE2: // SEP #imm: set P bits
		c.P |= c.fetch8()
		return 3
	case 0xA9: // LDA #imm
		if c.accum8() {
			v := uint16(c.fetch8())
			c.A = c.A&0xFF00 | v
			c.setZN8(uint8(v))
		} else {
			v := c.fetch16()
			c.A = v
			c.setZN16(v)
		}
		return 2
	case 0xA2: // LDX #imm
		if c.index8() {
			v := uint16(c.fetch8())
			c.X = v
			c.setZN8(uint8(v))
		} else {
			v := c.fetch16()
			c.X = v
			c.setZN16(v)
		}
		return 2
	case 0x8D: // STA abs (data bank)
		addr := c.fetch16()
		c.bus.Write8(c.addr32(c.DBR, addr), uint8(c.A))
		return 4
	case 0x4C: // JMP abs
		c.PC = c.fetch16()
		return 3
	case 0x5C: // JMP long
		addr := c.fetch16()
		bank := c.fetch8()
		c.PBR = bank
		c.PC = addr
		return 4
	case 0x20: // JSR abs
		target := c.fetch16()
		c.push16(c.PC - 1)
		c.PC = target
		return 6
	case 0x60: // RTS
		c.PC = c.pop16() + 1
		return 6
	case 0xE8: // INX
		c.X++
		if c.index8() {
			c.X &= 0xFF
			c.setZN8(uint8(c.X))
		} else {
			c.setZN16(c.X)
		}
		return 2
	case 0x78: // SEI
		c.P |= flagI
		return 2
	case 0xD0: // BNE
		d := int8(c.fetch8())
		if c.P&flagZ == 0 {
			c.PC = uint16(int32(c.PC) + int32(d))
		}
		return 2
	case 0x80: // BRA
		d := int8(c.fetch8())
		c.PC = uint16(int32(c.PC) + int32(d))
		return 3
	default:
		return 2
	}
}

func b2flag(v bool) uint8 {
	if v {
		return flagC
	}
	return 0
}

func (c *CPU) setZN8(v uint8) {
	if v == 0 {
		c.P |= flagZ
	} else {
		c.P &^= flagZ
	}
	if v&0x80 != 0 {
		c.P |= flagN
	} else {
		c.P &^= flagN
	}
}

func (c *CPU) setZN16(v uint16) {
	if v == 0 {
		c.P |= flagZ
	} else {
		c.P &^= flagZ
	}
	if v&0x8000 != 0 {
		c.P |= flagN
	} else {
		c.P &^= flagN
	}
}

func (c *CPU) push8(v uint8) {
	c.bus.Write8(c.addr32(0, c.SP), v)
	c.SP--
}

func (c *CPU) pop8() uint8 {
	c.SP++
	return uint8(c.bus.Read8(c.addr32(0, c.SP)))
}

func (c *CPU) push16(v uint16) {
	c.bus.Write8(c.addr32(0, c.SP), uint8(v>>8))
	c.SP--
	c.bus.Write8(c.addr32(0, c.SP), uint8(v))
	c.SP--
}

func (c *CPU) pop16() uint16 {
	c.SP++
	lo := c.bus.Read8(c.addr32(0, c.SP))
	c.SP++
	hi := c.bus.Read8(c.addr32(0, c.SP))
	return uint16(hi)<<8 | uint16(lo)
}
