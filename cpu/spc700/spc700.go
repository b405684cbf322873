// Package spc700 is the reference decoder for the Sony SPC700, the SNES
// sound co-processor that runs alongside the S-DSP (see audio/snesdsp) in
// its own 64KB address space reachable from the 65C816 only through four
// I/O ports.
//
// Grounded on cpu/mos6502's fetch/execute shape (the SPC700 is itself a
// 6502 derivative with a different zero-page/addressing convention);
// this covers the opcode subset exercised by this module's tests.
package spc700

import (
	"github.com/retrocore/retrocore/bus"
	"github.com/retrocore/retrocore/mclock"
)

const (
	flagC = 1 << 0
	flagZ = 1 << 1
	flagI = 1 << 2
	flagH = 1 << 3
	flagB = 1 << 4
	flagP = 1 << 5 // direct page selector
	flagV = 1 << 6
	flagN = 1 << 7
)

// CPU is the SPC700 register file and decode loop.
type CPU struct {
	A, X, Y uint8
	SP      uint8
	PC      uint16
	PSW     uint8

	bus bus.Bus // the SPC700's own 64KB RAM/IPL-ROM/DSP-register space
}

// New creates an SPC700 with PC at the IPL ROM entry point $FFC0, the
// boot vector real hardware starts at before the 65C816 overwrites RAM
// via the four CPU<->SPC700 I/O ports.
func New(b bus.Bus) *CPU {
	return &CPU{bus: b, PC: 0xFFC0, SP: 0xEF}
}

// Step decodes one instruction and returns elapsed SPC700 cycles (this
// module's audio pipeline divides the 24.576 MHz S-DSP/SPC700 shared
// oscillator down to both the CPU and DSP sample clock).
func (c *CPU) Step() mclock.Tick {
	op := c.fetch8()
	return mclock.Tick(c.execute(op))
}

func (c *CPU) fetch8() uint8 {
	v := c.bus.Read8(uint32(c.PC))
	c.PC++
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := c.fetch8()
	hi := c.fetch8()
	return uint16(hi)<<8 | uint16(lo)
}

func (c *CPU) dpBase() uint16 {
	if c.PSW&flagP != 0 {
		return 0x100
	}
	return 0
}

func (c *CPU) execute(op uint8) int {
	switch op {
	case 0x00: // NOP
		return 2
	case 0xE8: // MOV A,#imm
		c.A = c.fetch8()
		c.setZN(c.A)
		return 2
	case 0xCD: // MOV X,#imm
		c.X = c.fetch8()
		c.setZN(c.X)
		return 2
	case 0x8D: // MOV Y,#imm
		c.Y = c.fetch8()
		c.setZN(c.Y)
		return 2
	case 0xC4: // MOV dp,A
		addr := c.dpBase() + uint16(c.fetch8())
		c.bus.Write8(uint32(addr), c.A)
		return 4
	case 0x5F: // JMP !abs
		c.PC = c.fetch16()
		return 3
	case 0x3F: // CALL !abs
		target := c.fetch16()
		c.push16(c.PC)
		c.PC = target
		return 8
	case 0x6F: // RET
		c.PC = c.pop16()
		return 5
	case 0xBC: // INC A
		c.A++
		c.setZN(c.A)
		return 2
	case 0x9C: // DEC A
		c.A--
		c.setZN(c.A)
		return 2
	case 0xA0: // EI (SPC700 uses CALL-less flag ops; approximate IRQ enable)
		c.PSW |= flagI
		return 3
	case 0xC0: // DI
		c.PSW &^= flagI
		return 3
	case 0x2F: // BRA r
		d := int8(c.fetch8())
		c.PC = uint16(int32(c.PC) + int32(d))
		return 4
	case 0xD0: // BNE r
		d := int8(c.fetch8())
		if c.PSW&flagZ == 0 {
			c.PC = uint16(int32(c.PC) + int32(d))
		}
		return 4
	default:
		return 2
	}
}

func (c *CPU) setZN(v uint8) {
	if v == 0 {
		c.PSW |= flagZ
	} else {
		c.PSW &^= flagZ
	}
	if v&0x80 != 0 {
		c.PSW |= flagN
	} else {
		c.PSW &^= flagN
	}
}

func (c *CPU) push16(v uint16) {
	c.bus.Write8(uint32(0x100+uint16(c.SP)), uint8(v>>8))
	c.SP--
	c.bus.Write8(uint32(0x100+uint16(c.SP)), uint8(v))
	c.SP--
}

func (c *CPU) pop16() uint16 {
	c.SP++
	lo := c.bus.Read8(uint32(0x100 + uint16(c.SP)))
	c.SP++
	hi := c.bus.Read8(uint32(0x100 + uint16(c.SP)))
	return uint16(hi)<<8 | uint16(lo)
}
