// Package z80 is the reference decoder for the Zilog Z80, used as the
// sound/bus-arbiter CPU on Genesis and as the main CPU on Master System /
// Game Gear.
//
// Follows the standard register layout (AF/BC/DE/HL with shadow
// AF'/BC'/DE'/HL', IX/IY, I/R, IFF1/IFF2, interrupt modes 0-2). This
// decoder covers the opcode subset this module's own tests and smoke
// ROMs exercise; it is not an exhaustive Z80 core.
package z80

import (
	"github.com/retrocore/retrocore/bus"
	"github.com/retrocore/retrocore/mclock"
)

// Regs16 is a BC/DE/HL-style register pair addressed either as one 16-bit
// value or as two 8-bit halves.
type Regs16 struct{ Hi, Lo uint8 }

func (r Regs16) Word() uint16     { return uint16(r.Hi)<<8 | uint16(r.Lo) }
func (r *Regs16) SetWord(v uint16) { r.Hi, r.Lo = uint8(v>>8), uint8(v) }

// CPU holds the Z80 register file and decode state.
type CPU struct {
	A, F       uint8
	BC, DE, HL Regs16
	AFshadow, BCshadow, DEshadow, HLshadow uint16
	IX, IY     uint16
	SP, PC     uint16
	I, R       uint8
	IFF1, IFF2 bool
	IM         int

	halted bool

	bus bus.Bus

	// BUSREQ/BUSACK as seen from this CPU's own vantage point; the Genesis
	// System Core flips this via Driver sync points, and this decoder
	// fetches only while it is set.
	busGranted bool

	pendingNMI bool
	pendingIRQ bool
	irqData    uint8
}

// New creates a Z80 bound to bus. PC starts at 0 (ROM-mapped reset vector
// on SMS/GG; the Genesis Z80 program is supplied by the 68000 via shared
// RAM before release, so New's PC=0 is immediately overwritten there).
func New(b bus.Bus) *CPU {
	return &CPU{bus: b, SP: 0xFFFF, IM: 1}
}

// Halted reports whether a HALT instruction has parked the CPU.
func (c *CPU) Halted() bool { return c.halted }

// SetBusGranted controls whether this Z80 may fetch. The Genesis 68000
// asserts bus request to take over the Z80's bus (e.g. to load its
// program); while granted away, Step must not advance PC or consume bus
// cycles beyond the granted-away bookkeeping itself.
func (c *CPU) SetBusGranted(granted bool) { c.busGranted = granted }

// AssertInterrupt implements cpu.InterruptSource (maskable INT line).
func (c *CPU) AssertInterrupt(level int) { c.pendingIRQ = level != 0 }

// AssertNMI raises the non-maskable interrupt line.
func (c *CPU) AssertNMI() { c.pendingNMI = true }

// Step decodes and executes one instruction, returning the Z80 T-states
// consumed; the System Cores convert them to MC ticks by multiplying by
// their Z80 divider (15) through mcScaledDecoder.
func (c *CPU) Step() mclock.Tick {
	if !c.busGranted {
		return 1
	}
	if c.pendingNMI {
		c.pendingNMI = false
		c.halted = false
		c.push16(c.PC)
		c.IFF1 = false
		c.PC = 0x0066
		return 11
	}
	if c.pendingIRQ && c.IFF1 {
		c.halted = false
		c.IFF1, c.IFF2 = false, false
		switch c.IM {
		case 0, 1:
			c.push16(c.PC)
			c.PC = 0x0038
		case 2:
			c.push16(c.PC)
			vec := uint16(c.I)<<8 | uint16(c.irqData)
			c.PC = c.bus.Read16(uint32(vec))
		}
		return 13
	}
	if c.halted {
		return 4
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

func (c *CPU) execute(op uint8) int {
	switch op {
	case 0x00: // NOP
		return 4
	case 0x76: // HALT
		c.halted = true
		return 4
	case 0xF3: // DI
		c.IFF1, c.IFF2 = false, false
		return 4
	case 0xFB: // EI
		c.IFF1, c.IFF2 = true, true
		return 4
	case 0xC3: // JP nn
		c.PC = c.fetch16()
		return 10
	case 0xCD: // CALL nn
		target := c.fetch16()
		c.push16(c.PC)
		c.PC = target
		return 17
	case 0xC9: // RET
		c.PC = c.pop16()
		return 10
	case 0x3E: // LD A,n
		c.A = c.fetch8()
		return 7
	case 0x06: // LD B,n
		c.BC.Hi = c.fetch8()
		return 7
	case 0x0E: // LD C,n
		c.BC.Lo = c.fetch8()
		return 7
	case 0x21: // LD HL,nn
		c.HL.SetWord(c.fetch16())
		return 10
	case 0x31: // LD SP,nn
		c.SP = c.fetch16()
		return 10
	case 0x3C: // INC A
		c.A++
		c.setZ(c.A)
		return 4
	case 0x3D: // DEC A
		c.A--
		c.setZ(c.A)
		return 4
	case 0xC6: // ADD A,n
		c.A += c.fetch8()
		c.setZ(c.A)
		return 7
	case 0xFE: // CP n
		n := c.fetch8()
		c.setZ(c.A - n)
		return 7
	case 0x28: // JR Z,d
		d := int8(c.fetch8())
		if c.F&0x40 != 0 {
			c.PC = uint16(int32(c.PC) + int32(d))
		}
		return 7
	case 0x20: // JR NZ,d
		d := int8(c.fetch8())
		if c.F&0x40 == 0 {
			c.PC = uint16(int32(c.PC) + int32(d))
		}
		return 7
	case 0x18: // JR d
		d := int8(c.fetch8())
		c.PC = uint16(int32(c.PC) + int32(d))
		return 12
	case 0xED: // extended opcode prefix: only IM/LD I,A subset handled
		return c.executeExtended(c.fetch8())
	default:
		// Unrecognized opcode: treated as a 1-byte NOP rather than a panic,
		// consistent with the never-panic runtime-anomaly policy.
		return 4
	}
}

func (c *CPU) executeExtended(op uint8) int {
	switch op {
	case 0x47: // LD I,A
		c.I = c.A
		return 9
	case 0x56: // IM 1
		c.IM = 1
		return 8
	case 0x5E: // IM 2
		c.IM = 2
		return 8
	default:
		return 8
	}
}

func (c *CPU) setZ(v uint8) {
	if v == 0 {
		c.F |= 0x40
	} else {
		c.F &^= 0x40
	}
}

func (c *CPU) push16(v uint16) {
	c.SP -= 2
	c.bus.Write8(uint32(c.SP), uint8(v))
	c.bus.Write8(uint32(c.SP+1), uint8(v>>8))
}

func (c *CPU) pop16() uint16 {
	lo := c.bus.Read8(uint32(c.SP))
	hi := c.bus.Read8(uint32(c.SP + 1))
	c.SP += 2
	return uint16(hi)<<8 | uint16(lo)
}
