// Package sh2 is the reference decoder for the Hitachi SH-2, used as the
// pair of "master" and "slave" CPUs on the 32X.
//
// Grounded on cpu/m68k's 32-bit register-file shape, adjusted to the SH-2's
// sixteen general registers and delayed-branch slot. This decoder covers
// the opcode subset exercised by this module's tests, not an exhaustive
// SH-2 core.
package sh2

import (
	"github.com/retrocore/retrocore/bus"
	"github.com/retrocore/retrocore/mclock"
)

// CPU is the SH-2 register file and decode loop.
type CPU struct {
	R   [16]uint32
	PC  uint32
	PR  uint32 // procedure register (return address for BSR/JSR)
	SR  uint32
	GBR, VBR uint32

	delayedBranch uint32
	hasDelayed    bool

	bus bus.Bus32

	// Master reports whether this is the 32X master SH-2 (drives VRES,
	// owns the frame-buffer toggle) vs. the slave; System Core wiring uses
	// this to decide which SH-2's sync point gates the display swap.
	Master bool

	// pendingLevel is the highest-priority external interrupt request
	// latched since the last one was taken (IRL3-0, 0 = none, 1-15
	// priority, matching the SH-2's four-bit external interrupt level
	// lines); SR's I3-I0 field is the current interrupt mask.
	pendingLevel int
}

// AssertInterrupt implements cpu.InterruptSource, latching an external
// interrupt request at the given IRL level (1-15; the 32X System Core
// wires the VDP's V-blank/H-blank and the SH-2-to-SH-2/68000
// communication interrupts to distinct levels). A lower level than
// already pending is ignored, matching IRL's "highest asserted line wins"
// hardware behavior.
func (c *CPU) AssertInterrupt(level int) {
	if level > c.pendingLevel {
		c.pendingLevel = level
	}
}

func (c *CPU) srMask() int { return int((c.SR >> 4) & 0xF) }

// New creates an SH-2 bound to bus, reading PC and R15 (SP) from the
// vector base block at the start of the mapped program ROM, matching how
// the 32X boot ROM's initial vector table is laid out.
func New(b bus.Bus32, master bool) *CPU {
	c := &CPU{bus: b, Master: master}
	c.PC = b.Read32(0)
	c.R[15] = b.Read32(4)
	return c
}

// Step decodes one instruction, executing any queued delay-slot
// instruction first, and returns elapsed cycles (the SH-2 runs at a fixed
// ratio to the 32X master clock, wired by the System Core).
func (c *CPU) Step() mclock.Tick {
	if c.pendingLevel > 0 && c.pendingLevel > c.srMask() {
		c.takeInterrupt()
		return 8
	}
	if c.hasDelayed {
		target := c.delayedBranch
		c.hasDelayed = false
		op := c.fetch16()
		c.execute(op)
		c.PC = target
		return 2
	}
	op := c.fetch16()
	return mclock.Tick(c.execute(op))
}

func (c *CPU) fetch16() uint16 {
	v := uint16(c.bus.Read16(c.PC))
	c.PC += 2
	return v
}

func (c *CPU) execute(op uint16) int {
	switch {
	case op == 0x0009: // NOP
		return 1
	case op&0xF000 == 0xA000: // BRA disp
		disp := signExtend12(op & 0x0FFF)
		c.queueBranch(c.PC + 4 + uint32(disp)*2)
		return 2
	case op&0xF000 == 0xB000: // BSR disp
		disp := signExtend12(op & 0x0FFF)
		c.PR = c.PC + 4
		c.queueBranch(c.PC + 4 + uint32(disp)*2)
		return 2
	case op&0xF0FF == 0x400B: // JSR @Rm
		rm := (op >> 8) & 0xF
		c.PR = c.PC + 4
		c.queueBranch(c.R[rm])
		return 2
	case op&0xF0FF == 0x000B: // RTS
		c.queueBranch(c.PR)
		return 2
	case op&0xF000 == 0xE000: // MOV #imm,Rn
		rn := (op >> 8) & 0xF
		c.R[rn] = uint32(int32(int8(op & 0xFF)))
		return 1
	case op&0xF00F == 0x300C: // ADD Rm,Rn
		rn := (op >> 8) & 0xF
		rm := (op >> 4) & 0xF
		c.R[rn] += c.R[rm]
		return 1
	case op&0xF00F == 0x2008: // TST Rm,Rn
		rn := (op >> 8) & 0xF
		rm := (op >> 4) & 0xF
		if c.R[rn]&c.R[rm] == 0 {
			c.SR |= 1
		} else {
			c.SR &^= 1
		}
		return 1
	default:
		return 1
	}
}

// takeInterrupt services the pending external interrupt level: pushes SR
// then PC onto R15's stack (the SH-2 has no separate system stack), raises
// SR's interrupt mask to the serviced level, and vectors through the
// autovector table at the serviced level's entry (64+level, 4 bytes per
// entry), the convention the 32X boot ROM's own vector table follows.
func (c *CPU) takeInterrupt() {
	level := c.pendingLevel
	c.pendingLevel = 0
	c.R[15] -= 4
	c.bus.Write32(c.R[15], c.SR)
	c.R[15] -= 4
	c.bus.Write32(c.R[15], c.PC)
	c.SR = (c.SR &^ 0xF0) | uint32(level&0xF)<<4
	c.PC = c.bus.Read32(uint32(64+level) * 4)
}

func (c *CPU) queueBranch(target uint32) {
	c.delayedBranch = target
	c.hasDelayed = true
}

func signExtend12(v uint16) int32 {
	if v&0x0800 != 0 {
		return int32(v) - 0x1000
	}
	return int32(v)
}
