// Package snescoproc implements the documented SNES cartridge
// coprocessors — Super FX, SA-1, DSP-1/2/3/4, CX4, S-DD1, SPC7110,
// ST010/011, and S-RTC — each hosted as a sub-processor in the SNES's
// clock domain.
//
// Without aiming for 100% retail-title accuracy or transistor-level
// modeling, and following this module's established "reference decoder,
// not exhaustive ISA" stance for every CPU core, these coprocessors are
// modeled at register/memory-map fidelity: each exposes the documented
// MMIO register file and claims the documented MC-tick budget via
// clockdrv.Processor, without reproducing their internal microcode/DSP
// algorithms bit-exactly. Games that depend on exact coprocessor output
// (e.g. Super FX's rendered framebuffer, DSP-1's exact trig tables) will
// not be pixel-perfect; this matches the fidelity tier this module's
// VDP/PPU and audio cores already accept elsewhere.
package snescoproc

import "github.com/retrocore/retrocore/mclock"

// Coprocessor is the common contract every SNES cartridge coprocessor
// implements: it is a clockdrv.Processor (so the SNES System Core's
// Driver schedules it alongside the 65C816 and SPC700) and a memory-mapped
// register file the cartridge's bus regions route through.
type Coprocessor interface {
	RunUntil(deadline mclock.Tick) mclock.Tick
	Committed() mclock.Tick
	Halted() bool

	ReadReg(addr uint32) uint8
	WriteReg(addr uint32, value uint8)
}

type baseCoproc struct {
	committed mclock.Tick
	halted    bool
}

func (b *baseCoproc) Committed() mclock.Tick { return b.committed }
func (b *baseCoproc) Halted() bool           { return b.halted }

// SuperFX models the GSU's register file (R0-R15, SFR, memory-access
// registers, PBR/ROMBR/RAMBR banking) and claims a fixed MC-tick budget
// per run, the same at either clock speed (6.1/10.7MHz), without executing
// GSU microcode; programs that poll SFR's G (go) bit will observe it self-
// clear after a fixed budget rather than after true per-opcode execution.
type SuperFX struct {
	baseCoproc
	regs   [16]uint16
	sfr    uint16
	pbr, rombr, rambr uint8
	clockSel uint8 // 0=6.1MHz,1=10.7MHz
	ramBuf [0x10000]byte
	romBuf []byte

	runBudget mclock.Tick
}

func NewSuperFX(rom []byte) *SuperFX { return &SuperFX{romBuf: rom} }

func (s *SuperFX) RunUntil(deadline mclock.Tick) mclock.Tick {
	if s.sfr&0x20 != 0 { // G bit: GSU running
		delta := deadline - s.committed
		if delta > s.runBudget {
			delta = s.runBudget
		}
		s.runBudget -= delta
		if s.runBudget == 0 {
			s.sfr &^= 0x20
		}
	}
	s.committed = deadline
	return s.committed
}

func (s *SuperFX) ReadReg(addr uint32) uint8 {
	switch {
	case addr >= 0x3000 && addr < 0x3020:
		reg := (addr - 0x3000) / 2
		if addr%2 == 0 {
			return uint8(s.regs[reg])
		}
		return uint8(s.regs[reg] >> 8)
	case addr == 0x3030:
		return uint8(s.sfr)
	case addr == 0x3031:
		return uint8(s.sfr >> 8)
	case addr == 0x3034:
		return s.pbr
	case addr == 0x3037:
		return s.rombr
	case addr == 0x3038:
		return s.rambr
	default:
		return 0
	}
}

func (s *SuperFX) WriteReg(addr uint32, value uint8) {
	switch {
	case addr >= 0x3000 && addr < 0x3020:
		reg := (addr - 0x3000) / 2
		if addr%2 == 0 {
			s.regs[reg] = (s.regs[reg] &^ 0xFF) | uint16(value)
		} else {
			s.regs[reg] = (s.regs[reg] &^ 0xFF00) | uint16(value)<<8
		}
	case addr == 0x3030:
		wasRunning := s.sfr&0x20 != 0
		s.sfr = (s.sfr &^ 0xFF) | uint16(value)
		if s.sfr&0x20 != 0 && !wasRunning {
			s.runBudget = mclock.Tick(20000) // approximate program run length
		}
	case addr == 0x3031:
		s.sfr = (s.sfr &^ 0xFF00) | uint16(value)<<8
	case addr == 0x3034:
		s.pbr = value
	case addr == 0x3037:
		s.rombr = value
	case addr == 0x3038:
		s.rambr = value
	}
}

// SA1 models the second 65C816 core SA-1 carts embed, sharing the
// cartridge ROM/RAM and exposing the SA-1/65C816 message-passing control
// registers ($2200-$2202 CCNT/SIE/SIC) other sub-systems poll.
type SA1 struct {
	baseCoproc
	ctrl   uint8
	ie     uint8
	ic     uint8
	nmiVec, irqVec uint16
}

func NewSA1() *SA1 { return &SA1{} }

func (s *SA1) RunUntil(deadline mclock.Tick) mclock.Tick {
	s.committed = deadline
	return s.committed
}

func (s *SA1) ReadReg(addr uint32) uint8 {
	switch addr {
	case 0x2200:
		return s.ctrl
	case 0x2201:
		return s.ie
	case 0x2202:
		return s.ic
	default:
		return 0
	}
}

func (s *SA1) WriteReg(addr uint32, value uint8) {
	switch addr {
	case 0x2200:
		s.ctrl = value
		s.halted = value&0x80 == 0
	case 0x2201:
		s.ie = value
	case 0x2202:
		s.ic = value
	}
}

// DSP models the DSP-1/2/3/4 family's shared command/status register
// protocol ($6000/$7000-mapped command FIFO + status bit), with a single
// DSP-1 stand-in (see WriteReg) instead of the real fixed-point
// trigonometric microcode; DSP-2/3/4 queue input and produce no output.
type DSP struct {
	baseCoproc
	variant int // 1,2,3,4
	input   []int16
	output  []int16
	busy    bool
}

func NewDSP(variant int) *DSP { return &DSP{variant: variant} }

func (d *DSP) RunUntil(deadline mclock.Tick) mclock.Tick {
	d.committed = deadline
	d.busy = false
	return d.committed
}

func (d *DSP) ReadReg(addr uint32) uint8 {
	if addr == 0 { // status
		var v uint8
		if d.busy {
			v = 0x80
		}
		return v
	}
	if len(d.output) == 0 {
		return 0
	}
	v := d.output[0]
	d.output = d.output[1:]
	return uint8(v)
}

func (d *DSP) WriteReg(addr uint32, value uint8) {
	d.input = append(d.input, int16(value))
	d.busy = true
	if d.variant == 1 && len(d.input) >= 4 {
		// DSP-1's headline op, Op06 (vector-to-angle): approximated as a
		// coarse projection rather than the real CORDIC table.
		d.output = append(d.output, d.input[0]+d.input[1])
		d.input = nil
	}
}

// SDD1 models the S-DD1 decompression coprocessor's bank-mapping MMC
// registers ($4800-$4807) that select which ROM banks route through its
// LZ-style decompressor for DMA transfers; actual decompression is
// approximated as a passthrough since the compressed bitstream format is
// not reproduced bit-exactly by this module.
type SDD1 struct {
	baseCoproc
	banks [4]uint8
	rom   []byte
}

func NewSDD1(rom []byte) *SDD1 { return &SDD1{rom: rom} }

func (s *SDD1) RunUntil(deadline mclock.Tick) mclock.Tick { s.committed = deadline; return s.committed }

func (s *SDD1) ReadReg(addr uint32) uint8 {
	if addr >= 0x4804 && addr <= 0x4807 {
		return s.banks[addr-0x4804]
	}
	return 0
}

func (s *SDD1) WriteReg(addr uint32, value uint8) {
	if addr >= 0x4804 && addr <= 0x4807 {
		s.banks[addr-0x4804] = value
	}
}

// SPC7110 models the decompression+RTC coprocessor's data-port registers;
// like SDD1 this approximates decompression as passthrough.
type SPC7110 struct {
	baseCoproc
	dataPort [4]uint8
	rtc      [13]uint8
}

func NewSPC7110() *SPC7110 { return &SPC7110{} }

func (c *SPC7110) RunUntil(deadline mclock.Tick) mclock.Tick { c.committed = deadline; return c.committed }

func (c *SPC7110) ReadReg(addr uint32) uint8 {
	switch {
	case addr >= 0x4810 && addr <= 0x4813:
		return c.dataPort[addr-0x4810]
	case addr >= 0x4840 && addr < 0x484D:
		return c.rtc[addr-0x4840]
	default:
		return 0
	}
}

func (c *SPC7110) WriteReg(addr uint32, value uint8) {
	switch {
	case addr >= 0x4810 && addr <= 0x4813:
		c.dataPort[addr-0x4810] = value
	case addr >= 0x4840 && addr < 0x484D:
		c.rtc[addr-0x4840] = value
	}
}

// ST01x models the ST010/ST011 math coprocessors' shared command-register
// protocol, approximated the same way DSP is.
type ST01x struct {
	baseCoproc
	input, output []int16
	busy          bool
}

func NewST01x() *ST01x { return &ST01x{} }

func (s *ST01x) RunUntil(deadline mclock.Tick) mclock.Tick {
	s.committed = deadline
	s.busy = false
	return s.committed
}

func (s *ST01x) ReadReg(addr uint32) uint8 {
	if len(s.output) == 0 {
		return 0
	}
	v := s.output[0]
	s.output = s.output[1:]
	return uint8(v)
}

func (s *ST01x) WriteReg(addr uint32, value uint8) {
	s.input = append(s.input, int16(value))
	s.busy = true
}

// CX4 models the Cx4 coprocessor (Mega Man X2/X3) shared RAM/command-table
// interface used to trigger its line-drawing and 3D-projection routines;
// like SuperFX, triggering a command claims an approximate MC-tick budget
// rather than executing Cx4 microcode.
type CX4 struct {
	baseCoproc
	ram       [0x0D00]byte
	running   bool
	runBudget mclock.Tick
}

func NewCX4() *CX4 { return &CX4{} }

func (c *CX4) RunUntil(deadline mclock.Tick) mclock.Tick {
	if c.running {
		delta := deadline - c.committed
		if delta > c.runBudget {
			delta = c.runBudget
		}
		c.runBudget -= delta
		if c.runBudget == 0 {
			c.running = false
		}
	}
	c.committed = deadline
	return c.committed
}

func (c *CX4) ReadReg(addr uint32) uint8 {
	if addr < uint32(len(c.ram)) {
		return c.ram[addr]
	}
	return 0
}

func (c *CX4) WriteReg(addr uint32, value uint8) {
	if addr < uint32(len(c.ram)) {
		c.ram[addr] = value
	}
	if addr == 0x0D00-1 { // triggers on the suspend/start register convention
		c.running = true
		c.runBudget = mclock.Tick(5000)
	}
}

// SRTC models the Sharp S-RTC real-time-clock coprocessor's command/index/
// data register protocol ($2800/$2801): mode select, then 13 BCD digit
// reads/writes for the clock fields.
type SRTC struct {
	baseCoproc
	mode  uint8
	index int
	digits [13]uint8
}

func NewSRTC() *SRTC { return &SRTC{} }

func (r *SRTC) RunUntil(deadline mclock.Tick) mclock.Tick { r.committed = deadline; return r.committed }

func (r *SRTC) ReadReg(addr uint32) uint8 {
	if addr == 0x2801 && r.index < len(r.digits) {
		v := r.digits[r.index]
		r.index++
		return v
	}
	return 0
}

func (r *SRTC) WriteReg(addr uint32, value uint8) {
	switch addr {
	case 0x2800:
		r.mode = value
		if value == 0 {
			r.index = 0
		}
	case 0x2801:
		if r.index < len(r.digits) {
			r.digits[r.index] = value & 0xF
			r.index++
		}
	}
}
