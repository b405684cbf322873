package nesmappers

import (
	"github.com/retrocore/retrocore/audio"
	"github.com/retrocore/retrocore/audio/vrc7"
)

// vrc7Divider is the VRC7's FM core clock relative to the NES master
// clock: the OPLL-derived chip runs off the same 3.579545MHz Famicom
// colorburst-adjacent oscillator the CPU does, stepped once every CPU
// cycle at the System Core's mcPerCPUCycle rate (the mapper itself has no
// clock divider of its own to apply beyond that).
const vrc7Divider = 12

// vrc7Mapper (iNES mapper 85) switches 8KB PRG banks across three $2000
// windows plus a fixed last bank, and 1KB CHR banks across eight windows,
// and exposes the VRC7's FM registers at $9010 (address latch) and $9030
// (data) per Konami's documented port layout.
type vrc7Mapper struct {
	prg, chr []byte
	prgRAM   []byte
	chrRAM   bool

	prgBank [3]uint8
	chrBank [8]uint8
	mirror  Mirror

	fm *vrc7.VRC7
}

func newVRC7(prg, chr []byte, chrRAM bool, prgRAMSize int) *vrc7Mapper {
	m := &vrc7Mapper{prg: prg, chr: chr, chrRAM: chrRAM, fm: vrc7.New(vrc7Divider)}
	if chrRAM && len(chr) == 0 {
		m.chr = make([]byte, 0x2000)
	}
	if prgRAMSize > 0 {
		m.prgRAM = make([]byte, prgRAMSize)
	}
	return m
}

func (m *vrc7Mapper) prgBanks8k() int {
	banks := len(m.prg) / 0x2000
	if banks == 0 {
		return 1
	}
	return banks
}

func (m *vrc7Mapper) chrBanks1k() int {
	banks := len(m.chr) / 0x0400
	if banks == 0 {
		return 1
	}
	return banks
}

func (m *vrc7Mapper) Read(addr uint32) uint8 {
	switch {
	case addr >= 0x6000 && addr <= 0x7FFF:
		if m.prgRAM == nil {
			return 0
		}
		return m.prgRAM[(addr-0x6000)%uint32(len(m.prgRAM))]
	case addr >= 0x8000 && addr <= 0x9FFF:
		bank := int(m.prgBank[0]) % m.prgBanks8k()
		return m.prg[bank*0x2000+int(addr-0x8000)]
	case addr >= 0xA000 && addr <= 0xBFFF:
		bank := int(m.prgBank[1]) % m.prgBanks8k()
		return m.prg[bank*0x2000+int(addr-0xA000)]
	case addr >= 0xC000 && addr <= 0xDFFF:
		bank := int(m.prgBank[2]) % m.prgBanks8k()
		return m.prg[bank*0x2000+int(addr-0xC000)]
	case addr >= 0xE000:
		last := m.prgBanks8k() - 1
		return m.prg[last*0x2000+int(addr-0xE000)]
	case addr < 0x2000:
		if len(m.chr) == 0 {
			return 0
		}
		window := addr / 0x0400
		bank := int(m.chrBank[window]) % m.chrBanks1k()
		return m.chr[bank*0x0400+int(addr%0x0400)]
	default:
		return 0
	}
}

func (m *vrc7Mapper) Write(addr uint32, value uint8) {
	switch {
	case addr >= 0x6000 && addr <= 0x7FFF && m.prgRAM != nil:
		m.prgRAM[(addr-0x6000)%uint32(len(m.prgRAM))] = value
	case addr == 0x8000:
		m.prgBank[0] = value & 0x3F
	case addr == 0xA000:
		m.prgBank[1] = value & 0x3F
	case addr == 0xC000:
		m.prgBank[2] = value & 0x3F
	case addr >= 0x9010 && addr <= 0x9013:
		m.fm.WriteAddr(value)
	case addr >= 0x9030 && addr <= 0x9033:
		m.fm.WriteData(value)
	case addr >= 0xB000 && addr <= 0xE003:
		m.writeCHRBank(addr, value)
	case addr < 0x2000 && m.chrRAM:
		window := addr / 0x0400
		bank := int(m.chrBank[window]) % m.chrBanks1k()
		m.chr[bank*0x0400+int(addr%0x0400)] = value
	}
}

// writeCHRBank decodes the eight CHR-bank-select registers: a write to
// $B000+2n or $B000+2n+1 (n = 0-7) stores the full byte as CHR bank n;
// other addresses that reach it (up to $E003) are ignored.
func (m *vrc7Mapper) writeCHRBank(addr uint32, value uint8) {
	base := (addr - 0xB000) / 2
	if base >= 8 {
		return
	}
	m.chrBank[base] = value
}

// Mirror reports the fixed mirroring this catalog entry assumes; VRC7
// carts are overwhelmingly horizontal-mirrored in practice and the chip's
// own mirroring-select register is not modeled.
func (m *vrc7Mapper) Mirror() Mirror { return m.mirror }

// ExpansionAudioUnit implements cart.ExpansionAudio: the System Core adds
// the VRC7's FM core to its audio mix alongside the built-in APU.
func (m *vrc7Mapper) ExpansionAudioUnit() audio.Unit { return m.fm }

func (m *vrc7Mapper) SRAM() []byte { return m.prgRAM }

func (m *vrc7Mapper) BankState() []byte {
	return []byte{m.prgBank[0], m.prgBank[1], m.prgBank[2],
		m.chrBank[0], m.chrBank[1], m.chrBank[2], m.chrBank[3],
		m.chrBank[4], m.chrBank[5], m.chrBank[6], m.chrBank[7]}
}

func (m *vrc7Mapper) LoadBankState(state []byte) {
	if len(state) < 11 {
		return
	}
	m.prgBank[0], m.prgBank[1], m.prgBank[2] = state[0], state[1], state[2]
	copy(m.chrBank[:], state[3:11])
}
