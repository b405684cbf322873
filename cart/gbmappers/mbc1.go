package gbmappers

import "github.com/retrocore/retrocore/cart"

// mbc1 implements the MBC1 register set: a 5-bit ROM bank number at
// $2000-$3FFF, a 2-bit RAM-bank/upper-ROM-bits register at $4000-$5FFF, a
// mode-select bit at $6000-$7FFF choosing whether that 2-bit register
// banks RAM or extends the ROM bank number to 7 bits, and RAM-enable at
// $0000-$1FFF. The large-ROM multicart quirk (bank 0 substitution at
// $0000-$3FFF in mode 1) is modeled; MBC1M's split-bank variant is not.
type mbc1 struct {
	rom []byte
	ram []byte

	ramEnable bool
	romBank   byte // 5 bits
	upperBits byte // 2 bits, RAM bank or ROM bank bits 5-6 depending on mode
	ramMode   bool
}

func newMBC1(rom []byte, ramSize int) *mbc1 {
	m := &mbc1{rom: rom, romBank: 1}
	if ramSize > 0 {
		m.ram = cart.InitializedSRAM(ramSize)
	}
	return m
}

func (m *mbc1) romBankCount() int { return len(m.rom) / 0x4000 }

func (m *mbc1) bank0() byte {
	if m.ramMode {
		return m.upperBits << 5
	}
	return 0
}

func (m *mbc1) bankN() byte {
	bank := m.romBank
	if !m.ramMode {
		bank |= m.upperBits << 5
	}
	if n := byte(m.romBankCount()); n > 0 {
		bank %= n
	}
	return bank
}

func (m *mbc1) Read(addr uint32) uint8 {
	switch {
	case addr < 0x4000:
		off := uint32(m.bank0())*0x4000 + addr
		return m.romAt(off)
	case addr < 0x8000:
		off := uint32(m.bankN())*0x4000 + (addr - 0x4000)
		return m.romAt(off)
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnable || m.ram == nil {
			return 0xFF
		}
		ramBank := byte(0)
		if m.ramMode {
			ramBank = m.upperBits
		}
		idx := uint32(ramBank)*0x2000 + (addr - 0xA000)
		return m.ram[idx%uint32(len(m.ram))]
	default:
		return 0xFF
	}
}

func (m *mbc1) romAt(off uint32) uint8 {
	if len(m.rom) == 0 {
		return 0xFF
	}
	return m.rom[off%uint32(len(m.rom))]
}

func (m *mbc1) Write(addr uint32, value uint8) {
	switch {
	case addr < 0x2000:
		m.ramEnable = value&0x0F == 0x0A
	case addr < 0x4000:
		bank := value & 0x1F
		if bank == 0 {
			bank = 1
		}
		m.romBank = bank
	case addr < 0x6000:
		m.upperBits = value & 0x03
	case addr < 0x8000:
		m.ramMode = value&0x01 != 0
	case addr >= 0xA000 && addr <= 0xBFFF && m.ramEnable && m.ram != nil:
		ramBank := byte(0)
		if m.ramMode {
			ramBank = m.upperBits
		}
		idx := uint32(ramBank)*0x2000 + (addr - 0xA000)
		m.ram[idx%uint32(len(m.ram))] = value
	}
}

func (m *mbc1) SRAM() []byte { return m.ram }

func (m *mbc1) BankState() []byte {
	return []byte{m.romBank, m.upperBits, b2byte(m.ramMode), b2byte(m.ramEnable)}
}

func (m *mbc1) LoadBankState(state []byte) {
	if len(state) < 4 {
		return
	}
	m.romBank, m.upperBits = state[0], state[1]
	m.ramMode, m.ramEnable = state[2] != 0, state[3] != 0
}

func b2byte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
