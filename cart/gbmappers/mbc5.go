package gbmappers

import "github.com/retrocore/retrocore/cart"


// mbc5 implements MBC5: a 9-bit ROM bank number split across a low byte
// at $2000-$2FFF and bit 8 at $3000-$3FFF, a 4-bit RAM bank at $4000-
// $5FFF, and RAM-enable at $0000-$1FFF. Bit 3 of the RAM-bank register,
// which some MBC5 cartridges repurpose as a rumble-motor bit, is always
// decoded as RAM bank bit 3; this module has no rumble/haptics output.
type mbc5 struct {
	rom []byte
	ram []byte

	ramEnable bool
	romBank   uint16 // 9 bits
	ramBank   byte   // 4 bits
}

func newMBC5(rom []byte, ramSize int) *mbc5 {
	m := &mbc5{rom: rom, romBank: 1}
	if ramSize > 0 {
		m.ram = cart.InitializedSRAM(ramSize)
	}
	return m
}

func (m *mbc5) romBankCount() int { return len(m.rom) / 0x4000 }

func (m *mbc5) romAt(off uint32) uint8 {
	if len(m.rom) == 0 {
		return 0xFF
	}
	return m.rom[off%uint32(len(m.rom))]
}

func (m *mbc5) Read(addr uint32) uint8 {
	switch {
	case addr < 0x4000:
		return m.romAt(addr)
	case addr < 0x8000:
		bank := m.romBank
		if n := uint16(m.romBankCount()); n > 0 {
			bank %= n
		}
		return m.romAt(uint32(bank)*0x4000 + (addr - 0x4000))
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnable || m.ram == nil {
			return 0xFF
		}
		idx := uint32(m.ramBank&0x0F)*0x2000 + (addr - 0xA000)
		return m.ram[idx%uint32(len(m.ram))]
	default:
		return 0xFF
	}
}

func (m *mbc5) Write(addr uint32, value uint8) {
	switch {
	case addr < 0x2000:
		m.ramEnable = value&0x0F == 0x0A
	case addr < 0x3000:
		m.romBank = (m.romBank &^ 0xFF) | uint16(value)
	case addr < 0x4000:
		m.romBank = (m.romBank &^ 0x100) | uint16(value&0x01)<<8
	case addr < 0x6000:
		m.ramBank = value & 0x0F
	case addr >= 0xA000 && addr <= 0xBFFF && m.ramEnable && m.ram != nil:
		idx := uint32(m.ramBank&0x0F)*0x2000 + (addr - 0xA000)
		m.ram[idx%uint32(len(m.ram))] = value
	}
}

func (m *mbc5) SRAM() []byte { return m.ram }

func (m *mbc5) BankState() []byte {
	return []byte{byte(m.romBank), byte(m.romBank >> 8), m.ramBank, b2byte(m.ramEnable)}
}

func (m *mbc5) LoadBankState(state []byte) {
	if len(state) < 4 {
		return
	}
	m.romBank = uint16(state[0]) | uint16(state[1])<<8
	m.ramBank = state[2]
	m.ramEnable = state[3] != 0
}
