package gbmappers

import "github.com/retrocore/retrocore/cart"

// romOnly models cartridge type $00/$08/$09: no bank switching, optional
// fixed external RAM.
type romOnly struct {
	rom []byte
	ram []byte
}

func newROMOnly(rom []byte, ramSize int) *romOnly {
	m := &romOnly{rom: rom}
	if ramSize > 0 {
		m.ram = cart.InitializedSRAM(ramSize)
	}
	return m
}

func (m *romOnly) Read(addr uint32) uint8 {
	switch {
	case addr < 0x8000:
		if int(addr) >= len(m.rom) {
			return 0xFF
		}
		return m.rom[addr]
	case addr >= 0xA000 && addr <= 0xBFFF && m.ram != nil:
		return m.ram[(addr-0xA000)%uint32(len(m.ram))]
	default:
		return 0xFF
	}
}

func (m *romOnly) Write(addr uint32, value uint8) {
	if addr >= 0xA000 && addr <= 0xBFFF && m.ram != nil {
		m.ram[(addr-0xA000)%uint32(len(m.ram))] = value
	}
}

func (m *romOnly) SRAM() []byte        { return m.ram }
func (m *romOnly) BankState() []byte   { return nil }
func (m *romOnly) LoadBankState([]byte) {}
