package snescart

import "github.com/retrocore/retrocore/cart"

// loROM implements the LoROM convention: each 32KB bank $00-$7D (mirrored
// at $80-$FF) maps to $8000-$FFFF of a 32KB ROM chunk, with battery SRAM
// (if any) appearing at $0000-$7FFF of banks $70-$7F (and their $F0-$FF
// mirrors), below the ROM half of those banks.
type loROM struct {
	rom  []byte
	sram []byte
}

func newLoROM(rom []byte, sramSize int) *loROM {
	m := &loROM{rom: rom}
	if sramSize > 0 {
		m.sram = cart.InitializedSRAM(sramSize)
	}
	return m
}

func (m *loROM) bankOffset(addr uint32) (bank uint32, off uint32) {
	bank = (addr >> 16) & 0x7F // collapse the $80-$FF mirror onto $00-$7F
	off = addr & 0xFFFF
	return
}

func (m *loROM) Read(addr uint32) uint8 {
	bank, off := m.bankOffset(addr)
	if m.sram != nil && bank >= 0x70 && off < 0x8000 {
		return m.sram[((bank-0x70)*0x8000+off)%uint32(len(m.sram))]
	}
	if off < 0x8000 {
		return 0 // banks $00-$3F's low half is system-register space, routed elsewhere by the System Core
	}
	romOff := bank*0x8000 + (off - 0x8000)
	if len(m.rom) == 0 {
		return 0
	}
	return m.rom[romOff%uint32(len(m.rom))]
}

func (m *loROM) Write(addr uint32, value uint8) {
	bank, off := m.bankOffset(addr)
	if m.sram != nil && bank >= 0x70 && off < 0x8000 {
		m.sram[((bank-0x70)*0x8000+off)%uint32(len(m.sram))] = value
	}
}

func (m *loROM) SRAM() []byte          { return m.sram }
func (m *loROM) BankState() []byte     { return nil }
func (m *loROM) LoadBankState([]byte) {}

// hiROM implements the HiROM convention: banks $40-$7D (mirrored at
// $C0-$FF) map a full 64KB ROM chunk per bank, and banks $00-$3F/$80-$BF
// additionally expose the same ROM at their own $8000-$FFFF half. SRAM (if
// any) lives in banks $20-$3F/$A0-$BF at $6000-$7FFF.
type hiROM struct {
	rom  []byte
	sram []byte
}

func newHiROM(rom []byte, sramSize int) *hiROM {
	m := &hiROM{rom: rom}
	if sramSize > 0 {
		m.sram = cart.InitializedSRAM(sramSize)
	}
	return m
}

func (m *hiROM) sramWindow(addr uint32) (ok bool, idx uint32) {
	bank := (addr >> 16) & 0x7F // collapse $A0-$BF onto $20-$3F only
	off := addr & 0xFFFF
	if bank >= 0x20 && bank <= 0x3F && off >= 0x6000 && off < 0x8000 {
		return true, (bank-0x20)*0x2000 + (off - 0x6000)
	}
	return false, 0
}

func (m *hiROM) Read(addr uint32) uint8 {
	if ok, idx := m.sramWindow(addr); ok && m.sram != nil {
		return m.sram[idx%uint32(len(m.sram))]
	}
	bank := (addr >> 16) & 0x3F
	off := addr & 0xFFFF
	romOff := bank*0x10000 + off
	if len(m.rom) == 0 {
		return 0
	}
	return m.rom[romOff%uint32(len(m.rom))]
}

func (m *hiROM) Write(addr uint32, value uint8) {
	if ok, idx := m.sramWindow(addr); ok && m.sram != nil {
		m.sram[idx%uint32(len(m.sram))] = value
	}
}

func (m *hiROM) SRAM() []byte          { return m.sram }
func (m *hiROM) BankState() []byte     { return nil }
func (m *hiROM) LoadBankState([]byte) {}
