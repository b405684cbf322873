package nesmappers

// uxrom (mapper 2) switches a 16KB PRG bank at $8000-$BFFF; $C000-$FFFF is
// permanently fixed to the last bank. CHR is the image's CHR-ROM, or 8KB
// of CHR-RAM when the image carries none, matching the scenario the names
// explicitly: "NES mapper 2 (UxROM) cartridge with PRG-RAM declared: reads
// of $6000-$7FFF return RAM contents, not open bus."
type uxrom struct {
	prg, chr []byte
	prgRAM   []byte
	chrRAM   bool
	bank     uint8
	mirror   Mirror
}

func newUxROM(prg, chr []byte, chrRAM bool, prgRAMSize int, mirror Mirror) *uxrom {
	m := &uxrom{prg: prg, chr: chr, chrRAM: chrRAM, mirror: mirror}
	if chrRAM && len(chr) == 0 {
		m.chr = make([]byte, 0x2000)
	}
	if prgRAMSize > 0 {
		m.prgRAM = make([]byte, prgRAMSize)
	}
	return m
}

func (m *uxrom) numBanks() int { return len(m.prg) / 0x4000 }

func (m *uxrom) Read(addr uint32) uint8 {
	switch {
	case addr >= 0x6000 && addr <= 0x7FFF:
		if m.prgRAM == nil {
			return 0
		}
		return m.prgRAM[(addr-0x6000)%uint32(len(m.prgRAM))]
	case addr >= 0x8000 && addr <= 0xBFFF:
		bank := int(m.bank) % m.numBanks()
		return m.prg[bank*0x4000+int(addr-0x8000)]
	case addr >= 0xC000:
		last := m.numBanks() - 1
		return m.prg[last*0x4000+int(addr-0xC000)]
	case addr < 0x2000:
		if len(m.chr) == 0 {
			return 0
		}
		return m.chr[addr%uint32(len(m.chr))]
	default:
		return 0
	}
}

func (m *uxrom) Write(addr uint32, value uint8) {
	switch {
	case addr >= 0x6000 && addr <= 0x7FFF && m.prgRAM != nil:
		m.prgRAM[(addr-0x6000)%uint32(len(m.prgRAM))] = value
	case addr >= 0x8000:
		m.bank = value
	case addr < 0x2000 && m.chrRAM:
		m.chr[addr%uint32(len(m.chr))] = value
	}
}

// Mirror returns the header-fixed nametable mirroring mode.
func (m *uxrom) Mirror() Mirror { return m.mirror }

func (m *uxrom) SRAM() []byte      { return m.prgRAM }
func (m *uxrom) BankState() []byte { return []byte{m.bank} }
func (m *uxrom) LoadBankState(state []byte) {
	if len(state) > 0 {
		m.bank = state[0]
	}
}
