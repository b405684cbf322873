package nesmappers

// cnrom (mapper 3) fixes PRG entirely and switches an 8KB CHR bank.
type cnrom struct {
	prg, chr []byte
	bank     uint8
	mirror   Mirror
}

func newCNROM(prg, chr []byte, chrRAM bool, mirror Mirror) *cnrom {
	return &cnrom{prg: prg, chr: chr, mirror: mirror}
}

func (m *cnrom) Read(addr uint32) uint8 {
	switch {
	case addr >= 0x8000:
		return m.prg[(addr-0x8000)%uint32(len(m.prg))]
	case addr < 0x2000:
		banks := len(m.chr) / 0x2000
		if banks == 0 {
			return 0
		}
		bank := int(m.bank) % banks
		return m.chr[bank*0x2000+int(addr)]
	default:
		return 0
	}
}

func (m *cnrom) Write(addr uint32, value uint8) {
	if addr >= 0x8000 {
		m.bank = value & 0x3
	}
}

// Mirror returns the header-fixed nametable mirroring mode.
func (m *cnrom) Mirror() Mirror { return m.mirror }

func (m *cnrom) SRAM() []byte      { return nil }
func (m *cnrom) BankState() []byte { return []byte{m.bank} }
func (m *cnrom) LoadBankState(state []byte) {
	if len(state) > 0 {
		m.bank = state[0]
	}
}
