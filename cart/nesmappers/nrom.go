package nesmappers

type nrom struct {
	prg, chr []byte
	prgRAM   []byte
	chrRAM   bool
	mirror   Mirror
}

func newNROM(prg, chr []byte, chrRAM bool, prgRAMSize int) *nrom {
	m := &nrom{prg: prg, chr: chr, chrRAM: chrRAM, mirror: MirrorHorizontal}
	if chrRAM && len(chr) == 0 {
		m.chr = make([]byte, 0x2000)
	}
	if prgRAMSize > 0 {
		m.prgRAM = make([]byte, prgRAMSize)
	}
	return m
}

// Read implements cart.Mapper over NROM's address space: $6000-$7FFF is
// optional PRG-RAM, $8000-$FFFF is PRG-ROM mirrored if the image is only
// 16KB, and the PPU's $0000-$1FFF pattern-table space reads CHR-ROM/RAM.
func (m *nrom) Read(addr uint32) uint8 {
	switch {
	case addr >= 0x6000 && addr <= 0x7FFF:
		if m.prgRAM == nil {
			return 0
		}
		return m.prgRAM[(addr-0x6000)%uint32(len(m.prgRAM))]
	case addr >= 0x8000:
		off := (addr - 0x8000) % uint32(len(m.prg))
		return m.prg[off]
	case addr < 0x2000:
		if len(m.chr) == 0 {
			return 0
		}
		return m.chr[addr%uint32(len(m.chr))]
	default:
		return 0
	}
}

func (m *nrom) Write(addr uint32, value uint8) {
	switch {
	case addr >= 0x6000 && addr <= 0x7FFF && m.prgRAM != nil:
		m.prgRAM[(addr-0x6000)%uint32(len(m.prgRAM))] = value
	case addr < 0x2000 && m.chrRAM:
		m.chr[addr%uint32(len(m.chr))] = value
	}
}

// Mirror returns the header-fixed nametable mirroring mode; NROM has no
// mirroring control of its own.
func (m *nrom) Mirror() Mirror { return m.mirror }

func (m *nrom) SRAM() []byte             { return m.prgRAM }
func (m *nrom) BankState() []byte        { return nil }
func (m *nrom) LoadBankState(_ []byte)   {}
