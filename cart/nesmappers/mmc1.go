package nesmappers

// mmc1 (mapper 1) implements the serial-shift-register control port at
// $8000-$FFFF (5 writes clocked by bit 0 + a reset-on-bit-7 latch), PRG
// modes (32KB fixed, or 16KB fixed-low/fixed-high + switchable), and CHR
// modes (8KB or 2x4KB).
type mmc1 struct {
	prg, chr []byte
	prgRAM   []byte
	chrRAM   bool

	shift      uint8
	shiftCount int

	control uint8 // mirror(1:0), prgMode(3:2), chrMode(4)
	chrBank [2]uint8
	prgBank uint8
}

func newMMC1(prg, chr []byte, chrRAM bool, prgRAMSize int) *mmc1 {
	m := &mmc1{prg: prg, chr: chr, chrRAM: chrRAM, control: 0x0C}
	if chrRAM && len(chr) == 0 {
		m.chr = make([]byte, 0x2000)
	}
	if prgRAMSize > 0 {
		m.prgRAM = make([]byte, prgRAMSize)
	}
	return m
}

func (m *mmc1) prgBanks16k() int { return len(m.prg) / 0x4000 }

func (m *mmc1) Read(addr uint32) uint8 {
	switch {
	case addr >= 0x6000 && addr <= 0x7FFF:
		if m.prgRAM == nil {
			return 0
		}
		return m.prgRAM[(addr-0x6000)%uint32(len(m.prgRAM))]
	case addr >= 0x8000:
		return m.readPRG(addr)
	case addr < 0x2000:
		return m.readCHR(addr)
	default:
		return 0
	}
}

func (m *mmc1) readPRG(addr uint32) uint8 {
	prgMode := (m.control >> 2) & 0x3
	off := int(addr - 0x8000)
	banks := m.prgBanks16k()
	switch prgMode {
	case 0, 1:
		bank := (int(m.prgBank) &^ 1) % banks
		return m.prg[bank*0x4000+off]
	case 2:
		if addr < 0xC000 {
			return m.prg[off]
		}
		bank := int(m.prgBank) % banks
		return m.prg[bank*0x4000+(off-0x4000)]
	default: // 3
		if addr < 0xC000 {
			bank := int(m.prgBank) % banks
			return m.prg[bank*0x4000+off]
		}
		last := banks - 1
		return m.prg[last*0x4000+(off-0x4000)]
	}
}

func (m *mmc1) readCHR(addr uint32) uint8 {
	if len(m.chr) == 0 {
		return 0
	}
	chrMode := (m.control >> 4) & 0x1
	if chrMode == 0 {
		banks := len(m.chr) / 0x2000
		if banks == 0 {
			banks = 1
		}
		bank := (int(m.chrBank[0]) >> 1) % banks
		return m.chr[bank*0x2000+int(addr)]
	}
	banks := len(m.chr) / 0x1000
	if banks == 0 {
		banks = 1
	}
	half := addr / 0x1000
	bank := int(m.chrBank[half]) % banks
	return m.chr[bank*0x1000+int(addr%0x1000)]
}

func (m *mmc1) Write(addr uint32, value uint8) {
	switch {
	case addr >= 0x6000 && addr <= 0x7FFF && m.prgRAM != nil:
		m.prgRAM[(addr-0x6000)%uint32(len(m.prgRAM))] = value
	case addr >= 0x8000:
		m.writeSerial(addr, value)
	case addr < 0x2000 && m.chrRAM:
		m.chr[addr%uint32(len(m.chr))] = value
	}
}

func (m *mmc1) writeSerial(addr uint32, value uint8) {
	if value&0x80 != 0 {
		m.shift = 0
		m.shiftCount = 0
		m.control |= 0x0C
		return
	}
	m.shift |= (value & 1) << m.shiftCount
	m.shiftCount++
	if m.shiftCount < 5 {
		return
	}
	reg := m.shift
	m.shift = 0
	m.shiftCount = 0
	switch {
	case addr <= 0x9FFF:
		m.control = reg
	case addr <= 0xBFFF:
		m.chrBank[0] = reg
	case addr <= 0xDFFF:
		m.chrBank[1] = reg
	default:
		m.prgBank = reg & 0xF
	}
}

// Mirror translates the control register's low 2 bits into the shared
// Mirror enum: 0/1 select the single-screen modes, 2 is vertical, 3 is
// horizontal.
func (m *mmc1) Mirror() Mirror {
	switch m.control & 0x3 {
	case 0:
		return MirrorSingleLower
	case 1:
		return MirrorSingleUpper
	case 2:
		return MirrorVertical
	default:
		return MirrorHorizontal
	}
}

func (m *mmc1) SRAM() []byte { return m.prgRAM }
func (m *mmc1) BankState() []byte {
	return []byte{m.control, m.chrBank[0], m.chrBank[1], m.prgBank, m.shift, uint8(m.shiftCount)}
}
func (m *mmc1) LoadBankState(state []byte) {
	if len(state) < 6 {
		return
	}
	m.control, m.chrBank[0], m.chrBank[1], m.prgBank, m.shift = state[0], state[1], state[2], state[3], state[4]
	m.shiftCount = int(state[5])
}
