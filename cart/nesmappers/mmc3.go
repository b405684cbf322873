package nesmappers

// mmc3 (mapper 4) implements the standard bank-register/offset-table
// structure and scanline IRQ counter: 8 bank registers selected by
// writeBankSelect's low 3 bits, two PRG modes and
// two CHR modes each resolved into an offset table, and an IRQ reload/
// counter pair clocked once per PPU A12 rising edge (approximated here as
// once per scanline via ClockScanline, called by the NES System Core).
type mmc3 struct {
	prg, chr []byte
	prgRAM   []byte
	chrRAM   bool

	prgMode, chrMode uint8
	register         uint8
	registers        [8]uint8
	prgOffsets       [4]int
	chrOffsets       [8]int

	reload    uint8
	counter   uint8
	irqEnable bool
	irqFlag   bool
	mirrorVertical bool
}

func newMMC3(prg, chr []byte, chrRAM bool, prgRAMSize int) *mmc3 {
	m := &mmc3{prg: prg, chr: chr, chrRAM: chrRAM}
	if chrRAM && len(chr) == 0 {
		m.chr = make([]byte, 0x2000)
	}
	if prgRAMSize > 0 {
		m.prgRAM = make([]byte, prgRAMSize)
	}
	m.updateOffsets()
	return m
}

func (m *mmc3) Read(addr uint32) uint8 {
	switch {
	case addr >= 0x6000 && addr <= 0x7FFF:
		if m.prgRAM == nil {
			return 0
		}
		return m.prgRAM[(addr-0x6000)%uint32(len(m.prgRAM))]
	case addr >= 0x8000:
		bank := (addr - 0x8000) / 0x2000
		off := (addr - 0x8000) % 0x2000
		idx := m.prgOffsets[bank] + int(off)
		return m.prg[idx%len(m.prg)]
	case addr < 0x2000:
		bank := addr / 0x0400
		off := addr % 0x0400
		idx := m.chrOffsets[bank] + int(off)
		if len(m.chr) == 0 {
			return 0
		}
		return m.chr[idx%len(m.chr)]
	default:
		return 0
	}
}

func (m *mmc3) Write(addr uint32, value uint8) {
	switch {
	case addr >= 0x6000 && addr <= 0x7FFF && m.prgRAM != nil:
		m.prgRAM[(addr-0x6000)%uint32(len(m.prgRAM))] = value
	case addr >= 0x8000:
		m.writeRegister(addr, value)
	case addr < 0x2000 && m.chrRAM:
		m.chr[addr%uint32(len(m.chr))] = value
	}
}

func (m *mmc3) writeRegister(address uint32, value byte) {
	switch {
	case address <= 0x9FFF && address%2 == 0:
		m.writeBankSelect(value)
	case address <= 0x9FFF:
		m.writeBankData(value)
	case address <= 0xBFFF && address%2 == 0:
		m.writeMirror(value)
	case address <= 0xBFFF:
		// PRG-RAM protect, not modeled.
	case address <= 0xDFFF && address%2 == 0:
		m.reload = value
	case address <= 0xDFFF:
		m.counter = 0
	case address <= 0xFFFF && address%2 == 0:
		m.irqEnable = false
		m.irqFlag = false
	default:
		m.irqEnable = true
	}
}

func (m *mmc3) writeBankSelect(value byte) {
	m.prgMode = (value >> 6) & 1
	m.chrMode = (value >> 7) & 1
	m.register = value & 7
	m.updateOffsets()
}

func (m *mmc3) writeBankData(value byte) {
	m.registers[m.register] = value
	m.updateOffsets()
}

func (m *mmc3) writeMirror(value byte) { m.mirrorVertical = value&1 == 0 }

func (m *mmc3) prgBankOffset(index int) int {
	banks := len(m.prg) / 0x2000
	if banks == 0 {
		return 0
	}
	if index >= 0x80 {
		index -= 0x100
	}
	index %= banks
	offset := index * 0x2000
	if offset < 0 {
		offset += len(m.prg)
	}
	return offset
}

func (m *mmc3) chrBankOffset(index int) int {
	if len(m.chr) == 0 {
		return 0
	}
	banks := len(m.chr) / 0x0400
	if banks == 0 {
		return 0
	}
	if index >= 0x80 {
		index -= 0x100
	}
	index %= banks
	offset := index * 0x0400
	if offset < 0 {
		offset += len(m.chr)
	}
	return offset
}

func (m *mmc3) updateOffsets() {
	switch m.prgMode {
	case 0:
		m.prgOffsets[0] = m.prgBankOffset(int(m.registers[6]))
		m.prgOffsets[1] = m.prgBankOffset(int(m.registers[7]))
		m.prgOffsets[2] = m.prgBankOffset(-2)
		m.prgOffsets[3] = m.prgBankOffset(-1)
	case 1:
		m.prgOffsets[0] = m.prgBankOffset(-2)
		m.prgOffsets[1] = m.prgBankOffset(int(m.registers[7]))
		m.prgOffsets[2] = m.prgBankOffset(int(m.registers[6]))
		m.prgOffsets[3] = m.prgBankOffset(-1)
	}
	switch m.chrMode {
	case 0:
		m.chrOffsets[0] = m.chrBankOffset(int(m.registers[0] & 0xFE))
		m.chrOffsets[1] = m.chrBankOffset(int(m.registers[0] | 0x01))
		m.chrOffsets[2] = m.chrBankOffset(int(m.registers[1] & 0xFE))
		m.chrOffsets[3] = m.chrBankOffset(int(m.registers[1] | 0x01))
		m.chrOffsets[4] = m.chrBankOffset(int(m.registers[2]))
		m.chrOffsets[5] = m.chrBankOffset(int(m.registers[3]))
		m.chrOffsets[6] = m.chrBankOffset(int(m.registers[4]))
		m.chrOffsets[7] = m.chrBankOffset(int(m.registers[5]))
	case 1:
		m.chrOffsets[0] = m.chrBankOffset(int(m.registers[2]))
		m.chrOffsets[1] = m.chrBankOffset(int(m.registers[3]))
		m.chrOffsets[2] = m.chrBankOffset(int(m.registers[4]))
		m.chrOffsets[3] = m.chrBankOffset(int(m.registers[5]))
		m.chrOffsets[4] = m.chrBankOffset(int(m.registers[0] & 0xFE))
		m.chrOffsets[5] = m.chrBankOffset(int(m.registers[0] | 0x01))
		m.chrOffsets[6] = m.chrBankOffset(int(m.registers[1] & 0xFE))
		m.chrOffsets[7] = m.chrBankOffset(int(m.registers[1] | 0x01))
	}
}

// ClockScanline advances the MMC3's IRQ counter once, matching the
// mapper's A12-edge-clocked scanline counter; the NES System Core calls
// this once per visible scanline rather than modeling individual PPU
// address-line transitions.
func (m *mmc3) ClockScanline() {
	if m.counter == 0 {
		m.counter = m.reload
	} else {
		m.counter--
	}
	if m.counter == 0 && m.irqEnable {
		m.irqFlag = true
	}
}

// IRQPending reports whether the scanline counter has asserted /IRQ.
func (m *mmc3) IRQPending() bool { return m.irqFlag }

// Mirror reports the mirroring bit last written via writeMirror.
func (m *mmc3) Mirror() Mirror {
	if m.mirrorVertical {
		return MirrorVertical
	}
	return MirrorHorizontal
}

func (m *mmc3) SRAM() []byte { return m.prgRAM }

func (m *mmc3) BankState() []byte {
	state := make([]byte, 0, 16)
	state = append(state, m.prgMode, m.chrMode, m.register)
	state = append(state, m.registers[:]...)
	state = append(state, m.reload, m.counter, boolByte(m.irqEnable), boolByte(m.irqFlag))
	return state
}

func (m *mmc3) LoadBankState(state []byte) {
	if len(state) < 15 {
		return
	}
	m.prgMode, m.chrMode, m.register = state[0], state[1], state[2]
	copy(m.registers[:], state[3:11])
	m.reload, m.counter = state[11], state[12]
	m.irqEnable, m.irqFlag = state[13] != 0, state[14] != 0
	m.updateOffsets()
}
