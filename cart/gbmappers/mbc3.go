package gbmappers

import "github.com/retrocore/retrocore/cart"

// mbc3 implements MBC3: a 7-bit ROM bank register at $2000-$3FFF, a
// RAM-bank-or-RTC-register select at $4000-$5FFF (0-3 select RAM bank,
// $08-$0C select one of the five RTC registers), a latch-clock-data write
// sequence at $6000-$7FFF (0 then 1), and RAM-enable at $0000-$1FFF.
//
// The RTC registers are modeled at the same register-protocol fidelity
// cart/snescoproc's SRTC uses: the documented command/latch/read protocol
// works, but the registers do not advance from wall-clock time — a title
// that sets the clock and checks it much later in real time will not see
// it have advanced, since exact real-time peripheral accuracy is out of
// scope here.
type mbc3 struct {
	rom []byte
	ram []byte

	ramEnable bool
	romBank   byte // 7 bits
	ramBank   byte // 0-3 RAM bank, or $08-$0C RTC register select

	rtc       [5]byte // seconds, minutes, hours, day-low, day-high (halt/carry in bit7/6)
	rtcLatch  [5]byte
	latchPrev byte
}

func newMBC3(rom []byte, ramSize int) *mbc3 {
	m := &mbc3{rom: rom, romBank: 1}
	if ramSize > 0 {
		m.ram = cart.InitializedSRAM(ramSize)
	}
	return m
}

func (m *mbc3) romBankCount() int { return len(m.rom) / 0x4000 }

func (m *mbc3) romAt(off uint32) uint8 {
	if len(m.rom) == 0 {
		return 0xFF
	}
	return m.rom[off%uint32(len(m.rom))]
}

func (m *mbc3) Read(addr uint32) uint8 {
	switch {
	case addr < 0x4000:
		return m.romAt(addr)
	case addr < 0x8000:
		bank := m.romBank
		if n := byte(m.romBankCount()); n > 0 {
			bank %= n
		}
		return m.romAt(uint32(bank)*0x4000 + (addr - 0x4000))
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnable {
			return 0xFF
		}
		if m.ramBank >= 0x08 && m.ramBank <= 0x0C {
			return m.rtcLatch[m.ramBank-0x08]
		}
		if m.ram == nil {
			return 0xFF
		}
		idx := uint32(m.ramBank)*0x2000 + (addr - 0xA000)
		return m.ram[idx%uint32(len(m.ram))]
	default:
		return 0xFF
	}
}

func (m *mbc3) Write(addr uint32, value uint8) {
	switch {
	case addr < 0x2000:
		m.ramEnable = value&0x0F == 0x0A
	case addr < 0x4000:
		bank := value & 0x7F
		if bank == 0 {
			bank = 1
		}
		m.romBank = bank
	case addr < 0x6000:
		m.ramBank = value
	case addr < 0x8000:
		if m.latchPrev == 0 && value == 1 {
			m.rtcLatch = m.rtc
		}
		m.latchPrev = value
	case addr >= 0xA000 && addr <= 0xBFFF && m.ramEnable:
		if m.ramBank >= 0x08 && m.ramBank <= 0x0C {
			m.rtc[m.ramBank-0x08] = value
			return
		}
		if m.ram == nil {
			return
		}
		idx := uint32(m.ramBank)*0x2000 + (addr - 0xA000)
		m.ram[idx%uint32(len(m.ram))] = value
	}
}

func (m *mbc3) SRAM() []byte { return m.ram }

func (m *mbc3) BankState() []byte {
	state := []byte{m.romBank, m.ramBank, b2byte(m.ramEnable)}
	return append(state, m.rtc[:]...)
}

func (m *mbc3) LoadBankState(state []byte) {
	if len(state) < 8 {
		return
	}
	m.romBank, m.ramBank = state[0], state[1]
	m.ramEnable = state[2] != 0
	copy(m.rtc[:], state[3:8])
}
