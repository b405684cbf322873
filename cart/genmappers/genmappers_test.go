package genmappers

import "testing"

func TestStandardLinearReadWithSRAMWindow(t *testing.T) {
	rom := make([]byte, 0x10000)
	rom[0x1234] = 0xAB
	m := NewStandard(rom, 0x10000, 0x200000, 0x20FFFF)

	if got := m.Read(0x1234); got != 0xAB {
		t.Fatalf("ROM read = %#x, want 0xAB", got)
	}

	m.Write(0x200010, 0x77)
	if got := m.Read(0x200010); got != 0x77 {
		t.Fatalf("SRAM window read = %#x, want 0x77", got)
	}
	// ROM writes outside the SRAM window are simply dropped, matching
	// real cartridge ROM being read-only.
	m.Write(0x000000, 0x99)
	if got := m.Read(0x000000); got == 0x99 {
		t.Fatalf("writes to the ROM region should not be observable")
	}
}

func TestStandardMirrorsShortROM(t *testing.T) {
	rom := make([]byte, 0x100)
	rom[0x10] = 0x5A
	m := NewStandard(rom, 0, 0, 0)
	if got := m.Read(0x110); got != 0x5A {
		t.Fatalf("ROM should mirror past its own length, got %#x", got)
	}
}

func TestStandardNoSRAMWhenSizeZero(t *testing.T) {
	m := NewStandard(make([]byte, 0x10000), 0, 0x200000, 0x20FFFF)
	if m.SRAM() != nil {
		t.Fatalf("expected no SRAM when sramSize is 0")
	}
}

func newSSF2ROM(banks int) []byte {
	rom := make([]byte, banks*ssf2BankSize)
	for b := 0; b < banks; b++ {
		rom[b*ssf2BankSize] = byte(b)
	}
	return rom
}

func TestSSF2DefaultBanksAreIdentity(t *testing.T) {
	s := NewSSF2(newSSF2ROM(8), 0)
	for window := 0; window < 8; window++ {
		addr := uint32(window) * ssf2BankSize
		if got := s.Read(addr); got != byte(window) {
			t.Fatalf("window %d default bank byte = %d, want %d", window, got, window)
		}
	}
}

func TestSSF2BankSelectRemaps(t *testing.T) {
	s := NewSSF2(newSSF2ROM(8), 0)
	s.Write(0xA130F1, 5) // window 0 -> bank 5
	if got := s.Read(0x000000); got != 5 {
		t.Fatalf("window 0 after remap = %d, want 5", got)
	}
	// Even addresses in the register range are not bank-select writes.
	s.Write(0xA130F2, 3)
	if got := s.Read(0x000000); got != 5 {
		t.Fatalf("even-address write to the register range should not change window 0, got %d", got)
	}
}

func TestSSF2SRAMWindow(t *testing.T) {
	s := NewSSF2(newSSF2ROM(8), 0x10000)
	s.Write(0x200000, 0x42)
	if got := s.Read(0x200000); got != 0x42 {
		t.Fatalf("SSF2 SRAM read = %#x, want 0x42", got)
	}
}

func TestSSF2BankStateRoundTrip(t *testing.T) {
	s := NewSSF2(newSSF2ROM(8), 0)
	s.Write(0xA130F1, 5)
	s.Write(0xA130F3, 6)
	saved := s.BankState()

	s2 := NewSSF2(newSSF2ROM(8), 0)
	s2.LoadBankState(saved)
	if got := s2.Read(0x000000); got != 5 {
		t.Fatalf("restored window 0 = %d, want 5", got)
	}
	if got := s2.Read(uint32(ssf2BankSize)); got != 6 {
		t.Fatalf("restored window 1 = %d, want 6", got)
	}
}
