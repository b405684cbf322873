package snescart

import "testing"

func TestLoadSNESRejectsShortImage(t *testing.T) {
	if _, _, err := LoadSNES(make([]byte, 0x4000)); err == nil {
		t.Fatalf("expected an error for an image shorter than one 32KB bank")
	}
}

func TestLoadSNESStripsCopierHeader(t *testing.T) {
	data := make([]byte, 0x200+0x8000)
	data[0x200+0x10] = 0xAB // first byte of the stripped image's ROM body
	m, _, err := LoadSNES(data)
	if err != nil {
		t.Fatalf("LoadSNES: %v", err)
	}
	// LoROM bank 0, offset $8010 maps to ROM offset $0010.
	if got := m.Read(0x8010); got != 0xAB {
		t.Fatalf("copier header was not stripped: byte = %#x, want 0xAB", got)
	}
}

func TestLoadSNESDefaultsToLoROMOnAllZero(t *testing.T) {
	m, coproc, err := LoadSNES(make([]byte, 0x8000))
	if err != nil {
		t.Fatalf("LoadSNES: %v", err)
	}
	if _, ok := m.(*loROM); !ok {
		t.Fatalf("an all-zero image should default to LoROM, got %T", m)
	}
	if coproc != nil {
		t.Fatalf("cartridge type 0x00 should have no coprocessor")
	}
}

func TestDetectMappingPrefersValidHiROMChecksum(t *testing.T) {
	data := make([]byte, 0x10000)
	// Build a valid checksum/complement pair at the HiROM header offset
	// and set the map-mode byte to the HiROM convention so both scoring
	// criteria agree.
	data[hiHeaderOff+0x15] = 0x01 // HiROM map-mode bit
	data[hiHeaderOff+0x1E] = 0x34
	data[hiHeaderOff+0x1F] = 0x12
	data[hiHeaderOff+0x1C] = 0xCB
	data[hiHeaderOff+0x1D] = 0xED // complement of 0x1234

	mapping, off := detectMapping(data)
	if mapping != HiROM {
		t.Fatalf("detectMapping = %v, want HiROM", mapping)
	}
	if off != hiHeaderOff {
		t.Fatalf("offset = %#x, want HiROM header offset", off)
	}
}

func TestCoprocessorForKnownCartTypes(t *testing.T) {
	cases := map[byte]bool{
		0x00: false, // plain ROM
		0x13: true,  // Super FX
		0x32: true,  // SA-1
		0x03: true,  // DSP-1
		0x55: true,  // S-RTC
		0xF3: true,  // Cx4
		0xF5: true,  // SPC7110
		0xF6: true,  // ST010/ST011
		0x93: true,  // S-DD1
	}
	for cartType, wantCoproc := range cases {
		got := coprocessorFor(cartType, nil) != nil
		if got != wantCoproc {
			t.Fatalf("coprocessorFor(%#x) present = %v, want %v", cartType, got, wantCoproc)
		}
	}
}

func TestLoROMReadWriteAndBatteryWindow(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x10] = 0x42
	m := newLoROM(rom, 0x8000)

	if got := m.Read(0x8010); got != 0x42 {
		t.Fatalf("bank 0 ROM byte = %#x, want 0x42", got)
	}

	m.Write(0x700000, 0x99) // bank $70, SRAM window
	if got := m.Read(0x700000); got != 0x99 {
		t.Fatalf("SRAM round trip = %#x, want 0x99", got)
	}
}

func TestLoROMMirrorsHighBanks(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x10] = 0x7B
	m := newLoROM(rom, 0)
	if got := m.Read(0x808010); got != 0x7B {
		t.Fatalf("bank $80 should mirror bank $00, got %#x", got)
	}
}

func TestHiROMReadAndSRAMWindow(t *testing.T) {
	rom := make([]byte, 0x10000)
	rom[0x10] = 0x5C
	m := newHiROM(rom, 0x2000)

	if got := m.Read(0x400010); got != 0x5C {
		t.Fatalf("bank $40 ROM byte = %#x, want 0x5C", got)
	}

	m.Write(0x206000, 0x21)
	if got := m.Read(0x206000); got != 0x21 {
		t.Fatalf("SRAM round trip = %#x, want 0x21", got)
	}
}

func TestHiROMExposesSameROMInLowHalf(t *testing.T) {
	rom := make([]byte, 0x10000)
	rom[0x10] = 0x5C
	m := newHiROM(rom, 0)
	if got := m.Read(0x000010); got != m.Read(0x400010) {
		t.Fatalf("bank $00 should expose the same ROM chunk as bank $40, got %#x vs %#x", got, m.Read(0x400010))
	}
}
