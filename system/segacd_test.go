package system

import "testing"

func minimalSegaCDBIOS() []byte {
	return make([]byte, 0x20000)
}

func TestNewSegaCDConstructsWithoutDisc(t *testing.T) {
	s, err := NewSegaCD(minimalSegaCDBIOS(), nil, DefaultConfig())
	if err != nil {
		t.Fatalf("NewSegaCD: %v", err)
	}
	if s.mainCPU == nil || s.subCPU == nil || s.z80CPU == nil {
		t.Fatalf("expected main, sub, and Z80 CPUs to be constructed")
	}
	if !s.subHost.Halted() {
		t.Fatalf("sub-CPU should start halted (reset+busreq asserted) until the BIOS releases it")
	}
}

func TestNewSegaCDRejectsEmptyBIOS(t *testing.T) {
	if _, err := NewSegaCD(nil, nil, DefaultConfig()); err == nil {
		t.Fatalf("expected an error constructing a Sega CD core with no BIOS image")
	}
}

func TestSegaCDRunFrameAdvancesWithoutSinks(t *testing.T) {
	s, err := NewSegaCD(minimalSegaCDBIOS(), nil, DefaultConfig())
	if err != nil {
		t.Fatalf("NewSegaCD: %v", err)
	}
	s.SetSinks(nil, nil)

	for i := 0; i < 2; i++ {
		s.RunFrame()
	}

	frame := s.Frame()
	if frame.Width == 0 || frame.Height == 0 {
		t.Fatalf("VDP frame has zero dimension after RunFrame")
	}
}

func TestSegaCDSubCPUBusReqAndReset(t *testing.T) {
	s, err := NewSegaCD(minimalSegaCDBIOS(), nil, DefaultConfig())
	if err != nil {
		t.Fatalf("NewSegaCD: %v", err)
	}

	// Release reset (bit 0 set), keep busreq asserted (bit 1 set): still
	// halted. The halt change lands through a driver sync point, so one
	// tick of the driver applies it.
	s.writeGateArray(0x00, 0x03)
	s.driver.RunSlice(s.driver.MC() + 1)
	if !s.subHost.Halted() {
		t.Fatalf("sub-CPU should remain halted while BUSREQ is still asserted")
	}

	// Release busreq too (bit 1 clear): the sub-CPU should run.
	s.writeGateArray(0x00, 0x01)
	s.driver.RunSlice(s.driver.MC() + 1)
	if s.subHost.Halted() {
		t.Fatalf("sub-CPU should be released once both RESET and BUSREQ are clear")
	}
}

func TestSegaCDPRGRAMBankingAndWriteProtect(t *testing.T) {
	s, err := NewSegaCD(minimalSegaCDBIOS(), nil, DefaultConfig())
	if err != nil {
		t.Fatalf("NewSegaCD: %v", err)
	}

	// Select PRG RAM bank 1 and write through the main CPU's 128KB window.
	s.writeGateArray(0x02, 0x01)
	s.mainBus.Write8(0x020000, 0x42)
	if got := s.prgRAM[0x20000]; got != 0x42 {
		t.Fatalf("prgRAM[0x20000] = %#x, want 0x42 (bank 1 window write)", got)
	}

	// Now write-protect the low 0x200 bytes of PRG RAM and confirm a write
	// inside that range through the sub-CPU's unbanked view is dropped.
	s.writeGateArray(0x02, 0x01<<3)
	s.subBus.Write8(0x000010, 0x99)
	if got := s.prgRAM[0x10]; got == 0x99 {
		t.Fatalf("writeProtect did not block a write inside the protected range")
	}
}

func TestSegaCDCommPortsMirrorAcrossCPUs(t *testing.T) {
	s, err := NewSegaCD(minimalSegaCDBIOS(), nil, DefaultConfig())
	if err != nil {
		t.Fatalf("NewSegaCD: %v", err)
	}

	s.mainBus.Write8(0xA12010, 0x12)
	s.mainBus.Write8(0xA12011, 0x34)

	if got := s.subBus.Read8(0xFF8010); got != 0x12 {
		t.Fatalf("sub-CPU comm command high byte = %#x, want 0x12", got)
	}
	if got := s.subBus.Read8(0xFF8011); got != 0x34 {
		t.Fatalf("sub-CPU comm command low byte = %#x, want 0x34", got)
	}
}

func TestSegaCDBackupRAMFlushesWithoutBlocking(t *testing.T) {
	s, err := NewSegaCD(minimalSegaCDBIOS(), nil, DefaultConfig())
	if err != nil {
		t.Fatalf("NewSegaCD: %v", err)
	}
	s.backupRAM[0] = 0xAB
	s.FlushSRAM(t.TempDir() + "/backup.bin")
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
