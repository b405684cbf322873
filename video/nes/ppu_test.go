package nes

import (
	"testing"

	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
)

func TestReadRegisterStatusClearsVBlankAndScrollLatch(t *testing.T) {
	p := New(mclock.Divider(1))
	p.status = 0x80
	p.openBus = 0xFF
	p.scrollLatch = true

	got := p.ReadRegister(0x2002)
	if got != 0x9F { // status(0x80) | (openBus&0x1F == 0x1F)
		t.Fatalf("ReadRegister($2002) = %#x, want 0x9F", got)
	}
	if p.status&0x80 != 0 {
		t.Fatalf("reading $2002 should clear the VBlank flag")
	}
	if p.scrollLatch {
		t.Fatalf("reading $2002 should reset the scroll/addr write latch")
	}
}

func TestReadRegisterOAMDataReadsAtOamAddrWithoutIncrement(t *testing.T) {
	p := New(mclock.Divider(1))
	p.oamAddr = 3
	p.OAM[3] = 0x77
	if got := p.ReadRegister(0x2004); got != 0x77 {
		t.Fatalf("ReadRegister($2004) = %#x, want 0x77", got)
	}
	if p.oamAddr != 3 {
		t.Fatalf("reading OAMDATA should not advance oamAddr, got %d", p.oamAddr)
	}
}

func TestReadRegisterVRAMDataReadsAndIncrements(t *testing.T) {
	p := New(mclock.Divider(1))
	p.vramAddr.Write(0x3F05)
	p.vramAddr.Commit()
	p.Palette[5] = 0x2A

	got := p.ReadRegister(0x2007)
	if got != 0x2A {
		t.Fatalf("ReadRegister($2007) = %#x, want 0x2A", got)
	}
	if p.vramAddr.Applied != 0x3F06 {
		t.Fatalf("vramAddr.Applied = %#x, want 0x3F06", p.vramAddr.Applied)
	}
	if p.openBus != 0x2A {
		t.Fatalf("openBus should latch the value just read")
	}
}

func TestWriteRegisterOAMDataIncrementsOamAddr(t *testing.T) {
	p := New(mclock.Divider(1))
	p.oamAddr = 10
	p.WriteRegister(0x2004, 0x55)
	if p.OAM[10] != 0x55 {
		t.Fatalf("OAM[10] = %#x, want 0x55", p.OAM[10])
	}
	if p.oamAddr != 11 {
		t.Fatalf("oamAddr after a write should advance, got %d", p.oamAddr)
	}
}

func TestWriteRegisterScrollLatchesFineXOnFirstWriteOnly(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x2005, 0x05)
	p.WriteRegister(0x2005, 0xFF)
	if p.fineX != 5 {
		t.Fatalf("fineX = %d, want 5 (second write is the Y-scroll half, ignored by fineX)", p.fineX)
	}
	if p.scrollLatch {
		t.Fatalf("scrollLatch should be back to false after two writes")
	}
}

func TestWriteRegisterAddrLatchesHighThenLowAndCommits(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x2006, 0x3F)
	p.WriteRegister(0x2006, 0x05)
	if p.vramAddr.Applied != 0x3F05 {
		t.Fatalf("vramAddr.Applied = %#x, want 0x3F05", p.vramAddr.Applied)
	}
}

func TestWriteRegisterVRAMDataWritesAndIncrements(t *testing.T) {
	p := New(mclock.Divider(1))
	p.vramAddr.Write(0x3F05)
	p.vramAddr.Commit()
	p.WriteRegister(0x2007, 0x11)
	if p.Palette[5] != 0x11 {
		t.Fatalf("Palette[5] = %#x, want 0x11", p.Palette[5])
	}
	if p.vramAddr.Applied != 0x3F06 {
		t.Fatalf("vramAddr.Applied after write = %#x, want 0x3F06", p.vramAddr.Applied)
	}
}

func TestAddrIncrementUsesCtrlBit2(t *testing.T) {
	p := New(mclock.Divider(1))
	p.ctrl = 0x04
	if got := p.addrIncrement(); got != 32 {
		t.Fatalf("addrIncrement() with ctrl bit 2 set = %d, want 32", got)
	}
	p.ctrl = 0x00
	if got := p.addrIncrement(); got != 1 {
		t.Fatalf("addrIncrement() with ctrl bit 2 clear = %d, want 1", got)
	}
}

func TestStepDotSetsVBlankAndFiresNMIAtLine241Dot1(t *testing.T) {
	p := New(mclock.Divider(1))
	p.ctrl = 0x80
	nmis := 0
	p.NMI = func() { nmis++ }
	p.line, p.dot = 241, 1
	p.stepDot()
	if p.status&0x80 == 0 {
		t.Fatalf("VBlank flag should be set at line 241 dot 1")
	}
	if nmis != 1 {
		t.Fatalf("NMI should fire exactly once, fired %d times", nmis)
	}
}

func TestStepDotClearsStatusFlagsAtPrerenderLine(t *testing.T) {
	p := New(mclock.Divider(1))
	p.status = 0xE0
	p.line, p.dot = 261, 1
	p.stepDot()
	if p.status != 0 {
		t.Fatalf("status = %#x, want 0 (VBlank/sprite-0/overflow cleared at the prerender line)", p.status)
	}
}

func TestStepDotWrapsLineAndFiresOnFrame(t *testing.T) {
	p := New(mclock.Divider(1))
	frames := 0
	p.OnFrame = func(f video.Frame) { frames++ }
	p.dot, p.line = 340, 261
	p.stepDot()
	if p.dot != 0 || p.line != 0 {
		t.Fatalf("dot/line after wrap = %d/%d, want 0/0", p.dot, p.line)
	}
	if frames != 1 {
		t.Fatalf("OnFrame should fire exactly once, fired %d times", frames)
	}
}

func TestStepDotResetsOamAddrAndFiresOnScanlineAtVisibleLineStart(t *testing.T) {
	p := New(mclock.Divider(1))
	p.oamAddr = 77
	p.line, p.dot = 5, 0
	scanline := -1
	p.OnScanline = func(l int) { scanline = l }
	p.stepDot()
	if p.oamAddr != 0 {
		t.Fatalf("oamAddr should reset to 0 at the start of a visible line, got %d", p.oamAddr)
	}
	if scanline != 5 {
		t.Fatalf("OnScanline should fire with line=5, got %d", scanline)
	}
}

func TestMirrorUsesNametableMirrorCallbackWhenSet(t *testing.T) {
	p := New(mclock.Divider(1))
	p.NametableMirror = func(addr uint16) uint16 { return 0x1234 }
	if got := p.mirror(0x2000); got != 0x1234&0x7FF {
		t.Fatalf("mirror() = %#x, want %#x", got, 0x1234&0x7FF)
	}
}

func TestMirrorFallsBackToDirectMaskWithoutCallback(t *testing.T) {
	p := New(mclock.Divider(1))
	if got := p.mirror(0x2ABC); got != 0x2ABC&0x7FF {
		t.Fatalf("mirror() = %#x, want %#x", got, 0x2ABC&0x7FF)
	}
}

func TestReadVRAMRoutesPatternTableThroughCHRRead(t *testing.T) {
	p := New(mclock.Divider(1))
	p.CHRRead = func(addr uint16) byte { return 0x42 }
	if got := p.readVRAM(0x0010); got != 0x42 {
		t.Fatalf("readVRAM(pattern table) = %#x, want 0x42", got)
	}
}

func TestWriteVRAMRoutesPatternTableThroughCHRWrite(t *testing.T) {
	p := New(mclock.Divider(1))
	var capturedAddr uint16
	var capturedV byte
	p.CHRWrite = func(addr uint16, v byte) { capturedAddr, capturedV = addr, v }
	p.writeVRAM(0x0020, 0x99)
	if capturedAddr != 0x0020 || capturedV != 0x99 {
		t.Fatalf("writeVRAM(pattern table) forwarded (%#x,%#x), want (0x0020,0x99)", capturedAddr, capturedV)
	}
}

func TestDMCDMAStealReturnsThreeOrFourCycles(t *testing.T) {
	if got := DMCDMASteal(true); got != 3 {
		t.Fatalf("DMCDMASteal(true) = %d, want 3", got)
	}
	if got := DMCDMASteal(false); got != 4 {
		t.Fatalf("DMCDMASteal(false) = %d, want 4", got)
	}
}

func TestDecodePaletteEntryMirrorsBackgroundColorEntries(t *testing.T) {
	p := New(mclock.Divider(1))
	p.Palette[0] = 5
	p.Palette[0x10] = 9 // should be ignored: $10 mirrors to entry 0
	got := p.decodePaletteEntry(0x10)
	if got != nesPalette[5] {
		t.Fatalf("decodePaletteEntry(0x10) = %v, want nesPalette[5]=%v", got, nesPalette[5])
	}
}

func TestDecodePaletteEntryAppliesGrayscaleMask(t *testing.T) {
	p := New(mclock.Divider(1))
	p.mask = 0x01
	p.Palette[2] = 1 // nesPalette[1] = {0, 30, 116}
	got := p.decodePaletteEntry(2)
	if got.R != 30 || got.G != 30 || got.B != 30 {
		t.Fatalf("decodePaletteEntry with grayscale mask = %v, want {30 30 30}", got)
	}
}

func TestTilePixelCombinesLowAndHighBitplanes(t *testing.T) {
	p := New(mclock.Divider(1))
	p.CHRRead = func(addr uint16) byte {
		switch addr {
		case 0:
			return 0xF0
		case 8:
			return 0x0F
		}
		return 0
	}
	if got := p.tilePixel(0, 0, 0, 0); got != 1 {
		t.Fatalf("tilePixel px=0 = %d, want 1", got)
	}
	if got := p.tilePixel(0, 0, 4, 0); got != 2 {
		t.Fatalf("tilePixel px=4 = %d, want 2", got)
	}
}
