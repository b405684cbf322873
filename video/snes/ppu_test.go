package snes

import (
	"testing"

	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
)

func TestWriteRegisterINIDISPMasksBrightnessToFourBits(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x2100, 0xFF)
	if p.brightness != 0x0F {
		t.Fatalf("brightness = %#x, want 0x0F", p.brightness)
	}
}

func TestWriteRegisterBGModeMasksToThreeBits(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x2105, 0xFF)
	if p.bgMode != 7 {
		t.Fatalf("bgMode = %d, want 7", p.bgMode)
	}
}

func TestWriteRegisterTilemapBaseShiftsAndMasksEachBG(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x2107, 0xFF)
	p.WriteRegister(0x210A, 0x03)
	if p.bg[0].TilemapBase != 0xFC00 {
		t.Fatalf("bg[0].TilemapBase = %#x, want 0xFC00", p.bg[0].TilemapBase)
	}
	if p.bg[3].TilemapBase != 0 { // 0x03 & 0xFC == 0
		t.Fatalf("bg[3].TilemapBase = %#x, want 0", p.bg[3].TilemapBase)
	}
}

func TestWriteRegisterCHRBaseSplitsNibblesForBG1And2(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x210B, 0x21)
	if p.bg[0].CHRBase != 0x1000 {
		t.Fatalf("bg[0].CHRBase = %#x, want 0x1000", p.bg[0].CHRBase)
	}
	if p.bg[1].CHRBase != 0x2000 {
		t.Fatalf("bg[1].CHRBase = %#x, want 0x2000", p.bg[1].CHRBase)
	}
}

func TestWriteRegisterCHRBaseSplitsNibblesForBG3And4(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x210C, 0x21)
	if p.bg[2].CHRBase != 0x1000 {
		t.Fatalf("bg[2].CHRBase = %#x, want 0x1000", p.bg[2].CHRBase)
	}
	if p.bg[3].CHRBase != 0x2000 {
		t.Fatalf("bg[3].CHRBase = %#x, want 0x2000", p.bg[3].CHRBase)
	}
}

func TestWriteScrollBG1AlsoLatchesMode7Offset(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x210D, 5) // BG1 H-scroll / M7HOFS
	p.WriteRegister(0x210E, 7) // BG1 V-scroll / M7VOFS
	if p.bg[0].HScroll != 5 || p.bg[0].VScroll != 7 {
		t.Fatalf("bg[0] scroll = (%d,%d), want (5,7)", p.bg[0].HScroll, p.bg[0].VScroll)
	}
	if p.mode7.HOffset != 5 || p.mode7.VOffset != 7 {
		t.Fatalf("mode7 offset = (%d,%d), want (5,7)", p.mode7.HOffset, p.mode7.VOffset)
	}
}

func TestWriteScrollBG2DoesNotTouchMode7(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x210F, 9)  // BG2 H-scroll
	p.WriteRegister(0x2110, 11) // BG2 V-scroll
	if p.bg[1].HScroll != 9 || p.bg[1].VScroll != 11 {
		t.Fatalf("bg[1] scroll = (%d,%d), want (9,11)", p.bg[1].HScroll, p.bg[1].VScroll)
	}
	if p.mode7.HOffset != 0 || p.mode7.VOffset != 0 {
		t.Fatalf("BG2 scroll writes should not latch mode7 offsets")
	}
}

func TestWriteRegisterVMAINSelectsStepSize(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x2115, 0x80)
	if p.ports.vramIncOnHigh {
		t.Fatalf("bit 0x80 set should clear vramIncOnHigh")
	}
	if p.ports.vramStep != 1 {
		t.Fatalf("vramStep = %d, want 1", p.ports.vramStep)
	}
	p.WriteRegister(0x2115, 0x01)
	if !p.ports.vramIncOnHigh {
		t.Fatalf("bit 0x80 clear should set vramIncOnHigh")
	}
	if p.ports.vramStep != 32 {
		t.Fatalf("vramStep = %d, want 32", p.ports.vramStep)
	}
	p.WriteRegister(0x2115, 0x02)
	if p.ports.vramStep != 128 {
		t.Fatalf("vramStep = %d, want 128", p.ports.vramStep)
	}
}

func TestWriteRegisterVMADDLowThenHighSetsAddress(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x2116, 0x34)
	p.WriteRegister(0x2117, 0x12)
	if p.ports.vramAddr != 0x1234 {
		t.Fatalf("vramAddr = %#x, want 0x1234", p.ports.vramAddr)
	}
}

func TestWriteVRAMWordIncrementsOnlyOnTheConfiguredHalf(t *testing.T) {
	p := New(mclock.Divider(1))
	p.ports.vramAddr = 0x10
	p.ports.vramStep = 1
	p.ports.vramIncOnHigh = true

	p.WriteRegister(0x2118, 0xAB) // low byte, not the increment half
	if p.ports.vramAddr != 0x10 {
		t.Fatalf("vramAddr after low-byte write = %#x, want 0x10 (unchanged)", p.ports.vramAddr)
	}
	p.WriteRegister(0x2119, 0xCD) // high byte, the configured increment half
	if p.VRAM[0x10] != 0xCDAB {
		t.Fatalf("VRAM[0x10] = %#x, want 0xCDAB", p.VRAM[0x10])
	}
	if p.ports.vramAddr != 0x11 {
		t.Fatalf("vramAddr after high-byte write = %#x, want 0x11", p.ports.vramAddr)
	}
}

func TestWriteRegisterCGADDAndCGDATALowThenHighByte(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x2121, 0x05)
	p.WriteRegister(0x2122, 0xAB)
	p.WriteRegister(0x2122, 0x3C)
	if p.CGRAM[5] != 0x3CAB {
		t.Fatalf("CGRAM[5] = %#x, want 0x3CAB", p.CGRAM[5])
	}
	if p.ports.cgramAddr != 6 {
		t.Fatalf("cgramAddr should auto-advance to 6 after the high-byte write, got %d", p.ports.cgramAddr)
	}
}

func TestWriteOAMLowAddressPairOverwritesSameWordThenAdvances(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x2102, 0x03) // OAMADDL: oamAddr = 3<<1 = 6, oamLow = true
	p.WriteRegister(0x2104, 0x11)
	p.WriteRegister(0x2104, 0x22)
	if p.OAM[6] != 0x22 {
		t.Fatalf("OAM[6] = %#x, want 0x22 (the second write overwrites the first at this address)", p.OAM[6])
	}
	if p.ports.oamAddr != 7 {
		t.Fatalf("oamAddr = %d, want 7", p.ports.oamAddr)
	}
}

func TestWriteOAMHighAddressRegionAdvancesOnEveryWrite(t *testing.T) {
	p := New(mclock.Divider(1))
	p.ports.oamAddr = 512
	p.writeOAM(0x99)
	if p.OAM[512] != 0x99 {
		t.Fatalf("OAM[512] = %#x, want 0x99", p.OAM[512])
	}
	if p.ports.oamAddr != 513 {
		t.Fatalf("oamAddr = %d, want 513", p.ports.oamAddr)
	}
}

func TestLatchMode7TwoWriteSequenceProducesSigned16(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x211B, 0x34)
	p.WriteRegister(0x211B, 0x12)
	if p.mode7.A != 0x1234 {
		t.Fatalf("mode7.A = %#x, want 0x1234", p.mode7.A)
	}
}

func TestLatchMode7ProducesNegativeValueForHighBitSet(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x211B, 0x00)
	p.WriteRegister(0x211B, 0x80)
	if p.mode7.A != -32768 {
		t.Fatalf("mode7.A = %d, want -32768", p.mode7.A)
	}
}

func TestWriteMode7MatrixDispatchesBCD(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x211C, 0x00)
	p.WriteRegister(0x211C, 0x01)
	if p.mode7.B != 0x0100 {
		t.Fatalf("mode7.B = %#x, want 0x0100", p.mode7.B)
	}
}

func TestReadRegisterOAMDataReadsAndIncrements(t *testing.T) {
	p := New(mclock.Divider(1))
	p.OAM[3] = 0x55
	p.ports.oamAddr = 3
	if got := p.ReadRegister(0x2138); got != 0x55 {
		t.Fatalf("ReadRegister($2138) = %#x, want 0x55", got)
	}
	if p.ports.oamAddr != 4 {
		t.Fatalf("oamAddr after OAM read = %d, want 4", p.ports.oamAddr)
	}
}

func TestReadRegisterVRAMLowByteIncrementsWhenConfigured(t *testing.T) {
	p := New(mclock.Divider(1))
	p.VRAM[0x20] = 0xABCD
	p.ports.vramAddr = 0x20
	p.ports.vramStep = 1
	p.ports.vramIncOnHigh = false
	got := p.ReadRegister(0x2139)
	if got != 0xCD {
		t.Fatalf("ReadRegister($2139) = %#x, want 0xCD", got)
	}
	if p.ports.vramAddr != 0x21 {
		t.Fatalf("vramAddr after low-byte read = %#x, want 0x21", p.ports.vramAddr)
	}
}

func TestReadRegisterVRAMHighByteIncrementsWhenConfigured(t *testing.T) {
	p := New(mclock.Divider(1))
	p.VRAM[0x20] = 0xABCD
	p.ports.vramAddr = 0x20
	p.ports.vramStep = 1
	p.ports.vramIncOnHigh = true
	got := p.ReadRegister(0x213A)
	if got != 0xAB {
		t.Fatalf("ReadRegister($213A) = %#x, want 0xAB", got)
	}
	if p.ports.vramAddr != 0x21 {
		t.Fatalf("vramAddr after high-byte read = %#x, want 0x21", p.ports.vramAddr)
	}
}

func TestReadRegisterCGRAMLowThenHighByte(t *testing.T) {
	p := New(mclock.Divider(1))
	p.CGRAM[5] = 0x3CAB
	p.ports.cgramAddr = 5
	p.ports.cgramLow = true

	low := p.ReadRegister(0x213B)
	high := p.ReadRegister(0x213B)
	if low != 0xAB {
		t.Fatalf("low byte read = %#x, want 0xAB", low)
	}
	if high != 0x3C {
		t.Fatalf("high byte read = %#x, want 0x3C", high)
	}
	if p.ports.cgramAddr != 6 {
		t.Fatalf("cgramAddr after the high-byte read = %d, want 6", p.ports.cgramAddr)
	}
}

func TestWriteRegisterColorMathControlBits(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x2130, 0x40)
	if !p.colorMathHalf {
		t.Fatalf("CGWSEL bit 0x40 should set colorMathHalf")
	}
	p.WriteRegister(0x2131, 0x85)
	if p.colorMathAdd {
		t.Fatalf("CGADSUB bit 0x80 set should select subtract (colorMathAdd false)")
	}
	if p.colorMathEnable != 0x05 {
		t.Fatalf("colorMathEnable = %#x, want 0x05", p.colorMathEnable)
	}
}

func TestWriteRegisterTMAndTS(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0x212C, 0x1F)
	p.WriteRegister(0x212D, 0x0F)
	if p.mainScreen != 0x1F || p.subScreen != 0x0F {
		t.Fatalf("mainScreen/subScreen = %#x/%#x, want 0x1F/0x0F", p.mainScreen, p.subScreen)
	}
}

func TestStepDotFiresHIRQAtConfiguredDot(t *testing.T) {
	p := New(mclock.Divider(1))
	p.hIRQEnable = true
	p.hIRQDot = 10
	p.vIRQLine = -1
	fired := 0
	p.RaiseIRQ = func() { fired++ }
	p.dot, p.line = 10, 5
	p.stepDot()
	if fired != 1 {
		t.Fatalf("RaiseIRQ should fire once at the configured H-IRQ dot, fired %d times", fired)
	}
}

func TestStepDotFiresVIRQAtConfiguredLine(t *testing.T) {
	p := New(mclock.Divider(1))
	p.vIRQEnable = true
	p.vIRQLine = 5
	fired := 0
	p.RaiseIRQ = func() { fired++ }
	p.dot, p.line = 0, 5
	p.stepDot()
	if fired != 1 {
		t.Fatalf("RaiseIRQ should fire once at the configured V-IRQ line, fired %d times", fired)
	}
}

func TestStepDotFiresOnVBlankAtLine224(t *testing.T) {
	p := New(mclock.Divider(1))
	vblanks := 0
	p.OnVBlank = func() { vblanks++ }
	p.dot, p.line = 0, 224
	p.stepDot()
	if vblanks != 1 {
		t.Fatalf("OnVBlank should fire once at line 224 dot 0, fired %d times", vblanks)
	}
}

func TestStepDotWrapsFrameAndFiresOnFrame(t *testing.T) {
	p := New(mclock.Divider(1))
	frames := 0
	p.OnFrame = func(f video.Frame) { frames++ }
	p.dot, p.line = 340, 261
	p.stepDot()
	if p.dot != 0 || p.line != 0 {
		t.Fatalf("dot/line after wrap = %d/%d, want 0/0", p.dot, p.line)
	}
	if frames != 1 {
		t.Fatalf("OnFrame should fire once on the NTSC 262-line wrap, fired %d times", frames)
	}
}

func TestDecodeColorScalesByBrightness(t *testing.T) {
	p := New(mclock.Divider(1)) // brightness defaults to 0x0F (full)
	got := p.decodeColor(0x1F)
	if got.R != 255 || got.G != 0 || got.B != 0 {
		t.Fatalf("decodeColor(0x1F) at full brightness = %v, want {255 0 0}", got)
	}
	p.brightness = 0
	got = p.decodeColor(0x1F)
	if got.R != 0 || got.G != 0 || got.B != 0 {
		t.Fatalf("decodeColor(0x1F) at zero brightness = %v, want {0 0 0}", got)
	}
}

func TestSetModeAndSetPAL(t *testing.T) {
	p := New(mclock.Divider(1))
	p.SetMode(3)
	if p.bgMode != 3 {
		t.Fatalf("bgMode = %d, want 3", p.bgMode)
	}
	p.SetPAL(true)
	if !p.pal {
		t.Fatalf("pal should be true after SetPAL(true)")
	}
}

func TestBitsPerPixelModeTable(t *testing.T) {
	p := New(mclock.Divider(1))
	p.bgMode = 0
	if p.bitsPerPixel(1) != 2 {
		t.Fatalf("mode 0 bitsPerPixel(1) = %d, want 2", p.bitsPerPixel(1))
	}
	p.bgMode = 1
	if p.bitsPerPixel(1) != 4 || p.bitsPerPixel(3) != 2 {
		t.Fatalf("mode 1 bitsPerPixel(1)/(3) = %d/%d, want 4/2", p.bitsPerPixel(1), p.bitsPerPixel(3))
	}
	p.bgMode = 3
	if p.bitsPerPixel(1) != 8 || p.bitsPerPixel(2) != 2 {
		t.Fatalf("mode 3 bitsPerPixel(1)/(2) = %d/%d, want 8/2", p.bitsPerPixel(1), p.bitsPerPixel(2))
	}
	p.bgMode = 6
	if p.bitsPerPixel(1) != 4 {
		t.Fatalf("mode 6 bitsPerPixel(1) = %d, want 4", p.bitsPerPixel(1))
	}
}

func TestLayerCountModeTable(t *testing.T) {
	p := New(mclock.Divider(1))
	p.bgMode = 0
	if p.layerCount() != 4 {
		t.Fatalf("mode 0 layerCount() = %d, want 4", p.layerCount())
	}
	p.bgMode = 3
	if p.layerCount() != 2 {
		t.Fatalf("mode 3 layerCount() = %d, want 2", p.layerCount())
	}
	p.bgMode = 7
	if p.layerCount() != 1 {
		t.Fatalf("mode 7 layerCount() = %d, want 1", p.layerCount())
	}
}

func TestTilePixelDecodesTwoBitplanesForFourBPP(t *testing.T) {
	p := New(mclock.Divider(1))
	p.VRAM[0] = 0x8000 // plane 0 row 0: lo bit7 set
	p.VRAM[8] = 0x8000 // plane 1 row 0: lo bit7 set
	got := p.tilePixel(0, 0, 0, 0, 4)
	if got != 5 { // bit0 from plane0 | bit2 from plane1
		t.Fatalf("tilePixel(4bpp) = %d, want 5", got)
	}
}

func TestSignExtend13WrapsToNegativeAboveHalfRange(t *testing.T) {
	if got := signExtend13(0x1FFF); got != -1 {
		t.Fatalf("signExtend13(0x1FFF) = %d, want -1", got)
	}
	if got := signExtend13(0x1000); got != -4096 {
		t.Fatalf("signExtend13(0x1000) = %d, want -4096", got)
	}
	if got := signExtend13(0x0FFF); got != 4095 {
		t.Fatalf("signExtend13(0x0FFF) = %d, want 4095", got)
	}
}

func TestColorMathAppliesChecksTheBitForEachLayerKind(t *testing.T) {
	p := New(mclock.Divider(1))
	p.colorMathEnable = 0x20
	if !p.colorMathApplies(-2) {
		t.Fatalf("backdrop (-2) should apply with bit 0x20 set")
	}
	if p.colorMathApplies(-1) {
		t.Fatalf("sprite (-1) should not apply without bit 0x10")
	}
	p.colorMathEnable = 0x01
	if !p.colorMathApplies(1) {
		t.Fatalf("BG1 (layer 1) should apply with bit 0x01 set")
	}
	if p.colorMathApplies(2) {
		t.Fatalf("BG2 (layer 2) should not apply without bit 0x02")
	}
	if p.colorMathApplies(0) {
		t.Fatalf("layer 0 is not a valid layer kind and should never apply")
	}
}

func TestApplyColorMathAddsAndClampsToByteRange(t *testing.T) {
	p := New(mclock.Divider(1)) // brightness 0x0F
	p.CGRAM[0] = 0x1F           // sub color decodes to {255,0,0}
	p.colorMathAdd = true
	p.colorMathHalf = false
	got := p.applyColorMath(video.RGB24{R: 100, G: 100, B: 100}, 0, 0)
	if got.R != 255 || got.G != 100 || got.B != 100 {
		t.Fatalf("applyColorMath(add) = %v, want {255 100 100}", got)
	}
}

func TestApplyColorMathSubtractsAndClampsAtZero(t *testing.T) {
	p := New(mclock.Divider(1))
	p.CGRAM[0] = 0x1F
	p.colorMathAdd = false
	got := p.applyColorMath(video.RGB24{R: 100, G: 100, B: 100}, 0, 0)
	if got.R != 0 || got.G != 100 || got.B != 100 {
		t.Fatalf("applyColorMath(subtract) = %v, want {0 100 100}", got)
	}
}

func TestApplyColorMathHalvesWhenConfigured(t *testing.T) {
	p := New(mclock.Divider(1))
	p.CGRAM[0] = 0x1F
	p.colorMathAdd = true
	p.colorMathHalf = true
	got := p.applyColorMath(video.RGB24{R: 100, G: 100, B: 100}, 0, 0)
	if got.R != 177 || got.G != 50 || got.B != 50 {
		t.Fatalf("applyColorMath(add, half) = %v, want {177 50 50}", got)
	}
}
