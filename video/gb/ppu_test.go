package gb

import (
	"testing"

	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
)

func TestStepDotLCDOffDoesNotAdvanceMode(t *testing.T) {
	p := New(mclock.Divider(1))
	p.lcdc = 0x00
	p.mode = ModeOAM
	p.stepDot()
	if p.modeClock != 0 {
		t.Fatalf("modeClock should not advance while the LCD is off")
	}
	if p.mode != ModeOAM {
		t.Fatalf("mode should not change while the LCD is off")
	}
}

func TestStepDotCompletesOneFullLineAndAdvancesLY(t *testing.T) {
	p := New(mclock.Divider(1))
	p.lcdc = 0x80
	for i := 0; i < dotsPerLine; i++ {
		p.stepDot()
	}
	if p.mode != ModeOAM {
		t.Fatalf("mode after one full line = %d, want ModeOAM", p.mode)
	}
	if p.ly != 1 {
		t.Fatalf("ly after one full line = %d, want 1", p.ly)
	}
}

func TestStepDotEntersVBlankAtLine144(t *testing.T) {
	p := New(mclock.Divider(1))
	p.lcdc = 0x80
	vblanks, frames := 0, 0
	p.RaiseVBlank = func() { vblanks++ }
	p.OnFrame = func(f video.Frame) { frames++ }
	for i := 0; i < screenHeight*dotsPerLine; i++ {
		p.stepDot()
	}
	if p.mode != ModeVBlank {
		t.Fatalf("mode at line 144 = %d, want ModeVBlank", p.mode)
	}
	if int(p.ly) != screenHeight {
		t.Fatalf("ly = %d, want %d", p.ly, screenHeight)
	}
	if vblanks != 1 {
		t.Fatalf("RaiseVBlank should fire exactly once, fired %d times", vblanks)
	}
	if frames != 1 {
		t.Fatalf("OnFrame should fire exactly once, fired %d times", frames)
	}
}

func TestStepDotWrapsToOAMAfterTotalLines(t *testing.T) {
	p := New(mclock.Divider(1))
	p.lcdc = 0x80
	for i := 0; i < totalLines*dotsPerLine; i++ {
		p.stepDot()
	}
	if p.mode != ModeOAM {
		t.Fatalf("mode after a full totalLines sweep = %d, want ModeOAM", p.mode)
	}
	if p.ly != 0 {
		t.Fatalf("ly after wrapping = %d, want 0", p.ly)
	}
}

func TestWriteRegisterSTATPreservesLowThreeBits(t *testing.T) {
	p := New(mclock.Divider(1))
	p.stat = 0x07
	p.WriteRegister(0xFF41, 0xFF)
	if p.stat != 0xFF {
		t.Fatalf("stat = %#x, want 0xFF", p.stat)
	}
	p2 := New(mclock.Divider(1))
	p2.stat = 0x00
	p2.WriteRegister(0xFF41, 0xFF)
	if p2.stat&0x07 != 0 {
		t.Fatalf("a STAT write's low 3 bits should never take effect, got %#x", p2.stat&0x07)
	}
}

func TestWriteRegisterLYCTriggersImmediateCheck(t *testing.T) {
	p := New(mclock.Divider(1))
	p.ly = 5
	p.WriteRegister(0xFF45, 5)
	if p.stat&0x04 == 0 {
		t.Fatalf("writing LYC equal to the current LY should set the coincidence bit immediately")
	}
}

func TestUpdateSTATLineFiresOnlyOnRisingEdge(t *testing.T) {
	p := New(mclock.Divider(1))
	p.stat = 0x20 // mode-2 (OAM) select
	p.mode = ModeOAM
	count := 0
	p.RaiseSTAT = func() { count++ }

	p.updateSTATLine()
	if count != 1 {
		t.Fatalf("expected RaiseSTAT to fire once on the rising edge, fired %d times", count)
	}
	p.updateSTATLine()
	if count != 1 {
		t.Fatalf("RaiseSTAT should not fire again while the condition stays true, fired %d times total", count)
	}
}

func TestReadRegisterSTATAlwaysHasTopBitSet(t *testing.T) {
	p := New(mclock.Divider(1))
	p.stat = 0x00
	if got := p.ReadRegister(0xFF41); got != 0x80 {
		t.Fatalf("ReadRegister($FF41) = %#x, want 0x80", got)
	}
}

func TestWriteRegisterBGPaletteDecodesFourFields(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0xFF47, 0xE4) // the identity palette 11 10 01 00
	want := [4]byte{0, 1, 2, 3}
	if p.bgPalette != want {
		t.Fatalf("bgPalette = %v, want %v", p.bgPalette, want)
	}
}

func TestCGBPaletteWriteLowThenHighWithAutoIncrement(t *testing.T) {
	p := New(mclock.Divider(1))
	p.WriteRegister(0xFF68, 0x80) // BCPS: auto-increment on, index 0
	p.WriteRegister(0xFF69, 0x34)
	p.WriteRegister(0xFF69, 0x12)
	if p.cgbBGPal[0][0] != 0x1234 {
		t.Fatalf("cgbBGPal[0][0] = %#x, want 0x1234", p.cgbBGPal[0][0])
	}
	if p.bcps != 0x82 {
		t.Fatalf("bcps after two auto-incremented writes = %#x, want 0x82", p.bcps)
	}
}

func TestReadRegisterVRAMBankMasksUnusedBits(t *testing.T) {
	p := New(mclock.Divider(1))
	p.VRAMBank = 1
	if got := p.ReadRegister(0xFF4F); got != 0xFF {
		t.Fatalf("ReadRegister($FF4F) = %#x, want 0xFF", got)
	}
	p.VRAMBank = 0
	if got := p.ReadRegister(0xFF4F); got != 0xFE {
		t.Fatalf("ReadRegister($FF4F) = %#x, want 0xFE", got)
	}
}

func TestBeginAndEndHDMA(t *testing.T) {
	p := New(mclock.Divider(1))
	p.BeginHDMA(5)
	if !p.hdmaActive || p.HDMABlocksRemaining() != 5 {
		t.Fatalf("BeginHDMA should activate HDMA with the given block count")
	}
	p.EndHDMA()
	if p.hdmaActive {
		t.Fatalf("EndHDMA should clear hdmaActive")
	}
}

func TestDecodeDMGPaletteExtractsFourTwoBitFields(t *testing.T) {
	got := decodeDMGPalette(0xE4)
	want := [4]byte{0, 1, 2, 3}
	if got != want {
		t.Fatalf("decodeDMGPalette(0xE4) = %v, want %v", got, want)
	}
}

func TestTileDataAddrSignedWrapsNegativeTileNumbers(t *testing.T) {
	if got := tileDataAddr(0xFF, true); got != 0x8FF0 {
		t.Fatalf("tileDataAddr(0xFF, signed) = %#x, want 0x8FF0", got)
	}
}

func TestTileDataAddrUnsignedIsLinear(t *testing.T) {
	if got := tileDataAddr(5, false); got != 0x8050 {
		t.Fatalf("tileDataAddr(5, unsigned) = %#x, want 0x8050", got)
	}
}

func TestTileRowPixelCombinesLowAndHighBitplanes(t *testing.T) {
	p := New(mclock.Divider(1))
	p.VRAM[0] = 0xF0 // bitplane lo: 11110000
	p.VRAM[1] = 0x0F // bitplane hi: 00001111
	if got := p.tileRowPixel(0x8000, 0, 0, 0); got != 1 {
		t.Fatalf("tileRowPixel px=0 = %d, want 1", got)
	}
	if got := p.tileRowPixel(0x8000, 4, 0, 0); got != 2 {
		t.Fatalf("tileRowPixel px=4 = %d, want 2", got)
	}
}

func TestShadeDMGModeIndexesThroughPaletteRegister(t *testing.T) {
	p := New(mclock.Divider(1))
	p.cgbMode = false
	got := p.shade(2, [4]byte{0, 1, 2, 3}, 0, false)
	if got != dmgShades[2] {
		t.Fatalf("shade(2,...) = %v, want %v", got, dmgShades[2])
	}
}

func TestShadeCGBModeDecodesRGB555FromPaletteRAM(t *testing.T) {
	p := New(mclock.Divider(1))
	p.cgbMode = true
	p.cgbBGPal[0][1] = 0x1F // red channel maxed
	got := p.shade(1, [4]byte{}, 0, false)
	if got != decodeGBCRGB555(0x1F) {
		t.Fatalf("shade in CGB mode = %v, want %v", got, decodeGBCRGB555(0x1F))
	}
}

func TestDecodeGBCRGB555ExpandsFiveBitChannelsToEight(t *testing.T) {
	red := decodeGBCRGB555(0x1F)
	if red.R != 255 || red.G != 0 || red.B != 0 {
		t.Fatalf("decodeGBCRGB555(0x1F) = %v, want {255 0 0}", red)
	}
	green := decodeGBCRGB555(0x1F << 5)
	if green.R != 0 || green.G != 255 || green.B != 0 {
		t.Fatalf("decodeGBCRGB555(0x3E0) = %v, want {0 255 0}", green)
	}
}
