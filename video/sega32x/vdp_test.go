package sega32x

import (
	"testing"

	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
)

func TestWriteFBAndReadFBTargetTheNonDisplayedBuffer(t *testing.T) {
	v := New(mclock.Divider(1))
	v.WriteFB(5, 0x42)
	if got := v.ReadFB(5); got != 0x42 {
		t.Fatalf("ReadFB(5) = %#x, want 0x42", got)
	}
}

func TestBeginAutoFillInitializesState(t *testing.T) {
	v := New(mclock.Divider(1))
	v.display = 1
	v.BeginAutoFill(0x10, 0x1234, 7)
	if !v.autoFillActive {
		t.Fatalf("BeginAutoFill should set autoFillActive")
	}
	if v.autoFillAddr != 0x10 || v.autoFillData != 0x1234 || v.autoFillLen != 7 {
		t.Fatalf("autoFill state = (%#x,%#x,%d), want (0x10,0x1234,7)", v.autoFillAddr, v.autoFillData, v.autoFillLen)
	}
	if v.autoFillBuf != 0 { // 1 - display
		t.Fatalf("autoFillBuf = %d, want 0 (the non-displayed buffer)", v.autoFillBuf)
	}
}

func TestAutoFillBusyReflectsActiveFlag(t *testing.T) {
	v := New(mclock.Divider(1))
	if v.AutoFillBusy() {
		t.Fatalf("a fresh VDP should not report auto-fill busy")
	}
	v.BeginAutoFill(0, 0, 1)
	if !v.AutoFillBusy() {
		t.Fatalf("AutoFillBusy should report true once a fill is active")
	}
}

func TestDriveAutoFillPackedModeWritesOneByteAndAdvances(t *testing.T) {
	v := New(mclock.Divider(1))
	v.mode = ModePacked
	v.autoFillActive = true
	v.autoFillAddr = 10
	v.autoFillData = 0x1234
	v.autoFillLen = 2
	v.autoFillBuf = 0

	v.driveAutoFill()
	if v.fb[0][10] != 0x34 {
		t.Fatalf("fb[0][10] = %#x, want 0x34", v.fb[0][10])
	}
	if v.autoFillAddr != 11 {
		t.Fatalf("autoFillAddr = %d, want 11", v.autoFillAddr)
	}
	if v.autoFillLen != 1 {
		t.Fatalf("autoFillLen = %d, want 1", v.autoFillLen)
	}
	if !v.autoFillActive {
		t.Fatalf("autoFillActive should remain true while autoFillLen > 0")
	}
}

func TestDriveAutoFillDirectColorModeWritesTwoBytesAndCompletes(t *testing.T) {
	v := New(mclock.Divider(1))
	v.mode = ModeDirectColor
	v.autoFillActive = true
	v.autoFillAddr = 10
	v.autoFillData = 0x1234
	v.autoFillLen = 1
	v.autoFillBuf = 0

	v.driveAutoFill()
	if v.fb[0][10] != 0x12 || v.fb[0][11] != 0x34 {
		t.Fatalf("fb[0][10:12] = %#x,%#x, want 0x12,0x34", v.fb[0][10], v.fb[0][11])
	}
	if v.autoFillAddr != 12 {
		t.Fatalf("autoFillAddr = %d, want 12", v.autoFillAddr)
	}
	if v.autoFillActive {
		t.Fatalf("autoFillActive should clear once autoFillLen reaches 0")
	}
}

func TestStepDotDrainsAutoFillOneUnitPerDot(t *testing.T) {
	v := New(mclock.Divider(1))
	v.mode = ModePacked
	v.autoFillActive = true
	v.autoFillAddr = 0
	v.autoFillData = 7
	v.autoFillLen = 3
	v.autoFillBuf = 0

	v.stepDot()
	if v.fb[0][0] != 7 {
		t.Fatalf("fb[0][0] = %d, want 7", v.fb[0][0])
	}
	if v.autoFillLen != 2 {
		t.Fatalf("autoFillLen after one dot = %d, want 2", v.autoFillLen)
	}
}

func TestStepDotWrapsLineAndFiresEndOfFrame(t *testing.T) {
	v := New(mclock.Divider(1))
	frames := 0
	v.OnFrame = func(f video.Frame) { frames++ }
	v.dot = fbWidth + 22 - 1
	v.line = 261

	v.stepDot()
	if v.dot != 0 || v.line != 0 {
		t.Fatalf("dot/line after wrap = %d/%d, want 0/0", v.dot, v.line)
	}
	if v.display != 1 {
		t.Fatalf("display should swap to 1 at end of frame")
	}
	if frames != 1 {
		t.Fatalf("OnFrame should fire exactly once, fired %d times", frames)
	}
}

func TestFbPixelPackedModeOpaqueForNonzeroIndex(t *testing.T) {
	v := New(mclock.Divider(1))
	v.mode = ModePacked
	v.Palette[5] = 0x1F
	v.fb[v.display][0] = 5

	c, opaque := v.fbPixel(0, 0)
	if !opaque {
		t.Fatalf("a nonzero packed index should be opaque")
	}
	if c != decodeRGB555(0x1F) {
		t.Fatalf("fbPixel color = %v, want %v", c, decodeRGB555(0x1F))
	}
}

func TestFbPixelPackedModeTransparentAtIndexZero(t *testing.T) {
	v := New(mclock.Divider(1))
	v.mode = ModePacked
	_, opaque := v.fbPixel(0, 0)
	if opaque {
		t.Fatalf("packed index 0 should be transparent")
	}
}

func TestFbPixelDirectColorModeDecodesRGB555(t *testing.T) {
	v := New(mclock.Divider(1))
	v.mode = ModeDirectColor
	v.fb[v.display][0] = 0x80 // high byte, bit15 set
	v.fb[v.display][1] = 0x1F

	c, opaque := v.fbPixel(0, 0)
	if !opaque {
		t.Fatalf("a direct-color pixel with bit15 set should be opaque")
	}
	if c != decodeRGB555(0x001F) {
		t.Fatalf("fbPixel color = %v, want %v", c, decodeRGB555(0x001F))
	}
}

func TestFbPixelDirectColorModeTransparentAtZeroWord(t *testing.T) {
	v := New(mclock.Divider(1))
	v.mode = ModeDirectColor
	_, opaque := v.fbPixel(0, 0)
	if opaque {
		t.Fatalf("a zero direct-color word should be transparent")
	}
}

func TestRunLengthPixelWalksRunsToFindTheTargetIndex(t *testing.T) {
	v := New(mclock.Divider(1))
	v.mode = ModeRunLength
	buf := &v.fb[v.display]
	buf[0], buf[1] = 3, 7 // run of 3 pixels at palette index 7
	buf[2], buf[3] = 5, 9 // run of 5 pixels at palette index 9
	v.Palette[9] = 0x3FF

	c, opaque := v.runLengthPixel(buf, 0, 4) // x=4 falls in the second run
	if !opaque {
		t.Fatalf("x=4 should land in the second (opaque) run")
	}
	if c != decodeRGB555(0x3FF&0x7FFF) {
		t.Fatalf("runLengthPixel color = %v, want %v", c, decodeRGB555(0x3FF&0x7FFF))
	}
}

func TestRunLengthPixelTransparentWhenRunIndexIsZero(t *testing.T) {
	v := New(mclock.Divider(1))
	buf := &v.fb[v.display]
	buf[0], buf[1] = 3, 0 // run of 3 pixels at transparent index 0
	_, opaque := v.runLengthPixel(buf, 0, 1)
	if opaque {
		t.Fatalf("a run with palette index 0 should be transparent")
	}
}

func TestDecodeRGB555ExpandsFiveBitChannelsToEight(t *testing.T) {
	got := decodeRGB555(0x1F)
	if got.R != 255 || got.G != 0 || got.B != 0 {
		t.Fatalf("decodeRGB555(0x1F) = %v, want {255 0 0}", got)
	}
}

func TestSampleFrameOutOfBoundsReturnsZeroValue(t *testing.T) {
	f := video.NewFrame(4, 4, 1.0)
	got := sampleFrame(f, -1, 0)
	if got != (video.RGB24{}) {
		t.Fatalf("sampleFrame out of bounds = %v, want zero value", got)
	}
	got = sampleFrame(f, 10, 0)
	if got != (video.RGB24{}) {
		t.Fatalf("sampleFrame out of bounds = %v, want zero value", got)
	}
}

func TestSampleFrameReadsPixelInBounds(t *testing.T) {
	f := video.NewFrame(4, 4, 1.0)
	f.PutPixel(1, 1, video.RGB24{R: 10, G: 20, B: 30})
	got := sampleFrame(f, 1, 1)
	if got.R != 10 || got.G != 20 || got.B != 30 {
		t.Fatalf("sampleFrame(1,1) = %v, want {10 20 30}", got)
	}
}

func TestSetModeAndSetPriority(t *testing.T) {
	v := New(mclock.Divider(1))
	v.SetMode(ModeDirectColor)
	if v.mode != ModeDirectColor {
		t.Fatalf("mode = %d, want ModeDirectColor", v.mode)
	}
	v.SetPriority(true)
	if !v.priority {
		t.Fatalf("priority should be set to true")
	}
}
