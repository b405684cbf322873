package genesis

import (
	"testing"

	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
)

func TestWriteControlRegisterWriteAppliesImmediately(t *testing.T) {
	v := New(mclock.Divider(1))
	v.WriteControl(0x8C01)
	if v.Regs[12] != 0x01 {
		t.Fatalf("Regs[12] = %#x, want 0x01", v.Regs[12])
	}
	if !v.h40 {
		t.Fatalf("h40 should be true after setting Regs[12] bit 0")
	}
	if v.frame.Width != H40Dots {
		t.Fatalf("frame.Width = %d, want %d after h40 toggled", v.frame.Width, H40Dots)
	}
}

func TestWriteControlTwoWordLatchSetsCodeAndAddr(t *testing.T) {
	v := New(mclock.Divider(1))
	v.WriteControl(0x4000)
	v.WriteControl(0x0010)
	if v.code != 5 {
		t.Fatalf("code = %d, want 5", v.code)
	}
	if v.addr != 0 {
		t.Fatalf("addr = %#x, want 0", v.addr)
	}
	if v.ctrlPending {
		t.Fatalf("ctrlPending should be false after the second command word")
	}
}

func TestWriteControlSecondWordBit7TriggersDMA(t *testing.T) {
	v := New(mclock.Divider(1))
	v.Regs[23] = 0xC0 // top two bits 11 -> copy DMA
	v.Regs[19] = 1    // length = 1
	v.WriteControl(0x0000)
	v.WriteControl(0x0080)
	if v.dmaBusy {
		t.Fatalf("a short copy DMA should complete synchronously, leaving dmaBusy false")
	}
}

func TestApplyRegisterSideEffectsTogglesInterlaceDoubleAndReallocatesFrame(t *testing.T) {
	v := New(mclock.Divider(1))
	v.WriteControl(0x810A) // reg 1, value 0x0A: interlace bits 0x02 and 0x08 both set
	if !v.interlaceDouble {
		t.Fatalf("interlaceDouble should be true after Regs[1] = 0x0A")
	}
	if v.frame.Height != 224 {
		t.Fatalf("frame.Height = %d, want 224 (deinterlace not yet enabled)", v.frame.Height)
	}
	v.SetDeinterlace(true)
	if v.frame.Height != 448 {
		t.Fatalf("frame.Height = %d, want 448 once deinterlace is also enabled", v.frame.Height)
	}
}

func TestBeginDMATransferCopiesWordsFromRead68KWithStall(t *testing.T) {
	v := New(mclock.Divider(1))
	v.Regs[23] = 0x00 // default case -> transfer
	v.Regs[19] = 2     // length = 2
	v.Regs[15] = 2     // address increment
	v.addr = 0x100
	v.code = 0x01 // VRAM write
	words := []uint16{0x1234, 0x5678}
	idx := 0
	v.Read68K = func(addr uint32) uint16 {
		w := words[idx]
		idx++
		return w
	}
	var stall mclock.Tick
	v.StallCPU = func(t mclock.Tick) { stall = t }

	v.beginDMA(0)

	if v.VRAM[0x100] != 0x12 || v.VRAM[0x101] != 0x34 {
		t.Fatalf("VRAM[0x100:0x102] = %#x,%#x, want 0x12,0x34", v.VRAM[0x100], v.VRAM[0x101])
	}
	if v.VRAM[0x102] != 0x56 || v.VRAM[0x103] != 0x78 {
		t.Fatalf("VRAM[0x102:0x104] = %#x,%#x, want 0x56,0x78", v.VRAM[0x102], v.VRAM[0x103])
	}
	if v.addr != 0x104 {
		t.Fatalf("addr = %#x, want 0x104", v.addr)
	}
	if v.dmaBusy {
		t.Fatalf("dmaBusy should be false once the transfer completes")
	}
	if stall != 40 {
		t.Fatalf("stall = %d, want 40 (2 words * 20 ticks/slot in active display)", stall)
	}
}

func TestRunFillDMAWritesFillByteAcrossLength(t *testing.T) {
	v := New(mclock.Divider(1))
	v.dmaMode = dmaFill
	v.dmaLen = 3
	v.addr = 0x10
	v.Regs[15] = 1

	v.WriteData(0x1234)

	for i := uint16(0x10); i < 0x13; i++ {
		if v.VRAM[i] != 0x34 {
			t.Fatalf("VRAM[%#x] = %#x, want 0x34", i, v.VRAM[i])
		}
	}
	if v.dmaMode != dmaNone || v.dmaBusy {
		t.Fatalf("fill DMA should clear dmaMode/dmaBusy on completion")
	}
}

func TestRunCopyDMACopiesWithinVRAM(t *testing.T) {
	v := New(mclock.Divider(1))
	v.Regs[15] = 1
	v.VRAM[0x50] = 0xAA
	v.VRAM[0x51] = 0xBB
	v.dmaSrcAddr = 0x50
	v.addr = 0x60
	v.dmaLen = 2

	v.runCopyDMA()

	if v.VRAM[0x60] != 0xAA || v.VRAM[0x61] != 0xBB {
		t.Fatalf("VRAM[0x60:0x62] = %#x,%#x, want 0xAA,0xBB", v.VRAM[0x60], v.VRAM[0x61])
	}
	if v.dmaMode != dmaNone || v.dmaBusy {
		t.Fatalf("copy DMA should clear dmaMode/dmaBusy on completion")
	}
}

func TestQueueWriteAppendsToFIFOAndAdvancesAddr(t *testing.T) {
	v := New(mclock.Divider(1))
	v.addr = 0x10
	v.Regs[15] = 2
	v.code = 0x00

	v.queueWrite(0x1234)

	if v.fifoLen != 1 {
		t.Fatalf("fifoLen = %d, want 1", v.fifoLen)
	}
	if v.fifo[0].addr != 0x10 || v.fifo[0].data != 0x1234 {
		t.Fatalf("fifo[0] = %+v, want addr=0x10 data=0x1234", v.fifo[0])
	}
	if v.addr != 0x12 {
		t.Fatalf("addr = %#x, want 0x12", v.addr)
	}
}

func TestQueueWriteStallsCPUWhenFIFOFull(t *testing.T) {
	v := New(mclock.Divider(1))
	v.fifoLen = fifoDepth
	stalled := false
	v.StallCPU = func(t mclock.Tick) { stalled = true }

	v.queueWrite(0x0000)

	if !stalled {
		t.Fatalf("queueWrite on a full FIFO should call StallCPU")
	}
	if v.fifoLen != fifoDepth {
		t.Fatalf("fifoLen after stall-drain-append = %d, want %d", v.fifoLen, fifoDepth)
	}
}

func TestDrainOneWritesVRAMForVKind(t *testing.T) {
	v := New(mclock.Divider(1))
	v.fifo[0] = fifoEntry{kind: 'V', addr: 0x20, data: 0xABCD}
	v.fifoLen = 1

	v.drainOne()

	if v.VRAM[0x20] != 0xAB || v.VRAM[0x21] != 0xCD {
		t.Fatalf("VRAM[0x20:0x22] = %#x,%#x, want 0xAB,0xCD", v.VRAM[0x20], v.VRAM[0x21])
	}
	if v.fifoLen != 0 {
		t.Fatalf("fifoLen after drain = %d, want 0", v.fifoLen)
	}
}

func TestDrainFIFORoutesSKindToVSRAM(t *testing.T) {
	v := New(mclock.Divider(1))
	v.fifo[0] = fifoEntry{kind: 'S', addr: 0x02, data: 0x0055}
	v.fifoLen = 1

	v.drainFIFO()

	if v.VSRAM[1] != 0x0055 {
		t.Fatalf("VSRAM[1] = %#x, want 0x0055", v.VSRAM[1])
	}
	if v.fifoLen != 0 {
		t.Fatalf("fifoLen after drain = %d, want 0", v.fifoLen)
	}
}

func TestWriteCRAMAppliesDotArtifactWhenEnabledDuringActiveDisplay(t *testing.T) {
	v := New(mclock.Divider(1))
	v.Regs[11] = 0x08
	v.writeCRAM(5, 0x000E, 10, 50)
	if v.CRAM[5] != 0x000E {
		t.Fatalf("CRAM[5] = %#x, want 0x000E", v.CRAM[5])
	}
	got := v.frame.RGB24[(50*v.width()+10)*3]
	if got != 0xEE {
		t.Fatalf("frame pixel R at (10,50) = %#x, want 0xEE", got)
	}
}

func TestWriteCRAMSkipsDotArtifactWhenDisabled(t *testing.T) {
	v := New(mclock.Divider(1))
	v.Regs[11] = 0x00
	v.writeCRAM(5, 0x000E, 10, 50)
	got := v.frame.RGB24[(50*v.width()+10)*3]
	if got != 0 {
		t.Fatalf("frame pixel R at (10,50) = %#x, want 0 (dot artifact disabled)", got)
	}
}

func TestStepDotWrapsLineAtConfiguredWidthPlusBlanking(t *testing.T) {
	v := New(mclock.Divider(1))
	v.dot = v.width() + 22 - 1
	v.line = 10

	v.stepDot()

	if v.dot != 0 {
		t.Fatalf("dot after wrap = %d, want 0", v.dot)
	}
	if v.line != 11 {
		t.Fatalf("line after wrap = %d, want 11", v.line)
	}
}

func TestEndOfLineFiresHIntWhenEnabledAndReloadsCounter(t *testing.T) {
	v := New(mclock.Divider(1))
	v.Regs[0] = 0x10
	v.hCounter = 0
	v.Regs[10] = 5
	var irqs []int
	v.RaiseIRQ = func(level int) { irqs = append(irqs, level) }
	v.line = 0

	v.endOfLine()

	if !v.hintPending {
		t.Fatalf("hintPending should be true after an enabled H-int fires")
	}
	if v.hCounter != 5 {
		t.Fatalf("hCounter = %d, want 5 (reloaded from Regs[10])", v.hCounter)
	}
	if len(irqs) != 1 || irqs[0] != IRQHInt {
		t.Fatalf("RaiseIRQ calls = %v, want [%d]", irqs, IRQHInt)
	}
}

func TestEndOfLineDecrementsHCounterWithoutReload(t *testing.T) {
	v := New(mclock.Divider(1))
	v.Regs[0] = 0x10
	v.hCounter = 3
	v.line = 0

	v.endOfLine()

	if v.hCounter != 2 {
		t.Fatalf("hCounter = %d, want 2", v.hCounter)
	}
	if v.hintPending {
		t.Fatalf("hintPending should stay false when the counter hasn't reached zero")
	}
}

func TestEndOfLineFiresVIntAtActiveHeightBoundary(t *testing.T) {
	v := New(mclock.Divider(1))
	v.Regs[1] = 0x20
	v.line = 223
	var vints []int
	v.RaiseIRQ = func(level int) { vints = append(vints, level) }

	v.endOfLine()

	if v.line != 224 {
		t.Fatalf("line = %d, want 224", v.line)
	}
	if !v.vintPending {
		t.Fatalf("vintPending should be true once line reaches the active-height boundary")
	}
	if len(vints) != 1 || vints[0] != IRQVInt {
		t.Fatalf("RaiseIRQ calls = %v, want [%d]", vints, IRQVInt)
	}
}

func TestEndOfLineWrapsFrameAndTogglesOddFrame(t *testing.T) {
	v := New(mclock.Divider(1))
	v.line = 261
	frames := 0
	v.OnFrame = func(f video.Frame) { frames++ }

	v.endOfLine()

	if v.line != 0 {
		t.Fatalf("line after frame wrap = %d, want 0", v.line)
	}
	if !v.oddFrame {
		t.Fatalf("oddFrame should toggle to true on this wrap")
	}
	if frames != 1 {
		t.Fatalf("OnFrame should fire exactly once, fired %d times", frames)
	}
}

func TestReadStatusReflectsFIFOBlankAndPendingFlags(t *testing.T) {
	v := New(mclock.Divider(1))
	v.ctrlPending = true
	v.fifoLen = 2
	v.vintPending = true
	v.oddFrame = true
	v.line = 0
	v.dot = 300
	v.dmaBusy = true
	v.pal = true

	got := v.ReadStatus()

	want := uint16(statusVInt | statusODD | statusHBlank | statusDMA | statusPAL)
	if got != want {
		t.Fatalf("ReadStatus() = %#x, want %#x", got, want)
	}
	if v.ctrlPending {
		t.Fatalf("ReadStatus should clear ctrlPending")
	}
}

func TestReadDataReadsVRAMAndCRAMByCode(t *testing.T) {
	v := New(mclock.Divider(1))
	v.code = 0x00
	v.addr = 0x10
	v.VRAM[0x10] = 0x12
	v.VRAM[0x11] = 0x34
	v.Regs[15] = 2

	got := v.ReadData()
	if got != 0x1234 {
		t.Fatalf("ReadData() VRAM = %#x, want 0x1234", got)
	}
	if v.addr != 0x12 {
		t.Fatalf("addr after VRAM read = %#x, want 0x12", v.addr)
	}

	v.code = 0x03
	v.addr = 10
	v.CRAM[5] = 0x1234
	got = v.ReadData()
	if got != 0x1234 {
		t.Fatalf("ReadData() CRAM = %#x, want 0x1234", got)
	}
}

func TestAckVIntAndAckHIntClearPendingFlags(t *testing.T) {
	v := New(mclock.Divider(1))
	v.vintPending = true
	v.hintPending = true
	v.AckVInt()
	v.AckHInt()
	if v.vintPending || v.hintPending {
		t.Fatalf("AckVInt/AckHInt should clear their respective pending flags")
	}
}

func TestDecodeColorExpandsEachThreeBitChannelConsistently(t *testing.T) {
	v := New(mclock.Divider(1))
	if got := v.decodeColor(0x000E); got.R != 0xEE || got.G != 0 || got.B != 0 {
		t.Fatalf("decodeColor(0x000E) = %v, want {0xEE 0 0}", got)
	}
	if got := v.decodeColor(0x00E0); got.G != 0xEE || got.R != 0 || got.B != 0 {
		t.Fatalf("decodeColor(0x00E0) = %v, want {0 0xEE 0}", got)
	}
	if got := v.decodeColor(0x0E00); got.B != 0xEE || got.R != 0 || got.G != 0 {
		t.Fatalf("decodeColor(0x0E00) = %v, want {0 0 0xEE}", got)
	}
}

func TestTilePixelReturnsHighOrLowNibbleByPixelParity(t *testing.T) {
	v := New(mclock.Divider(1))
	v.VRAM[0] = 0xAB
	if got := v.tilePixel(0, 0, 0); got != 0x0A {
		t.Fatalf("tilePixel(px=0) = %#x, want 0x0A", got)
	}
	if got := v.tilePixel(0, 1, 0); got != 0x0B {
		t.Fatalf("tilePixel(px=1) = %#x, want 0x0B", got)
	}
}

func TestVramWordReadsBigEndian(t *testing.T) {
	v := New(mclock.Divider(1))
	v.VRAM[5] = 0x12
	v.VRAM[6] = 0x34
	if got := v.vramWord(5); got != 0x1234 {
		t.Fatalf("vramWord(5) = %#x, want 0x1234", got)
	}
}
