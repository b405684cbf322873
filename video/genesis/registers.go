package genesis

import "github.com/retrocore/retrocore/mclock"

// WriteControl handles a write to the VDP control port ($C00004/$C00005
// mirrors). Register writes (top three bits "100") take effect immediately
// at the current dot per the common contract. The two-word
// address/operation command is held in v.ctrlPending/v.ctrlFirst between
// calls, mirroring the real VDP's command-word latch.
func (v *VDP) WriteControl(data uint16) {
	if !v.ctrlPending && data&0xE000 == 0x8000 {
		reg := (data >> 8) & 0x1F
		v.Regs[reg&0x1F] = uint8(data)
		v.applyRegisterSideEffects(reg)
		return
	}
	if !v.ctrlPending {
		v.ctrlFirst = data
		v.ctrlPending = true
		return
	}
	v.ctrlPending = false
	v.code = uint8((v.ctrlFirst>>14)&0x3 | (data>>2)&0x3C)
	v.addr = (v.ctrlFirst & 0x3FFF) | (data&0x3)<<14
	if data&0x80 != 0 {
		v.beginDMA(data)
	}
}

func (v *VDP) applyRegisterSideEffects(reg uint16) {
	switch reg {
	case 12:
		v.h40 = v.Regs[12]&0x1 != 0
		v.allocFrame()
	case 1:
		interlace := v.Regs[1]&0x02 != 0 && v.Regs[1]&0x08 != 0
		if interlace != v.interlaceDouble {
			v.interlaceDouble = interlace
			v.allocFrame()
		}
	}
}

// SetDeinterlace toggles the host's deinterlace rendering option. Only
// meaningful in double-screen interlaced mode; progressive mode is
// unaffected.
func (v *VDP) SetDeinterlace(enabled bool) {
	if enabled != v.deinterlace {
		v.deinterlace = enabled
		v.allocFrame()
	}
}

// SetRegion selects NTSC or PAL timing.
func (v *VDP) SetRegion(pal bool) { v.pal = pal }

func (v *VDP) beginDMA(secondWord uint16) {
	switch v.Regs[23] >> 6 {
	case 2:
		v.dmaMode = dmaFill
	case 3:
		v.dmaMode = dmaCopy
	default:
		v.dmaMode = dmaTransfer
	}
	v.dmaLen = uint16(v.Regs[19]) | uint16(v.Regs[20])<<8
	v.dmaSrcAddr = uint32(v.Regs[21]) | uint32(v.Regs[22])<<8 | uint32(v.Regs[23]&0x7F)<<16
	v.dmaBusy = true
	if v.dmaMode == dmaTransfer {
		v.runTransferDMA()
	} else if v.dmaMode == dmaCopy {
		v.runCopyDMA()
	}
	// Fill DMA completes its fill on the next data-port write (the fill
	// value), per hardware behavior; dmaBusy stays true until WriteData
	// sees dmaMode==dmaFill.
}

// WriteData handles a write to the VDP data port. Writes queue into the
// 4-entry FIFO; if the FIFO is already full the CPU stalls until a slot
// drains, per the FIFO property.
func (v *VDP) WriteData(data uint16) {
	if v.dmaMode == dmaFill {
		v.dmaFillVal = data
		v.runFillDMA()
		return
	}
	v.queueWrite(data)
}

func (v *VDP) queueWrite(data uint16) {
	if v.fifoLen >= fifoDepth {
		// CPU stall: the VDP charges the 68000 host one slot through the
		// StallCPU callback, then drains the oldest entry to make room.
		if v.StallCPU != nil {
			v.StallCPU(mclock.Tick(v.slotTicks()))
		}
		v.drainOne()
	}
	kind := byte('V')
	switch v.code & 0x0F {
	case 0x03:
		kind = 'C'
	case 0x05:
		kind = 'S'
	}
	v.fifo[v.fifoLen] = fifoEntry{kind: kind, addr: v.addr, data: data, dot: v.dot, line: v.line}
	v.fifoLen++
	v.addr += uint16(v.Regs[15])
}

// slotTicks is the MC-tick cost of one VRAM-access slot; active-display
// slots are slower than blanking slots.
func (v *VDP) slotTicks() uint64 {
	activeHeight := 224
	if v.pal {
		activeHeight = 240
	}
	if v.line < activeHeight {
		if v.h40 {
			return 16
		}
		return 20
	}
	return 4
}

// drainFIFO drains at most one FIFO slot per dot, matching the hardware's
// one-slot-per-VRAM-access-window behavior closely enough for the FIFO
// depth/stall-duration timing it models.
func (v *VDP) drainFIFO() {
	if v.fifoLen == 0 {
		return
	}
	v.drainOne()
}

func (v *VDP) drainOne() {
	e := v.fifo[0]
	copy(v.fifo[:], v.fifo[1:v.fifoLen])
	v.fifoLen--
	switch e.kind {
	case 'V':
		v.VRAM[e.addr] = byte(e.data >> 8)
		v.VRAM[(e.addr+1)&0xFFFF] = byte(e.data)
	case 'C':
		v.writeCRAM(e.addr>>1&0x3F, e.data, e.dot, e.line)
	case 'S':
		v.VSRAM[e.addr>>1&0x3F] = e.data
	}
}

func (v *VDP) writeCRAM(index uint16, value uint16, dot, line int) {
	v.CRAM[index&0x3F] = value
	activeHeight := 224
	if v.pal {
		activeHeight = 240
	}
	if line < activeHeight && v.cramDotEnabled() {
		v.applyCRAMDot(int(index&0x3F), dot, line)
	}
}

// cramDotEnabled gates the CRAM-dot artifact on whether vertical-border
// rendering is enabled.
func (v *VDP) cramDotEnabled() bool { return v.Regs[11]&0x08 != 0 }
