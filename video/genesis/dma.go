package genesis

import "github.com/retrocore/retrocore/mclock"

// runFillDMA implements VRAM fill DMA: writes dmaFillVal's low byte to
// dmaLen consecutive VRAM bytes starting at the command address, advancing
// by the auto-increment register each step.
func (v *VDP) runFillDMA() {
	fillByte := byte(v.dmaFillVal)
	length := int(v.dmaLen)
	if length == 0 {
		length = 0x10000
	}
	addr := v.addr
	for i := 0; i < length; i++ {
		v.VRAM[addr] = fillByte
		addr += uint16(v.Regs[15])
	}
	v.dmaMode = dmaNone
	v.dmaBusy = false
}

// runCopyDMA implements VRAM-to-VRAM copy DMA.
func (v *VDP) runCopyDMA() {
	length := int(v.dmaLen)
	if length == 0 {
		length = 0x10000
	}
	src := uint16(v.dmaSrcAddr)
	dst := v.addr
	for i := 0; i < length; i++ {
		v.VRAM[dst] = v.VRAM[src]
		src += uint16(v.Regs[15])
		dst += uint16(v.Regs[15])
	}
	v.dmaMode = dmaNone
	v.dmaBusy = false
}

// runTransferDMA implements 68K-to-VRAM/CRAM/VSRAM DMA. It stalls the
// initiating 68000 for one word-slot per transferred word, using the same
// active-display-vs-blanking slot cost WriteData uses for FIFO stalls:
// active-display slot counts differ from blanking slot counts.
func (v *VDP) runTransferDMA() {
	length := int(v.dmaLen)
	if length == 0 {
		length = 0x10000
	}
	addr := v.addr
	src := v.dmaSrcAddr
	var totalStall uint64
	for i := 0; i < length; i++ {
		var word uint16
		if v.Read68K != nil {
			word = v.Read68K(src)
		}
		switch v.code & 0x0F {
		case 0x01:
			v.VRAM[addr] = byte(word >> 8)
			v.VRAM[(addr+1)&0xFFFF] = byte(word)
		case 0x03:
			v.writeCRAM(addr>>1&0x3F, word, v.dot, v.line)
		case 0x05:
			v.VSRAM[addr>>1&0x3F] = word
		}
		addr += uint16(v.Regs[15])
		src += 2
		totalStall += v.slotTicks()
	}
	v.addr = addr
	v.dmaMode = dmaNone
	v.dmaBusy = false
	if v.StallCPU != nil {
		v.StallCPU(mclock.Tick(totalStall))
	}
}
