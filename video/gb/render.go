package gb

import "github.com/retrocore/retrocore/video"

// dmgShades is the classic 4-shade green-tinted palette real DMG hardware
// approximates; used whenever cgbMode is false.
var dmgShades = [4]video.RGB24{
	{224, 248, 208}, {136, 192, 112}, {52, 104, 86}, {8, 24, 32},
}

func (p *PPU) renderLine(line int) {
	out := make([]video.RGB24, screenWidth)
	bgColorIdx := make([]byte, screenWidth)

	if p.lcdc&0x01 != 0 {
		p.renderBackground(line, out, bgColorIdx)
	}
	if p.lcdc&0x20 != 0 && line >= int(p.wy) {
		p.renderWindow(line, out, bgColorIdx)
	}
	if p.lcdc&0x02 != 0 {
		p.renderSprites(line, out, bgColorIdx)
	}

	for x := 0; x < screenWidth; x++ {
		p.frame.PutPixel(x, line, out[x])
	}
}

func (p *PPU) renderBackground(line int, out []video.RGB24, bgIdx []byte) {
	tileMapBase := uint16(0x9800)
	if p.lcdc&0x08 != 0 {
		tileMapBase = 0x9C00
	}
	signedTiles := p.lcdc&0x10 == 0

	y := (line + int(p.scy)) & 0xFF
	row := y / 8
	for x := 0; x < screenWidth; x++ {
		sx := (x + int(p.scx)) & 0xFF
		col := sx / 8
		mapAddr := tileMapBase + uint16(row*32+col) - 0x8000
		tileNum := p.vramByte(0, mapAddr)

		tileAddr := tileDataAddr(tileNum, signedTiles)
		colorIdx := p.tileRowPixel(tileAddr, sx%8, y%8, 0)
		bgIdx[x] = colorIdx
		out[x] = p.shade(colorIdx, p.bgPalette, 0, false)
	}
}

func (p *PPU) renderWindow(line int, out []video.RGB24, bgIdx []byte) {
	wx := int(p.wx) - 7
	if wx >= screenWidth {
		return
	}
	tileMapBase := uint16(0x9800)
	if p.lcdc&0x40 != 0 {
		tileMapBase = 0x9C00
	}
	signedTiles := p.lcdc&0x10 == 0
	winY := line - int(p.wy)
	row := winY / 8

	for x := 0; x < screenWidth; x++ {
		if x < wx {
			continue
		}
		winX := x - wx
		col := winX / 8
		mapAddr := tileMapBase + uint16(row*32+col) - 0x8000
		tileNum := p.vramByte(0, mapAddr)
		tileAddr := tileDataAddr(tileNum, signedTiles)
		colorIdx := p.tileRowPixel(tileAddr, winX%8, winY%8, 0)
		bgIdx[x] = colorIdx
		out[x] = p.shade(colorIdx, p.bgPalette, 0, false)
	}
}

func (p *PPU) renderSprites(line int, out []video.RGB24, bgIdx []byte) {
	height := 8
	if p.lcdc&0x04 != 0 {
		height = 16
	}
	drawn := 0
	for i := 0; i < 40 && drawn < 10; i++ {
		base := i * 4
		yPos := int(p.OAM[base]) - 16
		if line < yPos || line >= yPos+height {
			continue
		}
		xPos := int(p.OAM[base+1]) - 8
		tile := p.OAM[base+2]
		attr := p.OAM[base+3]
		palIdx := 0
		if attr&0x10 != 0 {
			palIdx = 1
		}
		flipX := attr&0x20 != 0
		flipY := attr&0x40 != 0
		behindBG := attr&0x80 != 0

		row := line - yPos
		if flipY {
			row = height - 1 - row
		}
		tileNum := uint16(tile)
		if height == 16 {
			tileNum &^= 1
		}
		tileAddr := 0x8000 + tileNum*16

		bank := 0
		if p.cgbMode && attr&0x08 != 0 {
			bank = 1
		}

		for px := 0; px < 8; px++ {
			sx := xPos + px
			if sx < 0 || sx >= screenWidth {
				continue
			}
			drawPX := px
			if flipX {
				drawPX = 7 - px
			}
			colorIdx := p.tileRowPixel(tileAddr, drawPX, row, bank)
			if colorIdx == 0 {
				continue
			}
			if behindBG && bgIdx[sx] != 0 {
				continue
			}
			out[sx] = p.shade(colorIdx, p.objPalette[palIdx], palIdx, true)
			drawn++
		}
	}
}

func tileDataAddr(tileNum byte, signed bool) uint16 {
	if signed {
		return uint16(int32(0x9000) + int32(int8(tileNum))*16)
	}
	return 0x8000 + uint16(tileNum)*16
}

func (p *PPU) vramByte(bank int, addr uint16) byte {
	return p.VRAM[uint32(bank)*0x2000+uint32(addr)]
}

func (p *PPU) tileRowPixel(tileAddr uint16, px, py, bank int) byte {
	rowAddr := tileAddr - 0x8000 + uint16(py*2)
	lo := p.vramByte(bank, rowAddr)
	hi := p.vramByte(bank, rowAddr+1)
	bit := 7 - px
	return (lo>>uint(bit))&1 | ((hi>>uint(bit))&1)<<1
}

// shade resolves a 2-bit color index to RGB24: DMG mode maps through the
// 4-shade palette register, CGB mode maps through the 8-palette x 4-color
// CRAM the CPU programs via BCPS/BCPD or OCPS/OCPD.
func (p *PPU) shade(colorIdx byte, dmgPal [4]byte, cgbPalIdx int, obj bool) video.RGB24 {
	if p.cgbMode {
		if obj {
			return decodeGBCRGB555(p.cgbObjPal[cgbPalIdx][colorIdx])
		}
		return decodeGBCRGB555(p.cgbBGPal[cgbPalIdx][colorIdx])
	}
	return dmgShades[dmgPal[colorIdx]&0x3]
}

func decodeGBCRGB555(word uint16) video.RGB24 {
	r := uint8(word&0x1F) << 3
	g := uint8((word>>5)&0x1F) << 3
	b := uint8((word>>10)&0x1F) << 3
	return video.RGB24{R: r | r>>5, G: g | g>>5, B: b | b>>5}
}
