package smsgg

import "github.com/retrocore/retrocore/video"

// renderLine composites the background name table and the sprite layer
// for one active scanline into the frame buffer, cropping to the Game
// Gear's visible window where applicable.
func (vd *VDP) renderLine(line int) {
	vd.renderBackground(line)
	hits, opaque := vd.renderSprites(line)
	vd.composeLine(line, hits, opaque)
}

func (vd *VDP) renderBackground(line int) {
	// Vertical scroll wraps across the full 28-row name table regardless
	// of display height, matching real Mode 4 behavior.
	row := line
	if !vd.verticalScrollLock {
		row += int(vd.yScroll)
	}
	row %= 224
	tileRow := row / 8
	py := row % 8

	for x := 0; x < screenWidth; x++ {
		scrolledX := x
		if !vd.horizontalScrollLock {
			scrolledX -= int(vd.xScroll)
		}
		scrolledX &= 0xFF
		tileCol := (scrolledX >> 3) & 0x1F
		px := scrolledX & 7

		addr := vd.nameTableBase + uint16(tileRow*32+tileCol)*2
		lo := vd.VRAM[addr&dataAddressMask]
		hi := vd.VRAM[(addr+1)&dataAddressMask]
		entry := uint16(lo) | uint16(hi)<<8

		tileIndex := entry & 0x1FF
		flipH := entry&0x0200 != 0
		flipV := entry&0x0400 != 0
		priority := entry&0x1000 != 0
		paletteBase := uint8(0)
		if entry&0x0800 != 0 {
			paletteBase = 16
		}

		ppx, ppy := px, py
		if flipH {
			ppx = 7 - px
		}
		if flipV {
			ppy = 7 - py
		}

		vd.bgLine[x] = bgCell{
			colorIndex:  vd.tilePixel(0, tileIndex, ppx, ppy),
			paletteBase: paletteBase,
			priority:    priority,
		}
	}
}

// tilePixel decodes one pixel of a 4bpp planar 8x8 tile: 4 bytes per row,
// one bit plane per byte, MSB-first across the row.
func (vd *VDP) tilePixel(addrBase uint16, tileIndex uint16, px, py int) uint8 {
	base := addrBase + tileIndex*32 + uint16(py)*4
	var ci uint8
	for plane := 0; plane < 4; plane++ {
		b := vd.VRAM[(base+uint16(plane))&dataAddressMask]
		bit := (b >> (7 - px)) & 1
		ci |= bit << plane
	}
	return ci
}

type spriteHit struct {
	colorIdx uint8
}

// renderSprites gathers up to 8 sprites intersecting this scanline from
// the sprite attribute table, setting the overflow flag if more than 8
// qualify, and records opaque pixel hits for compositing.
func (vd *VDP) renderSprites(line int) (hits [screenWidth]spriteHit, opaque [screenWidth]bool) {
	height := vd.spriteHeight()
	found := 0

	for i := 0; i < 64; i++ {
		yAddr := vd.spriteTableBase + uint16(i)
		y := vd.VRAM[yAddr&dataAddressMask]
		if y == 0xD0 {
			break // sprite list terminator (non-224-line mode only)
		}
		y1 := int(y) + 1
		if line < y1 || line >= y1+height {
			continue
		}
		if found == 8 {
			vd.spriteOverflow = true
			break
		}
		found++

		attrAddr := vd.spriteTableBase + 0x80 + uint16(i)*2
		spriteX := int(vd.VRAM[attrAddr&dataAddressMask])
		pattern := uint16(vd.VRAM[(attrAddr+1)&dataAddressMask])
		if vd.shiftSpritesLeft {
			spriteX -= 8
		}

		row := line - y1
		tile := pattern
		if height == 16 {
			if row >= 8 {
				tile = (pattern & 0xFE) | 1
				row -= 8
			} else {
				tile = pattern & 0xFE
			}
		}

		for px := 0; px < 8; px++ {
			sx := spriteX + px
			if sx < 0 || sx >= screenWidth {
				continue
			}
			ci := vd.tilePixel(vd.spritePatternBase, tile, px, row)
			if ci == 0 {
				continue // color 0 is transparent on sprites
			}
			if opaque[sx] {
				vd.spriteCollision = true
				continue
			}
			opaque[sx] = true
			hits[sx] = spriteHit{colorIdx: ci}
		}
	}
	return hits, opaque
}

func (vd *VDP) composeLine(line int, hits [screenWidth]spriteHit, opaque [screenWidth]bool) {
	outY := line
	if vd.version.isGameGear() {
		if line < ggOffsetY || line >= ggOffsetY+ggVisibleHeight {
			return
		}
		outY = line - ggOffsetY
	}

	for x := 0; x < screenWidth; x++ {
		outX := x
		if vd.version.isGameGear() {
			if x < ggOffsetX || x >= ggOffsetX+ggVisibleWidth {
				continue
			}
			outX = x - ggOffsetX
		}

		bg := vd.bgLine[x]
		var paletteIndex uint8
		switch {
		case !vd.displayEnabled:
			paletteIndex = 16 + vd.backdropColor
		case opaque[x] && !(bg.priority && bg.colorIndex != 0):
			paletteIndex = 16 + hits[x].colorIdx
		case x < 8 && vd.hideLeftColumn:
			paletteIndex = 16 + vd.backdropColor
		default:
			paletteIndex = bg.paletteBase + bg.colorIndex
		}

		vd.frame.PutPixel(outX, outY, vd.decodeColor(paletteIndex))
	}
}

// decodeColor converts a CRAM palette index to RGB24: 6-bit BGR (2 bits
// per channel) on the Master System, 12-bit BGR (4 bits per channel, two
// bytes little-endian) on the Game Gear.
func (vd *VDP) decodeColor(index uint8) video.RGB24 {
	if vd.version.isGameGear() {
		off := int(index) * 2
		if off+1 >= len(vd.CRAM) {
			return video.RGB24{}
		}
		word := uint16(vd.CRAM[off]) | uint16(vd.CRAM[off+1])<<8
		r := uint8(word & 0xF)
		g := uint8((word >> 4) & 0xF)
		b := uint8((word >> 8) & 0xF)
		return video.RGB24{R: r | r<<4, G: g | g<<4, B: b | b<<4}
	}

	if int(index) >= len(vd.CRAM) {
		return video.RGB24{}
	}
	byteVal := vd.CRAM[index]
	r := byteVal & 0x3
	g := (byteVal >> 2) & 0x3
	b := (byteVal >> 4) & 0x3
	expand := func(c byte) uint8 { return uint8(c) * 0x55 }
	return video.RGB24{R: expand(r), G: expand(g), B: expand(b)}
}
