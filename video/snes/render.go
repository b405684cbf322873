package snes

import "github.com/retrocore/retrocore/video"

// renderLine composites one scanline for the current BG mode: modes 0-6
// draw up to 4 tile-based layers at varying bit depth, mode 7 instead
// draws the single affine-transformed layer. Sprites and color math are
// applied after the background layers for every mode.
func (p *PPU) renderLine(line int) {
	width := screenWidth
	out := make([]video.RGB24, width)
	mainLayer := make([]int, width) // which BG (1-4) or -1=sprite/-2=backdrop drew the main-screen pixel
	for i := range mainLayer {
		mainLayer[i] = -2
	}

	if p.bgMode == 7 {
		p.renderMode7(line, out, mainLayer)
	} else {
		p.renderTileModes(line, out, mainLayer)
	}
	p.renderSprites(line, out, mainLayer)

	backdrop := p.decodeColor(p.CGRAM[0])
	for x := 0; x < width; x++ {
		if mainLayer[x] == -2 {
			out[x] = backdrop
		}
		if p.colorMathApplies(mainLayer[x]) {
			out[x] = p.applyColorMath(out[x], x, line)
		}
		p.frame.PutPixel(x, line, out[x])
	}
}

// bitsPerPixel returns the color depth of background layer bg (1-indexed)
// under the current mode, per the SNES's documented mode table.
func (p *PPU) bitsPerPixel(bg int) int {
	switch p.bgMode {
	case 0:
		return 2
	case 1:
		if bg == 3 {
			return 2
		}
		return 4
	case 2, 3, 4, 5:
		if bg == 1 {
			if p.bgMode == 3 || p.bgMode == 4 {
				return 8
			}
			return 4
		}
		return 2
	case 6:
		return 4
	}
	return 2
}

func (p *PPU) layerCount() int {
	switch p.bgMode {
	case 0:
		return 4
	case 1:
		return 3
	case 2, 3, 4, 5, 6:
		return 2
	}
	return 1
}

func (p *PPU) renderTileModes(line int, out []video.RGB24, mainLayer []int) {
	layers := p.layerCount()
	// Draw back-to-front (layer 4 first) so an earlier loop iteration's
	// write is overwritten by a higher-priority layer later, matching the
	// simplified (non-per-tile-priority) compositing this module targets.
	for bgIdx := layers; bgIdx >= 1; bgIdx-- {
		if p.mainScreen&(1<<uint(bgIdx-1)) == 0 {
			continue
		}
		bg := p.bg[bgIdx-1]
		bpp := p.bitsPerPixel(bgIdx)
		for x := 0; x < screenWidth; x++ {
			sx := x + bg.HScroll
			sy := line + bg.VScroll
			tileCol := (sx / 8) & 0x3F
			tileRow := (sy / 8) & 0x3F
			entryAddr := bg.TilemapBase + uint16((tileRow*64+tileCol)&0x0FFF)
			entry := p.VRAM[entryAddr&0xFFFF]
			tileIndex := entry & 0x03FF
			pal := (entry >> 10) & 0x7
			flipH := entry&0x4000 != 0
			flipV := entry&0x8000 != 0

			px := sx % 8
			py := sy % 8
			if flipH {
				px = 7 - px
			}
			if flipV {
				py = 7 - py
			}
			colorIndex := p.tilePixel(bg.CHRBase, tileIndex, px, py, bpp)
			if colorIndex == 0 {
				continue
			}
			paletteBase := uint16(0)
			if bpp < 8 {
				paletteBase = uint16(pal) << uint(bpp)
			}
			out[x] = p.decodeColor(p.CGRAM[(paletteBase+uint16(colorIndex))&0xFF])
			mainLayer[x] = bgIdx
		}
	}
}

// tilePixel decodes one pixel of a bitplane-packed SNES tile. 2bpp/4bpp/8bpp
// tiles are stored as interleaved 8-byte bitplane pairs, matching the
// hardware's documented CHR format.
func (p *PPU) tilePixel(chrBase uint16, tileIndex uint16, px, py, bpp int) byte {
	wordsPerTile := uint16(bpp * 4)
	base := chrBase + tileIndex*wordsPerTile
	var v byte
	planes := bpp / 2
	for pl := 0; pl < planes; pl++ {
		word := p.VRAM[(base+uint16(pl*8+py))&0xFFFF]
		lo := byte(word >> 8)
		hi := byte(word)
		bit := 7 - px
		b0 := (lo >> uint(bit)) & 1
		b1 := (hi >> uint(bit)) & 1
		v |= b0 << uint(pl*2)
		v |= b1 << uint(pl*2+1)
	}
	return v
}

// renderMode7 draws the single affine-transformed layer: for each output
// pixel, the PPU inverse-maps through the A/B/C/D matrix and the M7X/M7Y
// center point (clamped to its signed-13-bit range, sign-extended, per
// the scenario 6) to a source tilemap coordinate.
func (p *PPU) renderMode7(line int, out []video.RGB24, mainLayer []int) {
	m := p.mode7
	cx := signExtend13(m.X)
	cy := signExtend13(m.Y)
	y := int32(line) + m.VOffset - cy

	for x := 0; x < screenWidth; x++ {
		sx := int32(x) + m.HOffset - cx
		// Fixed-point 1.7.8 matrix multiply, shifted back to integer.
		srcX := (m.A*sx + m.B*y) >> 8
		srcY := (m.C*sx + m.D*y) >> 8
		srcX += cx
		srcY += cy

		tileX := int((srcX / 8)) & 0x7F
		tileY := int((srcY / 8)) & 0x7F
		px := int(srcX) % 8
		py := int(srcY) % 8
		if px < 0 {
			px += 8
		}
		if py < 0 {
			py += 8
		}

		entryAddr := uint16(tileY*128 + tileX)
		entry := p.VRAM[entryAddr]
		tileIndex := entry & 0x00FF

		colorIndex := p.tilePixel(0, tileIndex, px, py, 8)
		if colorIndex == 0 {
			continue
		}
		out[x] = p.decodeColor(p.CGRAM[colorIndex])
		mainLayer[x] = 1
	}
}

func signExtend13(v int32) int32 {
	v &= 0x1FFF
	if v&0x1000 != 0 {
		v |= ^int32(0x1FFF)
	}
	return v
}

// renderSprites draws OBJ tiles; a full per-priority-group sprite engine is
// out of this reference implementation's depth (the scopes exhaustive
// per-title accuracy out), so sprites here draw above every BG layer.
func (p *PPU) renderSprites(line int, out []video.RGB24, mainLayer []int) {
	if p.mainScreen&0x10 == 0 {
		return
	}
	for i := 0; i < 128; i++ {
		base := i * 4
		yPos := int(p.OAM[base+1])
		size := p.OAM[base+3]&0x02 != 0
		height := 8
		if size {
			height = 16
		}
		if line < yPos || line >= yPos+height {
			continue
		}
		xPos := int(p.OAM[base])
		tile := uint16(p.OAM[base+2])
		attr := p.OAM[base+3]
		pal := (attr >> 1) & 0x7
		flipH := attr&0x40 != 0
		flipV := attr&0x80 != 0

		row := line - yPos
		if flipV {
			row = height - 1 - row
		}
		for px := 0; px < height; px++ {
			sx := xPos + px
			if sx < 0 || sx >= screenWidth {
				continue
			}
			drawPX := px
			if flipH {
				drawPX = height - 1 - px
			}
			colorIndex := p.tilePixel(0x6000, tile, drawPX%8, row%8, 4)
			if colorIndex == 0 {
				continue
			}
			out[sx] = p.decodeColor(p.CGRAM[128+uint16(pal)*16+uint16(colorIndex)])
			mainLayer[sx] = -1
		}
	}
}

func (p *PPU) colorMathApplies(layer int) bool {
	if layer == -2 {
		return p.colorMathEnable&0x20 != 0 // backdrop math-enable bit
	}
	if layer == -1 {
		return p.colorMathEnable&0x10 != 0
	}
	if layer >= 1 && layer <= 4 {
		return p.colorMathEnable&(1<<uint(layer-1)) != 0
	}
	return false
}

// applyColorMath blends the sub-screen color into the main-screen pixel per
// the add/subtract and half-color settings; the sub-screen is approximated
// here as the backdrop color, since this module does not render a full
// independent sub-screen composite.
func (p *PPU) applyColorMath(main video.RGB24, x, line int) video.RGB24 {
	sub := p.decodeColor(p.CGRAM[0])
	blend := func(a, b uint8) uint8 {
		var v int
		if p.colorMathAdd {
			v = int(a) + int(b)
		} else {
			v = int(a) - int(b)
		}
		if p.colorMathHalf {
			v /= 2
		}
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		return uint8(v)
	}
	return video.RGB24{R: blend(main.R, sub.R), G: blend(main.G, sub.G), B: blend(main.B, sub.B)}
}
