package nes

import "github.com/retrocore/retrocore/video"

// nesPalette is the standard NTSC NES 64-entry RGB palette, used to decode
// the 6-bit (well, effectively indexed via 5-bit + grayscale-mask) palette
// RAM values into display colors.
var nesPalette = [64]video.RGB24{
	{84, 84, 84}, {0, 30, 116}, {8, 16, 144}, {48, 0, 136}, {68, 0, 100}, {92, 0, 48}, {84, 4, 0}, {60, 24, 0},
	{32, 42, 0}, {8, 58, 0}, {0, 64, 0}, {0, 60, 0}, {0, 50, 60}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0},
	{152, 150, 152}, {8, 76, 196}, {48, 50, 236}, {92, 30, 228}, {136, 20, 176}, {160, 20, 100}, {152, 34, 32}, {120, 60, 0},
	{84, 90, 0}, {40, 114, 0}, {8, 124, 0}, {0, 118, 40}, {0, 102, 120}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0},
	{236, 238, 236}, {76, 154, 236}, {120, 124, 236}, {176, 98, 236}, {228, 84, 236}, {236, 88, 180}, {236, 106, 100}, {212, 136, 32},
	{160, 170, 0}, {116, 196, 0}, {76, 208, 32}, {56, 204, 108}, {56, 180, 204}, {60, 60, 60}, {0, 0, 0}, {0, 0, 0},
	{236, 238, 236}, {168, 204, 236}, {188, 188, 236}, {212, 178, 236}, {236, 174, 236}, {236, 174, 212}, {236, 180, 176}, {228, 196, 144},
	{204, 210, 120}, {180, 222, 120}, {168, 226, 144}, {152, 226, 180}, {160, 214, 228}, {160, 162, 160}, {0, 0, 0}, {0, 0, 0},
}

// renderLine draws one visible scanline: background tile fetch through the
// current scroll (coarse X, nametable select and fine Y from vramAddr, fine
// X from fineX; vramAddr's coarse-Y bits are not applied, so tile rows count
// from the top of the nametable), then up to 8
// sprites (OAM overflow beyond 8/line is not modeled; exhaustive
// per-scanline sprite-overflow flag timing is out of scope), applying
// sprite-0 hit detection against the opaque background pixel set.
func (p *PPU) renderLine(line int) {
	bgOpaque := make([]bool, screenWidth)
	out := make([]video.RGB24, screenWidth)

	if p.mask&0x08 != 0 {
		p.renderBackground(line, out, bgOpaque)
	}
	if p.mask&0x10 != 0 {
		p.renderSprites(line, out, bgOpaque)
	}

	backdrop := p.decodePaletteEntry(0)
	for x := 0; x < screenWidth; x++ {
		if !bgOpaque[x] {
			out[x] = backdrop
		}
		p.frame.PutPixel(x, line, out[x])
	}
}

func (p *PPU) renderBackground(line int, out []video.RGB24, opaque []bool) {
	v := p.vramAddr.Applied
	coarseX := v & 0x1F
	coarseY := (v >> 5) & 0x1F
	nametableSel := (v >> 10) & 0x3
	fineY := (v >> 12) & 0x7
	_ = coarseY

	row := (line + int(fineY)) / 8
	patternTable := uint16(0)
	if p.ctrl&0x10 != 0 {
		patternTable = 0x1000
	}

	for x := 0; x < screenWidth; x++ {
		totalX := x + int(p.fineX)
		col := (int(coarseX) + totalX/8) & 0x1F
		ntBase := uint16(0x2000) | nametableSel<<10
		ntAddr := ntBase + uint16((row%30)*32+col)
		tileIndex := p.readVRAM(ntAddr)

		attrAddr := ntBase + 0x3C0 + uint16((row/4)*8+col/4)
		attrByte := p.readVRAM(attrAddr)
		shift := uint((col%4)/2*2 + (row%4)/2*4)
		pal := (attrByte >> shift) & 0x3

		py := (line + int(fineY)) % 8
		px := totalX % 8
		colorIndex := p.tilePixel(patternTable, tileIndex, px, py)
		if colorIndex == 0 {
			continue
		}
		out[x] = p.decodePaletteEntry(uint16(pal)*4 + uint16(colorIndex))
		opaque[x] = true
	}
}

func (p *PPU) renderSprites(line int, out []video.RGB24, bgOpaque []bool) {
	bgOnly := append([]bool(nil), bgOpaque...) // background pixels only, for sprite-0 hit
	spriteHeight := 8
	if p.ctrl&0x20 != 0 {
		spriteHeight = 16
	}
	count := 0
	for i := 63; i >= 0; i-- { // reverse order so sprite 0 draws last (highest priority)
		base := i * 4
		yPos := int(p.OAM[base]) + 1
		if line < yPos || line >= yPos+spriteHeight {
			continue
		}
		count++
		if count > 8 {
			break
		}
		tile := p.OAM[base+1]
		attr := p.OAM[base+2]
		xPos := int(p.OAM[base+3])
		pal := attr & 0x3
		behindBG := attr&0x20 != 0
		flipH := attr&0x40 != 0
		flipV := attr&0x80 != 0

		row := line - yPos
		if flipV {
			row = spriteHeight - 1 - row
		}

		patternTable := uint16(0)
		tileNum := tile
		if spriteHeight == 16 {
			patternTable = uint16(tile&1) << 12
			tileNum = tile &^ 1
			if row >= 8 {
				tileNum++
				row -= 8
			}
		} else if p.ctrl&0x08 != 0 {
			patternTable = 0x1000
		}

		for px := 0; px < 8; px++ {
			sx := xPos + px
			if sx < 0 || sx >= screenWidth {
				continue
			}
			drawPX := px
			if flipH {
				drawPX = 7 - px
			}
			colorIndex := p.tilePixel(patternTable, tileNum, drawPX, row)
			if colorIndex == 0 {
				continue
			}
			if i == 0 && bgOnly[sx] {
				p.status |= 0x40 // sprite-0 hit
			}
			if behindBG && bgOpaque[sx] {
				continue
			}
			out[sx] = p.decodePaletteEntry(16 + uint16(pal)*4 + uint16(colorIndex))
			bgOpaque[sx] = true
		}
	}
}

func (p *PPU) tilePixel(patternTable uint16, tile byte, px, py int) byte {
	addr := patternTable + uint16(tile)*16 + uint16(py)
	lo := p.readVRAM(addr)
	hi := p.readVRAM(addr + 8)
	bit := 7 - px
	return (lo>>uint(bit))&1 | ((hi>>uint(bit))&1)<<1
}

func (p *PPU) decodePaletteEntry(index uint16) video.RGB24 {
	v := p.Palette[index&0x1F]
	if index&0x1F%4 == 0 {
		v = p.Palette[0] // background-color mirroring for palette entries $10/$14/$18/$1C
	}
	c := nesPalette[v&0x3F]
	if p.mask&0x01 != 0 {
		luma := uint8((int(c.R)*299 + int(c.G)*587 + int(c.B)*114) / 1000)
		c = video.RGB24{R: luma, G: luma, B: luma}
	}
	return c
}
