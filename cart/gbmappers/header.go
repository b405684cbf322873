// Package gbmappers implements the Game Boy / Game Boy Color cartridge
// header parse and the MBC catalog: ROM-only, MBC1, MBC2, MBC3 (with its
// S-RTC real-time-clock registers), and MBC5.
//
// Grounded on cart/nesmappers' header-then-dispatch shape, adapted to the
// GB cartridge header's own fixed $0100-$014F layout (no external magic
// number the way iNES has one; the header lives inside the ROM image
// itself, the same convention cart/snescart follows for SNES).
package gbmappers

import (
	"fmt"

	"github.com/retrocore/retrocore/cart"
)

const (
	headerCartType = 0x147
	headerROMSize  = 0x148
	headerRAMSize  = 0x149
)

// ramSizeTable maps the header's RAM-size code to bytes; code 1 (2KB) is
// a documented oddity some early titles use despite never shipping in a
// released cartridge.
var ramSizeTable = [6]int{0, 2048, 8192, 32768, 131072, 65536}

// Load parses the cartridge header embedded in data and constructs the
// matching Mapper.
func Load(data []byte) (cart.Mapper, error) {
	if len(data) < 0x150 {
		return nil, fmt.Errorf("gbmappers: %w: image shorter than cartridge header", cart.ErrMalformedHeader)
	}

	cartType := data[headerCartType]
	romSizeCode := data[headerROMSize]
	ramSizeCode := data[headerRAMSize]

	romSize := 32768 << romSizeCode
	if len(data) < romSize {
		romSize = len(data) - (len(data) % 16384)
	}
	rom := data[:romSize]

	ramSize := 0
	if int(ramSizeCode) < len(ramSizeTable) {
		ramSize = ramSizeTable[ramSizeCode]
	}

	switch {
	case cartType == 0x00 || cartType == 0x08 || cartType == 0x09:
		return newROMOnly(rom, ramSize), nil
	case cartType >= 0x01 && cartType <= 0x03:
		return newMBC1(rom, ramSize), nil
	case cartType == 0x05 || cartType == 0x06:
		return newMBC2(rom), nil
	case cartType >= 0x0F && cartType <= 0x13:
		return newMBC3(rom, ramSize), nil
	case cartType >= 0x19 && cartType <= 0x1E:
		return newMBC5(rom, ramSize), nil
	default:
		return nil, fmt.Errorf("gbmappers: %w: cartridge type $%02X", cart.ErrUnsupportedMapper, cartType)
	}
}

// CGBFlag reports the header's $0143 byte, which the System Core consults
// to decide whether to boot in CGB-enhanced mode.
func CGBFlag(data []byte) byte {
	if len(data) <= 0x143 {
		return 0
	}
	return data[0x143]
}
