// Package nesmappers implements the iNES mapper catalog: NROM (0), MMC1
// (1), UxROM (2), CNROM (3), MMC3 (4), AxROM (7), and VRC7 (85), the
// common subset that covers the large majority of licensed NES releases
// plus the expansion-audio cartridge class.
//
// Mapper 4 (MMC3) implements the standard bank-register/offset-table
// layout and scanline IRQ counter; the simpler mappers follow the same
// PRG/CHR-offset-table shape scaled down to their smaller register
// files.
package nesmappers

import "github.com/retrocore/retrocore/cart"

// Mirror is the nametable mirroring mode a mapper can select or fix.
type Mirror int

const (
	MirrorHorizontal Mirror = iota
	MirrorVertical
	MirrorSingleLower
	MirrorSingleUpper
	MirrorFourScreen
)

// New constructs the Mapper for the given iNES mapper number. PRG/CHR are
// the ROM's program/character banks as laid out in the file (post-header);
// chrRAM is true when the header declares zero CHR-ROM banks (CHR is RAM).
// prgRAMSize is the declared PRG-RAM size in bytes (0 if none).
func New(number int, prg, chr []byte, chrRAM bool, prgRAMSize int, fixedMirror Mirror) (cart.Mapper, error) {
	switch number {
	case 0:
		return newNROM(prg, chr, chrRAM, prgRAMSize), nil
	case 1:
		return newMMC1(prg, chr, chrRAM, prgRAMSize), nil
	case 2:
		return newUxROM(prg, chr, chrRAM, prgRAMSize, fixedMirror), nil
	case 3:
		return newCNROM(prg, chr, chrRAM, fixedMirror), nil
	case 4:
		return newMMC3(prg, chr, chrRAM, prgRAMSize), nil
	case 7:
		return newAxROM(prg, chr, chrRAM), nil
	case 85:
		return newVRC7(prg, chr, chrRAM, prgRAMSize), nil
	default:
		return nil, cart.ErrUnsupportedMapper
	}
}

// MirrorProvider is implemented by every mapper in this package; the
// System Core's PPU wiring type-asserts a cart.Mapper against it to learn
// the current nametable mirroring mode, since cart.Mapper's own interface
// has no NES-specific concept of mirroring.
type MirrorProvider interface {
	Mirror() Mirror
}

// MirrorOf returns m's current mirroring mode, defaulting to horizontal if
// m does not implement MirrorProvider (true of no mapper in this package,
// but kept defensive for forward compatibility with mappers added later).
func MirrorOf(m cart.Mapper) Mirror {
	if mp, ok := m.(MirrorProvider); ok {
		return mp.Mirror()
	}
	return MirrorHorizontal
}
