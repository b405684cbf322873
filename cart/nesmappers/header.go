package nesmappers

import (
	"fmt"

	"github.com/retrocore/retrocore/cart"
)

// inesMagic is the 4-byte "NES\x1A" signature every iNES/NES 2.0 image
// starts with.
var inesMagic = [4]byte{'N', 'E', 'S', 0x1A}

// LoadINES parses a 16-byte iNES 1.0 header (NES 2.0 images parse
// correctly for this subset of fields but their extended PRG/CHR-size and
// submapper bytes are not consulted) and constructs the matching
// cart.Mapper. It returns the detected mirroring mode and battery flag
// alongside the Mapper so the NES
// System Core can wire the PPU and the persistence path without
// re-parsing the header itself.
func LoadINES(data []byte) (m cart.Mapper, mirror Mirror, battery bool, err error) {
	if len(data) < 16 {
		return nil, 0, false, fmt.Errorf("nesmappers: %w: image shorter than iNES header", cart.ErrMalformedHeader)
	}
	var magic [4]byte
	copy(magic[:], data[:4])
	if magic != inesMagic {
		return nil, 0, false, fmt.Errorf("nesmappers: %w: missing NES\\x1A signature", cart.ErrMalformedHeader)
	}

	prgBanks := int(data[4])
	chrBanks := int(data[5])
	flags6 := data[6]
	flags7 := data[7]

	mapperNum := int(flags6>>4) | int(flags7&0xF0)

	mirror = MirrorHorizontal
	switch {
	case flags6&0x08 != 0:
		mirror = MirrorFourScreen
	case flags6&0x01 != 0:
		mirror = MirrorVertical
	}
	battery = flags6&0x02 != 0

	trainerLen := 0
	if flags6&0x04 != 0 {
		trainerLen = 512
	}

	prgLen := prgBanks * 16384
	chrLen := chrBanks * 8192

	off := 16 + trainerLen
	if off+prgLen > len(data) {
		return nil, 0, false, fmt.Errorf("nesmappers: %w: PRG-ROM truncated", cart.ErrMalformedHeader)
	}
	prg := data[off : off+prgLen]
	off += prgLen

	var chr []byte
	chrRAM := chrLen == 0
	if !chrRAM {
		if off+chrLen > len(data) {
			return nil, 0, false, fmt.Errorf("nesmappers: %w: CHR-ROM truncated", cart.ErrMalformedHeader)
		}
		chr = data[off : off+chrLen]
	}

	// Byte 8 is the PRG-RAM size in 8KB units; 0 means "assume 8KB" per
	// the original iNES convention most dumps from this era rely on.
	prgRAMSize := int(data[8]) * 8192
	if prgRAMSize == 0 {
		prgRAMSize = 8192
	}

	mp, err := New(mapperNum, prg, chr, chrRAM, prgRAMSize, mirror)
	if err != nil {
		return nil, 0, false, err
	}
	return mp, mirror, battery, nil
}
