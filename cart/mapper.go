// Package cart implements the cartridge/disc layer's cartridge half:
// the Mapper interface every console's memory map wraps around, header/
// region parsing, and the per-console mapper catalogs.
//
// Follows a load-and-dispatch shape for cartridge media, with a
// register-bank-offset pattern for bank-switching mappers (used in
// cart/nesmappers) and a minimal addr/size read-or-write Mapper contract.
package cart

import (
	"errors"
	"fmt"

	"github.com/retrocore/retrocore/audio"
)

// ErrUnsupportedMapper is a load-time error for a cartridge header naming a
// mapper this module has no implementation for.
var ErrUnsupportedMapper = errors.New("cart: unsupported mapper")

// ErrMalformedHeader is a load-time error for a cartridge image whose
// header fails the documented bit-exact layout checks.
var ErrMalformedHeader = errors.New("cart: malformed header")

// Mapper is the per-cartridge logic that remaps CPU address space to ROM
// banks and on-cart RAM. A Mapper owns its own ROM/RAM backing; the
// System Core's bus.Map registers regions that call through to it.
type Mapper interface {
	// Read returns the byte the cartridge drives onto the bus for addr.
	Read(addr uint32) uint8
	// Write accepts a byte write to addr; mappers that are read-only at
	// addr simply ignore it (bus.Map already logs unmapped/read-only
	// writes, so Mapper.Write need not).
	Write(addr uint32, value uint8)
	// SRAM returns the mapper's battery-backed RAM/EEPROM contents for
	// persistence, or nil if the cartridge has none.
	SRAM() []byte
	// BankState returns a serialized snapshot of the mapper's banking
	// registers for save-state inclusion.
	BankState() []byte
	// LoadBankState restores a snapshot previously returned by BankState.
	LoadBankState(state []byte)
}

// ExpansionAudio is implemented by mappers that carry their own sound
// hardware (VRC7's OPLL-derived FM, the FDS wave channel): the System
// Core type-asserts a loaded Mapper against this to discover an extra
// audio.Unit to add to its mix.
type ExpansionAudio interface {
	ExpansionAudioUnit() audio.Unit
}

// Region identifies which console/header family a ROM image belongs to,
// detected at load time from file extension and header contents.
type Region int

const (
	RegionUnknown Region = iota
	RegionNTSCUS
	RegionNTSCJP
	RegionPALEU
	RegionSSF // off-spec "SEGA DOA" region string, treated as PAL/EU's Genesis sibling but flagged distinctly
)

// String renders the Region the way load-time diagnostics report it.
func (r Region) String() string {
	switch r {
	case RegionNTSCUS:
		return "NTSC-US"
	case RegionNTSCJP:
		return "NTSC-JP"
	case RegionPALEU:
		return "PAL-EU"
	case RegionSSF:
		return "SSF"
	default:
		return "unknown"
	}
}

// DetectGenesisRegion parses the 3-byte region-code field at header offset
// $1F0 ("Region"/"Country") of a Genesis ROM header, recognizing both the
// documented single-letter codes and the off-spec string variants
// ("EUROPE" maps to PAL/EU, "SEGA DOA" maps to the SSF flag).
func DetectGenesisRegion(header []byte) (Region, error) {
	if len(header) < 0x200 {
		return RegionUnknown, fmt.Errorf("cart: %w: header too short for region field", ErrMalformedHeader)
	}
	field := string(header[0x1F0:0x1F3])
	switch {
	case containsByte(header[0x1F0:0x200], 'E') && hasSubstring(header, "EUROPE"):
		return RegionPALEU, nil
	case hasSubstring(header, "SEGA DOA"):
		return RegionSSF, nil
	case field[0] == 'J':
		return RegionNTSCJP, nil
	case field[0] == 'U':
		return RegionNTSCUS, nil
	case field[0] == 'E':
		return RegionPALEU, nil
	default:
		return RegionUnknown, nil
	}
}

func containsByte(b []byte, c byte) bool {
	for _, v := range b {
		if v == c {
			return true
		}
	}
	return false
}

func hasSubstring(haystack []byte, needle string) bool {
	n := len(needle)
	for i := 0; i+n <= len(haystack); i++ {
		if string(haystack[i:i+n]) == needle {
			return true
		}
	}
	return false
}

// InitializedSRAM allocates an SRAM/EEPROM backing store initialized to
// all-ones, matching the documented hardware power-on state
// ("initialized to all-ones (not zeros) on first boot").
func InitializedSRAM(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}
