// Package smsmappers implements the Master System / Game Gear cartridge
// mapper: the Sega-standard three-16KB-slot bank switch addressed through
// the $FFFC-$FFFF register window that aliases the top of system RAM.
//
// Grounded on cart/genmappers' bank-offset-table shape (Standard's linear
// mapping, SSF2's register-driven bank swap), adapted from the Genesis's
// 512KB SSF2 windows down to the Sega mapper's 16KB slots and from a
// discrete register address range down to one that overlaps RAM, which is
// why Write must be consulted before the caller falls through to RAM.
package smsmappers

import "github.com/retrocore/retrocore/cart"

const (
	slotSize = 0x4000
	pageSize = 0x4000
)

// Standard is the Sega mapper used by the overwhelming majority of SMS/GG
// carts: ROM slot 0 spans $0000-$3FFF (its first 1KB fixed to ROM page 0
// regardless of the slot 0 bank register, a documented hardware quirk so
// the boot vector is always reachable), slot 1 spans $4000-$7FFF, and
// slot 2 spans $8000-$BFFF, optionally replaced by on-cart RAM. Bank
// registers live at $FFFC-$FFFF, which double as the top of the console's
// mirrored work RAM; the System Core must route writes in that range
// through this mapper before (or instead of) system RAM.
type Standard struct {
	rom []byte
	ram []byte // on-cart RAM, paged into slot 2 when ramMapped is set

	slotBank  [3]uint8
	ramMapped bool
	ramBank   uint8
}

// NewStandard constructs the mapper. ramSize of 0 means the cartridge
// carries no on-cart RAM (the common case; only a handful of SMS titles,
// e.g. Phantasy Star, use it for battery-backed saves).
func NewStandard(rom []byte, ramSize int) *Standard {
	s := &Standard{rom: rom}
	if ramSize > 0 {
		s.ram = cart.InitializedSRAM(ramSize)
	}
	return s
}

func (s *Standard) romPage(page uint32) uint8 {
	if len(s.rom) == 0 {
		return 0
	}
	pages := uint32(len(s.rom)) / pageSize
	if pages == 0 {
		pages = 1
	}
	return uint8(page % pages)
}

func (s *Standard) Read(addr uint32) uint8 {
	if addr >= 0xFFFC {
		return s.readRegister(addr)
	}
	if addr >= 0x8000 && addr <= 0xBFFF && s.ramMapped && s.ram != nil {
		off := addr - 0x8000
		bank := uint32(s.ramBank) * 0x4000
		return s.ram[(bank+off)%uint32(len(s.ram))]
	}

	slot := 0
	switch {
	case addr < 0x4000:
		slot = 0
	case addr < 0x8000:
		slot = 1
	default:
		slot = 2
	}
	page := uint32(s.slotBank[slot])
	if slot == 0 && addr < 0x400 {
		page = 0 // the first 1KB is always fixed to page 0
	}
	idx := page*pageSize + addr%slotSize
	if len(s.rom) == 0 {
		return 0
	}
	return s.rom[idx%uint32(len(s.rom))]
}

// readRegister exposes the bank registers for readback; real hardware
// does this too since they're RAM-mirror-backed, not write-only latches.
func (s *Standard) readRegister(addr uint32) uint8 {
	switch addr {
	case 0xFFFD:
		return s.slotBank[0]
	case 0xFFFE:
		return s.slotBank[1]
	case 0xFFFF:
		return s.slotBank[2]
	default: // 0xFFFC
		v := s.ramBank & 0x07
		if s.ramMapped {
			v |= 0x08
		}
		return v
	}
}

func (s *Standard) Write(addr uint32, value uint8) {
	switch addr {
	case 0xFFFC:
		s.ramBank = value & 0x07
		s.ramMapped = value&0x08 != 0
		return
	case 0xFFFD:
		s.slotBank[0] = s.romPage(uint32(value))
		return
	case 0xFFFE:
		s.slotBank[1] = s.romPage(uint32(value))
		return
	case 0xFFFF:
		s.slotBank[2] = s.romPage(uint32(value))
		return
	}
	if addr >= 0x8000 && addr <= 0xBFFF && s.ramMapped && s.ram != nil {
		off := addr - 0x8000
		bank := uint32(s.ramBank) * 0x4000
		s.ram[(bank+off)%uint32(len(s.ram))] = value
	}
}

func (s *Standard) SRAM() []byte { return s.ram }

func (s *Standard) BankState() []byte {
	state := []byte{s.slotBank[0], s.slotBank[1], s.slotBank[2], s.ramBank}
	if s.ramMapped {
		state = append(state, 1)
	} else {
		state = append(state, 0)
	}
	return state
}

func (s *Standard) LoadBankState(state []byte) {
	if len(state) < 5 {
		return
	}
	s.slotBank[0], s.slotBank[1], s.slotBank[2] = state[0], state[1], state[2]
	s.ramBank = state[3]
	s.ramMapped = state[4] != 0
}
