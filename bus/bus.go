// Package bus implements the system memory map every processor host reads
// and writes through: RAM backing, mirror regions, mapper hooks, and
// memory-mapped device registers, with hardware-accurate open-bus behavior
// for unmapped addresses.
//
// Modeled on a page-bitmap-accelerated I/O region dispatch design,
// generalized from a single fixed 32MB address space to an arbitrary set
// of per-system address widths and region lists.
package bus

import "fmt"

// Bus is the interface every CPU decoder calls for memory access. Width is
// byte/word/longword depending on the host CPU; not every system needs all
// three.
type Bus interface {
	Read8(addr uint32) uint8
	Write8(addr uint32, value uint8)
	Read16(addr uint32) uint16
	Write16(addr uint32, value uint16)
}

// Bus32 extends Bus with 32-bit access, used by the 68000 and SH-2 hosts.
type Bus32 interface {
	Bus
	Read32(addr uint32) uint32
	Write32(addr uint32, value uint32)
}

// Region is a [Start,End] inclusive address range with read/write handlers.
// A nil handler means "not readable"/"not writable" through this region;
// Map still logs and returns open bus rather than panicking on such access
// per the never-panic policy.
type Region struct {
	Start, End uint32
	Read       func(addr uint32) uint8
	Write      func(addr uint32, value uint8)
	Name       string
}

func (r Region) contains(addr uint32) bool { return addr >= r.Start && addr <= r.End }

// Map is an ordered list of memory-mapped regions plus RAM backing and the
// open-bus fallback. Regions are checked in registration order; the first
// match wins, mirroring real decoders where address-decode priority matters
// (e.g. a mirror region registered before its shadowed sibling).
type Map struct {
	regions []Region

	// openBus is the last byte value driven onto the bus by any access,
	// returned verbatim for unmapped reads.
	openBus uint8

	// Warn receives a formatted message for every runtime anomaly (unmapped
	// access) the map observes. Nil means silence; System Cores wire this to
	// their logger.
	Warn func(format string, args ...any)
}

// NewMap creates an empty memory map. Regions are added with AddRegion.
func NewMap() *Map {
	return &Map{}
}

// AddRegion registers a memory-mapped region. Regions must not be added
// after the bus has been sealed by a System Core at session start; callers
// are responsible for only calling this during system construction.
func (m *Map) AddRegion(r Region) {
	m.regions = append(m.regions, r)
}

func (m *Map) find(addr uint32) *Region {
	for i := range m.regions {
		if m.regions[i].contains(addr) {
			return &m.regions[i]
		}
	}
	return nil
}

// Read8 returns the byte at addr, routing through registered regions or
// falling back to the open-bus value for unmapped space.
func (m *Map) Read8(addr uint32) uint8 {
	if r := m.find(addr); r != nil {
		if r.Read != nil {
			v := r.Read(addr)
			m.openBus = v
			return v
		}
		m.warn("open-bus read of write-only region %q at %#x", r.Name, addr)
		return m.openBus
	}
	m.warn("open-bus read of unmapped address %#x", addr)
	return m.openBus
}

// Write8 writes the byte at addr, routing through registered regions.
// Writes to unmapped or read-only regions are logged and otherwise ignored
// rather than panicking.
func (m *Map) Write8(addr uint32, value uint8) {
	m.openBus = value
	r := m.find(addr)
	if r == nil {
		m.warn("write to unmapped address %#x (value %#x)", addr, value)
		return
	}
	if r.Write == nil {
		m.warn("write to read-only region %q at %#x (value %#x)", r.Name, addr, value)
		return
	}
	r.Write(addr, value)
}

// Read16 performs a big-endian 16-bit read composed of two Read8 calls,
// matching the 68000/Z80/6502 bus convention used across these systems
// (the 6502/Z80 buses are byte-only and simply never call this).
func (m *Map) Read16(addr uint32) uint16 {
	hi := m.Read8(addr)
	lo := m.Read8(addr + 1)
	return uint16(hi)<<8 | uint16(lo)
}

// Write16 performs a big-endian 16-bit write composed of two Write8 calls.
func (m *Map) Write16(addr uint32, value uint16) {
	m.Write8(addr, uint8(value>>8))
	m.Write8(addr+1, uint8(value))
}

// Read32 performs a big-endian 32-bit read, used by 68000/SH-2 hosts.
func (m *Map) Read32(addr uint32) uint32 {
	hi := m.Read16(addr)
	lo := m.Read16(addr + 2)
	return uint32(hi)<<16 | uint32(lo)
}

// Write32 performs a big-endian 32-bit write.
func (m *Map) Write32(addr uint32, value uint32) {
	m.Write16(addr, uint16(value>>16))
	m.Write16(addr+2, uint16(value))
}

// OpenBus returns the current open-bus value without side effects, used by
// video/audio units that need the "last value on the bus" without driving
// a fresh read.
func (m *Map) OpenBus() uint8 { return m.openBus }

func (m *Map) warn(format string, args ...any) {
	if m.Warn != nil {
		m.Warn(format, args...)
	}
}

// Anomaly is a structured runtime-anomaly record: the kind of anomaly plus
// the PC, address, and MC tick it occurred at, for a structured warning
// log line.
type Anomaly struct {
	Kind    string
	PC      uint32
	Addr    uint32
	Tick    uint64
	Message string
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s pc=%#x addr=%#x tick=%d: %s", a.Kind, a.PC, a.Addr, a.Tick, a.Message)
}
