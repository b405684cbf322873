package system

import (
	"fmt"

	"github.com/retrocore/retrocore/audio"
	"github.com/retrocore/retrocore/audio/gbapu"
	"github.com/retrocore/retrocore/bus"
	"github.com/retrocore/retrocore/cart"
	"github.com/retrocore/retrocore/cart/gbmappers"
	"github.com/retrocore/retrocore/clockdrv"
	"github.com/retrocore/retrocore/cpu"
	"github.com/retrocore/retrocore/cpu/sm83"
	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
	"github.com/retrocore/retrocore/video/gb"
)

// GB clock dividers. The SM83's Step already returns T-cycles at the
// GB's native 4.194304MHz rate, which this module takes directly as the
// MC unit (no mcScaledDecoder needed, the same convention the 68000 host
// uses); the PPU's dot clock runs at that same rate 1:1, and the APU's
// internal step divides it by 2 to approximate its ~2MHz internal tick,
// per audio/gbapu's own documented divider convention.
const (
	gbPPUDivider mclock.Divider = 1
	gbAPUDivider mclock.Divider = 2
)

// gbCPUAdapter implements cpu.Decoder, halving the MC cost of every
// instruction while the CPU is in CGB double-speed mode: the CPU clock
// doubles but every other unit in the system keeps running at the fixed
// 4.194304MHz rate, so the same instruction execution must consume half
// as many MC ticks to advance the CPU twice as fast relative to them.
type gbCPUAdapter struct {
	cpu *sm83.CPU
}

func (d gbCPUAdapter) Step() mclock.Tick {
	t := d.cpu.Step()
	if d.cpu.DoubleSpeed {
		return (t + 1) / 2
	}
	return t
}

// gbTimer models the DIV/TIMA/TMA/TAC registers: a free-running 16-bit
// counter whose top byte is DIV, and a TIMA counter clocked by whichever
// bit of that counter TAC selects, raising the Timer interrupt on
// overflow and reloading from TMA.
type gbTimer struct {
	counter uint16
	tima    byte
	tma     byte
	tac     byte

	RaiseInterrupt func()

	mc        mclock.Tick
	remainder mclock.Tick
}

var timerTacBit = [4]uint16{1 << 9, 1 << 3, 1 << 5, 1 << 7}

func (t *gbTimer) StepTo(to mclock.Tick) {
	steps, rem := mclock.Divider(1).Steps(to-t.mc, t.remainder)
	t.mc = to
	t.remainder = rem
	for i := uint64(0); i < steps; i++ {
		t.stepOnce()
	}
}

func (t *gbTimer) NextDeadline() mclock.Tick { return t.mc + 1 }

func (t *gbTimer) stepOnce() {
	prev := t.counter
	t.counter++
	if t.tac&0x04 == 0 {
		return
	}
	bit := timerTacBit[t.tac&0x03]
	if prev&bit != 0 && t.counter&bit == 0 {
		t.tima++
		if t.tima == 0 {
			t.tima = t.tma
			if t.RaiseInterrupt != nil {
				t.RaiseInterrupt()
			}
		}
	}
}

func (t *gbTimer) WriteRegister(addr uint16, v byte) {
	switch addr {
	case 0xFF04:
		t.counter = 0
	case 0xFF05:
		t.tima = v
	case 0xFF06:
		t.tma = v
	case 0xFF07:
		t.tac = v
	}
}

func (t *gbTimer) ReadRegister(addr uint16) byte {
	switch addr {
	case 0xFF04:
		return byte(t.counter >> 8)
	case 0xFF05:
		return t.tima
	case 0xFF06:
		return t.tma
	case 0xFF07:
		return t.tac | 0xF8
	}
	return 0xFF
}

// GB is the Game Boy / Game Boy Color System Core: a single SM83 CPU, the
// PPU, the 4-channel APU, the cartridge's MBC Mapper, the DIV/TIMA timer,
// and CGB's double-speed switch and general-purpose/HBlank DMA.
//
// Grounded on system/nes.go's composition shape (a single CPU, unified
// address space, no bus-arbitration rendezvous), generalized to the GB's
// own interrupt-vector scheme (IF/IE bitmask rather than a single NMI/IRQ
// line pair) and CGB's two extra registers (KEY1 speed switch, HDMA5).
type GB struct {
	cfg Config

	driver *clockdrv.Driver

	cpuHost *cpu.Host
	cpu     *sm83.CPU
	cpuBus  *bus.Map

	ppu   *gb.PPU
	apu   *gbapu.APU
	timer *gbTimer

	mapper cart.Mapper

	wram      [0x8000]byte // 4KB fixed bank 0 + 7 switchable 4KB banks on CGB
	wramBank  int
	hram      [0x7F]byte

	cgbMode bool

	hdmaSrc, hdmaDst uint16
	hdmaLen          int
	hdmaHBlankMode   bool

	ifReg, ieReg byte

	// poller and joypadSelect back $FF00: bit4 clear selects the
	// direction keys, bit5 clear selects the action buttons, either or
	// both at once, matching the matrix-select protocol real hardware
	// uses (active-low on both the select bits and the returned state).
	poller        InputPoller
	joypadSelect  byte

	renderSink RenderSink
	sampleSink SampleSink
	audioUnits []audio.Unit

	flush *flushWorker
}

// NewGB constructs a GB/GBC System Core from a cartridge ROM image.
// CGB-enhanced behavior is enabled when the header's $0143 byte declares
// CGB support.
func NewGB(romData []byte, cfg Config) (*GB, error) {
	mapper, err := gbmappers.Load(romData)
	if err != nil {
		return nil, fmt.Errorf("system: failed to load Game Boy cartridge: %w", err)
	}

	g := &GB{cfg: cfg, mapper: mapper, flush: newFlushWorker(), wramBank: 1}
	g.cgbMode = gbmappers.CGBFlag(romData)&0xC0 != 0

	g.ppu = gb.New(gbPPUDivider)
	g.ppu.SetCGBMode(g.cgbMode)
	g.apu = gbapu.New(gbAPUDivider)
	g.timer = &gbTimer{}
	g.audioUnits = []audio.Unit{g.apu}

	g.buildCPUBus()
	g.cpu = sm83.New(g.cpuBus)
	g.cpuHost = cpu.NewHost("sm83", gbCPUAdapter{cpu: g.cpu})

	g.ppu.RaiseVBlank = func() { g.raiseInterrupt(0x01) }
	g.ppu.RaiseSTAT = func() { g.raiseInterrupt(0x02) }
	g.timer.RaiseInterrupt = func() { g.raiseInterrupt(0x04) }
	g.ppu.HDMAStep = g.stepHDMABlock

	g.driver = clockdrv.New()
	g.driver.AddProcessor(g.cpuHost)
	g.driver.AddDevice(g.ppu)
	g.driver.AddDevice(g.timer)
	g.driver.AddDevice(&audioDeviceAdapter{unit: g.apu, divider: gbAPUDivider})

	return g, nil
}

// raiseInterrupt sets the corresponding IF bit and, if the SM83's IME and
// IE both permit it, lets the CPU's own Step pick it up on its next
// call (the CPU consults pendingInterrupts/enabledInterrupts itself via
// RequestInterrupt, not a separate line-assert method, matching its own
// IF/IE bitmask convention).
func (g *GB) raiseInterrupt(bit byte) {
	g.ifReg |= bit
	g.cpu.RequestInterrupt(bit & g.ieReg)
}

func (g *GB) buildCPUBus() {
	m := bus.NewMap()
	m.AddRegion(bus.Region{
		Name: "rom-ram", Start: 0x0000, End: 0x7FFF,
		Read:  g.mapper.Read,
		Write: g.mapper.Write,
	})
	m.AddRegion(bus.Region{
		Name: "vram", Start: 0x8000, End: 0x9FFF,
		Read:  func(addr uint32) uint8 { return g.ppu.VRAM[uint32(g.ppu.VRAMBank)*0x2000+(addr-0x8000)] },
		Write: func(addr uint32, v uint8) { g.ppu.VRAM[uint32(g.ppu.VRAMBank)*0x2000+(addr-0x8000)] = v },
	})
	m.AddRegion(bus.Region{
		Name: "cart-ram", Start: 0xA000, End: 0xBFFF,
		Read:  g.mapper.Read,
		Write: g.mapper.Write,
	})
	m.AddRegion(bus.Region{
		Name:  "wram",
		Start: 0xC000, End: 0xFDFF,
		Read:  g.readWRAM,
		Write: g.writeWRAM,
	})
	m.AddRegion(bus.Region{
		Name: "oam", Start: 0xFE00, End: 0xFE9F,
		Read:  func(addr uint32) uint8 { return g.ppu.OAM[addr-0xFE00] },
		Write: func(addr uint32, v uint8) { g.ppu.OAM[addr-0xFE00] = v },
	})
	m.AddRegion(bus.Region{
		Name:  "io-hram",
		Start: 0xFF00, End: 0xFFFF,
		Read:  g.readIO,
		Write: g.writeIO,
	})
	g.cpuBus = m
}

// readWRAM/writeWRAM handle $C000-$FDFF: 4KB fixed bank 0 at $C000-$CFFF,
// a switchable bank (DMG: always 1; CGB: SVBK-selected 1-7) at $D000-
// $DFFF, and the $E000-$FDFF echo mirror of $C000-$DDFF.
func (g *GB) readWRAM(addr uint32) uint8 {
	off := addr - 0xC000
	if off >= 0x2000 {
		off -= 0x2000
	}
	if off < 0x1000 {
		return g.wram[off]
	}
	return g.wram[uint32(g.wramBank)*0x1000+(off-0x1000)]
}

func (g *GB) writeWRAM(addr uint32, v uint8) {
	off := addr - 0xC000
	if off >= 0x2000 {
		off -= 0x2000
	}
	if off < 0x1000 {
		g.wram[off] = v
		return
	}
	g.wram[uint32(g.wramBank)*0x1000+(off-0x1000)] = v
}

func (g *GB) readIO(addr uint32) uint8 {
	switch {
	case addr == 0xFF00:
		return g.readJoypad()
	case addr == 0xFF0F:
		return g.ifReg | 0xE0
	case addr >= 0xFF04 && addr <= 0xFF07:
		return g.timer.ReadRegister(uint16(addr))
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return g.apu.ReadRegister(uint16(addr))
	case addr >= 0xFF40 && addr <= 0xFF4B:
		return g.ppu.ReadRegister(uint16(addr))
	case addr == 0xFF4D:
		v := byte(0)
		if g.cpu.DoubleSpeed {
			v |= 0x80
		}
		if g.cpu.SpeedSwitchArmed {
			v |= 0x01
		}
		return v | 0x7E
	case addr >= 0xFF68 && addr <= 0xFF6B:
		return g.ppu.ReadRegister(uint16(addr))
	case addr == 0xFF70:
		return byte(g.wramBank) | 0xF8
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return g.hram[addr-0xFF80]
	case addr == 0xFFFF:
		return g.ieReg
	default:
		return 0xFF
	}
}

func (g *GB) writeIO(addr uint32, v uint8) {
	switch {
	case addr == 0xFF00:
		g.joypadSelect = v & 0x30
	case addr == 0xFF0F:
		g.ifReg = v & 0x1F
	case addr >= 0xFF04 && addr <= 0xFF07:
		g.timer.WriteRegister(uint16(addr), v)
	case addr >= 0xFF10 && addr <= 0xFF3F:
		g.apu.WriteRegister(uint16(addr), v)
	case addr >= 0xFF40 && addr <= 0xFF45:
		g.ppu.WriteRegister(uint16(addr), v)
	case addr == 0xFF46:
		g.oamDMA(v)
	case addr >= 0xFF47 && addr <= 0xFF4B:
		g.ppu.WriteRegister(uint16(addr), v)
	case addr == 0xFF4D:
		g.cpu.SpeedSwitchArmed = v&0x01 != 0
	case addr == 0xFF4F:
		g.ppu.WriteRegister(uint16(addr), v)
	case addr == 0xFF51:
		g.hdmaSrc = (g.hdmaSrc &^ 0xFF00) | uint16(v)<<8
	case addr == 0xFF52:
		g.hdmaSrc = (g.hdmaSrc &^ 0x00FF) | uint16(v&0xF0)
	case addr == 0xFF53:
		g.hdmaDst = (g.hdmaDst &^ 0xFF00) | uint16(v&0x1F)<<8
	case addr == 0xFF54:
		g.hdmaDst = (g.hdmaDst &^ 0x00FF) | uint16(v&0xF0)
	case addr == 0xFF55:
		g.startHDMA(v)
	case addr >= 0xFF68 && addr <= 0xFF6B:
		g.ppu.WriteRegister(uint16(addr), v)
	case addr == 0xFF70:
		bank := int(v & 0x07)
		if bank == 0 {
			bank = 1
		}
		g.wramBank = bank
	case addr >= 0xFF80 && addr <= 0xFFFE:
		g.hram[addr-0xFF80] = v
	case addr == 0xFFFF:
		g.ieReg = v
		g.cpu.SetEnabledInterrupts(v)
	}
}

// oamDMA implements the $FF46 DMA register: an instantaneous 160-byte
// copy into OAM. Real hardware takes 160 M-cycles and blocks the CPU from
// the bus for the duration; this module approximates that with a flat
// CPU stall rather than tracking per-byte timing, the same simplification
// system/nes.go's OAMDMA documents for its own $4014 port.
func (g *GB) oamDMA(page uint8) {
	base := uint32(page) << 8
	for i := 0; i < 0xA0; i++ {
		g.ppu.OAM[i] = g.cpuBus.Read8(base + uint32(i))
	}
	g.cpuHost.Stall(g.cpuHost.Committed() + 160*4)
}

// startHDMA implements $FF55: bit 7 clear requests a one-shot general-
// purpose DMA (copied immediately here, unlike real hardware's 1-block-
// per-2-CPU-cycles timing), bit 7 set arms HBlank DMA, one 16-byte block
// per H-blank, driven by the PPU's HDMAStep callback.
func (g *GB) startHDMA(v byte) {
	g.hdmaLen = (int(v&0x7F) + 1) * 16
	g.hdmaHBlankMode = v&0x80 != 0
	if g.hdmaHBlankMode {
		g.ppu.BeginHDMA((int(v&0x7F) + 1))
		return
	}
	for g.hdmaLen > 0 {
		g.copyHDMABlock(16)
	}
}

func (g *GB) stepHDMABlock() {
	if g.ppu.HDMABlocksRemaining() <= 0 {
		g.ppu.EndHDMA()
		return
	}
	g.copyHDMABlock(16)
	g.cpuHost.Stall(g.cpuHost.Committed() + 32) // one 16-byte block: 32 MC ticks in either speed
	if g.hdmaLen <= 0 {
		g.ppu.EndHDMA()
	}
}

func (g *GB) copyHDMABlock(n int) {
	for i := 0; i < n && g.hdmaLen > 0; i++ {
		v := g.cpuBus.Read8(uint32(g.hdmaSrc))
		g.ppu.VRAM[uint32(g.ppu.VRAMBank)*0x2000+uint32(g.hdmaDst&0x1FFF)] = v
		g.hdmaSrc++
		g.hdmaDst++
		g.hdmaLen--
	}
}

// SetInputPoller attaches the source of controller state. The Game Boy
// has only one physical pad; port 0 is consulted.
func (g *GB) SetInputPoller(p InputPoller) { g.poller = p }

// readJoypad implements $FF00: the selected group's four buttons are
// reported active-low in bits 0-3; unselected groups read as if
// unpressed. Both groups selected at once OR their bits together, the
// common (if rarely used) real-hardware behavior.
func (g *GB) readJoypad() uint8 {
	pad := pollPad(g.poller, 0)
	bits := uint8(0x0F)
	if g.joypadSelect&0x10 == 0 { // direction keys selected
		if pad.Pressed(ButtonRight) {
			bits &^= 0x01
		}
		if pad.Pressed(ButtonLeft) {
			bits &^= 0x02
		}
		if pad.Pressed(ButtonUp) {
			bits &^= 0x04
		}
		if pad.Pressed(ButtonDown) {
			bits &^= 0x08
		}
	}
	if g.joypadSelect&0x20 == 0 { // action buttons selected
		if pad.Pressed(ButtonA) {
			bits &^= 0x01
		}
		if pad.Pressed(ButtonB) {
			bits &^= 0x02
		}
		if pad.Pressed(ButtonSelect) {
			bits &^= 0x04
		}
		if pad.Pressed(ButtonStart) {
			bits &^= 0x08
		}
	}
	return g.joypadSelect | 0xC0 | bits
}

// SetSinks attaches the host's video/audio output; nil sinks are legal
// (headless smoke-test mode).
func (g *GB) SetSinks(render RenderSink, sample SampleSink) {
	g.renderSink = render
	g.sampleSink = sample
	if render != nil {
		g.ppu.OnFrame = render.Present
	}
}

// RunFrame advances the GB by one video frame's worth of master-clock
// ticks and drains the mixed audio into the sample sink.
func (g *GB) RunFrame() {
	const linesPerFrame = mclock.Tick(154)
	const dotsPerLine = mclock.Tick(456)
	frameTicks := linesPerFrame * dotsPerLine * mclock.Tick(gbPPUDivider)

	g.ppu.SetDoubleSpeed(g.cpu.DoubleSpeed)

	target := g.driver.MC() + frameTicks
	g.driver.RunSlice(target)

	if g.sampleSink != nil {
		frame := mixUnits(g.audioUnits)
		g.sampleSink.Write(frame[:])
	}
}

// Frame exposes the most recently completed PPU frame buffer for headless
// smoke-testing.
func (g *GB) Frame() video.Frame { return g.ppu.Frame() }

// FlushSRAM queues the cartridge's battery-backed external RAM for a
// background write.
func (g *GB) FlushSRAM(path string) {
	if sram := g.mapper.SRAM(); sram != nil {
		g.flush.FlushSRAM(path, sram)
	}
}

// Close waits for any in-flight background flushes to complete.
func (g *GB) Close() error { return g.flush.Wait() }
