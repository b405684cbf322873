package system

import (
	"fmt"

	"github.com/retrocore/retrocore/audio"
	"github.com/retrocore/retrocore/audio/nesapu"
	"github.com/retrocore/retrocore/bus"
	"github.com/retrocore/retrocore/cart"
	"github.com/retrocore/retrocore/cart/nesmappers"
	"github.com/retrocore/retrocore/clockdrv"
	"github.com/retrocore/retrocore/cpu"
	"github.com/retrocore/retrocore/cpu/mos6502"
	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
	"github.com/retrocore/retrocore/video/nes"
)

// NES clock dividers, MC ticks per unit step. The NES master clock is
// taken at 12x the 6502's own cycle rate, so the PPU's 3-dots-per-CPU-
// cycle relationship falls out as a clean /4 against that MC domain.
const (
	nesCPUDivider mclock.Divider = 12
	nesPPUDivider mclock.Divider = 4
	nesAPUDivider mclock.Divider = 12
)

// mmc3Like is the capability a mapper exposes when it clocks a scanline
// IRQ counter off the PPU's address bus; only cart/nesmappers' MMC3
// implements it, type-asserted rather than added to cart.Mapper itself
// since no other mapper in the catalog has an equivalent counter.
type mmc3Like interface {
	ClockScanline()
	IRQPending() bool
}

// NES is the Nintendo Entertainment System / Famicom System Core: a
// single 6502 CPU, the PPU, the built-in APU, and whatever cartridge
// mapper the loaded image declares (including its onboard expansion
// audio, if any).
//
// Grounded on the Genesis System Core's composition shape
// (system/genesis.go), reworked onto the NES's much simpler single-CPU,
// unified-address-space bus (no Z80 bus-arbitration rendezvous needed).
type NES struct {
	cfg Config

	driver *clockdrv.Driver

	cpuHost *cpu.Host
	cpu     *mos6502.CPU
	cpuBus  *bus.Map

	ppu *nes.PPU
	apu *nesapu.APU

	mapper cart.Mapper

	ram [0x800]byte

	// poller, strobe, and shiftReg model the $4016/$4017 serial-shift-
	// register pad protocol: strobing $4016 bit0 high then low reloads
	// the shift register from the current pad state; each subsequent
	// read returns the next bit, then stays at 1 past the 8th.
	poller    InputPoller
	strobe    bool
	shiftReg  [2]uint8
	shiftBits [2]int

	renderSink RenderSink
	sampleSink SampleSink
	audioUnits []audio.Unit

	flush *flushWorker
}

// NewNES constructs an NES System Core from an iNES cartridge image.
func NewNES(romData []byte, cfg Config) (*NES, error) {
	mapper, _, _, err := nesmappers.LoadINES(romData)
	if err != nil {
		return nil, fmt.Errorf("system: failed to load NES cartridge: %w", err)
	}

	n := &NES{cfg: cfg, mapper: mapper, flush: newFlushWorker()}

	n.ppu = nes.New(nesPPUDivider)
	n.ppu.CHRRead = func(addr uint16) byte { return n.mapper.Read(uint32(addr)) }
	n.ppu.CHRWrite = func(addr uint16, v byte) { n.mapper.Write(uint32(addr), v) }
	n.ppu.NametableMirror = func(addr uint16) uint16 { return mirrorNametable(addr, nesmappers.MirrorOf(n.mapper)) }

	n.apu = nesapu.New(nesAPUDivider)

	n.audioUnits = []audio.Unit{n.apu}
	if exp, ok := mapper.(cart.ExpansionAudio); ok {
		n.audioUnits = append(n.audioUnits, exp.ExpansionAudioUnit())
	}

	n.buildCPUBus()
	n.cpu = mos6502.New(n.cpuBus)
	n.cpuHost = cpu.NewHost("6502", mcScaledDecoder{step: n.cpu.Step, ratio: mclock.Tick(nesCPUDivider)})
	n.apu.SetDMCMemory(
		func(addr uint16) byte { return n.cpuBus.Read8(uint32(addr)) },
		func(cpuCycles int) {
			n.cpuHost.Stall(n.cpuHost.Committed() + mclock.Tick(cpuCycles)*mclock.Tick(nesCPUDivider))
		},
	)

	n.ppu.NMI = func() { n.cpu.AssertNMI() }
	n.apu.RaiseIRQ = func() { n.cpu.AssertInterrupt(1) }
	n.ppu.OnScanline = func(line int) {
		if mc, ok := n.mapper.(mmc3Like); ok {
			mc.ClockScanline()
			if mc.IRQPending() {
				n.cpu.AssertInterrupt(1)
			}
		}
	}

	n.driver = clockdrv.New()
	n.driver.AddProcessor(n.cpuHost)
	n.driver.AddDevice(n.ppu)
	n.driver.AddDevice(&audioDeviceAdapter{unit: n.apu, divider: nesAPUDivider})
	for _, u := range n.audioUnits[1:] {
		n.driver.AddDevice(&audioDeviceAdapter{unit: u, divider: nesAPUDivider})
	}

	return n, nil
}

// mirrorNametable maps a raw $2000-$2FFF PPU address to a physical offset
// within the PPU's 2KB internal VRAM per the cartridge's mirroring mode.
// Four-screen carts supply their own extra 2KB of nametable RAM on
// hardware, which this module's PPU does not back separately (an
// explicitly undersized simplification, consistent with the Non-
// goal of 100% retail-title accuracy); it falls back to the raw low 11
// bits, which is only wrong for the small set of four-screen titles.
func mirrorNametable(addr uint16, mirror nesmappers.Mirror) uint16 {
	table := (addr >> 10) & 0x3
	offset := addr & 0x3FF
	var physical uint16
	switch mirror {
	case nesmappers.MirrorVertical:
		physical = table & 1
	case nesmappers.MirrorSingleLower:
		physical = 0
	case nesmappers.MirrorSingleUpper:
		physical = 1
	case nesmappers.MirrorFourScreen:
		return addr & 0x7FF
	default: // MirrorHorizontal
		physical = table >> 1
	}
	return physical*0x400 + offset
}

// buildCPUBus lays out the 6502's unified address space: 2KB internal RAM
// mirrored through $1FFF, PPU registers at $2000-$3FFF, the APU/IO block
// at $4000-$4017, and the cartridge's own $4020-$FFFF space (PRG-RAM and
// PRG-ROM) and any mapper-exposed expansion-audio ports routed straight
// through to the mapper.
func (n *NES) buildCPUBus() {
	m := bus.NewMap()
	m.AddRegion(bus.Region{
		Name: "ram", Start: 0x0000, End: 0x1FFF,
		Read:  func(addr uint32) uint8 { return n.ram[addr&0x7FF] },
		Write: func(addr uint32, v uint8) { n.ram[addr&0x7FF] = v },
	})
	m.AddRegion(bus.Region{
		Name: "ppu", Start: 0x2000, End: 0x3FFF,
		Read:  func(addr uint32) uint8 { return n.ppu.ReadRegister(uint16(addr)) },
		Write: func(addr uint32, v uint8) { n.ppu.WriteRegister(uint16(addr), v) },
	})
	m.AddRegion(bus.Region{
		Name: "apu", Start: 0x4000, End: 0x4013,
		Write: func(addr uint32, v uint8) { n.apu.WriteRegister(uint16(addr), v) },
	})
	m.AddRegion(bus.Region{
		Name: "oam-dma", Start: 0x4014, End: 0x4014,
		Write: func(addr uint32, v uint8) { n.oamDMA(v) },
	})
	m.AddRegion(bus.Region{
		Name: "apu-status", Start: 0x4015, End: 0x4015,
		Read:  func(addr uint32) uint8 { return n.apu.ReadStatus() },
		Write: func(addr uint32, v uint8) { n.apu.WriteRegister(0x4015, v) },
	})
	m.AddRegion(bus.Region{
		Name: "pad1-strobe", Start: 0x4016, End: 0x4016,
		Read:  func(addr uint32) uint8 { return n.readPad(0) },
		Write: func(addr uint32, v uint8) { n.writeStrobe(v) },
	})
	m.AddRegion(bus.Region{
		Name: "apu-frame-counter", Start: 0x4017, End: 0x4017,
		Read:  func(addr uint32) uint8 { return n.readPad(1) },
		Write: func(addr uint32, v uint8) { n.apu.WriteRegister(0x4017, v) },
	})
	// $4020-$FFFF: cartridge space, including VRC7's $9010/$9030 FM ports
	// and any mapper's PRG-RAM/PRG-ROM banking, all routed through the
	// single Mapper.Read/Write pair per the unified CPU/CHR address-space
	// convention cart/nesmappers establishes.
	m.AddRegion(bus.Region{
		Name: "cart", Start: 0x4020, End: 0xFFFF,
		Read:  n.mapper.Read,
		Write: n.mapper.Write,
	})
	n.cpuBus = m
}

// SetSinks attaches the host's video/audio output; nil sinks are legal
// (headless smoke-test mode).
func (n *NES) SetSinks(render RenderSink, sample SampleSink) {
	n.renderSink = render
	n.sampleSink = sample
	if render != nil {
		n.ppu.OnFrame = render.Present
	}
}

// RunFrame advances the NES by one video frame's worth of master-clock
// ticks and drains the mixed audio into the sample sink.
func (n *NES) RunFrame() {
	const linesPerFrame = mclock.Tick(262)
	const dotsPerLine = mclock.Tick(341)
	frameTicks := linesPerFrame * dotsPerLine * mclock.Tick(nesPPUDivider)

	target := n.driver.MC() + frameTicks
	n.driver.RunSlice(target)

	if n.sampleSink != nil {
		frame := mixUnits(n.audioUnits)
		n.sampleSink.Write(frame[:])
	}
}

// Frame exposes the most recently completed PPU frame buffer for headless
// smoke-testing.
func (n *NES) Frame() video.Frame { return n.ppu.Frame() }

// FlushSRAM queues the cartridge's battery-backed PRG-RAM for a
// background write.
func (n *NES) FlushSRAM(path string) {
	if sram := n.mapper.SRAM(); sram != nil {
		n.flush.FlushSRAM(path, sram)
	}
}

// Close waits for any in-flight background flushes to complete.
func (n *NES) Close() error { return n.flush.Wait() }

// SetInputPoller attaches the source of controller state for both ports.
// A nil poller (the default) reads as "nothing pressed" on every port.
func (n *NES) SetInputPoller(p InputPoller) { n.poller = p }

// padButtonOrder is the bit order the NES shift register reports buttons
// in: A, B, Select, Start, Up, Down, Left, Right.
var padButtonOrder = [8]Button{
	ButtonA, ButtonB, ButtonSelect, ButtonStart,
	ButtonUp, ButtonDown, ButtonLeft, ButtonRight,
}

func (n *NES) latchPad(port int) {
	pad := pollPad(n.poller, port)
	var v uint8
	for i, b := range padButtonOrder {
		if pad.Pressed(b) {
			v |= 1 << i
		}
	}
	n.shiftReg[port] = v
	n.shiftBits[port] = 0
}

// writeStrobe implements $4016 bit0: while held high the shift register
// continuously reloads; the falling edge freezes it for reading.
func (n *NES) writeStrobe(v uint8) {
	strobing := v&0x01 != 0
	if strobing {
		n.latchPad(0)
		n.latchPad(1)
	}
	n.strobe = strobing
}

// readPad returns the next serial bit for the given port, padded with 1s
// once all 8 buttons have been shifted out, matching real hardware.
func (n *NES) readPad(port int) uint8 {
	if n.strobe {
		n.latchPad(port)
	}
	if n.shiftBits[port] >= 8 {
		return 0x01
	}
	bit := (n.shiftReg[port] >> n.shiftBits[port]) & 1
	n.shiftBits[port]++
	return bit
}

// oamDMA implements the $4014 OAMDMA register: a 256-byte copy from CPU
// page (v<<8) into PPU OAM, stalling the CPU for 513 cycles (514 on an
// odd CPU cycle; approximated here as a flat 513 since this module's
// 6502 host does not track odd/even cycle parity).
func (n *NES) oamDMA(page uint8) {
	base := uint32(page) << 8
	for i := 0; i < 256; i++ {
		n.ppu.OAM[i] = n.cpuBus.Read8(base + uint32(i))
	}
	n.cpuHost.Stall(n.cpuHost.Committed() + 513*mclock.Tick(nesCPUDivider))
}
