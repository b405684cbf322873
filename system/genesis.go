package system

import (
	"fmt"

	"github.com/retrocore/retrocore/audio"
	"github.com/retrocore/retrocore/audio/sn76489"
	"github.com/retrocore/retrocore/audio/ym2612"
	"github.com/retrocore/retrocore/bus"
	"github.com/retrocore/retrocore/cart"
	"github.com/retrocore/retrocore/cart/genmappers"
	"github.com/retrocore/retrocore/clockdrv"
	"github.com/retrocore/retrocore/cpu"
	"github.com/retrocore/retrocore/cpu/m68k"
	"github.com/retrocore/retrocore/cpu/z80"
	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
	"github.com/retrocore/retrocore/video/genesis"
)

// Genesis clock dividers, MC ticks per unit step, derived from the NTSC
// 53.693175MHz (PAL 53.203424MHz) master crystal the real hardware derives
// every subsystem's clock from.
const (
	genesisM68KDivider    mclock.Divider = 7  // 68000 runs at MC/7 (~7.67MHz NTSC)
	genesisZ80Divider     mclock.Divider = 15 // Z80 runs at MC/15 (~3.58MHz)
	genesisDotDivider     mclock.Divider = 4  // pixel clock relative to this core's MC domain, approximated
	genesisYM2612Divider  mclock.Divider = 144
	genesisPSGDivider     mclock.Divider = 16
)

// Genesis is the Sega Genesis / Mega Drive System Core: 68000 main CPU,
// Z80 sub-CPU (sound/PSG/bus-arbitration), the Genesis VDP, YM2612 FM and
// SN76489 PSG, and a cartridge Mapper.
//
// Follows a top-level machine-wiring shape, generalized from a single
// CPU + single video chip into the multi-processor, multi-device
// composition clockdrv.Driver drives, and extended with the Z80
// bus-arbitration/reset-line pair exposed through the $A11100/$A11200
// registers.
type Genesis struct {
	cfg Config

	driver *clockdrv.Driver

	m68kHost *cpu.Host
	m68kCPU  *m68k.CPU
	m68kBus  *bus.Map

	z80Host *cpu.Host
	z80CPU  *z80.CPU
	z80Bus  *bus.Map

	vdp *genesis.VDP
	fm  *ym2612.YM2612
	psg *sn76489.PSG

	mapper cart.Mapper
	region cart.Region

	workRAM [0x10000]byte
	z80RAM  [0x2000]byte

	// z80BusRequested/z80Reset model the $A11100/$A11200 bus-arbitration
	// and reset lines: the 68000 can halt the Z80 and take over its bus,
	// and can hold it in reset, both observable as clockdrv sync-point
	// rendezvous so neither CPU runs past the other's view of the line's
	// state.
	z80BusRequested bool
	z80Reset        bool

	// poller and padTH/padCtrl model the two 9-pin controller ports'
	// TH-toggle protocol: reading the data register returns a different
	// button subset depending on the level the CPU last drove TH to.
	poller  InputPoller
	padTH   [2]bool
	padCtrl [2]uint8

	renderSink RenderSink
	sampleSink SampleSink
	audioUnits []audio.Unit

	flush *flushWorker
}

// NewGenesis constructs a Genesis System Core from cartridge ROM bytes. If
// cfg.RegionOverride is zero, the region is detected from the ROM header.
func NewGenesis(romData []byte, cfg Config) (*Genesis, error) {
	region := cfg.RegionOverride
	if region == cart.RegionUnknown {
		detected, err := cart.DetectGenesisRegion(romData)
		if err != nil {
			return nil, fmt.Errorf("system: failed to detect region: %w", err)
		}
		region = detected
	}

	g := &Genesis{cfg: cfg, region: region, flush: newFlushWorker()}
	g.mapper = genmappers.NewStandard(romData, 0x10000, 0x200000, 0x20FFFF)

	g.vdp = genesis.New(genesisDotDivider)
	g.vdp.SetRegion(region == cart.RegionPALEU)
	g.vdp.SetDeinterlace(cfg.Deinterlace)

	g.fm = ym2612.New(genesisYM2612Divider)
	mode := ym2612.BusyFixedCycle
	if cfg.YM2612BusyMode == 1 {
		mode = ym2612.BusyAlwaysClear
	}
	g.fm.SetBusyMode(mode)
	g.psg = sn76489.New(genesisPSGDivider, sn76489.Sega)
	g.audioUnits = []audio.Unit{g.fm, g.psg}

	g.buildM68KBus()
	g.buildZ80Bus()

	g.m68kCPU = m68k.New(g.m68kBus)
	g.m68kHost = cpu.NewHost("m68000", g.m68kCPU)
	g.vdp.RaiseIRQ = func(level int) { g.m68kCPU.AssertInterrupt(level) }
	g.vdp.StallCPU = func(d mclock.Tick) { g.m68kHost.Stall(g.m68kHost.Committed() + d) }
	g.vdp.Read68K = func(addr uint32) uint16 { return g.m68kBus.Read16(addr) }

	g.z80CPU = z80.New(g.z80Bus)
	g.z80Host = cpu.NewHost("z80", mcScaledDecoder{step: g.z80CPU.Step, ratio: mclock.Tick(genesisZ80Divider)})
	g.z80CPU.SetBusGranted(false)

	g.driver = clockdrv.New()
	g.driver.AddProcessor(g.m68kHost)
	g.driver.AddProcessor(g.z80Host)
	g.driver.AddDevice(g.vdp)
	g.driver.AddDevice(&audioDeviceAdapter{unit: g.fm, divider: genesisYM2612Divider})
	g.driver.AddDevice(&audioDeviceAdapter{unit: g.psg, divider: genesisPSGDivider})

	return g, nil
}

// buildM68KBus lays out the 68000's view of the address space: cartridge
// ROM/SRAM at $000000, work RAM mirrored at $FF0000, the VDP ports at
// $C00000-$C00007, and the Z80 bus-arbitration/reset registers at
// $A11100/$A11200.
func (g *Genesis) buildM68KBus() {
	m := bus.NewMap()

	m.AddRegion(bus.Region{
		Name: "cart-rom", Start: 0x000000, End: 0x3FFFFF,
		Read:  g.mapper.Read,
		Write: g.mapper.Write,
	})
	m.AddRegion(bus.Region{
		Name: "work-ram", Start: 0xFF0000, End: 0xFFFFFF,
		Read:  func(addr uint32) uint8 { return g.workRAM[addr&0xFFFF] },
		Write: func(addr uint32, v uint8) { g.workRAM[addr&0xFFFF] = v },
	})
	m.AddRegion(vdpPortRegion(g.vdp, 0xC00000, 0xC0001F))
	m.AddRegion(bus.Region{
		Name: "z80-bus-request", Start: 0xA11100, End: 0xA11101,
		Read: func(addr uint32) uint8 {
			if g.z80BusRequested {
				return 0
			}
			return 1
		},
		Write: func(addr uint32, v uint8) { g.requestZ80Bus(v&0x01 != 0) },
	})
	m.AddRegion(bus.Region{
		Name: "z80-reset", Start: 0xA11200, End: 0xA11201,
		Write: func(addr uint32, v uint8) { g.resetZ80(v&0x01 == 0) },
	})
	m.AddRegion(bus.Region{
		Name: "pad1-data", Start: 0xA10003, End: 0xA10003,
		Read:  func(addr uint32) uint8 { return g.readPadData(0) },
		Write: func(addr uint32, v uint8) { g.padTH[0] = v&0x40 != 0 },
	})
	m.AddRegion(bus.Region{
		Name: "pad2-data", Start: 0xA10005, End: 0xA10005,
		Read:  func(addr uint32) uint8 { return g.readPadData(1) },
		Write: func(addr uint32, v uint8) { g.padTH[1] = v&0x40 != 0 },
	})
	m.AddRegion(bus.Region{
		Name: "pad1-ctrl", Start: 0xA10009, End: 0xA10009,
		Read:  func(addr uint32) uint8 { return g.padCtrl[0] },
		Write: func(addr uint32, v uint8) { g.padCtrl[0] = v },
	})
	m.AddRegion(bus.Region{
		Name: "pad2-ctrl", Start: 0xA1000B, End: 0xA1000B,
		Read:  func(addr uint32) uint8 { return g.padCtrl[1] },
		Write: func(addr uint32, v uint8) { g.padCtrl[1] = v },
	})
	m.AddRegion(bus.Region{
		Name: "ym2612-from-68k", Start: 0xA04000, End: 0xA04003,
		Read: func(addr uint32) uint8 {
			if g.fm.Busy() {
				return 0x80
			}
			return 0
		},
		Write: func(addr uint32, v uint8) {
			port := int((addr - 0xA04000) / 2)
			if (addr-0xA04000)%2 == 0 {
				g.fm.WriteAddr(port, v)
			} else {
				g.fm.WriteData(port, v)
			}
		},
	})
	g.m68kBus = m
}

// buildZ80Bus lays out the Z80's own view: its 8KB work RAM, the YM2612
// ports (the Z80, not the 68000, is the YM2612's real bus master on
// hardware), and the PSG's write-only port.
func (g *Genesis) buildZ80Bus() {
	m := bus.NewMap()
	m.AddRegion(bus.Region{
		Name: "z80-ram", Start: 0x0000, End: 0x1FFF,
		Read:  func(addr uint32) uint8 { return g.z80RAM[addr&0x1FFF] },
		Write: func(addr uint32, v uint8) { g.z80RAM[addr&0x1FFF] = v },
	})
	m.AddRegion(bus.Region{
		Name: "ym2612", Start: 0x4000, End: 0x4003,
		Read: func(addr uint32) uint8 {
			if g.fm.Busy() {
				return 0x80
			}
			return 0
		},
		Write: func(addr uint32, v uint8) {
			port := int((addr - 0x4000) / 2)
			if (addr-0x4000)%2 == 0 {
				g.fm.WriteAddr(port, v)
			} else {
				g.fm.WriteData(port, v)
			}
		},
	})
	m.AddRegion(bus.Region{
		Name: "psg", Start: 0x7F11, End: 0x7F11,
		Write: func(addr uint32, v uint8) { g.psg.Write(v) },
	})
	m.AddRegion(vdpPortRegion(g.vdp, 0x6000, 0x601F))
	g.z80Bus = m
}

// SetInputPoller attaches the source of controller state for both ports.
// A nil poller (the default) reads as "nothing pressed" on every port.
func (g *Genesis) SetInputPoller(p InputPoller) { g.poller = p }

// readPadData implements the standard 3-button pad's TH-toggle read
// protocol: with TH driven high, D/U/L/R/B/C read back; with TH driven
// low, D/U/A/Start read back and bits 2-3 are forced low to identify a
// standard pad to software that probes for one. The 6-button pad's
// extended four-transition nibble sequence (X/Y/Z/Mode) is not modeled;
// see DESIGN.md.
func (g *Genesis) readPadData(port int) uint8 {
	pad := pollPad(g.poller, port)
	if g.padTH[port] {
		v := uint8(0xC0)
		if !pad.Pressed(ButtonUp) {
			v |= 0x01
		}
		if !pad.Pressed(ButtonDown) {
			v |= 0x02
		}
		if !pad.Pressed(ButtonLeft) {
			v |= 0x04
		}
		if !pad.Pressed(ButtonRight) {
			v |= 0x08
		}
		if !pad.Pressed(ButtonB) {
			v |= 0x10
		}
		if !pad.Pressed(ButtonC) {
			v |= 0x20
		}
		return v
	}
	v := uint8(0x80)
	if !pad.Pressed(ButtonUp) {
		v |= 0x01
	}
	if !pad.Pressed(ButtonDown) {
		v |= 0x02
	}
	if !pad.Pressed(ButtonA) {
		v |= 0x10
	}
	if !pad.Pressed(ButtonStart) {
		v |= 0x20
	}
	return v
}

// SetSinks attaches the host's video/audio output; nil sinks are legal
// (headless smoke-test mode).
func (g *Genesis) SetSinks(render RenderSink, sample SampleSink) {
	g.renderSink = render
	g.sampleSink = sample
	if render != nil {
		g.vdp.OnFrame = render.Present
	}
}

// RunFrame advances the Genesis by one video frame's worth of master-clock
// ticks, per the slice-at-a-time outer loop, and drains the
// mixed audio into the sample sink.
func (g *Genesis) RunFrame() {
	linesPerFrame := mclock.Tick(262)
	if g.region == cart.RegionPALEU {
		linesPerFrame = 312
	}
	dotsPerLine := mclock.Tick(342)
	frameTicks := linesPerFrame * dotsPerLine * mclock.Tick(genesisDotDivider)

	target := g.driver.MC() + frameTicks
	g.driver.RunSlice(target)

	if g.sampleSink != nil {
		frame := mixUnits(g.audioUnits)
		g.sampleSink.Write(frame[:])
	}
}

// Frame exposes the most recently completed VDP frame buffer for headless
// smoke-testing (cmd/retrocore's frame-hash mode).
func (g *Genesis) Frame() video.Frame { return g.vdp.Frame() }

// requestZ80Bus implements the $A11100 bus-request register: the 68000
// asks for the Z80's bus, and the Z80 host is halted at the next slice
// boundary so neither CPU observes the other mid-instruction.
func (g *Genesis) requestZ80Bus(requested bool) {
	g.z80BusRequested = requested
	g.driver.Schedule(g.driver.MC(), func() {
		g.z80CPU.SetBusGranted(!requested)
		g.z80Host.SetHalted(requested || g.z80Reset)
	})
}

// resetZ80 implements the $A11200 reset-line register.
func (g *Genesis) resetZ80(held bool) {
	g.z80Reset = held
	g.driver.Schedule(g.driver.MC(), func() {
		g.z80Host.SetHalted(held || g.z80BusRequested)
		g.fm.AssertReset(held)
	})
}

// FlushSRAM queues the cartridge's battery-backed SRAM for a background
// write.
func (g *Genesis) FlushSRAM(path string) {
	if sram := g.mapper.SRAM(); sram != nil {
		g.flush.FlushSRAM(path, sram)
	}
}

// Close waits for any in-flight background flushes to complete.
func (g *Genesis) Close() error { return g.flush.Wait() }

// audioDeviceAdapter adapts an audio.Unit (StepTo/Sample) into a
// clockdrv.Device (StepTo/NextDeadline): every chip's own step divider
// differs, but the Driver only needs to know the next absolute MC tick at
// which stepping it becomes observable, not its internal state, so the
// adapter tracks its own position the same way video/genesis's VDP tracks
// v.mc for its own NextDeadline.
type audioDeviceAdapter struct {
	unit    audio.Unit
	divider mclock.Divider
	mc      mclock.Tick
}

func (a *audioDeviceAdapter) StepTo(to mclock.Tick) {
	a.unit.StepTo(to)
	a.mc = to
}
func (a *audioDeviceAdapter) NextDeadline() mclock.Tick { return a.mc + mclock.Tick(a.divider) }

// vdpPortRegion adapts the Genesis VDP's 16-bit control/data ports onto
// bus.Map's byte-granular Region, buffering the high byte of a 16-bit bus
// write/read until its low-byte half arrives, matching the real 68000's
// big-endian word-at-a-time bus protocol over a byte-addressed memory map.
// start/end cover the full 8-port mirror block ($C00000-$C00007 and its
// $C00008-$C0001F repeats, or the Z80's $6000-$601F aliasing window).
func vdpPortRegion(v *genesis.VDP, start, end uint32) bus.Region {
	var pendingHighControl uint8
	var haveHighControl bool
	var pendingDataWord uint16
	var haveLowData bool
	var pendingHighData uint8
	var haveHighData bool

	return bus.Region{
		Name: "vdp-ports", Start: start, End: end,
		Read: func(addr uint32) uint8 {
			switch (addr - start) % 4 {
			case 0:
				s := v.ReadStatus()
				return uint8(s >> 8)
			case 1:
				s := v.ReadStatus()
				return uint8(s)
			case 2:
				pendingDataWord = v.ReadData()
				haveLowData = true
				return uint8(pendingDataWord >> 8)
			default:
				if haveLowData {
					haveLowData = false
					return uint8(pendingDataWord)
				}
				pendingDataWord = v.ReadData()
				return uint8(pendingDataWord)
			}
		},
		Write: func(addr uint32, value uint8) {
			switch (addr - start) % 4 {
			case 0:
				pendingHighControl, haveHighControl = value, true
			case 1:
				if haveHighControl {
					v.WriteControl(uint16(pendingHighControl)<<8 | uint16(value))
					haveHighControl = false
				} else {
					v.WriteControl(uint16(value))
				}
			case 2:
				pendingHighData, haveHighData = value, true
			default:
				if haveHighData {
					v.WriteData(uint16(pendingHighData)<<8 | uint16(value))
					haveHighData = false
				} else {
					v.WriteData(uint16(value))
				}
			}
		},
	}
}
