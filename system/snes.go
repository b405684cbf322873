package system

import (
	"fmt"

	"github.com/retrocore/retrocore/audio"
	"github.com/retrocore/retrocore/audio/snesdsp"
	"github.com/retrocore/retrocore/bus"
	"github.com/retrocore/retrocore/cart"
	"github.com/retrocore/retrocore/cart/snescart"
	"github.com/retrocore/retrocore/cart/snescoproc"
	"github.com/retrocore/retrocore/clockdrv"
	"github.com/retrocore/retrocore/cpu"
	"github.com/retrocore/retrocore/cpu/spc700"
	"github.com/retrocore/retrocore/cpu/wdc65816"
	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
	"github.com/retrocore/retrocore/video/snes"
)

// SNES clock dividers. This module drives the whole System Core from one
// shared master clock even though real hardware runs the APU section
// (SPC700+S-DSP) from its own free-running 24.576MHz crystal, asynchronous
// to the CPU/PPU's 21.477MHz crystal; collapsing both onto one MC timeline
// is an explicit simplification (real inter-domain drift, the thing that
// makes SPC700/DSP timing "almost but not quite" a fixed ratio to the CPU,
// is not reproduced) consistent with this module's reference-fidelity
// tier elsewhere.
const (
	snesCPUDivider mclock.Divider = 6 // 65816 decoder cycles -> MC
	snesPPUDivider mclock.Divider = 2 // PPU dots -> MC
	snesSPCDivider mclock.Divider = 5 // SPC700 decoder cycles -> MC
	snesDSPDivider mclock.Divider = snesSPCDivider * 32
)

// SNES is the Super Nintendo / Super Famicom System Core: a 65C816 main
// CPU, an SPC700+S-DSP audio sub-system reachable only through four
// communication ports, the PPU pair, and the cartridge's Mapper plus an
// optional coprocessor hosted as its own sub-processor.
//
// Grounded on the Genesis/NES System Cores' composition shape, generalized
// to a third scheduled Processor (the coprocessor, when present) and a
// fully separate CPU<->audio-subsystem address space the Genesis's shared-
// bus Z80 sub-CPU does not need.
type SNES struct {
	cfg Config

	driver *clockdrv.Driver

	cpuHost *cpu.Host
	cpu     *wdc65816.CPU
	cpuBus  *bus.Map

	spcHost *cpu.Host
	spc     *spc700.CPU
	spcBus  *bus.Map
	dsp     *snesdsp.DSP

	ppu *snes.PPU

	mapper cart.Mapper
	coproc snescoproc.Coprocessor

	toSPC   [4]byte // main CPU -> SPC700, written at $2140-2143, read at $F4-F7
	toMain  [4]byte // SPC700 -> main CPU, written at $F4-F7, read at $2140-2143
	dspAddr uint8

	wram [0x20000]byte

	nmiEnable   bool
	nmiOccurred bool
	autoJoy     bool
	hIRQDot     int
	vIRQLine    int

	// poller and joyData back $4218-$421B: the auto-joypad-read latches the
	// CPU-visible 16-bit shift pattern for each port at V-blank entry when
	// autoJoy is set, the same instant real hardware's auto-read logic
	// runs. Manual $4016/$4017 strobe-driven reads (used mainly by
	// multitap adapters) are not modeled; see DESIGN.md.
	poller  InputPoller
	joyData [2]uint16

	renderSink RenderSink
	sampleSink SampleSink
	audioUnits []audio.Unit

	flush *flushWorker
}

// NewSNES constructs an SNES System Core from a cartridge ROM image.
func NewSNES(romData []byte, cfg Config) (*SNES, error) {
	mapper, coproc, err := snescart.LoadSNES(romData)
	if err != nil {
		return nil, fmt.Errorf("system: failed to load SNES cartridge: %w", err)
	}

	s := &SNES{cfg: cfg, mapper: mapper, coproc: coproc, flush: newFlushWorker()}

	s.ppu = snes.New(snesPPUDivider)
	s.dsp = snesdsp.New(snesDSPDivider)
	s.audioUnits = []audio.Unit{s.dsp}

	s.buildSPCBus()
	s.spc = spc700.New(s.spcBus)
	s.spcHost = cpu.NewHost("spc700", mcScaledDecoder{step: s.spc.Step, ratio: mclock.Tick(snesSPCDivider)})

	s.buildCPUBus()
	s.cpu = wdc65816.New(s.cpuBus)
	s.cpuHost = cpu.NewHost("65816", mcScaledDecoder{step: s.cpu.Step, ratio: mclock.Tick(snesCPUDivider)})

	s.ppu.RaiseIRQ = func() { s.cpu.AssertInterrupt(1) }
	s.ppu.OnVBlank = func() {
		s.nmiOccurred = true
		if s.nmiEnable {
			s.cpu.AssertNMI()
		}
		if s.autoJoy {
			s.joyData[0] = joyWord(pollPad(s.poller, 0))
			s.joyData[1] = joyWord(pollPad(s.poller, 1))
		}
	}

	s.driver = clockdrv.New()
	s.driver.AddProcessor(s.cpuHost)
	s.driver.AddProcessor(s.spcHost)
	if s.coproc != nil {
		s.driver.AddProcessor(s.coproc)
	}
	s.driver.AddDevice(s.ppu)
	s.driver.AddDevice(&audioDeviceAdapter{unit: s.dsp, divider: snesDSPDivider})

	return s, nil
}

// buildSPCBus lays out the SPC700's own 64KB ARAM address space: the four
// CPU communication ports at $F4-$F7 and the DSP address/data ports at
// $F2/$F3 are checked ahead of the flat 64KB RAM region they'd otherwise
// fall inside, matching bus.Map's first-match-wins region order.
func (s *SNES) buildSPCBus() {
	aram := make([]byte, 0x10000)
	m := bus.NewMap()
	m.AddRegion(bus.Region{
		Name: "spc-dsp-addr", Start: 0xF2, End: 0xF2,
		Write: func(addr uint32, v uint8) { s.dspAddr = v },
	})
	m.AddRegion(bus.Region{
		Name: "spc-dsp-data", Start: 0xF3, End: 0xF3,
		Read:  func(addr uint32) uint8 { return s.dsp.ReadReg(s.dspAddr) },
		Write: func(addr uint32, v uint8) { s.dsp.WriteReg(s.dspAddr, v) },
	})
	m.AddRegion(bus.Region{
		Name: "spc-ports", Start: 0xF4, End: 0xF7,
		Read:  func(addr uint32) uint8 { return s.toSPC[addr-0xF4] },
		Write: func(addr uint32, v uint8) { s.toMain[addr-0xF4] = v },
	})
	m.AddRegion(bus.Region{
		Name: "aram", Start: 0x0000, End: 0xFFFF,
		Read:  func(addr uint32) uint8 { return aram[addr] },
		Write: func(addr uint32, v uint8) { aram[addr] = v },
	})
	s.spcBus = m
}

// buildCPUBus lays out the 65816's 24-bit address space: cartridge ROM/
// SRAM at $00-$7D/$80-$FF (the exact decode is the Mapper's own
// LoROM/HiROM concern), 128KB of work RAM at $7E-$7F (and its low-8KB
// mirror in banks $00-$3F/$80-$BF), the PPU's $21xx port block, the
// $2140-$2143 APU communication ports, and the $4200-$421F CPU-internal
// control registers.
func (s *SNES) buildCPUBus() {
	m := bus.NewMap()
	m.AddRegion(bus.Region{
		Name:  "cpu-dispatch",
		Start: 0x000000, End: 0xFFFFFF,
		Read:  s.cpuRead,
		Write: s.cpuWrite,
	})
	s.cpuBus = m
}

func (s *SNES) cpuRead(addr uint32) uint8 {
	bank := addr >> 16
	off := addr & 0xFFFF

	if bank == 0x7E || bank == 0x7F {
		return s.wram[addr-0x7E0000]
	}
	lowBank := bank <= 0x3F || (bank >= 0x80 && bank <= 0xBF)
	if lowBank && off < 0x2000 {
		return s.wram[off]
	}
	if lowBank && off >= 0x2100 && off <= 0x213F {
		return s.ppu.ReadRegister(uint16(off))
	}
	if lowBank && off >= 0x2140 && off <= 0x2143 {
		return s.toMain[off-0x2140]
	}
	if lowBank && off == 0x4210 {
		v := uint8(0x02) // CPU version nibble (arbitrary, unused by any test ROM this module ships)
		if s.nmiOccurred {
			v |= 0x80
		}
		s.nmiOccurred = false // RDNMI's top bit latches and clears on read
		return v
	}
	if lowBank && off >= 0x4218 && off <= 0x421B {
		port := (off - 0x4218) / 2
		word := s.joyData[port]
		if (off-0x4218)%2 == 0 {
			return uint8(word)
		}
		return uint8(word >> 8)
	}
	if s.coproc != nil && lowBank && off >= 0x2000 && off < 0x2100 {
		return s.coproc.ReadReg(addr)
	}
	return s.mapper.Read(addr)
}

// joyWord packs a pad state into the auto-joypad-read bit order: B,Y,
// Select,Start,Up,Down,Left,Right,A,X,L,R, then four always-zero bits.
func joyWord(pad Button) uint16 {
	order := [12]Button{
		ButtonB, ButtonY, ButtonSelect, ButtonStart,
		ButtonUp, ButtonDown, ButtonLeft, ButtonRight,
		ButtonA, ButtonX, ButtonL, ButtonR,
	}
	var v uint16
	for i, b := range order {
		if pad.Pressed(b) {
			v |= 1 << (15 - i)
		}
	}
	return v
}

func (s *SNES) cpuWrite(addr uint32, v uint8) {
	bank := addr >> 16
	off := addr & 0xFFFF

	if bank == 0x7E || bank == 0x7F {
		s.wram[addr-0x7E0000] = v
		return
	}
	lowBank := bank <= 0x3F || (bank >= 0x80 && bank <= 0xBF)
	if lowBank && off < 0x2000 {
		s.wram[off] = v
		return
	}
	if lowBank && off >= 0x2100 && off <= 0x213F {
		s.ppu.WriteRegister(uint16(off), v)
		return
	}
	if lowBank && off >= 0x2140 && off <= 0x2143 {
		s.toSPC[off-0x2140] = v
		return
	}
	if lowBank && off == 0x4200 {
		s.nmiEnable = v&0x80 != 0
		s.autoJoy = v&0x01 != 0
		return
	}
	if lowBank && off == 0x4207 {
		s.hIRQDot = int(v)
		s.ppu.SetHIRQ(true, s.hIRQDot, s.vIRQLine)
		return
	}
	if lowBank && off == 0x4209 {
		s.vIRQLine = int(v)
		s.ppu.SetVIRQ(true, s.vIRQLine)
		return
	}
	if s.coproc != nil && lowBank && off >= 0x2000 && off < 0x2100 {
		s.coproc.WriteReg(addr, v)
		return
	}
	s.mapper.Write(addr, v)
}

// SetInputPoller attaches the source of controller state for both ports.
// A nil poller (the default) reads as "nothing pressed" on every port.
func (s *SNES) SetInputPoller(p InputPoller) { s.poller = p }

// SetSinks attaches the host's video/audio output; nil sinks are legal
// (headless smoke-test mode).
func (s *SNES) SetSinks(render RenderSink, sample SampleSink) {
	s.renderSink = render
	s.sampleSink = sample
	if render != nil {
		s.ppu.OnFrame = render.Present
	}
}

// RunFrame advances the SNES by one video frame's worth of master-clock
// ticks and drains the mixed audio into the sample sink.
func (s *SNES) RunFrame() {
	const linesPerFrame = mclock.Tick(262)
	const dotsPerLine = mclock.Tick(341)
	frameTicks := linesPerFrame * dotsPerLine * mclock.Tick(snesPPUDivider)

	target := s.driver.MC() + frameTicks
	s.driver.RunSlice(target)

	if s.sampleSink != nil {
		frame := mixUnits(s.audioUnits)
		s.sampleSink.Write(frame[:])
	}
}

// Frame exposes the most recently completed PPU frame buffer for headless
// smoke-testing.
func (s *SNES) Frame() video.Frame { return s.ppu.Frame() }

// FlushSRAM queues the cartridge's battery-backed SRAM for a background
// write.
func (s *SNES) FlushSRAM(path string) {
	if sram := s.mapper.SRAM(); sram != nil {
		s.flush.FlushSRAM(path, sram)
	}
}

// Close waits for any in-flight background flushes to complete.
func (s *SNES) Close() error { return s.flush.Wait() }
