package system

import (
	"fmt"

	"github.com/retrocore/retrocore/audio"
	"github.com/retrocore/retrocore/audio/sn76489"
	"github.com/retrocore/retrocore/bus"
	"github.com/retrocore/retrocore/cart"
	"github.com/retrocore/retrocore/cart/smsmappers"
	"github.com/retrocore/retrocore/clockdrv"
	"github.com/retrocore/retrocore/cpu"
	"github.com/retrocore/retrocore/cpu/z80"
	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
	"github.com/retrocore/retrocore/video/smsgg"
)

// SMS/GG clock dividers, MC ticks per unit step, derived from the same
// 53.693175MHz NTSC crystal system/genesis.go's own dividers document; the
// real SMS/GG Z80 runs at exactly that crystal's /15 (3.579545MHz), the
// same rate the Genesis Z80 runs at, so this core reuses the same MC
// domain rather than inventing a second one. PAL SMS's Z80 actually runs
// off a slightly different crystal (~3.5469MHz); this core approximates
// it with the NTSC-rate divider, a documented simplification, and varies
// PAL behavior only through line count (313 vs 262) as smsgg.Version
// already does.
const (
	smsggZ80Divider mclock.Divider = 15
	smsggDotDivider mclock.Divider = 10 // 342 dots x10 = 3420 MC/line = 228 Z80 cycles/line
	smsggPSGDivider mclock.Divider = 15
)

// SMSGG is the Sega Master System / Game Gear System Core: a single Z80
// main CPU, the Mode 4 VDP, and an SN76489 PSG (with the Game-Gear-only
// stereo panning register for Game Gear's stereo output).
//
// Grounded on system/genesis.go's processor/bus/device composition,
// reworked onto a single-CPU machine with no bus-arbitration lines and no
// memory-mapped sound subsystem (the real SMS/GG sound chip is genuinely
// port-mapped, unlike the Genesis Z80's YM2612 wiring) — since cpu/z80's
// decoder implements no IN/OUT opcodes, the VDP/PSG registers are exposed
// as direct methods below rather than bus.Region stubs, so they stay
// testable without colliding with the ROM address space real IN/OUT
// instructions would otherwise address independently of memory.
type SMSGG struct {
	cfg     Config
	variant smsgg.Version

	driver *clockdrv.Driver

	z80Host *cpu.Host
	z80CPU  *z80.CPU
	z80Bus  *bus.Map

	vdp *smsgg.VDP
	psg *sn76489.PSG

	mapper cart.Mapper

	poller InputPoller

	workRAM [0x2000]byte

	renderSink RenderSink
	sampleSink SampleSink
	audioUnits []audio.Unit

	flush *flushWorker
}

// NewSMSGG constructs an SMS/GG System Core from cartridge ROM bytes.
// variant selects NTSC SMS, PAL SMS, or Game Gear timing/CRAM/viewport.
func NewSMSGG(romData []byte, variant smsgg.Version, cfg Config) (*SMSGG, error) {
	if len(romData) == 0 {
		return nil, fmt.Errorf("system: empty SMS/GG ROM image")
	}

	s := &SMSGG{cfg: cfg, variant: variant, flush: newFlushWorker()}
	s.mapper = smsmappers.NewStandard(romData, 0)

	s.vdp = smsgg.New(variant, smsggDotDivider)
	s.psg = sn76489.New(smsggPSGDivider, sn76489.Sega)
	s.audioUnits = []audio.Unit{s.psg}

	s.buildZ80Bus()

	s.z80CPU = z80.New(s.z80Bus)
	s.z80CPU.SetBusGranted(true) // no bus-arbitration line on SMS/GG, unlike the Genesis Z80
	s.z80Host = cpu.NewHost("z80", mcScaledDecoder{step: s.z80CPU.Step, ratio: mclock.Tick(smsggZ80Divider)})
	s.vdp.RaiseIRQ = func(asserted bool) {
		if asserted {
			s.z80CPU.AssertInterrupt(1)
		} else {
			s.z80CPU.AssertInterrupt(0)
		}
	}

	s.driver = clockdrv.New()
	s.driver.AddProcessor(s.z80Host)
	s.driver.AddDevice(s.vdp)
	s.driver.AddDevice(&audioDeviceAdapter{unit: s.psg, divider: smsggPSGDivider})

	return s, nil
}

// buildZ80Bus lays out the Z80's 64KB address space: the cartridge mapper
// across $0000-$BFFF plus its $FFFC-$FFFF bank registers, and 8KB of work
// RAM at $C000-$DFFF mirrored through $FFFB.
func (s *SMSGG) buildZ80Bus() {
	m := bus.NewMap()
	m.AddRegion(bus.Region{
		Name: "cart", Start: 0x0000, End: 0xBFFF,
		Read:  s.mapper.Read,
		Write: s.mapper.Write,
	})
	m.AddRegion(bus.Region{
		Name: "work-ram", Start: 0xC000, End: 0xFFFB,
		Read:  func(addr uint32) uint8 { return s.workRAM[addr&0x1FFF] },
		Write: func(addr uint32, v uint8) { s.workRAM[addr&0x1FFF] = v },
	})
	m.AddRegion(bus.Region{
		Name: "mapper-registers", Start: 0xFFFC, End: 0xFFFF,
		Read:  s.mapper.Read,
		Write: s.mapper.Write,
	})
	s.z80Bus = m
}

// WriteVDPControl, WriteVDPData, ReadVDPStatus, and ReadVDPData expose the
// VDP's $BF/$BE port pair; WritePSG and WritePSGStereo expose the PSG's
// $7F tone/noise port and the Game-Gear-only $06 stereo panning port. See
// the SMSGG doc comment for why these are direct methods, not bus regions.
func (s *SMSGG) WriteVDPControl(v byte) { s.vdp.WriteControl(v) }
func (s *SMSGG) WriteVDPData(v byte)    { s.vdp.WriteData(v) }
func (s *SMSGG) ReadVDPStatus() byte    { return s.vdp.ReadStatus() }
func (s *SMSGG) ReadVDPData() byte      { return s.vdp.ReadData() }
func (s *SMSGG) WritePSG(v byte)        { s.psg.Write(v) }
func (s *SMSGG) WritePSGStereo(v byte)  { s.psg.WriteStereo(v) }

// SetInputPoller attaches the source of controller state for both ports.
// A nil poller (the default) reads as "nothing pressed" on every port.
func (s *SMSGG) SetInputPoller(p InputPoller) { s.poller = p }

// ReadJoypadPortA and ReadJoypadPortB expose the $DC/$DD input ports, the
// same direct-method shape as the VDP/PSG ports above and for the same
// reason (no IN/OUT decoding in cpu/z80). Port A packs pad 1's D-pad and
// two buttons plus pad 2's Up/Down; port B carries pad 2's Left/Right and
// its two buttons. The console RESET button (port B
// bit 4) and light-gun TH lines are not modeled.
func (s *SMSGG) ReadJoypadPortA() uint8 {
	p1, p2 := pollPad(s.poller, 0), pollPad(s.poller, 1)
	v := uint8(0xFF)
	if p1.Pressed(ButtonUp) {
		v &^= 0x01
	}
	if p1.Pressed(ButtonDown) {
		v &^= 0x02
	}
	if p1.Pressed(ButtonLeft) {
		v &^= 0x04
	}
	if p1.Pressed(ButtonRight) {
		v &^= 0x08
	}
	if p1.Pressed(ButtonA) {
		v &^= 0x10
	}
	if p1.Pressed(ButtonB) {
		v &^= 0x20
	}
	if p2.Pressed(ButtonUp) {
		v &^= 0x40
	}
	if p2.Pressed(ButtonDown) {
		v &^= 0x80
	}
	return v
}

func (s *SMSGG) ReadJoypadPortB() uint8 {
	p2 := pollPad(s.poller, 1)
	v := uint8(0xFF)
	if p2.Pressed(ButtonLeft) {
		v &^= 0x01
	}
	if p2.Pressed(ButtonRight) {
		v &^= 0x02
	}
	if p2.Pressed(ButtonA) {
		v &^= 0x04
	}
	if p2.Pressed(ButtonB) {
		v &^= 0x08
	}
	return v
}

// SetSinks attaches the host's video/audio output; nil sinks are legal
// (headless smoke-test mode).
func (s *SMSGG) SetSinks(render RenderSink, sample SampleSink) {
	s.renderSink = render
	s.sampleSink = sample
	if render != nil {
		s.vdp.OnFrame = render.Present
	}
}

// RunFrame advances the SMS/GG core by one video frame's worth of MC
// ticks and drains the mixed audio into the sample sink.
func (s *SMSGG) RunFrame() {
	linesPerFrame := mclock.Tick(s.variant.LinesPerFrame())
	frameTicks := linesPerFrame * 342 * mclock.Tick(smsggDotDivider)

	target := s.driver.MC() + frameTicks
	s.driver.RunSlice(target)

	if s.sampleSink != nil {
		frame := mixUnits(s.audioUnits)
		s.sampleSink.Write(frame[:])
	}
}

// Frame exposes the most recently completed VDP frame buffer for headless
// smoke-testing.
func (s *SMSGG) Frame() video.Frame { return s.vdp.Frame() }

// FlushSRAM queues the cartridge's battery-backed RAM, if any, for a
// background write.
func (s *SMSGG) FlushSRAM(path string) {
	if sram := s.mapper.SRAM(); sram != nil {
		s.flush.FlushSRAM(path, sram)
	}
}

// Close waits for any in-flight background flushes to complete.
func (s *SMSGG) Close() error { return s.flush.Wait() }
